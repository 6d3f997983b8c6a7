package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client queues requests to the gateway over a Redis list and delivers
// asynchronous responses (or timeout sentinels) to a single handler.
// Sending never waits for the gateway; correlation is the caller's
// concern via Request.ID.
type Client struct {
	redis    *redis.Client
	logger   *log.Logger
	deviceID string

	requestQueue    string
	responseQueue   string
	responseTimeout time.Duration

	handler ResponseHandler

	mutex   sync.Mutex
	pending map[uint32]*time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient creates a gateway client for one device. Responses for the
// device arrive on responseQueue suffixed with the device id.
func NewClient(ctx context.Context, redisClient *redis.Client, logger *log.Logger, deviceID, requestQueue, responseQueue string, responseTimeout time.Duration) *Client {
	clientCtx, cancel := context.WithCancel(ctx)
	return &Client{
		redis:           redisClient,
		logger:          logger,
		deviceID:        deviceID,
		requestQueue:    requestQueue,
		responseQueue:   fmt.Sprintf("%s:%s", responseQueue, deviceID),
		responseTimeout: responseTimeout,
		pending:         make(map[uint32]*time.Timer),
		ctx:             clientCtx,
		cancel:          cancel,
	}
}

// SetHandler registers the response handler. Must be called before
// Start; the handler runs on the listener goroutine, so callers that
// need task-context delivery must re-dispatch themselves.
func (c *Client) SetHandler(h ResponseHandler) {
	c.handler = h
}

// Start begins listening for responses.
func (c *Client) Start() {
	c.wg.Add(1)
	go c.listenForResponses()
}

// Stop stops the listener and cancels outstanding reply timers. No
// sentinel is delivered for requests pending at shutdown.
func (c *Client) Stop() {
	c.cancel()
	c.wg.Wait()

	c.mutex.Lock()
	for id, timer := range c.pending {
		timer.Stop()
		delete(c.pending, id)
	}
	c.mutex.Unlock()
}

// SendAsync encodes and queues one request, substituting the device id
// into the resource name. With expectReply set, exactly one of a
// correlated response or a nil timeout sentinel is later delivered to
// the handler. Returns an error only for local failures; the request is
// not queued in that case and no sentinel will follow.
func (c *Client) SendAsync(req *Request, expectReply bool) error {
	data, err := encodeRequest(req, c.deviceID)
	if err != nil {
		return err
	}

	if expectReply && req.ID != 0 {
		c.trackPending(req.ID)
	}

	if err := c.redis.LPush(c.ctx, c.requestQueue, data).Err(); err != nil {
		if expectReply && req.ID != 0 {
			c.resolvePending(req.ID)
		}
		return fmt.Errorf("failed to queue gateway request: %w", err)
	}

	return nil
}

// encodeRequest serializes the request, replacing the * placeholder in
// the resource name with the device's textual id. The # character is
// left untouched; the gateway reserves it for the sensor id it appends
// within events.
func encodeRequest(req *Request, deviceID string) ([]byte, error) {
	wire := *req
	if wire.File != "" {
		wire.File = strings.ReplaceAll(wire.File, "*", deviceID)
	}

	data, err := json.Marshal(&wire)
	if err != nil {
		return nil, fmt.Errorf("failed to encode gateway request: %w", err)
	}
	return data, nil
}

func (c *Client) trackPending(id uint32) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if timer, exists := c.pending[id]; exists {
		timer.Stop()
	}
	c.pending[id] = time.AfterFunc(c.responseTimeout, func() {
		if c.resolvePending(id) {
			c.deliver(nil)
		}
	})
}

// resolvePending retires a correlation id, returning true if it was
// still outstanding. The first of response and timeout wins.
func (c *Client) resolvePending(id uint32) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	timer, exists := c.pending[id]
	if !exists {
		return false
	}
	timer.Stop()
	delete(c.pending, id)
	return true
}

func (c *Client) deliver(rsp *Response) {
	if c.handler != nil {
		c.handler(rsp)
	}
}

// listenForResponses drains the device's response queue.
func (c *Client) listenForResponses() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			// Block for up to 1 second waiting for responses
			result, err := c.redis.BRPop(c.ctx, time.Second, c.responseQueue).Result()
			if err != nil {
				if err == redis.Nil {
					continue // Timeout, continue listening
				}
				if strings.Contains(err.Error(), "context canceled") {
					return
				}
				c.logger.Printf("Error reading from %s: %v", c.responseQueue, err)
				time.Sleep(time.Second)
				continue
			}

			if len(result) != 2 {
				continue
			}

			c.handleResponse([]byte(result[1]))
		}
	}
}

func (c *Client) handleResponse(data []byte) {
	var rsp Response
	if err := json.Unmarshal(data, &rsp); err != nil {
		c.logger.Printf("Discarding malformed gateway response: %v", err)
		return
	}

	if rsp.ID != 0 {
		c.resolvePending(rsp.ID)
	}

	c.deliver(&rsp)
}
