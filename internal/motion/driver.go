package motion

import (
	"log"

	"github.com/librescoot/motion-service/internal/counter"
	"github.com/librescoot/motion-service/internal/gateway"
	"github.com/librescoot/motion-service/internal/sched"
)

const (
	// RequestIDRegistration is the reserved correlation id carried by
	// the schema registration request and echoed back by the gateway.
	RequestIDRegistration uint32 = 1

	// DataFile is the gateway resource motion reports target. The
	// leading * is substituted with the device's textual id by the
	// transport; # is reserved by the gateway for the sensor id it
	// appends within events.
	DataFile = "*#motion.qo"
)

// Latch re-arms the sensor's hardware wake latch. Implemented by the
// hardware layer; must be callable from the GPIO event goroutine.
type Latch interface {
	Rearm() error
}

// Scheduler is the slice of the cooperative scheduler contract the
// driver consumes. ForceActivateFromInterrupt must be non-blocking and
// safe from the GPIO event goroutine.
type Scheduler interface {
	RunState(device string) sched.RunState
	RequestStateChange(device string, from, to sched.RunState) bool
	ForceActivateFromInterrupt(device string, to sched.RunState)
}

// Transport sends requests to the gateway without waiting. A request
// sent with expectReply receives exactly one correlated response or one
// nil timeout sentinel, later, out of band.
type Transport interface {
	SendAsync(req *gateway.Request, expectReply bool) error
}

// Driver is the motion sensor driver core. OnMotionEdge runs in the GPIO
// event goroutine; Poll and OnGatewayResponse run serialized on the
// scheduler goroutine and own all registration state.
type Driver struct {
	device    string
	logger    *log.Logger
	events    *counter.Counter
	latch     Latch
	scheduler Scheduler
	transport Transport

	registration RegistrationState
	registry     *ResponseRegistry
}

func NewDriver(device string, logger *log.Logger, latch Latch, scheduler Scheduler, transport Transport) *Driver {
	return &Driver{
		device:       device,
		logger:       logger,
		events:       counter.New(),
		latch:        latch,
		scheduler:    scheduler,
		transport:    transport,
		registration: RegistrationUnregistered,
		registry:     NewResponseRegistry(),
	}
}

// Registration returns the current registration state. Task context only.
func (d *Driver) Registration() RegistrationState {
	return d.registration
}

// PendingEvents returns the undrained pulse count, for status reporting.
func (d *Driver) PendingEvents() uint32 {
	return d.events.Peek()
}

// OnMotionEdge handles one rising edge of the sensor's direct-link line.
// Runs in the GPIO event goroutine. Strict order: count the pulse, re-arm
// the latch so the next pulse is not missed, then wake the device if it
// is idle. No request construction or transport work happens here.
func (d *Driver) OnMotionEdge() {
	d.events.Increment()

	if err := d.latch.Rearm(); err != nil {
		d.logger.Printf("pir: failed to re-arm wake latch: %v", err)
	}

	if d.scheduler.RunState(d.device) == sched.StateDeactivated {
		d.scheduler.ForceActivateFromInterrupt(d.device, sched.StateMotionCheck)
	}
}

// Poll implements sched.Poller.
func (d *Driver) Poll(state sched.RunState) {
	input := PollInput{
		State:        state,
		Registration: d.registration,
		PendingCount: d.events.Peek(),
	}

	for _, cmd := range NextPoll(input) {
		switch cmd {
		case CmdRegister:
			d.ensureRegistered()
		case CmdReport:
			d.report()
		case CmdStayForRepoll:
			d.scheduler.RequestStateChange(d.device, state, sched.StateMotionCheck)
		case CmdDeactivate:
			d.scheduler.RequestStateChange(d.device, state, sched.StateDeactivated)
			d.logger.Printf("pir: completed")
		}
	}
}

// ensureRegistered issues the one-time schema registration. Already
// satisfied once Registered; otherwise one request per activation cycle.
// A local send failure leaves the state unregistered so a later
// activation retries.
func (d *Driver) ensureRegistered() {
	if d.registration == RegistrationRegistered {
		return
	}

	req := &gateway.Request{
		Req:  gateway.ReqNoteTemplate,
		File: DataFile,
		ID:   RequestIDRegistration,
		Body: map[string]interface{}{
			"count": gateway.TInt32,
		},
	}

	d.registry.Expect(RequestIDRegistration, d.onRegistrationResponse)

	if err := d.transport.SendAsync(req, true); err != nil {
		d.registry.Forget(RequestIDRegistration)
		d.registration = RegistrationUnregistered
		d.logger.Printf("pir: template registration failed: %v", err)
		return
	}

	d.registration = RegistrationPending
	d.logger.Printf("pir: template registration request")
}

func (d *Driver) onRegistrationResponse(rsp *gateway.Response) {
	d.registration = RegistrationRegistered
	d.logger.Printf("pir: successful template registration")
}

// report drains the counter and sends one fire-and-forget motion report.
// The drain is a single indivisible operation; pulses arriving after it
// are picked up by the follow-up poll.
func (d *Driver) report() {
	count := d.events.TakeAndReset()

	d.logger.Printf("pir: %d motion events sensed", count)

	req := &gateway.Request{
		Req:  gateway.ReqNoteAdd,
		File: DataFile,
		Body: map[string]interface{}{
			"count": count,
		},
	}

	if err := d.transport.SendAsync(req, false); err != nil {
		d.logger.Printf("pir: failed to queue motion report: %v", err)
		return
	}

	d.logger.Printf("pir: note queued")
}

// OnGatewayResponse consumes every inbound response for this device,
// including the nil timeout sentinel. Must run serialized with Poll; the
// service routes it through the scheduler's dispatch queue.
//
// A timeout or gateway error performs no state change: registration
// stays pending and is re-attempted on the next activation cycle rather
// than through an explicit retry timer.
func (d *Driver) OnGatewayResponse(rsp *gateway.Response) {
	if rsp == nil {
		d.logger.Printf("pir: response timeout")
		return
	}

	if rsp.Err != "" {
		d.logger.Printf("pir: gateway error response: %s", rsp.Err)
		return
	}

	if rsp.ID == 0 {
		return
	}

	d.registry.Dispatch(rsp)
}
