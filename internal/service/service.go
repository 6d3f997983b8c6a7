package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/librescoot/motion-service/internal/config"
	"github.com/librescoot/motion-service/internal/gateway"
	"github.com/librescoot/motion-service/internal/hardware"
	"github.com/librescoot/motion-service/internal/motion"
	"github.com/librescoot/motion-service/internal/sched"
	"github.com/librescoot/motion-service/internal/systemd"
	"github.com/redis/go-redis/v9"
	redis_ipc "github.com/rescoot/redis-ipc"
)

// Service wires the PIR hardware, the cooperative scheduler, the motion
// driver and the gateway transport together, and exposes the sensor's
// status over Redis.
type Service struct {
	config        *config.Config
	logger        *log.Logger
	redis         *redis_ipc.Client
	standardRedis *redis.Client

	scheduler *sched.Scheduler
	pir       *hardware.PIR
	gateway   *gateway.Client
	driver    *motion.Driver
	resume    *systemd.ResumeListener
}

func New(cfg *config.Config, logger *log.Logger) (*Service, error) {
	redisConfig := redis_ipc.Config{
		Address:       cfg.RedisHost,
		Port:          cfg.RedisPort,
		RetryInterval: 5 * time.Second,
		MaxRetries:    3,
	}

	redisClient, err := redis_ipc.New(redisConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis client: %v", err)
	}

	// Standard Redis client for the gateway transport
	ctx := context.Background()
	standardRedisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		DB:   0,
	})

	service := &Service{
		config:        cfg,
		logger:        logger,
		redis:         redisClient,
		standardRedis: standardRedisClient,
	}

	service.scheduler = sched.New(logger, cfg.PollInterval, cfg.ActivationInterval)
	service.scheduler.SetStateChangeFunc(service.onRunStateChange)

	settings := hardware.Settings{
		Threshold:    uint32(cfg.Threshold),
		BlindTime:    uint32(cfg.BlindTime),
		PulseCounter: uint32(cfg.PulseCounter),
		WindowTime:   uint32(cfg.WindowTime),
		HPFCutoff:    uint32(cfg.HPFCutoff),
	}

	pir, err := hardware.NewPIR(logger, cfg.GPIOChip, cfg.SerialInLine, cfg.DirectLinkLine, settings, cfg.DryRun)
	if err != nil {
		return nil, fmt.Errorf("failed to create PIR hardware: %v", err)
	}
	service.pir = pir

	service.gateway = gateway.NewClient(ctx, standardRedisClient, logger,
		cfg.DeviceID, cfg.RequestQueue, cfg.ResponseQueue, cfg.ResponseTimeout)

	service.driver = motion.NewDriver(cfg.DeviceID, logger, pir, service.scheduler, service.gateway)

	// Gateway responses are handled on the listener goroutine; route
	// them through the scheduler so the driver only ever runs its
	// registration logic serialized with polling.
	service.gateway.SetHandler(func(rsp *gateway.Response) {
		service.scheduler.Dispatch(func() {
			service.driver.OnGatewayResponse(rsp)
		})
	})

	pir.SetEdgeHandler(service.driver.OnMotionEdge)
	service.scheduler.AddDevice(cfg.DeviceID, service.driver)

	return service, nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.pir.Init(); err != nil {
		return fmt.Errorf("failed to initialize PIR sensor: %v", err)
	}

	// Resume detection is best-effort: on hosts without logind the
	// sensor simply keeps its boot-time configuration.
	resume, err := systemd.NewResumeListener(s.logger, s.onResume)
	if err != nil {
		s.logger.Printf("Warning: resume detection unavailable: %v", err)
	} else {
		s.resume = resume
		resume.Start()
	}

	s.gateway.Start()

	s.redis.HandleRequests("motion-sensor:commands", s.onCommand)

	s.publishStatus(sched.StateActivated)

	s.logger.Printf("Motion sensor %s armed, reporting to %s", s.config.DeviceID, s.config.RequestQueue)

	// Run the cooperative poll loop
	s.scheduler.Run(ctx)

	s.gateway.Stop()

	if s.resume != nil {
		if err := s.resume.Close(); err != nil {
			s.logger.Printf("Failed to close resume listener: %v", err)
		}
	}

	if err := s.pir.Close(); err != nil {
		s.logger.Printf("Failed to close PIR hardware: %v", err)
	}

	if err := s.redis.Close(); err != nil {
		s.logger.Printf("Failed to close Redis client: %v", err)
	}

	if err := s.standardRedis.Close(); err != nil {
		s.logger.Printf("Failed to close standard Redis client: %v", err)
	}

	return nil
}

// onCommand handles control commands from the motion-sensor:commands
// queue. Runs on the redis-ipc goroutine; state changes are dispatched
// into the scheduler's task context.
func (s *Service) onCommand(data []byte) error {
	command := string(data)
	s.logger.Printf("Received motion sensor command: %s", command)

	device := s.config.DeviceID

	switch command {
	case "arm":
		s.scheduler.Dispatch(func() {
			if s.scheduler.RunState(device) == sched.StateDeactivated {
				s.scheduler.RequestStateChange(device, sched.StateDeactivated, sched.StateActivated)
			}
		})
	case "disarm":
		s.scheduler.Dispatch(func() {
			current := s.scheduler.RunState(device)
			if current != sched.StateDeactivated {
				s.scheduler.RequestStateChange(device, current, sched.StateDeactivated)
			}
		})
	case "check":
		// Force an immediate motion check, as the interrupt path would.
		s.scheduler.ForceActivateFromInterrupt(device, sched.StateMotionCheck)
	default:
		s.logger.Printf("Unknown motion sensor command: %s", command)
	}

	return nil
}

// onResume reprograms the sensor after a suspend cycle. Registration
// survives: the gateway keeps the schema for the device's lifetime.
func (s *Service) onResume() {
	s.scheduler.Dispatch(func() {
		if err := s.pir.Init(); err != nil {
			s.logger.Printf("Failed to reinitialize PIR sensor after resume: %v", err)
		}
	})
}

// onRunStateChange publishes run state transitions. Invoked from task
// context only; interrupt-driven activations are published by the
// completion transition of the poll that follows them.
func (s *Service) onRunStateChange(device string, from, to sched.RunState) {
	s.logger.Printf("Device %s: %s -> %s", device, from, to)
	s.publishStatus(to)
}

func (s *Service) publishStatus(state sched.RunState) {
	tx := s.redis.NewTxGroup("motion-status")

	tx.Add("HSET", "motion-sensor", "state", string(state))
	tx.Add("HSET", "motion-sensor", "registration", s.driver.Registration().String())
	tx.Add("PUBLISH", "motion-sensor", "state")

	if _, err := tx.Exec(); err != nil {
		s.logger.Printf("Failed to publish motion sensor status: %v", err)
	}
}
