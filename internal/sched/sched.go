package sched

import (
	"context"
	"log"
	"sync"
	"time"
)

// RunState is a device's position in the poll lifecycle.
type RunState string

const (
	// StateDeactivated devices are idle and not polled. They leave this
	// state through periodic reactivation or an interrupt-driven wake.
	StateDeactivated RunState = "deactivated"
	// StateActivated is the entry state of a fresh activation cycle.
	StateActivated RunState = "activated"
	// StateMotionCheck devices are polled every tick until their driver
	// requests deactivation.
	StateMotionCheck RunState = "motion-check"
)

// Poller is implemented by device drivers. Poll is invoked from the
// scheduler's single poll goroutine, one device at a time, and must
// return promptly without blocking.
type Poller interface {
	Poll(state RunState)
}

type device struct {
	poller        Poller
	state         RunState
	deactivatedAt time.Time
}

// Scheduler owns per-device run states and drives registered pollers from
// a single goroutine. All polling and dispatched work is serialized; the
// only entry point safe to call from another execution context is
// ForceActivateFromInterrupt, which never blocks.
type Scheduler struct {
	logger             *log.Logger
	pollInterval       time.Duration
	activationInterval time.Duration

	mutex   sync.Mutex
	devices map[string]*device

	wake     chan struct{}
	dispatch chan func()

	onStateChange func(device string, from, to RunState)
}

func New(logger *log.Logger, pollInterval, activationInterval time.Duration) *Scheduler {
	return &Scheduler{
		logger:             logger,
		pollInterval:       pollInterval,
		activationInterval: activationInterval,
		devices:            make(map[string]*device),
		wake:               make(chan struct{}, 1),
		dispatch:           make(chan func(), 16),
	}
}

// SetStateChangeFunc registers a callback invoked after task-context
// state transitions. Interrupt-driven activations do not notify; the
// completion transition of the following poll does.
func (s *Scheduler) SetStateChangeFunc(fn func(device string, from, to RunState)) {
	s.onStateChange = fn
}

// AddDevice registers a poller. Devices start in StateActivated so their
// first poll runs a full activation cycle.
func (s *Scheduler) AddDevice(id string, p Poller) {
	s.mutex.Lock()
	s.devices[id] = &device{poller: p, state: StateActivated}
	s.mutex.Unlock()
}

// RunState returns the device's current run state. Safe from any
// goroutine; lock-protected and non-blocking.
func (s *Scheduler) RunState(id string) RunState {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	dev, ok := s.devices[id]
	if !ok {
		return StateDeactivated
	}
	return dev.state
}

// RequestStateChange moves the device from one state to another. The
// change applies only if the device is still in the expected state, so a
// stale request cannot clobber a transition that raced ahead of it.
func (s *Scheduler) RequestStateChange(id string, from, to RunState) bool {
	s.mutex.Lock()
	dev, ok := s.devices[id]
	if !ok || dev.state != from {
		s.mutex.Unlock()
		return false
	}
	dev.state = to
	if to == StateDeactivated {
		dev.deactivatedAt = time.Now()
	}
	s.mutex.Unlock()

	if s.onStateChange != nil && from != to {
		s.onStateChange(id, from, to)
	}
	return true
}

// ForceActivateFromInterrupt pulls an idle device into the given state
// and wakes the poll loop. Callable from the GPIO event-delivery
// goroutine: it takes the state lock briefly and uses a non-blocking
// send on the wake channel, and never performs I/O.
func (s *Scheduler) ForceActivateFromInterrupt(id string, to RunState) {
	s.mutex.Lock()
	dev, ok := s.devices[id]
	if ok && dev.state == StateDeactivated {
		dev.state = to
	}
	s.mutex.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Dispatch runs fn on the poll goroutine, serialized with Poll
// invocations. Used to inject gateway responses and control commands
// into task context. May block the caller if the loop is saturated; it
// must not be called from interrupt context.
func (s *Scheduler) Dispatch(fn func()) {
	s.dispatch <- fn
}

// Run drives the poll loop until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			s.pollAll()
		case fn := <-s.dispatch:
			fn()
		case <-ticker.C:
			s.reactivateIdle()
			s.pollAll()
		}
	}
}

// reactivateIdle returns devices to StateActivated once they have been
// idle for the activation interval. This is also the retry path for a
// failed or unanswered schema registration: every activation re-checks
// registration before reporting.
func (s *Scheduler) reactivateIdle() {
	now := time.Now()
	var activated []string

	s.mutex.Lock()
	for id, dev := range s.devices {
		if dev.state == StateDeactivated && now.Sub(dev.deactivatedAt) >= s.activationInterval {
			dev.state = StateActivated
			activated = append(activated, id)
		}
	}
	s.mutex.Unlock()

	for _, id := range activated {
		s.logger.Printf("sched: activating %s", id)
		if s.onStateChange != nil {
			s.onStateChange(id, StateDeactivated, StateActivated)
		}
	}
}

func (s *Scheduler) pollAll() {
	type pending struct {
		poller Poller
		state  RunState
	}

	s.mutex.Lock()
	var work []pending
	for _, dev := range s.devices {
		if dev.state != StateDeactivated {
			work = append(work, pending{poller: dev.poller, state: dev.state})
		}
	}
	s.mutex.Unlock()

	// Pollers run outside the lock; they call back into
	// RequestStateChange to record their completion state.
	for _, w := range work {
		w.poller.Poll(w.state)
	}
}
