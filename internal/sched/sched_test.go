package sched

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"
)

type recordingPoller struct {
	mutex sync.Mutex
	polls []RunState

	// onPoll, when set, is invoked with the poll state so the test can
	// drive completion transitions the way a driver would.
	onPoll func(state RunState)
}

func (p *recordingPoller) Poll(state RunState) {
	p.mutex.Lock()
	p.polls = append(p.polls, state)
	p.mutex.Unlock()

	if p.onPoll != nil {
		p.onPoll(state)
	}
}

func (p *recordingPoller) pollCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.polls)
}

func (p *recordingPoller) lastPoll() (RunState, bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if len(p.polls) == 0 {
		return "", false
	}
	return p.polls[len(p.polls)-1], true
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestRequestStateChangeAppliesOnlyFromExpectedState(t *testing.T) {
	s := New(testLogger(), time.Second, time.Minute)
	s.AddDevice("pir-1", &recordingPoller{})

	if !s.RequestStateChange("pir-1", StateActivated, StateMotionCheck) {
		t.Error("Expected state change from the current state to apply")
	}
	if s.RunState("pir-1") != StateMotionCheck {
		t.Errorf("Expected motion-check, got %s", s.RunState("pir-1"))
	}

	// Stale request: the device is no longer activated
	if s.RequestStateChange("pir-1", StateActivated, StateDeactivated) {
		t.Error("Expected stale state change to be rejected")
	}
	if s.RunState("pir-1") != StateMotionCheck {
		t.Errorf("Expected state unchanged after stale request, got %s", s.RunState("pir-1"))
	}
}

func TestForceActivateOnlyAffectsDeactivatedDevices(t *testing.T) {
	s := New(testLogger(), time.Second, time.Minute)
	s.AddDevice("pir-1", &recordingPoller{})

	// Device is activated; a forced wake must not regress its state
	s.ForceActivateFromInterrupt("pir-1", StateMotionCheck)
	if s.RunState("pir-1") != StateActivated {
		t.Errorf("Expected activated, got %s", s.RunState("pir-1"))
	}

	s.RequestStateChange("pir-1", StateActivated, StateDeactivated)
	s.ForceActivateFromInterrupt("pir-1", StateMotionCheck)
	if s.RunState("pir-1") != StateMotionCheck {
		t.Errorf("Expected motion-check after forced activation, got %s", s.RunState("pir-1"))
	}
}

func TestForceActivateNeverBlocks(t *testing.T) {
	s := New(testLogger(), time.Second, time.Minute)
	s.AddDevice("pir-1", &recordingPoller{})

	// No loop is draining the wake channel; repeated calls must still
	// return promptly.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.ForceActivateFromInterrupt("pir-1", StateMotionCheck)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ForceActivateFromInterrupt blocked")
	}
}

func TestRunPollsActiveDevices(t *testing.T) {
	s := New(testLogger(), 10*time.Millisecond, time.Minute)
	p := &recordingPoller{}
	s.AddDevice("pir-1", p)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	defer cancel()

	time.Sleep(50 * time.Millisecond)

	if p.pollCount() == 0 {
		t.Fatal("Expected at least one poll")
	}
	if state, _ := p.lastPoll(); state != StateActivated {
		t.Errorf("Expected polls in activated state, got %s", state)
	}
}

func TestDeactivatedDevicesAreNotPolled(t *testing.T) {
	s := New(testLogger(), 10*time.Millisecond, time.Minute)
	p := &recordingPoller{}
	s.AddDevice("pir-1", p)
	s.RequestStateChange("pir-1", StateActivated, StateDeactivated)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	defer cancel()

	time.Sleep(50 * time.Millisecond)

	if n := p.pollCount(); n != 0 {
		t.Errorf("Expected no polls for a deactivated device, got %d", n)
	}
}

func TestForcedWakeTriggersImmediatePoll(t *testing.T) {
	// Long poll interval: only a forced wake can cause a poll in time
	s := New(testLogger(), time.Hour, time.Hour)
	p := &recordingPoller{}
	s.AddDevice("pir-1", p)
	s.RequestStateChange("pir-1", StateActivated, StateDeactivated)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	defer cancel()

	s.ForceActivateFromInterrupt("pir-1", StateMotionCheck)
	time.Sleep(50 * time.Millisecond)

	if state, ok := p.lastPoll(); !ok || state != StateMotionCheck {
		t.Errorf("Expected an immediate motion-check poll, got %v (polled: %v)", state, ok)
	}
}

func TestIdleDevicesReactivateAfterInterval(t *testing.T) {
	s := New(testLogger(), 10*time.Millisecond, 30*time.Millisecond)
	p := &recordingPoller{}
	p.onPoll = func(state RunState) {
		// Driver with nothing to do: go idle immediately
		s.RequestStateChange("pir-1", state, StateDeactivated)
	}
	s.AddDevice("pir-1", p)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	defer cancel()

	time.Sleep(100 * time.Millisecond)

	if p.pollCount() < 2 {
		t.Errorf("Expected reactivation to produce further polls, got %d", p.pollCount())
	}
	if state, _ := p.lastPoll(); state != StateActivated {
		t.Errorf("Expected reactivated polls in activated state, got %s", state)
	}
}

func TestDispatchRunsOnPollGoroutine(t *testing.T) {
	s := New(testLogger(), time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	defer cancel()

	done := make(chan struct{})
	s.Dispatch(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatched function was not executed")
	}
}

func TestStateChangeCallback(t *testing.T) {
	s := New(testLogger(), time.Second, time.Minute)

	var mutex sync.Mutex
	var transitions []string
	s.SetStateChangeFunc(func(device string, from, to RunState) {
		mutex.Lock()
		transitions = append(transitions, string(from)+">"+string(to))
		mutex.Unlock()
	})

	s.AddDevice("pir-1", &recordingPoller{})
	s.RequestStateChange("pir-1", StateActivated, StateMotionCheck)
	s.RequestStateChange("pir-1", StateMotionCheck, StateDeactivated)

	mutex.Lock()
	defer mutex.Unlock()
	if len(transitions) != 2 || transitions[0] != "activated>motion-check" || transitions[1] != "motion-check>deactivated" {
		t.Errorf("Unexpected transitions: %v", transitions)
	}
}
