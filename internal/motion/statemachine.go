package motion

import (
	"github.com/librescoot/motion-service/internal/sched"
)

// RegistrationState gates reporting behind the one-time schema
// registration with the gateway.
type RegistrationState int

const (
	RegistrationUnregistered RegistrationState = iota
	RegistrationPending
	RegistrationRegistered
)

// String returns the string representation of the registration state
func (r RegistrationState) String() string {
	switch r {
	case RegistrationUnregistered:
		return "unregistered"
	case RegistrationPending:
		return "pending"
	case RegistrationRegistered:
		return "registered"
	default:
		return "unknown"
	}
}

// Command is a side effect requested by the poll transition function.
// The transition function itself performs no I/O; the driver executes
// the commands in order.
type Command int

const (
	// CmdRegister issues the schema registration request.
	CmdRegister Command = iota
	// CmdReport drains the counter and sends a motion report.
	CmdReport
	// CmdStayForRepoll keeps the device in motion-check for the next
	// poll, to catch pulses accumulated since the drain.
	CmdStayForRepoll
	// CmdDeactivate returns the device to idle; the interrupt handler
	// or the activation interval wakes it again.
	CmdDeactivate
)

// PollInput is the state snapshot one poll iteration decides on.
type PollInput struct {
	State        sched.RunState
	Registration RegistrationState
	PendingCount uint32
}

// NextPoll returns the commands for one poll iteration.
//
// A fresh activation first ensures the report schema is registered; the
// iteration does no reporting work in that case, so the registration
// request is never mixed with data the gateway cannot yet interpret.
// Once registered, activation falls through to motion-check processing
// within the same poll.
func NextPoll(in PollInput) []Command {
	switch in.State {
	case sched.StateActivated:
		if in.Registration != RegistrationRegistered {
			return []Command{CmdRegister, CmdStayForRepoll}
		}
		return motionCheck(in)
	case sched.StateMotionCheck:
		return motionCheck(in)
	}
	return nil
}

func motionCheck(in PollInput) []Command {
	if in.PendingCount == 0 {
		return []Command{CmdDeactivate}
	}
	return []Command{CmdReport, CmdStayForRepoll}
}
