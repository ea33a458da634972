package desk

import (
	"errors"
	"fmt"
	"time"
)

// LinkState classifies link-level failures.
type LinkState string

const (
	// Unreachable means a link could not be established at all: device off,
	// out of range, or not paired. Reported to the caller, retried only by
	// the reconnect schedule.
	Unreachable LinkState = "device_unreachable"
	// Lost means an established link dropped. Transient; the session
	// recovers it with backoff and surfaces only a connectivity change.
	Lost LinkState = "connection_lost"
	// WriteRejected means the transport refused a characteristic write.
	// Retried once immediately; a second failure is escalated to Lost.
	WriteRejected LinkState = "write_failed"
)

// LinkError represents any link-related problem.
type LinkError struct {
	State LinkState
	Msg   string
}

func (e *LinkError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare LinkError values by State.
func (e *LinkError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*LinkError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for link states.
var (
	ErrDeviceUnreachable = &LinkError{State: Unreachable}
	ErrConnectionLost    = &LinkError{State: Lost}
	ErrWriteFailed       = &LinkError{State: WriteRejected}
)

// ErrClosed is returned by operations on a driver that has been torn down.
var ErrClosed = errors.New("desk: driver closed")

// StallError reports a move that produced no observable height change for
// the configured stall timeout - a jammed or obstructed desk. The controller
// stops the desk and returns to idle; the error surfaces to subscribers as a
// state-change event, never as a hung call.
type StallError struct {
	TargetMM float64
	HeightMM float64
	Elapsed  time.Duration
}

func (e *StallError) Error() string {
	return fmt.Sprintf("move stalled at %.1fmm after %s (target %.1fmm)",
		e.HeightMM, e.Elapsed.Round(time.Millisecond), e.TargetMM)
}
