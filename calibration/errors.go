package calibration

import (
	"fmt"
	"time"
)

// TransformTimeoutError reports that a frame pair did not become resolvable
// within its wait window. Recoverable: the sample was simply not taken.
type TransformTimeoutError struct {
	From    string
	To      string
	Timeout time.Duration
}

func (e *TransformTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %v waiting for transform from %q to %q", e.Timeout, e.From, e.To)
}

// TransformUnavailableError reports that the frame graph has no path between
// the two frames, or cannot answer for the requested instant.
type TransformUnavailableError struct {
	From  string
	To    string
	At    time.Time
	Cause error
}

func (e *TransformUnavailableError) Error() string {
	msg := fmt.Sprintf("transform from %q to %q unavailable", e.From, e.To)
	if !e.At.IsZero() {
		msg += fmt.Sprintf(" at %v", e.At.Format(time.RFC3339Nano))
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *TransformUnavailableError) Unwrap() error { return e.Cause }

// InsufficientSamplesError reports that a calibration was requested before
// enough samples were collected. The solver is never invoked in this case.
type InsufficientSamplesError struct {
	Have int
	Min  int
}

func (e *InsufficientSamplesError) Error() string {
	return fmt.Sprintf("%d more sample(s) needed: have %d, need at least %d", e.Min-e.Have, e.Have, e.Min)
}

// Needed returns how many more samples must be taken.
func (e *InsufficientSamplesError) Needed() int { return e.Min - e.Have }

// MisalignedSamplesError reports that the drained robot and optical
// sequences differ in length. The store's pairing makes this structurally
// impossible; seeing it means a bug, so it is surfaced loudly rather than
// papered over.
type MisalignedSamplesError struct {
	Robot   int
	Optical int
}

func (e *MisalignedSamplesError) Error() string {
	return fmt.Sprintf("sample sequences misaligned: %d robot vs %d optical", e.Robot, e.Optical)
}

// SolverFailureError reports that the external solver rejected or failed a
// calibration request. Samples are preserved; the caller may retry or
// collect more data first.
type SolverFailureError struct {
	Cause error
}

func (e *SolverFailureError) Error() string {
	return fmt.Sprintf("calibration solver failed: %v", e.Cause)
}

func (e *SolverFailureError) Unwrap() error { return e.Cause }
