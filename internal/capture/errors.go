package capture

import (
	"fmt"
)

// ErrorKind classifies capture failures. None of them are retried
// automatically.
type ErrorKind int

const (
	KindPermissionDenied ErrorKind = iota + 1
	KindTimeout
	KindNoDisplay
	KindEncodeFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindTimeout:
		return "timeout"
	case KindNoDisplay:
		return "no_display"
	case KindEncodeFailure:
		return "encode_failure"
	default:
		return "unknown"
	}
}

// Error is returned by every Capturer.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("capture failed: %s", e.Kind)
	}
	return fmt.Sprintf("capture failed: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Remediation is a user-facing hint on how to fix the failure.
func (e *Error) Remediation() string {
	switch e.Kind {
	case KindPermissionDenied:
		return "Grant screen recording permission to this application, then try again."
	case KindTimeout:
		return "The screen capture took too long. Close heavy applications and try again."
	case KindNoDisplay:
		return "No display could be captured. Check capture.mode and the capture command or file in the config."
	case KindEncodeFailure:
		return "The captured image could not be encoded. Try a different capture command or file format."
	default:
		return "Try again."
	}
}

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
