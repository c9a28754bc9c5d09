package planner

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Op names a planning operation.
type Op string

const (
	OpPlan   Op = "plan"
	OpNext   Op = "next"
	OpRefine Op = "refine"
	OpReplan Op = "replan"
	OpHealth Op = "health"
)

// NetworkErrorKind classifies a failed round trip.
type NetworkErrorKind int

const (
	KindBadResponse NetworkErrorKind = iota + 1
	KindTimeout
	KindTransport
)

func (k NetworkErrorKind) String() string {
	switch k {
	case KindBadResponse:
		return "bad response"
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// NetworkError is a failed planning round trip.
type NetworkError struct {
	Op   Op
	Kind NetworkErrorKind
	// Status is the HTTP status for bad responses, 0 otherwise.
	Status int
	Detail string
	Err    error
}

func (e *NetworkError) Error() string {
	msg := fmt.Sprintf("planner: %s: %s", e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodingError is a response that arrived but is structurally invalid.
type DecodingError struct {
	Op  Op
	Err error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("planner: %s: invalid response: %v", e.Op, e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

// Retryable reports whether a failed call may be tried again. Network and
// decoding failures are; caller cancellation is not.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr *NetworkError
	var decErr *DecodingError
	return errors.As(err, &netErr) || errors.As(err, &decErr)
}

// transportError wraps a failure that happened before a response arrived.
func transportError(op Op, err error) *NetworkError {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &NetworkError{Op: op, Kind: KindTimeout, Err: err}
	}
	return &NetworkError{Op: op, Kind: KindTransport, Err: err}
}
