// Package errs defines the ErrorKind taxonomy shared by every component of
// the driver core, and the wrapping helpers used to build it.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a driver error so callers can branch on errs.Is(err, kind)
// or errs.Of(err) without string-matching messages.
type Kind int

const (
	// Unknown is the zero value; never returned deliberately.
	Unknown Kind = iota
	OutOfBounds
	Alignment
	Unsupported
	UnsupportedCoreType
	NoSuchCoordinate
	Busy
	Exhausted
	Timeout
	DmaTimeout
	BusError
	HardwareHung
	UnknownMessage
	ProtocolError
	Io
	Verification
)

func (k Kind) String() string {
	switch k {
	case OutOfBounds:
		return "out_of_bounds"
	case Alignment:
		return "alignment"
	case Unsupported:
		return "unsupported"
	case UnsupportedCoreType:
		return "unsupported_core_type"
	case NoSuchCoordinate:
		return "no_such_coordinate"
	case Busy:
		return "busy"
	case Exhausted:
		return "exhausted"
	case Timeout:
		return "timeout"
	case DmaTimeout:
		return "dma_timeout"
	case BusError:
		return "bus_error"
	case HardwareHung:
		return "hardware_hung"
	case UnknownMessage:
		return "unknown_message"
	case ProtocolError:
		return "protocol_error"
	case Io:
		return "io"
	case Verification:
		return "verification"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned across package boundaries in
// this module. Op names the failing operation (e.g. "tlb.Configure") so
// log lines stay greppable without parsing Err's message.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}

	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Error has no Is method: errors.Is(e, K) where K is a bare Kind does not
// type-match, so callers use Of or Is below instead.

// New creates a new *Error with a stack-carrying cause via pkg/errors.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Wrap attaches kind/op to an existing error, preserving it as the cause.
// If err is nil, Wrap returns nil so call sites can do `return errs.Wrap(...)`
// unconditionally.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Kind: kind, Op: op, Err: errors.WithStack(err)}
}

// Of extracts the Kind of err, or Unknown if err is not (or does not wrap)
// an *Error.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return Unknown
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return Of(err) == kind
}
