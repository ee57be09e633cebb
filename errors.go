package gpufft

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cwbudde/gpufft/device"
)

// ErrorKind classifies every failure gpufft reports.
type ErrorKind int

const (
	KindInvalidArgument ErrorKind = iota + 1
	KindUnsupportedLength
	KindOutOfMemory
	KindDeviceExecution
	KindPlanNotReady
)

// Sentinel errors, one per kind. Every *Error matches its kind's sentinel
// with errors.Is.
var (
	// ErrInvalidArgument is returned for malformed transform descriptions,
	// mismatched buffers and undersized memory.
	ErrInvalidArgument = errors.New("gpufft: invalid argument")

	// ErrUnsupportedLength is returned when a transform length cannot be
	// decomposed into available kernels.
	ErrUnsupportedLength = errors.New("gpufft: unsupported length")

	// ErrOutOfMemory is returned when a device allocation fails.
	ErrOutOfMemory = errors.New("gpufft: out of device memory")

	// ErrDeviceExecution is returned when the device rejects or fails a
	// kernel launch.
	ErrDeviceExecution = errors.New("gpufft: device execution failed")

	// ErrPlanNotReady is returned when the library, a plan or an execution
	// context is not in a usable state.
	ErrPlanNotReady = errors.New("gpufft: plan not ready")
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindUnsupportedLength:
		return "unsupported length"
	case KindOutOfMemory:
		return "out of memory"
	case KindDeviceExecution:
		return "device execution error"
	case KindPlanNotReady:
		return "plan not ready"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindInvalidArgument:
		return ErrInvalidArgument
	case KindUnsupportedLength:
		return ErrUnsupportedLength
	case KindOutOfMemory:
		return ErrOutOfMemory
	case KindDeviceExecution:
		return ErrDeviceExecution
	case KindPlanNotReady:
		return ErrPlanNotReady
	default:
		return nil
	}
}

// Error is the concrete error type returned by gpufft. Dim, Length and
// Stage are -1 when they do not apply.
type Error struct {
	Kind ErrorKind
	// Op is the failing operation ("compile", "execute", ...).
	Op string
	// Dim and Length locate a factorization failure.
	Dim    int
	Length int
	// Stage is the index of the failing stage of an execution.
	Stage int
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString("gpufft: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}

	b.WriteString(e.Kind.String())

	if e.Dim >= 0 {
		fmt.Fprintf(&b, " (dimension %d, length %d)", e.Dim, e.Length)
	}

	if e.Stage >= 0 {
		fmt.Fprintf(&b, " (stage %d)", e.Stage)
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}

	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	return errs
}

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Dim: -1, Length: -1, Stage: -1, Err: err}
}

func errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return newError(kind, op, fmt.Errorf(format, args...))
}

// Status is the outcome of an operation, as recorded by an
// ExecutionContext and returned by StatusOf.
type Status int

const (
	StatusSuccess Status = iota
	StatusInvalidArgument
	StatusUnsupportedLength
	StatusOutOfMemory
	StatusDeviceExecutionError
	StatusPlanNotReady
	// StatusUnknown is reported for errors that did not originate in gpufft.
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusInvalidArgument:
		return "invalid argument"
	case StatusUnsupportedLength:
		return "unsupported length"
	case StatusOutOfMemory:
		return "out of memory"
	case StatusDeviceExecutionError:
		return "device execution error"
	case StatusPlanNotReady:
		return "plan not ready"
	default:
		return "unknown"
	}
}

// StatusOf maps an error returned by gpufft to its Status.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}

	var e *Error
	if errors.As(err, &e) {
		return statusOfKind(e.Kind)
	}

	for _, k := range []ErrorKind{
		KindInvalidArgument, KindUnsupportedLength, KindOutOfMemory,
		KindDeviceExecution, KindPlanNotReady,
	} {
		if errors.Is(err, k.sentinel()) {
			return statusOfKind(k)
		}
	}

	if errors.Is(err, device.ErrOutOfMemory) {
		return StatusOutOfMemory
	}

	return StatusUnknown
}

func statusOfKind(k ErrorKind) Status {
	switch k {
	case KindInvalidArgument:
		return StatusInvalidArgument
	case KindUnsupportedLength:
		return StatusUnsupportedLength
	case KindOutOfMemory:
		return StatusOutOfMemory
	case KindDeviceExecution:
		return StatusDeviceExecutionError
	case KindPlanNotReady:
		return StatusPlanNotReady
	default:
		return StatusUnknown
	}
}
