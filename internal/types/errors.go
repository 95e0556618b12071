package types

import "fmt"

// Kind is the error taxonomy from spec.md §7. It is never compared by
// string — callers use errors.As to reach the *Error and read its Kind, or
// errors.Is against an *Error carrying the wanted Kind (see Error.Is).
type Kind int

const (
	// KindConfig covers an unreadable/missing dataset, model, or label
	// file. Fatal at startup.
	KindConfig Kind = iota
	// KindSensing covers a malformed LiDAR file during a frame. Fatal —
	// the frame cannot be produced.
	KindSensing
	// KindInputShape covers add_input with the wrong length, or infer with
	// a non-multiple buffer. Logged and the batch is skipped.
	KindInputShape
	// KindEmptyBatch covers infer() called with an empty buffer. Logged at
	// debug; a no-op.
	KindEmptyBatch
	// KindRuntime covers the external inference runtime failing. The
	// current frame is abandoned.
	KindRuntime
	// KindDeadlineMissed is observational: dispatch exited and remaining
	// tasks were discarded.
	KindDeadlineMissed
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindSensing:
		return "sensing"
	case KindInputShape:
		return "input_shape"
	case KindEmptyBatch:
		return "empty_batch"
	case KindRuntime:
		return "runtime"
	case KindDeadlineMissed:
		return "deadline_missed"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind so callers can branch on
// `var te *types.Error; errors.As(err, &te)` without parsing strings.
type Error struct {
	Kind Kind
	Op   string // short operation name, e.g. "sensing.take", "model.infer"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, &Error{Kind: KindInputShape}) to match any
// *Error with the same Kind, regardless of Op/Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Newf builds a *Error, wrapping cause (which may be nil).
func Newf(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}
