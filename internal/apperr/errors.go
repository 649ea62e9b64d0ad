// Package apperr defines the closed set of error kinds the Command Surface
// (C8) and everything beneath it communicate through. Transport adapters map
// a Kind to their native channel (HTTP status, chat reply, ...); nothing
// below the Command Surface boundary leaks an unwrapped error.
package apperr

import "errors"

// Kind is the semantic classification from spec §7. It is not a status
// code: adapters own that mapping.
type Kind int

const (
	// Unknown is the zero value; Is never matches it on purpose, so a
	// forgotten Kind assignment surfaces instead of silently matching.
	Unknown Kind = iota
	InvalidArgument
	NotFound
	IllegalState
	NotParticipant
	SelfJoin
	AlreadyJoined
	PlayerBusy
	DoubleSubmit
	DeadlineExceeded
	Conflict
	TransientBackend
	NoMatchAvailable
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case NotFound:
		return "NotFound"
	case IllegalState:
		return "IllegalState"
	case NotParticipant:
		return "NotParticipant"
	case SelfJoin:
		return "SelfJoin"
	case AlreadyJoined:
		return "AlreadyJoined"
	case PlayerBusy:
		return "PlayerBusy"
	case DoubleSubmit:
		return "DoubleSubmit"
	case DeadlineExceeded:
		return "DeadlineExceeded"
	case Conflict:
		return "Conflict"
	case TransientBackend:
		return "TransientBackend"
	case NoMatchAvailable:
		return "NoMatchAvailable"
	default:
		return "Unknown"
	}
}

// Error is the typed failure returned across the Command Surface boundary.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "submitMove"
	Msg  string
	Err  error // optional wrapped cause, never surfaced to end users
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Op + ": " + e.Msg
	}
	if e.Err != nil {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a Kind-tagged error with a human-readable message.
func New(op string, kind Kind, msg string) error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// Wrap tags an underlying error (typically from the Repository Contract)
// with a Kind, preserving it for logging via errors.Unwrap while keeping the
// message surfaced to callers generic.
func Wrap(op string, kind Kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf extracts the Kind from err, or Unknown if err isn't one of ours.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	return kind != Unknown && KindOf(err) == kind
}
