// Package wberr defines the tagged error kinds surfaced across chessbench's
// command boundaries. Callers branch on Kind rather than on error string
// content or type assertions against package-private types.
package wberr

import "fmt"

// Kind tags an error with the category a caller needs to branch on.
type Kind string

const (
	Io                       Kind = "io"
	InitTimeout              Kind = "init_timeout"
	StopTimeout              Kind = "stop_timeout"
	Timeout                  Kind = "timeout"
	NoStdin                  Kind = "no_stdin"
	NoStdout                 Kind = "no_stdout"
	InvalidState             Kind = "invalid_state"
	InvalidTransition        Kind = "invalid_transition"
	BrokenPipe               Kind = "broken_pipe"
	TooManyFailures          Kind = "too_many_failures"
	NoMovesFound             Kind = "no_moves_found"
	FenParsing               Kind = "fen_parsing"
	PositionSetup            Kind = "position_setup"
	UciMoveParsing           Kind = "uci_move_parsing"
	IllegalMove              Kind = "illegal_move"
	EventEmissionFailed      Kind = "event_emission_failed"
	InvalidFen               Kind = "invalid_fen"
	IllegalStart             Kind = "illegal_start"
	NoMatchFound             Kind = "no_match_found"
	SearchStopped            Kind = "search_stopped"
	MissingReferenceDatabase Kind = "missing_reference_database"
)

// Error is the concrete error type carrying a Kind plus arbitrary detail
// fields (e.g. InvalidState{expected,actual}) rendered into the message.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]any
	Wrapped error
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		if e.Wrapped != nil {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s %v", e.Kind, e.Message, e.Fields)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is allows errors.Is(err, wberr.New(kind, "")) style kind comparisons.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a bare Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap builds an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Wrapped: cause}
}

// WithFields attaches structured detail (e.g. {"expected": ..., "actual": ...}).
func WithFields(kind Kind, msg string, fields map[string]any) *Error {
	return &Error{Kind: kind, Message: msg, Fields: fields}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *Error, otherwise returns "".
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ""
}
