package model

import "fmt"

// Kind is the error taxonomy of §7 — a sum type of error kinds, not
// exception classes (§9 design notes: exceptions used for control flow in
// the original map to a typed result here).
type Kind string

const (
	KindInvalidIntent    Kind = "InvalidIntent"
	KindElementNotFound  Kind = "ElementNotFound"
	KindXPathGeneration  Kind = "XPathGeneration"
	KindExecution        Kind = "Execution"
	KindTimeout          Kind = "Timeout"
	KindCacheCorruption  Kind = "CacheCorruption"
)

// Error is the structured error carried between pipeline stages (§7:
// "stages annotate errors with stage and re-raise").
type Error struct {
	Stage   string
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Stage, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Stage, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError constructs a stage-tagged error of the given kind.
func NewError(stage string, kind Kind, message string) *Error {
	return &Error{Stage: stage, Kind: kind, Message: message}
}

// Wrap annotates an existing error with a stage and kind.
func Wrap(stage string, kind Kind, message string, err error) *Error {
	return &Error{Stage: stage, Kind: kind, Message: message, Err: err}
}

// AsKind extracts the Kind from err if it (or something it wraps) is an
// *Error; ok is false otherwise.
func AsKind(err error) (Kind, bool) {
	var e *Error
	if asError(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
