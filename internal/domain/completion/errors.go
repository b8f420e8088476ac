package completion

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for the client and for hint selection.
type ErrorKind string

// Failure kinds per the error taxonomy.
const (
	KindInvalidRequest    ErrorKind = "invalid_request"
	KindProviderTransport ErrorKind = "provider_transport"
	KindProviderRefusal   ErrorKind = "provider_refusal"
	KindQuotaExceeded     ErrorKind = "quota_exceeded"
	KindSchemaCoercion    ErrorKind = "schema_coercion"
	KindPersistence       ErrorKind = "persistence"
)

// Error is the only failure shape that crosses to the client. It appears as
// reply.error, as the error of a terminal chunk, or as a standalone "error"
// notification frame.
type Error struct {
	ErrorType string `json:"error_type"`
	Title     string `json:"title"`
	Traceback string `json:"traceback,omitempty"`
	Hint      string `json:"hint,omitempty"`
}

// Notification wraps an Error as a standalone websocket frame.
type Notification struct {
	Type string `json:"type"`
	Error
}

// Notify builds the standalone error frame for e.
func (e *Error) Notify() Notification {
	return Notification{Type: "error", Error: *e}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrorType, e.Title)
}

// NewError builds a typed Error.
func NewError(kind ErrorKind, title, hint string) *Error {
	return &Error{ErrorType: string(kind), Title: title, Hint: hint}
}

// AsError converts any error into a client-facing *Error. Typed errors pass
// through; everything else becomes a provider_transport failure with its
// message as traceback.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr
	}
	return &Error{
		ErrorType: string(KindProviderTransport),
		Title:     "The AI provider could not be reached.",
		Traceback: err.Error(),
	}
}
