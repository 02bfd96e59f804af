package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a station error for propagation decisions and API mapping.
type Kind string

const (
	// KindConnection covers unreachable links, boot timeouts and communication
	// failures inside a hardware sequence.
	KindConnection Kind = "connection"
	// KindOperation covers commands that executed but produced an
	// out-of-tolerance result (e.g. temperature verification exhausted).
	KindOperation Kind = "operation"
	// KindValidation covers configuration constraint violations.
	KindValidation Kind = "validation"
)

// Error is the station error value: a kind, a human message and a context map
// carrying the values in effect when the failure happened.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]any
	Err     error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Connection builds a connection-class error.
func Connection(msg string, cause error, ctx map[string]any) *Error {
	return &Error{Kind: KindConnection, Message: msg, Context: ctx, Err: cause}
}

// Operation builds an operation-class error.
func Operation(msg string, cause error, ctx map[string]any) *Error {
	return &Error{Kind: KindOperation, Message: msg, Context: ctx, Err: cause}
}

// Validation builds a validation-class error naming the offending field.
func Validation(field string, value any, msg string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: msg,
		Context: map[string]any{"field": field, "value": value},
	}
}

// KindOf returns the kind of err if it is (or wraps) an *Error, else "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Field returns the field name of a validation error, or "".
func Field(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindValidation {
		if f, ok := e.Context["field"].(string); ok {
			return f
		}
	}
	return ""
}
