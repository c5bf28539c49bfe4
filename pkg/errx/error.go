package errx

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error is a categorized error carrying a stable code and contextual details.
type Error struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Type       Type                   `json:"type"`
	HTTPStatus int                    `json:"http_status"`
	Details    map[string]interface{} `json:"details,omitempty"`

	// Err is the underlying cause, never serialized.
	Err error `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetail adds a detail and returns e for chaining.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// MarshalJSON adds the rendered message as "error".
func (e *Error) MarshalJSON() ([]byte, error) {
	type plain Error
	return json.Marshal(&struct {
		*plain
		Error string `json:"error,omitempty"`
	}{plain: (*plain)(e), Error: e.Error()})
}

// New creates an uncoded Error of the given type.
func New(message string, errType Type) *Error {
	return &Error{
		Code:       string(errType),
		Message:    message,
		Type:       errType,
		HTTPStatus: errType.HTTPStatus(),
		Details:    make(map[string]interface{}),
	}
}

// Wrap wraps err with a new message and type. When err already carries an
// *Error its code, status and details are kept.
func Wrap(err error, message string, errType Type) *Error {
	if err == nil {
		return nil
	}
	w := New(message, errType)
	w.Err = err

	var existing *Error
	if errors.As(err, &existing) {
		w.Code = existing.Code
		w.HTTPStatus = existing.HTTPStatus
		w.Details = existing.Details
	}
	return w
}

// walk calls fn for every *Error in err's chain, outermost first, until fn
// returns true.
func walk(err error, fn func(*Error) bool) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if fn(e) {
			return true
		}
		err = e.Err
	}
	return false
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code *ErrorCode) bool {
	return walk(err, func(e *Error) bool { return e.Code == code.Code })
}

// HasType reports whether any *Error in err's chain has type t.
func HasType(err error, t Type) bool {
	return walk(err, func(e *Error) bool { return e.Type == t })
}

// TypeOf returns the Type of the outermost *Error in err's chain.
func TypeOf(err error) (Type, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Type, true
	}
	return "", false
}
