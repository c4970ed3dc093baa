package domain

import (
	"errors"
	"strings"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrInvalidID     = errors.New("invalid order id")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors is the synchronous admission failure: the request never
// reached the store.
type ValidationErrors struct {
	Fields []FieldError
}

func (e *ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return "invalid order: " + strings.Join(msgs, "; ")
}

func (e *ValidationErrors) Add(field, code, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Code: code, Message: message})
}

func (e *ValidationErrors) HasErrors() bool { return len(e.Fields) > 0 }
