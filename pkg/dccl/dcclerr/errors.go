// Package dcclerr defines the error kinds reported by the codec.
//
// Every typed error unwraps to one of the kind sentinels below, so callers can
// test the kind with errors.Is and inspect the details with errors.As:
//
//	var rerr *dcclerr.RangeError
//	if errors.As(err, &rerr) { ... }
//	if errors.Is(err, dcclerr.ErrUnderflow) { ... }
package dcclerr

import (
	"errors"
	"fmt"
)

// Kind sentinels.
var (
	ErrRange            = errors.New("dccl: value out of range")
	ErrUnderflow        = errors.New("dccl: read past end of buffer")
	ErrUnknownSchema    = errors.New("dccl: unknown schema")
	ErrSchemaValidation = errors.New("dccl: schema validation failed")
	ErrMalformedMessage = errors.New("dccl: malformed message")
	ErrField            = errors.New("dccl: invalid field value")
)

// RangeError reports a value outside its field bounds at encode time.
type RangeError struct {
	Field  string
	Value  any
	Reason string
}

func (e *RangeError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("dccl: field %s: value %v out of range", e.Field, e.Value)
	}
	return fmt.Sprintf("dccl: field %s: value %v out of range: %s", e.Field, e.Value, e.Reason)
}

func (e *RangeError) Unwrap() error { return ErrRange }

// UnderflowError reports a read of more bits than remain in the buffer.
type UnderflowError struct {
	Requested int
	Remaining int
}

func (e *UnderflowError) Error() string {
	return fmt.Sprintf("dccl: underflow: requested %d bits, %d remaining", e.Requested, e.Remaining)
}

func (e *UnderflowError) Unwrap() error { return ErrUnderflow }

// UnknownSchemaError reports a lookup of an unregistered schema.
type UnknownSchemaError struct {
	ID   uint32
	Name string
}

func (e *UnknownSchemaError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("dccl: unknown schema %q", e.Name)
	}
	return fmt.Sprintf("dccl: unknown schema id %d", e.ID)
}

func (e *UnknownSchemaError) Unwrap() error { return ErrUnknownSchema }

// SchemaValidationError reports a schema rejected at registration.
type SchemaValidationError struct {
	Schema string
	Field  string
	Reason string
}

func (e *SchemaValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("dccl: schema %q: %s", e.Schema, e.Reason)
	}
	return fmt.Sprintf("dccl: schema %q field %q: %s", e.Schema, e.Field, e.Reason)
}

func (e *SchemaValidationError) Unwrap() error { return ErrSchemaValidation }

// MalformedMessageError reports structurally invalid decode input.
type MalformedMessageError struct {
	Field  string
	Reason string
}

func (e *MalformedMessageError) Error() string {
	if e.Field == "" {
		return "dccl: malformed message: " + e.Reason
	}
	return fmt.Sprintf("dccl: malformed message: field %s: %s", e.Field, e.Reason)
}

func (e *MalformedMessageError) Unwrap() error { return ErrMalformedMessage }

// FieldError reports a missing required field, a value of the wrong Go type
// or a failing pre-encode algorithm.
type FieldError struct {
	Field  string
	Reason string
	Err    error
}

func (e *FieldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dccl: field %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("dccl: field %s: %s", e.Field, e.Reason)
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *FieldError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrField, e.Err}
	}
	return []error{ErrField}
}
