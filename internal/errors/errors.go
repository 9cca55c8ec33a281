package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError rejects a request before any write happens.
type ValidationError struct {
	Message string
	Details []ValidationDetail
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(message string, details ...ValidationDetail) *ValidationError {
	return &ValidationError{
		Message: message,
		Details: details,
	}
}

func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if stderrors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// PersistenceError means an order could not be fully written.
// The caller must not report the order as placed.
type PersistenceError struct {
	Message string
	Cause   error
}

func (e *PersistenceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

func NewPersistenceError(message string, cause error) *PersistenceError {
	return &PersistenceError{
		Message: message,
		Cause:   cause,
	}
}

func IsPersistenceError(err error) (*PersistenceError, bool) {
	var pe *PersistenceError
	if stderrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// DispatchError is returned once every configured webhook endpoint has been exhausted.
type DispatchError struct {
	Endpoints []string
	Attempts  int
	Cause     error
}

func (e *DispatchError) Error() string {
	msg := fmt.Sprintf("notification dispatch failed after %d attempts on [%s]", e.Attempts, strings.Join(e.Endpoints, ", "))
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *DispatchError) Unwrap() error {
	return e.Cause
}

func NewDispatchError(endpoints []string, attempts int, cause error) *DispatchError {
	return &DispatchError{
		Endpoints: endpoints,
		Attempts:  attempts,
		Cause:     cause,
	}
}

func IsDispatchError(err error) (*DispatchError, bool) {
	var de *DispatchError
	if stderrors.As(err, &de) {
		return de, true
	}
	return nil, false
}

type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

func NewNotFoundError(message string) *NotFoundError {
	return &NotFoundError{Message: message}
}

func IsNotFoundError(err error) (*NotFoundError, bool) {
	var nfe *NotFoundError
	if stderrors.As(err, &nfe) {
		return nfe, true
	}
	return nil, false
}

type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *InternalError) Unwrap() error {
	return e.Cause
}

func NewInternalError(message string, cause error) *InternalError {
	return &InternalError{
		Message: message,
		Cause:   cause,
	}
}
