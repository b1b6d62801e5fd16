package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

// RequestError wraps a storage or transport failure raised while serving a
// user-facing operation. The cause message is always kept.
type RequestError struct {
	Op    string
	Cause error
}

func NewRequestError(op string, cause error) *RequestError {
	return &RequestError{Op: op, Cause: cause}
}

func (e *RequestError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("failed to %s", e.Op)
	}
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Cause)
}

func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// DeliveryError is returned by a dispatch attempt whose email transport call
// failed. It is re-raised so the queue's retry policy takes over.
type DeliveryError struct {
	NotificationID int64
	Cause          error
}

func (e *DeliveryError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("delivery of notification %d failed: %v", e.NotificationID, e.Cause)
}

func (e *DeliveryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
