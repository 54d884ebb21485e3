package app

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrSlotUnavailable means the requested interval conflicts with an
	// existing booking or the host's external calendar. Callers re-fetch
	// availability and ask the guest to pick again.
	ErrSlotUnavailable  = errors.New("this time slot is no longer available, please choose another")
	ErrAlreadyCancelled = errors.New("booking is already cancelled")
	ErrSlugTaken        = errors.New("slug is already in use")
	ErrUnauthenticated  = errors.New("not authenticated")
)

// ValidationError reports the first invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func notFound(resource, key string) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: key}
}
