// Package utils provides utility functions for the application.
package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

func ToPtr[T any](v T) *T {
	return &v
}

// Deref returns the pointed value or the zero value when p is nil
func Deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// ErrInvalidUUID is wrapped by ParseUUID failures
var ErrInvalidUUID = errors.New("invalid uuid")

// ParseUUID parses a UUID string, rejecting the nil UUID
func ParseUUID(s string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w %q: %v", ErrInvalidUUID, s, err)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w %q: nil uuid", ErrInvalidUUID, s)
	}
	return parsed, nil
}
