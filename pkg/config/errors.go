// Package config loads and validates analyzer thresholds and application settings.
// Configuration is parsed once into typed structs; nothing is defaulted at use time.
package config

import (
	"errors"
	"fmt"
)

// ErrInvalid is matched by every configuration error via errors.Is.
var ErrInvalid = errors.New("invalid configuration")

// Error describes a malformed or inconsistent configuration or location file.
type Error struct {
	Err   error
	Path  string
	Field string
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Field != "":
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Field, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes every *Error match ErrInvalid.
func (*Error) Is(target error) bool { return target == ErrInvalid }

// Errorf builds an *Error for field with a formatted message.
func Errorf(path, field, format string, args ...any) *Error {
	return &Error{Path: path, Field: field, Err: fmt.Errorf(format, args...)}
}
