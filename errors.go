package adaptcache

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a miss from layers whose Get returns an error.
	ErrNotFound = errors.New("adaptcache: not found")
	// ErrValueTooLarge reports a value bigger than the whole byte budget.
	ErrValueTooLarge = errors.New("adaptcache: value too large")
	// ErrInvalidConfiguration reports unusable Options.
	ErrInvalidConfiguration = errors.New("adaptcache: invalid configuration")
)

type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("adaptcache: invalid configuration: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfiguration }

// TooLargeError is returned by Set when a single value exceeds CapacityBytes.
// The cache is left unchanged.
type TooLargeError struct {
	Key    string
	Size   int64
	Budget int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("adaptcache: value for %q too large: %d > %d bytes", e.Key, e.Size, e.Budget)
}

func (e *TooLargeError) Is(target error) bool { return target == ErrValueTooLarge }
