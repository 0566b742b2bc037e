package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when a query arrives before the first load.
	ErrNotReady = errors.New("point store not loaded")
	// ErrCancelled marks a superseded operation. It is never shown to users.
	ErrCancelled = fmt.Errorf("superseded: %w", context.Canceled)
	// ErrClusterNotFound is returned for an unknown aggregate id.
	ErrClusterNotFound = errors.New("cluster not found")
)

// LoadError reports an unreadable data source.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// FetchError reports a routing provider failure. Callers recover with the
// straight-line corridor.
type FetchError struct {
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("route fetch: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("route fetch: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// QueryError reports a parameter that cannot be interpreted at all.
type QueryError struct {
	Param string
	Value string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Param, e.Value)
}

// IsCancelled reports whether err stems from cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
