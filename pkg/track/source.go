package track

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Query selects the points of one device over a time range.
type Query struct {
	From   time.Time
	To     time.Time
	User   string
	Device string
}

// Source supplies raw location points. Implementations return points in any order.
type Source interface {
	FetchPoints(ctx context.Context, q Query) ([]RawPoint, error)
}

// SourceError is a failure reported by a Source.
// Transient failures are worth retrying; permanent ones are not.
type SourceError struct {
	Err       error
	Op        string
	Status    int
	Transient bool
}

func (e *SourceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a SourceError marked transient.
func IsTransient(err error) bool {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Transient
	}
	return false
}
