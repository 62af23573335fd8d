package statistics

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is matched by every InsufficientDataError.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrCollectorPanicked wraps a panic recovered from a collector.
	ErrCollectorPanicked = errors.New("collector panicked")
)

// InsufficientDataError reports that a collector found fewer ranked entries
// than its infographic needs.
type InsufficientDataError struct {
	Kind Kind
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: found %d entries, need %d", e.Kind, e.Have, e.Need)
}

// Is makes errors.Is(err, ErrInsufficientData) succeed.
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}
