// Package filters holds the process-wide reporting period and segment filter
// state. Every accepted change is persisted and then announced to the single
// registered listener, which refreshes the active page.
package filters

import (
	"errors"
	"fmt"
	"maps"
	"time"
)

// DateLayout is the wire and storage format of DateRange bounds.
const DateLayout = "2006-01-02"

// ErrInvalidRange is wrapped by every date range validation failure.
var ErrInvalidRange = errors.New("invalid date range")

// ValidationError is the caller-facing rejection returned by Store.Set.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// DateRange is a closed reporting period.
type DateRange struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// State is the full filter selection.
type State struct {
	DateRange         *DateRange         `json:"dateRange" yaml:"date_range,omitempty"`
	ComparisonEnabled bool               `json:"comparisonEnabled" yaml:"comparison_enabled"`
	SegmentFilters    map[string]*string `json:"segmentFilters" yaml:"segment_filters,omitempty"`
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := State{ComparisonEnabled: s.ComparisonEnabled}
	if s.DateRange != nil {
		dr := *s.DateRange
		out.DateRange = &dr
	}
	if s.SegmentFilters != nil {
		out.SegmentFilters = make(map[string]*string, len(s.SegmentFilters))
		for name, value := range s.SegmentFilters {
			if value == nil {
				out.SegmentFilters[name] = nil
				continue
			}
			v := *value
			out.SegmentFilters[name] = &v
		}
	}
	return out
}

// Equal reports whether two states select the same data.
func (s State) Equal(other State) bool {
	if s.ComparisonEnabled != other.ComparisonEnabled {
		return false
	}
	if (s.DateRange == nil) != (other.DateRange == nil) {
		return false
	}
	if s.DateRange != nil && *s.DateRange != *other.DateRange {
		return false
	}
	return maps.EqualFunc(s.SegmentFilters, other.SegmentFilters, func(a, b *string) bool {
		if a == nil || b == nil {
			return a == b
		}
		return *a == *b
	})
}

// Validate checks the date range invariant: absent, or both bounds set with
// start not after end.
func (s State) Validate() error {
	if s.DateRange == nil {
		return nil
	}
	start, err := time.Parse(DateLayout, s.DateRange.Start)
	if err != nil {
		return &ValidationError{Field: "dateRange.start", Reason: fmt.Sprintf("%q is not a %s date", s.DateRange.Start, DateLayout), Err: ErrInvalidRange}
	}
	end, err := time.Parse(DateLayout, s.DateRange.End)
	if err != nil {
		return &ValidationError{Field: "dateRange.end", Reason: fmt.Sprintf("%q is not a %s date", s.DateRange.End, DateLayout), Err: ErrInvalidRange}
	}
	if start.After(end) {
		return &ValidationError{Field: "dateRange", Reason: fmt.Sprintf("start %s is after end %s", s.DateRange.Start, s.DateRange.End), Err: ErrInvalidRange}
	}
	return nil
}
