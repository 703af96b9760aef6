// Package chart holds the data model shared by the chart session: identifiers,
// normalized payloads, display metadata and the drawing capability contract.
package chart

import (
	"maps"
	"time"
)

// ID uniquely names one visual element on a page (e.g. "perf_funnel_by_channel").
type ID string

// PageKey names a logical dashboard screen (e.g. "performance-overview").
type PageKey string

// Series is one named sequence of values aligned with Payload.Labels.
// A nil entry in Values is an explicit missing value.
type Series struct {
	Name       string            `json:"name"`
	Values     []*float64        `json:"values"`
	StyleHints map[string]string `json:"style_hints,omitempty"`
}

// Payload is the chart-library agnostic shape produced by update handlers.
type Payload struct {
	Labels []string `json:"labels"`
	Series []Series `json:"series"`
}

// DisplayMeta carries the titles of a chart. A non-empty Error marks the
// chart as being in the error-display state.
type DisplayMeta struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Container is the surface a handle is drawn into.
type Container struct {
	ID     string `json:"id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Handle is an opaque live chart instance owned by whoever created it.
type Handle any

// Drawer is the drawing capability. Callers never assume anything about a
// Handle beyond passing it back to the same Drawer.
type Drawer interface {
	CreateHandle(container Container, payload Payload, meta DisplayMeta) (Handle, error)
	UpdateHandle(handle Handle, payload Payload, meta DisplayMeta) error
	DestroyHandle(handle Handle) error
}

// Registered is a read-only snapshot of a registry entry. The live handle is
// never exposed.
type Registered struct {
	ID        ID          `json:"id"`
	Payload   Payload     `json:"payload"`
	Meta      DisplayMeta `json:"meta"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Float returns a pointer to v, handy when building payloads by hand.
func Float(v float64) *float64 {
	return &v
}

// Clone returns a deep copy of the payload.
func (p Payload) Clone() Payload {
	out := Payload{
		Labels: append([]string(nil), p.Labels...),
	}
	if p.Series != nil {
		out.Series = make([]Series, len(p.Series))
	}
	for i, s := range p.Series {
		values := make([]*float64, len(s.Values))
		for j, v := range s.Values {
			if v != nil {
				values[j] = Float(*v)
			}
		}
		out.Series[i] = Series{
			Name:       s.Name,
			Values:     values,
			StyleHints: maps.Clone(s.StyleHints),
		}
	}
	return out
}

// Normalize pads or truncates every series so that its length matches the
// number of labels. Padding uses explicit nil values.
func (p Payload) Normalize() Payload {
	n := len(p.Labels)
	for i := range p.Series {
		values := p.Series[i].Values
		switch {
		case len(values) > n:
			values = values[:n]
		case len(values) < n:
			values = append(values, make([]*float64, n-len(values))...)
		}
		p.Series[i].Values = values
	}
	return p
}

// Empty reports whether the payload carries no labels and no series.
func (p Payload) Empty() bool {
	return len(p.Labels) == 0 && len(p.Series) == 0
}

// Equal reports whether two payloads carry the same labels, series and values.
func (p Payload) Equal(other Payload) bool {
	if len(p.Labels) != len(other.Labels) || len(p.Series) != len(other.Series) {
		return false
	}
	for i := range p.Labels {
		if p.Labels[i] != other.Labels[i] {
			return false
		}
	}
	for i := range p.Series {
		a, b := p.Series[i], other.Series[i]
		if a.Name != b.Name || len(a.Values) != len(b.Values) || !maps.Equal(a.StyleHints, b.StyleHints) {
			return false
		}
		for j := range a.Values {
			switch {
			case a.Values[j] == nil && b.Values[j] == nil:
			case a.Values[j] == nil || b.Values[j] == nil:
				return false
			case *a.Values[j] != *b.Values[j]:
				return false
			}
		}
	}
	return true
}
