// Package chartapi is the client side of the performance API: one POST per
// chart, or one batched POST per page.
package chartapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/seuros/scalex/internal/chart"
	"github.com/seuros/scalex/internal/filters"
)

// ErrUnsuccessful is wrapped when the API answered with success=false.
var ErrUnsuccessful = errors.New("chart api reported failure")

// Request is the body of a per-chart request.
type Request struct {
	Identifier        chart.ID           `json:"identifier"`
	DateRange         *filters.DateRange `json:"dateRange"`
	ComparisonEnabled bool               `json:"comparisonEnabled"`
	SegmentFilters    map[string]*string `json:"segmentFilters"`
	// BaseURL selects the endpoint; it is not sent.
	BaseURL string `json:"-"`
}

// NewRequest builds the request for one chart from the current filter state.
func NewRequest(id chart.ID, state filters.State, baseURL string) Request {
	segments := state.SegmentFilters
	if segments == nil {
		segments = map[string]*string{}
	}
	return Request{
		Identifier:        id,
		DateRange:         state.DateRange,
		ComparisonEnabled: state.ComparisonEnabled,
		SegmentFilters:    segments,
		BaseURL:           baseURL,
	}
}

// PageRequest is the body of a batched page request.
type PageRequest struct {
	Charts            []chart.ID         `json:"charts"`
	DateRange         *filters.DateRange `json:"dateRange"`
	ComparisonEnabled bool               `json:"comparisonEnabled"`
	SegmentFilters    map[string]*string `json:"segmentFilters"`
}

// Envelope is the response shape of every endpoint.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
}

// Result is one chart's outcome inside a batch.
type Result struct {
	Data json.RawMessage
	Err  error
}

// FetchError scopes a failure to a single chart.
type FetchError struct {
	ID     chart.ID
	Status int // HTTP status, 0 when no response was received
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.ID, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.ID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher retrieves one chart's data.
type Fetcher interface {
	FetchChart(ctx context.Context, req Request) (json.RawMessage, error)
}

// BatchFetcher retrieves a whole page in one round trip. The returned map may
// contain identifiers that were not requested.
type BatchFetcher interface {
	FetchPage(ctx context.Context, page chart.PageKey, baseURL string, reqs []Request) (map[chart.ID]Result, error)
}

// decodeEnvelope validates an envelope and returns its data.
func decodeEnvelope(id chart.ID, status int, body []byte) (json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &FetchError{ID: id, Status: status, Err: fmt.Errorf("malformed response %q: %w", snippet(body), err)}
	}
	return envelopeData(id, status, env)
}

func envelopeData(id chart.ID, status int, env Envelope) (json.RawMessage, error) {
	if !env.Success {
		reason := env.Error
		if reason == "" {
			reason = "no reason given"
		}
		return nil, &FetchError{ID: id, Status: status, Err: fmt.Errorf("%w: %s", ErrUnsuccessful, reason)}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, &FetchError{ID: id, Status: status, Err: fmt.Errorf("%w: empty data", ErrUnsuccessful)}
	}
	return env.Data, nil
}

// snippet shortens body for error messages without splitting a UTF-8 sequence.
func snippet(body []byte) string {
	const limit = 256
	if len(body) <= limit {
		return string(body)
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut]) + "..."
}
