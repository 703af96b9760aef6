// Package dispatch is the render dispatch table: a fixed mapping from chart
// identifier to the update handler that normalizes the raw API payload and
// stores the result in the chart registry.
package dispatch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/seuros/scalex/internal/chart"
	"github.com/seuros/scalex/internal/logging"
)

// ErrUnknownChart marks a dispatch for an identifier the table has no handler for.
var ErrUnknownChart = errors.New("no handler for chart")

// Upserter is the part of the chart registry the handlers write to.
type Upserter interface {
	Upsert(id chart.ID, payload chart.Payload, meta chart.DisplayMeta)
}

// UpdateHandler applies one raw payload to its chart.
type UpdateHandler func(raw []byte) error

// Table routes payloads to per-chart handlers built from the catalog.
type Table struct {
	catalog  *Catalog
	handlers map[chart.ID]UpdateHandler
	sink     Upserter
	missed   sync.Map // chart.ID -> struct{}
}

// NewTable builds one handler per chart mapping in the catalog.
func NewTable(catalog *Catalog, sink Upserter) *Table {
	t := &Table{
		catalog:  catalog,
		handlers: make(map[chart.ID]UpdateHandler, len(catalog.Charts)),
		sink:     sink,
	}
	for id, mapping := range catalog.Charts {
		t.handlers[id] = t.newHandler(id, mapping)
	}
	return t
}

func (t *Table) newHandler(id chart.ID, mapping Mapping) UpdateHandler {
	return func(raw []byte) error {
		payload, err := mapping.Normalize(raw)
		if err != nil {
			return err
		}
		t.sink.Upsert(id, payload, mapping.Meta())
		return nil
	}
}

// Handler returns the update handler for id.
func (t *Table) Handler(id chart.ID) (UpdateHandler, bool) {
	h, ok := t.handlers[id]
	return h, ok
}

// Mapping returns the declared mapping for id.
func (t *Table) Mapping(id chart.ID) (Mapping, bool) {
	m, ok := t.catalog.Charts[id]
	return m, ok
}

// Dispatch hands raw to the chart's handler. Unknown identifiers are skipped and
// warned about once per identifier; a payload the handler cannot read puts the
// chart in its error state.
func (t *Table) Dispatch(id chart.ID, raw []byte) error {
	handler, ok := t.handlers[id]
	if !ok {
		return t.miss(id)
	}
	if err := handler(raw); err != nil {
		logging.L().Warn("chart payload rejected", "chart", id, "error", err)
		t.Fail(id, err)
		return err
	}
	return nil
}

// miss logs an identifier with no handler: Warn the first time, Debug after.
func (t *Table) miss(id chart.ID) error {
	if _, seen := t.missed.LoadOrStore(id, struct{}{}); seen {
		logging.L().Debug("dispatch miss", "chart", id)
	} else {
		logging.L().Warn("dispatch miss", "chart", id)
	}
	return fmt.Errorf("%w: %s", ErrUnknownChart, id)
}

// Fail shows the chart in its explicit error state: no data, error text set.
// Identifiers without a handler are skipped exactly as Dispatch skips them.
func (t *Table) Fail(id chart.ID, cause error) {
	mapping, ok := t.catalog.Charts[id]
	if !ok {
		_ = t.miss(id)
		return
	}
	meta := mapping.Meta()
	meta.Error = "Data unavailable"
	if cause != nil {
		meta.Error = cause.Error()
	}
	t.sink.Upsert(id, chart.Payload{}, meta)
}

// Page returns the page definition.
func (t *Table) Page(key chart.PageKey) (Page, bool) {
	p, ok := t.catalog.Pages[key]
	return p, ok
}

// Charts returns the ordered chart identifiers of a page.
func (t *Table) Charts(key chart.PageKey) ([]chart.ID, bool) {
	p, ok := t.catalog.Pages[key]
	if !ok {
		return nil, false
	}
	return append([]chart.ID(nil), p.Charts...), true
}

// Pages lists the known page keys.
func (t *Table) Pages() []chart.PageKey {
	return t.catalog.PageKeys()
}
