// Package router drives a page activation cycle: it enumerates the charts of
// the active page, fetches them in parallel and hands every settled response
// to the dispatch table.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seuros/scalex/internal/chart"
	"github.com/seuros/scalex/internal/chartapi"
	"github.com/seuros/scalex/internal/dispatch"
	"github.com/seuros/scalex/internal/filters"
	"github.com/seuros/scalex/internal/logging"
)

// ErrUnknownPage is returned when activating a page the catalog does not define.
var ErrUnknownPage = errors.New("unknown page")

// State is the observable router state.
type State int

const (
	Idle State = iota
	Fetching
)

func (s State) String() string {
	if s == Fetching {
		return "fetching"
	}
	return "idle"
}

// Dispatcher is the dispatch table as seen by the router.
type Dispatcher interface {
	Page(key chart.PageKey) (dispatch.Page, bool)
	Mapping(id chart.ID) (dispatch.Mapping, bool)
	Dispatch(id chart.ID, raw []byte) error
	Fail(id chart.ID, cause error)
}

// Clearer tears down every live chart when the page changes.
type Clearer interface {
	ClearAll()
}

// FilterSource supplies the filter state requests are built from.
type FilterSource interface {
	Get() filters.State
}

// Router owns the active page and the page generation counter.
type Router struct {
	table   Dispatcher
	charts  Clearer
	fetcher chartapi.Fetcher
	baseURL string

	filtersMu sync.RWMutex
	filters   FilterSource

	// mu serializes page switches with the application of results.
	mu         sync.Mutex
	active     chart.PageKey
	generation uint64
	cycle      uint64
	applied    map[chart.ID]uint64
	inflight   int
	lastCycle  time.Time
}

// New creates a router. baseURL is the globally shared endpoint; pages may
// override it for their non-shared charts.
func New(table Dispatcher, charts Clearer, fetcher chartapi.Fetcher, baseURL string) *Router {
	return &Router{
		table:   table,
		charts:  charts,
		fetcher: fetcher,
		baseURL: baseURL,
		applied: make(map[chart.ID]uint64),
	}
}

// SetFilters sets the filter source. Until one is set requests carry an
// empty filter state.
func (r *Router) SetFilters(src FilterSource) {
	r.filtersMu.Lock()
	defer r.filtersMu.Unlock()
	r.filters = src
}

func (r *Router) filterState() filters.State {
	r.filtersMu.RLock()
	defer r.filtersMu.RUnlock()
	if r.filters == nil {
		return filters.State{}
	}
	return r.filters.Get()
}

// Activate makes page the active page and runs a refresh cycle for it. When the
// page changes the generation advances and the previous page's charts are
// cleared; responses still in flight for the old page are dropped on arrival.
func (r *Router) Activate(ctx context.Context, page chart.PageKey) error {
	if _, ok := r.table.Page(page); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPage, page)
	}

	r.mu.Lock()
	if r.active != page {
		r.generation++
		logging.L().Info("page activated", "page", page, "previous", r.active, "generation", r.generation)
		r.active = page
		clear(r.applied)
		r.charts.ClearAll()
	}
	r.mu.Unlock()

	return r.Refresh(ctx)
}

// Refresh re-fetches every chart of the active page and replaces the data in
// place. It is a no-op while no page is active. Per-chart failures are shown
// on the chart and never returned.
func (r *Router) Refresh(ctx context.Context) error {
	r.mu.Lock()
	page, active := r.active, r.active != ""
	gen := r.generation
	r.cycle++
	cycle := r.cycle
	if active {
		r.inflight++
	}
	r.mu.Unlock()

	if !active {
		return nil
	}
	defer func() {
		r.mu.Lock()
		r.inflight--
		r.lastCycle = time.Now()
		r.mu.Unlock()
	}()

	def, ok := r.table.Page(page)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPage, page)
	}

	state := r.filterState()
	var single, batched []chartapi.Request
	batcher, canBatch := r.fetcher.(chartapi.BatchFetcher)
	pageBase := r.pageBase(def)
	for _, id := range def.Charts {
		base := r.chartBase(id, def)
		req := chartapi.NewRequest(id, state, base)
		if def.Batch && canBatch && base == pageBase {
			batched = append(batched, req)
			continue
		}
		single = append(single, req)
	}

	logging.L().Debug("refresh cycle started", "page", page, "generation", gen, "charts", len(def.Charts), "batched", len(batched))
	start := time.Now()

	var g errgroup.Group
	for _, req := range single {
		g.Go(func() error {
			raw, err := r.fetcher.FetchChart(ctx, req)
			if err != nil && ctx.Err() != nil {
				return nil
			}
			r.apply(gen, cycle, req.Identifier, raw, err)
			return nil
		})
	}
	if len(batched) > 0 {
		g.Go(func() error {
			r.fetchBatch(ctx, batcher, page, pageBase, gen, cycle, batched)
			return nil
		})
	}
	_ = g.Wait()

	logging.L().Debug("refresh cycle settled", "page", page, "generation", gen, "duration", time.Since(start))
	return ctx.Err()
}

func (r *Router) fetchBatch(ctx context.Context, batcher chartapi.BatchFetcher, page chart.PageKey, base string, gen, cycle uint64, reqs []chartapi.Request) {
	results, err := batcher.FetchPage(ctx, page, base, reqs)
	if err != nil && ctx.Err() != nil {
		return
	}
	if err != nil {
		for _, req := range reqs {
			r.apply(gen, cycle, req.Identifier, nil, &chartapi.FetchError{ID: req.Identifier, Err: err})
		}
		return
	}
	for _, req := range reqs {
		res, ok := results[req.Identifier]
		if !ok {
			res.Err = &chartapi.FetchError{ID: req.Identifier, Err: errors.New("missing from batch response")}
		}
		r.apply(gen, cycle, req.Identifier, res.Data, res.Err)
	}
	for id := range results {
		if !slices.ContainsFunc(reqs, func(req chartapi.Request) bool { return req.Identifier == id }) {
			logging.L().Debug("ignoring unrequested chart in batch response", "page", page, "chart", id)
		}
	}
}

// apply hands one settled result to the dispatch table unless the page
// generation moved on or a newer cycle already applied this chart.
func (r *Router) apply(gen, cycle uint64, id chart.ID, raw json.RawMessage, fetchErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.generation {
		logging.L().Debug("dropping stale response", "chart", id, "generation", gen, "current", r.generation)
		return
	}
	if r.applied[id] > cycle {
		logging.L().Debug("dropping superseded response", "chart", id, "cycle", cycle, "applied", r.applied[id])
		return
	}
	r.applied[id] = cycle

	if fetchErr != nil {
		logging.L().Warn("chart fetch failed", "chart", id, "error", fetchErr)
		r.table.Fail(id, fetchErr)
		return
	}
	_ = r.table.Dispatch(id, raw)
}

func (r *Router) pageBase(def dispatch.Page) string {
	if def.Endpoint != "" {
		return def.Endpoint
	}
	return r.baseURL
}

// chartBase resolves the endpoint for one chart: shared charts always use the
// global endpoint.
func (r *Router) chartBase(id chart.ID, def dispatch.Page) string {
	if m, ok := r.table.Mapping(id); ok && m.Shared {
		return r.baseURL
	}
	return r.pageBase(def)
}

// Active returns the active page, empty before the first activation.
func (r *Router) Active() chart.PageKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Generation returns the page generation counter.
func (r *Router) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// State reports whether a refresh cycle is in flight.
func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight > 0 {
		return Fetching
	}
	return Idle
}

// LastCycle returns when the most recent refresh cycle settled.
func (r *Router) LastCycle() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastCycle
}
