// Package dashboard wires the chart session together and exposes the entry
// points the page controller calls.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seuros/scalex/internal/chart"
	"github.com/seuros/scalex/internal/chartapi"
	"github.com/seuros/scalex/internal/dispatch"
	"github.com/seuros/scalex/internal/filters"
	"github.com/seuros/scalex/internal/logging"
	"github.com/seuros/scalex/internal/mirror"
	"github.com/seuros/scalex/internal/registry"
	"github.com/seuros/scalex/internal/render"
	"github.com/seuros/scalex/internal/router"
)

// ErrModalClosed is returned when exporting with no modal open.
var ErrModalClosed = errors.New("no chart open in the modal")

// Options configures a Session.
type Options struct {
	Catalog   *dispatch.Catalog
	Drawer    chart.Drawer
	Fetcher   chartapi.Fetcher
	BaseURL   string
	Persister filters.Persister

	ModalWidth  int
	ModalHeight int
}

// PageInfo describes one catalog page.
type PageInfo struct {
	Key    chart.PageKey `json:"key"`
	Title  string        `json:"title"`
	Charts []chart.ID    `json:"charts"`
	Active bool          `json:"active"`
}

// Status is a summary of the session for health and debugging endpoints.
type Status struct {
	ActivePage chart.PageKey `json:"active_page"`
	Generation uint64        `json:"generation"`
	Router     string        `json:"router"`
	Charts     int           `json:"charts"`
	ModalOpen  bool          `json:"modal_open"`
	LastCycle  *time.Time    `json:"last_cycle,omitempty"`
}

// Session owns the filter store, registry, dispatch table, router and mirror
// of one dashboard.
type Session struct {
	store    *filters.Store
	registry *registry.Registry
	table    *dispatch.Table
	router   *router.Router
	mirror   *mirror.Mirror
	catalog  *dispatch.Catalog

	modalWidth  int
	modalHeight int
}

// New builds a session. The filter state is restored from opts.Persister and
// every accepted filter change refreshes the active page.
func New(ctx context.Context, opts Options) (*Session, error) {
	if opts.Catalog == nil {
		return nil, errors.New("dashboard: catalog is required")
	}
	if opts.Drawer == nil {
		return nil, errors.New("dashboard: drawer is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("dashboard: fetcher is required")
	}
	if opts.ModalWidth <= 0 {
		opts.ModalWidth = 1280
	}
	if opts.ModalHeight <= 0 {
		opts.ModalHeight = 720
	}

	store, err := filters.NewStore(ctx, opts.Persister)
	if err != nil {
		return nil, err
	}

	reg := registry.New(opts.Drawer)
	table := dispatch.NewTable(opts.Catalog, reg)
	rt := router.New(table, reg, opts.Fetcher, opts.BaseURL)
	rt.SetFilters(store)
	store.OnChange(func(ctx context.Context, _ filters.State) {
		if err := rt.Refresh(ctx); err != nil {
			logging.L().Warn("refresh after filter change", "error", err)
		}
	})

	return &Session{
		store:       store,
		registry:    reg,
		table:       table,
		router:      rt,
		mirror:      mirror.New(reg, opts.Drawer, opts.ModalWidth, opts.ModalHeight),
		catalog:     opts.Catalog,
		modalWidth:  opts.ModalWidth,
		modalHeight: opts.ModalHeight,
	}, nil
}

// OnPageActivated switches to page and loads its charts.
func (s *Session) OnPageActivated(ctx context.Context, page chart.PageKey) error {
	return s.router.Activate(ctx, page)
}

// OnFilterChanged stores the new filters; the active page is refreshed before
// it returns. Only validation and persistence errors are returned.
func (s *Session) OnFilterChanged(ctx context.Context, state filters.State) error {
	return s.store.Set(ctx, state)
}

// ApplyPreset replaces the date range with a named preset, keeping the other
// filters.
func (s *Session) ApplyPreset(ctx context.Context, name string, now time.Time) error {
	dr, err := filters.Preset(name, now)
	if err != nil {
		return err
	}
	state := s.store.Get()
	state.DateRange = dr
	return s.store.Set(ctx, state)
}

// OnChartClicked opens the chart in the modal.
func (s *Session) OnChartClicked(id chart.ID) error {
	return s.mirror.Open(id)
}

// OnModalDismissed closes the modal.
func (s *Session) OnModalDismissed() {
	s.mirror.Close()
}

// Refresh re-fetches the active page.
func (s *Session) Refresh(ctx context.Context) error {
	return s.router.Refresh(ctx)
}

// Filters returns the current filter state.
func (s *Session) Filters() filters.State {
	return s.store.Get()
}

// Charts returns every chart on the active page.
func (s *Session) Charts() []chart.Registered {
	return s.registry.Snapshot()
}

// Chart returns one chart on the active page.
func (s *Session) Chart(id chart.ID) (chart.Registered, bool) {
	return s.registry.Get(id)
}

// Modal returns the open modal.
func (s *Session) Modal() (mirror.State, bool) {
	return s.mirror.State()
}

// ExportModal renders the open modal as PNG from its copied data.
func (s *Session) ExportModal() ([]byte, error) {
	state, ok := s.mirror.State()
	if !ok {
		return nil, ErrModalClosed
	}
	return render.PNG(state.Payload, state.Meta, state.Width, state.Height)
}

// Pages lists the catalog pages.
func (s *Session) Pages() []PageInfo {
	active := s.router.Active()
	keys := s.table.Pages()
	out := make([]PageInfo, 0, len(keys))
	for _, key := range keys {
		page, _ := s.table.Page(key)
		out = append(out, PageInfo{
			Key:    key,
			Title:  page.Title,
			Charts: append([]chart.ID(nil), page.Charts...),
			Active: key == active,
		})
	}
	return out
}

// Status summarizes the session.
func (s *Session) Status() Status {
	_, open := s.mirror.State()
	st := Status{
		ActivePage: s.router.Active(),
		Generation: s.router.Generation(),
		Router:     s.router.State().String(),
		Charts:     s.registry.Len(),
		ModalOpen:  open,
	}
	if last := s.router.LastCycle(); !last.IsZero() {
		st.LastCycle = &last
	}
	return st
}

// Close tears down the modal and every chart.
func (s *Session) Close() {
	s.mirror.Close()
	s.registry.ClearAll()
}

// IsUnknownPage reports whether err came from activating an unknown page.
func IsUnknownPage(err error) bool {
	return errors.Is(err, router.ErrUnknownPage)
}

// IsValidation reports whether err is a rejected filter state.
func IsValidation(err error) bool {
	var verr *filters.ValidationError
	return errors.As(err, &verr)
}

// IsNotRegistered reports whether err came from opening a chart that is not
// on the page.
func IsNotRegistered(err error) bool {
	return errors.Is(err, mirror.ErrNotRegistered)
}

func (s *Session) String() string {
	return fmt.Sprintf("dashboard session (page %q, %d charts)", s.router.Active(), s.registry.Len())
}
