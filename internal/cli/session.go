package cli

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/seuros/scalex/internal/chart"
	"github.com/seuros/scalex/internal/chartapi"
	"github.com/seuros/scalex/internal/config"
	"github.com/seuros/scalex/internal/dashboard"
	"github.com/seuros/scalex/internal/database"
	"github.com/seuros/scalex/internal/dispatch"
	"github.com/seuros/scalex/internal/filters"
	"github.com/seuros/scalex/internal/logging"
)

// filterStateFile is the file store name under DataDir.
const filterStateFile = "filters.yaml"

// filterScope keys the persisted filter state in postgres.
const filterScope = "default"

// runtime holds everything a command built from the config and must release.
type runtime struct {
	cfg     *config.Config
	catalog *dispatch.Catalog
	client  *chartapi.Client
	session *dashboard.Session
	db      *sql.DB
}

func (r *runtime) Close() {
	if r.session != nil {
		r.session.Close()
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			logging.L().Warn("closing database", "error", err)
		}
	}
}

func loadCatalog(cfg *config.Config) (*dispatch.Catalog, error) {
	if cfg.CatalogPath == "" {
		return dispatch.DefaultCatalog()
	}
	return dispatch.LoadCatalog(cfg.CatalogPath)
}

// openPersister returns the filter persister for cfg.FilterStore and the
// database handle it uses, if any.
func openPersister(ctx context.Context, cfg *config.Config) (filters.Persister, *sql.DB, error) {
	switch cfg.FilterStore {
	case config.FilterStoreMemory:
		return filters.NewMemoryPersister(), nil, nil
	case config.FilterStoreFile, "":
		return filters.NewFilePersister(filepath.Join(cfg.DataDir, filterStateFile)), nil, nil
	case config.FilterStorePostgres:
		logging.L().Info("running database migrations")
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return database.NewFilterRepository(db, filterScope), db, nil
	default:
		return nil, nil, fmt.Errorf("unknown filter store %q", cfg.FilterStore)
	}
}

// buildRuntime assembles a session drawing into drawer.
func buildRuntime(ctx context.Context, cfg *config.Config, drawer chart.Drawer) (*runtime, error) {
	if err := config.ValidateBaseURL(cfg.APIBaseURL); err != nil {
		return nil, fmt.Errorf("api base url: %w", err)
	}

	rt := &runtime{cfg: cfg}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	rt.catalog = catalog

	persister, db, err := openPersister(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("filter store: %w", err)
	}
	rt.db = db

	rt.client = chartapi.NewClient(cfg.APIBaseURL, cfg.APITimeout, cfg.APIRetries)
	rt.session, err = dashboard.New(ctx, dashboard.Options{
		Catalog:     catalog,
		Drawer:      drawer,
		Fetcher:     rt.client,
		BaseURL:     cfg.APIBaseURL,
		Persister:   persister,
		ModalWidth:  cfg.ModalWidth,
		ModalHeight: cfg.ModalHeight,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	logging.L().Info("session ready",
		"api", cfg.APIBaseURL,
		"filter_store", cfg.FilterStore,
		"pages", len(catalog.PageKeys()))
	return rt, nil
}
