package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/seuros/scalex/internal/chart"
	"github.com/seuros/scalex/internal/config"
	"github.com/seuros/scalex/internal/database"
	"github.com/seuros/scalex/internal/kpi"
	"github.com/seuros/scalex/internal/logging"
)

var (
	metricsFile   string
	metricsFromDB bool
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Inspect and load the KPI metric rows",
	Long: `Inspect and load the aggregated metric rows behind the business and
campaign KPI cards.

Example:
  scalex metrics show
  scalex metrics show --file ./metrics.yaml
  scalex metrics load ./metrics.yaml --database-url postgres://...
  scalex metrics show --from-db`,
}

var metricsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the KPI cards derived from the metric rows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		src, closeSrc, err := metricsSource(cmd.Context(), cfg, metricsFile, metricsFromDB)
		if err != nil {
			return err
		}
		defer closeSrc()
		return writeCards(cmd.Context(), cmd.OutOrStdout(), src)
	},
}

var metricsLoadCmd = &cobra.Command{
	Use:   "load [file]",
	Short: "Upsert metric rows into the kpi_aggregate table",
	Long:  "Upserts the rows of a YAML metrics file (default: the embedded sample) into PostgreSQL.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		metrics, err := kpi.LoadMetrics(path)
		if err != nil {
			return err
		}
		repo, db, err := openMetricRepository(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		if err := repo.Put(cmd.Context(), metrics.Rows()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "loaded %d metric rows\n", len(metrics))
		return nil
	},
}

// openMetricRepository migrates and connects to cfg.DatabaseURL.
func openMetricRepository(ctx context.Context, cfg *config.Config) (*database.MetricRepository, *sql.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("metrics: database url is required (--database-url or SCALEX_DATABASE_URL)")
	}
	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return database.NewMetricRepository(db), db, nil
}

// metricsSource picks the rows behind the KPI cards: PostgreSQL when fromDB is
// set, otherwise a YAML file or the embedded sample.
func metricsSource(ctx context.Context, cfg *config.Config, path string, fromDB bool) (kpi.Source, func(), error) {
	if fromDB {
		if path != "" {
			return nil, nil, fmt.Errorf("metrics: --file and --from-db are mutually exclusive")
		}
		repo, db, err := openMetricRepository(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {
			if err := db.Close(); err != nil {
				logging.L().Warn("closing metrics database", "error", err)
			}
		}, nil
	}
	metrics, err := kpi.LoadMetrics(path)
	if err != nil {
		return nil, nil, err
	}
	return kpi.Static(metrics), func() {}, nil
}

func writeCards(ctx context.Context, w io.Writer, src kpi.Source) error {
	ids := make([]chart.ID, 0, len(kpi.Cards))
	for id := range kpi.Cards {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make(map[chart.ID]kpi.Card, len(ids))
	for _, id := range ids {
		card, err := kpi.Build(ctx, src, id)
		if err != nil {
			return err
		}
		out[id] = card
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func init() {
	metricsShowCmd.Flags().StringVar(&metricsFile, "file", "", "YAML metrics file (default: embedded sample)")
	metricsShowCmd.Flags().BoolVar(&metricsFromDB, "from-db", false, "Read the kpi_aggregate table instead of a file")
	metricsCmd.AddCommand(metricsShowCmd, metricsLoadCmd)
}
