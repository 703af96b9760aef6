package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/seuros/scalex/internal/chartapi"
	"github.com/seuros/scalex/internal/config"
	"github.com/seuros/scalex/internal/database"
	"github.com/seuros/scalex/internal/dispatch"
	"github.com/seuros/scalex/internal/filters"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on the Scalex installation",
	Long: `Run health checks on the Scalex installation.

Checks performed:
  - Performance API base URL valid
  - Chart catalog parses
  - Every catalog chart has a mapping
  - Performance API reachable
  - Filter store usable (data directory writable, or for postgres:
    connection, server version and migrations)

Example:
  scalex doctor
  scalex doctor --json`,
	RunE: runDoctor,
}

type CheckResult struct {
	Name       string `json:"name"`
	Pass       bool   `json:"pass"`
	Error      string `json:"error,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	Details    string `json:"details,omitempty"`
}

// minPostgresMajor is the oldest server the filter_state schema is tested on.
const minPostgresMajor = 13

func checkAPIBaseURL(cfg *config.Config) CheckResult {
	if err := config.ValidateBaseURL(cfg.APIBaseURL); err != nil {
		return CheckResult{
			Name:       "API Base URL",
			Pass:       false,
			Error:      err.Error(),
			Suggestion: "Set SCALEX_API_BASE_URL to an http(s) URL such as http://localhost:8000",
		}
	}
	return CheckResult{Name: "API Base URL", Pass: true, Details: cfg.APIBaseURL}
}

func checkCatalog(cfg *config.Config) (*dispatch.Catalog, CheckResult) {
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, CheckResult{
			Name:       "Chart Catalog",
			Pass:       false,
			Error:      err.Error(),
			Suggestion: "Fix the catalog file or unset SCALEX_CATALOG_PATH to use the built-in one",
		}
	}
	source := "embedded"
	if cfg.CatalogPath != "" {
		source = cfg.CatalogPath
	}
	return catalog, CheckResult{
		Name:    "Chart Catalog",
		Pass:    true,
		Details: fmt.Sprintf("%s, %d pages, %d mappings", source, len(catalog.Pages), len(catalog.Charts)),
	}
}

func checkChartMappings(catalog *dispatch.Catalog) CheckResult {
	var missing []string
	for _, key := range catalog.PageKeys() {
		for _, id := range catalog.Pages[key].Charts {
			if _, ok := catalog.Charts[id]; !ok {
				missing = append(missing, string(id))
			}
		}
	}
	if len(missing) > 0 {
		return CheckResult{
			Name:       "Chart Mappings",
			Pass:       false,
			Error:      fmt.Sprintf("Missing %d mappings: %s", len(missing), strings.Join(missing, ", ")),
			Suggestion: "Charts without a mapping are never drawn; add them under charts: in the catalog",
		}
	}
	return CheckResult{Name: "Chart Mappings", Pass: true}
}

// checkPerformanceAPI fetches the first chart of the first page. Any HTTP
// answer proves reachability; only transport failures fail the check.
func checkPerformanceAPI(ctx context.Context, cfg *config.Config, catalog *dispatch.Catalog) CheckResult {
	var sample chartapi.Request
	for _, key := range catalog.PageKeys() {
		if page := catalog.Pages[key]; len(page.Charts) > 0 {
			sample = chartapi.NewRequest(page.Charts[0], filters.State{}, "")
			break
		}
	}
	if sample.Identifier == "" {
		return CheckResult{Name: "Performance API", Pass: true, Details: "no charts to query"}
	}

	client := chartapi.NewClient(cfg.APIBaseURL, cfg.APITimeout, 0)
	start := time.Now()
	_, err := client.FetchChart(ctx, sample)
	elapsed := time.Since(start).Round(time.Millisecond)

	if err != nil && !apiAnswered(err) {
		return CheckResult{
			Name:       "Performance API",
			Pass:       false,
			Error:      err.Error(),
			Suggestion: "Start the API or run `scalex mock-api` for fixture data",
		}
	}
	return CheckResult{Name: "Performance API", Pass: true, Details: fmt.Sprintf("%s answered in %s", sample.Identifier, elapsed)}
}

func apiAnswered(err error) bool {
	var fetchErr *chartapi.FetchError
	if !errors.As(err, &fetchErr) {
		return false
	}
	return fetchErr.Status != 0 || errors.Is(err, chartapi.ErrUnsuccessful)
}

func checkDataDirectory(cfg *config.Config) CheckResult {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return CheckResult{
			Name:       "Data Directory Writable",
			Pass:       false,
			Error:      err.Error(),
			Suggestion: "Ensure DATA_DIR can be created",
		}
	}
	testFile := filepath.Join(cfg.DataDir, ".scalex-write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return CheckResult{
			Name:       "Data Directory Writable",
			Pass:       false,
			Error:      err.Error(),
			Suggestion: "Ensure DATA_DIR has write permissions",
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{Name: "Data Directory Writable", Pass: true, Details: cfg.DataDir}
}

func checkPostgreSQLVersion(ctx context.Context, db *sql.DB) CheckResult {
	var version string
	if err := db.QueryRowContext(ctx, "SHOW server_version").Scan(&version); err != nil {
		return CheckResult{Name: "PostgreSQL Version", Pass: false, Error: err.Error()}
	}

	// Parse version (e.g., "17.1 (Debian 17.1-1)")
	parts := strings.Split(version, " ")
	versionNum := strings.Split(parts[0], ".")
	major, _ := strconv.Atoi(versionNum[0])

	if major < minPostgresMajor {
		return CheckResult{
			Name:       "PostgreSQL Version",
			Pass:       false,
			Error:      fmt.Sprintf("Version %s found, need ≥%d", parts[0], minPostgresMajor),
			Suggestion: fmt.Sprintf("Upgrade PostgreSQL to version %d or higher", minPostgresMajor),
		}
	}
	return CheckResult{Name: "PostgreSQL Version", Pass: true, Details: parts[0]}
}

func checkMigrations(cfg *config.Config) CheckResult {
	version, dirty, err := database.GetMigrationVersion(cfg.DatabaseURL)
	if err != nil {
		return CheckResult{
			Name:       "Database Migrations",
			Pass:       false,
			Error:      err.Error(),
			Suggestion: "Migrations run on `scalex serve` start with SCALEX_FILTER_STORE=postgres",
		}
	}
	if dirty {
		return CheckResult{
			Name:       "Database Migrations",
			Pass:       false,
			Error:      "Migration state is dirty",
			Suggestion: "Fix dirty migration state, may need manual intervention",
		}
	}
	if version != database.SchemaVersion {
		return CheckResult{
			Name:       "Database Migrations",
			Pass:       false,
			Error:      fmt.Sprintf("Migration version %d, expected %d", version, database.SchemaVersion),
			Suggestion: "Restart `scalex serve` to apply pending migrations",
		}
	}
	return CheckResult{Name: "Database Migrations", Pass: true, Details: fmt.Sprintf("v%d", version)}
}

func checkFilterTable(ctx context.Context, db *sql.DB) CheckResult {
	var rows int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM filter_state").Scan(&rows); err != nil {
		return CheckResult{
			Name:       "Filter State Table",
			Pass:       false,
			Error:      err.Error(),
			Suggestion: "Run migrations to create filter_state",
		}
	}
	return CheckResult{Name: "Filter State Table", Pass: true, Details: fmt.Sprintf("%d scopes", rows)}
}

func checkMetricTable(ctx context.Context, db *sql.DB) CheckResult {
	var rows int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM kpi_aggregate").Scan(&rows); err != nil {
		return CheckResult{
			Name:       "KPI Metrics Table",
			Pass:       false,
			Error:      err.Error(),
			Suggestion: "Run migrations to create kpi_aggregate",
		}
	}
	result := CheckResult{Name: "KPI Metrics Table", Pass: true, Details: fmt.Sprintf("%d metrics", rows)}
	if rows == 0 {
		result.Suggestion = "Load rows with: scalex metrics load"
	}
	return result
}

func runDoctor(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("✗ Configuration Error: %v\n", err)
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	results := collectChecks(ctx, cfg)

	if jsonOutput {
		outputDoctorJSON(results)
	} else {
		outputDoctorHuman(results)
	}

	for _, r := range results {
		if !r.Pass {
			os.Exit(1)
		}
	}
	return nil
}

func collectChecks(ctx context.Context, cfg *config.Config) []CheckResult {
	results := []CheckResult{checkAPIBaseURL(cfg)}

	catalog, res := checkCatalog(cfg)
	results = append(results, res)
	if catalog != nil {
		results = append(results, checkChartMappings(catalog))
		if results[0].Pass {
			results = append(results, checkPerformanceAPI(ctx, cfg, catalog))
		}
	}

	switch cfg.FilterStore {
	case config.FilterStoreFile, "":
		results = append(results, checkDataDirectory(cfg))
	case config.FilterStorePostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			results = append(results, CheckResult{
				Name:       "Database Connection",
				Pass:       false,
				Error:      err.Error(),
				Suggestion: "Verify DATABASE_URL and ensure PostgreSQL is running",
			})
			break
		}
		defer func() { _ = db.Close() }()

		results = append(results,
			CheckResult{Name: "Database Connection", Pass: true},
			checkPostgreSQLVersion(ctx, db),
			checkMigrations(cfg),
			checkFilterTable(ctx, db),
			checkMetricTable(ctx, db),
		)
	}
	return results
}

func outputDoctorHuman(results []CheckResult) {
	fmt.Println("\n🏥 Scalex Health Check")

	for _, r := range results {
		icon := "✓"
		if !r.Pass {
			icon = "✗"
		}

		fmt.Printf("%s %s", icon, r.Name)
		if r.Details != "" {
			fmt.Printf(" (%s)", r.Details)
		}
		fmt.Println()

		if !r.Pass {
			if r.Error != "" {
				fmt.Printf("  Error: %s\n", r.Error)
			}
			if r.Suggestion != "" {
				fmt.Printf("  💡 %s\n", r.Suggestion)
			}
		}
	}

	passed := 0
	for _, r := range results {
		if r.Pass {
			passed++
		}
	}

	fmt.Printf("\n%d/%d checks passed\n\n", passed, len(results))
}

func outputDoctorJSON(results []CheckResult) {
	data, _ := json.MarshalIndent(results, "", "  ")
	fmt.Println(string(data))
}

func init() {
	doctorCmd.Flags().Bool("json", false, "Output results as JSON")
	RootCmd.AddCommand(doctorCmd)
}
