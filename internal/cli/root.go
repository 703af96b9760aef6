package cli

import (
	"github.com/spf13/cobra"

	"github.com/seuros/scalex/internal/config"
)

var Version string

// flagOverrides is filled by the persistent flags and applied on top of the
// config file and environment.
var flagOverrides config.Overrides

// RootCmd represents the root command
var RootCmd = &cobra.Command{
	Use:   "scalex",
	Short: "Performance dashboard chart sessions",
	Long: `Scalex - performance dashboard chart sessions.

Scalex keeps the charts of a dashboard page in sync with the shared filter
state. It fetches chart data from the performance API, draws every chart in
connected browsers and mirrors a chart into a modal for detail views.`,
	Version: Version,
	// Default to serve command if no subcommand provided
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return runServe(cmd, args)
		}
		return cmd.Help()
	},
}

// Execute is called by main
func Execute(version string) error {
	Version = version
	RootCmd.Version = version
	return RootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	return config.LoadWithOverrides(flagOverrides)
}

func init() {
	flags := RootCmd.PersistentFlags()
	flags.StringVar(&flagOverrides.Port, "port", "", "Server port (default 3000)")
	flags.StringVar(&flagOverrides.APIBaseURL, "api-base-url", "", "Performance API base URL")
	flags.StringVar(&flagOverrides.DataDir, "data-dir", "", "Directory for the file filter store")
	flags.StringVar(&flagOverrides.DatabaseURL, "database-url", "", "PostgreSQL connection string")
	flags.StringVar(&flagOverrides.FilterStore, "filter-store", "", "Filter store backend: memory, file or postgres")
	flags.StringVar(&flagOverrides.CatalogPath, "catalog", "", "Chart catalog YAML (default: embedded catalog)")

	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(mockAPICmd)
	RootCmd.AddCommand(pagesCmd)
	RootCmd.AddCommand(renderCmd)
	RootCmd.AddCommand(exportCmd)
	RootCmd.AddCommand(metricsCmd)

	setupSelfUpgrade()

	RootCmd.Version = Version
}
