package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seuros/scalex/internal/dispatch"
)

var pagesFormat string

var pagesCmd = &cobra.Command{
	Use:   "pages [--format table|json]",
	Short: "List dashboard pages and their charts",
	Long: `List the pages of the chart catalog and the charts each page shows.

Supported formats:
  table  - Human-readable table (default)
  json   - JSON array format`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		catalog, err := loadCatalog(cfg)
		if err != nil {
			return err
		}
		return writePages(cmd.OutOrStdout(), catalog, pagesFormat)
	},
}

type pageRow struct {
	Key      string   `json:"key"`
	Title    string   `json:"title"`
	Endpoint string   `json:"endpoint,omitempty"`
	Batch    bool     `json:"batch"`
	Charts   []string `json:"charts"`
}

func writePages(w io.Writer, catalog *dispatch.Catalog, format string) error {
	rows := make([]pageRow, 0)
	for _, key := range catalog.PageKeys() {
		page := catalog.Pages[key]
		row := pageRow{
			Key:      string(key),
			Title:    page.Title,
			Endpoint: page.Endpoint,
			Batch:    page.Batch,
		}
		for _, id := range page.Charts {
			row.Charts = append(row.Charts, string(id))
		}
		rows = append(rows, row)
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "PAGE\tTITLE\tCHARTS\tENDPOINT")
		for _, r := range rows {
			endpoint := r.Endpoint
			if endpoint == "" {
				endpoint = "-"
			}
			if r.Batch {
				endpoint += " (batch)"
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.Key, r.Title, len(r.Charts), endpoint)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format %q (want table or json)", format)
	}
}

func init() {
	pagesCmd.Flags().StringVar(&pagesFormat, "format", "table", "Output format: table or json")
}
