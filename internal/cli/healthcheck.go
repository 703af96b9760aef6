package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"
)

var (
	healthcheckURL     string
	healthcheckTimeout time.Duration
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that a running scalex server is up",
	Long: `Requests /up on a running server and exits non-zero unless it answers 200.
The check fails when the configured filter store is unreachable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		target := healthcheckURL
		if target == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			target = fmt.Sprintf("http://localhost:%s/up", cfg.Port)
		}
		return checkUp(cmd.ErrOrStderr(), target, healthcheckTimeout)
	},
}

func checkUp(w io.Writer, target string, timeout time.Duration) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(target)
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := fasthttp.DoTimeout(req, resp, timeout); err != nil {
		fmt.Fprintf(w, "scalex is not answering on %s: %v\n", target, err)
		return fmt.Errorf("healthcheck: %w", err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		fmt.Fprintf(w, "scalex answered %d: %s\n", code, resp.Body())
		return fmt.Errorf("healthcheck: status %d", code)
	}
	return nil
}

func init() {
	healthcheckCmd.Flags().StringVar(&healthcheckURL, "url", "", "Full /up URL (default http://localhost:<port>/up)")
	healthcheckCmd.Flags().DurationVar(&healthcheckTimeout, "timeout", 2*time.Second, "Request timeout")
	RootCmd.AddCommand(healthcheckCmd)
}
