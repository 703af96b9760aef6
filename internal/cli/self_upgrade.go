package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	goruntime "runtime"
	"strings"

	"github.com/blang/semver"
	"github.com/rhysd/go-github-selfupdate/selfupdate"
	"github.com/spf13/cobra"
)

const releaseRepo = "seuros/scalex"

var (
	selfUpgradeRequested bool
	selfUpgradeCheckOnly bool
	selfUpgradeAutoYes   bool
)

// Release lookups, replaced in tests.
var (
	detectLatest = selfupdate.DetectLatest
	updateTo     = selfupdate.UpdateTo
)

func setupSelfUpgrade() {
	RootCmd.PersistentFlags().BoolVar(&selfUpgradeRequested, "self-upgrade", false, "Upgrade Scalex to the latest release and exit")
	RootCmd.PersistentFlags().BoolVar(&selfUpgradeCheckOnly, "self-upgrade-check", false, "Only check whether a newer Scalex release is available")
	RootCmd.PersistentFlags().BoolVar(&selfUpgradeAutoYes, "self-upgrade-yes", false, "Skip confirmation prompts when running --self-upgrade")

	existingPreRun := RootCmd.PersistentPreRunE
	RootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if existingPreRun != nil {
			if err := existingPreRun(cmd, args); err != nil {
				return err
			}
		}
		if !selfUpgradeRequested && !selfUpgradeCheckOnly {
			return nil
		}
		if err := runSelfUpgrade(cmd.OutOrStdout(), cmd.InOrStdin(), selfUpgradeCheckOnly, selfUpgradeAutoYes); err != nil {
			return err
		}
		os.Exit(0)
		return nil
	}
}

// runSelfUpgrade compares the running version with the latest release and
// replaces the executable when a newer one exists.
func runSelfUpgrade(out io.Writer, in io.Reader, checkOnly, autoYes bool) error {
	versionStr := strings.TrimSpace(strings.TrimPrefix(Version, "v"))
	if versionStr == "" || versionStr == "dev" {
		return errors.New("self-upgrade is only available for release builds")
	}

	current, err := semver.Parse(versionStr)
	if err != nil {
		return fmt.Errorf("invalid current version %q: %w", Version, err)
	}

	_, _ = fmt.Fprintf(out, "Current version: v%s\n", current)
	latest, found, err := detectLatest(releaseRepo)
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}
	if !found || latest == nil {
		return errors.New("no releases found for Scalex")
	}
	_, _ = fmt.Fprintf(out, "Latest release:  v%s\n", latest.Version)

	if !latest.Version.GT(current) {
		_, _ = fmt.Fprintln(out, "Scalex is already up to date")
		return nil
	}
	if checkOnly {
		_, _ = fmt.Fprintf(out, "Upgrade available: v%s --> v%s\n", current, latest.Version)
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to determine executable path: %w", err)
	}

	_, _ = fmt.Fprintf(out, "\n  * Current exe: %q\n  * Target OS/Arch: %s/%s\n", exe, goruntime.GOOS, goruntime.GOARCH)
	if latest.AssetURL != "" {
		_, _ = fmt.Fprintf(out, "  * Download URL: %s\n", latest.AssetURL)
	}

	if !autoYes && !confirm(out, in, "Replace the current binary with the new release? [Y/n] ") {
		_, _ = fmt.Fprintln(out, "Update cancelled.")
		return nil
	}

	if err := updateTo(latest.AssetURL, exe); err != nil {
		return fmt.Errorf("self-upgrade failed: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Updated Scalex to v%s\n", latest.Version)
	return nil
}

func confirm(out io.Writer, in io.Reader, prompt string) bool {
	_, _ = fmt.Fprint(out, prompt)
	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && response == "" {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "" || response == "y" || response == "yes"
}
