package main

import (
	_ "embed"
	"strings"

	"github.com/seuros/scalex/internal/cli"
	"github.com/seuros/scalex/internal/logging"
)

//go:embed VERSION
var versionFile string

var executeCLI = cli.Execute

func run() error {
	return executeCLI(strings.TrimSpace(versionFile))
}

func main() {
	if err := run(); err != nil {
		logging.Fatal("scalex execution failed", "error", err)
	}
}
