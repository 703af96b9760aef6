//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const binary = "scalex"

var releaseTargets = [][2]string{
	{"linux", "amd64"},
	{"linux", "arm64"},
	{"darwin", "arm64"},
}

// Build cross-compiles release binaries with the Green Tea GC experiment
func Build() error {
	for _, target := range releaseTargets {
		out := fmt.Sprintf("%s-%s-%s", binary, target[0], target[1])
		fmt.Println("->", out)
		env := map[string]string{
			"GOOS":         target[0],
			"GOARCH":       target[1],
			"CGO_ENABLED":  "0",
			"GOEXPERIMENT": "greenteagc",
		}
		if err := sh.RunWith(env, "go", "build", "-trimpath", "-o", out, "./cmd/scalex"); err != nil {
			return err
		}
	}
	return nil
}

// BuildLocal builds Scalex for current platform
func BuildLocal() error {
	fmt.Printf("Building Scalex for %s/%s...\n", runtime.GOOS, runtime.GOARCH)
	return sh.Run("go", "build", "-o", binary, "./cmd/scalex")
}

// Test runs tests with the race detector
func Test() error {
	fmt.Println("Running tests...")
	return sh.Run("go", "test", "-race", "./...")
}

// Dev runs the fixture API and the dashboard server against it
func Dev() error {
	mg.Deps(BuildLocal)
	errs := make(chan error, 2)
	go func() {
		errs <- sh.RunV("./"+binary, "mock-api", "--listen", "8000", "--latency", "250ms")
	}()
	go func() {
		env := map[string]string{
			"SCALEX_API_BASE_URL": "http://localhost:8000",
			"SCALEX_FILTER_STORE": "memory",
		}
		errs <- sh.RunWithV(env, "./"+binary, "serve")
	}()
	return <-errs
}

// Clean removes the local binary and every release binary
func Clean() error {
	matches, err := filepath.Glob(binary + "-*-*")
	if err != nil {
		return err
	}
	for _, path := range append(matches, binary) {
		if err := sh.Rm(path); err != nil {
			return err
		}
	}
	return nil
}

// Update upgrades all Go dependencies
func Update() error {
	fmt.Println("Updating dependencies...")
	if err := sh.Run("go", "get", "-u", "./..."); err != nil {
		return err
	}
	return sh.Run("go", "mod", "tidy")
}

// Fmt runs gofmt on all Go files
func Fmt() error {
	fmt.Println("Formatting code...")
	return sh.Run("go", "fmt", "./...")
}

// Vet runs go vet on all Go files
func Vet() error {
	fmt.Println("Vetting code...")
	return sh.Run("go", "vet", "./...")
}

// Cover writes coverage.out and prints the per-function summary
func Cover() error {
	if err := sh.Run("go", "test", "-coverprofile=coverage.out", "./internal/..."); err != nil {
		return err
	}
	return sh.RunV("go", "tool", "cover", "-func=coverage.out")
}

// Deps downloads dependencies
func Deps() error {
	fmt.Println("Downloading dependencies...")
	return sh.Run("go", "mod", "download")
}

// CI runs all checks for continuous integration
func CI() error {
	mg.SerialDeps(Deps, Fmt, Vet, Test)
	_, err := fmt.Fprintln(os.Stdout, "ci: ok")
	return err
}
