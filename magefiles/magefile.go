//go:build mage

// Package main provides build targets for the conda-rpms project using Mage.
//
// Usage:
//
//	mage build    Compile the conda-rpms binaries to bin/
//	mage test     Run all tests
//	mage lint     Run golangci-lint
//	mage clean    Remove build artifacts
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binGit     = "git"
	binLint    = "golangci-lint"
	binaryDir  = "bin"
	versionPkg = "github.com/oshokin/conda-rpms/internal/version"
)

// binaries are built from ./cmd/<name>.
var binaries = []string{
	"conda-rpms-generate",
	"conda-rpms-build",
	"conda-rpms-sign",
}

// Build compiles every binary to bin/ with version information embedded.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}

	ldflags := versionFlags()

	for _, name := range binaries {
		err := sh.RunV(binGo, "build", "-ldflags", ldflags,
			"-o", filepath.Join(binaryDir, name), "./cmd/"+name)
		if err != nil {
			return fmt.Errorf("build %s: %w", name, err)
		}
	}

	return nil
}

// Test runs all tests.
func Test() error {
	return sh.RunV(binGo, "test", "./...")
}

// Check runs lint and tests.
func Check() {
	mg.SerialDeps(Lint, Test)
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV(binLint, "run", "./...")
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}

	return sh.RunV(binGo, "clean")
}

// versionFlags injects the commit and build time; the commit is "none" outside a git checkout.
func versionFlags() string {
	commit := "none"
	if out, err := sh.Output(binGit, "rev-parse", "--short", "HEAD"); err == nil && out != "" {
		commit = strings.TrimSpace(out)
	}

	return strings.Join([]string{
		"-X", versionPkg + ".Commit=" + commit,
		"-X", versionPkg + ".BuildTime=" + time.Now().UTC().Format(time.RFC3339),
	}, " ")
}
