package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/oshokin/conda-rpms/internal/command"
	"github.com/oshokin/conda-rpms/internal/config"
	"github.com/oshokin/conda-rpms/internal/domain/rpm"
	"github.com/oshokin/conda-rpms/internal/logger"
	"github.com/oshokin/conda-rpms/internal/service/common"
)

// Options contains inputs for the build entry point.
type Options struct {
	// ConfigPath is an optional path to the settings file.
	ConfigPath string
	// LogLevel overrides the configured log level when set.
	LogLevel string
	// BuildRoot is the rpmbuild topdir holding SPECS and SOURCES.
	BuildRoot string
	// RPMDir is where already built RPMs are looked up.
	RPMDir string
}

// Result lists what a build pass did, as spec paths.
type Result struct {
	Built   []string
	Skipped []string
}

// builder runs the build tool for specs that have no artifact yet.
// It is unexported; callers use Run.
type builder struct {
	// cfg provides the architecture, package format and build tool.
	cfg *config.Config
	// runner starts the build tool.
	runner command.Runner
}

// errNoSpecsDir indicates a build root without a SPECS directory.
var errNoSpecsDir = errors.New("build root has no " + rpm.SpecsDir + " directory")

// Run builds every spec of the build root whose RPM is missing from the RPM directory.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "conda-rpms-build")

	cfg, err := common.LoadSettings(ctx, opts.ConfigPath, opts.LogLevel)
	if err != nil {
		return err
	}

	b := &builder{
		cfg:    cfg,
		runner: command.NewExecRunner(),
	}

	result, err := b.buildMissing(ctx, opts.BuildRoot, opts.RPMDir)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	logger.InfoKV(ctx, "Build completed", "built", len(result.Built), "skipped", len(result.Skipped))

	return nil
}

// buildMissing relies on the spec naming contract to decide whether an RPM already exists.
func (b *builder) buildMissing(ctx context.Context, buildRoot, rpmDir string) (*Result, error) {
	root, err := filepath.Abs(buildRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve build root: %w", err)
	}

	specsDir := filepath.Join(root, rpm.SpecsDir)
	if info, statErr := os.Stat(specsDir); statErr != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", root, errNoSpecsDir)
	}

	release, err := common.AcquireMarker(ctx, root)
	if err != nil {
		return nil, err
	}
	defer release()

	specs, err := filepath.Glob(filepath.Join(specsDir, "*"+rpm.SpecExtension))
	if err != nil {
		return nil, fmt.Errorf("list specs: %w", err)
	}

	sort.Strings(specs)

	result := new(Result)

	for _, spec := range specs {
		nvr, err := readSpecNVR(spec)
		if err != nil {
			return nil, err
		}

		artifact := nvr.ArtifactPath(rpmDir, b.cfg.Arch, b.cfg.PackageFormat)

		exists, err := fileExists(artifact)
		if err != nil {
			return nil, err
		}

		if exists {
			logger.InfoKV(ctx, "RPM already exists, skipping", "rpm", artifact)
			result.Skipped = append(result.Skipped, spec)

			continue
		}

		logger.InfoKV(ctx, "Building spec", "spec", spec, "rpm", artifact)

		if err = b.runner.Stream(ctx, b.cfg.Tools.Build, buildArgs(root, spec)...); err != nil {
			return nil, fmt.Errorf("build %s: %w", filepath.Base(spec), err)
		}

		result.Built = append(result.Built, spec)
	}

	return result, nil
}

// buildArgs returns the build tool arguments for one spec.
func buildArgs(topdir, spec string) []string {
	return []string{
		"-bb",
		"--define", "_topdir " + topdir,
		spec,
		"--force",
	}
}

func readSpecNVR(spec string) (rpm.NVR, error) {
	f, err := os.Open(filepath.Clean(spec))
	if err != nil {
		return rpm.NVR{}, fmt.Errorf("open spec: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	nvr, err := rpm.ReadNVR(f)
	if err != nil {
		return rpm.NVR{}, fmt.Errorf("%s: %w", spec, err)
	}

	return nvr, nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	return false, fmt.Errorf("stat %s: %w", path, err)
}
