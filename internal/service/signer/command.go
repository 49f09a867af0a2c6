package signer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/oshokin/conda-rpms/internal/command"
	"github.com/oshokin/conda-rpms/internal/config"
	"github.com/oshokin/conda-rpms/internal/domain/rpm"
	"github.com/oshokin/conda-rpms/internal/logger"
	"github.com/oshokin/conda-rpms/internal/service/common"
)

// Options contains inputs for the signing entry point.
type Options struct {
	// ConfigPath is an optional path to the settings file.
	ConfigPath string
	// LogLevel overrides the configured log level when set.
	LogLevel string
	// ArtifactPath is the RPM to sign.
	ArtifactPath string
	// IncludeDependencies also signs the namespaced RPMs the artifact requires.
	IncludeDependencies bool
	// ExtraArgs are appended to the configured signing arguments.
	ExtraArgs []string
}

// signer queries and signs RPMs with the configured tools.
type signer struct {
	cfg    *config.Config
	runner command.Runner
}

// errNotFile indicates an artifact path that is not a regular file.
var errNotFile = errors.New("artifact is not a regular file")

// Run signs the artifact and, unless disabled, its dependencies found in the same directory.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "conda-rpms-sign")

	cfg, err := common.LoadSettings(ctx, opts.ConfigPath, opts.LogLevel)
	if err != nil {
		return err
	}

	args, err := command.SplitArgs(cfg.Tools.SignArgs)
	if err != nil {
		return fmt.Errorf("parse sign arguments: %w", err)
	}

	args = append(args, opts.ExtraArgs...)

	s := &signer{
		cfg:    cfg,
		runner: command.NewExecRunner(),
	}

	signed, err := s.sign(ctx, opts.ArtifactPath, opts.IncludeDependencies, args...)
	if err != nil {
		return fmt.Errorf("sign failed: %w", err)
	}

	logger.InfoKV(ctx, "Signing completed", "signed", len(signed))

	return nil
}

// findDependencies lists the requirements of artifact that share its namespace.
// Each entry is the first field of a line printed by the query tool.
func (s *signer) findDependencies(ctx context.Context, artifact string) ([]string, error) {
	namespace := rpm.NamespaceOf(artifact)

	result, err := s.runner.Output(ctx, s.cfg.Tools.Query, "-qpR", artifact)
	if err != nil {
		return nil, fmt.Errorf("query dependencies of %s: %w", filepath.Base(artifact), err)
	}

	var deps []string

	for line := range strings.Lines(string(result.Stdout)) {
		if !strings.HasPrefix(line, namespace) {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		deps = append(deps, fields[0])
	}

	logger.DebugKV(ctx, "Dependencies found", "rpm", filepath.Base(artifact), "dependencies", deps)

	return deps, nil
}

// sign signs artifact and returns every signed file in signing order.
func (s *signer) sign(ctx context.Context, artifact string, includeDeps bool, args ...string) ([]string, error) {
	artifact, err := filepath.Abs(artifact)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact: %w", err)
	}

	info, err := os.Stat(artifact)
	if err != nil {
		return nil, fmt.Errorf("stat artifact: %w", err)
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", artifact, errNotFile)
	}

	files := []string{artifact}

	if includeDeps {
		siblings, err := s.dependencyFiles(ctx, artifact)
		if err != nil {
			return nil, err
		}

		files = append(files, siblings...)
	}

	for _, file := range files {
		if err = s.signFile(ctx, file, args...); err != nil {
			return nil, err
		}
	}

	return files, nil
}

// dependencyFiles resolves dependency names to RPM files next to artifact.
func (s *signer) dependencyFiles(ctx context.Context, artifact string) ([]string, error) {
	deps, err := s.findDependencies(ctx, artifact)
	if err != nil {
		return nil, err
	}

	var (
		dir   = filepath.Dir(artifact)
		seen  = map[string]struct{}{artifact: {}}
		files []string
	)

	for _, dep := range deps {
		matches, err := filepath.Glob(filepath.Join(dir, dep+"*."+s.cfg.PackageFormat))
		if err != nil {
			return nil, fmt.Errorf("match dependency %s: %w", dep, err)
		}

		if len(matches) == 0 {
			logger.WarnKV(ctx, "No RPM found for dependency", "dependency", dep, "dir", dir)
			continue
		}

		slices.Sort(matches)

		for _, match := range matches {
			if _, ok := seen[match]; ok {
				continue
			}

			seen[match] = struct{}{}
			files = append(files, match)
		}
	}

	return files, nil
}

func (s *signer) signFile(ctx context.Context, file string, args ...string) error {
	logger.Infof(ctx, "Signing %s", filepath.Base(file))

	cmdArgs := append([]string{"--addsign"}, args...)
	cmdArgs = append(cmdArgs, file)

	result, err := s.runner.Output(ctx, s.cfg.Tools.Sign, cmdArgs...)
	if result != nil {
		if out := strings.TrimSpace(string(result.Stdout)); out != "" {
			logger.Debug(ctx, out)
		}

		if out := strings.TrimSpace(string(result.Stderr)); out != "" {
			logger.Debug(ctx, out)
		}
	}

	if err != nil {
		return fmt.Errorf("sign %s: %w", filepath.Base(file), err)
	}

	return nil
}
