package generate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/conda-rpms/internal/archive"
	"github.com/oshokin/conda-rpms/internal/config"
	"github.com/oshokin/conda-rpms/internal/domain/conda"
	"github.com/oshokin/conda-rpms/internal/domain/rpm"
	"github.com/oshokin/conda-rpms/internal/lockfile"
	"github.com/oshokin/conda-rpms/internal/logger"
	"github.com/oshokin/conda-rpms/internal/repository/pkgcache"
	"github.com/oshokin/conda-rpms/internal/service/common"
)

const (
	// DefaultOutputDir is the rpmbuild topdir written when none is given.
	DefaultOutputDir = "rpmbuild"
	// EnvironmentVersion is the RPM version of the environment meta-package.
	EnvironmentVersion = "1.0"

	pythonPackage = "python"

	dirFileMode os.FileMode = 0o755
)

// Options contains inputs for the generate entry point.
type Options struct {
	// ConfigPath is an optional path to the settings file.
	ConfigPath string
	// LogLevel overrides the configured log level when set.
	LogLevel string
	// LockfilePath is the explicit conda lockfile to package.
	LockfilePath string
	// Name is the environment name.
	Name string
	// OutputDir is the rpmbuild topdir receiving SPECS and SOURCES.
	OutputDir string
	// Namespace overrides the configured RPM namespace when set.
	Namespace string
	// InstallPrefix overrides the configured install prefix when set.
	InstallPrefix string
	// NoOverwrite refuses to replace differing package and environment specs.
	NoOverwrite bool
}

// Result lists the files a generate pass produced.
type Result struct {
	Specs   []string
	Sources []string
}

// generator renders the specs of one environment into an rpmbuild topdir.
type generator struct {
	cfg  *config.Config
	repo pkgcache.Repository
}

// source is a package whose archive goes into SOURCES.
type source struct {
	pkg     *conda.Package
	tarball string
}

var (
	// errInvalidName is returned for environment names that cannot be part of a path or RPM name.
	errInvalidName = errors.New("environment name must be non-empty and must not contain '/' or whitespace")
	// errNoPython is returned when the installer python version cannot be determined.
	errNoPython = errors.New("no python version for the installer: set installer.python_version or add python to the lockfile")
)

// Run turns an explicit lockfile into package, installer and environment specs.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "conda-rpms-generate")

	cfg, err := common.LoadSettings(ctx, opts.ConfigPath, opts.LogLevel)
	if err != nil {
		return err
	}

	if opts.Namespace != "" {
		cfg.Namespace = opts.Namespace
	}

	if opts.InstallPrefix != "" {
		cfg.InstallPrefix = opts.InstallPrefix
	}

	if err = config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	g := &generator{
		cfg:  cfg,
		repo: pkgcache.NewFileRepository(cfg.PkgsDirs...),
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}

	result, err := g.generate(ctx, opts.LockfilePath, opts.Name, outputDir, !opts.NoOverwrite)
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}

	logger.InfoKV(ctx, "Generate completed", "specs", len(result.Specs), "sources", len(result.Sources))

	return nil
}

func (g *generator) generate(ctx context.Context, lockfilePath, envName, outputDir string, overwrite bool) (*Result, error) {
	if envName == "" || strings.ContainsAny(envName, "/ \t\n") {
		return nil, fmt.Errorf("%q: %w", envName, errInvalidName)
	}

	urls, err := lockfile.ReadFile(lockfilePath)
	if err != nil {
		return nil, err
	}

	var (
		sourcesDir = filepath.Join(outputDir, rpm.SourcesDir)
		specsDir   = filepath.Join(outputDir, rpm.SpecsDir)
	)

	for _, dir := range []string{outputDir, sourcesDir, specsDir} {
		if err = os.MkdirAll(dir, dirFileMode); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	logger.InfoKV(ctx, "Generating RPM environment", "lockfile", lockfilePath, "packages", len(urls))

	pkgs, pythonVersion, err := g.resolvePackages(ctx, urls)
	if err != nil {
		return nil, err
	}

	result := new(Result)

	logger.Info(ctx, "Rendering package specs")

	sources := make([]source, 0, len(pkgs)+1)

	for _, pkg := range pkgs {
		spec, tarball, err := g.writePackage(ctx, pkg, specsDir, overwrite)
		if err != nil {
			return nil, err
		}

		result.Specs = append(result.Specs, spec)
		sources = append(sources, source{pkg: pkg, tarball: tarball})
	}

	logger.Info(ctx, "Rendering installer")

	installerSpec, installer, err := g.writeInstaller(ctx, pythonVersion, specsDir, sourcesDir)
	if err != nil {
		return nil, err
	}

	result.Specs = append(result.Specs, installerSpec)
	result.Sources = append(result.Sources, filepath.Join(sourcesDir, InstallScriptName))
	sources = append(sources, installer)

	logger.Info(ctx, "Copying sources")

	copied := make(map[string]struct{}, len(sources))

	for _, src := range sources {
		// Templates reference archives by package identity.
		dst := filepath.Join(sourcesDir, src.pkg.ID()+conda.FormatTarBz2)
		if _, ok := copied[dst]; ok {
			continue
		}

		if err = copySource(ctx, src.tarball, dst); err != nil {
			return nil, err
		}

		copied[dst] = struct{}{}
		result.Sources = append(result.Sources, dst)
	}

	env := &conda.Environment{Name: envName, Version: EnvironmentVersion}

	content, err := RenderEnvironmentSpec(env, pkgs, g.cfg.InstallPrefix, g.cfg.Namespace)
	if err != nil {
		return nil, err
	}

	envSpec := filepath.Join(specsDir, rpm.EnvironmentSpecFilename(g.cfg.Namespace, env.ID()))
	if err = WriteSpec(ctx, content, envSpec, overwrite); err != nil {
		return nil, err
	}

	result.Specs = append(result.Specs, envSpec)

	return result, nil
}

// resolvePackages looks every lockfile URL up in the package cache.
// It also returns the version of the python package, if the lockfile has one.
func (g *generator) resolvePackages(ctx context.Context, urls []string) ([]*conda.Package, string, error) {
	logger.Info(ctx, "Checking conda cache for packages")

	var (
		pkgs          = make([]*conda.Package, 0, len(urls))
		pythonVersion string
	)

	for _, url := range urls {
		ref, err := conda.ParseReference(url)
		if err != nil {
			return nil, "", err
		}

		pkg, err := pkgcache.ResolveURL(ctx, g.repo, url)
		if err != nil {
			return nil, "", err
		}

		if g.cfg.VerifyChecksums {
			if err = pkgcache.VerifyChecksum(ctx, pkg); err != nil {
				return nil, "", err
			}
		}

		if ref.Name == pythonPackage {
			pythonVersion = ref.Version
		}

		logger.DebugKV(ctx, "Package resolved", "package", pkg.ID(), "dir", pkg.ExtractedDir)

		pkgs = append(pkgs, pkg)
	}

	return pkgs, pythonVersion, nil
}

func (g *generator) writePackage(ctx context.Context, pkg *conda.Package, specsDir string, overwrite bool) (string, string, error) {
	content, err := RenderPackageSpec(pkg.ExtractedDir, g.cfg.Namespace, g.cfg.InstallPrefix)
	if err != nil {
		return "", "", fmt.Errorf("render %s: %w", pkg.ID(), err)
	}

	spec := filepath.Join(specsDir, rpm.PackageSpecFilename(g.cfg.Namespace, pkg.ID()))
	if err = WriteSpec(ctx, content, spec, overwrite); err != nil {
		return "", "", err
	}

	tarball, err := archive.Materialize(ctx, pkg)
	if err != nil {
		return "", "", err
	}

	return spec, tarball, nil
}

// writeInstaller writes the installer spec, which is never overwritten, and stages the install script.
func (g *generator) writeInstaller(ctx context.Context, lockedPython, specsDir, sourcesDir string) (string, source, error) {
	version := g.cfg.Installer.PythonVersion
	if version == "" {
		version = lockedPython
	}

	if version == "" {
		return "", source{}, errNoPython
	}

	python, err := pkgcache.ResolveSpec(ctx, g.repo, pythonPackage, version)
	if err != nil {
		return "", source{}, fmt.Errorf("resolve installer python: %w", err)
	}

	content, err := RenderInstallerSpec(python, g.cfg.InstallPrefix, g.cfg.Namespace)
	if err != nil {
		return "", source{}, err
	}

	spec := filepath.Join(specsDir, rpm.InstallerSpecFilename(g.cfg.Namespace))
	if err = WriteSpec(ctx, content, spec, false); err != nil {
		return "", source{}, err
	}

	tarball, err := archive.Materialize(ctx, python)
	if err != nil {
		return "", source{}, err
	}

	if err = writeInstallScript(ctx, sourcesDir); err != nil {
		return "", source{}, err
	}

	return spec, source{pkg: python, tarball: tarball}, nil
}
