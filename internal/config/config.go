package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/oshokin/conda-rpms/internal/domain/rpm"
	"github.com/oshokin/conda-rpms/internal/logger"
)

// Config holds the settings shared by the conda-rpms binaries.
type Config struct {
	// Namespace prefixes every produced RPM name.
	Namespace string `mapstructure:"namespace"`
	// InstallPrefix is where the RPMs install packages and environments on the host.
	InstallPrefix string `mapstructure:"install_prefix"`
	// Arch is the architecture subfolder rpmbuild writes packages into.
	Arch string `mapstructure:"arch"`
	// PackageFormat is the artifact file extension produced by the build tool.
	PackageFormat string `mapstructure:"package_format"`
	// PkgsDirs lists the conda package cache directories to search, in order.
	PkgsDirs []string `mapstructure:"pkgs_dirs"`
	// VerifyChecksums enables md5 verification of cached archives.
	VerifyChecksums bool `mapstructure:"verify_checksums"`
	// LogLevel is the minimum log level, e.g. "info" or "debug".
	LogLevel string `mapstructure:"log_level"`
	// Installer configures the installer meta-package.
	Installer Installer `mapstructure:"installer"`
	// Tools names the external programs invoked by the drivers.
	Tools Tools `mapstructure:"tools"`
}

// Installer configures the installer meta-package.
type Installer struct {
	// PythonVersion pins the python package bundled with the installer.
	// When empty, the python package of the lockfile is used.
	PythonVersion string `mapstructure:"python_version"`
}

// Tools names the external programs invoked by the drivers.
type Tools struct {
	// Build is the package build tool, rpmbuild by default.
	Build string `mapstructure:"build"`
	// Query lists package dependencies, rpm by default.
	Query string `mapstructure:"query"`
	// Sign signs packages, rpmsign by default.
	Sign string `mapstructure:"sign"`
	// SignArgs are extra shell-quoted arguments passed to the signing tool.
	SignArgs string `mapstructure:"sign_args"`
}

const (
	// DefaultConfigName is the config file looked up in the working directory.
	DefaultConfigName = "conda-rpms"
	// DefaultConfigType is the format of the config file.
	DefaultConfigType = "yaml"
	// EnvPrefix prefixes environment variable overrides, e.g. CONDA_RPMS_TOOLS_BUILD.
	EnvPrefix = "CONDA_RPMS"

	// DefaultInstallPrefix is where RPMs install conda packages.
	DefaultInstallPrefix = "/opt/conda-dist"
	// DefaultLogLevel is the default minimum log level.
	DefaultLogLevel = "info"
	// DefaultBuildTool builds RPMs from specs.
	DefaultBuildTool = "rpmbuild"
	// DefaultQueryTool queries RPM dependencies.
	DefaultQueryTool = "rpm"
	// DefaultSignTool signs RPMs.
	DefaultSignTool = "rpmsign"

	// condaPkgsDirsEnv is the variable conda itself reads cache locations from.
	condaPkgsDirsEnv = "CONDA_PKGS_DIRS"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errInvalidNamespace is returned for namespaces that cannot prefix RPM names.
	errInvalidNamespace = errors.New("namespace must be non-empty and must not contain '-' or whitespace")
	// errRelativePrefix is returned when the install prefix is not absolute.
	errRelativePrefix = errors.New("install prefix must be an absolute path")
	// errUnknownLogLevel is returned for unparsable log levels.
	errUnknownLogLevel = errors.New("unknown log level")
)

// Load reads settings from path, CONDA_RPMS_* environment variables and defaults.
// An empty path looks for conda-rpms.yaml in the working directory and
// tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType(DefaultConfigType)
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(filepath.Clean(path))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read settings: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers every key so environment overrides apply on Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("namespace", rpm.DefaultNamespace)
	v.SetDefault("install_prefix", DefaultInstallPrefix)
	v.SetDefault("arch", rpm.DefaultArch)
	v.SetDefault("package_format", rpm.DefaultFormat)
	v.SetDefault("pkgs_dirs", []string{})
	v.SetDefault("verify_checksums", false)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("installer.python_version", "")
	v.SetDefault("tools.build", DefaultBuildTool)
	v.SetDefault("tools.query", DefaultQueryTool)
	v.SetDefault("tools.sign", DefaultSignTool)
	v.SetDefault("tools.sign_args", "")
}

// Validate checks the provided settings and fills the empty ones with defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.Namespace == "" {
		cfg.Namespace = rpm.DefaultNamespace
	}

	if strings.ContainsAny(cfg.Namespace, "- \t\n") {
		return fmt.Errorf("%q: %w", cfg.Namespace, errInvalidNamespace)
	}

	if cfg.InstallPrefix == "" {
		cfg.InstallPrefix = DefaultInstallPrefix
	}

	if !filepath.IsAbs(cfg.InstallPrefix) {
		return fmt.Errorf("%q: %w", cfg.InstallPrefix, errRelativePrefix)
	}

	cfg.InstallPrefix = filepath.Clean(cfg.InstallPrefix)

	if cfg.Arch == "" {
		cfg.Arch = rpm.DefaultArch
	}

	if cfg.PackageFormat == "" {
		cfg.PackageFormat = rpm.DefaultFormat
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("%q: %w", cfg.LogLevel, errUnknownLogLevel)
	}

	if len(cfg.PkgsDirs) == 0 {
		cfg.PkgsDirs = DefaultPkgsDirs()
	}

	if cfg.Tools.Build == "" {
		cfg.Tools.Build = DefaultBuildTool
	}

	if cfg.Tools.Query == "" {
		cfg.Tools.Query = DefaultQueryTool
	}

	if cfg.Tools.Sign == "" {
		cfg.Tools.Sign = DefaultSignTool
	}

	return nil
}

// DefaultPkgsDirs mirrors conda's own lookup: CONDA_PKGS_DIRS when set,
// otherwise the active installation's pkgs dir followed by the user cache.
func DefaultPkgsDirs() []string {
	if value := os.Getenv(condaPkgsDirsEnv); value != "" {
		var dirs []string

		for dir := range strings.SplitSeq(value, ",") {
			if dir = strings.TrimSpace(dir); dir != "" {
				dirs = append(dirs, dir)
			}
		}

		return dirs
	}

	var dirs []string

	if prefix := os.Getenv("CONDA_ROOT"); prefix != "" {
		dirs = append(dirs, filepath.Join(prefix, "pkgs"))
	} else if prefix = os.Getenv("CONDA_PREFIX"); prefix != "" {
		dirs = append(dirs, filepath.Join(prefix, "pkgs"))
	}

	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".conda", "pkgs"))
	}

	return dirs
}
