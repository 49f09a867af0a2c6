//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"fmt"

	"github.com/oshokin/conda-rpms/internal/config"
	"github.com/oshokin/conda-rpms/internal/logger"
)

// LoadSettings loads the configuration and applies its log level.
// A non-empty levelOverride, usually from a CLI flag, wins over the configured level.
func LoadSettings(ctx context.Context, path, levelOverride string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if levelOverride != "" {
		cfg.LogLevel = levelOverride
	}

	level, ok := logger.ParseLogLevel(cfg.LogLevel)
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}

	logger.SetLevel(level)
	logger.DebugKV(ctx, "Settings loaded",
		"namespace", cfg.Namespace,
		"install_prefix", cfg.InstallPrefix,
		"pkgs_dirs", cfg.PkgsDirs,
	)

	return cfg, nil
}
