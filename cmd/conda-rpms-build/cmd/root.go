package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/conda-rpms/internal/service/builder"
	"github.com/oshokin/conda-rpms/internal/version"
)

var (
	// configPath to the optional configuration YAML file.
	configPath string
	// logLevel overrides the configured log level.
	logLevel string

	// rootCmd represents the base command for building RPMs.
	rootCmd = &cobra.Command{
		Use:   "conda-rpms-build <rpmbuild-dir> <rpm-dir>",
		Short: "Build the RPMs of every spec that has not been built yet.",
		Long: `Runs the RPM build tool for every spec in <rpmbuild-dir>/SPECS whose package
is missing from <rpm-dir>/<arch>. The expected file name is derived from the
Name, Version and Release lines of each spec.

Only one build may use an rpmbuild directory at a time.`,
		Args: cobra.ExactArgs(2), //nolint:mnd // Build root and RPM directory.
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &builder.Options{
				ConfigPath: configPath,
				LogLevel:   logLevel,
				BuildRoot:  args[0],
				RPMDir:     args[1],
			}

			return builder.Run(ctx, options)
		},
	}
)

// Execute runs the conda-rpms-build CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
}
