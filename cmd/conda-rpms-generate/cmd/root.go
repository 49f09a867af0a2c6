package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/conda-rpms/internal/service/generate"
	"github.com/oshokin/conda-rpms/internal/version"
)

var (
	// configPath to the optional configuration YAML file.
	configPath string
	// logLevel overrides the configured log level.
	logLevel string
	// envName is the name of the environment to create.
	envName string
	// outputDir receives the SPECS and SOURCES directories.
	outputDir string
	// namespace prefixes every produced RPM name.
	namespace string
	// installPrefix is where the RPMs install packages and environments.
	installPrefix string
	// noOverwrite refuses to replace differing specs.
	noOverwrite bool

	// rootCmd represents the base command for rendering RPM specs.
	rootCmd = &cobra.Command{
		Use:   "conda-rpms-generate <lockfile>",
		Short: "Render RPM specs for an explicit conda lockfile.",
		Long: `Renders one RPM spec per package of an explicit conda lockfile, an installer
spec and an environment spec, and copies their sources into an rpmbuild directory.

Every package must already be downloaded and extracted in a conda package cache.
Packages are installed to {install-prefix}/pkgs/{package} and the environment
is created in {install-prefix}/envs/{name} when its RPM is installed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &generate.Options{
				ConfigPath:    configPath,
				LogLevel:      logLevel,
				LockfilePath:  args[0],
				Name:          envName,
				OutputDir:     outputDir,
				Namespace:     namespace,
				InstallPrefix: installPrefix,
				NoOverwrite:   noOverwrite,
			}

			return generate.Run(ctx, options)
		},
	}
)

// Execute runs the conda-rpms-generate CLI and exits with non-zero status on error.
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
	rootCmd.Flags().StringVarP(&envName, "name", "n", "", "name of the environment to be created")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", generate.DefaultOutputDir,
		"directory to write the RPM spec files and sources to")
	rootCmd.Flags().StringVar(&namespace, "rpm-namespace", "",
		"namespace of the produced RPMs, e.g. {rpm-namespace}-pkg-{package} (default from config, CondaDist)")
	rootCmd.Flags().StringVarP(&installPrefix, "install-prefix", "p", "",
		"prefix the RPMs install into (default from config, /opt/conda-dist)")
	rootCmd.Flags().BoolVar(&noOverwrite, "no-overwrite", false, "fail instead of replacing specs that differ")

	_ = rootCmd.MarkFlagRequired("name")
}
