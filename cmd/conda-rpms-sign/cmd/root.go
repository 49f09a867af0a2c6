package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/conda-rpms/internal/service/signer"
	"github.com/oshokin/conda-rpms/internal/version"
)

var (
	// configPath to the optional configuration YAML file.
	configPath string
	// logLevel overrides the configured log level.
	logLevel string
	// noDeps signs only the given RPM.
	noDeps bool
	// verbose forces debug logging, including the signing tool output.
	verbose bool

	// rootCmd represents the base command for signing RPMs.
	rootCmd = &cobra.Command{
		Use:   "conda-rpms-sign <rpm> [-- signing tool arguments]",
		Short: "Sign an RPM and the RPMs it depends on.",
		Long: `Signs an RPM with the signing tool. By default the RPM is inspected for its
dependencies and those are signed too; they are looked up next to the given RPM.

No arguments are passed to the signing tool by default, so a ~/.rpmmacros file
is expected to hold its configuration. Arguments after "--" are passed through,
after the ones set in the configuration file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Everything after "--" belongs to the signing tool.
			artifacts, extra := args, []string(nil)
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				artifacts, extra = args[:dash], args[dash:]
			}

			if len(artifacts) != 1 {
				return cobra.ExactArgs(1)(cmd, artifacts)
			}

			level := logLevel
			if verbose {
				level = "debug"
			}

			options := &signer.Options{
				ConfigPath:          configPath,
				LogLevel:            level,
				ArtifactPath:        artifacts[0],
				IncludeDependencies: !noDeps,
				ExtraArgs:           extra,
			}

			return signer.Run(ctx, options)
		},
	}
)

// Execute runs the conda-rpms-sign CLI and exits with non-zero status on error.
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
	rootCmd.Flags().BoolVar(&noDeps, "no-deps", false, "sign only the given RPM and ignore its dependencies")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log debug output, including the signing tool output")
}
