package main

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/cwbudde/gpufft"
	"github.com/cwbudde/gpufft/device"
	"github.com/cwbudde/gpufft/internal/envconfig"
)

// appendEnvDocs adds the environment variables a command reads to its usage.
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// configureLogging installs the slog logger and selects the device backend.
func configureLogging(cmd *cobra.Command, _ []string) error {
	level := envconfig.LogLevel()
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	gpufft.SetLogger(logger)

	if cmd.Flags().Changed("backend") {
		name, _ := cmd.Flags().GetString("backend")
		return device.Use(name)
	}

	return nil
}

// NewCLI builds the gpufft command tree.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:               "gpufft",
		Short:             "Compile, inspect and run accelerator FFT plans",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: configureLogging,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("backend", envconfig.Backend(), fmt.Sprintf("Device backend %v", device.BackendNames()))

	envMap := envconfig.AsMap()
	envs := []envconfig.EnvVar{envMap["GPUFFT_BACKEND"], envMap["GPUFFT_DEBUG"], envMap["GPUFFT_HOST_MEMORY_MB"], envMap["GPUFFT_HOST_WORKERS"]}

	planCmd := newPlanCmd()
	kernelsCmd := newKernelsCmd()
	roundtripCmd := newRoundtripCmd()
	benchCmd := newBenchCmd()

	for _, cmd := range []*cobra.Command{planCmd, kernelsCmd, roundtripCmd, benchCmd} {
		cmdEnvs := envs
		if cmd == benchCmd {
			cmdEnvs = append(slices.Clone(envs), envMap["GPUFFT_PLAN_CACHE"])
		}

		appendEnvDocs(cmd, cmdEnvs)
	}

	rootCmd.AddCommand(planCmd, kernelsCmd, roundtripCmd, benchCmd)

	return rootCmd
}
