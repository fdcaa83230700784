// Command outreach_scheduler runs the outreach send pipeline, the digest and the stuck-send reclaim.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/offertesting/outreach_services/internal/platform/config"
	"github.com/offertesting/outreach_services/internal/platform/logger"
)

var (
	configDir string

	cfg    *config.Config
	appLog *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "outreach_scheduler",
	Short:         "Outreach send scheduler",
	Long:          "Sends at most one due outreach message per lane invocation inside the configured quiet-hours window, and delivers batched digests.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		var paths []string
		if configDir != "" {
			paths = append(paths, configDir)
		}
		loaded, err := config.Load(paths...)
		if err != nil {
			return err
		}
		cfg = loaded
		appLog = logger.NewWithWriter(os.Stdout, cfg.LogLevel, cfg.LogFormat).With("service", cfg.ServiceName)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Directory containing config.defaults.yaml")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
