package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	redisAddr  string
	logLevel   string
	devLogs    bool
)

var rootCmd = &cobra.Command{
	Use:   "authsync-replay",
	Short: "Replay identity event scenarios against authsync",
	Long: `authsync-replay drives the session, role and redirect engine through a
scripted scenario on a manual clock and prints every navigation and access
gate decision, so redirect loops and sign-out races can be reproduced
without a browser.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "engine config file (yaml, json or toml); AUTHSYNC_* env vars override it")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis-addr", "", "role store address; REDIS_ADDR env or an in-process miniredis when empty")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&devLogs, "dev", false, "human-readable development logs")
	rootCmd.AddCommand(runCmd)
}

func newLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if devLogs {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = level
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
