package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/user/notifyr/internal/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "notifyr",
	Short: "Chat notification bridge with AI-drafted replies",
	Long: "notifyr ingests chat notifications, groups them into conversations,\n" +
		"and drives AI-generated replies back to the originating app with retries.",
	SilenceUsage: true,
}

func init() {
	defaultCfg := filepath.Join(os.Getenv("HOME"), ".notifyr", "config.json")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultCfg, "config file path")
}

// loadConfig loads the config file, exiting on failure; subcommands that
// cannot run without config use this instead of handling the error each.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func main() {
	// .env values feed the env overrides in config.Load; a missing file is fine.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
