package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/suPer8Hu/chatcore/internal/app"
	"github.com/suPer8Hu/chatcore/internal/config"
	"github.com/suPer8Hu/chatcore/internal/logging"
)

// Global flag values.
var (
	logLevel      string
	providersFile string
	noColor       bool
)

var rootCmd = &cobra.Command{
	Use:   "chatcore",
	Short: "Multi-provider chat completion engine",
	Long: `chatcore stores assistants, topics and attachments, builds model context
from conversation history and streams completions from OpenAI-compatible,
Gemini, Ollama and Anthropic backends.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if noColor {
			color.NoColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&providersFile, "providers", "", "override PROVIDERS_FILE (.toml or .yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig applies the global flag overrides on top of the environment.
func loadConfig() (config.Config, *slog.Logger, error) {
	if providersFile != "" {
		// PROVIDERS_FILE is read inside config.Load
		if err := os.Setenv("PROVIDERS_FILE", providersFile); err != nil {
			return config.Config{}, nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func openApp(ctx context.Context) (*app.App, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger)
}
