package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jo-hoe/memereport/internal/core"
	"github.com/jo-hoe/memereport/internal/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func getConfigPath(flagValue string) (string, bool) {
	if flagValue != "" {
		return flagValue, true
	}
	// First check if config path is provided via environment variable
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		return configPath, true
	}

	// Default to config.yaml in current working directory
	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	return filepath.Join(cwd, "config.yaml"), false
}

// loadConfig reads the configuration and installs the logger it asks for.
// Without an explicit path a missing config.yaml means defaults.
func (o *rootOptions) loadConfig() (*core.ServiceConfig, error) {
	configPath, explicit := getConfigPath(o.configPath)
	config, err := core.LoadConfig(configPath)
	switch {
	case err == nil:
	case !explicit && errors.Is(err, fs.ErrNotExist):
		config = core.DefaultConfig()
	default:
		return nil, err
	}

	if o.logLevel != "" {
		config.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		config.Log.Format = o.logFormat
	}
	if err := logging.Setup(os.Stderr, config.Log.Level, config.Log.Format); err != nil {
		return nil, fmt.Errorf("invalid log settings: %w", err)
	}
	slog.Debug("configuration loaded", "path", configPath, "explicit", explicit)
	return config, nil
}

func newRootCommand() *cobra.Command {
	options := &rootOptions{}
	root := &cobra.Command{
		Use:           "memereport",
		Short:         "Extract memes from an X/Twitter data export and render a PDF report",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&options.configPath, "config", "", "path to the YAML config (default $CONFIG_PATH or ./config.yaml)")
	root.PersistentFlags().StringVar(&options.logLevel, "log-level", "", "debug, info, warn or error")
	root.PersistentFlags().StringVar(&options.logFormat, "log-format", "", "text, json or console")

	root.AddCommand(
		newExtractCommand(options),
		newReportCommand(options),
		newServeCommand(options),
	)
	return root
}

func main() {
	// A .env file is optional
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		slog.Error("memereport failed", "error", err)
		os.Exit(1)
	}
}
