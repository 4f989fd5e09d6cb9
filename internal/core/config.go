package core

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/memereport/internal/archive"
	"github.com/jo-hoe/memereport/internal/backend/commandstructure"
	"github.com/jo-hoe/memereport/internal/common"
	"github.com/jo-hoe/memereport/internal/fetch"
	"github.com/jo-hoe/memereport/internal/report"
	"github.com/jo-hoe/memereport/internal/tweet"
)

// CommandConfig represents a generic command configuration
type CommandConfig struct {
	Name   string         `yaml:"name" validate:"required"`
	Params map[string]any `yaml:",inline"`
}

type Archive struct {
	Path   string `yaml:"path" validate:"required"`
	Entry  string `yaml:"entry"`
	Prefix string `yaml:"prefix"`
}

type Database struct {
	Type             string `yaml:"type" validate:"required,oneof=sqlite"`
	ConnectionString string `yaml:"connectionString" validate:"required"`
}

type Fetch struct {
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond" validate:"gte=0"`
	Burst             int           `yaml:"burst" validate:"gte=1"`
	BreakerThreshold  uint32        `yaml:"breakerThreshold" validate:"gte=1"`
	BreakerCooldown   time.Duration `yaml:"breakerCooldown" validate:"gt=0"`
	UserAgent         string        `yaml:"userAgent"`
}

type Cache struct {
	// RedisURL enables the media cache, e.g. redis://localhost:6379/0
	RedisURL string        `yaml:"redisUrl" validate:"omitempty,url"`
	TTL      time.Duration `yaml:"ttl" validate:"gte=0"`
}

type Report struct {
	Output          string  `yaml:"output" validate:"required"`
	Title           string  `yaml:"title"`
	Date            string  `yaml:"date"`
	TopCount        int     `yaml:"topCount" validate:"gte=0"`
	BottomCount     int     `yaml:"bottomCount" validate:"gte=0"`
	MinLikes        int     `yaml:"minLikes" validate:"gte=0"`
	Logo            string  `yaml:"logo"`
	LogoWidth       float64 `yaml:"logoWidth" validate:"gte=0"`
	RegularFont     string  `yaml:"regularFont"`
	BoldFont        string  `yaml:"boldFont"`
	BackgroundColor string  `yaml:"backgroundColor"`
	TextColor       string  `yaml:"textColor"`
	AccentColor     string  `yaml:"accentColor"`
	EntriesPerPage  int     `yaml:"entriesPerPage" validate:"gte=1"`
	Columns         int     `yaml:"columns" validate:"gte=1"`
	ImageSize       float64 `yaml:"imageSize" validate:"gt=0"`
	ThumbnailPixels int     `yaml:"thumbnailPixels" validate:"gte=16"`
}

type Metrics struct {
	PushgatewayURL string `yaml:"pushgatewayUrl" validate:"omitempty,url"`
}

type Log struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=text json console"`
}

type ServiceConfig struct {
	Archive   Archive         `yaml:"archive"`
	WorkDir   string          `yaml:"workDir" validate:"required"`
	ImageDir  string          `yaml:"imageDir" validate:"required"`
	BackupDir string          `yaml:"backupDir"`
	Database  Database        `yaml:"database"`
	Timezone  string          `yaml:"timezone"`
	MaxTweets int             `yaml:"maxTweets" validate:"gte=0"`
	Fetch     Fetch           `yaml:"fetch"`
	Cache     Cache           `yaml:"cache"`
	Commands  []CommandConfig `yaml:"commands" validate:"dive"`
	Report    Report          `yaml:"report"`
	Metrics   Metrics         `yaml:"metrics"`
	Log       Log             `yaml:"log"`
	Port      int             `yaml:"port" validate:"gte=1,lte=65535"`
}

// DefaultConfig mirrors the layout of the original export tooling: twitter_data/memes and memes.db
func DefaultConfig() *ServiceConfig {
	return &ServiceConfig{
		Archive: Archive{
			Path:   "twitter.zip",
			Entry:  archive.DefaultEntryName,
			Prefix: archive.DefaultPrefix,
		},
		WorkDir:  "twitter_data",
		ImageDir: "twitter_data/memes",
		Database: Database{
			Type:             "sqlite",
			ConnectionString: "memes.db",
		},
		Timezone: tweet.DefaultTimezone,
		Fetch: Fetch{
			Timeout:          fetch.DefaultTimeout,
			Burst:            1,
			BreakerThreshold: fetch.DefaultBreakerThreshold,
			BreakerCooldown:  fetch.DefaultBreakerCooldown,
			UserAgent:        "memereport",
		},
		Cache: Cache{
			TTL: 7 * 24 * time.Hour,
		},
		Commands: []CommandConfig{
			{Name: "PngConverterCommand"},
		},
		Report: Report{
			Output:          "meme_report.pdf",
			Title:           report.DefaultTitle,
			TopCount:        100,
			BottomCount:     100,
			MinLikes:        1,
			Logo:            "logo.png",
			LogoWidth:       report.DefaultLogoWidth,
			RegularFont:     "Vollkorn-Regular.ttf",
			BoldFont:        "Vollkorn-Bold.ttf",
			BackgroundColor: report.DefaultBackgroundColor,
			TextColor:       report.DefaultTextColor,
			AccentColor:     report.DefaultAccentColor,
			EntriesPerPage:  report.DefaultEntriesPerPage,
			Columns:         report.DefaultColumns,
			ImageSize:       report.DefaultImageSize,
			ThumbnailPixels: report.DefaultThumbnailPixels,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Port: 8080,
	}
}

// LoadConfig loads configuration from the specified YAML file. Fields missing from the
// file keep their defaults and ${VAR} references are expanded from the environment.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}
	config, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return config, nil
}

// ParseConfig decodes YAML over the defaults and validates the result
func ParseConfig(data []byte) (*ServiceConfig, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *ServiceConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := validateCommands(c.Commands); err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}
	if _, err := tweet.NewFormatter(c.Timezone); err != nil {
		return err
	}

	var colorErrs []error
	for name, value := range map[string]string{
		"backgroundColor": c.Report.BackgroundColor,
		"textColor":       c.Report.TextColor,
		"accentColor":     c.Report.AccentColor,
	} {
		if _, err := common.ParseHexColor(value); err != nil {
			colorErrs = append(colorErrs, fmt.Errorf("report.%s: %w", name, err))
		}
	}
	return errors.Join(colorErrs...)
}

// CommandConfigs converts the configured pipeline for the command registry
func (c *ServiceConfig) CommandConfigs() []commandstructure.CommandConfig {
	configs := make([]commandstructure.CommandConfig, 0, len(c.Commands))
	for _, command := range c.Commands {
		configs = append(configs, commandstructure.CommandConfig{Name: command.Name, Params: command.Params})
	}
	return configs
}

// validateCommands ensures all command configurations have required fields
func validateCommands(commands []CommandConfig) error {
	seenNames := make(map[string]bool)

	for i, cmd := range commands {
		if cmd.Name == "" {
			return fmt.Errorf("command at index %d has empty name", i)
		}

		if !commandstructure.DefaultRegistry.IsRegistered(cmd.Name) {
			return fmt.Errorf("unknown command %q, available: %v", cmd.Name, commandstructure.DefaultRegistry.GetRegisteredNames())
		}

		if seenNames[cmd.Name] {
			return fmt.Errorf("duplicate command name: %s", cmd.Name)
		}
		seenNames[cmd.Name] = true
	}

	return nil
}
