package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Success(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	t.Setenv("MEMEREPORT_TEST_REDIS", "redis://localhost:6379/1")

	configContent := `port: 9090
archive:
  path: exports/twitter-2023-10-11.zip
database:
  type: sqlite
  connectionString: "test.db"
timezone: Europe/Berlin
fetch:
  timeout: 5s
  requestsPerSecond: 2.5
cache:
  redisUrl: ${MEMEREPORT_TEST_REDIS}
commands:
  - name: PngConverterCommand
  - name: ScaleCommand
    height: 600
    width: 600
report:
  topCount: 27
  accentColor: "#112233"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.Port != 9090 {
		t.Errorf("Expected port to be 9090, got %d", config.Port)
	}
	if config.Archive.Path != "exports/twitter-2023-10-11.zip" {
		t.Errorf("Unexpected archive path %q", config.Archive.Path)
	}
	if config.Database.ConnectionString != "test.db" {
		t.Errorf("Expected connectionString to be 'test.db', got '%s'", config.Database.ConnectionString)
	}
	if config.Fetch.Timeout != 5*time.Second {
		t.Errorf("Expected fetch timeout 5s, got %v", config.Fetch.Timeout)
	}
	if config.Cache.RedisURL != "redis://localhost:6379/1" {
		t.Errorf("Expected redis url from environment, got %q", config.Cache.RedisURL)
	}
	if len(config.Commands) != 2 || config.Commands[1].Params["height"] != 600 {
		t.Errorf("Unexpected commands %+v", config.Commands)
	}
	if config.Report.TopCount != 27 || config.Report.BottomCount != 100 {
		t.Errorf("Expected topCount 27 and default bottomCount 100, got %d/%d", config.Report.TopCount, config.Report.BottomCount)
	}
	if config.Report.MinLikes != 1 {
		t.Errorf("Expected default minLikes 1, got %d", config.Report.MinLikes)
	}
}

func TestParseConfig_EmptyUsesDefaults(t *testing.T) {
	config, err := ParseConfig(nil)
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	defaults := DefaultConfig()
	if config.ImageDir != defaults.ImageDir || config.Timezone != "America/Denver" {
		t.Errorf("Expected defaults, got imageDir=%q timezone=%q", config.ImageDir, config.Timezone)
	}
	if len(config.Commands) != 1 || config.Commands[0].Name != "PngConverterCommand" {
		t.Errorf("Expected default PNG pipeline, got %+v", config.Commands)
	}
	if config.Report.EntriesPerPage != 9 || config.Report.Columns != 3 {
		t.Errorf("Expected 9 entries in 3 columns, got %d/%d", config.Report.EntriesPerPage, config.Report.Columns)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	config, err := LoadConfig("/path/that/does/not/exist/config.yaml")
	if err == nil {
		t.Fatal("Expected error for non-existent file, got nil")
	}
	if config != nil {
		t.Error("Expected config to be nil when file doesn't exist")
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "port: [8080"},
		{"unsupported database", "database:\n  type: postgres\n  connectionString: x"},
		{"negative max tweets", "maxTweets: -1"},
		{"unknown timezone", "timezone: Mars/Olympus"},
		{"bad color", "report:\n  backgroundColor: grey"},
		{"bad log format", "log:\n  format: xml"},
		{"empty command name", "commands:\n  - name: \"\""},
		{"duplicate command", "commands:\n  - name: PngConverterCommand\n  - name: PngConverterCommand"},
		{"unknown command", "commands:\n  - name: DitherCommand"},
		{"bad pushgateway url", "metrics:\n  pushgatewayUrl: not a url"},
		{"port out of range", "port: 70000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseConfig([]byte(tt.content)); err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
		})
	}
}

func TestCommandConfigs(t *testing.T) {
	config, err := ParseConfig([]byte("commands:\n  - name: CropCommand\n    width: 10\n    height: 20\n"))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	configs := config.CommandConfigs()
	if len(configs) != 1 || configs[0].Name != "CropCommand" || configs[0].Params["width"] != 10 {
		t.Errorf("Unexpected command configs %+v", configs)
	}
}
