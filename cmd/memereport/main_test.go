package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	path, explicit := getConfigPath("")
	if explicit || filepath.Base(path) != "config.yaml" {
		t.Errorf("expected implicit ./config.yaml, got %s (explicit %v)", path, explicit)
	}

	t.Setenv("CONFIG_PATH", "/etc/memereport/config.yaml")
	if path, explicit := getConfigPath(""); !explicit || path != "/etc/memereport/config.yaml" {
		t.Errorf("expected CONFIG_PATH, got %s (explicit %v)", path, explicit)
	}
	if path, _ := getConfigPath("flag.yaml"); path != "flag.yaml" {
		t.Errorf("expected flag to win, got %s", path)
	}
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	content := `database:
  connectionString: ` + filepath.Join(dir, "memes.db") + `
imageDir: ` + filepath.Join(dir, "memes") + `
report:
  output: ` + filepath.Join(dir, "default.pdf") + `
  logo: ""
  thumbnailPixels: 32
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestReportCommand(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir)
	output := filepath.Join(dir, "report.pdf")

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"report", "--config", configPath, "--log-level", "error", "--output", output})
	if err := root.Execute(); err != nil {
		t.Fatalf("report command failed: %v", err)
	}

	if _, err := os.Stat(output); err != nil {
		t.Fatalf("expected report at %s: %v", output, err)
	}
	if !strings.Contains(out.String(), "generated successfully (3 pages)") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestCommands_Errors(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir)

	tests := []struct {
		name string
		args []string
	}{
		{"missing explicit config", []string{"report", "--config", filepath.Join(dir, "missing.yaml")}},
		{"bad log format", []string{"report", "--config", configPath, "--log-format", "xml"}},
		{"missing archive", []string{"extract", "--config", configPath, "--log-level", "error", "--archive", filepath.Join(dir, "missing.zip")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newRootCommand()
			root.SetOut(&bytes.Buffer{})
			root.SetArgs(tt.args)
			if err := root.Execute(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
