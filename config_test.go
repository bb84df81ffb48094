package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// testConfig returns a runnable configuration without touching the
// filesystem: minimum-backfilled settings plus a small tool registry.
func testConfig(t *testing.T) *Config {
	t.Helper()

	settings := &Settings{}
	applySettingsMinimums(settings)
	settings.OutputDirectory = t.TempDir()
	settings.Agents.Extractor.Model = "test-extractor"
	settings.Agents.Isolator.Model = "test-isolator"
	settings.Agents.Auditor.Model = "test-auditor"

	tools := map[ToolID]ToolConfig{
		"cursor": {
			ID:           "cursor",
			Name:         "Cursor",
			ChangelogURL: "https://cursor.example/changelog",
			Style:        "dark editor chrome with electric blue accents",
		},
		"zed": {
			ID:           "zed",
			Name:         "Zed",
			ChangelogURL: "https://zed.example/releases",
			Repo:         "zed-industries/zed",
			Style:        "minimal monochrome",
		},
	}

	return &Config{
		Settings:  settings,
		Tools:     tools,
		ToolOrder: []ToolID{"cursor", "zed"},
	}
}

func TestApplySettingsMinimums(t *testing.T) {
	settings := &Settings{}
	applySettingsMinimums(settings)

	if settings.OutputDirectory != "infographics" {
		t.Errorf("OutputDirectory = %q, want infographics", settings.OutputDirectory)
	}
	if settings.StorePath != "releases.json" {
		t.Errorf("StorePath = %q, want releases.json", settings.StorePath)
	}
	if settings.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want 3", settings.Retry.MaxAttempts)
	}
	if settings.Retry.CompareAttempts != 2 {
		t.Errorf("Retry.CompareAttempts = %d, want 2", settings.Retry.CompareAttempts)
	}
	if settings.Remediation.CallBudget != 3 {
		t.Errorf("Remediation.CallBudget = %d, want 3", settings.Remediation.CallBudget)
	}
	if settings.Agents.Extractor.ContentMaxTokens != minContentMaxTokens {
		t.Errorf("Extractor.ContentMaxTokens = %d, want %d", settings.Agents.Extractor.ContentMaxTokens, minContentMaxTokens)
	}
	if settings.Features.DefaultCount != 6 || settings.Features.MaxCount != 6 {
		t.Errorf("feature counts = %d/%d, want 6/6", settings.Features.DefaultCount, settings.Features.MaxCount)
	}
}

func TestApplySettingsMinimumsKeepsExplicitValues(t *testing.T) {
	settings := &Settings{}
	settings.Retry.MaxAttempts = 5
	settings.Agents.Extractor.ContentMaxTokens = 9000
	applySettingsMinimums(settings)

	if settings.Retry.MaxAttempts != 5 {
		t.Errorf("Retry.MaxAttempts = %d, want explicit 5 kept", settings.Retry.MaxAttempts)
	}
	if settings.Agents.Extractor.ContentMaxTokens != 9000 {
		t.Errorf("ContentMaxTokens = %d, want explicit 9000 kept", settings.Agents.Extractor.ContentMaxTokens)
	}
}

func TestEnsureConfigExistsBootstrapsDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	if err := ensureConfigExists(); err != nil {
		t.Fatalf("ensureConfigExists() error = %v", err)
	}

	for _, name := range []string{"settings.yaml", "tools.yaml"} {
		if _, err := os.Stat(filepath.Join(".releasedeck", name)); err != nil {
			t.Errorf("expected %s to be created: %v", name, err)
		}
	}

	config, err := NewConfig(nil)
	if err != nil {
		t.Fatalf("NewConfig() after bootstrap error = %v", err)
	}
	if len(config.Tools) == 0 {
		t.Error("bootstrapped tool registry is empty")
	}
	if _, ok := config.Tool("cursor"); !ok {
		t.Error("bootstrapped registry missing cursor")
	}
	if config.Settings.Remediation.CallBudget != 3 {
		t.Errorf("CallBudget = %d, want 3", config.Settings.Remediation.CallBudget)
	}

	// Second run must leave the user's files alone.
	custom := []byte("tools:\n  - id: onlytool\n    name: Only\n")
	if err := os.WriteFile(filepath.Join(".releasedeck", "tools.yaml"), custom, 0644); err != nil {
		t.Fatal(err)
	}
	if err := ensureConfigExists(); err != nil {
		t.Fatalf("second ensureConfigExists() error = %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(".releasedeck", "tools.yaml"))
	if string(data) != string(custom) {
		t.Error("ensureConfigExists() overwrote a customized tools.yaml")
	}
}

func TestLoadToolsValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"duplicate id", "tools:\n  - id: a\n    name: A\n  - id: a\n    name: A2\n", "twice"},
		{"missing id", "tools:\n  - name: NoID\n", "without an id"},
		{"empty registry", "tools: []\n", "no tools"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "tools.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0644); err != nil {
				t.Fatal(err)
			}
			_, _, err := loadTools(&ConfigOverrides{ToolsPath: &path})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("loadTools() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadToolsPreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.yaml")
	yaml := "tools:\n  - id: zed\n    name: Zed\n  - id: aider\n    name: Aider\n  - id: cursor\n    name: Cursor\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	tools, order, err := loadTools(&ConfigOverrides{ToolsPath: &path})
	if err != nil {
		t.Fatalf("loadTools() error = %v", err)
	}
	if len(tools) != 3 {
		t.Fatalf("loaded %d tools, want 3", len(tools))
	}
	want := []ToolID{"zed", "aider", "cursor"}
	for i, id := range want {
		if order[i] != id {
			t.Errorf("order[%d] = %q, want %q", i, order[i], id)
		}
	}
}

func TestGetPromptsFallBackToEmbedded(t *testing.T) {
	config := &Config{}

	if !strings.Contains(config.GetExtractorPrompt(), "{{.count}}") {
		t.Error("embedded extractor prompt missing {{.count}} variable")
	}
	if !strings.Contains(config.GetIsolatePrompt(), notFoundSentinel) {
		t.Error("embedded isolator prompt missing the not-found sentinel")
	}
	if !strings.Contains(config.GetAuditorPrompt(), "FABRICATED") {
		t.Error("embedded auditor prompt missing verdict vocabulary")
	}
	if !strings.Contains(config.GetExtractorSchema(), "input_schema") {
		t.Error("embedded extractor schema is not a tool schema")
	}
	if !strings.Contains(config.GetInferSchema(), "confidence") {
		t.Error("embedded inference schema missing confidence field")
	}
}

func TestGetPromptOverrideWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.md")
	if err := os.WriteFile(path, []byte("custom extractor prompt {{.count}}"), 0644); err != nil {
		t.Fatal(err)
	}

	config := &Config{Overrides: &ConfigOverrides{ExtractorPromptPath: &path}}
	if got := config.GetExtractorPrompt(); got != "custom extractor prompt {{.count}}" {
		t.Errorf("GetExtractorPrompt() = %q, want override content", got)
	}
}
