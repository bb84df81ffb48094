package main

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const minContentMaxTokens = 2000

// ConfigOverrides allows overriding embedded defaults with file paths
type ConfigOverrides struct {
	SettingsPath        *string
	ToolsPath           *string
	ExtractorPromptPath *string
	ExtractorSchemaPath *string
	AuditorPromptPath   *string
	AuditorSchemaPath   *string
}

// Embedded configuration files
//
//go:embed .releasedeck/settings.yaml
var defaultSettingsYAML string

//go:embed .releasedeck/tools.yaml
var defaultToolsYAML string

//go:embed .releasedeck/extractor-system-prompt.md
var defaultExtractorPrompt string

//go:embed .releasedeck/extractor-output-schema.json
var defaultExtractorSchema string

//go:embed .releasedeck/isolate-system-prompt.md
var defaultIsolatePrompt string

//go:embed .releasedeck/auditor-system-prompt.md
var defaultAuditorPrompt string

//go:embed .releasedeck/auditor-output-schema.json
var defaultAuditorSchema string

//go:embed .releasedeck/infer-system-prompt.md
var defaultInferPrompt string

//go:embed .releasedeck/infer-output-schema.json
var defaultInferSchema string

// AgentSettings configures one text-generation call site.
type AgentSettings struct {
	Model            string  `yaml:"model"`
	MaxTokens        int     `yaml:"max_tokens"`
	Temperature      float64 `yaml:"temperature"`
	ContentMaxTokens int     `yaml:"content_max_tokens"`
}

// Settings represents the YAML configuration structure
type Settings struct {
	OutputDirectory string `yaml:"output_directory"`
	StorePath       string `yaml:"store_path"`
	Agents          struct {
		Extractor AgentSettings `yaml:"extractor"`
		Isolator  AgentSettings `yaml:"isolator"`
		Auditor   AgentSettings `yaml:"auditor"`
	} `yaml:"agents"`
	Image struct {
		Model string `yaml:"model"`
	} `yaml:"image"`
	Retry struct {
		MaxAttempts      int `yaml:"max_attempts"`
		BaseDelaySeconds int `yaml:"base_delay_seconds"`
		CompareAttempts  int `yaml:"compare_attempts"`
	} `yaml:"retry"`
	Remediation struct {
		CallBudget       int `yaml:"call_budget"`
		MinSectionLength int `yaml:"min_section_length"`
	} `yaml:"remediation"`
	Features struct {
		DefaultCount int `yaml:"default_count"`
		MaxCount     int `yaml:"max_count"`
	} `yaml:"features"`
}

// RetryDelay returns the configured base backoff delay.
func (s *Settings) RetryDelay() time.Duration {
	return time.Duration(s.Retry.BaseDelaySeconds) * time.Second
}

// ToolConfig is one registry entry: a tracked tool and where its release
// information lives.
type ToolConfig struct {
	ID           ToolID   `yaml:"id"`
	Name         string   `yaml:"name"`
	ChangelogURL string   `yaml:"changelog_url"`
	AltURLs      []string `yaml:"alt_urls"`
	Repo         string   `yaml:"repo"` // owner/name on GitHub; enables the compare fallback
	Style        string   `yaml:"style"`
}

// Config holds settings, the tool registry, and overrides
type Config struct {
	Settings  *Settings
	Tools     map[ToolID]ToolConfig
	ToolOrder []ToolID
	Overrides *ConfigOverrides
}

// NewConfig creates a new Config with settings, tools, and overrides
func NewConfig(overrides *ConfigOverrides) (*Config, error) {
	settings, err := loadSettings(overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	tools, order, err := loadTools(overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to load tool registry: %w", err)
	}

	return &Config{
		Settings:  settings,
		Tools:     tools,
		ToolOrder: order,
		Overrides: overrides,
	}, nil
}

// Tool looks up a registry entry by ID.
func (c *Config) Tool(id ToolID) (ToolConfig, bool) {
	tool, ok := c.Tools[id]
	return tool, ok
}

// GetExtractorPrompt returns the extractor system prompt (from override file or embedded)
func (c *Config) GetExtractorPrompt() string {
	if c.Overrides != nil && c.Overrides.ExtractorPromptPath != nil {
		if content, err := os.ReadFile(*c.Overrides.ExtractorPromptPath); err == nil {
			return string(content)
		}
	}
	return defaultExtractorPrompt
}

// GetExtractorSchema returns the extractor output schema (from override file or embedded)
func (c *Config) GetExtractorSchema() string {
	if c.Overrides != nil && c.Overrides.ExtractorSchemaPath != nil {
		if content, err := os.ReadFile(*c.Overrides.ExtractorSchemaPath); err == nil {
			return string(content)
		}
	}
	return defaultExtractorSchema
}

// GetIsolatePrompt returns the section-isolator system prompt (embedded only for now)
func (c *Config) GetIsolatePrompt() string {
	return defaultIsolatePrompt
}

// GetAuditorPrompt returns the auditor system prompt (from override file or embedded)
func (c *Config) GetAuditorPrompt() string {
	if c.Overrides != nil && c.Overrides.AuditorPromptPath != nil {
		if content, err := os.ReadFile(*c.Overrides.AuditorPromptPath); err == nil {
			return string(content)
		}
	}
	return defaultAuditorPrompt
}

// GetAuditorSchema returns the auditor output schema (from override file or embedded)
func (c *Config) GetAuditorSchema() string {
	if c.Overrides != nil && c.Overrides.AuditorSchemaPath != nil {
		if content, err := os.ReadFile(*c.Overrides.AuditorSchemaPath); err == nil {
			return string(content)
		}
	}
	return defaultAuditorSchema
}

// GetInferPrompt returns the sparse-notes inference prompt (embedded only for now)
func (c *Config) GetInferPrompt() string {
	return defaultInferPrompt
}

// GetInferSchema returns the sparse-notes inference schema (embedded only for now)
func (c *Config) GetInferSchema() string {
	return defaultInferSchema
}

// loadSettings loads settings from the override path or the default location
func loadSettings(overrides *ConfigOverrides) (*Settings, error) {
	settingsPath := getConfigPath("settings.yaml")
	if overrides != nil && overrides.SettingsPath != nil {
		settingsPath = *overrides.SettingsPath
	}

	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", settingsPath, err)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings YAML: %w", err)
	}

	applySettingsMinimums(&settings)
	return &settings, nil
}

// applySettingsMinimums backfills zero values so a sparse settings file
// still produces a runnable configuration.
func applySettingsMinimums(settings *Settings) {
	if settings.OutputDirectory == "" {
		settings.OutputDirectory = "infographics"
	}
	if settings.StorePath == "" {
		settings.StorePath = "releases.json"
	}
	if settings.Agents.Extractor.ContentMaxTokens < minContentMaxTokens {
		log.Printf("Warning: extractor.content_max_tokens is %d, defaulting to %d (minimum)", settings.Agents.Extractor.ContentMaxTokens, minContentMaxTokens)
		settings.Agents.Extractor.ContentMaxTokens = minContentMaxTokens
	}
	if settings.Agents.Isolator.ContentMaxTokens < minContentMaxTokens {
		settings.Agents.Isolator.ContentMaxTokens = minContentMaxTokens
	}
	if settings.Agents.Auditor.ContentMaxTokens < minContentMaxTokens {
		settings.Agents.Auditor.ContentMaxTokens = minContentMaxTokens
	}
	if settings.Retry.MaxAttempts < 1 {
		settings.Retry.MaxAttempts = 3
	}
	if settings.Retry.BaseDelaySeconds < 1 {
		settings.Retry.BaseDelaySeconds = 1
	}
	if settings.Retry.CompareAttempts < 1 {
		settings.Retry.CompareAttempts = 2
	}
	if settings.Remediation.CallBudget < 1 {
		settings.Remediation.CallBudget = 3
	}
	if settings.Remediation.MinSectionLength < 1 {
		settings.Remediation.MinSectionLength = 30
	}
	if settings.Features.DefaultCount < 1 {
		settings.Features.DefaultCount = 6
	}
	if settings.Features.MaxCount < settings.Features.DefaultCount {
		settings.Features.MaxCount = 6
	}
}

// toolsFile is the YAML shape of the tool registry.
type toolsFile struct {
	Tools []ToolConfig `yaml:"tools"`
}

// loadTools loads the tool registry from the override path or the default location
func loadTools(overrides *ConfigOverrides) (map[ToolID]ToolConfig, []ToolID, error) {
	toolsPath := getConfigPath("tools.yaml")
	if overrides != nil && overrides.ToolsPath != nil {
		toolsPath = *overrides.ToolsPath
	}

	data, err := os.ReadFile(toolsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read tools file %s: %w", toolsPath, err)
	}

	var file toolsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("failed to parse tools YAML: %w", err)
	}
	if len(file.Tools) == 0 {
		return nil, nil, fmt.Errorf("tools file %s lists no tools", toolsPath)
	}

	tools := make(map[ToolID]ToolConfig, len(file.Tools))
	order := make([]ToolID, 0, len(file.Tools))
	for _, tool := range file.Tools {
		if tool.ID == "" {
			return nil, nil, fmt.Errorf("tools file %s contains an entry without an id", toolsPath)
		}
		if _, exists := tools[tool.ID]; exists {
			return nil, nil, fmt.Errorf("tools file %s lists %q twice", toolsPath, tool.ID)
		}
		tools[tool.ID] = tool
		order = append(order, tool.ID)
	}

	return tools, order, nil
}

// getConfigPath returns the path to a config file in .releasedeck directory
func getConfigPath(filename string) string {
	return filepath.Join(".releasedeck", filename)
}

// ensureConfigExists creates the config directory and default files if they don't exist
func ensureConfigExists() error {
	configDir := ".releasedeck"

	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	// Write default settings if it doesn't exist
	settingsPath := getConfigPath("settings.yaml")
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := os.WriteFile(settingsPath, []byte(defaultSettingsYAML), 0644); err != nil {
			return fmt.Errorf("failed to write default settings: %w", err)
		}
	}

	// Write default tool registry if it doesn't exist
	toolsPath := getConfigPath("tools.yaml")
	if _, err := os.Stat(toolsPath); os.IsNotExist(err) {
		if err := os.WriteFile(toolsPath, []byte(defaultToolsYAML), 0644); err != nil {
			return fmt.Errorf("failed to write default tools: %w", err)
		}
	}

	return nil
}
