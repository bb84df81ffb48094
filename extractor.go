package main

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
)

// FeatureExtractor turns resolved source content into a validated
// FeatureSet via the text-generation service.
type FeatureExtractor struct {
	config *Config
	text   TextGenerator
	retry  Retryer
	now    func() time.Time
}

// NewFeatureExtractor builds an extractor with the configured retry policy.
func NewFeatureExtractor(config *Config, text TextGenerator) *FeatureExtractor {
	return &FeatureExtractor{
		config: config,
		text:   text,
		retry:  NewRetryer(config.Settings.Retry.MaxAttempts, config.Settings.RetryDelay()),
		now:    time.Now,
	}
}

// formatReleaseInfo renders the display line for a release. The service
// never controls this value; it is always computed from release metadata.
func formatReleaseInfo(rel ReleaseRecord) string {
	return fmt.Sprintf("%s • %s", rel.Version, rel.Date.Format("January 2, 2006"))
}

// Extract asks the service for up to count features and validates the
// result. Malformed or evasive responses burn a retry attempt; exhaustion
// surfaces as *RetryExhaustedError wrapping the last rejection.
func (e *FeatureExtractor) Extract(rel ReleaseRecord, tool ToolConfig, count int, source SourceContent) (*FeatureSet, error) {
	count = e.clampCount(count)
	agent := e.config.Settings.Agents.Extractor

	template := e.config.GetExtractorPrompt()
	if !strings.Contains(template, "{{.count}}") {
		return nil, fmt.Errorf("extractor prompt template must contain {{.count}} variable")
	}
	system := strings.ReplaceAll(template, "{{.count}}", strconv.Itoa(count))
	system = strings.ReplaceAll(system, "{{.tool_name}}", tool.Name)

	limited := limitContentTokens(source.Text, agent.ContentMaxTokens)
	prompt := fmt.Sprintf("Release: %s %s\n\nSource content:\n%s", tool.Name, rel.Version, limited)
	schema := e.config.GetExtractorSchema()

	var accepted *FeatureSet
	err := e.retry.Do("feature extraction", func(attempt int) error {
		raw, err := e.text.Generate(TextRequest{
			System:      system,
			Prompt:      prompt,
			Schema:      schema,
			Model:       agent.Model,
			MaxTokens:   agent.MaxTokens,
			Temperature: agent.Temperature,
		})
		if err != nil {
			return err
		}

		fs, err := parseFeatureSet(raw)
		if err != nil {
			return err
		}
		if len(fs.Features) > count {
			fs.Features = fs.Features[:count]
		}

		// releaseInfo comes from release metadata, whatever the service sent.
		fs.ReleaseInfo = formatReleaseInfo(rel)

		if err := ValidateFeatureSet(fs); err != nil {
			return err
		}

		accepted = fs
		return nil
	})
	if err != nil {
		return nil, err
	}

	accepted.SourceContent = source.Text
	accepted.SourceURL = source.URL
	accepted.SourceOrigin = source.Origin
	accepted.ExtractedAt = e.now()

	log.Printf("  ✓ Extracted %d features (%s)", len(accepted.Features), accepted.ReleaseHighlight)
	return accepted, nil
}

func (e *FeatureExtractor) clampCount(count int) int {
	features := e.config.Settings.Features
	if count < 1 {
		return features.DefaultCount
	}
	if count > features.MaxCount {
		return features.MaxCount
	}
	return count
}

// parseFeatureSet decodes service output into a FeatureSet, tolerating
// markdown fences and prose around the JSON object.
func parseFeatureSet(raw string) (*FeatureSet, error) {
	obj, err := extractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var fs FeatureSet
	if err := json.Unmarshal([]byte(obj), &fs); err != nil {
		return nil, fmt.Errorf("parsing feature JSON: %w", err)
	}
	return &fs, nil
}

// extractJSONObject returns the first balanced JSON object in raw text.
func extractJSONObject(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	if start == -1 {
		return "", fmt.Errorf("no JSON object in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], nil
			}
		}
	}

	return "", fmt.Errorf("unterminated JSON object in response")
}
