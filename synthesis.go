package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ArtifactFormat selects the infographic aspect ratio.
type ArtifactFormat string

const (
	FormatSquare ArtifactFormat = "1x1"
	FormatWide   ArtifactFormat = "16x9"
)

func (f ArtifactFormat) aspectRatio() string {
	if f == FormatWide {
		return "16:9"
	}
	return "1:1"
}

func (f ArtifactFormat) describe() string {
	if f == FormatWide {
		return "widescreen (16:9)"
	}
	return "square (1:1)"
}

// Synthesizer renders accepted feature sets into infographic files and
// records them on the release.
type Synthesizer struct {
	config    *Config
	image     ImageGenerator
	outputDir string
}

// NewSynthesizer builds a synthesizer writing into the configured
// output directory.
func NewSynthesizer(config *Config, image ImageGenerator) *Synthesizer {
	return &Synthesizer{
		config:    config,
		image:     image,
		outputDir: config.Settings.OutputDirectory,
	}
}

// LayoutPrompt builds the image prompt for one feature set. The same
// inputs always produce the same prompt; only validated feature text goes
// in, never raw source content.
func (s *Synthesizer) LayoutPrompt(fs *FeatureSet, tool ToolConfig, format ArtifactFormat) string {
	var b strings.Builder
	b.WriteString("Create a release-notes infographic.\n\n")
	fmt.Fprintf(&b, "Header: %s\n", tool.Name)
	fmt.Fprintf(&b, "Subheader: %s\n", fs.ReleaseInfo)
	if fs.ReleaseHighlight != "" {
		fmt.Fprintf(&b, "Highlight banner: %s\n", fs.ReleaseHighlight)
	}
	b.WriteString("\n")

	if len(fs.Features) == 1 {
		feature := fs.Features[0]
		b.WriteString("Single focus card, large and centered:\n")
		fmt.Fprintf(&b, "- Icon %s, title %q, body %q\n", feature.Icon, feature.Name, feature.Description)
	} else {
		b.WriteString("Feature cards in a balanced grid, in this order:\n")
		for i, feature := range fs.Features {
			fmt.Fprintf(&b, "%d. Icon %s, title %q, body %q\n", i+1, feature.Icon, feature.Name, feature.Description)
		}
	}
	b.WriteString("\n")

	if tool.Style != "" {
		fmt.Fprintf(&b, "Visual style: %s.\n", tool.Style)
	}
	fmt.Fprintf(&b, "Layout: %s composition, generous margins, readable typography.\n", format.describe())
	b.WriteString("Render every title and body exactly as written. No extra text, no watermarks.\n")

	return b.String()
}

// Synthesize renders one format, writes the file, and points the release
// record at it. The store itself is saved by the caller.
func (s *Synthesizer) Synthesize(fs *FeatureSet, tool ToolConfig, rel *ReleaseRecord, format ArtifactFormat) (string, error) {
	prompt := s.LayoutPrompt(fs, tool, format)

	data, err := s.image.Generate(prompt, format.aspectRatio())
	if err != nil {
		return "", fmt.Errorf("rendering %s infographic: %w", format, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("rendering %s infographic: empty image", format)
	}

	path := artifactPath(s.outputDir, rel.Tool, rel.Version, rel.Date, format)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating artifact directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing artifact %s: %w", path, err)
	}

	switch format {
	case FormatWide:
		rel.InfographicURL16x9 = path
	default:
		rel.InfographicURL = path
	}

	log.Printf("  ✓ Rendered %s infographic: %s", format, path)
	return path, nil
}

// artifactPath names an infographic file from stable release metadata, so
// re-renders overwrite instead of piling up.
func artifactPath(outputDir string, tool ToolID, version string, date time.Time, format ArtifactFormat) string {
	name := fmt.Sprintf("%s-%s-%s-%s.png",
		safeName(string(tool)), safeName(normalizeVersion(version)), date.Format("2006-01-02"), format)
	return filepath.Join(outputDir, name)
}
