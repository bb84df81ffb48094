package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
	"google.golang.org/genai"
)

var debugEnabled bool

// SetDebugMode enables or disables debug logging
func SetDebugMode(enabled bool) {
	debugEnabled = enabled
}

func debugLog(format string, args ...interface{}) {
	if debugEnabled {
		log.Printf("[DEBUG] "+format, args...)
	}
}

// TextRequest is one instruction/content exchange with the text service.
type TextRequest struct {
	System      string
	Prompt      string
	Schema      string // Anthropic tool schema for structured output; empty for free-form text
	Model       string
	MaxTokens   int
	Temperature float64
}

// TextGenerator is the boundary to the text-generation service. Responses
// are untrusted: callers must validate before persisting anything.
type TextGenerator interface {
	Generate(req TextRequest) (string, error)
}

// ImageGenerator is the boundary to the image-generation service.
type ImageGenerator interface {
	Generate(prompt, aspectRatio string) ([]byte, error)
}

// anthropicText sends prompts through the Anthropic API.
type anthropicText struct {
	apiKey string
}

// NewAnthropicGenerator creates the production text generator.
func NewAnthropicGenerator(apiKey string) (TextGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}
	return &anthropicText{apiKey: apiKey}, nil
}

func (a *anthropicText) Generate(req TextRequest) (string, error) {
	settings := types.RequestSettings{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	debugLog("text call: model=%s system=%d chars prompt=%d chars", req.Model, len(req.System), len(req.Prompt))

	response, err := anthropic.PromptWithSettings(req.System, req.Prompt, req.Schema, a.apiKey, settings)
	if err != nil {
		return "", fmt.Errorf("text generation failed: %w", err)
	}

	if len(response.Content) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	text := response.Content[0].Text
	preview := text
	if len(preview) > 100 {
		preview = preview[:100]
	}
	debugLog("text response (first 100 chars): %q", preview)

	return text, nil
}

// geminiImage renders infographics through the Gemini Imagen API.
type geminiImage struct {
	apiKey string
	model  string
}

// NewGeminiImageGenerator creates the production image generator.
func NewGeminiImageGenerator(apiKey, model string) (ImageGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("image model is required")
	}
	return &geminiImage{apiKey: apiKey, model: model}, nil
}

func (g *geminiImage) Generate(prompt, aspectRatio string) ([]byte, error) {
	ctx := context.Background()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create image client: %w", err)
	}

	debugLog("image call: model=%s aspect=%s prompt=%d chars", g.model, aspectRatio, len(prompt))

	result, err := client.Models.GenerateImages(ctx, g.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    aspectRatio,
		OutputMIMEType: "image/png",
	})
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}

	if len(result.GeneratedImages) == 0 || result.GeneratedImages[0].Image == nil {
		return nil, fmt.Errorf("no image in response")
	}
	data := result.GeneratedImages[0].Image.ImageBytes
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image in response")
	}

	return data, nil
}

// notFoundSentinel is the exact token the isolator prompt reserves for
// "this version is not on the page". It never doubles as real content.
const notFoundSentinel = "CONTENT_NOT_FOUND"

// IsolationResult is the tagged outcome of isolating one version's section
// from a fetched page.
type IsolationResult struct {
	Found   bool
	Content string
}

// parseIsolation maps the isolator's raw reply onto the tagged result.
func parseIsolation(raw string) IsolationResult {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.Contains(trimmed, notFoundSentinel) {
		return IsolationResult{}
	}
	return IsolationResult{Found: true, Content: trimmed}
}

// limitContentTokens limits content to approximately N tokens (using 4 chars ≈ 1 token)
func limitContentTokens(content string, maxTokens int) string {
	maxChars := maxTokens * 4
	if len(content) <= maxChars {
		return content
	}
	return content[:maxChars] + "..."
}
