package main

import (
	"fmt"
	"log"
	"regexp"
	"strings"
)

// minContentLength is the cutoff below which release text is too thin to
// extract real features from.
const minContentLength = 100

// pageFetcher is the slice of PageFetcher the resolver needs.
type pageFetcher interface {
	FetchMarkdown(url string) (string, error)
	FetchRaw(url string) (string, error)
}

// compareSource is the slice of CompareClient the resolver needs.
type compareSource interface {
	BuildReleaseContent(repo, ref string) (string, error)
}

// SourceResolver assembles the best-available source text for a release,
// working down a fixed priority: stored extraction, release notes, fetched
// changelog section, compare-API reconstruction, then whatever is left.
type SourceResolver struct {
	config       *Config
	fetcher      pageFetcher
	compare      compareSource
	text         TextGenerator
	retry        Retryer
	compareRetry Retryer
	outputDir    string
}

// NewSourceResolver builds a resolver with retry policies from settings.
func NewSourceResolver(config *Config, fetcher pageFetcher, compare compareSource, text TextGenerator) *SourceResolver {
	return &SourceResolver{
		config:       config,
		fetcher:      fetcher,
		compare:      compare,
		text:         text,
		retry:        NewRetryer(config.Settings.Retry.MaxAttempts, config.Settings.RetryDelay()),
		compareRetry: NewRetryer(config.Settings.Retry.CompareAttempts, config.Settings.RetryDelay()),
		outputDir:    config.Settings.OutputDirectory,
	}
}

// Resolve returns the source content for rel and whether the result is
// still below the usable-content threshold. Failures along the chain are
// logged and the next source is tried; Resolve itself never aborts a run.
func (r *SourceResolver) Resolve(rel ReleaseRecord, tool ToolConfig, reuseCached bool) (SourceContent, bool) {
	// 1. A previous run's extraction already carries its source.
	if reuseCached {
		if fs, err := LoadFeatureSet(r.outputDir, rel.Tool, rel.Version); err == nil && fs.SourceContent != "" {
			log.Printf("  → Reusing stored source content (%d chars)", len(fs.SourceContent))
			return SourceContent{Text: fs.SourceContent, Origin: OriginStored, URL: fs.SourceURL}, false
		}
	}

	// 2. The scraper may have captured usable notes already.
	if len(rel.FullNotes) >= minContentLength {
		return SourceContent{Text: rel.FullNotes, Origin: OriginFullNotes, URL: rel.URL}, false
	}
	if len(rel.Summary) >= minContentLength {
		return SourceContent{Text: rel.Summary, Origin: OriginFullNotes, URL: rel.URL}, false
	}

	// 3. Fetch the release URL and isolate this version's section.
	var fetchedPage, isolated string
	if rel.URL != "" {
		page, err := r.fetchPage(rel.URL)
		if err != nil {
			log.Printf("  ✗ Fetching %s: %v", rel.URL, err)
		} else {
			fetchedPage = page
			result, err := r.isolateSection(page, tool, rel.Version)
			switch {
			case err != nil:
				log.Printf("  ✗ Isolating %s section: %v", rel.Version, err)
			case !result.Found:
				log.Printf("  – Page at %s has no section for %s", rel.URL, rel.Version)
			default:
				isolated = result.Content
			}
		}
	}
	if len(isolated) >= minContentLength {
		return SourceContent{Text: isolated, Origin: OriginFetched, URL: rel.URL}, false
	}

	// 4. Reconstruct release content from the compare API.
	if tool.Repo != "" {
		if ref := findCompareRef(rel.FullNotes, rel.Summary, rel.URL, fetchedPage); ref != "" {
			content, err := r.compareContent(tool.Repo, ref)
			if err != nil {
				log.Printf("  ✗ Compare fallback %s: %v", ref, err)
			} else if content != "" {
				url := fmt.Sprintf("https://github.com/%s/compare/%s", tool.Repo, ref)
				return SourceContent{Text: content, Origin: OriginCompare, URL: url}, false
			}
		}
	}

	// 5. Fall back to the longest text we have, however thin.
	best := SourceContent{Origin: OriginFullNotes, URL: rel.URL}
	if len(rel.Summary) > 0 {
		best.Text = rel.Summary
	}
	if len(rel.FullNotes) > len(best.Text) {
		best.Text = rel.FullNotes
	}
	if len(isolated) > len(best.Text) {
		best = SourceContent{Text: isolated, Origin: OriginFetched, URL: rel.URL}
	}

	insufficient := best.Len() < minContentLength
	if insufficient {
		log.Printf("  ⚠ Proceeding with insufficient source content (%d chars) for %s %s", best.Len(), rel.Tool, rel.Version)
	}
	return best, insufficient
}

func (r *SourceResolver) fetchPage(url string) (string, error) {
	var page string
	err := r.retry.Do("page fetch", func(attempt int) error {
		p, err := r.fetcher.FetchMarkdown(url)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	return page, err
}

// isolateSection retries transport failures only. A sentinel reply is a
// successful call that found nothing.
func (r *SourceResolver) isolateSection(page string, tool ToolConfig, version string) (IsolationResult, error) {
	var result IsolationResult
	err := r.retry.Do("section isolation", func(attempt int) error {
		res, err := isolateVersionContent(r.text, r.config, page, tool, version)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	return result, err
}

func (r *SourceResolver) compareContent(repo, ref string) (string, error) {
	var content string
	err := r.compareRetry.Do("compare fetch", func(attempt int) error {
		c, err := r.compare.BuildReleaseContent(repo, ref)
		if err != nil {
			return err
		}
		content = c
		return nil
	})
	return content, err
}

// isolateVersionContent asks the text service to cut one version's section
// out of a full changelog page. One call, no retries at this level.
func isolateVersionContent(gen TextGenerator, config *Config, pageText string, tool ToolConfig, version string) (IsolationResult, error) {
	template := config.GetIsolatePrompt()
	if !strings.Contains(template, "{{.version}}") {
		return IsolationResult{}, fmt.Errorf("isolator prompt template must contain {{.version}} variable")
	}
	system := strings.ReplaceAll(template, "{{.version}}", version)
	system = strings.ReplaceAll(system, "{{.tool_name}}", tool.Name)

	agent := config.Settings.Agents.Isolator
	limited := limitContentTokens(pageText, agent.ContentMaxTokens)
	prompt := fmt.Sprintf("Changelog page:\n%s", limited)

	raw, err := gen.Generate(TextRequest{
		System:      system,
		Prompt:      prompt,
		Model:       agent.Model,
		MaxTokens:   agent.MaxTokens,
		Temperature: agent.Temperature,
	})
	if err != nil {
		return IsolationResult{}, err
	}
	return parseIsolation(raw), nil
}

var compareRefExpr = regexp.MustCompile(`(v?\d+\.\d+(?:\.\d+)?[0-9A-Za-z-]*)\.\.\.(v?\d+\.\d+(?:\.\d+)?[0-9A-Za-z-]*)`)

// findCompareRef scans text blobs for a source-control compare reference
// like "v1.1.0...v1.2.0" and returns the first one found.
func findCompareRef(texts ...string) string {
	for _, text := range texts {
		if m := compareRefExpr.FindString(text); m != "" {
			return m
		}
	}
	return ""
}
