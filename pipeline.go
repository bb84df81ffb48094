package main

import (
	"errors"
	"fmt"
	"log"
	"time"
)

// errUnknownTool marks a usage error: a tool id with no registry entry.
// Checked before any network or service activity.
var errUnknownTool = errors.New("unknown tool")

// GenerateOptions tunes a generation run.
type GenerateOptions struct {
	Count int
	Force bool
	Wide  bool
}

// Processor drives the full pipeline for one release or a batch: source
// resolution, extraction, validation, artifact rendering, persistence.
type Processor struct {
	config    *Config
	store     *ReleaseStore
	resolver  *SourceResolver
	extractor *FeatureExtractor
	auditor   *Auditor
	synth     *Synthesizer
	now       func() time.Time
}

func NewProcessor(config *Config, store *ReleaseStore, fetcher pageFetcher, compare compareSource, text TextGenerator, image ImageGenerator) *Processor {
	return &Processor{
		config:    config,
		store:     store,
		resolver:  NewSourceResolver(config, fetcher, compare, text),
		extractor: NewFeatureExtractor(config, text),
		auditor:   NewAuditor(config, text),
		synth:     NewSynthesizer(config, image),
		now:       time.Now,
	}
}

// Generate runs the pipeline for one release and rewrites the store.
// Unknown tools and versions fail fast; pipeline failures come back in the
// result, not as an error, so batch callers can keep going.
func (p *Processor) Generate(toolID ToolID, version string, opts GenerateOptions) (ProcessingResult, error) {
	rel, tool, err := p.lookup(toolID, version)
	if err != nil {
		return ProcessingResult{}, err
	}

	result := p.processRelease(rel, tool, opts)
	if err := p.store.Save(); err != nil {
		return result, fmt.Errorf("saving release store: %w", err)
	}
	return result, nil
}

// GenerateAllMissing processes every release lacking an artifact within the
// recency window, newest first. One release fully completes before the next
// starts, failures never stop the batch, and the store is rewritten once at
// the end.
func (p *Processor) GenerateAllMissing(maxAgeDays int, opts GenerateOptions) ([]ProcessingResult, error) {
	maxAge := time.Duration(maxAgeDays) * 24 * time.Hour
	releases := p.store.MissingArtifacts(maxAge)
	if len(releases) == 0 {
		log.Printf("✓ Every release in the window already has an artifact")
		return nil, nil
	}

	log.Printf("→ %d releases missing artifacts", len(releases))

	var results []ProcessingResult
	for i, rel := range releases {
		log.Printf("[%d/%d] %s %s", i+1, len(releases), rel.Tool, rel.Version)

		tool, ok := p.config.Tool(rel.Tool)
		if !ok {
			log.Printf("  ✗ Release references unknown tool %q", rel.Tool)
			results = append(results, ProcessingResult{
				Tool:    rel.Tool,
				Version: rel.Version,
				Status:  StatusFailed,
				Error:   fmt.Errorf("%w %q", errUnknownTool, rel.Tool),
			})
			continue
		}

		results = append(results, p.processRelease(rel, tool, opts))
	}

	if err := p.store.Save(); err != nil {
		return results, fmt.Errorf("saving release store: %w", err)
	}

	logBatchSummary(results)
	return results, nil
}

func (p *Processor) lookup(toolID ToolID, version string) (*ReleaseRecord, ToolConfig, error) {
	tool, ok := p.config.Tool(toolID)
	if !ok {
		return nil, ToolConfig{}, fmt.Errorf("%w %q", errUnknownTool, toolID)
	}
	if version == "" {
		rel, ok := p.store.Latest(toolID)
		if !ok {
			return nil, ToolConfig{}, fmt.Errorf("no releases for %s in store", toolID)
		}
		return rel, tool, nil
	}
	rel, ok := p.store.Find(toolID, version)
	if !ok {
		return nil, ToolConfig{}, fmt.Errorf("no release %s %s in store", toolID, version)
	}
	return rel, tool, nil
}

func (p *Processor) processRelease(rel *ReleaseRecord, tool ToolConfig, opts GenerateOptions) ProcessingResult {
	result := ProcessingResult{Tool: rel.Tool, Version: rel.Version}

	log.Printf("→ Processing %s %s", tool.Name, rel.Version)

	if rel.HasArtifact() && !opts.Force {
		log.Printf("  ✓ Artifact already exists, skipping")
		result.Status = StatusSkipped
		return result
	}

	// Forced runs re-source from scratch instead of reusing the cache.
	source, _ := p.resolver.Resolve(*rel, tool, !opts.Force)

	fs, err := p.extractor.Extract(*rel, tool, opts.Count, source)
	if err != nil {
		p.recordFailure(rel, source, err)
		result.Status = StatusFailed
		result.Error = err
		return result
	}

	if err := SaveFeatureSet(p.config.Settings.OutputDirectory, rel.Tool, rel.Version, fs); err != nil {
		result.Status = StatusFailed
		result.Error = err
		return result
	}

	formats := []ArtifactFormat{FormatSquare}
	if opts.Wide {
		formats = append(formats, FormatWide)
	}
	for _, format := range formats {
		path, err := p.synth.Synthesize(fs, tool, rel, format)
		if err != nil {
			p.recordFailure(rel, source, err)
			result.Status = StatusFailed
			result.Error = err
			return result
		}
		result.Artifacts = append(result.Artifacts, path)
	}

	result.Status = StatusSuccess
	return result
}

// recordFailure writes the diagnostic file for a failed run. A failure to
// write the report itself is only logged; the run is already failing.
func (p *Processor) recordFailure(rel *ReleaseRecord, source SourceContent, cause error) {
	attempts := p.config.Settings.Retry.MaxAttempts
	var exhausted *RetryExhaustedError
	if errors.As(cause, &exhausted) {
		attempts = exhausted.Attempts
	}

	report := &FailureReport{
		Timestamp: p.now().UTC(),
		Tool:      rel.Tool,
		Version:   rel.Version,
		Reason:    cause.Error(),
		Release: ReleaseSnapshot{
			Summary:      rel.Summary,
			FullNotesLen: len(rel.FullNotes),
			URL:          rel.URL,
		},
		FetchedContentLength: source.Len(),
		RetryAttempts:        attempts,
	}

	path, err := SaveFailureReport(p.config.Settings.OutputDirectory, report)
	if err != nil {
		log.Printf("  ✗ Writing failure report: %v", err)
		return
	}
	log.Printf("  ✗ Failed: %v (report: %s)", cause, path)
}

// AuditSummary aggregates accuracy audits across releases.
type AuditSummary struct {
	Reports    []*ValidationReport
	Verified   int
	Inferred   int
	Fabricated int
	Skipped    int
}

// Clean reports whether the audit found no fabricated claims.
func (s *AuditSummary) Clean() bool { return s.Fabricated == 0 }

// Validate audits persisted extractions against their stored source
// content. With all set it walks every release carrying a cached
// extraction; otherwise it audits one release, defaulting to the tool's
// latest.
func (p *Processor) Validate(toolID ToolID, version string, all bool) (*AuditSummary, error) {
	var targets []ReleaseRecord
	if all {
		targets = p.store.Releases()
	} else {
		rel, _, err := p.lookup(toolID, version)
		if err != nil {
			return nil, err
		}
		targets = []ReleaseRecord{*rel}
	}

	summary := &AuditSummary{}
	outputDir := p.config.Settings.OutputDirectory
	for i, rel := range targets {
		if all {
			log.Printf("[%d/%d] Auditing %s %s", i+1, len(targets), rel.Tool, rel.Version)
		}

		fs, err := LoadFeatureSet(outputDir, rel.Tool, rel.Version)
		if err != nil {
			if !all {
				return nil, fmt.Errorf("no cached extraction for %s %s: %w", rel.Tool, rel.Version, err)
			}
			log.Printf("  – No cached extraction for %s %s", rel.Tool, rel.Version)
			summary.Skipped++
			continue
		}

		report, err := p.auditor.Audit(rel, fs)
		if err != nil {
			if !all {
				return nil, err
			}
			log.Printf("  ✗ Audit failed for %s %s: %v", rel.Tool, rel.Version, err)
			summary.Skipped++
			continue
		}

		if path, err := SaveValidationReport(outputDir, report); err != nil {
			log.Printf("  ✗ Writing audit report: %v", err)
		} else {
			log.Printf("  → Audit report: %s", path)
		}

		summary.Reports = append(summary.Reports, report)
		for _, v := range report.Validations {
			switch v.Status {
			case StatusVerified:
				summary.Verified++
			case StatusInferred:
				summary.Inferred++
			case StatusFabricated:
				summary.Fabricated++
			}
		}
	}

	if summary.Fabricated > 0 {
		log.Printf("✗ Audit found %d fabricated claims (%d verified, %d inferred)", summary.Fabricated, summary.Verified, summary.Inferred)
	} else {
		log.Printf("✓ Audit clean: %d verified, %d inferred across %d releases", summary.Verified, summary.Inferred, len(summary.Reports))
	}
	return summary, nil
}

func logBatchSummary(results []ProcessingResult) {
	var success, skipped, failed int
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			success++
		case StatusSkipped:
			skipped++
		case StatusFailed:
			failed++
		}
	}
	log.Printf("→ Batch done: %d succeeded, %d skipped, %d failed", success, skipped, failed)
	for _, r := range results {
		if r.Status == StatusFailed {
			log.Printf("  ✗ %s %s: %v", r.Tool, r.Version, r.Error)
		}
	}
}

// FailedCount reports how many results failed, for exit-status decisions.
func FailedCount(results []ProcessingResult) int {
	n := 0
	for _, r := range results {
		if r.Status == StatusFailed {
			n++
		}
	}
	return n
}
