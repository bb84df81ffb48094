package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// errBudgetExhausted is returned once a remediation run has spent its
// text-generation call allowance.
var errBudgetExhausted = errors.New("text-generation call budget exhausted")

// CallBudget caps text-generation calls for one remediation run. Each run
// gets a fresh budget, so runs cannot leak spend into each other.
type CallBudget struct {
	max  int
	used int
}

func NewCallBudget(max int) *CallBudget {
	return &CallBudget{max: max}
}

// Spend consumes one call, or reports exhaustion without consuming.
func (b *CallBudget) Spend() error {
	if b.used >= b.max {
		return errBudgetExhausted
	}
	b.used++
	return nil
}

func (b *CallBudget) Used() int      { return b.used }
func (b *CallBudget) Remaining() int { return b.max - b.used }

// budgetedText meters a TextGenerator against a CallBudget. Exhaustion is
// permanent so retry loops stop instead of spinning on a spent budget.
type budgetedText struct {
	inner  TextGenerator
	budget *CallBudget
}

func (g *budgetedText) Generate(req TextRequest) (string, error) {
	if err := g.budget.Spend(); err != nil {
		return "", Permanent(err)
	}
	return g.inner.Generate(req)
}

// Remediator recovers releases that failed standard generation. It works
// through alternative sourcing strategies in a fixed order under a hard
// text-generation call cap, and always writes a result document saying
// what it tried.
type Remediator struct {
	config  *Config
	fetcher pageFetcher
	text    TextGenerator
	image   ImageGenerator
	store   *ReleaseStore
	now     func() time.Time
}

func NewRemediator(config *Config, fetcher pageFetcher, text TextGenerator, image ImageGenerator, store *ReleaseStore) *Remediator {
	return &Remediator{
		config:  config,
		fetcher: fetcher,
		text:    text,
		image:   image,
		store:   store,
		now:     time.Now,
	}
}

// Remediate runs the recovery strategies for one release. Unknown tools and
// versions fail fast; every run that gets past that writes a
// RemediationResult, budget exhaustion included.
func (r *Remediator) Remediate(toolID ToolID, version, issueRef string, attempt int) (*RemediationResult, error) {
	tool, ok := r.config.Tool(toolID)
	if !ok {
		return nil, fmt.Errorf("%w %q", errUnknownTool, toolID)
	}
	rel, ok := r.store.Find(toolID, version)
	if !ok {
		return nil, fmt.Errorf("no release %s %s in store", toolID, version)
	}

	log.Printf("→ Remediating %s %s (attempt %d)", tool.Name, rel.Version, attempt)

	budget := NewCallBudget(r.config.Settings.Remediation.CallBudget)
	gen := &budgetedText{inner: r.text, budget: budget}

	result := &RemediationResult{
		Status:    RemediationFailed,
		Tool:      toolID,
		Version:   rel.Version,
		Attempt:   attempt,
		IssueRef:  issueRef,
		Timestamp: r.now().UTC(),
	}

	var (
		content       SourceContent
		fs            *FeatureSet
		budgetStopped bool
	)

	section, outcome := r.directSection(tool, rel.Version)
	result.Strategies = append(result.Strategies, outcome)
	if section != "" {
		content = SourceContent{Text: section, Origin: OriginFetched, URL: tool.ChangelogURL}
	}

	if content.Text == "" {
		probed, url, outcome := r.probeAltURLs(gen, tool, rel.Version)
		result.Strategies = append(result.Strategies, outcome)
		if probed != "" {
			content = SourceContent{Text: probed, Origin: OriginFetched, URL: url}
		}
		if strings.Contains(outcome.Detail, errBudgetExhausted.Error()) {
			budgetStopped = true
		}
	}

	if content.Text != "" {
		extractor := NewFeatureExtractor(r.config, gen)
		extracted, err := extractor.Extract(*rel, tool, r.config.Settings.Features.DefaultCount, content)
		if err != nil {
			result.Strategies = append(result.Strategies, StrategyOutcome{
				Name:    "feature extraction",
				Outcome: "failed",
				Detail:  err.Error(),
			})
			if errors.Is(err, errBudgetExhausted) {
				budgetStopped = true
			}
		} else {
			fs = extracted
			result.Strategies = append(result.Strategies, StrategyOutcome{Name: "feature extraction", Outcome: "success"})
		}
	}

	if fs == nil {
		inferred, outcome := r.inferFromNotes(gen, *rel, tool)
		result.Strategies = append(result.Strategies, outcome)
		if inferred != nil {
			fs = inferred
		}
		if strings.Contains(outcome.Detail, errBudgetExhausted.Error()) {
			budgetStopped = true
		}
	}

	if fs == nil {
		if budgetStopped {
			result.Conclusion = fmt.Sprintf("call budget spent (%d/%d) before any strategy produced an accepted feature set", budget.Used(), budget.max)
		} else {
			result.Conclusion = "no strategy produced usable content; the release may genuinely not warrant an infographic"
		}
		log.Printf("  ✗ Remediation failed for %s %s: %s", toolID, rel.Version, result.Conclusion)
		return r.persist(result)
	}

	if err := SaveFeatureSet(r.config.Settings.OutputDirectory, toolID, rel.Version, fs); err != nil {
		result.Status = RemediationError
		result.Conclusion = fmt.Sprintf("saving feature set: %v", err)
		return r.persist(result)
	}

	synth := NewSynthesizer(r.config, r.image)
	if _, err := synth.Synthesize(fs, tool, rel, FormatSquare); err != nil {
		result.Status = RemediationError
		result.Conclusion = fmt.Sprintf("rendering artifact: %v", err)
		return r.persist(result)
	}
	if err := r.store.Save(); err != nil {
		result.Status = RemediationError
		result.Conclusion = fmt.Sprintf("saving release store: %v", err)
		return r.persist(result)
	}

	result.Status = RemediationFixed
	result.Conclusion = fmt.Sprintf("recovered %d features and rendered the artifact (%d service calls)", len(fs.Features), budget.Used())
	log.Printf("  ✓ Remediation fixed %s %s (%d service calls)", toolID, rel.Version, budget.Used())
	return r.persist(result)
}

func (r *Remediator) persist(result *RemediationResult) (*RemediationResult, error) {
	path, err := SaveRemediationResult(r.config.Settings.OutputDirectory, result)
	if err != nil {
		return result, fmt.Errorf("writing remediation result: %w", err)
	}
	log.Printf("  → Remediation result: %s", path)
	return result, nil
}

// directSection fetches the canonical changelog and cuts out the target
// version's section with plain text matching. No service calls.
func (r *Remediator) directSection(tool ToolConfig, version string) (string, StrategyOutcome) {
	outcome := StrategyOutcome{Name: "direct source parse", Outcome: "failed"}
	if tool.ChangelogURL == "" {
		outcome.Outcome = "skipped"
		outcome.Detail = "no canonical changelog URL configured"
		return "", outcome
	}

	page, err := r.fetcher.FetchRaw(tool.ChangelogURL)
	if err != nil {
		outcome.Detail = fmt.Sprintf("fetching %s: %v", tool.ChangelogURL, err)
		log.Printf("  ✗ %s", outcome.Detail)
		return "", outcome
	}

	var section string
	if looksLikeHTML([]byte(page)) {
		section = matchHTMLSection(page, version)
	} else {
		section = matchMarkdownSection(page, version)
	}

	minLen := r.config.Settings.Remediation.MinSectionLength
	if len(section) < minLen {
		outcome.Detail = fmt.Sprintf("no section of at least %d chars for %s at %s", minLen, version, tool.ChangelogURL)
		log.Printf("  – Direct parse found nothing for %s", version)
		return "", outcome
	}

	outcome.Outcome = "success"
	outcome.Detail = fmt.Sprintf("matched %d chars at %s", len(section), tool.ChangelogURL)
	log.Printf("  ✓ Direct parse matched %d chars", len(section))
	return section, outcome
}

// probeAltURLs walks the tool's secondary changelog URLs, asking the
// service to isolate the version section from each page. Fetches are
// uncapped; isolation calls draw on the shared budget.
func (r *Remediator) probeAltURLs(gen TextGenerator, tool ToolConfig, version string) (string, string, StrategyOutcome) {
	outcome := StrategyOutcome{Name: "alternative URL probing", Outcome: "failed"}
	if len(tool.AltURLs) == 0 {
		outcome.Outcome = "skipped"
		outcome.Detail = "no alternative URLs configured"
		return "", "", outcome
	}

	minLen := r.config.Settings.Remediation.MinSectionLength
	var notes []string
	for _, url := range tool.AltURLs {
		page, err := r.fetcher.FetchMarkdown(url)
		if err != nil {
			log.Printf("  ✗ Fetching %s: %v", url, err)
			notes = append(notes, fmt.Sprintf("%s: fetch failed (%v)", url, err))
			continue
		}

		result, err := isolateVersionContent(gen, r.config, page, tool, version)
		if err != nil {
			if errors.Is(err, errBudgetExhausted) {
				outcome.Detail = errBudgetExhausted.Error()
				return "", "", outcome
			}
			log.Printf("  ✗ Isolating %s from %s: %v", version, url, err)
			notes = append(notes, fmt.Sprintf("%s: isolation failed (%v)", url, err))
			continue
		}
		if !result.Found || len(result.Content) < minLen {
			log.Printf("  – No usable section for %s at %s", version, url)
			notes = append(notes, fmt.Sprintf("%s: no usable section", url))
			continue
		}

		outcome.Outcome = "success"
		outcome.Detail = fmt.Sprintf("isolated %d chars from %s", len(result.Content), url)
		log.Printf("  ✓ Isolated %d chars from %s", len(result.Content), url)
		return result.Content, url, outcome
	}

	outcome.Detail = strings.Join(notes, "; ")
	return "", "", outcome
}

type inferredResponse struct {
	Features         []Feature `json:"features"`
	ReleaseHighlight string    `json:"releaseHighlight"`
	Confidence       string    `json:"confidence"`
}

// inferFromNotes asks the service to pull whatever signal exists out of
// the release's own sparse notes. Only a non-low confidence result with
// valid features is accepted.
func (r *Remediator) inferFromNotes(gen TextGenerator, rel ReleaseRecord, tool ToolConfig) (*FeatureSet, StrategyOutcome) {
	outcome := StrategyOutcome{Name: "sparse notes inference", Outcome: "failed"}

	notes := rel.FullNotes
	if len(rel.Summary) > len(notes) {
		notes = rel.Summary
	}
	if strings.TrimSpace(notes) == "" {
		outcome.Outcome = "skipped"
		outcome.Detail = "release carries no notes to infer from"
		return nil, outcome
	}

	template := r.config.GetInferPrompt()
	if !strings.Contains(template, "{{.tool_name}}") {
		outcome.Detail = "infer prompt template must contain {{.tool_name}} variable"
		return nil, outcome
	}
	system := strings.ReplaceAll(template, "{{.tool_name}}", tool.Name)

	agent := r.config.Settings.Agents.Extractor
	prompt := fmt.Sprintf("Release: %s %s\n\nRelease notes:\n%s",
		tool.Name, rel.Version, limitContentTokens(notes, agent.ContentMaxTokens))

	raw, err := gen.Generate(TextRequest{
		System:      system,
		Prompt:      prompt,
		Schema:      r.config.GetInferSchema(),
		Model:       agent.Model,
		MaxTokens:   agent.MaxTokens,
		Temperature: agent.Temperature,
	})
	if err != nil {
		outcome.Detail = err.Error()
		if !errors.Is(err, errBudgetExhausted) {
			log.Printf("  ✗ Inference call: %v", err)
		}
		return nil, outcome
	}

	obj, err := extractJSONObject(raw)
	if err != nil {
		outcome.Detail = fmt.Sprintf("parsing inference response: %v", err)
		return nil, outcome
	}
	var inferred inferredResponse
	if err := json.Unmarshal([]byte(obj), &inferred); err != nil {
		outcome.Detail = fmt.Sprintf("parsing inference response: %v", err)
		return nil, outcome
	}

	confidence := strings.ToLower(strings.TrimSpace(inferred.Confidence))
	if confidence != "high" && confidence != "medium" {
		outcome.Detail = fmt.Sprintf("service reported %q confidence", inferred.Confidence)
		log.Printf("  – Inference confidence too low (%q)", inferred.Confidence)
		return nil, outcome
	}

	fs := &FeatureSet{
		Features:         inferred.Features,
		ReleaseHighlight: inferred.ReleaseHighlight,
		ReleaseInfo:      formatReleaseInfo(rel),
		SourceContent:    notes,
		SourceURL:        rel.URL,
		SourceOrigin:     OriginFullNotes,
		ExtractedAt:      r.now(),
	}
	if err := ValidateFeatureSet(fs); err != nil {
		outcome.Detail = err.Error()
		return nil, outcome
	}

	outcome.Outcome = "success"
	outcome.Detail = fmt.Sprintf("inferred %d features with %s confidence", len(fs.Features), confidence)
	log.Printf("  ✓ Inferred %d features (%s confidence)", len(fs.Features), confidence)
	return fs, outcome
}

// versionSectionExpr matches the version inside a heading without matching
// longer versions that merely contain it ("1.2.0" must not hit "1.2.0-beta"
// or "11.2.0").
func versionSectionExpr(version string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(normalizeVersion(version))
	return regexp.MustCompile(`(?i)\bv?` + quoted + `(?:[^0-9A-Za-z.-]|$)`)
}

var markdownHeadingExpr = regexp.MustCompile(`^(#{1,6})\s+\S`)

// matchMarkdownSection returns the text between the heading naming version
// and the next heading of the same or higher level.
func matchMarkdownSection(markdown, version string) string {
	expr := versionSectionExpr(version)
	lines := strings.Split(markdown, "\n")

	start := -1
	level := 0
	for i, line := range lines {
		m := markdownHeadingExpr.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if start == -1 {
			if expr.MatchString(line) {
				start = i
				level = len(m[1])
			}
			continue
		}
		if len(m[1]) <= level {
			return strings.TrimSpace(strings.Join(lines[start:i], "\n"))
		}
	}
	if start == -1 {
		return ""
	}
	return strings.TrimSpace(strings.Join(lines[start:], "\n"))
}

// matchHTMLSection walks rendered changelog HTML for a heading naming the
// version and collects sibling content up to the next heading.
func matchHTMLSection(html, version string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	expr := versionSectionExpr(version)
	var section string
	doc.Find("h1, h2, h3, h4").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !expr.MatchString(s.Text()) {
			return true
		}

		var b strings.Builder
		b.WriteString(strings.TrimSpace(s.Text()))
		for sibling := s.Next(); sibling.Length() > 0; sibling = sibling.Next() {
			name := goquery.NodeName(sibling)
			if name == "h1" || name == "h2" || name == "h3" || name == "h4" {
				break
			}
			text := strings.TrimSpace(sibling.Text())
			if text != "" {
				b.WriteString("\n\n")
				b.WriteString(text)
			}
		}
		section = b.String()
		return false
	})
	return section
}
