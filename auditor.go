package main

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

// Auditor re-examines an accepted feature set against the source text it
// was extracted from, producing one verdict per claim.
type Auditor struct {
	config *Config
	text   TextGenerator
	now    func() time.Time
}

// NewAuditor builds an auditor over the given text service.
func NewAuditor(config *Config, text TextGenerator) *Auditor {
	return &Auditor{config: config, text: text, now: time.Now}
}

// auditResponse is the service's raw judgment before reconciliation.
type auditResponse struct {
	Validations []FeatureValidation `json:"validations"`
	Accuracy    string              `json:"accuracy"`
	Summary     string              `json:"summary"`
}

// Audit judges every feature in fs against its recorded source content.
// The returned report always carries exactly one validation per input
// feature, whatever the service actually answered.
func (a *Auditor) Audit(rel ReleaseRecord, fs *FeatureSet) (*ValidationReport, error) {
	if fs == nil || len(fs.Features) == 0 {
		return nil, fmt.Errorf("no features to audit for %s %s", rel.Tool, rel.Version)
	}

	source := fs.SourceContent
	if source == "" {
		source = rel.FullNotes
	}
	if source == "" {
		source = rel.Summary
	}

	claims, err := json.MarshalIndent(fs.Features, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding feature claims: %w", err)
	}

	agent := a.config.Settings.Agents.Auditor
	limited := limitContentTokens(source, agent.ContentMaxTokens)
	prompt := fmt.Sprintf("Feature claims:\n%s\n\nSource content:\n%s", claims, limited)

	raw, err := a.text.Generate(TextRequest{
		System:      a.config.GetAuditorPrompt(),
		Prompt:      prompt,
		Schema:      a.config.GetAuditorSchema(),
		Model:       agent.Model,
		MaxTokens:   agent.MaxTokens,
		Temperature: agent.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("audit call failed: %w", err)
	}

	parsed, err := parseAuditResponse(raw)
	if err != nil {
		return nil, err
	}

	report := reconcileAudit(rel, fs, parsed, a.now())
	log.Printf("  ✓ Audited %s %s: %s (%d verified, %d inferred, %d fabricated)",
		rel.Tool, rel.Version, report.Accuracy,
		countStatus(report.Validations, StatusVerified),
		countStatus(report.Validations, StatusInferred),
		countStatus(report.Validations, StatusFabricated))
	return report, nil
}

func parseAuditResponse(raw string) (*auditResponse, error) {
	obj, err := extractJSONObject(raw)
	if err != nil {
		return nil, fmt.Errorf("audit response: %w", err)
	}

	var parsed auditResponse
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return nil, fmt.Errorf("parsing audit JSON: %w", err)
	}
	return &parsed, nil
}

// reconcileAudit maps the service's judgments back onto the input claims.
// Features the service skipped or mislabeled are marked FABRICATED so a
// lazy audit can never make a claim look safe.
func reconcileAudit(rel ReleaseRecord, fs *FeatureSet, parsed *auditResponse, at time.Time) *ValidationReport {
	byName := make(map[string]FeatureValidation, len(parsed.Validations))
	for _, v := range parsed.Validations {
		key := normalizeClaimName(v.Feature)
		if _, dup := byName[key]; !dup {
			byName[key] = v
		}
	}

	validations := make([]FeatureValidation, 0, len(fs.Features))
	for _, feature := range fs.Features {
		answer, ok := byName[normalizeClaimName(feature.Name)]
		status := normalizeStatus(answer.Status)
		if !ok || status == "" {
			validations = append(validations, FeatureValidation{
				Feature:  feature.Name,
				Status:   StatusFabricated,
				Evidence: "auditor returned no judgment for this feature",
			})
			continue
		}
		validations = append(validations, FeatureValidation{
			Feature:  feature.Name,
			Status:   status,
			Evidence: answer.Evidence,
		})
	}

	accuracy := normalizeAccuracy(parsed.Accuracy)
	if accuracy == "" {
		accuracy = deriveAccuracy(validations)
	}
	if countStatus(validations, StatusFabricated) > 0 {
		accuracy = AccuracyLow
	}

	summary := strings.TrimSpace(parsed.Summary)
	if summary == "" {
		summary = fmt.Sprintf("%d of %d claims verified against the source.",
			countStatus(validations, StatusVerified), len(validations))
	}

	return &ValidationReport{
		Tool:        rel.Tool,
		Version:     rel.Version,
		Validations: validations,
		Accuracy:    accuracy,
		Summary:     summary,
		AuditedAt:   at,
	}
}

func normalizeClaimName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func normalizeStatus(status ValidationStatus) ValidationStatus {
	switch ValidationStatus(strings.ToUpper(strings.TrimSpace(string(status)))) {
	case StatusVerified:
		return StatusVerified
	case StatusInferred:
		return StatusInferred
	case StatusFabricated:
		return StatusFabricated
	}
	return ""
}

func normalizeAccuracy(accuracy string) AccuracyRating {
	switch AccuracyRating(strings.ToUpper(strings.TrimSpace(accuracy))) {
	case AccuracyHigh:
		return AccuracyHigh
	case AccuracyMedium:
		return AccuracyMedium
	case AccuracyLow:
		return AccuracyLow
	}
	return ""
}

// deriveAccuracy rates a report from verdict counts when the service's
// own rating is unusable.
func deriveAccuracy(validations []FeatureValidation) AccuracyRating {
	fabricated := countStatus(validations, StatusFabricated)
	verified := countStatus(validations, StatusVerified)

	switch {
	case fabricated > 0:
		return AccuracyLow
	case verified == len(validations):
		return AccuracyHigh
	default:
		return AccuracyMedium
	}
}

func countStatus(validations []FeatureValidation, status ValidationStatus) int {
	n := 0
	for _, v := range validations {
		if v.Status == status {
			n++
		}
	}
	return n
}
