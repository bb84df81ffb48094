package main

import "time"

// ToolID identifies one tracked tool in the registry.
type ToolID string

// ReleaseRecord is the canonical store entry for one tool release. Records
// are created by the scraper; this pipeline only fills in artifact URLs.
type ReleaseRecord struct {
	ID                 string    `json:"id"`
	Tool               ToolID    `json:"tool"`
	Version            string    `json:"version"`
	Date               time.Time `json:"date"`
	Summary            string    `json:"summary,omitempty"`
	FullNotes          string    `json:"fullNotes,omitempty"`
	URL                string    `json:"url,omitempty"`
	InfographicURL     string    `json:"infographicUrl,omitempty"`
	InfographicURL16x9 string    `json:"infographicUrl16x9,omitempty"`
}

// HasArtifact reports whether the primary infographic was already generated.
func (r *ReleaseRecord) HasArtifact() bool {
	return r.InfographicURL != ""
}

// SourceOrigin tags where resolved source content came from.
type SourceOrigin string

const (
	OriginStored    SourceOrigin = "stored"
	OriginFullNotes SourceOrigin = "fullNotes"
	OriginFetched   SourceOrigin = "fetched"
	OriginCompare   SourceOrigin = "compare"
)

// SourceContent is the text a release's features are extracted from,
// tagged with where it was found.
type SourceContent struct {
	Text   string       `json:"text"`
	Origin SourceOrigin `json:"origin"`
	URL    string       `json:"url,omitempty"`
}

// Len returns the content length in bytes.
func (s SourceContent) Len() int {
	return len(s.Text)
}

// Feature is one structured claim about what a release changed.
type Feature struct {
	Icon        string `json:"icon"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// FeatureSet is the accepted output of feature extraction plus the
// provenance needed to audit it later.
type FeatureSet struct {
	Features         []Feature    `json:"features"`
	ReleaseHighlight string       `json:"releaseHighlight"`
	ReleaseInfo      string       `json:"releaseInfo"`
	SourceContent    string       `json:"sourceContent,omitempty"`
	SourceURL        string       `json:"sourceUrl,omitempty"`
	SourceOrigin     SourceOrigin `json:"sourceOrigin,omitempty"`
	ExtractedAt      time.Time    `json:"extractedAt"`
}

// ValidationStatus is the auditor's verdict for one feature claim.
type ValidationStatus string

const (
	StatusVerified   ValidationStatus = "VERIFIED"
	StatusInferred   ValidationStatus = "INFERRED"
	StatusFabricated ValidationStatus = "FABRICATED"
)

// AccuracyRating grades a whole feature set.
type AccuracyRating string

const (
	AccuracyHigh   AccuracyRating = "HIGH"
	AccuracyMedium AccuracyRating = "MEDIUM"
	AccuracyLow    AccuracyRating = "LOW"
)

// FeatureValidation pairs one feature claim with its audit verdict.
type FeatureValidation struct {
	Feature  string           `json:"feature"`
	Status   ValidationStatus `json:"status"`
	Evidence string           `json:"evidence"`
}

// ValidationReport is the auditor's full judgment of one release's features.
type ValidationReport struct {
	Tool        ToolID              `json:"tool"`
	Version     string              `json:"version"`
	Validations []FeatureValidation `json:"validations"`
	Accuracy    AccuracyRating      `json:"accuracy"`
	Summary     string              `json:"summary"`
	AuditedAt   time.Time           `json:"auditedAt"`
}

// Fabricated returns the validations judged FABRICATED.
func (r *ValidationReport) Fabricated() []FeatureValidation {
	var out []FeatureValidation
	for _, v := range r.Validations {
		if v.Status == StatusFabricated {
			out = append(out, v)
		}
	}
	return out
}

// ReleaseSnapshot captures the release fields that matter for diagnosing
// a failed run without duplicating the full notes.
type ReleaseSnapshot struct {
	Summary      string `json:"summary,omitempty"`
	FullNotesLen int    `json:"fullNotesLength"`
	URL          string `json:"url,omitempty"`
}

// FailureReport is the durable record of one failed generation attempt.
type FailureReport struct {
	Timestamp            time.Time       `json:"timestamp"`
	Tool                 ToolID          `json:"tool"`
	Version              string          `json:"version"`
	Reason               string          `json:"reason"`
	Release              ReleaseSnapshot `json:"release"`
	FetchedContentLength int             `json:"fetchedContentLength"`
	RetryAttempts        int             `json:"retryAttempts"`
}

// RemediationStatus classifies the outcome of a remediation run.
type RemediationStatus string

const (
	RemediationFixed  RemediationStatus = "fixed"
	RemediationFailed RemediationStatus = "failed"
	RemediationError  RemediationStatus = "error"
)

// StrategyOutcome records what one remediation strategy attempted and found.
type StrategyOutcome struct {
	Name    string `json:"name"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// RemediationResult is the durable record of one remediation run.
type RemediationResult struct {
	Status     RemediationStatus `json:"status"`
	Tool       ToolID            `json:"tool"`
	Version    string            `json:"version"`
	Attempt    int               `json:"attempt"`
	IssueRef   string            `json:"issueRef,omitempty"`
	Strategies []StrategyOutcome `json:"strategiesTried"`
	Conclusion string            `json:"conclusion"`
	Timestamp  time.Time         `json:"timestamp"`
}

// ProcessingStatus represents the outcome status of processing a release.
type ProcessingStatus string

const (
	StatusSuccess ProcessingStatus = "success"
	StatusSkipped ProcessingStatus = "skipped"
	StatusFailed  ProcessingStatus = "failed"
)

// ProcessingResult tracks the outcome of processing each release.
type ProcessingResult struct {
	Tool      ToolID
	Version   string
	Status    ProcessingStatus
	Artifacts []string
	Error     error
}
