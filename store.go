package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// StoreDocument is the on-disk shape of releases.json.
type StoreDocument struct {
	LastUpdated time.Time       `json:"lastUpdated"`
	Releases    []ReleaseRecord `json:"releases"`
}

// ReleaseStore owns the release catalog file. Loads read the whole
// document; Save rewrites it in full and bumps lastUpdated.
type ReleaseStore struct {
	path string
	doc  StoreDocument
	now  func() time.Time
}

// LoadReleaseStore reads the catalog at path. The file must exist; the
// catalog is produced by the scraper, not by this tool.
func LoadReleaseStore(path string) (*ReleaseStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading release store %s: %w", path, err)
	}

	var doc StoreDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing release store %s: %w", path, err)
	}

	return &ReleaseStore{path: path, doc: doc, now: time.Now}, nil
}

// Len returns the number of releases in the catalog.
func (s *ReleaseStore) Len() int {
	return len(s.doc.Releases)
}

// Releases returns the catalog entries in store order.
func (s *ReleaseStore) Releases() []ReleaseRecord {
	return s.doc.Releases
}

// Find returns a mutable pointer to the release for tool+version. Version
// matching ignores a leading "v".
func (s *ReleaseStore) Find(tool ToolID, version string) (*ReleaseRecord, bool) {
	want := normalizeVersion(version)
	for i := range s.doc.Releases {
		r := &s.doc.Releases[i]
		if r.Tool == tool && normalizeVersion(r.Version) == want {
			return r, true
		}
	}
	return nil, false
}

// Latest returns the most recent release for tool by date.
func (s *ReleaseStore) Latest(tool ToolID) (*ReleaseRecord, bool) {
	var latest *ReleaseRecord
	for i := range s.doc.Releases {
		r := &s.doc.Releases[i]
		if r.Tool != tool {
			continue
		}
		if latest == nil || r.Date.After(latest.Date) {
			latest = r
		}
	}
	return latest, latest != nil
}

// MissingArtifacts returns releases with no primary infographic, newest
// first. maxAge of zero means no age cutoff.
func (s *ReleaseStore) MissingArtifacts(maxAge time.Duration) []*ReleaseRecord {
	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = s.now().Add(-maxAge)
	}

	var missing []*ReleaseRecord
	for i := range s.doc.Releases {
		r := &s.doc.Releases[i]
		if r.HasArtifact() {
			continue
		}
		if !cutoff.IsZero() && r.Date.Before(cutoff) {
			continue
		}
		missing = append(missing, r)
	}

	sortReleasesByDateDesc(missing)
	return missing
}

// Save rewrites the whole catalog and stamps lastUpdated.
func (s *ReleaseStore) Save() error {
	s.doc.LastUpdated = s.now().UTC()

	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding release store: %w", err)
	}

	if err := os.WriteFile(s.path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing release store %s: %w", s.path, err)
	}
	return nil
}

func sortReleasesByDateDesc(releases []*ReleaseRecord) {
	for i := 1; i < len(releases); i++ {
		for j := i; j > 0 && releases[j].Date.After(releases[j-1].Date); j-- {
			releases[j], releases[j-1] = releases[j-1], releases[j]
		}
	}
}

// normalizeVersion strips a leading "v" so "v1.2.0" and "1.2.0" match.
func normalizeVersion(version string) string {
	return strings.TrimPrefix(strings.TrimSpace(version), "v")
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// safeName makes a string usable as a filename component.
func safeName(s string) string {
	cleaned := unsafeNameChars.ReplaceAllString(s, "-")
	cleaned = strings.Trim(cleaned, "-.")
	if cleaned == "" {
		return "unknown"
	}
	return cleaned
}

// writeJSONFile writes v as indented JSON, creating parent directories.
func writeJSONFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// featureSetPath is where a release's extracted features are cached for
// later audits and re-renders.
func featureSetPath(outputDir string, tool ToolID, version string) string {
	name := fmt.Sprintf("%s-%s.json", safeName(string(tool)), safeName(normalizeVersion(version)))
	return filepath.Join(outputDir, "data", name)
}

// SaveFeatureSet persists the extraction output next to the artifacts.
func SaveFeatureSet(outputDir string, tool ToolID, version string, fs *FeatureSet) error {
	return writeJSONFile(featureSetPath(outputDir, tool, version), fs)
}

// LoadFeatureSet reads a previously cached extraction, if present.
func LoadFeatureSet(outputDir string, tool ToolID, version string) (*FeatureSet, error) {
	data, err := os.ReadFile(featureSetPath(outputDir, tool, version))
	if err != nil {
		return nil, err
	}

	var fs FeatureSet
	if err := json.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("parsing cached feature set: %w", err)
	}
	return &fs, nil
}

// auditReportPath names a release's accuracy audit record.
func auditReportPath(outputDir string, tool ToolID, version string) string {
	name := fmt.Sprintf("%s-%s.json", safeName(string(tool)), safeName(normalizeVersion(version)))
	return filepath.Join(outputDir, "audits", name)
}

// SaveValidationReport persists an accuracy audit next to the artifacts.
func SaveValidationReport(outputDir string, report *ValidationReport) (string, error) {
	path := auditReportPath(outputDir, report.Tool, report.Version)
	if err := writeJSONFile(path, report); err != nil {
		return "", err
	}
	return path, nil
}

// failureReportPath names one failed run's diagnostic record.
func failureReportPath(outputDir string, tool ToolID, version string, ts time.Time) string {
	name := fmt.Sprintf("%s-%s-%s.json", safeName(string(tool)), safeName(normalizeVersion(version)), ts.Format("20060102-150405"))
	return filepath.Join(outputDir, "failures", name)
}

// SaveFailureReport persists the diagnostic record for a failed run.
func SaveFailureReport(outputDir string, report *FailureReport) (string, error) {
	path := failureReportPath(outputDir, report.Tool, report.Version, report.Timestamp)
	if err := writeJSONFile(path, report); err != nil {
		return "", err
	}
	return path, nil
}

// remediationResultPath names one remediation run's record.
func remediationResultPath(outputDir string, tool ToolID, version string, attempt int) string {
	name := fmt.Sprintf("%s-%s-attempt%d.json", safeName(string(tool)), safeName(normalizeVersion(version)), attempt)
	return filepath.Join(outputDir, "remediation", name)
}

// SaveRemediationResult persists the record of a remediation run.
func SaveRemediationResult(outputDir string, result *RemediationResult) (string, error) {
	path := remediationResultPath(outputDir, result.Tool, result.Version, result.Attempt)
	if err := writeJSONFile(path, result); err != nil {
		return "", err
	}
	return path, nil
}
