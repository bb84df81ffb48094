package main

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError explains why an extracted feature set was rejected. The
// extractor treats it as retryable: a fresh generation may pass.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid feature set: " + e.Reason
}

const (
	minFeatureNameLen        = 3
	minFeatureDescriptionLen = 5
)

// evasionPatterns catch the service describing its own failure instead of
// refusing: "features" that are really apologies about missing content.
var evasionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)unable to (extract|find|parse|locate)`),
	regexp.MustCompile(`(?i)could not (find|extract|locate)`),
	regexp.MustCompile(`(?i)not available`),
	regexp.MustCompile(`(?i)\bno\b .*\b(found|available|provided)\b`),
	regexp.MustCompile(`(?i)insufficient (content|information|detail)`),
	regexp.MustCompile(`(?i)does not (appear|seem) to`),
	regexp.MustCompile(`(?i)cannot (be )?determin`),
	regexp.MustCompile(`(?i)no meaningful (content|information|change)`),
	regexp.MustCompile(`(?i)(source|content) (is|was) (empty|missing)`),
}

// ValidateFeatureSet rejects empty, placeholder, or evasive output from
// the extraction service. A nil error means the set is safe to persist.
func ValidateFeatureSet(fs *FeatureSet) error {
	if fs == nil {
		return &ValidationError{Reason: "no feature set"}
	}
	if len(fs.Features) == 0 {
		return &ValidationError{Reason: "features list is empty"}
	}

	for i, feature := range fs.Features {
		name := strings.TrimSpace(feature.Name)
		description := strings.TrimSpace(feature.Description)

		if name == "" {
			return &ValidationError{Reason: fmt.Sprintf("feature %d has no name", i+1)}
		}
		if description == "" {
			return &ValidationError{Reason: fmt.Sprintf("feature %q has no description", name)}
		}
		if len(name) < minFeatureNameLen {
			return &ValidationError{Reason: fmt.Sprintf("feature name %q is too short", name)}
		}
		if len(description) < minFeatureDescriptionLen {
			return &ValidationError{Reason: fmt.Sprintf("feature %q has a placeholder description", name)}
		}

		combined := name + " " + description
		for _, pattern := range evasionPatterns {
			if pattern.MatchString(combined) {
				return &ValidationError{Reason: fmt.Sprintf("feature %q reads like an extraction failure (matched %q)", name, pattern.String())}
			}
		}
	}

	return nil
}
