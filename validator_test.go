package main

import (
	"strings"
	"testing"
)

func validFeature() Feature {
	return Feature{Icon: "⚡", Name: "Faster indexing", Description: "Project indexing finishes twice as fast."}
}

func TestValidateFeatureSetAccepts(t *testing.T) {
	tests := []struct {
		name string
		fs   *FeatureSet
	}{
		{
			"normal set",
			&FeatureSet{Features: []Feature{
				validFeature(),
				{Icon: "🛠", Name: "New agent panel", Description: "A dedicated panel shows running agents."},
			}},
		},
		{
			"single modest feature",
			&FeatureSet{Features: []Feature{
				{Icon: "🐛", Name: "Bug fixes", Description: "Stability fixes for the editor."},
			}},
		},
		{
			"degenerate but honest",
			&FeatureSet{Features: []Feature{
				{Icon: "🔧", Name: "One targeted fix", Description: "This release ships a single crash fix."},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateFeatureSet(tt.fs); err != nil {
				t.Errorf("ValidateFeatureSet() = %v, want nil", err)
			}
		})
	}
}

func TestValidateFeatureSetRejects(t *testing.T) {
	tests := []struct {
		name string
		fs   *FeatureSet
	}{
		{"nil set", nil},
		{"empty features", &FeatureSet{}},
		{"missing name", &FeatureSet{Features: []Feature{{Icon: "x", Description: "Something changed here."}}}},
		{"missing description", &FeatureSet{Features: []Feature{{Icon: "x", Name: "A change"}}}},
		{"name too short", &FeatureSet{Features: []Feature{{Icon: "x", Name: "ok", Description: "Valid description text."}}}},
		{"description placeholder", &FeatureSet{Features: []Feature{{Icon: "x", Name: "A change", Description: "n/a"}}}},
		{"whitespace name", &FeatureSet{Features: []Feature{{Icon: "x", Name: "   ", Description: "Valid description text."}}}},
		{"second feature bad", &FeatureSet{Features: []Feature{
			validFeature(),
			{Icon: "x", Name: "Broken", Description: ""},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFeatureSet(tt.fs)
			if err == nil {
				t.Fatal("ValidateFeatureSet() = nil, want rejection")
			}
			if _, ok := err.(*ValidationError); !ok {
				t.Errorf("error type = %T, want *ValidationError", err)
			}
		})
	}
}

func TestValidateFeatureSetCatchesEvasions(t *testing.T) {
	evasive := []string{
		"Unable to extract meaningful content",
		"unable to find release notes",
		"Could not find features for this version",
		"Release notes not available",
		"No release information found",
		"No features provided in the source",
		"Insufficient content to determine changes",
		"The source does not appear to describe this release",
		"Changes cannot be determined from the source",
		"cannot determine what changed",
		"No meaningful content in the changelog",
		"The source is empty",
	}

	for _, text := range evasive {
		t.Run(text, func(t *testing.T) {
			fs := &FeatureSet{Features: []Feature{
				{Icon: "❓", Name: "Release notes", Description: text},
			}}
			if err := ValidateFeatureSet(fs); err == nil {
				t.Errorf("evasive description %q passed validation", text)
			}

			// An evasive name must be caught too.
			fs = &FeatureSet{Features: []Feature{
				{Icon: "❓", Name: text, Description: "Looks like a description."},
			}}
			if err := ValidateFeatureSet(fs); err == nil {
				t.Errorf("evasive name %q passed validation", text)
			}
		})
	}
}

func TestValidateFeatureSetCaseInsensitive(t *testing.T) {
	fs := &FeatureSet{Features: []Feature{
		{Icon: "❓", Name: "UNABLE TO EXTRACT", Description: "SOMETHING SOMETHING."},
	}}
	if err := ValidateFeatureSet(fs); err == nil {
		t.Error("uppercase evasion passed validation")
	}
}

func TestValidateFeatureSetDoesNotOverMatch(t *testing.T) {
	// Legitimate features that mention availability or finding things.
	fine := []Feature{
		{Icon: "🔍", Name: "Find in files", Description: "Search across the whole workspace."},
		{Icon: "🌐", Name: "Offline mode", Description: "The editor now works without a network connection."},
		{Icon: "📦", Name: "Determinate builds", Description: "Builds are reproducible across machines."},
	}
	for _, f := range fine {
		fs := &FeatureSet{Features: []Feature{f}}
		if err := ValidateFeatureSet(fs); err != nil {
			t.Errorf("legitimate feature %q rejected: %v", f.Name, err)
		}
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := ValidateFeatureSet(&FeatureSet{})
	if !strings.Contains(err.Error(), "invalid feature set") {
		t.Errorf("error message = %q, want invalid feature set prefix", err.Error())
	}
}
