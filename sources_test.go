package main

import (
	"strings"
	"testing"
	"time"
)

func newTestResolver(config *Config, fetcher pageFetcher, compare compareSource, text TextGenerator) *SourceResolver {
	noSleep := func(time.Duration) {}
	return &SourceResolver{
		config:       config,
		fetcher:      fetcher,
		compare:      compare,
		text:         text,
		retry:        Retryer{MaxAttempts: config.Settings.Retry.MaxAttempts, BaseDelay: time.Millisecond, sleep: noSleep},
		compareRetry: Retryer{MaxAttempts: config.Settings.Retry.CompareAttempts, BaseDelay: time.Millisecond, sleep: noSleep},
		outputDir:    config.Settings.OutputDirectory,
	}
}

func TestResolveReusesStoredExtraction(t *testing.T) {
	config := testConfig(t)
	fetcher := &spyFetcher{}
	text := &fakeText{}

	stored := &FeatureSet{
		Features:      []Feature{{Icon: "⚡", Name: "Cached thing", Description: "From an earlier run."}},
		SourceContent: strings.Repeat("cached source text ", 10),
		SourceURL:     "https://cursor.example/changelog",
	}
	if err := SaveFeatureSet(config.Settings.OutputDirectory, "cursor", "1.2.0", stored); err != nil {
		t.Fatal(err)
	}

	r := newTestResolver(config, fetcher, &fakeCompare{}, text)
	rel := ReleaseRecord{Tool: "cursor", Version: "1.2.0", URL: "https://cursor.example/changelog"}

	source, insufficient := r.Resolve(rel, config.Tools["cursor"], true)

	if source.Origin != OriginStored {
		t.Errorf("Origin = %q, want %q", source.Origin, OriginStored)
	}
	if source.Text != stored.SourceContent {
		t.Error("stored content should come back verbatim")
	}
	if insufficient {
		t.Error("stored content above threshold should not warn")
	}
	if fetcher.calls != 0 {
		t.Errorf("fetcher touched the network %d times, want 0", fetcher.calls)
	}
	if text.calls() != 0 {
		t.Errorf("text service called %d times, want 0", text.calls())
	}
}

func TestResolveSkipsCacheWhenReuseDisabled(t *testing.T) {
	config := testConfig(t)
	if err := SaveFeatureSet(config.Settings.OutputDirectory, "cursor", "1.2.0", &FeatureSet{
		SourceContent: strings.Repeat("stale ", 30),
	}); err != nil {
		t.Fatal(err)
	}

	rel := ReleaseRecord{Tool: "cursor", Version: "1.2.0", FullNotes: strings.Repeat("fresh notes ", 20)}
	r := newTestResolver(config, &spyFetcher{}, &fakeCompare{}, &fakeText{})

	source, _ := r.Resolve(rel, config.Tools["cursor"], false)
	if source.Origin != OriginFullNotes {
		t.Errorf("Origin = %q, want %q when cache reuse is off", source.Origin, OriginFullNotes)
	}
}

func TestResolvePrefersStoredNotesWithoutFetching(t *testing.T) {
	config := testConfig(t)
	fetcher := &spyFetcher{}

	rel := ReleaseRecord{
		Tool:      "cursor",
		Version:   "1.2.0",
		URL:       "https://cursor.example/changelog",
		FullNotes: strings.Repeat("Full release notes with plenty of detail. ", 5),
	}
	r := newTestResolver(config, fetcher, &fakeCompare{}, &fakeText{})

	source, insufficient := r.Resolve(rel, config.Tools["cursor"], true)

	if source.Origin != OriginFullNotes {
		t.Errorf("Origin = %q, want %q", source.Origin, OriginFullNotes)
	}
	if insufficient {
		t.Error("long notes should not warn")
	}
	if fetcher.calls != 0 {
		t.Errorf("long stored notes must not trigger a fetch, got %d calls", fetcher.calls)
	}
}

func TestResolveFallsBackToSummary(t *testing.T) {
	config := testConfig(t)
	rel := ReleaseRecord{
		Tool:    "cursor",
		Version: "1.2.0",
		Summary: strings.Repeat("A reasonably detailed summary line. ", 4),
	}
	r := newTestResolver(config, &spyFetcher{}, &fakeCompare{}, &fakeText{})

	source, _ := r.Resolve(rel, config.Tools["cursor"], true)
	if source.Origin != OriginFullNotes {
		t.Errorf("Origin = %q, want %q for summary fallback", source.Origin, OriginFullNotes)
	}
	if source.Text != rel.Summary {
		t.Error("summary text should be used when full notes are short")
	}
}

func TestResolveFetchesAndIsolates(t *testing.T) {
	config := testConfig(t)
	section := strings.Repeat("## 1.2.0\n- Faster indexing\n- New agent panel\n", 4)
	fetcher := &spyFetcher{pages: map[string]string{
		"https://cursor.example/changelog": "# Changelog\n\n" + section + "\n## 1.1.0\n- old stuff",
	}}
	text := &fakeText{responses: []string{section}}

	rel := ReleaseRecord{Tool: "cursor", Version: "1.2.0", URL: "https://cursor.example/changelog", Summary: "short"}
	r := newTestResolver(config, fetcher, &fakeCompare{}, text)

	source, insufficient := r.Resolve(rel, config.Tools["cursor"], true)

	if source.Origin != OriginFetched {
		t.Errorf("Origin = %q, want %q", source.Origin, OriginFetched)
	}
	if source.Text != strings.TrimSpace(section) {
		t.Errorf("isolated section mismatch:\n%q", source.Text)
	}
	if source.URL != rel.URL {
		t.Errorf("URL = %q, want release URL", source.URL)
	}
	if insufficient {
		t.Error("isolated section above threshold should not warn")
	}
	if fetcher.calls != 1 {
		t.Errorf("fetched %d times, want 1", fetcher.calls)
	}

	// The isolator must receive the version and the page text.
	req := text.requests[0]
	if !strings.Contains(req.System, "1.2.0") {
		t.Error("isolator system prompt missing target version")
	}
	if !strings.Contains(req.Prompt, "Faster indexing") {
		t.Error("isolator prompt missing page content")
	}
}

func TestResolveSentinelFallsThroughToCompare(t *testing.T) {
	config := testConfig(t)
	fetcher := &spyFetcher{pages: map[string]string{
		"https://zed.example/releases": "# Releases\n\nSee v0.149.0...v0.150.0 for details.",
	}}
	text := &fakeText{responses: []string{"CONTENT_NOT_FOUND"}}
	compare := &fakeCompare{content: strings.Repeat("- Add vim-mode marks support\n", 10)}

	rel := ReleaseRecord{Tool: "zed", Version: "0.150.0", URL: "https://zed.example/releases"}
	r := newTestResolver(config, fetcher, compare, text)

	source, insufficient := r.Resolve(rel, config.Tools["zed"], true)

	if source.Origin != OriginCompare {
		t.Fatalf("Origin = %q, want %q", source.Origin, OriginCompare)
	}
	if insufficient {
		t.Error("compare content above threshold should not warn")
	}
	if len(compare.refs) != 1 || compare.refs[0] != "zed-industries/zed@v0.149.0...v0.150.0" {
		t.Errorf("compare called with %v, want ref parsed from the page", compare.refs)
	}
	if !strings.Contains(source.URL, "github.com/zed-industries/zed/compare/") {
		t.Errorf("compare source URL = %q", source.URL)
	}
	// Sentinel must not burn retry attempts: one isolation call only.
	if text.calls() != 1 {
		t.Errorf("text service called %d times, want 1", text.calls())
	}
}

func TestResolveCompareRefFromReleaseNotes(t *testing.T) {
	config := testConfig(t)
	compare := &fakeCompare{content: strings.Repeat("- Fix crash on rename\n", 10)}

	rel := ReleaseRecord{
		Tool:      "zed",
		Version:   "0.150.0",
		FullNotes: "Full changelog: v0.149.0...v0.150.0",
	}
	r := newTestResolver(config, &spyFetcher{}, compare, &fakeText{})

	source, _ := r.Resolve(rel, config.Tools["zed"], true)
	if source.Origin != OriginCompare {
		t.Fatalf("Origin = %q, want %q", source.Origin, OriginCompare)
	}
	if len(compare.refs) != 1 {
		t.Fatalf("compare calls = %v", compare.refs)
	}
}

func TestResolveRetriesTransientFetches(t *testing.T) {
	config := testConfig(t)
	config.Settings.Retry.MaxAttempts = 3

	fetcher := &spyFetcher{failWith: &HTTPError{StatusCode: 503, URL: "x"}}
	rel := ReleaseRecord{Tool: "cursor", Version: "1.2.0", URL: "https://cursor.example/changelog", Summary: "tiny"}
	r := newTestResolver(config, fetcher, &fakeCompare{err: &HTTPError{StatusCode: 500, URL: "y"}}, &fakeText{})

	source, insufficient := r.Resolve(rel, config.Tools["cursor"], true)

	if fetcher.calls != 3 {
		t.Errorf("fetch attempted %d times, want 3", fetcher.calls)
	}
	if !insufficient {
		t.Error("exhausted sourcing should warn about thin content")
	}
	if source.Text != "tiny" {
		t.Errorf("best-effort text = %q, want the summary", source.Text)
	}
}

func TestResolveDegenerateReleaseWarnsButReturns(t *testing.T) {
	config := testConfig(t)
	rel := ReleaseRecord{Tool: "cursor", Version: "1.2.1", Summary: "this is the fix"}
	r := newTestResolver(config, &spyFetcher{}, &fakeCompare{}, &fakeText{})

	source, insufficient := r.Resolve(rel, config.Tools["cursor"], true)

	if !insufficient {
		t.Error("degenerate release should be flagged insufficient")
	}
	if source.Text != "this is the fix" {
		t.Errorf("Text = %q, want the raw summary", source.Text)
	}
	if source.Origin != OriginFullNotes {
		t.Errorf("Origin = %q, want %q", source.Origin, OriginFullNotes)
	}
}

func TestFindCompareRef(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		want  string
	}{
		{"plain ref", []string{"see v1.1.0...v1.2.0 for details"}, "v1.1.0...v1.2.0"},
		{"compare URL", []string{"https://github.com/o/r/compare/v0.9.0...v0.10.0"}, "v0.9.0...v0.10.0"},
		{"no v prefix", []string{"range 1.1.0...1.2.0."}, "1.1.0...1.2.0"},
		{"pre-release tags", []string{"v1.2.0-pre...v1.2.0"}, "v1.2.0-pre...v1.2.0"},
		{"second blob wins", []string{"nothing here", "v2.0.0...v2.1.0"}, "v2.0.0...v2.1.0"},
		{"ellipsis prose", []string{"and then... something happened"}, ""},
		{"empty", []string{"", ""}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := findCompareRef(tt.texts...); got != tt.want {
				t.Errorf("findCompareRef() = %q, want %q", got, tt.want)
			}
		})
	}
}
