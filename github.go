package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CompareClient reconstructs release content from the GitHub compare API
// when a release ships with no usable changelog text.
type CompareClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	// MinRemainingQuota stops optional requests once the rate-limit
	// allowance drops this low, so the scraper keeps its share.
	MinRemainingQuota int

	maxPullFetches int
	lastRemaining  int
}

// NewCompareClient creates a client. token may be empty for anonymous
// requests (60/hour rate limit).
func NewCompareClient(token string) *CompareClient {
	return &CompareClient{
		BaseURL:           "https://api.github.com",
		Token:             token,
		HTTPClient:        &http.Client{Timeout: 15 * time.Second},
		MinRemainingQuota: 5,
		maxPullFetches:    5,
		lastRemaining:     -1,
	}
}

// CompareCommit is one commit in a compare range.
type CompareCommit struct {
	SHA        string
	Subject    string
	PullNumber int // 0 when the subject references no pull request
}

type compareResponse struct {
	TotalCommits int `json:"total_commits"`
	Commits      []struct {
		SHA    string `json:"sha"`
		Commit struct {
			Message string `json:"message"`
		} `json:"commit"`
	} `json:"commits"`
}

type pullResponse struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

var pullRefExpr = regexp.MustCompile(`\(#(\d+)\)`)

// Compare fetches the commit list between two refs of owner/name and drops
// merge and release-bookkeeping commits.
func (c *CompareClient) Compare(repo, base, head string) ([]CompareCommit, error) {
	path := fmt.Sprintf("/repos/%s/compare/%s...%s", repo, base, head)

	var parsed compareResponse
	if err := c.getJSON(path, &parsed); err != nil {
		return nil, err
	}

	commits := make([]CompareCommit, 0, len(parsed.Commits))
	for _, raw := range parsed.Commits {
		subject := commitSubject(raw.Commit.Message)
		if isBookkeepingCommit(subject) {
			continue
		}
		commit := CompareCommit{SHA: raw.SHA, Subject: subject}
		if m := pullRefExpr.FindStringSubmatch(subject); m != nil {
			commit.PullNumber, _ = strconv.Atoi(m[1])
		}
		commits = append(commits, commit)
	}

	return commits, nil
}

// PullSummary fetches the title and body of one pull request.
func (c *CompareClient) PullSummary(repo string, number int) (string, string, error) {
	path := fmt.Sprintf("/repos/%s/pulls/%d", repo, number)

	var parsed pullResponse
	if err := c.getJSON(path, &parsed); err != nil {
		return "", "", err
	}
	return parsed.Title, parsed.Body, nil
}

// BuildReleaseContent turns a compare ref like "v1.1.0...v1.2.0" into a
// synthetic release-notes block: commit subjects plus the bodies of up to
// maxPullFetches referenced pull requests.
func (c *CompareClient) BuildReleaseContent(repo, ref string) (string, error) {
	base, head, ok := strings.Cut(ref, "...")
	if !ok || base == "" || head == "" {
		return "", fmt.Errorf("malformed compare ref %q", ref)
	}

	commits, err := c.Compare(repo, base, head)
	if err != nil {
		return "", fmt.Errorf("comparing %s %s: %w", repo, ref, err)
	}
	if len(commits) == 0 {
		return "", fmt.Errorf("compare %s for %s has no content commits", ref, repo)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s changes %s...%s\n\n## Commits\n\n", repo, base, head)
	for _, commit := range commits {
		fmt.Fprintf(&b, "- %s\n", commit.Subject)
	}

	pulls := distinctPullNumbers(commits, c.maxPullFetches)
	wrotePullHeader := false
	for _, number := range pulls {
		if c.lastRemaining >= 0 && c.lastRemaining < c.MinRemainingQuota {
			log.Printf("  rate-limit quota low (%d left), skipping remaining pull request fetches", c.lastRemaining)
			break
		}
		title, body, err := c.PullSummary(repo, number)
		if err != nil {
			log.Printf("  skipping PR #%d: %v", number, err)
			continue
		}
		if !wrotePullHeader {
			b.WriteString("\n## Pull requests\n")
			wrotePullHeader = true
		}
		fmt.Fprintf(&b, "\n### %s (#%d)\n", title, number)
		if body = strings.TrimSpace(body); body != "" {
			fmt.Fprintf(&b, "\n%s\n", truncate(body, 600))
		}
	}

	return b.String(), nil
}

func (c *CompareClient) getJSON(path string, out any) error {
	url := c.BaseURL + path
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "releasedeck")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		if n, err := strconv.Atoi(remaining); err == nil {
			c.lastRemaining = n
		}
	}

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing response from %s: %w", url, err)
	}
	return nil
}

// commitSubject returns the first line of a commit message.
func commitSubject(message string) string {
	subject, _, _ := strings.Cut(message, "\n")
	return strings.TrimSpace(subject)
}

var bookkeepingExpr = regexp.MustCompile(`(?i)^(chore(\([^)]*\))?:\s*)?(bump|release|prepare release|update version|version bump)\b`)

// isBookkeepingCommit filters commits that carry no release content.
func isBookkeepingCommit(subject string) bool {
	if strings.HasPrefix(subject, "Merge ") || strings.EqualFold(subject, "merge") {
		return true
	}
	return bookkeepingExpr.MatchString(subject)
}

func distinctPullNumbers(commits []CompareCommit, limit int) []int {
	seen := make(map[int]bool)
	var numbers []int
	for _, commit := range commits {
		if commit.PullNumber == 0 || seen[commit.PullNumber] {
			continue
		}
		seen[commit.PullNumber] = true
		numbers = append(numbers, commit.PullNumber)
		if len(numbers) == limit {
			break
		}
	}
	return numbers
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
