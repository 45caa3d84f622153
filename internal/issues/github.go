// ABOUTME: GitHub REST client fetching the issues of a repository
// ABOUTME: Follows Link-header pagination, skips pull requests and paces requests with a rate limiter

package issues

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Fetcher retrieves the current issue set of one repository.
type Fetcher interface {
	Fetch(ctx context.Context, repo string) ([]Issue, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, repo string) ([]Issue, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, repo string) ([]Issue, error) {
	return f(ctx, repo)
}

// DefaultGitHubAPI is the public GitHub REST API root.
const DefaultGitHubAPI = "https://api.github.com"

const (
	githubPerPage  = 100
	githubMaxPages = 10
)

// GitHubConfig configures the GitHub fetcher.
type GitHubConfig struct {
	BaseURL string
	Token   string
	// ClosedWindow, when positive, also fetches issues closed within the window
	// so the Done column is populated.
	ClosedWindow time.Duration
	// RequestsPerSecond bounds API calls across all repositories. Zero means unlimited.
	RequestsPerSecond float64
	Now               func() time.Time
}

// GitHubFetcher implements Fetcher against the GitHub REST API.
type GitHubFetcher struct {
	cfg     GitHubConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewGitHubFetcher creates a fetcher. A nil client uses http.DefaultClient;
// the caller's context bounds every request.
func NewGitHubFetcher(cfg GitHubConfig, client *http.Client) *GitHubFetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGitHubAPI
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if client == nil {
		client = http.DefaultClient
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &GitHubFetcher{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
	}
}

type githubIssue struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	HTMLURL string `json:"html_url"`
	State   string `json:"state"`
	Labels  []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Assignee *struct {
		Login string `json:"login"`
	} `json:"assignee"`
	UpdatedAt   time.Time       `json:"updated_at"`
	PullRequest json.RawMessage `json:"pull_request"`
}

// Fetch returns the open issues of repo ("owner/name"), plus recently closed
// ones when a closed window is configured. Pull requests are skipped.
func (f *GitHubFetcher) Fetch(ctx context.Context, repo string) ([]Issue, error) {
	q := url.Values{}
	q.Set("state", "open")
	q.Set("per_page", fmt.Sprint(githubPerPage))

	issues, err := f.fetchAll(ctx, repo, q)
	if err != nil {
		return nil, err
	}

	if f.cfg.ClosedWindow > 0 {
		q.Set("state", "closed")
		q.Set("since", f.cfg.Now().Add(-f.cfg.ClosedWindow).UTC().Format(time.RFC3339))
		closed, err := f.fetchAll(ctx, repo, q)
		if err != nil {
			return nil, err
		}
		issues = append(issues, closed...)
	}

	return issues, nil
}

func (f *GitHubFetcher) fetchAll(ctx context.Context, repo string, q url.Values) ([]Issue, error) {
	next := f.cfg.BaseURL + "/repos/" + repo + "/issues?" + q.Encode()

	var out []Issue
	for page := 0; next != "" && page < githubMaxPages; page++ {
		raw, link, err := f.getPage(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", repo, err)
		}
		for _, gi := range raw {
			if len(gi.PullRequest) > 0 && string(gi.PullRequest) != "null" {
				continue
			}
			out = append(out, gi.toIssue(repo))
		}
		next = nextLink(link)
	}
	if next != "" {
		return nil, fmt.Errorf("fetching %s: stopped after %d pages: %w", repo, githubMaxPages, ErrTooManyPages)
	}
	return out, nil
}

func (f *GitHubFetcher) getPage(ctx context.Context, pageURL string) ([]githubIssue, string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if f.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.cfg.Token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var page []githubIssue
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, "", fmt.Errorf("decoding issues: %w", err)
	}
	return page, resp.Header.Get("Link"), nil
}

func (gi githubIssue) toIssue(repo string) Issue {
	issue := Issue{
		Repo:      repo,
		Number:    gi.Number,
		Title:     gi.Title,
		URL:       gi.HTMLURL,
		State:     gi.State,
		UpdatedAt: gi.UpdatedAt.UTC(),
		Labels:    make([]string, 0, len(gi.Labels)),
	}
	if issue.State != StateClosed {
		issue.State = StateOpen
	}
	for _, l := range gi.Labels {
		issue.Labels = append(issue.Labels, l.Name)
	}
	if gi.Assignee != nil {
		issue.Assignee = gi.Assignee.Login
	}
	return issue
}

// nextLink extracts the rel="next" target from a Link header.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segs := strings.Split(strings.TrimSpace(part), ";")
		if len(segs) < 2 {
			continue
		}
		target := strings.TrimSpace(segs[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range segs[1:] {
			if strings.TrimSpace(param) == `rel="next"` {
				return target[1 : len(target)-1]
			}
		}
	}
	return ""
}
