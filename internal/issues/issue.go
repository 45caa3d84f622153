// ABOUTME: Issue type shared by the fetcher, cache and projector
// ABOUTME: Conversions to and from the store's persisted record

package issues

import (
	"errors"
	"time"

	"github.com/2389/coven-board/internal/store"
)

// ErrUpstreamUnavailable wraps every failure to fetch from the issue tracker.
var ErrUpstreamUnavailable = errors.New("issue tracker unavailable")

// ErrUnknownRepo is returned for a repository that is not configured.
var ErrUnknownRepo = errors.New("repository not configured")

// ErrTooManyPages is returned when a repository has more issues than the
// fetcher pages through. A partial set is never returned.
var ErrTooManyPages = errors.New("too many issue pages")

// Issue states
const (
	StateOpen   = "open"
	StateClosed = "closed"
)

// Issue is one upstream issue. Column is empty in the cache and filled in
// on read, since the work-window rule depends on the current time.
type Issue struct {
	Repo      string
	Number    int
	Title     string
	URL       string
	Labels    []string
	Assignee  string
	State     string
	UpdatedAt time.Time
	Column    Column
}

// HasLabel reports whether the issue carries label, ignoring case.
func (i Issue) HasLabel(label string) bool {
	want := normalizeLabel(label)
	for _, l := range i.Labels {
		if normalizeLabel(l) == want {
			return true
		}
	}
	return false
}

func toRecords(issues []Issue) []store.IssueRecord {
	recs := make([]store.IssueRecord, len(issues))
	for i, is := range issues {
		recs[i] = store.IssueRecord{
			Repo:      is.Repo,
			Number:    is.Number,
			Title:     is.Title,
			URL:       is.URL,
			Labels:    is.Labels,
			Assignee:  is.Assignee,
			State:     is.State,
			UpdatedAt: is.UpdatedAt,
		}
	}
	return recs
}

func fromRecords(recs []store.IssueRecord) []Issue {
	out := make([]Issue, len(recs))
	for i, r := range recs {
		out[i] = Issue{
			Repo:      r.Repo,
			Number:    r.Number,
			Title:     r.Title,
			URL:       r.URL,
			Labels:    r.Labels,
			Assignee:  r.Assignee,
			State:     r.State,
			UpdatedAt: r.UpdatedAt,
		}
	}
	return out
}
