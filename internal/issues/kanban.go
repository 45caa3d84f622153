// ABOUTME: Kanban projection mapping an issue to exactly one workflow column
// ABOUTME: Rules are evaluated in fixed order and the first match wins

package issues

import (
	"strings"
	"time"
)

// Column is a kanban workflow column.
type Column string

// Columns in board order.
const (
	ColumnInbox      Column = "Inbox"
	ColumnAssigned   Column = "Assigned"
	ColumnInProgress Column = "In Progress"
	ColumnReview     Column = "Review"
	ColumnDone       Column = "Done"
)

// Columns lists every column in board order.
var Columns = []Column{ColumnInbox, ColumnAssigned, ColumnInProgress, ColumnReview, ColumnDone}

// ParseColumn matches a column name case-insensitively. Hyphens and
// underscores are accepted in place of spaces ("in-progress").
func ParseColumn(s string) (Column, bool) {
	norm := strings.NewReplacer("-", " ", "_", " ").Replace(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range Columns {
		if strings.ToLower(string(c)) == norm {
			return c, true
		}
	}
	return "", false
}

// Default projection settings.
const DefaultWorkWindow = 24 * time.Hour

var (
	DefaultReviewLabels     = []string{"review"}
	DefaultInProgressLabels = []string{"in-progress", "in progress"}
)

// Projector assigns issues to columns. It is immutable after construction
// and safe for concurrent use.
type Projector struct {
	review     map[string]bool
	inProgress map[string]bool
	workWindow time.Duration
}

// NewProjector builds a projector from label sets and the work window.
// Nil label sets and a non-positive window fall back to the defaults.
func NewProjector(reviewLabels, inProgressLabels []string, workWindow time.Duration) *Projector {
	if reviewLabels == nil {
		reviewLabels = DefaultReviewLabels
	}
	if inProgressLabels == nil {
		inProgressLabels = DefaultInProgressLabels
	}
	if workWindow <= 0 {
		workWindow = DefaultWorkWindow
	}
	return &Projector{
		review:     labelSet(reviewLabels),
		inProgress: labelSet(inProgressLabels),
		workWindow: workWindow,
	}
}

func labelSet(labels []string) map[string]bool {
	set := make(map[string]bool, len(labels))
	for _, l := range labels {
		if n := normalizeLabel(l); n != "" {
			set[n] = true
		}
	}
	return set
}

func normalizeLabel(l string) string {
	return strings.ToLower(strings.TrimSpace(l))
}

// Column returns the column of issue at time now:
//
//  1. Done if the issue is closed.
//  2. Review if it carries a review label.
//  3. In Progress if it carries an in-progress label, or is assigned and was
//     updated within the work window.
//  4. Assigned if it has an assignee.
//  5. Inbox otherwise.
func (p *Projector) Column(issue Issue, now time.Time) Column {
	if issue.State == StateClosed {
		return ColumnDone
	}
	if p.hasLabel(issue.Labels, p.review) {
		return ColumnReview
	}
	assigned := issue.Assignee != ""
	if p.hasLabel(issue.Labels, p.inProgress) {
		return ColumnInProgress
	}
	if assigned && !issue.UpdatedAt.IsZero() && now.Sub(issue.UpdatedAt) <= p.workWindow {
		return ColumnInProgress
	}
	if assigned {
		return ColumnAssigned
	}
	return ColumnInbox
}

func (p *Projector) hasLabel(labels []string, set map[string]bool) bool {
	for _, l := range labels {
		if set[normalizeLabel(l)] {
			return true
		}
	}
	return false
}
