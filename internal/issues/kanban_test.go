// ABOUTME: Tests for the kanban projector
// ABOUTME: Covers every rule, rule-order tie-breaks and label normalization

package issues

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProjector_Column(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Hour)
	old := now.Add(-72 * time.Hour)
	p := NewProjector(nil, nil, 24*time.Hour)

	tests := []struct {
		name  string
		issue Issue
		want  Column
	}{
		{"closed", Issue{State: StateClosed}, ColumnDone},
		{"closed wins over review", Issue{State: StateClosed, Labels: []string{"review"}}, ColumnDone},
		{"review label", Issue{State: StateOpen, Labels: []string{"review"}}, ColumnReview},
		{"review with assignee", Issue{State: StateOpen, Labels: []string{"review"}, Assignee: "sam", UpdatedAt: recent}, ColumnReview},
		{"review wins over in-progress", Issue{State: StateOpen, Labels: []string{"in-progress", "review"}}, ColumnReview},
		{"in-progress label", Issue{State: StateOpen, Labels: []string{"in-progress"}}, ColumnInProgress},
		{"in progress with space", Issue{State: StateOpen, Labels: []string{"In Progress"}}, ColumnInProgress},
		{"label trimmed", Issue{State: StateOpen, Labels: []string{"  Review "}}, ColumnReview},
		{"assigned and recent", Issue{State: StateOpen, Assignee: "kat", UpdatedAt: recent}, ColumnInProgress},
		{"assigned at window edge", Issue{State: StateOpen, Assignee: "kat", UpdatedAt: now.Add(-24 * time.Hour)}, ColumnInProgress},
		{"assigned and old", Issue{State: StateOpen, Assignee: "kat", UpdatedAt: old}, ColumnAssigned},
		{"assigned without timestamp", Issue{State: StateOpen, Assignee: "kat"}, ColumnAssigned},
		{"recent but unassigned", Issue{State: StateOpen, UpdatedAt: recent}, ColumnInbox},
		{"no synonyms inferred", Issue{State: StateOpen, Labels: []string{"reviewing", "wip"}}, ColumnInbox},
		{"empty", Issue{}, ColumnInbox},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Column(tt.issue, now))
		})
	}
}

func TestProjector_ReviewAssigneeExample(t *testing.T) {
	p := NewProjector(nil, nil, 0)
	issue := Issue{State: StateOpen, Labels: []string{"review"}, Assignee: "sam"}

	assert.Equal(t, ColumnReview, p.Column(issue, time.Now()))
}

func TestProjector_CustomLabels(t *testing.T) {
	p := NewProjector([]string{"needs-review", "QA"}, []string{"doing"}, time.Hour)
	now := time.Now()

	assert.Equal(t, ColumnReview, p.Column(Issue{Labels: []string{"qa"}}, now))
	assert.Equal(t, ColumnInProgress, p.Column(Issue{Labels: []string{"Doing"}}, now))
	// Defaults are replaced, not extended.
	assert.Equal(t, ColumnInbox, p.Column(Issue{Labels: []string{"review"}}, now))
}

func TestProjector_TotalOverLabelCombinations(t *testing.T) {
	p := NewProjector(nil, nil, 0)
	now := time.Now()
	valid := map[Column]bool{}
	for _, c := range Columns {
		valid[c] = true
	}

	labelSets := [][]string{nil, {"review"}, {"in-progress"}, {"bug"}, {"review", "in progress"}}
	for _, state := range []string{StateOpen, StateClosed, ""} {
		for _, labels := range labelSets {
			for _, assignee := range []string{"", "kat"} {
				for _, updated := range []time.Time{{}, now, now.Add(-48 * time.Hour)} {
					issue := Issue{State: state, Labels: labels, Assignee: assignee, UpdatedAt: updated}
					assert.True(t, valid[p.Column(issue, now)], "issue %+v", issue)
				}
			}
		}
	}
}

func TestColumns_BoardOrder(t *testing.T) {
	assert.Equal(t, []Column{"Inbox", "Assigned", "In Progress", "Review", "Done"}, Columns)
}

func TestParseColumn(t *testing.T) {
	tests := []struct {
		in   string
		want Column
		ok   bool
	}{
		{"Inbox", ColumnInbox, true},
		{"in progress", ColumnInProgress, true},
		{"in-progress", ColumnInProgress, true},
		{"IN_PROGRESS", ColumnInProgress, true},
		{" review ", ColumnReview, true},
		{"done", ColumnDone, true},
		{"assigned", ColumnAssigned, true},
		{"backlog", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseColumn(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
