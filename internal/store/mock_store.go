// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu        sync.RWMutex
	agents    map[int64]*AgentRecord   // keyed by agent ID
	names     map[string]int64         // agent name -> ID
	snapshots map[string]*RepoSnapshot // keyed by repo

	// SaveErr, when set, is returned by every write.
	SaveErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		agents:    make(map[int64]*AgentRecord),
		names:     make(map[string]int64),
		snapshots: make(map[string]*RepoSnapshot),
	}
}

// SaveAgent stores a copy of the agent.
func (m *MockStore) SaveAgent(ctx context.Context, agent *AgentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	if id, ok := m.names[agent.Name]; ok && id != agent.ID {
		return ErrDuplicateName
	}
	if old, ok := m.agents[agent.ID]; ok && old.Name != agent.Name {
		delete(m.names, old.Name)
	}

	// Make a copy to avoid external modification
	a := *agent
	m.agents[a.ID] = &a
	m.names[a.Name] = a.ID
	return nil
}

// ListAgents returns copies of all agents ordered by ID.
func (m *MockStore) ListAgents(ctx context.Context) ([]*AgentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agents := make([]*AgentRecord, 0, len(m.agents))
	for _, a := range m.agents {
		cp := *a
		agents = append(agents, &cp)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents, nil
}

// SaveIssues replaces the snapshot of repo.
func (m *MockStore) SaveIssues(ctx context.Context, repo string, issues []IssueRecord, refreshedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.snapshots[repo] = &RepoSnapshot{
		Repo:        repo,
		Issues:      copyIssues(issues),
		RefreshedAt: refreshedAt,
	}
	return nil
}

// LoadIssues returns a copy of the snapshot of repo.
func (m *MockStore) LoadIssues(ctx context.Context, repo string) (*RepoSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snapshots[repo]
	if !ok {
		return nil, ErrNotFound
	}
	return &RepoSnapshot{
		Repo:        snap.Repo,
		Issues:      copyIssues(snap.Issues),
		RefreshedAt: snap.RefreshedAt,
	}, nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

func copyIssues(issues []IssueRecord) []IssueRecord {
	out := make([]IssueRecord, len(issues))
	for i, issue := range issues {
		issue.Labels = append([]string(nil), issue.Labels...)
		out[i] = issue
	}
	return out
}
