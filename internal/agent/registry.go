// ABOUTME: Agent registry holding the authoritative in-memory state of every registered agent.
// ABOUTME: Handles idempotent registration and monotonic heartbeat ingestion.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/coven-board/internal/activity"
	"github.com/2389/coven-board/internal/liveness"
	"github.com/2389/coven-board/internal/store"
)

// ErrAgentNotFound indicates the specified agent was not found.
var ErrAgentNotFound = errors.New("agent not found")

// ErrInvalidName indicates a registration without a usable agent name.
var ErrInvalidName = errors.New("agent name is required")

// EventSink receives one activity event per accepted registration or heartbeat.
type EventSink interface {
	Append(e activity.Event) bool
}

// record is the mutable state of one agent. Only touched under Registry.mu.
type record struct {
	id             int64
	name           string
	role           string
	declaredStatus string
	currentTask    string
	lastActive     time.Time
	uptimeSince    time.Time
	createdAt      time.Time
}

// View is a point-in-time copy of an agent with its effective status.
type View struct {
	ID             int64
	Name           string
	Role           string
	Status         liveness.Status
	DeclaredStatus string
	CurrentTask    string
	LastActive     time.Time
	UptimeSince    time.Time
	CreatedAt      time.Time
}

// HeartbeatParams carries the optional fields of a heartbeat.
type HeartbeatParams struct {
	// Status replaces the declared status when non-empty.
	Status string
	// Task replaces the current task when non-nil. An empty string clears it.
	Task *string
	// At is when the agent was last seen. Zero means now; future times are clamped to now.
	At time.Time
}

// Options configures a Registry.
type Options struct {
	// Timeout is the heartbeat timeout after which an agent shows as offline.
	Timeout time.Duration
	// Store, when set, is loaded at startup and receives every change.
	Store store.Store
	// Events receives heartbeat activity. Optional.
	Events EventSink
	Logger *slog.Logger
	// Now overrides the clock; used by tests.
	Now func() time.Time
}

// Registry tracks registered agents. All methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byID   map[int64]*record
	byName map[string]int64
	order  []int64 // registration order
	nextID int64

	timeout time.Duration
	now     func() time.Time
	events  EventSink
	persist *persister
	logger  *slog.Logger
}

// NewRegistry creates a registry. When opts.Store is set, previously persisted
// agents are loaded before the registry is returned.
func NewRegistry(ctx context.Context, opts Options) (*Registry, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = liveness.DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &Registry{
		byID:    make(map[int64]*record),
		byName:  make(map[string]int64),
		nextID:  1,
		timeout: opts.Timeout,
		now:     opts.Now,
		events:  opts.Events,
		logger:  opts.Logger.With("component", "agent-registry"),
	}

	if opts.Store != nil {
		if err := r.load(ctx, opts.Store); err != nil {
			return nil, err
		}
		r.persist = newPersister(opts.Store, r.logger)
	}

	return r, nil
}

func (r *Registry) load(ctx context.Context, s store.Store) error {
	recs, err := s.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("loading agents: %w", err)
	}
	for _, a := range recs {
		rec := &record{
			id:             a.ID,
			name:           a.Name,
			role:           a.Role,
			declaredStatus: a.DeclaredStatus,
			currentTask:    a.CurrentTask,
			lastActive:     a.LastActive,
			uptimeSince:    a.UptimeSince,
			createdAt:      a.CreatedAt,
		}
		r.byID[rec.id] = rec
		r.byName[rec.name] = rec.id
		r.order = append(r.order, rec.id)
		if rec.id >= r.nextID {
			r.nextID = rec.id + 1
		}
	}
	if len(recs) > 0 {
		r.logger.Info("loaded agents from store", "count", len(recs))
	}
	return nil
}

// Timeout returns the heartbeat timeout used for effective status.
func (r *Registry) Timeout() time.Duration {
	return r.timeout
}

// Register creates the agent if name is unseen, otherwise refreshes the existing
// record. created reports whether a new agent was created. An empty status
// means online, for new and re-registering agents alike.
func (r *Registry) Register(ctx context.Context, name, role, status string) (View, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return View{}, false, ErrInvalidName
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = string(liveness.StatusOnline)
	}

	r.mu.Lock()
	now := r.now()
	var rec *record
	created := false
	if id, ok := r.byName[name]; ok {
		// A re-registration is a restart: role and status start over.
		rec = r.byID[id]
		rec.role = role
		rec.uptimeSince = now
		rec.declaredStatus = status
	} else {
		rec = &record{
			id:             r.nextID,
			name:           name,
			role:           role,
			declaredStatus: status,
			lastActive:     now,
			uptimeSince:    now,
			createdAt:      now,
		}
		r.nextID++
		r.byID[rec.id] = rec
		r.byName[name] = rec.id
		r.order = append(r.order, rec.id)
		created = true
	}
	view := r.viewLocked(rec, now)
	r.persistLocked(rec)
	r.mu.Unlock()

	r.emit(activity.Event{
		Type:      activity.TypeHeartbeat,
		Agent:     view.Name,
		Message:   fmt.Sprintf("%s registered (%s)", view.Name, view.DeclaredStatus),
		Timestamp: now,
	})

	if created {
		r.logger.Info("agent registered", "id", view.ID, "name", view.Name, "role", view.Role)
	} else {
		r.logger.Debug("agent re-registered", "id", view.ID, "name", view.Name)
	}
	return view, created, nil
}

// Heartbeat records that agent id is alive. applied is false when the
// heartbeat is older than the agent's last activity; nothing changes then.
func (r *Registry) Heartbeat(ctx context.Context, id int64, p HeartbeatParams) (View, bool, error) {
	r.mu.Lock()
	rec, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return View{}, false, ErrAgentNotFound
	}

	now := r.now()
	at := p.At
	if at.IsZero() || at.After(now) {
		at = now
	}
	if at.Before(rec.lastActive) {
		view := r.viewLocked(rec, now)
		r.mu.Unlock()
		r.logger.Debug("ignoring stale heartbeat", "id", id, "at", at, "last_active", view.LastActive)
		return view, false, nil
	}

	rec.lastActive = at
	if s := strings.TrimSpace(p.Status); s != "" {
		rec.declaredStatus = s
	}
	if p.Task != nil {
		rec.currentTask = *p.Task
	}
	view := r.viewLocked(rec, now)
	r.persistLocked(rec)
	r.mu.Unlock()

	r.emit(activity.Event{
		Type:      activity.TypeHeartbeat,
		Agent:     view.Name,
		Message:   fmt.Sprintf("Heartbeat from %s (%s)", view.Name, view.DeclaredStatus),
		Timestamp: at,
	})
	return view, true, nil
}

// persistLocked queues the record for the store. It must run under mu so
// that queued snapshots of one agent arrive in the order they were taken.
func (r *Registry) persistLocked(rec *record) {
	if r.persist != nil {
		r.persist.enqueue(rec.toStore())
	}
}

// emit publishes an activity event outside the lock.
func (r *Registry) emit(e activity.Event) {
	if r.events != nil {
		r.events.Append(e)
	}
}

// Get returns the agent with the given ID.
func (r *Registry) Get(id int64) (View, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[id]
	if !ok {
		return View{}, ErrAgentNotFound
	}
	return r.viewLocked(rec, r.now()), nil
}

// List returns every agent in registration order.
func (r *Registry) List() []View {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	views := make([]View, 0, len(r.order))
	for _, id := range r.order {
		views = append(views, r.viewLocked(r.byID[id], now))
	}
	return views
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Close flushes pending writes to the store.
func (r *Registry) Close() error {
	if r.persist != nil {
		r.persist.close()
	}
	return nil
}

// viewLocked must be called with mu held (read or write).
func (r *Registry) viewLocked(rec *record, now time.Time) View {
	return View{
		ID:             rec.id,
		Name:           rec.name,
		Role:           rec.role,
		Status:         liveness.EffectiveStatus(rec.lastActive, rec.declaredStatus, now, r.timeout),
		DeclaredStatus: rec.declaredStatus,
		CurrentTask:    rec.currentTask,
		LastActive:     rec.lastActive,
		UptimeSince:    rec.uptimeSince,
		CreatedAt:      rec.createdAt,
	}
}

func (rec *record) toStore() store.AgentRecord {
	return store.AgentRecord{
		ID:             rec.id,
		Name:           rec.name,
		Role:           rec.role,
		DeclaredStatus: rec.declaredStatus,
		CurrentTask:    rec.currentTask,
		LastActive:     rec.lastActive,
		UptimeSince:    rec.uptimeSince,
		CreatedAt:      rec.createdAt,
	}
}
