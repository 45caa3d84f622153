// ABOUTME: HTTP API handlers for agent registration, heartbeats, issues, activity and the heartbeat switch
// ABOUTME: Validates request bodies at the boundary and maps domain errors to status codes

package board

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/coven-board/internal/activity"
	"github.com/2389/coven-board/internal/agent"
	"github.com/2389/coven-board/internal/auth"
	"github.com/2389/coven-board/internal/issues"
	"github.com/2389/coven-board/internal/terminal"
	"github.com/2389/coven-board/internal/workspace"
)

// maxBodyBytes caps request bodies on write endpoints.
const maxBodyBytes = 64 << 10

// RegisterRequest is the JSON request body for POST /api/agents/register.
type RegisterRequest struct {
	Name   string `json:"name"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

// HeartbeatRequest is the JSON request body for POST /api/agents/{id}/heartbeat.
// Task and CurrentTask are synonyms; Task wins when both are present.
type HeartbeatRequest struct {
	Status      string  `json:"status"`
	Task        *string `json:"task"`
	CurrentTask *string `json:"current_task"`
	Timestamp   string  `json:"timestamp"`
}

// AgentResponse is the JSON representation of one agent.
type AgentResponse struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Role           string  `json:"role"`
	Status         string  `json:"status"`
	DeclaredStatus string  `json:"declared_status"`
	CurrentTask    string  `json:"current_task"`
	LastActive     *string `json:"last_active"`
	UptimeSince    *string `json:"uptime_since"`
}

// WorkingResponse is the JSON response for GET /api/agents/{id}/working.
type WorkingResponse struct {
	AgentName   string `json:"agent_name"`
	Content     string `json:"content"`
	ContentHTML string `json:"content_html"`
	Truncated   bool   `json:"truncated"`
}

// TerminalResponse is the JSON response for GET /api/agents/{name}/terminal.
type TerminalResponse struct {
	Name   string `json:"name"`
	Output string `json:"output"`
}

// IssueResponse is the JSON representation of one issue with its column.
type IssueResponse struct {
	Repo      string   `json:"repo"`
	Number    int      `json:"number"`
	Title     string   `json:"title"`
	URL       string   `json:"url"`
	Labels    []string `json:"labels"`
	Assignee  *string  `json:"assignee"`
	State     string   `json:"state"`
	UpdatedAt *string  `json:"updated_at"`
	Column    string   `json:"column"`
}

// BoardColumnResponse is one column of GET /api/issues/board.
type BoardColumnResponse struct {
	Name   string          `json:"name"`
	Count  int             `json:"count"`
	Issues []IssueResponse `json:"issues"`
}

// BoardResponse is the JSON response for GET /api/issues/board.
type BoardResponse struct {
	Columns []BoardColumnResponse `json:"columns"`
	Total   int                   `json:"total"`
}

// RepoStatusResponse is one entry of GET /api/issues/status.
type RepoStatusResponse struct {
	Repo                string  `json:"repo"`
	LastRefreshed       *string `json:"last_refreshed"`
	LastAttempt         *string `json:"last_attempt"`
	LastError           string  `json:"last_error,omitempty"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	Count               int     `json:"count"`
	Stale               bool    `json:"stale"`
	Seeded              bool    `json:"seeded"`
}

// RefreshRepoResult is one entry of POST /api/issues/refresh.
type RefreshRepoResult struct {
	Repo  string `json:"repo"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// RefreshResponse is the JSON response for POST /api/issues/refresh.
type RefreshResponse struct {
	OK    bool                `json:"ok"`
	Repos []RefreshRepoResult `json:"repos"`
}

// ActivityResponse is one event of GET /api/activity.
type ActivityResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Agent     string `json:"agent"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// HeartbeatSwitchResponse is the JSON response for the heartbeat switch endpoints.
type HeartbeatSwitchResponse struct {
	Active bool `json:"active"`
}

// registerRoutes wires every endpoint. Write endpoints and the terminal
// capture sit behind the API key middleware; reads are public.
func (b *Board) registerRoutes(mux *http.ServeMux) {
	requireKey := auth.APIKeyMiddleware(b.config.Auth.APIKey)
	if b.config.Auth.APIKey == "" {
		b.logger.Warn("HTTP auth disabled - no auth.api_key configured")
	}

	mux.HandleFunc("GET /health", b.handleHealth)
	mux.HandleFunc("GET /health/ready", b.handleReady)

	mux.Handle("POST /api/agents/register", requireKey(http.HandlerFunc(b.handleRegister)))
	mux.Handle("POST /api/agents/{id}/heartbeat", requireKey(http.HandlerFunc(b.handleHeartbeat)))
	mux.Handle("GET /api/agents/{name}/terminal", requireKey(http.HandlerFunc(b.handleTerminal)))
	mux.HandleFunc("GET /api/agents", b.handleListAgents)
	mux.HandleFunc("GET /api/agents/{id}", b.handleGetAgent)
	mux.HandleFunc("GET /api/agents/{id}/working", b.handleWorking)

	mux.HandleFunc("GET /api/issues", b.handleListIssues)
	mux.HandleFunc("GET /api/issues/board", b.handleIssueBoard)
	mux.HandleFunc("GET /api/issues/status", b.handleIssueStatus)
	mux.Handle("POST /api/issues/refresh", requireKey(http.HandlerFunc(b.handleRefresh)))

	mux.HandleFunc("GET /api/activity", b.handleActivity)

	mux.HandleFunc("GET /api/heartbeat/status", b.handleHeartbeatStatus)
	mux.Handle("POST /api/heartbeat/toggle", requireKey(http.HandlerFunc(b.handleHeartbeatToggle)))

	if b.config.Metrics.Enabled {
		mux.Handle("GET "+b.config.Metrics.Path, b.metrics.Handler())
		b.logger.Info("metrics endpoint enabled", "path", b.config.Metrics.Path)
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request latency per matched route pattern.
func (b *Board) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		b.metrics.ObserveRequest(route, rec.status, time.Since(start))
	})
}

// handleRegister handles POST /api/agents/register.
// Returns 201 for a new agent and 200 when the name was already registered.
func (b *Board) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		b.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		b.sendJSONError(w, http.StatusBadRequest, "name is required")
		return
	}

	view, created, err := b.registry.Register(r.Context(), req.Name, req.Role, req.Status)
	if err != nil {
		b.sendAgentError(w, err)
		return
	}
	b.metrics.Registration(created)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	b.sendJSON(w, status, agentToResponse(view))
}

// handleHeartbeat handles POST /api/agents/{id}/heartbeat. The body is optional.
func (b *Board) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id, ok := parseAgentID(r.PathValue("id"))
	if !ok {
		b.sendJSONError(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	var req HeartbeatRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		b.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	params := agent.HeartbeatParams{Status: req.Status, Task: req.Task}
	if params.Task == nil {
		params.Task = req.CurrentTask
	}
	if req.Timestamp != "" {
		at, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			b.sendJSONError(w, http.StatusBadRequest, "timestamp must be RFC 3339")
			return
		}
		params.At = at
	}

	view, applied, err := b.registry.Heartbeat(r.Context(), id, params)
	if err != nil {
		b.sendAgentError(w, err)
		return
	}
	b.metrics.Heartbeat(applied)
	b.sendJSON(w, http.StatusOK, agentToResponse(view))
}

// handleListAgents handles GET /api/agents.
func (b *Board) handleListAgents(w http.ResponseWriter, r *http.Request) {
	views := b.registry.List()
	response := make([]AgentResponse, 0, len(views))
	for _, v := range views {
		response = append(response, agentToResponse(v))
	}
	b.sendJSON(w, http.StatusOK, response)
}

// handleGetAgent handles GET /api/agents/{id}.
func (b *Board) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := parseAgentID(r.PathValue("id"))
	if !ok {
		b.sendJSONError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	view, err := b.registry.Get(id)
	if err != nil {
		b.sendAgentError(w, err)
		return
	}
	b.sendJSON(w, http.StatusOK, agentToResponse(view))
}

// handleWorking handles GET /api/agents/{id}/working.
func (b *Board) handleWorking(w http.ResponseWriter, r *http.Request) {
	id, ok := parseAgentID(r.PathValue("id"))
	if !ok {
		b.sendJSONError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	view, err := b.registry.Get(id)
	if err != nil {
		b.sendAgentError(w, err)
		return
	}

	doc, err := b.workspace.Read(view.Name)
	switch {
	case errors.Is(err, workspace.ErrNotFound):
		b.sendJSONError(w, http.StatusNotFound, "WORKING.md not found")
		return
	case errors.Is(err, workspace.ErrInvalidName):
		b.sendJSONError(w, http.StatusBadRequest, "invalid agent name")
		return
	case err != nil:
		b.logger.Error("reading WORKING.md failed", "agent", view.Name, "error", err)
		b.sendJSONError(w, http.StatusInternalServerError, "failed to read WORKING.md")
		return
	}

	if doc.Truncated {
		b.logger.Warn("WORKING.md exceeds read limit, serving the start of it", "agent", view.Name)
	}
	b.sendJSON(w, http.StatusOK, WorkingResponse{
		AgentName:   view.Name,
		Content:     doc.Content,
		ContentHTML: doc.HTML,
		Truncated:   doc.Truncated,
	})
}

// handleTerminal handles GET /api/agents/{name}/terminal.
func (b *Board) handleTerminal(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	output, err := b.terminal.Capture(r.Context(), name)
	if err != nil {
		var sessErr *terminal.SessionError
		switch {
		case errors.Is(err, terminal.ErrInvalidName):
			b.sendJSONError(w, http.StatusBadRequest, "invalid agent name")
		case errors.As(err, &sessErr):
			b.sendJSON(w, http.StatusNotFound, map[string]string{
				"error":  terminal.ErrSessionNotFound.Error(),
				"detail": sessErr.Detail,
			})
		case errors.Is(err, terminal.ErrTmuxNotInstalled), errors.Is(err, terminal.ErrTimeout):
			b.sendJSONError(w, http.StatusInternalServerError, err.Error())
		default:
			b.logger.Error("terminal capture failed", "name", name, "error", err)
			b.sendJSONError(w, http.StatusInternalServerError, "terminal capture failed")
		}
		return
	}
	b.sendJSON(w, http.StatusOK, TerminalResponse{Name: name, Output: output})
}

// parseIssueFilter reads repo, label and column query parameters.
func parseIssueFilter(r *http.Request) (issues.Filter, error) {
	q := r.URL.Query()
	f := issues.Filter{
		Repo:  strings.TrimSpace(q.Get("repo")),
		Label: strings.TrimSpace(q.Get("label")),
	}
	if raw := strings.TrimSpace(q.Get("column")); raw != "" {
		col, ok := issues.ParseColumn(raw)
		if !ok {
			return f, errors.New("unknown column")
		}
		f.Column = col
	}
	return f, nil
}

// handleListIssues handles GET /api/issues?repo=&label=&column=.
func (b *Board) handleListIssues(w http.ResponseWriter, r *http.Request) {
	f, err := parseIssueFilter(r)
	if err != nil {
		b.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	list := b.issues.List(f)
	response := make([]IssueResponse, 0, len(list))
	for _, is := range list {
		response = append(response, issueToResponse(is))
	}
	b.sendJSON(w, http.StatusOK, response)
}

// handleIssueBoard handles GET /api/issues/board.
func (b *Board) handleIssueBoard(w http.ResponseWriter, r *http.Request) {
	f, err := parseIssueFilter(r)
	if err != nil {
		b.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	board := b.issues.Board(f)
	response := BoardResponse{
		Columns: make([]BoardColumnResponse, 0, len(board.Columns)),
		Total:   board.Total,
	}
	for _, col := range board.Columns {
		bc := BoardColumnResponse{
			Name:   string(col.Name),
			Count:  col.Count,
			Issues: make([]IssueResponse, 0, len(col.Issues)),
		}
		for _, is := range col.Issues {
			bc.Issues = append(bc.Issues, issueToResponse(is))
		}
		response.Columns = append(response.Columns, bc)
	}
	b.sendJSON(w, http.StatusOK, response)
}

// handleIssueStatus handles GET /api/issues/status.
func (b *Board) handleIssueStatus(w http.ResponseWriter, r *http.Request) {
	statuses := b.issues.Status()
	response := make([]RepoStatusResponse, 0, len(statuses))
	for _, st := range statuses {
		response = append(response, RepoStatusResponse{
			Repo:                st.Repo,
			LastRefreshed:       formatTime(st.LastRefreshed),
			LastAttempt:         formatTime(st.LastAttempt),
			LastError:           st.LastError,
			ConsecutiveFailures: st.ConsecutiveFailures,
			Count:               st.Count,
			Stale:               st.Stale,
			Seeded:              st.Seeded,
		})
	}
	b.sendJSON(w, http.StatusOK, response)
}

// handleRefresh handles POST /api/issues/refresh. Upstream failures are
// reported per repository; the response is 200 either way.
func (b *Board) handleRefresh(w http.ResponseWriter, r *http.Request) {
	results := b.scheduler.RefreshAll(r.Context())
	response := RefreshResponse{OK: true, Repos: make([]RefreshRepoResult, 0, len(results))}
	for _, res := range results {
		entry := RefreshRepoResult{Repo: res.Repo, OK: res.Err == nil}
		if res.Err != nil {
			entry.Error = res.Err.Error()
			response.OK = false
		}
		response.Repos = append(response.Repos, entry)
	}
	b.sendJSON(w, http.StatusOK, response)
}

// handleActivity handles GET /api/activity?limit=.
func (b *Board) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := b.config.Activity.FeedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			b.sendJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		if n > 0 {
			limit = n
		}
	}

	events := b.feed.Recent(limit)
	response := make([]ActivityResponse, 0, len(events))
	for _, e := range events {
		response = append(response, activityToResponse(e))
	}
	b.sendJSON(w, http.StatusOK, response)
}

// handleHeartbeatStatus handles GET /api/heartbeat/status.
func (b *Board) handleHeartbeatStatus(w http.ResponseWriter, r *http.Request) {
	active, err := b.heartbeat.Active()
	if err != nil {
		b.logger.Error("reading heartbeat switch failed", "error", err)
		b.sendJSONError(w, http.StatusInternalServerError, "failed to read heartbeat switch")
		return
	}
	b.sendJSON(w, http.StatusOK, HeartbeatSwitchResponse{Active: active})
}

// handleHeartbeatToggle handles POST /api/heartbeat/toggle.
func (b *Board) handleHeartbeatToggle(w http.ResponseWriter, r *http.Request) {
	active, err := b.heartbeat.Toggle()
	if err != nil {
		b.logger.Error("toggling heartbeat switch failed", "error", err)
		b.sendJSONError(w, http.StatusInternalServerError, "failed to toggle heartbeat switch")
		return
	}
	b.logger.Info("heartbeat switch toggled", "active", active, "auth", auth.MethodFromContext(r.Context()))
	b.sendJSON(w, http.StatusOK, HeartbeatSwitchResponse{Active: active})
}

// sendAgentError maps registry errors to HTTP responses.
func (b *Board) sendAgentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, agent.ErrAgentNotFound):
		b.sendJSONError(w, http.StatusNotFound, "agent not found")
	case errors.Is(err, agent.ErrInvalidName):
		b.sendJSONError(w, http.StatusBadRequest, "name is required")
	default:
		b.logger.Error("agent operation failed", "error", err)
		b.sendJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

// sendJSON writes v as a JSON response with the given status.
func (b *Board) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		b.logger.Debug("writing response failed", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (b *Board) sendJSONError(w http.ResponseWriter, status int, message string) {
	b.sendJSON(w, status, map[string]string{"error": message})
}

// decodeBody decodes a JSON request body into v. Unknown fields are ignored.
// With optional set, an empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		if optional {
			return nil
		}
		return errors.New("request body is required")
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errors.New("request body too large")
	}
	if err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func parseAgentID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// formatTime renders t as RFC 3339 in UTC, or nil when zero.
func formatTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func agentToResponse(v agent.View) AgentResponse {
	return AgentResponse{
		ID:             v.ID,
		Name:           v.Name,
		Role:           v.Role,
		Status:         string(v.Status),
		DeclaredStatus: v.DeclaredStatus,
		CurrentTask:    v.CurrentTask,
		LastActive:     formatTime(v.LastActive),
		UptimeSince:    formatTime(v.UptimeSince),
	}
}

func issueToResponse(is issues.Issue) IssueResponse {
	labels := is.Labels
	if labels == nil {
		labels = []string{}
	}
	var assignee *string
	if is.Assignee != "" {
		a := is.Assignee
		assignee = &a
	}
	return IssueResponse{
		Repo:      is.Repo,
		Number:    is.Number,
		Title:     is.Title,
		URL:       is.URL,
		Labels:    labels,
		Assignee:  assignee,
		State:     is.State,
		UpdatedAt: formatTime(is.UpdatedAt),
		Column:    string(is.Column),
	}
}

func activityToResponse(e activity.Event) ActivityResponse {
	return ActivityResponse{
		ID:        e.ID,
		Type:      string(e.Type),
		Agent:     e.Agent,
		Message:   e.Message,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
	}
}
