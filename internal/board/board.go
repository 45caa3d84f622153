// ABOUTME: Board orchestrator that owns the registry, issue cache, activity feed and HTTP server
// ABOUTME: Manages store, scheduler, tailscale listener and health endpoints lifecycle

package board

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/coven-board/internal/activity"
	"github.com/2389/coven-board/internal/agent"
	"github.com/2389/coven-board/internal/config"
	"github.com/2389/coven-board/internal/heartbeat"
	"github.com/2389/coven-board/internal/issues"
	"github.com/2389/coven-board/internal/metrics"
	"github.com/2389/coven-board/internal/scheduler"
	"github.com/2389/coven-board/internal/store"
	"github.com/2389/coven-board/internal/terminal"
	"github.com/2389/coven-board/internal/workspace"
)

// Board is the process-scoped state container for coven-board.
// It owns every component and serves the HTTP API.
type Board struct {
	config      *config.Config
	store       store.Store // nil when running memory-only
	registry    *agent.Registry
	issues      *issues.Cache
	feed        *activity.Feed
	heartbeat   *heartbeat.Switch
	workspace   *workspace.Reader
	terminal    *terminal.Capturer
	scheduler   *scheduler.Scheduler
	metrics     *metrics.Metrics
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
}

// Option customizes component construction. Used by tests to replace upstreams.
type Option func(*options)

type options struct {
	fetcher        issues.Fetcher
	terminalRunner terminal.Runner
	sources        []activity.Source
	sourcesSet     bool
}

// WithFetcher replaces the GitHub issue fetcher.
func WithFetcher(f issues.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithTerminalRunner replaces the tmux command runner.
func WithTerminalRunner(r terminal.Runner) Option {
	return func(o *options) { o.terminalRunner = r }
}

// WithSources replaces the polled activity sources built from config.
func WithSources(sources ...activity.Source) Option {
	return func(o *options) {
		o.sources = sources
		o.sourcesSet = true
	}
}

// initStore opens the SQLite store, or returns nil when no path is configured.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("COVEN_BOARD_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	if dbPath == "" {
		return nil, nil
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// buildSources creates the optional commit and Slack producers from config.
func buildSources(cfg *config.Config, logger *slog.Logger) []activity.Source {
	var sources []activity.Source
	if cfg.Activity.ProjectDir != "" {
		sources = append(sources, activity.NewCommitSource(cfg.Activity.ProjectDir, nil))
		logger.Info("commit activity enabled", "project_dir", cfg.Activity.ProjectDir)
	}
	if cfg.Slack.Enabled() {
		sources = append(sources, activity.NewSlackSource(activity.SlackConfig{
			Token:             cfg.Slack.BotToken,
			Channels:          cfg.Slack.Channels,
			ChannelAgents:     cfg.Slack.ChannelAgents,
			RelayName:         cfg.Slack.RelayName,
			RequestsPerSecond: cfg.Slack.RequestsPerSecond,
		}, &http.Client{Timeout: 10 * time.Second}))
		logger.Info("slack activity enabled", "channels", len(cfg.Slack.Channels))
	}
	return sources
}

// New creates a Board from cfg. Persisted agents and issue snapshots are
// loaded before it returns; background work starts with Run.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Board, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	feed := activity.NewFeed(cfg.Activity.MaxEvents, cfg.Activity.Window)

	registry, err := agent.NewRegistry(ctx, agent.Options{
		Timeout: cfg.Agents.HeartbeatTimeout,
		Store:   s,
		Events:  feed,
		Logger:  logger,
	})
	if err != nil {
		closeStore(s)
		return nil, fmt.Errorf("creating agent registry: %w", err)
	}

	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = issues.NewGitHubFetcher(issues.GitHubConfig{
			BaseURL:           cfg.Issues.APIURL,
			Token:             cfg.Issues.GitHubToken,
			ClosedWindow:      cfg.Issues.ClosedWindow,
			RequestsPerSecond: cfg.Issues.RequestsPerSecond,
		}, &http.Client{Timeout: cfg.Issues.FetchTimeout})
	}
	cache := issues.NewCache(issues.CacheConfig{
		Repos:           cfg.Issues.Repos,
		FetchTimeout:    cfg.Issues.FetchTimeout,
		RefreshInterval: cfg.Issues.RefreshInterval,
		Projector:       issues.NewProjector(cfg.Issues.ReviewLabels, cfg.Issues.InProgressLabels, cfg.Issues.WorkWindow),
		Store:           s,
		Logger:          logger,
	}, fetcher)
	if err := cache.Seed(ctx); err != nil {
		logger.Warn("seeding issue cache from store failed", "error", err)
	}

	sources := o.sources
	if !o.sourcesSet {
		sources = buildSources(cfg, logger)
	}

	b := &Board{
		config:    cfg,
		store:     s,
		registry:  registry,
		issues:    cache,
		feed:      feed,
		heartbeat: heartbeat.NewSwitch(cfg.Heartbeat.ToggleFile),
		workspace: workspace.NewReader(cfg.Workspace.AgentsBasePath),
		terminal:  terminal.NewCapturer(o.terminalRunner, cfg.Terminal.Timeout, cfg.Terminal.Lines),
		metrics:   m,
		logger:    logger.With("component", "board"),
	}
	b.scheduler = scheduler.New(scheduler.Config{
		RefreshInterval:     cfg.Issues.RefreshInterval,
		LivenessTick:        cfg.Agents.LivenessTick,
		MaintenanceInterval: cfg.Activity.PollInterval,
		Sources:             sources,
		Metrics:             m,
		Logger:              logger,
	}, cache, registry, feed)

	mux := http.NewServeMux()
	b.registerRoutes(mux)

	b.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           b.instrument(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return b, nil
}

// Handler returns the board's HTTP handler.
func (b *Board) Handler() http.Handler {
	return b.httpServer.Handler
}

func closeStore(s store.Store) {
	if s != nil {
		_ = s.Close()
	}
}

// setupTCPListener creates a standard TCP listener for HTTP.
func (b *Board) setupTCPListener() (net.Listener, error) {
	b.logger.Info("starting board", "http_addr", b.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", b.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates the listener based on configuration (Tailscale or TCP).
func (b *Board) setupListener(ctx context.Context) (net.Listener, error) {
	if b.config.Tailscale.Enabled {
		if b.config.Server.HTTPAddr != "" {
			b.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", b.config.Server.HTTPAddr)
		}
		return b.setupTailscaleListener(ctx)
	}
	return b.setupTCPListener()
}

// Run starts the scheduler and HTTP server and blocks until ctx is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (b *Board) Run(ctx context.Context) error {
	ln, err := b.setupListener(ctx)
	if err != nil {
		return err
	}

	b.scheduler.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		b.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := b.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		b.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		b.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := b.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context since the run context is already canceled.
func (b *Board) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "coven-board", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener joins the tailnet and listens on :80, or :443 with HTTPS.
func (b *Board) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := b.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	b.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	b.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := b.tsnetServer.Up(ctx)
	if err != nil {
		_ = b.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	b.logTailscaleStatus(tsCfg.Hostname, status)

	if tsCfg.HTTPS {
		return b.createTailscaleTLSListener()
	}
	ln, err := b.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = b.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return ln, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (b *Board) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		b.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	b.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's auto-provisioned certs.
func (b *Board) createTailscaleTLSListener() (net.Listener, error) {
	b.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := b.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		_ = b.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := b.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = b.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server and background work, flushes pending agent
// writes and releases the store.
func (b *Board) Shutdown(ctx context.Context) error {
	b.logger.Info("shutting down board")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", b.httpServer.Shutdown(ctx))

	b.scheduler.Stop()
	errs = appendCloseError(errs, "registry close", b.registry.Close())

	if b.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", b.tsnetServer.Close())
	}
	if b.store != nil {
		errs = appendCloseError(errs, "store close", b.store.Close())
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (b *Board) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once every configured repository has issue data,
// either from a refresh or from the persisted snapshot.
func (b *Board) handleReady(w http.ResponseWriter, r *http.Request) {
	statuses := b.issues.Status()
	loaded := 0
	for _, st := range statuses {
		if !st.LastRefreshed.IsZero() || st.Seeded {
			loaded++
		}
	}
	if loaded < len(statuses) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "waiting for issues (%d/%d repos)", loaded, len(statuses))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d agents, %d repos)", b.registry.Len(), len(statuses))
}
