// ABOUTME: Gateway orchestrator wiring the agent, job service, bus and result store
// ABOUTME: Manages the HTTP server, optional tailnet listener and shutdown lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/yuin/goldmark"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/research-gateway/internal/agent"
	"github.com/2389/research-gateway/internal/auth"
	"github.com/2389/research-gateway/internal/bus"
	"github.com/2389/research-gateway/internal/config"
	"github.com/2389/research-gateway/internal/jobs"
	"github.com/2389/research-gateway/internal/results"
	"github.com/2389/research-gateway/internal/tracker"
)

// shutdownTimeout bounds graceful shutdown after the run context ends.
const shutdownTimeout = 5 * time.Second

// Gateway serves the chat-completions and job APIs in front of one agent.
type Gateway struct {
	config      *config.Config
	agent       agent.Agent
	bus         *bus.Bus
	store       results.Store
	registry    *jobs.Registry
	jobs        *jobs.Service
	verifier    auth.TokenVerifier
	accounting  tracker.Accounting
	markdown    goldmark.Markdown
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
}

// Option customizes a Gateway built by New.
type Option func(*Gateway)

// WithAgent replaces the remote agent built from agent.endpoint.
func WithAgent(a agent.Agent) Option {
	return func(g *Gateway) { g.agent = a }
}

// WithStore replaces the result store built from the results section.
func WithStore(s results.Store) Option {
	return func(g *Gateway) { g.store = s }
}

// WithAccounting replaces the one-unit accounting strategy.
func WithAccounting(a tracker.Accounting) Option {
	return func(g *Gateway) { g.accounting = a }
}

// initStore opens the configured result store.
func initStore(cfg *config.Config, logger *slog.Logger) (results.Store, error) {
	switch cfg.Results.Backend {
	case config.BackendSQLite:
		s, err := results.NewSQLiteStore(cfg.Results.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("opening result store: %w", err)
		}
		return s, nil
	default:
		return results.NewFileStore(cfg.Results.Dir, logger), nil
	}
}

// New creates a Gateway with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gateway{
		config:     cfg,
		bus:        bus.New(logger),
		accounting: tracker.UnitAccounting{},
		markdown:   goldmark.New(),
		logger:     logger.With("component", "gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.agent == nil {
		g.agent = agent.NewRemote(cfg.Agent.Endpoint, nil, logger)
	}
	if g.store == nil {
		s, err := initStore(cfg, logger)
		if err != nil {
			return nil, err
		}
		g.store = s
	}
	if cfg.Auth.JWTSecret != "" {
		g.verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	}

	g.registry = jobs.NewRegistry(cfg.Jobs.Retention, cfg.Jobs.MaxJobs, logger)
	g.jobs = jobs.NewService(g.agent, g.bus, g.store, g.registry, jobs.Options{
		DefaultBudget:    cfg.Jobs.DefaultBudget,
		ProgressInterval: cfg.Jobs.ProgressInterval,
	}, logger)

	g.httpServer = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// Handler returns the gateway's HTTP handler with CORS applied.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("POST /v1/chat/completions", g.handleChatCompletions)

	api := auth.RequireJWT(g.verifier)
	mux.Handle("POST /api/v1/query", api(http.HandlerFunc(g.handleQuery)))
	mux.Handle("GET /api/v1/stream/{requestId}", api(http.HandlerFunc(g.handleStream)))
	mux.Handle("GET /api/v1/ws/{requestId}", api(http.HandlerFunc(g.handleWebSocket)))
	mux.Handle("GET /api/v1/task/{requestId}", api(http.HandlerFunc(g.handleTask)))

	return corsMiddleware(mux)
}

// setupTCPListener creates the standard TCP listener.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "http_addr", g.httpServer.Addr)

	ln, err := net.Listen("tcp", g.httpServer.Addr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates the listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
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
	return filepath.Join(homeDir, ".local", "share", "research-gateway", "tailscale"), nil
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

// setupTailscaleListener joins the tailnet and listens on :80 of the node.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

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

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	ln, err := g.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return ln, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server, waits for running jobs until ctx is done,
// and releases the registry, bus and store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "job drain", g.jobs.Close(ctx))

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}

	g.registry.Close()
	g.bus.Close()
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
