// ABOUTME: Server assembly: store, gateway client, orchestrator, dispatch engine, HTTP router
// ABOUTME: Owns the HTTP server lifecycle and graceful shutdown

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/herald/internal/api"
	"github.com/2389/herald/internal/auth"
	"github.com/2389/herald/internal/config"
	"github.com/2389/herald/internal/connect"
	"github.com/2389/herald/internal/dispatch"
	"github.com/2389/herald/internal/gateway"
	"github.com/2389/herald/internal/metrics"
	"github.com/2389/herald/internal/store"
	"github.com/2389/herald/internal/webhook"
)

// Server wires herald together: the SQLite store, the gateway client, the
// connection orchestrator, the dispatch engine, the webhook receiver, and
// the authenticated API. It owns the HTTP server and the two background
// loops (dispatch passes and connection status polls).
type Server struct {
	config     *config.Config
	store      *store.SQLiteStore
	orch       *connect.Orchestrator
	engine     *dispatch.Engine
	httpServer *http.Server
	logger     *slog.Logger

	dispatchEvery time.Duration
	pollEvery     time.Duration
}

// New creates a Server from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	gw, err := gateway.New(gateway.Config{
		BaseURL:      cfg.Gateway.BaseURL,
		PartnerToken: cfg.Gateway.PartnerToken,
		Timeout:      cfg.Gateway.Timeout,
		Logger:       logger,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating gateway client: %w", err)
	}

	orch := connect.New(st, gw, connect.Config{
		ProjectID:      cfg.Gateway.ProjectID,
		WebhookURL:     determineWebhookURL(cfg, logger),
		PairingMinAge:  cfg.Connect.PairingMinAge,
		PairingWaitMax: cfg.Connect.PairingWaitMax,
		RetryBase:      cfg.Connect.RetryBase,
		RetryMax:       cfg.Connect.RetryMax,
	}, logger)

	engine := dispatch.New(st, gw, dispatch.Config{
		BatchSize: cfg.Dispatch.BatchSize,
	}, logger)

	s := &Server{
		config:        cfg,
		store:         st,
		orch:          orch,
		engine:        engine,
		logger:        logger.With("component", "server"),
		dispatchEvery: cfg.Dispatch.Interval,
		pollEvery:     cfg.Poll.Interval,
	}
	if s.dispatchEvery <= 0 {
		s.dispatchEvery = time.Minute
	}
	if s.pollEvery <= 0 {
		s.pollEvery = 2 * time.Minute
	}

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	apiHandler := api.New(orch, engine, gw, st, logger)
	receiver := webhook.New(orch, cfg.Gateway.WebhookToken, logger)

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           s.buildRouter(apiHandler, receiver, verifier),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// initStore creates the store from configuration, honoring the
// HERALD_DB_PATH environment override.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("HERALD_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return st, nil
}

// determineWebhookURL resolves the callback URL registered on newly created
// channels. Priority: HERALD_PUBLIC_URL env var, then server.public_url from
// config. Empty disables registration; polling alone keeps status fresh.
func determineWebhookURL(cfg *config.Config, logger *slog.Logger) string {
	base := cfg.Server.PublicURL
	if envURL := os.Getenv("HERALD_PUBLIC_URL"); envURL != "" {
		base = envURL
	}
	if base == "" {
		logger.Warn("no public URL configured, webhook registration disabled; channel status relies on polling")
		return ""
	}
	return strings.TrimRight(base, "/") + "/hooks/gateway"
}

// buildRouter mounts everything the HTTP server exposes. The API subtree
// carries its own JWT middleware; health, metrics, and the gateway hook
// stay outside it.
func (s *Server) buildRouter(apiHandler *api.Handler, receiver *webhook.Receiver, verifier auth.TokenVerifier) http.Handler {
	r := chi.NewRouter()
	r.Use(metrics.Middleware)

	r.Get("/health", s.handleHealth)
	r.Get("/health/ready", s.handleReady)

	r.Mount("/api", apiHandler.Routes(verifier))
	r.Method(http.MethodPost, "/hooks/gateway", receiver)

	if s.config.Metrics.Enabled {
		path := s.config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	return r
}

// Run starts the HTTP server and the background loops, then blocks until
// the context is canceled or the server fails. It returns nil after a
// clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Server.HTTPAddr, err)
	}

	loopCtx, stopLoops := context.WithCancel(ctx)
	defer stopLoops()

	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		s.runDispatchLoop(loopCtx)
	}()
	go func() {
		defer loops.Done()
		s.runPollLoop(loopCtx)
	}()

	errCh := s.startServer(ln)
	serverErr := s.waitForShutdownSignal(ctx, errCh)

	// The loops must drain before shutdown closes the store underneath an
	// in-flight dispatch pass.
	stopLoops()
	loops.Wait()

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// startServer runs the HTTP server in a goroutine, returning error channel.
func (s *Server) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops the HTTP server and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "store close", s.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 once the store answers a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
