// Package server assembles herald's components into a running process.
//
// # Wiring
//
// New builds the dependency graph in order: SQLite store, gateway client,
// connect orchestrator, dispatch engine, webhook receiver, API handler,
// then the chi router. Construction is pure wiring; nothing talks to the
// network until Run.
//
// # Endpoints
//
//   - /api/*          authenticated user actions (internal/api)
//   - POST /hooks/gateway  gateway push events (internal/webhook)
//   - GET /health     liveness
//   - GET /health/ready   readiness (store ping)
//   - GET /metrics    Prometheus, when enabled
//
// # Background loops
//
// Run owns two tickers. The dispatch loop calls RunDueBroadcasts every
// dispatch.interval. The poll loop walks every connection holding a
// channel and calls CheckStatus on each, making it the third writer of
// connection status next to user actions and the webhook. Tickers only
// invoke engine methods; no business logic lives here.
//
// # Lifecycle
//
//	srv, err := server.New(cfg, logger)
//	err = srv.Run(ctx)   // blocks until ctx is done or the listener fails
//
// On cancellation Run stops and drains both loops before shutting the
// HTTP server down with a fresh 5-second context, so no dispatch pass
// ever runs against a closing store.
package server
