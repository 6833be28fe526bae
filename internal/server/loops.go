// ABOUTME: Background loops: periodic dispatch passes and connection status polls
// ABOUTME: Tickers invoke component methods; no broadcast or channel logic lives here

package server

import (
	"context"
	"time"
)

// runDispatchLoop triggers a dispatch pass once per interval. Each pass
// claims and processes one batch of due broadcasts; a failed pass is
// logged and the next tick tries again.
func (s *Server) runDispatchLoop(ctx context.Context) {
	s.logger.Info("dispatch loop started", "interval", s.dispatchEvery)
	ticker := time.NewTicker(s.dispatchEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("dispatch loop stopped")
			return
		case <-ticker.C:
			processed, err := s.engine.RunDueBroadcasts(ctx)
			if err != nil {
				s.logger.Error("dispatch pass reported an error", "error", err)
			}
			if processed > 0 {
				s.logger.Info("dispatch pass complete", "processed", processed)
			}
		}
	}
}

// runPollLoop re-verifies every connection holding a channel once per
// interval. This is the third writer to connection status, alongside
// user-triggered actions and the webhook receiver; it is what eventually
// notices a pairing completed or a channel deleted out of band.
func (s *Server) runPollLoop(ctx context.Context) {
	s.logger.Info("status poll loop started", "interval", s.pollEvery)
	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("status poll loop stopped")
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

// pollOnce walks the current work list and synchronizes each connection.
// Per-user failures are logged and skipped; one unreachable channel must
// not starve the rest of the poll.
func (s *Server) pollOnce(ctx context.Context) {
	conns, err := s.store.ListConnectionsWithChannel(ctx)
	if err != nil {
		s.logger.Error("listing connections for status poll", "error", err)
		return
	}

	for _, conn := range conns {
		if ctx.Err() != nil {
			return
		}
		res, err := s.orch.CheckStatus(ctx, conn.UserID)
		if err != nil {
			s.logger.Warn("status poll failed", "user_id", conn.UserID, "error", err)
			continue
		}
		if res.RequiresNewInstance {
			s.logger.Info("poll found channel gone, local state cleared", "user_id", conn.UserID)
		}
	}
}
