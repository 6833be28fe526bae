// ABOUTME: Channel connection orchestrator: create, pair, verify, self-heal
// ABOUTME: Owns the connection lifecycle between the local store and the gateway

package connect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/herald/internal/gateway"
	"github.com/2389/herald/internal/metrics"
	"github.com/2389/herald/internal/store"
)

// ErrGatewayUnavailable is the retryable failure: the gateway could not be
// reached, or kept failing transiently through the whole retry budget. The
// same action can simply be invoked again.
var ErrGatewayUnavailable = errors.New("gateway unavailable")

// ErrRequiresNewInstance is the self-healing signal: the remote channel no
// longer exists, local state has been cleared, and the connect flow must
// run again to build a replacement.
var ErrRequiresNewInstance = errors.New("channel gone, reconnect required")

// StatusAbsent is reported when the user has no channel: either no
// connection row exists yet, or the channel disappeared on the gateway and
// the row's channel fields were cleared.
const StatusAbsent = store.ConnectionStatusAbsent

// ConnectResult states
const (
	StateAlreadyConnected = "already_connected" // channel healthy, account linked
	StatePairing          = "pairing"           // pairing code issued, scan it
	StatePending          = "pending"           // channel exists but cannot pair yet
)

// ConnectResult is the outcome of EnsureConnected.
type ConnectResult struct {
	State     string
	ChannelID string

	// PairingCode is a self-describing data URI
	// (data:<mime>;base64,<payload>), set only when State is StatePairing.
	PairingCode string
}

// StatusResult is the outcome of CheckStatus.
type StatusResult struct {
	Connected bool
	Status    string

	// RequiresNewInstance is set when the remote channel turned out to be
	// gone and local state was cleared; the user must connect again.
	RequiresNewInstance bool
}

// ConnectionStore defines what the orchestrator needs from storage
type ConnectionStore interface {
	UpsertConnection(ctx context.Context, conn *store.Connection) error
	GetConnection(ctx context.Context, userID string) (*store.Connection, error)
	GetConnectionByChannel(ctx context.Context, channelID string) (*store.Connection, error)
	SetConnectionStatus(ctx context.Context, userID, status string, at time.Time) error
}

// GatewayClient defines what the orchestrator needs from the gateway
type GatewayClient interface {
	CreateChannel(ctx context.Context, name, projectID string) (*gateway.ChannelCredentials, error)
	DeleteChannel(ctx context.Context, channelID string) error
	ListProjects(ctx context.Context) ([]gateway.Project, error)
	Health(ctx context.Context, token string) (string, error)
	PairingCode(ctx context.Context, token string) (*gateway.PairingCode, error)
	SetWebhook(ctx context.Context, token, webhookURL string, events []string) error
}

// Config carries the orchestration knobs. Zero values get production
// defaults from New.
type Config struct {
	// ProjectID pins channel creation to one gateway project. When empty,
	// the gateway's project listing is consulted on every create.
	ProjectID string

	// WebhookURL is the callback registered on newly created channels.
	// Empty disables registration; polling alone keeps status fresh.
	WebhookURL string

	// PairingMinAge is how old a channel must be before the gateway
	// reliably serves pairing codes.
	PairingMinAge time.Duration

	// PairingWaitMax caps how long a single call will wait out the
	// remaining channel age before giving up and returning pending.
	PairingWaitMax time.Duration

	RetryBase time.Duration
	RetryMax  int
}

// Orchestrator drives the connection lifecycle for all users. It holds no
// per-user state; every operation loads what it needs from the store.
type Orchestrator struct {
	store   ConnectionStore
	gateway GatewayClient
	cfg     Config
	logger  *slog.Logger

	// Injectable clock and sleep for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an Orchestrator
func New(store ConnectionStore, gw GatewayClient, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PairingMinAge == 0 {
		cfg.PairingMinAge = 60 * time.Second
	}
	if cfg.PairingWaitMax == 0 {
		cfg.PairingWaitMax = 10 * time.Second
	}
	if cfg.RetryBase == 0 {
		cfg.RetryBase = 2 * time.Second
	}
	if cfg.RetryMax == 0 {
		cfg.RetryMax = 2
	}

	return &Orchestrator{
		store:   store,
		gateway: gw,
		cfg:     cfg,
		logger:  logger.With("component", "connect"),
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// EnsureConnected is the idempotent connect entry point. It verifies the
// channel already on record when there is one, hands back a fresh pairing
// code when the account still needs linking, and otherwise builds a new
// channel from scratch.
func (o *Orchestrator) EnsureConnected(ctx context.Context, userID string) (*ConnectResult, error) {
	conn, err := o.store.GetConnection(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading connection: %w", err)
	}

	if conn != nil && conn.ChannelID != "" {
		result, recreate, err := o.connectExisting(ctx, conn)
		if err != nil {
			return nil, err
		}
		if !recreate {
			return result, nil
		}
	}

	return o.createAndPair(ctx, userID)
}

// connectExisting probes the channel on record and reacts to what the
// gateway reports. The recreate return asks the caller to run the create
// path: either the gateway forgot the channel (channel fields already
// cleared) or the channel is unreachable (fields kept so the old channel
// can be torn down first).
func (o *Orchestrator) connectExisting(ctx context.Context, conn *store.Connection) (*ConnectResult, bool, error) {
	var remote string
	err := o.withRetry(ctx, "health", func() error {
		var herr error
		remote, herr = o.gateway.Health(ctx, conn.ChannelToken)
		return herr
	})

	if err != nil {
		if errors.Is(err, gateway.ErrChannelNotFound) {
			// Self-healing: the gateway forgot this channel. Clear the
			// orphaned channel fields; the caller builds a replacement.
			o.logger.Info("channel gone on gateway, recreating",
				"user_id", conn.UserID, "channel_id", conn.ChannelID)
			if cerr := o.clearChannel(ctx, conn, store.ConnectionStatusAbsent); cerr != nil {
				return nil, false, fmt.Errorf("clearing orphaned connection: %w", cerr)
			}
			return nil, true, nil
		}
		if ctx.Err() != nil {
			return nil, false, err
		}
		// Health kept failing: the channel is unreachable. Rebuild it; the
		// create path tears the old one down first.
		o.logger.Warn("existing channel unreachable, recreating",
			"user_id", conn.UserID, "channel_id", conn.ChannelID, "error", err)
		return nil, true, nil
	}

	mapped, _ := mapRemoteStatus(remote)
	switch mapped {
	case store.ConnectionStatusConnected:
		if err := o.setStatus(ctx, conn.UserID, mapped); err != nil {
			return nil, false, fmt.Errorf("recording connected status: %w", err)
		}
		return &ConnectResult{State: StateAlreadyConnected, ChannelID: conn.ChannelID}, false, nil

	case store.ConnectionStatusAwaitingPairing:
		result, err := o.fetchPairingCode(ctx, conn)
		return result, false, err

	default:
		// Unmapped remote statuses gate as not connected. Log them
		// verbatim; nothing is written to the store.
		o.logger.Warn("gateway reported unmapped channel status",
			"user_id", conn.UserID, "channel_id", conn.ChannelID, "status", remote)
		return &ConnectResult{State: StatePending, ChannelID: conn.ChannelID}, false, nil
	}
}

// createAndPair runs the full channel creation path: resolve the project,
// tear down whatever channel the user had before, create fresh credentials,
// register the webhook, and try to hand back an initial pairing code.
func (o *Orchestrator) createAndPair(ctx context.Context, userID string) (*ConnectResult, error) {
	projectID, err := o.resolveProjectID(ctx)
	if err != nil {
		return nil, err
	}

	// Tear down the channel on record, if any. Orphaning here is logged
	// and never fatal: the new channel is what matters.
	if prior, err := o.store.GetConnection(ctx, userID); err == nil && prior.ChannelID != "" {
		if derr := o.gateway.DeleteChannel(ctx, prior.ChannelID); derr != nil && !errors.Is(derr, gateway.ErrChannelNotFound) {
			o.logger.Warn("deleting previous channel failed",
				"user_id", userID, "channel_id", prior.ChannelID, "error", derr)
		}
	}

	var creds *gateway.ChannelCredentials
	err = o.withRetry(ctx, "create_channel", func() error {
		var cerr error
		creds, cerr = o.gateway.CreateChannel(ctx, "herald-"+userID, projectID)
		return cerr
	})
	if err != nil {
		return nil, fmt.Errorf("creating channel: %w", err)
	}

	now := o.now()
	conn := &store.Connection{
		UserID:           userID,
		ChannelID:        creds.ID,
		ChannelToken:     creds.Token,
		Status:           store.ConnectionStatusInitializing,
		Plan:             creds.Plan,
		TrialEndsAt:      creds.TrialEndsAt,
		ChannelCreatedAt: now,
		LastUpdated:      now,
		CreatedAt:        now,
	}
	if conn.Plan == "" {
		conn.Plan = "sandbox"
	}
	if err := o.store.UpsertConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("persisting new channel: %w", err)
	}
	metrics.ConnectionStatus.WithLabelValues(conn.Status).Inc()

	// Webhook delivery is a secondary signal; polling stays authoritative.
	// Registration failure is logged only.
	if o.cfg.WebhookURL != "" {
		if err := o.gateway.SetWebhook(ctx, creds.Token, o.cfg.WebhookURL, []string{"channel", "users"}); err != nil {
			o.logger.Warn("webhook registration failed",
				"user_id", userID, "channel_id", creds.ID, "error", err)
		}
	}

	o.logger.Info("channel created",
		"user_id", userID, "channel_id", creds.ID, "project_id", projectID, "plan", conn.Plan)

	return o.fetchPairingCode(ctx, conn)
}

// fetchPairingCode retrieves a pairing code for the channel, waiting out the
// gateway's minimum channel age when the remainder is short enough to absorb
// in-call. The code comes back as a data URI so callers can render it
// without knowing the image format.
func (o *Orchestrator) fetchPairingCode(ctx context.Context, conn *store.Connection) (*ConnectResult, error) {
	if remaining := o.cfg.PairingMinAge - o.now().Sub(conn.ChannelCreatedAt); remaining > 0 {
		if remaining > o.cfg.PairingWaitMax {
			// Too young to serve a code, and too long to hold the request
			// open. The user connects again once the channel has aged.
			o.logger.Info("channel too young for pairing code",
				"user_id", conn.UserID, "channel_id", conn.ChannelID, "remaining", remaining)
			return &ConnectResult{State: StatePending, ChannelID: conn.ChannelID}, nil
		}
		if err := o.sleep(ctx, remaining); err != nil {
			return nil, err
		}
	}

	var code *gateway.PairingCode
	err := o.withRetry(ctx, "pairing_code", func() error {
		var perr error
		code, perr = o.gateway.PairingCode(ctx, conn.ChannelToken)
		return perr
	})
	if err != nil {
		if errors.Is(err, gateway.ErrChannelNotFound) {
			return nil, o.resetToAbsent(ctx, conn)
		}
		return nil, fmt.Errorf("fetching pairing code: %w", err)
	}

	if err := o.setStatus(ctx, conn.UserID, store.ConnectionStatusAwaitingPairing); err != nil {
		return nil, fmt.Errorf("recording pairing state: %w", err)
	}

	return &ConnectResult{
		State:       StatePairing,
		ChannelID:   conn.ChannelID,
		PairingCode: fmt.Sprintf("data:%s;base64,%s", code.MimeType, code.Base64),
	}, nil
}

// resolveProjectID returns the configured project or asks the gateway for
// one. Resolution happens on every create; caching a project across calls
// risks creating channels under a project the gateway has retired.
func (o *Orchestrator) resolveProjectID(ctx context.Context) (string, error) {
	if o.cfg.ProjectID != "" {
		return o.cfg.ProjectID, nil
	}

	var projects []gateway.Project
	err := o.withRetry(ctx, "list_projects", func() error {
		var perr error
		projects, perr = o.gateway.ListProjects(ctx)
		return perr
	})
	if err != nil {
		return "", fmt.Errorf("resolving project: %w", err)
	}
	if len(projects) == 0 {
		return "", fmt.Errorf("gateway has no projects to create channels under")
	}

	return projects[0].ID, nil
}

// clearChannel empties the channel fields on a connection row and records
// status. The row itself stays: plan, trial, and created_at survive losing
// a channel.
func (o *Orchestrator) clearChannel(ctx context.Context, conn *store.Connection, status string) error {
	conn.ChannelID = ""
	conn.ChannelToken = ""
	conn.Status = status
	conn.LastUpdated = o.now()
	return o.store.UpsertConnection(ctx, conn)
}

// resetToAbsent clears the local channel state after the gateway reported
// the channel gone, and surfaces the reconnect signal to the caller.
func (o *Orchestrator) resetToAbsent(ctx context.Context, conn *store.Connection) error {
	o.logger.Info("channel gone on gateway, clearing local state",
		"user_id", conn.UserID, "channel_id", conn.ChannelID)
	if err := o.clearChannel(ctx, conn, store.ConnectionStatusAbsent); err != nil {
		return fmt.Errorf("clearing connection: %w", err)
	}
	return ErrRequiresNewInstance
}

// setStatus writes a lifecycle status at the current wall-clock time.
// All orchestrator status writes funnel through here so the write counter
// sees every one of them.
func (o *Orchestrator) setStatus(ctx context.Context, userID, status string) error {
	if err := o.store.SetConnectionStatus(ctx, userID, status, o.now()); err != nil {
		return err
	}
	metrics.ConnectionStatus.WithLabelValues(status).Inc()
	return nil
}

// withRetry runs call with bounded exponential backoff. Only transient
// gateway failures are retried; permanent errors and channel-gone exit
// immediately. Exhausting the budget converts the failure into
// ErrGatewayUnavailable so no raw transport error escapes this package.
func (o *Orchestrator) withRetry(ctx context.Context, op string, call func() error) error {
	delay := o.cfg.RetryBase
	var err error
	for attempt := 0; ; attempt++ {
		err = call()
		if err == nil || !gateway.IsTransient(err) {
			return err
		}
		if attempt >= o.cfg.RetryMax {
			break
		}
		o.logger.Warn("gateway call failed, retrying",
			"op", op, "attempt", attempt+1, "delay", delay, "error", err)
		if serr := o.sleep(ctx, delay); serr != nil {
			return serr
		}
		delay *= 2
	}
	return fmt.Errorf("%w: %s failed after %d attempts: %v", ErrGatewayUnavailable, op, o.cfg.RetryMax+1, err)
}

// sleepContext waits for d unless the context is cancelled first
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
