// ABOUTME: Inbound webhook receiver for gateway push events
// ABOUTME: Verifies the shared secret and folds channel status events into local state

package webhook

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/herald/internal/connect"
	"github.com/2389/herald/internal/metrics"
)

// Reconciler folds a pushed status event into the local connection record.
type Reconciler interface {
	ReconcileWebhookEvent(ctx context.Context, ev connect.Event) error
}

// Receiver is the HTTP endpoint the gateway delivers events to. It holds no
// state of its own: every accepted event is translated and handed to the
// reconciler, which decides whether it applies.
type Receiver struct {
	reconciler Reconciler
	secret     string
	logger     *slog.Logger
}

// New creates a Receiver. An empty secret disables the shared-secret check.
func New(reconciler Reconciler, secret string, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{
		reconciler: reconciler,
		secret:     secret,
		logger:     logger.With("component", "webhook"),
	}
}

// envelope is the gateway's push payload.
type envelope struct {
	Event string    `json:"event"`
	Data  eventData `json:"data"`
}

// eventData carries the channel identifier and remote status. Channel events
// name the channel "id"; account events carry "channel_id". Accept either.
type eventData struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Status    string `json:"status"`
}

func (d eventData) channel() string {
	if d.ID != "" {
		return d.ID
	}
	return d.ChannelID
}

// ServeHTTP handles POST /hooks/gateway.
//
// Unknown event kinds answer 200: the drop is our decision, not a delivery
// failure for the gateway to retry. Only a failed local write answers 500,
// so redelivery lands on an idempotent reconcile.
func (rcv *Receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !rcv.authorized(r) {
		metrics.WebhookEvents.WithLabelValues("unknown", "unauthorized").Inc()
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var env envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "malformed").Inc()
		rcv.logger.Warn("malformed webhook payload", "error", err)
		http.Error(w, `{"error":"malformed payload"}`, http.StatusBadRequest)
		return
	}

	switch env.Event {
	case "channel", "users":
	default:
		// Bounded metric label; the verbatim kind goes to the log.
		metrics.WebhookEvents.WithLabelValues("unknown", "dropped").Inc()
		rcv.logger.Info("dropping webhook event of unknown kind", "event", env.Event)
		w.WriteHeader(http.StatusOK)
		return
	}

	ev := connect.Event{
		Kind:      env.Event,
		ChannelID: env.Data.channel(),
		Status:    env.Data.Status,
	}
	if err := rcv.reconciler.ReconcileWebhookEvent(r.Context(), ev); err != nil {
		metrics.WebhookEvents.WithLabelValues(env.Event, "error").Inc()
		rcv.logger.Error("reconciling webhook event", "error", err, "channel_id", ev.ChannelID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	metrics.WebhookEvents.WithLabelValues(env.Event, "ok").Inc()
	w.WriteHeader(http.StatusOK)
}

// authorized checks the shared secret in constant time.
func (rcv *Receiver) authorized(r *http.Request) bool {
	if rcv.secret == "" {
		return true
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return hmac.Equal([]byte(token), []byte(rcv.secret))
}
