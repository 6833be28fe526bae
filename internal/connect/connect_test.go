// ABOUTME: Tests for the connect orchestrator's EnsureConnected flow
// ABOUTME: Covers idempotency, pairing age gating, retry bounds, and self-healing

package connect

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/herald/internal/gateway"
	"github.com/2389/herald/internal/store"
)

// testBase is the frozen wall clock every orchestrator test runs at
var testBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeGateway implements GatewayClient with scripted responses
type fakeGateway struct {
	healthStatus string
	healthErr    error
	healthCalls  int

	pairing      *gateway.PairingCode
	pairingErr   error
	pairingErrs  []error // consumed one per call before pairingErr applies
	pairingCalls int

	creds       *gateway.ChannelCredentials
	createErr   error
	createCalls int
	createName  string
	createProj  string

	deleteErr  error
	deletedIDs []string

	projects     []gateway.Project
	projectsErr  error
	projectCalls int

	webhookToken  string
	webhookURL    string
	webhookEvents []string
	webhookErr    error
}

func (f *fakeGateway) Health(ctx context.Context, token string) (string, error) {
	f.healthCalls++
	if f.healthErr != nil {
		return "", f.healthErr
	}
	return f.healthStatus, nil
}

func (f *fakeGateway) PairingCode(ctx context.Context, token string) (*gateway.PairingCode, error) {
	f.pairingCalls++
	if len(f.pairingErrs) > 0 {
		err := f.pairingErrs[0]
		f.pairingErrs = f.pairingErrs[1:]
		if err != nil {
			return nil, err
		}
	} else if f.pairingErr != nil {
		return nil, f.pairingErr
	}
	if f.pairing != nil {
		return f.pairing, nil
	}
	return &gateway.PairingCode{MimeType: "image/png", Base64: "UEFJUg=="}, nil
}

func (f *fakeGateway) CreateChannel(ctx context.Context, name, projectID string) (*gateway.ChannelCredentials, error) {
	f.createCalls++
	f.createName = name
	f.createProj = projectID
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.creds != nil {
		return f.creds, nil
	}
	return &gateway.ChannelCredentials{ID: "chan-new", Token: "token-new", Plan: "sandbox"}, nil
}

func (f *fakeGateway) DeleteChannel(ctx context.Context, channelID string) error {
	f.deletedIDs = append(f.deletedIDs, channelID)
	return f.deleteErr
}

func (f *fakeGateway) ListProjects(ctx context.Context) ([]gateway.Project, error) {
	f.projectCalls++
	if f.projectsErr != nil {
		return nil, f.projectsErr
	}
	if f.projects != nil {
		return f.projects, nil
	}
	return []gateway.Project{{ID: "proj-1", Name: "Default"}}, nil
}

func (f *fakeGateway) SetWebhook(ctx context.Context, token, webhookURL string, events []string) error {
	f.webhookToken = token
	f.webhookURL = webhookURL
	f.webhookEvents = events
	return f.webhookErr
}

// sleepRecorder captures backoff and age-gate waits instead of sleeping
type sleepRecorder struct {
	slept []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return nil
}

func createTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestOrchestrator(t *testing.T, gw *fakeGateway, cfg Config) (*Orchestrator, *store.SQLiteStore, *sleepRecorder) {
	t.Helper()
	st := createTestStore(t)
	rec := &sleepRecorder{}
	o := New(st, gw, cfg, nil)
	o.now = func() time.Time { return testBase }
	o.sleep = rec.sleep
	return o, st, rec
}

// seedChannel inserts a connection whose channel was created age ago
func seedChannel(t *testing.T, st *store.SQLiteStore, userID, channelID, status string, age time.Duration) {
	t.Helper()
	created := testBase.Add(-age)
	err := st.UpsertConnection(context.Background(), &store.Connection{
		UserID:           userID,
		ChannelID:        channelID,
		ChannelToken:     "token-" + channelID,
		Status:           status,
		Plan:             "sandbox",
		ChannelCreatedAt: created,
		LastUpdated:      created,
		CreatedAt:        created,
	})
	require.NoError(t, err)
}

func transientErr() error {
	return &gateway.APIError{StatusCode: 503, Message: "upstream down", Transient: true}
}

func TestEnsureConnected_AlreadyConnected(t *testing.T) {
	gw := &fakeGateway{healthStatus: "authenticated"}
	o, st, _ := newTestOrchestrator(t, gw, Config{})
	seedChannel(t, st, "user-1", "chan-1", store.ConnectionStatusAwaitingPairing, 2*time.Hour)

	ctx := context.Background()
	result, err := o.EnsureConnected(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, StateAlreadyConnected, result.State)
	assert.Equal(t, "chan-1", result.ChannelID)

	conn, err := st.GetConnection(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, store.ConnectionStatusConnected, conn.Status)
}

func TestEnsureConnected_Idempotent(t *testing.T) {
	gw := &fakeGateway{healthStatus: "ready"}
	o, st, _ := newTestOrchestrator(t, gw, Config{})
	seedChannel(t, st, "user-1", "chan-1", store.ConnectionStatusConnected, 2*time.Hour)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		result, err := o.EnsureConnected(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, StateAlreadyConnected, result.State)
	}

	// No channel was ever created or torn down.
	assert.Equal(t, 0, gw.createCalls)
	assert.Empty(t, gw.deletedIDs)
}

func TestEnsureConnected_PairingCode(t *testing.T) {
	gw := &fakeGateway{
		healthStatus: "qr",
		pairing:      &gateway.PairingCode{MimeType: "image/png", Base64: "QUJDRA=="},
	}
	o, st, rec := newTestOrchestrator(t, gw, Config{})
	seedChannel(t, st, "user-1", "chan-1", store.ConnectionStatusInitializing, 2*time.Hour)

	ctx := context.Background()
	result, err := o.EnsureConnected(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, StatePairing, result.State)
	assert.Equal(t, "data:image/png;base64,QUJDRA==", result.PairingCode)
	assert.Empty(t, rec.slept, "an aged channel needs no wait")

	conn, err := st.GetConnection(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, store.ConnectionStatusAwaitingPairing, conn.Status)
}

func TestEnsureConnected_CreatesChannel(t *testing.T) {
	gw := &fakeGateway{}
	o, st, _ := newTestOrchestrator(t, gw, Config{WebhookURL: "https://herald.example.com/hooks/gateway"})

	ctx := context.Background()
	result, err := o.EnsureConnected(ctx, "user-1")
	require.NoError(t, err)

	// A brand new channel is too young for a pairing code with the default
	// 60s minimum age, so the call acknowledges with pending.
	assert.Equal(t, StatePending, result.State)
	assert.Equal(t, "chan-new", result.ChannelID)

	assert.Equal(t, 1, gw.createCalls)
	assert.Equal(t, "herald-user-1", gw.createName)
	assert.Equal(t, "proj-1", gw.createProj)

	assert.Equal(t, "token-new", gw.webhookToken)
	assert.Equal(t, "https://herald.example.com/hooks/gateway", gw.webhookURL)
	assert.Equal(t, []string{"channel", "users"}, gw.webhookEvents)

	conn, err := st.GetConnection(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, store.ConnectionStatusInitializing, conn.Status)
	assert.Equal(t, "chan-new", conn.ChannelID)
	assert.Equal(t, "token-new", conn.ChannelToken)
	assert.Equal(t, "sandbox", conn.Plan)
}

func TestEnsureConnected_CreateThenPair(t *testing.T) {
	gw := &fakeGateway{}
	cfg := Config{PairingMinAge: 5 * time.Second, PairingWaitMax: 10 * time.Second}
	o, st, rec := newTestOrchestrator(t, gw, cfg)

	ctx := context.Background()
	result, err := o.EnsureConnected(ctx, "user-1")
	require.NoError(t, err)

	// The 5s minimum age fits inside the wait budget, so one call goes all
	// the way from create to a pairing code.
	assert.Equal(t, StatePairing, result.State)
	assert.NotEmpty(t, result.PairingCode)
	assert.Equal(t, []time.Duration{5 * time.Second}, rec.slept)

	conn, err := st.GetConnection(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, store.ConnectionStatusAwaitingPairing, conn.Status)
}

func TestEnsureConnected_WaitsOutRemainingAge(t *testing.T) {
	gw := &fakeGateway{healthStatus: "qr"}
	o, st, rec := newTestOrchestrator(t, gw, Config{})
	// Channel is 52s old; 8s remain of the 60s minimum, inside the 10s budget.
	seedChannel(t, st, "user-1", "chan-1", store.ConnectionStatusInitializing, 52*time.Second)

	result, err := o.EnsureConnected(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, StatePairing, result.State)
	assert.Equal(t, []time.Duration{8 * time.Second}, rec.slept)
	assert.Equal(t, 1, gw.pairingCalls)
}

func TestEnsureConnected_TooYoungReturnsPending(t *testing.T) {
	gw := &fakeGateway{healthStatus: "qr"}
	o, st, rec := newTestOrchestrator(t, gw, Config{})
	// 50s remain of the minimum age, more than the 10s wait budget.
	seedChannel(t, st, "user-1", "chan-1", store.ConnectionStatusInitializing, 10*time.Second)

	result, err := o.EnsureConnected(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, StatePending, result.State)
	assert.Equal(t, "chan-1", result.ChannelID)
	assert.Empty(t, rec.slept)
	assert.Equal(t, 0, gw.pairingCalls)
}

func TestEnsureConnected_SelfHealsWhenChannelGone(t *testing.T) {
	gw := &fakeGateway{healthErr: gateway.ErrChannelNotFound}
	o, st, _ := newTestOrchestrator(t, gw, Config{})
	seedChannel(t, st, "user-1", "chan-stale", store.ConnectionStatusConnected, 2*time.Hour)

	ctx := context.Background()
	result, err := o.EnsureConnected(ctx, "user-1")
	require.NoError(t, err)

	// The stale record was cleared and a replacement built in the same call.
	assert.Equal(t, StatePending, result.State)
	assert.Equal(t, "chan-new", result.ChannelID)
	assert.Equal(t, 1, gw.createCalls)
	// The gateway already forgot chan-stale; no delete was attempted.
	assert.Empty(t, gw.deletedIDs)

	conn, err := st.GetConnection(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "chan-new", conn.ChannelID)
	assert.Equal(t, store.ConnectionStatusInitializing, conn.Status)
	// The reconnect reused the original row; its creation time survives.
	assert.True(t, conn.CreatedAt.Equal(testBase.Add(-2*time.Hour)))
}

func TestEnsureConnected_UnreachableChannelRecreated(t *testing.T) {
	gw := &fakeGateway{healthErr: transientErr()}
	o, st, rec := newTestOrchestrator(t, gw, Config{})
	seedChannel(t, st, "user-1", "chan-sick", store.ConnectionStatusConnected, 2*time.Hour)

	ctx := context.Background()
	result, err := o.EnsureConnected(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, StatePending, result.State)
	// Health was retried through the full budget before giving up on the
	// old channel.
	assert.Equal(t, 3, gw.healthCalls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.slept)
	// The sick channel was torn down best-effort before creating.
	assert.Equal(t, []string{"chan-sick"}, gw.deletedIDs)
	assert.Equal(t, 1, gw.createCalls)

	conn, err := st.GetConnection(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "chan-new", conn.ChannelID)
}

func TestEnsureConnected_PairingRetriesThenSucceeds(t *testing.T) {
	gw := &fakeGateway{
		healthStatus: "qr",
		pairingErrs:  []error{transientErr(), transientErr()},
	}
	o, st, rec := newTestOrchestrator(t, gw, Config{})
	seedChannel(t, st, "user-1", "chan-1", store.ConnectionStatusInitializing, 2*time.Hour)

	result, err := o.EnsureConnected(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, StatePairing, result.State)
	assert.Equal(t, 3, gw.pairingCalls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.slept)
}

func TestEnsureConnected_PairingRetryBudgetExhausted(t *testing.T) {
	gw := &fakeGateway{
		healthStatus: "qr",
		pairingErr:   transientErr(),
	}
	o, st, rec := newTestOrchestrator(t, gw, Config{})
	seedChannel(t, st, "user-1", "chan-1", store.ConnectionStatusInitializing, 2*time.Hour)

	_, err := o.EnsureConnected(context.Background(), "user-1")
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Equal(t, 3, gw.pairingCalls, "initial attempt plus two retries")
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.slept)
}

func TestEnsureConnected_ChannelVanishesDuringPairing(t *testing.T) {
	gw := &fakeGateway{
		healthStatus: "qr",
		pairingErr:   gateway.ErrChannelNotFound,
	}
	o, st, _ := newTestOrchestrator(t, gw, Config{})
	seedChannel(t, st, "user-1", "chan-1", store.ConnectionStatusInitializing, 2*time.Hour)

	ctx := context.Background()
	_, err := o.EnsureConnected(ctx, "user-1")
	assert.ErrorIs(t, err, ErrRequiresNewInstance)

	// Channel fields were cleared so the next connect starts from scratch;
	// the row itself survives.
	conn, err := st.GetConnection(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, store.ConnectionStatusAbsent, conn.Status)
	assert.Empty(t, conn.ChannelID)
	assert.Empty(t, conn.ChannelToken)
	assert.Equal(t, "sandbox", conn.Plan)
}

func TestEnsureConnected_UnmappedStatusReturnsPending(t *testing.T) {
	gw := &fakeGateway{healthStatus: "loading"}
	o, st, _ := newTestOrchestrator(t, gw, Config{})
	seedChannel(t, st, "user-1", "chan-1", store.ConnectionStatusInitializing, 2*time.Hour)

	ctx := context.Background()
	result, err := o.EnsureConnected(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, StatePending, result.State)
	assert.Equal(t, 0, gw.pairingCalls)

	// Unmapped statuses never reach the store.
	conn, err := st.GetConnection(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, store.ConnectionStatusInitializing, conn.Status)
}

func TestEnsureConnected_StaticProjectSkipsListing(t *testing.T) {
	gw := &fakeGateway{}
	o, _, _ := newTestOrchestrator(t, gw, Config{ProjectID: "proj-static"})

	_, err := o.EnsureConnected(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, "proj-static", gw.createProj)
	assert.Equal(t, 0, gw.projectCalls)
}

func TestEnsureConnected_ResolvesProjectPerCreate(t *testing.T) {
	gw := &fakeGateway{projects: []gateway.Project{{ID: "proj-9", Name: "Herald"}}}
	o, _, _ := newTestOrchestrator(t, gw, Config{})

	ctx := context.Background()
	_, err := o.EnsureConnected(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "proj-9", gw.createProj)
	assert.Equal(t, 1, gw.projectCalls)

	// A second create resolves again; nothing is cached across calls.
	_, err = o.EnsureConnected(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, 2, gw.projectCalls)
}

func TestEnsureConnected_NoProjectsAvailable(t *testing.T) {
	gw := &fakeGateway{projects: []gateway.Project{}}
	o, _, _ := newTestOrchestrator(t, gw, Config{})

	_, err := o.EnsureConnected(context.Background(), "user-1")
	require.Error(t, err)
	assert.Equal(t, 0, gw.createCalls)
}

func TestEnsureConnected_WebhookFailureIsNotFatal(t *testing.T) {
	gw := &fakeGateway{webhookErr: transientErr()}
	o, st, _ := newTestOrchestrator(t, gw, Config{WebhookURL: "https://herald.example.com/hooks/gateway"})

	ctx := context.Background()
	result, err := o.EnsureConnected(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, StatePending, result.State)

	conn, err := st.GetConnection(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "chan-new", conn.ChannelID)
}

func TestEnsureConnected_ReconnectAfterDisconnect(t *testing.T) {
	gw := &fakeGateway{}
	o, st, _ := newTestOrchestrator(t, gw, Config{})

	// A disconnected row keeps the user but has no channel fields.
	created := testBase.Add(-24 * time.Hour)
	require.NoError(t, st.UpsertConnection(context.Background(), &store.Connection{
		UserID:           "user-1",
		Status:           store.ConnectionStatusDisconnected,
		Plan:             "sandbox",
		ChannelCreatedAt: created,
		LastUpdated:      created,
		CreatedAt:        created,
	}))

	ctx := context.Background()
	result, err := o.EnsureConnected(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, StatePending, result.State)
	assert.Equal(t, 0, gw.healthCalls, "no channel on record, nothing to probe")
	assert.Equal(t, 1, gw.createCalls)

	conn, err := st.GetConnection(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "chan-new", conn.ChannelID)
	// The row survives reconnect cycles; its original creation time stays.
	assert.True(t, conn.CreatedAt.Equal(created))
}
