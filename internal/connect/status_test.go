// ABOUTME: Tests for status polling, disconnect teardown, and webhook reconciliation
// ABOUTME: Covers out-of-band deletion, unmapped statuses, and unknown-channel drops

package connect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/herald/internal/gateway"
	"github.com/2389/herald/internal/store"
)

func TestCheckStatus_Absent(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &fakeGateway{}, Config{})

	result, err := o.CheckStatus(context.Background(), "nobody")
	require.NoError(t, err)

	assert.False(t, result.Connected)
	assert.Equal(t, StatusAbsent, result.Status)
	assert.False(t, result.RequiresNewInstance)
}

func TestCheckStatus_Connected(t *testing.T) {
	gw := &fakeGateway{healthStatus: "ready"}
	o, st, _ := newTestOrchestrator(t, gw, Config{})
	seedChannel(t, st, "user-1", "chan-1", store.ConnectionStatusAwaitingPairing, time.Hour)

	ctx := context.Background()
	result, err := o.CheckStatus(ctx, "user-1")
	require.NoError(t, err)

	assert.True(t, result.Connected)
	assert.Equal(t, store.ConnectionStatusConnected, result.Status)

	conn, err := st.GetConnection(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, store.ConnectionStatusConnected, conn.Status)
}

func TestCheckStatus_PairingNeeded(t *testing.T) {
	gw := &fakeGateway{healthStatus: "unauthorized"}
	o, st, _ := newTestOrchestrator(t, gw, Config{})
	seedChannel(t, st, "user-1", "chan-1", store.ConnectionStatusConnected, time.Hour)

	result, err := o.CheckStatus(context.Background(), "user-1")
	require.NoError(t, err)

	assert.False(t, result.Connected)
	assert.Equal(t, store.ConnectionStatusAwaitingPairing, result.Status)
	// Status is synchronized but no pairing code is fetched here.
	assert.Equal(t, 0, gw.pairingCalls)
}

func TestCheckStatus_RemoteGoneClearsState(t *testing.T) {
	gw := &fakeGateway{healthErr: gateway.ErrChannelNotFound}
	o, st, _ := newTestOrchestrator(t, gw, Config{})
	seedChannel(t, st, "user-1", "chan-stale", store.ConnectionStatusConnected, time.Hour)

	ctx := context.Background()
	result, err := o.CheckStatus(ctx, "user-1")
	require.NoError(t, err)

	assert.False(t, result.Connected)
	assert.Equal(t, StatusAbsent, result.Status)
	assert.True(t, result.RequiresNewInstance)

	// The channel fields are gone but the row and its billing bookkeeping
	// survive for the reconnect.
	conn, err := st.GetConnection(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, store.ConnectionStatusAbsent, conn.Status)
	assert.Empty(t, conn.ChannelID)
	assert.Empty(t, conn.ChannelToken)
	assert.Equal(t, "sandbox", conn.Plan)
	assert.True(t, conn.CreatedAt.Equal(testBase.Add(-time.Hour)))
}

func TestCheckStatus_NoChannelOnRecord(t *testing.T) {
	gw := &fakeGateway{}
	o, st, _ := newTestOrchestrator(t, gw, Config{})

	created := testBase.Add(-time.Hour)
	require.NoError(t, st.UpsertConnection(context.Background(), &store.Connection{
		UserID:           "user-1",
		Status:           store.ConnectionStatusDisconnected,
		Plan:             "sandbox",
		ChannelCreatedAt: created,
		LastUpdated:      created,
		CreatedAt:        created,
	}))

	result, err := o.CheckStatus(context.Background(), "user-1")
	require.NoError(t, err)

	assert.False(t, result.Connected)
	assert.Equal(t, store.ConnectionStatusDisconnected, result.Status)
	assert.Equal(t, 0, gw.healthCalls)
}

func TestCheckStatus_UnmappedKeepsLocalStatus(t *testing.T) {
	gw := &fakeGateway{healthStatus: "banned"}
	o, st, _ := newTestOrchestrator(t, gw, Config{})
	seedChannel(t, st, "user-1", "chan-1", store.ConnectionStatusAwaitingPairing, time.Hour)

	ctx := context.Background()
	result, err := o.CheckStatus(ctx, "user-1")
	require.NoError(t, err)

	assert.False(t, result.Connected)
	assert.Equal(t, store.ConnectionStatusAwaitingPairing, result.Status)

	conn, err := st.GetConnection(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, store.ConnectionStatusAwaitingPairing, conn.Status)
}

func TestCheckStatus_GatewayDown(t *testing.T) {
	gw := &fakeGateway{healthErr: transientErr()}
	o, st, _ := newTestOrchestrator(t, gw, Config{})
	seedChannel(t, st, "user-1", "chan-1", store.ConnectionStatusConnected, time.Hour)

	_, err := o.CheckStatus(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	// A single probe, no retries; the next poll is the retry.
	assert.Equal(t, 1, gw.healthCalls)
}

func TestDisconnect(t *testing.T) {
	gw := &fakeGateway{}
	o, st, _ := newTestOrchestrator(t, gw, Config{})
	seedChannel(t, st, "user-1", "chan-1", store.ConnectionStatusConnected, time.Hour)

	ctx := context.Background()
	require.NoError(t, o.Disconnect(ctx, "user-1"))

	assert.Equal(t, []string{"chan-1"}, gw.deletedIDs)

	conn, err := st.GetConnection(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, store.ConnectionStatusDisconnected, conn.Status)
	assert.Empty(t, conn.ChannelID)
	assert.Empty(t, conn.ChannelToken)
}

func TestDisconnect_RemoteDeleteFails(t *testing.T) {
	gw := &fakeGateway{deleteErr: transientErr()}
	o, st, _ := newTestOrchestrator(t, gw, Config{})
	seedChannel(t, st, "user-1", "chan-1", store.ConnectionStatusConnected, time.Hour)

	ctx := context.Background()
	require.NoError(t, o.Disconnect(ctx, "user-1"), "local reset must survive a remote failure")

	conn, err := st.GetConnection(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, store.ConnectionStatusDisconnected, conn.Status)
	assert.Empty(t, conn.ChannelID)
}

func TestDisconnect_NothingToTearDown(t *testing.T) {
	gw := &fakeGateway{}
	o, _, _ := newTestOrchestrator(t, gw, Config{})

	assert.NoError(t, o.Disconnect(context.Background(), "nobody"))
	assert.Empty(t, gw.deletedIDs)
}

func TestReconcileWebhookEvent_AppliesStatus(t *testing.T) {
	o, st, _ := newTestOrchestrator(t, &fakeGateway{}, Config{})
	seedChannel(t, st, "user-1", "chan-1", store.ConnectionStatusAwaitingPairing, time.Hour)

	ctx := context.Background()
	evt := Event{Kind: "channel", ChannelID: "chan-1", Status: "authenticated"}
	require.NoError(t, o.ReconcileWebhookEvent(ctx, evt))

	conn, err := st.GetConnection(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, store.ConnectionStatusConnected, conn.Status)

	// Duplicate delivery lands on the same value; harmless.
	require.NoError(t, o.ReconcileWebhookEvent(ctx, evt))
	conn, err = st.GetConnection(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, store.ConnectionStatusConnected, conn.Status)
}

func TestReconcileWebhookEvent_UsersEvent(t *testing.T) {
	o, st, _ := newTestOrchestrator(t, &fakeGateway{}, Config{})
	seedChannel(t, st, "user-1", "chan-1", store.ConnectionStatusConnected, time.Hour)

	ctx := context.Background()
	evt := Event{Kind: "users", ChannelID: "chan-1", Status: "unauthorized"}
	require.NoError(t, o.ReconcileWebhookEvent(ctx, evt))

	conn, err := st.GetConnection(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, store.ConnectionStatusAwaitingPairing, conn.Status)
}

func TestReconcileWebhookEvent_UnknownChannelDropped(t *testing.T) {
	o, st, _ := newTestOrchestrator(t, &fakeGateway{}, Config{})
	seedChannel(t, st, "user-1", "chan-1", store.ConnectionStatusConnected, time.Hour)

	ctx := context.Background()
	evt := Event{Kind: "channel", ChannelID: "chan-unknown", Status: "authenticated"}
	require.NoError(t, o.ReconcileWebhookEvent(ctx, evt))

	// The known row is untouched and no record was created.
	conn, err := st.GetConnection(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, store.ConnectionStatusConnected, conn.Status)
	_, err = st.GetConnectionByChannel(ctx, "chan-unknown")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReconcileWebhookEvent_UnmappedStatusDropped(t *testing.T) {
	o, st, _ := newTestOrchestrator(t, &fakeGateway{}, Config{})
	seedChannel(t, st, "user-1", "chan-1", store.ConnectionStatusConnected, time.Hour)

	ctx := context.Background()
	evt := Event{Kind: "channel", ChannelID: "chan-1", Status: "syncing"}
	require.NoError(t, o.ReconcileWebhookEvent(ctx, evt))

	conn, err := st.GetConnection(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, store.ConnectionStatusConnected, conn.Status)
}

func TestReconcileWebhookEvent_MissingChannelID(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &fakeGateway{}, Config{})

	err := o.ReconcileWebhookEvent(context.Background(), Event{Kind: "channel", Status: "authenticated"})
	assert.NoError(t, err)
}

func TestMapRemoteStatus(t *testing.T) {
	tests := []struct {
		remote string
		want   string
		known  bool
	}{
		{"authenticated", store.ConnectionStatusConnected, true},
		{"ready", store.ConnectionStatusConnected, true},
		{"active", store.ConnectionStatusConnected, true},
		{"qr", store.ConnectionStatusAwaitingPairing, true},
		{"unauthorized", store.ConnectionStatusAwaitingPairing, true},
		{"loading", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, known := mapRemoteStatus(tt.remote)
		assert.Equal(t, tt.want, got, "remote %q", tt.remote)
		assert.Equal(t, tt.known, known, "remote %q", tt.remote)
	}
}
