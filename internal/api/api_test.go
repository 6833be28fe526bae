// ABOUTME: Shared test fixtures for the API handlers
// ABOUTME: Scripted orchestrator/engine/group-source fakes plus a real store behind the router

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/herald/internal/auth"
	"github.com/2389/herald/internal/connect"
	"github.com/2389/herald/internal/dispatch"
	"github.com/2389/herald/internal/gateway"
	"github.com/2389/herald/internal/store"
)

type fakeOrch struct {
	connectRes    *connect.ConnectResult
	connectErr    error
	statusRes     *connect.StatusResult
	statusErr     error
	disconnectErr error
	users         []string
}

func (f *fakeOrch) EnsureConnected(ctx context.Context, userID string) (*connect.ConnectResult, error) {
	f.users = append(f.users, userID)
	return f.connectRes, f.connectErr
}

func (f *fakeOrch) CheckStatus(ctx context.Context, userID string) (*connect.StatusResult, error) {
	f.users = append(f.users, userID)
	return f.statusRes, f.statusErr
}

func (f *fakeOrch) Disconnect(ctx context.Context, userID string) error {
	f.users = append(f.users, userID)
	return f.disconnectErr
}

type cancelCall struct {
	userID      string
	broadcastID string
}

type fakeBroadcaster struct {
	scheduleReqs []*dispatch.Request
	scheduleAts  []time.Time
	scheduleRes  *store.Broadcast
	scheduleErr  error
	sendReqs     []*dispatch.Request
	sendRes      *store.Broadcast
	sendErr      error
	cancelCalls  []cancelCall
	cancelErr    error
}

func (f *fakeBroadcaster) Schedule(ctx context.Context, req *dispatch.Request, sendAt time.Time) (*store.Broadcast, error) {
	f.scheduleReqs = append(f.scheduleReqs, req)
	f.scheduleAts = append(f.scheduleAts, sendAt)
	return f.scheduleRes, f.scheduleErr
}

func (f *fakeBroadcaster) SendDirect(ctx context.Context, req *dispatch.Request) (*store.Broadcast, error) {
	f.sendReqs = append(f.sendReqs, req)
	return f.sendRes, f.sendErr
}

func (f *fakeBroadcaster) Cancel(ctx context.Context, userID, broadcastID string) error {
	f.cancelCalls = append(f.cancelCalls, cancelCall{userID: userID, broadcastID: broadcastID})
	return f.cancelErr
}

type fakeGroupSource struct {
	groups []gateway.RemoteGroup
	err    error
	tokens []string
}

func (f *fakeGroupSource) ListGroups(ctx context.Context, token string) ([]gateway.RemoteGroup, error) {
	f.tokens = append(f.tokens, token)
	return f.groups, f.err
}

type testEnv struct {
	orch   *fakeOrch
	engine *fakeBroadcaster
	source *fakeGroupSource
	store  *store.SQLiteStore
	router http.Handler
	token  string
}

func setupAPI(t *testing.T) *testEnv {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	env := &testEnv{
		orch:   &fakeOrch{},
		engine: &fakeBroadcaster{},
		source: &fakeGroupSource{},
		store:  st,
	}

	verifier := auth.NewJWTVerifier([]byte("test-secret"))
	env.token, err = verifier.Generate("user-1", time.Hour)
	require.NoError(t, err)

	h := New(env.orch, env.engine, env.source, st, nil)
	env.router = h.Routes(verifier)
	return env
}

// do issues an authenticated request against the API router.
func (env *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+env.token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *testEnv) seedConnection(t *testing.T, status string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, env.store.UpsertConnection(context.Background(), &store.Connection{
		UserID:           "user-1",
		ChannelID:        "chan-1",
		ChannelToken:     "token-1",
		Status:           status,
		Plan:             "sandbox",
		ChannelCreatedAt: now.Add(-time.Hour),
		LastUpdated:      now,
		CreatedAt:        now.Add(-time.Hour),
	}))
}
