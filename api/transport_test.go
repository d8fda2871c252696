package api_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-client/api"
	"github.com/jrsteele09/go-session-client/internal/devserver"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/jrsteele09/go-session-client/storage"
	"github.com/jrsteele09/go-session-client/storage/storefake"
	"github.com/stretchr/testify/require"
)

const testPassword = "Sup3rSecret"

type testFixture struct {
	server    *devserver.Server
	http      *httptest.Server
	store     *storefake.FakeStore
	manager   *session.Manager
	client    *api.Client
	account   *devserver.Account
	redirects *atomic.Int32
}

// setupTestFixture logs a fresh account into a devserver-backed session.
func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	server, err := devserver.New("test-secret")
	require.NoError(t, err)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	account, err := server.CreateAccount("user@example.com", "0700000000", testPassword)
	require.NoError(t, err)

	store := storefake.NewFakeStore()
	redirects := &atomic.Int32{}
	manager, err := session.NewManager(session.Deps{
		Store:     store,
		Auth:      session.NewHTTPAuthClient(ts.URL, ts.Client()),
		Navigator: session.NavigatorFunc(func(context.Context) { redirects.Add(1) }),
	}, session.WithRefreshPolicy(time.Second, time.Millisecond))
	require.NoError(t, err)

	_, err = manager.Login(context.Background(), session.Credentials{EmailOrPhone: account.Email, Password: testPassword}, false)
	require.NoError(t, err)

	return &testFixture{
		server:    server,
		http:      ts,
		store:     store,
		manager:   manager,
		client:    api.NewClient(ts.URL, manager, api.WithHTTPClient(ts.Client())),
		account:   account,
		redirects: redirects,
	}
}

func (f *testFixture) accessToken(t *testing.T) string {
	t.Helper()
	tok, ok := f.manager.GetAccessToken(context.Background())
	require.True(t, ok)
	return tok
}

func TestClient_AttachesBearer(t *testing.T) {
	f := setupTestFixture(t)

	user, err := f.client.Me(context.Background())
	require.NoError(t, err)
	require.Equal(t, f.account.ID, user.ID)
	require.Zero(t, f.server.RefreshCalls())
}

func TestClient_RefreshesOnceOn401AndReplays(t *testing.T) {
	f := setupTestFixture(t)
	stale := f.accessToken(t)
	f.server.RevokeAccessToken(stale)

	user, err := f.client.Me(context.Background())
	require.NoError(t, err)
	require.Equal(t, f.account.ID, user.ID)
	require.Equal(t, 1, f.server.RefreshCalls())
	require.NotEqual(t, stale, f.accessToken(t))
	require.Zero(t, f.redirects.Load())
}

func TestClient_RefreshFailureLogsOut(t *testing.T) {
	f := setupTestFixture(t)
	f.server.RevokeAccessToken(f.accessToken(t))
	refreshToken := f.store.Snapshot()[storage.KeyRefreshToken]
	f.server.RevokeRefreshToken(refreshToken)

	_, err := f.client.Me(context.Background())
	require.ErrorIs(t, err, api.ErrSessionExpired)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
	require.Equal(t, api.MessageSessionExpired, apiErr.Message)

	require.False(t, f.manager.IsAuthenticated(context.Background()))
	require.NotContains(t, f.store.Snapshot(), storage.KeyRefreshToken)
	require.Equal(t, int32(1), f.redirects.Load())
}

// recordingBackend answers 401 to the first n authenticated requests.
type recordingBackend struct {
	lock          sync.Mutex
	unauthorized  int
	authHeaders   []string
	bodies        []string
	requestIDs    []string
	refreshHeader string
}

func (b *recordingBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	b.lock.Lock()
	defer b.lock.Unlock()

	if strings.HasSuffix(r.URL.Path, "/auth/refresh") {
		b.refreshHeader = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access":"T2"}`)
		return
	}

	b.authHeaders = append(b.authHeaders, r.Header.Get("Authorization"))
	b.bodies = append(b.bodies, string(body))
	b.requestIDs = append(b.requestIDs, r.Header.Get(api.RequestIDHeader))
	if b.unauthorized != 0 {
		if b.unauthorized > 0 {
			b.unauthorized--
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Given token not valid"}`)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"status":"ok"}`)
}

func setupRecordingFixture(t *testing.T, unauthorized int) (*recordingBackend, *api.Client, *session.Manager, *storefake.FakeStore) {
	t.Helper()

	backend := &recordingBackend{unauthorized: unauthorized}
	ts := httptest.NewServer(backend)
	t.Cleanup(ts.Close)

	store := storefake.NewFakeStore()
	require.NoError(t, store.Set(context.Background(), storage.KeyAccessToken, "T1"))
	require.NoError(t, store.Set(context.Background(), storage.KeyRefreshToken, "R1"))

	manager, err := session.NewManager(session.Deps{
		Store:     store,
		Auth:      session.NewHTTPAuthClient(ts.URL, ts.Client()),
		Navigator: session.NavigatorFunc(func(context.Context) {}),
	}, session.WithRefreshPolicy(time.Second, time.Millisecond))
	require.NoError(t, err)

	return backend, api.NewClient(ts.URL, manager, api.WithHTTPClient(ts.Client())), manager, store
}

func TestTransport_ReplaysBodyWithNewToken(t *testing.T) {
	backend, client, _, store := setupRecordingFixture(t, 1)

	require.NoError(t, client.Post(context.Background(), "mobcash/transaction-bonus", map[string]int{"amount": 500}, nil))

	require.Equal(t, []string{"Bearer T1", "Bearer T2"}, backend.authHeaders)
	require.Equal(t, backend.bodies[0], backend.bodies[1])
	require.Contains(t, backend.bodies[1], `"amount":500`)
	require.Equal(t, backend.requestIDs[0], backend.requestIDs[1])
	require.NotEmpty(t, backend.requestIDs[0])
	require.Empty(t, backend.refreshHeader)
	require.Equal(t, "T2", store.Snapshot()[storage.KeyAccessToken])
}

func TestTransport_SecondUnauthorizedDoesNotLoop(t *testing.T) {
	backend, client, manager, _ := setupRecordingFixture(t, -1)

	err := client.Get(context.Background(), "auth/me", nil)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
	require.Equal(t, "Given token not valid", apiErr.Message)
	require.Len(t, backend.authHeaders, 2)

	// The refreshed token is kept: only a failed refresh ends the session.
	tok, ok := manager.GetAccessToken(context.Background())
	require.True(t, ok)
	require.Equal(t, "T2", tok)
}

func TestTransport_AuthEndpointsCarryNoBearer(t *testing.T) {
	tests := []string{"auth/login", "auth/register", "auth/refresh"}

	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			var got atomic.Value
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got.Store(r.Header.Get("Authorization"))
			}))
			defer ts.Close()

			store := storefake.NewFakeStore()
			require.NoError(t, store.Set(context.Background(), storage.KeyAccessToken, "T1"))
			manager, err := session.NewManager(session.Deps{
				Store:     store,
				Auth:      session.NewHTTPAuthClient(ts.URL, ts.Client()),
				Navigator: session.NavigatorFunc(func(context.Context) {}),
			})
			require.NoError(t, err)

			httpClient := &http.Client{Transport: api.NewTransport(manager, ts.Client().Transport)}
			req, err := http.NewRequest(http.MethodPost, ts.URL+"/"+path, nil)
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer leftover")

			res, err := httpClient.Do(req)
			require.NoError(t, err)
			res.Body.Close()

			require.Equal(t, "", got.Load())
			require.Equal(t, "Bearer leftover", req.Header.Get("Authorization"), "the caller's request must not be mutated")
		})
	}
}

func TestTransport_NoTokenSendsNoHeader(t *testing.T) {
	var got atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("Authorization"))
	}))
	defer ts.Close()

	manager, err := session.NewManager(session.Deps{
		Store:     storefake.NewFakeStore(),
		Auth:      session.NewHTTPAuthClient(ts.URL, ts.Client()),
		Navigator: session.NavigatorFunc(func(context.Context) {}),
	})
	require.NoError(t, err)

	client := api.NewClient(ts.URL, manager, api.WithHTTPClient(ts.Client()))
	require.NoError(t, client.Get(context.Background(), "mobcash/setting", nil))
	require.Equal(t, "", got.Load())
}
