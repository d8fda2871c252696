package session

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/internal/metrics"
	"github.com/jrsteele09/go-session-client/internal/retry"
	"github.com/jrsteele09/go-session-client/storage"
	"github.com/jrsteele09/go-session-client/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	defaultRefreshHorizon  = 300 * time.Second
	defaultRefreshTimeout  = 10 * time.Second
	defaultRefreshBackoff  = time.Second
	nativeRefreshAttempts  = 2
	webRefreshAttempts     = 1
	refreshFlightKey       = "refresh"
	rememberMeEnabledValue = "true"
)

// Deps holds the collaborators of a Manager.
type Deps struct {
	Store     storage.KeyValueStore // Persisted session
	Auth      AuthClient            // Login and refresh endpoints
	Navigator Navigator             // Where to send the user once the session is gone
}

// Manager owns the session lifecycle.
type Manager struct {
	deps    Deps
	metrics *metrics.Metrics

	nativeShell    bool
	refreshHorizon time.Duration
	refreshTimeout time.Duration
	refreshBackoff time.Duration
	refreshTries   int // 0 picks the platform default

	flight singleflight.Group

	// loggedOut hides whatever a failed Clear left behind until the next login.
	loggedOut atomic.Bool
}

var _ oauth2.TokenSource = (*Manager)(nil)

type ManagerOption func(*Manager)

// WithNativeShell selects the refresh retry budget of the packaged mobile shell.
func WithNativeShell(native bool) ManagerOption {
	return func(m *Manager) {
		m.nativeShell = native
	}
}

// WithRefreshHorizon sets how close to expiry a token is refreshed proactively.
func WithRefreshHorizon(horizon time.Duration) ManagerOption {
	return func(m *Manager) {
		m.refreshHorizon = horizon
	}
}

// WithRefreshPolicy sets the per-attempt timeout and the wait between attempts.
func WithRefreshPolicy(timeout, backoff time.Duration) ManagerOption {
	return func(m *Manager) {
		m.refreshTimeout = timeout
		m.refreshBackoff = backoff
	}
}

// WithRefreshAttempts overrides the platform default number of refresh attempts.
func WithRefreshAttempts(attempts int) ManagerOption {
	return func(m *Manager) {
		m.refreshTries = attempts
	}
}

func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func NewManager(deps Deps, options ...ManagerOption) (*Manager, error) {
	if deps.Store == nil {
		return nil, errors.New("[NewManager] Store is required")
	}
	if deps.Auth == nil {
		return nil, errors.New("[NewManager] Auth client is required")
	}
	if deps.Navigator == nil {
		return nil, errors.New("[NewManager] Navigator is required")
	}

	m := &Manager{
		deps:           deps,
		refreshHorizon: defaultRefreshHorizon,
		refreshTimeout: defaultRefreshTimeout,
		refreshBackoff: defaultRefreshBackoff,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

func (m *Manager) refreshAttempts() int {
	if m.refreshTries > 0 {
		return m.refreshTries
	}
	if m.nativeShell {
		return nativeRefreshAttempts
	}
	return webRefreshAttempts
}

// read returns a persisted value, hiding store errors and a logged-out session.
func (m *Manager) read(ctx context.Context, key string) (string, bool) {
	if m.loggedOut.Load() {
		return "", false
	}
	v, ok, err := m.deps.Store.Get(ctx, key)
	if err != nil {
		log.Err(err).Str("key", key).Msg("Error reading session")
		return "", false
	}
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// GetAccessToken returns the persisted access token. Store errors read as absent.
func (m *Manager) GetAccessToken(ctx context.Context) (string, bool) {
	return m.read(ctx, storage.KeyAccessToken)
}

// IsAuthenticated reports whether an unexpired access token is persisted. It never
// refreshes.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	accessToken, ok := m.GetAccessToken(ctx)
	if !ok {
		return false
	}
	if token.IsExpired(accessToken) {
		log.Debug().Msg("Access token is expired")
		return false
	}
	return true
}

// EnsureValidToken is the check run before any protected action. An expired token,
// or one expiring within the refresh horizon, is refreshed and the outcome of that
// refresh is the answer. Anything unexpected answers false.
func (m *Manager) EnsureValidToken(ctx context.Context) (valid bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("EnsureValidToken: unexpected failure")
			valid = false
		}
	}()

	accessToken, ok := m.GetAccessToken(ctx)
	if !ok {
		return false
	}

	if token.IsExpired(accessToken) {
		log.Info().Msg("EnsureValidToken: access token expired, refreshing")
		_, ok := m.RefreshAccessToken(ctx)
		return ok
	}

	if token.ExpiresWithin(accessToken, m.refreshHorizon) {
		log.Info().Dur("horizon", m.refreshHorizon).Msg("EnsureValidToken: access token close to expiry, refreshing")
		_, ok := m.RefreshAccessToken(ctx)
		return ok
	}

	return true
}

// RefreshAccessToken mints a new access token from the persisted refresh token and
// persists it. Concurrent callers share one refresh, which is not cancelled when the
// caller that started it goes away. It never clears the session: what to do on
// failure is the caller's decision.
func (m *Manager) RefreshAccessToken(ctx context.Context) (string, bool) {
	v, err, shared := m.flight.Do(refreshFlightKey, func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		log.Err(err).Msg("refreshAccessToken: Error refreshing access token")
		return "", false
	}
	if shared {
		log.Debug().Msg("refreshAccessToken: joined an in-flight refresh")
	}
	return v.(string), true
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	refreshToken, ok := m.read(ctx, storage.KeyRefreshToken)
	if !ok {
		m.metrics.RefreshAttempt("no_refresh_token")
		return "", apperrors.ErrNoRefreshToken
	}

	policy := retry.Policy{
		Name:        "session.refresh",
		MaxAttempts: m.refreshAttempts(),
		Delay:       m.refreshBackoff,
	}

	accessToken, err := retry.Get(ctx, policy, func(ctx context.Context) (string, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, m.refreshTimeout)
		defer cancel()

		accessToken, err := m.deps.Auth.Refresh(attemptCtx, refreshToken)
		if err != nil {
			m.metrics.RefreshAttempt("failure")
			return "", err
		}
		if err := m.deps.Store.Set(ctx, storage.KeyAccessToken, accessToken); err != nil {
			m.metrics.RefreshAttempt("failure")
			return "", errors.Wrap(err, "persist refreshed access token")
		}
		m.metrics.RefreshAttempt("success")
		return accessToken, nil
	})
	if err != nil {
		return "", apperrors.Wrapf(apperrors.ErrRefreshFailed, "%v", err)
	}

	log.Info().Msg("refreshAccessToken: Access token refreshed successfully")
	return accessToken, nil
}

// Logout clears the persisted session and sends the user to the login screen. The
// redirect happens even when clearing fails.
func (m *Manager) Logout(ctx context.Context) {
	m.loggedOut.Store(true)

	if err := m.deps.Store.Clear(ctx); err != nil {
		log.Err(err).Msg("Error during logout, removing session keys one by one")
		for _, key := range []string{storage.KeyAccessToken, storage.KeyRefreshToken, storage.KeyUser} {
			if err := m.deps.Store.Remove(ctx, key); err != nil {
				log.Err(err).Str("key", key).Msg("Error removing session key")
			}
		}
	}

	m.deps.Navigator.RedirectToLogin(ctx)
}

// SaveAuthData persists a login response: access token, refresh token, then the
// JSON encoded profile.
func (m *Manager) SaveAuthData(ctx context.Context, auth *AuthResponse) error {
	if auth == nil {
		return errors.New("[Manager.SaveAuthData] auth response is required")
	}

	user, err := json.Marshal(auth.Data)
	if err != nil {
		return errors.Wrap(err, "[Manager.SaveAuthData] marshal user")
	}

	writes := []struct{ key, value string }{
		{storage.KeyAccessToken, auth.Access},
		{storage.KeyRefreshToken, auth.Refresh},
		{storage.KeyUser, string(user)},
	}
	for _, w := range writes {
		if err := m.deps.Store.Set(ctx, w.key, w.value); err != nil {
			log.Err(err).Str("key", w.key).Msg("Error saving auth data")
			return errors.Wrapf(err, "[Manager.SaveAuthData] %s", w.key)
		}
	}

	m.loggedOut.Store(false)
	return nil
}

// User returns the persisted profile. A missing or unreadable profile is absent.
func (m *Manager) User(ctx context.Context) (*User, bool) {
	raw, ok := m.read(ctx, storage.KeyUser)
	if !ok {
		return nil, false
	}
	var user User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		log.Err(err).Msg("Error decoding stored user")
		return nil, false
	}
	return &user, true
}

// Login authenticates against the API, persists the session and records or forgets
// the remember-me preference.
func (m *Manager) Login(ctx context.Context, credentials Credentials, rememberMe bool) (*AuthResponse, error) {
	auth, err := m.deps.Auth.Login(ctx, credentials)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Login]")
	}
	if err := m.SaveAuthData(ctx, auth); err != nil {
		return nil, err
	}

	if rememberMe {
		if err := m.deps.Store.Set(ctx, storage.KeyRememberMe, rememberMeEnabledValue); err != nil {
			log.Err(err).Msg("Error saving remember me preference")
		} else if err := m.deps.Store.Set(ctx, storage.KeyRememberedEmail, credentials.EmailOrPhone); err != nil {
			log.Err(err).Msg("Error saving remembered email")
		}
	} else {
		for _, key := range []string{storage.KeyRememberMe, storage.KeyRememberedEmail} {
			if err := m.deps.Store.Remove(ctx, key); err != nil {
				log.Err(err).Str("key", key).Msg("Error removing remember me preference")
			}
		}
	}

	log.Info().Str("user_id", auth.Data.ID).Msg("Login successful")
	return auth, nil
}

// RememberedEmail returns the login identifier saved with remember-me, if enabled.
func (m *Manager) RememberedEmail(ctx context.Context) (string, bool) {
	enabled, _, err := m.deps.Store.Get(ctx, storage.KeyRememberMe)
	if err != nil || enabled != rememberMeEnabledValue {
		return "", false
	}
	email, ok, err := m.deps.Store.Get(ctx, storage.KeyRememberedEmail)
	if err != nil || !ok || email == "" {
		return "", false
	}
	return email, true
}

// Current returns a snapshot of the persisted session.
func (m *Manager) Current(ctx context.Context) Session {
	accessToken, _ := m.read(ctx, storage.KeyAccessToken)
	refreshToken, _ := m.read(ctx, storage.KeyRefreshToken)
	user, _ := m.User(ctx)
	return Session{AccessToken: accessToken, RefreshToken: refreshToken, User: user}
}

// State classifies the persisted session without touching the network.
func (m *Manager) State(ctx context.Context) State {
	s := m.Current(ctx)
	switch {
	case s.AccessToken == "":
		return StateUnauthenticated
	case token.IsExpired(s.AccessToken) && s.RefreshToken == "":
		return StateUnauthenticated
	case token.ExpiresWithin(s.AccessToken, m.refreshHorizon):
		return StateRefreshPending
	default:
		return StateValid
	}
}

// Token exposes the persisted access token as an oauth2.TokenSource. It does not
// refresh; callers that need a guaranteed fresh token run EnsureValidToken first.
func (m *Manager) Token() (*oauth2.Token, error) {
	accessToken, ok := m.GetAccessToken(context.Background())
	if !ok {
		return nil, apperrors.ErrNoAccessToken
	}
	t := &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
	if exp, ok := token.Expiry(accessToken); ok {
		t.Expiry = exp
	}
	return t, nil
}
