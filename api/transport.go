// Package api is the client for the REST backend. Every request goes through
// Transport, which attaches the session's bearer token and refreshes it once when
// the server answers 401.
package api

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const RequestIDHeader = "X-Request-ID"

// ErrSessionExpired is returned when a 401 could not be recovered by a refresh. The
// session has been cleared by then.
var ErrSessionExpired = apperrors.ErrSessionExpired

// authEndpoints never carry an Authorization header.
var authEndpoints = []string{"auth/login", "auth/register", "auth/refresh"}

// SessionManager is the part of session.Manager the transport depends on.
type SessionManager interface {
	oauth2.TokenSource
	RefreshAccessToken(ctx context.Context) (string, bool)
	Logout(ctx context.Context)
}

type retriedKey struct{}

// Transport is an http.RoundTripper that authenticates requests with the current
// session.
type Transport struct {
	base    http.RoundTripper
	session SessionManager
}

var _ http.RoundTripper = (*Transport)(nil)

func NewTransport(session SessionManager, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{base: base, session: session}
}

func isAuthEndpoint(u string) bool {
	for _, endpoint := range authEndpoints {
		if strings.Contains(u, endpoint) {
			return true
		}
	}
	return false
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	out := req.Clone(ctx)
	if out.Header.Get(RequestIDHeader) == "" {
		out.Header.Set(RequestIDHeader, uuid.NewString())
	}

	if isAuthEndpoint(out.URL.String()) {
		log.Debug().Str("url", out.URL.Path).Msg("Skipping auth token for auth endpoint")
		out.Header.Del("Authorization")
		return t.base.RoundTrip(out)
	}

	if tok, err := t.session.Token(); err == nil {
		tok.SetAuthHeader(out)
	} else {
		log.Debug().Str("url", out.URL.Path).Msg("No auth token available for request")
	}

	res, err := t.base.RoundTrip(out)
	if err != nil || res.StatusCode != http.StatusUnauthorized {
		return res, err
	}
	if retried, _ := ctx.Value(retriedKey{}).(bool); retried {
		return res, nil
	}

	log.Info().Str("url", out.URL.Path).Msg("Got 401, attempting token refresh")
	accessToken, ok := t.session.RefreshAccessToken(ctx)
	if !ok {
		drain(res)
		t.session.Logout(ctx)
		return nil, ErrSessionExpired
	}

	replay, err := rewind(out)
	if err != nil {
		log.Warn().Err(err).Str("url", out.URL.Path).Msg("Request body cannot be replayed after refresh")
		return res, nil
	}
	drain(res)

	replay = replay.WithContext(context.WithValue(ctx, retriedKey{}, true))
	(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}).SetAuthHeader(replay)
	return t.base.RoundTrip(replay)
}

// rewind returns a copy of req with a fresh body.
func rewind(req *http.Request) (*http.Request, error) {
	replay := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return replay, nil
	}
	if req.GetBody == nil {
		return nil, apperrors.Wrapf(apperrors.ErrUnsupported, "[rewind] %s %s has no GetBody", req.Method, req.URL.Path)
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, apperrors.Wrapf(err, "[rewind] %s %s", req.Method, req.URL.Path)
	}
	replay.Body = body
	return replay, nil
}

func drain(res *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))
	_ = res.Body.Close()
}
