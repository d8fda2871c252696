package token_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-session-client/token"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func withFixedClock(t *testing.T) {
	t.Helper()
	token.NowTimeFunc = func() time.Time { return fixedNow }
	t.Cleanup(func() { token.NowTimeFunc = time.Now })
}

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := token.NewHMACSigner("secret").Sign(claims)
	require.NoError(t, err)
	return raw
}

func rawSegments(payload string) string {
	return withHeader(`{"alg":"HS256","typ":"JWT"}`, payload)
}

func withHeader(header, payload string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(header)) + "." +
		base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".sig"
}

func TestDecode_ValidToken(t *testing.T) {
	raw := signed(t, jwt.MapClaims{"sub": "user-1", "exp": int64(1900000000), "role": "member"})

	claims, ok := token.Decode(raw)
	require.True(t, ok)
	require.NotNil(t, claims.ExpiresAt)
	require.Equal(t, int64(1900000000), *claims.ExpiresAt)
	require.Equal(t, "user-1", claims.Subject())
	require.Equal(t, "member", claims.Raw["role"])
}

func TestDecode_IgnoresSignature(t *testing.T) {
	claims, ok := token.Decode(rawSegments(`{"exp": 1900000000}`))
	require.True(t, ok)
	require.Equal(t, int64(1900000000), *claims.ExpiresAt)
}

func TestDecode_OnlyReadsPayload(t *testing.T) {
	tests := map[string]string{
		"unknown alg":       withHeader(`{"alg":"XYZ999","typ":"JWT"}`, `{"exp": 1900000000}`),
		"alg none":          withHeader(`{"alg":"none"}`, `{"exp": 1900000000}`),
		"header not json":   withHeader("not json", `{"exp": 1900000000}`),
		"header not base64": "@@@." + base64.RawURLEncoding.EncodeToString([]byte(`{"exp": 1900000000}`)) + ".sig",
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			claims, ok := token.Decode(raw)
			require.True(t, ok)
			require.Equal(t, int64(1900000000), *claims.ExpiresAt)
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := map[string]string{
		"empty":              "",
		"blank":              "   ",
		"one segment":        "abc",
		"two segments":       "abc.def",
		"four segments":      "a.b.c.d",
		"invalid base64":     "eyJhbGciOiJIUzI1NiJ9.@@@.sig",
		"payload not json":   rawSegments("not json"),
		"payload json array": rawSegments("[1,2,3]"),
		"payload json null":  rawSegments("null"),
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			require.NotPanics(t, func() {
				claims, ok := token.Decode(raw)
				require.False(t, ok)
				require.Nil(t, claims)
			})
			require.True(t, token.IsExpired(raw))
		})
	}
}

func TestIsExpired(t *testing.T) {
	withFixedClock(t)
	now := fixedNow.Unix()

	tests := []struct {
		name    string
		exp     any
		expired bool
	}{
		{"expired long ago", now - 3600, true},
		{"expired one second ago", now - 1, true},
		{"expires this second", now, true},
		{"expires next second", now + 1, false},
		{"expires in an hour", now + 3600, false},
		{"exp as string", "1900000000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := signed(t, jwt.MapClaims{"sub": "user-1", "exp": tt.exp})
			require.Equal(t, tt.expired, token.IsExpired(raw))
		})
	}
}

func TestIsExpired_MissingExp(t *testing.T) {
	withFixedClock(t)

	raw := signed(t, jwt.MapClaims{"sub": "user-1"})
	claims, ok := token.Decode(raw)
	require.True(t, ok)
	require.Nil(t, claims.ExpiresAt)
	require.True(t, token.IsExpired(raw))
}

func TestExpiresWithin(t *testing.T) {
	withFixedClock(t)
	now := fixedNow.Unix()
	horizon := 300 * time.Second

	require.True(t, token.ExpiresWithin(signed(t, jwt.MapClaims{"exp": now + 200}), horizon))
	require.True(t, token.ExpiresWithin(signed(t, jwt.MapClaims{"exp": now + 299}), horizon))
	require.False(t, token.ExpiresWithin(signed(t, jwt.MapClaims{"exp": now + 300}), horizon))
	require.False(t, token.ExpiresWithin(signed(t, jwt.MapClaims{"exp": now + 3600}), horizon))
	require.True(t, token.ExpiresWithin("garbage", horizon))
}

func TestExpiry(t *testing.T) {
	exp := time.Unix(1900000000, 0)
	got, ok := token.Expiry(signed(t, jwt.MapClaims{"exp": exp.Unix()}))
	require.True(t, ok)
	require.True(t, exp.Equal(got))

	_, ok = token.Expiry("a.b")
	require.False(t, ok)
}
