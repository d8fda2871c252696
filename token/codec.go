package token

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Claims is the decoded payload of an access token. It is derived on demand and
// never persisted.
type Claims struct {
	ExpiresAt *int64        // exp, seconds since the epoch; nil when absent or not numeric
	Raw       jwt.MapClaims // every claim as found in the payload
}

// Subject returns the sub claim, or "" when absent.
func (c *Claims) Subject() string {
	sub, _ := c.Raw["sub"].(string)
	return sub
}

// Decode reads the payload of raw without verifying its signature. Only the middle
// segment is looked at, so an unknown alg or a broken header does not matter. Any
// malformed input (wrong segment count, bad base64, payload that is not a JSON
// object) yields ok == false; it never fails loudly.
func Decode(raw string) (*Claims, bool) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 3 {
		return nil, false
	}

	payload, err := jwt.NewParser(jwt.WithPaddingAllowed()).DecodeSegment(parts[1])
	if err != nil {
		return nil, false
	}

	var mapClaims jwt.MapClaims
	if err := json.Unmarshal(payload, &mapClaims); err != nil || mapClaims == nil {
		return nil, false
	}

	claims := &Claims{Raw: mapClaims}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		secs := exp.Unix()
		claims.ExpiresAt = &secs
	}
	return claims, true
}

// Expiry returns the exp claim of raw as a time.
func Expiry(raw string) (time.Time, bool) {
	claims, ok := Decode(raw)
	if !ok || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return time.Unix(*claims.ExpiresAt, 0), true
}

// IsExpired fails closed: an undecodable token or one without an exp claim is
// expired. A token whose exp equals the current second is expired too.
func IsExpired(raw string) bool {
	exp, ok := Expiry(raw)
	if !ok {
		return true
	}
	return exp.Unix() <= NowTimeFunc().Unix()
}

// ExpiresWithin reports whether raw expires in less than horizon. Tokens that
// cannot be decoded are reported as expiring.
func ExpiresWithin(raw string, horizon time.Duration) bool {
	exp, ok := Expiry(raw)
	if !ok {
		return true
	}
	return exp.Unix()-NowTimeFunc().Unix() < int64(horizon/time.Second)
}
