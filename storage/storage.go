// Package storage defines the persistent key-value store that holds the session and
// the wrappers used to make a flaky native backend safe to call.
package storage

import (
	"context"

	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
)

// Keys persisted by the client.
const (
	KeyAccessToken     = "access_token"
	KeyRefreshToken    = "refresh_token"
	KeyUser            = "user"
	KeyRememberMe      = "remember_me"
	KeyRememberedEmail = "remembered_email"
)

// ErrUnavailable is returned by a backend that cannot be reached yet, for example
// while the native bridge is still starting.
var ErrUnavailable = apperrors.ErrUnavailable

// KeyValueStore is a durable string to string map. Every implementation must apply
// Set atomically: a failed Set never leaves a partially written value.
type KeyValueStore interface {
	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// Clear deletes every key.
	Clear(ctx context.Context) error

	// Keys lists the stored keys in no particular order.
	Keys(ctx context.Context) ([]string, error)
}

// ReadinessProbe is implemented by backends that can report whether they are
// reachable without performing a read or write.
type ReadinessProbe interface {
	Ready(ctx context.Context) bool
}
