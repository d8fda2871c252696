// Package errors holds the sentinels shared by the session client. Callers add
// context with Wrapf and match with Is, so a storage, token or refresh failure can
// be recognised however deep it was wrapped.
package errors

import (
	"errors"
	"fmt"
)

var (
	// Login and bearer checks
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")

	// Tokens. A client never verifies signatures; these come from the dev backend.
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrNoAccessToken  = errors.New("no access token")
	ErrNoRefreshToken = errors.New("no refresh token")
	ErrRefreshFailed  = errors.New("token refresh failed")

	// ErrSessionExpired ends a request whose 401 could not be cured by a refresh.
	ErrSessionExpired = errors.New("session expired")

	// Storage. ErrUnavailable is transient and retried; ErrCorrupt is not.
	ErrUnavailable = errors.New("storage unavailable")
	ErrCorrupt     = errors.New("storage corrupt")

	ErrNotFound    = errors.New("not found")
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf prefixes err with a formatted message and keeps it matchable. A nil err
// stays nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
