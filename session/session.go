// Package session owns the access/refresh token lifecycle of the client: reading the
// persisted session, deciding whether it is still usable, refreshing the access token
// and tearing the session down.
//
// The Manager is the only writer of the access_token, refresh_token and user keys.
// Route guards, the lifecycle watcher and the request interceptor only go through
// its methods.
package session

import (
	"context"
	"encoding/json"
)

// User is the profile snapshot returned by the login endpoint and persisted under
// the user key.
type User struct {
	ID             string  `json:"id"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Email          string  `json:"email"`
	Phone          string  `json:"phone"`
	BonusAvailable float64 `json:"bonus_available"`
	ReferralCode   string  `json:"referral_code"`
	Username       string  `json:"username,omitempty"`
	ReferrerCode   *string `json:"referrer_code,omitempty"`
	IsSuperuser    bool    `json:"is_superuser,omitempty"`
	IsBlock        bool    `json:"is_block,omitempty"`
	IsActive       bool    `json:"is_active,omitempty"`
	IsStaff        bool    `json:"is_staff,omitempty"`
	DateJoined     string  `json:"date_joined,omitempty"`
	LastLogin      string  `json:"last_login,omitempty"`
}

// AuthResponse is the body returned by a successful login.
type AuthResponse struct {
	Refresh string          `json:"refresh"`
	Access  string          `json:"access"`
	Exp     json.RawMessage `json:"exp,omitempty"`
	Data    User            `json:"data"`
}

// Credentials are the login form values.
type Credentials struct {
	EmailOrPhone string `json:"email_or_phone"`
	Password     string `json:"password"`
}

// Session is a read-only snapshot of what is persisted. Either token may be empty.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *User
}

// State is the conceptual position of the persisted session in its lifecycle.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateValid           State = "valid"
	StateRefreshPending  State = "refresh_pending"
)

// Navigator moves the user to the unauthenticated entry screen.
type Navigator interface {
	RedirectToLogin(ctx context.Context)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context)

func (f NavigatorFunc) RedirectToLogin(ctx context.Context) {
	f(ctx)
}

// AuthClient talks to the authentication endpoints of the REST API. Implementations
// must not attach an Authorization header.
type AuthClient interface {
	Refresh(ctx context.Context, refreshToken string) (accessToken string, err error)
	Login(ctx context.Context, credentials Credentials) (*AuthResponse, error)
}
