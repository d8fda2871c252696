package api

import (
	"context"

	"github.com/jrsteele09/go-session-client/session"
)

const (
	PathMe                = "auth/me"
	PathRegistration      = "auth/registration"
	PathSendOTP           = "auth/send_otp"
	PathResetPassword     = "auth/reset_password"
	PathNotifications     = "mobcash/notification"
	PathReadNotifications = "mobcash/read-notification"
	PathSettings          = "mobcash/setting"
)

// Page is a paginated list response.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

type Notification struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	IsRead    bool   `json:"is_read"`
	CreatedAt string `json:"created_at"`
}

// Settings holds the backend switches the client reads. Unknown keys are kept in
// Extra.
type Settings struct {
	ReferralBonus bool           `json:"referral_bonus"`
	Extra         map[string]any `json:"-"`
}

type Registration struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Password     string `json:"password"`
	RePassword   string `json:"re_password"`
	ReferralCode string `json:"referral_code,omitempty"`
}

type PasswordReset struct {
	OTP                string `json:"otp"`
	NewPassword        string `json:"new_password"`
	ConfirmNewPassword string `json:"confirm_new_password"`
}

// Me fetches the profile of the authenticated user.
func (c *Client) Me(ctx context.Context) (*session.User, error) {
	var user session.User
	if err := c.Get(ctx, PathMe, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) Register(ctx context.Context, r Registration) error {
	return c.Post(ctx, PathRegistration, r, nil)
}

func (c *Client) SendOTP(ctx context.Context, email string) error {
	return c.Post(ctx, PathSendOTP, map[string]string{"email": email}, nil)
}

func (c *Client) ResetPassword(ctx context.Context, r PasswordReset) error {
	return c.Post(ctx, PathResetPassword, r, nil)
}

func (c *Client) Notifications(ctx context.Context) (*Page[Notification], error) {
	var page Page[Notification]
	if err := c.Get(ctx, PathNotifications, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// MarkNotificationsRead marks every notification of the user as read.
func (c *Client) MarkNotificationsRead(ctx context.Context) error {
	return c.Post(ctx, PathReadNotifications, nil, nil)
}

func (c *Client) Settings(ctx context.Context) (*Settings, error) {
	var raw map[string]any
	if err := c.Get(ctx, PathSettings, &raw); err != nil {
		return nil, err
	}
	s := &Settings{Extra: raw}
	if v, ok := raw["referral_bonus"].(bool); ok {
		s.ReferralBonus = v
	}
	return s, nil
}
