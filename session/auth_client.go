package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/pkg/errors"
)

const (
	RefreshPath = "auth/refresh"
	LoginPath   = "auth/login"

	maxErrorBody = 4 << 10
)

// StatusError is returned when an auth endpoint answers with a non-2xx status.
type StatusError struct {
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: %d - %s", e.Path, e.Status, e.Body)
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}

// HTTPAuthClient calls the REST auth endpoints. It must be given a plain
// *http.Client, never one whose transport is the session interceptor.
type HTTPAuthClient struct {
	baseURL string
	client  *http.Client
}

var _ AuthClient = (*HTTPAuthClient)(nil)

func NewHTTPAuthClient(baseURL string, client *http.Client) *HTTPAuthClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPAuthClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (c *HTTPAuthClient) Refresh(ctx context.Context, refreshToken string) (string, error) {
	var resp refreshResponse
	if err := c.postJSON(ctx, RefreshPath, refreshRequest{Refresh: refreshToken}, &resp); err != nil {
		return "", err
	}
	if resp.Access == "" {
		return "", errors.New("no access token in refresh response")
	}
	return resp.Access, nil
}

func (c *HTTPAuthClient) Login(ctx context.Context, credentials Credentials) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.postJSON(ctx, LoginPath, credentials, &resp); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && (statusErr.Status == http.StatusUnauthorized || statusErr.Status == http.StatusBadRequest) {
			return nil, apperrors.Wrapf(apperrors.ErrInvalidCredentials, "[HTTPAuthClient.Login] %s", statusErr.Body)
		}
		return nil, err
	}
	if resp.Access == "" {
		return nil, errors.New("[HTTPAuthClient.Login] no access token in login response")
	}
	return &resp, nil
}

func (c *HTTPAuthClient) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrapf(err, "[HTTPAuthClient] marshal %s request", path)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrapf(err, "[HTTPAuthClient] build %s request", path)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "[HTTPAuthClient] %s", path)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return &StatusError{Path: path, Status: res.StatusCode, Body: strings.TrimSpace(string(text))}
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "[HTTPAuthClient] decode %s response", path)
	}
	return nil
}
