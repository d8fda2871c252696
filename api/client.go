package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 64 << 10
)

// Client issues JSON requests against the REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient replaces the underlying client. Its transport is wrapped by the
// session Transport.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.http = c
	}
}

func NewClient(baseURL string, session SessionManager, options ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range options {
		opt(c)
	}

	wrapped := *c.http
	wrapped.Transport = NewTransport(session, c.http.Transport)
	c.http = &wrapped
	return c
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Do sends body as JSON and decodes a 2xx response into out when out is not nil.
// Any failure is returned as *Error.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "[Client.Do] marshal %s %s", method, path)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimLeft(path, "/"), reader)
	if err != nil {
		return errors.Wrapf(err, "[Client.Do] build %s %s", method, path)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return &Error{Status: http.StatusUnauthorized, Message: MessageSessionExpired, Err: ErrSessionExpired}
		}
		log.Err(err).Str("method", method).Str("path", path).Msg("API request failed")
		return &Error{Message: MessageNetworkError, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		apiErr := statusError(res.StatusCode, text)
		log.Debug().Int("status", res.StatusCode).Str("method", method).Str("path", path).Msg("API error response")
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &Error{Status: res.StatusCode, Message: MessageGenericError, Err: errors.Wrap(err, "decode response")}
	}
	return nil
}
