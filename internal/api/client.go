// Package api issues authenticated HTTP calls to the backend. A 401
// response triggers exactly one silent token refresh and replay of the
// original request; a failing refresh clears the session.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"campus-client/internal/observability"
	"campus-client/internal/session"
)

// Refresher obtains a fresh access token from the backend. Implemented
// by AuthClient; the indirection keeps the authed client testable.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Client is the authenticated request client.
type Client struct {
	http    *http.Client
	baseURL string
	session *session.Store
	auth    Refresher
}

// NewClient builds a request client rooted at baseURL (".../api").
func NewClient(baseURL string, sess *session.Store, auth Refresher) *Client {
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
		session: sess,
		auth:    auth,
	}
}

// do performs one call. route is the path template used for metrics and
// spans; path is the concrete request path under the base URL.
func (c *Client) do(ctx context.Context, method, route, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	ctx, span := observability.Tracer().Start(ctx, "http "+route)
	span.SetAttributes(attribute.String("http.method", method), attribute.String("http.route", route))
	defer span.End()

	requestID := uuid.NewString()
	resp, err := c.send(ctx, method, route, path, payload, requestID, false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 400 {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	if resp.StatusCode >= 400 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Status:     env.Status,
			Message:    env.Message,
			Errors:     env.Errors,
		}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

// send issues the request once, recursing a single time after a
// successful token refresh. retried is the loop-prevention flag.
func (c *Client) send(ctx context.Context, method, route, path string, payload []byte, requestID string, retried bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if token := c.session.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.ObserveHTTPRequest(method, route, 0, time.Since(start))
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	observability.ObserveHTTPRequest(method, route, resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusUnauthorized || retried {
		return resp, nil
	}
	resp.Body.Close()

	if _, err := c.auth.Refresh(ctx); err != nil {
		observability.IncTokenRefresh("failure")
		log.Printf("api: token refresh failed, clearing session: %v", err)
		c.session.Logout()
		return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	observability.IncTokenRefresh("success")

	return c.send(ctx, method, route, path, payload, requestID, true)
}
