package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"campus-client/internal/session"
)

// AuthClient calls the token endpoints with a bare HTTP client; these
// calls never carry an Authorization header and never trigger the
// refresh-replay path.
type AuthClient struct {
	http    *http.Client
	baseURL string
	session *session.Store
}

// NewAuthClient builds an auth client rooted at baseURL (".../api").
func NewAuthClient(baseURL string, sess *session.Store) *AuthClient {
	return &AuthClient{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
		session: sess,
	}
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Login exchanges credentials for a token pair and stores it.
func (a *AuthClient) Login(ctx context.Context, email, password string) error {
	var pair tokenPair
	err := a.post(ctx, "/token/", map[string]string{"email": email, "password": password}, &pair)
	if err != nil {
		return err
	}
	if pair.Access == "" {
		return fmt.Errorf("login: no access token in response")
	}
	a.session.SetTokens(pair.Access, pair.Refresh)
	return nil
}

// Refresh exchanges the stored refresh token for a new access token and
// stores it. The refreshed token is returned for immediate reuse.
func (a *AuthClient) Refresh(ctx context.Context) (string, error) {
	refresh := a.session.RefreshToken()
	if refresh == "" {
		return "", fmt.Errorf("refresh: no refresh token")
	}

	var pair tokenPair
	if err := a.post(ctx, "/token/refresh/", map[string]string{"refresh": refresh}, &pair); err != nil {
		return "", err
	}
	if pair.Access == "" {
		return "", fmt.Errorf("refresh: no access token in response")
	}
	a.session.SetAccessToken(pair.Access)
	return pair.Access, nil
}

func (a *AuthClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("request POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var env envelope
		_ = json.Unmarshal(raw, &env)
		return &APIError{
			StatusCode: resp.StatusCode,
			Status:     env.Status,
			Message:    env.Message,
			Errors:     env.Errors,
		}
	}
	return json.Unmarshal(raw, out)
}
