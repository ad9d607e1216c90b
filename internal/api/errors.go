package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrSessionExpired signals that the access token expired and the silent
// refresh failed; the session has been cleared and the app should return
// to the login screen.
var ErrSessionExpired = errors.New("session expired")

// APIError carries a non-2xx backend response. Message prefers the
// server-provided message so views can surface it verbatim.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	Errors     []string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if len(e.Errors) > 0 {
		return strings.Join(e.Errors, "; ")
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// envelope is the backend's uniform response wrapper.
type envelope struct {
	Errors  flexStrings     `json:"errors"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// flexStrings accepts both a bare string and a string array, which the
// backend uses interchangeably in its errors field.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single != "" {
			*f = flexStrings{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*f = many
	return nil
}
