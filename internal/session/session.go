// Package session holds the authenticated user's token pair and exposes
// the identity decoded from the access token. Tokens persist to a small
// JSON credentials file; nothing else is kept on disk.
package session

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgrijalva/jwt-go"
)

// Claims are the authorization claims embedded in the backend's access
// token. The client decodes them without verifying the signature; the
// backend is the authority on token validity.
type Claims struct {
	UserID    int    `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	jwt.StandardClaims
}

type credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Store keeps the current token pair in memory and mirrors it to the
// credentials file. Reads have no side effects.
type Store struct {
	mu    sync.RWMutex
	path  string
	creds credentials
}

// NewStore creates a store backed by the given credentials file and loads
// any persisted pair. A missing or unreadable file starts a logged-out
// session.
func NewStore(path string) *Store {
	s := &Store{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("session: could not read credentials: %v", err)
		}
		return s
	}
	if err := json.Unmarshal(data, &s.creds); err != nil {
		log.Printf("session: could not decode credentials: %v", err)
	}
	return s
}

// AccessToken returns the current access token, or "" when logged out.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.AccessToken
}

// RefreshToken returns the current refresh token, or "" when logged out.
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.RefreshToken
}

// SetTokens stores a full token pair, as issued at login.
func (s *Store) SetTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = credentials{AccessToken: access, RefreshToken: refresh}
	s.persist()
}

// SetAccessToken replaces only the access token, as issued by a refresh.
func (s *Store) SetAccessToken(access string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds.AccessToken = access
	s.persist()
}

// Logout clears both tokens and removes the credentials file.
func (s *Store) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = credentials{}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		log.Printf("session: could not remove credentials: %v", err)
	}
}

// CurrentUser decodes the access token claims. It returns nil when there
// is no token or the token does not decode; decode failures are logged,
// never propagated.
func (s *Store) CurrentUser() *Claims {
	token := s.AccessToken()
	if token == "" {
		return nil
	}

	claims := new(Claims)
	parser := jwt.Parser{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		log.Printf("session: could not decode token: %v", err)
		return nil
	}
	return claims
}

// CurrentUserID returns the signed-in user's id. ok is false when logged
// out or the token does not decode.
func (s *Store) CurrentUserID() (id int, ok bool) {
	claims := s.CurrentUser()
	if claims == nil {
		return 0, false
	}
	return claims.UserID, true
}

// persist writes the credentials file; callers hold the lock.
func (s *Store) persist() {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		log.Printf("session: could not create credentials dir: %v", err)
		return
	}
	data, err := json.MarshalIndent(s.creds, "", "  ")
	if err != nil {
		log.Printf("session: could not encode credentials: %v", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		log.Printf("session: could not write credentials: %v", err)
	}
}
