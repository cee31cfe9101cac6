package client

import (
	"strings"
	"sync"
)

const bearerPrefix = "Bearer "

// Session is the in-memory token store of one client. Tokens are kept in
// their "Bearer <token>" header form.
type Session struct {
	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	username     string
	name         string
}

func NewSession() *Session {
	return &Session{}
}

func withBearer(token string) string {
	if token == "" || strings.HasPrefix(token, bearerPrefix) {
		return token
	}
	return bearerPrefix + token
}

// Set stores a freshly issued token pair.
func (s *Session) Set(accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = withBearer(accessToken)
	s.refreshToken = withBearer(refreshToken)
}

// SetAccessToken replaces the access token after a refresh.
func (s *Session) SetAccessToken(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = withBearer(accessToken)
}

func (s *Session) setUser(username, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = username
	s.name = name
}

// AccessToken returns the Authorization header value, or "".
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the stored refresh token with its Bearer prefix.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// Username of the logged-in account, used to decide which posts and
// comments the user may edit.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *Session) Authenticated() bool {
	return s.AccessToken() != ""
}

// Clear discards both tokens and the account details.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = ""
	s.refreshToken = ""
	s.username = ""
	s.name = ""
}
