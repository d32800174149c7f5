// Package sdk is the Go client for the Perfect Pic image hosting API.
package sdk

import (
	"net/http"
	"strings"
	"sync"
)

// TokenStore persists the session token between requests.
type TokenStore interface {
	Token() string
	SetToken(token string)
	Clear()
}

// MemoryTokenStore is a TokenStore held in process memory.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryTokenStore returns a store holding token, which may be empty.
func NewMemoryTokenStore(token string) *MemoryTokenStore {
	s := &MemoryTokenStore{}
	s.SetToken(token)
	return s
}

func (s *MemoryTokenStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken stores token. A leading "Bearer " is stripped.
func (s *MemoryTokenStore) SetToken(token string) {
	token = normalizeToken(token)
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *MemoryTokenStore) Clear() { s.SetToken("") }

func normalizeToken(token string) string {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}

type authStrategy interface {
	Apply(req *http.Request)
}

type authChain []authStrategy

func (c authChain) Apply(req *http.Request) {
	for _, s := range c {
		if s == nil {
			continue
		}
		s.Apply(req)
	}
}

// bearerAuth reads the token at request time so a login mid-session takes
// effect on the next call.
type bearerAuth struct {
	tokens TokenStore
}

func (b bearerAuth) Apply(req *http.Request) {
	if b.tokens == nil {
		return
	}
	token := normalizeToken(b.tokens.Token())
	if token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}
