package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sdk "github.com/perfectpic/perfectpic/sdk/go"
)

// fileTokenStore keeps the session token in a file so separate ppctl runs
// share a login. Write failures are reported through lastErr.
type fileTokenStore struct {
	path string

	mu      sync.Mutex
	token   string
	lastErr error
}

var _ sdk.TokenStore = (*fileTokenStore)(nil)

func openFileTokenStore(path string) (*fileTokenStore, error) {
	s := &fileTokenStore{path: path}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		s.token = strings.TrimSpace(string(data))
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}
	return s, nil
}

func (s *fileTokenStore) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *fileTokenStore) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = strings.TrimSpace(token)
	if s.token == "" {
		s.lastErr = os.Remove(s.path)
		if errors.Is(s.lastErr, os.ErrNotExist) {
			s.lastErr = nil
		}
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		s.lastErr = err
		return
	}
	s.lastErr = os.WriteFile(s.path, []byte(s.token+"\n"), 0o600)
}

func (s *fileTokenStore) Clear() { s.SetToken("") }

func (s *fileTokenStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "perfectpic", "token")
}
