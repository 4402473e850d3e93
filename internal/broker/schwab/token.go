package schwab

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// token is the OAuth token pair persisted between runs. ObtainedAt is
// recorded locally at save time; the API only reports ExpiresIn.
type token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	ObtainedAt   time.Time `json:"obtained_at"`
}

// expired reports whether the access token is past (or within a minute
// of) its lifetime.
func (t *token) expired(now time.Time) bool {
	if t.AccessToken == "" {
		return true
	}
	lifetime := time.Duration(t.ExpiresIn) * time.Second
	return !now.Before(t.ObtainedAt.Add(lifetime - time.Minute))
}

// tokenStore reads and writes the token file. The initial file must be
// produced by the out-of-band OAuth authorization flow; this process
// only refreshes it.
type tokenStore struct {
	path string
}

func (s *tokenStore) load() (*token, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var t token
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse token file %s: %w", s.path, err)
	}
	return &t, nil
}

func (s *tokenStore) save(t *token) error {
	raw, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}
