package auth

import (
	"errors"
	"sync"
	"time"
)

// ErrNoToken is returned when neither a static token nor a minting manager is configured.
var ErrNoToken = errors.New("auth: no access token configured")

// TokenSource hands out the credential the voice SDK connects with.
// A static token wins; otherwise tokens are minted and reused until close to expiry.
type TokenSource struct {
	static   string
	manager  *Manager
	identity string
	Now      func() time.Time

	mu      sync.Mutex
	cached  string
	expires time.Time
}

func NewStaticTokenSource(token string) *TokenSource {
	return &TokenSource{static: token, Now: time.Now}
}

func NewMintingTokenSource(m *Manager, identity string) *TokenSource {
	return &TokenSource{manager: m, identity: identity, Now: time.Now}
}

// refreshMargin keeps a cached token from expiring mid-connect.
const refreshMargin = time.Minute

func (s *TokenSource) AccessToken() (string, error) {
	if s == nil {
		return "", ErrNoToken
	}
	if s.static != "" {
		return s.static, nil
	}
	if s.manager == nil {
		return "", ErrNoToken
	}

	now := s.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != "" && now.Add(refreshMargin).Before(s.expires) {
		return s.cached, nil
	}
	tok, err := s.manager.Issue(now, s.identity)
	if err != nil {
		return "", err
	}
	s.cached = tok
	s.expires = now.Add(s.manager.ttl)
	return tok, nil
}

// Identity is the client identity tokens are minted for; empty for static tokens.
func (s *TokenSource) Identity() string {
	if s == nil {
		return ""
	}
	return s.identity
}
