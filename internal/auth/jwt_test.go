package auth

import (
	"testing"
	"time"

	"voice-bridge/internal/config"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.VoiceConfig{
		AccountSID:   "AC123",
		APIKeySID:    "SK123",
		APIKeySecret: "secret",
		AppSID:       "AP123",
		TokenTTL:     time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m := newTestManager(t)

	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok == "" {
		t.Fatalf("expected token string")
	}

	claims, err := m.Verify(tok, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Grants.Identity != "alice" {
		t.Fatalf("unexpected identity: %+v", claims.Grants)
	}
	if claims.Grants.Voice.Outgoing == nil || claims.Grants.Voice.Outgoing.ApplicationSID != "AP123" {
		t.Fatalf("expected outgoing grant: %+v", claims.Grants.Voice)
	}
	if claims.ID != "SK123-1700000000" {
		t.Fatalf("unexpected jti %q", claims.ID)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := newTestManager(t)
	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok, now.Add(2*time.Hour)); err == nil {
		t.Fatalf("expected expired token error")
	}
}

func TestVerifyRejectsOtherAccount(t *testing.T) {
	m := newTestManager(t)
	other, _ := NewManager(config.VoiceConfig{AccountSID: "AC999", APIKeySID: "SK123", APIKeySecret: "secret"})

	now := time.Now()
	tok, err := other.Issue(now, "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok, now); err == nil {
		t.Fatalf("expected subject mismatch")
	}
}

func TestIssueRequiresIdentity(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Issue(time.Now(), ""); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTokenSource(t *testing.T) {
	if tok, err := NewStaticTokenSource("static").AccessToken(); err != nil || tok != "static" {
		t.Fatalf("expected static token, got %q %v", tok, err)
	}
	if _, err := (&TokenSource{}).AccessToken(); err != ErrNoToken {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}

	now := time.Unix(1700000000, 0).UTC()
	s := NewMintingTokenSource(newTestManager(t), "bob")
	s.Now = func() time.Time { return now }
	first, err := s.AccessToken()
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	now = now.Add(10 * time.Minute)
	second, _ := s.AccessToken()
	if first != second {
		t.Fatalf("expected cached token reuse")
	}
	now = now.Add(time.Hour)
	third, _ := s.AccessToken()
	if third == first {
		t.Fatalf("expected refreshed token near expiry")
	}
}
