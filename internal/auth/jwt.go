package auth

import (
	"errors"
	"fmt"
	"time"

	"voice-bridge/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// Manager mints and verifies voice access tokens signed with an API key secret.
type Manager struct {
	accountSID string
	keySID     string
	secret     []byte
	appSID     string
	ttl        time.Duration
}

func NewManager(cfg config.VoiceConfig) (*Manager, error) {
	if cfg.APIKeySecret == "" {
		return nil, errors.New("VOICE_API_KEY_SECRET is required")
	}
	if cfg.APIKeySID == "" || cfg.AccountSID == "" {
		return nil, errors.New("VOICE_API_KEY_SID and VOICE_ACCOUNT_SID are required")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Manager{
		accountSID: cfg.AccountSID,
		keySID:     cfg.APIKeySID,
		secret:     []byte(cfg.APIKeySecret),
		appSID:     cfg.AppSID,
		ttl:        ttl,
	}, nil
}

/* ===================== ISSUE TOKENS ===================== */

// Issue mints an access token for identity with a voice grant
// allowing incoming calls and outgoing calls through the configured application.
func (m *Manager) Issue(now time.Time, identity string) (string, error) {
	if identity == "" {
		return "", errors.New("identity is required")
	}

	grant := &VoiceGrant{Incoming: &IncomingGrant{Allow: true}}
	if m.appSID != "" {
		grant.Outgoing = &OutgoingGrant{ApplicationSID: m.appSID}
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			// jti format expected by the voice backend: <key sid>-<issued at>
			ID:        fmt.Sprintf("%s-%d", m.keySID, now.Unix()),
			Issuer:    m.keySID,
			Subject:   m.accountSID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Grants: Grants{Identity: identity, Voice: grant},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["cty"] = contentType
	return t.SignedString(m.secret)
}

/* ===================== VERIFY TOKEN ===================== */

func (m *Manager) Verify(tokenString string, now time.Time) (Claims, error) {
	var claims Claims

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(30*time.Second), // clock skew tolerance
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(m.keySID),
		jwt.WithSubject(m.accountSID),
	)

	tok, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return Claims{}, err
	}
	if cty, _ := tok.Header["cty"].(string); cty != contentType {
		return Claims{}, errors.New("unexpected token content type")
	}
	if claims.Grants.Identity == "" {
		return Claims{}, errors.New("identity missing")
	}
	if claims.Grants.Voice == nil {
		return Claims{}, errors.New("voice grant missing")
	}

	return claims, nil
}
