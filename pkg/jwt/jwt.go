package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrRevokedToken = errors.New("token has been revoked")
	ErrWrongSession = errors.New("token was issued for another session")
)

// TokenTypePublish marks a token that entitles its bearer to publish into
// and close one session.
const TokenTypePublish = "publish"

// Claims represents JWT claims.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
	Owner     string `json:"owner,omitempty"`
	Type      string `json:"type"`
}

// Manager issues and verifies session-scoped tokens. Keys are generated per
// process, so tokens die with the process just like the sessions they name.
type Manager struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	duration   time.Duration
	issuer     string

	// session id -> time the revocation can be forgotten
	revoked map[string]time.Time
	mu      sync.RWMutex
}

// NewManager creates a new JWT manager with a fresh RSA key pair.
func NewManager(duration time.Duration, issuer string) (*Manager, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	return &Manager{
		privateKey: privateKey,
		publicKey:  &privateKey.PublicKey,
		duration:   duration,
		issuer:     issuer,
		revoked:    make(map[string]time.Time),
	}, nil
}

// IssuePublishToken signs a publish token for the session.
func (m *Manager) IssuePublishToken(sessionID, owner string) (token string, expiresAt int64, err error) {
	now := time.Now()
	exp := now.Add(m.duration)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		SessionID: sessionID,
		Owner:     owner,
		Type:      TokenTypePublish,
	}

	token, err = m.signToken(claims)
	if err != nil {
		return "", 0, err
	}
	return token, exp.Unix(), nil
}

// ValidateToken validates a token and returns claims.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrInvalidToken
		}
		return m.publicKey, nil
	}, jwt.WithIssuer(m.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if m.IsRevoked(claims.SessionID) {
		return nil, ErrRevokedToken
	}

	return claims, nil
}

// VerifyPublishToken checks that the token is a live publish token for sessionID.
func (m *Manager) VerifyPublishToken(tokenString, sessionID string) (*Claims, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenTypePublish {
		return nil, ErrInvalidToken
	}
	if claims.SessionID != sessionID {
		return nil, ErrWrongSession
	}
	return claims, nil
}

// RevokeSession invalidates every token issued for the session.
func (m *Manager) RevokeSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[sessionID] = time.Now().Add(m.duration)
}

// IsRevoked reports whether the session's tokens are revoked.
func (m *Manager) IsRevoked(sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	expiry, exists := m.revoked[sessionID]
	return exists && time.Now().Before(expiry)
}

// CleanupExpiredRevocations removes revocations whose tokens have expired anyway.
func (m *Manager) CleanupExpiredRevocations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	removed := 0
	for sessionID, expiry := range m.revoked {
		if now.After(expiry) {
			delete(m.revoked, sessionID)
			removed++
		}
	}
	return removed
}

func (m *Manager) signToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(m.privateKey)
}
