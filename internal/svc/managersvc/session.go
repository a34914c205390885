package managersvc

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jortega/taskdesk/internal/domain"
)

// ErrInvalidSession is returned when a session token fails verification for
// any reason: bad signature, malformed payload, or expiry.
var ErrInvalidSession = errors.New("invalid session token")

// SessionConfig contains configuration parameters for session tokens.
type SessionConfig struct {
	// Secret is the HMAC signing key for session tokens
	Secret string `env:"SECRET" default:"taskdesk-dev-secret-change-me"`

	// TokenDuration is the validity duration of session tokens in seconds
	TokenDuration int64 `env:"TOKEN_DURATION" default:"3600"` // 1h
}

// sessionClaims is the JWT payload of a session token. The subject carries
// the user name; the role travels alongside so the transport can stamp the
// actor without a registry lookup. Authorization still re-resolves the user.
type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Sessions issues and verifies signed session tokens (HS256).
type Sessions struct {
	cfg SessionConfig
}

// NewSessions creates a Sessions with the given configuration.
func NewSessions(cfg SessionConfig) *Sessions {
	return &Sessions{cfg: cfg}
}

// Issue creates a signed token for the user, valid for the configured duration.
func (s *Sessions) Issue(user domain.User) (string, error) {
	now := time.Now()
	claims := &sessionClaims{
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.cfg.TokenDuration) * time.Second)),
			Issuer:    "taskdesk",
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return token, nil
}

// Verify checks a token's signature and expiry and returns the embedded
// user name and role. Any failure yields ErrInvalidSession.
func (s *Sessions) Verify(tokenString string) (string, domain.Role, error) {
	claims := &sessionClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", "", errors.Join(ErrInvalidSession, err)
	}

	if claims.Subject == "" {
		return "", "", ErrInvalidSession
	}

	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return "", "", errors.Join(ErrInvalidSession, err)
	}

	return claims.Subject, role, nil
}
