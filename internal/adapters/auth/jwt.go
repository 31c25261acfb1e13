// Package auth issues and verifies HMAC-signed session tokens.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hylla/reqtrack/internal/domain"
)

// ErrInvalidToken and related errors describe token failures.
var (
	ErrInvalidToken  = errors.New("invalid session token")
	ErrMissingSecret = errors.New("session secret is required")
)

// Claims carries the session actor inside a token.
type Claims struct {
	Name string      `json:"name,omitempty"`
	Role domain.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 session tokens.
type Signer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSigner constructs a signer for secret and issuer.
func NewSigner(secret, issuer string, now func() time.Time) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	if now == nil {
		now = time.Now
	}
	return &Signer{secret: []byte(secret), issuer: strings.TrimSpace(issuer), now: now}, nil
}

// Issue signs a token for the user valid for ttl.
func (s *Signer) Issue(user domain.User, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	now := s.now()
	claims := Claims{
		Name: user.DisplayName,
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify parses a token and returns the actor it names.
func (s *Signer) Verify(raw string) (domain.Actor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Actor{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return domain.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return domain.Actor{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return domain.Actor{
		ID:          claims.Subject,
		DisplayName: claims.Name,
		Role:        domain.NormalizeRole(claims.Role),
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
