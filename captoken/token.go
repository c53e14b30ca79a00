// Package captoken issues and verifies the bearer capability carried in a
// signer's link. The token is the only authorization evidence for the
// anonymous signer: it names one signature request and one purpose.
package captoken

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// PurposeSignatureAccess is the only purpose this service accepts.
const PurposeSignatureAccess = "signature_access"

// ErrInvalidToken covers every verification failure. Callers must not learn
// which check failed.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the token payload: subject=request id, plus the purpose binding.
type Claims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Service signs tokens with a dedicated HS256 secret.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New panics on an empty secret; configuration validation runs earlier.
func New(secret string, ttl time.Duration) *Service {
	if strings.TrimSpace(secret) == "" {
		panic("captoken: empty secret")
	}
	return &Service{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Issue mints a token for requestID that expires after the configured TTL.
func (s *Service) Issue(requestID string) (string, error) {
	return s.issue(requestID, PurposeSignatureAccess)
}

func (s *Service) issue(requestID, purpose string) (string, error) {
	if strings.TrimSpace(requestID) == "" {
		return "", errors.New("captoken: empty request id")
	}
	now := s.now()
	claims := &Claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   requestID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify returns the request id the token was issued for.
func (s *Service) Verify(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidToken
	}

	// Time claims are checked below against the service clock, not jwt.TimeFunc.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	var claims Claims
	token, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.ExpiresAt == nil || !s.now().Before(claims.ExpiresAt.Time) {
		return "", ErrInvalidToken
	}
	if claims.Purpose != PurposeSignatureAccess {
		return "", ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
