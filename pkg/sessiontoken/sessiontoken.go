// Package sessiontoken issues and validates the tokens that let a browser
// subscribe to the event stream of one planning session.
package sessiontoken

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/golang-jwt/jwt/v5"
)

var tokenErrors = errx.NewRegistry("SESSIONTOKEN")

var (
	ErrMissingSecret    = tokenErrors.Register("MISSING_SECRET", errx.TypeInternal, http.StatusInternalServerError, "Session token secret not configured")
	ErrMissingToken     = tokenErrors.Register("MISSING_TOKEN", errx.TypeAuthorization, http.StatusUnauthorized, "Session token required")
	ErrInvalidToken     = tokenErrors.Register("INVALID_TOKEN", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid session token")
	ErrSessionMismatch  = tokenErrors.Register("SESSION_MISMATCH", errx.TypeAuthorization, http.StatusForbidden, "Token does not grant access to this session")
	ErrGenerationFailed = tokenErrors.Register("GENERATION_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Failed to sign session token")
)

// Claims are the JWT claims of a session token.
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Service signs and verifies HS256 session tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewService creates a token service. ttl defaults to 12 hours.
func NewService(secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: "remodel",
		now:    time.Now,
	}
}

// Issue signs a token granting access to sessionID.
func (s *Service) Issue(sessionID string) (string, error) {
	if len(s.secret) == 0 {
		return "", tokenErrors.New(ErrMissingSecret)
	}
	now := s.now()
	claims := Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", tokenErrors.NewWithCause(ErrGenerationFailed, err)
	}
	return signed, nil
}

// Authorize checks that token is valid and grants access to sessionID.
func (s *Service) Authorize(token, sessionID string) (*Claims, error) {
	if len(s.secret) == 0 {
		return nil, tokenErrors.New(ErrMissingSecret)
	}
	if token == "" {
		return nil, tokenErrors.New(ErrMissingToken)
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, tokenErrors.NewWithCause(ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.SessionID == "" {
		return nil, tokenErrors.New(ErrInvalidToken).WithDetail("reason", "missing sid claim")
	}
	if claims.SessionID != sessionID {
		return nil, tokenErrors.New(ErrSessionMismatch).WithDetail("session_id", sessionID)
	}
	return claims, nil
}
