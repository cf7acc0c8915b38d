// Package auth provides service token minting and verification. Scheduled
// and other non-interactive triggers use it to seed executions with a
// JWT_token before any node runs.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Narcis13/workscript/internal/platform/config"
)

// ServiceClaims represents the claims carried by a system-issued token
type ServiceClaims struct {
	Subject string `json:"sub_name"`
	Source  string `json:"source"`
	jwt.RegisteredClaims
}

// TokenService mints and verifies HMAC-signed service tokens
type TokenService struct {
	secret []byte
	issuer string
	expiry time.Duration
}

// NewTokenService creates a token service from auth configuration
func NewTokenService(cfg config.AuthConfig) *TokenService {
	return &TokenService{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		expiry: cfg.JWTExpiry,
	}
}

// Issue mints a token for a non-interactive source (e.g. "scheduler")
func (s *TokenService) Issue(subject, source string) (string, error) {
	now := time.Now()
	claims := &ServiceClaims{
		Subject: subject,
		Source:  source,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns its claims
func (s *TokenService) Verify(tokenString string) (*ServiceClaims, error) {
	claims := &ServiceClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
