package internal

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultTokenTTL = 24 * time.Hour

// TokenVerifier resolves a bearer token to the user id it was issued for.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

var errUnauthorized = errors.New("unauthorized")

// HMACTokens issues and verifies HS256 JWTs whose subject is the user id.
type HMACTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewHMACTokens(secret string, ttl time.Duration) *HMACTokens {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &HMACTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a token for userID and its expiry.
func (tokens *HMACTokens) Sign(userID string) (string, time.Time, error) {
	now := tokens.now()
	expiresAt := now.Add(tokens.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tokens.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (tokens *HMACTokens) Verify(token string) (string, error) {
	if token == "" {
		return "", errUnauthorized
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return tokens.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(tokens.now))
	if err != nil || !parsed.Valid {
		return "", errUnauthorized
	}
	if claims.Subject == "" {
		return "", errUnauthorized
	}
	return claims.Subject, nil
}
