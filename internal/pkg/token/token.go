// Package token signs and verifies the two session credentials: a short-lived
// access token and a longer-lived refresh token, each with its own HS256
// secret and expiry. Both carry the user id as the subject claim.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// Manager holds the signing configuration, injected once at construction.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// SignAccess issues a short-lived access token for userID.
func (m *Manager) SignAccess(userID uint) (string, error) {
	return sign(userID, m.accessSecret, m.accessTTL)
}

// SignRefresh issues a refresh token for userID. A random jti claim keeps two
// tokens minted within the same second from colliding, which the rotation
// compare-and-swap relies on.
func (m *Manager) SignRefresh(userID uint) (string, error) {
	return sign(userID, m.refreshSecret, m.refreshTTL)
}

// VerifyAccess validates an access token and returns its subject user id.
func (m *Manager) VerifyAccess(tokenString string) (uint, error) {
	return verify(tokenString, m.accessSecret)
}

// VerifyRefresh validates a refresh token and returns its subject user id.
func (m *Manager) VerifyRefresh(tokenString string) (uint, error) {
	return verify(tokenString, m.refreshSecret)
}

func sign(userID uint, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwtv5.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		ID:        uuid.NewString(),
		IssuedAt:  jwtv5.NewNumericDate(now),
		ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token failed: %w", err)
	}
	return signed, nil
}

func verify(tokenString string, secret []byte) (uint, error) {
	claims := &jwtv5.RegisteredClaims{}
	parsed, err := jwtv5.ParseWithClaims(tokenString, claims, func(t *jwtv5.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtv5.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return 0, err
	}
	if !parsed.Valid {
		return 0, ErrInvalidToken
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return uint(userID), nil
}
