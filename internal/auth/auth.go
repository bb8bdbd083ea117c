package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid session token")

// HashKey returns the hex SHA-256 of the upstream API key. The hash, never
// the key itself, is appended to public image URLs.
func HashKey(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// DeriveSecret builds the registration secret from the client id and the
// shared plugin secret, the scheme the register endpoint expects.
func DeriveSecret(clientID, sharedSecret string) (string, error) {
	if clientID == "" || sharedSecret == "" {
		return "", errors.New("client id and shared secret are required")
	}
	sum := sha256.Sum256([]byte(clientID + ":" + sharedSecret))
	return hex.EncodeToString(sum[:]), nil
}

type Claims struct {
	jwt.RegisteredClaims
}

// Sessions mints and validates operator session tokens for the admin API.
type Sessions struct {
	secret    []byte
	expiresIn time.Duration
}

func NewSessions(secret string, expiresIn time.Duration) (*Sessions, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if expiresIn <= 0 {
		expiresIn = 24 * time.Hour
	}
	return &Sessions{secret: []byte(secret), expiresIn: expiresIn}, nil
}

func (s *Sessions) IssueToken() (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiresIn)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *Sessions) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
