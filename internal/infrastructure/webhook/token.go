// Package webhook signs and verifies the resume tokens handed to callers of
// a suspended webhook node, so a host can expose a public callback URL
// without trusting the caller to supply the execution/node identity itself.
package webhook

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("webhook: missing resume token")
	ErrInvalidToken = errors.New("webhook: invalid resume token")
	ErrExpiredToken = errors.New("webhook: resume token has expired")
)

// ResumeClaims identifies which suspended node a resume token unlocks.
type ResumeClaims struct {
	ExecutionID string `json:"execution_id"`
	NodeKey     string `json:"node_key"`
	jwt.RegisteredClaims
}

// TokenSigner issues and verifies HMAC-signed resume tokens.
type TokenSigner struct {
	secretKey string
}

func NewTokenSigner(secretKey string) *TokenSigner {
	return &TokenSigner{secretKey: secretKey}
}

// Sign issues a resume token for (executionID, nodeKey), valid until expiresAt.
func (s *TokenSigner) Sign(executionID, nodeKey string, expiresAt time.Time) (string, error) {
	claims := ResumeClaims{
		ExecutionID: executionID,
		NodeKey:     nodeKey,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secretKey))
}

// Verify parses and validates a resume token, returning the execution and
// node it unlocks.
func (s *TokenSigner) Verify(tokenString string) (executionID, nodeKey string, err error) {
	if tokenString == "" {
		return "", "", ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &ResumeClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.secretKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", ErrExpiredToken
		}
		return "", "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*ResumeClaims)
	if !ok || !token.Valid || claims.ExecutionID == "" || claims.NodeKey == "" {
		return "", "", ErrInvalidToken
	}
	return claims.ExecutionID, claims.NodeKey, nil
}
