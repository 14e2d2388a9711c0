// Package auth verifies connection-time credentials for the gateway. The
// hub trusts the verifier's answer for the lifetime of a connection and
// never re-verifies mid-session.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned for any credential the verifier rejects.
var ErrUnauthenticated = errors.New("unauthenticated")

// Verifier resolves connection credentials to a user identity.
type Verifier interface {
	// Verify validates the token and returns the authenticated user ID.
	// When claimedUserID is non-empty it must match the token's subject.
	Verify(token, claimedUserID string) (string, error)
}

// JWTVerifier validates HMAC-signed tokens issued by the auth service.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(tokenString, claimedUserID string) (string, error) {
	// Tokens arrive via query parameter and may keep the header prefix.
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	if tokenString == "" {
		return "", ErrUnauthenticated
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrUnauthenticated
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrUnauthenticated
	}

	userID := userIDFromClaims(claims)
	if userID == "" {
		return "", ErrUnauthenticated
	}
	if claimedUserID != "" && claimedUserID != userID {
		return "", ErrUnauthenticated
	}
	return userID, nil
}

// userIDFromClaims accepts the user_id claim as string or number, with the
// registered subject claim as fallback.
func userIDFromClaims(claims jwt.MapClaims) string {
	switch v := claims["user_id"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	if sub, ok := claims["sub"].(string); ok {
		return sub
	}
	return ""
}
