package shared

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ActorHeader carries the actor id when bearer tokens are not configured.
const ActorHeader = "X-Actor-ID"

// ParseActorToken verifies an HS256 token and returns its subject.
func ParseActorToken(secret []byte, raw string) (string, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	subject, err := token.Claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("%w: subject claim missing", ErrInvalidToken)
	}
	return subject, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// SignActorToken issues an HS256 token for subject. Used by tooling and tests.
func SignActorToken(secret []byte, subject string, claims jwt.MapClaims) (string, error) {
	if claims == nil {
		claims = jwt.MapClaims{}
	}
	claims["sub"] = subject
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
