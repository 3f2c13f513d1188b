package gateway

import (
	"fmt"

	"github.com/golang-jwt/jwt"

	"github.com/nguyentrongduc2005/chat-high-load/internal/types"
)

const (
	userIdClaim   = "user-id"
	usernameClaim = "username"
)

// verifyIdentityToken checks an HS256 token presented with authenticate and
// extracts the identity claims it carries.
func verifyIdentityToken(signingKey []byte, tokenString string) (types.User, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return signingKey, nil
	})
	if err != nil {
		return types.User{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return types.User{}, fmt.Errorf("invalid token claims")
	}

	userId, ok := claims[userIdClaim].(string)
	if !ok || userId == "" {
		return types.User{}, fmt.Errorf("invalid user id claim")
	}

	username, _ := claims[usernameClaim].(string)

	return types.User{UserId: userId, Username: username}, nil
}
