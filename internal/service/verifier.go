package service

import (
	"context"

	"github.com/weiawesome/realm-live/internal/domain"
	"github.com/weiawesome/realm-live/pkg/jwt"
)

// JWTVerifier verifies access tokens issued by this service.
type JWTVerifier struct {
	tokens *jwt.Manager
}

func NewJWTVerifier(tokens *jwt.Manager) *JWTVerifier {
	return &JWTVerifier{tokens: tokens}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (domain.UserIdentity, error) {
	claims, err := v.tokens.ValidateToken(token)
	if err != nil {
		return "", err
	}
	if claims.UserID == "" {
		return "", jwt.ErrInvalidToken
	}
	return domain.UserIdentity(claims.UserID), nil
}
