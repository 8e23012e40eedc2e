package auth

import (
	"context"

	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/jwt"
)

// TokenVerifier turns a bearer credential into the principal it proves.
type TokenVerifier interface {
	Verify(ctx context.Context, credential string) (*domain.Principal, error)
}

// JWTVerifier verifies access tokens locally with pkg/jwt.
type JWTVerifier struct {
	manager *jwt.Manager
}

// NewJWTVerifier creates a verifier backed by manager.
func NewJWTVerifier(manager *jwt.Manager) *JWTVerifier {
	return &JWTVerifier{manager: manager}
}

// Verify implements TokenVerifier.
func (v *JWTVerifier) Verify(_ context.Context, credential string) (*domain.Principal, error) {
	claims, err := v.manager.ValidateToken(credential)
	if err != nil {
		return nil, err
	}
	return &domain.Principal{
		ID:       claims.Identity(),
		Email:    claims.Email,
		Username: claims.Username,
		Roles:    claims.Roles,
	}, nil
}
