package driven

import "github.com/custodia-labs/storesync/internal/core/domain"

// TokenAdapter signs and verifies API bearer tokens.
type TokenAdapter interface {
	GenerateToken(claims *domain.TokenClaims) (string, error)

	// ParseToken verifies a token. Expired tokens yield domain.ErrTokenExpired,
	// any other failure domain.ErrUnauthorized.
	ParseToken(token string) (*domain.TokenClaims, error)
}
