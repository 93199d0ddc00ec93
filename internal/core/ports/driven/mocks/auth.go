package mocks

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/custodia-labs/storesync/internal/core/domain"
	"github.com/custodia-labs/storesync/internal/core/ports/driven"
)

// Ensure MockTokenAdapter implements TokenAdapter
var _ driven.TokenAdapter = (*MockTokenAdapter)(nil)

// MockTokenAdapter encodes claims as base64 JSON instead of signing them.
// NOT secure - only for testing.
type MockTokenAdapter struct{}

// NewMockTokenAdapter creates a new MockTokenAdapter
func NewMockTokenAdapter() *MockTokenAdapter {
	return &MockTokenAdapter{}
}

// GenerateToken encodes claims as base64 JSON
func (m *MockTokenAdapter) GenerateToken(claims *domain.TokenClaims) (string, error) {
	data, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// ParseToken decodes a token produced by GenerateToken. A zero ExpiresAt
// never expires.
func (m *MockTokenAdapter) ParseToken(token string) (*domain.TokenClaims, error) {
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}

	var claims domain.TokenClaims
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, domain.ErrUnauthorized
	}
	if claims.ExpiresAt != 0 && claims.ExpiresAt < time.Now().Unix() {
		return nil, domain.ErrTokenExpired
	}

	return &claims, nil
}
