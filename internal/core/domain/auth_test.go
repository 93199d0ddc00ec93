package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRole_IsValid(t *testing.T) {
	assert.True(t, RoleAdmin.IsValid())
	assert.True(t, RoleViewer.IsValid())
	assert.False(t, Role("owner").IsValid())
}

func TestAuthContext_CanAccessSite(t *testing.T) {
	unrestricted := NewAuthContext(&TokenClaims{Subject: "ops", Role: RoleAdmin})
	assert.True(t, unrestricted.CanAccessSite(1))
	assert.True(t, unrestricted.IsAdmin())

	scoped := NewAuthContext(&TokenClaims{Subject: "shop", Role: RoleViewer, SiteIDs: []int64{2, 3}})
	assert.True(t, scoped.CanAccessSite(3))
	assert.False(t, scoped.CanAccessSite(1))
	assert.False(t, scoped.IsAdmin())
}
