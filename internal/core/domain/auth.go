package domain

// Role represents an API caller role
type Role string

const (
	// RoleAdmin may change site settings
	RoleAdmin Role = "admin"
	// RoleViewer may read and sync lists
	RoleViewer Role = "viewer"
)

// IsValid returns true if this is a known role
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleViewer
}

// TokenClaims represents the bearer token payload.
// An empty SiteIDs grants every site.
type TokenClaims struct {
	Subject   string  `json:"sub"`
	Role      Role    `json:"role"`
	SiteIDs   []int64 `json:"site_ids,omitempty"`
	IssuedAt  int64   `json:"iat"`
	ExpiresAt int64   `json:"exp"`
}

// AuthContext contains the authenticated caller for request context
type AuthContext struct {
	Subject string  `json:"subject"`
	Role    Role    `json:"role"`
	SiteIDs []int64 `json:"site_ids,omitempty"`
}

// NewAuthContext builds the request context of verified claims
func NewAuthContext(c *TokenClaims) *AuthContext {
	return &AuthContext{Subject: c.Subject, Role: c.Role, SiteIDs: c.SiteIDs}
}

// IsAdmin checks if the caller is an admin
func (a *AuthContext) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanAccessSite reports whether the caller may use siteID
func (a *AuthContext) CanAccessSite(siteID int64) bool {
	if len(a.SiteIDs) == 0 {
		return true
	}
	for _, id := range a.SiteIDs {
		if id == siteID {
			return true
		}
	}
	return false
}
