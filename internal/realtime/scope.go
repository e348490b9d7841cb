package realtime

import (
	"strings"

	"github.com/leadwire/leadwire/internal/auth"
)

// Scope is a broadcast audience name.
type Scope string

func (s Scope) String() string { return string(s) }

// TenantScope is the audience of every staff session of a tenant.
func TenantScope(tenantID string) Scope {
	return Scope("tenant:" + tenantID)
}

// ClientScope is the audience of one external customer's sessions.
func ClientScope(tenantID, customerID string) Scope {
	return Scope("tenant-client:" + tenantID + ":" + customerID)
}

// ScopeFor picks the single scope a session with claims belongs to.
func ScopeFor(claims auth.Claims) Scope {
	if claims.IsClient() && strings.TrimSpace(claims.CustomerID) != "" {
		return ClientScope(claims.TenantID, claims.CustomerID)
	}
	return TenantScope(claims.TenantID)
}
