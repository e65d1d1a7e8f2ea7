package jwtx

import "sort"

// Claim names understood by the SDK.
const (
	ClaimAudience    = "aud"
	ClaimSubject     = "sub"
	ClaimIssuer      = "iss"
	ClaimIssuedAt    = "iat"
	ClaimExpiresAt   = "exp"
	ClaimTenants     = "tenants"
	ClaimPermissions = "permissions"
	ClaimRoles       = "roles"
)

var reservedClaims = map[string]struct{}{
	ClaimAudience:    {},
	ClaimSubject:     {},
	ClaimIssuer:      {},
	ClaimIssuedAt:    {},
	ClaimExpiresAt:   {},
	ClaimTenants:     {},
	ClaimPermissions: {},
	ClaimRoles:       {},
}

// Authorization claim lookups are fail-open: a missing tenant, a claim of
// the wrong shape or a list holding non-strings all resolve to an empty
// list rather than an error, so newer claim layouts never break older
// clients.

// Permissions returns the top-level permissions claim.
func (t *Token) Permissions() []string {
	return stringList(t.claims[ClaimPermissions])
}

// Roles returns the top-level roles claim.
func (t *Token) Roles() []string {
	return stringList(t.claims[ClaimRoles])
}

// TenantPermissions returns tenants[tenant].permissions.
func (t *Token) TenantPermissions(tenant string) []string {
	return stringList(t.tenantClaim(tenant, ClaimPermissions))
}

// TenantRoles returns tenants[tenant].roles.
func (t *Token) TenantRoles(tenant string) []string {
	return stringList(t.tenantClaim(tenant, ClaimRoles))
}

// Tenants returns the sorted ids of every tenant present in the tenants claim.
func (t *Token) Tenants() []string {
	tenants, ok := t.claims[ClaimTenants].(map[string]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(tenants))
	for id := range tenants {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (t *Token) tenantClaim(tenant, key string) any {
	tenants, ok := t.claims[ClaimTenants].(map[string]any)
	if !ok {
		return nil
	}
	entry, ok := tenants[tenant].(map[string]any)
	if !ok {
		return nil
	}
	return entry[key]
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return []string{}
		}
		out = append(out, s)
	}
	return out
}
