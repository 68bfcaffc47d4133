package oidc

// RoleSet is a read only view of the roles granted by an access token.
type RoleSet struct {
	realm     map[string]struct{}
	resources map[string]map[string]struct{}
}

func newRoleSet(c *Claims) RoleSet {
	rs := RoleSet{
		realm:     map[string]struct{}{},
		resources: map[string]map[string]struct{}{},
	}
	if c == nil {
		return rs
	}
	if c.RealmAccess != nil {
		for _, r := range c.RealmAccess.Roles {
			rs.realm[r] = struct{}{}
		}
	}
	for res, a := range c.ResourceAccess {
		set := make(map[string]struct{}, len(a.Roles))
		for _, r := range a.Roles {
			set[r] = struct{}{}
		}
		rs.resources[res] = set
	}
	return rs
}

// HasRealmRole reports whether role is a realm role.
func (rs RoleSet) HasRealmRole(role string) bool {
	_, ok := rs.realm[role]
	return ok
}

// HasResourceRole reports whether role is granted for resource.
func (rs RoleSet) HasResourceRole(role, resource string) bool {
	_, ok := rs.resources[resource][role]
	return ok
}
