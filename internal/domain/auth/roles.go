package auth

// ResolveRole derives the canonical role from the profile record and the credential's claims.
//
// Precedence, first match wins (string comparison ignores case):
//  1. profile.Role, when it names a recognized role
//  2. profile.RoleFlags: IsAdmin, then IsLibrarian
//  3. profile.RoleList: the most privileged recognized entry
//  4. claims.Role (the token hint, relevant before the profile has been fetched)
//  5. Member when a profile exists, otherwise Anonymous
//
// Either argument may be nil. The function is pure.
func ResolveRole(profile *ProfileRecord, claims *ClaimSet) Role {
	if profile != nil {
		if role, ok := ParseRole(profile.Role); ok {
			return role
		}
		if f := profile.RoleFlags; f != nil {
			switch {
			case f.IsAdmin:
				return RoleAdmin
			case f.IsLibrarian:
				return RoleLibrarian
			}
		}
		if role, ok := highestListed(profile.RoleList); ok {
			return role
		}
	}

	if claims != nil {
		if role, ok := ParseRole(claims.Role); ok {
			return role
		}
	}

	if profile != nil {
		return RoleMember
	}
	return RoleAnonymous
}

func highestListed(list []string) (Role, bool) {
	var (
		best  Role
		found bool
	)
	for _, s := range list {
		role, ok := ParseRole(s)
		if !ok {
			continue
		}
		if !found || role.rank() > best.rank() {
			best, found = role, true
		}
	}
	return best, found
}
