// Package rbac holds the pure authorization decision functions over the
// static role hierarchy. No I/O, no state.
package rbac

import "github.com/wenqu/backend-api-scaffold/internal/account/entity"

// Authorize reports whether a role satisfies any of the allowed roles.
// Because the hierarchy is a total order, this reduces to a threshold check
// against the weakest role in the allowed set.
func Authorize(role entity.Role, allowed ...entity.Role) bool {
	if len(allowed) == 0 {
		return false
	}
	min := allowed[0].Level()
	for _, r := range allowed[1:] {
		if l := r.Level(); l < min {
			min = l
		}
	}
	return role.Level() >= min
}

// AuthorizeOwnership permits the resource owner or any admin-or-above role.
func AuthorizeOwnership(requesterRole entity.Role, requesterID, resourceOwnerID int64) bool {
	if requesterRole.Level() >= entity.RoleAdmin.Level() {
		return true
	}
	return requesterID == resourceOwnerID
}
