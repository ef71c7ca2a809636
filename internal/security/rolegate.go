// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import "sort"

// =============================================================================
// ROLES AND PERMISSIONS
// =============================================================================

// Role is the coarse class of the current identity.
type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleUser      Role = "user"
	RoleBusiness  Role = "business"
	RoleAdmin     Role = "admin"
)

// Permission names a gated affordance.
type Permission string

const (
	PermProfileView   Permission = "profile:view"
	PermFavorites     Permission = "cards:favorites"
	PermMyCards       Permission = "cards:mine"
	PermCardLike      Permission = "cards:like"
	PermCardCreate    Permission = "cards:create"
	PermCRMView       Permission = "crm:view"
	PermAdminControls Permission = "admin:controls"
)

// rolePermissions is the permission matrix. Business and admin rights
// require confirmed profile attributes.
var rolePermissions = map[Role][]Permission{
	RoleAnonymous: {},
	RoleUser:      {PermProfileView, PermFavorites, PermMyCards, PermCardLike},
	RoleBusiness:  {PermProfileView, PermFavorites, PermMyCards, PermCardLike, PermCardCreate},
	RoleAdmin: {
		PermProfileView, PermFavorites, PermMyCards, PermCardLike, PermCardCreate,
		PermCRMView, PermAdminControls,
	},
}

// =============================================================================
// ROLE VIEW
// =============================================================================

// RoleView is derived from a session on every read and never stored.
type RoleView struct {
	SignedIn            bool `json:"signed_in"`
	CanSeeProfile       bool `json:"can_see_profile"`
	CanSeeCRM           bool `json:"can_see_crm"`
	CanSeeAdminControls bool `json:"can_see_admin_controls"`
	CanManageCards      bool `json:"can_manage_cards"`

	role Role
}

// View derives the RoleView for sess. A nil session yields the all-false
// view. Admin and business rights are granted only from attributes that
// ConfirmAttributes has matched to the token subject; token claims never
// grant them.
func View(sess *Session) RoleView {
	role := RoleOf(sess)
	return RoleView{
		SignedIn:            role != RoleAnonymous,
		CanSeeProfile:       role != RoleAnonymous,
		CanSeeCRM:           role == RoleAdmin,
		CanSeeAdminControls: role == RoleAdmin,
		CanManageCards:      role == RoleBusiness || role == RoleAdmin,
		role:                role,
	}
}

// RoleOf classifies sess.
func RoleOf(sess *Session) Role {
	switch {
	case sess == nil:
		return RoleAnonymous
	case !sess.Confirmed() || sess.Attributes.SubjectID != sess.Identity.Subject:
		return RoleUser
	case sess.Attributes.Admin:
		return RoleAdmin
	case sess.Attributes.Business:
		return RoleBusiness
	default:
		return RoleUser
	}
}

// Role returns the role the view was derived from.
func (v RoleView) Role() Role {
	if v.role == "" {
		return RoleAnonymous
	}
	return v.role
}

// Allows reports whether the view grants p.
func (v RoleView) Allows(p Permission) bool {
	for _, granted := range rolePermissions[v.Role()] {
		if granted == p {
			return true
		}
	}
	return false
}

// Permissions lists the granted permissions in sorted order.
func (v RoleView) Permissions() []Permission {
	perms := append([]Permission(nil), rolePermissions[v.Role()]...)
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}
