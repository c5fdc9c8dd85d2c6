package rbac

import (
	"docuflex/internal/metrics"
	"docuflex/internal/store"
)

type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionShare  Action = "share"
	ActionDelete Action = "delete"
	ActionAdmin  Action = "admin"
)

// EffectiveAccess resolves the access a user has on an item. Admins are
// owners everywhere; otherwise a per-user grant wins over a department
// grant, and department grants never confer ownership.
func EffectiveAccess(user store.User, item *store.Item) store.Access {
	if item == nil {
		return store.AccessNone
	}
	if user.Role == store.RoleAdmin {
		return store.AccessOwner
	}
	if access, ok := item.Permissions[user.ID]; ok && rank(access) > 0 {
		return access
	}
	if user.Department != "" {
		switch access := item.DepartmentPermissions[user.Department]; access {
		case store.AccessWrite, store.AccessRead:
			return access
		}
	}
	return store.AccessNone
}

func CanRead(user store.User, item *store.Item) bool {
	return Satisfies(EffectiveAccess(user, item), store.AccessRead)
}

func CanWrite(user store.User, item *store.Item) bool {
	return Satisfies(EffectiveAccess(user, item), store.AccessWrite)
}

func IsOwner(user store.User, item *store.Item) bool {
	return EffectiveAccess(user, item) == store.AccessOwner
}

// Satisfies reports whether have is at least want (owner > write > read).
func Satisfies(have, want store.Access) bool {
	return rank(have) >= rank(want) && rank(have) > 0
}

func rank(a store.Access) int {
	switch a {
	case store.AccessOwner:
		return 3
	case store.AccessWrite:
		return 2
	case store.AccessRead:
		return 1
	default:
		return 0
	}
}

// Allows maps an item action to the access it requires.
func Allows(access store.Access, action Action) bool {
	switch action {
	case ActionRead:
		return Satisfies(access, store.AccessRead)
	case ActionWrite:
		return Satisfies(access, store.AccessWrite)
	case ActionShare, ActionDelete:
		return access == store.AccessOwner
	default:
		return false
	}
}

// Can checks an item action for a user and records the decision.
func Can(user store.User, item *store.Item, action Action) bool {
	var allowed bool
	if action == ActionAdmin {
		allowed = IsAdmin(user)
	} else {
		allowed = Allows(EffectiveAccess(user, item), action)
	}
	metrics.RecordPermissionCheck(string(action), allowed)
	return allowed
}

func IsAdmin(user store.User) bool {
	return user.Role == store.RoleAdmin
}

// Filter keeps the items the user can read, preserving order.
func Filter(user store.User, items []*store.Item) []*store.Item {
	out := make([]*store.Item, 0, len(items))
	for _, item := range items {
		if CanRead(user, item) {
			out = append(out, item)
		}
	}
	return out
}

func Normalize(role string) store.Role {
	switch store.Role(role) {
	case store.RoleViewer, store.RoleEditor, store.RoleAdmin:
		return store.Role(role)
	default:
		return store.RoleViewer
	}
}
