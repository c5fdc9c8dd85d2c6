package history

import (
	"fmt"
	"sort"
	"strings"
)

// Diff lists the fields that differ between two snapshots. A nil before
// means the item was created; a nil after means it was removed.
func Diff(before, after *Snapshot) []Change {
	switch {
	case before == nil && after == nil:
		return nil
	case before == nil:
		return []Change{{Field: "item", After: "created"}}
	case after == nil:
		return []Change{{Field: "item", Before: "present", After: "removed"}}
	}

	pairs := []Change{
		{Field: "name", Before: before.Name, After: after.Name},
		{Field: "owner", Before: before.OwnerID, After: after.OwnerID},
		{Field: "modified", Before: before.Modified, After: after.Modified},
		{Field: "size", Before: before.Size, After: after.Size},
		{Field: "url", Before: before.URL, After: after.URL},
		{Field: "permissions", Before: formatGrants(before.Permissions), After: formatGrants(after.Permissions)},
		{Field: "departmentPermissions", Before: formatGrants(before.DepartmentPermissions), After: formatGrants(after.DepartmentPermissions)},
	}
	changes := make([]Change, 0)
	for _, p := range pairs {
		if p.Before != p.After {
			changes = append(changes, p)
		}
	}
	if before.Content != after.Content {
		changes = append(changes, Change{Field: "content", Before: "[content]", After: "[content]"})
	}
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Field < changes[j].Field
	})
	return changes
}

func formatGrants(grants map[string]string) string {
	if len(grants) == 0 {
		return ""
	}
	keys := make([]string, 0, len(grants))
	for k := range grants {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, grants[k])
	}
	return strings.Join(parts, ",")
}
