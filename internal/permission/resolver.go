// Package permission implements the layered effective-permission
// computation described in spec.md §4.2.
package permission

import "github.com/komodo-run/komodo/internal/models"

// Resolver computes effective permission levels. It holds no state of its
// own; callers supply the user, groups and permission rows for each call.
type Resolver struct {
	// Transparent grants Read to every authenticated user on every
	// resource when true (spec.md §4.2 rule 1, §9 "transparent mode").
	Transparent bool
}

// Effective computes the user's effective permission level on a resource of
// the given kind/id/base permission, given the full permission-row set and
// the groups the user belongs to (including any `everyone` groups).
//
// Ordering matches spec.md §4.2 exactly; it early-exits at Write since
// nothing can exceed it.
func (r Resolver) Effective(
	user models.User,
	groups []models.UserGroup,
	kind models.ResourceKind,
	resourceID string,
	basePermission models.PermissionLevel,
	rows []models.Permission,
) models.PermissionLevel {
	if user.Admin {
		return models.PermissionWrite
	}
	if user.Disabled {
		return models.PermissionNone
	}

	level := models.PermissionNone
	if r.Transparent {
		level = models.Max(level, models.PermissionRead)
	}

	level = models.Max(level, basePermission)
	if level == models.PermissionWrite {
		return level
	}

	if v, ok := user.All[kind]; ok {
		level = models.Max(level, v)
		if level == models.PermissionWrite {
			return level
		}
	}

	for _, g := range groups {
		if !g.Contains(user.ID) {
			continue
		}
		if v, ok := g.All[kind]; ok {
			level = models.Max(level, v)
			if level == models.PermissionWrite {
				return level
			}
		}
	}

	memberGroupIDs := make(map[string]bool, len(groups))
	for _, g := range groups {
		if g.Contains(user.ID) {
			memberGroupIDs[g.ID] = true
		}
	}

	for _, row := range rows {
		if row.Target.Kind != kind || row.Target.ID != resourceID {
			continue
		}
		isSubject := (row.Subject.Kind == models.SubjectUser && row.Subject.ID == user.ID) ||
			(row.Subject.Kind == models.SubjectUserGroup && memberGroupIDs[row.Subject.ID])
		if !isSubject {
			continue
		}
		level = models.Max(level, row.Level)
		if level == models.PermissionWrite {
			return level
		}
	}

	return level
}

// SpecificsUnion merges the kind-dependent sub-capability sets across every
// Permission row that matched the subject/target in the Effective call
// above (spec.md §4.2 "Specifics sets are union-merged across matching
// rows").
func SpecificsUnion(rows []models.Permission, user models.User, groups []models.UserGroup, kind models.ResourceKind, resourceID string) []string {
	memberGroupIDs := make(map[string]bool, len(groups))
	for _, g := range groups {
		if g.Contains(user.ID) {
			memberGroupIDs[g.ID] = true
		}
	}

	seen := map[string]bool{}
	var out []string
	for _, row := range rows {
		if row.Target.Kind != kind || row.Target.ID != resourceID {
			continue
		}
		isSubject := (row.Subject.Kind == models.SubjectUser && row.Subject.ID == user.ID) ||
			(row.Subject.Kind == models.SubjectUserGroup && memberGroupIDs[row.Subject.ID])
		if !isSubject {
			continue
		}
		for _, s := range row.Specifics {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}
