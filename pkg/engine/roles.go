package engine

import (
	"context"
	"fmt"
	"strings"
)

// RoleResolver expands role identifiers into user identifiers. It stands in
// for the identity system.
type RoleResolver interface {
	ResolveRoles(ctx context.Context, roles []string) ([]string, error)
}

type noRoles struct{}

func (noRoles) ResolveRoles(context.Context, []string) ([]string, error) { return nil, nil }

// StaticRoles resolves roles from a fixed role to members table.
type StaticRoles map[string][]string

func (s StaticRoles) ResolveRoles(_ context.Context, roles []string) ([]string, error) {
	var users []string

	for _, role := range roles {
		users = append(users, s[role]...)
	}

	return users, nil
}

// ParseStaticRoles parses "role=user1,user2" entries.
func ParseStaticRoles(entries []string) (StaticRoles, error) {
	roles := make(StaticRoles, len(entries))

	for _, entry := range entries {
		role, members, ok := strings.Cut(entry, "=")
		role = strings.TrimSpace(role)

		if !ok || role == "" {
			return nil, fmt.Errorf("%w: role entry %q must look like role=user1,user2", ErrInvalidRequest, entry)
		}

		for member := range strings.SplitSeq(members, ",") {
			if member = strings.TrimSpace(member); member != "" {
				roles[role] = append(roles[role], member)
			}
		}
	}

	return roles, nil
}
