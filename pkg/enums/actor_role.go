package enums

import (
	"fmt"
	"strings"
)

// ActorRole identifies who is calling the API.
type ActorRole string

const (
	ActorRoleAdmin     ActorRole = "admin"
	ActorRoleVendor    ActorRole = "vendor"
	ActorRoleBudtender ActorRole = "budtender"
)

var validActorRoles = []ActorRole{
	ActorRoleAdmin,
	ActorRoleVendor,
	ActorRoleBudtender,
}

func (r ActorRole) String() string {
	return string(r)
}

func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

func ParseActorRole(value string) (ActorRole, error) {
	role := ActorRole(strings.ToLower(strings.TrimSpace(value)))
	if !role.IsValid() {
		return "", fmt.Errorf("invalid actor role %q", value)
	}
	return role, nil
}
