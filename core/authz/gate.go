package authz

import (
	"fmt"
	"strings"

	"github.com/yekiapp/yeki/core"
)

var (
	ErrInvalidActor     = core.NewError(core.KindInvalidActor, "invalid actor")
	ErrPermissionDenied = core.NewError(core.KindPermissionDenied, "permission denied")
)

// Actor is the resolved identity performing an operation.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) Valid() bool {
	return a.UserID != "" && a.Role.Valid()
}

// Is reports whether the actor is the user with the given ID.
func (a Actor) Is(userID string) bool {
	return userID != "" && a.UserID == userID
}

// Relation is a named ownership predicate, already evaluated.
type Relation struct {
	Name  string
	Holds bool
}

// Relate builds a Relation from a name and its truth value.
func Relate(name string, holds bool) Relation {
	return Relation{Name: name, Holds: holds}
}

// IsProgramAdmin holds when the actor administers the program.
func IsProgramAdmin(actor Actor, programAdminID string) Relation {
	return Relate("program admin", actor.Is(programAdminID))
}

// IsDepartmentHead holds when the actor heads the department.
func IsDepartmentHead(actor Actor, departmentHeadID string) Relation {
	return Relate("department head", actor.Is(departmentHeadID))
}

// IsLeadTeacher holds when the actor leads the course.
func IsLeadTeacher(actor Actor, leadTeacherID string) Relation {
	return Relate("course lead teacher", actor.Is(leadTeacherID))
}

// IsAssistant holds when the actor is one of the course assistants.
func IsAssistant(actor Actor, assistantIDs []string) Relation {
	for _, id := range assistantIDs {
		if actor.Is(id) {
			return Relate("course assistant", true)
		}
	}
	return Relate("course assistant", false)
}

// OutranksRole holds when the actor has a strictly higher priority than role.
func OutranksRole(actor Actor, role Role) Relation {
	return Relate("outranking "+role.String(), actor.Role.Outranks(role))
}

// Authorize checks that the actor is valid, holds one of the required roles and that
// every relation holds. It has no side effects.
func Authorize(actor Actor, required []Role, relations ...Relation) error {
	if !actor.Valid() {
		return ErrInvalidActor
	}
	if !HasRole(actor, required...) {
		return core.NewError(core.KindPermissionDenied, fmt.Sprintf(
			"permission denied: role %s is not one of [%s]", actor.Role, joinRoles(required),
		))
	}
	for _, rel := range relations {
		if !rel.Holds {
			return core.NewError(core.KindPermissionDenied, "permission denied: actor is not "+rel.Name)
		}
	}
	return nil
}

// Grant lets actors holding Role through when all of its Relations hold.
type Grant struct {
	Role      Role
	Relations []Relation
}

func Allow(role Role, relations ...Relation) Grant {
	return Grant{Role: role, Relations: relations}
}

// AuthorizeGrants checks the actor against the grant of its role. Relations of a grant
// only count for actors holding that grant's role. Grants should name distinct roles.
func AuthorizeGrants(actor Actor, grants ...Grant) error {
	roles := make([]Role, 0, len(grants))
	for _, g := range grants {
		roles = append(roles, g.Role)
	}
	for _, g := range grants {
		if actor.Role == g.Role {
			return Authorize(actor, roles, g.Relations...)
		}
	}
	return Authorize(actor, roles)
}

// HasRole reports whether the actor holds one of roles.
func HasRole(actor Actor, roles ...Role) bool {
	for _, r := range roles {
		if actor.Role == r {
			return true
		}
	}
	return false
}

func joinRoles(roles []Role) string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.String())
	}
	return strings.Join(names, ", ")
}
