package authz

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Role is the single role a user holds. Higher values outrank lower ones.
type Role int

// Roles
const (
	RoleNone Role = iota
	RoleLearner
	RoleAssistantTeacher
	RoleLeadTeacher
	RoleUnitHead
	RoleDepartmentHeadAdmin
	RoleAdmin
)

var (
	ErrInvalidRole = errors.New("invalid role")

	// AllRoles lists every valid role from the lowest priority to the highest.
	AllRoles = []Role{
		RoleLearner,
		RoleAssistantTeacher,
		RoleLeadTeacher,
		RoleUnitHead,
		RoleDepartmentHeadAdmin,
		RoleAdmin,
	}

	// TeacherRoles are all the staff roles (every role but learner).
	TeacherRoles = []Role{
		RoleAssistantTeacher,
		RoleLeadTeacher,
		RoleUnitHead,
		RoleDepartmentHeadAdmin,
		RoleAdmin,
	}

	roleAliases = map[string]Role{
		"enseignant_admin":     RoleDepartmentHeadAdmin,
		"enseignant_cadre":     RoleUnitHead,
		"enseignant_principal": RoleLeadTeacher,
		"enseignant":           RoleAssistantTeacher,
		"apprenant":            RoleLearner,
	}
)

func (r Role) String() string {
	switch r {
	case RoleLearner:
		return "learner"
	case RoleAssistantTeacher:
		return "assistant_teacher"
	case RoleLeadTeacher:
		return "lead_teacher"
	case RoleUnitHead:
		return "unit_head"
	case RoleDepartmentHeadAdmin:
		return "department_head_admin"
	case RoleAdmin:
		return "admin"
	default:
		return ""
	}
}

// Label is the human readable name of the role.
func (r Role) Label() string {
	switch r {
	case RoleLearner:
		return "Learner"
	case RoleAssistantTeacher:
		return "Assistant Teacher"
	case RoleLeadTeacher:
		return "Lead Teacher"
	case RoleUnitHead:
		return "Unit Head"
	case RoleDepartmentHeadAdmin:
		return "Program Admin"
	case RoleAdmin:
		return "Admin"
	default:
		return ""
	}
}

func (r Role) Valid() bool {
	return r >= RoleLearner && r <= RoleAdmin
}

func (r Role) Priority() int {
	if !r.Valid() {
		return 0
	}
	return int(r)
}

// Outranks reports whether r has a strictly higher priority than other.
func (r Role) Outranks(other Role) bool {
	return r.Priority() > other.Priority()
}

func (r Role) IsStaff() bool {
	return r.Valid() && r != RoleLearner
}

// ParseRole parses a role wire value; legacy role codes are accepted as aliases.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, r := range AllRoles {
		if r.String() == s {
			return r, nil
		}
	}
	if r, ok := roleAliases[s]; ok {
		return r, nil
	}
	return RoleNone, errors.Wrapf(ErrInvalidRole, "%q", s)
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, errors.Wrapf(ErrInvalidRole, "%d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, errors.Wrapf(ErrInvalidRole, "%d", int(r))
	}
	return r.String(), nil
}

func (r *Role) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	default:
		return fmt.Errorf("authz.Role: cannot scan %T", src)
	}
}

// RoleInfo describes a role for listings.
type RoleInfo struct {
	Name  string `json:"name"`
	Value Role   `json:"value"`
}

func RoleInfos() []RoleInfo {
	infos := make([]RoleInfo, 0, len(AllRoles))
	for _, r := range AllRoles {
		infos = append(infos, RoleInfo{Name: r.Label(), Value: r})
	}
	return infos
}
