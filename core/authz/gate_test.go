package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yekiapp/yeki/core"
)

func TestAuthorize(t *testing.T) {
	owner := "owner-id"

	// every role x ownership combination against a "lead teacher owning the course" rule
	for _, role := range append([]Role{RoleNone}, AllRoles...) {
		for _, owns := range []bool{true, false} {
			actor := Actor{UserID: "someone", Role: role}
			if owns {
				actor.UserID = owner
			}

			err := Authorize(actor, []Role{RoleLeadTeacher}, IsLeadTeacher(actor, owner))

			switch {
			case role == RoleNone:
				assert.Equal(t, core.KindInvalidActor, core.KindOf(err), "role=%v owns=%v", role, owns)
			case role == RoleLeadTeacher && owns:
				assert.NoError(t, err, "role=%v owns=%v", role, owns)
			default:
				assert.Equal(t, core.KindPermissionDenied, core.KindOf(err), "role=%v owns=%v", role, owns)
			}
		}
	}
}

func TestAuthorize_deterministic(t *testing.T) {
	actor := Actor{UserID: "u1", Role: RoleUnitHead}
	rels := []Relation{IsDepartmentHead(actor, "u2")}

	first := Authorize(actor, []Role{RoleUnitHead}, rels...)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first.Error(), Authorize(actor, []Role{RoleUnitHead}, rels...).Error())
	}
}

func TestAuthorize_invalidActor(t *testing.T) {
	tests := []struct {
		name  string
		actor Actor
	}{
		{name: "zero actor", actor: Actor{}},
		{name: "no user", actor: Actor{Role: RoleAdmin}},
		{name: "unknown role", actor: Actor{UserID: "u1", Role: Role(42)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.actor, AllRoles)
			assert.Equal(t, core.KindInvalidActor, core.KindOf(err))
		})
	}
}

func TestAuthorizeGrants(t *testing.T) {
	lead := Actor{UserID: "u1", Role: RoleLeadTeacher}
	assistant := Actor{UserID: "u2", Role: RoleAssistantTeacher}
	grants := func(actor Actor) []Grant {
		return []Grant{
			Allow(RoleLeadTeacher, IsLeadTeacher(actor, "u1")),
			Allow(RoleAssistantTeacher, IsAssistant(actor, []string{"u2"})),
		}
	}

	require.NoError(t, AuthorizeGrants(lead, grants(lead)...))
	require.NoError(t, AuthorizeGrants(assistant, grants(assistant)...))
	require.NoError(t, AuthorizeGrants(Actor{UserID: "u9", Role: RoleAdmin}, Allow(RoleAdmin)))

	// an assistant relation does not open the door to a lead teacher
	other := Actor{UserID: "u2", Role: RoleLeadTeacher}
	err := AuthorizeGrants(other, grants(other)...)
	assert.Equal(t, core.KindPermissionDenied, core.KindOf(err))
	assert.Equal(t, "permission denied: actor is not course lead teacher", err.Error())

	err = AuthorizeGrants(Actor{UserID: "u1", Role: RoleUnitHead}, grants(lead)...)
	assert.Equal(t, core.KindPermissionDenied, core.KindOf(err))
	assert.Equal(t, "permission denied: role unit_head is not one of [lead_teacher, assistant_teacher]", err.Error())

	err = AuthorizeGrants(Actor{Role: RoleLeadTeacher}, grants(lead)...)
	assert.Equal(t, core.KindInvalidActor, core.KindOf(err))
}

func TestOutranksRole(t *testing.T) {
	for _, actorRole := range AllRoles {
		for _, target := range AllRoles {
			actor := Actor{UserID: "u1", Role: actorRole}
			assert.Equal(t, actorRole > target, OutranksRole(actor, target).Holds, "%v vs %v", actorRole, target)
		}
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{in: "admin", want: RoleAdmin},
		{in: " Department_Head_Admin ", want: RoleDepartmentHeadAdmin},
		{in: "unit_head", want: RoleUnitHead},
		{in: "lead_teacher", want: RoleLeadTeacher},
		{in: "assistant_teacher", want: RoleAssistantTeacher},
		{in: "learner", want: RoleLearner},
		{in: "enseignant_admin", want: RoleDepartmentHeadAdmin},
		{in: "enseignant_cadre", want: RoleUnitHead},
		{in: "enseignant_principal", want: RoleLeadTeacher},
		{in: "enseignant", want: RoleAssistantTeacher},
		{in: "apprenant", want: RoleLearner},
		{in: "", wantErr: true},
		{in: "superuser", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRole_text(t *testing.T) {
	for _, r := range AllRoles {
		b, err := r.MarshalText()
		require.NoError(t, err)

		var got Role
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, r, got)
	}
	_, err := RoleNone.MarshalText()
	assert.Error(t, err)
}
