package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yekiapp/yeki/core"
	"github.com/yekiapp/yeki/core/authz"
	"github.com/yekiapp/yeki/core/user"
	emailsvc "github.com/yekiapp/yeki/services/email"
	inmemdb "github.com/yekiapp/yeki/storage/database/inmem"
	"github.com/yekiapp/yeki/testutil"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type env struct {
	svc     *user.Service
	repo    user.Repository
	mailSvc *emailsvc.ConsoleServiceMock
}

func setup(t *testing.T) *env {
	t.Cleanup(user.SetNowFunc(func() time.Time { return now }))

	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)
	repo := inmemdb.NewUserRepository(inmemdb.New())
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	return &env{svc: user.NewService(repo, mailSvc, logger), repo: repo, mailSvc: mailSvc}
}

func newUser(uname, role string) user.NewUser {
	return user.NewUser{
		Name:            "Jane Doe",
		Username:        uname,
		Email:           uname + "@yeki.test",
		Password:        testutil.Password,
		PasswordConfirm: testutil.Password,
		Role:            role,
	}
}

func TestNewUser_Validate(t *testing.T) {
	e := setup(t)
	validate, translator := testutil.NewValidator()
	testutil.CreateUser(t, e.repo, "Taken", "taken_user", "taken@yeki.test", "", authz.RoleLearner, true)

	tests := []struct {
		name       string
		nu         user.NewUser
		wantFields map[string]string
	}{
		{name: "valid", nu: newUser("  Jane_Doe ", "Apprenant")},
		{
			name:       "unknown role",
			nu:         newUser("jane_doe", "king"),
			wantFields: map[string]string{"role": "invalid role"},
		},
		{
			name: "password mismatch",
			nu: func() user.NewUser {
				nu := newUser("jane_doe", "learner")
				nu.PasswordConfirm = "lol"
				return nu
			}(),
			wantFields: map[string]string{"password_confirm": ""},
		},
		{
			name:       "username taken",
			nu:         newUser("TAKEN_USER", "learner"),
			wantFields: map[string]string{"username": "a user with this username already exists"},
		},
		{
			name: "email taken",
			nu: func() user.NewUser {
				nu := newUser("jane_doe", "learner")
				nu.Email = "Taken@yeki.test"
				return nu
			}(),
			wantFields: map[string]string{"email": "a user with this email already exists"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := tt.nu
			err := nu.Validate(context.Background(), validate, e.svc)
			if tt.wantFields == nil {
				require.NoError(t, err)
				assert.Equal(t, "jane_doe", nu.Username)
				assert.Equal(t, "apprenant", nu.Role)
				return
			}
			err = core.TranslateValidationErrors(err, translator)
			var vErr *core.ValidationError
			require.True(t, errors.As(err, &vErr), "got %v", err)
			got := make(map[string]string, len(vErr.Fields))
			for _, f := range vErr.Fields {
				got[f.Field] = f.Error
			}
			for field, msg := range tt.wantFields {
				if assert.Contains(t, got, field) && msg != "" {
					assert.Equal(t, msg, got[field], field)
				}
			}
		})
	}
}

func TestService_Register(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	learner, err := e.svc.Register(ctx, newUser("jane_doe", "apprenant"))
	require.NoError(t, err)
	assert.Equal(t, authz.RoleLearner, learner.Role)
	assert.True(t, learner.IsActive)
	assert.Equal(t, now, learner.CreatedAt)
	assert.NoError(t, learner.CheckPassword(testutil.Password))
	assert.Empty(t, e.mailSvc.SentMessages())

	teacher, err := e.svc.Register(ctx, newUser("john_doe", "enseignant_principal"))
	require.NoError(t, err)
	assert.Equal(t, authz.RoleLeadTeacher, teacher.Role)
	assert.False(t, teacher.IsActive)
	msgs := e.mailSvc.SentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "john_doe@yeki.test", msgs[0].To[0].Address)
	assert.Contains(t, msgs[0].Subject, "Account pending activation")

	_, err = e.svc.Register(ctx, newUser("jim_doe", "king"))
	assert.Equal(t, core.KindValidation, core.KindOf(err))
}

func TestService_ResolveActor(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	active := testutil.CreateUser(t, e.repo, "Active", "active_user", "active@yeki.test", "", authz.RoleUnitHead, true)
	inactive := testutil.CreateUser(t, e.repo, "Inactive", "inactive_user", "inactive@yeki.test", "", authz.RoleLeadTeacher, false)
	roleless := testutil.CreateUser(t, e.repo, "Roleless", "roleless_user", "roleless@yeki.test", "", authz.RoleNone, true)

	actor, usr, err := e.svc.ResolveActor(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, authz.Actor{UserID: active.ID, Role: authz.RoleUnitHead}, actor)
	assert.Equal(t, active.ID, usr.ID)

	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{name: "empty id", wantErr: user.ErrUnknownActor},
		{name: "unknown", id: "unknown", wantErr: user.ErrUnknownActor},
		{name: "inactive", id: inactive.ID, wantErr: user.ErrAccountInactive},
		{name: "no role", id: roleless.ID, wantErr: authz.ErrInvalidActor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := e.svc.ResolveActor(ctx, tt.id)
			assert.Equal(t, tt.wantErr, err)
			assert.Equal(t, core.KindInvalidActor, core.KindOf(err))
		})
	}
}

func TestService_Activate(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, e.repo, "Admin", "the_admin", "admin@yeki.test", "", authz.RoleAdmin, true)
	progAdmin := testutil.CreateUser(t, e.repo, "Prog", "prog_admin", "prog@yeki.test", "", authz.RoleDepartmentHeadAdmin, true)
	teacher := testutil.CreateUser(t, e.repo, "Teacher", "a_teacher", "teacher@yeki.test", "", authz.RoleAssistantTeacher, false)

	_, err := e.svc.Activate(ctx, progAdmin.Actor(), teacher.ID)
	assert.Equal(t, core.KindPermissionDenied, core.KindOf(err))

	_, err = e.svc.Activate(ctx, admin.Actor(), "unknown")
	assert.Equal(t, user.ErrNotFound, err)

	usr, err := e.svc.Activate(ctx, admin.Actor(), teacher.ID)
	require.NoError(t, err)
	assert.True(t, usr.IsActive)
	assert.Equal(t, now, usr.UpdatedAt)
	require.Len(t, e.mailSvc.SentMessages(), 1)

	_, err = e.svc.Activate(ctx, admin.Actor(), teacher.ID)
	assert.Equal(t, user.ErrAlreadyActivated, err)
}

func TestService_ChangeRole(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, e.repo, "Admin", "the_admin", "admin@yeki.test", "", authz.RoleAdmin, true)
	progAdmin := testutil.CreateUser(t, e.repo, "Prog", "prog_admin", "prog@yeki.test", "", authz.RoleDepartmentHeadAdmin, true)
	otherProgAdmin := testutil.CreateUser(t, e.repo, "Prog 2", "prog_admin2", "prog2@yeki.test", "", authz.RoleDepartmentHeadAdmin, true)
	head := testutil.CreateUser(t, e.repo, "Head", "unit_head", "head@yeki.test", "", authz.RoleUnitHead, true)
	teacher := testutil.CreateUser(t, e.repo, "Teacher", "a_teacher", "teacher@yeki.test", "", authz.RoleAssistantTeacher, true)

	tests := []struct {
		name     string
		actor    authz.Actor
		id       string
		role     authz.Role
		wantKind core.Kind
	}{
		{name: "invalid role", actor: admin.Actor(), id: teacher.ID, role: authz.RoleNone, wantKind: core.KindValidation},
		{name: "unit head cannot", actor: head.Actor(), id: teacher.ID, role: authz.RoleLeadTeacher, wantKind: core.KindPermissionDenied},
		{name: "unknown user", actor: admin.Actor(), id: "unknown", role: authz.RoleLeadTeacher, wantKind: core.KindNotFound},
		{name: "program admin: peer", actor: progAdmin.Actor(), id: otherProgAdmin.ID, role: authz.RoleLearner, wantKind: core.KindPermissionDenied},
		{name: "program admin: to own rank", actor: progAdmin.Actor(), id: teacher.ID, role: authz.RoleDepartmentHeadAdmin, wantKind: core.KindPermissionDenied},
		{name: "program admin: promote", actor: progAdmin.Actor(), id: teacher.ID, role: authz.RoleUnitHead},
		{name: "admin: promote to program admin", actor: admin.Actor(), id: head.ID, role: authz.RoleDepartmentHeadAdmin},
		{name: "admin: cannot touch admins", actor: admin.Actor(), id: admin.ID, role: authz.RoleLearner, wantKind: core.KindPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, err := e.svc.ChangeRole(ctx, tt.actor, tt.id, tt.role)
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, core.KindOf(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.role, usr.Role)
		})
	}
}

func TestService_adminOperations(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	admin, err := e.svc.CreateAdmin(ctx, newUser("root_admin", "learner"))
	require.NoError(t, err)
	assert.Equal(t, authz.RoleAdmin, admin.Role)
	assert.True(t, admin.IsActive)

	teacher := testutil.CreateUser(t, e.repo, "Teacher", "a_teacher", "teacher@yeki.test", "old", authz.RoleLeadTeacher, false)

	usr, err := e.svc.ActivateByUsername(ctx, "Teacher@yeki.test")
	require.NoError(t, err)
	assert.True(t, usr.IsActive)
	_, err = e.svc.ActivateByUsername(ctx, "a_teacher")
	assert.Equal(t, user.ErrAlreadyActivated, err)
	_, err = e.svc.ActivateByUsername(ctx, "nobody")
	assert.Equal(t, user.ErrNotFound, err)

	usr, err = e.svc.SetPassword(ctx, "A_TEACHER", "new")
	require.NoError(t, err)
	assert.NoError(t, usr.CheckPassword("new"))
	assert.NotEqual(t, teacher.PasswordHash, usr.PasswordHash)
}

func TestService_lists(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	testutil.CreateUser(t, e.repo, "Learner", "a_learner", "learner@yeki.test", "", authz.RoleLearner, true)
	testutil.CreateUser(t, e.repo, "Bob", "bob_teacher", "bob@yeki.test", "", authz.RoleLeadTeacher, true)
	testutil.CreateUser(t, e.repo, "Alice", "alice_head", "alice@yeki.test", "", authz.RoleUnitHead, true)

	teachers, err := e.svc.ListTeachers(ctx)
	require.NoError(t, err)
	require.Len(t, teachers, 2)
	assert.Equal(t, "Alice", teachers[0].Name)
	assert.Equal(t, "Bob", teachers[1].Name)

	heads, err := e.svc.ListUnitHeads(ctx)
	require.NoError(t, err)
	require.Len(t, heads, 1)
	assert.Equal(t, "Alice", heads[0].Name)

	found, err := e.svc.Query(ctx, user.QueryFilter{Search: " BOB@"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "bob_teacher", found[0].Username)
}
