package echoapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yekiapp/yeki/core/authz"
	"github.com/yekiapp/yeki/core/user"
	"github.com/yekiapp/yeki/testutil"
)

func Test_authApi_register(t *testing.T) {
	env := setup(t)
	env.createUser(t, "taken_user", authz.RoleLearner)

	newUser := func(uname, email, role string) user.NewUser {
		return user.NewUser{
			Name:            "New User",
			Username:        uname,
			Email:           email,
			Password:        testutil.Password,
			PasswordConfirm: testutil.Password,
			Role:            role,
			Profile:         user.Profile{Cursus: "Science", Level: "L1"},
		}
	}

	t.Run("learner is active and can log in", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/auth/register", marchallObj(t, newUser("new_learner", "Learner@Yeki.test", "learner")))
		env.serve(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp AuthResponse
		unmarshalBody(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, authz.RoleLearner, resp.Role)
		assert.True(t, resp.User.IsActive)
		assert.Equal(t, "learner@yeki.test", resp.User.Email)
		assert.Equal(t, "Science", resp.User.Profile.Cursus)

		req, rec = newAuthRequest(http.MethodGet, "/v1/users/me", resp.Token)
		env.serve(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("staff waits for activation", func(t *testing.T) {
		env.mailSvc.Reset()
		req, rec := newRequest(http.MethodPost, "/v1/auth/register", marchallObj(t, newUser("new_teacher", "teacher@yeki.test", "enseignant")))
		env.serve(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp AuthResponse
		unmarshalBody(t, rec, &resp)
		assert.Equal(t, authz.RoleAssistantTeacher, resp.Role)
		assert.False(t, resp.User.IsActive)
		assert.Len(t, env.mailSvc.SentMessages(), 1)

		req, rec = newAuthRequest(http.MethodGet, "/v1/users/me", resp.Token)
		env.serve(req, rec)
		checkError(t, rec, http.StatusForbidden, "invalid_actor")
	})

	t.Run("invalid data", func(t *testing.T) {
		data := newUser("short", "not-an-email", "wizard")
		data.PasswordConfirm = "nope"
		req, rec := newRequest(http.MethodPost, "/v1/auth/register", marchallObj(t, data))
		env.serve(req, rec)

		resp := checkError(t, rec, http.StatusBadRequest, "validation")
		assert.Contains(t, resp.Fields, "username")
		assert.Contains(t, resp.Fields, "email")
		assert.Contains(t, resp.Fields, "role")
		assert.Contains(t, resp.Fields, "password_confirm")
	})

	t.Run("weak password", func(t *testing.T) {
		data := newUser("weak_user", "weak@yeki.test", "learner")
		data.Password, data.PasswordConfirm = "12345678", "12345678"
		req, rec := newRequest(http.MethodPost, "/v1/auth/register", marchallObj(t, data))
		env.serve(req, rec)

		resp := checkError(t, rec, http.StatusBadRequest, "validation")
		assert.Equal(t, "password cannot be entirely numeric", resp.Fields["password"])
	})

	t.Run("duplicate username", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/auth/register", marchallObj(t, newUser("Taken_User", "other@yeki.test", "learner")))
		env.serve(req, rec)

		resp := checkError(t, rec, http.StatusBadRequest, "validation")
		assert.Equal(t, map[string]string{"username": "a user with this username already exists"}, resp.Fields)
	})
}

func Test_authApi_login(t *testing.T) {
	env := setup(t)
	active := env.createUser(t, "active_user", authz.RoleLeadTeacher)
	env.createUser(t, "inactive_user", authz.RoleLeadTeacher, false)

	login := func(uname, pwd string) []byte {
		return marchallObj(t, LoginRequest{Username: uname, Password: pwd})
	}

	tests := []httpTest{
		{
			name: "missing credentials", method: http.MethodPost, path: "/v1/auth/login", body: login("", ""),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown user", method: http.MethodPost, path: "/v1/auth/login", body: login("ghost_user", testutil.Password),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, ErrorResponse{Kind: "validation", Error: "authentication failed"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/auth/login", body: login("active_user", "Wr0ng$pass"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, ErrorResponse{Kind: "validation", Error: "authentication failed"}),
		},
		{
			name: "inactive user", method: http.MethodPost, path: "/v1/auth/login", body: login("inactive_user", testutil.Password),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, ErrorResponse{Kind: "permission_denied", Error: "account deactivated"}),
		},
	}
	runHTTPTests(t, env, tests)

	t.Run("missing credential fields", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/auth/login", login("", ""))
		env.serve(req, rec)
		resp := checkError(t, rec, http.StatusBadRequest, "validation")
		assert.Equal(t, map[string]string{"username": "this field is required", "password": "this field is required"}, resp.Fields)
	})

	for _, ident := range []string{"ACTIVE_USER", "active_user@yeki.test"} {
		t.Run("success with "+ident, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/auth/login", login(ident, testutil.Password))
			env.serve(req, rec)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp AuthResponse
			unmarshalBody(t, rec, &resp)
			assert.NotEmpty(t, resp.Token)
			assert.Equal(t, active.ID, resp.User.ID)
			assert.Equal(t, authz.RoleLeadTeacher, resp.Role)
			assert.False(t, resp.User.LastLogin.IsZero())
		})
	}
}

func Test_authApi_logout(t *testing.T) {
	env := setup(t)
	usr := env.createUser(t, "some_user", authz.RoleLearner)
	token := env.getToken(t, usr)
	otherToken := env.getToken(t, usr)

	tests := []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/v1/auth/logout", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "logout", method: http.MethodPost, path: "/v1/auth/logout", token: token, wantCode: http.StatusNoContent},
		{
			name: "revoked token is rejected", path: "/v1/users/me", token: token, wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, ErrorResponse{Kind: kindUnauthenticated, Error: "invalid or expired jwt"}),
		},
		{name: "other tokens still work", path: "/v1/users/me", token: otherToken, wantCode: http.StatusOK},
	}
	runHTTPTests(t, env, tests)
}

func Test_authApi_refreshToken(t *testing.T) {
	env := setup(t)
	usr := env.createUser(t, "some_user", authz.RoleLearner)
	token := env.getToken(t, usr)

	t.Run("within the refresh window", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/auth/token-refresh", token)
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp AuthResponse
		unmarshalBody(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.NotEqual(t, token, resp.Token)
		assert.Equal(t, usr.ID, resp.User.ID)
	})

	t.Run("refresh window expired", func(t *testing.T) {
		nowFunc = func() time.Time { return time.Now().Add(env.conf.Server.JWTRefreshExpirationDelta + time.Minute) }
		defer func() { nowFunc = time.Now }()

		req, rec := newAuthRequest(http.MethodPost, "/v1/auth/token-refresh", token)
		env.serve(req, rec)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, ErrorResponse{Kind: "permission_denied", Error: "refresh has expired"}),
		}, rec)
	})
}

func Test_userApi(t *testing.T) {
	env := setup(t)
	admin := env.createUser(t, "the_admin", authz.RoleAdmin)
	progAdmin := env.createUser(t, "prog_admin", authz.RoleDepartmentHeadAdmin)
	unitHead := env.createUser(t, "unit_head", authz.RoleUnitHead)
	lead := env.createUser(t, "lead_teacher", authz.RoleLeadTeacher)
	learner := env.createUser(t, "the_learner", authz.RoleLearner)
	pending := env.createUser(t, "pending_teacher", authz.RoleAssistantTeacher, false)

	adminToken := env.getToken(t, admin)
	progAdminToken := env.getToken(t, progAdmin)

	t.Run("teachers", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/teachers", env.getToken(t, learner))
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var users []user.User
		unmarshalBody(t, rec, &users)
		ids := make([]string, 0, len(users))
		for _, u := range users {
			ids = append(ids, u.ID)
		}
		assert.ElementsMatch(t, []string{admin.ID, progAdmin.ID, unitHead.ID, lead.ID, pending.ID}, ids)
	})

	t.Run("unit heads", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/unit-heads", adminToken)
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var users []user.User
		unmarshalBody(t, rec, &users)
		require.Len(t, users, 1)
		assert.Equal(t, unitHead.ID, users[0].ID)
	})

	t.Run("activate", func(t *testing.T) {
		path := "/v1/users/" + pending.ID + "/activate"

		req, rec := newAuthRequest(http.MethodPut, path, progAdminToken)
		env.serve(req, rec)
		checkError(t, rec, http.StatusForbidden, "permission_denied")

		env.mailSvc.Reset()
		req, rec = newAuthRequest(http.MethodPut, path, adminToken)
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var usr user.User
		unmarshalBody(t, rec, &usr)
		assert.True(t, usr.IsActive)
		assert.Len(t, env.mailSvc.SentMessages(), 1)

		req, rec = newAuthRequest(http.MethodPut, path, adminToken)
		env.serve(req, rec)
		checkError(t, rec, http.StatusBadRequest, "validation")

		req, rec = newAuthRequest(http.MethodPut, "/v1/users/unknown/activate", adminToken)
		env.serve(req, rec)
		checkError(t, rec, http.StatusNotFound, "not_found")
	})

	t.Run("change role", func(t *testing.T) {
		body := func(role string) []byte { return marchallObj(t, user.ChangeRole{Role: role}) }

		tests := []httpTest{
			{
				name: "unknown role", method: http.MethodPut, path: "/v1/users/" + lead.ID + "/role", body: body("wizard"),
				token: progAdminToken, wantCode: http.StatusBadRequest,
			},
			{
				name: "cannot grant a role at or above its own", method: http.MethodPut, path: "/v1/users/" + lead.ID + "/role",
				body: body("department_head_admin"), token: progAdminToken, wantCode: http.StatusForbidden,
			},
			{
				name: "unit head cannot change roles", method: http.MethodPut, path: "/v1/users/" + learner.ID + "/role",
				body: body("assistant_teacher"), token: env.getToken(t, unitHead), wantCode: http.StatusForbidden,
			},
			{
				name: "program admin promotes", method: http.MethodPut, path: "/v1/users/" + lead.ID + "/role",
				body: body("unit_head"), token: progAdminToken, wantCode: http.StatusOK,
			},
			{
				name: "admin demotes a program admin", method: http.MethodPut, path: "/v1/users/" + progAdmin.ID + "/role",
				body: body("lead_teacher"), token: adminToken, wantCode: http.StatusOK,
			},
		}
		runHTTPTests(t, env, tests)

		usr, err := env.usrRepo.GetUser(context.Background(), user.GetFilter{ID: lead.ID})
		require.NoError(t, err)
		assert.Equal(t, authz.RoleUnitHead, usr.Role)

		prog := testutil.CreateProgram(t, env.curRepo, "Sciences", "")
		testutil.CreateDepartment(t, env.curRepo, "Physics", prog.ID, unitHead.ID)
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+unitHead.ID+"/role", adminToken, body("lead_teacher"))
		env.serve(req, rec)
		resp := checkError(t, rec, http.StatusBadRequest, "validation", "role_in_use")
		assert.Equal(t, `user must first be released from: head of department "Physics"`, resp.Error)
	})

	t.Run("roles", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/roles", adminToken)
		env.serve(req, rec)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, authz.RoleInfos())}, rec)
	})
}
