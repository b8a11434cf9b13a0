package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/yekiapp/yeki/core"
	"github.com/yekiapp/yeki/core/authz"
	"github.com/yekiapp/yeki/core/user"
	"github.com/yekiapp/yeki/storage/tokenstore"
)

type authApi struct {
	svc      *user.Service
	auth     *authenticator
	tokens   tokenstore.Store
	validate *validator.Validate
}

func registerAuthAPI(g *echo.Group, jwt, actor echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := authApi{
		svc:      deps.UserSvc,
		auth:     auth,
		tokens:   deps.Tokens,
		validate: deps.Validate,
	}

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/register", api.register)
	ag.POST("/login", api.login)

	// authed endpoints
	ag.POST("/logout", api.logout, jwt)
	ag.POST("/token-refresh", api.refreshToken, jwt, actor)
}

type userApi struct {
	svc      *user.Service
	validate *validator.Validate
}

func registerUserAPI(g *echo.Group, jwt, actor echo.MiddlewareFunc, deps *Deps) {
	api := userApi{
		svc:      deps.UserSvc,
		validate: deps.Validate,
	}

	ug := g.Group("/users", jwt, actor)
	ug.GET("/me", api.me)
	ug.GET("/roles", api.queryRoles)
	ug.GET("/teachers", api.queryTeachers)
	ug.GET("/unit-heads", api.queryUnitHeads)
	ug.PUT("/:id/activate", api.activate)
	ug.PUT("/:id/role", api.changeRole)
}

// Auth Handlers

func (api *authApi) register(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering user")
	}
	token, err := api.auth.tokenFor(usr)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusCreated, AuthResponse{Token: token, User: usr, Role: usr.Role})
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, token, err := api.auth.authenticate(ctx.Request().Context(), data.Username, data.Password, api.svc)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}

	return ctx.JSON(http.StatusOK, AuthResponse{Token: token, User: usr, Role: usr.Role})
}

func (api *authApi) logout(ctx echo.Context) error {
	if err := api.auth.revoke(ctx, api.tokens); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refresh(ctx)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, AuthResponse{Token: token, User: usr, Role: usr.Role})
}

// User Handlers

func (api *userApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, authz.RoleInfos())
}

func (api *userApi) queryTeachers(ctx echo.Context) error {
	users, err := api.svc.ListTeachers(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing teachers")
	}
	return ctx.JSON(http.StatusOK, usersOrEmpty(users))
}

func (api *userApi) queryUnitHeads(ctx echo.Context) error {
	users, err := api.svc.ListUnitHeads(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing unit heads")
	}
	return ctx.JSON(http.StatusOK, usersOrEmpty(users))
}

func (api *userApi) activate(ctx echo.Context) error {
	usr, err := api.svc.Activate(ctx.Request().Context(), getContextActor(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "activating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) changeRole(ctx echo.Context) error {
	var data user.ChangeRole
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangeRole")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	role, err := authz.ParseRole(data.Role)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "role", Error: "invalid role"})
	}

	usr, err := api.svc.ChangeRole(ctx.Request().Context(), getContextActor(ctx), ctx.Param("id"), role)
	if err != nil {
		return errors.Wrap(err, "changing user role")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func usersOrEmpty(users []user.User) []user.User {
	if users == nil {
		return []user.User{}
	}
	return users
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	// AuthResponse is returned on registration, login and token refresh.
	AuthResponse struct {
		Token string     `json:"token"`
		User  user.User  `json:"user"`
		Role  authz.Role `json:"role"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}
