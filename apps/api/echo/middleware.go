package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/yekiapp/yeki/core/authz"
	"github.com/yekiapp/yeki/core/user"
)

const (
	contextUserKey  = "user"
	contextActorKey = "actor"
)

var errUsrNotFoundInCtx = errors.New("user object not found in echo.Context")

// actorMiddleware resolves the token subject into an active authz.Actor.
// It must run after the jwt middleware.
func actorMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			actor, usr, err := svc.ResolveActor(ctx.Request().Context(), claims.Subject)
			if err != nil {
				return err
			}
			ctx.Set(contextUserKey, usr)
			ctx.Set(contextActorKey, actor)
			return next(ctx)
		}
	}
}

func getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errUsrNotFoundInCtx
}

// getContextActor returns the zero Actor when none was resolved, which every
// authorization check rejects.
func getContextActor(ctx echo.Context) authz.Actor {
	actor, _ := ctx.Get(contextActorKey).(authz.Actor)
	return actor
}
