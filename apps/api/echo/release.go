package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/yekiapp/yeki/core"
	"github.com/yekiapp/yeki/core/release"
)

type releaseApi struct {
	svc          *release.Service
	validate     *validator.Validate
	mediaBaseURL string
}

func registerReleaseAPI(g *echo.Group, jwt, actor echo.MiddlewareFunc, deps *Deps) {
	api := releaseApi{
		svc:          deps.ReleaseSvc,
		validate:     deps.Validate,
		mediaBaseURL: deps.Conf.MediaBaseURL,
	}

	rg := g.Group("/releases")

	// un-authed endpoints
	rg.GET("/latest", api.latest)

	// authed endpoints
	rg.POST("", api.publish, jwt, actor)
}

func (api *releaseApi) latest(ctx echo.Context) error {
	rel, err := api.svc.Latest(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "finding latest release")
	}
	rel.APKURL = core.MediaURL(api.mediaBaseURL, rel.APKURL)
	return ctx.JSON(http.StatusOK, rel)
}

func (api *releaseApi) publish(ctx echo.Context) error {
	var data release.NewRelease
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRelease")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rel, err := api.svc.Publish(ctx.Request().Context(), getContextActor(ctx), data)
	if err != nil {
		return errors.Wrap(err, "publishing release")
	}
	rel.APKURL = core.MediaURL(api.mediaBaseURL, rel.APKURL)
	return ctx.JSON(http.StatusCreated, rel)
}
