package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/yekiapp/yeki/core/stats"
)

type statsApi struct {
	svc *stats.Service
}

func registerStatsAPI(g *echo.Group, jwt, actor echo.MiddlewareFunc, deps *Deps) {
	api := statsApi{svc: deps.StatsSvc}

	g.GET("/dashboard", api.dashboard, jwt, actor)

	sg := g.Group("/stats", jwt, actor)
	sg.GET("/global", api.global)
	sg.GET("/programs", api.programs)
	sg.GET("/program-admins/:id", api.programAdmin)
}

func (api *statsApi) dashboard(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	dash, err := api.svc.Dashboard(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (api *statsApi) global(ctx echo.Context) error {
	gs, err := api.svc.Global(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing global stats")
	}
	return ctx.JSON(http.StatusOK, gs)
}

func (api *statsApi) programs(ctx echo.Context) error {
	sums, err := api.svc.ProgramSummaries(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing program summaries")
	}
	if sums == nil {
		sums = []stats.ProgramSummary{}
	}
	return ctx.JSON(http.StatusOK, sums)
}

func (api *statsApi) programAdmin(ctx echo.Context) error {
	ps, err := api.svc.ProgramAdmin(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "computing program admin stats")
	}
	return ctx.JSON(http.StatusOK, ps)
}
