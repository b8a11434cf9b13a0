package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/yekiapp/yeki/core/exercise"
)

type exerciseApi struct {
	svc      *exercise.Service
	validate *validator.Validate
}

func registerExerciseAPI(g *echo.Group, jwt, actor echo.MiddlewareFunc, deps *Deps) {
	api := exerciseApi{
		svc:      deps.ExerciseSvc,
		validate: deps.Validate,
	}

	cg := g.Group("/courses/:id/exercises", jwt, actor)
	cg.GET("", api.queryCourseExercises)
	cg.POST("", api.create)

	eg := g.Group("/exercises", jwt, actor)
	eg.GET("/:id", api.retrieve)
	eg.POST("/:id/sessions", api.startSession)
	eg.POST("/:id/submit", api.submit)
	eg.GET("/:id/evaluations", api.queryEvaluations)
}

func (api *exerciseApi) queryCourseExercises(ctx echo.Context) error {
	exs, err := api.svc.ListByCourse(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing course exercises")
	}
	if exs == nil {
		exs = []exercise.Exercise{}
	}
	return ctx.JSON(http.StatusOK, exs)
}

func (api *exerciseApi) create(ctx echo.Context) error {
	var data exercise.NewExercise
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewExercise")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ex, err := api.svc.Create(ctx.Request().Context(), getContextActor(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating exercise")
	}
	return ctx.JSON(http.StatusCreated, ex)
}

func (api *exerciseApi) retrieve(ctx echo.Context) error {
	detail, err := api.svc.Detail(ctx.Request().Context(), getContextActor(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding exercise")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *exerciseApi) startSession(ctx echo.Context) error {
	sess, err := api.svc.StartSession(ctx.Request().Context(), getContextActor(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "starting session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *exerciseApi) submit(ctx echo.Context) error {
	var data exercise.Submission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Submission")
	}

	result, err := api.svc.Submit(ctx.Request().Context(), getContextActor(ctx), ctx.Param("id"), data.Answers)
	if err != nil {
		return errors.Wrap(err, "submitting answers")
	}
	return ctx.JSON(http.StatusOK, result)
}

func (api *exerciseApi) queryEvaluations(ctx echo.Context) error {
	evs, err := api.svc.Evaluations(ctx.Request().Context(), getContextActor(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing evaluations")
	}
	if evs == nil {
		evs = []exercise.Evaluation{}
	}
	return ctx.JSON(http.StatusOK, evs)
}
