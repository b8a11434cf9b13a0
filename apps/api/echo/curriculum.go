package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/yekiapp/yeki/core"
	"github.com/yekiapp/yeki/core/curriculum"
)

type curriculumApi struct {
	svc          *curriculum.Service
	validate     *validator.Validate
	mediaBaseURL string
}

func registerCurriculumAPI(g *echo.Group, jwt, actor echo.MiddlewareFunc, deps *Deps) {
	api := curriculumApi{
		svc:          deps.CurriculumSvc,
		validate:     deps.Validate,
		mediaBaseURL: deps.Conf.MediaBaseURL,
	}

	pg := g.Group("/programs", jwt, actor)
	pg.GET("", api.queryPrograms)
	pg.POST("", api.createProgram)
	pg.GET("/:id", api.retrieveProgram)
	pg.PUT("/:id/admin", api.assignProgramAdmin)
	pg.GET("/:id/departments", api.queryProgramDepartments)

	dg := g.Group("/departments", jwt, actor)
	dg.POST("", api.createDepartment)
	dg.GET("/:id", api.retrieveDepartment)
	dg.PATCH("/:id", api.updateDepartment)

	cg := g.Group("/courses", jwt, actor)
	cg.GET("", api.queryCourses)
	cg.POST("", api.createCourse)
	cg.GET("/:id", api.retrieveCourse)
	cg.PATCH("/:id", api.updateCourse)
	cg.POST("/:id/assistants", api.addAssistant)
	cg.DELETE("/:id/assistants/:userID", api.removeAssistant)
	cg.POST("/:id/enrollment", api.enroll)
	cg.DELETE("/:id/enrollment", api.unenroll)
	cg.GET("/:id/modules", api.queryModules)
	cg.POST("/:id/modules", api.createModule)
	cg.GET("/:id/lessons", api.queryLessons)
	cg.POST("/:id/lessons", api.createLesson)

	lg := g.Group("/lessons", jwt, actor)
	lg.GET("/:id", api.retrieveLesson)
	lg.POST("/:id/convert", api.convertLesson)
}

// Programs

func (api *curriculumApi) queryPrograms(ctx echo.Context) error {
	progs, err := api.svc.QueryPrograms(ctx.Request().Context(), curriculum.ProgramFilter{
		AdminID: core.CleanString(ctx.QueryParam("admin_id")),
	})
	if err != nil {
		return errors.Wrap(err, "querying programs")
	}
	if progs == nil {
		progs = []curriculum.Program{}
	}
	return ctx.JSON(http.StatusOK, progs)
}

func (api *curriculumApi) createProgram(ctx echo.Context) error {
	var data curriculum.NewProgram
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProgram")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	prog, err := api.svc.CreateProgram(ctx.Request().Context(), getContextActor(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating program")
	}
	return ctx.JSON(http.StatusCreated, prog)
}

func (api *curriculumApi) retrieveProgram(ctx echo.Context) error {
	prog, err := api.svc.GetProgram(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding program")
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *curriculumApi) assignProgramAdmin(ctx echo.Context) error {
	var data curriculum.AssignProgramAdmin
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignProgramAdmin")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	prog, err := api.svc.AssignProgramAdmin(ctx.Request().Context(), getContextActor(ctx), ctx.Param("id"), data.AdminID)
	if err != nil {
		return errors.Wrap(err, "assigning program admin")
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *curriculumApi) queryProgramDepartments(ctx echo.Context) error {
	depts, err := api.svc.ListProgramDepartments(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing program departments")
	}
	if depts == nil {
		depts = []curriculum.Department{}
	}
	return ctx.JSON(http.StatusOK, depts)
}

// Departments

func (api *curriculumApi) createDepartment(ctx echo.Context) error {
	var data curriculum.NewDepartment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDepartment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	dept, err := api.svc.CreateDepartment(ctx.Request().Context(), getContextActor(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating department")
	}
	return ctx.JSON(http.StatusCreated, dept)
}

func (api *curriculumApi) retrieveDepartment(ctx echo.Context) error {
	dept, err := api.svc.GetDepartment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding department")
	}
	return ctx.JSON(http.StatusOK, dept)
}

func (api *curriculumApi) updateDepartment(ctx echo.Context) error {
	var data curriculum.UpdateDepartment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateDepartment")
	}

	dept, err := api.svc.UpdateDepartment(ctx.Request().Context(), getContextActor(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating department")
	}
	return ctx.JSON(http.StatusOK, dept)
}

// Courses

func (api *curriculumApi) queryCourses(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	courses, err := api.svc.ListCourses(ctx.Request().Context(), getContextActor(ctx), ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "listing courses")
	}
	if courses == nil {
		courses = []curriculum.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *curriculumApi) createCourse(ctx echo.Context) error {
	var data curriculum.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	course, err := api.svc.CreateCourse(ctx.Request().Context(), getContextActor(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, course)
}

func (api *curriculumApi) retrieveCourse(ctx echo.Context) error {
	course, err := api.svc.GetCourse(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding course")
	}
	return ctx.JSON(http.StatusOK, course)
}

func (api *curriculumApi) updateCourse(ctx echo.Context) error {
	var data curriculum.UpdateCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}

	course, err := api.svc.UpdateCourse(ctx.Request().Context(), getContextActor(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, course)
}

func (api *curriculumApi) addAssistant(ctx echo.Context) error {
	var data curriculum.AddAssistant
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AddAssistant")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	course, err := api.svc.AddAssistant(ctx.Request().Context(), getContextActor(ctx), ctx.Param("id"), data.UserID)
	if err != nil {
		return errors.Wrap(err, "adding assistant")
	}
	return ctx.JSON(http.StatusOK, course)
}

func (api *curriculumApi) removeAssistant(ctx echo.Context) error {
	course, err := api.svc.RemoveAssistant(
		ctx.Request().Context(), getContextActor(ctx), ctx.Param("id"), ctx.Param("userID"),
	)
	if err != nil {
		return errors.Wrap(err, "removing assistant")
	}
	return ctx.JSON(http.StatusOK, course)
}

func (api *curriculumApi) enroll(ctx echo.Context) error {
	course, err := api.svc.Enroll(ctx.Request().Context(), getContextActor(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	return ctx.JSON(http.StatusOK, course)
}

func (api *curriculumApi) unenroll(ctx echo.Context) error {
	course, err := api.svc.Unenroll(ctx.Request().Context(), getContextActor(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "unenrolling")
	}
	return ctx.JSON(http.StatusOK, course)
}

// Modules & Lessons

func (api *curriculumApi) queryModules(ctx echo.Context) error {
	mods, err := api.svc.ListModules(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing modules")
	}
	if mods == nil {
		mods = []curriculum.Module{}
	}
	return ctx.JSON(http.StatusOK, mods)
}

func (api *curriculumApi) createModule(ctx echo.Context) error {
	var data curriculum.NewModule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewModule")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	mod, err := api.svc.CreateModule(ctx.Request().Context(), getContextActor(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating module")
	}
	return ctx.JSON(http.StatusCreated, mod)
}

func (api *curriculumApi) queryLessons(ctx echo.Context) error {
	lessons, err := api.svc.ListLessons(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing lessons")
	}
	views := make([]curriculum.Lesson, 0, len(lessons))
	for _, l := range lessons {
		views = append(views, api.withMediaURLs(l))
	}
	return ctx.JSON(http.StatusOK, views)
}

func (api *curriculumApi) createLesson(ctx echo.Context) error {
	var data curriculum.NewLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	lesson, err := api.svc.CreateLesson(ctx.Request().Context(), getContextActor(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating lesson")
	}
	return ctx.JSON(http.StatusCreated, api.withMediaURLs(lesson))
}

func (api *curriculumApi) retrieveLesson(ctx echo.Context) error {
	lesson, err := api.svc.GetLesson(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding lesson")
	}
	return ctx.JSON(http.StatusOK, api.withMediaURLs(lesson))
}

func (api *curriculumApi) convertLesson(ctx echo.Context) error {
	lesson, err := api.svc.ConvertLessonDocument(ctx.Request().Context(), getContextActor(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "converting lesson document")
	}
	return ctx.JSON(http.StatusOK, api.withMediaURLs(lesson))
}

// withMediaURLs resolves the lesson file references to absolute URLs.
func (api *curriculumApi) withMediaURLs(lesson curriculum.Lesson) curriculum.Lesson {
	lesson.Document = core.MediaURL(api.mediaBaseURL, lesson.Document)
	lesson.Video = core.MediaURL(api.mediaBaseURL, lesson.Video)
	return lesson
}
