package echoapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yekiapp/yeki/core"
	"github.com/yekiapp/yeki/core/authz"
	"github.com/yekiapp/yeki/core/curriculum"
	"github.com/yekiapp/yeki/testutil"
)

type curriculumEnv struct {
	*testEnv

	admin, progAdmin, otherProgAdmin, unitHead, otherUnitHead string // tokens
	lead, otherLead, assistant, learner                      string // tokens

	leadID, assistantID, learnerID, unitHeadID, progAdminID string

	program curriculum.Program
	dept    curriculum.Department
}

func setupCurriculum(t *testing.T) *curriculumEnv {
	env := setup(t)
	admin := env.createUser(t, "the_admin", authz.RoleAdmin)
	progAdmin := env.createUser(t, "prog_admin", authz.RoleDepartmentHeadAdmin)
	otherProgAdmin := env.createUser(t, "other_prog_admin", authz.RoleDepartmentHeadAdmin)
	unitHead := env.createUser(t, "unit_head", authz.RoleUnitHead)
	otherUnitHead := env.createUser(t, "other_unit_head", authz.RoleUnitHead)
	lead := env.createUser(t, "lead_teacher", authz.RoleLeadTeacher)
	otherLead := env.createUser(t, "other_lead_teacher", authz.RoleLeadTeacher)
	assistant := env.createUser(t, "assistant", authz.RoleAssistantTeacher)
	learner := env.createUser(t, "the_learner", authz.RoleLearner)

	prog := testutil.CreateProgram(t, env.curRepo, "Sciences", progAdmin.ID)
	dept := testutil.CreateDepartment(t, env.curRepo, "Physics", prog.ID, unitHead.ID)

	return &curriculumEnv{
		testEnv:        env,
		admin:          env.getToken(t, admin),
		progAdmin:      env.getToken(t, progAdmin),
		otherProgAdmin: env.getToken(t, otherProgAdmin),
		unitHead:       env.getToken(t, unitHead),
		otherUnitHead:  env.getToken(t, otherUnitHead),
		lead:           env.getToken(t, lead),
		otherLead:      env.getToken(t, otherLead),
		assistant:      env.getToken(t, assistant),
		learner:        env.getToken(t, learner),
		leadID:         lead.ID,
		assistantID:    assistant.ID,
		learnerID:      learner.ID,
		unitHeadID:     unitHead.ID,
		progAdminID:    progAdmin.ID,
		program:        prog,
		dept:           dept,
	}
}

func (env *curriculumEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var data []byte
	if body != nil {
		data = marchallObj(t, body)
	}
	req, rec := newAuthRequest(method, path, token, data)
	env.serve(req, rec)
	return rec
}

func decodeCourse(t *testing.T, rec *httptest.ResponseRecorder) curriculum.Course {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var course curriculum.Course
	unmarshalBody(t, rec, &course)
	return course
}

func Test_curriculumApi_programs(t *testing.T) {
	env := setupCurriculum(t)

	t.Run("admin creates", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/programs", env.admin, curriculum.NewProgram{Name: " Letters ", AdminID: env.progAdminID})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var prog curriculum.Program
		unmarshalBody(t, rec, &prog)
		assert.NotEmpty(t, prog.ID)
		assert.Equal(t, "Letters", prog.Name)
		assert.Equal(t, env.progAdminID, prog.AdminID)
	})

	t.Run("other roles are denied", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/programs", env.unitHead, curriculum.NewProgram{Name: "Maths"})
		resp := checkError(t, rec, http.StatusForbidden, "permission_denied")
		assert.Contains(t, resp.Error, "permission denied")
	})

	t.Run("admin must be a program admin", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/programs", env.admin, curriculum.NewProgram{Name: "Maths", AdminID: env.leadID})
		checkError(t, rec, http.StatusBadRequest, "validation", core.CodeInvalidRoleAssignment)
	})

	t.Run("name is required", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/programs", env.admin, curriculum.NewProgram{Name: "  "})
		resp := checkError(t, rec, http.StatusBadRequest, "validation")
		assert.Equal(t, "this field is required", resp.Fields["name"])
	})

	t.Run("list by admin", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/programs?admin_id="+env.progAdminID, env.learner, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var progs []curriculum.Program
		unmarshalBody(t, rec, &progs)
		assert.Len(t, progs, 2)
	})

	t.Run("reassign admin", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, "/v1/programs/"+env.program.ID+"/admin", env.admin,
			curriculum.AssignProgramAdmin{AdminID: env.unitHeadID})
		checkError(t, rec, http.StatusBadRequest, "validation", core.CodeInvalidRoleAssignment)

		rec = env.do(t, http.MethodPut, "/v1/programs/unknown/admin", env.admin,
			curriculum.AssignProgramAdmin{AdminID: env.progAdminID})
		checkError(t, rec, http.StatusNotFound, "not_found")
	})

	t.Run("departments of a program", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/programs/"+env.program.ID+"/departments", env.learner, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var depts []curriculum.Department
		unmarshalBody(t, rec, &depts)
		require.Len(t, depts, 1)
		assert.Equal(t, env.dept.ID, depts[0].ID)

		rec = env.do(t, http.MethodGet, "/v1/programs/unknown/departments", env.learner, nil)
		checkError(t, rec, http.StatusNotFound, "not_found")
	})
}

func Test_curriculumApi_departments(t *testing.T) {
	env := setupCurriculum(t)

	t.Run("program admin of the program", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/departments", env.progAdmin, curriculum.NewDepartment{
			Name: "Chemistry", ProgramID: env.program.ID, HeadID: env.unitHeadID,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var dept curriculum.Department
		unmarshalBody(t, rec, &dept)
		assert.Equal(t, env.program.ID, dept.ProgramID)
		assert.Equal(t, env.unitHeadID, dept.HeadID)
	})

	t.Run("program admin of another program", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/departments", env.otherProgAdmin, curriculum.NewDepartment{
			Name: "Biology", ProgramID: env.program.ID,
		})
		resp := checkError(t, rec, http.StatusForbidden, "permission_denied")
		assert.Equal(t, "permission denied: actor is not program admin", resp.Error)
	})

	t.Run("head must be a unit head", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/departments", env.progAdmin, curriculum.NewDepartment{
			Name: "Biology", ProgramID: env.program.ID, HeadID: env.leadID,
		})
		checkError(t, rec, http.StatusBadRequest, "validation", core.CodeInvalidRoleAssignment)
	})

	t.Run("unknown program", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/departments", env.progAdmin, curriculum.NewDepartment{
			Name: "Biology", ProgramID: "unknown",
		})
		checkError(t, rec, http.StatusNotFound, "not_found")
	})

	t.Run("partial update clears the head", func(t *testing.T) {
		rec := env.do(t, http.MethodPatch, "/v1/departments/"+env.dept.ID, env.progAdmin,
			map[string]interface{}{"name": "Applied Physics", "head_id": nil})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var dept curriculum.Department
		unmarshalBody(t, rec, &dept)
		assert.Equal(t, "Applied Physics", dept.Name)
		assert.Empty(t, dept.HeadID)
	})

	t.Run("update denied to other program admins", func(t *testing.T) {
		rec := env.do(t, http.MethodPatch, "/v1/departments/"+env.dept.ID, env.otherProgAdmin,
			map[string]interface{}{"name": "Hijacked"})
		checkError(t, rec, http.StatusForbidden, "permission_denied")
	})
}

func Test_curriculumApi_courses(t *testing.T) {
	env := setupCurriculum(t)

	newCourse := func(title, leadID string) curriculum.NewCourse {
		return curriculum.NewCourse{
			Title: title, Level: "L2", Color: "#00AAFF", DepartmentID: env.dept.ID, LeadTeacherID: leadID,
		}
	}

	var course curriculum.Course
	t.Run("department head creates", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/courses", env.unitHead, newCourse("Mechanics", env.leadID))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshalBody(t, rec, &course)
		assert.Equal(t, env.leadID, course.LeadTeacherID)
		assert.Empty(t, course.AssistantIDs)
		assert.Zero(t, course.LessonCount)
		assert.Zero(t, course.LearnerCount)
	})
	require.NotEmpty(t, course.ID)
	coursePath := "/v1/courses/" + course.ID

	t.Run("create errors", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/courses", env.otherUnitHead, newCourse("Optics", env.leadID))
		checkError(t, rec, http.StatusForbidden, "permission_denied")

		rec = env.do(t, http.MethodPost, "/v1/courses", env.unitHead, newCourse("Optics", env.assistantID))
		checkError(t, rec, http.StatusBadRequest, "validation", core.CodeInvalidTeacherRole)

		data := newCourse("Optics", "")
		data.Color = "blue"
		rec = env.do(t, http.MethodPost, "/v1/courses", env.unitHead, data)
		checkError(t, rec, http.StatusBadRequest, "validation", core.CodeInvalidColor)
	})

	t.Run("lead teacher updates display fields only", func(t *testing.T) {
		rec := env.do(t, http.MethodPatch, coursePath, env.lead, map[string]interface{}{"title": "Classical Mechanics"})
		assert.Equal(t, "Classical Mechanics", decodeCourse(t, rec).Title)

		rec = env.do(t, http.MethodPatch, coursePath, env.lead, map[string]interface{}{"department_id": env.dept.ID})
		checkError(t, rec, http.StatusForbidden, "permission_denied")

		rec = env.do(t, http.MethodPatch, coursePath, env.otherLead, map[string]interface{}{"title": "Mine"})
		checkError(t, rec, http.StatusForbidden, "permission_denied")
	})

	t.Run("unit head reassigns the lead teacher", func(t *testing.T) {
		rec := env.do(t, http.MethodPatch, coursePath, env.unitHead, map[string]interface{}{"lead_teacher_id": env.learnerID})
		checkError(t, rec, http.StatusBadRequest, "validation", core.CodeInvalidTeacherRole)

		rec = env.do(t, http.MethodPatch, coursePath, env.unitHead, map[string]interface{}{"level": "L3"})
		c := decodeCourse(t, rec)
		assert.Equal(t, "L3", c.Level)
		assert.Equal(t, env.leadID, c.LeadTeacherID)
	})

	t.Run("assistants", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, coursePath+"/assistants", env.lead, curriculum.AddAssistant{UserID: env.assistantID})
		assert.Equal(t, []string{env.assistantID}, decodeCourse(t, rec).AssistantIDs)

		rec = env.do(t, http.MethodPost, coursePath+"/assistants", env.lead, curriculum.AddAssistant{UserID: env.assistantID})
		checkError(t, rec, http.StatusBadRequest, "validation", core.CodeDuplicateAssistant)

		rec = env.do(t, http.MethodPost, coursePath+"/assistants", env.lead, curriculum.AddAssistant{UserID: env.learnerID})
		checkError(t, rec, http.StatusBadRequest, "validation", core.CodeInvalidTeacherRole)

		rec = env.do(t, http.MethodPost, coursePath+"/assistants", env.unitHead, curriculum.AddAssistant{UserID: env.assistantID})
		checkError(t, rec, http.StatusForbidden, "permission_denied")

		rec = env.do(t, http.MethodDelete, coursePath+"/assistants/"+env.learnerID, env.lead, nil)
		checkError(t, rec, http.StatusNotFound, "not_found")
	})

	t.Run("listing depends on the role", func(t *testing.T) {
		testutil.CreateCourse(t, env.curRepo, "Astronomy", env.dept.ID, "")

		list := func(token string) []string {
			rec := env.do(t, http.MethodGet, "/v1/courses?ordering=-title", token, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var courses []curriculum.Course
			unmarshalBody(t, rec, &courses)
			titles := make([]string, 0, len(courses))
			for _, c := range courses {
				titles = append(titles, c.Title)
			}
			return titles
		}

		assert.Equal(t, []string{"Classical Mechanics", "Astronomy"}, list(env.learner))
		assert.Equal(t, []string{"Classical Mechanics", "Astronomy"}, list(env.admin))
		assert.Equal(t, []string{"Classical Mechanics", "Astronomy"}, list(env.progAdmin))
		assert.Equal(t, []string{"Classical Mechanics", "Astronomy"}, list(env.unitHead))
		assert.Equal(t, []string{"Classical Mechanics"}, list(env.lead))
		assert.Equal(t, []string{"Classical Mechanics"}, list(env.assistant))
		assert.Empty(t, list(env.otherProgAdmin))
		assert.Empty(t, list(env.otherUnitHead))
		assert.Empty(t, list(env.otherLead))
	})

	t.Run("remove assistant", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, coursePath+"/assistants/"+env.assistantID, env.lead, nil)
		assert.Empty(t, decodeCourse(t, rec).AssistantIDs)
	})

	t.Run("enrollment", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, coursePath+"/enrollment", env.learner, nil)
		assert.Equal(t, 1, decodeCourse(t, rec).LearnerCount)

		rec = env.do(t, http.MethodPost, coursePath+"/enrollment", env.learner, nil)
		checkError(t, rec, http.StatusBadRequest, "validation", core.CodeAlreadyEnrolled)

		rec = env.do(t, http.MethodPost, coursePath+"/enrollment", env.lead, nil)
		checkError(t, rec, http.StatusForbidden, "permission_denied")

		rec = env.do(t, http.MethodDelete, coursePath+"/enrollment", env.learner, nil)
		assert.Equal(t, 0, decodeCourse(t, rec).LearnerCount)

		rec = env.do(t, http.MethodDelete, coursePath+"/enrollment", env.learner, nil)
		checkError(t, rec, http.StatusNotFound, "not_found")

		rec = env.do(t, http.MethodPost, "/v1/courses/unknown/enrollment", env.learner, nil)
		checkError(t, rec, http.StatusNotFound, "not_found")
	})
}

func Test_curriculumApi_modulesAndLessons(t *testing.T) {
	env := setupCurriculum(t)
	course := testutil.CreateCourse(t, env.curRepo, "Mechanics", env.dept.ID, env.leadID)
	coursePath := "/v1/courses/" + course.ID

	var mod curriculum.Module
	t.Run("modules", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, coursePath+"/modules", env.lead, curriculum.NewModule{Title: "Kinematics", Order: 1})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshalBody(t, rec, &mod)
		assert.Equal(t, course.ID, mod.CourseID)

		rec = env.do(t, http.MethodPost, coursePath+"/modules", env.lead, curriculum.NewModule{Title: "Dynamics", Order: 1})
		resp := checkError(t, rec, http.StatusBadRequest, "validation", core.CodeDuplicateOrder)
		assert.Contains(t, resp.Fields, "order")

		rec = env.do(t, http.MethodPost, coursePath+"/modules", env.assistant, curriculum.NewModule{Title: "Dynamics", Order: 2})
		checkError(t, rec, http.StatusForbidden, "permission_denied")

		rec = env.do(t, http.MethodGet, coursePath+"/modules", env.learner, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var mods []curriculum.Module
		unmarshalBody(t, rec, &mods)
		assert.Len(t, mods, 1)
	})

	t.Run("lessons", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, coursePath+"/lessons", env.lead, curriculum.NewLesson{
			Title: "Introduction", ModuleID: mod.ID, Document: "docs/intro.pdf", Video: "https://videos.example.com/intro.mp4",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var lesson curriculum.Lesson
		unmarshalBody(t, rec, &lesson)
		assert.Equal(t, "https://media.yeki.test/files/docs/intro.pdf", lesson.Document)
		assert.Equal(t, "https://videos.example.com/intro.mp4", lesson.Video)

		rec = env.do(t, http.MethodPost, coursePath+"/lessons", env.lead, curriculum.NewLesson{Title: "Notes", Document: "notes.docx"})
		checkError(t, rec, http.StatusBadRequest, "validation", core.CodeInvalidDocument)

		rec = env.do(t, http.MethodPost, coursePath+"/lessons", env.lead, curriculum.NewLesson{Title: "Notes", ModuleID: "unknown"})
		resp := checkError(t, rec, http.StatusBadRequest, "validation")
		assert.Contains(t, resp.Fields, "module_id")

		rec = env.do(t, http.MethodGet, "/v1/lessons/"+lesson.ID, env.learner, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = env.do(t, http.MethodPost, "/v1/lessons/"+lesson.ID+"/convert", env.otherLead, nil)
		checkError(t, rec, http.StatusForbidden, "permission_denied")

		rec = env.do(t, http.MethodPost, "/v1/lessons/"+lesson.ID+"/convert", env.lead, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var converted curriculum.Lesson
		unmarshalBody(t, rec, &converted)
		assert.Contains(t, converted.HTMLContent, `data="https://media.yeki.test/files/docs/intro.pdf"`)
		assert.Equal(t, "https://media.yeki.test/files/docs/intro.pdf", converted.Document)

		rec = env.do(t, http.MethodGet, coursePath, env.learner, nil)
		assert.Equal(t, 1, decodeCourse(t, rec).LessonCount)

		rec = env.do(t, http.MethodGet, coursePath+"/lessons", env.learner, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var lessons []curriculum.Lesson
		unmarshalBody(t, rec, &lessons)
		require.Len(t, lessons, 1)
		assert.Equal(t, "https://media.yeki.test/files/docs/intro.pdf", lessons[0].Document)
	})
}
