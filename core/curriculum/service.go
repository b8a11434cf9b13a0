package curriculum

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/yekiapp/yeki/core"
	"github.com/yekiapp/yeki/core/authz"
	"github.com/yekiapp/yeki/core/user"
)

var _ user.PositionHolder = (*Service)(nil)

var (
	nowFunc = time.Now // mockable

	// errors
	ErrProgramNotFound    = core.NewError(core.KindNotFound, "program not found")
	ErrDepartmentNotFound = core.NewError(core.KindNotFound, "department not found")
	ErrCourseNotFound     = core.NewError(core.KindNotFound, "course not found")
	ErrModuleNotFound     = core.NewError(core.KindNotFound, "module not found")
	ErrLessonNotFound     = core.NewError(core.KindNotFound, "lesson not found")
	ErrAssistantNotFound  = core.NewError(core.KindNotFound, "assistant teacher not found in course")
	ErrNotEnrolled        = core.NewError(core.KindNotFound, "learner is not enrolled in course")

	ErrDuplicateOrder = core.NewCodedValidationError(
		core.CodeDuplicateOrder,
		errors.New("a module with this order already exists in the course"),
		core.FieldError{Field: "order", Error: "a module with this order already exists in the course"},
	)
	ErrAlreadyEnrolled = core.NewCodedValidationError(
		core.CodeAlreadyEnrolled, errors.New("learner is already enrolled in course"),
	)
	ErrDuplicateAssistant = core.NewCodedValidationError(
		core.CodeDuplicateAssistant,
		errors.New("teacher is already an assistant of the course"),
		core.FieldError{Field: "user_id", Error: "teacher is already an assistant of the course"},
	)
	ErrNoConverter = core.NewCodedValidationError(
		core.CodeInvalidDocument, errors.New("document conversion is not available"),
	)
)

type (
	Repository interface {
		// InTx runs fn inside one transaction; fn gets a Repository bound to it.
		// Any error returned by fn rolls the transaction back.
		InTx(ctx context.Context, fn func(repo Repository) error) error

		CreateProgram(ctx context.Context, prog Program) (Program, error)
		GetProgram(ctx context.Context, id string) (Program, error)
		QueryPrograms(ctx context.Context, filter ProgramFilter) ([]Program, error)
		UpdateProgram(ctx context.Context, prog Program) (Program, error)

		CreateDepartment(ctx context.Context, dept Department) (Department, error)
		GetDepartment(ctx context.Context, id string) (Department, error)
		QueryDepartments(ctx context.Context, filter DepartmentFilter) ([]Department, error)
		UpdateDepartment(ctx context.Context, dept Department) (Department, error)

		CreateCourse(ctx context.Context, course Course) (Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		QueryCourses(ctx context.Context, filter CourseFilter) ([]Course, error)
		// UpdateCourse saves the course fields; counters and assistants are left untouched.
		UpdateCourse(ctx context.Context, course Course) (Course, error)
		AddCourseAssistant(ctx context.Context, courseID, userID string) error
		RemoveCourseAssistant(ctx context.Context, courseID, userID string) error
		IncrementCourseCounter(ctx context.Context, courseID string, counter Counter, delta int) error

		// CreateModule returns ErrDuplicateOrder when the order is taken in the course.
		CreateModule(ctx context.Context, mod Module) (Module, error)
		GetModule(ctx context.Context, id string) (Module, error)
		QueryModules(ctx context.Context, courseID string) ([]Module, error)

		CreateLesson(ctx context.Context, lesson Lesson) (Lesson, error)
		GetLesson(ctx context.Context, id string) (Lesson, error)
		QueryLessons(ctx context.Context, filter LessonFilter) ([]Lesson, error)
		UpdateLesson(ctx context.Context, lesson Lesson) (Lesson, error)

		// CreateEnrollment returns ErrAlreadyEnrolled for an existing enrollment.
		CreateEnrollment(ctx context.Context, enr Enrollment) error
		// DeleteEnrollment returns ErrNotEnrolled when there is nothing to delete.
		DeleteEnrollment(ctx context.Context, courseID, learnerID string) error
	}

	// UserGetter finds users by ID.
	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	// DocumentConverter renders an uploaded lesson document to HTML.
	DocumentConverter interface {
		ConvertToHTML(ctx context.Context, document string) (string, error)
	}

	Service struct {
		repo      Repository
		users     UserGetter
		converter DocumentConverter
		logger    core.Logger
	}
)

func NewService(repo Repository, users UserGetter, logger core.Logger) *Service {
	return &Service{repo: repo, users: users, logger: logger}
}

// SetDocumentConverter plugs the converter used by ConvertLessonDocument.
func (svc *Service) SetDocumentConverter(converter DocumentConverter) {
	svc.converter = converter
}

// checkTargetRole checks that the user exists and holds role.
func (svc *Service) checkTargetRole(ctx context.Context, userID string, role authz.Role, code, field string) error {
	usr, err := svc.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(err, core.FieldError{Field: field, Error: "user not found"})
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if usr.Role != role {
		msg := fmt.Sprintf("user must have the %s role", role)
		return core.NewCodedValidationError(code, errors.New(msg), core.FieldError{Field: field, Error: msg})
	}
	return nil
}

func checkColor(color string) error {
	if color != "" && !core.ColorRegex.MatchString(color) {
		msg := "color must be a hex code like #1A2B3C"
		return core.NewCodedValidationError(core.CodeInvalidColor, errors.New(msg), core.FieldError{Field: "color", Error: msg})
	}
	return nil
}

func requiredField(field string) error {
	return core.NewValidationError(nil, core.FieldError{Field: field, Error: "this field is required"})
}

// Programs

func (svc *Service) CreateProgram(ctx context.Context, actor authz.Actor, np NewProgram) (Program, error) {
	if err := authz.Authorize(actor, []authz.Role{authz.RoleAdmin}); err != nil {
		return Program{}, err
	}
	if np.AdminID != "" {
		if err := svc.checkTargetRole(ctx, np.AdminID, authz.RoleDepartmentHeadAdmin, core.CodeInvalidRoleAssignment, "admin_id"); err != nil {
			return Program{}, err
		}
	}

	now := nowFunc().UTC()
	prog, err := svc.repo.CreateProgram(ctx, Program{
		Name:      np.Name,
		AdminID:   np.AdminID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Program{}, errors.Wrap(err, "creating program")
	}
	svc.logger.Info(fmt.Sprintf("program %q created by %s", prog.Name, actor.UserID))
	return prog, nil
}

// AssignProgramAdmin sets or replaces the admin of a program.
func (svc *Service) AssignProgramAdmin(ctx context.Context, actor authz.Actor, programID, adminID string) (Program, error) {
	if err := authz.Authorize(actor, []authz.Role{authz.RoleAdmin}); err != nil {
		return Program{}, err
	}
	prog, err := svc.repo.GetProgram(ctx, programID)
	if err != nil {
		return Program{}, err
	}
	target, err := svc.users.GetByID(ctx, adminID)
	if err != nil {
		return Program{}, err
	}
	if target.Role != authz.RoleDepartmentHeadAdmin {
		msg := fmt.Sprintf("user must have the %s role", authz.RoleDepartmentHeadAdmin)
		return Program{}, core.NewCodedValidationError(
			core.CodeInvalidRoleAssignment, errors.New(msg), core.FieldError{Field: "admin_id", Error: msg},
		)
	}

	prog.AdminID = target.ID
	prog.UpdatedAt = nowFunc().UTC()
	if prog, err = svc.repo.UpdateProgram(ctx, prog); err != nil {
		return Program{}, errors.Wrap(err, "assigning program admin")
	}
	return prog, nil
}

func (svc *Service) GetProgram(ctx context.Context, id string) (Program, error) {
	return svc.repo.GetProgram(ctx, id)
}

func (svc *Service) QueryPrograms(ctx context.Context, filter ProgramFilter) ([]Program, error) {
	return svc.repo.QueryPrograms(ctx, filter)
}

// Departments

func (svc *Service) CreateDepartment(ctx context.Context, actor authz.Actor, nd NewDepartment) (Department, error) {
	if !actor.Valid() {
		return Department{}, authz.ErrInvalidActor
	}
	prog, err := svc.repo.GetProgram(ctx, nd.ProgramID)
	if err != nil {
		return Department{}, err
	}
	if err := authz.Authorize(
		actor, []authz.Role{authz.RoleDepartmentHeadAdmin}, authz.IsProgramAdmin(actor, prog.AdminID),
	); err != nil {
		return Department{}, err
	}
	if nd.HeadID != "" {
		if err := svc.checkTargetRole(ctx, nd.HeadID, authz.RoleUnitHead, core.CodeInvalidRoleAssignment, "head_id"); err != nil {
			return Department{}, err
		}
	}

	now := nowFunc().UTC()
	dept, err := svc.repo.CreateDepartment(ctx, Department{
		Name:      nd.Name,
		ProgramID: prog.ID,
		HeadID:    nd.HeadID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Department{}, errors.Wrap(err, "creating department")
	}
	return dept, nil
}

// UpdateDepartment renames a department and/or sets (null clears) its head.
func (svc *Service) UpdateDepartment(ctx context.Context, actor authz.Actor, id string, ud UpdateDepartment) (Department, error) {
	if !actor.Valid() {
		return Department{}, authz.ErrInvalidActor
	}
	dept, err := svc.repo.GetDepartment(ctx, id)
	if err != nil {
		return Department{}, err
	}
	prog, err := svc.repo.GetProgram(ctx, dept.ProgramID)
	if err != nil {
		return Department{}, errors.Wrap(err, "finding department program")
	}
	if err := authz.AuthorizeGrants(
		actor,
		authz.Allow(authz.RoleAdmin),
		authz.Allow(authz.RoleDepartmentHeadAdmin, authz.IsProgramAdmin(actor, prog.AdminID)),
	); err != nil {
		return Department{}, err
	}

	if ud.Name.Set {
		name := core.CleanString(ud.Name.Value)
		if name == "" {
			return Department{}, requiredField("name")
		}
		dept.Name = name
	}
	if ud.HeadID.Set {
		headID := core.CleanString(ud.HeadID.Value)
		if headID != "" {
			if err := svc.checkTargetRole(ctx, headID, authz.RoleUnitHead, core.CodeInvalidRoleAssignment, "head_id"); err != nil {
				return Department{}, err
			}
		}
		dept.HeadID = headID
	}

	dept.UpdatedAt = nowFunc().UTC()
	if dept, err = svc.repo.UpdateDepartment(ctx, dept); err != nil {
		return Department{}, errors.Wrap(err, "updating department")
	}
	return dept, nil
}

func (svc *Service) GetDepartment(ctx context.Context, id string) (Department, error) {
	return svc.repo.GetDepartment(ctx, id)
}

// ListProgramDepartments lists the departments of an existing program.
func (svc *Service) ListProgramDepartments(ctx context.Context, programID string) ([]Department, error) {
	if _, err := svc.repo.GetProgram(ctx, programID); err != nil {
		return nil, err
	}
	return svc.repo.QueryDepartments(ctx, DepartmentFilter{ProgramID: programID})
}

func (svc *Service) QueryDepartments(ctx context.Context, filter DepartmentFilter) ([]Department, error) {
	return svc.repo.QueryDepartments(ctx, filter)
}

// Courses

func (svc *Service) CreateCourse(ctx context.Context, actor authz.Actor, nc NewCourse) (Course, error) {
	if !actor.Valid() {
		return Course{}, authz.ErrInvalidActor
	}
	dept, err := svc.repo.GetDepartment(ctx, nc.DepartmentID)
	if err != nil {
		return Course{}, err
	}
	if err := authz.Authorize(
		actor, []authz.Role{authz.RoleUnitHead}, authz.IsDepartmentHead(actor, dept.HeadID),
	); err != nil {
		return Course{}, err
	}
	if err := checkColor(nc.Color); err != nil {
		return Course{}, err
	}
	if nc.LeadTeacherID != "" {
		if err := svc.checkTargetRole(ctx, nc.LeadTeacherID, authz.RoleLeadTeacher, core.CodeInvalidTeacherRole, "lead_teacher_id"); err != nil {
			return Course{}, err
		}
	}

	now := nowFunc().UTC()
	course, err := svc.repo.CreateCourse(ctx, Course{
		Title:            nc.Title,
		Level:            nc.Level,
		ShortDescription: nc.ShortDescription,
		Color:            nc.Color,
		Icon:             nc.Icon,
		DepartmentID:     dept.ID,
		LeadTeacherID:    nc.LeadTeacherID,
		AssistantIDs:     []string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return Course{}, errors.Wrap(err, "creating course")
	}
	svc.logger.Info(fmt.Sprintf("course %q created by %s", course.Title, actor.UserID))
	return course, nil
}

// UpdateCourse applies a partial update. Unit heads heading the course department may
// change every field (moving the course requires heading the target department too);
// the course lead teacher may only change the display fields.
func (svc *Service) UpdateCourse(ctx context.Context, actor authz.Actor, id string, uc UpdateCourse) (Course, error) {
	if !actor.Valid() {
		return Course{}, authz.ErrInvalidActor
	}
	course, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}

	switch actor.Role {
	case authz.RoleUnitHead:
		dept, err := svc.repo.GetDepartment(ctx, course.DepartmentID)
		if err != nil {
			return Course{}, errors.Wrap(err, "finding course department")
		}
		if err := authz.Authorize(actor, []authz.Role{authz.RoleUnitHead}, authz.IsDepartmentHead(actor, dept.HeadID)); err != nil {
			return Course{}, err
		}
		if uc.DepartmentID.Set {
			deptID := core.CleanString(uc.DepartmentID.Value)
			if deptID == "" {
				return Course{}, requiredField("department_id")
			}
			target, err := svc.repo.GetDepartment(ctx, deptID)
			if err != nil {
				return Course{}, err
			}
			if err := authz.Authorize(actor, []authz.Role{authz.RoleUnitHead}, authz.IsDepartmentHead(actor, target.HeadID)); err != nil {
				return Course{}, err
			}
			course.DepartmentID = target.ID
		}
		if uc.LeadTeacherID.Set {
			leadID := core.CleanString(uc.LeadTeacherID.Value)
			if leadID != "" {
				if err := svc.checkTargetRole(ctx, leadID, authz.RoleLeadTeacher, core.CodeInvalidTeacherRole, "lead_teacher_id"); err != nil {
					return Course{}, err
				}
			}
			course.LeadTeacherID = leadID
		}
	case authz.RoleLeadTeacher:
		if err := authz.Authorize(actor, []authz.Role{authz.RoleLeadTeacher}, authz.IsLeadTeacher(actor, course.LeadTeacherID)); err != nil {
			return Course{}, err
		}
		if uc.touchesStructure() {
			return Course{}, core.NewError(core.KindPermissionDenied, "permission denied: lead teachers may only update display fields")
		}
	case authz.RoleAdmin, authz.RoleDepartmentHeadAdmin, authz.RoleAssistantTeacher, authz.RoleLearner:
		return Course{}, authz.Authorize(actor, []authz.Role{authz.RoleUnitHead, authz.RoleLeadTeacher})
	default:
		return Course{}, authz.ErrInvalidActor
	}

	if err := applyDisplayFields(&course, uc); err != nil {
		return Course{}, err
	}
	course.UpdatedAt = nowFunc().UTC()
	if course, err = svc.repo.UpdateCourse(ctx, course); err != nil {
		return Course{}, errors.Wrap(err, "updating course")
	}
	return course, nil
}

func applyDisplayFields(course *Course, uc UpdateCourse) error {
	if uc.Title.Set {
		title := core.CleanString(uc.Title.Value)
		if title == "" {
			return requiredField("title")
		}
		course.Title = title
	}
	if uc.Level.Set {
		level := core.CleanString(uc.Level.Value)
		if level == "" {
			return requiredField("level")
		}
		course.Level = level
	}
	if uc.ShortDescription.Set {
		course.ShortDescription = core.CleanString(uc.ShortDescription.Value)
	}
	if uc.Color.Set {
		color := core.CleanString(uc.Color.Value)
		if err := checkColor(color); err != nil {
			return err
		}
		course.Color = color
	}
	if uc.Icon.Set {
		course.Icon = core.CleanString(uc.Icon.Value)
	}
	return nil
}

func (svc *Service) GetCourse(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

func (svc *Service) QueryCourses(ctx context.Context, filter CourseFilter) ([]Course, error) {
	return svc.repo.QueryCourses(ctx, filter)
}

// ListCourses lists the courses visible to the actor's role.
func (svc *Service) ListCourses(ctx context.Context, actor authz.Actor, orderings []core.DBOrdering) ([]Course, error) {
	if !actor.Valid() {
		return nil, authz.ErrInvalidActor
	}
	filter := CourseFilter{Orderings: core.AllowedOrderings(orderings, CourseOrderingFields...)}
	switch actor.Role {
	case authz.RoleAdmin, authz.RoleLearner:
	case authz.RoleDepartmentHeadAdmin:
		filter.ProgramAdmin = actor.UserID
	case authz.RoleUnitHead:
		filter.DepartmentHead = actor.UserID
	case authz.RoleLeadTeacher:
		filter.LeadTeacherID = actor.UserID
	case authz.RoleAssistantTeacher:
		filter.AssistantID = actor.UserID
	default:
		return nil, authz.ErrInvalidActor
	}
	return svc.repo.QueryCourses(ctx, filter)
}

// HeldPositions lists the positions the user holds in the hierarchy.
// Each of them requires the user to keep their current role.
func (svc *Service) HeldPositions(ctx context.Context, userID string) ([]string, error) {
	var held []string

	progs, err := svc.repo.QueryPrograms(ctx, ProgramFilter{AdminID: userID})
	if err != nil {
		return nil, errors.Wrap(err, "querying administered programs")
	}
	for _, prog := range progs {
		held = append(held, fmt.Sprintf("admin of program %q", prog.Name))
	}

	depts, err := svc.repo.QueryDepartments(ctx, DepartmentFilter{HeadID: userID})
	if err != nil {
		return nil, errors.Wrap(err, "querying headed departments")
	}
	for _, dept := range depts {
		held = append(held, fmt.Sprintf("head of department %q", dept.Name))
	}

	led, err := svc.repo.QueryCourses(ctx, CourseFilter{LeadTeacherID: userID})
	if err != nil {
		return nil, errors.Wrap(err, "querying led courses")
	}
	for _, course := range led {
		held = append(held, fmt.Sprintf("lead teacher of course %q", course.Title))
	}

	assisted, err := svc.repo.QueryCourses(ctx, CourseFilter{AssistantID: userID})
	if err != nil {
		return nil, errors.Wrap(err, "querying assisted courses")
	}
	for _, course := range assisted {
		held = append(held, fmt.Sprintf("assistant of course %q", course.Title))
	}
	return held, nil
}

// authorizeLeadTeacher loads the course and checks that the actor leads it.
func (svc *Service) authorizeLeadTeacher(ctx context.Context, actor authz.Actor, courseID string) (Course, error) {
	if !actor.Valid() {
		return Course{}, authz.ErrInvalidActor
	}
	course, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		return Course{}, err
	}
	if err := authz.Authorize(
		actor, []authz.Role{authz.RoleLeadTeacher}, authz.IsLeadTeacher(actor, course.LeadTeacherID),
	); err != nil {
		return Course{}, err
	}
	return course, nil
}

func (svc *Service) AddAssistant(ctx context.Context, actor authz.Actor, courseID, userID string) (Course, error) {
	if _, err := svc.authorizeLeadTeacher(ctx, actor, courseID); err != nil {
		return Course{}, err
	}
	target, err := svc.users.GetByID(ctx, userID)
	if err != nil {
		return Course{}, err
	}
	if target.Role != authz.RoleAssistantTeacher {
		msg := fmt.Sprintf("user must have the %s role", authz.RoleAssistantTeacher)
		return Course{}, core.NewCodedValidationError(
			core.CodeInvalidTeacherRole, errors.New(msg), core.FieldError{Field: "user_id", Error: msg},
		)
	}

	var course Course
	err = svc.repo.InTx(ctx, func(repo Repository) error {
		c, err := repo.GetCourse(ctx, courseID)
		if err != nil {
			return err
		}
		if c.HasAssistant(target.ID) {
			return ErrDuplicateAssistant
		}
		if err := repo.AddCourseAssistant(ctx, courseID, target.ID); err != nil {
			return errors.Wrap(err, "adding course assistant")
		}
		course, err = repo.GetCourse(ctx, courseID)
		return err
	})
	if err != nil {
		return Course{}, err
	}
	return course, nil
}

func (svc *Service) RemoveAssistant(ctx context.Context, actor authz.Actor, courseID, userID string) (Course, error) {
	if _, err := svc.authorizeLeadTeacher(ctx, actor, courseID); err != nil {
		return Course{}, err
	}

	var course Course
	err := svc.repo.InTx(ctx, func(repo Repository) error {
		c, err := repo.GetCourse(ctx, courseID)
		if err != nil {
			return err
		}
		if !c.HasAssistant(userID) {
			return ErrAssistantNotFound
		}
		if err := repo.RemoveCourseAssistant(ctx, courseID, userID); err != nil {
			return errors.Wrap(err, "removing course assistant")
		}
		course, err = repo.GetCourse(ctx, courseID)
		return err
	})
	if err != nil {
		return Course{}, err
	}
	return course, nil
}

// Modules & Lessons

func (svc *Service) CreateModule(ctx context.Context, actor authz.Actor, courseID string, nm NewModule) (Module, error) {
	course, err := svc.authorizeLeadTeacher(ctx, actor, courseID)
	if err != nil {
		return Module{}, err
	}

	var mod Module
	err = svc.repo.InTx(ctx, func(repo Repository) error {
		mods, err := repo.QueryModules(ctx, course.ID)
		if err != nil {
			return errors.Wrap(err, "querying modules")
		}
		for _, m := range mods {
			if m.Order == nm.Order {
				return ErrDuplicateOrder
			}
		}
		mod, err = repo.CreateModule(ctx, Module{
			CourseID:  course.ID,
			Title:     nm.Title,
			Order:     nm.Order,
			CreatedAt: nowFunc().UTC(),
		})
		return err
	})
	if err != nil {
		return Module{}, err
	}
	return mod, nil
}

func (svc *Service) GetModule(ctx context.Context, id string) (Module, error) {
	return svc.repo.GetModule(ctx, id)
}

func (svc *Service) ListModules(ctx context.Context, courseID string) ([]Module, error) {
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	return svc.repo.QueryModules(ctx, courseID)
}

// CreateLesson adds a lesson to the course and bumps its lesson counter atomically.
func (svc *Service) CreateLesson(ctx context.Context, actor authz.Actor, courseID string, nl NewLesson) (Lesson, error) {
	course, err := svc.authorizeLeadTeacher(ctx, actor, courseID)
	if err != nil {
		return Lesson{}, err
	}
	if nl.Document != "" && !isPDF(nl.Document) {
		msg := "document must be a .pdf file"
		return Lesson{}, core.NewCodedValidationError(
			core.CodeInvalidDocument, errors.New(msg), core.FieldError{Field: "document", Error: msg},
		)
	}
	if nl.ModuleID != "" {
		mod, err := svc.repo.GetModule(ctx, nl.ModuleID)
		if err != nil && errors.Cause(err) != ErrModuleNotFound {
			return Lesson{}, errors.Wrap(err, "finding module")
		}
		if err != nil || mod.CourseID != course.ID {
			return Lesson{}, core.NewValidationError(nil, core.FieldError{Field: "module_id", Error: "module not found in course"})
		}
	}

	now := nowFunc().UTC()
	var lesson Lesson
	err = svc.repo.InTx(ctx, func(repo Repository) error {
		var err error
		lesson, err = repo.CreateLesson(ctx, Lesson{
			CourseID:    course.ID,
			ModuleID:    nl.ModuleID,
			Title:       nl.Title,
			Description: nl.Description,
			Document:    nl.Document,
			Video:       nl.Video,
			CreatedBy:   actor.UserID,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return errors.Wrap(err, "creating lesson")
		}
		return repo.IncrementCourseCounter(ctx, course.ID, LessonCounter, 1)
	})
	if err != nil {
		return Lesson{}, err
	}
	return lesson, nil
}

func (svc *Service) GetLesson(ctx context.Context, id string) (Lesson, error) {
	return svc.repo.GetLesson(ctx, id)
}

func (svc *Service) ListLessons(ctx context.Context, courseID string) ([]Lesson, error) {
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	return svc.repo.QueryLessons(ctx, LessonFilter{CourseID: courseID})
}

// ConvertLessonDocument renders the lesson document to HTML. Only the lesson creator may run it.
func (svc *Service) ConvertLessonDocument(ctx context.Context, actor authz.Actor, lessonID string) (Lesson, error) {
	if !actor.Valid() {
		return Lesson{}, authz.ErrInvalidActor
	}
	lesson, err := svc.repo.GetLesson(ctx, lessonID)
	if err != nil {
		return Lesson{}, err
	}
	if err := authz.Authorize(
		actor, []authz.Role{authz.RoleLeadTeacher}, authz.Relate("lesson creator", actor.Is(lesson.CreatedBy)),
	); err != nil {
		return Lesson{}, err
	}
	if lesson.Document == "" {
		msg := "lesson has no document"
		return Lesson{}, core.NewCodedValidationError(
			core.CodeInvalidDocument, errors.New(msg), core.FieldError{Field: "document", Error: msg},
		)
	}
	if svc.converter == nil {
		return Lesson{}, ErrNoConverter
	}

	html, err := svc.converter.ConvertToHTML(ctx, lesson.Document)
	if err != nil {
		return Lesson{}, errors.Wrap(err, "converting lesson document")
	}
	lesson.HTMLContent = html
	lesson.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateLesson(ctx, lesson)
}

// Enrollment

func (svc *Service) Enroll(ctx context.Context, actor authz.Actor, courseID string) (Course, error) {
	if err := authz.Authorize(actor, []authz.Role{authz.RoleLearner}); err != nil {
		return Course{}, err
	}
	var course Course
	err := svc.repo.InTx(ctx, func(repo Repository) error {
		if _, err := repo.GetCourse(ctx, courseID); err != nil {
			return err
		}
		if err := repo.CreateEnrollment(ctx, Enrollment{
			CourseID:  courseID,
			LearnerID: actor.UserID,
			CreatedAt: nowFunc().UTC(),
		}); err != nil {
			return err
		}
		if err := repo.IncrementCourseCounter(ctx, courseID, LearnerCounter, 1); err != nil {
			return err
		}
		var err error
		course, err = repo.GetCourse(ctx, courseID)
		return err
	})
	if err != nil {
		return Course{}, err
	}
	return course, nil
}

func (svc *Service) Unenroll(ctx context.Context, actor authz.Actor, courseID string) (Course, error) {
	if err := authz.Authorize(actor, []authz.Role{authz.RoleLearner}); err != nil {
		return Course{}, err
	}
	var course Course
	err := svc.repo.InTx(ctx, func(repo Repository) error {
		if _, err := repo.GetCourse(ctx, courseID); err != nil {
			return err
		}
		if err := repo.DeleteEnrollment(ctx, courseID, actor.UserID); err != nil {
			return err
		}
		if err := repo.IncrementCourseCounter(ctx, courseID, LearnerCounter, -1); err != nil {
			return err
		}
		var err error
		course, err = repo.GetCourse(ctx, courseID)
		return err
	})
	if err != nil {
		return Course{}, err
	}
	return course, nil
}
