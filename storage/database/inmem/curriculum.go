package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/yekiapp/yeki/core"
	"github.com/yekiapp/yeki/core/curriculum"
)

type curriculumRepository struct {
	conn
}

var _ curriculum.Repository = (*curriculumRepository)(nil)

func NewCurriculumRepository(db *DB) curriculum.Repository {
	return &curriculumRepository{conn: conn{db: db}}
}

func (repo *curriculumRepository) InTx(_ context.Context, fn func(repo curriculum.Repository) error) error {
	return repo.inTransaction(func(tx conn) error {
		return fn(&curriculumRepository{conn: tx})
	})
}

// Programs

func (repo *curriculumRepository) CreateProgram(_ context.Context, prog curriculum.Program) (curriculum.Program, error) {
	defer repo.lock()()

	prog.ID = uuid.New().String()
	repo.db.t.programs[prog.ID] = prog
	return prog, nil
}

func (repo *curriculumRepository) GetProgram(_ context.Context, id string) (curriculum.Program, error) {
	defer repo.lock()()

	if prog, ok := repo.db.t.programs[id]; ok {
		return prog, nil
	}
	return curriculum.Program{}, curriculum.ErrProgramNotFound
}

func (repo *curriculumRepository) QueryPrograms(_ context.Context, filter curriculum.ProgramFilter) ([]curriculum.Program, error) {
	defer repo.lock()()

	progs := make([]curriculum.Program, 0)
	for _, prog := range repo.db.t.programs {
		if filter.AdminID != "" && prog.AdminID != filter.AdminID {
			continue
		}
		progs = append(progs, prog)
	}
	sort.Slice(progs, func(i, j int) bool { return progs[i].Name < progs[j].Name })
	return progs, nil
}

func (repo *curriculumRepository) UpdateProgram(_ context.Context, prog curriculum.Program) (curriculum.Program, error) {
	defer repo.lock()()

	if _, ok := repo.db.t.programs[prog.ID]; !ok {
		return curriculum.Program{}, curriculum.ErrProgramNotFound
	}
	repo.db.t.programs[prog.ID] = prog
	return prog, nil
}

// Departments

func (repo *curriculumRepository) CreateDepartment(_ context.Context, dept curriculum.Department) (curriculum.Department, error) {
	defer repo.lock()()

	if _, ok := repo.db.t.programs[dept.ProgramID]; !ok {
		return curriculum.Department{}, curriculum.ErrProgramNotFound
	}
	dept.ID = uuid.New().String()
	repo.db.t.departments[dept.ID] = dept
	return dept, nil
}

func (repo *curriculumRepository) GetDepartment(_ context.Context, id string) (curriculum.Department, error) {
	defer repo.lock()()

	if dept, ok := repo.db.t.departments[id]; ok {
		return dept, nil
	}
	return curriculum.Department{}, curriculum.ErrDepartmentNotFound
}

func (repo *curriculumRepository) QueryDepartments(_ context.Context, filter curriculum.DepartmentFilter) ([]curriculum.Department, error) {
	defer repo.lock()()

	depts := make([]curriculum.Department, 0)
	for _, dept := range repo.db.t.departments {
		if filter.ProgramID != "" && dept.ProgramID != filter.ProgramID {
			continue
		}
		if filter.HeadID != "" && dept.HeadID != filter.HeadID {
			continue
		}
		depts = append(depts, dept)
	}
	sort.Slice(depts, func(i, j int) bool { return depts[i].Name < depts[j].Name })
	return depts, nil
}

func (repo *curriculumRepository) UpdateDepartment(_ context.Context, dept curriculum.Department) (curriculum.Department, error) {
	defer repo.lock()()

	if _, ok := repo.db.t.departments[dept.ID]; !ok {
		return curriculum.Department{}, curriculum.ErrDepartmentNotFound
	}
	repo.db.t.departments[dept.ID] = dept
	return dept, nil
}

// Courses

func (repo *curriculumRepository) CreateCourse(_ context.Context, course curriculum.Course) (curriculum.Course, error) {
	defer repo.lock()()

	if _, ok := repo.db.t.departments[course.DepartmentID]; !ok {
		return curriculum.Course{}, curriculum.ErrDepartmentNotFound
	}
	course.ID = uuid.New().String()
	course.AssistantIDs = append([]string{}, course.AssistantIDs...)
	course.LessonCount, course.AssignmentCount, course.LearnerCount = 0, 0, 0
	repo.db.t.courses[course.ID] = course
	return course, nil
}

func (repo *curriculumRepository) GetCourse(_ context.Context, id string) (curriculum.Course, error) {
	defer repo.lock()()

	if course, ok := repo.db.t.courses[id]; ok {
		return course, nil
	}
	return curriculum.Course{}, curriculum.ErrCourseNotFound
}

func (repo *curriculumRepository) matchesCourse(course curriculum.Course, filter curriculum.CourseFilter) bool {
	if len(filter.IDs) > 0 && !isExcluded(course.ID, filter.IDs) {
		return false
	}
	if filter.DepartmentID != "" && course.DepartmentID != filter.DepartmentID {
		return false
	}
	if filter.LeadTeacherID != "" && course.LeadTeacherID != filter.LeadTeacherID {
		return false
	}
	if filter.AssistantID != "" && !course.HasAssistant(filter.AssistantID) {
		return false
	}
	if filter.LearnerID != "" {
		if _, ok := repo.db.t.enrollments[enrollmentKey{course.ID, filter.LearnerID}]; !ok {
			return false
		}
	}
	if filter.DepartmentHead != "" || filter.ProgramAdmin != "" {
		dept := repo.db.t.departments[course.DepartmentID]
		if filter.DepartmentHead != "" && dept.HeadID != filter.DepartmentHead {
			return false
		}
		if filter.ProgramAdmin != "" && repo.db.t.programs[dept.ProgramID].AdminID != filter.ProgramAdmin {
			return false
		}
	}
	return true
}

func (repo *curriculumRepository) QueryCourses(_ context.Context, filter curriculum.CourseFilter) ([]curriculum.Course, error) {
	defer repo.lock()()

	courses := make([]curriculum.Course, 0)
	for _, course := range repo.db.t.courses {
		if repo.matchesCourse(course, filter) {
			courses = append(courses, course)
		}
	}

	orderings := append(filter.Orderings, core.DBOrdering{Field: "title", Ascending: true}, core.DBOrdering{Field: "id", Ascending: true})
	sort.SliceStable(courses, func(i, j int) bool {
		for _, ord := range orderings {
			if c := compareCourses(courses[i], courses[j], ord.Field); c != 0 {
				return (c < 0) == ord.Ascending
			}
		}
		return false
	})
	return courses, nil
}

func compareCourses(a, b curriculum.Course, field string) int {
	switch field {
	case "title":
		return strings.Compare(a.Title, b.Title)
	case "level":
		return strings.Compare(a.Level, b.Level)
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "learner_count":
		return a.LearnerCount - b.LearnerCount
	case "id":
		return strings.Compare(a.ID, b.ID)
	default:
		return 0
	}
}

func (repo *curriculumRepository) UpdateCourse(_ context.Context, course curriculum.Course) (curriculum.Course, error) {
	defer repo.lock()()

	orig, ok := repo.db.t.courses[course.ID]
	if !ok {
		return curriculum.Course{}, curriculum.ErrCourseNotFound
	}
	if _, ok := repo.db.t.departments[course.DepartmentID]; !ok {
		return curriculum.Course{}, curriculum.ErrDepartmentNotFound
	}
	course.AssistantIDs = orig.AssistantIDs
	course.LessonCount = orig.LessonCount
	course.AssignmentCount = orig.AssignmentCount
	course.LearnerCount = orig.LearnerCount
	repo.db.t.courses[course.ID] = course
	return course, nil
}

func (repo *curriculumRepository) AddCourseAssistant(_ context.Context, courseID, userID string) error {
	defer repo.lock()()

	course, ok := repo.db.t.courses[courseID]
	if !ok {
		return curriculum.ErrCourseNotFound
	}
	if course.HasAssistant(userID) {
		return curriculum.ErrDuplicateAssistant
	}
	ids := make([]string, 0, len(course.AssistantIDs)+1)
	course.AssistantIDs = append(append(ids, course.AssistantIDs...), userID)
	repo.db.t.courses[courseID] = course
	return nil
}

func (repo *curriculumRepository) RemoveCourseAssistant(_ context.Context, courseID, userID string) error {
	defer repo.lock()()

	course, ok := repo.db.t.courses[courseID]
	if !ok {
		return curriculum.ErrCourseNotFound
	}
	if !course.HasAssistant(userID) {
		return curriculum.ErrAssistantNotFound
	}
	ids := make([]string, 0, len(course.AssistantIDs))
	for _, id := range course.AssistantIDs {
		if id != userID {
			ids = append(ids, id)
		}
	}
	course.AssistantIDs = ids
	repo.db.t.courses[courseID] = course
	return nil
}

func (repo *curriculumRepository) IncrementCourseCounter(_ context.Context, courseID string, counter curriculum.Counter, delta int) error {
	defer repo.lock()()
	return incrementCourseCounter(repo.db, courseID, counter, delta)
}

// incrementCourseCounter expects the store lock to be held.
func incrementCourseCounter(db *DB, courseID string, counter curriculum.Counter, delta int) error {
	course, ok := db.t.courses[courseID]
	if !ok {
		return curriculum.ErrCourseNotFound
	}
	switch counter {
	case curriculum.LessonCounter:
		course.LessonCount += delta
	case curriculum.AssignmentCounter:
		course.AssignmentCount += delta
	case curriculum.LearnerCounter:
		course.LearnerCount += delta
	default:
		return errors.Errorf("unknown course counter %q", counter)
	}
	db.t.courses[courseID] = course
	return nil
}

// Modules & Lessons

func (repo *curriculumRepository) CreateModule(_ context.Context, mod curriculum.Module) (curriculum.Module, error) {
	defer repo.lock()()

	if _, ok := repo.db.t.courses[mod.CourseID]; !ok {
		return curriculum.Module{}, curriculum.ErrCourseNotFound
	}
	for _, m := range repo.db.t.modules {
		if m.CourseID == mod.CourseID && m.Order == mod.Order {
			return curriculum.Module{}, curriculum.ErrDuplicateOrder
		}
	}
	mod.ID = uuid.New().String()
	repo.db.t.modules[mod.ID] = mod
	return mod, nil
}

func (repo *curriculumRepository) GetModule(_ context.Context, id string) (curriculum.Module, error) {
	defer repo.lock()()

	if mod, ok := repo.db.t.modules[id]; ok {
		return mod, nil
	}
	return curriculum.Module{}, curriculum.ErrModuleNotFound
}

func (repo *curriculumRepository) QueryModules(_ context.Context, courseID string) ([]curriculum.Module, error) {
	defer repo.lock()()

	mods := make([]curriculum.Module, 0)
	for _, mod := range repo.db.t.modules {
		if mod.CourseID == courseID {
			mods = append(mods, mod)
		}
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i].Order < mods[j].Order })
	return mods, nil
}

func (repo *curriculumRepository) CreateLesson(_ context.Context, lesson curriculum.Lesson) (curriculum.Lesson, error) {
	defer repo.lock()()

	if _, ok := repo.db.t.courses[lesson.CourseID]; !ok {
		return curriculum.Lesson{}, curriculum.ErrCourseNotFound
	}
	lesson.ID = uuid.New().String()
	repo.db.t.lessons[lesson.ID] = lesson
	return lesson, nil
}

func (repo *curriculumRepository) GetLesson(_ context.Context, id string) (curriculum.Lesson, error) {
	defer repo.lock()()

	if lesson, ok := repo.db.t.lessons[id]; ok {
		return lesson, nil
	}
	return curriculum.Lesson{}, curriculum.ErrLessonNotFound
}

func (repo *curriculumRepository) QueryLessons(_ context.Context, filter curriculum.LessonFilter) ([]curriculum.Lesson, error) {
	defer repo.lock()()

	lessons := make([]curriculum.Lesson, 0)
	for _, lesson := range repo.db.t.lessons {
		if filter.CourseID != "" && lesson.CourseID != filter.CourseID {
			continue
		}
		if filter.ModuleID != "" && lesson.ModuleID != filter.ModuleID {
			continue
		}
		lessons = append(lessons, lesson)
	}
	sort.Slice(lessons, func(i, j int) bool {
		if lessons[i].CreatedAt.Equal(lessons[j].CreatedAt) {
			return lessons[i].Title < lessons[j].Title
		}
		return lessons[i].CreatedAt.Before(lessons[j].CreatedAt)
	})
	return lessons, nil
}

func (repo *curriculumRepository) UpdateLesson(_ context.Context, lesson curriculum.Lesson) (curriculum.Lesson, error) {
	defer repo.lock()()

	if _, ok := repo.db.t.lessons[lesson.ID]; !ok {
		return curriculum.Lesson{}, curriculum.ErrLessonNotFound
	}
	repo.db.t.lessons[lesson.ID] = lesson
	return lesson, nil
}

// Enrollment

func (repo *curriculumRepository) CreateEnrollment(_ context.Context, enr curriculum.Enrollment) error {
	defer repo.lock()()

	key := enrollmentKey{enr.CourseID, enr.LearnerID}
	if _, ok := repo.db.t.enrollments[key]; ok {
		return curriculum.ErrAlreadyEnrolled
	}
	repo.db.t.enrollments[key] = enr
	return nil
}

func (repo *curriculumRepository) DeleteEnrollment(_ context.Context, courseID, learnerID string) error {
	defer repo.lock()()

	key := enrollmentKey{courseID, learnerID}
	if _, ok := repo.db.t.enrollments[key]; !ok {
		return curriculum.ErrNotEnrolled
	}
	delete(repo.db.t.enrollments, key)
	return nil
}
