package sqlxrepo

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/yekiapp/yeki/core"
	"github.com/yekiapp/yeki/core/curriculum"
)

type programRow struct {
	ID        string      `db:"id"`
	Name      string      `db:"name"`
	AdminID   null.String `db:"admin_id"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func (r programRow) program() curriculum.Program {
	return curriculum.Program{
		ID:        r.ID,
		Name:      r.Name,
		AdminID:   r.AdminID.String,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type departmentRow struct {
	ID        string      `db:"id"`
	Name      string      `db:"name"`
	ProgramID string      `db:"program_id"`
	HeadID    null.String `db:"head_id"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func (r departmentRow) department() curriculum.Department {
	return curriculum.Department{
		ID:        r.ID,
		Name:      r.Name,
		ProgramID: r.ProgramID,
		HeadID:    r.HeadID.String,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type courseRow struct {
	ID               string         `db:"id"`
	Title            string         `db:"title"`
	Level            string         `db:"level"`
	ShortDescription string         `db:"short_description"`
	Color            string         `db:"color"`
	Icon             string         `db:"icon"`
	DepartmentID     string         `db:"department_id"`
	LeadTeacherID    null.String    `db:"lead_teacher_id"`
	AssistantIDs     pq.StringArray `db:"assistant_ids"`
	LessonCount      int            `db:"lesson_count"`
	AssignmentCount  int            `db:"assignment_count"`
	LearnerCount     int            `db:"learner_count"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r courseRow) course() curriculum.Course {
	ids := make([]string, len(r.AssistantIDs))
	copy(ids, r.AssistantIDs)
	return curriculum.Course{
		ID:               r.ID,
		Title:            r.Title,
		Level:            r.Level,
		ShortDescription: r.ShortDescription,
		Color:            r.Color,
		Icon:             r.Icon,
		DepartmentID:     r.DepartmentID,
		LeadTeacherID:    r.LeadTeacherID.String,
		AssistantIDs:     ids,
		LessonCount:      r.LessonCount,
		AssignmentCount:  r.AssignmentCount,
		LearnerCount:     r.LearnerCount,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

type moduleRow struct {
	ID        string    `db:"id"`
	CourseID  string    `db:"course_id"`
	Title     string    `db:"title"`
	Order     int       `db:"order"`
	CreatedAt time.Time `db:"created_at"`
}

func (r moduleRow) module() curriculum.Module {
	return curriculum.Module{ID: r.ID, CourseID: r.CourseID, Title: r.Title, Order: r.Order, CreatedAt: r.CreatedAt.UTC()}
}

type lessonRow struct {
	ID          string      `db:"id"`
	CourseID    string      `db:"course_id"`
	ModuleID    null.String `db:"module_id"`
	Title       string      `db:"title"`
	Description string      `db:"description"`
	Document    string      `db:"document"`
	Video       string      `db:"video"`
	HTMLContent string      `db:"html_content"`
	CreatedBy   null.String `db:"created_by"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func (r lessonRow) lesson() curriculum.Lesson {
	return curriculum.Lesson{
		ID:          r.ID,
		CourseID:    r.CourseID,
		ModuleID:    r.ModuleID.String,
		Title:       r.Title,
		Description: r.Description,
		Document:    r.Document,
		Video:       r.Video,
		HTMLContent: r.HTMLContent,
		CreatedBy:   r.CreatedBy.String,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

var (
	programColumns    = []string{"id", "name", "admin_id", "created_at", "updated_at"}
	departmentColumns = []string{"id", "name", "program_id", "head_id", "created_at", "updated_at"}
	courseColumns     = []string{
		"c.id", "c.title", "c.level", "c.short_description", "c.color", "c.icon",
		"c.department_id", "c.lead_teacher_id",
		"ARRAY(SELECT ca.user_id::text FROM course_assistants ca WHERE ca.course_id = c.id ORDER BY ca.added_at, ca.user_id) AS assistant_ids",
		"c.lesson_count", "c.assignment_count", "c.learner_count", "c.created_at", "c.updated_at",
	}
	moduleColumns = []string{"id", "course_id", "title", `"order"`, "created_at"}
	lessonColumns = []string{
		"id", "course_id", "module_id", "title", "description", "document", "video",
		"html_content", "created_by", "created_at", "updated_at",
	}

	counterColumns = map[curriculum.Counter]string{
		curriculum.LessonCounter:     "lesson_count",
		curriculum.AssignmentCounter: "assignment_count",
		curriculum.LearnerCounter:    "learner_count",
	}
)

type curriculumRepository struct {
	conn
}

var _ curriculum.Repository = (*curriculumRepository)(nil)

func NewCurriculumRepository(db *sqlx.DB) curriculum.Repository {
	return &curriculumRepository{conn: newConn(db)}
}

func (repo *curriculumRepository) InTx(ctx context.Context, fn func(repo curriculum.Repository) error) error {
	return repo.inTransaction(ctx, func(tx conn) error {
		return fn(&curriculumRepository{conn: tx})
	})
}

// Programs

func (repo *curriculumRepository) CreateProgram(ctx context.Context, prog curriculum.Program) (curriculum.Program, error) {
	prog.ID = uuid.New().String()
	_, err := repo.exec(ctx, psql.Insert("programs").SetMap(map[string]interface{}{
		"id":         prog.ID,
		"name":       prog.Name,
		"admin_id":   nullableID(prog.AdminID),
		"created_at": prog.CreatedAt.UTC(),
		"updated_at": prog.UpdatedAt.UTC(),
	}))
	if err != nil {
		return curriculum.Program{}, errors.Wrap(err, "inserting program")
	}
	return prog, nil
}

func (repo *curriculumRepository) GetProgram(ctx context.Context, id string) (curriculum.Program, error) {
	if !validID(id) {
		return curriculum.Program{}, curriculum.ErrProgramNotFound
	}
	var row programRow
	if err := repo.get(ctx, &row, psql.Select(programColumns...).From("programs").Where(sq.Eq{"id": id})); err != nil {
		return curriculum.Program{}, trapNoRows(err, curriculum.ErrProgramNotFound, "finding program")
	}
	return row.program(), nil
}

func (repo *curriculumRepository) QueryPrograms(ctx context.Context, filter curriculum.ProgramFilter) ([]curriculum.Program, error) {
	q := psql.Select(programColumns...).From("programs").OrderBy("name ASC", "id ASC")
	if filter.AdminID != "" {
		q = q.Where(sq.Eq{"admin_id": filter.AdminID})
	}

	var rows []programRow
	if err := repo.selectAll(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying programs")
	}
	progs := make([]curriculum.Program, 0, len(rows))
	for _, r := range rows {
		progs = append(progs, r.program())
	}
	return progs, nil
}

func (repo *curriculumRepository) UpdateProgram(ctx context.Context, prog curriculum.Program) (curriculum.Program, error) {
	if !validID(prog.ID) {
		return curriculum.Program{}, curriculum.ErrProgramNotFound
	}
	n, err := repo.exec(ctx, psql.Update("programs").SetMap(map[string]interface{}{
		"name":       prog.Name,
		"admin_id":   nullableID(prog.AdminID),
		"updated_at": prog.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": prog.ID}))
	if err != nil {
		return curriculum.Program{}, errors.Wrap(err, "updating program")
	}
	if n == 0 {
		return curriculum.Program{}, curriculum.ErrProgramNotFound
	}
	return prog, nil
}

// Departments

func (repo *curriculumRepository) CreateDepartment(ctx context.Context, dept curriculum.Department) (curriculum.Department, error) {
	if !validID(dept.ProgramID) {
		return curriculum.Department{}, curriculum.ErrProgramNotFound
	}
	dept.ID = uuid.New().String()
	_, err := repo.exec(ctx, psql.Insert("departments").SetMap(map[string]interface{}{
		"id":         dept.ID,
		"name":       dept.Name,
		"program_id": dept.ProgramID,
		"head_id":    nullableID(dept.HeadID),
		"created_at": dept.CreatedAt.UTC(),
		"updated_at": dept.UpdatedAt.UTC(),
	}))
	if err != nil {
		if isForeignKeyViolation(err, "departments_program_id_fkey") {
			return curriculum.Department{}, curriculum.ErrProgramNotFound
		}
		return curriculum.Department{}, errors.Wrap(err, "inserting department")
	}
	return dept, nil
}

func (repo *curriculumRepository) GetDepartment(ctx context.Context, id string) (curriculum.Department, error) {
	if !validID(id) {
		return curriculum.Department{}, curriculum.ErrDepartmentNotFound
	}
	var row departmentRow
	if err := repo.get(ctx, &row, psql.Select(departmentColumns...).From("departments").Where(sq.Eq{"id": id})); err != nil {
		return curriculum.Department{}, trapNoRows(err, curriculum.ErrDepartmentNotFound, "finding department")
	}
	return row.department(), nil
}

func (repo *curriculumRepository) QueryDepartments(ctx context.Context, filter curriculum.DepartmentFilter) ([]curriculum.Department, error) {
	q := psql.Select(departmentColumns...).From("departments").OrderBy("name ASC", "id ASC")
	if filter.ProgramID != "" {
		if !validID(filter.ProgramID) {
			return []curriculum.Department{}, nil
		}
		q = q.Where(sq.Eq{"program_id": filter.ProgramID})
	}
	if filter.HeadID != "" {
		q = q.Where(sq.Eq{"head_id": filter.HeadID})
	}

	var rows []departmentRow
	if err := repo.selectAll(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying departments")
	}
	depts := make([]curriculum.Department, 0, len(rows))
	for _, r := range rows {
		depts = append(depts, r.department())
	}
	return depts, nil
}

func (repo *curriculumRepository) UpdateDepartment(ctx context.Context, dept curriculum.Department) (curriculum.Department, error) {
	if !validID(dept.ID) {
		return curriculum.Department{}, curriculum.ErrDepartmentNotFound
	}
	n, err := repo.exec(ctx, psql.Update("departments").SetMap(map[string]interface{}{
		"name":       dept.Name,
		"program_id": dept.ProgramID,
		"head_id":    nullableID(dept.HeadID),
		"updated_at": dept.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": dept.ID}))
	if err != nil {
		return curriculum.Department{}, errors.Wrap(err, "updating department")
	}
	if n == 0 {
		return curriculum.Department{}, curriculum.ErrDepartmentNotFound
	}
	return dept, nil
}

// Courses

func (repo *curriculumRepository) CreateCourse(ctx context.Context, course curriculum.Course) (curriculum.Course, error) {
	if !validID(course.DepartmentID) {
		return curriculum.Course{}, curriculum.ErrDepartmentNotFound
	}
	course.ID = uuid.New().String()
	_, err := repo.exec(ctx, psql.Insert("courses").SetMap(map[string]interface{}{
		"id":                course.ID,
		"title":             course.Title,
		"level":             course.Level,
		"short_description": course.ShortDescription,
		"color":             course.Color,
		"icon":              course.Icon,
		"department_id":     course.DepartmentID,
		"lead_teacher_id":   nullableID(course.LeadTeacherID),
		"created_at":        course.CreatedAt.UTC(),
		"updated_at":        course.UpdatedAt.UTC(),
	}))
	if err != nil {
		if isForeignKeyViolation(err, "courses_department_id_fkey") {
			return curriculum.Course{}, curriculum.ErrDepartmentNotFound
		}
		return curriculum.Course{}, errors.Wrap(err, "inserting course")
	}
	course.AssistantIDs = []string{}
	course.LessonCount, course.AssignmentCount, course.LearnerCount = 0, 0, 0
	return course, nil
}

func (repo *curriculumRepository) selectCourses() sq.SelectBuilder {
	return psql.Select(courseColumns...).From("courses c")
}

func (repo *curriculumRepository) GetCourse(ctx context.Context, id string) (curriculum.Course, error) {
	if !validID(id) {
		return curriculum.Course{}, curriculum.ErrCourseNotFound
	}
	var row courseRow
	if err := repo.get(ctx, &row, repo.selectCourses().Where(sq.Eq{"c.id": id})); err != nil {
		return curriculum.Course{}, trapNoRows(err, curriculum.ErrCourseNotFound, "finding course")
	}
	return row.course(), nil
}

func (repo *curriculumRepository) QueryCourses(ctx context.Context, filter curriculum.CourseFilter) ([]curriculum.Course, error) {
	q := repo.selectCourses()

	if len(filter.IDs) > 0 {
		q = q.Where(sq.Eq{"c.id": filterIDs(filter.IDs)})
	}
	if filter.DepartmentID != "" {
		if !validID(filter.DepartmentID) {
			return []curriculum.Course{}, nil
		}
		q = q.Where(sq.Eq{"c.department_id": filter.DepartmentID})
	}
	if filter.LeadTeacherID != "" {
		q = q.Where(sq.Eq{"c.lead_teacher_id": filter.LeadTeacherID})
	}
	if filter.AssistantID != "" {
		q = q.Where("EXISTS (SELECT 1 FROM course_assistants ca WHERE ca.course_id = c.id AND ca.user_id = ?)", filter.AssistantID)
	}
	if filter.LearnerID != "" {
		q = q.Where("EXISTS (SELECT 1 FROM enrollments e WHERE e.course_id = c.id AND e.learner_id = ?)", filter.LearnerID)
	}
	if filter.DepartmentHead != "" || filter.ProgramAdmin != "" {
		q = q.Join("departments d ON d.id = c.department_id")
		if filter.DepartmentHead != "" {
			q = q.Where(sq.Eq{"d.head_id": filter.DepartmentHead})
		}
		if filter.ProgramAdmin != "" {
			q = q.Join("programs p ON p.id = d.program_id").Where(sq.Eq{"p.admin_id": filter.ProgramAdmin})
		}
	}

	orderings := core.AllowedOrderings(filter.Orderings, curriculum.CourseOrderingFields...)
	orderBy := make([]string, 0, len(orderings)+2)
	for _, ord := range orderings {
		orderBy = append(orderBy, "c."+ord.String())
	}
	q = q.OrderBy(append(orderBy, "c.title ASC", "c.id ASC")...)

	var rows []courseRow
	if err := repo.selectAll(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]curriculum.Course, 0, len(rows))
	for _, r := range rows {
		courses = append(courses, r.course())
	}
	return courses, nil
}

func (repo *curriculumRepository) UpdateCourse(ctx context.Context, course curriculum.Course) (curriculum.Course, error) {
	if !validID(course.ID) {
		return curriculum.Course{}, curriculum.ErrCourseNotFound
	}
	if !validID(course.DepartmentID) {
		return curriculum.Course{}, curriculum.ErrDepartmentNotFound
	}
	n, err := repo.exec(ctx, psql.Update("courses").SetMap(map[string]interface{}{
		"title":             course.Title,
		"level":             course.Level,
		"short_description": course.ShortDescription,
		"color":             course.Color,
		"icon":              course.Icon,
		"department_id":     course.DepartmentID,
		"lead_teacher_id":   nullableID(course.LeadTeacherID),
		"updated_at":        course.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": course.ID}))
	if err != nil {
		if isForeignKeyViolation(err, "courses_department_id_fkey") {
			return curriculum.Course{}, curriculum.ErrDepartmentNotFound
		}
		return curriculum.Course{}, errors.Wrap(err, "updating course")
	}
	if n == 0 {
		return curriculum.Course{}, curriculum.ErrCourseNotFound
	}
	return repo.GetCourse(ctx, course.ID)
}

func (repo *curriculumRepository) AddCourseAssistant(ctx context.Context, courseID, userID string) error {
	if !validID(courseID) {
		return curriculum.ErrCourseNotFound
	}
	_, err := repo.exec(ctx, psql.Insert("course_assistants").
		Columns("course_id", "user_id", "added_at").
		Values(courseID, userID, time.Now().UTC()))
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return curriculum.ErrDuplicateAssistant
	case isForeignKeyViolation(err, "course_assistants_course_id_fkey"):
		return curriculum.ErrCourseNotFound
	default:
		return errors.Wrap(err, "inserting course assistant")
	}
}

func (repo *curriculumRepository) RemoveCourseAssistant(ctx context.Context, courseID, userID string) error {
	if !validID(courseID) || !validID(userID) {
		return curriculum.ErrAssistantNotFound
	}
	n, err := repo.exec(ctx, psql.Delete("course_assistants").Where(sq.Eq{"course_id": courseID, "user_id": userID}))
	if err != nil {
		return errors.Wrap(err, "deleting course assistant")
	}
	if n == 0 {
		return curriculum.ErrAssistantNotFound
	}
	return nil
}

func (repo *curriculumRepository) IncrementCourseCounter(ctx context.Context, courseID string, counter curriculum.Counter, delta int) error {
	return incrementCourseCounter(ctx, repo.conn, courseID, counter, delta)
}

func incrementCourseCounter(ctx context.Context, c conn, courseID string, counter curriculum.Counter, delta int) error {
	col, ok := counterColumns[counter]
	if !ok {
		return errors.Errorf("unknown course counter %q", counter)
	}
	if !validID(courseID) {
		return curriculum.ErrCourseNotFound
	}
	n, err := c.exec(ctx, psql.Update("courses").
		Set(col, sq.Expr(col+" + ?", delta)).
		Where(sq.Eq{"id": courseID}))
	if err != nil {
		return errors.Wrapf(err, "incrementing course %s", col)
	}
	if n == 0 {
		return curriculum.ErrCourseNotFound
	}
	return nil
}

// Modules & Lessons

func (repo *curriculumRepository) CreateModule(ctx context.Context, mod curriculum.Module) (curriculum.Module, error) {
	if !validID(mod.CourseID) {
		return curriculum.Module{}, curriculum.ErrCourseNotFound
	}
	mod.ID = uuid.New().String()
	_, err := repo.exec(ctx, psql.Insert("modules").
		Columns("id", "course_id", "title", `"order"`, "created_at").
		Values(mod.ID, mod.CourseID, mod.Title, mod.Order, mod.CreatedAt.UTC()))
	switch {
	case err == nil:
		return mod, nil
	case isUniqueViolation(err, "modules_course_id_order_key"):
		return curriculum.Module{}, curriculum.ErrDuplicateOrder
	case isForeignKeyViolation(err, "modules_course_id_fkey"):
		return curriculum.Module{}, curriculum.ErrCourseNotFound
	default:
		return curriculum.Module{}, errors.Wrap(err, "inserting module")
	}
}

func (repo *curriculumRepository) GetModule(ctx context.Context, id string) (curriculum.Module, error) {
	if !validID(id) {
		return curriculum.Module{}, curriculum.ErrModuleNotFound
	}
	var row moduleRow
	if err := repo.get(ctx, &row, psql.Select(moduleColumns...).From("modules").Where(sq.Eq{"id": id})); err != nil {
		return curriculum.Module{}, trapNoRows(err, curriculum.ErrModuleNotFound, "finding module")
	}
	return row.module(), nil
}

func (repo *curriculumRepository) QueryModules(ctx context.Context, courseID string) ([]curriculum.Module, error) {
	if !validID(courseID) {
		return []curriculum.Module{}, nil
	}
	var rows []moduleRow
	q := psql.Select(moduleColumns...).From("modules").Where(sq.Eq{"course_id": courseID}).OrderBy(`"order" ASC`)
	if err := repo.selectAll(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying modules")
	}
	mods := make([]curriculum.Module, 0, len(rows))
	for _, r := range rows {
		mods = append(mods, r.module())
	}
	return mods, nil
}

func lessonValues(lesson curriculum.Lesson) map[string]interface{} {
	return map[string]interface{}{
		"course_id":    lesson.CourseID,
		"module_id":    nullableID(lesson.ModuleID),
		"title":        lesson.Title,
		"description":  lesson.Description,
		"document":     lesson.Document,
		"video":        lesson.Video,
		"html_content": lesson.HTMLContent,
		"created_by":   nullableID(lesson.CreatedBy),
		"created_at":   lesson.CreatedAt.UTC(),
		"updated_at":   lesson.UpdatedAt.UTC(),
	}
}

func (repo *curriculumRepository) CreateLesson(ctx context.Context, lesson curriculum.Lesson) (curriculum.Lesson, error) {
	if !validID(lesson.CourseID) {
		return curriculum.Lesson{}, curriculum.ErrCourseNotFound
	}
	lesson.ID = uuid.New().String()
	values := lessonValues(lesson)
	values["id"] = lesson.ID

	if _, err := repo.exec(ctx, psql.Insert("lessons").SetMap(values)); err != nil {
		if isForeignKeyViolation(err, "lessons_course_id_fkey") {
			return curriculum.Lesson{}, curriculum.ErrCourseNotFound
		}
		return curriculum.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return lesson, nil
}

func (repo *curriculumRepository) GetLesson(ctx context.Context, id string) (curriculum.Lesson, error) {
	if !validID(id) {
		return curriculum.Lesson{}, curriculum.ErrLessonNotFound
	}
	var row lessonRow
	if err := repo.get(ctx, &row, psql.Select(lessonColumns...).From("lessons").Where(sq.Eq{"id": id})); err != nil {
		return curriculum.Lesson{}, trapNoRows(err, curriculum.ErrLessonNotFound, "finding lesson")
	}
	return row.lesson(), nil
}

func (repo *curriculumRepository) QueryLessons(ctx context.Context, filter curriculum.LessonFilter) ([]curriculum.Lesson, error) {
	q := psql.Select(lessonColumns...).From("lessons").OrderBy("created_at ASC", "title ASC")
	if filter.CourseID != "" {
		if !validID(filter.CourseID) {
			return []curriculum.Lesson{}, nil
		}
		q = q.Where(sq.Eq{"course_id": filter.CourseID})
	}
	if filter.ModuleID != "" {
		if !validID(filter.ModuleID) {
			return []curriculum.Lesson{}, nil
		}
		q = q.Where(sq.Eq{"module_id": filter.ModuleID})
	}

	var rows []lessonRow
	if err := repo.selectAll(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	lessons := make([]curriculum.Lesson, 0, len(rows))
	for _, r := range rows {
		lessons = append(lessons, r.lesson())
	}
	return lessons, nil
}

func (repo *curriculumRepository) UpdateLesson(ctx context.Context, lesson curriculum.Lesson) (curriculum.Lesson, error) {
	if !validID(lesson.ID) {
		return curriculum.Lesson{}, curriculum.ErrLessonNotFound
	}
	values := lessonValues(lesson)
	delete(values, "created_at")

	n, err := repo.exec(ctx, psql.Update("lessons").SetMap(values).Where(sq.Eq{"id": lesson.ID}))
	if err != nil {
		return curriculum.Lesson{}, errors.Wrap(err, "updating lesson")
	}
	if n == 0 {
		return curriculum.Lesson{}, curriculum.ErrLessonNotFound
	}
	return lesson, nil
}

// Enrollment

func (repo *curriculumRepository) CreateEnrollment(ctx context.Context, enr curriculum.Enrollment) error {
	if !validID(enr.CourseID) {
		return curriculum.ErrCourseNotFound
	}
	_, err := repo.exec(ctx, psql.Insert("enrollments").
		Columns("course_id", "learner_id", "created_at").
		Values(enr.CourseID, enr.LearnerID, enr.CreatedAt.UTC()))
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err, "enrollments_pkey"):
		return curriculum.ErrAlreadyEnrolled
	case isForeignKeyViolation(err, "enrollments_course_id_fkey"):
		return curriculum.ErrCourseNotFound
	default:
		return errors.Wrap(err, "inserting enrollment")
	}
}

func (repo *curriculumRepository) DeleteEnrollment(ctx context.Context, courseID, learnerID string) error {
	if !validID(courseID) || !validID(learnerID) {
		return curriculum.ErrNotEnrolled
	}
	n, err := repo.exec(ctx, psql.Delete("enrollments").Where(sq.Eq{"course_id": courseID, "learner_id": learnerID}))
	if err != nil {
		return errors.Wrap(err, "deleting enrollment")
	}
	if n == 0 {
		return curriculum.ErrNotEnrolled
	}
	return nil
}
