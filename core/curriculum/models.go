package curriculum

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/yekiapp/yeki/core"
)

type Program struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AdminID   string    `json:"admin_id,omitempty"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type Department struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ProgramID string    `json:"program_id"`
	HeadID    string    `json:"head_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Course struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Level            string    `json:"level"`
	ShortDescription string    `json:"short_description"`
	Color            string    `json:"color"`
	Icon             string    `json:"icon"`
	DepartmentID     string    `json:"department_id"`
	LeadTeacherID    string    `json:"lead_teacher_id,omitempty"`
	AssistantIDs     []string  `json:"assistant_ids"`
	LessonCount      int       `json:"lesson_count"`
	AssignmentCount  int       `json:"assignment_count"`
	LearnerCount     int       `json:"learner_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HasAssistant reports whether userID is one of the course assistants.
func (c Course) HasAssistant(userID string) bool {
	for _, id := range c.AssistantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type Module struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"course_id"`
	Title     string    `json:"title"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
}

type Lesson struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"course_id"`
	ModuleID    string    `json:"module_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Document    string    `json:"document,omitempty"`
	Video       string    `json:"video,omitempty"`
	HTMLContent string    `json:"html_content,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Enrollment struct {
	CourseID  string    `json:"course_id"`
	LearnerID string    `json:"learner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Counter is one of the engine-maintained course counters.
type Counter string

const (
	LessonCounter     Counter = "lesson_count"
	AssignmentCounter Counter = "assignment_count"
	LearnerCounter    Counter = "learner_count"
)

type NewProgram struct {
	Name    string `json:"name" validate:"required"`
	AdminID string `json:"admin_id"`
}

func (np *NewProgram) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	np.AdminID = core.CleanString(np.AdminID)
	return validate.Struct(np)
}

type AssignProgramAdmin struct {
	AdminID string `json:"admin_id" validate:"required"`
}

func (ap *AssignProgramAdmin) Validate(validate *validator.Validate) error {
	ap.AdminID = core.CleanString(ap.AdminID)
	return validate.Struct(ap)
}

type NewDepartment struct {
	Name      string `json:"name" validate:"required"`
	ProgramID string `json:"program_id" validate:"required"`
	HeadID    string `json:"head_id"`
}

func (nd *NewDepartment) Validate(validate *validator.Validate) error {
	nd.Name = core.CleanString(nd.Name)
	nd.ProgramID = core.CleanString(nd.ProgramID)
	nd.HeadID = core.CleanString(nd.HeadID)
	return validate.Struct(nd)
}

// UpdateDepartment is a partial update; a null head_id clears the head.
type UpdateDepartment struct {
	Name   core.OptionalString `json:"name"`
	HeadID core.OptionalString `json:"head_id"`
}

type NewCourse struct {
	Title            string `json:"title" validate:"required"`
	Level            string `json:"level" validate:"required"`
	ShortDescription string `json:"short_description"`
	Color            string `json:"color"`
	Icon             string `json:"icon"`
	DepartmentID     string `json:"department_id" validate:"required"`
	LeadTeacherID    string `json:"lead_teacher_id"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Level = core.CleanString(nc.Level)
	nc.ShortDescription = core.CleanString(nc.ShortDescription)
	nc.Color = core.CleanString(nc.Color)
	nc.Icon = core.CleanString(nc.Icon)
	nc.DepartmentID = core.CleanString(nc.DepartmentID)
	nc.LeadTeacherID = core.CleanString(nc.LeadTeacherID)
	return validate.Struct(nc)
}

// UpdateCourse is a partial update. Lead teachers may only send the display fields.
type UpdateCourse struct {
	Title            core.OptionalString `json:"title"`
	Level            core.OptionalString `json:"level"`
	ShortDescription core.OptionalString `json:"short_description"`
	Color            core.OptionalString `json:"color"`
	Icon             core.OptionalString `json:"icon"`
	DepartmentID     core.OptionalString `json:"department_id"`
	LeadTeacherID    core.OptionalString `json:"lead_teacher_id"`
}

// touchesStructure reports whether non-display fields are being changed.
func (uc UpdateCourse) touchesStructure() bool {
	return uc.DepartmentID.Set || uc.LeadTeacherID.Set
}

type NewModule struct {
	Title string `json:"title" validate:"required"`
	Order int    `json:"order" validate:"gte=0"`
}

func (nm *NewModule) Validate(validate *validator.Validate) error {
	nm.Title = core.CleanString(nm.Title)
	return validate.Struct(nm)
}

type NewLesson struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	ModuleID    string `json:"module_id"`
	Document    string `json:"document"`
	Video       string `json:"video"`
}

func (nl *NewLesson) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	nl.Description = core.CleanString(nl.Description)
	nl.ModuleID = core.CleanString(nl.ModuleID)
	nl.Document = core.CleanString(nl.Document)
	nl.Video = core.CleanString(nl.Video)
	return validate.Struct(nl)
}

func isPDF(document string) bool {
	return strings.HasSuffix(strings.ToLower(document), ".pdf")
}

type AddAssistant struct {
	UserID string `json:"user_id" validate:"required"`
}

func (aa *AddAssistant) Validate(validate *validator.Validate) error {
	aa.UserID = core.CleanString(aa.UserID)
	return validate.Struct(aa)
}

type ProgramFilter struct {
	AdminID string
}

type DepartmentFilter struct {
	ProgramID string
	HeadID    string
}

// CourseFilter applies AND operation on its set fields.
type CourseFilter struct {
	IDs            []string
	DepartmentID   string
	DepartmentHead string // courses of departments headed by this user
	ProgramAdmin   string // courses of programs administered by this user
	LeadTeacherID  string
	AssistantID    string
	LearnerID      string // courses this learner is enrolled in
	Orderings      []core.DBOrdering
}

// CourseOrderingFields are the fields course listings may be ordered by.
var CourseOrderingFields = []string{"title", "level", "created_at", "learner_count"}

type LessonFilter struct {
	CourseID string
	ModuleID string
}
