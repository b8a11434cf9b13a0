package stats

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/yekiapp/yeki/core"
	"github.com/yekiapp/yeki/core/authz"
	"github.com/yekiapp/yeki/core/curriculum"
	"github.com/yekiapp/yeki/core/user"
)

var ErrProgramAdminNotFound = core.NewError(core.KindNotFound, "program admin not found")

type (
	// Totals are the raw platform-wide figures; AveragePercentage is not rounded.
	Totals struct {
		Learners          int
		Courses           int
		AveragePercentage float64
	}

	GlobalStats struct {
		TotalLearners int     `json:"total_learners"`
		TotalCourses  int     `json:"total_courses"`
		GlobalAverage float64 `json:"global_average"`
	}

	ProgramAdminStats struct {
		AdminID     string `json:"admin_id"`
		AdminName   string `json:"admin_name"`
		Departments int    `json:"departments"`
		Courses     int    `json:"courses"`
		Lessons     int    `json:"lessons"`
	}

	ProgramSummary struct {
		ProgramID    string  `json:"program_id"`
		Name         string  `json:"name"`
		Courses      int     `json:"courses"`
		Learners     int     `json:"learners"`
		AverageScore float64 `json:"average_score"`
	}

	Dashboard struct {
		Role        authz.Role              `json:"role"`
		Name        string                  `json:"name"`
		Programs    []curriculum.Program    `json:"programs,omitempty"`
		Departments []curriculum.Department `json:"departments,omitempty"`
		Courses     []curriculum.Course     `json:"courses,omitempty"`
	}
)

type (
	Repository interface {
		// GlobalTotals counts active learners and courses, and averages every evaluation percentage.
		GlobalTotals(ctx context.Context) (Totals, error)
		// CountProgramAdminContent counts the departments, courses and lessons of the programs adminID administers.
		CountProgramAdminContent(ctx context.Context, adminID string) (departments, courses, lessons int, err error)
		// ProgramSummaries returns per program course and learner counts, averages not rounded.
		ProgramSummaries(ctx context.Context) ([]ProgramSummary, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	CurriculumReader interface {
		QueryPrograms(ctx context.Context, filter curriculum.ProgramFilter) ([]curriculum.Program, error)
		QueryDepartments(ctx context.Context, filter curriculum.DepartmentFilter) ([]curriculum.Department, error)
		QueryCourses(ctx context.Context, filter curriculum.CourseFilter) ([]curriculum.Course, error)
	}

	Service struct {
		repo       Repository
		users      UserGetter
		curriculum CurriculumReader
	}
)

func NewService(repo Repository, users UserGetter, curriculum CurriculumReader) *Service {
	return &Service{repo: repo, users: users, curriculum: curriculum}
}

// round2 rounds to 2 decimals.
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func (svc *Service) Global(ctx context.Context) (GlobalStats, error) {
	totals, err := svc.repo.GlobalTotals(ctx)
	if err != nil {
		return GlobalStats{}, errors.Wrap(err, "computing global totals")
	}
	return GlobalStats{
		TotalLearners: totals.Learners,
		TotalCourses:  totals.Courses,
		GlobalAverage: round2(totals.AveragePercentage),
	}, nil
}

// ProgramAdmin counts the content of the programs administered by a program admin.
func (svc *Service) ProgramAdmin(ctx context.Context, adminID string) (ProgramAdminStats, error) {
	usr, err := svc.users.GetByID(ctx, adminID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return ProgramAdminStats{}, ErrProgramAdminNotFound
		}
		return ProgramAdminStats{}, errors.Wrap(err, "finding user by ID")
	}
	if usr.Role != authz.RoleDepartmentHeadAdmin {
		return ProgramAdminStats{}, ErrProgramAdminNotFound
	}

	depts, courses, lessons, err := svc.repo.CountProgramAdminContent(ctx, usr.ID)
	if err != nil {
		return ProgramAdminStats{}, errors.Wrap(err, "counting program admin content")
	}
	return ProgramAdminStats{
		AdminID:     usr.ID,
		AdminName:   usr.Name,
		Departments: depts,
		Courses:     courses,
		Lessons:     lessons,
	}, nil
}

func (svc *Service) ProgramSummaries(ctx context.Context) ([]ProgramSummary, error) {
	sums, err := svc.repo.ProgramSummaries(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "summarizing programs")
	}
	for i := range sums {
		sums[i].AverageScore = round2(sums[i].AverageScore)
	}
	return sums, nil
}

// Dashboard returns the slice of the hierarchy relevant to the user's role.
func (svc *Service) Dashboard(ctx context.Context, usr user.User) (Dashboard, error) {
	dash := Dashboard{Role: usr.Role, Name: usr.Name}
	var err error
	switch usr.Role {
	case authz.RoleAdmin:
		dash.Programs, err = svc.curriculum.QueryPrograms(ctx, curriculum.ProgramFilter{})
	case authz.RoleDepartmentHeadAdmin:
		dash.Programs, err = svc.curriculum.QueryPrograms(ctx, curriculum.ProgramFilter{AdminID: usr.ID})
	case authz.RoleUnitHead:
		dash.Departments, err = svc.curriculum.QueryDepartments(ctx, curriculum.DepartmentFilter{HeadID: usr.ID})
	case authz.RoleLeadTeacher:
		dash.Courses, err = svc.curriculum.QueryCourses(ctx, curriculum.CourseFilter{LeadTeacherID: usr.ID})
	case authz.RoleAssistantTeacher:
		dash.Courses, err = svc.curriculum.QueryCourses(ctx, curriculum.CourseFilter{AssistantID: usr.ID})
	case authz.RoleLearner:
		dash.Courses, err = svc.curriculum.QueryCourses(ctx, curriculum.CourseFilter{LearnerID: usr.ID})
	default:
		return Dashboard{}, authz.ErrInvalidActor
	}
	if err != nil {
		return Dashboard{}, errors.Wrap(err, "building dashboard")
	}
	return dash, nil
}
