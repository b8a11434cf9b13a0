// Package testutil holds the fixtures shared by the package tests.
package testutil

import (
	"context"
	"net/mail"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/yekiapp/yeki/core"
	"github.com/yekiapp/yeki/core/authz"
	"github.com/yekiapp/yeki/core/curriculum"
	"github.com/yekiapp/yeki/core/exercise"
	"github.com/yekiapp/yeki/core/user"
	logsvc "github.com/yekiapp/yeki/services/logger"
)

// Password satisfies the password policy.
const Password = "Sup3r$ecret"

func NewConfig() *core.Config {
	return &core.Config{
		AppName:          "Yeki",
		Build:            "test",
		Env:              "TEST",
		TestMode:         true,
		LogLevel:         "error",
		SecretKey:        "test-secret-key",
		MediaBaseURL:     "https://media.yeki.test/files/",
		FrontendBaseURL:  "https://yeki.test",
		DefaultFromEmail: mail.Address{Name: "Yeki", Address: "noreply@yeki.test"},
		Server: core.ServerConfig{
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
		},
	}
}

// NewLogger returns a logger writing nowhere.
func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(zap.NewNop(), conf)
}

// NewValidator returns a validator with every custom validation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	role authz.Role,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateProgram(t *testing.T, repo curriculum.Repository, name, adminID string) curriculum.Program {
	now := time.Now().UTC()
	prog, err := repo.CreateProgram(context.Background(), curriculum.Program{
		Name: name, AdminID: adminID, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateProgram() failed: %v", err)
	}
	return prog
}

func CreateDepartment(t *testing.T, repo curriculum.Repository, name, programID, headID string) curriculum.Department {
	now := time.Now().UTC()
	dept, err := repo.CreateDepartment(context.Background(), curriculum.Department{
		Name: name, ProgramID: programID, HeadID: headID, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateDepartment() failed: %v", err)
	}
	return dept
}

func CreateCourse(
	t *testing.T,
	repo curriculum.Repository,
	title, departmentID, leadTeacherID string,
	assistantIDs ...string,
) curriculum.Course {
	ctx := context.Background()
	now := time.Now().UTC()
	course, err := repo.CreateCourse(ctx, curriculum.Course{
		Title:         title,
		Level:         "L1",
		Color:         "#1A2B3C",
		DepartmentID:  departmentID,
		LeadTeacherID: leadTeacherID,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	for _, id := range assistantIDs {
		if err = repo.AddCourseAssistant(ctx, course.ID, id); err != nil {
			t.Fatalf("CreateCourse() failed: %v", err)
		}
	}
	if course, err = repo.GetCourse(ctx, course.ID); err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return course
}

func Enroll(t *testing.T, repo curriculum.Repository, courseID, learnerID string) {
	ctx := context.Background()
	err := repo.CreateEnrollment(ctx, curriculum.Enrollment{CourseID: courseID, LearnerID: learnerID, CreatedAt: time.Now().UTC()})
	if err == nil {
		err = repo.IncrementCourseCounter(ctx, courseID, curriculum.LearnerCounter, 1)
	}
	if err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
}

// Questions returns count multiple choice questions worth one point each; "b" is always right.
func Questions(count int) []exercise.Question {
	qs := make([]exercise.Question, count)
	for i := range qs {
		qs[i] = exercise.Question{
			Position:      i + 1,
			Type:          exercise.MultipleChoice,
			Text:          "Question " + string(rune('A'+i)),
			CorrectAnswer: "b",
			Points:        1,
			Choices:       []string{"a", "b", "c"},
		}
	}
	return qs
}

func CreateExercise(
	t *testing.T,
	repo exercise.Repository,
	courseID, createdBy string,
	maxAttempts, timeLimitMinutes int,
	questions ...exercise.Question,
) exercise.Exercise {
	ex, err := repo.CreateExercise(context.Background(), exercise.Exercise{
		CourseID:         courseID,
		Title:            "Exercise",
		Difficulty:       2,
		TimeLimitMinutes: timeLimitMinutes,
		MaxAttempts:      maxAttempts,
		CreatedBy:        createdBy,
		Questions:        questions,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateExercise() failed: %v", err)
	}
	return ex
}
