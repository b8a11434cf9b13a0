package exercise

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/yekiapp/yeki/core"
	"github.com/yekiapp/yeki/core/authz"
	"github.com/yekiapp/yeki/core/curriculum"
)

var (
	nowFunc = time.Now // mockable

	// errors
	ErrExerciseNotFound       = core.NewError(core.KindNotFound, "exercise not found")
	ErrSessionNotFound        = core.NewError(core.KindNotFound, "no session found for this exercise")
	ErrAttemptLimitExceeded   = core.NewError(core.KindAttemptLimitExceeded, "maximum number of attempts reached")
	ErrExpiredSession         = core.NewError(core.KindExpiredSession, "session time is up")
	ErrSessionAlreadyFinished = core.NewError(core.KindSessionAlreadyFinished, "session already finished")
	// ErrActiveSessionExists is returned by Repository.CreateSession when the learner
	// already has an unfinished session for the exercise.
	ErrActiveSessionExists = core.NewError(core.KindConflict, "an unfinished session already exists")
)

// Submission outcomes reported to the Recorder.
const (
	OutcomeScored  = "scored"
	OutcomeExpired = "expired"
)

// startRetries bounds the StartSession attempts lost to concurrent starts.
const startRetries = 3

type (
	Repository interface {
		// InTx runs fn inside one transaction; fn gets a Repository bound to it.
		InTx(ctx context.Context, fn func(repo Repository) error) error

		// CreateExercise saves the exercise along with its questions.
		CreateExercise(ctx context.Context, ex Exercise) (Exercise, error)
		// GetExercise returns the exercise with its questions ordered by position.
		GetExercise(ctx context.Context, id string) (Exercise, error)
		// QueryExercises lists the exercises of a course, without questions.
		QueryExercises(ctx context.Context, courseID string) ([]Exercise, error)
		IncrementCourseAssignments(ctx context.Context, courseID string) error

		CreateSession(ctx context.Context, sess Session) (Session, error)
		GetActiveSession(ctx context.Context, learnerID, exerciseID string) (Session, error)
		// GetLatestSession returns the most recently started session, locking it when forUpdate is set.
		GetLatestSession(ctx context.Context, learnerID, exerciseID string, forUpdate bool) (Session, error)
		FinishSession(ctx context.Context, sess Session) error

		CreateEvaluation(ctx context.Context, ev Evaluation) (Evaluation, error)
		CountEvaluations(ctx context.Context, learnerID, exerciseID string) (int, error)
		QueryEvaluations(ctx context.Context, filter EvaluationFilter) ([]Evaluation, error)
	}

	// CourseReader reads the content hierarchy.
	CourseReader interface {
		GetCourse(ctx context.Context, id string) (curriculum.Course, error)
		GetDepartment(ctx context.Context, id string) (curriculum.Department, error)
		GetModule(ctx context.Context, id string) (curriculum.Module, error)
	}

	// Recorder observes the engine activity.
	Recorder interface {
		SessionStarted(resumed bool)
		SubmissionRecorded(outcome string)
	}

	Service struct {
		repo     Repository
		courses  CourseReader
		recorder Recorder
		logger   core.Logger
	}
)

type nopRecorder struct{}

func (nopRecorder) SessionStarted(bool)       {}
func (nopRecorder) SubmissionRecorded(string) {}

func NewService(repo Repository, courses CourseReader, logger core.Logger) *Service {
	return &Service{repo: repo, courses: courses, recorder: nopRecorder{}, logger: logger}
}

// SetRecorder plugs a Recorder (e.g. metrics) into the engine.
func (svc *Service) SetRecorder(recorder Recorder) {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	svc.recorder = recorder
}

// Create adds an exercise to a course and bumps its assignment counter atomically.
// The course lead teacher and its assistants may create exercises.
func (svc *Service) Create(ctx context.Context, actor authz.Actor, courseID string, ne NewExercise) (Exercise, error) {
	if !actor.Valid() {
		return Exercise{}, authz.ErrInvalidActor
	}
	course, err := svc.courses.GetCourse(ctx, courseID)
	if err != nil {
		return Exercise{}, err
	}
	if err := authz.AuthorizeGrants(
		actor,
		authz.Allow(authz.RoleLeadTeacher, authz.IsLeadTeacher(actor, course.LeadTeacherID)),
		authz.Allow(authz.RoleAssistantTeacher, authz.IsAssistant(actor, course.AssistantIDs)),
	); err != nil {
		return Exercise{}, err
	}
	if err := ne.check(); err != nil {
		return Exercise{}, err
	}
	if ne.ModuleID != "" {
		mod, err := svc.courses.GetModule(ctx, ne.ModuleID)
		if err != nil && errors.Cause(err) != curriculum.ErrModuleNotFound {
			return Exercise{}, errors.Wrap(err, "finding module")
		}
		if err != nil || mod.CourseID != course.ID {
			return Exercise{}, core.NewValidationError(nil, core.FieldError{Field: "module_id", Error: "module not found in course"})
		}
	}

	ex := Exercise{
		CourseID:         course.ID,
		ModuleID:         ne.ModuleID,
		Title:            ne.Title,
		Prompt:           ne.Prompt,
		Difficulty:       ne.Difficulty,
		TimeLimitMinutes: ne.TimeLimitMinutes,
		MaxAttempts:      ne.MaxAttempts,
		CreatedBy:        actor.UserID,
		Questions:        make([]Question, 0, len(ne.Questions)),
		CreatedAt:        nowFunc().UTC(),
	}
	for i, nq := range ne.Questions {
		q := Question{
			Position:      i + 1,
			Type:          nq.Type,
			Text:          nq.Text,
			CorrectAnswer: nq.CorrectAnswer,
			Points:        nq.Points,
		}
		if nq.Type == MultipleChoice {
			q.Choices = append([]string(nil), nq.Choices...)
		}
		ex.Questions = append(ex.Questions, q)
	}

	err = svc.repo.InTx(ctx, func(repo Repository) error {
		var err error
		if ex, err = repo.CreateExercise(ctx, ex); err != nil {
			return errors.Wrap(err, "creating exercise")
		}
		return repo.IncrementCourseAssignments(ctx, course.ID)
	})
	if err != nil {
		return Exercise{}, err
	}
	svc.logger.Info(fmt.Sprintf("exercise %q created in course %s by %s", ex.Title, course.ID, actor.UserID))
	return ex, nil
}

func (svc *Service) ListByCourse(ctx context.Context, courseID string) ([]Exercise, error) {
	if _, err := svc.courses.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	return svc.repo.QueryExercises(ctx, courseID)
}

// StartSession returns the learner's unfinished session for the exercise, creating one
// when there is none. Starting fails once the attempts are used up.
func (svc *Service) StartSession(ctx context.Context, actor authz.Actor, exerciseID string) (SessionView, error) {
	if err := authz.Authorize(actor, []authz.Role{authz.RoleLearner}); err != nil {
		return SessionView{}, err
	}
	ex, err := svc.repo.GetExercise(ctx, exerciseID)
	if err != nil {
		return SessionView{}, err
	}

	var (
		sess    Session
		resumed bool
	)
	// A concurrent start may win the active session slot. Retrying resumes the
	// winner's session, or starts afresh when it was submitted in the meantime.
	for i := 1; ; i++ {
		sess, resumed, err = svc.startSession(ctx, actor.UserID, ex)
		if errors.Cause(err) != ErrActiveSessionExists || i == startRetries {
			break
		}
	}
	if err != nil {
		return SessionView{}, err
	}

	svc.recorder.SessionStarted(resumed)
	return newSessionView(sess, ex.TimeLimit(), nowFunc()), nil
}

func (svc *Service) startSession(ctx context.Context, learnerID string, ex Exercise) (sess Session, resumed bool, err error) {
	err = svc.repo.InTx(ctx, func(repo Repository) error {
		used, err := repo.CountEvaluations(ctx, learnerID, ex.ID)
		if err != nil {
			return errors.Wrap(err, "counting evaluations")
		}
		if used >= ex.MaxAttempts {
			return ErrAttemptLimitExceeded
		}

		sess, err = repo.GetActiveSession(ctx, learnerID, ex.ID)
		if err == nil {
			resumed = true
			return nil
		}
		if errors.Cause(err) != ErrSessionNotFound {
			return errors.Wrap(err, "finding active session")
		}

		sess, err = repo.CreateSession(ctx, Session{
			LearnerID:  learnerID,
			ExerciseID: ex.ID,
			StartedAt:  nowFunc().UTC(),
		})
		return err
	})
	return sess, resumed, err
}

// Submit grades the answers of the learner's latest session. A session whose time is up
// is closed as expired and no evaluation is recorded.
func (svc *Service) Submit(ctx context.Context, actor authz.Actor, exerciseID string, answers map[string]string) (SubmitResult, error) {
	if err := authz.Authorize(actor, []authz.Role{authz.RoleLearner}); err != nil {
		return SubmitResult{}, err
	}
	ex, err := svc.repo.GetExercise(ctx, exerciseID)
	if err != nil {
		return SubmitResult{}, err
	}

	var (
		result  SubmitResult
		expired bool
	)
	err = svc.repo.InTx(ctx, func(repo Repository) error {
		sess, err := repo.GetLatestSession(ctx, actor.UserID, ex.ID, true /* forUpdate */)
		if err != nil {
			return err
		}
		if sess.Finished {
			return ErrSessionAlreadyFinished
		}

		now := nowFunc().UTC()
		sess.Finished = true
		sess.FinishedAt = &now

		if sess.Remaining(ex.TimeLimit(), now) <= 0 {
			sess.Expired = true
			expired = true
			return errors.Wrap(repo.FinishSession(ctx, sess), "expiring session")
		}

		score, total := Score(ex, answers)
		ev, err := repo.CreateEvaluation(ctx, Evaluation{
			LearnerID:  actor.UserID,
			ExerciseID: ex.ID,
			SessionID:  sess.ID,
			Score:      score,
			Total:      total,
			CreatedAt:  now,
		})
		if err != nil {
			return errors.Wrap(err, "creating evaluation")
		}
		if err := repo.FinishSession(ctx, sess); err != nil {
			return errors.Wrap(err, "finishing session")
		}
		result = SubmitResult{Score: score, Total: total, Evaluation: ev}
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}
	if expired {
		svc.recorder.SubmissionRecorded(OutcomeExpired)
		return SubmitResult{}, ErrExpiredSession
	}
	svc.recorder.SubmissionRecorded(OutcomeScored)
	return result, nil
}

// Detail returns the exercise as seen by the actor: course staff get the correct answers,
// learners get their active session and its remaining time instead.
func (svc *Service) Detail(ctx context.Context, actor authz.Actor, exerciseID string) (Detail, error) {
	if !actor.Valid() {
		return Detail{}, authz.ErrInvalidActor
	}
	ex, err := svc.repo.GetExercise(ctx, exerciseID)
	if err != nil {
		return Detail{}, err
	}
	if actor.Role != authz.RoleLearner {
		err := svc.authorizeCourseStaff(ctx, actor, ex)
		if err == nil {
			return Detail{Exercise: ex}, nil
		}
		if core.KindOf(err) != core.KindPermissionDenied {
			return Detail{}, err
		}
		return Detail{Exercise: ex.WithoutAnswers()}, nil
	}

	detail := Detail{Exercise: ex.WithoutAnswers()}
	if detail.AttemptsUsed, err = svc.repo.CountEvaluations(ctx, actor.UserID, ex.ID); err != nil {
		return Detail{}, errors.Wrap(err, "counting evaluations")
	}
	sess, err := svc.repo.GetActiveSession(ctx, actor.UserID, ex.ID)
	switch errors.Cause(err) {
	case nil:
		view := newSessionView(sess, ex.TimeLimit(), nowFunc())
		detail.Session = &view
	case ErrSessionNotFound:
	default:
		return Detail{}, errors.Wrap(err, "finding active session")
	}
	return detail, nil
}

// Evaluations lists the evaluations of an exercise: learners get their own,
// course staff (lead teacher, assistants, unit head) get everyone's.
func (svc *Service) Evaluations(ctx context.Context, actor authz.Actor, exerciseID string) ([]Evaluation, error) {
	if !actor.Valid() {
		return nil, authz.ErrInvalidActor
	}
	ex, err := svc.repo.GetExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}

	if actor.Role == authz.RoleLearner {
		return svc.repo.QueryEvaluations(ctx, EvaluationFilter{ExerciseID: ex.ID, LearnerID: actor.UserID})
	}

	if err := svc.authorizeCourseStaff(ctx, actor, ex); err != nil {
		return nil, err
	}
	return svc.repo.QueryEvaluations(ctx, EvaluationFilter{ExerciseID: ex.ID})
}

// authorizeCourseStaff checks that the actor leads or assists the exercise course,
// or heads its department.
func (svc *Service) authorizeCourseStaff(ctx context.Context, actor authz.Actor, ex Exercise) error {
	course, err := svc.courses.GetCourse(ctx, ex.CourseID)
	if err != nil {
		return errors.Wrap(err, "finding exercise course")
	}
	dept, err := svc.courses.GetDepartment(ctx, course.DepartmentID)
	if err != nil {
		return errors.Wrap(err, "finding course department")
	}
	return authz.AuthorizeGrants(
		actor,
		authz.Allow(authz.RoleLeadTeacher, authz.IsLeadTeacher(actor, course.LeadTeacherID)),
		authz.Allow(authz.RoleAssistantTeacher, authz.IsAssistant(actor, course.AssistantIDs)),
		authz.Allow(authz.RoleUnitHead, authz.IsDepartmentHead(actor, dept.HeadID)),
	)
}
