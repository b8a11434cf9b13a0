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

	"github.com/yekiapp/yeki/core/curriculum"
	"github.com/yekiapp/yeki/core/exercise"
)

type exerciseRow struct {
	ID               string      `db:"id"`
	CourseID         string      `db:"course_id"`
	ModuleID         null.String `db:"module_id"`
	Title            string      `db:"title"`
	Prompt           string      `db:"prompt"`
	Difficulty       int         `db:"difficulty"`
	TimeLimitMinutes int         `db:"time_limit_minutes"`
	MaxAttempts      int         `db:"max_attempts"`
	CreatedBy        null.String `db:"created_by"`
	CreatedAt        time.Time   `db:"created_at"`
}

func (r exerciseRow) exercise() exercise.Exercise {
	return exercise.Exercise{
		ID:               r.ID,
		CourseID:         r.CourseID,
		ModuleID:         r.ModuleID.String,
		Title:            r.Title,
		Prompt:           r.Prompt,
		Difficulty:       r.Difficulty,
		TimeLimitMinutes: r.TimeLimitMinutes,
		MaxAttempts:      r.MaxAttempts,
		CreatedBy:        r.CreatedBy.String,
		CreatedAt:        r.CreatedAt.UTC(),
	}
}

type questionRow struct {
	ID            string         `db:"id"`
	Position      int            `db:"position"`
	Type          string         `db:"type"`
	Text          string         `db:"text"`
	CorrectAnswer string         `db:"correct_answer"`
	Points        int            `db:"points"`
	Choices       pq.StringArray `db:"choices"`
}

func (r questionRow) question() exercise.Question {
	q := exercise.Question{
		ID:            r.ID,
		Position:      r.Position,
		Type:          exercise.QuestionType(r.Type),
		Text:          r.Text,
		CorrectAnswer: r.CorrectAnswer,
		Points:        r.Points,
	}
	if len(r.Choices) > 0 {
		q.Choices = append([]string(nil), r.Choices...)
	}
	return q
}

type sessionRow struct {
	ID         string    `db:"id"`
	LearnerID  string    `db:"learner_id"`
	ExerciseID string    `db:"exercise_id"`
	StartedAt  time.Time `db:"started_at"`
	Finished   bool      `db:"finished"`
	FinishedAt null.Time `db:"finished_at"`
	Expired    bool      `db:"expired"`
}

func (r sessionRow) session() exercise.Session {
	s := exercise.Session{
		ID:         r.ID,
		LearnerID:  r.LearnerID,
		ExerciseID: r.ExerciseID,
		StartedAt:  r.StartedAt.UTC(),
		Finished:   r.Finished,
		Expired:    r.Expired,
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Time.UTC()
		s.FinishedAt = &t
	}
	return s
}

type evaluationRow struct {
	ID         string    `db:"id"`
	LearnerID  string    `db:"learner_id"`
	ExerciseID string    `db:"exercise_id"`
	SessionID  string    `db:"session_id"`
	Score      int       `db:"score"`
	Total      int       `db:"total"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r evaluationRow) evaluation() exercise.Evaluation {
	return exercise.Evaluation{
		ID:         r.ID,
		LearnerID:  r.LearnerID,
		ExerciseID: r.ExerciseID,
		SessionID:  r.SessionID,
		Score:      r.Score,
		Total:      r.Total,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

var (
	exerciseColumns = []string{
		"id", "course_id", "module_id", "title", "prompt", "difficulty",
		"time_limit_minutes", "max_attempts", "created_by", "created_at",
	}
	questionColumns   = []string{"id", "position", "type", "text", "correct_answer", "points", "choices"}
	sessionColumns    = []string{"id", "learner_id", "exercise_id", "started_at", "finished", "finished_at", "expired"}
	evaluationColumns = []string{"id", "learner_id", "exercise_id", "session_id", "score", "total", "created_at"}
)

type exerciseRepository struct {
	conn
}

var _ exercise.Repository = (*exerciseRepository)(nil)

func NewExerciseRepository(db *sqlx.DB) exercise.Repository {
	return &exerciseRepository{conn: newConn(db)}
}

func (repo *exerciseRepository) InTx(ctx context.Context, fn func(repo exercise.Repository) error) error {
	return repo.inTransaction(ctx, func(tx conn) error {
		return fn(&exerciseRepository{conn: tx})
	})
}

func (repo *exerciseRepository) CreateExercise(ctx context.Context, ex exercise.Exercise) (exercise.Exercise, error) {
	if !validID(ex.CourseID) {
		return exercise.Exercise{}, curriculum.ErrCourseNotFound
	}
	ex.ID = uuid.New().String()
	questions := make([]exercise.Question, len(ex.Questions))

	err := repo.inTransaction(ctx, func(tx conn) error {
		_, err := tx.exec(ctx, psql.Insert("exercises").SetMap(map[string]interface{}{
			"id":                 ex.ID,
			"course_id":          ex.CourseID,
			"module_id":          nullableID(ex.ModuleID),
			"title":              ex.Title,
			"prompt":             ex.Prompt,
			"difficulty":         ex.Difficulty,
			"time_limit_minutes": ex.TimeLimitMinutes,
			"max_attempts":       ex.MaxAttempts,
			"created_by":         nullableID(ex.CreatedBy),
			"created_at":         ex.CreatedAt.UTC(),
		}))
		if err != nil {
			if isForeignKeyViolation(err, "exercises_course_id_fkey") {
				return curriculum.ErrCourseNotFound
			}
			return errors.Wrap(err, "inserting exercise")
		}
		if len(ex.Questions) == 0 {
			return nil
		}

		insert := psql.Insert("questions").Columns(append([]string{"exercise_id"}, questionColumns...)...)
		for i, q := range ex.Questions {
			q.ID = uuid.New().String()
			choices := pq.StringArray(q.Choices)
			if choices == nil {
				choices = pq.StringArray{}
			}
			insert = insert.Values(ex.ID, q.ID, q.Position, string(q.Type), q.Text, q.CorrectAnswer, q.Points, choices)
			questions[i] = q
		}
		_, err = tx.exec(ctx, insert)
		return errors.Wrap(err, "inserting questions")
	})
	if err != nil {
		return exercise.Exercise{}, err
	}
	ex.Questions = questions
	return ex, nil
}

func (repo *exerciseRepository) GetExercise(ctx context.Context, id string) (exercise.Exercise, error) {
	if !validID(id) {
		return exercise.Exercise{}, exercise.ErrExerciseNotFound
	}
	var row exerciseRow
	if err := repo.get(ctx, &row, psql.Select(exerciseColumns...).From("exercises").Where(sq.Eq{"id": id})); err != nil {
		return exercise.Exercise{}, trapNoRows(err, exercise.ErrExerciseNotFound, "finding exercise")
	}

	var qrows []questionRow
	q := psql.Select(questionColumns...).From("questions").Where(sq.Eq{"exercise_id": id}).OrderBy("position ASC")
	if err := repo.selectAll(ctx, &qrows, q); err != nil {
		return exercise.Exercise{}, errors.Wrap(err, "querying questions")
	}

	ex := row.exercise()
	ex.Questions = make([]exercise.Question, 0, len(qrows))
	for _, r := range qrows {
		ex.Questions = append(ex.Questions, r.question())
	}
	return ex, nil
}

func (repo *exerciseRepository) QueryExercises(ctx context.Context, courseID string) ([]exercise.Exercise, error) {
	if !validID(courseID) {
		return []exercise.Exercise{}, nil
	}
	var rows []exerciseRow
	q := psql.Select(exerciseColumns...).From("exercises").Where(sq.Eq{"course_id": courseID}).OrderBy("created_at ASC", "title ASC")
	if err := repo.selectAll(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying exercises")
	}
	exs := make([]exercise.Exercise, 0, len(rows))
	for _, r := range rows {
		exs = append(exs, r.exercise())
	}
	return exs, nil
}

func (repo *exerciseRepository) IncrementCourseAssignments(ctx context.Context, courseID string) error {
	return incrementCourseCounter(ctx, repo.conn, courseID, curriculum.AssignmentCounter, 1)
}

func (repo *exerciseRepository) CreateSession(ctx context.Context, sess exercise.Session) (exercise.Session, error) {
	sess.ID = uuid.New().String()
	_, err := repo.exec(ctx, psql.Insert("exercise_sessions").
		Columns("id", "learner_id", "exercise_id", "started_at").
		Values(sess.ID, sess.LearnerID, sess.ExerciseID, sess.StartedAt.UTC()))
	switch {
	case err == nil:
		return sess, nil
	case isUniqueViolation(err, "exercise_sessions_active_key"):
		return exercise.Session{}, exercise.ErrActiveSessionExists
	case isForeignKeyViolation(err, "exercise_sessions_exercise_id_fkey"):
		return exercise.Session{}, exercise.ErrExerciseNotFound
	default:
		return exercise.Session{}, errors.Wrap(err, "inserting session")
	}
}

func (repo *exerciseRepository) GetActiveSession(ctx context.Context, learnerID, exerciseID string) (exercise.Session, error) {
	if !validID(learnerID) || !validID(exerciseID) {
		return exercise.Session{}, exercise.ErrSessionNotFound
	}
	var row sessionRow
	q := psql.Select(sessionColumns...).From("exercise_sessions").
		Where(sq.Eq{"learner_id": learnerID, "exercise_id": exerciseID, "finished": false})
	if err := repo.get(ctx, &row, q); err != nil {
		return exercise.Session{}, trapNoRows(err, exercise.ErrSessionNotFound, "finding active session")
	}
	return row.session(), nil
}

func (repo *exerciseRepository) GetLatestSession(ctx context.Context, learnerID, exerciseID string, forUpdate bool) (exercise.Session, error) {
	if !validID(learnerID) || !validID(exerciseID) {
		return exercise.Session{}, exercise.ErrSessionNotFound
	}
	q := psql.Select(sessionColumns...).From("exercise_sessions").
		Where(sq.Eq{"learner_id": learnerID, "exercise_id": exerciseID}).
		OrderBy("finished ASC", "started_at DESC", "id DESC").
		Limit(1)
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}

	var row sessionRow
	if err := repo.get(ctx, &row, q); err != nil {
		return exercise.Session{}, trapNoRows(err, exercise.ErrSessionNotFound, "finding latest session")
	}
	return row.session(), nil
}

func (repo *exerciseRepository) FinishSession(ctx context.Context, sess exercise.Session) error {
	if !validID(sess.ID) {
		return exercise.ErrSessionNotFound
	}
	var finishedAt null.Time
	if sess.FinishedAt != nil {
		finishedAt = null.TimeFrom(sess.FinishedAt.UTC())
	}
	n, err := repo.exec(ctx, psql.Update("exercise_sessions").SetMap(map[string]interface{}{
		"finished":    sess.Finished,
		"finished_at": finishedAt,
		"expired":     sess.Expired,
	}).Where(sq.Eq{"id": sess.ID}))
	if err != nil {
		return errors.Wrap(err, "updating session")
	}
	if n == 0 {
		return exercise.ErrSessionNotFound
	}
	return nil
}

func (repo *exerciseRepository) CreateEvaluation(ctx context.Context, ev exercise.Evaluation) (exercise.Evaluation, error) {
	ev.ID = uuid.New().String()
	_, err := repo.exec(ctx, psql.Insert("evaluations").
		Columns(evaluationColumns...).
		Values(ev.ID, ev.LearnerID, ev.ExerciseID, ev.SessionID, ev.Score, ev.Total, ev.CreatedAt.UTC()))
	if err != nil {
		return exercise.Evaluation{}, errors.Wrap(err, "inserting evaluation")
	}
	return ev, nil
}

func (repo *exerciseRepository) CountEvaluations(ctx context.Context, learnerID, exerciseID string) (int, error) {
	if !validID(learnerID) || !validID(exerciseID) {
		return 0, nil
	}
	var count int
	q := psql.Select("COUNT(*)").From("evaluations").Where(sq.Eq{"learner_id": learnerID, "exercise_id": exerciseID})
	if err := repo.get(ctx, &count, q); err != nil {
		return 0, errors.Wrap(err, "counting evaluations")
	}
	return count, nil
}

func (repo *exerciseRepository) QueryEvaluations(ctx context.Context, filter exercise.EvaluationFilter) ([]exercise.Evaluation, error) {
	q := psql.Select(evaluationColumns...).From("evaluations").OrderBy("created_at ASC", "id ASC")
	if filter.ExerciseID != "" {
		if !validID(filter.ExerciseID) {
			return []exercise.Evaluation{}, nil
		}
		q = q.Where(sq.Eq{"exercise_id": filter.ExerciseID})
	}
	if filter.LearnerID != "" {
		q = q.Where(sq.Eq{"learner_id": filter.LearnerID})
	}

	var rows []evaluationRow
	if err := repo.selectAll(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying evaluations")
	}
	evs := make([]exercise.Evaluation, 0, len(rows))
	for _, r := range rows {
		evs = append(evs, r.evaluation())
	}
	return evs, nil
}
