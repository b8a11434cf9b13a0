package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/yekiapp/yeki/core/curriculum"
	"github.com/yekiapp/yeki/core/exercise"
)

type exerciseRepository struct {
	conn
}

var _ exercise.Repository = (*exerciseRepository)(nil)

func NewExerciseRepository(db *DB) exercise.Repository {
	return &exerciseRepository{conn: conn{db: db}}
}

func (repo *exerciseRepository) InTx(_ context.Context, fn func(repo exercise.Repository) error) error {
	return repo.inTransaction(func(tx conn) error {
		return fn(&exerciseRepository{conn: tx})
	})
}

func (repo *exerciseRepository) CreateExercise(_ context.Context, ex exercise.Exercise) (exercise.Exercise, error) {
	defer repo.lock()()

	if _, ok := repo.db.t.courses[ex.CourseID]; !ok {
		return exercise.Exercise{}, curriculum.ErrCourseNotFound
	}
	ex.ID = uuid.New().String()
	questions := make([]exercise.Question, len(ex.Questions))
	for i, q := range ex.Questions {
		q.ID = uuid.New().String()
		q.Choices = append([]string(nil), q.Choices...)
		questions[i] = q
	}
	ex.Questions = questions
	repo.db.t.exercises[ex.ID] = ex
	return ex, nil
}

func (repo *exerciseRepository) GetExercise(_ context.Context, id string) (exercise.Exercise, error) {
	defer repo.lock()()

	if ex, ok := repo.db.t.exercises[id]; ok {
		return ex, nil
	}
	return exercise.Exercise{}, exercise.ErrExerciseNotFound
}

func (repo *exerciseRepository) QueryExercises(_ context.Context, courseID string) ([]exercise.Exercise, error) {
	defer repo.lock()()

	exs := make([]exercise.Exercise, 0)
	for _, ex := range repo.db.t.exercises {
		if ex.CourseID == courseID {
			ex.Questions = nil
			exs = append(exs, ex)
		}
	}
	sort.Slice(exs, func(i, j int) bool {
		if exs[i].CreatedAt.Equal(exs[j].CreatedAt) {
			return exs[i].Title < exs[j].Title
		}
		return exs[i].CreatedAt.Before(exs[j].CreatedAt)
	})
	return exs, nil
}

func (repo *exerciseRepository) IncrementCourseAssignments(_ context.Context, courseID string) error {
	defer repo.lock()()
	return incrementCourseCounter(repo.db, courseID, curriculum.AssignmentCounter, 1)
}

func (repo *exerciseRepository) CreateSession(_ context.Context, sess exercise.Session) (exercise.Session, error) {
	defer repo.lock()()

	for _, s := range repo.db.t.sessions {
		if s.LearnerID == sess.LearnerID && s.ExerciseID == sess.ExerciseID && !s.Finished {
			return exercise.Session{}, exercise.ErrActiveSessionExists
		}
	}
	sess.ID = uuid.New().String()
	repo.db.t.sessions[sess.ID] = sess
	return sess, nil
}

func (repo *exerciseRepository) GetActiveSession(_ context.Context, learnerID, exerciseID string) (exercise.Session, error) {
	defer repo.lock()()

	for _, s := range repo.db.t.sessions {
		if s.LearnerID == learnerID && s.ExerciseID == exerciseID && !s.Finished {
			return s, nil
		}
	}
	return exercise.Session{}, exercise.ErrSessionNotFound
}

func (repo *exerciseRepository) GetLatestSession(_ context.Context, learnerID, exerciseID string, _ bool) (exercise.Session, error) {
	defer repo.lock()()

	var (
		latest exercise.Session
		found  bool
	)
	for _, s := range repo.db.t.sessions {
		if s.LearnerID != learnerID || s.ExerciseID != exerciseID {
			continue
		}
		if !found || laterSession(s, latest) {
			latest, found = s, true
		}
	}
	if !found {
		return exercise.Session{}, exercise.ErrSessionNotFound
	}
	return latest, nil
}

// laterSession reports whether a sorts after b: unfinished first, then by start time.
func laterSession(a, b exercise.Session) bool {
	if a.Finished != b.Finished {
		return !a.Finished
	}
	if a.StartedAt.Equal(b.StartedAt) {
		return a.ID > b.ID
	}
	return a.StartedAt.After(b.StartedAt)
}

func (repo *exerciseRepository) FinishSession(_ context.Context, sess exercise.Session) error {
	defer repo.lock()()

	orig, ok := repo.db.t.sessions[sess.ID]
	if !ok {
		return exercise.ErrSessionNotFound
	}
	orig.Finished = sess.Finished
	orig.FinishedAt = sess.FinishedAt
	orig.Expired = sess.Expired
	repo.db.t.sessions[sess.ID] = orig
	return nil
}

func (repo *exerciseRepository) CreateEvaluation(_ context.Context, ev exercise.Evaluation) (exercise.Evaluation, error) {
	defer repo.lock()()

	ev.ID = uuid.New().String()
	repo.db.t.evaluations[ev.ID] = ev
	return ev, nil
}

func (repo *exerciseRepository) CountEvaluations(_ context.Context, learnerID, exerciseID string) (int, error) {
	defer repo.lock()()

	count := 0
	for _, ev := range repo.db.t.evaluations {
		if ev.LearnerID == learnerID && ev.ExerciseID == exerciseID {
			count++
		}
	}
	return count, nil
}

func (repo *exerciseRepository) QueryEvaluations(_ context.Context, filter exercise.EvaluationFilter) ([]exercise.Evaluation, error) {
	defer repo.lock()()

	evs := make([]exercise.Evaluation, 0)
	for _, ev := range repo.db.t.evaluations {
		if filter.ExerciseID != "" && ev.ExerciseID != filter.ExerciseID {
			continue
		}
		if filter.LearnerID != "" && ev.LearnerID != filter.LearnerID {
			continue
		}
		evs = append(evs, ev)
	}
	sort.Slice(evs, func(i, j int) bool {
		if evs[i].CreatedAt.Equal(evs[j].CreatedAt) {
			return evs[i].ID < evs[j].ID
		}
		return evs[i].CreatedAt.Before(evs[j].CreatedAt)
	})
	return evs, nil
}
