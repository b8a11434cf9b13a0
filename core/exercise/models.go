package exercise

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/yekiapp/yeki/core"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	FreeText       QuestionType = "free_text"
)

type Question struct {
	ID            string       `json:"id"`
	Position      int          `json:"position"`
	Type          QuestionType `json:"type"`
	Text          string       `json:"text"`
	CorrectAnswer string       `json:"correct_answer,omitempty"`
	Points        int          `json:"points"`
	Choices       []string     `json:"choices,omitempty"`
}

type Exercise struct {
	ID               string     `json:"id"`
	CourseID         string     `json:"course_id"`
	ModuleID         string     `json:"module_id,omitempty"`
	Title            string     `json:"title"`
	Prompt           string     `json:"prompt"`
	Difficulty       int        `json:"difficulty"` // stars, 1 to 5
	TimeLimitMinutes int        `json:"time_limit_minutes"`
	MaxAttempts      int        `json:"max_attempts"`
	CreatedBy        string     `json:"created_by"`
	Questions        []Question `json:"questions,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (ex Exercise) TimeLimit() time.Duration {
	return time.Duration(ex.TimeLimitMinutes) * time.Minute
}

func (ex Exercise) TotalPoints() int {
	var total int
	for _, q := range ex.Questions {
		total += q.Points
	}
	return total
}

// WithoutAnswers returns a copy of the exercise with the correct answers blanked.
func (ex Exercise) WithoutAnswers() Exercise {
	qs := make([]Question, len(ex.Questions))
	for i, q := range ex.Questions {
		q.CorrectAnswer = ""
		qs[i] = q
	}
	ex.Questions = qs
	return ex
}

type Session struct {
	ID         string     `json:"id"`
	LearnerID  string     `json:"learner_id"`
	ExerciseID string     `json:"exercise_id"`
	StartedAt  time.Time  `json:"started_at"`
	Finished   bool       `json:"finished"`
	FinishedAt *time.Time `json:"finished_at"`
	Expired    bool       `json:"expired"`
}

// Remaining is the time left to submit, never negative.
func (s Session) Remaining(limit time.Duration, now time.Time) time.Duration {
	left := limit - now.Sub(s.StartedAt)
	if left < 0 {
		return 0
	}
	return left
}

// SessionView is a session along with its remaining time, derived at read time.
type SessionView struct {
	Session
	RemainingSeconds int `json:"remaining_seconds"`
}

func newSessionView(s Session, limit time.Duration, now time.Time) SessionView {
	return SessionView{Session: s, RemainingSeconds: int(s.Remaining(limit, now) / time.Second)}
}

type Evaluation struct {
	ID         string    `json:"id"`
	LearnerID  string    `json:"learner_id"`
	ExerciseID string    `json:"exercise_id"`
	SessionID  string    `json:"session_id"`
	Score      int       `json:"score"`
	Total      int       `json:"total"`
	CreatedAt  time.Time `json:"created_at"`
}

// Percentage is the score over total, as a percentage.
func (ev Evaluation) Percentage() float64 {
	if ev.Total == 0 {
		return 0
	}
	return float64(ev.Score) * 100 / float64(ev.Total)
}

// Detail is an exercise as seen by an actor.
type Detail struct {
	Exercise     Exercise     `json:"exercise"`
	Session      *SessionView `json:"session"`
	AttemptsUsed int          `json:"attempts_used"`
}

type SubmitResult struct {
	Score      int        `json:"score"`
	Total      int        `json:"total"`
	Evaluation Evaluation `json:"evaluation"`
}

type NewQuestion struct {
	Type          QuestionType `json:"type" validate:"required,oneof=multiple_choice free_text"`
	Text          string       `json:"text" validate:"required"`
	CorrectAnswer string       `json:"correct_answer" validate:"required"`
	Points        int          `json:"points" validate:"gt=0"`
	Choices       []string     `json:"choices"`
}

type NewExercise struct {
	Title            string        `json:"title" validate:"required"`
	Prompt           string        `json:"prompt"`
	ModuleID         string        `json:"module_id"`
	Difficulty       int           `json:"difficulty" validate:"min=1,max=5"`
	TimeLimitMinutes int           `json:"time_limit_minutes" validate:"gt=0"`
	MaxAttempts      int           `json:"max_attempts" validate:"gte=1"`
	Questions        []NewQuestion `json:"questions" validate:"required,min=1,dive"`
}

func (ne *NewExercise) Validate(validate *validator.Validate) error {
	ne.Title = core.CleanString(ne.Title)
	ne.Prompt = core.CleanString(ne.Prompt)
	ne.ModuleID = core.CleanString(ne.ModuleID)
	for i := range ne.Questions {
		q := &ne.Questions[i]
		q.Type = QuestionType(core.CleanString(string(q.Type), true /* lower */))
		q.Text = core.CleanString(q.Text)
		q.CorrectAnswer = core.CleanString(q.CorrectAnswer)
		for j := range q.Choices {
			q.Choices[j] = core.CleanString(q.Choices[j])
		}
	}
	return validate.Struct(ne)
}

// check applies the rules the struct tags cannot express.
func (ne NewExercise) check() error {
	if ne.Difficulty < 1 || ne.Difficulty > 5 {
		return core.NewValidationError(nil, core.FieldError{Field: "difficulty", Error: "difficulty must be between 1 and 5"})
	}
	if ne.TimeLimitMinutes <= 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "time_limit_minutes", Error: "time limit must be positive"})
	}
	if ne.MaxAttempts < 1 {
		return core.NewValidationError(nil, core.FieldError{Field: "max_attempts", Error: "at least one attempt must be allowed"})
	}
	if len(ne.Questions) == 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "questions", Error: "at least one question is required"})
	}
	for i, q := range ne.Questions {
		field := fmt.Sprintf("questions[%d]", i)
		if q.Points <= 0 {
			return core.NewValidationError(nil, core.FieldError{Field: field + ".points", Error: "points must be positive"})
		}
		if strings.TrimSpace(q.Text) == "" {
			return core.NewValidationError(nil, core.FieldError{Field: field + ".text", Error: "this field is required"})
		}
		switch q.Type {
		case MultipleChoice:
			if len(q.Choices) < 2 {
				return core.NewValidationError(nil, core.FieldError{Field: field + ".choices", Error: "at least two choices are required"})
			}
			if !hasChoice(q.Choices, q.CorrectAnswer) {
				return core.NewValidationError(nil, core.FieldError{Field: field + ".correct_answer", Error: "correct answer must be one of the choices"})
			}
		case FreeText:
			if len(q.Choices) > 0 {
				return core.NewValidationError(nil, core.FieldError{Field: field + ".choices", Error: "free text questions have no choices"})
			}
		default:
			return core.NewValidationError(nil, core.FieldError{Field: field + ".type", Error: "invalid question type"})
		}
	}
	return nil
}

func hasChoice(choices []string, answer string) bool {
	for _, c := range choices {
		if sameAnswer(c, answer) {
			return true
		}
	}
	return false
}

// sameAnswer compares answers trimmed and case-insensitively.
func sameAnswer(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Submission holds the answers of a learner, keyed by question ID or question text.
type Submission struct {
	Answers map[string]string `json:"answers"`
}

// Score grades answers against the exercise questions. Answers are looked up by
// question ID first, then by exact question text, then by trimmed case-insensitive
// text. Keys that only match after folding and collide are ignored.
func Score(ex Exercise, answers map[string]string) (score, total int) {
	folded := make(map[string]string, len(answers))
	ambiguous := make(map[string]bool)
	for k, v := range answers {
		key := foldKey(k)
		if _, dup := folded[key]; dup {
			ambiguous[key] = true
		}
		folded[key] = v
	}
	for key := range ambiguous {
		delete(folded, key)
	}

	for _, q := range ex.Questions {
		total += q.Points
		answer, ok := answers[q.ID]
		if !ok {
			answer, ok = answers[q.Text]
		}
		if !ok {
			answer, ok = folded[foldKey(q.Text)]
		}
		if ok && sameAnswer(answer, q.CorrectAnswer) {
			score += q.Points
		}
	}
	return score, total
}

func foldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

type EvaluationFilter struct {
	ExerciseID string
	LearnerID  string
}
