package sqlxrepo

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/yekiapp/yeki/core/authz"
	"github.com/yekiapp/yeki/core/stats"
)

// percentageExpr is the evaluation percentage; an evaluation worth nothing counts as 0.
const percentageExpr = "CASE WHEN %[1]s.total > 0 THEN %[1]s.score * 100.0 / %[1]s.total ELSE 0 END"

func percentage(alias string) string {
	return fmt.Sprintf(percentageExpr, alias)
}

type statsRepository struct {
	conn
}

var _ stats.Repository = (*statsRepository)(nil)

func NewStatsRepository(db *sqlx.DB) stats.Repository {
	return &statsRepository{conn: newConn(db)}
}

func (repo *statsRepository) GlobalTotals(ctx context.Context) (stats.Totals, error) {
	var row struct {
		Learners int     `db:"learners"`
		Courses  int     `db:"courses"`
		Average  float64 `db:"average"`
	}
	q := psql.Select().
		Column(sq.Expr("(SELECT COUNT(*) FROM users WHERE role = ? AND is_active) AS learners", authz.RoleLearner.String())).
		Column("(SELECT COUNT(*) FROM courses) AS courses").
		Column("COALESCE((SELECT AVG(" + percentage("e") + ") FROM evaluations e), 0) AS average")
	if err := repo.get(ctx, &row, q); err != nil {
		return stats.Totals{}, errors.Wrap(err, "computing global totals")
	}
	return stats.Totals{Learners: row.Learners, Courses: row.Courses, AveragePercentage: row.Average}, nil
}

func (repo *statsRepository) CountProgramAdminContent(ctx context.Context, adminID string) (departments, courses, lessons int, err error) {
	if !validID(adminID) {
		return 0, 0, 0, nil
	}
	var row struct {
		Departments int `db:"departments"`
		Courses     int `db:"courses"`
		Lessons     int `db:"lessons"`
	}
	q := psql.Select().
		Column("COUNT(DISTINCT d.id) AS departments").
		Column("COUNT(DISTINCT c.id) AS courses").
		Column("COUNT(DISTINCT l.id) AS lessons").
		From("programs p").
		Join("departments d ON d.program_id = p.id").
		LeftJoin("courses c ON c.department_id = d.id").
		LeftJoin("lessons l ON l.course_id = c.id").
		Where(sq.Eq{"p.admin_id": adminID})
	if err = repo.get(ctx, &row, q); err != nil {
		return 0, 0, 0, errors.Wrap(err, "counting program admin content")
	}
	return row.Departments, row.Courses, row.Lessons, nil
}

func (repo *statsRepository) ProgramSummaries(ctx context.Context) ([]stats.ProgramSummary, error) {
	var rows []struct {
		ProgramID string  `db:"program_id"`
		Name      string  `db:"name"`
		Courses   int     `db:"courses"`
		Learners  int     `db:"learners"`
		Average   float64 `db:"average"`
	}
	q := psql.Select("p.id AS program_id", "p.name").
		Column("COUNT(c.id) AS courses").
		Column("COALESCE(SUM(c.learner_count), 0) AS learners").
		Column("COALESCE((" +
			"SELECT AVG(" + percentage("e") + ") FROM evaluations e " +
			"JOIN exercises x ON x.id = e.exercise_id " +
			"JOIN courses xc ON xc.id = x.course_id " +
			"JOIN departments xd ON xd.id = xc.department_id " +
			"WHERE xd.program_id = p.id), 0) AS average").
		From("programs p").
		LeftJoin("departments d ON d.program_id = p.id").
		LeftJoin("courses c ON c.department_id = d.id").
		GroupBy("p.id", "p.name").
		OrderBy("p.name ASC", "p.id ASC")
	if err := repo.selectAll(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "summarizing programs")
	}

	sums := make([]stats.ProgramSummary, 0, len(rows))
	for _, r := range rows {
		sums = append(sums, stats.ProgramSummary{
			ProgramID:    r.ProgramID,
			Name:         r.Name,
			Courses:      r.Courses,
			Learners:     r.Learners,
			AverageScore: r.Average,
		})
	}
	return sums, nil
}
