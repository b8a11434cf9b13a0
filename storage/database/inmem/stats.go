package inmemdb

import (
	"context"
	"sort"

	"github.com/yekiapp/yeki/core/authz"
	"github.com/yekiapp/yeki/core/stats"
)

type statsRepository struct {
	conn
}

var _ stats.Repository = (*statsRepository)(nil)

func NewStatsRepository(db *DB) stats.Repository {
	return &statsRepository{conn: conn{db: db}}
}

func (repo *statsRepository) GlobalTotals(_ context.Context) (stats.Totals, error) {
	defer repo.lock()()

	var totals stats.Totals
	for _, usr := range repo.db.t.users {
		if usr.Role == authz.RoleLearner && usr.IsActive {
			totals.Learners++
		}
	}
	totals.Courses = len(repo.db.t.courses)

	if n := len(repo.db.t.evaluations); n > 0 {
		sum := 0.0
		for _, ev := range repo.db.t.evaluations {
			sum += ev.Percentage()
		}
		totals.AveragePercentage = sum / float64(n)
	}
	return totals, nil
}

func (repo *statsRepository) CountProgramAdminContent(_ context.Context, adminID string) (departments, courses, lessons int, err error) {
	defer repo.lock()()

	deptIDs := make(map[string]bool)
	for _, dept := range repo.db.t.departments {
		if prog, ok := repo.db.t.programs[dept.ProgramID]; ok && prog.AdminID == adminID {
			deptIDs[dept.ID] = true
		}
	}
	courseIDs := make(map[string]bool)
	for _, course := range repo.db.t.courses {
		if deptIDs[course.DepartmentID] {
			courseIDs[course.ID] = true
		}
	}
	for _, lesson := range repo.db.t.lessons {
		if courseIDs[lesson.CourseID] {
			lessons++
		}
	}
	return len(deptIDs), len(courseIDs), lessons, nil
}

func (repo *statsRepository) ProgramSummaries(_ context.Context) ([]stats.ProgramSummary, error) {
	defer repo.lock()()

	byProgram := make(map[string]*stats.ProgramSummary, len(repo.db.t.programs))
	for _, prog := range repo.db.t.programs {
		byProgram[prog.ID] = &stats.ProgramSummary{ProgramID: prog.ID, Name: prog.Name}
	}

	courseProgram := make(map[string]string)
	for _, course := range repo.db.t.courses {
		progID := repo.db.t.departments[course.DepartmentID].ProgramID
		sum, ok := byProgram[progID]
		if !ok {
			continue
		}
		courseProgram[course.ID] = progID
		sum.Courses++
		sum.Learners += course.LearnerCount
	}

	type acc struct {
		sum float64
		n   int
	}
	averages := make(map[string]*acc)
	for _, ev := range repo.db.t.evaluations {
		ex, ok := repo.db.t.exercises[ev.ExerciseID]
		if !ok {
			continue
		}
		progID, ok := courseProgram[ex.CourseID]
		if !ok {
			continue
		}
		a, ok := averages[progID]
		if !ok {
			a = &acc{}
			averages[progID] = a
		}
		a.sum += ev.Percentage()
		a.n++
	}

	sums := make([]stats.ProgramSummary, 0, len(byProgram))
	for id, sum := range byProgram {
		if a, ok := averages[id]; ok {
			sum.AverageScore = a.sum / float64(a.n)
		}
		sums = append(sums, *sum)
	}
	sort.Slice(sums, func(i, j int) bool {
		if sums[i].Name == sums[j].Name {
			return sums[i].ProgramID < sums[j].ProgramID
		}
		return sums[i].Name < sums[j].Name
	})
	return sums, nil
}
