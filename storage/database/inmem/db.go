package inmemdb

import (
	"sync"

	"github.com/yekiapp/yeki/core/curriculum"
	"github.com/yekiapp/yeki/core/exercise"
	"github.com/yekiapp/yeki/core/release"
	"github.com/yekiapp/yeki/core/user"
)

type enrollmentKey struct {
	courseID  string
	learnerID string
}

type tables struct {
	users       map[string]user.User
	programs    map[string]curriculum.Program
	departments map[string]curriculum.Department
	courses     map[string]curriculum.Course
	modules     map[string]curriculum.Module
	lessons     map[string]curriculum.Lesson
	enrollments map[enrollmentKey]curriculum.Enrollment
	exercises   map[string]exercise.Exercise
	sessions    map[string]exercise.Session
	evaluations map[string]exercise.Evaluation
	releases    []release.Release
}

func newTables() tables {
	return tables{
		users:       make(map[string]user.User),
		programs:    make(map[string]curriculum.Program),
		departments: make(map[string]curriculum.Department),
		courses:     make(map[string]curriculum.Course),
		modules:     make(map[string]curriculum.Module),
		lessons:     make(map[string]curriculum.Lesson),
		enrollments: make(map[enrollmentKey]curriculum.Enrollment),
		exercises:   make(map[string]exercise.Exercise),
		sessions:    make(map[string]exercise.Session),
		evaluations: make(map[string]exercise.Evaluation),
	}
}

// clone copies every table. Rows are values whose slices are replaced, never mutated
// in place, so a shallow copy per map is a full snapshot.
func (t tables) clone() tables {
	c := newTables()
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.programs {
		c.programs[k] = v
	}
	for k, v := range t.departments {
		c.departments[k] = v
	}
	for k, v := range t.courses {
		c.courses[k] = v
	}
	for k, v := range t.modules {
		c.modules[k] = v
	}
	for k, v := range t.lessons {
		c.lessons[k] = v
	}
	for k, v := range t.enrollments {
		c.enrollments[k] = v
	}
	for k, v := range t.exercises {
		c.exercises[k] = v
	}
	for k, v := range t.sessions {
		c.sessions[k] = v
	}
	for k, v := range t.evaluations {
		c.evaluations[k] = v
	}
	c.releases = append([]release.Release(nil), t.releases...)
	return c
}

// DB is an in-memory store guarded by a single mutex. It is meant for tests and local runs.
type DB struct {
	mu sync.Mutex
	t  tables
}

func New() *DB {
	return &DB{t: newTables()}
}

// Reset drops all the data.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.t = newTables()
}

// conn is the handle repositories work through. Outside a transaction each call takes
// the store lock; inside one the lock is already held for the whole transaction.
type conn struct {
	db   *DB
	inTx bool
}

func (c conn) lock() func() {
	if c.inTx {
		return func() {}
	}
	c.db.mu.Lock()
	return c.db.mu.Unlock
}

// inTransaction runs fn holding the store lock and restores the snapshot taken
// beforehand when fn fails.
func (c conn) inTransaction(fn func(tx conn) error) error {
	if c.inTx {
		return fn(c)
	}
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	snapshot := c.db.t.clone()
	if err := fn(conn{db: c.db, inTx: true}); err != nil {
		c.db.t = snapshot
		return err
	}
	return nil
}
