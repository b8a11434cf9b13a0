// Package sqlxrepo implements the repositories on PostgreSQL through sqlx, building
// the dynamic queries with squirrel.
package sqlxrepo

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/yekiapp/yeki/core"
)

// PostgreSQL error codes
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// conn is the handle repositories work through: the pool, or the transaction when inTx is set.
type conn struct {
	db   *sqlx.DB
	ext  sqlx.ExtContext
	inTx bool
}

func newConn(db *sqlx.DB) conn {
	return conn{db: db, ext: db}
}

// inTransaction runs fn inside a transaction, committing when it returns nil.
// Nested calls join the running transaction.
func (c conn) inTransaction(ctx context.Context, fn func(tx conn) error) (err error) {
	if c.inTx {
		return fn(c)
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(conn{db: c.db, ext: tx, inTx: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return core.NewShutdownError(fmt.Sprintf("rolling back transaction after %q: %v", err, rbErr))
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (c conn) get(ctx context.Context, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.GetContext(ctx, c.ext, dest, query, args...)
}

func (c conn) selectAll(ctx context.Context, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.SelectContext(ctx, c.ext, dest, query, args...)
}

// exec runs b and returns the number of affected rows.
func (c conn) exec(ctx context.Context, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := c.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// pqError returns the PostgreSQL error wrapped in err, if any.
func pqError(err error) (*pq.Error, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr, true
	}
	return nil, false
}

// isUniqueViolation reports whether err violates a unique constraint, one of constraints if given.
func isUniqueViolation(err error, constraints ...string) bool {
	return isViolation(err, uniqueViolation, constraints)
}

func isForeignKeyViolation(err error, constraints ...string) bool {
	return isViolation(err, foreignKeyViolation, constraints)
}

func isViolation(err error, code pq.ErrorCode, constraints []string) bool {
	pqErr, ok := pqError(err)
	if !ok || pqErr.Code != code {
		return false
	}
	if len(constraints) == 0 {
		return true
	}
	for _, c := range constraints {
		if pqErr.Constraint == c {
			return true
		}
	}
	return false
}

// trapNoRows maps "no rows" to notFound and wraps any other error.
func trapNoRows(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// validID filters out the IDs PostgreSQL would reject as uuid input.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nullableID(id string) interface{} {
	if id == "" {
		return nil
	}
	return id
}
