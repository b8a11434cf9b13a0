package sqlxrepo

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/yekiapp/yeki/core/authz"
	"github.com/yekiapp/yeki/core/user"
)

var userColumns = []string{
	"id", "name", "username", "email", "password_hash", "role", "is_active",
	"cursus", "sub_cursus", "level", "track", "licence",
	"created_at", "updated_at", "last_login",
}

type userRow struct {
	ID           string     `db:"id"`
	Name         string     `db:"name"`
	Username     string     `db:"username"`
	Email        string     `db:"email"`
	PasswordHash []byte     `db:"password_hash"`
	Role         authz.Role `db:"role"`
	IsActive     bool       `db:"is_active"`
	Cursus       string     `db:"cursus"`
	SubCursus    string     `db:"sub_cursus"`
	Level        string     `db:"level"`
	Track        string     `db:"track"`
	Licence      string     `db:"licence"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	LastLogin    null.Time  `db:"last_login"`
}

func (r userRow) user() user.User {
	return user.User{
		ID:       r.ID,
		Name:     r.Name,
		Username: r.Username,
		Email:    r.Email,
		IsActive: r.IsActive,
		Role:     r.Role,
		Profile: user.Profile{
			Cursus:    r.Cursus,
			SubCursus: r.SubCursus,
			Level:     r.Level,
			Track:     r.Track,
			Licence:   r.Licence,
		},
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    r.LastLogin.Time.UTC(),
	}
}

func userValues(usr user.User) map[string]interface{} {
	return map[string]interface{}{
		"name":          usr.Name,
		"username":      usr.Username,
		"email":         usr.Email,
		"password_hash": usr.PasswordHash,
		"role":          usr.Role,
		"is_active":     usr.IsActive,
		"cursus":        usr.Profile.Cursus,
		"sub_cursus":    usr.Profile.SubCursus,
		"level":         usr.Profile.Level,
		"track":         usr.Profile.Track,
		"licence":       usr.Profile.Licence,
		"created_at":    usr.CreatedAt.UTC(),
		"updated_at":    usr.UpdatedAt.UTC(),
		"last_login":    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

type userRepository struct {
	conn
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{conn: newConn(db)}
}

// trapUniqueErr maps the uniqueness constraints of the users table to domain errors.
func trapUniqueErr(err error, msg string) error {
	switch {
	case isUniqueViolation(err, "users_username_key"):
		return user.ErrUsernameExists
	case isUniqueViolation(err, "users_email_key"):
		return user.ErrEmailExists
	default:
		return errors.Wrap(err, msg)
	}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error {
	match := sq.Or{}
	if username != "" {
		match = append(match, sq.Expr("LOWER(username) = LOWER(?)", username))
	}
	if email != "" {
		match = append(match, sq.Expr("LOWER(email) = LOWER(?)", email))
	}
	if len(match) == 0 {
		return nil
	}

	where := sq.And{match}
	if ids := filterIDs(excludedIDs); len(ids) > 0 {
		where = append(where, sq.NotEq{"id": ids})
	}

	var rows []userRow
	if err := repo.selectAll(ctx, &rows, psql.Select(userColumns...).From("users").Where(where)); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, r := range rows {
		if username != "" && strings.EqualFold(r.Username, username) {
			return user.ErrUsernameExists
		}
	}
	if len(rows) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	values := userValues(usr)
	values["id"] = usr.ID

	if _, err := repo.exec(ctx, psql.Insert("users").SetMap(values)); err != nil {
		return user.User{}, trapUniqueErr(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	q := psql.Select(userColumns...).From("users")
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		q = q.Where(sq.Eq{"id": filter.ID})
	case filter.UsernameOrEmail != "":
		q = q.Where(sq.Or{
			sq.Expr("LOWER(username) = LOWER(?)", filter.UsernameOrEmail),
			sq.Expr("LOWER(email) = LOWER(?)", filter.UsernameOrEmail),
		})
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := repo.get(ctx, &row, q.Limit(1)); err != nil {
		return user.User{}, trapNoRows(err, user.ErrNotFound, "finding user")
	}
	return row.user(), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	q := psql.Select(userColumns...).From("users").OrderBy("name ASC", "username ASC")
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		q = q.Where(sq.Or{
			sq.ILike{"name": val},
			sq.ILike{"username": val},
			sq.ILike{"email": val},
		})
	}
	if len(filter.Roles) > 0 {
		roles := make([]string, 0, len(filter.Roles))
		for _, r := range filter.Roles {
			roles = append(roles, r.String())
		}
		q = q.Where(sq.Eq{"role": roles})
	}
	if filter.IsActive != nil {
		q = q.Where(sq.Eq{"is_active": *filter.IsActive})
	}

	var rows []userRow
	if err := repo.selectAll(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	if !validID(usr.ID) {
		return user.User{}, user.ErrNotFound
	}
	values := userValues(usr)
	delete(values, "created_at")

	n, err := repo.exec(ctx, psql.Update("users").SetMap(values).Where(sq.Eq{"id": usr.ID}))
	if err != nil {
		return user.User{}, trapUniqueErr(err, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func filterIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	return valid
}
