package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/yekiapp/yeki/core"
	"github.com/yekiapp/yeki/core/authz"
)

// Profile holds the academic details a learner gives at registration.
type Profile struct {
	Cursus    string `json:"cursus,omitempty"`
	SubCursus string `json:"sub_cursus,omitempty"`
	Level     string `json:"level,omitempty"`
	Track     string `json:"track,omitempty"`
	Licence   string `json:"licence,omitempty"`
}

func (p Profile) clean() Profile {
	return Profile{
		Cursus:    core.CleanString(p.Cursus),
		SubCursus: core.CleanString(p.SubCursus),
		Level:     core.CleanString(p.Level),
		Track:     core.CleanString(p.Track),
		Licence:   core.CleanString(p.Licence),
	}
}

type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	IsActive     bool       `json:"is_active"`
	Role         authz.Role `json:"role"`
	Profile      Profile    `json:"profile"`
	PasswordHash []byte     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"` // UTC
	UpdatedAt    time.Time  `json:"updated_at"` // UTC
	LastLogin    time.Time  `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) Actor() authz.Actor {
	return authz.Actor{UserID: u.ID, Role: u.Role}
}

// NewUser contains information needed to register a new User.
type NewUser struct {
	Name            string  `json:"name" validate:"required"`
	Username        string  `json:"username" validate:"required,min=6,alphanum_"`
	Email           string  `json:"email" validate:"required,email"`
	Password        string  `json:"password" validate:"required"`
	PasswordConfirm string  `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            string  `json:"role" validate:"required,role"`
	Profile         Profile `json:"profile"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	nu.Profile = nu.Profile.clean()

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// ChangeRole is the payload of a role reassignment.
type ChangeRole struct {
	Role string `json:"role" validate:"required,role"`
}

func (cr *ChangeRole) Validate(validate *validator.Validate) error {
	cr.Role = core.CleanString(cr.Role, true /* lower */)
	return validate.Struct(cr)
}

type GetFilter struct {
	ID              string
	UsernameOrEmail string
}

type QueryFilter struct {
	Search   string       `query:"search"`
	Roles    []authz.Role `query:"-"`
	IsActive *bool        `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
