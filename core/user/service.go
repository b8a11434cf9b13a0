package user

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/yekiapp/yeki/core"
	"github.com/yekiapp/yeki/core/authz"
)

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotFound         = core.NewError(core.KindNotFound, "user not found")
	ErrEmailExists      = core.NewError(core.KindConflict, "a user with this email already exists")
	ErrUsernameExists   = core.NewError(core.KindConflict, "a user with this username already exists")
	ErrAccountInactive  = core.NewError(core.KindInvalidActor, "account deactivated")
	ErrUnknownActor     = core.NewError(core.KindInvalidActor, "invalid actor: user not found")
	ErrAlreadyActivated = core.NewValidationError(errors.New("user is already active"))
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields, ordered by name.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter QueryFilter) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	// PositionHolder lists the hierarchy positions a user holds because of their role
	// (program admin, department head, course lead teacher or assistant).
	PositionHolder interface {
		HeldPositions(ctx context.Context, userID string) ([]string, error)
	}

	Service struct {
		repo      Repository
		mailSvc   core.EmailService
		positions PositionHolder
		logger    core.Logger
	}
)

func NewService(repo Repository, mailSvc core.EmailService, logger core.Logger) *Service {
	return &Service{repo: repo, mailSvc: mailSvc, logger: logger}
}

// SetPositionHolder plugs the PositionHolder checked by ChangeRole.
func (svc *Service) SetPositionHolder(positions PositionHolder) {
	svc.positions = positions
}

func (svc *Service) CheckUniqueness(ctx context.Context, uname, email string, excludedIDs ...string) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, email, excludedIDs...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return errors.Wrap(err, "checking username uniqueness")
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: errors.Cause(err).Error()})
	}
	return nil
}

// Register creates a User from a validated NewUser. Learners are active right away,
// every other role waits for a general admin to activate the account.
func (svc *Service) Register(ctx context.Context, nu NewUser) (User, error) {
	role, err := authz.ParseRole(nu.Role)
	if err != nil {
		return User{}, core.NewValidationError(err, core.FieldError{Field: "role", Error: "invalid role"})
	}

	now := nowFunc().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  role == authz.RoleLearner,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if role == authz.RoleLearner {
		usr.Profile = nu.Profile
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	usr, err = svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}

	if !usr.IsActive {
		svc.sendMail(usr, "Account pending activation", fmt.Sprintf(
			"Hello %s,\n\nyour %s account has been created and is waiting for an administrator to activate it.",
			usr.Name, usr.Role.Label(),
		))
	}
	svc.logger.Info(fmt.Sprintf("user %s registered as %s", usr.Username, usr.Role))
	return usr, nil
}

// CreateAdmin creates an active general admin from a validated NewUser, whatever its role field.
func (svc *Service) CreateAdmin(ctx context.Context, nu NewUser) (User, error) {
	now := nowFunc().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Role:      authz.RoleAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "creating admin")
	}
	svc.logger.Info(fmt.Sprintf("admin %s created", usr.Username))
	return usr, nil
}

// ActivateByUsername activates the account identified by username or email, outside of any actor check.
func (svc *Service) ActivateByUsername(ctx context.Context, uname string) (User, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return User{}, err
	}
	if usr.IsActive {
		return User{}, ErrAlreadyActivated
	}
	usr.IsActive = true
	usr.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]User, error) {
	filter.Clean()
	return svc.repo.QueryUsers(ctx, filter)
}

// ListTeachers returns every user holding a staff role.
func (svc *Service) ListTeachers(ctx context.Context) ([]User, error) {
	return svc.repo.QueryUsers(ctx, QueryFilter{Roles: authz.TeacherRoles})
}

func (svc *Service) ListUnitHeads(ctx context.Context) ([]User, error) {
	return svc.repo.QueryUsers(ctx, QueryFilter{Roles: []authz.Role{authz.RoleUnitHead}})
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = nowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// SetPassword replaces the password of the user identified by username or email.
func (svc *Service) SetPassword(ctx context.Context, uname, pwd string) (User, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return User{}, err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// ResolveActor turns an authenticated user ID into an Actor.
// Unknown users, invalid roles and inactive accounts are all invalid actors.
func (svc *Service) ResolveActor(ctx context.Context, userID string) (authz.Actor, User, error) {
	if userID == "" {
		return authz.Actor{}, User{}, ErrUnknownActor
	}
	usr, err := svc.GetByID(ctx, userID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return authz.Actor{}, User{}, ErrUnknownActor
		}
		return authz.Actor{}, User{}, errors.Wrap(err, "finding user by ID")
	}
	if !usr.Role.Valid() {
		return authz.Actor{}, User{}, authz.ErrInvalidActor
	}
	if !usr.IsActive {
		return authz.Actor{}, User{}, ErrAccountInactive
	}
	return usr.Actor(), usr, nil
}

// Activate activates a user account. Only general admins may activate accounts.
func (svc *Service) Activate(ctx context.Context, actor authz.Actor, id string) (User, error) {
	if err := authz.Authorize(actor, []authz.Role{authz.RoleAdmin}); err != nil {
		return User{}, err
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if usr.IsActive {
		return User{}, ErrAlreadyActivated
	}

	usr.IsActive = true
	usr.UpdatedAt = nowFunc().UTC()
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "activating user")
	}

	svc.sendMail(usr, "Account activated", fmt.Sprintf(
		"Hello %s,\n\nyour %s account is now active. You can log in with your username or email.",
		usr.Name, usr.Role.Label(),
	))
	svc.logger.Info(fmt.Sprintf("user %s activated by %s", usr.Username, actor.UserID))
	return usr, nil
}

// ChangeRole reassigns the role of a user. The actor must be an admin or a program admin
// and must strictly outrank both the current and the new role of the target.
// A user still holding a position that needs the current role keeps it.
func (svc *Service) ChangeRole(ctx context.Context, actor authz.Actor, id string, role authz.Role) (User, error) {
	if !role.Valid() {
		return User{}, core.NewValidationError(authz.ErrInvalidRole, core.FieldError{Field: "role", Error: "invalid role"})
	}
	if err := authz.Authorize(actor, []authz.Role{authz.RoleAdmin, authz.RoleDepartmentHeadAdmin}); err != nil {
		return User{}, err
	}

	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if err := authz.Authorize(
		actor,
		[]authz.Role{authz.RoleAdmin, authz.RoleDepartmentHeadAdmin},
		authz.OutranksRole(actor, usr.Role),
		authz.OutranksRole(actor, role),
	); err != nil {
		return User{}, err
	}
	if role != usr.Role && svc.positions != nil {
		held, err := svc.positions.HeldPositions(ctx, usr.ID)
		if err != nil {
			return User{}, errors.Wrap(err, "listing held positions")
		}
		if len(held) > 0 {
			msg := fmt.Sprintf("user must first be released from: %s", strings.Join(held, ", "))
			return User{}, core.NewCodedValidationError(
				core.CodeRoleInUse, errors.New(msg), core.FieldError{Field: "role", Error: msg},
			)
		}
	}

	usr.Role = role
	usr.UpdatedAt = nowFunc().UTC()
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "changing user role")
	}
	return usr, nil
}

func (svc *Service) sendMail(usr User, subject, body string) {
	if svc.mailSvc == nil || usr.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: subject,
		BodyStr: body,
	})
}
