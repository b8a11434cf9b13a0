package release

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/yekiapp/yeki/core"
	"github.com/yekiapp/yeki/core/authz"
)

var (
	nowFunc = time.Now // mockable

	ErrNotFound      = core.NewError(core.KindNotFound, "no release published yet")
	ErrVersionExists = core.NewError(core.KindConflict, "a release with this version code already exists")
)

// Release is a published version of the mobile application.
type Release struct {
	VersionCode int       `json:"version_code"`
	VersionName string    `json:"version_name"`
	APKURL      string    `json:"apk_url"`
	Changelog   string    `json:"changelog"`
	CreatedAt   time.Time `json:"created_at"`
}

type NewRelease struct {
	VersionCode int    `json:"version_code" validate:"gt=0"`
	VersionName string `json:"version_name" validate:"required"`
	APKURL      string `json:"apk_url" validate:"required"`
	Changelog   string `json:"changelog"`
}

func (nr *NewRelease) Validate(validate *validator.Validate) error {
	nr.VersionName = core.CleanString(nr.VersionName)
	nr.APKURL = core.CleanString(nr.APKURL)
	nr.Changelog = core.CleanString(nr.Changelog)
	return validate.Struct(nr)
}

type (
	Repository interface {
		// LatestRelease returns the release with the highest version code, or ErrNotFound.
		LatestRelease(ctx context.Context) (Release, error)
		CreateRelease(ctx context.Context, rel Release) (Release, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Latest(ctx context.Context) (Release, error) {
	return svc.repo.LatestRelease(ctx)
}

// Publish records a new release. Version codes only go up.
func (svc *Service) Publish(ctx context.Context, actor authz.Actor, nr NewRelease) (Release, error) {
	if err := authz.Authorize(actor, []authz.Role{authz.RoleAdmin}); err != nil {
		return Release{}, err
	}
	latest, err := svc.repo.LatestRelease(ctx)
	if err != nil && errors.Cause(err) != ErrNotFound {
		return Release{}, errors.Wrap(err, "finding latest release")
	}
	if err == nil && nr.VersionCode <= latest.VersionCode {
		msg := fmt.Sprintf("version code must be greater than %d", latest.VersionCode)
		return Release{}, core.NewValidationError(errors.New(msg), core.FieldError{Field: "version_code", Error: msg})
	}

	rel, err := svc.repo.CreateRelease(ctx, Release{
		VersionCode: nr.VersionCode,
		VersionName: nr.VersionName,
		APKURL:      nr.APKURL,
		Changelog:   nr.Changelog,
		CreatedAt:   nowFunc().UTC(),
	})
	if err != nil {
		return Release{}, errors.Wrap(err, "creating release")
	}
	return rel, nil
}
