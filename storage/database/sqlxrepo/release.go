package sqlxrepo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/yekiapp/yeki/core/release"
)

type releaseRow struct {
	VersionCode int       `db:"version_code"`
	VersionName string    `db:"version_name"`
	APKURL      string    `db:"apk_url"`
	Changelog   string    `db:"changelog"`
	CreatedAt   time.Time `db:"created_at"`
}

var releaseColumns = []string{"version_code", "version_name", "apk_url", "changelog", "created_at"}

type releaseRepository struct {
	conn
}

var _ release.Repository = (*releaseRepository)(nil)

func NewReleaseRepository(db *sqlx.DB) release.Repository {
	return &releaseRepository{conn: newConn(db)}
}

func (repo *releaseRepository) LatestRelease(ctx context.Context) (release.Release, error) {
	var row releaseRow
	q := psql.Select(releaseColumns...).From("releases").OrderBy("version_code DESC").Limit(1)
	if err := repo.get(ctx, &row, q); err != nil {
		return release.Release{}, trapNoRows(err, release.ErrNotFound, "finding latest release")
	}
	return release.Release{
		VersionCode: row.VersionCode,
		VersionName: row.VersionName,
		APKURL:      row.APKURL,
		Changelog:   row.Changelog,
		CreatedAt:   row.CreatedAt.UTC(),
	}, nil
}

func (repo *releaseRepository) CreateRelease(ctx context.Context, rel release.Release) (release.Release, error) {
	_, err := repo.exec(ctx, psql.Insert("releases").
		Columns(releaseColumns...).
		Values(rel.VersionCode, rel.VersionName, rel.APKURL, rel.Changelog, rel.CreatedAt.UTC()))
	if err != nil {
		if isUniqueViolation(err, "releases_pkey") {
			return release.Release{}, release.ErrVersionExists
		}
		return release.Release{}, errors.Wrap(err, "inserting release")
	}
	return rel, nil
}
