package inmemdb

import (
	"context"

	"github.com/yekiapp/yeki/core/release"
)

type releaseRepository struct {
	conn
}

var _ release.Repository = (*releaseRepository)(nil)

func NewReleaseRepository(db *DB) release.Repository {
	return &releaseRepository{conn: conn{db: db}}
}

func (repo *releaseRepository) LatestRelease(_ context.Context) (release.Release, error) {
	defer repo.lock()()

	if len(repo.db.t.releases) == 0 {
		return release.Release{}, release.ErrNotFound
	}
	latest := repo.db.t.releases[0]
	for _, rel := range repo.db.t.releases[1:] {
		if rel.VersionCode > latest.VersionCode {
			latest = rel
		}
	}
	return latest, nil
}

func (repo *releaseRepository) CreateRelease(_ context.Context, rel release.Release) (release.Release, error) {
	defer repo.lock()()

	for _, r := range repo.db.t.releases {
		if r.VersionCode == rel.VersionCode {
			return release.Release{}, release.ErrVersionExists
		}
	}
	repo.db.t.releases = append(repo.db.t.releases, rel)
	return rel, nil
}
