package orm

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

func (db *DB) CreateVersion(ctx context.Context, version *SkillVersion) error {
	return wrapErrorWithDetails(
		db.gormDB.WithContext(ctx).Create(version).Error,
		"create version",
		fmt.Sprintf("skill=%s, version=%s", version.SkillID, version.Version),
	)
}

func (db *DB) GetVersionByID(ctx context.Context, id string) (*SkillVersion, error) {
	if id == "" {
		return nil, &BadInputError{Reason: "version id must be provided"}
	}

	version, err := gorm.G[SkillVersion](
		db.gormDB,
	).Where(&SkillVersion{ID: id}).First(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(err, "get version by id", id)
	}

	return &version, nil
}

func (db *DB) GetVersionBySemver(
	ctx context.Context,
	skillID, semver string,
) (*SkillVersion, error) {
	if skillID == "" || semver == "" {
		return nil, &BadInputError{
			Reason: fmt.Sprintf(
				"All parameters must be provided: skillID=%q, version=%q",
				skillID,
				semver,
			),
		}
	}

	version, err := gorm.G[SkillVersion](
		db.gormDB,
	).Where(&SkillVersion{SkillID: skillID, Version: semver}).First(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"get version by semver",
			fmt.Sprintf("skill=%s, version=%s", skillID, semver),
		)
	}

	return &version, nil
}

// ListVersions returns versions of a skill newest-first. Before, when
// set, is the keyset cursor over created_at.
func (db *DB) ListVersions(
	ctx context.Context,
	skillID string,
	limit int,
	before *time.Time,
) ([]SkillVersion, error) {
	tx := db.gormDB.WithContext(ctx).
		Where("skill_id = ?", skillID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if before != nil {
		tx = tx.Where("created_at < ?", *before)
	}

	var versions []SkillVersion
	if err := tx.Find(&versions).Error; err != nil {
		return nil, wrapErrorWithDetails(err, "list versions", "skill="+skillID)
	}

	return versions, nil
}

func (db *DB) SetVersionSoftDeleted(
	ctx context.Context,
	versionID string,
	deletedAt *time.Time,
) error {
	return wrapErrorWithDetails(
		db.gormDB.WithContext(ctx).Model(&SkillVersion{}).
			Where("id = ?", versionID).
			Update("soft_deleted_at", deletedAt).Error,
		"set version soft deleted",
		versionID,
	)
}

func (db *DB) CreateFingerprint(ctx context.Context, fp *VersionFingerprint) error {
	return wrapErrorWithDetails(
		db.gormDB.WithContext(ctx).Create(fp).Error,
		"create fingerprint",
		fmt.Sprintf("skill=%s, fingerprint=%s", fp.SkillID, fp.Fingerprint),
	)
}

// ListFingerprints returns the fingerprint rows for (skill, hash),
// newest first, bounded by limit.
func (db *DB) ListFingerprints(
	ctx context.Context,
	skillID, fingerprint string,
	limit int,
) ([]VersionFingerprint, error) {
	var rows []VersionFingerprint
	err := db.gormDB.WithContext(ctx).
		Where("skill_id = ? AND fingerprint = ?", skillID, fingerprint).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"list fingerprints",
			fmt.Sprintf("skill=%s, fingerprint=%s", skillID, fingerprint),
		)
	}

	return rows, nil
}
