package orm

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (db *DB) GetSkillBySlug(ctx context.Context, slug string) (*Skill, error) {
	if slug == "" {
		return nil, &BadInputError{Reason: "slug must be provided"}
	}

	skill, err := gorm.G[Skill](
		db.gormDB,
	).Preload("Tags", nil).Where(&Skill{Slug: slug}).First(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"get skill by slug",
			fmt.Sprintf("slug=%s", slug),
		)
	}

	return &skill, nil
}

func (db *DB) GetSkillByID(ctx context.Context, id string) (*Skill, error) {
	if id == "" {
		return nil, &BadInputError{Reason: "skill id must be provided"}
	}

	skill, err := gorm.G[Skill](
		db.gormDB,
	).Preload("Tags", nil).Where(&Skill{ID: id}).First(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"get skill by id",
			fmt.Sprintf("id=%s", id),
		)
	}

	return &skill, nil
}

func (db *DB) CreateSkill(ctx context.Context, skill *Skill) error {
	return wrapErrorWithDetails(
		db.gormDB.WithContext(ctx).Create(skill).Error,
		"create skill",
		fmt.Sprintf("slug=%s", skill.Slug),
	)
}

// SaveSkill persists every field of the skill row, tags excluded.
func (db *DB) SaveSkill(ctx context.Context, skill *Skill) error {
	return wrapErrorWithDetails(
		db.gormDB.WithContext(ctx).Omit("Tags").Save(skill).Error,
		"save skill",
		fmt.Sprintf("slug=%s", skill.Slug),
	)
}

// Sort orders accepted by ListSkills.
const (
	SortUpdated         = "updated"
	SortDownloads       = "downloads"
	SortStars           = "stars"
	SortInstallsCurrent = "installsCurrent"
	SortInstallsAllTime = "installsAllTime"
	SortTrending        = "trending"
)

type ListSkillsQuery struct {
	Sort  string
	Limit int
	// Before restricts results to rows updated strictly before this
	// instant; used by the keyset cursor on the "updated" sort.
	Before *time.Time
}

// ListSkills returns public (not soft-deleted, not hidden) skills. Only
// the "updated" sort supports keyset continuation; the other sorts are
// single bounded pages.
func (db *DB) ListSkills(ctx context.Context, q ListSkillsQuery) ([]Skill, error) {
	tx := db.gormDB.WithContext(ctx).
		Preload("Tags").
		Where("soft_deleted_at IS NULL").
		Where("moderation_status = ?", ModerationActive).
		Limit(q.Limit)

	switch q.Sort {
	case SortDownloads:
		tx = tx.Order("stats_downloads DESC, updated_at DESC")
	case SortStars:
		tx = tx.Order("stats_stars DESC, updated_at DESC")
	case SortInstallsCurrent:
		tx = tx.Order("stats_installs_current DESC, updated_at DESC")
	case SortInstallsAllTime:
		tx = tx.Order("stats_installs_all_time DESC, updated_at DESC")
	case SortTrending:
		// Downloads plus double-weighted stars; ties go to the most
		// recently updated skill.
		tx = tx.Order("stats_downloads + stats_stars * 2 DESC").Order("updated_at DESC")
	default:
		tx = tx.Order("updated_at DESC, id DESC")
		if q.Before != nil {
			tx = tx.Where("updated_at < ?", *q.Before)
		}
	}

	var skills []Skill
	if err := tx.Find(&skills).Error; err != nil {
		return nil, wrapErrorWithDetails(err, "list skills", "sort="+q.Sort)
	}

	return skills, nil
}

// FindSkillIDByFingerprint returns the id of a non-soft-deleted skill
// owning a version with the given bundle fingerprint. Used by the
// cross-skill duplicate probe on publish.
func (db *DB) FindSkillIDByFingerprint(
	ctx context.Context,
	fingerprint string,
	excludeSkillID string,
) (string, error) {
	var skillID string
	err := db.gormDB.WithContext(ctx).
		Model(&VersionFingerprint{}).
		Select("version_fingerprints.skill_id").
		Joins("JOIN skills ON skills.id = version_fingerprints.skill_id").
		Where("version_fingerprints.fingerprint = ?", fingerprint).
		Where("skills.soft_deleted_at IS NULL").
		Where("version_fingerprints.skill_id <> ?", excludeSkillID).
		Order("version_fingerprints.created_at ASC").
		Limit(1).
		Scan(&skillID).Error
	if err != nil {
		return "", wrapErrorWithDetails(err, "find skill by fingerprint", fingerprint)
	}

	return skillID, nil
}

func (db *DB) UpsertTag(ctx context.Context, skillID, name, versionID string) error {
	tag := SkillTag{SkillID: skillID, Name: name, VersionID: versionID}

	return wrapErrorWithDetails(
		db.gormDB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "skill_id"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"version_id"}),
		}).Create(&tag).Error,
		"upsert tag",
		fmt.Sprintf("skill=%s, tag=%s", skillID, name),
	)
}

func (db *DB) GetTags(ctx context.Context, skillID string) (map[string]string, error) {
	tags, err := gorm.G[SkillTag](
		db.gormDB,
	).Where(&SkillTag{SkillID: skillID}).Find(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(err, "get tags", "skill="+skillID)
	}

	out := make(map[string]string, len(tags))
	for _, t := range tags {
		out[t.Name] = t.VersionID
	}

	return out, nil
}

// HardDeleteSkill removes the skill and everything hanging off it.
// Callers run this inside InTx together with ClearLineageReferences.
func (db *DB) HardDeleteSkill(ctx context.Context, skillID string) error {
	tx := db.gormDB.WithContext(ctx)

	deletions := []struct {
		model any
		query string
	}{
		{&SkillTag{}, "skill_id = ?"},
		{&SkillVersion{}, "skill_id = ?"},
		{&VersionFingerprint{}, "skill_id = ?"},
		{&SkillEmbedding{}, "skill_id = ?"},
		{&Star{}, "skill_id = ?"},
		{&Comment{}, "skill_id = ?"},
		{&SkillBadge{}, "skill_id = ?"},
	}
	for _, d := range deletions {
		if err := tx.Where(d.query, skillID).Delete(d.model).Error; err != nil {
			return wrapErrorWithDetails(err, "hard delete skill children", skillID)
		}
	}

	return wrapErrorWithDetails(
		tx.Where("id = ?", skillID).Delete(&Skill{}).Error,
		"hard delete skill",
		skillID,
	)
}

// ClearLineageReferences detaches any skill whose canonical or fork
// pointer references the given (deleted) skill.
func (db *DB) ClearLineageReferences(ctx context.Context, skillID string) error {
	tx := db.gormDB.WithContext(ctx)

	if err := tx.Model(&Skill{}).
		Where("canonical_skill_id = ?", skillID).
		Update("canonical_skill_id", nil).Error; err != nil {
		return wrapErrorWithDetails(err, "clear canonical references", skillID)
	}

	err := tx.Model(&Skill{}).
		Where("fork_of_skill_id = ?", skillID).
		Updates(map[string]any{
			"fork_of_skill_id": nil,
			"fork_kind":        "",
			"fork_version":     "",
		}).Error

	return wrapErrorWithDetails(err, "clear fork references", skillID)
}

// IncrementDownloads bumps the download counter without touching
// updated_at. Best-effort; callers log and continue on failure.
func (db *DB) IncrementDownloads(ctx context.Context, skillID string) error {
	return wrapErrorWithDetails(
		db.gormDB.WithContext(ctx).Model(&Skill{}).
			Where("id = ?", skillID).
			UpdateColumn("stats_downloads", gorm.Expr("stats_downloads + 1")).Error,
		"increment download count",
		skillID,
	)
}
