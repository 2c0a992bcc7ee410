package orm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AddStar inserts a star and reports whether it was new. Re-starring is
// a no-op so the counter never drifts.
func (db *DB) AddStar(ctx context.Context, userID, skillID string) (bool, error) {
	star := Star{UserID: userID, SkillID: skillID, CreatedAt: time.Now().UTC()}

	res := db.gormDB.WithContext(ctx).Clauses(clause.OnConflict{
		DoNothing: true,
	}).Create(&star)
	if res.Error != nil {
		return false, wrapErrorWithDetails(
			res.Error,
			"add star",
			fmt.Sprintf("user=%s, skill=%s", userID, skillID),
		)
	}

	return res.RowsAffected > 0, nil
}

func (db *DB) RemoveStar(ctx context.Context, userID, skillID string) (bool, error) {
	res := db.gormDB.WithContext(ctx).
		Where("user_id = ? AND skill_id = ?", userID, skillID).
		Delete(&Star{})
	if res.Error != nil {
		return false, wrapErrorWithDetails(
			res.Error,
			"remove star",
			fmt.Sprintf("user=%s, skill=%s", userID, skillID),
		)
	}

	return res.RowsAffected > 0, nil
}

// AdjustStarCount applies a delta to the denormalised counter.
func (db *DB) AdjustStarCount(ctx context.Context, skillID string, delta int64) error {
	return wrapErrorWithDetails(
		db.gormDB.WithContext(ctx).Model(&Skill{}).
			Where("id = ?", skillID).
			UpdateColumn("stats_stars", gorm.Expr("stats_stars + ?", delta)).Error,
		"adjust star count",
		skillID,
	)
}

func (db *DB) GetBadges(ctx context.Context, skillID string) ([]SkillBadge, error) {
	badges, err := gorm.G[SkillBadge](
		db.gormDB,
	).Where(&SkillBadge{SkillID: skillID}).Find(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(err, "get badges", "skill="+skillID)
	}

	return badges, nil
}

func (db *DB) UpsertBadge(ctx context.Context, badge *SkillBadge) error {
	return wrapErrorWithDetails(
		db.gormDB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "skill_id"}, {Name: "kind"}},
			DoUpdates: clause.AssignmentColumns([]string{"by_user_id", "at"}),
		}).Create(badge).Error,
		"upsert badge",
		fmt.Sprintf("skill=%s, kind=%s", badge.SkillID, badge.Kind),
	)
}

func (db *DB) RemoveBadge(ctx context.Context, skillID, kind string) error {
	err := db.gormDB.WithContext(ctx).
		Where("skill_id = ? AND kind = ?", skillID, kind).
		Delete(&SkillBadge{}).Error

	return wrapErrorWithDetails(
		err,
		"remove badge",
		fmt.Sprintf("skill=%s, kind=%s", skillID, kind),
	)
}

func (db *DB) CreateComment(ctx context.Context, comment *Comment) error {
	return wrapErrorWithDetails(
		db.gormDB.WithContext(ctx).Create(comment).Error,
		"create comment",
		fmt.Sprintf("skill=%s", comment.SkillID),
	)
}

func (db *DB) SoftDeleteComment(ctx context.Context, commentID string) error {
	now := time.Now().UTC()

	res := db.gormDB.WithContext(ctx).Model(&Comment{}).
		Where("id = ? AND soft_deleted_at IS NULL", commentID).
		Update("soft_deleted_at", &now)
	if res.Error != nil {
		return wrapErrorWithDetails(res.Error, "soft delete comment", commentID)
	}
	if res.RowsAffected == 0 {
		return &NotFoundError{Search: "comment " + commentID}
	}

	return nil
}

var errAuditActorMissing = errors.New("audit log requires an actor")

// AppendAudit records a privileged mutation. Audit rows are append-only.
func (db *DB) AppendAudit(ctx context.Context, entry *AuditLog) error {
	if entry.ActorUserID == "" {
		return &BadInputError{Reason: errAuditActorMissing.Error()}
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	return wrapErrorWithDetails(
		db.gormDB.WithContext(ctx).Create(entry).Error,
		"append audit log",
		entry.Action,
	)
}
