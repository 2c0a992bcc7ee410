package registry

import (
	"context"
	"fmt"

	"github.com/xrey167/molthub/orm"
)

// SetSoftDeleted hides or restores a skill. Moderator or owner. Hiding
// flips every embedding to the deleted visibility; restoring recomputes
// each one from its flags.
func (s *Service) SetSoftDeleted(
	ctx context.Context,
	principal Principal,
	skillID string,
	deleted bool,
) error {
	skill, err := s.store.GetSkillByID(ctx, skillID)
	if err != nil {
		return wrapServiceError(err, "skill lookup")
	}
	if skill.OwnerUserID != principal.UserID && !principal.isModerator() {
		return Errf(CodeForbidden, "only the owner or a moderator may delete a skill")
	}

	now := s.now()
	if deleted {
		skill.SoftDeletedAt = &now
	} else {
		skill.SoftDeletedAt = nil
	}
	skill.UpdatedAt = now

	err = s.store.InTx(ctx, func(tx orm.Store) error {
		if err := tx.SaveSkill(ctx, skill); err != nil {
			return err
		}

		embeddings, err := tx.ListEmbeddingsBySkill(ctx, skill.ID)
		if err != nil {
			return err
		}
		for i := range embeddings {
			embeddings[i].Visibility = VisibilityFor(
				embeddings[i].IsLatest,
				embeddings[i].IsApproved,
				deleted,
			)
			embeddings[i].UpdatedAt = now
			if err := tx.SaveEmbedding(ctx, &embeddings[i]); err != nil {
				return err
			}
		}

		action := "skill.softdelete"
		if !deleted {
			action = "skill.undelete"
		}

		return tx.AppendAudit(ctx, &orm.AuditLog{
			ActorUserID: principal.UserID,
			Action:      action,
			TargetType:  "skill",
			TargetID:    skill.ID,
			CreatedAt:   now,
		})
	})

	return wrapServiceError(err, "soft delete")
}

// SetSoftDeletedBySlug resolves the slug (soft-deleted skills
// included, so undelete can find them) and delegates.
func (s *Service) SetSoftDeletedBySlug(
	ctx context.Context,
	principal Principal,
	slug string,
	deleted bool,
) error {
	skill, err := s.store.GetSkillBySlug(ctx, slug)
	if err != nil {
		return wrapServiceError(err, "skill lookup")
	}

	return s.SetSoftDeleted(ctx, principal, skill.ID, deleted)
}

// HardDelete removes a skill and everything referencing it. Admin only.
func (s *Service) HardDelete(
	ctx context.Context,
	principal Principal,
	skillID string,
) error {
	if !principal.isAdmin() {
		return Errf(CodeForbidden, "only admins may hard-delete a skill")
	}

	skill, err := s.store.GetSkillByID(ctx, skillID)
	if err != nil {
		return wrapServiceError(err, "skill lookup")
	}

	err = s.store.InTx(ctx, func(tx orm.Store) error {
		if err := tx.HardDeleteSkill(ctx, skill.ID); err != nil {
			return err
		}
		if err := tx.ClearLineageReferences(ctx, skill.ID); err != nil {
			return err
		}

		return tx.AppendAudit(ctx, &orm.AuditLog{
			ActorUserID: principal.UserID,
			Action:      "skill.harddelete",
			TargetType:  "skill",
			TargetID:    skill.ID,
			Metadata:    map[string]any{"slug": skill.Slug},
			CreatedAt:   s.now(),
		})
	})

	return wrapServiceError(err, "hard delete")
}

// SetBadge grants or revokes a badge. Highlighting is a moderator
// action; the remaining kinds are admin-only. Toggling the redaction
// approval recomputes every embedding's approval and visibility.
func (s *Service) SetBadge(
	ctx context.Context,
	principal Principal,
	skillID, kind string,
	on bool,
) error {
	switch kind {
	case orm.BadgeHighlighted:
		if !principal.isModerator() {
			return Errf(CodeForbidden, "only moderators may highlight")
		}
	case orm.BadgeOfficial, orm.BadgeDeprecated, orm.BadgeRedactionApproved:
		if !principal.isAdmin() {
			return Errf(CodeForbidden, fmt.Sprintf("only admins may set the %s badge", kind))
		}
	default:
		return Errf(CodeInvalid, fmt.Sprintf("unknown badge kind %q", kind))
	}

	skill, err := s.store.GetSkillByID(ctx, skillID)
	if err != nil {
		return wrapServiceError(err, "skill lookup")
	}

	now := s.now()
	err = s.store.InTx(ctx, func(tx orm.Store) error {
		if on {
			if err := tx.UpsertBadge(ctx, &orm.SkillBadge{
				SkillID:  skill.ID,
				Kind:     kind,
				ByUserID: principal.UserID,
				At:       now,
			}); err != nil {
				return err
			}
		} else {
			if err := tx.RemoveBadge(ctx, skill.ID, kind); err != nil {
				return err
			}
		}

		if kind == orm.BadgeRedactionApproved {
			embeddings, err := tx.ListEmbeddingsBySkill(ctx, skill.ID)
			if err != nil {
				return err
			}
			deleted := skill.SoftDeletedAt != nil
			for i := range embeddings {
				embeddings[i].IsApproved = on
				embeddings[i].Visibility = VisibilityFor(
					embeddings[i].IsLatest,
					on,
					deleted,
				)
				embeddings[i].UpdatedAt = now
				if err := tx.SaveEmbedding(ctx, &embeddings[i]); err != nil {
					return err
				}
			}
		}

		return tx.AppendAudit(ctx, &orm.AuditLog{
			ActorUserID: principal.UserID,
			Action:      "skill.badge.set",
			TargetType:  "skill",
			TargetID:    skill.ID,
			Metadata:    map[string]any{"kind": kind, "on": on},
			CreatedAt:   now,
		})
	})

	return wrapServiceError(err, "set badge")
}

// Star records a star for the caller and bumps the counter. Returns
// the new star count.
func (s *Service) Star(
	ctx context.Context,
	principal Principal,
	slug string,
) (int64, error) {
	skill, err := s.visibleSkill(ctx, slug)
	if err != nil {
		return 0, err
	}

	err = s.store.InTx(ctx, func(tx orm.Store) error {
		added, err := tx.AddStar(ctx, principal.UserID, skill.ID)
		if err != nil {
			return err
		}
		if added {
			skill.Stats.Stars++

			return tx.AdjustStarCount(ctx, skill.ID, 1)
		}

		return nil
	})
	if err != nil {
		return 0, wrapServiceError(err, "star")
	}

	return skill.Stats.Stars, nil
}

// Unstar removes the caller's star if present.
func (s *Service) Unstar(
	ctx context.Context,
	principal Principal,
	slug string,
) (int64, error) {
	skill, err := s.visibleSkill(ctx, slug)
	if err != nil {
		return 0, err
	}

	err = s.store.InTx(ctx, func(tx orm.Store) error {
		removed, err := tx.RemoveStar(ctx, principal.UserID, skill.ID)
		if err != nil {
			return err
		}
		if removed {
			skill.Stats.Stars--

			return tx.AdjustStarCount(ctx, skill.ID, -1)
		}

		return nil
	})
	if err != nil {
		return 0, wrapServiceError(err, "unstar")
	}

	return skill.Stats.Stars, nil
}
