package registry

import (
	"context"
	"fmt"

	"github.com/xrey167/molthub/orm"
)

// TagUpdate assigns a version to a named tag.
type TagUpdate struct {
	Tag       string
	VersionID string
}

// UpdateTags moves tags on a skill. Owner or moderator only. Moving
// "latest" also repoints latestVersionId and recomputes which embedding
// carries isLatest.
func (s *Service) UpdateTags(
	ctx context.Context,
	principal Principal,
	skillID string,
	updates []TagUpdate,
) error {
	skill, err := s.store.GetSkillByID(ctx, skillID)
	if err != nil {
		return wrapServiceError(err, "skill lookup")
	}
	if skill.OwnerUserID != principal.UserID && !principal.isModerator() {
		return Errf(CodeForbidden, "only the owner or a moderator may move tags")
	}

	err = s.store.InTx(ctx, func(tx orm.Store) error {
		for _, u := range updates {
			if u.Tag == "" || u.VersionID == "" {
				return Errf(CodeInvalid, "tag and versionId must be provided")
			}

			version, err := tx.GetVersionByID(ctx, u.VersionID)
			if err != nil {
				return err
			}
			if version.SkillID != skill.ID {
				return Errf(CodeInvalid, fmt.Sprintf(
					"version %s does not belong to skill %s", u.VersionID, skill.Slug,
				))
			}

			if err := tx.UpsertTag(ctx, skill.ID, u.Tag, u.VersionID); err != nil {
				return err
			}

			if u.Tag == orm.TagLatest {
				skill.LatestVersionID = &version.ID
				skill.UpdatedAt = s.now()
				if err := tx.SaveSkill(ctx, skill); err != nil {
					return err
				}
				if err := s.recomputeLatestFlags(ctx, tx, skill, version.ID); err != nil {
					return err
				}
			}
		}

		return tx.AppendAudit(ctx, &orm.AuditLog{
			ActorUserID: principal.UserID,
			Action:      "skill.tags.update",
			TargetType:  "skill",
			TargetID:    skill.ID,
			Metadata:    map[string]any{"updates": len(updates)},
			CreatedAt:   s.now(),
		})
	})

	return wrapServiceError(err, "tag update")
}

// recomputeLatestFlags makes the embedding of latestVersionID the only
// one with isLatest, refreshing visibilities along the way.
func (s *Service) recomputeLatestFlags(
	ctx context.Context,
	tx orm.Store,
	skill *orm.Skill,
	latestVersionID string,
) error {
	embeddings, err := tx.ListEmbeddingsBySkill(ctx, skill.ID)
	if err != nil {
		return err
	}

	deleted := skill.SoftDeletedAt != nil
	for i := range embeddings {
		isLatest := embeddings[i].VersionID == latestVersionID
		visibility := VisibilityFor(isLatest, embeddings[i].IsApproved, deleted)
		if embeddings[i].IsLatest == isLatest && embeddings[i].Visibility == visibility {
			continue
		}
		embeddings[i].IsLatest = isLatest
		embeddings[i].Visibility = visibility
		embeddings[i].UpdatedAt = s.now()
		if err := tx.SaveEmbedding(ctx, &embeddings[i]); err != nil {
			return err
		}
	}

	return nil
}

// SetDuplicate marks a skill as a duplicate of canonicalSlug, or clears
// the marker when canonicalSlug is empty. Moderator only.
func (s *Service) SetDuplicate(
	ctx context.Context,
	principal Principal,
	skillID, canonicalSlug string,
) error {
	if !principal.isModerator() {
		return Errf(CodeForbidden, "only moderators may mark duplicates")
	}

	skill, err := s.store.GetSkillByID(ctx, skillID)
	if err != nil {
		return wrapServiceError(err, "skill lookup")
	}

	if canonicalSlug == "" {
		skill.CanonicalSkillID = nil
		skill.ForkOfSkillID = nil
		skill.ForkKind = ""
		skill.ForkVersion = ""
	} else {
		canonical, err := s.store.GetSkillBySlug(ctx, canonicalSlug)
		if err != nil {
			return wrapServiceError(err, "canonical lookup")
		}
		if canonical.ID == skill.ID {
			return &ServiceError{
				Code:    CodeInvalid,
				Message: "a skill cannot be its own canonical",
				Inner:   ErrSelfReference,
			}
		}
		if canonical.SoftDeletedAt != nil {
			return Errf(CodeInvalid, "canonical skill is deleted")
		}

		latest := ""
		if canonical.LatestVersionID != nil {
			if v, err := s.store.GetVersionByID(ctx, *canonical.LatestVersionID); err == nil {
				latest = v.Version
			}
		}

		skill.CanonicalSkillID = &canonical.ID
		skill.ForkOfSkillID = &canonical.ID
		skill.ForkKind = orm.ForkKindDuplicate
		skill.ForkVersion = latest
	}
	skill.UpdatedAt = s.now()

	err = s.store.InTx(ctx, func(tx orm.Store) error {
		if err := tx.SaveSkill(ctx, skill); err != nil {
			return err
		}

		return tx.AppendAudit(ctx, &orm.AuditLog{
			ActorUserID: principal.UserID,
			Action:      "skill.duplicate.set",
			TargetType:  "skill",
			TargetID:    skill.ID,
			Metadata:    map[string]any{"canonicalSlug": canonicalSlug},
			CreatedAt:   s.now(),
		})
	})

	return wrapServiceError(err, "set duplicate")
}

// ChangeOwner transfers a skill and its embeddings to a new owner.
// Admin only.
func (s *Service) ChangeOwner(
	ctx context.Context,
	principal Principal,
	skillID, newOwnerUserID string,
) error {
	if !principal.isAdmin() {
		return Errf(CodeForbidden, "only admins may change ownership")
	}

	skill, err := s.store.GetSkillByID(ctx, skillID)
	if err != nil {
		return wrapServiceError(err, "skill lookup")
	}
	newOwner, err := s.store.GetUserByID(ctx, newOwnerUserID)
	if err != nil {
		return wrapServiceError(err, "new owner lookup")
	}

	err = s.store.InTx(ctx, func(tx orm.Store) error {
		skill.OwnerUserID = newOwner.ID
		skill.UpdatedAt = s.now()
		if err := tx.SaveSkill(ctx, skill); err != nil {
			return err
		}

		embeddings, err := tx.ListEmbeddingsBySkill(ctx, skill.ID)
		if err != nil {
			return err
		}
		for i := range embeddings {
			embeddings[i].OwnerID = newOwner.ID
			embeddings[i].UpdatedAt = s.now()
			if err := tx.SaveEmbedding(ctx, &embeddings[i]); err != nil {
				return err
			}
		}

		return tx.AppendAudit(ctx, &orm.AuditLog{
			ActorUserID: principal.UserID,
			Action:      "skill.owner.change",
			TargetType:  "skill",
			TargetID:    skill.ID,
			Metadata:    map[string]any{"newOwner": newOwner.ID},
			CreatedAt:   s.now(),
		})
	})

	return wrapServiceError(err, "change owner")
}
