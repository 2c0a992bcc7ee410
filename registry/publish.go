package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"

	"github.com/xrey167/molthub/changelog"
	"github.com/xrey167/molthub/orm"
)

// ForkRef names the upstream of an explicit fork.
type ForkRef struct {
	Slug    string
	Version string
}

// PublishRequest is the §4.1 input contract. Files reference blobs
// already written to the object store.
type PublishRequest struct {
	Slug        string
	DisplayName string
	Version     string
	Changelog   string
	Tags        []string
	ForkOf      *ForkRef
	Source      string
	Files       []orm.VersionFile
}

// PublishResult reports the committed publish.
type PublishResult struct {
	SkillID     string
	VersionID   string
	Version     string
	Fingerprint string
	Created     bool
}

// embedTextLimit bounds the text sent to the embedding provider.
const embedTextLimit = 12000

// Publish validates, fingerprints, and persists a new version together
// with its embedding, fingerprint entry, tag updates, and lineage. All
// external I/O (blob reads, changelog, embedding) happens before the
// atomic commit; notifier dispatch is fire-and-forget afterwards.
func (s *Service) Publish(
	ctx context.Context,
	principal Principal,
	req *PublishRequest,
) (*PublishResult, error) {
	if err := validatePublish(req); err != nil {
		return nil, err
	}

	// Ownership and version-uniqueness checks against current state.
	existing, err := s.store.GetSkillBySlug(ctx, req.Slug)
	if err != nil {
		var nf *orm.NotFoundError
		if !errors.As(err, &nf) {
			return nil, wrapServiceError(err, "skill lookup")
		}
		existing = nil
	}
	if existing != nil {
		if existing.OwnerUserID != principal.UserID {
			return nil, Errf(
				CodeForbidden,
				fmt.Sprintf("slug %q is owned by another user", req.Slug),
			)
		}
		if _, err := s.store.GetVersionBySemver(ctx, existing.ID, req.Version); err == nil {
			return nil, &ServiceError{
				Code:    CodeConflict,
				Message: fmt.Sprintf("version %s@%s already exists", req.Slug, req.Version),
				Inner:   ErrVersionExists,
			}
		}
	}

	// Read and parse the manifest from the object store.
	manifest, err := s.readManifest(ctx, req.Files)
	if err != nil {
		return nil, err
	}

	fingerprint := FingerprintFiles(req.Files)

	// Lineage: explicit fork beats the duplicate probe.
	lineage, err := s.resolveLineage(ctx, existing, req, fingerprint)
	if err != nil {
		return nil, err
	}

	// Changelog: a blank client string means the external summarizer
	// fills it in. Its failure degrades to an empty changelog; only the
	// embedding provider is load-bearing.
	changelogText := strings.TrimSpace(req.Changelog)
	changelogSource := orm.ChangelogUser
	if changelogText == "" {
		changelogSource = orm.ChangelogAuto
		changelogText = s.autoChangelog(ctx, existing, req)
	}

	// Embedding last among the external reads: once the vector is in
	// hand, everything remaining is one atomic write.
	embedText := s.buildEmbeddingText(ctx, manifest, req.Files)
	vector, err := s.embedder.Embed(ctx, embedText)
	if err != nil {
		log.Error().Err(err).Str("slug", req.Slug).Msg("embedding provider failed")

		return nil, &ServiceError{
			Code:    CodeEmbeddingUnavailable,
			Message: "Embedding failed for " + req.Slug,
			Inner:   ErrEmbeddingUnavailable,
		}
	}

	now := s.now()
	result := &PublishResult{Version: req.Version, Fingerprint: fingerprint}

	err = s.store.InTx(ctx, func(tx orm.Store) error {
		skill := existing
		if skill == nil {
			result.Created = true
			skill = &orm.Skill{
				ID:               s.newID(),
				Slug:             req.Slug,
				DisplayName:      req.DisplayName,
				OwnerUserID:      principal.UserID,
				ModerationStatus: orm.ModerationActive,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := tx.CreateSkill(ctx, skill); err != nil {
				return err
			}
		}

		version := &orm.SkillVersion{
			ID:              s.newID(),
			SkillID:         skill.ID,
			Version:         req.Version,
			Changelog:       changelogText,
			ChangelogSource: changelogSource,
			Files:           req.Files,
			Fingerprint:     fingerprint,
			Frontmatter:     manifest.Frontmatter,
			Metadata:        manifest.Metadata,
			CreatedBy:       principal.UserID,
			CreatedAt:       now,
		}
		if err := tx.CreateVersion(ctx, version); err != nil {
			return err
		}
		result.SkillID = skill.ID
		result.VersionID = version.ID

		if err := tx.CreateFingerprint(ctx, &orm.VersionFingerprint{
			SkillID:     skill.ID,
			VersionID:   version.ID,
			Fingerprint: fingerprint,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		// Retire the previous latest embedding before inserting the new
		// one so at most one row per skill carries isLatest.
		approved, err := s.redactionApproved(ctx, tx, skill.ID)
		if err != nil {
			return err
		}
		previous, err := tx.ListEmbeddingsBySkill(ctx, skill.ID)
		if err != nil {
			return err
		}
		for i := range previous {
			if !previous[i].IsLatest {
				continue
			}
			previous[i].IsLatest = false
			previous[i].Visibility = VisibilityFor(false, previous[i].IsApproved, false)
			previous[i].UpdatedAt = now
			if err := tx.SaveEmbedding(ctx, &previous[i]); err != nil {
				return err
			}
		}
		if err := tx.CreateEmbedding(ctx, &orm.SkillEmbedding{
			ID:         s.newID(),
			SkillID:    skill.ID,
			VersionID:  version.ID,
			OwnerID:    skill.OwnerUserID,
			Vector:     pgvector.NewVector(vector),
			IsLatest:   true,
			IsApproved: approved,
			Visibility: VisibilityFor(true, approved, false),
			UpdatedAt:  now,
		}); err != nil {
			return err
		}

		// Patch the skill row after the version and embedding rows, and
		// move the tags after it: readers that observe the new tag are
		// guaranteed to resolve the version above.
		skill.DisplayName = req.DisplayName
		if manifest.Description != "" {
			skill.Summary = manifest.Description
		}
		skill.LatestVersionID = &version.ID
		skill.CanonicalSkillID = lineage.canonicalID
		skill.ForkOfSkillID = lineage.forkOfID
		skill.ForkKind = lineage.kind
		skill.ForkVersion = lineage.version
		skill.Stats.Versions++
		skill.SoftDeletedAt = nil
		skill.UpdatedAt = now
		if err := tx.SaveSkill(ctx, skill); err != nil {
			return err
		}

		if err := tx.UpsertTag(ctx, skill.ID, orm.TagLatest, version.ID); err != nil {
			return err
		}
		for _, tag := range req.Tags {
			tag = strings.TrimSpace(tag)
			if tag == "" || tag == orm.TagLatest {
				continue
			}
			if err := tx.UpsertTag(ctx, skill.ID, tag, version.ID); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, wrapServiceError(err, "publish")
	}

	log.Info().
		Str("slug", req.Slug).
		Str("version", req.Version).
		Str("fingerprint", fingerprint).
		Bool("created", result.Created).
		Msg("published skill version")

	s.dispatchNotifiers(result.SkillID, result.VersionID)

	return result, nil
}

type lineageInfo struct {
	forkOfID    *string
	canonicalID *string
	kind        string
	version     string
}

// resolveLineage applies §4.1 step 4: an explicit forkOf reference, or
// a cross-skill fingerprint match recorded as a duplicate.
func (s *Service) resolveLineage(
	ctx context.Context,
	existing *orm.Skill,
	req *PublishRequest,
	fingerprint string,
) (lineageInfo, error) {
	// Re-publishing keeps whatever lineage the skill already carries
	// unless the request states a fork.
	info := lineageInfo{}
	if existing != nil {
		info.forkOfID = existing.ForkOfSkillID
		info.canonicalID = existing.CanonicalSkillID
		info.kind = existing.ForkKind
		info.version = existing.ForkVersion
	}

	if req.ForkOf != nil {
		upstream, err := s.store.GetSkillBySlug(ctx, req.ForkOf.Slug)
		if err != nil {
			return info, wrapServiceError(err, "fork upstream lookup")
		}
		if existing != nil && upstream.ID == existing.ID {
			return info, Errf(CodeInvalid, "skill cannot fork itself")
		}

		canonical := upstream.ID
		if upstream.CanonicalSkillID != nil {
			canonical = *upstream.CanonicalSkillID
		}

		info.forkOfID = &upstream.ID
		info.canonicalID = &canonical
		info.kind = orm.ForkKindFork
		info.version = req.ForkOf.Version

		return info, nil
	}

	if info.forkOfID != nil {
		return info, nil
	}

	excludeID := ""
	if existing != nil {
		excludeID = existing.ID
	}
	dupID, err := s.store.FindSkillIDByFingerprint(ctx, fingerprint, excludeID)
	if err != nil {
		return info, wrapServiceError(err, "duplicate probe")
	}
	if dupID != "" {
		dup, err := s.store.GetSkillByID(ctx, dupID)
		if err != nil {
			return info, wrapServiceError(err, "duplicate lookup")
		}
		canonical := dup.ID
		if dup.CanonicalSkillID != nil {
			canonical = *dup.CanonicalSkillID
		}

		info.forkOfID = &dup.ID
		info.canonicalID = &canonical
		info.kind = orm.ForkKindDuplicate
		info.version = ""
	}

	return info, nil
}

// readManifest pulls the SKILL.md bytes from the object store and
// parses its frontmatter.
func (s *Service) readManifest(
	ctx context.Context,
	files []orm.VersionFile,
) (*Manifest, error) {
	for _, f := range files {
		if !IsSkillManifest(f.Path) {
			continue
		}
		content, err := s.blobs.Get(ctx, f.StorageID)
		if err != nil {
			return nil, wrapServiceError(err, "manifest read")
		}

		return ParseManifest(content), nil
	}

	// validatePublish guarantees a manifest; reaching here is a bug.
	return nil, Errf(CodeInternal, "manifest file missing after validation")
}

// buildEmbeddingText concatenates frontmatter headers, the manifest
// body, and every non-markdown text file body, truncated to the
// provider's input budget.
func (s *Service) buildEmbeddingText(
	ctx context.Context,
	manifest *Manifest,
	files []orm.VersionFile,
) string {
	var b strings.Builder

	keys := make([]string, 0, len(manifest.Frontmatter))
	for k := range manifest.Frontmatter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v, ok := manifest.Frontmatter[k].(string); ok {
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\n")
		}
	}

	b.WriteString(manifest.Body)

	for _, f := range files {
		if b.Len() >= embedTextLimit {
			break
		}
		if IsSkillManifest(f.Path) || strings.HasSuffix(strings.ToLower(f.Path), ".md") {
			continue
		}
		content, err := s.blobs.Get(ctx, f.StorageID)
		if err != nil {
			log.Warn().Err(err).Str("path", f.Path).Msg("skipping file for embedding text")

			continue
		}
		b.WriteString("\n")
		b.Write(content)
	}

	text := b.String()
	if len(text) > embedTextLimit {
		text = text[:embedTextLimit]
	}

	return text
}

func (s *Service) autoChangelog(
	ctx context.Context,
	existing *orm.Skill,
	req *PublishRequest,
) string {
	creq := changelog.Request{
		Slug:    req.Slug,
		Version: req.Version,
		Current: req.Files,
	}
	if existing != nil && existing.LatestVersionID != nil {
		if prev, err := s.store.GetVersionByID(ctx, *existing.LatestVersionID); err == nil {
			creq.Previous = prev.Files
		}
	}

	text, err := s.summarizer.Summarize(ctx, creq)
	if err != nil {
		log.Warn().Err(err).Str("slug", req.Slug).Msg("auto changelog failed")

		return ""
	}

	return text
}

// redactionApproved reports whether the skill currently carries the
// redactionApproved badge.
func (s *Service) redactionApproved(
	ctx context.Context,
	store orm.Store,
	skillID string,
) (bool, error) {
	badges, err := store.GetBadges(ctx, skillID)
	if err != nil {
		return false, err
	}
	for _, b := range badges {
		if b.Kind == orm.BadgeRedactionApproved {
			return true, nil
		}
	}

	return false, nil
}

// dispatchNotifiers runs the fire-and-forget post-commit hooks. A
// failed hydration is logged and dropped; the publish stands.
func (s *Service) dispatchNotifiers(skillID, versionID string) {
	if len(s.notifiers) == 0 {
		return
	}

	go func() {
		ctx := context.Background()
		skill, err := s.store.GetSkillByID(ctx, skillID)
		if err != nil {
			log.Warn().Err(err).Msg("notifier skill hydration failed")

			return
		}
		version, err := s.store.GetVersionByID(ctx, versionID)
		if err != nil {
			log.Warn().Err(err).Msg("notifier version hydration failed")

			return
		}
		for _, n := range s.notifiers {
			n.Published(ctx, skill, version)
		}
	}()
}
