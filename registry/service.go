// Package registry implements the registry engine: the publish
// pipeline, fingerprint resolution, tag and lineage operations,
// moderation, and the read surface the HTTP facade exposes.
package registry

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/xrey167/molthub/blob"
	"github.com/xrey167/molthub/changelog"
	"github.com/xrey167/molthub/embeddings"
	"github.com/xrey167/molthub/orm"
)

// Principal is the authenticated caller as seen by the engine: a stable
// user id plus a role. Token validation happens in the HTTP facade.
type Principal struct {
	UserID string
	Role   string
}

func (p Principal) isAdmin() bool     { return p.Role == orm.RoleAdmin }
func (p Principal) isModerator() bool { return p.Role == orm.RoleAdmin || p.Role == orm.RoleModerator }

// Notifier receives fire-and-forget events after a publish commits.
// Implementations absorb their own errors; a failing notifier never
// rolls back a publish.
type Notifier interface {
	Published(ctx context.Context, skill *orm.Skill, version *orm.SkillVersion)
}

// Service is the registry engine.
type Service struct {
	store      orm.Store
	blobs      blob.Store
	embedder   embeddings.Provider
	summarizer changelog.Summarizer
	notifiers  []Notifier

	now   func() time.Time
	newID func() string
}

type Option func(*Service)

// WithNotifier registers a post-publish notifier. The only shipped
// implementation is the webhook dispatcher in package notify.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifiers = append(s.notifiers, n) }
}

// WithClock overrides the time source; used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(
	store orm.Store,
	blobs blob.Store,
	embedder embeddings.Provider,
	summarizer changelog.Summarizer,
	opts ...Option,
) *Service {
	s := &Service{
		store:      store,
		blobs:      blobs,
		embedder:   embedder,
		summarizer: summarizer,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SkillDetail is the composite returned for a single-skill read.
type SkillDetail struct {
	Skill         *orm.Skill
	LatestVersion *orm.SkillVersion
	Owner         *orm.User
	Badges        []orm.SkillBadge
}

// GetSkill loads a skill by slug for public reads. Soft-deleted and
// hidden skills are reported as missing.
func (s *Service) GetSkill(ctx context.Context, slug string) (*SkillDetail, error) {
	skill, err := s.store.GetSkillBySlug(ctx, slug)
	if err != nil {
		return nil, wrapServiceError(err, "skill lookup")
	}
	if skill.SoftDeletedAt != nil || skill.ModerationStatus != orm.ModerationActive {
		return nil, Errf(CodeNotFound, "skill not found: "+slug)
	}

	detail := &SkillDetail{Skill: skill}

	if skill.LatestVersionID != nil {
		version, err := s.store.GetVersionByID(ctx, *skill.LatestVersionID)
		if err != nil {
			return nil, wrapServiceError(err, "latest version lookup")
		}
		detail.LatestVersion = version
	}

	owner, err := s.store.GetUserByID(ctx, skill.OwnerUserID)
	if err == nil {
		detail.Owner = owner
	} else {
		log.Warn().Err(err).Str("skill", slug).Msg("owner lookup failed")
	}

	badges, err := s.store.GetBadges(ctx, skill.ID)
	if err == nil {
		detail.Badges = badges
	}

	return detail, nil
}

// ListSkillsPage is one page of the public skill listing.
type ListSkillsPage struct {
	Skills     []orm.Skill
	NextCursor string
}

// ListSkills returns public skills. Only the "updated" sort honours the
// cursor; other sorts return a single bounded page.
func (s *Service) ListSkills(
	ctx context.Context,
	sort string,
	limit int,
	cursor string,
) (*ListSkillsPage, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if sort == "" {
		sort = orm.SortUpdated
	}

	q := orm.ListSkillsQuery{Sort: sort, Limit: limit}
	if sort == orm.SortUpdated && cursor != "" {
		before, err := decodeCursor(cursor)
		if err != nil {
			return nil, Errf(CodeInvalid, "malformed cursor")
		}
		q.Before = &before
	}

	skills, err := s.store.ListSkills(ctx, q)
	if err != nil {
		return nil, wrapServiceError(err, "skill listing")
	}

	page := &ListSkillsPage{Skills: skills}
	if sort == orm.SortUpdated && len(skills) == limit {
		page.NextCursor = encodeCursor(skills[len(skills)-1].UpdatedAt)
	}

	return page, nil
}

// ListVersionsPage is one page of a skill's version history.
type ListVersionsPage struct {
	Versions   []orm.SkillVersion
	NextCursor string
}

func (s *Service) ListVersions(
	ctx context.Context,
	slug string,
	limit int,
	cursor string,
) (*ListVersionsPage, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	skill, err := s.visibleSkill(ctx, slug)
	if err != nil {
		return nil, err
	}

	var before *time.Time
	if cursor != "" {
		t, err := decodeCursor(cursor)
		if err != nil {
			return nil, Errf(CodeInvalid, "malformed cursor")
		}
		before = &t
	}

	versions, err := s.store.ListVersions(ctx, skill.ID, limit, before)
	if err != nil {
		return nil, wrapServiceError(err, "version listing")
	}

	page := &ListVersionsPage{Versions: versions}
	if len(versions) == limit {
		page.NextCursor = encodeCursor(versions[len(versions)-1].CreatedAt)
	}

	return page, nil
}

// GetVersion returns a single version with its file manifest. A
// soft-deleted version is reported Gone.
func (s *Service) GetVersion(
	ctx context.Context,
	slug, semver string,
) (*orm.SkillVersion, error) {
	skill, err := s.visibleSkill(ctx, slug)
	if err != nil {
		return nil, err
	}

	version, err := s.store.GetVersionBySemver(ctx, skill.ID, semver)
	if err != nil {
		return nil, wrapServiceError(err, "version lookup")
	}
	if version.SoftDeletedAt != nil {
		return nil, Errf(CodeGone, fmt.Sprintf("version %s@%s has been deleted", slug, semver))
	}

	return version, nil
}

// FileContent is a raw file read result.
type FileContent struct {
	Path        string
	SHA256      string
	ContentType string
	Content     []byte
	// Archived is true when the file belongs to a non-latest version;
	// the facade shortens caching for archived reads.
	Archived bool
}

// MaxRawFileBytes bounds single raw-file reads at the HTTP surface.
const MaxRawFileBytes = 200 << 10

// GetFile reads one file of a version, selected by semver or tag
// (defaulting to latest).
func (s *Service) GetFile(
	ctx context.Context,
	slug, filePath, semver, tag string,
) (*FileContent, error) {
	skill, err := s.visibleSkill(ctx, slug)
	if err != nil {
		return nil, err
	}

	version, err := s.versionBySelector(ctx, skill, semver, tag)
	if err != nil {
		return nil, err
	}

	for _, f := range version.Files {
		if f.Path != filePath {
			continue
		}
		if f.Size > MaxRawFileBytes {
			return nil, &ServiceError{
				Code:    CodeTooLarge,
				Message: fmt.Sprintf("file %q exceeds the %d byte raw read limit", filePath, MaxRawFileBytes),
			}
		}

		content, err := s.blobs.Get(ctx, f.StorageID)
		if err != nil {
			return nil, wrapServiceError(err, "file content read")
		}

		archived := skill.LatestVersionID == nil || *skill.LatestVersionID != version.ID

		return &FileContent{
			Path:        f.Path,
			SHA256:      f.SHA256,
			ContentType: f.ContentType,
			Content:     content,
			Archived:    archived,
		}, nil
	}

	return nil, Errf(CodeNotFound, fmt.Sprintf("file %q not found in %s@%s", filePath, slug, version.Version))
}

// GetUser loads a user row by id.
func (s *Service) GetUser(ctx context.Context, userID string) (*orm.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, wrapServiceError(err, "user lookup")
	}

	return user, nil
}

// visibleSkill loads a skill and filters out soft-deleted and hidden
// ones the way every public read does.
func (s *Service) visibleSkill(ctx context.Context, slug string) (*orm.Skill, error) {
	skill, err := s.store.GetSkillBySlug(ctx, slug)
	if err != nil {
		return nil, wrapServiceError(err, "skill lookup")
	}
	if skill.SoftDeletedAt != nil || skill.ModerationStatus != orm.ModerationActive {
		return nil, Errf(CodeNotFound, "skill not found: "+slug)
	}

	return skill, nil
}

func (s *Service) versionBySelector(
	ctx context.Context,
	skill *orm.Skill,
	semver, tag string,
) (*orm.SkillVersion, error) {
	var versionID string
	switch {
	case semver != "":
		version, err := s.store.GetVersionBySemver(ctx, skill.ID, semver)
		if err != nil {
			return nil, wrapServiceError(err, "version lookup")
		}
		versionID = version.ID
	case tag != "":
		tags, err := s.store.GetTags(ctx, skill.ID)
		if err != nil {
			return nil, wrapServiceError(err, "tag lookup")
		}
		id, ok := tags[tag]
		if !ok {
			return nil, Errf(CodeNotFound, fmt.Sprintf("tag %q not found on %s", tag, skill.Slug))
		}
		versionID = id
	case skill.LatestVersionID != nil:
		versionID = *skill.LatestVersionID
	default:
		return nil, Errf(CodeNotFound, "skill has no versions: "+skill.Slug)
	}

	version, err := s.store.GetVersionByID(ctx, versionID)
	if err != nil {
		return nil, wrapServiceError(err, "version lookup")
	}
	if version.SoftDeletedAt != nil {
		return nil, Errf(CodeGone, fmt.Sprintf("version %s@%s has been deleted", skill.Slug, version.Version))
	}

	return version, nil
}

func encodeCursor(t time.Time) string {
	return base64.RawURLEncoding.EncodeToString([]byte(t.UTC().Format(time.RFC3339Nano)))
}

func decodeCursor(cursor string) (time.Time, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, err
	}

	return time.Parse(time.RFC3339Nano, string(raw))
}
