package registry_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrey167/molthub/blob/memblob"
	"github.com/xrey167/molthub/changelog"
	"github.com/xrey167/molthub/embeddings"
	"github.com/xrey167/molthub/orm"
	"github.com/xrey167/molthub/orm/memstore"
	"github.com/xrey167/molthub/registry"
)

type fixture struct {
	store *memstore.Store
	blobs *memblob.Store
	svc   *registry.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memstore.New()
	blobs := memblob.New()
	svc := registry.NewService(
		store,
		blobs,
		embeddings.NewLocalProvider(64),
		changelog.DeltaSummarizer{},
	)

	for _, u := range []orm.User{
		{ID: "u1", Role: orm.RoleUser, CreatedAt: time.Now().UTC()},
		{ID: "u2", Role: orm.RoleUser, CreatedAt: time.Now().UTC()},
		{ID: "mod", Role: orm.RoleModerator, CreatedAt: time.Now().UTC()},
		{ID: "admin", Role: orm.RoleAdmin, CreatedAt: time.Now().UTC()},
	} {
		require.NoError(t, store.CreateUser(context.Background(), &u))
	}

	return &fixture{store: store, blobs: blobs, svc: svc}
}

func (f *fixture) storeFile(t *testing.T, content string) orm.VersionFile {
	t.Helper()

	id, sum, size, err := f.svc.StoreBlob(context.Background(), bytes.NewReader([]byte(content)))
	require.NoError(t, err)

	return orm.VersionFile{Size: size, SHA256: sum, StorageID: id}
}

const manifestBody = "---\nname: demo\ndescription: Demo skill for tests\n---\nBody"

func (f *fixture) publishDemo(t *testing.T, user, slug, version string) *registry.PublishResult {
	t.Helper()

	file := f.storeFile(t, manifestBody)
	file.Path = "SKILL.md"
	file.ContentType = "text/markdown"

	result, err := f.svc.Publish(context.Background(), registry.Principal{UserID: user, Role: orm.RoleUser},
		&registry.PublishRequest{
			Slug:        slug,
			DisplayName: "Demo",
			Version:     version,
			Files:       []orm.VersionFile{file},
		})
	require.NoError(t, err)

	return result
}

func TestPublishNewSkill(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	result := f.publishDemo(t, "u1", "demo", "1.0.0")
	require.NotEmpty(t, result.SkillID)
	require.NotEmpty(t, result.VersionID)
	assert.True(t, result.Created)

	detail, err := f.svc.GetSkill(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", detail.Skill.Slug)
	assert.Equal(t, "Demo skill for tests", detail.Skill.Summary)
	require.NotNil(t, detail.LatestVersion)
	assert.Equal(t, "1.0.0", detail.LatestVersion.Version)
	assert.Equal(t, int64(1), detail.Skill.Stats.Versions)

	// tags["latest"] tracks latestVersionId.
	tags, err := f.store.GetTags(ctx, result.SkillID)
	require.NoError(t, err)
	assert.Equal(t, result.VersionID, tags[orm.TagLatest])

	// The resolver finds the version by its fingerprint.
	res, err := f.svc.Resolve(ctx, "demo", result.Fingerprint)
	require.NoError(t, err)
	require.NotNil(t, res.Match)
	assert.Equal(t, "1.0.0", res.Match.Version)
	require.NotNil(t, res.LatestVersion)
	assert.Equal(t, "1.0.0", res.LatestVersion.Version)
}

func TestPublishEmbeddingLatestness(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	first := f.publishDemo(t, "u1", "demo", "1.0.0")
	second := f.publishDemo(t, "u1", "demo", "1.0.1")

	embs, err := f.store.ListEmbeddingsBySkill(ctx, first.SkillID)
	require.NoError(t, err)
	require.Len(t, embs, 2)

	latestCount := 0
	for _, e := range embs {
		if e.IsLatest {
			latestCount++
			assert.Equal(t, second.VersionID, e.VersionID)
			assert.Equal(t, orm.VisibilityLatest, e.Visibility)
		} else {
			assert.Equal(t, orm.VisibilityArchived, e.Visibility)
		}
	}
	assert.Equal(t, 1, latestCount, "exactly one embedding carries isLatest")
}

func TestPublishVersionConflict(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.publishDemo(t, "u1", "demo", "1.0.0")

	file := f.storeFile(t, "---\nname: demo\n---\nchanged body")
	file.Path = "SKILL.md"
	_, err := f.svc.Publish(context.Background(), registry.Principal{UserID: "u1", Role: orm.RoleUser},
		&registry.PublishRequest{
			Slug:        "demo",
			DisplayName: "Demo",
			Version:     "1.0.0",
			Files:       []orm.VersionFile{file},
		})
	require.Error(t, err)

	var svcErr *registry.ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, registry.CodeConflict, svcErr.Code)
}

func TestPublishForbiddenForNonOwner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.publishDemo(t, "u1", "demo", "1.0.0")

	file := f.storeFile(t, manifestBody)
	file.Path = "SKILL.md"
	_, err := f.svc.Publish(context.Background(), registry.Principal{UserID: "u2", Role: orm.RoleUser},
		&registry.PublishRequest{
			Slug:        "demo",
			DisplayName: "Demo",
			Version:     "2.0.0",
			Files:       []orm.VersionFile{file},
		})
	require.Error(t, err)

	var svcErr *registry.ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, registry.CodeForbidden, svcErr.Code)
}

func TestPublishDuplicateDetection(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	original := f.publishDemo(t, "u1", "demo", "1.0.0")
	copyResult := f.publishDemo(t, "u2", "demo-copy", "1.0.0")

	assert.Equal(t, original.Fingerprint, copyResult.Fingerprint)

	skill, err := f.store.GetSkillBySlug(ctx, "demo-copy")
	require.NoError(t, err)
	require.NotNil(t, skill.ForkOfSkillID)
	assert.Equal(t, original.SkillID, *skill.ForkOfSkillID)
	assert.Equal(t, orm.ForkKindDuplicate, skill.ForkKind)
	require.NotNil(t, skill.CanonicalSkillID)
	assert.Equal(t, original.SkillID, *skill.CanonicalSkillID)
}

func TestPublishExplicitFork(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	upstream := f.publishDemo(t, "u1", "demo", "1.0.0")

	file := f.storeFile(t, "---\nname: forked\n---\ndifferent body")
	file.Path = "SKILL.md"
	_, err := f.svc.Publish(ctx, registry.Principal{UserID: "u2", Role: orm.RoleUser},
		&registry.PublishRequest{
			Slug:        "demo-fork",
			DisplayName: "Demo Fork",
			Version:     "1.0.0",
			ForkOf:      &registry.ForkRef{Slug: "demo", Version: "1.0.0"},
			Files:       []orm.VersionFile{file},
		})
	require.NoError(t, err)

	skill, err := f.store.GetSkillBySlug(ctx, "demo-fork")
	require.NoError(t, err)
	require.NotNil(t, skill.ForkOfSkillID)
	assert.Equal(t, upstream.SkillID, *skill.ForkOfSkillID)
	assert.Equal(t, orm.ForkKindFork, skill.ForkKind)
	assert.Equal(t, "1.0.0", skill.ForkVersion)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, embeddings.ErrProviderUnavailable
}

func (failingEmbedder) Dimension() int { return 64 }

func TestPublishEmbeddingUnavailable(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	blobs := memblob.New()
	svc := registry.NewService(store, blobs, failingEmbedder{}, changelog.DeltaSummarizer{})
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, &orm.User{ID: "u1", Role: orm.RoleUser}))

	id, sum, size, err := svc.StoreBlob(ctx, bytes.NewReader([]byte(manifestBody)))
	require.NoError(t, err)

	_, err = svc.Publish(ctx, registry.Principal{UserID: "u1", Role: orm.RoleUser},
		&registry.PublishRequest{
			Slug:        "demo",
			DisplayName: "Demo",
			Version:     "1.0.0",
			Files: []orm.VersionFile{{
				Path: "SKILL.md", Size: size, SHA256: sum, StorageID: id,
			}},
		})
	require.Error(t, err)

	var svcErr *registry.ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, registry.CodeEmbeddingUnavailable, svcErr.Code)
	assert.Equal(t, "EmbeddingUnavailable", svcErr.Code.String())

	// No durable state became visible.
	_, err = store.GetSkillBySlug(ctx, "demo")
	var nf *orm.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestSoftDeleteRoundTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	result := f.publishDemo(t, "u1", "demo", "1.0.0")
	owner := registry.Principal{UserID: "u1", Role: orm.RoleUser}

	require.NoError(t, f.svc.SetSoftDeleted(ctx, owner, result.SkillID, true))

	_, err := f.svc.GetSkill(ctx, "demo")
	require.Error(t, err, "soft-deleted skills are hidden from public reads")

	res, err := f.svc.Resolve(ctx, "demo", result.Fingerprint)
	require.NoError(t, err)
	assert.Nil(t, res.Match, "resolver treats soft-deleted skills as missing")

	embs, err := f.store.ListEmbeddingsBySkill(ctx, result.SkillID)
	require.NoError(t, err)
	for _, e := range embs {
		assert.Equal(t, orm.VisibilityDeleted, e.Visibility)
	}

	require.NoError(t, f.svc.SetSoftDeleted(ctx, owner, result.SkillID, false))

	detail, err := f.svc.GetSkill(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", detail.LatestVersion.Version)

	embs, err = f.store.ListEmbeddingsBySkill(ctx, result.SkillID)
	require.NoError(t, err)
	for _, e := range embs {
		assert.Equal(t, orm.VisibilityLatest, e.Visibility,
			"embeddings return to their pre-deletion visibility")
	}
}

func TestStarUnstarRoundTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.publishDemo(t, "u1", "demo", "1.0.0")
	u2 := registry.Principal{UserID: "u2", Role: orm.RoleUser}

	stars, err := f.svc.Star(ctx, u2, "demo")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stars)

	// Starring twice does not double-count.
	stars, err = f.svc.Star(ctx, u2, "demo")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stars)

	stars, err = f.svc.Unstar(ctx, u2, "demo")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stars)
}

func TestUpdateTagsMovesLatest(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	first := f.publishDemo(t, "u1", "demo", "1.0.0")
	second := f.publishDemo(t, "u1", "demo", "1.1.0")
	owner := registry.Principal{UserID: "u1", Role: orm.RoleUser}

	// Roll latest back to the first version.
	require.NoError(t, f.svc.UpdateTags(ctx, owner, first.SkillID, []registry.TagUpdate{
		{Tag: orm.TagLatest, VersionID: first.VersionID},
	}))

	skill, err := f.store.GetSkillByID(ctx, first.SkillID)
	require.NoError(t, err)
	require.NotNil(t, skill.LatestVersionID)
	assert.Equal(t, first.VersionID, *skill.LatestVersionID)

	tags, err := f.store.GetTags(ctx, first.SkillID)
	require.NoError(t, err)
	assert.Equal(t, first.VersionID, tags[orm.TagLatest])

	embs, err := f.store.ListEmbeddingsBySkill(ctx, first.SkillID)
	require.NoError(t, err)
	for _, e := range embs {
		switch e.VersionID {
		case first.VersionID:
			assert.True(t, e.IsLatest)
		case second.VersionID:
			assert.False(t, e.IsLatest)
		}
	}
}

func TestSetBadgeRedactionApprovedRecomputesVisibility(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	result := f.publishDemo(t, "u1", "demo", "1.0.0")
	admin := registry.Principal{UserID: "admin", Role: orm.RoleAdmin}

	require.NoError(t, f.svc.SetBadge(ctx, admin, result.SkillID, orm.BadgeRedactionApproved, true))

	embs, err := f.store.ListEmbeddingsBySkill(ctx, result.SkillID)
	require.NoError(t, err)
	require.Len(t, embs, 1)
	assert.True(t, embs[0].IsApproved)
	assert.Equal(t, orm.VisibilityLatestApproved, embs[0].Visibility)

	// Moderators may not grant admin badges.
	mod := registry.Principal{UserID: "mod", Role: orm.RoleModerator}
	err = f.svc.SetBadge(ctx, mod, result.SkillID, orm.BadgeOfficial, true)
	require.Error(t, err)
}

func TestHardDeleteCascadesAndClearsLineage(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	original := f.publishDemo(t, "u1", "demo", "1.0.0")
	f.publishDemo(t, "u2", "demo-copy", "1.0.0") // becomes a duplicate of demo

	admin := registry.Principal{UserID: "admin", Role: orm.RoleAdmin}
	require.NoError(t, f.svc.HardDelete(ctx, admin, original.SkillID))

	_, err := f.store.GetSkillByID(ctx, original.SkillID)
	require.Error(t, err)

	copySkill, err := f.store.GetSkillBySlug(ctx, "demo-copy")
	require.NoError(t, err)
	assert.Nil(t, copySkill.CanonicalSkillID, "lineage pointers to the deleted skill are cleared")
	assert.Nil(t, copySkill.ForkOfSkillID)
}

func TestZipRoundTripFingerprint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	result := f.publishDemo(t, "u1", "demo", "1.0.0")

	data, name, err := f.svc.Zip(ctx, "demo", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "demo-1.0.0.zip", name)
	require.NotEmpty(t, data)

	entries := unzipFingerprintEntries(t, data)
	assert.Equal(t, result.Fingerprint, registry.Fingerprint(entries),
		"download → re-fingerprint yields the published fingerprint")

	skill, err := f.store.GetSkillBySlug(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, int64(1), skill.Stats.Downloads)
}
