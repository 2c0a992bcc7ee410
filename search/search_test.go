package search_test

import (
	"bytes"
	"context"
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
	"github.com/xrey167/molthub/search"
)

type searchFixture struct {
	store  *memstore.Store
	svc    *registry.Service
	engine *search.Engine
}

func newSearchFixture(t *testing.T) *searchFixture {
	t.Helper()

	store := memstore.New()
	provider := embeddings.NewLocalProvider(64)
	svc := registry.NewService(store, memblob.New(), provider, changelog.DeltaSummarizer{})

	require.NoError(t, store.CreateUser(context.Background(), &orm.User{
		ID: "u1", Role: orm.RoleUser, CreatedAt: time.Now().UTC(),
	}))

	return &searchFixture{
		store:  store,
		svc:    svc,
		engine: search.NewEngine(store, provider),
	}
}

func (f *searchFixture) publish(t *testing.T, slug, name, description string) string {
	t.Helper()
	ctx := context.Background()

	manifest := "---\nname: " + name + "\ndescription: " + description + "\n---\n" + description
	id, sum, size, err := f.svc.StoreBlob(ctx, bytes.NewReader([]byte(manifest)))
	require.NoError(t, err)

	result, err := f.svc.Publish(ctx, registry.Principal{UserID: "u1", Role: orm.RoleUser},
		&registry.PublishRequest{
			Slug:        slug,
			DisplayName: name,
			Version:     "1.0.0",
			Files: []orm.VersionFile{{
				Path: "SKILL.md", Size: size, SHA256: sum, StorageID: id,
			}},
		})
	require.NoError(t, err)

	return result.SkillID
}

func TestSearchExactTokenGating(t *testing.T) {
	t.Parallel()
	f := newSearchFixture(t)
	ctx := context.Background()

	f.publish(t, "gogkit", "gogkit", "Google Workspace CLI")
	f.publish(t, "gif-encoder", "gif-encoder", "Animated GIF encoder")

	results, err := f.engine.Search(ctx, search.Query{Text: "gif", Limit: 5})
	require.NoError(t, err)

	require.Len(t, results, 1, "gogkit lacks the whole token 'gif' and is gated out")
	assert.Equal(t, "gif-encoder", results[0].Slug)
	assert.Equal(t, "1.0.0", results[0].Version)
}

func TestSearchEmptyQuery(t *testing.T) {
	t.Parallel()
	f := newSearchFixture(t)

	results, err := f.engine.Search(context.Background(), search.Query{Text: "   "})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchSkipsSoftDeleted(t *testing.T) {
	t.Parallel()
	f := newSearchFixture(t)
	ctx := context.Background()

	skillID := f.publish(t, "gif-encoder", "gif-encoder", "Animated GIF encoder")
	require.NoError(t, f.svc.SetSoftDeleted(ctx,
		registry.Principal{UserID: "u1", Role: orm.RoleUser}, skillID, true))

	results, err := f.engine.Search(ctx, search.Query{Text: "gif", Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchHighlightedOnly(t *testing.T) {
	t.Parallel()
	f := newSearchFixture(t)
	ctx := context.Background()

	f.publish(t, "gif-encoder", "gif-encoder", "Animated GIF encoder")
	highlightedID := f.publish(t, "gif-tools", "gif-tools", "GIF toolbox")

	require.NoError(t, f.store.UpsertBadge(ctx, &orm.SkillBadge{
		SkillID: highlightedID, Kind: orm.BadgeHighlighted, ByUserID: "u1", At: time.Now().UTC(),
	}))

	results, err := f.engine.Search(ctx, search.Query{Text: "gif", Limit: 5, HighlightedOnly: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "gif-tools", results[0].Slug)
	assert.Contains(t, results[0].Badges, orm.BadgeHighlighted)
}

type brokenProvider struct{}

func (brokenProvider) Embed(context.Context, string) ([]float32, error) {
	return nil, embeddings.ErrProviderUnavailable
}

func (brokenProvider) Dimension() int { return 64 }

func TestSearchDegradesOnProviderFailure(t *testing.T) {
	t.Parallel()
	f := newSearchFixture(t)

	f.publish(t, "gif-encoder", "gif-encoder", "Animated GIF encoder")

	engine := search.NewEngine(f.store, brokenProvider{})
	results, err := engine.Search(context.Background(), search.Query{Text: "gif"})
	require.NoError(t, err, "provider failure degrades to empty, not error")
	assert.Empty(t, results)
}

func TestSearchLimitTruncation(t *testing.T) {
	t.Parallel()
	f := newSearchFixture(t)
	ctx := context.Background()

	f.publish(t, "gif-a", "gif-a", "GIF tool a")
	f.publish(t, "gif-b", "gif-b", "GIF tool b")
	f.publish(t, "gif-c", "gif-c", "GIF tool c")

	results, err := f.engine.Search(ctx, search.Query{Text: "gif", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
