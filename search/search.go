// Package search implements the hybrid search engine: vector recall
// filtered by embedding visibility and gated by exact token overlap.
package search

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xrey167/molthub/embeddings"
	"github.com/xrey167/molthub/orm"
	"github.com/xrey167/molthub/registry"
)

// Limits of the candidate loop. The metadata store's vector index
// admits at most 256 results per call.
const (
	DefaultLimit    = 10
	MaxLimit        = 50
	maxVectorWindow = 256
)

// Query is one search invocation.
type Query struct {
	Text            string
	Limit           int
	HighlightedOnly bool
}

// Result is one qualifying hit, in vector-index order.
type Result struct {
	Score       float64   `json:"score"`
	Slug        string    `json:"slug"`
	DisplayName string    `json:"displayName"`
	Summary     string    `json:"summary"`
	Version     string    `json:"version"`
	UpdatedAt   time.Time `json:"updatedAt"`
	OwnerHandle string    `json:"ownerHandle,omitempty"`
	Badges      []string  `json:"badges,omitempty"`
}

// Engine runs hybrid queries against the metadata store.
type Engine struct {
	store    orm.Store
	embedder embeddings.Provider
}

func NewEngine(store orm.Store, embedder embeddings.Provider) *Engine {
	return &Engine{store: store, embedder: embedder}
}

// Search runs the §4.3 algorithm. Provider failures degrade to an
// empty result list; search is best-effort by design.
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	tokens := Tokenize(strings.TrimSpace(q.Text))
	if len(tokens) == 0 {
		return nil, nil
	}

	vector, err := e.embedder.Embed(ctx, strings.TrimSpace(q.Text))
	if err != nil {
		log.Warn().Err(err).Msg("search embedding failed, returning empty result")

		return nil, nil
	}

	window := clamp(max(limit*3, 50), 1, maxVectorWindow)
	maxWindow := clamp(max(limit*10, 200), 1, maxVectorWindow)

	for {
		hits, err := e.store.SearchEmbeddings(
			ctx,
			vector,
			window,
			registry.SearchableVisibilities(),
		)
		if err != nil {
			return nil, err
		}

		results := e.hydrate(ctx, hits, tokens, q.HighlightedOnly)

		// Enough qualifying matches, or the index is exhausted.
		if len(results) >= limit || len(hits) < window || window >= maxWindow {
			if len(results) > limit {
				results = results[:limit]
			}

			return results, nil
		}

		window = clamp(window*2, 1, maxWindow)
	}
}

// hydrate loads each candidate's skill, version, owner, and badges,
// applies the visibility and badge filters, and keeps only hits whose
// display fields contain every query token.
func (e *Engine) hydrate(
	ctx context.Context,
	hits []orm.VectorHit,
	tokens []string,
	highlightedOnly bool,
) []Result {
	results := make([]Result, 0, len(hits))

	for _, hit := range hits {
		skill, err := e.store.GetSkillByID(ctx, hit.Embedding.SkillID)
		if err != nil || skill.SoftDeletedAt != nil {
			continue
		}

		version, err := e.store.GetVersionByID(ctx, hit.Embedding.VersionID)
		if err != nil || version.SoftDeletedAt != nil {
			continue
		}

		badges, err := e.store.GetBadges(ctx, skill.ID)
		if err != nil {
			badges = nil
		}
		badgeKinds := make([]string, 0, len(badges))
		highlighted := false
		for _, b := range badges {
			badgeKinds = append(badgeKinds, b.Kind)
			if b.Kind == orm.BadgeHighlighted {
				highlighted = true
			}
		}
		if highlightedOnly && !highlighted {
			continue
		}

		haystack := skill.DisplayName + " " + skill.Slug + " " + skill.Summary
		if !ContainsAllTokens(haystack, tokens) {
			continue
		}

		result := Result{
			Score:       hit.Score,
			Slug:        skill.Slug,
			DisplayName: skill.DisplayName,
			Summary:     skill.Summary,
			Version:     version.Version,
			UpdatedAt:   skill.UpdatedAt,
			Badges:      badgeKinds,
		}
		if owner, err := e.store.GetUserByID(ctx, skill.OwnerUserID); err == nil && owner.Handle != nil {
			result.OwnerHandle = *owner.Handle
		}

		results = append(results, result)
	}

	return results
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}

	return v
}
