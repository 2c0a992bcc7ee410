package orm

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

func (db *DB) CreateEmbedding(ctx context.Context, emb *SkillEmbedding) error {
	return wrapErrorWithDetails(
		db.gormDB.WithContext(ctx).Create(emb).Error,
		"create embedding",
		fmt.Sprintf("skill=%s, version=%s", emb.SkillID, emb.VersionID),
	)
}

func (db *DB) SaveEmbedding(ctx context.Context, emb *SkillEmbedding) error {
	return wrapErrorWithDetails(
		db.gormDB.WithContext(ctx).Save(emb).Error,
		"save embedding",
		emb.ID,
	)
}

func (db *DB) ListEmbeddingsBySkill(
	ctx context.Context,
	skillID string,
) ([]SkillEmbedding, error) {
	embeddings, err := gorm.G[SkillEmbedding](
		db.gormDB,
	).Where(&SkillEmbedding{SkillID: skillID}).Find(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(err, "list embeddings", "skill="+skillID)
	}

	return embeddings, nil
}

// VectorHit is one nearest-neighbour result with its cosine similarity.
type VectorHit struct {
	Embedding SkillEmbedding
	Score     float64
}

// SearchEmbeddings runs a cosine top-K over the vector index, filtered
// by visibility. Limit is capped by the store at 256 per call.
func (db *DB) SearchEmbeddings(
	ctx context.Context,
	query []float32,
	limit int,
	visibilities []string,
) ([]VectorHit, error) {
	const maxVectorResults = 256
	if limit > maxVectorResults {
		limit = maxVectorResults
	}

	vec := pgvector.NewVector(query)

	var rows []struct {
		ID    string
		Score float64
	}
	err := db.gormDB.WithContext(ctx).Raw(
		`SELECT id, 1 - (vector <=> ?) AS score
		 FROM skill_embeddings
		 WHERE visibility IN ?
		 ORDER BY vector <=> ?
		 LIMIT ?`,
		vec, visibilities, vec, limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, wrapErrorWithDetails(err, "vector search", "")
	}

	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}

	var embeddings []SkillEmbedding
	if err := db.gormDB.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&embeddings).Error; err != nil {
		return nil, wrapErrorWithDetails(err, "hydrate vector hits", "")
	}

	byID := make(map[string]SkillEmbedding, len(embeddings))
	for _, e := range embeddings {
		byID[e.ID] = e
	}

	// Preserve the index ordering.
	hits := make([]VectorHit, 0, len(rows))
	for _, r := range rows {
		if e, ok := byID[r.ID]; ok {
			hits = append(hits, VectorHit{Embedding: e, Score: r.Score})
		}
	}

	return hits, nil
}
