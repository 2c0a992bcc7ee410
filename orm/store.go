package orm

import (
	"context"
	"time"
)

// Store is the metadata-store contract the registry engine consumes.
// *DB implements it against Postgres; memstore implements it in memory
// for tests. Mutating sequences that must be atomic run through InTx.
type Store interface {
	InTx(ctx context.Context, fn func(tx Store) error) error

	// Users and tokens.
	GetUserByID(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	SaveUser(ctx context.Context, user *User) error
	GetUserByTokenHash(ctx context.Context, hash string) (*User, error)
	CreateToken(ctx context.Context, token *APIToken) error
	RevokeToken(ctx context.Context, hash string) error

	// Skills and tags.
	GetSkillBySlug(ctx context.Context, slug string) (*Skill, error)
	GetSkillByID(ctx context.Context, id string) (*Skill, error)
	CreateSkill(ctx context.Context, skill *Skill) error
	SaveSkill(ctx context.Context, skill *Skill) error
	ListSkills(ctx context.Context, q ListSkillsQuery) ([]Skill, error)
	FindSkillIDByFingerprint(ctx context.Context, fingerprint, excludeSkillID string) (string, error)
	UpsertTag(ctx context.Context, skillID, name, versionID string) error
	GetTags(ctx context.Context, skillID string) (map[string]string, error)
	HardDeleteSkill(ctx context.Context, skillID string) error
	ClearLineageReferences(ctx context.Context, skillID string) error
	IncrementDownloads(ctx context.Context, skillID string) error

	// Versions and fingerprints.
	CreateVersion(ctx context.Context, version *SkillVersion) error
	GetVersionByID(ctx context.Context, id string) (*SkillVersion, error)
	GetVersionBySemver(ctx context.Context, skillID, semver string) (*SkillVersion, error)
	ListVersions(ctx context.Context, skillID string, limit int, before *time.Time) ([]SkillVersion, error)
	SetVersionSoftDeleted(ctx context.Context, versionID string, deletedAt *time.Time) error
	CreateFingerprint(ctx context.Context, fp *VersionFingerprint) error
	ListFingerprints(ctx context.Context, skillID, fingerprint string, limit int) ([]VersionFingerprint, error)

	// Embeddings.
	CreateEmbedding(ctx context.Context, emb *SkillEmbedding) error
	SaveEmbedding(ctx context.Context, emb *SkillEmbedding) error
	ListEmbeddingsBySkill(ctx context.Context, skillID string) ([]SkillEmbedding, error)
	SearchEmbeddings(ctx context.Context, query []float32, limit int, visibilities []string) ([]VectorHit, error)

	// Social, badges, audit.
	AddStar(ctx context.Context, userID, skillID string) (bool, error)
	RemoveStar(ctx context.Context, userID, skillID string) (bool, error)
	AdjustStarCount(ctx context.Context, skillID string, delta int64) error
	GetBadges(ctx context.Context, skillID string) ([]SkillBadge, error)
	UpsertBadge(ctx context.Context, badge *SkillBadge) error
	RemoveBadge(ctx context.Context, skillID, kind string) error
	CreateComment(ctx context.Context, comment *Comment) error
	SoftDeleteComment(ctx context.Context, commentID string) error
	AppendAudit(ctx context.Context, entry *AuditLog) error
}

var _ Store = (*DB)(nil)
