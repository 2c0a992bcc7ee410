package orm

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// Role values for User.Role.
const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleUser      = "user"
)

// Moderation states for Skill.ModerationStatus.
const (
	ModerationActive = "active"
	ModerationHidden = "hidden"
)

// Changelog provenance for SkillVersion.ChangelogSource.
const (
	ChangelogAuto = "auto"
	ChangelogUser = "user"
)

// Fork lineage kinds.
const (
	ForkKindFork      = "fork"
	ForkKindDuplicate = "duplicate"
)

// Badge kinds for SkillBadge.Kind.
const (
	BadgeHighlighted       = "highlighted"
	BadgeOfficial          = "official"
	BadgeDeprecated        = "deprecated"
	BadgeRedactionApproved = "redactionApproved"
)

// Embedding visibility states. Search only ever admits the two latest
// states; the archived and deleted states exist so moderation and soft
// deletion can be reversed without recomputing vectors.
const (
	VisibilityLatest           = "latest"
	VisibilityLatestApproved   = "latest-approved"
	VisibilityArchived         = "archived"
	VisibilityArchivedApproved = "archived-approved"
	VisibilityDeleted          = "deleted"
)

// TagLatest is the distinguished tag that always tracks LatestVersionID.
const TagLatest = "latest"

type User struct {
	ID          string  `gorm:"primaryKey;size:36"            json:"id"`
	Handle      *string `gorm:"uniqueIndex;size:64"           json:"handle,omitempty"`
	DisplayName string  `gorm:"size:255"                      json:"displayName"`
	Image       string  `gorm:"size:512"                      json:"image,omitempty"`
	Role        string  `gorm:"size:16;not null;default:user" json:"role"`

	CreatedAt time.Time  `gorm:"not null" json:"createdAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// APIToken stores only the SHA-256 of the opaque token string; the raw
// token is shown to the user once and never persisted.
type APIToken struct {
	Hash   string `gorm:"primaryKey;size:64"     json:"-"`
	UserID string `gorm:"index;size:36;not null" json:"userId"`
	Label  string `gorm:"size:255"               json:"label"`

	CreatedAt time.Time  `gorm:"not null" json:"createdAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

// SkillStats are denormalised counters kept on the skill row.
type SkillStats struct {
	Downloads       int64 `gorm:"default:0" json:"downloads"`
	Stars           int64 `gorm:"default:0" json:"stars"`
	Versions        int64 `gorm:"default:0" json:"versions"`
	Comments        int64 `gorm:"default:0" json:"comments"`
	InstallsCurrent int64 `gorm:"default:0" json:"installsCurrent"`
	InstallsAllTime int64 `gorm:"default:0" json:"installsAllTime"`
}

type Skill struct {
	ID          string `gorm:"primaryKey;size:36"            json:"id"`
	Slug        string `gorm:"uniqueIndex;size:128;not null" json:"slug"`
	DisplayName string `gorm:"size:255;not null"             json:"displayName"`
	Summary     string `gorm:"size:2048"                     json:"summary"`
	OwnerUserID string `gorm:"index;size:36;not null"        json:"ownerUserId"`

	LatestVersionID *string `gorm:"size:36" json:"latestVersionId,omitempty"`

	// Lineage. CanonicalSkillID points one step toward the canonical
	// copy; readers never walk further than one step.
	CanonicalSkillID *string `gorm:"size:36" json:"canonicalSkillId,omitempty"`
	ForkOfSkillID    *string `gorm:"size:36" json:"forkOfSkillId,omitempty"`
	ForkKind         string  `gorm:"size:16" json:"forkKind,omitempty"`
	ForkVersion      string  `gorm:"size:64" json:"forkVersion,omitempty"`

	ModerationStatus string     `gorm:"size:16;not null;default:active" json:"moderationStatus"`
	SoftDeletedAt    *time.Time `json:"softDeletedAt,omitempty"`
	ReportCount      int64      `gorm:"default:0" json:"reportCount"`

	Stats SkillStats `gorm:"embedded;embeddedPrefix:stats_" json:"stats"`

	CreatedAt time.Time `gorm:"not null"       json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updatedAt"`

	// Reverse relationship to tags with cascading deletion.
	Tags []SkillTag `gorm:"foreignKey:SkillID;references:ID;constraint:OnDelete:CASCADE" json:"tags,omitempty"`
}

// SkillTag maps a mutable tag name to a fixed version of a skill.
type SkillTag struct {
	SkillID   string `gorm:"primaryKey;size:36" json:"skillId"`
	Name      string `gorm:"primaryKey;size:64" json:"name"`
	VersionID string `gorm:"size:36;not null"   json:"versionId"`
}

// VersionFile is one entry of a version's immutable file manifest,
// serialised as JSON on the version row.
type VersionFile struct {
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	SHA256      string `json:"sha256"`
	StorageID   string `json:"storageId"`
	ContentType string `json:"contentType,omitempty"`
}

type SkillVersion struct {
	ID      string `gorm:"primaryKey;size:36"                                  json:"id"`
	SkillID string `gorm:"index;uniqueIndex:idx_skill_semver;size:36;not null" json:"skillId"`
	Version string `gorm:"uniqueIndex:idx_skill_semver;size:64;not null"       json:"version"`

	Changelog       string `gorm:"type:text"       json:"changelog"`
	ChangelogSource string `gorm:"size:8;not null" json:"changelogSource"`

	Files       []VersionFile  `gorm:"serializer:json;type:jsonb" json:"files"`
	Fingerprint string         `gorm:"index;size:64;not null"     json:"fingerprint"`
	Frontmatter map[string]any `gorm:"serializer:json;type:jsonb" json:"frontmatter,omitempty"`
	Metadata    map[string]any `gorm:"serializer:json;type:jsonb" json:"metadata,omitempty"`

	CreatedBy     string     `gorm:"size:36;not null" json:"createdBy"`
	CreatedAt     time.Time  `gorm:"not null;index"   json:"createdAt"`
	SoftDeletedAt *time.Time `json:"softDeletedAt,omitempty"`
}

// VersionFingerprint indexes fingerprints both per skill (resolver) and
// globally (cross-skill duplicate probe).
type VersionFingerprint struct {
	ID          uint      `gorm:"primaryKey"                                              json:"-"`
	SkillID     string    `gorm:"index:idx_fp_skill;size:36;not null"                     json:"skillId"`
	VersionID   string    `gorm:"size:36;not null"                                        json:"versionId"`
	Fingerprint string    `gorm:"index:idx_fp_skill;index:idx_fp_global;size:64;not null" json:"fingerprint"`
	CreatedAt   time.Time `gorm:"not null"                                                json:"createdAt"`
}

type SkillEmbedding struct {
	ID        string `gorm:"primaryKey;size:36"     json:"id"`
	SkillID   string `gorm:"index;size:36;not null" json:"skillId"`
	VersionID string `gorm:"size:36;not null"       json:"versionId"`
	OwnerID   string `gorm:"size:36;not null"       json:"ownerId"`

	Vector pgvector.Vector `gorm:"type:vector(1536)" json:"-"`

	IsLatest   bool   `gorm:"not null"               json:"isLatest"`
	IsApproved bool   `gorm:"not null"               json:"isApproved"`
	Visibility string `gorm:"index;size:24;not null" json:"visibility"`

	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

type Star struct {
	UserID    string    `gorm:"primaryKey;size:36" json:"userId"`
	SkillID   string    `gorm:"primaryKey;size:36" json:"skillId"`
	CreatedAt time.Time `gorm:"not null"           json:"createdAt"`
}

type Comment struct {
	ID            string     `gorm:"primaryKey;size:36"     json:"id"`
	SkillID       string     `gorm:"index;size:36;not null" json:"skillId"`
	UserID        string     `gorm:"size:36;not null"       json:"userId"`
	Body          string     `gorm:"type:text"              json:"body"`
	CreatedAt     time.Time  `gorm:"not null"               json:"createdAt"`
	SoftDeletedAt *time.Time `json:"softDeletedAt,omitempty"`
}

type SkillBadge struct {
	SkillID  string    `gorm:"primaryKey;size:36" json:"skillId"`
	Kind     string    `gorm:"primaryKey;size:32" json:"kind"`
	ByUserID string    `gorm:"size:36;not null"   json:"byUserId"`
	At       time.Time `gorm:"not null"           json:"at"`
}

type AuditLog struct {
	ID          uint           `gorm:"primaryKey"                 json:"-"`
	ActorUserID string         `gorm:"index;size:36;not null"     json:"actorUserId"`
	Action      string         `gorm:"size:64;not null"           json:"action"`
	TargetType  string         `gorm:"size:32;not null"           json:"targetType"`
	TargetID    string         `gorm:"size:64;not null"           json:"targetId"`
	Metadata    map[string]any `gorm:"serializer:json;type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time      `gorm:"not null"                   json:"createdAt"`
}
