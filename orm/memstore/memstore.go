// Package memstore implements orm.Store in process memory. It backs
// tests and local development; the vector index is a linear cosine
// scan.
package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/xrey167/molthub/orm"
)

type Store struct {
	mu sync.RWMutex

	users        map[string]orm.User
	tokens       map[string]orm.APIToken
	skills       map[string]orm.Skill
	tags         map[string]map[string]string // skillID -> tag -> versionID
	versions     map[string]orm.SkillVersion
	fingerprints []orm.VersionFingerprint
	embeddings   map[string]orm.SkillEmbedding
	stars        map[string]orm.Star // userID+"/"+skillID
	comments     map[string]orm.Comment
	badges       map[string]orm.SkillBadge // skillID+"/"+kind
	audits       []orm.AuditLog
}

func New() *Store {
	return &Store{
		users:      make(map[string]orm.User),
		tokens:     make(map[string]orm.APIToken),
		skills:     make(map[string]orm.Skill),
		tags:       make(map[string]map[string]string),
		versions:   make(map[string]orm.SkillVersion),
		embeddings: make(map[string]orm.SkillEmbedding),
		stars:      make(map[string]orm.Star),
		comments:   make(map[string]orm.Comment),
		badges:     make(map[string]orm.SkillBadge),
	}
}

// InTx runs the callback directly against the store without taking
// the store lock; the fake offers atomicity against concurrent readers
// per method call only, which is all the tests need.
func (s *Store) InTx(_ context.Context, fn func(tx orm.Store) error) error {
	return fn(s)
}

func notFound(what string) error {
	return &orm.NotFoundError{Search: what}
}

// --- users and tokens ---

func (s *Store) GetUserByID(_ context.Context, id string) (*orm.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, notFound("user " + id)
	}

	return &user, nil
}

func (s *Store) CreateUser(_ context.Context, user *orm.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return &orm.ConflictError{Conflict: "user " + user.ID}
	}
	s.users[user.ID] = *user

	return nil
}

func (s *Store) SaveUser(_ context.Context, user *orm.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = *user

	return nil
}

func (s *Store) GetUserByTokenHash(ctx context.Context, hash string) (*orm.User, error) {
	s.mu.RLock()
	token, ok := s.tokens[hash]
	s.mu.RUnlock()

	if !ok || token.RevokedAt != nil {
		return nil, notFound("api token")
	}

	user, err := s.GetUserByID(ctx, token.UserID)
	if err != nil {
		return nil, err
	}
	if user.DeletedAt != nil {
		return nil, notFound("user for api token")
	}

	return user, nil
}

func (s *Store) CreateToken(_ context.Context, token *orm.APIToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.Hash] = *token

	return nil
}

func (s *Store) RevokeToken(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[hash]
	if !ok {
		return notFound("api token")
	}
	now := time.Now().UTC()
	token.RevokedAt = &now
	s.tokens[hash] = token

	return nil
}

// --- skills and tags ---

func (s *Store) skillWithTags(skill orm.Skill) *orm.Skill {
	tags := s.tags[skill.ID]
	skill.Tags = make([]orm.SkillTag, 0, len(tags))
	for name, versionID := range tags {
		skill.Tags = append(skill.Tags, orm.SkillTag{
			SkillID:   skill.ID,
			Name:      name,
			VersionID: versionID,
		})
	}
	sort.Slice(skill.Tags, func(i, j int) bool { return skill.Tags[i].Name < skill.Tags[j].Name })

	return &skill
}

func (s *Store) GetSkillBySlug(_ context.Context, slug string) (*orm.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, skill := range s.skills {
		if skill.Slug == slug {
			return s.skillWithTags(skill), nil
		}
	}

	return nil, notFound("skill slug=" + slug)
}

func (s *Store) GetSkillByID(_ context.Context, id string) (*orm.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	skill, ok := s.skills[id]
	if !ok {
		return nil, notFound("skill id=" + id)
	}

	return s.skillWithTags(skill), nil
}

func (s *Store) CreateSkill(_ context.Context, skill *orm.Skill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.skills {
		if existing.Slug == skill.Slug {
			return &orm.ConflictError{Conflict: "skill slug=" + skill.Slug}
		}
	}
	stored := *skill
	stored.Tags = nil
	s.skills[skill.ID] = stored

	return nil
}

func (s *Store) SaveSkill(_ context.Context, skill *orm.Skill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *skill
	stored.Tags = nil
	s.skills[skill.ID] = stored

	return nil
}

func (s *Store) ListSkills(_ context.Context, q orm.ListSkillsQuery) ([]orm.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []orm.Skill
	for _, skill := range s.skills {
		if skill.SoftDeletedAt != nil || skill.ModerationStatus != orm.ModerationActive {
			continue
		}
		if q.Before != nil && !skill.UpdatedAt.Before(*q.Before) {
			continue
		}
		out = append(out, *s.skillWithTags(skill))
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch q.Sort {
		case orm.SortDownloads:
			if a.Stats.Downloads != b.Stats.Downloads {
				return a.Stats.Downloads > b.Stats.Downloads
			}
		case orm.SortStars:
			if a.Stats.Stars != b.Stats.Stars {
				return a.Stats.Stars > b.Stats.Stars
			}
		case orm.SortInstallsCurrent:
			if a.Stats.InstallsCurrent != b.Stats.InstallsCurrent {
				return a.Stats.InstallsCurrent > b.Stats.InstallsCurrent
			}
		case orm.SortInstallsAllTime:
			if a.Stats.InstallsAllTime != b.Stats.InstallsAllTime {
				return a.Stats.InstallsAllTime > b.Stats.InstallsAllTime
			}
		case orm.SortTrending:
			sa := a.Stats.Downloads + a.Stats.Stars*2
			sb := b.Stats.Downloads + b.Stats.Stars*2
			if sa != sb {
				return sa > sb
			}
		}

		return a.UpdatedAt.After(b.UpdatedAt)
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	return out, nil
}

func (s *Store) FindSkillIDByFingerprint(
	_ context.Context,
	fingerprint, excludeSkillID string,
) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	best := ""
	var bestAt time.Time
	for _, fp := range s.fingerprints {
		if fp.Fingerprint != fingerprint || fp.SkillID == excludeSkillID {
			continue
		}
		skill, ok := s.skills[fp.SkillID]
		if !ok || skill.SoftDeletedAt != nil {
			continue
		}
		if best == "" || fp.CreatedAt.Before(bestAt) {
			best = fp.SkillID
			bestAt = fp.CreatedAt
		}
	}

	return best, nil
}

func (s *Store) UpsertTag(_ context.Context, skillID, name, versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tags[skillID] == nil {
		s.tags[skillID] = make(map[string]string)
	}
	s.tags[skillID][name] = versionID

	return nil
}

func (s *Store) GetTags(_ context.Context, skillID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.tags[skillID]))
	for name, versionID := range s.tags[skillID] {
		out[name] = versionID
	}

	return out, nil
}

func (s *Store) HardDeleteSkill(_ context.Context, skillID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.skills, skillID)
	delete(s.tags, skillID)
	for id, v := range s.versions {
		if v.SkillID == skillID {
			delete(s.versions, id)
		}
	}
	kept := s.fingerprints[:0]
	for _, fp := range s.fingerprints {
		if fp.SkillID != skillID {
			kept = append(kept, fp)
		}
	}
	s.fingerprints = kept
	for id, e := range s.embeddings {
		if e.SkillID == skillID {
			delete(s.embeddings, id)
		}
	}
	for key, star := range s.stars {
		if star.SkillID == skillID {
			delete(s.stars, key)
		}
	}
	for id, c := range s.comments {
		if c.SkillID == skillID {
			delete(s.comments, id)
		}
	}
	for key, b := range s.badges {
		if b.SkillID == skillID {
			delete(s.badges, key)
		}
	}

	return nil
}

func (s *Store) ClearLineageReferences(_ context.Context, skillID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, skill := range s.skills {
		changed := false
		if skill.CanonicalSkillID != nil && *skill.CanonicalSkillID == skillID {
			skill.CanonicalSkillID = nil
			changed = true
		}
		if skill.ForkOfSkillID != nil && *skill.ForkOfSkillID == skillID {
			skill.ForkOfSkillID = nil
			skill.ForkKind = ""
			skill.ForkVersion = ""
			changed = true
		}
		if changed {
			s.skills[id] = skill
		}
	}

	return nil
}

func (s *Store) IncrementDownloads(_ context.Context, skillID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	skill, ok := s.skills[skillID]
	if !ok {
		return notFound("skill id=" + skillID)
	}
	skill.Stats.Downloads++
	s.skills[skillID] = skill

	return nil
}

// --- versions and fingerprints ---

func (s *Store) CreateVersion(_ context.Context, version *orm.SkillVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.versions {
		if existing.SkillID == version.SkillID && existing.Version == version.Version {
			return &orm.ConflictError{
				Conflict: fmt.Sprintf("version skill=%s version=%s", version.SkillID, version.Version),
			}
		}
	}
	s.versions[version.ID] = *version

	return nil
}

func (s *Store) GetVersionByID(_ context.Context, id string) (*orm.SkillVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	version, ok := s.versions[id]
	if !ok {
		return nil, notFound("version id=" + id)
	}

	return &version, nil
}

func (s *Store) GetVersionBySemver(
	_ context.Context,
	skillID, semver string,
) (*orm.SkillVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, version := range s.versions {
		if version.SkillID == skillID && version.Version == semver {
			return &version, nil
		}
	}

	return nil, notFound(fmt.Sprintf("version skill=%s version=%s", skillID, semver))
}

func (s *Store) ListVersions(
	_ context.Context,
	skillID string,
	limit int,
	before *time.Time,
) ([]orm.SkillVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []orm.SkillVersion
	for _, version := range s.versions {
		if version.SkillID != skillID {
			continue
		}
		if before != nil && !version.CreatedAt.Before(*before) {
			continue
		}
		out = append(out, version)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}

		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (s *Store) SetVersionSoftDeleted(
	_ context.Context,
	versionID string,
	deletedAt *time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	version, ok := s.versions[versionID]
	if !ok {
		return notFound("version id=" + versionID)
	}
	version.SoftDeletedAt = deletedAt
	s.versions[versionID] = version

	return nil
}

func (s *Store) CreateFingerprint(_ context.Context, fp *orm.VersionFingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fingerprints = append(s.fingerprints, *fp)

	return nil
}

func (s *Store) ListFingerprints(
	_ context.Context,
	skillID, fingerprint string,
	limit int,
) ([]orm.VersionFingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []orm.VersionFingerprint
	for _, fp := range s.fingerprints {
		if fp.SkillID == skillID && fp.Fingerprint == fingerprint {
			out = append(out, fp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// --- embeddings ---

func (s *Store) CreateEmbedding(_ context.Context, emb *orm.SkillEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[emb.ID] = *emb

	return nil
}

func (s *Store) SaveEmbedding(_ context.Context, emb *orm.SkillEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[emb.ID] = *emb

	return nil
}

func (s *Store) ListEmbeddingsBySkill(
	_ context.Context,
	skillID string,
) ([]orm.SkillEmbedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []orm.SkillEmbedding
	for _, emb := range s.embeddings {
		if emb.SkillID == skillID {
			out = append(out, emb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (s *Store) SearchEmbeddings(
	_ context.Context,
	query []float32,
	limit int,
	visibilities []string,
) ([]orm.VectorHit, error) {
	const maxVectorResults = 256
	if limit > maxVectorResults {
		limit = maxVectorResults
	}

	allowed := make(map[string]bool, len(visibilities))
	for _, v := range visibilities {
		allowed[v] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []orm.VectorHit
	for _, emb := range s.embeddings {
		if !allowed[emb.Visibility] {
			continue
		}
		hits = append(hits, orm.VectorHit{
			Embedding: emb,
			Score:     cosine(query, emb.Vector.Slice()),
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}

		return hits[i].Embedding.ID < hits[j].Embedding.ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	return hits, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}

	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// --- social, badges, audit ---

func starKey(userID, skillID string) string { return userID + "/" + skillID }

func (s *Store) AddStar(_ context.Context, userID, skillID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := starKey(userID, skillID)
	if _, exists := s.stars[key]; exists {
		return false, nil
	}
	s.stars[key] = orm.Star{UserID: userID, SkillID: skillID, CreatedAt: time.Now().UTC()}

	return true, nil
}

func (s *Store) RemoveStar(_ context.Context, userID, skillID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := starKey(userID, skillID)
	if _, exists := s.stars[key]; !exists {
		return false, nil
	}
	delete(s.stars, key)

	return true, nil
}

func (s *Store) AdjustStarCount(_ context.Context, skillID string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	skill, ok := s.skills[skillID]
	if !ok {
		return notFound("skill id=" + skillID)
	}
	skill.Stats.Stars += delta
	s.skills[skillID] = skill

	return nil
}

func badgeKey(skillID, kind string) string { return skillID + "/" + kind }

func (s *Store) GetBadges(_ context.Context, skillID string) ([]orm.SkillBadge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []orm.SkillBadge
	for _, badge := range s.badges {
		if badge.SkillID == skillID {
			out = append(out, badge)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })

	return out, nil
}

func (s *Store) UpsertBadge(_ context.Context, badge *orm.SkillBadge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.badges[badgeKey(badge.SkillID, badge.Kind)] = *badge

	return nil
}

func (s *Store) RemoveBadge(_ context.Context, skillID, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.badges, badgeKey(skillID, kind))

	return nil
}

func (s *Store) CreateComment(_ context.Context, comment *orm.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[comment.ID] = *comment

	return nil
}

func (s *Store) SoftDeleteComment(_ context.Context, commentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	comment, ok := s.comments[commentID]
	if !ok || comment.SoftDeletedAt != nil {
		return notFound("comment " + commentID)
	}
	now := time.Now().UTC()
	comment.SoftDeletedAt = &now
	s.comments[commentID] = comment

	return nil
}

func (s *Store) AppendAudit(_ context.Context, entry *orm.AuditLog) error {
	if entry.ActorUserID == "" {
		return &orm.BadInputError{Reason: "audit log requires an actor"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, *entry)

	return nil
}

// Audits returns a copy of the audit trail for assertions.
func (s *Store) Audits() []orm.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]orm.AuditLog, len(s.audits))
	copy(out, s.audits)

	return out
}

var _ orm.Store = (*Store)(nil)
