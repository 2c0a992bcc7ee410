package registry

import (
	"context"
	"errors"
	"regexp"

	"github.com/xrey167/molthub/orm"
)

// Resolution is the resolver's answer for a (slug, fingerprint) pair.
// Match is the published version whose bundle fingerprint equals the
// requested hash; LatestVersion reflects the skill's current latest
// regardless of the match.
type Resolution struct {
	Match         *ResolvedVersion
	LatestVersion *ResolvedVersion
}

type ResolvedVersion struct {
	Version string
}

var hexHashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

const (
	resolveFingerprintLimit = 25
	resolveFallbackScan     = 200
)

// Resolve maps a bundle fingerprint to a previously published version.
// It is a pure read: a missing or soft-deleted skill resolves to an
// empty Resolution rather than an error.
func (s *Service) Resolve(ctx context.Context, slug, hash string) (*Resolution, error) {
	if !ValidSlug(slug) {
		return nil, Errf(CodeInvalid, "invalid slug")
	}
	if !hexHashPattern.MatchString(hash) {
		return nil, Errf(CodeInvalid, "hash must be 64 lowercase hex characters")
	}

	res := &Resolution{}

	skill, err := s.store.GetSkillBySlug(ctx, slug)
	if err != nil {
		var nf *orm.NotFoundError
		if errors.As(err, &nf) {
			return res, nil
		}

		return nil, wrapServiceError(err, "resolver skill lookup")
	}
	if skill.SoftDeletedAt != nil {
		return res, nil
	}

	if skill.LatestVersionID != nil {
		if latest, err := s.store.GetVersionByID(ctx, *skill.LatestVersionID); err == nil {
			res.LatestVersion = &ResolvedVersion{Version: latest.Version}
		}
	}

	// Primary path: the fingerprint index, newest row first.
	rows, err := s.store.ListFingerprints(ctx, skill.ID, hash, resolveFingerprintLimit)
	if err != nil {
		return nil, wrapServiceError(err, "resolver fingerprint lookup")
	}
	for _, row := range rows {
		version, err := s.store.GetVersionByID(ctx, row.VersionID)
		if err != nil || version.SoftDeletedAt != nil {
			continue
		}
		res.Match = &ResolvedVersion{Version: version.Version}

		return res, nil
	}

	// Fallback: recompute from stored manifests, newest first. Covers
	// versions published before the fingerprint index existed.
	versions, err := s.store.ListVersions(ctx, skill.ID, resolveFallbackScan, nil)
	if err != nil {
		return nil, wrapServiceError(err, "resolver version scan")
	}
	for i := range versions {
		if versions[i].SoftDeletedAt != nil {
			continue
		}
		if FingerprintFiles(versions[i].Files) == hash {
			res.Match = &ResolvedVersion{Version: versions[i].Version}

			break
		}
	}

	return res, nil
}
