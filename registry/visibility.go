package registry

import "github.com/xrey167/molthub/orm"

// VisibilityFor computes the embedding visibility from its flags and
// the owning skill's deletion state.
func VisibilityFor(isLatest, isApproved, skillSoftDeleted bool) string {
	if skillSoftDeleted {
		return orm.VisibilityDeleted
	}

	switch {
	case isLatest && isApproved:
		return orm.VisibilityLatestApproved
	case isLatest:
		return orm.VisibilityLatest
	case isApproved:
		return orm.VisibilityArchivedApproved
	default:
		return orm.VisibilityArchived
	}
}

// SearchableVisibilities are the embedding states that participate in
// search.
func SearchableVisibilities() []string {
	return []string{orm.VisibilityLatest, orm.VisibilityLatestApproved}
}
