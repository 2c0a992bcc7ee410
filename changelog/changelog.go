// Package changelog abstracts the external auto-changelog summarizer.
package changelog

import (
	"context"
	"fmt"
	"sort"

	"github.com/xrey167/molthub/orm"
)

// Request carries the file manifests the summarizer compares. Previous
// is nil on a first publish.
type Request struct {
	Slug     string
	Version  string
	Previous []orm.VersionFile
	Current  []orm.VersionFile
}

// Summarizer produces a short markdown changelog for a new version.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (string, error)
}

// DeltaSummarizer is the shipped fallback: a terse added/changed/removed
// file summary computed locally, so a publish never blocks on the
// external collaborator.
type DeltaSummarizer struct{}

func (DeltaSummarizer) Summarize(_ context.Context, req Request) (string, error) {
	if len(req.Previous) == 0 {
		return fmt.Sprintf("Initial release with %d files.", len(req.Current)), nil
	}

	prev := make(map[string]string, len(req.Previous))
	for _, f := range req.Previous {
		prev[f.Path] = f.SHA256
	}
	curr := make(map[string]string, len(req.Current))
	for _, f := range req.Current {
		curr[f.Path] = f.SHA256
	}

	var added, changed, removed []string
	for path, sum := range curr {
		old, ok := prev[path]
		switch {
		case !ok:
			added = append(added, path)
		case old != sum:
			changed = append(changed, path)
		}
	}
	for path := range prev {
		if _, ok := curr[path]; !ok {
			removed = append(removed, path)
		}
	}
	sort.Strings(added)
	sort.Strings(changed)
	sort.Strings(removed)

	out := ""
	for _, path := range added {
		out += "- Added `" + path + "`\n"
	}
	for _, path := range changed {
		out += "- Updated `" + path + "`\n"
	}
	for _, path := range removed {
		out += "- Removed `" + path + "`\n"
	}
	if out == "" {
		out = "No file changes."
	}

	return out, nil
}

var _ Summarizer = DeltaSummarizer{}
