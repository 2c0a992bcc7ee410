package cli

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/errgroup"
)

// Classification of a local skill against the registry.
type Classification string

const (
	ClassSynced Classification = "synced"
	ClassUpdate Classification = "update"
	ClassNew    Classification = "new"
)

// PlanItem is one local skill with its registry classification.
type PlanItem struct {
	Skill          LocalSkill
	Class          Classification
	MatchedVersion string // set when synced
	LatestVersion  string // registry latest, when the slug exists
}

// Plan is the full sync plan.
type Plan struct {
	Items             []PlanItem
	SkippedDuplicates []string
}

// Actionable returns the new and update items.
func (p *Plan) Actionable() []PlanItem {
	var out []PlanItem
	for _, item := range p.Items {
		if item.Class != ClassSynced {
			out = append(out, item)
		}
	}

	return out
}

// Synced returns the items already matching a published version.
func (p *Plan) Synced() []PlanItem {
	var out []PlanItem
	for _, item := range p.Items {
		if item.Class == ClassSynced {
			out = append(out, item)
		}
	}

	return out
}

const (
	minConcurrency     = 1
	maxConcurrency     = 32
	defaultConcurrency = 4
)

// BuildPlan classifies every local skill against the registry,
// fanning out across slugs with bounded concurrency.
func BuildPlan(
	ctx context.Context,
	client *Client,
	skills []LocalSkill,
	skippedDuplicates []string,
	concurrency int,
) (*Plan, error) {
	if concurrency < minConcurrency || concurrency > maxConcurrency {
		concurrency = defaultConcurrency
	}

	items := make([]PlanItem, len(skills))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, skill := range skills {
		g.Go(func() error {
			item, err := classify(ctx, client, skill)
			if err != nil {
				return fmt.Errorf("classifying %s: %w", skill.Slug, err)
			}

			mu.Lock()
			items[i] = *item
			mu.Unlock()

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Skill.Slug < items[j].Skill.Slug })

	return &Plan{Items: items, SkippedDuplicates: skippedDuplicates}, nil
}

func classify(ctx context.Context, client *Client, skill LocalSkill) (*PlanItem, error) {
	item := &PlanItem{Skill: skill}

	info, err := client.GetSkill(ctx, skill.Slug)
	if err != nil {
		if IsNotFound(err) {
			item.Class = ClassNew

			return item, nil
		}

		return nil, err
	}
	if info.LatestVersion != nil {
		item.LatestVersion = info.LatestVersion.Version
	}

	res, err := client.Resolve(ctx, skill.Slug, skill.Fingerprint)
	if err != nil {
		return nil, err
	}
	if res.Match != nil {
		item.Class = ClassSynced
		item.MatchedVersion = res.Match.Version

		return item, nil
	}

	item.Class = ClassUpdate

	return item, nil
}

// NextVersion computes the published version for a selected item: a
// semver bump of the registry latest for updates, 1.0.0 for new skills.
func NextVersion(item PlanItem, bump string) (string, error) {
	if item.Class == ClassNew || item.LatestVersion == "" {
		return "1.0.0", nil
	}

	current, err := semver.StrictNewVersion(item.LatestVersion)
	if err != nil {
		return "", fmt.Errorf("registry latest %q is not semver: %w", item.LatestVersion, err)
	}

	var next semver.Version
	switch bump {
	case "major":
		next = current.IncMajor()
	case "minor":
		next = current.IncMinor()
	case "patch", "":
		next = current.IncPatch()
	default:
		return "", fmt.Errorf("unknown bump %q (want patch, minor, or major)", bump)
	}

	return next.String(), nil
}
