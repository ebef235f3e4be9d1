// Package resolver turns trust requirements into numeric thresholds.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
	dErrors "trustline/pkg/domain-errors"
	"trustline/pkg/platform/sentinel"
)

// LevelFinder looks up a named level. It returns sentinel.ErrNotFound when
// the community has no level with that exact name.
type LevelFinder interface {
	FindByName(ctx context.Context, communityID id.CommunityID, name string) (*models.TrustLevel, error)
}

// RequirementSource supplies the configured requirement per feature, nil when
// the feature is ungated. *community.Community satisfies it.
type RequirementSource interface {
	Requirement(f models.Feature) *models.Requirement
}

type Resolver struct {
	levels LevelFinder
}

func New(levels LevelFinder) *Resolver {
	return &Resolver{levels: levels}
}

// Resolve maps a requirement to its threshold. A nil requirement means no
// gating and resolves to 0. A level that no longer exists is a NotFound
// failure, never a silent 0.
func (r *Resolver) Resolve(ctx context.Context, communityID id.CommunityID, req *models.Requirement) (int, error) {
	if req == nil {
		return 0, nil
	}
	switch req.Kind() {
	case models.RequirementNumber:
		return req.NumberValue(), nil
	case models.RequirementLevel:
		level, err := r.findLevel(ctx, communityID, req.LevelName())
		if err != nil {
			return 0, err
		}
		return level.Threshold, nil
	default:
		return 0, dErrors.New(dErrors.CodeInvalidRequirement, "Invalid trust requirement type")
	}
}

// ResolveDetailed is the strict variant for audit and UI: it requires an
// explicit requirement and reports the level it resolved through.
func (r *Resolver) ResolveDetailed(ctx context.Context, communityID id.CommunityID, req *models.Requirement) (*models.ResolvedRequirement, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "Invalid trust requirement")
	}
	switch req.Kind() {
	case models.RequirementNumber:
		return &models.ResolvedRequirement{
			Type:          models.RequirementNumber,
			Value:         req.NumberValue(),
			ResolvedValue: req.NumberValue(),
		}, nil
	case models.RequirementLevel:
		level, err := r.findLevel(ctx, communityID, req.LevelName())
		if err != nil {
			return nil, err
		}
		return &models.ResolvedRequirement{
			Type:          models.RequirementLevel,
			Value:         req.LevelName(),
			ResolvedValue: level.Threshold,
			LevelName:     level.Name,
		}, nil
	default:
		return nil, dErrors.New(dErrors.CodeInvalidRequirement, "Invalid trust requirement type")
	}
}

// ResolveAll resolves every gated feature concurrently. The first failure
// cancels the rest and is returned.
func (r *Resolver) ResolveAll(ctx context.Context, communityID id.CommunityID, src RequirementSource) (map[models.FeatureKey]int, error) {
	var mu sync.Mutex
	out := make(map[models.FeatureKey]int, len(models.Features))

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range models.Features {
		g.Go(func() error {
			threshold, err := r.Resolve(gctx, communityID, src.Requirement(f))
			if err != nil {
				return err
			}
			mu.Lock()
			out[f.Key] = threshold
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate checks raw configuration input before it is stored. Resolution
// never calls it.
func Validate(raw json.RawMessage) error {
	_, err := models.ParseRequirement(raw)
	return err
}

func (r *Resolver) findLevel(ctx context.Context, communityID id.CommunityID, name string) (*models.TrustLevel, error) {
	level, err := r.levels.FindByName(ctx, communityID, name)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "Trust level %q not found in community %s", name, communityID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trust level")
	}
	return level, nil
}
