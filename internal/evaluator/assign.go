package evaluator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/OrlandoBitencourt/flagship/internal/snapshot"
	"github.com/OrlandoBitencourt/flagship/pkg/domain"
	"github.com/OrlandoBitencourt/flagship/pkg/provider"
)

// Assigner buckets contexts into experiments.
type Assigner struct {
	snapshots *snapshot.Store
	providers []provider.Provider
	targeter  *Targeter
	now       func() time.Time
	onStale   func(provider string)
	logger    logrus.FieldLogger
}

// NewAssigner creates an assigner. Overrides in cfg are ignored; they do
// not apply to experiments.
func NewAssigner(cfg Config) *Assigner {
	cfg = cfg.withDefaults()
	return &Assigner{
		snapshots: cfg.Snapshots,
		providers: cfg.Providers,
		targeter:  NewTargeter(),
		now:       cfg.Now,
		onStale:   cfg.OnStale,
		logger:    cfg.Logger,
	}
}

// Definition looks an experiment up with flag precedence: live snapshots in
// provider order, then cached ones.
func (a *Assigner) Definition(key string) (domain.Experiment, bool) {
	if key == "" {
		return domain.Experiment{}, false
	}

	hit, ok := a.snapshots.LookupExperiment(key)
	if !ok {
		return domain.Experiment{}, false
	}
	if !hit.Cached && !hit.Snapshot.IsFresh(a.now()) {
		a.onStale(hit.Provider)
	}

	exp, _ := hit.Snapshot.Experiment(key)
	return exp, true
}

// Assign resolves the variant for key. Unknown experiments fall through to
// provider hooks in provider order. Nil means not assigned.
func (a *Assigner) Assign(ctx context.Context, key string, evalCtx domain.Context) *domain.Assignment {
	exp, ok := a.Definition(key)
	if !ok {
		return a.fromHooks(ctx, key, evalCtx)
	}
	return a.Evaluate(exp, evalCtx)
}

// Evaluate applies targeting then bucketing to a known definition.
func (a *Assigner) Evaluate(exp domain.Experiment, evalCtx domain.Context) *domain.Assignment {
	if !a.targeter.Matches(exp.Targeting, evalCtx) {
		return nil
	}

	id := evalCtx.BucketingID()
	if id == "" {
		return nil
	}

	variant, ok := Pick(exp.Variants, Bucket(exp.Key, id))
	if !ok {
		return nil
	}

	return &domain.Assignment{Key: exp.Key, Variant: variant.Name, Payload: variant.Payload}
}

func (a *Assigner) fromHooks(ctx context.Context, key string, evalCtx domain.Context) *domain.Assignment {
	if key == "" {
		return nil
	}
	for _, p := range a.providers {
		assignment, err := p.EvaluateExperiment(ctx, key, evalCtx)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"provider": p.Name(),
				"key":      key,
				"error":    err,
			}).Debug("provider experiment evaluation failed")
			continue
		}
		if assignment != nil {
			return assignment
		}
	}
	return nil
}
