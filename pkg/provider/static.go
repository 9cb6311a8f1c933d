package provider

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
)

// Static serves a fixed snapshot. It is meant for embedded defaults and
// local development. Set swaps the snapshot returned by the next fetch.
type Static struct {
	*Health

	name string
	snap atomic.Pointer[domain.Snapshot]
}

// NewStatic creates a provider that always returns snap.
func NewStatic(name string, snap *domain.Snapshot) *Static {
	s := &Static{Health: DefaultHealth(), name: name}
	s.Set(snap)
	return s
}

func (s *Static) Name() string { return s.name }

// Set replaces the served snapshot.
func (s *Static) Set(snap *domain.Snapshot) {
	if snap == nil {
		snap = domain.NewSnapshot(nil, nil)
	}
	s.snap.Store(snap)
}

func (s *Static) Bootstrap(ctx context.Context) (*domain.Snapshot, error) {
	return s.fetch(ctx)
}

func (s *Static) Refresh(ctx context.Context) (*domain.Snapshot, error) {
	return s.fetch(ctx)
}

func (s *Static) fetch(ctx context.Context) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cur := s.snap.Load()
	fresh := domain.NewSnapshot(cur.Flags, cur.Experiments,
		domain.WithRevision(cur.Revision),
		domain.WithTTL(cur.TTL),
		domain.WithSignature(cur.Signature),
		domain.WithFetchedAt(time.Now()),
	)
	s.Record(nil)
	return fresh, nil
}

func (s *Static) EvaluateFlag(context.Context, string, domain.Context) (domain.Value, bool, error) {
	return domain.Value{}, false, nil
}

func (s *Static) EvaluateExperiment(context.Context, string, domain.Context) (*domain.Assignment, error) {
	return nil, nil
}
