package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
)

const snapshotExt = ".snapshot.json"

// DiskCache stores one JSON file per provider under a directory. Writes go
// to a temporary file that is renamed into place.
type DiskCache struct {
	dir    string
	tracer trace.Tracer
	mu     sync.RWMutex
}

// NewDiskCache creates a disk cache rooted at dir, creating it if needed.
func NewDiskCache(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &DiskCache{
		dir:    dir,
		tracer: otel.Tracer("flagship.storage.disk"),
	}, nil
}

func (d *DiskCache) filePath(provider string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(provider)
	return filepath.Join(d.dir, name+snapshotExt)
}

func (d *DiskCache) Save(ctx context.Context, provider string, snap *domain.Snapshot) error {
	ctx, span := d.tracer.Start(ctx, "disk.save", trace.WithAttributes(attribute.String("provider", provider)))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return d.fail(span, "save", provider, fmt.Errorf("failed to marshal snapshot: %w", err))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tmp, err := os.CreateTemp(d.dir, ".tmp-*")
	if err != nil {
		return d.fail(span, "save", provider, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return d.fail(span, "save", provider, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return d.fail(span, "save", provider, err)
	}
	if err := os.Rename(tmpName, d.filePath(provider)); err != nil {
		os.Remove(tmpName)
		return d.fail(span, "save", provider, err)
	}

	span.SetAttributes(
		attribute.Int("flags.count", len(snap.Flags)),
		attribute.Int("experiments.count", len(snap.Experiments)),
	)
	return nil
}

func (d *DiskCache) Load(ctx context.Context, provider string) (*domain.Snapshot, error) {
	ctx, span := d.tracer.Start(ctx, "disk.load", trace.WithAttributes(attribute.String("provider", provider)))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	data, err := os.ReadFile(d.filePath(provider))
	d.mu.RUnlock()

	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, d.fail(span, "load", provider, err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, d.fail(span, "load", provider, fmt.Errorf("failed to decode snapshot: %w", err))
	}

	span.SetAttributes(attribute.Int("flags.loaded", len(snap.Flags)))
	return &snap, nil
}

func (d *DiskCache) Clear(ctx context.Context, provider string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := os.Remove(d.filePath(provider))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return domain.NewCacheError("clear", provider, err)
	}
	return nil
}

func (d *DiskCache) ClearAll(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return domain.NewCacheError("clear", "*", err)
	}

	var errs []error
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), snapshotExt) {
			continue
		}
		if err := os.Remove(filepath.Join(d.dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return domain.NewCacheError("clear", "*", errors.Join(errs...))
	}
	return nil
}

func (d *DiskCache) fail(span trace.Span, op, provider string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return domain.NewCacheError(op, provider, err)
}
