package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
)

const defaultDebounce = 100 * time.Millisecond

// FileProvider serves a flag document from the local filesystem and reports
// changes to it through Watch.
type FileProvider struct {
	*Health

	name     string
	path     string
	logger   logrus.FieldLogger
	now      func() time.Time
	debounce time.Duration
}

// FileOption configures a FileProvider.
type FileOption func(*FileProvider)

// WithFileName overrides the provider name (default "file").
func WithFileName(name string) FileOption {
	return func(p *FileProvider) { p.name = name }
}

func WithFileLogger(logger logrus.FieldLogger) FileOption {
	return func(p *FileProvider) { p.logger = logger }
}

// WithDebounce sets how long Watch waits for writes to settle.
func WithDebounce(d time.Duration) FileOption {
	return func(p *FileProvider) { p.debounce = d }
}

func WithFileClock(now func() time.Time) FileOption {
	return func(p *FileProvider) { p.now = now }
}

// NewFileProvider creates a provider reading the document at path.
func NewFileProvider(path string, opts ...FileOption) *FileProvider {
	p := &FileProvider{
		Health:   DefaultHealth(),
		name:     "file",
		path:     path,
		logger:   logrus.StandardLogger(),
		now:      time.Now,
		debounce: defaultDebounce,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithFields(logrus.Fields{"provider": p.name, "path": path})
	return p
}

func (p *FileProvider) Name() string { return p.name }

func (p *FileProvider) Path() string { return p.path }

func (p *FileProvider) Bootstrap(ctx context.Context) (*domain.Snapshot, error) {
	return p.load(ctx)
}

func (p *FileProvider) Refresh(ctx context.Context) (*domain.Snapshot, error) {
	return p.load(ctx)
}

// EvaluateFlag has no per-context logic for static documents.
func (p *FileProvider) EvaluateFlag(context.Context, string, domain.Context) (domain.Value, bool, error) {
	return domain.Value{}, false, nil
}

func (p *FileProvider) EvaluateExperiment(context.Context, string, domain.Context) (*domain.Assignment, error) {
	return nil, nil
}

func (p *FileProvider) load(ctx context.Context) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		perr := domain.NewProviderError(p.name, fmt.Errorf("read %s: %w", p.path, err))
		p.Record(perr)
		return nil, perr
	}

	snap, err := ParseDocument(data, domain.WithFetchedAt(p.now()))
	if err != nil {
		perr := domain.NewParseError(p.name, err)
		p.Record(perr)
		return nil, perr
	}

	p.Record(nil)
	p.logger.WithFields(logrus.Fields{
		"revision": snap.Revision,
		"flags":    len(snap.Flags),
	}).Debug("flag document loaded")

	return snap, nil
}

// Watch observes the document's directory, so editors that replace the file
// by rename are still seen, and calls onChange once writes have settled.
func (p *FileProvider) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	target, err := filepath.Abs(p.path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || name != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			p.logger.WithField("op", event.Op.String()).Debug("flag document changed")
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(p.debounce, onChange)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.WithError(err).Warn("file watcher error")
		}
	}
}
