// Package listener fans snapshot and override change notifications out to
// registered listeners.
package listener

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
)

// Listener receives change notifications. Callbacks run synchronously on
// the goroutine that caused the change and must not block for long.
type Listener interface {
	OnSnapshotUpdated(source domain.UpdateSource)
	OnOverrideChanged(key string)
}

// Funcs adapts plain functions to Listener. Nil fields are skipped.
type Funcs struct {
	SnapshotUpdated func(source domain.UpdateSource)
	OverrideChanged func(key string)
}

func (f Funcs) OnSnapshotUpdated(source domain.UpdateSource) {
	if f.SnapshotUpdated != nil {
		f.SnapshotUpdated(source)
	}
}

func (f Funcs) OnOverrideChanged(key string) {
	if f.OverrideChanged != nil {
		f.OverrideChanged(key)
	}
}

// ID identifies a registration.
type ID string

type registration struct {
	id       ID
	listener Listener
	removed  atomic.Bool
}

// Bus is safe for concurrent use. Registering or removing a listener never
// blocks a notification in progress.
type Bus struct {
	mu     sync.Mutex
	regs   atomic.Pointer[[]*registration]
	logger logrus.FieldLogger
}

// New creates an empty bus.
func New(logger logrus.FieldLogger) *Bus {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	b := &Bus{logger: logger}
	empty := []*registration{}
	b.regs.Store(&empty)
	return b
}

// Add registers l and returns its ID.
func (b *Bus) Add(l Listener) ID {
	reg := &registration{id: ID(uuid.NewString()), listener: l}

	b.mu.Lock()
	defer b.mu.Unlock()

	cur := *b.regs.Load()
	next := make([]*registration, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, reg)
	b.regs.Store(&next)
	return reg.id
}

// Remove unregisters id. A notification already in flight skips the
// listener from this point on.
func (b *Bus) Remove(id ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := *b.regs.Load()
	for i, reg := range cur {
		if reg.id != id {
			continue
		}
		reg.removed.Store(true)
		next := make([]*registration, 0, len(cur)-1)
		next = append(next, cur[:i]...)
		next = append(next, cur[i+1:]...)
		b.regs.Store(&next)
		return true
	}
	return false
}

// Len returns the number of registered listeners.
func (b *Bus) Len() int {
	return len(*b.regs.Load())
}

// SnapshotUpdated notifies every listener.
func (b *Bus) SnapshotUpdated(source domain.UpdateSource) {
	b.each(func(l Listener) { l.OnSnapshotUpdated(source) })
}

// OverrideChanged notifies every listener.
func (b *Bus) OverrideChanged(key string) {
	b.each(func(l Listener) { l.OnOverrideChanged(key) })
}

func (b *Bus) each(call func(Listener)) {
	for _, reg := range *b.regs.Load() {
		if reg.removed.Load() {
			continue
		}
		b.deliver(reg, call)
	}
}

func (b *Bus) deliver(reg *registration, call func(Listener)) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"listener": string(reg.id),
				"panic":    r,
			}).Error("listener panicked")
		}
	}()
	call(reg.listener)
}
