package domain

import (
	"fmt"
	"strings"
	"time"
)

// Source tells where a resolved value came from.
type Source int

const (
	SourceDefault Source = iota
	SourceOverride
	SourceProvider
	SourceCache
)

func (s Source) String() string {
	switch s {
	case SourceOverride:
		return "OVERRIDE"
	case SourceProvider:
		return "PROVIDER"
	case SourceCache:
		return "CACHE"
	default:
		return "DEFAULT"
	}
}

// ParseSource converts a wire name back into a Source. Names are matched
// case-insensitively.
func ParseSource(s string) (Source, error) {
	switch strings.ToUpper(s) {
	case "DEFAULT":
		return SourceDefault, nil
	case "OVERRIDE":
		return SourceOverride, nil
	case "PROVIDER":
		return SourceProvider, nil
	case "CACHE":
		return SourceCache, nil
	default:
		return SourceDefault, NewValidationError(fmt.Sprintf("unknown source %q", s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Source) UnmarshalText(b []byte) error {
	parsed, err := ParseSource(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// UpdateSource tags listener notifications.
type UpdateSource string

const (
	UpdateBootstrap UpdateSource = "bootstrap"
	UpdateRefresh   UpdateSource = "refresh"
)

// FlagStatus is a read-only view of how a key currently resolves. It is
// computed on demand and never stored.
type FlagStatus struct {
	Key          string
	Exists       bool
	Source       Source
	LastUpdated  time.Time
	LastError    error
	ProviderName string
	Age          time.Duration
	TTL          time.Duration
}

// IsHealthy reports whether the key resolves from anything but the default.
func (s FlagStatus) IsHealthy() bool {
	return s.Source != SourceDefault
}

// IsFresh reports whether the key is served by a provider snapshot that is
// still within its TTL. Overrides and defaults are never fresh.
func (s FlagStatus) IsFresh() bool {
	if s.Source != SourceProvider {
		return false
	}
	return s.TTL <= 0 || s.Age <= s.TTL
}
