package flagship

import (
	"encoding/json"

	"github.com/OrlandoBitencourt/flagship/internal/engine"
	"github.com/OrlandoBitencourt/flagship/internal/listener"
	"github.com/OrlandoBitencourt/flagship/pkg/domain"
	"github.com/OrlandoBitencourt/flagship/pkg/provider"
	"github.com/OrlandoBitencourt/flagship/pkg/storage"
)

// Core types shared with the pkg/ packages.
type (
	Value        = domain.Value
	Kind         = domain.Kind
	Context      = domain.Context
	Snapshot     = domain.Snapshot
	Experiment   = domain.Experiment
	Variant      = domain.Variant
	Assignment   = domain.Assignment
	Rule         = domain.Rule
	Source       = domain.Source
	UpdateSource = domain.UpdateSource
	FlagStatus   = domain.FlagStatus

	Provider       = provider.Provider
	ProviderStatus = provider.Status
	Cache          = storage.Cache

	// State is the client's bootstrap lifecycle state.
	State = engine.State
)

// Listener receives snapshot and override notifications. Callbacks run on
// the goroutine that caused the change and must not block.
type Listener = listener.Listener

// ListenerFuncs adapts plain functions to a Listener. Nil funcs are skipped.
type ListenerFuncs = listener.Funcs

// ListenerID identifies a registered listener.
type ListenerID = listener.ID

const (
	KindBool   = domain.KindBool
	KindInt    = domain.KindInt
	KindDouble = domain.KindDouble
	KindString = domain.KindString
	KindJSON   = domain.KindJSON

	SourceDefault  = domain.SourceDefault
	SourceOverride = domain.SourceOverride
	SourceProvider = domain.SourceProvider
	SourceCache    = domain.SourceCache

	UpdateBootstrap = domain.UpdateBootstrap
	UpdateRefresh   = domain.UpdateRefresh

	StateUnbootstrapped = engine.Unbootstrapped
	StateBootstrapping  = engine.Bootstrapping
	StateReady          = engine.Ready
)

// NewContext creates an evaluation context for userID.
func NewContext(userID string) Context {
	return domain.NewContext(userID)
}

// BoolValue wraps b as a flag value.
func BoolValue(b bool) Value { return domain.Bool(b) }

// IntValue wraps i as a flag value.
func IntValue(i int64) Value { return domain.Int(i) }

// DoubleValue wraps f as a flag value.
func DoubleValue(f float64) Value { return domain.Double(f) }

// StringValue wraps s as a flag value.
func StringValue(s string) Value { return domain.String(s) }

// JSONValue wraps a JSON document as a flag value. Invalid JSON is a
// ValidationError.
func JSONValue(raw json.RawMessage) (Value, error) { return domain.JSON(raw) }

// Metrics is a point-in-time view of the client.
type Metrics struct {
	State      State            `json:"state"`
	Refreshing bool             `json:"refreshing"`
	Providers  []ProviderStatus `json:"providers"`
	Overrides  int              `json:"overrides"`
	Listeners  int              `json:"listeners"`

	LastBootstrap string `json:"last_bootstrap,omitempty"`
	LastRefresh   string `json:"last_refresh,omitempty"`

	// Cache is set when the configured cache reports metrics.
	Cache *storage.Metrics `json:"cache,omitempty"`
}
