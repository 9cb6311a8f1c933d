// Package server exposes a client over HTTP: admin endpoints, a signed
// webhook that triggers refreshes, and middleware that builds evaluation
// contexts from requests.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
)

// Manager defines what the HTTP handlers need from a client
type Manager interface {
	Stats() interface{}
	FlagStatus(key string) domain.FlagStatus
	RefreshProviders(names ...string)
	ListOverrides() map[string]domain.Value
	SetOverride(key string, value domain.Value) error
	ClearOverride(key string) bool
	ClearOverrides()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
