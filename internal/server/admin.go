package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
)

// AdminServer provides admin HTTP endpoints
type AdminServer struct {
	manager Manager
	logger  logrus.FieldLogger
	now     func() time.Time
}

// NewAdminServer creates a new admin server
func NewAdminServer(manager Manager, logger logrus.FieldLogger) *AdminServer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AdminServer{
		manager: manager,
		logger:  logger,
		now:     time.Now,
	}
}

// Handler returns the admin router
func (a *AdminServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Health check
	r.Get("/health", a.handleHealth)

	// Metrics
	r.Get("/admin/stats", a.handleStats)
	r.Get("/admin/flags/{key}", a.handleFlagStatus)

	// Refresh
	r.Post("/admin/refresh", a.handleRefresh)

	// Overrides
	r.Get("/admin/overrides", a.handleListOverrides)
	r.Put("/admin/overrides/{key}", a.handleSetOverride)
	r.Delete("/admin/overrides/{key}", a.handleClearOverride)
	r.Delete("/admin/overrides", a.handleClearOverrides)

	return r
}

func (a *AdminServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": a.now().Format(time.RFC3339),
	})
}

func (a *AdminServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.manager.Stats())
}

// statusResponse is the wire form of a flag status
type statusResponse struct {
	Key         string        `json:"key"`
	Exists      bool          `json:"exists"`
	Source      domain.Source `json:"source"`
	Provider    string        `json:"provider,omitempty"`
	LastUpdated *time.Time    `json:"last_updated,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
	AgeMs       int64         `json:"age_ms"`
	TTLMs       int64         `json:"ttl_ms"`
	Healthy     bool          `json:"healthy"`
	Fresh       bool          `json:"fresh"`
}

func (a *AdminServer) handleFlagStatus(w http.ResponseWriter, r *http.Request) {
	status := a.manager.FlagStatus(chi.URLParam(r, "key"))

	resp := statusResponse{
		Key:      status.Key,
		Exists:   status.Exists,
		Source:   status.Source,
		Provider: status.ProviderName,
		AgeMs:    status.Age.Milliseconds(),
		TTLMs:    status.TTL.Milliseconds(),
		Healthy:  status.IsHealthy(),
		Fresh:    status.IsFresh(),
	}
	if !status.LastUpdated.IsZero() {
		resp.LastUpdated = &status.LastUpdated
	}
	if status.LastError != nil {
		resp.LastError = status.LastError.Error()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *AdminServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Providers []string `json:"providers"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}
	}

	a.manager.RefreshProviders(req.Providers...)
	a.logger.WithField("providers", req.Providers).Info("refresh requested")

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
}

type overrideEntry struct {
	Key   string       `json:"key"`
	Value domain.Value `json:"value"`
}

func (a *AdminServer) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	overrides := a.manager.ListOverrides()

	entries := make([]overrideEntry, 0, len(overrides))
	for k, v := range overrides {
		entries = append(entries, overrideEntry{Key: k, Value: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	writeJSON(w, http.StatusOK, entries)
}

func (a *AdminServer) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req struct {
		Type  string      `json:"type"`
		Value interface{} `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	kind, err := domain.ParseKind(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	value, err := domain.FromAny(kind, req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.manager.SetOverride(key, value); err != nil {
		status := http.StatusInternalServerError
		if domain.IsValidationError(err) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	a.logger.WithFields(logrus.Fields{"key": key, "type": kind.String()}).Info("override set")
	writeJSON(w, http.StatusOK, overrideEntry{Key: key, Value: value})
}

func (a *AdminServer) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !a.manager.ClearOverride(key) {
		writeError(w, http.StatusNotFound, "no override for "+key)
		return
	}

	a.logger.WithField("key", key).Info("override cleared")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "key": key})
}

func (a *AdminServer) handleClearOverrides(w http.ResponseWriter, r *http.Request) {
	a.manager.ClearOverrides()
	a.logger.Info("overrides cleared")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
