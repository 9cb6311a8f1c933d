package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Webhook-Signature"

const maxWebhookBody = 1 << 20

// Webhook events
const (
	EventSnapshotUpdated = "snapshot.updated"
	eventOverridePrefix  = "override."
)

// WebhookServer handles pushes from a flag backend
type WebhookServer struct {
	manager Manager
	secret  string
	logger  logrus.FieldLogger
}

// WebhookPayload represents the webhook payload
type WebhookPayload struct {
	Event     string   `json:"event"`
	Providers []string `json:"providers"`
	Revision  string   `json:"revision,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// NewWebhookServer creates a new webhook server. An empty secret disables
// signature checks.
func NewWebhookServer(manager Manager, secret string, logger logrus.FieldLogger) *WebhookServer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WebhookServer{
		manager: manager,
		secret:  secret,
		logger:  logger,
	}
}

// Handler returns the webhook router
func (w *WebhookServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/webhook", w.handleWebhook)
	return r
}

func (w *WebhookServer) handleWebhook(rw http.ResponseWriter, r *http.Request) {
	// Read body
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(rw, http.StatusBadRequest, "failed to read body")
		return
	}

	// Verify signature if secret is configured
	if w.secret != "" {
		if !w.verifySignature(r, body) {
			w.logger.WithField("remote", r.RemoteAddr).Warn("webhook rejected: invalid signature")
			writeError(rw, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(rw, http.StatusBadRequest, "invalid JSON")
		return
	}

	status, msg := w.handleEvent(payload)
	if status != http.StatusOK {
		writeError(rw, status, msg)
		return
	}

	writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
}

func (w *WebhookServer) verifySignature(r *http.Request, body []byte) bool {
	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(w.secret))
	mac.Write(body)
	expectedSignature := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expectedSignature))
}

func (w *WebhookServer) handleEvent(payload WebhookPayload) (int, string) {
	log := w.logger.WithFields(logrus.Fields{
		"event":     payload.Event,
		"providers": payload.Providers,
		"revision":  payload.Revision,
	})

	switch {
	case payload.Event == EventSnapshotUpdated:
		log.Info("webhook: refreshing providers")
		w.manager.RefreshProviders(payload.Providers...)
		return http.StatusOK, ""

	case strings.HasPrefix(payload.Event, eventOverridePrefix):
		log.Warn("webhook: remote override rejected")
		return http.StatusForbidden, "overrides are local only"

	default:
		log.Debug("webhook: unsupported event")
		return http.StatusBadRequest, "unsupported event " + payload.Event
	}
}
