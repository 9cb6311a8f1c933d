package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func post(h http.Handler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBuffer(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestWebhook_SnapshotUpdated(t *testing.T) {
	mock := newMockManager()
	secret := "abc123"
	h := NewWebhookServer(mock, secret, quietLogger()).Handler()

	body := []byte(`{"event":"snapshot.updated","providers":["remote"],"revision":"42"}`)
	w := post(h, body, sign(secret, body))

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, mock.refreshed, 1)
	assert.Equal(t, []string{"remote"}, mock.refreshed[0])
}

func TestWebhook_SignatureCaseInsensitive(t *testing.T) {
	mock := newMockManager()
	h := NewWebhookServer(mock, "s", quietLogger()).Handler()

	body := []byte(`{"event":"snapshot.updated"}`)
	w := post(h, body, strings.ToUpper(sign("s", body)))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_InvalidSignature(t *testing.T) {
	mock := newMockManager()
	h := NewWebhookServer(mock, "secret", quietLogger()).Handler()

	body := []byte(`{"event":"snapshot.updated","providers":["x"]}`)

	w := post(h, body, "invalid")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = post(h, body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Empty(t, mock.refreshed)
}

func TestWebhook_OverridesAreRejected(t *testing.T) {
	mock := newMockManager()
	h := NewWebhookServer(mock, "", quietLogger()).Handler()

	w := post(h, []byte(`{"event":"override.set","providers":["x"]}`), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, mock.refreshed)
	assert.Empty(t, mock.overrides)
}

func TestWebhook_UnknownEvent(t *testing.T) {
	mock := newMockManager()
	h := NewWebhookServer(mock, "", quietLogger()).Handler()

	w := post(h, []byte(`{"event":"flag.deleted"}`), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, mock.refreshed)
}

func TestWebhook_InvalidJSON(t *testing.T) {
	h := NewWebhookServer(newMockManager(), "", quietLogger()).Handler()

	w := post(h, []byte("{invalid_json"), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	h := NewWebhookServer(newMockManager(), "", quietLogger()).Handler()

	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
