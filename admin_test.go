package flagship

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
	"github.com/OrlandoBitencourt/flagship/pkg/provider"
)

func TestAdminHandler_Overrides(t *testing.T) {
	remote := mockWith("remote", map[string]Value{"flag1": BoolValue(true)}, nil)
	client := bootstrapped(t, []Provider{remote})
	handler := client.AdminHandler()

	body := bytes.NewBufferString(`{"type":"bool","value":false}`)
	req := httptest.NewRequest(http.MethodPut, "/admin/overrides/flag1", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.False(t, client.Bool(context.Background(), "flag1", true))

	req = httptest.NewRequest(http.MethodGet, "/admin/flags/flag1", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "OVERRIDE", status["source"])
	assert.Equal(t, true, status["healthy"])
	assert.Equal(t, false, status["fresh"])

	req = httptest.NewRequest(http.MethodDelete, "/admin/overrides/flag1", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.True(t, client.Bool(context.Background(), "flag1", false))
}

func TestAdminHandler_Stats(t *testing.T) {
	remote := mockWith("remote", map[string]Value{"flag1": BoolValue(true)}, nil)
	client := bootstrapped(t, []Provider{remote})

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	rec := httptest.NewRecorder()
	client.AdminHandler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, "ready", stats["state"])
	assert.Len(t, stats["providers"], 1)
}

func TestAdminHandler_Refresh(t *testing.T) {
	remote := mockWith("remote", map[string]Value{"flag1": BoolValue(true)}, nil)
	client := bootstrapped(t, []Provider{remote})

	req := httptest.NewRequest(http.MethodPost, "/admin/refresh", bytes.NewBufferString(`{"providers":["remote"]}`))
	rec := httptest.NewRecorder()
	client.AdminHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Eventually(t, func() bool {
		return remote.Calls("Refresh") == 1
	}, time.Second, 10*time.Millisecond)
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookHandler(t *testing.T) {
	remote := mockWith("remote", map[string]Value{"flag1": BoolValue(true)}, nil)
	client := bootstrapped(t, []Provider{remote})
	handler := client.WebhookHandler("s3cret")

	payload := []byte(`{"event":"snapshot.updated","providers":["remote"],"revision":"2"}`)

	t.Run("unsigned push is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("signed push refreshes", func(t *testing.T) {
		remote.SetSnapshot(domain.NewSnapshot(map[string]Value{"flag1": BoolValue(false)}, nil, domain.WithRevision("2")))

		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
		req.Header.Set(WebhookSignatureHeader, sign("s3cret", payload))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		assert.Eventually(t, func() bool {
			return !client.Bool(context.Background(), "flag1", true)
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("remote overrides are refused", func(t *testing.T) {
		body := []byte(`{"event":"override.set","providers":[]}`)
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
		req.Header.Set(WebhookSignatureHeader, sign("s3cret", body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestHTTPMiddleware(t *testing.T) {
	hooks := provider.NewMock("hooks")
	hooks.EvaluateFlagFunc = func(_ context.Context, key string, evalCtx domain.Context) (domain.Value, bool, error) {
		return domain.Bool(evalCtx.UserID == "user-42" && evalCtx.Region == "BR"), true, nil
	}
	client := bootstrapped(t, []Provider{hooks})

	var fromReq Context
	handler := client.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromReq, _ = ContextFromRequest(r)
		if client.IsEnabled(r.Context(), "beta", false) {
			w.Write([]byte("beta"))
			return
		}
		w.Write([]byte("stable"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "user-42")
	req.Header.Set("X-Region", "BR")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "beta", rec.Body.String())
	assert.Equal(t, "user-42", fromReq.UserID)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "user-7")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "stable", rec.Body.String())
}
