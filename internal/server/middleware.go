package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
)

type contextKey string

const contextKeyEvalCtx contextKey = "flagship_eval_ctx"

// Request headers read by Middleware
const (
	HeaderUserID     = "X-User-ID"
	HeaderDeviceID   = "X-Device-ID"
	HeaderAppVersion = "X-App-Version"
	HeaderRegion     = "X-Region"
)

// Middleware provides HTTP middleware for evaluation context injection
type Middleware struct {
	// Attributes maps request headers to context attribute names.
	Attributes map[string]string
}

// NewMiddleware creates new middleware
func NewMiddleware() *Middleware {
	return &Middleware{}
}

// Handler wraps an HTTP handler with an evaluation context
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithContext(r.Context(), m.buildContext(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) buildContext(r *http.Request) domain.Context {
	// Extract user ID from header or cookie
	userID := r.Header.Get(HeaderUserID)
	if userID == "" {
		if cookie, err := r.Cookie("user_id"); err == nil {
			userID = cookie.Value
		}
	}

	evalCtx := domain.NewContext(userID).
		WithDeviceID(r.Header.Get(HeaderDeviceID)).
		WithAppVersion(r.Header.Get(HeaderAppVersion)).
		WithRegion(r.Header.Get(HeaderRegion)).
		WithLocale(primaryLanguage(r.Header.Get("Accept-Language")))

	attrs := map[string]any{
		"path":   r.URL.Path,
		"method": r.Method,
	}
	if ua := r.UserAgent(); ua != "" {
		attrs["user_agent"] = ua
	}
	for header, attr := range m.Attributes {
		if v := r.Header.Get(header); v != "" {
			attrs[attr] = v
		}
	}

	return evalCtx.WithAttributes(attrs)
}

// primaryLanguage returns the first tag of an Accept-Language header
func primaryLanguage(header string) string {
	if header == "" {
		return ""
	}
	tag, _, _ := strings.Cut(header, ",")
	tag, _, _ = strings.Cut(tag, ";")
	return strings.TrimSpace(tag)
}

// WithContext stores evalCtx in ctx
func WithContext(ctx context.Context, evalCtx domain.Context) context.Context {
	return context.WithValue(ctx, contextKeyEvalCtx, evalCtx)
}

// ContextFrom extracts the evaluation context stored by Middleware
func ContextFrom(ctx context.Context) (domain.Context, bool) {
	evalCtx, ok := ctx.Value(contextKeyEvalCtx).(domain.Context)
	return evalCtx, ok
}
