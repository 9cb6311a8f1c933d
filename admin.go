package flagship

import (
	"context"
	"net/http"

	"github.com/OrlandoBitencourt/flagship/internal/server"
)

// serverBridge adapts a Client to server.Manager.
type serverBridge struct {
	*Client
}

func (b serverBridge) Stats() interface{} {
	return b.Metrics()
}

// AdminHandler returns the admin HTTP API.
//
// Endpoints:
//   - GET /health
//   - GET /admin/stats
//   - GET /admin/flags/{key}
//   - POST /admin/refresh
//   - GET /admin/overrides
//   - PUT|DELETE /admin/overrides/{key}
//   - DELETE /admin/overrides
//
// Example:
//
//	mux.Handle("/", client.AdminHandler())
func (c *Client) AdminHandler() http.Handler {
	return server.NewAdminServer(serverBridge{c}, c.logger).Handler()
}

// HTTPMiddleware returns a middleware that builds an evaluation context from
// each request's headers. Accessors called with the request context and no
// explicit evaluation context use it.
//
// Example:
//
//	handler := client.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	    if client.IsEnabled(r.Context(), "new-checkout", false) {
//	        w.Write([]byte("new checkout"))
//	        return
//	    }
//	    w.Write([]byte("old checkout"))
//	}))
//
//	http.ListenAndServe(":8080", handler)
func (c *Client) HTTPMiddleware(next http.Handler) http.Handler {
	return server.NewMiddleware().Handler(next)
}

// ContextFromRequest returns the evaluation context stored by HTTPMiddleware.
func ContextFromRequest(r *http.Request) (Context, bool) {
	return server.ContextFrom(r.Context())
}

// WithEvaluationContext stores evalCtx in ctx for accessors called without
// an explicit evaluation context.
func WithEvaluationContext(ctx context.Context, evalCtx Context) context.Context {
	return server.WithContext(ctx, evalCtx)
}
