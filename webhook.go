package flagship

import (
	"net/http"

	"github.com/OrlandoBitencourt/flagship/internal/server"
)

// WebhookSignatureHeader carries the hex HMAC-SHA256 of the request body.
const WebhookSignatureHeader = server.SignatureHeader

// WebhookHandler returns a handler for change pushes on POST /webhook. A
// "snapshot.updated" event force-refreshes the listed providers, or all of
// them when none are listed. An empty secret disables signature checks.
//
// Payload:
//
//	{
//	  "event": "snapshot.updated",
//	  "providers": ["remote"],
//	  "revision": "42",
//	  "timestamp": "2025-01-15T10:30:00Z"
//	}
func (c *Client) WebhookHandler(secret string) http.Handler {
	return server.NewWebhookServer(serverBridge{c}, secret, c.logger).Handler()
}
