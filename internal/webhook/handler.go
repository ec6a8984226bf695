package webhook

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// maxPayloadBytes bounds inbound callback bodies. Provider payloads with full
// transcripts run a few hundred KiB at most.
const maxPayloadBytes = 1 << 20

// CallbackHandler adapts the service to gin. The endpoint is public by
// necessity (the provider posts to it), so it never echoes internal detail:
// malformed or unmatched payloads are acknowledged, and only infrastructure
// failures return 5xx so the provider redelivers.
func CallbackHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		receipt, err := svc.HandleCallback(c.Request.Context(), raw, c.ClientIP())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "callback processing failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ack": true, "matched": receipt.Matched})
	}
}
