package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/comanda/internal/observability/logger"
	"github.com/smallbiznis/comanda/internal/providers/webhook"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

func (s *Server) OrderWebhookHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"configured": s.cfg.OrderWebhookURL != "",
	})
}

// ForwardOrderWebhook relays the JSON body untouched to the configured upstream.
func (s *Server) ForwardOrderWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil || !json.Valid(body) {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	if err := s.forwarder.Forward(ctx, body); err != nil {
		logger.FromContext(ctx).Warn("order webhook forward failed", zap.Error(err))

		var upstream *webhook.UpstreamError
		if errors.As(err, &upstream) || errors.Is(err, webhook.ErrNotConfigured) {
			AbortWithError(c, err)
			return
		}
		AbortWithError(c, fmt.Errorf("%w: %v", ErrUpstream, err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "forwarded"})
}
