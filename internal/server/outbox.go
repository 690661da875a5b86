package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/comanda/internal/ratelimit"
)

func (s *Server) GetOutboxStats(c *gin.Context) {
	resp, err := s.outbox.Stats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// DrainOutbox runs one reconcile pass on demand. A pass already running on
// another replica reports a conflict.
func (s *Server) DrainOutbox(c *gin.Context) {
	resp, err := s.outbox.Drain(c.Request.Context())
	if err != nil {
		if errors.Is(err, ratelimit.ErrLockHeld) {
			AbortWithError(c, ErrConflict)
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
