package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/comanda/internal/checkout"
)

func (s *Server) Checkout(c *gin.Context) {
	var req checkout.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.checkout.Submit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextOrderNumberKey, resp.OrderNumber)
	status := http.StatusCreated
	if resp.Queued {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"data": resp})
}
