package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	waiterdomain "github.com/smallbiznis/comanda/internal/waiter/domain"
)

func (s *Server) ListWaiters(c *gin.Context) {
	activeOnly, err := parseOptionalBool(c.Query("active"))
	if err != nil {
		AbortWithError(c, newValidationError("active", "invalid_active", "invalid active"))
		return
	}

	resp, err := s.waiterSvc.List(c.Request.Context(), waiterdomain.ListWaitersRequest{
		ActiveOnly: activeOnly != nil && *activeOnly,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateWaiter(c *gin.Context) {
	var req waiterdomain.CreateWaiterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.waiterSvc.Create(c.Request.Context(), waiterdomain.CreateWaiterRequest{
		Name: strings.TrimSpace(req.Name),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ToggleWaiter(c *gin.Context) {
	resp, err := s.waiterSvc.Toggle(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteWaiter(c *gin.Context) {
	if err := s.waiterSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
