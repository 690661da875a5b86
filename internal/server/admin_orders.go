package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/comanda/internal/order/domain"
)

func (s *Server) GetDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.monitor.Snapshot()})
}

func (s *Server) ListOrders(c *gin.Context) {
	var query struct {
		From         string `form:"from"`
		To           string `form:"to"`
		Status       string `form:"status"`
		Source       string `form:"source"`
		PendingSince string `form:"pending_since"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	loc := s.settings.Get().Location()
	ctx := c.Request.Context()

	pendingSince, err := parseOptionalTime(query.PendingSince, false, loc)
	if err != nil {
		AbortWithError(c, newValidationError("pending_since", "invalid_pending_since", "invalid pending_since"))
		return
	}
	if pendingSince != nil {
		resp, err := s.orderSvc.ListPendingSince(ctx, *pendingSince)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": resp})
		return
	}

	from, err := parseOptionalTime(query.From, false, loc)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	to, err := parseOptionalTime(query.To, true, loc)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}

	resp, err := s.orderSvc.List(ctx, orderdomain.ListRequest{
		From:   from,
		To:     to,
		Status: strings.TrimSpace(query.Status),
		Source: strings.TrimSpace(query.Source),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type advanceOrderStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) AdvanceOrderStatus(c *gin.Context) {
	var req advanceOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.monitor.AdvanceStatus(c.Request.Context(), strings.TrimSpace(c.Param("id")), orderdomain.Status(strings.TrimSpace(req.Status)))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetOrderNextStatuses(c *gin.Context) {
	resp, err := s.orderSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if resp == nil {
		AbortWithError(c, orderdomain.ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"status":        resp.Status,
		"next_statuses": orderdomain.NextStatuses(resp.Status),
	}})
}

// NextOrderNotification returns the oldest unacknowledged pending order, data
// is null once the staff has caught up.
func (s *Server) NextOrderNotification(c *gin.Context) {
	resp, err := s.monitor.NextNotification(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type acknowledgeNotificationRequest struct {
	OrderID string `json:"order_id"`
}

func (s *Server) AcknowledgeOrderNotification(c *gin.Context) {
	var req acknowledgeNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.monitor.Acknowledge(c.Request.Context(), strings.TrimSpace(req.OrderID)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
