package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	comandadomain "github.com/smallbiznis/comanda/internal/comanda/domain"
)

func (s *Server) ListOpenTabs(c *gin.Context) {
	resp, err := s.comandaSvc.ListOpen(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetTableBoard(c *gin.Context) {
	resp, err := s.comandaSvc.Board(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ListBillRequests serves the dashboard snapshot; it lags the ledger by at most
// one poll interval.
func (s *Server) ListBillRequests(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.monitor.BillRequests()})
}

func (s *Server) OpenTab(c *gin.Context) {
	var req comandadomain.OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.comandaSvc.Open(c.Request.Context(), comandadomain.OpenRequest{
		TableNumber:  req.TableNumber,
		CustomerName: strings.TrimSpace(req.CustomerName),
		WaiterID:     strings.TrimSpace(req.WaiterID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetTab(c *gin.Context) {
	resp, err := s.comandaSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type addTabItemsRequest struct {
	ProductID string                    `json:"product_id"`
	Quantity  int                       `json:"quantity"`
	Lines     []comandadomain.LineInput `json:"lines"`
}

// AddTabItems appends either one catalog product or a list of priced lines.
func (s *Server) AddTabItems(c *gin.Context) {
	var req addTabItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tabID := strings.TrimSpace(c.Param("id"))
	ctx := c.Request.Context()

	var (
		resp *comandadomain.Tab
		err  error
	)
	if productID := strings.TrimSpace(req.ProductID); productID != "" {
		resp, err = s.comandaSvc.AddProduct(ctx, comandadomain.AddProductRequest{
			TabID:     tabID,
			ProductID: productID,
			Quantity:  req.Quantity,
		})
	} else {
		resp, err = s.comandaSvc.AddItems(ctx, tabID, req.Lines)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateTabItemStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) UpdateTabItemStatus(c *gin.Context) {
	var req updateTabItemStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.comandaSvc.UpdateItemStatus(
		c.Request.Context(),
		strings.TrimSpace(c.Param("id")),
		strings.TrimSpace(c.Param("itemId")),
		comandadomain.ItemStatus(strings.TrimSpace(req.Status)),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type assignWaiterRequest struct {
	WaiterID string `json:"waiter_id"`
}

func (s *Server) AssignTabWaiter(c *gin.Context) {
	var req assignWaiterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.comandaSvc.AssignWaiter(c.Request.Context(), strings.TrimSpace(c.Param("id")), strings.TrimSpace(req.WaiterID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SettleTab(c *gin.Context) {
	resp, err := s.comandaSvc.Settle(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReconcileTab(c *gin.Context) {
	resp, err := s.comandaSvc.Reconcile(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
