package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/comanda/internal/tablesession"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	defaultQRSize        = 512
	maxQRSize            = 2048
)

func (s *Server) GetTableTab(c *gin.Context) {
	table, err := parseTable(c.Param("table"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.session.Tab(c.Request.Context(), table)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type submitTableOrderRequest struct {
	CustomerID string                    `json:"customer_id"`
	Items      []tablesession.SubmitItem `json:"items"`
}

func (s *Server) SubmitTableOrder(c *gin.Context) {
	table, err := parseTable(c.Param("table"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req submitTableOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.session.Submit(c.Request.Context(), tablesession.SubmitRequest{
		Table:          table,
		CustomerID:     strings.TrimSpace(req.CustomerID),
		Items:          req.Items,
		IdempotencyKey: strings.TrimSpace(c.GetHeader(headerIdempotencyKey)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if resp.Order != nil {
		c.Set(contextOrderNumberKey, resp.Order.OrderNumber)
	}
	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": resp})
}

func (s *Server) RequestTableBill(c *gin.Context) {
	table, err := parseTable(c.Param("table"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.session.RequestBill(c.Request.Context(), table)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// GetTableQRCode renders the PNG printed on the table, pointing at its public page.
func (s *Server) GetTableQRCode(c *gin.Context) {
	table, err := parseTable(c.Param("table"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	size := defaultQRSize
	if raw := strings.TrimSpace(c.Query("size")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 64 || parsed > maxQRSize {
			AbortWithError(c, newValidationError("size", "invalid_size", "size must be between 64 and 2048"))
			return
		}
		size = parsed
	}

	settings := s.settings.Get()
	png, err := tablesession.QRCodePNG(tablesession.TableURL(s.cfg.PublicBaseURL, table), size)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, tablesession.QRFilename(settings.Name, table)))
	c.Data(http.StatusOK, "image/png", png)
}
