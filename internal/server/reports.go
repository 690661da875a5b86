package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetDailyReport summarises one local calendar day, today when date is empty.
func (s *Server) GetDailyReport(c *gin.Context) {
	day, err := s.reports.ParseDate(c.Query("date"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.reports.Daily(c.Request.Context(), day)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetRangeReport(c *gin.Context) {
	first, err := s.reports.ParseDate(c.Query("from"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	last, err := s.reports.ParseDate(c.Query("to"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.reports.Range(c.Request.Context(), first, last)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
