package reconciliation

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler exposes the audit runner over HTTP.
type Handler struct {
	runner *Runner
}

// NewHandler creates a new audit handler
func NewHandler(runner *Runner) *Handler {
	return &Handler{runner: runner}
}

// RegisterRoutes sets up audit routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/audit", h.GetLastReport)
	r.POST("/audit", h.Run)
}

// GetLastReport handles GET /audit
func (h *Handler) GetLastReport(c *gin.Context) {
	report := h.runner.LastReport()
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "No audit has completed yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

// Run handles POST /audit
func (h *Handler) Run(c *gin.Context) {
	report, err := h.runner.RunAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit_error", "message": "Failed to run audit"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}
