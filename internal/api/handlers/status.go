package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roomscape/roomscape-api/internal/store"
)

const recentRunsLimit = 20

// StatusHandler serves the service heartbeat and run history.
type StatusHandler struct {
	version string
	history *store.Store // optional
}

func NewStatusHandler(version string, history *store.Store) *StatusHandler {
	return &StatusHandler{version: version, history: history}
}

// ServerStatus handles GET /api/status
func (h *StatusHandler) ServerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "Server is running",
		"version": h.version,
	})
}

// RecentRuns handles GET /api/runs
func (h *StatusHandler) RecentRuns(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "runs": []store.PipelineRun{}})
		return
	}

	runs, err := h.history.RecentRuns(recentRunsLimit)
	if err != nil {
		fail(c, http.StatusInternalServerError, "could not read run history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "runs": runs})
}
