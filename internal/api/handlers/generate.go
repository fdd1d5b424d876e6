package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apimiddleware "github.com/roomscape/roomscape-api/internal/api/middleware"
	"github.com/roomscape/roomscape-api/internal/metrics"
	"github.com/roomscape/roomscape-api/internal/pipeline"
	"github.com/roomscape/roomscape-api/internal/scene"
)

// PipelineService is the orchestration surface the generation endpoints use.
type PipelineService interface {
	TryStart() bool
	Status() *pipeline.StatusTracker
	Run(ctx context.Context, sessionToken string)
	GenerateRoom(ctx context.Context) (*scene.RoomScene, error)
	GenerateAudio(ctx context.Context) (*scene.AudioScene, error)
}

// GenerateHandler serves the generation endpoints.
type GenerateHandler struct {
	pipeline PipelineService
	sentry   *metrics.SentryMetrics
	cw       *metrics.Client // optional
}

func NewGenerateHandler(service PipelineService, cw *metrics.Client) *GenerateHandler {
	return &GenerateHandler{
		pipeline: service,
		sentry:   metrics.NewSentryMetrics(),
		cw:       cw,
	}
}

// GenerationStatus handles GET /api/generate/status
func (h *GenerateHandler) GenerationStatus(c *gin.Context) {
	s := h.pipeline.Status().Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"running":        s.Running,
		"currentStep":    s.CurrentStep,
		"progress":       s.Progress,
		"elapsedSeconds": s.ElapsedSeconds(),
	})
}

// StartPipeline handles POST /api/generate/pipeline. The run happens in the
// background; the response acknowledges the start and clients poll
// /api/generate/status for progress.
func (h *GenerateHandler) StartPipeline(c *gin.Context) {
	// Authentication is checked before the run slot is claimed, so a
	// rejected request never blocks a later, authenticated one.
	token := apimiddleware.TokenFromContext(c)
	if token == "" {
		failUnauthenticated(c)
		return
	}

	if !h.pipeline.TryStart() {
		fail(c, http.StatusConflict, "Pipeline is already running")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Pipeline started",
		"status":  "running",
	})

	go func() {
		start := time.Now()
		h.pipeline.Run(context.Background(), token)

		s := h.pipeline.Status().Snapshot()
		success := s.Progress >= 1.0
		h.sentry.RecordPipelineRun(context.Background(), time.Since(start), success)
		if h.cw != nil {
			h.cw.RecordPipelineRun(time.Since(start), success)
		}
	}()
}

// GenerateRoom handles POST /api/generate/room
func (h *GenerateHandler) GenerateRoom(c *gin.Context) {
	room, err := h.pipeline.GenerateRoom(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "room": room})
}

// GenerateAudio handles POST /api/generate/audio
func (h *GenerateHandler) GenerateAudio(c *gin.Context) {
	audio, err := h.pipeline.GenerateAudio(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "audio": audio})
}
