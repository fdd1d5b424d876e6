package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apimiddleware "github.com/roomscape/roomscape-api/internal/api/middleware"
	"github.com/roomscape/roomscape-api/internal/metrics"
	"github.com/roomscape/roomscape-api/internal/pipeline"
)

// UnityHandler runs the audio resolve/download/normalize stage on its own,
// against an audio.json produced by an earlier generation.
type UnityHandler struct {
	processor pipeline.UnityProcessor
	audioPath string
	cw        *metrics.Client // optional
}

func NewUnityHandler(processor pipeline.UnityProcessor, audioPath string, cw *metrics.Client) *UnityHandler {
	return &UnityHandler{processor: processor, audioPath: audioPath, cw: cw}
}

// ProcessUnity handles POST /api/process/unity
func (h *UnityHandler) ProcessUnity(c *gin.Context) {
	token := apimiddleware.TokenFromContext(c)
	if token == "" {
		failUnauthenticated(c)
		return
	}

	result, err := h.processor.ProcessAudioScene(c.Request.Context(), h.audioPath, token)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	if h.cw != nil {
		h.cw.RecordSoundDownloads(len(result.Successful), len(result.Failed))
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "Audio processing completed",
		"successful": len(result.Successful),
		"failed":     result.Failed,
		"mapping":    result.Mapping,
	})
}
