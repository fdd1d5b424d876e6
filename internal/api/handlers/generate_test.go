package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomscape/roomscape-api/internal/pipeline"
	"github.com/roomscape/roomscape-api/internal/scene"
)

type fakePipeline struct {
	tracker  *pipeline.StatusTracker
	ran      chan string
	runFails bool
	room     *scene.RoomScene
	roomErr  error
	audio    *scene.AudioScene
	audioErr error
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{
		tracker: pipeline.NewStatusTracker(),
		ran:     make(chan string, 1),
	}
}

func (f *fakePipeline) TryStart() bool                  { return f.tracker.TryStart() }
func (f *fakePipeline) Status() *pipeline.StatusTracker { return f.tracker }

func (f *fakePipeline) Run(_ context.Context, tok string) {
	if f.runFails {
		f.tracker.Fail(errors.New("boom"))
	} else {
		f.tracker.Complete()
	}
	f.ran <- tok
}

func (f *fakePipeline) GenerateRoom(context.Context) (*scene.RoomScene, error) {
	return f.room, f.roomErr
}

func (f *fakePipeline) GenerateAudio(context.Context) (*scene.AudioScene, error) {
	return f.audio, f.audioErr
}

func generateRouter(service PipelineService) *gin.Engine {
	router := newSessionRouter()
	h := NewGenerateHandler(service, nil)
	router.GET("/api/generate/status", h.GenerationStatus)
	router.POST("/api/generate/pipeline", h.StartPipeline)
	router.POST("/api/generate/room", h.GenerateRoom)
	router.POST("/api/generate/audio", h.GenerateAudio)
	return router
}

func TestStartPipelineRequiresAuth(t *testing.T) {
	service := newFakePipeline()
	router := generateRouter(service)

	rec := doRequest(router, http.MethodPost, "/api/generate/pipeline", nil, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "/freesound/login", body["redirect"])

	// The rejected request must not have claimed the run slot.
	assert.False(t, service.tracker.Snapshot().Running)
}

func TestStartPipelineAcksAndRuns(t *testing.T) {
	service := newFakePipeline()
	router := generateRouter(service)

	rec := doRequest(router, http.MethodPost, "/api/generate/pipeline", bearer("tok-123"), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Pipeline started", body["message"])
	assert.Equal(t, "running", body["status"])

	select {
	case tok := <-service.ran:
		assert.Equal(t, "tok-123", tok)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline run was never started")
	}
}

func TestStartPipelineRejectsConcurrentRun(t *testing.T) {
	service := newFakePipeline()
	router := generateRouter(service)

	require.True(t, service.tracker.TryStart())

	rec := doRequest(router, http.MethodPost, "/api/generate/pipeline", bearer("tok"), nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Pipeline is already running", body["error"])
}

func TestGenerationStatusSnapshot(t *testing.T) {
	service := newFakePipeline()
	service.tracker.TryStart()
	service.tracker.Set("Generating audio configuration", 0.3)
	router := generateRouter(service)

	rec := doRequest(router, http.MethodGet, "/api/generate/status", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["running"])
	assert.Equal(t, "Generating audio configuration", body["currentStep"])
	assert.Equal(t, 0.3, body["progress"])
	assert.NotNil(t, body["elapsedSeconds"])
}

func TestGenerateRoomEndpoint(t *testing.T) {
	service := newFakePipeline()
	service.room = &scene.RoomScene{}
	router := generateRouter(service)

	rec := doRequest(router, http.MethodPost, "/api/generate/room", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Contains(t, body, "room")
}

func TestGenerateRoomEndpointError(t *testing.T) {
	service := newFakePipeline()
	service.roomErr = errors.New("failed to receive valid JSON after 3 attempts")
	router := generateRouter(service)

	rec := doRequest(router, http.MethodPost, "/api/generate/room", nil, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "failed to receive valid JSON after 3 attempts", body["error"])
}

func TestGenerateAudioEndpointError(t *testing.T) {
	service := newFakePipeline()
	service.audioErr = errors.New("audio generation failed after 4 attempts: bad")
	router := generateRouter(service)

	rec := doRequest(router, http.MethodPost, "/api/generate/audio", nil, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["success"])
}
