package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomscape/roomscape-api/internal/unity"
)

type fakeUnityProcessor struct {
	path   string
	token  string
	result *unity.ProcessResult
	err    error
}

func (f *fakeUnityProcessor) ProcessAudioScene(_ context.Context, audioJSONPath, sessionToken string) (*unity.ProcessResult, error) {
	f.path = audioJSONPath
	f.token = sessionToken
	return f.result, f.err
}

func unityRouter(processor *fakeUnityProcessor) *gin.Engine {
	router := newSessionRouter()
	h := NewUnityHandler(processor, "/data/Responses/audio.json", nil)
	router.POST("/api/process/unity", h.ProcessUnity)
	return router
}

func TestProcessUnityRequiresAuth(t *testing.T) {
	processor := &fakeUnityProcessor{}
	router := unityRouter(processor)

	rec := doRequest(router, http.MethodPost, "/api/process/unity", nil, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, processor.token)
}

func TestProcessUnitySuccess(t *testing.T) {
	processor := &fakeUnityProcessor{
		result: &unity.ProcessResult{
			Successful: []unity.ProcessedSound{{Title: "Bed Creak"}, {Title: "Room Ambience"}},
			Failed:     []unity.FailedSound{{Title: "Desk Thud", Error: "no results"}},
			Mapping:    &unity.Mapping{},
		},
	}
	router := unityRouter(processor)

	rec := doRequest(router, http.MethodPost, "/api/process/unity", bearer("tok"), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok", processor.token)
	assert.Equal(t, "/data/Responses/audio.json", processor.path)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 2.0, body["successful"])
	assert.Len(t, body["failed"], 1)
}

func TestProcessUnityFailure(t *testing.T) {
	processor := &fakeUnityProcessor{err: errors.New("no audio scene found")}
	router := unityRouter(processor)

	rec := doRequest(router, http.MethodPost, "/api/process/unity", bearer("tok"), nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "no audio scene found", decodeBody(t, rec)["error"])
}
