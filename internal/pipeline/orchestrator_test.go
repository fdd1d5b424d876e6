package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomscape/roomscape-api/internal/config"
	"github.com/roomscape/roomscape-api/internal/llm"
	"github.com/roomscape/roomscape-api/internal/prompt"
	"github.com/roomscape/roomscape-api/internal/retry"
	"github.com/roomscape/roomscape-api/internal/scene"
	"github.com/roomscape/roomscape-api/internal/unity"
)

type scriptedProvider struct {
	responses []*llm.ChatResponse
	errs      []error
	calls     int
	prompts   []string
}

func (p *scriptedProvider) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	i := p.calls
	p.calls++
	p.prompts = append(p.prompts, req.Prompt)
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return nil, fmt.Errorf("no scripted response for call %d", i)
}

func (p *scriptedProvider) Name() string { return "scripted" }

type fakeSource struct {
	provider llm.Provider
	err      error
}

func (f *fakeSource) GetProvider(ctx context.Context, model, providerName string) (llm.Provider, error) {
	return f.provider, f.err
}

type fakeProcessor struct {
	result *unity.ProcessResult
	err    error
	called bool
	token  string
}

func (f *fakeProcessor) ProcessAudioScene(ctx context.Context, audioJSONPath, sessionToken string) (*unity.ProcessResult, error) {
	f.called = true
	f.token = sessionToken
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &unity.ProcessResult{}, nil
}

func chatResponse(content string) *llm.ChatResponse {
	return &llm.ChatResponse{Choices: []llm.ChatChoice{{Message: llm.ChatMessage{Role: "assistant", Content: content}}}}
}

const roomJSON = `{
  "environment": {"name": "Astronomer's Bedroom", "shapes": []},
  "objects": [
    {"name": "Bed", "shape": "cube", "color": "#4169E1"},
    {"name": "Desk", "shape": "cube", "color": "#8B4513"},
    {"name": "Telescope", "shape": "cylinder", "color": "#222222"}
  ]
}`

const audioJSON = `{
  "scene": {
    "background": {"title": "Night Room Tone", "freesound_query": "quiet night ambience"},
    "interactions": [
      {"title": "Bed Creak", "object": "Bed", "freesound_query": "bed creak"},
      {"title": "Desk Knock", "object": "Desk", "freesound_query": "wood knock"},
      {"title": "Telescope Turn", "object": "Telescope", "freesound_query": "metal swivel"}
    ]
  }
}`

const badRefsAudioJSON = `{
  "scene": {
    "background": {"title": "Tone", "freesound_query": "room tone"},
    "interactions": [
      {"title": "A", "object": "Piano", "freesound_query": "q"},
      {"title": "B", "object": "Guitar", "freesound_query": "q"},
      {"title": "C", "object": "Drums", "freesound_query": "q"},
      {"title": "D", "object": "Violin", "freesound_query": "q"}
    ]
  }
}`

func newTestOrchestrator(t *testing.T, provider llm.Provider, processor UnityProcessor) (*Orchestrator, *config.Config) {
	t.Helper()

	dataDir := t.TempDir()
	cfg := &config.Config{
		RoomModel:            "room-model",
		AudioModel:           "audio-model",
		DataDir:              dataDir,
		PromptsDir:           "",
		MaxInvalidReferences: 3,
	}

	loader := prompt.NewPromptLoader("")
	builder := prompt.NewPromptBuilder()
	return NewOrchestrator(cfg, &fakeSource{provider: provider}, loader, builder, processor, nil), cfg
}

func stubSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var slept []time.Duration
	orig := retry.Sleep
	retry.Sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	t.Cleanup(func() { retry.Sleep = orig })
	return &slept
}

func TestGenerateRoomSuccess(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.ChatResponse{
		chatResponse("```json\n" + roomJSON + "\n```"),
	}}
	o, cfg := newTestOrchestrator(t, provider, &fakeProcessor{})

	room, err := o.GenerateRoom(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Astronomer", room.Profession())
	assert.Len(t, room.Objects, 3)
	assert.Equal(t, 1, provider.calls)

	data, err := os.ReadFile(filepath.Join(cfg.ResponsesDir(), RoomFilename))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Astronomer's Bedroom")
}

func TestGenerateRoomMigratesLegacyObjectKey(t *testing.T) {
	legacy := `{"environment": {"name": "Chef's Bedroom", "shapes": []}, "object": [{"name": "Stove", "shape": "cube", "color": "#333"}]}`
	provider := &scriptedProvider{responses: []*llm.ChatResponse{chatResponse(legacy)}}
	o, cfg := newTestOrchestrator(t, provider, &fakeProcessor{})

	room, err := o.GenerateRoom(context.Background())
	require.NoError(t, err)
	require.Len(t, room.Objects, 1)
	assert.Equal(t, "Stove", room.Objects[0].Name)

	data, err := os.ReadFile(filepath.Join(cfg.ResponsesDir(), RoomFilename))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "objects")
	assert.NotContains(t, doc, "object")
}

func TestGenerateRoomRetriesOnProse(t *testing.T) {
	stubSleep(t)
	provider := &scriptedProvider{responses: []*llm.ChatResponse{
		chatResponse("Sure! Here is a lovely bedroom for you."),
		chatResponse(roomJSON),
	}}
	o, _ := newTestOrchestrator(t, provider, &fakeProcessor{})

	room, err := o.GenerateRoom(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls)
	assert.Equal(t, "Astronomer", room.Profession())
}

func TestGenerateRoomGivesUpAfterThreeProseAnswers(t *testing.T) {
	stubSleep(t)
	provider := &scriptedProvider{responses: []*llm.ChatResponse{
		chatResponse("prose"), chatResponse("prose"), chatResponse("prose"),
	}}
	o, _ := newTestOrchestrator(t, provider, &fakeProcessor{})

	_, err := o.GenerateRoom(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to receive valid JSON after 3 attempts")
	assert.Equal(t, 3, provider.calls)
}

func TestGenerateRoomProviderErrorRetriedThenWrapped(t *testing.T) {
	stubSleep(t)
	apiErr := fmt.Errorf("status 502")
	provider := &scriptedProvider{errs: []error{apiErr, apiErr, apiErr}}
	o, _ := newTestOrchestrator(t, provider, &fakeProcessor{})

	_, err := o.GenerateRoom(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, provider.calls)
}

func TestGenerateRoomMissingProviderKey(t *testing.T) {
	o, _ := newTestOrchestrator(t, &scriptedProvider{}, &fakeProcessor{})
	o.providers = &fakeSource{err: llm.ErrMissingAPIKey}

	_, err := o.GenerateRoom(context.Background())
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)
}

func writeRoomFile(t *testing.T, o *Orchestrator) {
	t.Helper()
	require.NoError(t, o.ensureResponsesDir())
	require.NoError(t, os.WriteFile(o.roomPath(), []byte(roomJSON), 0o644))
}

func TestGenerateAudioSuccess(t *testing.T) {
	stubSleep(t)
	provider := &scriptedProvider{responses: []*llm.ChatResponse{chatResponse(audioJSON)}}
	o, cfg := newTestOrchestrator(t, provider, &fakeProcessor{})
	writeRoomFile(t, o)

	audio, err := o.GenerateAudio(context.Background())
	require.NoError(t, err)
	require.NotNil(t, audio.Scene)

	// Room context is folded into the prompt.
	require.Len(t, provider.prompts, 1)
	assert.Contains(t, provider.prompts[0], "### ROOM DATA CONTEXT ###")
	assert.Contains(t, provider.prompts[0], "Profession: Astronomer")

	// Persisted audio.json carries sanitized defaults.
	data, err := os.ReadFile(filepath.Join(cfg.ResponsesDir(), AudioFilename))
	require.NoError(t, err)
	saved, err := scene.DecodeAudio(data)
	require.NoError(t, err)
	require.NotNil(t, saved.Scene.Background.Volume)
	assert.Equal(t, 0.2, *saved.Scene.Background.Volume)
	require.NotNil(t, saved.Scene.Background.Loop)
	assert.True(t, *saved.Scene.Background.Loop)

	// The enhanced prompt debug artifact is written alongside.
	assert.FileExists(t, filepath.Join(cfg.ResponsesDir(), "audio_prompt_enhanced.txt"))
}

func TestGenerateAudioRegeneratesOnBadReferences(t *testing.T) {
	slept := stubSleep(t)
	provider := &scriptedProvider{responses: []*llm.ChatResponse{
		chatResponse(badRefsAudioJSON),
		chatResponse(audioJSON),
	}}
	o, _ := newTestOrchestrator(t, provider, &fakeProcessor{})
	writeRoomFile(t, o)

	audio, err := o.GenerateAudio(context.Background())
	require.NoError(t, err)
	require.NotNil(t, audio)
	assert.Equal(t, 2, provider.calls)

	// Linear backoff between audio attempts: 2s after the first failure.
	assert.Contains(t, *slept, 2*time.Second)
}

func TestGenerateAudioToleratesFewBadReferences(t *testing.T) {
	stubSleep(t)
	oneBad := strings.Replace(audioJSON, `"object": "Bed"`, `"object": "Piano"`, 1)
	provider := &scriptedProvider{responses: []*llm.ChatResponse{chatResponse(oneBad)}}
	o, _ := newTestOrchestrator(t, provider, &fakeProcessor{})
	writeRoomFile(t, o)

	_, err := o.GenerateAudio(context.Background())
	require.NoError(t, err, "a single bad reference is a warning, not a retry")
	assert.Equal(t, 1, provider.calls)
}

func TestGenerateAudioFailsAfterFourAttempts(t *testing.T) {
	stubSleep(t)
	provider := &scriptedProvider{responses: []*llm.ChatResponse{
		chatResponse("prose"), chatResponse("prose"), chatResponse("prose"), chatResponse("prose"),
	}}
	o, _ := newTestOrchestrator(t, provider, &fakeProcessor{})
	writeRoomFile(t, o)

	_, err := o.GenerateAudio(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audio generation failed after 4 attempts")
	assert.Equal(t, 4, provider.calls)
}

func TestGenerateAudioRequiresRoomFile(t *testing.T) {
	stubSleep(t)
	o, _ := newTestOrchestrator(t, &scriptedProvider{}, &fakeProcessor{})

	_, err := o.GenerateAudio(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "room.json missing or invalid")
}

func TestRunCompletesPipeline(t *testing.T) {
	stubSleep(t)
	provider := &scriptedProvider{responses: []*llm.ChatResponse{
		chatResponse(roomJSON),
		chatResponse(audioJSON),
	}}
	processor := &fakeProcessor{result: &unity.ProcessResult{
		Successful: []unity.ProcessedSound{{Type: "interaction", Title: "Bed Creak", Filename: "f.wav"}},
	}}
	o, _ := newTestOrchestrator(t, provider, processor)

	require.True(t, o.TryStart())
	o.Run(context.Background(), "session-token")

	status := o.Status().Snapshot()
	assert.False(t, status.Running)
	assert.Equal(t, "Complete", status.CurrentStep)
	assert.Equal(t, 1.0, status.Progress)
	assert.True(t, processor.called)
	assert.Equal(t, "session-token", processor.token)
}

func TestRunRecordsFailure(t *testing.T) {
	stubSleep(t)
	provider := &scriptedProvider{responses: []*llm.ChatResponse{
		chatResponse("prose"), chatResponse("prose"), chatResponse("prose"),
	}}
	o, _ := newTestOrchestrator(t, provider, &fakeProcessor{})

	require.True(t, o.TryStart())
	o.Run(context.Background(), "")

	status := o.Status().Snapshot()
	assert.False(t, status.Running)
	assert.True(t, strings.HasPrefix(status.CurrentStep, "Error: "), status.CurrentStep)

	assert.True(t, o.TryStart(), "failed pipeline releases the claim")
}
