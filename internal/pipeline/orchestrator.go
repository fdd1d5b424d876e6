package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roomscape/roomscape-api/internal/config"
	"github.com/roomscape/roomscape-api/internal/llm"
	"github.com/roomscape/roomscape-api/internal/logger"
	"github.com/roomscape/roomscape-api/internal/observability"
	"github.com/roomscape/roomscape-api/internal/prompt"
	"github.com/roomscape/roomscape-api/internal/retry"
	"github.com/roomscape/roomscape-api/internal/scene"
	"github.com/roomscape/roomscape-api/internal/store"
	"github.com/roomscape/roomscape-api/internal/unity"
)

const (
	// maxJSONAttempts bounds the re-prompt loop when the room model keeps
	// answering with prose instead of JSON.
	maxJSONAttempts = 3

	// maxAudioAttempts bounds the audio generation loop, which additionally
	// retries on validation and cross-reference failures.
	maxAudioAttempts = 4

	// llmCallAttempts is the retry budget of a single chat completion.
	llmCallAttempts = 3

	// audioAttemptDelay grows linearly: delay = audioAttemptDelay * attempt.
	audioAttemptDelay = 2 * time.Second

	RoomFilename  = "room.json"
	AudioFilename = "audio.json"
)

// ProviderSource resolves a chat provider for a model name.
type ProviderSource interface {
	GetProvider(ctx context.Context, model, providerName string) (llm.Provider, error)
}

// UnityProcessor is the resolve/download/normalize stage.
type UnityProcessor interface {
	ProcessAudioScene(ctx context.Context, audioJSONPath, sessionToken string) (*unity.ProcessResult, error)
}

// Orchestrator sequences room generation, audio generation and Unity audio
// processing, tracking coarse progress for the polling endpoint.
type Orchestrator struct {
	cfg       *config.Config
	providers ProviderSource
	prompts   *prompt.Loader
	builder   *prompt.Builder
	processor UnityProcessor
	history   *store.Store // optional
	status    *StatusTracker
}

func NewOrchestrator(cfg *config.Config, providers ProviderSource, prompts *prompt.Loader, builder *prompt.Builder, processor UnityProcessor, history *store.Store) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		providers: providers,
		prompts:   prompts,
		builder:   builder,
		processor: processor,
		history:   history,
		status:    NewStatusTracker(),
	}
}

// Status exposes the tracker for the API layer.
func (o *Orchestrator) Status() *StatusTracker {
	return o.status
}

// TryStart claims the pipeline for a new run.
func (o *Orchestrator) TryStart() bool {
	return o.status.TryStart()
}

func (o *Orchestrator) roomPath() string {
	return filepath.Join(o.cfg.ResponsesDir(), RoomFilename)
}

func (o *Orchestrator) audioPath() string {
	return filepath.Join(o.cfg.ResponsesDir(), AudioFilename)
}

func (o *Orchestrator) ensureResponsesDir() error {
	return os.MkdirAll(o.cfg.ResponsesDir(), 0o755)
}

// Run executes the full pipeline. The caller must have claimed the run via
// TryStart; Run releases the claim on exit through Complete or Fail.
func (o *Orchestrator) Run(ctx context.Context, sessionToken string) {
	logger.Info("Starting full generation pipeline", nil)

	var runID uint
	if o.history != nil {
		if run, err := o.history.BeginRun(o.cfg.RoomModel, o.cfg.AudioModel); err != nil {
			logger.Warn("Could not record pipeline run", logger.Fields{"error": err.Error()})
		} else {
			runID = run.ID
		}
	}

	fail := func(err error) {
		logger.Error("Pipeline error", err, nil)
		o.status.Fail(err)
		o.recordFinish(runID, false, err, 0, 0)
	}

	o.setStep(runID, "Generating room", 0.1)
	room, err := o.GenerateRoom(ctx)
	if err != nil {
		fail(err)
		return
	}
	if o.history != nil && runID != 0 {
		if err := o.history.SetProfession(runID, room.Profession()); err != nil {
			logger.Warn("Could not record profession", logger.Fields{"error": err.Error()})
		}
	}
	o.status.Set("Generating room", 0.3)

	o.setStep(runID, "Generating audio configuration", 0.3)
	if _, err := o.GenerateAudio(ctx); err != nil {
		fail(err)
		return
	}
	o.status.Set("Generating audio configuration", 0.5)

	o.setStep(runID, "Processing audio for Unity", 0.5)
	result, err := o.processor.ProcessAudioScene(ctx, o.audioPath(), sessionToken)
	if err != nil {
		fail(err)
		return
	}
	o.recordDownloads(runID, result)

	o.status.Complete()
	o.recordFinish(runID, true, nil, len(result.Successful)+len(result.Failed), len(result.Failed))
	logger.Info("Pipeline completed successfully", nil)
}

func (o *Orchestrator) setStep(runID uint, step string, progress float64) {
	o.status.Set(step, progress)
	if o.history != nil && runID != 0 {
		if err := o.history.UpdateStep(runID, step); err != nil {
			logger.Warn("Could not record pipeline step", logger.Fields{"error": err.Error()})
		}
	}
}

func (o *Orchestrator) recordFinish(runID uint, success bool, runErr error, total, failed int) {
	if o.history == nil || runID == 0 {
		return
	}
	if err := o.history.FinishRun(runID, success, runErr, total, failed); err != nil {
		logger.Warn("Could not record pipeline result", logger.Fields{"error": err.Error()})
	}
}

func (o *Orchestrator) recordDownloads(runID uint, result *unity.ProcessResult) {
	if o.history == nil || runID == 0 {
		return
	}
	for i := range result.Successful {
		s := &result.Successful[i]
		var volume float64
		if result.Mapping != nil && i < len(result.Mapping.SoundMappings) {
			volume = result.Mapping.SoundMappings[i].Volume
		}
		err := o.history.RecordDownload(&store.SoundDownload{
			RunID:    runID,
			SoundID:  s.SoundID,
			Title:    s.Title,
			Object:   s.Object,
			Type:     s.Type,
			Filename: s.Filename,
			Duration: s.Duration,
			Loudness: s.Loudness,
			Volume:   volume,
		})
		if err != nil {
			logger.Warn("Could not record sound download", logger.Fields{"error": err.Error()})
		}
	}
}

// GenerateRoom runs the room flow: prompt in, validated room.json out.
// The model gets maxJSONAttempts chances to answer with parseable JSON.
func (o *Orchestrator) GenerateRoom(ctx context.Context) (*scene.RoomScene, error) {
	logger.Info("Room Flow: starting room processing", nil)

	if err := o.ensureResponsesDir(); err != nil {
		return nil, err
	}

	promptText, err := o.prompts.RoomPrompt()
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file: %w", err)
	}

	// A missing API key is a configuration error, caught before any retry
	// loop spins.
	provider, err := o.providers.GetProvider(ctx, o.cfg.RoomModel, "")
	if err != nil {
		return nil, err
	}

	trace := observability.GetClient().StartTrace(ctx, "generate-room", map[string]interface{}{
		"model": o.cfg.RoomModel,
	})
	defer trace.Finish()

	var doc map[string]any
	for attempt := 1; attempt <= maxJSONAttempts; attempt++ {
		logger.Info("Room Flow: sending to AI API", logger.Fields{
			"attempt":  attempt,
			"attempts": maxJSONAttempts,
		})

		resp, err := o.complete(ctx, provider, o.cfg.RoomModel, promptText, trace, "room-completion")
		if err != nil {
			return nil, err
		}

		content, err := llm.Sanitize(resp, o.cfg.ResponsesDir())
		if err != nil {
			return nil, err
		}
		if content.IsStructured() {
			if err := json.Unmarshal(content.Structured, &doc); err != nil {
				return nil, fmt.Errorf("invalid room JSON: %w", err)
			}
			break
		}

		logger.Warn("Room Flow: invalid JSON", logger.Fields{"attempt": attempt})
		if attempt == maxJSONAttempts {
			return nil, fmt.Errorf("failed to receive valid JSON after %d attempts", maxJSONAttempts)
		}
	}

	repaired := scene.RepairRoom(doc)
	if err := o.saveJSON(o.roomPath(), repaired); err != nil {
		return nil, err
	}

	data, err := json.Marshal(repaired)
	if err != nil {
		return nil, err
	}
	room, err := scene.DecodeRoom(data)
	if err != nil {
		return nil, err
	}

	logger.Info("Room Flow: processing completed successfully", logger.Fields{
		"profession": room.Profession(),
		"objects":    len(room.Objects),
	})
	return room, nil
}

// GenerateAudio runs the audio flow: the room.json context is folded into
// the audio prompt, and the model output must survive validation and the
// object cross-reference check before it is persisted. Failed attempts back
// off linearly.
func (o *Orchestrator) GenerateAudio(ctx context.Context) (*scene.AudioScene, error) {
	logger.Info("Audio Flow: starting audio processing", nil)

	if err := o.ensureResponsesDir(); err != nil {
		return nil, err
	}

	provider, err := o.providers.GetProvider(ctx, o.cfg.AudioModel, "")
	if err != nil {
		return nil, err
	}

	trace := observability.GetClient().StartTrace(ctx, "generate-audio", map[string]interface{}{
		"model": o.cfg.AudioModel,
	})
	defer trace.Finish()

	var lastErr error
	for attempt := 1; attempt <= maxAudioAttempts; attempt++ {
		logger.Info("Audio Flow: processing attempt", logger.Fields{
			"attempt":  attempt,
			"attempts": maxAudioAttempts,
		})

		audio, err := o.audioAttempt(ctx, provider, trace, attempt)
		if err == nil {
			logger.Info("Audio Flow: audio processing completed successfully", nil)
			return audio, nil
		}

		lastErr = err
		logger.Error("Audio Flow: error in attempt", err, logger.Fields{"attempt": attempt})

		if attempt == maxAudioAttempts {
			break
		}

		delay := audioAttemptDelay * time.Duration(attempt)
		logger.Info("Audio Flow: waiting before next attempt", logger.Fields{
			"delay_ms": delay.Milliseconds(),
		})
		if err := retry.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("audio generation failed after %d attempts: %w", maxAudioAttempts, lastErr)
}

func (o *Orchestrator) audioAttempt(ctx context.Context, provider llm.Provider, trace *observability.Trace, attempt int) (*scene.AudioScene, error) {
	roomData, err := os.ReadFile(o.roomPath())
	if err != nil {
		return nil, fmt.Errorf("room.json missing or invalid: %w", err)
	}
	room, err := scene.DecodeRoom(roomData)
	if err != nil {
		return nil, fmt.Errorf("room.json missing or invalid: %w", err)
	}

	basePrompt, err := o.prompts.AudioPrompt()
	if err != nil {
		return nil, fmt.Errorf("failed to read audio prompt: %w", err)
	}

	enhanced := o.builder.BuildAudioPrompt(basePrompt, room)
	o.builder.DumpEnhancedPrompt(o.cfg.ResponsesDir(), enhanced)

	resp, err := o.complete(ctx, provider, o.cfg.AudioModel, enhanced, trace, "audio-completion")
	if err != nil {
		return nil, err
	}

	content, err := llm.Sanitize(resp, o.cfg.ResponsesDir())
	if err != nil {
		return nil, err
	}
	if !content.IsStructured() {
		return nil, fmt.Errorf("failed to parse audio data as JSON")
	}

	audio, err := scene.DecodeAudio(content.Structured)
	if err != nil {
		return nil, fmt.Errorf("invalid audio data: %w", err)
	}
	if err := scene.ValidateAudio(audio); err != nil {
		return nil, err
	}

	invalid := scene.InvalidObjectReferences(audio, room)
	if len(invalid) > 0 {
		logger.Warn("Audio Flow: found invalid object references", logger.Fields{
			"invalid": strings.Join(invalid, ", "),
		})
		// Too many bad references means the scene was written for a
		// different room; regenerate unless this is the last chance.
		if len(invalid) > o.cfg.MaxInvalidReferences && attempt < maxAudioAttempts {
			return nil, fmt.Errorf("too many invalid object references: %s", strings.Join(invalid, ", "))
		}
	}

	scene.SanitizeAudio(audio)
	if err := o.saveJSON(o.audioPath(), audio); err != nil {
		return nil, err
	}
	return audio, nil
}

// complete sends one prompt through the provider with a bounded retry and
// records the call as a langfuse generation.
func (o *Orchestrator) complete(ctx context.Context, provider llm.Provider, model, promptText string, trace *observability.Trace, name string) (*llm.ChatResponse, error) {
	var resp *llm.ChatResponse
	err := retry.Do(ctx, "AI API call", llmCallAttempts, retry.DefaultBase, func(ctx context.Context) error {
		gen := trace.Generation(name, map[string]interface{}{"provider": provider.Name()})
		r, err := provider.Complete(ctx, &llm.ChatRequest{Model: model, Prompt: promptText})
		if err != nil {
			gen.SetLevel("ERROR")
			gen.Finish()
			return err
		}
		gen.LogChatCompletion(model, promptText, r, nil)
		gen.Finish()
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (o *Orchestrator) saveJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save output: %w", err)
	}
	logger.Info("Saved output", logger.Fields{"path": path})
	return nil
}
