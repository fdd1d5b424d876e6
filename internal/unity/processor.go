package unity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/roomscape/roomscape-api/internal/audioanalysis"
	"github.com/roomscape/roomscape-api/internal/freesound"
	"github.com/roomscape/roomscape-api/internal/logger"
	"github.com/roomscape/roomscape-api/internal/scene"
)

// SceneFolderName is the per-run folder under Sounds/ that holds the
// downloaded files. Recreated from scratch on every run.
const SceneFolderName = "current_scene"

// SoundService is the slice of the Freesound client the processor needs.
type SoundService interface {
	SearchSounds(ctx context.Context, query string, opts freesound.SearchOptions) (*freesound.SearchResult, error)
	GetSoundInfo(ctx context.Context, soundID int) (*freesound.Sound, error)
	DownloadSound(ctx context.Context, soundID int, savePath string) (*freesound.Sound, error)
	UseSessionToken(accessToken string)
}

// FailedSound records a sound that could not be resolved or downloaded.
// Individual failures never abort the run.
type FailedSound struct {
	Title  string `json:"title"`
	Object string `json:"object,omitempty"`
	Type   string `json:"type"`
	Error  string `json:"error"`
}

// ProcessResult summarizes one resolve/download/normalize run.
type ProcessResult struct {
	Successful  []ProcessedSound
	Failed      []FailedSound
	Mapping     *Mapping
	MappingPath string
	ScenePath   string
}

// Processor turns a generated audio scene into downloaded, analyzed sound
// files plus the Unity mapping.
type Processor struct {
	sounds             SoundService
	analyzer           *audioanalysis.Analyzer
	streamingAssetsDir string
	soundsDir          string
}

func NewProcessor(sounds SoundService, analyzer *audioanalysis.Analyzer, streamingAssetsDir, soundsDir string) *Processor {
	return &Processor{
		sounds:             sounds,
		analyzer:           analyzer,
		streamingAssetsDir: streamingAssetsDir,
		soundsDir:          soundsDir,
	}
}

var (
	lineCommentRe   = regexp.MustCompile(`(?m)//.*$`)
	trailingCommaRe = regexp.MustCompile(`,(\s*[\]}])`)
	unsafeCharRe    = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// CleanJSON strips line comments and trailing commas, which the models
// occasionally emit despite instructions.
func CleanJSON(data []byte) []byte {
	data = lineCommentRe.ReplaceAll(data, nil)
	return trailingCommaRe.ReplaceAll(data, []byte("$1"))
}

// ReadAudioScene loads audio.json tolerantly.
func ReadAudioScene(path string) (*scene.AudioScene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("audio JSON file not found at %s: %w", path, err)
	}
	audio, err := scene.DecodeAudio(CleanJSON(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse audio JSON: %w", err)
	}
	if audio.Scene == nil {
		return nil, fmt.Errorf("invalid audio JSON structure, missing scene data")
	}
	return audio, nil
}

// ProcessAudioScene resolves every sound in audio.json against Freesound,
// downloads the matches, analyzes their loudness and writes the Unity
// mapping. sessionToken, when set, is used for the downloads instead of the
// client-credentials token.
func (p *Processor) ProcessAudioScene(ctx context.Context, audioJSONPath, sessionToken string) (*ProcessResult, error) {
	logger.Info("Starting audio processing", logger.Fields{"path": audioJSONPath})

	audio, err := ReadAudioScene(audioJSONPath)
	if err != nil {
		return nil, err
	}

	scenePath := filepath.Join(p.soundsDir, SceneFolderName)
	if err := os.RemoveAll(scenePath); err != nil {
		return nil, fmt.Errorf("failed to clear scene folder: %w", err)
	}
	if err := os.MkdirAll(scenePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scene folder: %w", err)
	}
	logger.Info("Created scene folder", logger.Fields{"path": scenePath})

	if sessionToken != "" {
		p.sounds.UseSessionToken(sessionToken)
	}
	logger.Info("Using session token", logger.Fields{"session": sessionToken != ""})

	result := &ProcessResult{ScenePath: scenePath}

	logger.Info("Processing interaction sounds", logger.Fields{"count": len(audio.Scene.Interactions)})
	for _, interaction := range audio.Scene.Interactions {
		if interaction == nil {
			continue
		}
		processed, err := p.processInteraction(ctx, interaction, scenePath)
		if err != nil {
			logger.Error("Failed to process interaction sound", err, logger.Fields{"title": interaction.Title})
			result.Failed = append(result.Failed, FailedSound{
				Title:  interaction.Title,
				Object: interaction.Object,
				Type:   SoundTypeInteraction,
				Error:  err.Error(),
			})
			continue
		}
		result.Successful = append(result.Successful, *processed)
	}

	if bg := audio.Scene.Background; bg != nil {
		processed, err := p.processBackground(ctx, bg, scenePath)
		if err != nil {
			logger.Error("Failed to process background sound", err, logger.Fields{"title": bg.Title})
			result.Failed = append(result.Failed, FailedSound{
				Title: bg.Title,
				Type:  SoundTypeBackground,
				Error: err.Error(),
			})
		} else {
			result.Successful = append(result.Successful, *processed)
		}
	}

	result.Mapping = BuildMapping(result.Successful, audio)
	mappingPath, err := WriteMapping(p.streamingAssetsDir, result.Mapping)
	if err != nil {
		return nil, err
	}
	result.MappingPath = mappingPath

	logger.Info("Audio processing completed", logger.Fields{
		"successful": len(result.Successful),
		"failed":     len(result.Failed),
	})
	return result, nil
}

func (p *Processor) processInteraction(ctx context.Context, spec *scene.SoundSpec, scenePath string) (*ProcessedSound, error) {
	logger.Info("Searching for interaction sound", logger.Fields{
		"title":  spec.Title,
		"object": spec.Object,
	})

	fallbackOpts := freesound.SearchOptions{MaxDuration: 5, Sort: "rating_desc"}
	queries := []searchAttempt{{query: spec.FreesoundQuery}}
	for _, tag := range spec.Tags {
		queries = append(queries, searchAttempt{query: tag, opts: fallbackOpts})
	}
	queries = append(queries, searchAttempt{query: spec.Object + " sound", opts: fallbackOpts})

	sound, err := p.firstMatch(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("no sounds found for query %q or tags", spec.FreesoundQuery)
	}

	base := fmt.Sprintf("%s_%s_%d", sanitizeName(spec.Object), sanitizeName(spec.Title), sound.ID)
	return p.download(ctx, sound, spec, SoundTypeInteraction, base, scenePath)
}

func (p *Processor) processBackground(ctx context.Context, spec *scene.SoundSpec, scenePath string) (*ProcessedSound, error) {
	logger.Info("Processing background sound", logger.Fields{"title": spec.Title})

	// Backgrounds need loopable material, so every attempt is duration-bounded.
	opts := freesound.SearchOptions{MinDuration: 10, MaxDuration: 60, Sort: "rating_desc"}
	queries := []searchAttempt{{query: spec.FreesoundQuery, opts: opts}}
	for _, tag := range spec.Tags {
		queries = append(queries, searchAttempt{query: tag, opts: opts})
	}
	queries = append(queries, searchAttempt{query: "ambient background", opts: opts})

	sound, err := p.firstMatch(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("no sounds found for background query or tags")
	}

	base := fmt.Sprintf("background_%s_%d", sanitizeName(spec.Title), sound.ID)
	return p.download(ctx, sound, spec, SoundTypeBackground, base, scenePath)
}

type searchAttempt struct {
	query string
	opts  freesound.SearchOptions
}

func (p *Processor) firstMatch(ctx context.Context, attempts []searchAttempt) (*freesound.Sound, error) {
	for i, attempt := range attempts {
		if attempt.query == "" {
			continue
		}
		if i > 0 {
			logger.Info("Trying fallback search", logger.Fields{"query": attempt.query})
		}
		result, err := p.sounds.SearchSounds(ctx, attempt.query, attempt.opts)
		if err != nil {
			return nil, err
		}
		if len(result.Results) > 0 {
			sound := result.Results[0]
			logger.Info("Found sound", logger.Fields{"name": sound.Name, "sound_id": sound.ID})
			return &sound, nil
		}
	}
	return nil, fmt.Errorf("no results")
}

func (p *Processor) download(ctx context.Context, sound *freesound.Sound, spec *scene.SoundSpec, soundType, baseFilename, scenePath string) (*ProcessedSound, error) {
	detail, err := p.sounds.GetSoundInfo(ctx, sound.ID)
	if err != nil {
		return nil, err
	}

	ext := inferExtension(detail)
	logger.Info("Using file extension", logger.Fields{"ext": ext, "name": sound.Name})

	filename := baseFilename + "." + ext
	savePath := filepath.Join(scenePath, filename)

	logger.Info("Downloading sound", logger.Fields{"filename": filename})
	if _, err := p.sounds.DownloadSound(ctx, sound.ID, savePath); err != nil {
		return nil, err
	}

	lufs := p.analyzer.LoudnessLUFS(ctx, savePath)
	loudness := audioanalysis.LufsToNormalized(lufs)

	object := spec.Object
	if soundType == SoundTypeBackground {
		object = "Background"
	}

	return &ProcessedSound{
		Type:       soundType,
		Title:      spec.Title,
		Object:     object,
		SoundID:    sound.ID,
		SoundName:  sound.Name,
		Filename:   filename,
		Duration:   detail.Duration,
		Preview:    detail.Previews["preview-hq-mp3"],
		Loudness:   loudness,
		BaseVolume: spec.Volume,
	}, nil
}

func sanitizeName(name string) string {
	return strings.ToLower(unsafeCharRe.ReplaceAllString(name, "_"))
}

var mimeExtensions = map[string]string{
	"audio/wav":    "wav",
	"audio/x-wav":  "wav",
	"audio/wave":   "wav",
	"audio/mp3":    "mp3",
	"audio/mpeg":   "mp3",
	"audio/ogg":    "ogg",
	"audio/aiff":   "aiff",
	"audio/x-aiff": "aiff",
}

var knownExtensions = map[string]bool{
	"wav": true, "mp3": true, "ogg": true, "aiff": true, "aif": true,
}

// inferExtension picks a file extension for the download: the original
// filename's suffix when recognizable, then the MIME type, defaulting to
// mp3. A high-quality wav preview promotes the extension to wav.
func inferExtension(sound *freesound.Sound) string {
	ext := "mp3"

	if idx := strings.LastIndex(sound.Name, "."); idx >= 0 {
		candidate := strings.ToLower(sound.Name[idx+1:])
		if knownExtensions[candidate] {
			ext = candidate
		}
	} else if sound.Type != "" {
		t := strings.ToLower(sound.Type)
		if mapped, ok := mimeExtensions[t]; ok {
			ext = mapped
		} else if idx := strings.Index(t, "/"); idx >= 0 && idx+1 < len(t) {
			ext = t[idx+1:]
		} else if t != "" {
			ext = t
		}
	}

	if _, ok := sound.Previews["preview-hq-wav"]; ok {
		ext = "wav"
	}
	return ext
}
