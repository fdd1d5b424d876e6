package unity

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/roomscape/roomscape-api/internal/logger"
	"github.com/roomscape/roomscape-api/internal/scene"
)

// MappingFilename is the file the Unity client reads from StreamingAssets.
const MappingFilename = "unity_sound_mappings.json"

const (
	SoundTypeBackground  = "background"
	SoundTypeInteraction = "interaction"

	defaultBackgroundBase  = 0.3
	defaultInteractionBase = 0.7

	backgroundMinVolume  = 0.15
	interactionMinVolume = 0.3
)

// ProcessedSound is one resolved, downloaded and analyzed sound.
type ProcessedSound struct {
	Type       string
	Title      string
	Object     string
	SoundID    int
	SoundName  string
	Filename   string
	Duration   float64
	Preview    string
	Loudness   float64
	BaseVolume *float64 // volume requested by the generated scene, if any

	normalizedVolume float64
}

// SoundMapping is one entry of the file consumed by the Unity client.
type SoundMapping struct {
	Title      string  `json:"title"`
	Type       string  `json:"type"`
	ObjectName string  `json:"objectName"`
	Filename   string  `json:"filename"`
	Duration   float64 `json:"duration"`
	Loop       bool    `json:"loop"`
	Volume     float64 `json:"volume"`
	Loudness   float64 `json:"loudness"`
	MinVolume  float64 `json:"minVolume"`
}

// Mapping is the unity_sound_mappings.json document.
type Mapping struct {
	SoundMappings []SoundMapping `json:"soundMappings"`
}

// NormalizeAudioLevels evens out perceived volume across the batch. The
// average loudness acts as the reference; each sound's base volume is scaled
// by the square root of target/loudness so the correction stays conservative.
func NormalizeAudioLevels(sounds []ProcessedSound) []ProcessedSound {
	total := 0.0
	valid := 0
	for _, s := range sounds {
		if s.Loudness > 0 && !math.IsNaN(s.Loudness) {
			total += s.Loudness
			valid++
		}
	}

	target := 0.5
	if valid > 0 {
		target = total / float64(valid)
	}
	logger.Info("Target loudness for normalization", logger.Fields{"target": target})

	out := make([]ProcessedSound, len(sounds))
	copy(out, sounds)
	for i := range out {
		s := &out[i]
		if s.Loudness <= 0 || math.IsNaN(s.Loudness) {
			if s.Type == SoundTypeBackground {
				s.normalizedVolume = defaultBackgroundBase
			} else {
				s.normalizedVolume = defaultInteractionBase
			}
			continue
		}

		factor := math.Sqrt(target / s.Loudness)

		base := defaultInteractionBase
		if s.Type == SoundTypeBackground {
			base = defaultBackgroundBase
		}
		if s.BaseVolume != nil && *s.BaseVolume > 0 {
			base = *s.BaseVolume
		}

		s.normalizedVolume = math.Min(1.0, math.Max(0.2, base*factor))
		logger.Info("Normalized sound volume", logger.Fields{
			"title":      s.Title,
			"base":       base,
			"adjustment": fmt.Sprintf("%.2f", factor),
			"final":      fmt.Sprintf("%.2f", s.normalizedVolume),
		})
	}
	return out
}

// BuildMapping assembles the Unity mapping from the processed sounds,
// pulling loop flags from the generated audio scene.
func BuildMapping(sounds []ProcessedSound, audio *scene.AudioScene) *Mapping {
	normalized := NormalizeAudioLevels(sounds)

	mappings := make([]SoundMapping, 0, len(normalized))
	for _, s := range normalized {
		volume := s.normalizedVolume
		if volume == 0 {
			volume = 0.5
		}
		loop := false

		if s.Type == SoundTypeBackground {
			if audio != nil && audio.Scene != nil && audio.Scene.Background != nil {
				loop = true
				if audio.Scene.Background.Loop != nil {
					loop = *audio.Scene.Background.Loop
				}
				// Background stays quieter than interactions but never inaudible.
				volume = math.Max(backgroundMinVolume, math.Min(0.4, volume))
			}
		} else if audio != nil && audio.Scene != nil {
			for _, interaction := range audio.Scene.Interactions {
				if interaction != nil && interaction.Title == s.Title {
					if interaction.Loop != nil {
						loop = *interaction.Loop
					}
					break
				}
			}
		}

		title := s.Title
		if title == "" {
			title = "Untitled Sound"
		}
		soundType := s.Type
		if soundType == "" {
			soundType = SoundTypeInteraction
		}
		objectName := s.Object
		if objectName == "" {
			if soundType == SoundTypeBackground {
				objectName = "Background"
			} else {
				objectName = "Unknown"
			}
		}
		loudness := s.Loudness
		if loudness == 0 {
			loudness = 0.5
		}
		minVolume := interactionMinVolume
		if soundType == SoundTypeBackground {
			minVolume = backgroundMinVolume
		}

		mappings = append(mappings, SoundMapping{
			Title:      title,
			Type:       soundType,
			ObjectName: objectName,
			Filename:   s.Filename,
			Duration:   s.Duration,
			Loop:       loop,
			Volume:     math.Round(volume*100) / 100,
			Loudness:   loudness,
			MinVolume:  minVolume,
		})
	}

	return &Mapping{SoundMappings: mappings}
}

// WriteMapping persists the mapping into the StreamingAssets directory,
// overwriting any previous run's file.
func WriteMapping(streamingAssetsDir string, mapping *Mapping) (string, error) {
	data, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(streamingAssetsDir, MappingFilename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write sound mappings: %w", err)
	}
	logger.Info("Saved sound mappings to Unity StreamingAssets folder", logger.Fields{"path": path})
	return path, nil
}
