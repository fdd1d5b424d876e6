package scene

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// MinInteractions is the smallest audio scene the Unity client can do
	// anything useful with.
	MinInteractions = 3

	defaultInteractionVolume = 0.5
	defaultInteractionQuery  = "general object sound"

	defaultBackgroundTitle    = "Room Ambience"
	defaultBackgroundQuery    = "quiet room ambience"
	defaultBackgroundDuration = 30
	defaultBackgroundVolume   = 0.2
)

// SoundSpec describes one sound the model asked for, either the looping
// background ambience or a short per-object interaction effect.
type SoundSpec struct {
	Title          string   `json:"title"`
	Object         string   `json:"object,omitempty"`
	FreesoundQuery string   `json:"freesound_query"`
	Tags           []string `json:"tags,omitempty"`
	Duration       float64  `json:"duration,omitempty"`
	Volume         *float64 `json:"volume,omitempty"`
	Loop           *bool    `json:"loop,omitempty"`
}

// SceneSpec groups the background ambience with the interaction effects.
type SceneSpec struct {
	Background   *SoundSpec   `json:"background"`
	Interactions []*SoundSpec `json:"interactions"`
}

// AudioScene is the audio generation stage output.
type AudioScene struct {
	Scene *SceneSpec `json:"scene"`
}

// DecodeAudio unmarshals an audio scene document.
func DecodeAudio(data []byte) (*AudioScene, error) {
	var audio AudioScene
	if err := json.Unmarshal(data, &audio); err != nil {
		return nil, err
	}
	return &audio, nil
}

// ValidationError reports a domain invariant violation. The audio flow treats
// it as a signal to regenerate, not to resend the same request.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid audio scene: " + e.Reason
}

// ValidateAudio rejects audio scenes a repair pass cannot save: a missing
// scene, fewer than MinInteractions interactions, a background without a
// title, or interactions missing their identifying fields.
func ValidateAudio(audio *AudioScene) error {
	if audio == nil || audio.Scene == nil {
		return &ValidationError{Reason: "missing scene property"}
	}

	scene := audio.Scene
	if len(scene.Interactions) < MinInteractions {
		return &ValidationError{
			Reason: fmt.Sprintf("insufficient interactions (at least %d required)", MinInteractions),
		}
	}

	if scene.Background == nil || scene.Background.Title == "" {
		return &ValidationError{Reason: "missing background sound configuration"}
	}

	incomplete := 0
	for _, interaction := range scene.Interactions {
		if interaction == nil || interaction.Title == "" || interaction.Object == "" || interaction.FreesoundQuery == "" {
			incomplete++
		}
	}
	if incomplete > 0 {
		return &ValidationError{
			Reason: fmt.Sprintf("%d interactions are missing required properties", incomplete),
		}
	}

	return nil
}

// SanitizeAudio fills remaining optional fields with fixed defaults after the
// scene has passed validation, so downstream stages never see nils.
func SanitizeAudio(audio *AudioScene) *AudioScene {
	if audio == nil {
		audio = &AudioScene{}
	}
	if audio.Scene == nil {
		audio.Scene = &SceneSpec{}
	}
	scene := audio.Scene

	for i, interaction := range scene.Interactions {
		if interaction == nil {
			interaction = &SoundSpec{}
			scene.Interactions[i] = interaction
		}
		if interaction.Title == "" {
			interaction.Title = fmt.Sprintf("Interaction %d", i+1)
		}
		if interaction.Object == "" {
			interaction.Object = "Unknown"
		}
		if interaction.FreesoundQuery == "" {
			interaction.FreesoundQuery = defaultInteractionQuery
		}
		if interaction.Volume == nil {
			v := defaultInteractionVolume
			interaction.Volume = &v
		}
	}

	if scene.Background == nil {
		scene.Background = &SoundSpec{}
	}
	bg := scene.Background
	if bg.Title == "" {
		bg.Title = defaultBackgroundTitle
	}
	if bg.FreesoundQuery == "" {
		bg.FreesoundQuery = defaultBackgroundQuery
	}
	if len(bg.Tags) == 0 {
		bg.Tags = []string{"indoors"}
	}
	if bg.Duration == 0 {
		bg.Duration = defaultBackgroundDuration
	}
	if bg.Loop == nil {
		loop := true
		bg.Loop = &loop
	}
	if bg.Volume == nil {
		v := defaultBackgroundVolume
		bg.Volume = &v
	}

	return audio
}

// InvalidObjectReferences returns every interaction object name that does not
// match a placed room object, compared case-insensitively. The caller decides
// whether the count crosses the regeneration threshold.
func InvalidObjectReferences(audio *AudioScene, room *RoomScene) []string {
	if audio == nil || audio.Scene == nil {
		return []string{"invalid audio data structure"}
	}

	valid := make(map[string]bool)
	for _, name := range room.ObjectNames() {
		valid[name] = true
	}

	var invalid []string
	for _, interaction := range audio.Scene.Interactions {
		if interaction == nil || interaction.Object == "" {
			continue
		}
		name := strings.ToLower(interaction.Object)
		if !valid[name] {
			invalid = append(invalid, name)
		}
	}
	return invalid
}
