package prompt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roomscape/roomscape-api/internal/logger"
	"github.com/roomscape/roomscape-api/internal/scene"
)

// Builder composes the final prompts sent to the language model.
type Builder struct{}

func NewPromptBuilder() *Builder {
	return &Builder{}
}

// BuildAudioPrompt appends a room context block to the base audio prompt:
// the profession label, the available objects with shape and color, an
// instruction to only reference listed objects, and the minified room JSON.
func (b *Builder) BuildAudioPrompt(base string, room *scene.RoomScene) string {
	if room == nil {
		return base
	}

	profession := room.Profession()

	var objects strings.Builder
	for i, obj := range room.Objects {
		if i > 0 {
			objects.WriteString("\n- ")
		}
		objects.WriteString(fmt.Sprintf("%s (%s, %s)", obj.Name, obj.Shape, obj.Color))
	}

	minified, err := json.Marshal(room)
	if err != nil {
		logger.Warn("Could not marshal room data for prompt context", logger.Fields{
			"error": err.Error(),
		})
		return base
	}

	prompt := base +
		"\n\n### ROOM DATA CONTEXT ###\n\n" +
		fmt.Sprintf("Profession: %s\n\n", profession) +
		fmt.Sprintf("Available Objects:\n- %s\n\n", objects.String()) +
		"IMPORTANT: You MUST select objects that actually exist in the list above. " +
		"Do not invent objects that aren't in the room. Match the exact object names from the list.\n\n" +
		fmt.Sprintf("The bedroom was generated for a %s. Create an audio scene that fits this profession "+
			"and utilizes the actual objects present in their bedroom.\n\n", profession) +
		fmt.Sprintf("Complete room data for reference (use only if needed):\n%s", string(minified))

	logger.Info("Enhanced audio prompt with room context", logger.Fields{
		"profession": profession,
		"objects":    len(room.Objects),
	})

	return prompt
}

// DumpEnhancedPrompt writes the composed prompt next to the other response
// artifacts. Best effort, failures are logged and ignored.
func (b *Builder) DumpEnhancedPrompt(responsesDir, prompt string) {
	if responsesDir == "" {
		return
	}
	path := filepath.Join(responsesDir, "audio_prompt_enhanced.txt")
	if err := os.WriteFile(path, []byte(prompt), 0o644); err != nil {
		logger.Warn("Could not save enhanced prompt", logger.Fields{
			"path":  path,
			"error": err.Error(),
		})
		return
	}
	logger.Info("Enhanced prompt saved", logger.Fields{"path": path})
}
