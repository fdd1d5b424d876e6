package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roomscape/roomscape-api/pkg/embedded"
)

const (
	roomPromptFile  = "RoomPrompt.md"
	audioPromptFile = "AudioPrompt.md"
)

// Loader resolves prompt documents, preferring override files in the
// configured prompts directory over the embedded defaults.
type Loader struct {
	promptsDir string
}

func NewPromptLoader(promptsDir string) *Loader {
	return &Loader{promptsDir: promptsDir}
}

// RoomPrompt loads the room generation prompt
func (l *Loader) RoomPrompt() (string, error) {
	return l.load(roomPromptFile, embedded.RoomPromptMd)
}

// AudioPrompt loads the audio scene generation prompt
func (l *Loader) AudioPrompt() (string, error) {
	return l.load(audioPromptFile, embedded.AudioPromptMd)
}

func (l *Loader) load(name string, fallback []byte) (string, error) {
	if l.promptsDir != "" {
		path := filepath.Join(l.promptsDir, name)
		data, err := os.ReadFile(path)
		if err == nil {
			text := strings.TrimSpace(string(data))
			if text == "" {
				return "", fmt.Errorf("prompt file %s is empty", path)
			}
			return text, nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to read prompt file %s: %w", path, err)
		}
	}
	return strings.TrimSpace(string(fallback)), nil
}
