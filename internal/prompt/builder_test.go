package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roomscape/roomscape-api/internal/scene"
)

func testRoom() *scene.RoomScene {
	return &scene.RoomScene{
		Environment: scene.Environment{Name: "Astronomer's Bedroom"},
		Objects: []scene.ShapeSpec{
			{Name: "Telescope", Shape: "cylinder", Color: "#222222"},
			{Name: "Desk", Shape: "cube", Color: "#8B4513"},
		},
	}
}

func TestBuildAudioPromptAppendsRoomContext(t *testing.T) {
	builder := NewPromptBuilder()
	prompt := builder.BuildAudioPrompt("BASE PROMPT", testRoom())

	if !strings.HasPrefix(prompt, "BASE PROMPT") {
		t.Error("base prompt should stay at the front")
	}
	if !strings.Contains(prompt, "### ROOM DATA CONTEXT ###") {
		t.Error("missing room context header")
	}
	if !strings.Contains(prompt, "Profession: Astronomer") {
		t.Errorf("missing profession label in:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Telescope (cylinder, #222222)") {
		t.Error("missing object listing with shape and color")
	}
	if !strings.Contains(prompt, "MUST select objects that actually exist") {
		t.Error("missing only-listed-objects instruction")
	}
	if !strings.Contains(prompt, `"name":"Astronomer's Bedroom"`) {
		t.Error("missing minified room JSON reference")
	}
}

func TestBuildAudioPromptNilRoom(t *testing.T) {
	builder := NewPromptBuilder()
	if got := builder.BuildAudioPrompt("BASE", nil); got != "BASE" {
		t.Errorf("BuildAudioPrompt(nil room) = %q, want base unchanged", got)
	}
}

func TestDumpEnhancedPrompt(t *testing.T) {
	dir := t.TempDir()
	builder := NewPromptBuilder()
	builder.DumpEnhancedPrompt(dir, "composed prompt")

	data, err := os.ReadFile(filepath.Join(dir, "audio_prompt_enhanced.txt"))
	if err != nil {
		t.Fatalf("expected debug file: %v", err)
	}
	if string(data) != "composed prompt" {
		t.Errorf("debug file content = %q", data)
	}
}

func TestDumpEnhancedPromptNoDir(t *testing.T) {
	// Must be a silent no-op.
	NewPromptBuilder().DumpEnhancedPrompt("", "x")
}
