package embedded

import (
	_ "embed"
)

// Default prompt documents, used when no override file exists in the
// configured prompts directory.
//
//go:embed data/prompts/room_prompt.md
var RoomPromptMd []byte

//go:embed data/prompts/audio_prompt.md
var AudioPromptMd []byte
