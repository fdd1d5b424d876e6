// Package scene holds the generated room and audio scene models plus the
// repair and validation rules applied to model output before it is persisted
// for the Unity client.
package scene

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roomscape/roomscape-api/internal/logger"
)

// Vec3 is a Unity-style coordinate triple.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ShapeSpec describes one primitive the Unity renderer instantiates.
type ShapeSpec struct {
	Name     string `json:"name"`
	Shape    string `json:"shape"` // cube, sphere, cylinder, capsule
	Position Vec3   `json:"position"`
	Rotation Vec3   `json:"rotation"`
	Size     Vec3   `json:"size"`
	Color    string `json:"color"`
}

// Environment is the room shell (walls, floor) plus its display name.
type Environment struct {
	Name   string      `json:"name"`
	Shapes []ShapeSpec `json:"shapes"`
}

// RoomScene is the layout the room generation stage produces.
type RoomScene struct {
	Environment Environment `json:"environment"`
	Objects     []ShapeSpec `json:"objects"`
}

// RepairRoom migrates the legacy singular "object" key to "objects". Models
// occasionally emit the old key; Unity only reads "objects". No other repair
// happens here - missing shapes or positions are tolerated by the renderer.
func RepairRoom(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	if legacy, ok := doc["object"]; ok {
		if _, hasObjects := doc["objects"]; !hasObjects {
			logger.Info("room repair: renaming legacy \"object\" key to \"objects\"", nil)
			doc["objects"] = legacy
		}
		delete(doc, "object")
	}
	return doc
}

// DecodeRoom parses persisted room JSON, applying the legacy-key migration.
func DecodeRoom(data []byte) (*RoomScene, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid room JSON: %w", err)
	}
	repaired, err := json.Marshal(RepairRoom(doc))
	if err != nil {
		return nil, err
	}

	var room RoomScene
	if err := json.Unmarshal(repaired, &room); err != nil {
		return nil, fmt.Errorf("invalid room JSON: %w", err)
	}
	return &room, nil
}

// Profession derives the occupant label from the room naming convention
// ("<Profession>'s Bedroom").
func (r *RoomScene) Profession() string {
	name := strings.TrimSpace(r.Environment.Name)
	if name == "" {
		return "Unknown"
	}
	return strings.TrimSuffix(name, "'s Bedroom")
}

// ObjectNames returns the lower-cased names of every placed object, used for
// cross-reference validation of the audio scene.
func (r *RoomScene) ObjectNames() []string {
	names := make([]string, 0, len(r.Objects))
	for _, obj := range r.Objects {
		names = append(names, strings.ToLower(obj.Name))
	}
	return names
}
