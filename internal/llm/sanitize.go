package llm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/roomscape/roomscape-api/internal/logger"
)

// MalformedResponseError means the response carried no extractable message.
type MalformedResponseError struct {
	Detail string
}

func (e *MalformedResponseError) Error() string {
	return "malformed chat response: " + e.Detail
}

// Content is the sanitizer result. Models sometimes answer with JSON and
// sometimes with prose; downstream code must handle both explicitly instead
// of guessing, so exactly one of the two fields is set.
type Content struct {
	Structured json.RawMessage
	Raw        string
}

// IsStructured reports whether the content parsed as JSON.
func (c Content) IsStructured() bool {
	return c.Structured != nil
}

var (
	leadingFence  = regexp.MustCompile(`(?i)^` + "```" + `json\s*`)
	trailingFence = regexp.MustCompile(`\s*` + "```" + `$`)
)

// StripCodeFences removes exactly one leading ```json fence and one trailing
// ``` fence. Input without fences passes through unchanged.
func StripCodeFences(s string) string {
	s = leadingFence.ReplaceAllString(s, "")
	s = trailingFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// ExtractContent pulls the first choice's message text out of a response.
func ExtractContent(resp *ChatResponse) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", &MalformedResponseError{Detail: "no choices in response"}
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", &MalformedResponseError{Detail: "message content not found"}
	}
	return content, nil
}

// Sanitize extracts the message text, strips code fences and attempts a JSON
// parse. Text that fails to parse is dumped to debugDir for postmortem and
// returned as Raw; the caller treats a raw result as unusable and retries at
// the flow level.
func Sanitize(resp *ChatResponse, debugDir string) (Content, error) {
	text, err := ExtractContent(resp)
	if err != nil {
		return Content{}, err
	}

	cleaned := StripCodeFences(text)

	if json.Valid([]byte(cleaned)) {
		return Content{Structured: json.RawMessage(cleaned)}, nil
	}

	logger.Warn("response not valid JSON", logger.Fields{
		"content_length": len(cleaned),
	})
	DumpDebug(debugDir, "debug_content", "txt", []byte(cleaned))

	return Content{Raw: cleaned}, nil
}

// DumpDebug writes a timestamped diagnostic artifact. Failures are logged and
// swallowed; debug dumps never fail a pipeline stage.
func DumpDebug(dir, prefix, ext string, data []byte) {
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("could not create debug dir", logger.Fields{"dir": dir, "error": err.Error()})
		return
	}
	name := fmt.Sprintf("%s_%d.%s", prefix, time.Now().UnixMilli(), ext)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Warn("could not write debug file", logger.Fields{"path": path, "error": err.Error()})
		return
	}
	logger.Info("wrote debug artifact", logger.Fields{"path": path})
}
