// Package modeljson extracts a JSON envelope from free-form model output.
// Models wrap JSON in code fences and surround it with commentary, so the
// pipeline is deliberately lenient up front and strict at the decode step:
// fence strip -> brace-bounded island extraction -> parse -> shape check.
package modeljson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed marks model output that could not be coerced into the
// expected prompts envelope.
var ErrMalformed = errors.New("malformed AI response")

// PromptCount is the number of viewpoint prompts a valid response carries.
const PromptCount = 3

// StripFences removes Markdown code-fence markers from raw model text.
func StripFences(raw string) string {
	raw = strings.ReplaceAll(raw, "```json", "")
	raw = strings.ReplaceAll(raw, "```JSON", "")
	raw = strings.ReplaceAll(raw, "```", "")
	return strings.TrimSpace(raw)
}

// ExtractIsland returns the substring between the first '{' and the last
// '}', discarding any leading or trailing commentary. A bare top-level
// array (first '[' to last ']') is accepted as a secondary shape.
func ExtractIsland(s string) (string, error) {
	if island, ok := bounded(s, '{', '}'); ok {
		return island, nil
	}
	if island, ok := bounded(s, '[', ']'); ok {
		return island, nil
	}
	return "", fmt.Errorf("%w: no JSON object found", ErrMalformed)
}

func bounded(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// DecodePrompts runs the full pipeline over raw model text and returns
// exactly PromptCount non-empty prompt strings.
func DecodePrompts(raw string) ([]string, error) {
	island, err := ExtractIsland(StripFences(raw))
	if err != nil {
		return nil, err
	}

	var candidates []string
	if strings.HasPrefix(island, "[") {
		if err := json.Unmarshal([]byte(island), &candidates); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	} else {
		var envelope struct {
			Prompts []string `json:"prompts"`
		}
		if err := json.Unmarshal([]byte(island), &envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		candidates = envelope.Prompts
	}

	prompts := make([]string, 0, PromptCount)
	for _, p := range candidates {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		prompts = append(prompts, p)
		if len(prompts) == PromptCount {
			break
		}
	}

	if len(prompts) < PromptCount {
		return nil, fmt.Errorf("%w: expected %d prompts, got %d", ErrMalformed, PromptCount, len(prompts))
	}
	return prompts, nil
}
