package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// DecodeJSON unmarshals the JSON object in an LLM reply into v. Markdown code
// fences and any prose around the object are ignored.
func DecodeJSON(text string, v any) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("empty response")
	}

	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		end := len(lines)
		for i := len(lines) - 1; i > 0; i-- {
			if strings.TrimSpace(lines[i]) == "```" {
				end = i
				break
			}
		}
		text = strings.Join(lines[1:end], "\n")
	}

	if start, stop := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && stop > start {
		text = text[start : stop+1]
	}
	return json.Unmarshal([]byte(text), v)
}
