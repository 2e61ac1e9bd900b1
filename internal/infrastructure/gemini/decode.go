package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/seo401b/new-Allert/internal/domain"
)

// DecodeJSON decodes a model reply into target, tolerating markdown code fences
// and prose around the JSON value. Failures wrap domain.ErrMalformedResponse.
func DecodeJSON(reply string, target any) error {
	trimmed := strings.TrimSpace(reply)
	if trimmed == "" {
		return fmt.Errorf("%w: empty payload", domain.ErrMalformedResponse)
	}

	directErr := json.Unmarshal([]byte(trimmed), target)
	if directErr == nil {
		return nil
	}

	sanitized := sanitizeJSONPayload(trimmed)
	if sanitized == "" || sanitized == trimmed {
		return fmt.Errorf("%w: %v (payload snippet: %s)",
			domain.ErrMalformedResponse, directErr, summarizePayload(trimmed))
	}

	if err := json.Unmarshal([]byte(sanitized), target); err != nil {
		return fmt.Errorf("%w: %v (sanitized payload snippet: %s)",
			domain.ErrMalformedResponse, err, summarizePayload(sanitized))
	}
	return nil
}

// sanitizeJSONPayload strips a code fence and cuts the outermost object or array
func sanitizeJSONPayload(reply string) string {
	trimmed := strings.TrimSpace(stripCodeFence(reply))
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return trimmed
	}

	objStart := strings.Index(trimmed, "{")
	arrStart := strings.Index(trimmed, "[")
	// Whichever opens first is the outer value
	if objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		if end := strings.LastIndex(trimmed, "}"); end > objStart {
			return strings.TrimSpace(trimmed[objStart : end+1])
		}
	}
	if arrStart >= 0 {
		if end := strings.LastIndex(trimmed, "]"); end > arrStart {
			return strings.TrimSpace(trimmed[arrStart : end+1])
		}
	}
	return trimmed
}

func stripCodeFence(reply string) string {
	trimmed := strings.TrimSpace(reply)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimLeft(trimmed[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func summarizePayload(reply string) string {
	clean := strings.Join(strings.Fields(reply), " ")
	if clean == "" {
		return "<empty>"
	}
	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
