package agent

import (
	"encoding/json"
	"strings"
)

// Parse turns raw model output into an ActionSet. It never fails: the chain
// is direct parse, then the outermost brace substring, then SafeDefault.
func Parse(raw string) ActionSet {
	if set, ok := ParseDirect(raw); ok {
		return set
	}
	if set, ok := ParseBraced(raw); ok {
		return set
	}
	return SafeDefault(raw)
}

// ParseDirect strips code fences and parses the whole trimmed text.
func ParseDirect(raw string) (ActionSet, bool) {
	return parseObject(StripFences(raw))
}

// ParseBraced parses the text between the first '{' and the last '}'.
func ParseBraced(raw string) (ActionSet, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ActionSet{}, false
	}
	return parseObject(raw[start : end+1])
}

// SafeDefault echoes the raw text as the message with no actions.
func SafeDefault(raw string) ActionSet {
	set := decodeActionSet(nil)
	set.Message = raw
	return set
}

// HasJSONMarkers reports whether the text contains any brace at all.
func HasJSONMarkers(raw string) bool {
	return strings.ContainsAny(raw, "{}")
}

// StripFences removes a surrounding ```json ... ``` block.
func StripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	if newline := strings.IndexByte(text, '\n'); newline >= 0 {
		// Drop the info string, e.g. "json".
		if info := strings.TrimSpace(text[:newline]); !strings.ContainsAny(info, "{[") {
			text = text[newline+1:]
		}
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func parseObject(text string) (ActionSet, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil || obj == nil {
		return ActionSet{}, false
	}
	return decodeActionSet(obj), true
}
