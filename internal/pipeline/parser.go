package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// cleanModelJSON strips Markdown fences and any prose around the outermost
// JSON object, for models that ignore the "raw JSON only" instruction.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers. Backticks inside an
	// unfenced reply belong to string values and are left alone.
	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
	}

	s = strings.TrimSpace(s)

	// Keep only from the first '{' to the last '}'.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}

// decodeModelObject parses cleaned model text into a generic object.
// Numbers are kept as json.Number and trailing data is rejected.
func decodeModelObject(text string) (map[string]interface{}, error) {
	if text == "" {
		return nil, &ValidationError{Path: "$", Reason: "empty response"}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()

	var parsed interface{}
	if err := dec.Decode(&parsed); err != nil {
		return nil, &ValidationError{Path: "$", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	var extra interface{}
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, &ValidationError{Path: "$", Reason: "unexpected data after JSON object"}
	}

	obj, ok := parsed.(map[string]interface{})
	if !ok {
		return nil, &ValidationError{Path: "$", Reason: fmt.Sprintf("top level is %s, want object", jsonKind(parsed))}
	}
	return obj, nil
}

func jsonKind(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
