package inference

import (
	"bufio"
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
)

// SchemaFor renders the JSON Schema of v's type for inclusion in a prompt.
func SchemaFor(v any) string {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	b, err := json.MarshalIndent(reflector.Reflect(v), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ExtractJSONObject pulls the first JSON object out of a model reply, tolerating
// code fences and surrounding prose.
func ExtractJSONObject(reply string) (map[string]any, bool) {
	text := strings.TrimSpace(reply)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, false
	}
	return out, true
}

// parseLabelled collects "LABEL: value" lines keyed by lower-cased label.
// Lines without a known label continue the previous value.
func parseLabelled(reply string, labels []string) map[string][]string {
	known := make(map[string]string, len(labels))
	for _, l := range labels {
		known[strings.ToUpper(l)] = strings.ToLower(l)
	}

	out := make(map[string][]string)
	current := ""
	scanner := bufio.NewScanner(strings.NewReader(reply))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimLeft(line, "-*• ")
		if line == "" {
			continue
		}

		if idx := strings.Index(line, ":"); idx > 0 {
			label := strings.ToUpper(strings.Trim(line[:idx], "*# "))
			if key, ok := known[label]; ok {
				current = key
				if value := strings.TrimSpace(line[idx+1:]); value != "" {
					out[key] = append(out[key], value)
				}
				continue
			}
		}

		if current != "" {
			vals := out[current]
			if len(vals) == 0 {
				out[current] = []string{line}
			} else {
				vals[len(vals)-1] += " " + line
			}
		}
	}
	return out
}
