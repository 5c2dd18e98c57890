package analysts

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// fencePattern matches a response wrapped in a single markdown code fence,
// with or without a json/yaml language tag.
var fencePattern = regexp.MustCompile(`(?s)^\s*` + "```" + `(?:json|JSON|yaml|YAML)?\s*\n?(.*?)\n?\s*` + "```" + `\s*$`)

// cleanMarkdownFences strips markdown code fences that LLMs add around JSON
// output despite instructions not to.
func cleanMarkdownFences(s string) string {
	s = strings.TrimSpace(s)

	if matches := fencePattern.FindStringSubmatch(s); len(matches) > 1 {
		s = matches[1]
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```yaml")
	s = strings.TrimPrefix(s, "```YAML")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	return strings.TrimSpace(s)
}

// decodeAnalystResponse parses an LLM text response into a payload map.
// Handles fenced output, leading prose before the JSON object, and
// models that answer in YAML despite being asked for JSON.
func decodeAnalystResponse(response string) (map[string]interface{}, error) {
	cleaned := cleanMarkdownFences(response)
	if cleaned == "" {
		return nil, fmt.Errorf("empty response")
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &payload); err == nil {
		return payload, nil
	}

	// Some models preface the JSON with commentary; retry from the first
	// opening brace to the last closing brace.
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		var payload map[string]interface{}
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &payload); err == nil {
			return payload, nil
		}
	}

	// Claude in particular falls back to YAML when the prompt mentions
	// field names. YAML is a superset of JSON so this also catches JSON
	// with trailing commas or unquoted keys.
	var yamlPayload map[string]interface{}
	if err := yaml.Unmarshal([]byte(cleaned), &yamlPayload); err == nil && len(yamlPayload) > 0 {
		return yamlPayload, nil
	}

	return nil, fmt.Errorf("response is not valid JSON or YAML")
}
