package llm

import (
	"encoding/json"
	"strings"
)

// textCall is the loose shape models use when they write a tool call
// into plain text instead of the structured tool_calls field.
type textCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// parseTextToolCalls recovers tool calls that a model emitted as text.
// Accepted shapes:
//
//	<tool_call>{...}</tool_call>
//	{"name": ..., "arguments": {...}}
//	[{...}, {...}]
//	{...}{...}   (concatenated, trailing prose ignored)
//	tool_name {"arg": ...}
//	{"tool_calls": [{"function": {"name": ..., "arguments": "<json>"}}]}
//
// When validTools is non-empty, calls naming other tools are dropped.
func parseTextToolCalls(content string, validTools []string) []ToolCall {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	if start := strings.Index(content, "<tool_call>"); start != -1 {
		rest := content[start+len("<tool_call>"):]
		if end := strings.Index(rest, "</tool_call>"); end != -1 {
			rest = rest[:end]
		}
		content = strings.TrimSpace(rest)
	}

	valid := func(name string) bool {
		if name == "" {
			return false
		}
		if len(validTools) == 0 {
			return true
		}
		for _, v := range validTools {
			if v == name {
				return true
			}
		}
		return false
	}

	var raw []textCall
	switch {
	case strings.HasPrefix(content, "["):
		_ = json.Unmarshal([]byte(content), &raw)
	case strings.HasPrefix(content, `{"tool_calls"`):
		raw = parseOpenAIToolCalls(content)
	case strings.HasPrefix(content, "{"):
		raw = decodeConcatenated(content)
	default:
		// tool_name {json}
		if i := strings.Index(content, " {"); i > 0 && !strings.ContainsAny(content[:i], " \n\t") {
			objs := decodeConcatenated(strings.TrimSpace(content[i:]))
			if len(objs) > 0 && objs[0].Name == "" {
				raw = []textCall{{Name: content[:i], Arguments: objs[0].Arguments}}
			}
		}
	}

	var result []ToolCall
	for _, c := range raw {
		if !valid(c.Name) {
			continue
		}
		if c.Arguments == nil {
			c.Arguments = map[string]any{}
		}
		result = append(result, NewToolCall("", c.Name, c.Arguments))
	}
	return result
}

// decodeConcatenated reads successive JSON objects until the input stops
// parsing. Objects without a name are returned with only Arguments set
// when they are bare argument maps.
func decodeConcatenated(s string) []textCall {
	dec := json.NewDecoder(strings.NewReader(s))
	var out []textCall
	for dec.More() {
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			break
		}
		name, _ := obj["name"].(string)
		if name == "" {
			if _, hasArgs := obj["arguments"]; !hasArgs && len(out) == 0 {
				out = append(out, textCall{Arguments: obj})
			}
			break
		}
		args, _ := obj["arguments"].(map[string]any)
		out = append(out, textCall{Name: name, Arguments: args})
	}
	return out
}

// parseOpenAIToolCalls handles the OpenAI wire shape, where arguments
// arrive as a JSON-encoded string.
func parseOpenAIToolCalls(s string) []textCall {
	var wire struct {
		ToolCalls []struct {
			Function struct {
				Name      string `json:"name"`
				Arguments any    `json:"arguments"`
			} `json:"function"`
		} `json:"tool_calls"`
	}
	if err := json.NewDecoder(strings.NewReader(s)).Decode(&wire); err != nil {
		return nil
	}
	out := make([]textCall, 0, len(wire.ToolCalls))
	for _, tc := range wire.ToolCalls {
		var args map[string]any
		switch a := tc.Function.Arguments.(type) {
		case string:
			_ = json.Unmarshal([]byte(a), &args)
		case map[string]any:
			args = a
		}
		out = append(out, textCall{Name: tc.Function.Name, Arguments: args})
	}
	return out
}

// extractToolNames returns the function names from OpenAI-format tool
// definitions, skipping malformed entries.
func extractToolNames(tools []map[string]any) []string {
	var names []string
	for _, t := range tools {
		fn, ok := t["function"].(map[string]any)
		if !ok {
			continue
		}
		if name, _ := fn["name"].(string); name != "" {
			names = append(names, name)
		}
	}
	return names
}
