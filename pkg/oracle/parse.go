package oracle

import (
	"strings"

	"github.com/jllopis/opsagent/pkg/errors"
	"github.com/jllopis/opsagent/pkg/llm"
)

const (
	tagTool           = "<tool>"
	tagToolEnd        = "</tool>"
	tagInput          = "<tool_input>"
	tagInputEnd       = "</tool_input>"
	tagObservation    = "<observation>"
	tagObservationEnd = "</observation>"
	tagFinal          = "<final_answer>"
	tagFinalEnd       = "</final_answer>"
)

// Parse extracts a single decision from a model reply. Native tool calls
// win over text; otherwise the first of <tool> and <final_answer> decides.
// Closing tags are optional since stop sequences may cut them off.
func Parse(content string, calls []llm.ToolCall) (Action, error) {
	if len(calls) > 0 {
		call := calls[0]
		name := strings.TrimSpace(call.Function.Name)
		if name == "" {
			return Action{}, malformed("native tool call without a name", content)
		}
		return Tool(name, strings.TrimSpace(call.Function.Arguments)), nil
	}

	toolAt := strings.Index(content, tagTool)
	finalAt := strings.Index(content, tagFinal)
	switch {
	case toolAt < 0 && finalAt < 0:
		return Action{}, malformed("response contains neither a tool call nor a final answer", content)
	case finalAt >= 0 && (toolAt < 0 || finalAt < toolAt):
		return Final(finalText(content[finalAt+len(tagFinal):])), nil
	}

	rest := content[toolAt+len(tagTool):]
	end := strings.Index(rest, tagToolEnd)
	if end < 0 {
		return Action{}, malformed("tool tag is not closed", content)
	}
	name := strings.TrimSpace(rest[:end])
	if name == "" {
		return Action{}, malformed("tool tag is empty", content)
	}
	rest = rest[end+len(tagToolEnd):]

	input := ""
	if at := strings.Index(rest, tagInput); at >= 0 {
		input = cutAt(rest[at+len(tagInput):], tagInputEnd, tagObservation)
	}
	return Tool(name, strings.TrimSpace(input)), nil
}

// finalText keeps the answer verbatim apart from the line breaks that
// surround the tags.
func finalText(s string) string {
	if end := strings.Index(s, tagFinalEnd); end >= 0 {
		s = s[:end]
	}
	return strings.Trim(s, "\r\n")
}

// cutAt returns s up to the earliest of the given markers.
func cutAt(s string, markers ...string) string {
	end := len(s)
	for _, m := range markers {
		if i := strings.Index(s, m); i >= 0 && i < end {
			end = i
		}
	}
	return s[:end]
}

func malformed(msg, content string) error {
	return errors.New(errors.CodeMalformedResponse, msg, nil).
		WithContext("response", content)
}
