package oracle

import (
	"bytes"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/jllopis/opsagent/pkg/core"
)

const promptText = `You are an operations assistant for cloud infrastructure. Help the user get information or run commands. Do not add information to the user input.

You have access to the following tools:

{{range .Tools}}{{.Name}}: {{.Description}}
{{- with schema .}}
  input schema: {{.}}{{end}}
{{end}}
In order to use a tool, use <tool></tool> and <tool_input></tool_input> tags. You will then get back a response in the form <observation></observation>.
For example:
<tool>list_instances</tool><tool_input></tool_input>

When you are done, respond with a final answer between <final_answer></final_answer>.
{{if .Rules}}
Rules:
{{range .Rules}}- {{.}}
{{end}}{{end}}{{if .Reminder}}
Your previous response could not be used: {{.Reminder}}
Respond with exactly one <tool></tool><tool_input></tool_input> pair or one <final_answer></final_answer>.
{{end}}
Begin!

Previous Conversation:
{{.History}}
Question: {{.Instruction}}
{{.Scratchpad}}`

var promptTemplate = template.Must(template.New("oracle").Funcs(template.FuncMap{
	"schema": func(spec core.ToolSpec) string {
		return compact(spec.InputSchema)
	},
}).Parse(promptText))

type promptData struct {
	Tools       []core.ToolSpec
	Rules       []string
	Reminder    string
	History     string
	Instruction string
	Scratchpad  string
}

// BuildPrompt renders the oracle prompt. Tools appear in the order given,
// which is registration order when they come from the registry.
func BuildPrompt(req Request, rules []string) (string, error) {
	var buf bytes.Buffer
	err := promptTemplate.Execute(&buf, promptData{
		Tools:       req.Tools,
		Rules:       rules,
		Reminder:    req.FormatReminder,
		History:     req.History.Render(),
		Instruction: req.Instruction,
		Scratchpad:  RenderScratchpad(req.Scratchpad),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderScratchpad writes prior steps in the same tags the model uses, so
// each observation follows the call that produced it.
func RenderScratchpad(pad core.Scratchpad) string {
	var b strings.Builder
	for _, step := range pad {
		b.WriteString(tagTool)
		b.WriteString(step.Call.ToolName)
		b.WriteString(tagToolEnd)
		b.WriteString(tagInput)
		b.WriteString(step.Call.RawInput)
		b.WriteString(tagInputEnd)
		b.WriteString(tagObservation)
		b.WriteString(step.Observation.Text())
		b.WriteString(tagObservationEnd)
		b.WriteString("\n")
	}
	return b.String()
}

func compact(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
