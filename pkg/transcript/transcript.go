// Package transcript renders outcomes for people. It never changes tool
// output: line breaks are normalized but no line is merged, dropped or
// trimmed.
package transcript

import (
	"fmt"
	"strings"

	"github.com/jllopis/opsagent/pkg/core"
	"github.com/jllopis/opsagent/pkg/errors"
)

// Display is a rendered outcome, one entry per display line.
type Display struct {
	Lines []string
	// Aborted is set when the outcome was not a final answer.
	Aborted bool
}

// String joins the lines with "\n".
func (d Display) String() string {
	return strings.Join(d.Lines, "\n")
}

// Render formats an outcome. A final answer keeps every line of its text,
// blank ones included. An abort becomes a single line.
func Render(outcome core.Outcome, _ core.Scratchpad) Display {
	if !outcome.IsFinal() {
		return Display{Lines: []string{abortLine(outcome)}, Aborted: true}
	}
	return Display{Lines: SplitLines(outcome.Text)}
}

// SplitLines normalizes CRLF and lone CR to LF and splits on LF. A single
// trailing newline does not produce an extra empty line.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

func abortLine(outcome core.Outcome) string {
	// The reason may quote model output; keep the line single.
	reason := strings.Join(strings.Fields(outcome.Reason), " ")
	switch outcome.Code {
	case errors.CodeStepBudget:
		return "Stopped: the request needed too many steps to resolve."
	case errors.CodeMalformedResponse:
		return "Stopped: the assistant kept replying in an unexpected format."
	case errors.CodeOracleUnavailable:
		return "Stopped: the assistant is unavailable right now, please try again later."
	case errors.CodeCanceled:
		return "Stopped: the request was canceled."
	case errors.CodeUnknownTool:
		return fmt.Sprintf("Stopped: %s.", reason)
	}
	if reason == "" {
		return "Stopped."
	}
	return fmt.Sprintf("Stopped: %s.", reason)
}

// RenderSteps lists each step of a scratchpad as a header line followed by
// the observation lines, indented.
func RenderSteps(pad core.Scratchpad) []string {
	var lines []string
	for i, step := range pad {
		lines = append(lines, fmt.Sprintf("[%d] %s %s -> %s", i+1, step.Call.ToolName, step.Call.RawInput, status(step.Observation)))
		for _, line := range SplitLines(step.Observation.Text()) {
			lines = append(lines, "    "+line)
		}
	}
	return lines
}

func status(obs core.Observation) string {
	if obs.OK() {
		return string(core.StatusOK)
	}
	if obs.Code != "" {
		return string(obs.Code)
	}
	return string(core.StatusFailed)
}
