package main

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/opsagent/pkg/core"
	"github.com/jllopis/opsagent/pkg/transcript"
)

// answer is the structured form of one resolved instruction.
type answer struct {
	Instruction string   `json:"instruction" yaml:"instruction"`
	Kind        string   `json:"kind" yaml:"kind"`
	Code        string   `json:"code,omitempty" yaml:"code,omitempty"`
	Lines       []string `json:"lines" yaml:"lines"`
	Steps       []string `json:"steps,omitempty" yaml:"steps,omitempty"`
}

func newAnswer(instruction string, outcome core.Outcome, pad core.Scratchpad, withSteps bool) answer {
	a := answer{
		Instruction: instruction,
		Kind:        string(outcome.Kind),
		Code:        string(outcome.Code),
		Lines:       transcript.Render(outcome, pad).Lines,
	}
	if withSteps {
		a.Steps = transcript.RenderSteps(pad)
	}
	return a
}

// writeStructured encodes v as json or yaml.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}
	return fmt.Errorf("unsupported output format %q", format)
}

func writeLines(w io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

// writeAnswer prints one answer in text form: the steps first when
// present, then the display lines.
func writeAnswer(w io.Writer, a answer) {
	if len(a.Steps) > 0 {
		writeLines(w, a.Steps)
		fmt.Fprintln(w)
	}
	writeLines(w, a.Lines)
}
