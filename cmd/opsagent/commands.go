package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/sourcegraph/conc/pool"

	"github.com/jllopis/opsagent/pkg/audit"
	"github.com/jllopis/opsagent/pkg/core"
	"github.com/jllopis/opsagent/pkg/errors"
	"github.com/jllopis/opsagent/pkg/mcp"
	"github.com/jllopis/opsagent/pkg/memory"
	"github.com/jllopis/opsagent/pkg/telemetry"
)

// composeInstruction joins the words and appends the target instance the
// way the interactive front end does.
func composeInstruction(words []string, instance string) string {
	instruction := strings.TrimSpace(strings.Join(words, " "))
	if id := strings.TrimSpace(instance); id != "" {
		instruction += " for EC2 instance " + id
	}
	return instruction
}

// Run resolves one instruction.
func (c *AskCmd) Run(g *globals) error {
	instruction := composeInstruction(c.Instruction, c.Instance)
	if instruction == "" {
		return errors.New(errors.CodeInvalidInput, "instruction is empty", nil)
	}
	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()
	ag, err := a.Agent(g.ctx)
	if err != nil {
		return err
	}

	outcome, pad := ag.ResolveWithTranscript(g.ctx, instruction, nil)
	ans := newAnswer(instruction, outcome, pad, c.Verbose)
	if g.cli.Output != "text" {
		if err := writeStructured(g.stdout, g.cli.Output, ans); err != nil {
			return err
		}
	} else {
		writeAnswer(g.stdout, ans)
	}
	if !outcome.IsFinal() {
		return errAborted
	}
	return nil
}

// Run reads instructions until EOF, "exit" or "quit". History is kept for
// the session only.
func (c *ChatCmd) Run(g *globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()
	ag, err := a.Agent(g.ctx)
	if err != nil {
		return err
	}

	conv := memory.NewInMemoryConversation(memory.WindowStrategy{MaxTurns: a.cfg.Memory.MaxTurns})
	session := memory.NewSession(conv, ag)
	a.logger.Info("chat.session.started", "session_id", session.ID)

	scanner := bufio.NewScanner(g.stdin)
	for {
		fmt.Fprint(g.stderr, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		outcome, err := session.Ask(g.ctx, line)
		if err != nil {
			return err
		}
		writeAnswer(g.stdout, newAnswer(line, outcome, nil, false))
		if g.ctx.Err() != nil {
			return nil
		}
	}
	return scanner.Err()
}

// Run resolves every non-empty line of the file on a bounded pool. Results
// are printed in input order.
func (c *BatchCmd) Run(g *globals) error {
	instructions, err := readInstructions(g.stdin, c.File)
	if err != nil {
		return err
	}
	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()
	ag, err := a.Agent(g.ctx)
	if err != nil {
		return err
	}

	limit := c.Concurrency
	if limit < 1 {
		limit = 1
	}
	answers := make([]answer, len(instructions))
	p := pool.New().WithMaxGoroutines(limit)
	for i, instruction := range instructions {
		p.Go(func() {
			outcome, pad := ag.ResolveWithTranscript(g.ctx, instruction, nil)
			answers[i] = newAnswer(instruction, outcome, pad, false)
		})
	}
	p.Wait()

	aborted := false
	for _, ans := range answers {
		if ans.Kind != string(core.OutcomeFinalAnswer) {
			aborted = true
		}
	}
	if g.cli.Output != "text" {
		if err := writeStructured(g.stdout, g.cli.Output, answers); err != nil {
			return err
		}
	} else {
		for i, ans := range answers {
			if i > 0 {
				fmt.Fprintln(g.stdout)
			}
			fmt.Fprintf(g.stdout, "== %d: %s ==\n", i+1, ans.Instruction)
			writeAnswer(g.stdout, ans)
		}
	}
	if aborted {
		return errAborted
	}
	return nil
}

func readInstructions(stdin io.Reader, path string) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "open instruction file", err).WithContext("path", path)
		}
		defer f.Close()
		r = f
	}
	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type toolInfo struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Schema      string `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// Run lists the registered tools in prompt order.
func (c *ToolsCmd) Run(g *globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()
	registry, err := a.Registry(g.ctx)
	if err != nil {
		return err
	}

	var infos []toolInfo
	for _, spec := range registry.List() {
		info := toolInfo{Name: spec.Name, Description: spec.Description}
		if c.Schema {
			info.Schema = string(spec.InputSchema)
		}
		infos = append(infos, info)
	}
	if g.cli.Output != "text" {
		return writeStructured(g.stdout, g.cli.Output, infos)
	}
	for _, info := range infos {
		fmt.Fprintf(g.stdout, "%s: %s\n", info.Name, info.Description)
		if info.Schema != "" {
			fmt.Fprintf(g.stdout, "  schema: %s\n", info.Schema)
		}
	}
	return nil
}

type checkResult struct {
	Tool    string `json:"tool" yaml:"tool"`
	Input   string `json:"input" yaml:"input"`
	Allowed bool   `json:"allowed" yaml:"allowed"`
	RuleID  string `json:"rule_id,omitempty" yaml:"rule_id,omitempty"`
	Reason  string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Run evaluates the safety gate for one input. Nothing is executed.
func (c *CheckCmd) Run(g *globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()
	gate, err := a.Gate()
	if err != nil {
		return err
	}

	d := gate.Check(g.ctx, core.ToolCall{ToolName: c.Tool, RawInput: c.Input})
	res := checkResult{Tool: c.Tool, Input: c.Input, Allowed: d.IsAllowed(), RuleID: d.RuleID, Reason: d.Reason}
	if g.cli.Output != "text" {
		return writeStructured(g.stdout, g.cli.Output, res)
	}
	if res.Allowed {
		fmt.Fprintln(g.stdout, "allowed")
		return nil
	}
	fmt.Fprintf(g.stdout, "denied (%s): %s\n", res.RuleID, res.Reason)
	return nil
}

// Run prints audit events, oldest first.
func (c *AuditCmd) Run(g *globals) error {
	filter, err := c.filter()
	if err != nil {
		return err
	}
	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()
	store, err := a.AuditStore()
	if err != nil {
		return err
	}

	events, err := store.List(g.ctx, filter)
	if err != nil {
		return err
	}
	if g.cli.Output != "text" {
		return writeStructured(g.stdout, g.cli.Output, events)
	}
	tw := tabwriter.NewWriter(g.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tRUN\tSTEP\tKIND\tTOOL\tSTATUS\tCODE")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			ev.At.Format("2006-01-02T15:04:05Z07:00"), ev.RunID, ev.Step, ev.Kind, ev.Tool, ev.Status, ev.Code)
	}
	return tw.Flush()
}

func (c *AuditCmd) filter() (audit.Filter, error) {
	kind := audit.Kind(strings.ToLower(c.Kind))
	switch kind {
	case "", audit.KindStep, audit.KindOutcome:
	default:
		return audit.Filter{}, errors.New(errors.CodeInvalidInput, "kind must be step or outcome", nil).
			WithContext("kind", c.Kind)
	}
	return audit.Filter{RunID: c.RunID, Kind: kind, Tool: c.Tool, Status: c.Status, Limit: c.Limit}, nil
}

// Run serves MCP on stdio. Logs stay on stderr.
func (c *MCPCmd) Run(g *globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()
	registry, err := a.Registry(g.ctx)
	if err != nil {
		return err
	}
	gate, err := a.Gate()
	if err != nil {
		return err
	}
	exec, err := a.Executor(g.ctx)
	if err != nil {
		return err
	}

	logger := telemetry.NewLogger(g.stderr, a.cfg.Log.Level, a.cfg.Log.Format)
	server := mcp.NewServer(a.cfg.MCP.ServerName, version, registry, gate, exec, logger)
	logger.Info("mcp.server.started", "name", a.cfg.MCP.ServerName, "tools", len(registry.List()))
	return server.ServeStdio()
}
