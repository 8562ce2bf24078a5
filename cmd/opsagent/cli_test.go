package main

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/jllopis/opsagent/pkg/audit"
	"github.com/jllopis/opsagent/pkg/config"
	"github.com/jllopis/opsagent/pkg/core"
	"github.com/jllopis/opsagent/pkg/errors"
	"github.com/jllopis/opsagent/pkg/llm"
)

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kongVars())
	if err != nil {
		t.Fatal(err)
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	return &cli, kctx
}

func TestAskCmd_Flags(t *testing.T) {
	cli, kctx := parse(t, "ask", "--instance", "i-123", "show", "the", "top", "processes")
	if !strings.HasPrefix(kctx.Command(), "ask") {
		t.Fatalf("unexpected command %q", kctx.Command())
	}
	got := composeInstruction(cli.Ask.Instruction, cli.Ask.Instance)
	if got != "show the top processes for EC2 instance i-123" {
		t.Fatalf("unexpected instruction %q", got)
	}
	if cli.Output != "text" {
		t.Fatalf("expected default text output, got %q", cli.Output)
	}
}

func TestGlobalFlags(t *testing.T) {
	cli, _ := parse(t, "-o", "yaml", "--set", "agent.max_steps=5", "--set", "llm.provider=mock", "tools")
	if cli.Output != "yaml" {
		t.Fatalf("expected yaml, got %q", cli.Output)
	}
	if strings.Join(cli.Set, ",") != "agent.max_steps=5,llm.provider=mock" {
		t.Fatalf("unexpected overrides %v", cli.Set)
	}
}

func TestBatchCmd_Defaults(t *testing.T) {
	cli, _ := parse(t, "batch", "-")
	if cli.Batch.File != "-" || cli.Batch.Concurrency != 4 {
		t.Fatalf("unexpected batch flags %+v", cli.Batch)
	}
}

func TestOutputEnum(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli, kongVars())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := parser.Parse([]string{"-o", "xml", "version"}); err == nil {
		t.Fatal("expected error for unknown output format")
	}
}

func TestComposeInstruction(t *testing.T) {
	tests := []struct {
		words    []string
		instance string
		want     string
	}{
		{words: []string{"list", "instances"}, want: "list instances"},
		{words: []string{"uptime"}, instance: " i-9 ", want: "uptime for EC2 instance i-9"},
		{words: nil, want: ""},
	}
	for _, tt := range tests {
		if got := composeInstruction(tt.words, tt.instance); got != tt.want {
			t.Errorf("composeInstruction(%v, %q) = %q, want %q", tt.words, tt.instance, got, tt.want)
		}
	}
}

func TestReadInstructions(t *testing.T) {
	in := strings.NewReader("uptime on i-1\n\n# comment\n  list instances  \n")
	got, err := readInstructions(in, "-")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, "|") != "uptime on i-1|list instances" {
		t.Fatalf("unexpected instructions %q", got)
	}

	path := filepath.Join(t.TempDir(), "batch.txt")
	if err := os.WriteFile(path, []byte("a\nb\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err = readInstructions(nil, path)
	if err != nil || len(got) != 2 {
		t.Fatalf("unexpected result %q, %v", got, err)
	}

	if _, err := readInstructions(nil, filepath.Join(t.TempDir(), "missing")); !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestBuildProvider(t *testing.T) {
	noAWS := func() (aws.Config, error) {
		t.Fatal("aws config must not be loaded")
		return aws.Config{}, nil
	}

	p, err := buildProvider(config.LLMConfig{Provider: "Ollama"}, noAWS)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*llm.OllamaProvider); !ok {
		t.Fatalf("expected ollama provider, got %T", p)
	}

	p, err = buildProvider(config.LLMConfig{Provider: "mock", MockResponses: []string{"<final_answer>hi</final_answer>"}}, noAWS)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := p.Chat(context.Background(), llm.ChatRequest{})
	if err != nil || resp.Content != "<final_answer>hi</final_answer>" {
		t.Fatalf("unexpected mock reply %+v, %v", resp, err)
	}

	boom := stderrors.New("no credentials")
	if _, err := buildProvider(config.LLMConfig{Provider: "bedrock"}, func() (aws.Config, error) { return aws.Config{}, boom }); !stderrors.Is(err, boom) {
		t.Fatalf("expected aws error, got %v", err)
	}

	if _, err := buildProvider(config.LLMConfig{Provider: "openai"}, noAWS); !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestWriteStructured(t *testing.T) {
	ans := newAnswer("uptime", core.FinalAnswer("up 1 day\n"), nil, false)

	var buf bytes.Buffer
	if err := writeStructured(&buf, "yaml", ans); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "kind: final_answer") || !strings.Contains(buf.String(), "- up 1 day") {
		t.Fatalf("unexpected yaml:\n%s", buf.String())
	}

	buf.Reset()
	if err := writeStructured(&buf, "json", ans); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"lines": [`) {
		t.Fatalf("unexpected json:\n%s", buf.String())
	}

	if err := writeStructured(&buf, "xml", ans); err == nil {
		t.Fatal("expected error for xml")
	}
}

func TestWriteAnswerAborted(t *testing.T) {
	var buf bytes.Buffer
	writeAnswer(&buf, newAnswer("x", core.Aborted(errors.CodeStepBudget, "step budget exceeded"), nil, false))
	if strings.Count(buf.String(), "\n") != 1 || !strings.HasPrefix(buf.String(), "Stopped:") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func testGlobals(t *testing.T, args ...string) (*globals, *bytes.Buffer) {
	t.Helper()
	cli, _ := parse(t, args...)
	var out bytes.Buffer
	return &globals{ctx: context.Background(), cli: cli, stdin: strings.NewReader(""), stdout: &out, stderr: &bytes.Buffer{}}, &out
}

func TestCheckCmd(t *testing.T) {
	g, out := testGlobals(t, "--set", "telemetry.exporter=none", "check", "rm -rf /")
	if err := g.cli.Check.Run(g); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "denied (denylist): ") {
		t.Fatalf("unexpected output %q", out.String())
	}

	g, out = testGlobals(t, "--set", "telemetry.exporter=none", "-o", "json", "check", "--tool", "execute_cli", "aws ec2 describe-instances")
	if err := g.cli.Check.Run(g); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `"allowed": true`) {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestAuditCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	store, closeFn, err := audit.Open(config.AuditConfig{Backend: "sqlite", Path: path})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, ev := range []audit.Event{
		{RunID: "run-1", Step: 1, Kind: audit.KindStep, Tool: "list_instances", Status: "ok"},
		{RunID: "run-1", Step: 1, Kind: audit.KindOutcome, Status: "final_answer"},
		{RunID: "run-2", Step: 0, Kind: audit.KindOutcome, Status: "aborted", Code: "STEP_BUDGET"},
	} {
		if err := store.Record(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}
	if err := closeFn(); err != nil {
		t.Fatal(err)
	}

	g, out := testGlobals(t,
		"--set", "telemetry.exporter=none",
		"--set", "audit.backend=sqlite",
		"--set", "audit.path="+path,
		"audit", "--run", "run-1",
	)
	if err := g.cli.Audit.Run(g); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || !strings.Contains(lines[1], "list_instances") || strings.Contains(out.String(), "run-2") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestAuditCmd_BadKind(t *testing.T) {
	if _, err := (&AuditCmd{Kind: "turn"}).filter(); !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
	f, err := (&AuditCmd{Kind: "Outcome", Limit: 5}).filter()
	if err != nil || f.Kind != audit.KindOutcome || f.Limit != 5 {
		t.Fatalf("unexpected filter %+v, %v", f, err)
	}
}

func TestVersionCmd(t *testing.T) {
	g, out := testGlobals(t, "version")
	if err := g.cli.Version.Run(g); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "opsagent dev") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
