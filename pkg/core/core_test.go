package core

import (
	"context"
	"strings"
	"testing"

	"github.com/jllopis/opsagent/pkg/errors"
)

func TestEnsureRunIDKeepsExisting(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-fixed")
	_, id := EnsureRunID(ctx)
	if id != "run-fixed" {
		t.Fatalf("expected existing id, got %q", id)
	}

	_, fresh := EnsureRunID(context.Background())
	if !strings.HasPrefix(fresh, "run-") {
		t.Fatalf("unexpected generated id %q", fresh)
	}
}

func TestInputStrings(t *testing.T) {
	in := Input{Fields: map[string]any{
		"ids":    []any{"i-1", 2, "i-2"},
		"single": "i-3",
		"empty":  "",
	}}
	if got := in.Strings("ids"); len(got) != 2 || got[1] != "i-2" {
		t.Fatalf("unexpected ids %v", got)
	}
	if got := in.Strings("single"); len(got) != 1 || got[0] != "i-3" {
		t.Fatalf("unexpected single %v", got)
	}
	if got := in.Strings("empty"); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestObservationText(t *testing.T) {
	ok := Succeeded("list_instances", Result{Content: "ID: i-1"})
	if ok.Text() != "ID: i-1" {
		t.Fatalf("unexpected text %q", ok.Text())
	}

	failed := Failed("run_shell_command", errors.CodeTimeout, "timed out")
	if failed.OK() || failed.Text() != "error: timed out" {
		t.Fatalf("unexpected failed text %q", failed.Text())
	}
}

func TestConversationRender(t *testing.T) {
	conv := Conversation{
		{Instruction: "list instances", Outcome: FinalAnswer("ID: i-1")},
		{Instruction: "loop", Outcome: Aborted(errors.CodeStepBudget, "step budget exceeded")},
	}
	got := conv.Render()
	want := "Human: list instances\nAssistant: ID: i-1\nHuman: loop\nAssistant: aborted: step budget exceeded\n"
	if got != want {
		t.Fatalf("unexpected render:\n%s", got)
	}
	if (Conversation{}).Render() != "" {
		t.Fatalf("expected empty render")
	}
}
