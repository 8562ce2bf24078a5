// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/jllopis/opsagent/pkg/core"
)

func turn(i int) core.Turn {
	return core.Turn{Instruction: fmt.Sprintf("q%d", i), Outcome: core.FinalAnswer(fmt.Sprintf("a%d", i))}
}

func TestInMemoryConversation_AppendAndHistory(t *testing.T) {
	mem := NewInMemoryConversation(nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := mem.Append(ctx, "s1", turn(i)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	history, err := mem.History(ctx, "s1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 3 || history[0].Instruction != "q0" || history[2].Outcome.Text != "a2" {
		t.Fatalf("unexpected history %+v", history)
	}

	history[0].Instruction = "changed"
	again, _ := mem.History(ctx, "s1")
	if again[0].Instruction != "q0" {
		t.Fatalf("history must be a copy")
	}

	if other, _ := mem.History(ctx, "s2"); len(other) != 0 {
		t.Fatalf("sessions must be isolated")
	}
}

func TestWindowStrategy(t *testing.T) {
	tests := []struct {
		max, stored, want int
		first             string
	}{
		{max: 0, stored: 5, want: 5, first: "q0"},
		{max: 3, stored: 2, want: 2, first: "q0"},
		{max: 3, stored: 5, want: 3, first: "q2"},
	}
	for _, tt := range tests {
		mem := NewInMemoryConversation(WindowStrategy{MaxTurns: tt.max})
		for i := 0; i < tt.stored; i++ {
			_ = mem.Append(context.Background(), "s", turn(i))
		}
		history, _ := mem.History(context.Background(), "s")
		if len(history) != tt.want || history[0].Instruction != tt.first {
			t.Fatalf("max=%d stored=%d: got %+v", tt.max, tt.stored, history)
		}
		if mem.TurnCount("s") != tt.stored {
			t.Fatalf("truncation must not drop stored turns")
		}
	}
}

func TestClearAndListSessions(t *testing.T) {
	mem := NewInMemoryConversation(nil)
	ctx := context.Background()
	_ = mem.Append(ctx, "b", turn(0))
	_ = mem.Append(ctx, "a", turn(0))
	if got := mem.ListSessions(); strings.Join(got, ",") != "a,b" {
		t.Fatalf("unexpected sessions %v", got)
	}
	_ = mem.Clear(ctx, "a")
	if got := mem.ListSessions(); strings.Join(got, ",") != "b" {
		t.Fatalf("unexpected sessions after clear %v", got)
	}
}

type echoResolver struct {
	seen []core.Conversation
}

func (r *echoResolver) Resolve(ctx context.Context, instruction string, history core.Conversation) core.Outcome {
	r.seen = append(r.seen, history)
	return core.FinalAnswer("echo " + instruction)
}

func TestSessionAsk(t *testing.T) {
	resolver := &echoResolver{}
	session := NewSession(NewInMemoryConversation(WindowStrategy{MaxTurns: 1}), resolver)
	if !strings.HasPrefix(session.ID, "session-") {
		t.Fatalf("unexpected session id %q", session.ID)
	}

	for _, q := range []string{"one", "two", "three"} {
		outcome, err := session.Ask(context.Background(), q)
		if err != nil || outcome.Text != "echo "+q {
			t.Fatalf("Ask(%q): %+v %v", q, outcome, err)
		}
	}
	if len(resolver.seen[0]) != 0 {
		t.Fatalf("first instruction must have no history")
	}
	last := resolver.seen[2]
	if len(last) != 1 || last[0].Instruction != "two" {
		t.Fatalf("expected window of one turn, got %+v", last)
	}
}
