package governance

import (
	"context"
	"testing"

	"github.com/jllopis/opsagent/pkg/config"
)

func TestRuleSetEvaluate(t *testing.T) {
	rules := []Rule{
		{ID: "deny-mcp", Effect: "deny", Type: ActionMCP, Name: "secrets.*", Reason: "blocked"},
		{ID: "allow-tools", Effect: "allow", Type: ActionTool, Name: "list_*"},
	}
	engine := NewRuleSet(rules)

	decision := engine.Evaluate(context.Background(), Action{Type: ActionTool, Name: "list_instances"})
	if !decision.IsAllowed() || decision.RuleID != "allow-tools" {
		t.Fatalf("expected allowed by rule, got %+v", decision)
	}
	decision = engine.Evaluate(context.Background(), Action{Type: ActionMCP, Name: "secrets.read"})
	if decision.IsAllowed() {
		t.Fatalf("expected denied")
	}
	if decision.Reason != "blocked" {
		t.Fatalf("unexpected reason: %s", decision.Reason)
	}
	decision = engine.Evaluate(context.Background(), Action{Type: ActionTool, Name: "execute_cli"})
	if !decision.IsAllowed() || decision.RuleID != "" {
		t.Fatalf("expected default allow, got %+v", decision)
	}
}

func TestRuleSetFromConfig(t *testing.T) {
	rs := RuleSetFromConfig(config.GovernanceConfig{
		Policies: []config.PolicyRuleConfig{
			{ID: "no-cli", Effect: "deny", Name: "execute_cli"},
		},
	})
	if len(rs.Rules) != 1 || rs.Rules[0].Type != ActionTool {
		t.Fatalf("expected tool rule, got %+v", rs.Rules)
	}
	d := rs.Evaluate(context.Background(), Action{Type: ActionTool, Name: "execute_cli"})
	if !d.IsDenied() || d.Reason != "denied by policy no-cli" {
		t.Fatalf("unexpected decision %+v", d)
	}

	empty := RuleSetFromConfig(config.GovernanceConfig{})
	if !empty.Evaluate(context.Background(), Action{Type: ActionTool, Name: "x"}).IsAllowed() {
		t.Fatalf("empty rule set must allow")
	}
}
