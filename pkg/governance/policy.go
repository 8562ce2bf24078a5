// Package governance decides whether a proposed tool call may run.
package governance

import (
	"context"
	"path"
	"strings"

	"github.com/jllopis/opsagent/pkg/config"
)

// ActionType describes the type of action to evaluate.
type ActionType string

const (
	ActionTool ActionType = "tool"
	ActionMCP  ActionType = "mcp"
)

// Action describes a decision target for policy evaluation.
type Action struct {
	Type     ActionType
	Name     string
	Metadata map[string]string
}

// DecisionStatus captures the policy outcome.
type DecisionStatus string

const (
	DecisionStatusAllow DecisionStatus = "allow"
	DecisionStatusDeny  DecisionStatus = "deny"
)

// Decision captures the outcome of a policy evaluation.
type Decision struct {
	Status DecisionStatus
	Reason string
	RuleID string
	// Pattern is the denylist entry that matched, if any.
	Pattern string
}

// Allow is the permissive decision.
func Allow() Decision { return Decision{Status: DecisionStatusAllow} }

// Deny builds a deny decision.
func Deny(ruleID, reason string) Decision {
	return Decision{Status: DecisionStatusDeny, RuleID: ruleID, Reason: reason}
}

// IsAllowed returns true when the decision permits the action.
func (d Decision) IsAllowed() bool {
	return d.Status == DecisionStatusAllow
}

// IsDenied returns true when the decision forbids the action.
func (d Decision) IsDenied() bool {
	return !d.IsAllowed()
}

// PolicyEngine evaluates actions.
type PolicyEngine interface {
	Evaluate(ctx context.Context, action Action) Decision
}

// Rule defines a single name-level policy rule.
type Rule struct {
	ID     string
	Effect string // allow or deny
	Type   ActionType
	Name   string // glob pattern, optional
	Reason string
}

// RuleSet evaluates rules in order.
type RuleSet struct {
	Rules           []Rule
	DefaultDecision Decision
}

// NewRuleSet creates a rule set with a default allow decision.
func NewRuleSet(rules []Rule) *RuleSet {
	return &RuleSet{
		Rules:           append([]Rule(nil), rules...),
		DefaultDecision: Allow(),
	}
}

// Evaluate checks rules in order and returns the first match.
func (r *RuleSet) Evaluate(_ context.Context, action Action) Decision {
	for _, rule := range r.Rules {
		if rule.Type != "" && rule.Type != action.Type {
			continue
		}
		if rule.Name != "" && !matchPattern(rule.Name, action.Name) {
			continue
		}
		if strings.EqualFold(rule.Effect, "allow") {
			return Decision{Status: DecisionStatusAllow, RuleID: rule.ID, Reason: rule.Reason}
		}
		// Anything that is not an explicit allow denies.
		reason := rule.Reason
		if reason == "" {
			reason = "denied by policy " + rule.ID
		}
		return Deny(rule.ID, reason)
	}
	return r.DefaultDecision
}

func matchPattern(pattern, value string) bool {
	if pattern == "" {
		return true
	}
	ok, err := path.Match(pattern, value)
	if err == nil && ok {
		return true
	}
	return pattern == value
}

// RuleSetFromConfig builds a rule set from config rules.
func RuleSetFromConfig(cfg config.GovernanceConfig) *RuleSet {
	if len(cfg.Policies) == 0 {
		return NewRuleSet(nil)
	}
	rules := make([]Rule, 0, len(cfg.Policies))
	for _, rule := range cfg.Policies {
		if strings.TrimSpace(rule.ID) == "" {
			rule.ID = "rule"
		}
		typ := ActionType(strings.ToLower(rule.Type))
		if typ == "" {
			typ = ActionTool
		}
		rules = append(rules, Rule{
			ID:     rule.ID,
			Effect: rule.Effect,
			Type:   typ,
			Name:   rule.Name,
			Reason: rule.Reason,
		})
	}
	return NewRuleSet(rules)
}
