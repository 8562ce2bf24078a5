// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jllopis/opsagent/pkg/config"
	"github.com/jllopis/opsagent/pkg/core"
	"github.com/jllopis/opsagent/pkg/errors"
)

// RegexPrefix marks a denylist entry as a regular expression.
const RegexPrefix = "re:"

// DenylistRuleID is the rule id reported for pattern matches.
const DenylistRuleID = "denylist"

// DenylistReason is what users and the oracle are told about a pattern
// match. The pattern itself is kept in Decision.Pattern for logs and audit.
const DenylistReason = "input matches a destructive-command rule"

// DefaultDenylist covers recursive deletion of root and system paths,
// filesystem wipes, disk formatting, fork bombs and destructive cloud calls.
var DefaultDenylist = []string{
	`re:\brm\s+(-{1,2}[a-z-]+\s+)*(/|/\*|~/?|~/\*|\*|\./?\*?)(\s|$|[;&|"'])`,
	`re:\brm\s+([^;&|]*\s)?/(bin|boot|dev|etc|home|lib|lib64|opt|proc|root|sbin|srv|sys|usr|var)/?\*?(\s|$|[;&|"'])`,
	"--no-preserve-root",
	"mkfs",
	`re:\bdd\s+.*of=/dev/`,
	"> /dev/sd",
	"> /dev/nvme",
	":(){",
	"shred ",
	"wipefs",
	`re:\bfind\s+/\S*\s+.*-delete`,
	`re:\bchmod\s+(-[a-z]*r[a-z]*\s+)\S+\s+/(\s|$|[;&|"'])`,
	`re:\b(shutdown|poweroff|halt)\s+(-|now)`,
	"aws ec2 terminate-instances",
	"aws s3 rb",
	`re:\baws\s+s3\s+rm\s+.*--recursive`,
	"aws rds delete-db",
	"aws iam delete-",
}

type denyPattern struct {
	source string
	needle string
	re     *regexp.Regexp
}

func (p denyPattern) match(normalized string) bool {
	if p.re != nil {
		return p.re.MatchString(normalized)
	}
	return strings.Contains(normalized, p.needle)
}

// SafetyGate rejects tool calls whose raw input contains a denylisted
// pattern. It is immutable after construction and safe for concurrent use.
type SafetyGate struct {
	patterns []denyPattern
	rules    PolicyEngine
	logger   *slog.Logger
}

// GateOption configures a SafetyGate.
type GateOption func(*SafetyGate)

// WithRules adds tool-name rules evaluated before pattern matching.
func WithRules(engine PolicyEngine) GateOption {
	return func(g *SafetyGate) { g.rules = engine }
}

// WithLogger sets the logger used to report rejections.
func WithLogger(logger *slog.Logger) GateOption {
	return func(g *SafetyGate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewSafetyGate compiles the given denylist. Plain entries are matched as
// case-insensitive substrings; entries prefixed with "re:" are compiled as
// case-insensitive regular expressions.
func NewSafetyGate(patterns []string, opts ...GateOption) (*SafetyGate, error) {
	g := &SafetyGate{logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	for _, raw := range patterns {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		p := denyPattern{source: raw}
		if expr, ok := strings.CutPrefix(raw, RegexPrefix); ok {
			re, err := regexp.Compile("(?i)" + expr)
			if err != nil {
				return nil, errors.New(errors.CodeInvalidInput, "invalid denylist pattern", err).
					WithContext("pattern", raw)
			}
			p.re = re
		} else {
			p.needle = normalize(raw)
		}
		g.patterns = append(g.patterns, p)
	}
	return g, nil
}

// NewSafetyGateFromConfig builds the gate from the safety and governance
// config sections.
func NewSafetyGateFromConfig(safety config.SafetyConfig, gov config.GovernanceConfig, opts ...GateOption) (*SafetyGate, error) {
	var patterns []string
	if safety.UseDefaults {
		patterns = append(patterns, DefaultDenylist...)
	}
	patterns = append(patterns, safety.Patterns...)
	if len(gov.Policies) > 0 {
		opts = append([]GateOption{WithRules(RuleSetFromConfig(gov))}, opts...)
	}
	return NewSafetyGate(patterns, opts...)
}

// Patterns returns the configured denylist entries.
func (g *SafetyGate) Patterns() []string {
	out := make([]string, len(g.patterns))
	for i, p := range g.patterns {
		out[i] = p.source
	}
	return out
}

// Check decides whether call may be executed. Every call is checked; there
// is no bypass for trusted tools.
func (g *SafetyGate) Check(ctx context.Context, call core.ToolCall) Decision {
	if g.rules != nil {
		d := g.rules.Evaluate(ctx, Action{Type: ActionTool, Name: call.ToolName})
		if d.IsDenied() {
			g.logger.WarnContext(ctx, "governance.tool.denied",
				slog.String("tool", call.ToolName),
				slog.String("rule_id", d.RuleID),
			)
			return d
		}
	}

	for _, candidate := range candidates(call.RawInput) {
		for _, p := range g.patterns {
			if !p.match(candidate) {
				continue
			}
			g.logger.WarnContext(ctx, "governance.command.denied",
				slog.String("tool", call.ToolName),
				slog.String("pattern", p.source),
			)
			return Decision{
				Status:  DecisionStatusDeny,
				RuleID:  DenylistRuleID,
				Reason:  DenylistReason,
				Pattern: p.source,
			}
		}
	}
	return Allow()
}

// candidates returns the normalized raw input plus every string leaf found
// when the input parses as JSON, so escaped quoting cannot hide a command.
func candidates(raw string) []string {
	out := []string{normalize(raw)}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return out
	}
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			out = append(out, normalize(t))
		case []any:
			for _, item := range t {
				walk(item)
			}
		case map[string]any:
			for _, item := range t {
				walk(item)
			}
		}
	}
	walk(decoded)
	return out
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
