// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides logging, tracing and metrics for the decision
// loop and the tools it drives.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used on opsagent spans and metrics.
const (
	AttrRunID       = "opsagent.run_id"
	AttrStep        = "opsagent.step"
	AttrMaxSteps    = "opsagent.max_steps"
	AttrStepKind    = "opsagent.step.kind" // tool, final_answer, malformed
	AttrOutcomeKind = "opsagent.outcome.kind"
	AttrErrorCode   = "error.code"

	AttrToolName       = "opsagent.tool.name"
	AttrToolDurationMs = "opsagent.tool.duration_ms"
	AttrToolSuccess    = "opsagent.tool.success"
	AttrToolInput      = "opsagent.tool.input"
	AttrToolOutput     = "opsagent.tool.output"
	AttrToolsCount     = "opsagent.tools.count"

	AttrPolicyAllowed = "opsagent.policy.allowed"
	AttrPolicyRuleID  = "opsagent.policy.rule_id"
	AttrPolicyPattern = "opsagent.policy.pattern"

	// LLM attributes follow the gen_ai conventions.
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMMessages     = "gen_ai.request.messages"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMTokensTotal  = "gen_ai.usage.total_tokens"
	AttrLLMAttempt      = "gen_ai.attempt"
)

// RunAttributes returns common attributes for the resolve span.
func RunAttributes(runID string, maxSteps, tools int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrRunID, runID),
	}
	if maxSteps > 0 {
		attrs = append(attrs, attribute.Int(AttrMaxSteps, maxSteps))
	}
	if tools > 0 {
		attrs = append(attrs, attribute.Int(AttrToolsCount, tools))
	}
	return attrs
}

// StepAttributes returns attributes for a single loop step.
func StepAttributes(runID string, step int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRunID, runID),
		attribute.Int(AttrStep, step),
	}
}

// ToolAttributes returns attributes for a tool execution span.
func ToolAttributes(name string, durationMs float64, success bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrToolName, name),
		attribute.Float64(AttrToolDurationMs, durationMs),
		attribute.Bool(AttrToolSuccess, success),
	}
}

// ToolIOAttributes returns the tool input and output, truncated to maxLen.
func ToolIOAttributes(input, output string, maxLen int) []attribute.KeyValue {
	if maxLen <= 0 {
		maxLen = 500
	}
	attrs := []attribute.KeyValue{}
	if input != "" {
		attrs = append(attrs, attribute.String(AttrToolInput, truncate(input, maxLen)))
	}
	if output != "" {
		attrs = append(attrs, attribute.String(AttrToolOutput, truncate(output, maxLen)))
	}
	return attrs
}

// PolicyAttributes returns attributes for a safety gate decision.
func PolicyAttributes(allowed bool, ruleID, pattern string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Bool(AttrPolicyAllowed, allowed),
	}
	if ruleID != "" {
		attrs = append(attrs, attribute.String(AttrPolicyRuleID, ruleID))
	}
	if pattern != "" {
		attrs = append(attrs, attribute.String(AttrPolicyPattern, pattern))
	}
	return attrs
}

// LLMAttributes returns attributes for oracle calls.
func LLMAttributes(model, provider string, msgCount, attempt int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
		attribute.Int(AttrLLMMessages, msgCount),
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(AttrLLMProvider, provider))
	}
	if attempt > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMAttempt, attempt))
	}
	return attrs
}

// LLMUsageAttributes returns token usage attributes.
func LLMUsageAttributes(inputTokens, outputTokens int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, outputTokens))
	}
	if inputTokens > 0 || outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensTotal, inputTokens+outputTokens))
	}
	return attrs
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
