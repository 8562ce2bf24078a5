// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package core defines the data model shared by the decision loop, the tool
// executor and the capabilities behind it.
package core

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jllopis/opsagent/pkg/errors"
)

// Capability is the side-effecting implementation behind a registered tool.
//
// Implementations document the structured fields they expect inside the raw
// input through the owning ToolSpec's InputSchema.
type Capability interface {
	Invoke(ctx context.Context, input Input) (Result, error)
}

// CapabilityFunc adapts a function to the Capability interface.
type CapabilityFunc func(ctx context.Context, input Input) (Result, error)

// Invoke implements Capability.
func (f CapabilityFunc) Invoke(ctx context.Context, input Input) (Result, error) {
	return f(ctx, input)
}

// Input is a validated tool input. Raw is the exact string the oracle
// produced; Fields holds the decoded structured fields.
type Input struct {
	Raw    string
	Fields map[string]any
}

// String returns the named field as a string, or "".
func (in Input) String(name string) string {
	v, _ := in.Fields[name].(string)
	return v
}

// Strings returns the named field as a string slice.
func (in Input) Strings(name string) []string {
	switch v := in.Fields[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// Result is what a capability returns on success.
type Result struct {
	Content string
	// Membership is set by identity-validating tools only.
	Membership *Membership
}

// Membership reports whether a target identifier exists in the inventory.
type Membership struct {
	Target    string   `json:"target"`
	Found     bool     `json:"found"`
	Inventory []string `json:"inventory"`
}

// ToolSpec describes a registered tool. It is immutable once registered.
type ToolSpec struct {
	Name        string
	Description string
	// InputSchema is a JSON Schema document for the structured input.
	InputSchema json.RawMessage
	Capability  Capability
}

// ToolCall is a single tool invocation proposed by the oracle.
type ToolCall struct {
	ToolName string `json:"tool"`
	RawInput string `json:"input"`
}

// Status is the outcome of a single observation.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Observation is the result of one tool invocation. It is never mutated
// after creation.
type Observation struct {
	SourceTool string           `json:"source_tool"`
	Content    string           `json:"content"`
	Status     Status           `json:"status"`
	Reason     string           `json:"reason,omitempty"`
	Code       errors.ErrorCode `json:"code,omitempty"`
	Membership *Membership      `json:"membership,omitempty"`
	// Missing is the human label of a required input that was absent,
	// set on validation failures.
	Missing string `json:"missing,omitempty"`
}

// OK reports whether the observation succeeded.
func (o Observation) OK() bool { return o.Status == StatusOK }

// Text is what the oracle sees inside the observation tag.
func (o Observation) Text() string {
	if o.OK() {
		return o.Content
	}
	if o.Content == "" {
		return "error: " + o.Reason
	}
	return "error: " + o.Reason + "\n" + o.Content
}

// Succeeded builds a successful observation.
func Succeeded(tool string, res Result) Observation {
	return Observation{
		SourceTool: tool,
		Content:    res.Content,
		Status:     StatusOK,
		Membership: res.Membership,
	}
}

// Failed builds a failed observation from a reason and code.
func Failed(tool string, code errors.ErrorCode, reason string) Observation {
	return Observation{
		SourceTool: tool,
		Status:     StatusFailed,
		Reason:     reason,
		Code:       code,
	}
}

// Step pairs a tool call with its observation.
type Step struct {
	Call        ToolCall    `json:"call"`
	Observation Observation `json:"observation"`
}

// Scratchpad is the append-only step history of one instruction.
type Scratchpad []Step

// OutcomeKind discriminates the two terminal outcomes.
type OutcomeKind string

const (
	OutcomeFinalAnswer OutcomeKind = "final_answer"
	OutcomeAborted     OutcomeKind = "aborted"
)

// Outcome terminates the resolution of one instruction.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`
	// Text is the final answer text.
	Text string `json:"text,omitempty"`
	// Reason explains an abort, e.g. "step budget exceeded".
	Reason string           `json:"reason,omitempty"`
	Code   errors.ErrorCode `json:"code,omitempty"`
}

// FinalAnswer builds a final-answer outcome.
func FinalAnswer(text string) Outcome {
	return Outcome{Kind: OutcomeFinalAnswer, Text: text}
}

// Aborted builds an aborted outcome.
func Aborted(code errors.ErrorCode, reason string) Outcome {
	return Outcome{Kind: OutcomeAborted, Reason: reason, Code: code}
}

// IsFinal reports whether the outcome carries a final answer.
func (o Outcome) IsFinal() bool { return o.Kind == OutcomeFinalAnswer }

// String renders the outcome as a single string.
func (o Outcome) String() string {
	if o.IsFinal() {
		return o.Text
	}
	return "aborted: " + o.Reason
}

// Turn is a prior instruction and its outcome.
type Turn struct {
	Instruction string  `json:"instruction"`
	Outcome     Outcome `json:"outcome"`
}

// Conversation is the read-only history passed into the decision loop.
type Conversation []Turn

// Render formats the conversation for prompting.
func (c Conversation) Render() string {
	if len(c) == 0 {
		return ""
	}
	var b strings.Builder
	for _, turn := range c {
		b.WriteString("Human: ")
		b.WriteString(turn.Instruction)
		b.WriteString("\nAssistant: ")
		b.WriteString(turn.Outcome.String())
		b.WriteString("\n")
	}
	return b.String()
}
