// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package oracle turns the decision loop's state into a language model
// request and the model's reply back into a single decision.
//
// The default wire format is tagged markup:
//
//	<tool>run_shell_command</tool><tool_input>[["i-0abc"], "uptime"]</tool_input>
//	<observation>...</observation>
//	<final_answer>...</final_answer>
//
// Providers with native tool calling are accepted as well.
package oracle

import (
	"context"

	"github.com/jllopis/opsagent/pkg/core"
)

// ActionKind discriminates the two decisions an oracle can make.
type ActionKind string

const (
	ActionTool  ActionKind = "tool"
	ActionFinal ActionKind = "final_answer"
)

// Action is one oracle decision: invoke a tool or finish.
type Action struct {
	Kind ActionKind
	// Call is set for ActionTool.
	Call core.ToolCall
	// Answer is set for ActionFinal.
	Answer string
}

// Tool builds a tool action.
func Tool(name, rawInput string) Action {
	return Action{Kind: ActionTool, Call: core.ToolCall{ToolName: name, RawInput: rawInput}}
}

// Final builds a final-answer action.
func Final(text string) Action {
	return Action{Kind: ActionFinal, Answer: text}
}

// Request is everything the oracle sees for one decision.
type Request struct {
	Instruction string
	Tools       []core.ToolSpec
	Scratchpad  core.Scratchpad
	History     core.Conversation
	// FormatReminder, when non-empty, tells the model why its previous
	// reply could not be used.
	FormatReminder string
}

// Oracle decides the next action. Implementations must honor ctx.
//
// Errors carry errors.CodeMalformedResponse when the reply could not be
// parsed, errors.CodeOracleUnavailable when no reply was obtained and
// errors.CodeCanceled when ctx was canceled.
type Oracle interface {
	Decide(ctx context.Context, req Request) (Action, error)
}

// Func adapts a function to Oracle.
type Func func(ctx context.Context, req Request) (Action, error)

// Decide implements Oracle.
func (f Func) Decide(ctx context.Context, req Request) (Action, error) { return f(ctx, req) }
