// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the tool-calling decision loop.
//
// One call to Resolve drives a single instruction to exactly one outcome:
// the oracle proposes a tool call or a final answer, every tool call passes
// the safety gate before the executor sees it, and observations accumulate
// in a scratchpad owned by that call alone.
package agent

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/opsagent/pkg/audit"
	"github.com/jllopis/opsagent/pkg/core"
	"github.com/jllopis/opsagent/pkg/errors"
	"github.com/jllopis/opsagent/pkg/governance"
	"github.com/jllopis/opsagent/pkg/oracle"
	"github.com/jllopis/opsagent/pkg/telemetry"
	"github.com/jllopis/opsagent/pkg/tools"
)

const (
	// DefaultMaxSteps bounds oracle decisions per instruction.
	DefaultMaxSteps = 15
	// DefaultMaxMalformed bounds consecutive unparseable oracle replies.
	DefaultMaxMalformed = 3
)

// Gate decides whether a tool call may run.
type Gate interface {
	Check(ctx context.Context, call core.ToolCall) governance.Decision
}

// ToolExecutor runs an allowed tool call.
type ToolExecutor interface {
	Execute(ctx context.Context, call core.ToolCall) core.Observation
}

// Agent is the decision loop. It holds no per-instruction state and is safe
// for concurrent use.
type Agent struct {
	registry     *tools.Registry
	gate         Gate
	executor     ToolExecutor
	oracle       oracle.Oracle
	maxSteps     int
	maxMalformed int
	logger       *slog.Logger
	emitter      core.EventEmitter
	audit        audit.Store
	metrics      *telemetry.AgentMetrics
	tracer       trace.Tracer
}

// Option configures an Agent instance.
type Option func(*Agent) error

// New creates an Agent. Every collaborator is required.
func New(registry *tools.Registry, gate Gate, executor ToolExecutor, o oracle.Oracle, opts ...Option) (*Agent, error) {
	a := &Agent{
		registry:     registry,
		gate:         gate,
		executor:     executor,
		oracle:       o,
		maxSteps:     DefaultMaxSteps,
		maxMalformed: DefaultMaxMalformed,
		logger:       slog.Default(),
		emitter:      core.NoopEventEmitter{},
		tracer:       otel.Tracer("opsagent/agent"),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	switch {
	case a.registry == nil:
		return nil, newInvalidInputError("tool registry is required")
	case a.gate == nil:
		return nil, newInvalidInputError("safety gate is required")
	case a.executor == nil:
		return nil, newInvalidInputError("tool executor is required")
	case a.oracle == nil:
		return nil, newInvalidInputError("oracle is required")
	}
	return a, nil
}

// WithMaxSteps sets the step budget.
func WithMaxSteps(n int) Option {
	return func(a *Agent) error {
		if n < 1 {
			return newInvalidInputError("max steps must be positive")
		}
		a.maxSteps = n
		return nil
	}
}

// WithMaxMalformed sets how many consecutive malformed replies abort.
func WithMaxMalformed(n int) Option {
	return func(a *Agent) error {
		if n < 1 {
			return newInvalidInputError("max malformed must be positive")
		}
		a.maxMalformed = n
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) error {
		if logger != nil {
			a.logger = logger
		}
		return nil
	}
}

// WithEmitter receives step lifecycle events.
func WithEmitter(emitter core.EventEmitter) Option {
	return func(a *Agent) error {
		if emitter != nil {
			a.emitter = emitter
		}
		return nil
	}
}

// WithAudit records every step and outcome.
func WithAudit(store audit.Store) Option {
	return func(a *Agent) error {
		a.audit = store
		return nil
	}
}

// WithMetrics records step, outcome and rejection counters.
func WithMetrics(m *telemetry.AgentMetrics) Option {
	return func(a *Agent) error {
		a.metrics = m
		return nil
	}
}

// MaxSteps returns the configured step budget.
func (a *Agent) MaxSteps() int { return a.maxSteps }

// Resolve drives instruction to its outcome. history is read, never
// modified.
func (a *Agent) Resolve(ctx context.Context, instruction string, history core.Conversation) core.Outcome {
	outcome, _ := a.ResolveWithTranscript(ctx, instruction, history)
	return outcome
}

// ResolveWithTranscript is Resolve that also returns the scratchpad.
func (a *Agent) ResolveWithTranscript(ctx context.Context, instruction string, history core.Conversation) (core.Outcome, core.Scratchpad) {
	ctx, runID := core.EnsureRunID(ctx)
	ctx, span := a.tracer.Start(ctx, "agent.resolve")
	defer span.End()

	r := &run{
		agent:       a,
		runID:       runID,
		instruction: instruction,
		history:     history,
		tools:       a.registry.List(),
	}
	span.SetAttributes(telemetry.RunAttributes(runID, a.maxSteps, len(r.tools))...)

	a.logger.InfoContext(ctx, "agent.instruction.started",
		slog.String("run_id", runID),
		slog.Int("max_steps", a.maxSteps),
	)
	a.emit(ctx, core.EventInstructionStarted, runID, 0, map[string]any{"instruction": instruction})

	outcome := r.loop(ctx)
	r.finish(ctx, span, outcome)
	return outcome, r.pad
}

func (a *Agent) emit(ctx context.Context, typ core.EventType, runID string, step int, payload map[string]any) {
	a.emitter.Emit(ctx, core.NewEvent(typ, runID, step, payload))
}

func (a *Agent) record(ctx context.Context, event audit.Event) {
	if a.audit == nil {
		return
	}
	if err := a.audit.Record(ctx, event); err != nil {
		a.logger.WarnContext(ctx, "agent.audit.record_error",
			slog.String("run_id", event.RunID),
			slog.String("error", err.Error()),
		)
	}
}

// asOutcomeError maps an outcome to an error for metrics; nil for answers.
func asOutcomeError(o core.Outcome) error {
	if o.IsFinal() {
		return nil
	}
	return errors.New(o.Code, o.Reason, nil)
}
