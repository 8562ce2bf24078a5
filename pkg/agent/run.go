package agent

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/opsagent/pkg/audit"
	"github.com/jllopis/opsagent/pkg/core"
	"github.com/jllopis/opsagent/pkg/errors"
	"github.com/jllopis/opsagent/pkg/oracle"
	"github.com/jllopis/opsagent/pkg/telemetry"
)

// run is the state of one instruction. It never escapes Resolve.
type run struct {
	agent       *Agent
	runID       string
	instruction string
	history     core.Conversation
	tools       []core.ToolSpec

	pad       core.Scratchpad
	malformed int
	reminder  string
	// rejected is the last call the gate denied, if any.
	rejected *rejection
}

type rejection struct {
	call   core.ToolCall
	reason string
}

func (r *run) loop(ctx context.Context) core.Outcome {
	for step := 1; ; step++ {
		if ctx.Err() != nil {
			return abortCanceled()
		}
		if step > r.agent.maxSteps {
			return abortStepBudget()
		}
		if outcome, done := r.step(ctx, step); done {
			return outcome
		}
	}
}

// step asks the oracle for one decision and acts on it. It reports done
// when the instruction reached its outcome.
func (r *run) step(ctx context.Context, n int) (core.Outcome, bool) {
	a := r.agent
	ctx, span := a.tracer.Start(ctx, "agent.step")
	defer span.End()
	span.SetAttributes(telemetry.StepAttributes(r.runID, n)...)
	a.emit(ctx, core.EventStepStarted, r.runID, n, nil)

	action, err := a.oracle.Decide(ctx, oracle.Request{
		Instruction:    r.instruction,
		Tools:          r.tools,
		Scratchpad:     append(core.Scratchpad(nil), r.pad...),
		History:        r.history,
		FormatReminder: r.reminder,
	})
	if err != nil {
		return r.oracleFailed(ctx, span, n, err)
	}
	r.malformed = 0
	r.reminder = ""

	if action.Kind == oracle.ActionFinal {
		r.stepKind(ctx, span, "final_answer")
		return core.FinalAnswer(action.Answer), true
	}

	call := action.Call
	r.stepKind(ctx, span, "tool")
	span.SetAttributes(attribute.String(telemetry.AttrToolName, call.ToolName))

	if !a.registry.Has(call.ToolName) {
		return abortUnknownTool(call.ToolName), true
	}
	if r.rejected != nil {
		a.logger.WarnContext(ctx, "agent.tool.after_rejection",
			slog.String("run_id", r.runID),
			slog.Int("step", n),
			slog.String("tool", call.ToolName),
		)
		return refusal(r.rejected.call, r.rejected.reason), true
	}

	decision := a.gate.Check(ctx, call)
	span.SetAttributes(telemetry.PolicyAttributes(decision.IsAllowed(), decision.RuleID, decision.Pattern)...)
	if decision.IsDenied() {
		r.reject(ctx, n, call, decision.RuleID, decision.Reason)
		return core.Outcome{}, false
	}

	a.emit(ctx, core.EventToolDispatched, r.runID, n, map[string]any{"tool": call.ToolName})
	start := time.Now()
	obs := a.executor.Execute(ctx, call)
	r.append(ctx, n, call, obs, time.Since(start))

	switch {
	case obs.Code == errors.CodeCanceled || ctx.Err() != nil:
		return abortCanceled(), true
	case obs.Code == errors.CodeValidation:
		return askForMissing(obs.Missing), true
	case obs.Membership != nil && !obs.Membership.Found:
		return askToChoose(*obs.Membership), true
	}
	return core.Outcome{}, false
}

func (r *run) oracleFailed(ctx context.Context, span trace.Span, n int, err error) (core.Outcome, bool) {
	a := r.agent
	span.RecordError(err)
	switch {
	case errors.HasCode(err, errors.CodeCanceled) || ctx.Err() != nil:
		return abortCanceled(), true
	case errors.HasCode(err, errors.CodeMalformedResponse):
		r.stepKind(ctx, span, "malformed")
		r.malformed++
		r.reminder = errors.AsOpsError(err).Message
		a.logger.WarnContext(ctx, "agent.oracle.malformed",
			slog.String("run_id", r.runID),
			slog.Int("step", n),
			slog.Int("consecutive", r.malformed),
		)
		a.emit(ctx, core.EventOracleMalformed, r.runID, n, map[string]any{"consecutive": r.malformed})
		if r.rejected != nil {
			return refusal(r.rejected.call, r.rejected.reason), true
		}
		if r.malformed >= a.maxMalformed {
			return abortMalformed(), true
		}
		return core.Outcome{}, false
	}
	if r.rejected != nil {
		return refusal(r.rejected.call, r.rejected.reason), true
	}
	return abortOracleUnavailable(), true
}

func (r *run) stepKind(ctx context.Context, span trace.Span, kind string) {
	span.SetAttributes(attribute.String(telemetry.AttrStepKind, kind))
	r.agent.metrics.RecordStep(ctx, kind)
}

// reject records a gate denial as a synthetic failed observation. The
// executor is never called for it.
func (r *run) reject(ctx context.Context, n int, call core.ToolCall, ruleID, reason string) {
	a := r.agent
	obs := rejectedObservation(call, reason)
	r.pad = append(r.pad, core.Step{Call: call, Observation: obs})
	r.rejected = &rejection{call: call, reason: reason}

	a.metrics.RecordRejection(ctx, call.ToolName, ruleID)
	a.logger.WarnContext(ctx, "agent.tool.rejected",
		slog.String("run_id", r.runID),
		slog.Int("step", n),
		slog.String("tool", call.ToolName),
		slog.String("rule_id", ruleID),
		slog.String("reason", reason),
	)
	a.emit(ctx, core.EventToolRejected, r.runID, n, map[string]any{
		"tool":    call.ToolName,
		"rule_id": ruleID,
		"reason":  reason,
	})
	a.record(ctx, audit.Event{
		RunID:  r.runID,
		Step:   n,
		Kind:   audit.KindStep,
		Tool:   call.ToolName,
		Input:  call.RawInput,
		Status: string(obs.Status),
		Code:   string(obs.Code),
		Detail: obs,
	})
}

func (r *run) append(ctx context.Context, n int, call core.ToolCall, obs core.Observation, took time.Duration) {
	a := r.agent
	r.pad = append(r.pad, core.Step{Call: call, Observation: obs})

	attrs := []any{
		slog.String("run_id", r.runID),
		slog.Int("step", n),
		slog.String("tool", call.ToolName),
		slog.String("status", string(obs.Status)),
		slog.Duration("took", took),
	}
	if !obs.OK() {
		attrs = append(attrs, slog.String("code", string(obs.Code)), slog.String("reason", obs.Reason))
	}
	a.logger.InfoContext(ctx, "agent.tool.observed", attrs...)
	a.emit(ctx, core.EventToolObserved, r.runID, n, map[string]any{
		"tool":   call.ToolName,
		"status": string(obs.Status),
		"code":   string(obs.Code),
	})
	a.record(ctx, audit.Event{
		RunID:  r.runID,
		Step:   n,
		Kind:   audit.KindStep,
		Tool:   call.ToolName,
		Input:  call.RawInput,
		Status: string(obs.Status),
		Code:   string(obs.Code),
		Detail: obs,
	})
}

func (r *run) finish(ctx context.Context, span trace.Span, outcome core.Outcome) {
	a := r.agent
	span.SetAttributes(attribute.String(telemetry.AttrOutcomeKind, string(outcome.Kind)))
	a.metrics.RecordOutcome(ctx, string(outcome.Kind), outcome.Code)

	attrs := []any{
		slog.String("run_id", r.runID),
		slog.Int("steps", len(r.pad)),
		slog.String("kind", string(outcome.Kind)),
	}
	if !outcome.IsFinal() {
		err := asOutcomeError(outcome)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome.Reason)
		a.metrics.RecordError(ctx, err, "agent")
		attrs = append(attrs, slog.String("code", string(outcome.Code)), slog.String("reason", outcome.Reason))
		a.logger.WarnContext(ctx, "agent.outcome", attrs...)
	} else {
		a.logger.InfoContext(ctx, "agent.outcome", attrs...)
	}

	a.emit(ctx, core.EventOutcome, r.runID, len(r.pad), map[string]any{
		"kind":   string(outcome.Kind),
		"code":   string(outcome.Code),
		"reason": outcome.Reason,
	})
	// The outcome is recorded even when the caller canceled.
	a.record(context.WithoutCancel(ctx), audit.Event{
		RunID:       r.runID,
		Step:        len(r.pad),
		Kind:        audit.KindOutcome,
		Instruction: r.instruction,
		Status:      string(outcome.Kind),
		Code:        string(outcome.Code),
		Detail:      outcome,
	})
}
