// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package executor runs registered tools and turns every result, success or
// failure, into an observation.
package executor

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/opsagent/pkg/core"
	"github.com/jllopis/opsagent/pkg/errors"
	"github.com/jllopis/opsagent/pkg/resilience"
	"github.com/jllopis/opsagent/pkg/telemetry"
	"github.com/jllopis/opsagent/pkg/tools"
)

// Executor invokes tool capabilities. It never returns an error: failures
// are reported as failed observations carrying an error code.
type Executor struct {
	registry *tools.Registry
	timeout  time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *telemetry.AgentMetrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithToolTimeout bounds every capability invocation. Zero disables it.
func WithToolTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// WithLogger sets the executor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records tool latency and errors.
func WithMetrics(m *telemetry.AgentMetrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// New creates an executor over registry.
func New(registry *tools.Registry, opts ...Option) *Executor {
	e := &Executor{
		registry: registry,
		logger:   slog.Default(),
		tracer:   otel.Tracer("opsagent/executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute validates the call input against the tool's schema and invokes the
// capability. A validation failure never reaches the capability.
func (e *Executor) Execute(ctx context.Context, call core.ToolCall) core.Observation {
	ctx, span := e.tracer.Start(ctx, "tool.execute")
	defer span.End()
	log := e.logger.With(slog.String("tool", call.ToolName))
	if runID, ok := core.RunID(ctx); ok {
		log = log.With(slog.String("run_id", runID))
	}

	spec, err := e.registry.Lookup(call.ToolName)
	if err != nil {
		span.SetStatus(codes.Error, "unknown tool")
		return core.Failed(call.ToolName, errors.CodeUnknownTool, "unrecognized tool: "+call.ToolName)
	}

	input, err := e.registry.Decode(spec.Name, call.RawInput)
	if err != nil {
		obs := validationFailure(spec.Name, err)
		log.InfoContext(ctx, "executor.tool.invalid_input", slog.String("reason", obs.Reason))
		span.SetStatus(codes.Error, obs.Reason)
		return obs
	}

	log.DebugContext(ctx, "executor.tool.start")
	start := time.Now()
	res, err := resilience.WithTimeoutValue(ctx, e.timeout, func(ctx context.Context) (core.Result, error) {
		return spec.Capability.Invoke(ctx, input)
	})
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	var obs core.Observation
	if err != nil {
		obs = failure(ctx, spec.Name, err)
		e.metrics.RecordError(ctx, err, "executor")
		log.WarnContext(ctx, "executor.tool.failed",
			slog.String("code", string(obs.Code)),
			slog.String("reason", obs.Reason),
		)
		span.SetStatus(codes.Error, obs.Reason)
	} else {
		obs = core.Succeeded(spec.Name, res)
		log.DebugContext(ctx, "executor.tool.done", slog.Float64("duration_ms", elapsed))
	}

	span.SetAttributes(telemetry.ToolAttributes(spec.Name, elapsed, obs.OK())...)
	span.SetAttributes(telemetry.ToolIOAttributes(call.RawInput, obs.Content, 0)...)
	e.metrics.RecordToolDuration(ctx, spec.Name, elapsed, obs.OK())
	return obs
}

func validationFailure(tool string, err error) core.Observation {
	oe := errors.AsOpsError(err)
	code := oe.Code
	if code == errors.CodeInternal {
		code = errors.CodeValidation
	}
	obs := core.Failed(tool, code, oe.Message)
	if label, ok := oe.Context["label"].(string); ok {
		obs.Missing = label
	}
	return obs
}

// failure maps a capability error to a failed observation. Errors without a
// code are remote failures; nothing is swallowed.
func failure(ctx context.Context, tool string, err error) core.Observation {
	if ctx.Err() == context.Canceled {
		return core.Failed(tool, errors.CodeCanceled, "canceled")
	}
	var oe *errors.OpsError
	if !stderrors.As(err, &oe) {
		return core.Failed(tool, errors.CodeRemoteFailure, err.Error())
	}
	return core.Failed(tool, oe.Code, describe(oe))
}

// describe renders an error without the code prefix used by OpsError.Error.
func describe(oe *errors.OpsError) string {
	msg := oe.Message
	if oe.Err != nil {
		cause := oe.Err.Error()
		if !strings.Contains(msg, cause) {
			msg += ": " + cause
		}
	}
	return msg
}
