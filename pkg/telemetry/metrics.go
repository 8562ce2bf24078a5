// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/opsagent/pkg/errors"
)

// MeterName is the instrumentation scope for opsagent metrics.
const MeterName = "opsagent/agent"

// AgentMetrics records decision loop activity. A nil *AgentMetrics is a
// valid no-op recorder.
type AgentMetrics struct {
	steps        metric.Int64Counter
	outcomes     metric.Int64Counter
	rejections   metric.Int64Counter
	toolDuration metric.Float64Histogram
	errors       metric.Int64Counter
}

// NewAgentMetrics creates the instruments on the global meter provider.
func NewAgentMetrics() (*AgentMetrics, error) {
	return NewAgentMetricsWithMeter(otel.Meter(MeterName))
}

// NewAgentMetricsWithMeter creates the instruments on meter.
func NewAgentMetricsWithMeter(meter metric.Meter) (*AgentMetrics, error) {
	steps, err := meter.Int64Counter(
		"opsagent.steps.total",
		metric.WithDescription("Oracle decisions taken by the decision loop"),
	)
	if err != nil {
		return nil, err
	}
	outcomes, err := meter.Int64Counter(
		"opsagent.outcomes.total",
		metric.WithDescription("Instructions resolved, by outcome kind"),
	)
	if err != nil {
		return nil, err
	}
	rejections, err := meter.Int64Counter(
		"opsagent.safety.rejections",
		metric.WithDescription("Tool calls rejected by the safety gate"),
	)
	if err != nil {
		return nil, err
	}
	toolDuration, err := meter.Float64Histogram(
		"opsagent.tool.duration_ms",
		metric.WithDescription("Tool execution latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	errorCounter, err := meter.Int64Counter(
		"opsagent.errors.total",
		metric.WithDescription("Errors by code and component"),
	)
	if err != nil {
		return nil, err
	}
	return &AgentMetrics{
		steps:        steps,
		outcomes:     outcomes,
		rejections:   rejections,
		toolDuration: toolDuration,
		errors:       errorCounter,
	}, nil
}

// RecordStep counts one oracle decision.
func (m *AgentMetrics) RecordStep(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.steps.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrStepKind, kind)))
}

// RecordOutcome counts a terminated instruction.
func (m *AgentMetrics) RecordOutcome(ctx context.Context, kind string, code errors.ErrorCode) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String(AttrOutcomeKind, kind)}
	if code != "" {
		attrs = append(attrs, attribute.String(AttrErrorCode, string(code)))
	}
	m.outcomes.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRejection counts a safety gate denial.
func (m *AgentMetrics) RecordRejection(ctx context.Context, tool, ruleID string) {
	if m == nil {
		return
	}
	m.rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrToolName, tool),
		attribute.String(AttrPolicyRuleID, ruleID),
	))
}

// RecordToolDuration records the latency of one tool execution.
func (m *AgentMetrics) RecordToolDuration(ctx context.Context, tool string, ms float64, success bool) {
	if m == nil {
		return
	}
	m.toolDuration.Record(ctx, ms, metric.WithAttributes(
		attribute.String(AttrToolName, tool),
		attribute.Bool(AttrToolSuccess, success),
	))
}

// RecordError counts an error by code and component.
func (m *AgentMetrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	recoverable := "unknown"
	if oe := errors.AsOpsError(err); oe != nil {
		recoverable = oe.RecoverableString()
	}
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrErrorCode, string(errors.CodeOf(err))),
		attribute.String("component", component),
		attribute.String("recoverable", recoverable),
	))
}
