package core

import (
	"context"
	"log/slog"
	"time"
)

// EventType identifies a semantic event emitted by the decision loop.
type EventType string

const (
	EventInstructionStarted EventType = "agent.instruction.started"
	EventStepStarted        EventType = "agent.step.started"
	EventToolDispatched     EventType = "agent.tool.dispatched"
	EventToolObserved       EventType = "agent.tool.observed"
	EventToolRejected       EventType = "agent.tool.rejected"
	EventOracleMalformed    EventType = "agent.oracle.malformed"
	EventOutcome            EventType = "agent.outcome"
)

// Event captures a semantic streaming/logging event.
type Event struct {
	Type      EventType
	RunID     string
	Step      int
	Timestamp time.Time
	Payload   map[string]any
}

// EventEmitter receives semantic events.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventEmitter is a default no-op implementation.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(_ context.Context, _ Event) {}

// EventEmitterFunc adapts a function to EventEmitter.
type EventEmitterFunc func(ctx context.Context, event Event)

// Emit implements EventEmitter.
func (f EventEmitterFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// SlogEventEmitter logs every event at debug level.
type SlogEventEmitter struct {
	Logger *slog.Logger
}

// Emit implements EventEmitter.
func (e SlogEventEmitter) Emit(ctx context.Context, event Event) {
	log := e.Logger
	if log == nil {
		log = slog.Default()
	}
	attrs := []any{
		slog.String("run_id", event.RunID),
		slog.Int("step", event.Step),
	}
	for k, v := range event.Payload {
		attrs = append(attrs, slog.Any(k, v))
	}
	log.DebugContext(ctx, string(event.Type), attrs...)
}

// NewEvent builds a default event with timestamp.
func NewEvent(eventType EventType, runID string, step int, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		RunID:     runID,
		Step:      step,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
