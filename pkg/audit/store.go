// Package audit records what the decision loop did: every tool step and
// every outcome, keyed by run id.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Kind classifies an audit event.
type Kind string

const (
	KindStep    Kind = "step"
	KindOutcome Kind = "outcome"
)

// Event is one audit record. Detail holds the observation for steps and the
// outcome for outcomes.
type Event struct {
	RunID       string    `json:"run_id" yaml:"run_id"`
	Step        int       `json:"step" yaml:"step"`
	Kind        Kind      `json:"kind" yaml:"kind"`
	Instruction string    `json:"instruction,omitempty" yaml:"instruction,omitempty"`
	Tool        string    `json:"tool,omitempty" yaml:"tool,omitempty"`
	Input       string    `json:"input,omitempty" yaml:"input,omitempty"`
	Status      string    `json:"status" yaml:"status"`
	Code        string    `json:"code,omitempty" yaml:"code,omitempty"`
	Detail      any       `json:"detail,omitempty" yaml:"detail,omitempty"`
	At          time.Time `json:"at" yaml:"at"`
}

// Store persists audit events.
type Store interface {
	Record(ctx context.Context, event Event) error
	List(ctx context.Context, filter Filter) ([]Event, error)
}

// Filter limits audit event queries.
type Filter struct {
	RunID  string
	Kind   Kind
	Tool   string
	Status string
	Limit  int
}

func (f Filter) match(ev Event) bool {
	if f.RunID != "" && ev.RunID != f.RunID {
		return false
	}
	if f.Kind != "" && ev.Kind != f.Kind {
		return false
	}
	if f.Tool != "" && ev.Tool != f.Tool {
		return false
	}
	if f.Status != "" && ev.Status != f.Status {
		return false
	}
	return true
}

// MemoryStore keeps audit events in memory.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryStore returns an in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends an audit event.
func (s *MemoryStore) Record(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.At = normalizeTime(event.At)
	s.events = append(s.events, event)
	return nil
}

// List returns filtered audit events in insertion order.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, 0, len(s.events))
	for _, ev := range s.events {
		if !filter.match(ev) {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func encodeDetail(detail any) ([]byte, error) {
	if detail == nil {
		return []byte("null"), nil
	}
	return json.Marshal(detail)
}

func decodeDetail(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeTime(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now().UTC()
	}
	return value.UTC()
}
