package audit

import (
	"context"

	"github.com/jllopis/opsagent/pkg/core"
)

// Redactor masks secrets in text.
type Redactor interface {
	Redact(text string) string
}

// RedactingStore masks secrets in every event before the wrapped store
// records it. Listing is passed through.
type RedactingStore struct {
	Store
	redactor Redactor
}

// NewRedactingStore wraps store. A nil redactor returns store unchanged.
func NewRedactingStore(store Store, redactor Redactor) Store {
	if redactor == nil {
		return store
	}
	return &RedactingStore{Store: store, redactor: redactor}
}

// Record implements Store.
func (s *RedactingStore) Record(ctx context.Context, event Event) error {
	event.Instruction = s.redactor.Redact(event.Instruction)
	event.Input = s.redactor.Redact(event.Input)
	switch d := event.Detail.(type) {
	case core.Observation:
		d.Content = s.redactor.Redact(d.Content)
		d.Reason = s.redactor.Redact(d.Reason)
		event.Detail = d
	case core.Outcome:
		d.Text = s.redactor.Redact(d.Text)
		d.Reason = s.redactor.Redact(d.Reason)
		event.Detail = d
	case string:
		event.Detail = s.redactor.Redact(d)
	}
	return s.Store.Record(ctx, event)
}
