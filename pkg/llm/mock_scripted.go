package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrScriptExhausted is returned when a scripted provider runs out of responses.
var ErrScriptExhausted = errors.New("scripted mock: no more responses available")

// ScriptedMockProvider replays oracle replies in order. The `mock` provider
// in config uses it to run the CLI offline.
type ScriptedMockProvider struct {
	mu        sync.Mutex
	Responses []string
	// Repeat keeps returning the last response once the script is exhausted.
	Repeat bool
	Err    error

	callCount int
	requests  []ChatRequest
}

// NewScriptedMockProvider creates a new ScriptedMockProvider.
func NewScriptedMockProvider(responses ...string) *ScriptedMockProvider {
	return &ScriptedMockProvider{
		Responses: responses,
	}
}

// Chat pops the next scripted response or returns the configured error.
func (s *ScriptedMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	s.requests = append(s.requests, req)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Responses) == 0 {
		return nil, ErrScriptExhausted
	}

	content := s.Responses[0]
	if len(s.Responses) > 1 || !s.Repeat {
		s.Responses = s.Responses[1:]
	}

	return &ChatResponse{
		Content: content,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
	}, nil
}

// PromptAt returns the text of the i-th request's messages, or "" when
// fewer requests were received.
func (s *ScriptedMockProvider) PromptAt(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.requests) {
		return ""
	}
	var b strings.Builder
	for _, m := range s.requests[i].Messages {
		b.WriteString(m.Content)
	}
	return b.String()
}

// CallCount returns how many times Chat has been called.
func (s *ScriptedMockProvider) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

// Requests returns a copy of every request received.
func (s *ScriptedMockProvider) Requests() []ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatRequest(nil), s.requests...)
}
