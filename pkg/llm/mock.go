package llm

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrMockUnreachable is the default FailingMockProvider error. It reads like
// a transport failure so callers treat it as retryable.
var ErrMockUnreachable = errors.New("mock provider: connection refused")

// MockProvider replies with a fixed response, or delegates to ChatFunc.
type MockProvider struct {
	Response string
	// ToolCalls are returned alongside Response, for native tool calling.
	ToolCalls []ToolCall
	Err       error
	ChatFunc  func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Chat implements Provider.
func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{
		Content:   m.Response,
		ToolCalls: m.ToolCalls,
		Usage:     Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}, nil
}

// FailingMockProvider always fails and counts the attempts.
type FailingMockProvider struct {
	Err   error
	calls atomic.Int64
}

// Chat implements Provider.
func (f *FailingMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	f.calls.Add(1)
	if f.Err == nil {
		return nil, ErrMockUnreachable
	}
	return nil, f.Err
}

// Calls reports how many times Chat was called.
func (f *FailingMockProvider) Calls() int { return int(f.calls.Load()) }

// BlockingMockProvider blocks until the request context is done, like a
// model that never answers.
type BlockingMockProvider struct{}

// Chat implements Provider.
func (BlockingMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
