// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory keeps chat history between instructions of one session.
// History lives in process memory only and is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jllopis/opsagent/pkg/core"
)

// ConversationMemory stores and retrieves the turns of a session.
type ConversationMemory interface {
	// Append adds a finished turn to the session.
	Append(ctx context.Context, sessionID string, turn core.Turn) error

	// History returns the session's turns, oldest first, after truncation.
	History(ctx context.Context, sessionID string) (core.Conversation, error)

	// Clear removes all turns for a session.
	Clear(ctx context.Context, sessionID string) error
}

// TruncationStrategy decides which turns are handed to the oracle.
type TruncationStrategy interface {
	Truncate(turns core.Conversation) core.Conversation
}

// WindowStrategy keeps only the last MaxTurns turns. Zero keeps all.
type WindowStrategy struct {
	MaxTurns int
}

// Truncate implements TruncationStrategy.
func (w WindowStrategy) Truncate(turns core.Conversation) core.Conversation {
	if w.MaxTurns <= 0 || len(turns) <= w.MaxTurns {
		return turns
	}
	return turns[len(turns)-w.MaxTurns:]
}

// InMemoryConversation implements ConversationMemory in process memory.
type InMemoryConversation struct {
	mu       sync.RWMutex
	sessions map[string]core.Conversation
	strategy TruncationStrategy
}

// NewInMemoryConversation creates a store. A nil strategy keeps every turn.
func NewInMemoryConversation(strategy TruncationStrategy) *InMemoryConversation {
	return &InMemoryConversation{
		sessions: make(map[string]core.Conversation),
		strategy: strategy,
	}
}

// Append implements ConversationMemory.
func (m *InMemoryConversation) Append(_ context.Context, sessionID string, turn core.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = append(m.sessions[sessionID], turn)
	return nil
}

// History implements ConversationMemory. The result is a copy.
func (m *InMemoryConversation) History(_ context.Context, sessionID string) (core.Conversation, error) {
	m.mu.RLock()
	turns := append(core.Conversation(nil), m.sessions[sessionID]...)
	m.mu.RUnlock()

	if m.strategy != nil {
		turns = m.strategy.Truncate(turns)
	}
	return turns, nil
}

// Clear implements ConversationMemory.
func (m *InMemoryConversation) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// ListSessions returns all active session IDs.
func (m *InMemoryConversation) ListSessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TurnCount returns the number of stored turns, before truncation.
func (m *InMemoryConversation) TurnCount(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions[sessionID])
}

// Resolver is the part of the decision loop a Session drives.
type Resolver interface {
	Resolve(ctx context.Context, instruction string, history core.Conversation) core.Outcome
}

// Session binds a resolver to one conversation.
type Session struct {
	ID       string
	memory   ConversationMemory
	resolver Resolver
}

// NewSession starts a session with a fresh id.
func NewSession(memory ConversationMemory, resolver Resolver) *Session {
	return &Session{ID: "session-" + uuid.NewString(), memory: memory, resolver: resolver}
}

// Ask resolves instruction with the session history and records the turn.
func (s *Session) Ask(ctx context.Context, instruction string) (core.Outcome, error) {
	history, err := s.memory.History(ctx, s.ID)
	if err != nil {
		return core.Outcome{}, err
	}
	outcome := s.resolver.Resolve(ctx, instruction, history)
	if err := s.memory.Append(ctx, s.ID, core.Turn{Instruction: instruction, Outcome: outcome}); err != nil {
		return outcome, err
	}
	return outcome, nil
}
