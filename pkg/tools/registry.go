// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package tools holds the catalog of tools the decision loop may call.
//
// Registration order is part of the contract: the oracle prompt lists tools
// in the order they were registered.
package tools

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/jllopis/opsagent/pkg/core"
	"github.com/jllopis/opsagent/pkg/errors"
	"github.com/jllopis/opsagent/pkg/llm"
)

var (
	// ErrDuplicateToolName is returned when a tool name is registered twice.
	ErrDuplicateToolName = errors.New(errors.CodeInvalidInput, "duplicate tool name", nil)

	// ErrToolNotFound is returned by Lookup for unknown names.
	ErrToolNotFound = errors.New(errors.CodeNotFound, "tool not found", nil)
)

type entry struct {
	spec   core.ToolSpec
	schema *inputSchema
}

// Registry is an ordered, name-unique set of tools.
// It is populated at startup and read concurrently afterwards.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a tool. It fails if the name is empty or already taken, if
// the capability is nil, or if the input schema does not compile.
func (r *Registry) Register(spec core.ToolSpec) error {
	spec.Name = strings.TrimSpace(spec.Name)
	if spec.Name == "" {
		return errors.New(errors.CodeInvalidInput, "tool name is required", nil)
	}
	if spec.Capability == nil {
		return errors.New(errors.CodeInvalidInput, "tool capability is required", nil).
			WithContext("tool", spec.Name)
	}
	schema, err := compileSchema(spec.InputSchema)
	if err != nil {
		return errors.New(errors.CodeInvalidInput, "invalid input schema", err).
			WithContext("tool", spec.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[spec.Name]; exists {
		return errors.New(errors.CodeInvalidInput, "duplicate tool name", ErrDuplicateToolName).
			WithContext("tool", spec.Name)
	}
	r.entries[spec.Name] = entry{spec: spec, schema: schema}
	r.order = append(r.order, spec.Name)
	return nil
}

// Lookup returns the tool with the given name.
func (r *Registry) Lookup(name string) (core.ToolSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return core.ToolSpec{}, errors.New(errors.CodeNotFound, "tool not found", ErrToolNotFound).
			WithContext("tool", name)
	}
	return e.spec, nil
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// List returns the tools in registration order.
func (r *Registry) List() []core.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].spec)
	}
	return out
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Definitions returns LLM function definitions in registration order.
func (r *Registry) Definitions() []llm.Tool {
	return Definitions(r.List())
}

// Definitions maps tool specs to LLM function definitions, keeping order.
func Definitions(specs []core.ToolSpec) []llm.Tool {
	defs := make([]llm.Tool, 0, len(specs))
	for _, spec := range specs {
		params := json.RawMessage(`{"type":"object"}`)
		if len(spec.InputSchema) > 0 {
			params = spec.InputSchema
		}
		defs = append(defs, llm.Tool{
			Type: llm.ToolTypeFunction,
			Function: llm.FunctionDef{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  params,
			},
		})
	}
	return defs
}

// Decode turns a raw tool input into validated structured fields using the
// tool's input schema. Validation failures carry errors.CodeValidation and
// the offending field name in the "field" context key.
func (r *Registry) Decode(name, raw string) (core.Input, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return core.Input{}, errors.New(errors.CodeNotFound, "tool not found", ErrToolNotFound).
			WithContext("tool", name)
	}
	return e.schema.decode(raw)
}
