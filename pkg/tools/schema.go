// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jllopis/opsagent/pkg/core"
	"github.com/jllopis/opsagent/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// Schema extension keywords understood by the decoder. gojsonschema ignores
// unknown keywords, so they travel inside the same document.
const (
	// KeywordPositional lists property names for array-shaped input,
	// e.g. [["i-123"], "uptime"] → instance_ids, command.
	KeywordPositional = "x-positional"
	// KeywordBare names the property that receives a plain string input.
	KeywordBare = "x-bare"
)

type propertyDoc struct {
	Type  string `json:"type"`
	Title string `json:"title"`
}

type schemaDoc struct {
	Properties map[string]propertyDoc `json:"properties"`
	Required   []string               `json:"required"`
	Positional []string               `json:"x-positional"`
	Bare       string                 `json:"x-bare"`
}

type inputSchema struct {
	doc      schemaDoc
	compiled *gojsonschema.Schema
}

func compileSchema(raw json.RawMessage) (*inputSchema, error) {
	if len(raw) == 0 {
		return &inputSchema{}, nil
	}
	var doc schemaDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, err
	}
	return &inputSchema{doc: doc, compiled: compiled}, nil
}

func (s *inputSchema) decode(raw string) (core.Input, error) {
	in := core.Input{Raw: raw}
	fields, err := s.normalize(raw)
	if s.compiled == nil {
		// Schema-less tools take the raw input as is.
		in.Fields = fields
		return in, nil
	}
	if err != nil {
		return in, errors.New(errors.CodeValidation, "invalid tool input", err)
	}
	in.Fields = fields

	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(fields))
	if err != nil {
		return in, errors.New(errors.CodeValidation, "invalid tool input", err)
	}
	if result.Valid() {
		return in, nil
	}
	return in, s.validationError(result.Errors())
}

// normalize accepts a JSON object, a positional JSON array, a JSON string or
// a bare string.
func (s *inputSchema) normalize(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	fields := map[string]any{}

	switch {
	case trimmed == "":
	case strings.HasPrefix(trimmed, "{"):
		if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
			return nil, fmt.Errorf("input is not a valid JSON object: %w", err)
		}
	case strings.HasPrefix(trimmed, "[") && len(s.doc.Positional) > 0:
		var items []any
		if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
			return nil, fmt.Errorf("input is not a valid JSON array: %w", err)
		}
		for i, name := range s.doc.Positional {
			if i < len(items) {
				fields[name] = items[i]
			}
		}
	case s.doc.Bare != "":
		value := trimmed
		var quoted string
		if strings.HasPrefix(trimmed, `"`) && json.Unmarshal([]byte(trimmed), &quoted) == nil {
			value = quoted
		}
		fields[s.doc.Bare] = value
	}

	// A single string where the schema expects a list is promoted.
	for name, prop := range s.doc.Properties {
		if str, ok := fields[name].(string); ok && prop.Type == "array" {
			if strings.TrimSpace(str) == "" {
				fields[name] = []any{}
			} else {
				fields[name] = []any{str}
			}
		}
	}
	return fields, nil
}

func (s *inputSchema) validationError(errs []gojsonschema.ResultError) error {
	for _, re := range errs {
		field := propertyOf(re.Field())
		if re.Type() == "required" {
			if prop, ok := re.Details()["property"].(string); ok {
				field = prop
			}
		}
		if s.isRequired(field) && isMissingKind(re.Type()) {
			return errors.New(errors.CodeValidation, "missing required field: "+field, nil).
				WithContext("field", field).
				WithContext("label", s.label(field))
		}
	}

	msgs := make([]string, 0, len(errs))
	field := ""
	for _, re := range errs {
		if field == "" {
			field = propertyOf(re.Field())
		}
		msgs = append(msgs, re.String())
	}
	return errors.New(errors.CodeValidation, "invalid tool input: "+strings.Join(msgs, "; "), nil).
		WithContext("field", field).
		WithContext("label", s.label(field))
}

func (s *inputSchema) isRequired(field string) bool {
	for _, name := range s.doc.Required {
		if name == field {
			return true
		}
	}
	return false
}

// label is the human name of a field, taken from the schema title.
func (s *inputSchema) label(field string) string {
	if prop, ok := s.doc.Properties[field]; ok && prop.Title != "" {
		return prop.Title
	}
	return strings.ReplaceAll(field, "_", " ")
}

// propertyOf drops array item indexes from a field path, so
// "instance_ids.0" reports as "instance_ids".
func propertyOf(field string) string {
	for {
		i := strings.LastIndexByte(field, '.')
		if i < 0 || !isIndex(field[i+1:]) {
			return field
		}
		field = field[:i]
	}
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isMissingKind(kind string) bool {
	switch kind {
	case "required", "array_min_items", "string_gte", "pattern", "invalid_type":
		return true
	}
	return false
}
