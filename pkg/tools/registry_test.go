// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/jllopis/opsagent/pkg/core"
	"github.com/jllopis/opsagent/pkg/errors"
)

var shellSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"instance_ids": {"type": "array", "title": "instance ID", "items": {"type": "string", "minLength": 1}, "minItems": 1},
		"command": {"type": "string", "minLength": 1, "pattern": "\\S"}
	},
	"required": ["instance_ids", "command"],
	"x-positional": ["instance_ids", "command"]
}`)

var cliSchema = json.RawMessage(`{
	"type": "object",
	"properties": {"command": {"type": "string", "minLength": 1}},
	"required": ["command"],
	"x-bare": "command"
}`)

func noop() core.Capability {
	return core.CapabilityFunc(func(ctx context.Context, in core.Input) (core.Result, error) {
		return core.Result{}, nil
	})
}

func TestPropertyOf(t *testing.T) {
	tests := map[string]string{
		"instance_ids.0":  "instance_ids",
		"instance_ids.12": "instance_ids",
		"command":         "command",
		"(root)":          "(root)",
		"a.b":             "a.b",
		"a.0.1":           "a",
	}
	for in, want := range tests {
		if got := propertyOf(in); got != want {
			t.Errorf("propertyOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegisterKeepsOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"run_shell_command", "validate_instance_id", "list_instances"} {
		if err := r.Register(core.ToolSpec{Name: name, Capability: noop()}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	names := r.Names()
	if len(names) != 3 || names[0] != "run_shell_command" || names[2] != "list_instances" {
		t.Fatalf("unexpected order %v", names)
	}
	defs := r.Definitions()
	if defs[1].Function.Name != "validate_instance_id" {
		t.Fatalf("definitions not in registration order: %+v", defs)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	spec := core.ToolSpec{Name: "list_instances", Capability: noop()}
	if err := r.Register(spec); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.Register(spec)
	if !stderrors.Is(err, ErrDuplicateToolName) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if len(r.List()) != 1 {
		t.Fatalf("duplicate must not be added")
	}
}

func TestRegisterRejectsInvalid(t *testing.T) {
	r := NewRegistry()
	cases := []core.ToolSpec{
		{Name: " ", Capability: noop()},
		{Name: "x"},
		{Name: "y", Capability: noop(), InputSchema: json.RawMessage(`{"type": 12}`)},
	}
	for _, spec := range cases {
		if err := r.Register(spec); !errors.HasCode(err, errors.CodeInvalidInput) {
			t.Fatalf("expected invalid input for %+v, got %v", spec, err)
		}
	}
}

func TestLookupNotFound(t *testing.T) {
	_, err := NewRegistry().Lookup("nope")
	if !stderrors.Is(err, ErrToolNotFound) || !errors.HasCode(err, errors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDecode(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(core.ToolSpec{Name: "run_shell_command", InputSchema: shellSchema, Capability: noop()})
	_ = r.Register(core.ToolSpec{Name: "execute_cli", InputSchema: cliSchema, Capability: noop()})

	tests := []struct {
		name      string
		tool      string
		raw       string
		wantErr   string
		wantIDs   int
		wantCmd   string
		wantLabel string
	}{
		{name: "object", tool: "run_shell_command", raw: `{"instance_ids":["i-123"],"command":"uptime"}`, wantIDs: 1, wantCmd: "uptime"},
		{name: "positional", tool: "run_shell_command", raw: `[["i-1","i-2"], "top -b -n 1 | head -n 16"]`, wantIDs: 2, wantCmd: "top -b -n 1 | head -n 16"},
		{name: "single id promoted", tool: "run_shell_command", raw: `{"instance_ids":"i-9","command":"df -h"}`, wantIDs: 1, wantCmd: "df -h"},
		{name: "missing ids", tool: "run_shell_command", raw: `{"command":"uptime"}`, wantErr: "missing required field: instance_ids", wantLabel: "instance ID"},
		{name: "empty ids", tool: "run_shell_command", raw: `[[], "uptime"]`, wantErr: "missing required field: instance_ids", wantLabel: "instance ID"},
		{name: "blank id", tool: "run_shell_command", raw: `[[""], "uptime"]`, wantErr: "missing required field: instance_ids", wantLabel: "instance ID"},
		{name: "blank second id", tool: "run_shell_command", raw: `{"instance_ids":["i-1",""],"command":"uptime"}`, wantErr: "missing required field: instance_ids", wantLabel: "instance ID"},
		{name: "blank command", tool: "run_shell_command", raw: `{"instance_ids":["i-1"],"command":"   "}`, wantErr: "missing required field: command", wantLabel: "command"},
		{name: "bare string", tool: "execute_cli", raw: `aws s3 ls`, wantCmd: "aws s3 ls"},
		{name: "quoted string", tool: "execute_cli", raw: `"aws ec2 describe-instances"`, wantCmd: "aws ec2 describe-instances"},
		{name: "empty cli", tool: "execute_cli", raw: ``, wantErr: "missing required field: command"},
		{name: "broken json", tool: "execute_cli", raw: `{"command":`, wantErr: "invalid tool input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := r.Decode(tt.tool, tt.raw)
			if tt.wantErr != "" {
				oe := errors.AsOpsError(err)
				if oe == nil || oe.Code != errors.CodeValidation {
					t.Fatalf("expected validation error, got %v", err)
				}
				if oe.Message != tt.wantErr {
					t.Fatalf("expected %q, got %q", tt.wantErr, oe.Message)
				}
				if tt.wantLabel != "" && oe.Context["label"] != tt.wantLabel {
					t.Fatalf("expected label %q, got %v", tt.wantLabel, oe.Context["label"])
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if in.Raw != tt.raw {
				t.Fatalf("raw input must be preserved")
			}
			if got := len(in.Strings("instance_ids")); got != tt.wantIDs {
				t.Fatalf("expected %d ids, got %d", tt.wantIDs, got)
			}
			if in.String("command") != tt.wantCmd {
				t.Fatalf("expected command %q, got %q", tt.wantCmd, in.String("command"))
			}
		})
	}
}
