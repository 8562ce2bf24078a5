// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package ops

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sourcegraph/conc/iter"

	"github.com/jllopis/opsagent/pkg/core"
	"github.com/jllopis/opsagent/pkg/errors"
	"github.com/jllopis/opsagent/pkg/executor"
)

var remoteShellSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"instance_ids": {
			"type": "array",
			"title": "instance ID",
			"description": "Instance IDs to run the command on",
			"items": {"type": "string", "minLength": 1},
			"minItems": 1
		},
		"command": {
			"type": "string",
			"description": "Shell command to execute",
			"minLength": 1,
			"pattern": "\\S"
		}
	},
	"required": ["instance_ids", "command"],
	"x-positional": ["instance_ids", "command"]
}`)

// RemoteShell runs a shell command on remote instances and waits for it to
// finish.
type RemoteShell struct {
	runner CommandRunner
	wait   executor.WaitConfig
}

// NewRemoteShell creates the run_shell_command capability.
func NewRemoteShell(runner CommandRunner, wait executor.WaitConfig) *RemoteShell {
	return &RemoteShell{runner: runner, wait: wait}
}

// Spec returns the tool registration.
func (r *RemoteShell) Spec() core.ToolSpec {
	return core.ToolSpec{
		Name: ToolRunShellCommand,
		Description: "Run a shell command on EC2 instances. Input is " +
			`{"instance_ids": ["i-..."], "command": "..."} or [["i-..."], "command"].`,
		InputSchema: remoteShellSchema,
		Capability:  r,
	}
}

type targetResult struct {
	target string
	wait   executor.WaitResult
	err    error
}

// Invoke implements core.Capability.
func (r *RemoteShell) Invoke(ctx context.Context, in core.Input) (core.Result, error) {
	targets := in.Strings("instance_ids")
	command := in.String("command")

	commandID, err := r.runner.Send(ctx, targets, command)
	if err != nil {
		return core.Result{}, errors.New(errors.CodeRemoteFailure, "send command failed", err).
			WithContext("targets", targets)
	}

	results := iter.Map(targets, func(target *string) targetResult {
		res, err := executor.Await(ctx, r.wait, r.probe(commandID, *target))
		return targetResult{target: *target, wait: res, err: err}
	})
	for _, res := range results {
		if res.err != nil {
			return core.Result{}, errors.New(errors.CodeCanceled, "remote command canceled", res.err).
				WithContext("command_id", commandID)
		}
	}

	if len(results) == 1 {
		return single(results[0], commandID)
	}
	return multiple(results, commandID)
}

func (r *RemoteShell) probe(commandID, target string) executor.Probe {
	return func(ctx context.Context) (executor.ProbeResult, error) {
		inv, err := r.runner.Invocation(ctx, commandID, target)
		if err != nil {
			return executor.ProbeResult{}, err
		}
		switch inv.Status {
		case InvocationSucceeded:
			return executor.ProbeResult{State: executor.ProbeSucceeded, Output: inv.Stdout}, nil
		case InvocationFailed:
			return executor.ProbeResult{State: executor.ProbeFailed, Output: inv.Stdout, Detail: failureDetail(inv)}, nil
		}
		return executor.ProbeResult{State: executor.ProbePending}, nil
	}
}

func single(res targetResult, commandID string) (core.Result, error) {
	switch res.wait.Status {
	case executor.WaitSucceeded:
		return core.Result{Content: res.wait.Output}, nil
	case executor.WaitTimedOut:
		return core.Result{}, errors.New(errors.CodeTimeout, res.wait.Detail, nil).
			WithContext("command_id", commandID).
			WithContext("target", res.target)
	}
	return core.Result{}, errors.New(errors.CodeRemoteFailure, res.wait.Detail, nil).
		WithContext("command_id", commandID).
		WithContext("target", res.target)
}

// multiple renders one block per target. It fails only when no target
// succeeded.
func multiple(results []targetResult, commandID string) (core.Result, error) {
	var b strings.Builder
	succeeded := 0
	for i, res := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("== " + res.target + " ==\n")
		body := "error: " + res.wait.Detail
		if res.wait.Status == executor.WaitSucceeded {
			body = res.wait.Output
			succeeded++
		}
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteString("\n")
		}
	}
	if succeeded == 0 {
		return core.Result{}, errors.New(errors.CodeRemoteFailure, "command failed on every target\n"+b.String(), nil).
			WithContext("command_id", commandID)
	}
	return core.Result{Content: b.String()}, nil
}

func failureDetail(inv Invocation) string {
	detail := strings.TrimSpace(inv.Stderr)
	if detail == "" {
		detail = inv.Detail
	}
	if detail == "" {
		detail = "command failed"
	}
	return detail
}
