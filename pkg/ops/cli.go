// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package ops

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/jllopis/opsagent/pkg/core"
	"github.com/jllopis/opsagent/pkg/errors"
)

var cliSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"command": {"type": "string", "title": "command", "minLength": 1, "pattern": "\\S"}
	},
	"required": ["command"],
	"x-bare": "command"
}`)

// CLI runs a pre-formed command line locally, without a shell. Only the
// programs in the allow-list may be started.
type CLI struct {
	allowed []string
}

// NewCLI creates the execute_cli capability.
func NewCLI(allowed []string) *CLI {
	return &CLI{allowed: append([]string(nil), allowed...)}
}

// Spec returns the tool registration.
func (c *CLI) Spec() core.ToolSpec {
	return core.ToolSpec{
		Name: ToolExecuteCLI,
		Description: fmt.Sprintf("Execute a CLI command locally and return its output. The full command line "+
			`must start with one of: %s. Example: "aws ec2 describe-instances".`, strings.Join(c.allowed, ", ")),
		InputSchema: cliSchema,
		Capability:  c,
	}
}

// Invoke implements core.Capability.
func (c *CLI) Invoke(ctx context.Context, in core.Input) (core.Result, error) {
	args, err := c.parse(in.String("command"))
	if err != nil {
		return core.Result{}, err
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if ctx.Err() == nil && stderrors.As(err, &exitErr) {
			return core.Result{}, errors.New(errors.CodeRemoteFailure,
				fmt.Sprintf("exit code %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String())), nil).
				WithContext("program", args[0])
		}
		if ctx.Err() != nil {
			return core.Result{}, ctx.Err()
		}
		return core.Result{}, errors.New(errors.CodeRemoteFailure, "failed to execute command", err).
			WithContext("program", args[0])
	}
	return core.Result{Content: strings.TrimSpace(stdout.String())}, nil
}

// parse splits line with shell-word rules. Shell operators are refused
// since nothing interprets them.
func (c *CLI) parse(line string) ([]string, error) {
	p := shellwords.NewParser()
	args, err := p.Parse(line)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "invalid command line", err)
	}
	if p.Position >= 0 {
		return nil, errors.New(errors.CodeInvalidInput,
			fmt.Sprintf("invalid command line: shell operator at position %d is not supported", p.Position), nil)
	}
	if len(args) == 0 || !c.isAllowed(args[0]) {
		return nil, errors.New(errors.CodeInvalidInput,
			"invalid command: the command must start with one of: "+strings.Join(c.allowed, ", "), nil)
	}
	return args, nil
}

func (c *CLI) isAllowed(program string) bool {
	for _, allowed := range c.allowed {
		if program == allowed {
			return true
		}
	}
	return false
}
