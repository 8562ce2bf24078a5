// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package ops provides the infrastructure capabilities exposed as tools:
// remote shell execution, inventory listing and validation, and a local CLI.
//
// Cloud access goes through the CommandRunner and Inventory interfaces; the
// AWS implementations live in ops/awsops.
package ops

import (
	"context"
	"fmt"

	"github.com/jllopis/opsagent/pkg/executor"
	"github.com/jllopis/opsagent/pkg/tools"
)

// Tool names.
const (
	ToolRunShellCommand    = "run_shell_command"
	ToolValidateInstanceID = "validate_instance_id"
	ToolListInstances      = "list_instances"
	ToolExecuteCLI         = "execute_cli"
)

// Instance is one inventory entry.
type Instance struct {
	ID    string
	Name  string
	Type  string
	State string
}

// String renders the inventory line shown to the oracle.
func (i Instance) String() string {
	name := i.Name
	if name == "" {
		name = "N/A"
	}
	return fmt.Sprintf("ID: %s, Name: %s, Type: %s, State: %s", i.ID, name, i.Type, i.State)
}

// Inventory enumerates the instances in the current region.
type Inventory interface {
	Instances(ctx context.Context) ([]Instance, error)
}

// InvocationStatus is the remote state of a command on one target.
type InvocationStatus string

const (
	InvocationPending   InvocationStatus = "pending"
	InvocationSucceeded InvocationStatus = "succeeded"
	InvocationFailed    InvocationStatus = "failed"
)

// Invocation is a snapshot of a command on one target.
type Invocation struct {
	Status   InvocationStatus
	Stdout   string
	Stderr   string
	ExitCode int
	// Detail carries the remote status text when there is no stderr.
	Detail string
}

// CommandRunner submits shell commands to remote targets.
type CommandRunner interface {
	// Send submits command to every target and returns a correlation id.
	Send(ctx context.Context, targets []string, command string) (string, error)
	// Invocation reports the state of the command on one target.
	Invocation(ctx context.Context, commandID, target string) (Invocation, error)
}

// Deps are the backends behind the built-in tools. A nil backend leaves its
// tools unregistered.
type Deps struct {
	Runner    CommandRunner
	Inventory Inventory
	Wait      executor.WaitConfig
	// AllowedPrograms enables execute_cli when non-empty.
	AllowedPrograms []string
}

// Register adds the built-in tools to registry in prompt order.
func Register(registry *tools.Registry, deps Deps) error {
	if deps.Runner != nil {
		if err := registry.Register(NewRemoteShell(deps.Runner, deps.Wait).Spec()); err != nil {
			return err
		}
	}
	if deps.Inventory != nil {
		if err := registry.Register(ValidateInstanceSpec(deps.Inventory)); err != nil {
			return err
		}
		if err := registry.Register(ListInstancesSpec(deps.Inventory)); err != nil {
			return err
		}
	}
	if len(deps.AllowedPrograms) > 0 {
		if err := registry.Register(NewCLI(deps.AllowedPrograms).Spec()); err != nil {
			return err
		}
	}
	return nil
}
