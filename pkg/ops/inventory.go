package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jllopis/opsagent/pkg/core"
	"github.com/jllopis/opsagent/pkg/errors"
)

var validateInstanceSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"instance_id": {"type": "string", "title": "instance ID", "minLength": 1, "pattern": "\\S"}
	},
	"required": ["instance_id"],
	"x-bare": "instance_id"
}`)

// ListInstancesSpec returns the list_instances tool. Its input is ignored.
func ListInstancesSpec(inv Inventory) core.ToolSpec {
	return core.ToolSpec{
		Name:        ToolListInstances,
		Description: "List all EC2 instances in the current region, one per line. The input is ignored.",
		Capability: core.CapabilityFunc(func(ctx context.Context, _ core.Input) (core.Result, error) {
			instances, err := listInventory(ctx, inv)
			if err != nil {
				return core.Result{}, err
			}
			return core.Result{Content: renderInventory(instances)}, nil
		}),
	}
}

// ValidateInstanceSpec returns the validate_instance_id tool. It reports the
// whole inventory and whether the given id is part of it.
func ValidateInstanceSpec(inv Inventory) core.ToolSpec {
	return core.ToolSpec{
		Name: ToolValidateInstanceID,
		Description: "Check whether an instance ID exists in the current region. Input is " +
			`{"instance_id": "i-..."} or the bare id. Returns every instance and whether the id was found.`,
		InputSchema: validateInstanceSchema,
		Capability: core.CapabilityFunc(func(ctx context.Context, in core.Input) (core.Result, error) {
			target := strings.TrimSpace(in.String("instance_id"))
			instances, err := listInventory(ctx, inv)
			if err != nil {
				return core.Result{}, err
			}
			membership := &core.Membership{Target: target}
			for _, instance := range instances {
				membership.Inventory = append(membership.Inventory, instance.String())
				if instance.ID == target {
					membership.Found = true
				}
			}
			content := renderInventory(instances)
			if content != "" {
				content += "\n"
			}
			content += fmt.Sprintf("instance %s in region: %t", target, membership.Found)
			return core.Result{Content: content, Membership: membership}, nil
		}),
	}
}

func listInventory(ctx context.Context, inv Inventory) ([]Instance, error) {
	instances, err := inv.Instances(ctx)
	if err != nil {
		if errors.CodeOf(err) == errors.CodeInternal {
			return nil, errors.New(errors.CodeRemoteFailure, "list instances failed", err)
		}
		return nil, err
	}
	return instances, nil
}

func renderInventory(instances []Instance) string {
	lines := make([]string, len(instances))
	for i, instance := range instances {
		lines[i] = instance.String()
	}
	return strings.Join(lines, "\n")
}
