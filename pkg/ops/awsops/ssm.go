// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package awsops adapts AWS Systems Manager and EC2 to the ops interfaces.
// Clients are always injected so tests can use fakes.
package awsops

import (
	"context"
	stderrors "errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/jllopis/opsagent/pkg/config"
	"github.com/jllopis/opsagent/pkg/errors"
	"github.com/jllopis/opsagent/pkg/ops"
)

// DefaultDocument is the SSM document used to run shell scripts.
const DefaultDocument = "AWS-RunShellScript"

// LoadConfig resolves AWS credentials and region from the environment, the
// shared config files and the aws config section.
func LoadConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, errors.New(errors.CodeInvalidInput, "load aws config", err)
	}
	return awsCfg, nil
}

// SSMAPI is the subset of the SSM client used by SSMRunner.
type SSMAPI interface {
	SendCommand(ctx context.Context, params *ssm.SendCommandInput, optFns ...func(*ssm.Options)) (*ssm.SendCommandOutput, error)
	GetCommandInvocation(ctx context.Context, params *ssm.GetCommandInvocationInput, optFns ...func(*ssm.Options)) (*ssm.GetCommandInvocationOutput, error)
}

// SSMRunner implements ops.CommandRunner with SSM Run Command.
type SSMRunner struct {
	client   SSMAPI
	document string
}

// NewSSMRunner creates a runner. An empty document selects
// AWS-RunShellScript.
func NewSSMRunner(client SSMAPI, document string) *SSMRunner {
	if document == "" {
		document = DefaultDocument
	}
	return &SSMRunner{client: client, document: document}
}

// Send implements ops.CommandRunner.
func (r *SSMRunner) Send(ctx context.Context, targets []string, command string) (string, error) {
	out, err := r.client.SendCommand(ctx, &ssm.SendCommandInput{
		DocumentName: aws.String(r.document),
		InstanceIds:  targets,
		Parameters:   map[string][]string{"commands": {command}},
	})
	if err != nil {
		return "", err
	}
	if out.Command == nil || aws.ToString(out.Command.CommandId) == "" {
		return "", errors.New(errors.CodeRemoteFailure, "ssm returned no command id", nil)
	}
	return aws.ToString(out.Command.CommandId), nil
}

// Invocation implements ops.CommandRunner. An invocation that SSM has not
// registered yet is reported as pending.
func (r *SSMRunner) Invocation(ctx context.Context, commandID, target string) (ops.Invocation, error) {
	out, err := r.client.GetCommandInvocation(ctx, &ssm.GetCommandInvocationInput{
		CommandId:  aws.String(commandID),
		InstanceId: aws.String(target),
	})
	if err != nil {
		var notYet *types.InvocationDoesNotExist
		if stderrors.As(err, &notYet) {
			return ops.Invocation{Status: ops.InvocationPending}, nil
		}
		return ops.Invocation{}, err
	}

	inv := ops.Invocation{
		Stdout:   aws.ToString(out.StandardOutputContent),
		Stderr:   aws.ToString(out.StandardErrorContent),
		ExitCode: int(out.ResponseCode),
		Detail:   aws.ToString(out.StatusDetails),
	}
	switch out.Status {
	case types.CommandInvocationStatusSuccess:
		inv.Status = ops.InvocationSucceeded
	case types.CommandInvocationStatusFailed,
		types.CommandInvocationStatusTimedOut,
		types.CommandInvocationStatusCancelled,
		types.CommandInvocationStatusCancelling:
		inv.Status = ops.InvocationFailed
	default:
		inv.Status = ops.InvocationPending
	}
	return inv, nil
}
