// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"fmt"
	"strings"

	"github.com/jllopis/opsagent/pkg/core"
	"github.com/jllopis/opsagent/pkg/errors"
)

// Abort reasons, one per terminal failure.
const (
	ReasonStepBudget        = "step budget exceeded"
	ReasonMalformed         = "malformed response"
	ReasonOracleUnavailable = "oracle unavailable"
	ReasonCanceled          = "canceled"
)

func abortStepBudget() core.Outcome {
	return core.Aborted(errors.CodeStepBudget, ReasonStepBudget)
}

func abortMalformed() core.Outcome {
	return core.Aborted(errors.CodeMalformedResponse, ReasonMalformed)
}

func abortOracleUnavailable() core.Outcome {
	return core.Aborted(errors.CodeOracleUnavailable, ReasonOracleUnavailable)
}

func abortCanceled() core.Outcome {
	return core.Aborted(errors.CodeCanceled, ReasonCanceled)
}

func abortUnknownTool(name string) core.Outcome {
	return core.Aborted(errors.CodeUnknownTool, "unrecognized tool: "+name)
}

// askForMissing is the answer to a call whose input lacked a required
// field. label is the field's human name, e.g. "instance ID".
func askForMissing(label string) core.Outcome {
	if label == "" {
		label = "input"
	}
	return core.FinalAnswer(fmt.Sprintf("cannot process the request, please include a valid %s in the input", label))
}

// askToChoose is the answer when the requested instance is not in the
// inventory.
func askToChoose(m core.Membership) core.Outcome {
	var b strings.Builder
	fmt.Fprintf(&b, "cannot process the request, instance %s was not found. ", m.Target)
	if len(m.Inventory) == 0 {
		b.WriteString("There are no instances available in this region.")
		return core.FinalAnswer(b.String())
	}
	b.WriteString("Please choose one of the instances available in this region:")
	for _, line := range m.Inventory {
		b.WriteString("\n")
		b.WriteString(line)
	}
	return core.FinalAnswer(b.String())
}

// refusal is the answer after the gate denied a call and the oracle did not
// refuse on its own.
func refusal(call core.ToolCall, reason string) core.Outcome {
	return core.FinalAnswer(fmt.Sprintf(
		"The command is to run %s with input %q, which was refused (%s) as it is a harmful command and I can not fulfill the requirement.",
		call.ToolName, call.RawInput, reason))
}

func rejectedObservation(call core.ToolCall, reason string) core.Observation {
	obs := core.Failed(call.ToolName, errors.CodeSecurityRejection, reason)
	obs.Content = fmt.Sprintf("command refused by the safety gate: %s", call.RawInput)
	return obs
}

func newInvalidInputError(msg string) *errors.OpsError {
	return errors.New(errors.CodeInvalidInput, msg, nil).
		WithRecoverable(false)
}
