// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jllopis/opsagent/pkg/errors"
)

// ProbeState is the state reported by one poll of an asynchronous operation.
type ProbeState int

const (
	ProbePending ProbeState = iota
	ProbeSucceeded
	ProbeFailed
)

// ProbeResult is what a probe observed.
type ProbeResult struct {
	State  ProbeState
	Output string
	// Detail explains a failure, e.g. the remote stderr.
	Detail string
}

// Probe polls an asynchronous operation once. Returning a recoverable
// *errors.OpsError keeps the wait going; any other error fails it.
type Probe func(ctx context.Context) (ProbeResult, error)

// WaitStatus classifies how a wait ended.
type WaitStatus string

const (
	WaitSucceeded WaitStatus = "succeeded"
	WaitFailed    WaitStatus = "failed"
	WaitTimedOut  WaitStatus = "timed_out"
)

// WaitResult is the outcome of Await.
type WaitResult struct {
	Status WaitStatus
	Output string
	Detail string
}

// WaitConfig bounds a wait.
type WaitConfig struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

// DefaultWaitConfig polls every 5 seconds for up to 100 seconds.
func DefaultWaitConfig() WaitConfig {
	return WaitConfig{Timeout: 100 * time.Second, PollInterval: 5 * time.Second}
}

func (c WaitConfig) normalized() WaitConfig {
	def := DefaultWaitConfig()
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.PollInterval > c.Timeout {
		c.PollInterval = c.Timeout
	}
	return c
}

// Await polls probe until it reports a terminal state or cfg.Timeout
// elapses. The first poll happens immediately. Cancellation of ctx aborts
// the wait with an errors.CodeCanceled error; every other ending is
// reported through the WaitResult.
func Await(ctx context.Context, cfg WaitConfig, probe Probe) (WaitResult, error) {
	cfg = cfg.normalized()

	deadline := time.NewTimer(cfg.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	timedOut := WaitResult{
		Status: WaitTimedOut,
		Detail: fmt.Sprintf("timed out after %s waiting for completion", cfg.Timeout),
	}

	for {
		res, err := probe(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return waitInterrupted(ctx, timedOut)
		case err != nil:
			if errors.AsOpsError(err).Recoverable {
				break
			}
			return WaitResult{Status: WaitFailed, Detail: err.Error()}, nil
		case res.State == ProbeSucceeded:
			return WaitResult{Status: WaitSucceeded, Output: res.Output}, nil
		case res.State == ProbeFailed:
			return WaitResult{Status: WaitFailed, Output: res.Output, Detail: res.Detail}, nil
		}

		select {
		case <-ctx.Done():
			return waitInterrupted(ctx, timedOut)
		case <-deadline.C:
			return timedOut, nil
		case <-ticker.C:
		}
	}
}

// waitInterrupted maps a done context: an expired deadline counts as a
// timeout, anything else as cancellation.
func waitInterrupted(ctx context.Context, timedOut WaitResult) (WaitResult, error) {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return timedOut, nil
	}
	return WaitResult{}, errors.New(errors.CodeCanceled, "wait canceled", ctx.Err())
}
