// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jllopis/opsagent/pkg/errors"
)

// WithTimeout runs fn with a derived context bounded by d.
//
// fn receives the derived context and must honor it. A deadline hit becomes
// errors.CodeTimeout; a canceled parent becomes errors.CodeCanceled. A zero
// duration runs fn with the parent context unchanged.
func WithTimeout(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	if d <= 0 {
		return classifyContextErr(ctx, d, fn(ctx))
	}

	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	return classifyContextErr(tctx, d, fn(tctx))
}

// WithTimeoutValue is WithTimeout for functions that return a value.
func WithTimeoutValue[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := WithTimeout(ctx, d, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	return result, err
}

func classifyContextErr(ctx context.Context, d time.Duration, err error) error {
	if err == nil {
		return nil
	}
	var oe *errors.OpsError
	if stderrors.As(err, &oe) {
		return err
	}
	switch {
	case stderrors.Is(ctx.Err(), context.DeadlineExceeded) || stderrors.Is(err, context.DeadlineExceeded):
		return errors.New(errors.CodeTimeout, "operation exceeded timeout", err).
			WithContext("timeout", d.String()).
			WithRecoverable(true)
	case stderrors.Is(ctx.Err(), context.Canceled):
		return errors.New(errors.CodeCanceled, "operation canceled", err)
	}
	return err
}
