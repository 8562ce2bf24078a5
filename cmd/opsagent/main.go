// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the opsagent CLI.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/jllopis/opsagent/pkg/errors"
)

// Build-time variables (set via ldflags).
var (
	version = "dev"
	commit  = "unknown"
)

// errAborted reports that at least one instruction ended without an answer.
// The outcome has already been printed.
var errAborted = stderrors.New("instruction aborted")

// globals is bound into every command's Run method.
type globals struct {
	ctx    context.Context
	cli    *CLI
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("opsagent"),
		kong.Description("Natural-language operations assistant for EC2 fleets."),
		kong.UsageOnError(),
		kongVars(),
	)
	err := kctx.Run(&globals{ctx: ctx, cli: &cli, stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr})
	switch {
	case err == nil:
	case stderrors.Is(err, errAborted):
		stop()
		os.Exit(1)
	default:
		printError(os.Stderr, err)
		stop()
		os.Exit(2)
	}
}

func printError(w io.Writer, err error) {
	var oe *errors.OpsError
	if stderrors.As(err, &oe) {
		fmt.Fprintf(w, "Error [%s]: %s\n", oe.Code, oe.Message)
		if oe.Err != nil {
			fmt.Fprintf(w, "  Cause: %v\n", oe.Err)
		}
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

// Run prints the build version.
func (c *VersionCmd) Run(g *globals) error {
	fmt.Fprintf(g.stdout, "opsagent %s (%s)\n", version, commit)
	return nil
}
