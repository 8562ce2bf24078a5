package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Config  string   `short:"c" type:"path" help:"Config file path"`
	Profile string   `help:"Profile file layered over the config file (config.<profile>.yaml)"`
	Set     []string `sep:"none" help:"Override a config key (repeatable)" placeholder:"KEY=VALUE"`
	Output  string   `short:"o" enum:"text,json,yaml" default:"text" help:"Output format (text, json, yaml)"`

	Ask     AskCmd     `cmd:"" help:"Resolve one instruction"`
	Chat    ChatCmd    `cmd:"" help:"Interactive session with conversation history"`
	Batch   BatchCmd   `cmd:"" help:"Resolve one instruction per line of a file"`
	Tools   ToolsCmd   `cmd:"" help:"List registered tools"`
	Check   CheckCmd   `cmd:"" help:"Run an input through the safety gate"`
	Audit   AuditCmd   `cmd:"" help:"Query recorded steps and outcomes"`
	MCP     MCPCmd     `cmd:"" name:"mcp" help:"Serve the tools over MCP on stdio"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// AskCmd resolves a single instruction.
type AskCmd struct {
	Instruction []string `arg:"" help:"Instruction in natural language"`
	Instance    string   `short:"i" help:"Target EC2 instance id, appended to the instruction"`
	Verbose     bool     `short:"v" help:"Print every tool step before the answer"`
}

// ChatCmd reads instructions from stdin until EOF or "exit".
type ChatCmd struct {
	Verbose bool `short:"v" help:"Print every tool step before the answer"`
}

// BatchCmd resolves a file of instructions concurrently.
type BatchCmd struct {
	File        string `arg:"" help:"File with one instruction per line (- for stdin)"`
	Concurrency int    `short:"n" default:"4" help:"Instructions resolved at the same time"`
}

// ToolsCmd lists the tool catalog.
type ToolsCmd struct {
	Schema bool `help:"Include input schemas"`
}

// CheckCmd evaluates the safety gate without running anything.
type CheckCmd struct {
	Input string `arg:"" help:"Raw tool input"`
	Tool  string `short:"t" default:"run_shell_command" help:"Tool name the input is for"`
}

// AuditCmd lists audit events.
type AuditCmd struct {
	RunID  string `name:"run" help:"Only events of this run id"`
	Kind   string `help:"Only step or outcome events"`
	Tool   string `help:"Only events of this tool"`
	Status string `help:"Only events with this status"`
	Limit  int    `default:"50" help:"Maximum events (0 for all)"`
}

// MCPCmd serves the registry over MCP.
type MCPCmd struct{}

// VersionCmd shows version information.
type VersionCmd struct{}

func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
