package main

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/jllopis/opsagent/pkg/agent"
	"github.com/jllopis/opsagent/pkg/audit"
	"github.com/jllopis/opsagent/pkg/config"
	"github.com/jllopis/opsagent/pkg/core"
	"github.com/jllopis/opsagent/pkg/errors"
	"github.com/jllopis/opsagent/pkg/executor"
	"github.com/jllopis/opsagent/pkg/governance"
	"github.com/jllopis/opsagent/pkg/guardrails"
	"github.com/jllopis/opsagent/pkg/llm"
	"github.com/jllopis/opsagent/pkg/ops"
	"github.com/jllopis/opsagent/pkg/ops/awsops"
	"github.com/jllopis/opsagent/pkg/oracle"
	"github.com/jllopis/opsagent/pkg/telemetry"
	"github.com/jllopis/opsagent/pkg/tools"
)

// app holds the wired components for one CLI invocation. Parts are built
// on demand so that commands like check never touch AWS.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *telemetry.AgentMetrics
	closers []func() error

	awsCfg   *aws.Config
	registry *tools.Registry
	gate     *governance.SafetyGate
	exec     *executor.Executor
	store    audit.Store
}

// newApp loads configuration and sets up logging and telemetry. Logs go to
// stderr so stdout carries only command output.
func newApp(g *globals) (*app, error) {
	cfg, err := loadConfig(g.cli)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}
	a.logger = telemetry.ConfigureSlog(g.stderr, cfg.Log.Level, cfg.Log.Format)

	shutdown, err := telemetry.InitWithConfig(cfg.Telemetry.ServiceName, version, telemetry.FromConfig(cfg.Telemetry))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { return shutdown(context.Background()) })

	metrics, err := telemetry.NewAgentMetrics()
	if err != nil {
		a.logger.Warn("telemetry.metrics.init_error", slog.String("error", err.Error()))
	}
	a.metrics = metrics
	return a, nil
}

func loadConfig(cli *CLI) (*config.Config, error) {
	opts := []config.LoadOption{config.WithOverrides(cli.Set...)}
	if cli.Profile != "" {
		opts = append(opts, config.WithProfile(cli.Profile))
	}
	cfg, err := config.Load(cli.Config, opts...)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "load configuration", err)
	}
	return cfg, nil
}

// Close releases stores and flushes telemetry, in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("app.close_error", slog.String("error", err.Error()))
		}
	}
}

func (a *app) awsConfig(ctx context.Context) (aws.Config, error) {
	if a.awsCfg != nil {
		return *a.awsCfg, nil
	}
	cfg, err := awsops.LoadConfig(ctx, a.cfg.AWS)
	if err != nil {
		return aws.Config{}, err
	}
	a.awsCfg = &cfg
	return cfg, nil
}

// Gate builds the safety gate from the safety and governance sections.
func (a *app) Gate() (*governance.SafetyGate, error) {
	if a.gate != nil {
		return a.gate, nil
	}
	gate, err := governance.NewSafetyGateFromConfig(a.cfg.Safety, a.cfg.Governance, governance.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.gate = gate
	return gate, nil
}

// Registry registers the built-in tools backed by SSM and EC2.
func (a *app) Registry(ctx context.Context) (*tools.Registry, error) {
	if a.registry != nil {
		return a.registry, nil
	}
	awsCfg, err := a.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	registry := tools.NewRegistry()
	err = ops.Register(registry, ops.Deps{
		Runner:    awsops.NewSSMRunner(ssm.NewFromConfig(awsCfg), a.cfg.AWS.SSMDocument),
		Inventory: awsops.NewEC2Inventory(ec2.NewFromConfig(awsCfg)),
		Wait: executor.WaitConfig{
			Timeout:      a.cfg.Executor.WaitTimeout,
			PollInterval: a.cfg.Executor.PollInterval,
		},
		AllowedPrograms: a.cfg.CLI.AllowedPrograms,
	})
	if err != nil {
		return nil, err
	}
	a.registry = registry
	return registry, nil
}

// Executor runs tools from the registry.
func (a *app) Executor(ctx context.Context) (*executor.Executor, error) {
	if a.exec != nil {
		return a.exec, nil
	}
	registry, err := a.Registry(ctx)
	if err != nil {
		return nil, err
	}
	a.exec = executor.New(registry,
		executor.WithToolTimeout(a.cfg.Executor.ToolTimeout),
		executor.WithLogger(a.logger),
		executor.WithMetrics(a.metrics),
	)
	return a.exec, nil
}

// AuditStore opens the configured audit backend once.
func (a *app) AuditStore() (audit.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, closeFn, err := audit.Open(a.cfg.Audit)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeFn)
	a.store = store
	return store, nil
}

// Agent wires the decision loop.
func (a *app) Agent(ctx context.Context) (*agent.Agent, error) {
	registry, err := a.Registry(ctx)
	if err != nil {
		return nil, err
	}
	gate, err := a.Gate()
	if err != nil {
		return nil, err
	}
	exec, err := a.Executor(ctx)
	if err != nil {
		return nil, err
	}
	provider, err := buildProvider(a.cfg.LLM, func() (aws.Config, error) { return a.awsConfig(ctx) })
	if err != nil {
		return nil, err
	}
	client := oracle.NewClient(provider, oracle.SettingsFromConfig(a.cfg.LLM, a.cfg.Oracle),
		oracle.WithLogger(a.logger),
		oracle.WithMetrics(a.metrics),
	)

	opts := []agent.Option{
		agent.WithMaxSteps(a.cfg.Agent.MaxSteps),
		agent.WithMaxMalformed(a.cfg.Agent.MaxMalformed),
		agent.WithLogger(a.logger),
		agent.WithEmitter(core.SlogEventEmitter{Logger: a.logger}),
		agent.WithMetrics(a.metrics),
	}
	if a.cfg.Audit.Enabled {
		store, err := a.AuditStore()
		if err != nil {
			return nil, err
		}
		if a.cfg.Audit.Redact {
			store = audit.NewRedactingStore(store, guardrails.NewRedactor())
		}
		opts = append(opts, agent.WithAudit(store))
	}
	return agent.New(registry, gate, exec, client, opts...)
}

// buildProvider selects the LLM backend. loadAWS is only called for
// bedrock.
func buildProvider(cfg config.LLMConfig, loadAWS func() (aws.Config, error)) (llm.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "ollama":
		return llm.NewOllama(cfg.BaseURL), nil
	case "bedrock":
		awsCfg, err := loadAWS()
		if err != nil {
			return nil, err
		}
		return llm.NewBedrock(bedrockruntime.NewFromConfig(awsCfg)), nil
	case "mock":
		return llm.NewScriptedMockProvider(cfg.MockResponses...), nil
	}
	return nil, errors.New(errors.CodeInvalidInput, "unknown llm provider", nil).
		WithContext("provider", cfg.Provider)
}
