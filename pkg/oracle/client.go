// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package oracle

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/opsagent/pkg/config"
	"github.com/jllopis/opsagent/pkg/errors"
	"github.com/jllopis/opsagent/pkg/llm"
	"github.com/jllopis/opsagent/pkg/resilience"
	"github.com/jllopis/opsagent/pkg/telemetry"
	"github.com/jllopis/opsagent/pkg/tools"
)

// Settings configures an LLM-backed oracle.
type Settings struct {
	Provider      string
	Model         string
	MaxTokens     int
	Temperature   float64
	StopSequences []string
	// Timeout bounds a single model call; zero means no per-call limit.
	Timeout          time.Duration
	MaxAttempts      int
	InitialBackoff   time.Duration
	BreakerThreshold int
	BreakerReset     time.Duration
	NativeTools      bool
	Rules            []string
}

// SettingsFromConfig merges the llm and oracle sections.
func SettingsFromConfig(llmCfg config.LLMConfig, cfg config.OracleConfig) Settings {
	return Settings{
		Provider:         llmCfg.Provider,
		Model:            llmCfg.Model,
		MaxTokens:        llmCfg.MaxTokens,
		Temperature:      llmCfg.Temperature,
		StopSequences:    llmCfg.StopSequences,
		Timeout:          cfg.Timeout,
		MaxAttempts:      cfg.MaxAttempts,
		InitialBackoff:   cfg.InitialBackoff,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerReset:     cfg.BreakerReset,
		NativeTools:      cfg.NativeTools,
		Rules:            cfg.Rules,
	}
}

// Client is an Oracle backed by an llm.Provider. Each Decide sends one
// prompt; transport failures are retried with backoff behind a circuit
// breaker shared by every caller of the client.
type Client struct {
	provider llm.Provider
	settings Settings
	retry    resilience.RetryConfig
	breaker  *resilience.CircuitBreaker
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *telemetry.AgentMetrics
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records oracle errors.
func WithMetrics(m *telemetry.AgentMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithBreaker replaces the client's circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) {
		if cb != nil {
			c.breaker = cb
		}
	}
}

// NewClient creates an LLM-backed oracle.
func NewClient(provider llm.Provider, settings Settings, opts ...Option) *Client {
	retry := resilience.DefaultRetryConfig()
	if settings.MaxAttempts > 0 {
		retry = retry.WithMaxAttempts(settings.MaxAttempts)
	}
	if settings.InitialBackoff > 0 {
		retry = retry.WithInitialDelay(settings.InitialBackoff)
	}

	c := &Client{
		provider: provider,
		settings: settings,
		retry:    retry,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "oracle",
			FailureThreshold: settings.BreakerThreshold,
			Timeout:          settings.BreakerReset,
			OpenCode:         errors.CodeOracleUnavailable,
		}),
		logger: slog.Default(),
		tracer: otel.Tracer("opsagent/oracle"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Breaker exposes the client's circuit breaker.
func (c *Client) Breaker() *resilience.CircuitBreaker { return c.breaker }

// Decide implements Oracle.
func (c *Client) Decide(ctx context.Context, req Request) (Action, error) {
	ctx, span := c.tracer.Start(ctx, "oracle.decide")
	defer span.End()

	prompt, err := BuildPrompt(req, c.settings.Rules)
	if err != nil {
		return Action{}, errors.New(errors.CodeInternal, "render oracle prompt", err)
	}
	chat := llm.Prompt(c.settings.Model, prompt)
	chat.Temperature = c.settings.Temperature
	chat.MaxTokens = c.settings.MaxTokens
	chat.StopSequences = c.settings.StopSequences
	if c.settings.NativeTools {
		chat.Tools = tools.Definitions(req.Tools)
	}

	attempt := 0
	resp, err := resilience.DoValue(ctx, c.retry, func() (*llm.ChatResponse, error) {
		attempt++
		var out *llm.ChatResponse
		callErr := c.breaker.Call(ctx, func() error {
			var chatErr error
			out, chatErr = resilience.WithTimeoutValue(ctx, c.settings.Timeout, func(ctx context.Context) (*llm.ChatResponse, error) {
				return c.provider.Chat(ctx, chat)
			})
			return chatErr
		})
		if callErr != nil {
			c.logger.WarnContext(ctx, "oracle.call.failed",
				slog.Int("attempt", attempt),
				slog.String("error", callErr.Error()),
			)
		}
		return out, callErr
	})
	span.SetAttributes(telemetry.LLMAttributes(c.settings.Model, c.settings.Provider, len(chat.Messages), attempt)...)

	if err != nil {
		err = c.classify(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "oracle unavailable")
		c.metrics.RecordError(ctx, err, "oracle")
		return Action{}, err
	}
	if resp == nil {
		return Action{}, errors.New(errors.CodeOracleUnavailable, "oracle returned no response", nil)
	}
	span.SetAttributes(telemetry.LLMUsageAttributes(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)...)

	action, err := Parse(resp.Content, resp.ToolCalls)
	if err != nil {
		span.RecordError(err)
		c.logger.WarnContext(ctx, "oracle.response.malformed", slog.String("error", err.Error()))
		return Action{}, err
	}
	c.logger.DebugContext(ctx, "oracle.decided",
		slog.String("kind", string(action.Kind)),
		slog.String("tool", action.Call.ToolName),
	)
	return action, nil
}

func (c *Client) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.HasCode(err, errors.CodeCanceled) {
		return errors.New(errors.CodeCanceled, "canceled", err)
	}
	if errors.HasCode(err, errors.CodeOracleUnavailable) {
		return err
	}
	return errors.New(errors.CodeOracleUnavailable, "oracle unavailable", err)
}
