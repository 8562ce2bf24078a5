// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads opsagent settings from defaults, a YAML file, the
// environment and command-line overrides, in that order of precedence.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// OPSAGENT_AGENT_MAX_STEPS → agent.max_steps.
const EnvPrefix = "OPSAGENT_"

type Config struct {
	Log        LogConfig        `koanf:"log"`
	LLM        LLMConfig        `koanf:"llm"`
	Agent      AgentConfig      `koanf:"agent"`
	Oracle     OracleConfig     `koanf:"oracle"`
	Safety     SafetyConfig     `koanf:"safety"`
	Governance GovernanceConfig `koanf:"governance"`
	Executor   ExecutorConfig   `koanf:"executor"`
	CLI        CLIConfig        `koanf:"cli"`
	AWS        AWSConfig        `koanf:"aws"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Audit      AuditConfig      `koanf:"audit"`
	Memory     MemoryConfig     `koanf:"memory"`
	MCP        MCPConfig        `koanf:"mcp"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider      string   `koanf:"provider"` // ollama, bedrock, mock
	Model         string   `koanf:"model"`
	BaseURL       string   `koanf:"base_url"`
	MaxTokens     int      `koanf:"max_tokens"`
	Temperature   float64  `koanf:"temperature"`
	StopSequences []string `koanf:"stop_sequences"`
	// MockResponses scripts the mock provider, one response per call.
	MockResponses []string `koanf:"mock_responses"`
}

type AgentConfig struct {
	MaxSteps     int `koanf:"max_steps"`
	MaxMalformed int `koanf:"max_malformed"`
}

type OracleConfig struct {
	Timeout          time.Duration `koanf:"timeout"`
	MaxAttempts      int           `koanf:"max_attempts"`
	InitialBackoff   time.Duration `koanf:"initial_backoff"`
	BreakerThreshold int           `koanf:"breaker_threshold"`
	BreakerReset     time.Duration `koanf:"breaker_reset"`
	// NativeTools sends the tool catalog as function definitions too.
	NativeTools bool     `koanf:"native_tools"`
	Rules       []string `koanf:"rules"`
}

type SafetyConfig struct {
	// UseDefaults prepends the built-in denylist to Patterns.
	UseDefaults bool     `koanf:"use_defaults"`
	Patterns    []string `koanf:"patterns"`
}

// GovernanceConfig holds tool-name policy rules.
type GovernanceConfig struct {
	Policies []PolicyRuleConfig `koanf:"policies"`
}

// PolicyRuleConfig is one allow/deny rule matched by tool-name glob.
type PolicyRuleConfig struct {
	ID     string `koanf:"id"`
	Effect string `koanf:"effect"`
	Type   string `koanf:"type"`
	Name   string `koanf:"name"`
	Reason string `koanf:"reason"`
}

type ExecutorConfig struct {
	ToolTimeout  time.Duration `koanf:"tool_timeout"`
	WaitTimeout  time.Duration `koanf:"wait_timeout"`
	PollInterval time.Duration `koanf:"poll_interval"`
}

type CLIConfig struct {
	AllowedPrograms []string `koanf:"allowed_programs"`
}

type AWSConfig struct {
	Region      string `koanf:"region"`
	Profile     string `koanf:"profile"`
	SSMDocument string `koanf:"ssm_document"`
}

type TelemetryConfig struct {
	Exporter           string            `koanf:"exporter"` // none, stdout, otlp
	ServiceName        string            `koanf:"service_name"`
	OTLPEndpoint       string            `koanf:"otlp_endpoint"`
	OTLPInsecure       bool              `koanf:"otlp_insecure"`
	OTLPTimeoutSeconds int               `koanf:"otlp_timeout_seconds"`
	OTLPHeaders        map[string]string `koanf:"otlp_headers"`
	OTLPUser           string            `koanf:"otlp_user"`
	OTLPToken          string            `koanf:"otlp_token"`
}

type AuditConfig struct {
	Enabled bool   `koanf:"enabled"`
	Backend string `koanf:"backend"` // memory, sqlite
	Path    string `koanf:"path"`
	Redact  bool   `koanf:"redact"` // mask secrets before recording
}

type MemoryConfig struct {
	// MaxTurns bounds the chat history passed to the oracle.
	MaxTurns int `koanf:"max_turns"`
}

type MCPConfig struct {
	ServerName string `koanf:"server_name"`
}

// DefaultRules is the prompt policy handed to the oracle unless overridden.
var DefaultRules = []string{
	"Validate the instance ID with validate_instance_id before running any command on it.",
	"If the request needs an instance ID and none is given, answer: cannot process the request, please include a valid instance ID in the input.",
	"If the instance ID is not in the inventory, ask the user to choose one of the listed instances.",
	"Refuse commands that delete, wipe or reformat system data, and explain why.",
	"Include all content of every observation in the final answer, verbatim.",
	"To show the top 10 processes, print 16 lines of the process table, e.g. top -b -n 1 | head -n 16.",
}

func defaults() map[string]any {
	return map[string]any{
		"log.level":  "info",
		"log.format": "text",

		"llm.provider":       "ollama",
		"llm.model":          "qwen2.5-coder:7b-instruct-q5_K_M",
		"llm.base_url":       "http://localhost:11434",
		"llm.max_tokens":     2048,
		"llm.temperature":    0.0,
		"llm.stop_sequences": []string{"\n\nHuman"},

		"agent.max_steps":     15,
		"agent.max_malformed": 3,

		"oracle.timeout":           "60s",
		"oracle.max_attempts":      3,
		"oracle.initial_backoff":   "500ms",
		"oracle.breaker_threshold": 5,
		"oracle.breaker_reset":     "30s",
		"oracle.native_tools":      false,
		"oracle.rules":             DefaultRules,

		"safety.use_defaults": true,

		"executor.tool_timeout":  "150s",
		"executor.wait_timeout":  "100s",
		"executor.poll_interval": "5s",

		"cli.allowed_programs": []string{"aws"},

		"aws.ssm_document": "AWS-RunShellScript",

		"telemetry.exporter":             "none",
		"telemetry.service_name":         "opsagent",
		"telemetry.otlp_timeout_seconds": 10,

		"audit.enabled": false,
		"audit.backend": "memory",
		"audit.path":    "opsagent-audit.db",
		"audit.redact":  true,

		"memory.max_turns": 10,

		"mcp.server_name": "opsagent",
	}
}

// LoadOption customizes Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	profile   string
	overrides []string
	environ   bool
}

// WithProfile layers config.<profile>.yaml over the base file when present.
func WithProfile(profile string) LoadOption {
	return func(o *loadOptions) { o.profile = strings.TrimSpace(profile) }
}

// WithOverrides applies key=value overrides last.
func WithOverrides(overrides ...string) LoadOption {
	return func(o *loadOptions) { o.overrides = append(o.overrides, overrides...) }
}

// WithoutEnv skips environment variables.
func WithoutEnv() LoadOption {
	return func(o *loadOptions) { o.environ = false }
}

// Load reads configuration. An empty path loads defaults and environment
// only.
func Load(path string, opts ...LoadOption) (*Config, error) {
	o := loadOptions{environ: true}
	for _, opt := range opts {
		opt(&o)
	}

	k := koanf.New(".")
	for key, value := range defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		if profilePath := profileConfigPath(path, o.profile); profilePath != "" {
			if err := k.Load(file.Provider(profilePath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load profile config %s: %w", profilePath, err)
			}
		}
	}

	if o.environ {
		if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
			return nil, err
		}
	}

	for _, raw := range o.overrides {
		key, value, err := ParseOverride(raw)
		if err != nil {
			return nil, err
		}
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("apply override %s: %w", key, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadWithProfile loads path and then the profile file next to it.
func LoadWithProfile(path, profile string) (*Config, error) {
	return Load(path, WithProfile(profile))
}

// envKey maps OPSAGENT_EXECUTOR_TOOL_TIMEOUT to executor.tool_timeout. The
// first segment names the section; the rest is the field.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(s, "_")
	if !ok {
		return section
	}
	return section + "." + field
}

// ParseOverride splits key=value. JSON values (numbers, booleans, lists and
// objects) are decoded; anything else is kept as a string.
func ParseOverride(raw string) (string, any, error) {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, fmt.Errorf("invalid override %q: expected key=value", raw)
	}
	var decoded any
	if err := json.Unmarshal([]byte(value), &decoded); err == nil {
		return key, decoded, nil
	}
	return key, value, nil
}

func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	candidate := strings.TrimSuffix(base, ext) + "." + profile + ext
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}
