package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", WithoutEnv())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected default provider ollama, got %s", cfg.LLM.Provider)
	}
	if cfg.LLM.MaxTokens != 2048 || len(cfg.LLM.StopSequences) != 1 || cfg.LLM.StopSequences[0] != "\n\nHuman" {
		t.Errorf("unexpected llm defaults %+v", cfg.LLM)
	}
	if cfg.Agent.MaxSteps != 15 || cfg.Agent.MaxMalformed != 3 {
		t.Errorf("unexpected agent defaults %+v", cfg.Agent)
	}
	if cfg.Oracle.Timeout != time.Minute || cfg.Oracle.MaxAttempts != 3 {
		t.Errorf("unexpected oracle defaults %+v", cfg.Oracle)
	}
	if len(cfg.Oracle.Rules) != len(DefaultRules) {
		t.Errorf("expected default oracle rules")
	}
	if !cfg.Safety.UseDefaults {
		t.Errorf("built-in denylist must be on by default")
	}
	if cfg.Executor.PollInterval != 5*time.Second || cfg.Executor.WaitTimeout != 100*time.Second {
		t.Errorf("unexpected executor defaults %+v", cfg.Executor)
	}
	if len(cfg.CLI.AllowedPrograms) != 1 || cfg.CLI.AllowedPrograms[0] != "aws" {
		t.Errorf("unexpected cli defaults %+v", cfg.CLI)
	}
	if cfg.AWS.SSMDocument != "AWS-RunShellScript" {
		t.Errorf("unexpected ssm document %s", cfg.AWS.SSMDocument)
	}
	if cfg.Telemetry.Exporter != "none" {
		t.Errorf("expected telemetry off by default, got %s", cfg.Telemetry.Exporter)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("OPSAGENT_LLM_PROVIDER", "bedrock")
	t.Setenv("OPSAGENT_AGENT_MAX_STEPS", "7")
	t.Setenv("OPSAGENT_EXECUTOR_TOOL_TIMEOUT", "45s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LLM.Provider != "bedrock" {
		t.Errorf("expected provider bedrock from env, got %s", cfg.LLM.Provider)
	}
	if cfg.Agent.MaxSteps != 7 {
		t.Errorf("expected max steps 7 from env, got %d", cfg.Agent.MaxSteps)
	}
	if cfg.Executor.ToolTimeout != 45*time.Second {
		t.Errorf("expected tool timeout 45s, got %s", cfg.Executor.ToolTimeout)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opsagent.yaml")
	content := `
safety:
  use_defaults: false
  patterns:
    - "reboot"
    - "re:\\bkill\\s+-9\\s+1\\b"
governance:
  policies:
    - id: no-cli
      effect: deny
      name: execute_cli
      reason: cli disabled
oracle:
  timeout: 5s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, WithoutEnv())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Safety.UseDefaults || len(cfg.Safety.Patterns) != 2 {
		t.Fatalf("unexpected safety %+v", cfg.Safety)
	}
	if len(cfg.Governance.Policies) != 1 || cfg.Governance.Policies[0].Name != "execute_cli" {
		t.Fatalf("unexpected governance %+v", cfg.Governance)
	}
	if cfg.Oracle.Timeout != 5*time.Second {
		t.Fatalf("expected 5s oracle timeout, got %s", cfg.Oracle.Timeout)
	}
	if cfg.Agent.MaxSteps != 15 {
		t.Fatalf("defaults must survive a partial file")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadWithProfile(t *testing.T) {
	tmpDir := t.TempDir()

	baseConfig := `
llm:
  provider: "ollama"
  model: "llama3.1"
log:
  level: "info"
`
	basePath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(basePath, []byte(baseConfig), 0644); err != nil {
		t.Fatalf("failed to write base config: %v", err)
	}

	devConfig := `
llm:
  provider: "mock"
log:
  level: "debug"
`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.dev.yaml"), []byte(devConfig), 0644); err != nil {
		t.Fatalf("failed to write dev config: %v", err)
	}

	tests := []struct {
		name         string
		profile      string
		wantProvider string
		wantLogLevel string
	}{
		{name: "no profile", profile: "", wantProvider: "ollama", wantLogLevel: "info"},
		{name: "dev profile", profile: "dev", wantProvider: "mock", wantLogLevel: "debug"},
		{name: "nonexistent profile falls back to base", profile: "staging", wantProvider: "ollama", wantLogLevel: "info"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadWithProfile(basePath, tc.profile)
			if err != nil {
				t.Fatalf("LoadWithProfile failed: %v", err)
			}
			if cfg.LLM.Provider != tc.wantProvider {
				t.Errorf("provider: got %s, want %s", cfg.LLM.Provider, tc.wantProvider)
			}
			if cfg.Log.Level != tc.wantLogLevel {
				t.Errorf("log level: got %s, want %s", cfg.Log.Level, tc.wantLogLevel)
			}
			if cfg.LLM.Model != "llama3.1" {
				t.Errorf("model must be inherited from base, got %s", cfg.LLM.Model)
			}
		})
	}
}

func TestLoadWithOverrides(t *testing.T) {
	t.Setenv("OPSAGENT_LLM_PROVIDER", "bedrock")

	cfg, err := Load("", WithOverrides(
		"llm.provider=mock",
		"agent.max_malformed=5",
		"audit.enabled=true",
		`cli.allowed_programs=["aws","kubectl"]`,
		"telemetry.otlp_headers.x-api-key=secret-token",
	))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "mock" {
		t.Errorf("override must win over env, got %s", cfg.LLM.Provider)
	}
	if cfg.Agent.MaxMalformed != 5 || !cfg.Audit.Enabled {
		t.Errorf("unexpected overrides %+v %+v", cfg.Agent, cfg.Audit)
	}
	if len(cfg.CLI.AllowedPrograms) != 2 || cfg.CLI.AllowedPrograms[1] != "kubectl" {
		t.Errorf("unexpected allowed programs %v", cfg.CLI.AllowedPrograms)
	}
	if cfg.Telemetry.OTLPHeaders["x-api-key"] != "secret-token" {
		t.Errorf("unexpected headers %v", cfg.Telemetry.OTLPHeaders)
	}
}

func TestParseOverrideErrors(t *testing.T) {
	for _, raw := range []string{"", "invalid", "=value"} {
		if _, _, err := ParseOverride(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"OPSAGENT_LLM_PROVIDER":           "llm.provider",
		"OPSAGENT_EXECUTOR_POLL_INTERVAL": "executor.poll_interval",
		"OPSAGENT_DEBUG":                  "debug",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestProfileConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	devPath := filepath.Join(tmpDir, "config.dev.yaml")
	if err := os.WriteFile(devPath, []byte("test"), 0644); err != nil {
		t.Fatalf("failed to create dev config: %v", err)
	}
	basePath := filepath.Join(tmpDir, "config.yaml")

	tests := []struct {
		name     string
		base     string
		profile  string
		wantPath string
	}{
		{name: "existing profile", base: basePath, profile: "dev", wantPath: devPath},
		{name: "nonexistent profile", base: basePath, profile: "prod", wantPath: ""},
		{name: "empty profile", base: basePath, profile: "", wantPath: ""},
		{name: "empty base", base: "", profile: "dev", wantPath: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := profileConfigPath(tc.base, tc.profile); got != tc.wantPath {
				t.Errorf("got %q, want %q", got, tc.wantPath)
			}
		})
	}
}
