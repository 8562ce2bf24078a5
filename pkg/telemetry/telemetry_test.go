package telemetry

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/jllopis/opsagent/pkg/core"
)

func TestInitNone(t *testing.T) {
	shutdown, err := InitWithConfig("test-service", "v0.0.1", Config{Exporter: "none"})
	if err != nil {
		t.Fatalf("InitWithConfig failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestInitStdout(t *testing.T) {
	shutdown, err := InitWithConfig("test-service", "v0.0.1", Config{Exporter: "stdout"})
	if err != nil {
		t.Fatalf("InitWithConfig failed: %v", err)
	}
	if shutdown == nil {
		t.Fatal("Shutdown function should not be nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestInitErrors(t *testing.T) {
	if _, err := InitWithConfig("svc", "v", Config{Exporter: "zipkin"}); err == nil {
		t.Errorf("expected unknown exporter error")
	}
	if _, err := InitWithConfig("svc", "v", Config{Exporter: "otlp"}); err == nil {
		t.Errorf("expected missing endpoint error")
	}
}

func TestOTLPHeaders(t *testing.T) {
	headers := otlpHeaders(Config{
		OTLPHeaders: map[string]string{"x-org-id": "org-123"},
		OTLPUser:    "admin",
		OTLPToken:   "secret",
	})
	if headers["x-org-id"] != "org-123" {
		t.Errorf("custom header lost: %v", headers)
	}
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:secret"))
	if headers["Authorization"] != want {
		t.Errorf("unexpected auth header %q", headers["Authorization"])
	}
	if got := otlpHeaders(Config{OTLPUser: "admin"}); len(got) != 0 {
		t.Errorf("user without token must not add auth, got %v", got)
	}
}

func TestLoggerAddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "debug", "json")

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.InfoContext(ctx, "agent.step.started", "step", 1)
	span.End()

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if record["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("missing trace id: %v", record)
	}
	if record["span_id"] == nil {
		t.Errorf("missing span id: %v", record)
	}
}

func TestLoggerAddsRunID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "json")

	ctx := core.WithRunID(context.Background(), "run-1")
	logger.InfoContext(ctx, "executor.call.finished")
	logger.InfoContext(ctx, "agent.outcome", "run_id", "run-explicit")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	var first, second map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first["run_id"] != "run-1" {
		t.Errorf("run id from context missing: %v", first)
	}
	if second["run_id"] != "run-explicit" || strings.Count(lines[1], "run_id") != 1 {
		t.Errorf("explicit run id must win without duplicates: %s", lines[1])
	}
	if _, ok := first["trace_id"]; ok {
		t.Errorf("no span in context, got trace id: %v", first)
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "text")
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
	DiscardLogger().Error("nothing")
}

func TestOTLPSmoke(t *testing.T) {
	if os.Getenv("OPSAGENT_OTLP_SMOKE_TEST") != "1" {
		t.Skip("set OPSAGENT_OTLP_SMOKE_TEST=1 to run")
	}
	endpoint := os.Getenv("OPSAGENT_TELEMETRY_OTLP_ENDPOINT")
	if endpoint == "" {
		t.Skip("set OPSAGENT_TELEMETRY_OTLP_ENDPOINT for OTLP smoke test")
	}

	shutdown, err := InitWithConfig("telemetry-smoke-test", "dev", Config{
		Exporter:     "otlp",
		OTLPEndpoint: endpoint,
		OTLPInsecure: os.Getenv("OPSAGENT_TELEMETRY_OTLP_INSECURE") == "true",
	})
	if err != nil {
		t.Fatalf("failed to init telemetry: %v", err)
	}
	m, err := NewAgentMetrics()
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	m.RecordStep(context.Background(), "tool")
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("telemetry shutdown failed: %v", err)
	}
}
