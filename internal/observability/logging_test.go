package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	logger.Info(context.Background(), "message processed", "tenant", "acme")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["msg"] != "message processed" {
		t.Errorf("msg = %v", record["msg"])
	}
	if record["tenant"] != "acme" {
		t.Errorf("tenant = %v", record["tenant"])
	}
}

func TestLogger_ContextCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithTenantID(ctx, "acme")
	ctx = WithSessionID(ctx, "sess-9")
	logger.Info(ctx, "hello")

	out := buf.String()
	for _, want := range []string{`"request_id":"req-1"`, `"tenant_id":"acme"`, `"session_id":"sess-9"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}
}

func TestLogger_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})

	logger.Info(context.Background(), "configured provider",
		"detail", "api_key=sk-abcdefghijklmnopqrstuvwxyz0123456789ABCDEF")

	out := buf.String()
	if strings.Contains(out, "sk-abcdef") {
		t.Errorf("secret leaked into log output: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Errorf("output should contain redaction marker: %s", out)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Output: &buf})

	logger.Debug(context.Background(), "quiet")
	logger.Info(context.Background(), "also quiet")
	if buf.Len() != 0 {
		t.Errorf("below-threshold records should be dropped: %s", buf.String())
	}

	logger.Warn(context.Background(), "loud")
	if !strings.Contains(buf.String(), "loud") {
		t.Error("warn record should be emitted")
	}
}

func TestTracer_DisabledWithoutEndpoint(t *testing.T) {
	tracer, shutdown, err := NewTracer(TraceConfig{})
	if err != nil {
		t.Fatalf("disabled tracer should not error: %v", err)
	}
	defer shutdown(context.Background())

	_, span := tracer.Start(context.Background(), "test")
	span.End()
	if span.SpanContext().IsValid() {
		t.Error("no-op tracer should not produce recording spans")
	}
}
