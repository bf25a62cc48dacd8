package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr() != "0.0.0.0:8000" {
		t.Errorf("addr = %q", cfg.Server.Addr())
	}
	if cfg.LLM.Provider != "anthropic" || cfg.LLM.Timeout != 60*time.Second {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Tasks.Workers != 4 || cfg.Tasks.QueueSize != 256 {
		t.Errorf("tasks = %+v", cfg.Tasks)
	}
	if cfg.Maintenance.PruneSchedule != "@hourly" {
		t.Errorf("prune schedule = %q", cfg.Maintenance.PruneSchedule)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	content := `
server:
  port: 9090
llm:
  provider: openai
  model: gpt-4o-mini
log:
  level: debug
  format: text
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("log = %+v", cfg.Log)
	}
	// Untouched sections keep their defaults.
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host = %q", cfg.Server.Host)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing explicit config file accepted")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("RELAY_SERVER_PORT", "7777")
	t.Setenv("RELAY_LLM_API_KEY", "sk-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.LLM.APIKey)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "cohere" }},
		{"negative workers", func(c *Config) { c.Tasks.Workers = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}
