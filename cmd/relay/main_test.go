package main

import (
	"io"
	"testing"

	"github.com/relaycore/relay/internal/config"
	"github.com/relaycore/relay/internal/observability"
)

func TestRootCommandTree(t *testing.T) {
	root := buildRootCmd()

	want := map[string]bool{"serve": false, "version": false}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing %q subcommand", name)
		}
	}
}

func TestBuildProviderWithoutKey(t *testing.T) {
	log := observability.NewLogger(observability.LogConfig{Output: io.Discard})
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}

	if p := buildProvider(cfg, log); p != nil {
		t.Errorf("provider = %v, want nil without an API key", p)
	}

	cfg.LLM.Provider = "openai"
	if p := buildProvider(cfg, log); p != nil {
		t.Errorf("openai provider = %v, want nil without an API key", p)
	}
}

func TestBuildProviderWithKey(t *testing.T) {
	log := observability.NewLogger(observability.LogConfig{Output: io.Discard})
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.LLM.APIKey = "test-key"

	p := buildProvider(cfg, log)
	if p == nil {
		t.Fatal("provider is nil")
	}
	if p.Name() != "anthropic" {
		t.Errorf("provider name = %q", p.Name())
	}
}
