package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relaycore/relay/internal/agent"
	"github.com/relaycore/relay/internal/config"
	"github.com/relaycore/relay/internal/guard"
	"github.com/relaycore/relay/internal/kv"
	"github.com/relaycore/relay/internal/maintenance"
	"github.com/relaycore/relay/internal/memory"
	"github.com/relaycore/relay/internal/observability"
	"github.com/relaycore/relay/internal/pipeline"
	"github.com/relaycore/relay/internal/ratelimit"
	"github.com/relaycore/relay/internal/server"
	"github.com/relaycore/relay/internal/tasks"
	"github.com/relaycore/relay/internal/telemetry"
	"github.com/relaycore/relay/internal/tenant"
	"github.com/relaycore/relay/internal/webhooks"
)

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", os.Getenv("RELAY_CONFIG"), "path to YAML config file")
	return cmd
}

func runServe(cfg *config.Config) error {
	log := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	ctx := context.Background()

	tracer, shutdownTracing, err := observability.NewTracer(observability.TraceConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		Endpoint:     cfg.Tracing.Endpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Insecure:     cfg.Tracing.Insecure,
	})
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	metrics := observability.NewMetrics()

	// The store is the shared substrate for sessions, rate limits,
	// webhooks, telemetry, and task records. Without Redis everything
	// runs degraded: guards and the model still work, persistence is off.
	var store kv.Store
	if cfg.Redis.URL != "" {
		redisStore, err := kv.NewRedis(cfg.Redis.URL)
		if err != nil {
			log.Warn(ctx, "redis unavailable, running degraded", "error", err)
			store = kv.NewMemory()
		} else {
			store = redisStore
		}
	} else {
		store = kv.NewMemory()
	}
	defer store.Close()

	provider := buildProvider(cfg, log)

	hooks := webhooks.NewStore(store, log)
	errorTracker := telemetry.NewErrorTracker(store, log)
	perf := telemetry.NewPerfMonitor(store, log)
	sessions := memory.New(store, log)

	pipe := pipeline.New(pipeline.Config{
		InputGuard:  guard.NewInputGuard(),
		OutputGuard: guard.NewOutputGuard(),
		Sessions:    sessions,
		Limiter:     ratelimit.New(store),
		Tenants:     tenant.NewStaticResolver(nil, tenant.Config{}),
		Orchestrator: agent.NewOrchestrator(agent.OrchestratorConfig{
			Provider: provider,
			Log:      log,
			Metrics:  metrics,
			Timeout:  cfg.LLM.Timeout,
			Model:    cfg.LLM.Model,
		}),
		Dispatcher: webhooks.NewDispatcher(hooks, log, metrics),
		Errors:     errorTracker,
		Log:        log,
		Metrics:    metrics,
	})

	runner := tasks.NewRunner(tasks.RunnerConfig{
		Store:     store,
		Pipeline:  pipe,
		Log:       log,
		Metrics:   metrics,
		Workers:   cfg.Tasks.Workers,
		QueueSize: cfg.Tasks.QueueSize,
	})
	runner.Start()

	scheduler, err := maintenance.NewScheduler(maintenance.SchedulerConfig{
		Errors:        errorTracker,
		Log:           log,
		PruneSchedule: cfg.Maintenance.PruneSchedule,
	})
	if err != nil {
		return err
	}
	scheduler.Start()

	srv := server.New(server.ServerConfig{
		Addr:         cfg.Server.Addr(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Pipeline:     pipe,
		Runner:       runner,
		Hooks:        hooks,
		Errors:       errorTracker,
		Perf:         perf,
		Summarizer:   maintenance.NewSummarizer(sessions, log),
		Store:        store,
		Metrics:      metrics,
		Tracer:       tracer,
		Log:          log,
		Model:        cfg.LLM.Model,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	log.Info(ctx, "relay started", "addr", cfg.Server.Addr(), "version", version)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info(ctx, "shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", "error", err)
	}
	scheduler.Stop()
	if err := runner.Stop(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "task runner drain failed", "error", err)
	}
	return nil
}

// buildProvider selects the model backend. A missing API key is not
// fatal: the pipeline answers with its unconfigured fallback, which keeps
// local development working without credentials.
func buildProvider(cfg *config.Config, log *observability.Logger) agent.Provider {
	ctx := context.Background()
	switch cfg.LLM.Provider {
	case "openai":
		p, err := agent.NewOpenAIProvider(agent.OpenAIConfig{
			APIKey:       cfg.LLM.APIKey,
			BaseURL:      cfg.LLM.BaseURL,
			DefaultModel: cfg.LLM.Model,
		})
		if err != nil {
			log.Warn(ctx, "openai provider not configured", "error", err)
			return nil
		}
		return p
	default:
		p, err := agent.NewAnthropicProvider(agent.AnthropicConfig{
			APIKey:       cfg.LLM.APIKey,
			BaseURL:      cfg.LLM.BaseURL,
			DefaultModel: cfg.LLM.Model,
		})
		if err != nil {
			log.Warn(ctx, "anthropic provider not configured", "error", err)
			return nil
		}
		return p
	}
}
