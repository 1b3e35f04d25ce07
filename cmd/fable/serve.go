package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fable/internal/agent"
	"fable/internal/config"
	"fable/internal/llm"
	"fable/internal/logging"
	"fable/internal/observability"
	"fable/internal/server"
	"fable/internal/session"
	"fable/internal/tools"
	"fable/internal/tools/builtin"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the agent HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logging.Configure(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logger := logging.NewComponentLogger("main")
	logger.Info("starting fable on %s:%d", cfg.Server.Host, cfg.Server.Port)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	sessions, err := session.NewManager(session.ManagerConfig{
		Backend:   session.Backend(cfg.Session.Backend),
		HumanCap:  cfg.Session.HumanCap,
		CacheSize: cfg.Session.CacheSize,
		Redis:     rdb,
	})
	if err != nil {
		return fmt.Errorf("session manager: %w", err)
	}

	client := llm.NewOpenAIClient(llm.ClientConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
	})
	gateway := llm.NewGateway(client, cfg.Agent.ToolCallRetries)

	quickModel := cfg.LLM.QuickModel
	if quickModel == "" {
		quickModel = cfg.LLM.Model
	}
	quickClient := llm.NewOpenAIClient(llm.ClientConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   quickModel,
	})
	history := session.NewHistoryManager(rdb, llm.NewTitleFunc(quickClient), cfg.Session.UserSessions)

	registry := tools.NewRegistry()
	registry.MustRegister(builtin.CurrentTimeTool())
	registry.MustRegister(builtin.MathCalculatorTool())
	writerTools := builtin.NewWriterTools(sessions, rdb)
	if err := writerTools.Register(registry); err != nil {
		return fmt.Errorf("register writer tools: %w", err)
	}

	writerAgent := agent.NewWriterAgent(registry, gateway, writerTools, cfg.Agent.MaxSteps)

	tracer, err := observability.NewTracerProvider(observability.TracingConfig{
		Enabled:      cfg.Tracing.Enabled,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
		ServiceName:  cfg.Tracing.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}

	srv := server.New(server.Config{
		Host:     cfg.Server.Host,
		Port:     cfg.Server.Port,
		BasePath: cfg.Server.BasePath,
	}, server.Deps{
		Agent:    writerAgent,
		Sessions: sessions,
		History:  history,
		Redis:    rdb,
		Tracer:   tracer,
		Metrics:  observability.NewMetrics(nil),
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.Start(ctx)
	})
	group.Go(func() error {
		<-ctx.Done()
		return tracer.Shutdown(context.Background())
	})
	return group.Wait()
}
