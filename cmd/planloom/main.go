package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"planloom/internal/command"
	"planloom/internal/config"
	"planloom/internal/featurestate"
	"planloom/internal/global"
	"planloom/internal/lifecycle"
	"planloom/internal/localapi"
	"planloom/internal/logging"
	"planloom/internal/planner"
	"planloom/internal/provider"
)

var version = "dev"

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := command.BuildApp(command.Deps{
		RunServe:     runServe,
		RunMigrateUp: runMigrateUp,
	})
	if err := app.RunContext(rootCtx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "planloom:", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger := logging.NewLogger(logging.Options{Level: cfg.LogLevel, Component: "planloom"})

	globalCfg, err := global.NewConfigStore(cfg.ConfigDir).LoadOrInit()
	if err != nil {
		return fmt.Errorf("load global config: %w", err)
	}
	if err := featurestate.InitGlobalDB(cfg.DBPath); err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	prov, backend, err := buildProvider(ctx, cfg, globalCfg, logger)
	if err != nil {
		return err
	}

	store := featurestate.NewStore()
	pl := planner.NewPlanner(prov, store, nil, logger)
	pl.Decomposer.Attempts = globalCfg.Planning.DecomposeAttempts
	pl.Decomposer.MinSubtasks = globalCfg.Planning.MinSubtasks
	pl.Decomposer.MaxSubtasks = globalCfg.Planning.MaxSubtasks
	sm := &planner.StateMachine{Store: store, Logger: logger}

	srv := localapi.NewServer(localapi.Deps{
		Planning: pl,
		Status:   sm,
		Tasks:    store,
		Logger:   logger,
	})
	pl.Notifier = srv.Hub()
	sm.Notifier = srv.Hub()

	addr := fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.ListenPort)
	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler()}

	mgr := lifecycle.NewManager()
	mgr.AddRun("http", func(runCtx context.Context) error {
		go func() {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	mgr.AddShutdown("log", func(context.Context) error {
		logger.Info("planloom stopped")
		return nil
	})

	logger.Info("planloom serving",
		"version", version, "addr", addr, "backend", backend, "db", cfg.DBPath)
	return mgr.StartAndWait(ctx)
}

// buildProvider picks the backend once at startup; there is no runtime
// switching or capability probing.
func buildProvider(ctx context.Context, cfg config.Config, globalCfg global.GlobalConfig, logger *slog.Logger) (provider.CompletionProvider, string, error) {
	backend := strings.TrimSpace(strings.ToLower(cfg.Backend))
	if backend == "" {
		backend = globalCfg.Backend
	}
	switch backend {
	case global.BackendOpenAI:
		p, err := provider.NewOpenAIProvider(provider.OpenAIConfig{
			BaseURL:       cfg.OpenAIEndpoint,
			Model:         globalCfg.OpenAI.Model,
			FallbackModel: globalCfg.OpenAI.FallbackModel,
			APIKey:        cfg.OpenAIAPIKey,
		}, nil, logger)
		return p, backend, err
	case global.BackendGemini:
		p, err := provider.NewGeminiProvider(ctx, provider.GeminiConfig{
			Model:         globalCfg.Gemini.Model,
			FallbackModel: globalCfg.Gemini.FallbackModel,
			APIKey:        cfg.GeminiAPIKey,
		}, logger)
		return p, backend, err
	default:
		return nil, backend, fmt.Errorf("unknown backend %q", backend)
	}
}

func runMigrateUp(_ context.Context, cfg config.Config) error {
	logger := logging.NewLogger(logging.Options{Level: cfg.LogLevel, Component: "migrate"})
	if err := featurestate.InitGlobalDB(cfg.DBPath); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("migrations applied", "db", cfg.DBPath)
	return nil
}
