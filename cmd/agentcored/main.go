// agentcored hosts the agent core: event bus, loop engine, live fusion
// controller, and evolution engine, plus a diagnostics HTTP API. It owns
// the edges the core does not: storage selection, periodic drivers,
// process lifecycle.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/totalaud/agentcore/internal/api"
	"github.com/totalaud/agentcore/internal/api/handlers"
	"github.com/totalaud/agentcore/internal/bus"
	"github.com/totalaud/agentcore/internal/config"
	"github.com/totalaud/agentcore/internal/evolution"
	"github.com/totalaud/agentcore/internal/fusion"
	"github.com/totalaud/agentcore/internal/loops"
	"github.com/totalaud/agentcore/internal/memory"
	"github.com/totalaud/agentcore/internal/store"
	"github.com/totalaud/agentcore/internal/telemetry"
	"github.com/totalaud/agentcore/pkg/contracts"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	log.Info().Msg("🎛️ Agent core starting...")

	cfg := config.Load()
	ctx := context.Background()

	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}
	defer shutdownTelemetry(ctx)

	s, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer s.Close()

	// Core wiring. The evolution engine is the drift sink for both the
	// memory writer and the fusion controller.
	b := bus.New()
	evo := evolution.NewEngine(s)
	memories := memory.NewWriter(s, b, evo)
	reasoner := fusion.NewReasoner(nil)

	fusionCfg := fusion.DefaultConfig()
	fusionCfg.MinDelayPerPersona = cfg.Fusion.MinDelayPerPersona
	fusionCfg.MaxPerPersonaPerMinute = cfg.Fusion.MaxPerPersonaPerMinute
	fusionCfg.QueueCap = cfg.Fusion.QueueCap
	fusionCfg.ConsensusThreshold = cfg.Fusion.ConsensusThreshold
	controller := fusion.NewController(fusionCfg, s, b, reasoner, memories,
		fusion.WithEvolutionSink(evo))
	controller.Start()
	defer controller.Stop()

	engine := loops.NewEngine(s, echoRunner(), b,
		loops.WithRateLimit(cfg.Loops.MaxRunsPerAgentHour),
		loops.WithExecutionTimeout(cfg.Loops.ExecutionTimeout))

	// Periodic drivers: loop tick and fusion drain.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(every(cfg.Loops.TickPeriod), func() { engine.Tick(ctx) }); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule loop tick")
	}
	if _, err := scheduler.AddFunc(every(cfg.Fusion.DrainPeriod), func() { controller.Drain(ctx) }); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule fusion drain")
	}
	scheduler.Start()
	defer scheduler.Stop()

	h := handlers.New(s, engine, evo, b)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(cfg, s, h),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("🛑 Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().
		Int("port", cfg.Port).
		Dur("loop_tick", cfg.Loops.TickPeriod).
		Dur("fusion_drain", cfg.Fusion.DrainPeriod).
		Msg("🔥 Agent core is live")

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// openStore connects to PostgreSQL when DATABASE_URL is set, retrying
// with exponential backoff, and falls back to the in-memory store for
// zero-config development.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Database.URL == "" {
		log.Info().Msg("💾 No DATABASE_URL, using in-memory store")
		return store.NewInMemoryStore(), nil
	}

	var pg *store.PostgresStore
	connect := func() error {
		var err error
		pg, err = store.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			log.Warn().Err(err).Msg("Postgres connect failed, retrying")
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.Retry(connect, policy); err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return pg, nil
}

// echoRunner is the development runner: it logs the task and reports
// success without doing agent work. Production hosts embed the library
// and inject a real Runner.
func echoRunner() contracts.Runner {
	return contracts.RunnerFunc(func(ctx context.Context, task contracts.TaskDescriptor) (*contracts.RunResult, error) {
		log.Info().
			Str("loop_id", task.LoopID).
			Str("agent", string(task.Agent)).
			Str("loop_type", string(task.LoopType)).
			Msg("🤖 Loop task received (no runner attached)")
		return &contracts.RunResult{
			Success: true,
			Message: fmt.Sprintf("%s %s loop acknowledged", task.Agent, task.LoopType),
		}, nil
	})
}

func every(d time.Duration) string {
	return "@every " + d.String()
}
