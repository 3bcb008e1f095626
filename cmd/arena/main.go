package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/arena/config"
	"github.com/alejandrodnm/arena/internal/adapters/httpapi"
	"github.com/alejandrodnm/arena/internal/adapters/notify"
	"github.com/alejandrodnm/arena/internal/adapters/protocols"
	"github.com/alejandrodnm/arena/internal/adapters/storage"
	"github.com/alejandrodnm/arena/internal/application/arena"
	"github.com/alejandrodnm/arena/internal/application/engine"
	"github.com/alejandrodnm/arena/internal/domain"
	"github.com/alejandrodnm/arena/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one evolution cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("arena starting",
		"config", *configPath,
		"total_capital", cfg.Arena.TotalCapital,
		"evolution_interval", cfg.EvolutionInterval(),
		"once", *once,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	manager := arena.New(store, arenaConfig(cfg))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := manager.Rebuild(ctx); err != nil {
		slog.Error("failed to rebuild roster", "err", err)
		os.Exit(1)
	}
	if len(manager.Agents()) == 0 {
		spawned, err := manager.SpawnBatch(ctx)
		if err != nil {
			slog.Error("failed to seed roster", "err", err)
			os.Exit(1)
		}
		slog.Info("seeded empty roster", "spawned", spawned)
	}

	eng := engine.New(manager, store, store, store, buildAdapters(cfg), engine.Config{
		ExecutionTimeout: cfg.ExecutionTimeout(),
	})
	defer eng.Close()

	notifier := notify.NewConsole(nil)

	if *once {
		runCycle(ctx, manager, eng, notifier)
		return
	}

	api := httpapi.NewServer(cfg.API.ListenAddr, manager, eng, store, store)
	if err := api.Start(); err != nil {
		slog.Error("failed to start api server", "err", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := api.Shutdown(shutdownCtx); err != nil {
			slog.Warn("api shutdown", "err", err)
		}
	}()

	ticker := time.NewTicker(cfg.EvolutionInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("arena stopped cleanly")
			return
		case <-ticker.C:
			runCycle(ctx, manager, eng, notifier)
		}
	}
}

// runCycle executes one evolution cycle and reports the arena snapshot. A
// cycle failure halts trading: the roster may be mid-mutation relative to
// the event log.
func runCycle(ctx context.Context, manager *arena.Manager, eng *engine.Engine, notifier ports.Notifier) {
	if _, err := manager.RunEvolutionCycle(ctx); err != nil {
		slog.Error("evolution cycle failed", "err", err)
		eng.EmergencyStop()
		return
	}
	if err := notifier.Notify(ctx, manager.Stats()); err != nil {
		slog.Warn("notifier error", "err", err)
	}
}

func arenaConfig(cfg *config.Config) arena.Config {
	a := cfg.Arena
	return arena.Config{
		TotalCapital: a.TotalCapital,
		StableFrac:   a.StableFrac,
		ArenaFrac:    a.ArenaFrac,
		ProvingFrac:  a.ProvingFrac,
		Fitness: domain.FitnessPolicy{
			ReturnWeight:     a.Fitness.ReturnWeight,
			SharpeWeight:     a.Fitness.SharpeWeight,
			DrawdownWeight:   a.Fitness.DrawdownWeight,
			VolatilityWeight: a.Fitness.VolatilityWeight,
			ConsistencyBonus: a.Fitness.ConsistencyBonus,
			ConsistencyFloor: a.Fitness.ConsistencyFloor,
			MinHistory:       a.Fitness.MinHistory,
		},
		Graduation: arena.GraduationPolicy{
			MinFitness:         a.Graduation.MinFitness,
			MinSharpe:          a.Graduation.MinSharpe,
			MinWinRate:         a.Graduation.MinWinRate,
			MaxDrawdownProving: a.Graduation.MaxDrawdownProving,
			MaxDrawdownActive:  a.Graduation.MaxDrawdownActive,
			MinAge:             a.Graduation.MinAge,
		},
		Kill: arena.KillPolicy{
			NegativeFitnessDays: a.Kill.NegativeFitnessDays,
			MaxDrawdown:         a.Kill.MaxDrawdown,
			NegativeReturnAge:   a.Kill.NegativeReturnAge,
			MinSharpe:           a.Kill.MinSharpe,
			MinSharpeAge:        a.Kill.MinSharpeAge,
			RetirementAge:       a.Kill.RetirementAge,
		},
		ProvingStake:          a.ProvingStake,
		EliteFrac:             0.2,
		ActiveFrac:            0.3,
		EliteCapitalFrac:      0.60,
		ActiveCapitalFrac:     0.30,
		ChallengerCapitalFrac: 0.10,
		MutateTopN:            a.MutateTopN,
		MutationJitter:        a.MutationJitter,
		SpawnBatch:            a.SpawnBatch,
		Strategies:            a.Strategies,
		Seed:                  a.Seed,
	}
}

func buildAdapters(cfg *config.Config) []ports.ProtocolAdapter {
	sim := cfg.Protocols.Simulation
	adapters := []ports.ProtocolAdapter{
		protocols.NewSimulation(protocols.SimulationConfig{
			SuccessRate: sim.SuccessRate,
			MinLatency:  time.Duration(sim.MinLatencyMS) * time.Millisecond,
			MaxLatency:  time.Duration(sim.MaxLatencyMS) * time.Millisecond,
			Seed:        sim.Seed,
		}),
	}

	if cfg.Protocols.Lending.Enabled {
		adapters = append(adapters, protocols.NewLending(protocols.LendingConfig{
			BaseURL:    cfg.Protocols.Lending.BaseURL,
			SigningKey: cfg.Protocols.Lending.SigningKey,
			ReqPerSec:  cfg.Protocols.Lending.ReqPerSec,
		}))
	}
	if cfg.Protocols.Swap.Enabled {
		adapters = append(adapters, protocols.NewSwapper(protocols.SwapConfig{
			BaseURL:    cfg.Protocols.Swap.BaseURL,
			SigningKey: cfg.Protocols.Swap.SigningKey,
			ReqPerSec:  cfg.Protocols.Swap.ReqPerSec,
		}))
	}
	return adapters
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
