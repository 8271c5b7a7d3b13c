package main

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"mtfbot/internal/cascade"
	"mtfbot/internal/condition"
	"mtfbot/internal/config"
	"mtfbot/internal/exchange"
	"mtfbot/internal/lock"
	"mtfbot/internal/metrics"
	"mtfbot/internal/order"
	"mtfbot/internal/risk"
	"mtfbot/internal/runner"
	"mtfbot/internal/util"
)

func main() {
	_ = godotenv.Load() // best-effort

	log := util.NewLogger("info")

	cfgPath := os.Getenv("MTFBOT_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log = util.NewLogger(cfg.App.LogLevel)

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry := condition.DefaultRegistry()
	cascadeCfg, err := config.LoadRules(cfg.RulesPath, registry)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.RulesPath).Msg("load rules")
	}

	locks := lock.NewManager(lockStore(ctx, log, cfg.Redis), cfg.Lock.Prefix, log)
	if removed, err := locks.CleanupExpired(ctx); err != nil {
		log.Warn().Err(err).Msg("stale lock sweep failed")
	} else if removed > 0 {
		log.Info().Int("removed", removed).Msg("cleared stale locks")
	}

	client := exchange.NewClient(util.Component(log, "exchange"), cfg.Exchange)

	planner, err := risk.NewLeveragePlanner(cfg.Leverage)
	if err != nil {
		log.Fatal().Err(err).Msg("leverage config")
	}

	sink, err := order.NewJSONLSink("data/orders.jsonl")
	if err != nil {
		log.Fatal().Err(err).Msg("open order journal")
	}
	defer sink.Close()
	journal := order.NewJournal(util.Component(log, "journal"), sink, 1000, 50)
	defer journal.Flush()

	orch := order.NewOrchestrator(util.Component(log, "order"), client, client, cfg.Risk, planner, journal, cfg.Order)

	eval := &cascade.RuleEvaluator{Registry: registry, Rules: cascadeCfg.Rules, Log: util.Component(log, "cascade")}
	validator := cascade.NewValidator(cascadeCfg, eval, util.Component(log, "cascade"))

	run := runner.NewRunner(util.Component(log, "runner"), cfg.Runner, cascadeCfg, validator, client, orch, locks)

	log.Info().Strs("symbols", cfg.Runner.Symbols).Int("workers", cfg.Runner.Workers).Msg("batch starting")
	results, summary := run.Collect(ctx)

	for _, res := range results {
		event := log.Info()
		if res.Status == runner.StatusError {
			event = log.Error().Err(res.Err)
		}
		event.
			Str("symbol", res.Symbol).
			Str("status", string(res.Status)).
			Str("state", string(res.State)).
			Str("side", string(res.Side)).
			Str("timeframe", res.ExecutionTimeframe).
			Str("order_id", res.OrderID).
			Msg("symbol result")
	}

	log.Info().
		Int("processed", summary.Processed).
		Int("successful", summary.Successful).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Float64("success_rate", summary.SuccessRate).
		Float64("elapsed_s", summary.ExecutionTimeSeconds).
		Msg("batch complete")
}

// lockStore connects redis when configured, falling back to the in-process
// store when the address is empty or unreachable.
func lockStore(ctx context.Context, log zerolog.Logger, cfg config.Redis) lock.Store {
	if cfg.Addr == "" {
		log.Info().Msg("no redis configured, using in-memory locks")
		return lock.NewMemoryStore()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis unreachable, falling back to in-memory locks")
		return lock.NewMemoryStore()
	}
	log.Info().Str("addr", cfg.Addr).Msg("redis lock store connected")
	return lock.NewRedisStore(client)
}
