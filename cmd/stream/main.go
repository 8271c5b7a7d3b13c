package main

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"mtfbot/internal/cascade"
	"mtfbot/internal/condition"
	"mtfbot/internal/config"
	"mtfbot/internal/exchange"
	"mtfbot/internal/indicator"
	"mtfbot/internal/lock"
	"mtfbot/internal/metrics"
	"mtfbot/internal/order"
	"mtfbot/internal/risk"
	"mtfbot/internal/util"
)

// entryWatchTTL bounds how long a tradable signal may spend in the order
// pipeline before the attempt is abandoned without side effects. It doubles
// as the per-symbol lock TTL so a crashed holder frees the symbol.
const entryWatchTTL = 30 * time.Second

type window struct {
	klines []indicator.Kline
	max    int
}

func (w *window) push(k indicator.Kline) {
	w.klines = append(w.klines, k)
	if len(w.klines) > w.max {
		w.klines = w.klines[len(w.klines)-w.max:]
	}
}

// symbolLocks is the slice of the lock manager the event loop needs.
type symbolLocks interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// entryExecutor runs the order pipeline for one tradable decision.
type entryExecutor interface {
	Execute(ctx context.Context, dec cascade.Decision, klines []indicator.Kline, in order.ExecInput) (string, error)
}

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

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry := condition.DefaultRegistry()
	cascadeCfg, err := config.LoadRules(cfg.RulesPath, registry)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.RulesPath).Msg("load rules")
	}

	eval := &cascade.RuleEvaluator{Registry: registry, Rules: cascadeCfg.Rules, Log: util.Component(log, "cascade")}
	validator := cascade.NewValidator(cascadeCfg, eval, util.Component(log, "cascade"))

	locks := lock.NewManager(lockStore(ctx, log, cfg.Redis), cfg.Lock.Prefix, log)

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

	stream := exchange.NewKlineStream(util.Component(log, "stream"), cfg.Stream)
	events := make(chan exchange.KlineEvent, 256)
	go func() {
		if err := stream.Run(ctx, events); err != nil {
			log.Error().Err(err).Msg("kline stream stopped")
			cancel()
		}
	}()

	maxBars := cfg.Runner.KlineCount
	if maxBars <= 0 {
		maxBars = 120
	}
	windows := map[string]*window{}

	// Seed each watched window from REST so the first closed bar already
	// has enough history behind it.
	for _, sym := range cfg.Stream.Symbols {
		for _, tf := range cfg.Stream.Timeframes {
			key := sym + "|" + tf
			w := &window{max: maxBars}
			bars, err := client.FetchKlines(ctx, sym, tf, maxBars)
			if err != nil {
				log.Warn().Err(err).Str("symbol", sym).Str("timeframe", tf).Msg("window seed failed, starting cold")
			} else {
				w.klines = bars
			}
			windows[key] = w
		}
	}

	log.Info().Strs("symbols", cfg.Stream.Symbols).Strs("timeframes", cfg.Stream.Timeframes).Msg("incremental validation started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return
		case event := <-events:
			if !event.Closed {
				continue
			}
			key := event.Symbol + "|" + event.Timeframe
			w, ok := windows[key]
			if !ok {
				continue
			}
			w.push(event.Kline)
			handleBar(ctx, log, validator, locks, orch, event, w.klines)
		}
	}
}

// handleBar runs one closed bar through validation and, when tradable, the
// order pipeline. The per-symbol lock spans the exposure check and the
// submit, so a concurrent batch run cannot interleave on the same symbol.
func handleBar(ctx context.Context, log zerolog.Logger, validator *cascade.Validator, locks symbolLocks, exec entryExecutor, event exchange.KlineEvent, klines []indicator.Kline) {
	dec := validator.Validate(cascade.Input{
		Symbol:         event.Symbol,
		Klines:         map[string][]indicator.Kline{event.Timeframe: klines},
		ForceTimeframe: event.Timeframe,
	})
	if !dec.Tradable {
		log.Debug().
			Str("symbol", event.Symbol).
			Str("timeframe", event.Timeframe).
			Str("state", string(dec.State)).
			Str("reason", dec.Reason).
			Msg("bar closed, not tradable")
		return
	}

	acquired, err := locks.Acquire(ctx, event.Symbol, entryWatchTTL)
	if err != nil {
		log.Error().Err(err).Str("symbol", event.Symbol).Msg("lock acquire failed")
		return
	}
	if !acquired {
		metrics.LockSkips.WithLabelValues(event.Symbol).Inc()
		log.Warn().Str("symbol", event.Symbol).Msg("symbol locked elsewhere, skipping bar")
		return
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := locks.Release(releaseCtx, event.Symbol); err != nil {
			log.Warn().Err(err).Str("symbol", event.Symbol).Msg("lock release failed")
		}
	}()

	execCtx, done := context.WithTimeout(ctx, entryWatchTTL)
	defer done()
	orderID, err := exec.Execute(execCtx, dec, klines, order.ExecInput{PositionID: event.Symbol})
	if err != nil {
		log.Error().Err(err).Str("symbol", event.Symbol).Msg("order execution failed")
		return
	}
	log.Info().
		Str("symbol", event.Symbol).
		Str("side", string(dec.Side)).
		Str("timeframe", dec.ExecutionTimeframe).
		Str("order_id", orderID).
		Msg("incremental signal executed")
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
