package runner

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"mtfbot/internal/cascade"
	"mtfbot/internal/indicator"
	"mtfbot/internal/metrics"
	"mtfbot/internal/order"
	"mtfbot/internal/signal"
)

// Status is the per-symbol outcome class of one batch run.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusSkipped Status = "SKIPPED"
	StatusError   Status = "ERROR"
)

// KlineSource fetches bars for one symbol and timeframe, oldest first.
type KlineSource interface {
	FetchKlines(ctx context.Context, symbol, timeframe string, count int) ([]indicator.Kline, error)
}

// Executor turns a tradable decision into a submitted order.
type Executor interface {
	Execute(ctx context.Context, dec cascade.Decision, klines []indicator.Kline, in order.ExecInput) (string, error)
}

// Locker serializes work per symbol across workers and processes.
type Locker interface {
	AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Result is the outcome for one symbol.
type Result struct {
	Symbol             string
	Status             Status
	State              cascade.State
	ExecutionTimeframe string
	Side               signal.Side
	OrderID            string
	Err                error
}

// Summary aggregates one batch.
type Summary struct {
	Processed            int
	Successful           int
	Failed               int
	Skipped              int
	SuccessRate          float64
	ExecutionTimeSeconds float64
	Errors               []string
}

// Config tunes one batch run.
type Config struct {
	Symbols          []string `yaml:"symbols"`
	Workers          int      `yaml:"workers"`
	KlineCount       int      `yaml:"kline_count"`
	LockTTLMS        int      `yaml:"lock_ttl_ms"`
	LockRetries      int      `yaml:"lock_retries"`
	LockRetryDelayMS int      `yaml:"lock_retry_delay_ms"`
	HighConviction   bool     `yaml:"high_conviction"`
	SkipContext      bool     `yaml:"skip_context"`
}

// Runner processes a symbol batch through a bounded worker pool. Each
// symbol runs as one unit of work serialized by the lock manager: fetch,
// cascade validate, and (when tradable) order execution. One symbol's
// failure never aborts the batch.
type Runner struct {
	log       zerolog.Logger
	cfg       Config
	validator *cascade.Validator
	// timeframes to fetch, context first then execution, coarsest first.
	timeframes []string
	source     KlineSource
	exec       Executor
	locks      Locker
}

// NewRunner wires a batch runner. exec may be nil for validate-only runs.
func NewRunner(log zerolog.Logger, cfg Config, cascadeCfg cascade.Config, validator *cascade.Validator, source KlineSource, exec Executor, locks Locker) *Runner {
	timeframes := make([]string, 0, len(cascadeCfg.ContextTimeframes)+len(cascadeCfg.ExecutionTimeframes))
	timeframes = append(timeframes, cascadeCfg.ContextTimeframes...)
	timeframes = append(timeframes, cascadeCfg.ExecutionTimeframes...)
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.KlineCount <= 0 {
		cfg.KlineCount = 120
	}
	return &Runner{
		log:        log,
		cfg:        cfg,
		validator:  validator,
		timeframes: timeframes,
		source:     source,
		exec:       exec,
		locks:      locks,
	}
}

// Run starts the batch and returns a channel of per-symbol results. The
// channel is buffered for the whole batch so cancellation never drops an
// in-flight symbol's result; it closes when all symbols are done. Symbols
// cut short by the cancelled context surface as ERROR results, keeping the
// summary's accounting complete against the configured list.
func (r *Runner) Run(ctx context.Context) <-chan Result {
	out := make(chan Result, len(r.cfg.Symbols))
	go func() {
		defer close(out)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.Workers)
		for _, symbol := range r.cfg.Symbols {
			symbol := symbol
			g.Go(func() error {
				out <- r.processSymbol(gctx, symbol)
				return nil
			})
		}
		_ = g.Wait()
	}()
	return out
}

// Collect drains a full run into a slice plus its batch summary.
func (r *Runner) Collect(ctx context.Context) ([]Result, Summary) {
	start := time.Now()
	var results []Result
	for res := range r.Run(ctx) {
		results = append(results, res)
	}
	summary := summarize(results, time.Since(start))
	metrics.RunDuration.Observe(summary.ExecutionTimeSeconds)
	return results, summary
}

func (r *Runner) processSymbol(ctx context.Context, symbol string) Result {
	ttl := time.Duration(r.cfg.LockTTLMS) * time.Millisecond
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	retryDelay := time.Duration(r.cfg.LockRetryDelayMS) * time.Millisecond

	if r.locks != nil {
		acquired, err := r.locks.AcquireWithRetry(ctx, symbol, ttl, r.cfg.LockRetries, retryDelay)
		if err != nil {
			metrics.SymbolsProcessed.WithLabelValues(string(StatusError)).Inc()
			return Result{Symbol: symbol, Status: StatusError, Err: fmt.Errorf("lock %s: %w", symbol, err)}
		}
		if !acquired {
			metrics.LockSkips.WithLabelValues(symbol).Inc()
			metrics.SymbolsProcessed.WithLabelValues(string(StatusSkipped)).Inc()
			r.log.Warn().Str("symbol", symbol).Msg("lock unavailable, skipping symbol")
			return Result{Symbol: symbol, Status: StatusSkipped}
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.locks.Release(releaseCtx, symbol); err != nil {
				r.log.Warn().Err(err).Str("symbol", symbol).Msg("lock release failed")
			}
		}()
	}

	res := r.runLocked(ctx, symbol)
	metrics.SymbolsProcessed.WithLabelValues(string(res.Status)).Inc()
	return res
}

func (r *Runner) runLocked(ctx context.Context, symbol string) Result {
	klines := make(map[string][]indicator.Kline, len(r.timeframes))
	for _, tf := range r.timeframes {
		bars, err := r.source.FetchKlines(ctx, symbol, tf, r.cfg.KlineCount)
		if err != nil {
			return Result{Symbol: symbol, Status: StatusError, Err: fmt.Errorf("fetch %s %s: %w", symbol, tf, err)}
		}
		klines[tf] = bars
	}

	dec := r.validator.Validate(cascade.Input{Symbol: symbol, Klines: klines, SkipContext: r.cfg.SkipContext})

	res := Result{
		Symbol:             symbol,
		Status:             StatusSuccess,
		State:              dec.State,
		ExecutionTimeframe: dec.ExecutionTimeframe,
		Side:               dec.Side,
	}
	if !dec.Tradable || r.exec == nil {
		return res
	}

	orderID, err := r.exec.Execute(ctx, dec, klines[dec.ExecutionTimeframe], order.ExecInput{
		PositionID:     symbol,
		HighConviction: r.cfg.HighConviction,
	})
	if err != nil {
		r.log.Error().Err(err).Str("symbol", symbol).Str("timeframe", dec.ExecutionTimeframe).Msg("order execution failed")
		res.Status = StatusError
		res.Err = err
		return res
	}
	res.OrderID = orderID
	return res
}

func summarize(results []Result, elapsed time.Duration) Summary {
	s := Summary{
		Processed:            len(results),
		ExecutionTimeSeconds: elapsed.Seconds(),
	}
	for _, res := range results {
		switch res.Status {
		case StatusSuccess:
			s.Successful++
		case StatusSkipped:
			s.Skipped++
		default:
			s.Failed++
			if res.Err != nil {
				s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", res.Symbol, res.Err))
			}
		}
	}
	if s.Processed > 0 {
		s.SuccessRate = math.Round(float64(s.Successful)/float64(s.Processed)*10000) / 100
	}
	return s
}
