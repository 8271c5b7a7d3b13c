package order

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mtfbot/internal/cascade"
	"mtfbot/internal/exchange"
	"mtfbot/internal/indicator"
	"mtfbot/internal/metrics"
	"mtfbot/internal/risk"
	"mtfbot/internal/signal"
)

// Venue is the slice of the exchange API the orchestrator mutates through.
type Venue interface {
	Instrument(ctx context.Context, symbol string) (exchange.Instrument, error)
	MarkPrice(ctx context.Context, symbol string) (float64, error)
	SubmitOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderAck, error)
	CancelOrder(ctx context.Context, symbol, clientOrderID string) error
}

// Fill is the asynchronous fill notification from the venue.
type Fill struct {
	Symbol        string
	ClientOrderID string
	Side          signal.Side
	Quantity      int
	Price         float64
}

// Config tunes the orchestration around one entry order.
type Config struct {
	Kind          string `yaml:"kind"`
	BucketSeconds int64  `yaml:"bucket_seconds"`
	CancelAfterMS int    `yaml:"cancel_after_ms"`
}

// ExecInput carries the per-signal facts beyond the cascade decision.
type ExecInput struct {
	PositionID     string
	HighConviction bool
	StaleData      bool
	TieBreakerUsed bool
}

type pendingOrder struct {
	symbol   string
	side     signal.Side
	sizing   risk.Sizing
	tickSize float64
}

// Orchestrator turns a TRADABLE cascade decision into a submitted order:
// exposure guard, market snapshot, leverage plan, sizing, deterministic id,
// submit, optional cancel-after timer, journal. Per-symbol failures return
// an error and never panic; the journal records the attempt either way.
type Orchestrator struct {
	log     zerolog.Logger
	venue   Venue
	acct    AccountState
	riskCfg risk.Config
	planner *risk.LeveragePlanner
	journal *Journal
	cfg     Config
	now     func() time.Time

	mu      sync.Mutex
	pending map[string]pendingOrder
}

// NewOrchestrator wires the collaborators together.
func NewOrchestrator(log zerolog.Logger, venue Venue, acct AccountState, riskCfg risk.Config, planner *risk.LeveragePlanner, journal *Journal, cfg Config) *Orchestrator {
	if cfg.Kind == "" {
		cfg.Kind = "entry"
	}
	return &Orchestrator{
		log:     log,
		venue:   venue,
		acct:    acct,
		riskCfg: riskCfg,
		planner: planner,
		journal: journal,
		cfg:     cfg,
		now:     time.Now,
		pending: map[string]pendingOrder{},
	}
}

// Execute runs the full pipeline for one tradable decision. The kline
// window is the execution timeframe's, used for the ATR stop distance.
// On success it returns the client order id.
func (o *Orchestrator) Execute(ctx context.Context, dec cascade.Decision, klines []indicator.Kline, in ExecInput) (string, error) {
	if !dec.Tradable || !dec.Side.Valid() {
		return "", fmt.Errorf("decision for %s is not tradable", dec.Symbol)
	}

	if err := CheckExposure(ctx, o.acct, dec.Symbol); err != nil {
		return "", err
	}

	snap, err := o.snapshot(ctx, dec.Symbol, klines)
	if err != nil {
		return "", err
	}

	plan := o.planner.Plan(risk.PlanInput{
		Symbol:         dec.Symbol,
		HighConviction: in.HighConviction,
		StaleData:      in.StaleData,
		TieBreakerUsed: in.TieBreakerUsed,
	})

	sizing, err := risk.Size(dec.Side, o.riskCfg, snap, plan)
	if err != nil {
		return "", fmt.Errorf("size %s: %w", dec.Symbol, err)
	}

	orderID := ClientOrderID(o.cfg.Kind, dec.Symbol, dec.Side, in.PositionID, o.now(), o.cfg.BucketSeconds)
	req := exchange.OrderRequest{
		Symbol:                dec.Symbol,
		ClientOrderID:         orderID,
		Side:                  dec.Side.Code(),
		Type:                  exchange.OrderTypeLimit,
		Size:                  sizing.Contracts,
		Price:                 risk.FormatPrice(snap.MarkPrice, snap.TickSize),
		Leverage:              sizing.Leverage,
		PresetTakeProfitPrice: risk.FormatPrice(sizing.TakeProfit, snap.TickSize),
		PresetStopLossPrice:   risk.FormatPrice(sizing.StopLoss, snap.TickSize),
	}

	entry := Entry{
		Symbol:  dec.Symbol,
		OrderID: orderID,
		Side:    dec.Side,
		Status:  StatusPending,
		Ts:      o.now(),
		Context: map[string]interface{}{
			"position":            "OPEN_" + string(dec.Side),
			"execution_timeframe": dec.ExecutionTimeframe,
			"contracts":           sizing.Contracts,
			"stop_loss":           sizing.StopLoss,
			"take_profit":         sizing.TakeProfit,
			"leverage":            sizing.Leverage,
		},
	}

	_, submitErr := o.venue.SubmitOrder(ctx, req)
	if submitErr != nil {
		entry.Status = StatusFailed
		entry.Context["error"] = submitErr.Error()
		o.journal.Record(entry)
		return "", fmt.Errorf("submit %s: %w", dec.Symbol, submitErr)
	}

	o.journal.Record(entry)
	o.trackPending(orderID, pendingOrder{symbol: dec.Symbol, side: dec.Side, sizing: sizing, tickSize: snap.TickSize})
	metrics.OrdersSubmitted.WithLabelValues(dec.Symbol, string(dec.Side)).Inc()
	o.log.Info().
		Str("symbol", dec.Symbol).
		Str("side", string(dec.Side)).
		Str("order_id", orderID).
		Int("contracts", sizing.Contracts).
		Float64("stop_loss", sizing.StopLoss).
		Float64("take_profit", sizing.TakeProfit).
		Msg("order submitted")

	if o.cfg.CancelAfterMS > 0 {
		o.scheduleCancel(dec.Symbol, orderID)
	}
	return orderID, nil
}

// OnFill reacts to an asynchronous fill: place the reduce-only stop plus
// take-profit pair as one-cancels-other, sized to the filled quantity, and
// flip the journaled position to OPEN.
func (o *Orchestrator) OnFill(ctx context.Context, fill Fill) error {
	pend, ok := o.takePending(fill.ClientOrderID)
	if !ok {
		return fmt.Errorf("fill for unknown order %s", fill.ClientOrderID)
	}

	qty := fill.Quantity
	if qty <= 0 || qty > pend.sizing.Contracts {
		qty = pend.sizing.Contracts
	}

	bracketID := ClientOrderID("bracket", pend.symbol, pend.side, fill.ClientOrderID, o.now(), o.cfg.BucketSeconds)
	req := exchange.OrderRequest{
		Symbol:                pend.symbol,
		ClientOrderID:         bracketID,
		Side:                  pend.side.Opposite().Code(),
		Type:                  exchange.OrderTypeLimit,
		Size:                  qty,
		ReduceOnly:            true,
		OCO:                   true,
		PresetTakeProfitPrice: risk.FormatPrice(pend.sizing.TakeProfit, pend.tickSize),
		PresetStopLossPrice:   risk.FormatPrice(pend.sizing.StopLoss, pend.tickSize),
	}
	if _, err := o.venue.SubmitOrder(ctx, req); err != nil {
		// keep the record so a retried fill can still place the bracket
		o.trackPending(fill.ClientOrderID, pend)
		return fmt.Errorf("bracket for %s: %w", fill.ClientOrderID, err)
	}

	if !o.journal.MarkOpen(fill.ClientOrderID) {
		o.journal.Record(Entry{
			Symbol:  pend.symbol,
			OrderID: fill.ClientOrderID,
			Side:    pend.side,
			Status:  StatusOpen,
			Ts:      o.now(),
			Context: map[string]interface{}{"filled": qty},
		})
	}
	o.log.Info().Str("symbol", pend.symbol).Str("order_id", fill.ClientOrderID).Int("filled", qty).Msg("fill bracketed, position open")
	return nil
}

// snapshot assembles the read-only market view for one sizing call.
func (o *Orchestrator) snapshot(ctx context.Context, symbol string, klines []indicator.Kline) (risk.Snapshot, error) {
	inst, err := o.venue.Instrument(ctx, symbol)
	if err != nil {
		return risk.Snapshot{}, err
	}
	mark, err := o.venue.MarkPrice(ctx, symbol)
	if err != nil {
		return risk.Snapshot{}, err
	}

	period := o.riskCfg.ATRPeriod
	if period <= 0 {
		period = 14
	}
	atr, err := indicator.ATR(klines, period, o.riskCfg.ATRMethod)
	if err != nil {
		return risk.Snapshot{}, fmt.Errorf("atr %s: %w", symbol, err)
	}
	stopDistance := atr
	if o.riskCfg.StopATRMultiple > 0 {
		stopDistance = o.riskCfg.StopATRMultiple * atr
	}

	return risk.Snapshot{
		MarkPrice:       mark,
		ContractSize:    inst.ContractSize,
		TickSize:        inst.TickSize,
		QtyStep:         inst.QtyStep,
		MinVolume:       float64(inst.MinVolume),
		MaxVolume:       float64(inst.MaxVolume),
		MarketMaxVolume: float64(inst.MarketMaxVolume),
		StopDistance:    stopDistance,
		ATR:             atr,
	}, nil
}

// scheduleCancel arms the time-boxed auto-cancel for an unfilled order.
// Cancellation failures are logged, never surfaced to the batch.
func (o *Orchestrator) scheduleCancel(symbol, orderID string) {
	delay := time.Duration(o.cfg.CancelAfterMS) * time.Millisecond
	go func() {
		time.Sleep(delay)
		pend, stillPending := o.takePending(orderID)
		if !stillPending {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.venue.CancelOrder(ctx, symbol, orderID); err != nil {
			// a cancel that loses the race to a fill must leave the order
			// claimable, or the fill arrives with no bracket to place
			o.trackPending(orderID, pend)
			o.log.Warn().Err(err).Str("symbol", symbol).Str("order_id", orderID).Msg("auto-cancel failed")
			return
		}
		o.log.Info().Str("symbol", symbol).Str("order_id", orderID).Msg("unfilled order auto-cancelled")
	}()
}

func (o *Orchestrator) trackPending(orderID string, p pendingOrder) {
	o.mu.Lock()
	o.pending[orderID] = p
	o.mu.Unlock()
}

func (o *Orchestrator) takePending(orderID string) (pendingOrder, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.pending[orderID]
	if ok {
		delete(o.pending, orderID)
	}
	return p, ok
}
