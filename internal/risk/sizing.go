// Package risk converts validated signals into quantized, bounded order
// parameters: contract counts, stop-loss and take-profit prices, and
// leverage.
package risk

import (
	"errors"
	"fmt"
	"math"

	"mtfbot/internal/signal"
)

// ErrInfeasible marks a sizing request that cannot be satisfied inside its
// risk and volume bounds. Callers abort the order build for that symbol and
// move on; the size is never silently clamped upward.
var ErrInfeasible = errors.New("sizing infeasible")

// Snapshot is the read-only market view assembled once per sizing call. Any
// retry must assemble a fresh one; stale snapshots are never reused.
type Snapshot struct {
	MarkPrice       float64
	ContractSize    float64
	TickSize        float64
	QtyStep         float64
	MinVolume       float64
	MaxVolume       float64
	MarketMaxVolume float64 // optional, 0 = absent
	StopDistance    float64
	ATR             float64
}

// Config carries the account-level sizing budget.
type Config struct {
	BudgetCapUSDT     float64 `yaml:"budget_cap_usdt"`
	RiskAbsUSDT       float64 `yaml:"risk_abs_usdt"`
	TakeProfitAbsUSDT float64 `yaml:"take_profit_abs_usdt"`
	StopATRMultiple   float64 `yaml:"stop_atr_multiple"`
	RewardMultiple    float64 `yaml:"reward_multiple"`
	ATRPeriod         int     `yaml:"atr_period"`
	ATRMethod         string  `yaml:"atr_method"`
}

// Plan expresses the leverage decision and signal confidence feeding one
// sizing call. Confidence below 1 shrinks the risk budget, not the size
// math directly.
type Plan struct {
	Leverage   int
	Confidence float64
}

// Sizing is the final decision: integral contracts plus bracket prices.
type Sizing struct {
	Contracts  int
	StopLoss   float64
	TakeProfit float64
	Notional   float64
	Leverage   int
}

// Size computes the order size as the tighter of the budget-bounded and the
// risk-bounded candidate, clamped by exchange volume limits and quantized to
// the venue's step and tick.
func Size(side signal.Side, cfg Config, snap Snapshot, plan Plan) (Sizing, error) {
	if !side.Valid() {
		return Sizing{}, fmt.Errorf("size: side %q is not tradable", side)
	}
	if snap.MarkPrice <= 0 || snap.ContractSize <= 0 {
		return Sizing{}, fmt.Errorf("size: invalid snapshot (mark=%v contractSize=%v)", snap.MarkPrice, snap.ContractSize)
	}
	if snap.StopDistance <= 0 {
		return Sizing{}, fmt.Errorf("size: stop distance must be positive, got %v", snap.StopDistance)
	}
	confidence := plan.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 1
	}
	riskAbs := cfg.RiskAbsUSDT * confidence

	notionalBudget := cfg.BudgetCapUSDT * float64(plan.Leverage)
	contractsBudget := FloorToStep(notionalBudget/(snap.MarkPrice*snap.ContractSize), snap.QtyStep)
	contractsRisk := FloorToStep(riskAbs/(snap.StopDistance*snap.ContractSize), snap.QtyStep)

	upper := snap.MaxVolume
	if snap.MarketMaxVolume > 0 && snap.MarketMaxVolume < upper {
		upper = snap.MarketMaxVolume
	}

	bounded := math.Min(contractsBudget, math.Min(contractsRisk, upper))
	contracts := int(bounded)
	if contracts <= 0 {
		return Sizing{}, fmt.Errorf("size %s: budget=%v risk=%v upper=%v: %w",
			side, contractsBudget, contractsRisk, upper, ErrInfeasible)
	}
	if float64(contracts) < snap.MinVolume {
		// Lifting to the venue minimum would overshoot the risk budget.
		return Sizing{}, fmt.Errorf("size %s: %d contracts below venue minimum %v: %w",
			side, contracts, snap.MinVolume, ErrInfeasible)
	}

	qtyBase := float64(contracts) * snap.ContractSize
	slDistance := riskAbs / qtyBase
	tpDistance := cfg.TakeProfitAbsUSDT * confidence / qtyBase

	var slRaw, tpRaw float64
	if side == signal.Long {
		slRaw = snap.MarkPrice - slDistance
		tpRaw = snap.MarkPrice + tpDistance
	} else {
		slRaw = snap.MarkPrice + slDistance
		tpRaw = snap.MarkPrice - tpDistance
	}

	return Sizing{
		Contracts:  contracts,
		StopLoss:   RoundToTick(slRaw, snap.TickSize),
		TakeProfit: RoundToTick(tpRaw, snap.TickSize),
		Notional:   qtyBase * snap.MarkPrice,
		Leverage:   plan.Leverage,
	}, nil
}

// ATRPlan is the stop/target pair of the ATR-based scalping path.
type ATRPlan struct {
	StopDistance float64
	StopLoss     float64
	TakeProfit   float64
}

// ATRStops derives a stop as k times ATR and a target as an R-multiple of
// the stop distance. A positive guardPrice (liquidation or protective
// level) clamps the stop so it always triggers before the guard.
func ATRStops(side signal.Side, entry, atr, k, rewardMultiple, tickSize, guardPrice float64) (ATRPlan, error) {
	if !side.Valid() {
		return ATRPlan{}, fmt.Errorf("atr stops: side %q is not tradable", side)
	}
	if entry <= 0 || atr <= 0 || k <= 0 {
		return ATRPlan{}, fmt.Errorf("atr stops: entry=%v atr=%v k=%v must be positive", entry, atr, k)
	}
	if rewardMultiple <= 0 {
		rewardMultiple = 1
	}

	dist := k * atr
	var sl, tp float64
	if side == signal.Long {
		sl = entry - dist
		tp = entry + rewardMultiple*dist
		if guardPrice > 0 && sl < guardPrice {
			sl = guardPrice
			dist = entry - sl
		}
	} else {
		sl = entry + dist
		tp = entry - rewardMultiple*dist
		if guardPrice > 0 && sl > guardPrice {
			sl = guardPrice
			dist = sl - entry
		}
	}
	if dist <= 0 {
		return ATRPlan{}, fmt.Errorf("atr stops: guard price %v leaves no stop room at entry %v", guardPrice, entry)
	}
	return ATRPlan{
		StopDistance: dist,
		StopLoss:     RoundToTick(sl, tickSize),
		TakeProfit:   RoundToTick(tp, tickSize),
	}, nil
}
