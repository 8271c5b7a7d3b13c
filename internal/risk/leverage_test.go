package risk

import (
	"math"
	"testing"
)

func testLeverageConfig() LeverageConfig {
	return LeverageConfig{
		ExchangeCap: 50,
		Rules: []LeverageRule{
			{Pattern: "^BTC", Cap: 20},
			{Pattern: "^(BTC|ETH)", Cap: 30}, // ordered: never reached for BTC
			{Pattern: "USDT$", Cap: 10},
		},
		ConvictionCapPct:  0.2,
		StaleDataHaircut:  0.25,
		TieBreakerHaircut: 0.2,
	}
}

func TestLeverageFirstMatchingRuleWins(t *testing.T) {
	p, err := NewLeveragePlanner(testLeverageConfig())
	if err != nil {
		t.Fatalf("NewLeveragePlanner returned error: %v", err)
	}

	plan := p.Plan(PlanInput{Symbol: "BTCUSDT", HighConviction: true})
	if plan.Leverage != 20 {
		t.Fatalf("expected first rule cap 20, got %d", plan.Leverage)
	}

	plan = p.Plan(PlanInput{Symbol: "ETHUSDT", HighConviction: true})
	if plan.Leverage != 30 {
		t.Fatalf("expected second rule cap 30, got %d", plan.Leverage)
	}

	plan = p.Plan(PlanInput{Symbol: "XRPBTC", HighConviction: true})
	if plan.Leverage != 50 {
		t.Fatalf("expected exchange cap 50 for unmatched symbol, got %d", plan.Leverage)
	}
}

func TestLeverageConvictionGate(t *testing.T) {
	p, err := NewLeveragePlanner(testLeverageConfig())
	if err != nil {
		t.Fatalf("NewLeveragePlanner returned error: %v", err)
	}

	// Without high conviction the tighter cap (20% of exchange cap) binds.
	plan := p.Plan(PlanInput{Symbol: "BTCUSDT"})
	if plan.Leverage != 10 {
		t.Fatalf("expected conviction cap 10, got %d", plan.Leverage)
	}
}

func TestLeverageConfidenceHaircuts(t *testing.T) {
	p, err := NewLeveragePlanner(testLeverageConfig())
	if err != nil {
		t.Fatalf("NewLeveragePlanner returned error: %v", err)
	}

	plan := p.Plan(PlanInput{Symbol: "BTCUSDT"})
	if plan.Confidence != 1 {
		t.Fatalf("expected full confidence, got %.2f", plan.Confidence)
	}

	plan = p.Plan(PlanInput{Symbol: "BTCUSDT", StaleData: true})
	if math.Abs(plan.Confidence-0.75) > 1e-12 {
		t.Fatalf("expected stale haircut to 0.75, got %.4f", plan.Confidence)
	}

	plan = p.Plan(PlanInput{Symbol: "BTCUSDT", StaleData: true, TieBreakerUsed: true})
	if math.Abs(plan.Confidence-0.6) > 1e-12 {
		t.Fatalf("expected stacked haircuts 0.6, got %.4f", plan.Confidence)
	}
}

func TestLeverageConfigValidation(t *testing.T) {
	if _, err := NewLeveragePlanner(LeverageConfig{ExchangeCap: 0}); err == nil {
		t.Fatalf("expected error for missing exchange cap")
	}
	bad := LeverageConfig{ExchangeCap: 50, Rules: []LeverageRule{{Pattern: "([", Cap: 5}}}
	if _, err := NewLeveragePlanner(bad); err == nil {
		t.Fatalf("expected error for bad regex")
	}
	bad = LeverageConfig{ExchangeCap: 50, Rules: []LeverageRule{{Pattern: "^BTC", Cap: 0}}}
	if _, err := NewLeveragePlanner(bad); err == nil {
		t.Fatalf("expected error for non-positive cap")
	}
}
