package risk

import (
	"fmt"
	"regexp"
)

// LeverageRule caps leverage for symbols matching a pattern. Rules are
// ordered; the first match wins.
type LeverageRule struct {
	Pattern string `yaml:"pattern"`
	Cap     int    `yaml:"cap"`
}

// LeverageConfig is the raw YAML shape of the leverage policy.
type LeverageConfig struct {
	ExchangeCap       int            `yaml:"exchange_cap"`
	Rules             []LeverageRule `yaml:"rules"`
	ConvictionCapPct  float64        `yaml:"conviction_cap_pct"`
	StaleDataHaircut  float64        `yaml:"stale_data_haircut"`
	TieBreakerHaircut float64        `yaml:"tie_breaker_haircut"`
}

// PlanInput carries the per-signal facts the planner weighs.
type PlanInput struct {
	Symbol         string
	HighConviction bool
	StaleData      bool
	TieBreakerUsed bool
}

// LeveragePlanner resolves per-symbol leverage caps and signal confidence.
// Regexes compile once at construction so bad patterns surface at load
// time, not mid-batch.
type LeveragePlanner struct {
	cfg   LeverageConfig
	rules []compiledRule
}

type compiledRule struct {
	re  *regexp.Regexp
	cap int
}

// NewLeveragePlanner validates and compiles the policy.
func NewLeveragePlanner(cfg LeverageConfig) (*LeveragePlanner, error) {
	if cfg.ExchangeCap <= 0 {
		return nil, fmt.Errorf("leverage: exchange cap must be positive, got %d", cfg.ExchangeCap)
	}
	p := &LeveragePlanner{cfg: cfg}
	for _, rule := range cfg.Rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("leverage: bad pattern %q: %w", rule.Pattern, err)
		}
		if rule.Cap <= 0 {
			return nil, fmt.Errorf("leverage: cap for %q must be positive, got %d", rule.Pattern, rule.Cap)
		}
		p.rules = append(p.rules, compiledRule{re: re, cap: rule.Cap})
	}
	return p, nil
}

// Plan resolves the leverage and confidence for one signal. The symbol cap
// comes from the first matching rule, else the exchange-wide cap. Without
// the high-conviction flag an optional conviction cap tightens further.
// Confidence starts at 1 and is cut for stale upstream data and for signals
// resolved by a tie-breaker.
func (p *LeveragePlanner) Plan(in PlanInput) Plan {
	lev := p.cfg.ExchangeCap
	for _, rule := range p.rules {
		if rule.re.MatchString(in.Symbol) {
			lev = rule.cap
			break
		}
	}

	if !in.HighConviction && p.cfg.ConvictionCapPct > 0 {
		convictionCap := int(float64(p.cfg.ExchangeCap) * p.cfg.ConvictionCapPct)
		if convictionCap >= 1 && convictionCap < lev {
			lev = convictionCap
		}
	}
	if lev < 1 {
		lev = 1
	}

	confidence := 1.0
	if in.StaleData && p.cfg.StaleDataHaircut > 0 {
		confidence *= 1 - p.cfg.StaleDataHaircut
	}
	if in.TieBreakerUsed && p.cfg.TieBreakerHaircut > 0 {
		confidence *= 1 - p.cfg.TieBreakerHaircut
	}
	if confidence < 0 {
		confidence = 0
	}

	return Plan{Leverage: lev, Confidence: confidence}
}
