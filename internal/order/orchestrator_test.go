package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtfbot/internal/cascade"
	"mtfbot/internal/exchange"
	"mtfbot/internal/indicator"
	"mtfbot/internal/risk"
	"mtfbot/internal/signal"
)

type mockVenue struct {
	instrument exchange.Instrument
	markPrice  float64

	mu        sync.Mutex
	submitErr error
	cancelErr error
	submitted []exchange.OrderRequest
	cancelled []string
}

func (m *mockVenue) Instrument(ctx context.Context, symbol string) (exchange.Instrument, error) {
	return m.instrument, nil
}

func (m *mockVenue) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	return m.markPrice, nil
}

func (m *mockVenue) SubmitOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, req)
	if m.submitErr != nil {
		return exchange.OrderAck{}, m.submitErr
	}
	return exchange.OrderAck{OrderID: "venue-1", ClientOrderID: req.ClientOrderID}, nil
}

func (m *mockVenue) CancelOrder(ctx context.Context, symbol, clientOrderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, clientOrderID)
	return m.cancelErr
}

func (m *mockVenue) setSubmitErr(err error) {
	m.mu.Lock()
	m.submitErr = err
	m.mu.Unlock()
}

func (m *mockVenue) submittedOrders() []exchange.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]exchange.OrderRequest(nil), m.submitted...)
}

func (m *mockVenue) cancelAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cancelled)
}

type mockAccount struct {
	positions []exchange.Position
	orders    []exchange.OpenOrder
}

func (m *mockAccount) Positions(ctx context.Context, symbol string) ([]exchange.Position, error) {
	return m.positions, nil
}

func (m *mockAccount) OpenOrders(ctx context.Context, symbol string) ([]exchange.OpenOrder, error) {
	return m.orders, nil
}

// flatKlines yields a constant true range of 2 (high-low), so ATR(14) == 2.
func flatKlines(n int) []indicator.Kline {
	klines := make([]indicator.Kline, n)
	ts := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range klines {
		klines[i] = indicator.Kline{
			Timestamp: ts.Add(time.Duration(i) * time.Minute),
			Open:      100, High: 101, Low: 99, Close: 100,
			Volume: 10,
		}
	}
	return klines
}

func testRiskConfig() risk.Config {
	return risk.Config{
		BudgetCapUSDT:     5000,
		RiskAbsUSDT:       6,
		TakeProfitAbsUSDT: 18,
		StopATRMultiple:   1,
		ATRPeriod:         14,
		ATRMethod:         indicator.ATRWilder,
	}
}

func newTestOrchestrator(t *testing.T, venue *mockVenue, acct *mockAccount, journal *Journal) *Orchestrator {
	t.Helper()
	planner, err := risk.NewLeveragePlanner(risk.LeverageConfig{ExchangeCap: 50})
	require.NoError(t, err)
	return NewOrchestrator(zerolog.Nop(), venue, acct, testRiskConfig(), planner, journal, Config{
		Kind:          "entry",
		BucketSeconds: 60,
	})
}

func tradableDecision() cascade.Decision {
	return cascade.Decision{
		Symbol:             "BTCUSDT",
		State:              cascade.StateTradable,
		Tradable:           true,
		Side:               signal.Long,
		ExecutionTimeframe: "15m",
	}
}

func defaultInstrument() exchange.Instrument {
	return exchange.Instrument{
		Symbol:       "BTCUSDT",
		ContractSize: 1,
		TickSize:     0.5,
		QtyStep:      1,
		MinVolume:    1,
		MaxVolume:    500,
	}
}

func TestExecuteSubmitsSizedOrder(t *testing.T) {
	venue := &mockVenue{instrument: defaultInstrument(), markPrice: 100}
	journal := NewJournal(zerolog.Nop(), nil, 100, 100)
	o := newTestOrchestrator(t, venue, &mockAccount{}, journal)

	orderID, err := o.Execute(context.Background(), tradableDecision(), flatKlines(20), ExecInput{HighConviction: true})
	require.NoError(t, err)
	require.Len(t, venue.submitted, 1)

	req := venue.submitted[0]
	assert.Equal(t, orderID, req.ClientOrderID)
	assert.Equal(t, exchange.SideCodeOpenLong, req.Side)
	assert.Equal(t, exchange.OrderTypeLimit, req.Type)
	// ATR stop distance 2 makes the risk candidate 6/2 = 3 the binding one.
	assert.Equal(t, 3, req.Size)
	assert.Equal(t, "98.0", req.PresetStopLossPrice)
	assert.Equal(t, "106.0", req.PresetTakeProfitPrice)
	assert.Equal(t, "100.0", req.Price)
	assert.Equal(t, 50, req.Leverage)

	assert.Equal(t, 1, journal.Len())
	assert.True(t, journal.MarkOpen(orderID), "journal must hold a PENDING entry")
}

func TestExecuteIdempotentWithinBucket(t *testing.T) {
	venue := &mockVenue{instrument: defaultInstrument(), markPrice: 100}
	journal := NewJournal(zerolog.Nop(), nil, 100, 100)
	o := newTestOrchestrator(t, venue, &mockAccount{}, journal)

	fixed := time.Date(2025, 3, 1, 12, 0, 5, 0, time.UTC)
	o.now = func() time.Time { return fixed }

	first, err := o.Execute(context.Background(), tradableDecision(), flatKlines(20), ExecInput{HighConviction: true})
	require.NoError(t, err)
	second, err := o.Execute(context.Background(), tradableDecision(), flatKlines(20), ExecInput{HighConviction: true})
	require.NoError(t, err)
	assert.Equal(t, first, second, "retry in the same bucket must reuse the id")
}

func TestExecuteVetoedByActiveExposure(t *testing.T) {
	venue := &mockVenue{instrument: defaultInstrument(), markPrice: 100}
	acct := &mockAccount{positions: []exchange.Position{{Symbol: "BTCUSDT", Size: 2}}}
	o := newTestOrchestrator(t, venue, acct, NewJournal(zerolog.Nop(), nil, 10, 10))

	_, err := o.Execute(context.Background(), tradableDecision(), flatKlines(20), ExecInput{})
	var exposure *ActiveExposureError
	require.ErrorAs(t, err, &exposure)
	assert.Equal(t, 1, exposure.Positions)
	assert.Empty(t, venue.submitted, "guard veto must stop before submit")
}

func TestExecuteInfeasibleSizing(t *testing.T) {
	inst := defaultInstrument()
	inst.MinVolume = 10 // risk candidate 3 is under the venue minimum
	venue := &mockVenue{instrument: inst, markPrice: 100}
	o := newTestOrchestrator(t, venue, &mockAccount{}, NewJournal(zerolog.Nop(), nil, 10, 10))

	_, err := o.Execute(context.Background(), tradableDecision(), flatKlines(20), ExecInput{HighConviction: true})
	require.ErrorIs(t, err, risk.ErrInfeasible)
	assert.Empty(t, venue.submitted)
}

func TestExecuteRejectionJournalsFailed(t *testing.T) {
	venue := &mockVenue{
		instrument: defaultInstrument(),
		markPrice:  100,
		submitErr:  &exchange.RejectedError{Code: 40015, Message: "insufficient margin"},
	}
	sink := &captureSink{}
	journal := NewJournal(zerolog.Nop(), sink, 100, 100)
	o := newTestOrchestrator(t, venue, &mockAccount{}, journal)

	_, err := o.Execute(context.Background(), tradableDecision(), flatKlines(20), ExecInput{HighConviction: true})
	var rejected *exchange.RejectedError
	require.ErrorAs(t, err, &rejected)

	journal.Flush()
	require.Len(t, sink.batches, 1)
	require.Len(t, sink.batches[0], 1)
	entry := sink.batches[0][0]
	assert.Equal(t, StatusFailed, entry.Status)
	assert.Contains(t, entry.Context["error"], "insufficient margin")
}

func TestOnFillPlacesBracketAndOpensPosition(t *testing.T) {
	venue := &mockVenue{instrument: defaultInstrument(), markPrice: 100}
	sink := &captureSink{}
	journal := NewJournal(zerolog.Nop(), sink, 100, 100)
	o := newTestOrchestrator(t, venue, &mockAccount{}, journal)

	orderID, err := o.Execute(context.Background(), tradableDecision(), flatKlines(20), ExecInput{HighConviction: true})
	require.NoError(t, err)
	require.Len(t, venue.submitted, 1)

	// Partial fill: bracket must track the filled quantity, not the order size.
	err = o.OnFill(context.Background(), Fill{
		Symbol:        "BTCUSDT",
		ClientOrderID: orderID,
		Side:          signal.Long,
		Quantity:      2,
		Price:         100,
	})
	require.NoError(t, err)
	require.Len(t, venue.submitted, 2)

	bracket := venue.submitted[1]
	assert.Equal(t, exchange.SideCodeOpenShort, bracket.Side, "bracket closes on the opposite side")
	assert.Equal(t, 2, bracket.Size)
	assert.True(t, bracket.ReduceOnly)
	assert.True(t, bracket.OCO)
	assert.Equal(t, "98.0", bracket.PresetStopLossPrice)
	assert.Equal(t, "106.0", bracket.PresetTakeProfitPrice)

	journal.Flush()
	require.Len(t, sink.batches, 1)
	assert.Equal(t, StatusOpen, sink.batches[0][0].Status)

	// Second fill for the same id has nothing pending left.
	err = o.OnFill(context.Background(), Fill{ClientOrderID: orderID})
	assert.Error(t, err)
}

func TestAutoCancelFailureKeepsOrderClaimable(t *testing.T) {
	venue := &mockVenue{
		instrument: defaultInstrument(),
		markPrice:  100,
		cancelErr:  errors.New("order already filled"),
	}
	journal := NewJournal(zerolog.Nop(), nil, 100, 100)
	planner, err := risk.NewLeveragePlanner(risk.LeverageConfig{ExchangeCap: 50})
	require.NoError(t, err)
	o := NewOrchestrator(zerolog.Nop(), venue, &mockAccount{}, testRiskConfig(), planner, journal, Config{
		Kind:          "entry",
		BucketSeconds: 60,
		CancelAfterMS: 10,
	})

	orderID, err := o.Execute(context.Background(), tradableDecision(), flatKlines(20), ExecInput{HighConviction: true})
	require.NoError(t, err)

	// Wait for the timer to fire, fail the cancel, and put the record back.
	require.Eventually(t, func() bool {
		if venue.cancelAttempts() == 0 {
			return false
		}
		o.mu.Lock()
		defer o.mu.Unlock()
		_, ok := o.pending[orderID]
		return ok
	}, time.Second, 2*time.Millisecond)

	// The fill that beat the cancel still gets its reduce-only bracket.
	err = o.OnFill(context.Background(), Fill{
		Symbol:        "BTCUSDT",
		ClientOrderID: orderID,
		Side:          signal.Long,
		Quantity:      3,
	})
	require.NoError(t, err)

	reqs := venue.submittedOrders()
	require.Len(t, reqs, 2)
	assert.True(t, reqs[1].ReduceOnly)
	assert.True(t, reqs[1].OCO)
	assert.False(t, journal.MarkOpen(orderID), "fill must have flipped the entry to OPEN already")
}

func TestOnFillBracketFailureAllowsRetry(t *testing.T) {
	venue := &mockVenue{instrument: defaultInstrument(), markPrice: 100}
	journal := NewJournal(zerolog.Nop(), nil, 100, 100)
	o := newTestOrchestrator(t, venue, &mockAccount{}, journal)

	orderID, err := o.Execute(context.Background(), tradableDecision(), flatKlines(20), ExecInput{HighConviction: true})
	require.NoError(t, err)

	fill := Fill{Symbol: "BTCUSDT", ClientOrderID: orderID, Side: signal.Long, Quantity: 2}

	venue.setSubmitErr(errors.New("venue unavailable"))
	require.Error(t, o.OnFill(context.Background(), fill))

	venue.setSubmitErr(nil)
	require.NoError(t, o.OnFill(context.Background(), fill), "retried fill must find the order still pending")

	reqs := venue.submittedOrders()
	require.Len(t, reqs, 3)
	assert.Equal(t, 2, reqs[2].Size)
	assert.True(t, reqs[2].ReduceOnly)
}

func TestExecuteRefusesNonTradableDecision(t *testing.T) {
	o := newTestOrchestrator(t, &mockVenue{}, &mockAccount{}, NewJournal(zerolog.Nop(), nil, 10, 10))

	dec := tradableDecision()
	dec.Tradable = false
	dec.State = cascade.StateNoContext
	_, err := o.Execute(context.Background(), dec, flatKlines(20), ExecInput{})
	assert.Error(t, err)
}

func TestExecuteInsufficientKlinesForATR(t *testing.T) {
	venue := &mockVenue{instrument: defaultInstrument(), markPrice: 100}
	o := newTestOrchestrator(t, venue, &mockAccount{}, NewJournal(zerolog.Nop(), nil, 10, 10))

	_, err := o.Execute(context.Background(), tradableDecision(), flatKlines(5), ExecInput{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, indicator.ErrInsufficientData))
}
