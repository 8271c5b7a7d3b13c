package order

import (
	"context"
	"fmt"

	"mtfbot/internal/exchange"
)

// AccountState reads the venue's view of existing exposure.
type AccountState interface {
	Positions(ctx context.Context, symbol string) ([]exchange.Position, error)
	OpenOrders(ctx context.Context, symbol string) ([]exchange.OpenOrder, error)
}

// ActiveExposureError vetoes a new order because the symbol already has a
// live position or a resting order.
type ActiveExposureError struct {
	Symbol    string
	Positions int
	Orders    int
}

func (e *ActiveExposureError) Error() string {
	return fmt.Sprintf("active exposure on %s: %d positions, %d open orders", e.Symbol, e.Positions, e.Orders)
}

// CheckExposure queries positions and open orders for symbol and returns
// *ActiveExposureError when either shows anything live. There is no
// transaction spanning this check and a later submit; the venue's own
// rejection stays authoritative for that race.
func CheckExposure(ctx context.Context, acct AccountState, symbol string) error {
	positions, err := acct.Positions(ctx, symbol)
	if err != nil {
		return fmt.Errorf("exposure check positions %s: %w", symbol, err)
	}
	live := 0
	for _, p := range positions {
		if p.Size > 0 {
			live++
		}
	}

	orders, err := acct.OpenOrders(ctx, symbol)
	if err != nil {
		return fmt.Errorf("exposure check open orders %s: %w", symbol, err)
	}

	if live > 0 || len(orders) > 0 {
		return &ActiveExposureError{Symbol: symbol, Positions: live, Orders: len(orders)}
	}
	return nil
}
