package ports

import (
	"context"

	"github.com/alejandrodnm/polytrader/internal/domain"
)

// OrderSubmitter signs and submits live orders.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, req domain.SubmitRequest) (domain.SubmitResult, error)
}

// OrderStatusSource reports the venue view of a submitted order.
type OrderStatusSource interface {
	// GetOrder returns found=false when the venue does not know the id.
	GetOrder(ctx context.Context, venueOrderID string) (order domain.VenueOrder, found bool, err error)
}

// BalanceSource returns the spendable USDC balance of the trading wallet.
type BalanceSource interface {
	GetBalance(ctx context.Context) (float64, error)
}
