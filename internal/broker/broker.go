// Package broker provides order execution interfaces and implementations.
package broker

import (
	"context"
	"time"

	"algotrader/internal/models"
)

// OrderRequest is one entry order handed to an execution client.
type OrderRequest struct {
	BotID     string
	Symbol    string
	Direction models.Direction
	LotSize   float64
	Price     float64
	Timestamp time.Time
}

// Fill is the execution result for an accepted order.
type Fill struct {
	OrderID string
	Price   float64
	LotSize float64
	Time    time.Time
}

// ExecutionClient defines the interface for order routing. Implementations
// must be safe for concurrent use; the engine dispatches from multiple bots.
type ExecutionClient interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*Fill, error)
	ClosePosition(ctx context.Context, pos *models.Position, price float64) error
	Name() string
}
