package broker

import (
	"context"
	"fmt"
	"sync"

	"algotrader/internal/errors"
	"algotrader/internal/models"
)

// PaperBroker implements ExecutionClient as an in-memory simulation.
// Orders fill immediately at the requested price shifted by the
// configured slippage against the order's direction.
type PaperBroker struct {
	slippagePct float64

	orderCounter int
	fills        []Fill
	closes       int

	mu sync.Mutex
}

// PaperBrokerConfig holds configuration for the paper broker.
type PaperBrokerConfig struct {
	SlippagePct float64
}

// NewPaperBroker creates a new paper trading execution client.
func NewPaperBroker(cfg PaperBrokerConfig) *PaperBroker {
	return &PaperBroker{
		slippagePct: cfg.SlippagePct,
	}
}

func (p *PaperBroker) Name() string { return "paper" }

// PlaceOrder simulates an immediate fill.
func (p *PaperBroker) PlaceOrder(ctx context.Context, req OrderRequest) (*Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.LotSize <= 0 {
		return nil, errors.Wrapf(errors.ErrOrderRejected, "lot size %v must be positive", req.LotSize)
	}
	if req.Price <= 0 {
		return nil, errors.Wrapf(errors.ErrOrderRejected, "price %v must be positive", req.Price)
	}

	price := req.Price
	if req.Direction == models.DirectionBuy {
		price *= 1 + p.slippagePct
	} else {
		price *= 1 - p.slippagePct
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.orderCounter++
	fill := Fill{
		OrderID: fmt.Sprintf("paper-%d", p.orderCounter),
		Price:   price,
		LotSize: req.LotSize,
		Time:    req.Timestamp,
	}
	p.fills = append(p.fills, fill)
	return &fill, nil
}

// ClosePosition acknowledges a close; the paper broker keeps no book of
// its own, positions live in the strategies.
func (p *PaperBroker) ClosePosition(ctx context.Context, pos *models.Position, price float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.closes++
	p.mu.Unlock()
	return nil
}

// Fills returns a copy of every simulated fill, in order.
func (p *PaperBroker) Fills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Fill, len(p.fills))
	copy(out, p.fills)
	return out
}

var _ ExecutionClient = (*PaperBroker)(nil)
