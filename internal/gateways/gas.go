package gateways

import (
	"context"
	"math/big"

	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/log"
)

const (
	minBumpPercent     = 10
	fastPremiumPercent = 20
)

// gasPricer keeps the price used for new anchoring transactions.
// It is not safe for concurrent use, the ledger gateway lock guards it.
type gasPricer struct {
	state        domain.GasPriceState
	bumpPercent  int
	refreshEvery int
	oracle       func(ctx context.Context) (*big.Int, error)
}

func newGasPricer(strategy domain.FeeStrategy, bumpPercent, refreshEvery int, oracle func(ctx context.Context) (*big.Int, error)) *gasPricer {
	if bumpPercent < minBumpPercent {
		bumpPercent = minBumpPercent
	}
	if refreshEvery < 1 {
		refreshEvery = 1
	}
	g := &gasPricer{
		state:        domain.GasPriceState{Strategy: strategy},
		bumpPercent:  bumpPercent,
		refreshEvery: refreshEvery,
		oracle:       oracle,
	}
	if !strategy.IsDynamic() {
		g.state.CurrentPrice = new(big.Int).Set(strategy.StaticPrice)
	}
	return g
}

// price returns a copy of the current price
func (g *gasPricer) price() *big.Int {
	if g.state.CurrentPrice == nil {
		return nil
	}
	return new(big.Int).Set(g.state.CurrentPrice)
}

// refresh asks the oracle for a new price. Static strategies never reach the oracle.
func (g *gasPricer) refresh(ctx context.Context) error {
	if !g.state.Strategy.IsDynamic() {
		return nil
	}
	suggested, err := g.oracle(ctx)
	if err != nil {
		return err
	}
	price := new(big.Int).Set(suggested)
	if g.state.Strategy.Kind == domain.FeeFast {
		price.Mul(price, big.NewInt(100+fastPremiumPercent))
		price = ceilDiv(price, big.NewInt(100))
	}
	log.Info(ctx, "gas price refreshed", "strategy", g.state.Strategy.String(), "suggested", suggested, "price", price)
	g.state.CurrentPrice = price
	return nil
}

// bump raises the price after a timed out transaction. The new price is strictly greater
// than the old one and at least bumpPercent above it.
func (g *gasPricer) bump(ctx context.Context) {
	if !g.state.Strategy.IsDynamic() || g.state.CurrentPrice == nil {
		return
	}
	old := g.state.CurrentPrice
	next := new(big.Int).Mul(old, big.NewInt(int64(100+g.bumpPercent)))
	next = ceilDiv(next, big.NewInt(100))
	if next.Cmp(old) <= 0 {
		next = new(big.Int).Add(old, big.NewInt(1))
	}
	log.Warn(ctx, "gas price bumped", "from", old, "to", next)
	g.state.CurrentPrice = next
}

// tick counts a processed message and reports whether the refresh cadence was reached
func (g *gasPricer) tick() bool {
	if !g.state.Strategy.IsDynamic() {
		return false
	}
	g.state.RefreshCounter++
	if g.state.RefreshCounter < g.refreshEvery {
		return false
	}
	g.state.RefreshCounter = 0
	return true
}

func ceilDiv(a, b *big.Int) *big.Int {
	q, m := new(big.Int).QuoRem(a, b, new(big.Int))
	if m.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
