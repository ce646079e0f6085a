package domain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// AnchorStatus is the outcome of a mined anchoring transaction
type AnchorStatus string

// Anchor statuses
const (
	AnchorSuccess AnchorStatus = "success"
	AnchorFailure AnchorStatus = "failure"
)

// AnchorReceipt is produced by the ledger gateway
type AnchorReceipt struct {
	TxHash   string
	Status   AnchorStatus
	BlockRef uint64
}

// FeeStrategyKind selects how gas price is obtained
type FeeStrategyKind string

// Fee strategies
const (
	FeeStatic FeeStrategyKind = "static"
	FeeFast   FeeStrategyKind = "fast"
	FeeMedium FeeStrategyKind = "medium"
)

// FeeStrategy is a parsed `static:<wei>`, `fast` or `medium` value
type FeeStrategy struct {
	Kind        FeeStrategyKind
	StaticPrice *big.Int
}

// IsDynamic tells whether the price comes from the network fee oracle
func (f FeeStrategy) IsDynamic() bool {
	return f.Kind != FeeStatic
}

func (f FeeStrategy) String() string {
	if f.Kind == FeeStatic && f.StaticPrice != nil {
		return fmt.Sprintf("%s:%s", FeeStatic, f.StaticPrice.String())
	}
	return string(f.Kind)
}

// ParseFeeStrategy parses the fee strategy configuration value
func ParseFeeStrategy(s string) (FeeStrategy, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch {
	case s == string(FeeFast):
		return FeeStrategy{Kind: FeeFast}, nil
	case s == string(FeeMedium):
		return FeeStrategy{Kind: FeeMedium}, nil
	case strings.HasPrefix(s, string(FeeStatic)+":"):
		price, ok := new(big.Int).SetString(strings.TrimPrefix(s, string(FeeStatic)+":"), 10)
		if !ok || price.Sign() <= 0 {
			return FeeStrategy{}, NewConfigurationError("fee strategy", fmt.Errorf("invalid static price in %q", s))
		}
		return FeeStrategy{Kind: FeeStatic, StaticPrice: price}, nil
	}
	return FeeStrategy{}, NewConfigurationError("fee strategy", errors.New("expected static:<wei>, fast or medium"))
}

// GasPriceState is the ledger gateway fee state
type GasPriceState struct {
	CurrentPrice   *big.Int
	Strategy       FeeStrategy
	RefreshCounter int
}
