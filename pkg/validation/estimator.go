package validation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainsafe/bridge-settlement/pkg/bridge"
)

const feeScale = 6

var hundred = decimal.NewFromInt(100)

// CongestionOracle reports the current congestion factor of a chain (1 = nominal).
type CongestionOracle interface {
	Congestion(chain bridge.ChainID) decimal.Decimal
}

// FeeEstimate is the advisory cost of a transfer, in asset units.
type FeeEstimate struct {
	BridgeFee decimal.Decimal `json:"bridgeFee"`
	GasFee    decimal.Decimal `json:"gasFee"`
	Total     decimal.Decimal `json:"totalFee"`
}

// Estimator computes fees, slippage and completion time.
type Estimator struct {
	registry       *Registry
	oracle         CongestionOracle
	baseFeeRate    decimal.Decimal
	defaultGasFee  decimal.Decimal
	processingTime time.Duration
}

// NewEstimator creates an Estimator. A nil oracle uses the registry's static congestion factors.
func NewEstimator(registry *Registry, oracle CongestionOracle, baseFeeRate, defaultGasFee decimal.Decimal, processingTime time.Duration) *Estimator {
	if oracle == nil {
		oracle = staticCongestion{registry: registry}
	}
	return &Estimator{
		registry:       registry,
		oracle:         oracle,
		baseFeeRate:    baseFeeRate,
		defaultGasFee:  defaultGasFee,
		processingTime: processingTime,
	}
}

// Fee returns the bridge fee (amount x base rate x asset multiplier, 6 dp, half-up)
// plus the target chain gas fee scaled by its congestion.
func (e *Estimator) Fee(target bridge.ChainID, asset string, amount decimal.Decimal) FeeEstimate {
	multiplier := decimal.NewFromInt(1)
	if a, ok := e.registry.Asset(asset); ok {
		multiplier = a.FeeMultiplier
	}
	bridgeFee := amount.Mul(e.baseFeeRate).Mul(multiplier).Round(feeScale)

	gas := e.defaultGasFee
	if c, ok := e.registry.Chain(target); ok && !c.GasFee.IsZero() {
		gas = c.GasFee
	}
	gasFee := gas.Mul(e.oracle.Congestion(target)).Round(feeScale)

	return FeeEstimate{
		BridgeFee: bridgeFee,
		GasFee:    gasFee,
		Total:     bridgeFee.Add(gasFee),
	}
}

// Slippage returns amount as a percentage of available liquidity, 2 dp.
// An empty pool yields 100.
func (e *Estimator) Slippage(amount, available decimal.Decimal) decimal.Decimal {
	if !available.IsPositive() {
		return hundred
	}
	return amount.Div(available).Mul(hundred).Round(2)
}

// CompletionTime estimates source block time + processing + target block time.
func (e *Estimator) CompletionTime(source, target bridge.ChainID) time.Duration {
	total := e.processingTime
	if c, ok := e.registry.Chain(source); ok {
		total += c.BlockTime
	}
	if c, ok := e.registry.Chain(target); ok {
		total += c.BlockTime
	}
	return total
}

type staticCongestion struct {
	registry *Registry
}

func (s staticCongestion) Congestion(chain bridge.ChainID) decimal.Decimal {
	if c, ok := s.registry.Chain(chain); ok {
		return c.Congestion
	}
	return decimal.NewFromInt(1)
}
