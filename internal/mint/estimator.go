package mint

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"mintforge/internal/chain"
)

// Gas limits used when the node cannot simulate the mint. Conservative
// upper bounds; actual gas used will be lower.
const (
	gasSimulationSeed = uint64(500_000)
	gasLimitFallback  = uint64(2_000_000)
)

// Estimate is the cost picture for one submission attempt.
type Estimate struct {
	GasLimit     uint64
	GasPriceWei  *big.Int
	MintPriceWei *big.Int
	TotalWei     *big.Int
	ComputedAt   time.Time
}

// Stale reports whether the estimate is too old to reuse.
func (e *Estimate) Stale(now time.Time, window time.Duration) bool {
	return now.Sub(e.ComputedAt) > window
}

// Estimator computes gas and mint-price cost from live network state.
type Estimator struct {
	client chain.Client
	state  ContractState
	clock  Clock
}

// NewEstimator wires an estimator to the chain client and contract state.
func NewEstimator(client chain.Client, state ContractState, clock Clock) *Estimator {
	if clock == nil {
		clock = RealClock()
	}
	return &Estimator{client: client, state: state, clock: clock}
}

// Estimate queries the current gas price and mint price and simulates the
// mint to size the gas limit. priceFloor, when non-nil, lifts the gas price
// to at least that value (used after an underpriced rejection).
func (e *Estimator) Estimate(ctx context.Context, from, to common.Address, calldata []byte, groupID, amount int64, priceFloor *big.Int) (*Estimate, error) {
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &NetworkTimeoutError{Op: "gas price", Err: err}
		}
		return nil, err
	}
	if priceFloor != nil && gasPrice.Cmp(priceFloor) < 0 {
		gasPrice = new(big.Int).Set(priceFloor)
	}

	mintPrice, err := e.state.MintCost(ctx, groupID, amount)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &NetworkTimeoutError{Op: "mint cost", Err: err}
		}
		return nil, err
	}

	gasLimit := gasLimitFallback
	simulated, err := e.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Gas:   gasSimulationSeed,
		Value: mintPrice,
		Data:  calldata,
	})
	if err == nil {
		// 20% headroom over the node's estimate.
		gasLimit = simulated + simulated/5
	}

	total := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	total.Add(total, mintPrice)

	return &Estimate{
		GasLimit:     gasLimit,
		GasPriceWei:  gasPrice,
		MintPriceWei: mintPrice,
		TotalWei:     total,
		ComputedAt:   e.clock.Now(),
	}, nil
}
