package mint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"mintforge/internal/chain"
)

// Observer receives orchestrator events for metrics. Implementations must
// tolerate concurrent runs; a nil Observer disables observation.
type Observer interface {
	AttemptRecorded(status string)
	RetryScheduled(reason string)
	GasPriceWei(price *big.Int)
}

// Options tune the orchestrator's polling, retry and staleness behavior.
type Options struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	PollInterval      time.Duration
	ConfirmInterval   time.Duration
	ConfirmTimeout    time.Duration
	EstimateStaleness time.Duration
	DryRun            bool
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 2 * time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Second
	}
	if o.ConfirmInterval <= 0 {
		o.ConfirmInterval = 2 * time.Second
	}
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = 5 * time.Minute
	}
	if o.EstimateStaleness <= 0 {
		o.EstimateStaleness = 30 * time.Second
	}
	return o
}

// Deps are the collaborators a run drives.
type Deps struct {
	Client   chain.Client
	State    ContractState
	Packer   CalldataPacker
	Signer   Signer
	Clock    Clock
	Logger   *slog.Logger
	Observer Observer
}

// Orchestrator drives a single mint run through the
// WaitingForEnabled → Estimating → Submitting → Confirming flow, retrying
// with exponential backoff on recoverable failures. One in-flight
// transaction at a time; instances share no mutable state.
type Orchestrator struct {
	client  chain.Client
	state   ContractState
	packer  CalldataPacker
	signer  Signer
	est     *Estimator
	clock   Clock
	log     *slog.Logger
	obs     Observer
	opts    Options
	chainID *big.Int
}

// New builds an orchestrator. Zero option fields get defaults.
func New(deps Deps, opts Options) *Orchestrator {
	clock := deps.Clock
	if clock == nil {
		clock = RealClock()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		client: deps.Client,
		state:  deps.State,
		packer: deps.Packer,
		signer: deps.Signer,
		est:    NewEstimator(deps.Client, deps.State, clock),
		clock:  clock,
		log:    logger,
		obs:    deps.Observer,
		opts:   opts.withDefaults(),
	}
}

// Run executes one mint run to a terminal state. The returned Result is a
// complete summary even when err is non-nil.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	started := o.clock.Now()
	rec := NewRecorder(req, o.opts.DryRun, started)

	finalState, err := o.run(ctx, req, rec)
	res := rec.Summarize(finalState, err, o.clock.Now())

	if err != nil {
		o.log.Error("run finished", "run_id", res.RunID, "state", finalState, "attempts", len(res.Attempts), "err", err)
	} else {
		o.log.Info("run finished", "run_id", res.RunID, "state", finalState, "attempts", len(res.Attempts))
	}
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, req Request, rec *Recorder) (State, error) {
	cur := StateIdle
	o.transition(&cur, StateWaitingForEnabled)
	if err := o.waitForEnabled(ctx); err != nil {
		return StateFailed, err
	}

	retries := 0
	attempt := 0
	backoff := o.opts.InitialBackoff
	var estimate *Estimate
	var priceFloor *big.Int

	for {
		o.transition(&cur, StateEstimating)
		if err := cancelled(ctx); err != nil {
			return StateFailed, err
		}

		amount := req.Amount
		if req.AutoMax() {
			// Queried fresh every attempt so a shrinking allowance cannot
			// race the submission.
			resolved, err := o.state.RemainingAllowance(ctx, req.GroupID)
			if err != nil {
				if stop, rerr := o.scheduleRetry(ctx, &cur, &retries, &backoff, err); stop {
					return StateFailed, rerr
				}
				continue
			}
			amount = resolved
			rec.SetResolvedAmount(amount)
			o.log.Debug("resolved auto-max amount", "amount", amount)
		}

		calldata, err := o.packer.Calldata(req.GroupID, amount, req.Recipient)
		if err != nil {
			return StateFailed, err
		}

		if estimate == nil || estimate.Stale(o.clock.Now(), o.opts.EstimateStaleness) {
			estimate, err = o.est.Estimate(ctx, o.signer.Address(), req.Contract, calldata, req.GroupID, amount, priceFloor)
			if err != nil {
				if stop, rerr := o.scheduleRetry(ctx, &cur, &retries, &backoff, err); stop {
					return StateFailed, rerr
				}
				continue
			}
		}
		if o.obs != nil {
			o.obs.GasPriceWei(estimate.GasPriceWei)
		}
		o.log.Debug("cost estimate",
			"gas_limit", estimate.GasLimit,
			"gas_price_wei", estimate.GasPriceWei,
			"mint_price_wei", estimate.MintPriceWei,
			"total_wei", estimate.TotalWei)

		o.transition(&cur, StateSubmitting)
		if err := cancelled(ctx); err != nil {
			return StateFailed, err
		}

		if o.opts.DryRun {
			o.simulate(rec, amount, estimate)
			return StateSucceeded, nil
		}

		if o.chainID == nil {
			id, err := o.client.ChainID(ctx)
			if err != nil {
				if stop, rerr := o.scheduleRetry(ctx, &cur, &retries, &backoff, err); stop {
					return StateFailed, rerr
				}
				continue
			}
			o.chainID = id
		}

		// Nonce is re-queried for every attempt; a rejected transaction
		// never pins a stale value.
		nonce, err := o.client.PendingNonceAt(ctx, o.signer.Address())
		if err != nil {
			if stop, rerr := o.scheduleRetry(ctx, &cur, &retries, &backoff, err); stop {
				return StateFailed, rerr
			}
			continue
		}

		tx := types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: estimate.GasPriceWei,
			Gas:      estimate.GasLimit,
			To:       &req.Contract,
			Value:    estimate.MintPriceWei,
			Data:     calldata,
		})
		signed, err := o.signer.SignTx(tx, o.chainID)
		if err != nil {
			return StateFailed, err
		}

		attempt++
		att := Attempt{
			Number:      attempt,
			Nonce:       nonce,
			GasPriceWei: estimate.GasPriceWei,
			Status:      AttemptPending,
			Time:        o.clock.Now(),
		}

		if err := o.client.SendTransaction(ctx, signed); err != nil {
			cls := classifySendError(err)
			att.Status = AttemptFailed
			att.Error = cls.Error()
			o.record(rec, att)

			var fatal *InsufficientFundsError
			if errors.As(cls, &fatal) {
				return StateFailed, cls
			}
			var notActive *MintingNotActiveError
			if errors.As(cls, &notActive) {
				o.transition(&cur, StateWaitingForEnabled)
				if werr := o.waitForEnabled(ctx); werr != nil {
					return StateFailed, werr
				}
				estimate = nil
				continue
			}
			var rejected *TransactionRejectedError
			if errors.As(cls, &rejected) && rejected.Reason == ReasonUnderpriced {
				priceFloor = bumpGasPrice(estimate.GasPriceWei)
			}
			if stop, rerr := o.scheduleRetry(ctx, &cur, &retries, &backoff, cls); stop {
				return StateFailed, rerr
			}
			estimate = nil
			continue
		}

		att.TxHash = signed.Hash().Hex()
		// The node accepted this price, so the underpriced floor no longer
		// applies to later attempts.
		priceFloor = nil
		o.log.Info("transaction sent", "tx", att.TxHash, "nonce", nonce)

		o.transition(&cur, StateConfirming)
		receipt, err := o.awaitReceipt(ctx, signed.Hash())
		if err != nil {
			var cancel *CancelledError
			if errors.As(err, &cancel) {
				att.Status = AttemptFailed
				att.Error = err.Error()
				o.record(rec, att)
				return StateFailed, err
			}
			att.Status = AttemptFailed
			att.Error = err.Error()
			o.record(rec, att)
			if stop, rerr := o.scheduleRetry(ctx, &cur, &retries, &backoff, err); stop {
				return StateFailed, rerr
			}
			estimate = nil
			continue
		}

		if receipt.Status == types.ReceiptStatusFailed {
			att.Status = AttemptReverted
			att.Error = "execution reverted"
			o.record(rec, att)

			// A sale toggled off mid-run belongs to the wait loop, not
			// the retry budget.
			if active, aerr := o.state.MintActive(ctx); aerr == nil && !active {
				o.transition(&cur, StateWaitingForEnabled)
				if werr := o.waitForEnabled(ctx); werr != nil {
					return StateFailed, werr
				}
				estimate = nil
				continue
			}

			cause := &TransactionRejectedError{Reason: ReasonReverted, Err: fmt.Errorf("transaction %s reverted", att.TxHash)}
			if stop, rerr := o.scheduleRetry(ctx, &cur, &retries, &backoff, cause); stop {
				return StateFailed, rerr
			}
			estimate = nil
			continue
		}

		att.Status = AttemptConfirmed
		o.record(rec, att)
		o.log.Info("transaction confirmed", "tx", att.TxHash, "gas_used", receipt.GasUsed)
		return StateSucceeded, nil
	}
}

func (o *Orchestrator) simulate(rec *Recorder, amount int64, estimate *Estimate) {
	now := o.clock.Now()
	for i := int64(0); i < amount; i++ {
		o.record(rec, Attempt{
			Number:      int(i) + 1,
			GasPriceWei: estimate.GasPriceWei,
			Status:      AttemptSimulated,
			Time:        now,
		})
	}
	o.log.Info("dry run complete, no transactions sent", "simulated", amount)
}

// waitForEnabled polls the mint flag until it flips true. Read errors keep
// polling; only cancellation ends the wait.
func (o *Orchestrator) waitForEnabled(ctx context.Context) error {
	for {
		if err := cancelled(ctx); err != nil {
			return err
		}
		active, err := o.state.MintActive(ctx)
		if err != nil {
			o.log.Warn("mint status check failed, retrying", "err", err)
		} else if active {
			return nil
		} else {
			o.log.Debug("mint not active yet", "next_check_in", o.opts.PollInterval)
		}
		if err := o.clock.Sleep(ctx, o.opts.PollInterval); err != nil {
			return &CancelledError{Err: err}
		}
	}
}

// awaitReceipt polls for the transaction receipt until found, the confirm
// window closes, or the run is cancelled.
func (o *Orchestrator) awaitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	deadline := o.clock.Now().Add(o.opts.ConfirmTimeout)
	for {
		if err := cancelled(ctx); err != nil {
			return nil, err
		}
		receipt, err := o.client.TransactionReceipt(ctx, txHash)
		if receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && !strings.Contains(err.Error(), "not found") {
			o.log.Debug("receipt poll failed", "err", err)
		}
		if o.clock.Now().After(deadline) {
			return nil, &NetworkTimeoutError{Op: "confirm", Err: fmt.Errorf("no receipt within %s", o.opts.ConfirmTimeout)}
		}
		if err := o.clock.Sleep(ctx, o.opts.ConfirmInterval); err != nil {
			return nil, &CancelledError{Err: err}
		}
	}
}

// scheduleRetry consumes one unit of the retry budget and sleeps the
// backoff. stop is true when the budget is exhausted or the run was
// cancelled.
func (o *Orchestrator) scheduleRetry(ctx context.Context, cur *State, retries *int, backoff *time.Duration, cause error) (stop bool, err error) {
	*retries++
	if *retries >= o.opts.MaxAttempts {
		return true, fmt.Errorf("retry budget exhausted after %d attempts: %w", *retries, cause)
	}
	o.transition(cur, StateRetrying)
	if cerr := cancelled(ctx); cerr != nil {
		return true, cerr
	}
	if o.obs != nil {
		o.obs.RetryScheduled(reasonOf(cause))
	}
	o.log.Warn("attempt failed, retrying", "attempt", *retries, "backoff", *backoff, "err", cause)
	if serr := o.clock.Sleep(ctx, *backoff); serr != nil {
		return true, &CancelledError{Err: serr}
	}
	*backoff *= 2
	if *backoff > o.opts.MaxBackoff {
		*backoff = o.opts.MaxBackoff
	}
	return false, nil
}

func (o *Orchestrator) record(rec *Recorder, att Attempt) {
	rec.Record(att)
	if o.obs != nil {
		o.obs.AttemptRecorded(string(att.Status))
	}
}

func (o *Orchestrator) transition(cur *State, next State) {
	o.log.Debug("state transition", "from", *cur, "to", next)
	*cur = next
}

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &CancelledError{Err: err}
	}
	return nil
}

// bumpGasPrice lifts a rejected price by 12.5%, the replacement bump most
// nodes require.
func bumpGasPrice(price *big.Int) *big.Int {
	bumped := new(big.Int).Mul(price, big.NewInt(1125))
	return bumped.Div(bumped, big.NewInt(1000))
}

func reasonOf(err error) string {
	var rejected *TransactionRejectedError
	if errors.As(err, &rejected) {
		return string(rejected.Reason)
	}
	var timeout *NetworkTimeoutError
	if errors.As(err, &timeout) {
		return "timeout"
	}
	return "other"
}
