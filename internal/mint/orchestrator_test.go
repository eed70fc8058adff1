package mint

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintforge/internal/chain"
	"mintforge/internal/network"
)

// testKey is a throwaway key used only to produce valid signatures in tests.
const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type fakeClient struct {
	mu           sync.Mutex
	chainID      *big.Int
	balance      *big.Int
	nonces       []uint64
	nonceCalls   int
	gasPrice     *big.Int
	gasCalls     int
	estimateGas  uint64
	estimateErr  error
	sendErrs     []error
	sent         []*types.Transaction
	receiptFails int // first N sent transactions revert
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		chainID:     big.NewInt(1337),
		balance:     big.NewInt(1e18),
		nonces:      []uint64{7},
		gasPrice:    big.NewInt(100),
		estimateGas: 100_000,
	}
}

func (f *fakeClient) ChainID(context.Context) (*big.Int, error) { return f.chainID, nil }

func (f *fakeClient) BalanceAt(context.Context, common.Address) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.nonceCalls
	if idx >= len(f.nonces) {
		idx = len(f.nonces) - 1
	}
	f.nonceCalls++
	return f.nonces[idx], nil
}

func (f *fakeClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gasCalls++
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return f.estimateGas, nil
}

func (f *fakeClient) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, errors.New("not wired in fake")
}

func (f *fakeClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return err
		}
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeClient) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, tx := range f.sent {
		if tx.Hash() == txHash {
			status := types.ReceiptStatusSuccessful
			if i < f.receiptFails {
				status = types.ReceiptStatusFailed
			}
			return &types.Receipt{Status: status, TxHash: txHash, GasUsed: 90_000}, nil
		}
	}
	return nil, ethereum.NotFound
}

var _ chain.Client = (*fakeClient)(nil)

type fakeState struct {
	mu          sync.Mutex
	activeAfter int // MintActive returns false this many times first
	activeCalls int
	remaining   int64
	cost        *big.Int
}

func (f *fakeState) MintActive(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeCalls++
	return f.activeCalls > f.activeAfter, nil
}

func (f *fakeState) RemainingAllowance(context.Context, int64) (int64, error) {
	if f.remaining == 0 {
		return 1, nil
	}
	return f.remaining, nil
}

func (f *fakeState) MintCost(context.Context, int64, int64) (*big.Int, error) {
	if f.cost == nil {
		return big.NewInt(0), nil
	}
	return f.cost, nil
}

type fakePacker struct {
	mu      sync.Mutex
	amounts []int64
}

func (f *fakePacker) Calldata(_ int64, amount int64, _ common.Address) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.amounts = append(f.amounts, amount)
	return []byte{0xde, 0xad, 0xbe, 0xef}, nil
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	f.sleeps = append(f.sleeps, d)
	f.now = f.now.Add(d)
	return nil
}

func testRequest(amount int64) Request {
	net, _ := network.Get("ARBITRUM_SEPOLIA")
	return Request{
		Network:   net,
		Contract:  common.HexToAddress("0x1111111111111111111111111111111111111111"),
		GroupID:   1,
		Amount:    amount,
		Recipient: common.HexToAddress("0x2222222222222222222222222222222222222222"),
	}
}

func newTestOrchestrator(t *testing.T, client *fakeClient, state *fakeState, packer *fakePacker, clock *fakeClock, opts Options) *Orchestrator {
	t.Helper()
	wallet, err := chain.NewWallet(testKey)
	require.NoError(t, err)
	return New(Deps{
		Client: client,
		State:  state,
		Packer: packer,
		Signer: wallet,
		Clock:  clock,
	}, opts)
}

func TestRunSucceedsFirstAttempt(t *testing.T) {
	client := newFakeClient()
	state := &fakeState{}
	packer := &fakePacker{}
	orch := newTestOrchestrator(t, client, state, packer, newFakeClock(), Options{})

	res, err := orch.Run(context.Background(), testRequest(2))
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, res.State)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, AttemptConfirmed, res.Attempts[0].Status)
	assert.Equal(t, uint64(7), res.Attempts[0].Nonce)
	assert.NotEmpty(t, res.TxHash)
	assert.Contains(t, res.ExplorerURL, res.TxHash)
	assert.Len(t, client.sent, 1)
}

func TestWaitsForMintToGoLive(t *testing.T) {
	client := newFakeClient()
	state := &fakeState{activeAfter: 3}
	packer := &fakePacker{}
	clock := newFakeClock()
	orch := newTestOrchestrator(t, client, state, packer, clock, Options{PollInterval: 5 * time.Second})

	res, err := orch.Run(context.Background(), testRequest(1))
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, res.State)
	assert.GreaterOrEqual(t, state.activeCalls, 4, "should poll until the flag flips")
	assert.GreaterOrEqual(t, len(clock.sleeps), 3)
	for _, d := range clock.sleeps[:3] {
		assert.Equal(t, 5*time.Second, d)
	}
}

func TestUnderpricedRetryUsesHigherGasPrice(t *testing.T) {
	client := newFakeClient()
	client.sendErrs = []error{errors.New("transaction underpriced")}
	state := &fakeState{}
	packer := &fakePacker{}
	orch := newTestOrchestrator(t, client, state, packer, newFakeClock(), Options{MaxAttempts: 3})

	res, err := orch.Run(context.Background(), testRequest(1))
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, res.State)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, AttemptFailed, res.Attempts[0].Status)
	assert.Equal(t, AttemptConfirmed, res.Attempts[1].Status)
	assert.Equal(t, 1, res.Attempts[1].GasPriceWei.Cmp(res.Attempts[0].GasPriceWei),
		"retry must use a strictly higher gas price")
}

func TestRetryRefreshesNonce(t *testing.T) {
	client := newFakeClient()
	client.nonces = []uint64{7, 9}
	client.sendErrs = []error{errors.New("nonce too low")}
	state := &fakeState{}
	packer := &fakePacker{}
	orch := newTestOrchestrator(t, client, state, packer, newFakeClock(), Options{})

	res, err := orch.Run(context.Background(), testRequest(1))
	require.NoError(t, err)

	assert.Equal(t, 2, client.nonceCalls, "each attempt re-queries the nonce")
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, uint64(7), res.Attempts[0].Nonce)
	assert.Equal(t, uint64(9), res.Attempts[1].Nonce)
}

func TestAutoMaxResolvesRemainingAllowance(t *testing.T) {
	client := newFakeClient()
	state := &fakeState{remaining: 7}
	packer := &fakePacker{}
	orch := newTestOrchestrator(t, client, state, packer, newFakeClock(), Options{})

	res, err := orch.Run(context.Background(), testRequest(-1))
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, res.State)
	require.NotEmpty(t, packer.amounts)
	for _, amount := range packer.amounts {
		assert.LessOrEqual(t, amount, state.remaining)
	}
	assert.Equal(t, int64(7), packer.amounts[len(packer.amounts)-1])
	assert.Equal(t, int64(7), res.Amount, "summary carries the resolved amount, not the sentinel")
}

func TestInsufficientFundsIsFatal(t *testing.T) {
	client := newFakeClient()
	client.sendErrs = []error{errors.New("insufficient funds for gas * price + value")}
	state := &fakeState{}
	packer := &fakePacker{}
	clock := newFakeClock()
	orch := newTestOrchestrator(t, client, state, packer, clock, Options{})

	res, err := orch.Run(context.Background(), testRequest(1))
	require.Error(t, err)

	var fatal *InsufficientFundsError
	assert.True(t, errors.As(err, &fatal))
	assert.Equal(t, StateFailed, res.State)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, AttemptFailed, res.Attempts[0].Status)
	assert.Empty(t, clock.sleeps, "fatal errors must not back off and retry")
}

func TestRevertedReceiptConsumesRetryBudget(t *testing.T) {
	client := newFakeClient()
	client.receiptFails = 1
	state := &fakeState{}
	packer := &fakePacker{}
	orch := newTestOrchestrator(t, client, state, packer, newFakeClock(), Options{MaxAttempts: 3})

	res, err := orch.Run(context.Background(), testRequest(1))
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, res.State)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, AttemptReverted, res.Attempts[0].Status)
	assert.Equal(t, AttemptConfirmed, res.Attempts[1].Status)
}

func TestRetryBudgetExhausted(t *testing.T) {
	client := newFakeClient()
	client.sendErrs = []error{
		errors.New("transaction underpriced"),
		errors.New("transaction underpriced"),
		errors.New("transaction underpriced"),
	}
	state := &fakeState{}
	packer := &fakePacker{}
	clock := newFakeClock()
	orch := newTestOrchestrator(t, client, state, packer, clock, Options{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     3 * time.Second,
	})

	res, err := orch.Run(context.Background(), testRequest(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry budget exhausted")
	assert.Equal(t, StateFailed, res.State)
	require.Len(t, res.Attempts, 3)
	for i, att := range res.Attempts {
		assert.Equal(t, AttemptFailed, att.Status)
		assert.Equal(t, i+1, att.Number)
	}
	// Backoff doubles and stays capped.
	require.Len(t, clock.sleeps, 2)
	assert.Equal(t, time.Second, clock.sleeps[0])
	assert.Equal(t, 2*time.Second, clock.sleeps[1])
	assert.Empty(t, client.sent)
}

func TestDryRunSimulatesWithoutSending(t *testing.T) {
	client := newFakeClient()
	state := &fakeState{}
	packer := &fakePacker{}
	orch := newTestOrchestrator(t, client, state, packer, newFakeClock(), Options{DryRun: true})

	res, err := orch.Run(context.Background(), testRequest(5))
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, res.State)
	assert.True(t, res.DryRun)
	require.Len(t, res.Attempts, 5)
	for _, att := range res.Attempts {
		assert.Equal(t, AttemptSimulated, att.Status)
	}
	assert.Empty(t, client.sent, "dry run must not send transactions")
	assert.Equal(t, 0, client.nonceCalls)
}

func TestEstimateRecomputedBeforeEachAttempt(t *testing.T) {
	client := newFakeClient()
	client.sendErrs = []error{errors.New("transaction underpriced")}
	state := &fakeState{}
	packer := &fakePacker{}
	orch := newTestOrchestrator(t, client, state, packer, newFakeClock(), Options{})

	_, err := orch.Run(context.Background(), testRequest(1))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, client.gasCalls, 2, "every attempt needs a fresh gas price")
}

func TestCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newFakeClient()
	orch := newTestOrchestrator(t, client, &fakeState{}, &fakePacker{}, newFakeClock(), Options{})

	res, err := orch.Run(ctx, testRequest(1))
	require.Error(t, err)

	var cancelled *CancelledError
	assert.True(t, errors.As(err, &cancelled))
	assert.Equal(t, StateFailed, res.State)
	assert.Empty(t, client.sent)
}

func TestMintToggledOffReturnsToWaitLoop(t *testing.T) {
	client := newFakeClient()
	client.sendErrs = []error{errors.New("execution reverted: mint not live")}
	state := &fakeState{}
	packer := &fakePacker{}
	clock := newFakeClock()
	orch := newTestOrchestrator(t, client, state, packer, clock, Options{MaxAttempts: 1})

	// MaxAttempts of 1 proves the not-active path never touches the
	// retry budget: the run still completes once the flag allows it.
	res, err := orch.Run(context.Background(), testRequest(1))
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, res.State)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, AttemptFailed, res.Attempts[0].Status)
	assert.Equal(t, AttemptConfirmed, res.Attempts[1].Status)
	assert.Equal(t, 1, res.Attempts[0].Number)
	assert.Equal(t, 2, res.Attempts[1].Number)
}

func TestPriceFloorClearedAfterAcceptedSend(t *testing.T) {
	client := newFakeClient()
	client.sendErrs = []error{errors.New("transaction underpriced")}
	client.receiptFails = 1
	state := &fakeState{}
	packer := &fakePacker{}
	orch := newTestOrchestrator(t, client, state, packer, newFakeClock(), Options{MaxAttempts: 3})

	res, err := orch.Run(context.Background(), testRequest(1))
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, res.State)
	require.Len(t, res.Attempts, 3)
	assert.Equal(t, AttemptFailed, res.Attempts[0].Status)
	assert.Equal(t, AttemptReverted, res.Attempts[1].Status)
	assert.Equal(t, AttemptConfirmed, res.Attempts[2].Status)

	// The bumped price applies only to the underpriced retry; once the node
	// accepts a send, later attempts go back to the suggested price.
	assert.Equal(t, 1, res.Attempts[1].GasPriceWei.Cmp(res.Attempts[0].GasPriceWei))
	assert.Equal(t, 0, res.Attempts[2].GasPriceWei.Cmp(res.Attempts[0].GasPriceWei))
}

func TestClassifySendError(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want interface{}
	}{
		{"insufficient", errors.New("insufficient funds for transfer"), &InsufficientFundsError{}},
		{"nonce", errors.New("nonce too low"), &TransactionRejectedError{}},
		{"underpriced", errors.New("replacement transaction underpriced"), &TransactionRejectedError{}},
		{"not live", errors.New("execution reverted: Mint not live"), &MintingNotActiveError{}},
		{"timeout", fmt.Errorf("call: %w", context.DeadlineExceeded), &NetworkTimeoutError{}},
		{"unknown", errors.New("boom"), &TransactionRejectedError{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifySendError(tc.in)
			switch want := tc.want.(type) {
			case *InsufficientFundsError:
				assert.True(t, errors.As(got, &want))
			case *TransactionRejectedError:
				assert.True(t, errors.As(got, &want))
			case *MintingNotActiveError:
				assert.True(t, errors.As(got, &want))
			case *NetworkTimeoutError:
				assert.True(t, errors.As(got, &want))
			}
		})
	}
}
