package mint

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"mintforge/internal/network"
)

// Request describes one minting run. Amount < 0 means auto-max: resolve the
// maximum permitted quantity from contract state at submission time.
type Request struct {
	Network   network.Network
	Contract  common.Address
	GroupID   int64
	Amount    int64
	Recipient common.Address
}

// AutoMax reports whether the amount should be resolved from the
// contract's remaining allowance.
func (r Request) AutoMax() bool {
	return r.Amount < 0
}

// Signer signs transactions for the run's wallet.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// ContractState is the read-only contract surface the orchestrator polls.
type ContractState interface {
	MintActive(ctx context.Context) (bool, error)
	RemainingAllowance(ctx context.Context, groupID int64) (int64, error)
	MintCost(ctx context.Context, groupID, amount int64) (*big.Int, error)
}

// CalldataPacker packs the detected mint entry point into calldata.
type CalldataPacker interface {
	Calldata(groupID, amount int64, recipient common.Address) ([]byte, error)
}

// AttemptStatus is the lifecycle state of a single transaction attempt.
type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptConfirmed AttemptStatus = "confirmed"
	AttemptFailed    AttemptStatus = "failed"
	AttemptReverted  AttemptStatus = "reverted"
	AttemptSimulated AttemptStatus = "simulated"
)

// Attempt records one transaction submission.
type Attempt struct {
	Number      int           `json:"number"`
	Nonce       uint64        `json:"nonce"`
	TxHash      string        `json:"tx_hash,omitempty"`
	GasPriceWei *big.Int      `json:"gas_price_wei,omitempty"`
	Status      AttemptStatus `json:"status"`
	Error       string        `json:"error,omitempty"`
	Time        time.Time     `json:"time"`
}

// State names the orchestrator's position in the run.
type State string

const (
	StateIdle              State = "Idle"
	StateWaitingForEnabled State = "WaitingForEnabled"
	StateEstimating        State = "Estimating"
	StateSubmitting        State = "Submitting"
	StateConfirming        State = "Confirming"
	StateRetrying          State = "Retrying"
	StateSucceeded         State = "Succeeded"
	StateFailed            State = "Failed"
)

// Result is the immutable summary of a run.
type Result struct {
	RunID       string    `json:"run_id"`
	Network     string    `json:"network"`
	Contract    string    `json:"contract"`
	Recipient   string    `json:"recipient"`
	GroupID     int64     `json:"group_id"`
	Amount      int64     `json:"amount"`
	State       State     `json:"state"`
	Attempts    []Attempt `json:"attempts"`
	TxHash      string    `json:"tx_hash,omitempty"`
	ExplorerURL string    `json:"explorer_url,omitempty"`
	DryRun      bool      `json:"dry_run"`
	Err         string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Succeeded reports whether the run reached a confirmed mint.
func (r Result) Succeeded() bool {
	return r.State == StateSucceeded
}

func newRunID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "run-" + hex.EncodeToString(big.NewInt(time.Now().UnixNano()).Bytes())
	}
	return "run-" + hex.EncodeToString(buf[:])
}
