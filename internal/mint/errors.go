package mint

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RejectReason codes why a node refused a transaction.
type RejectReason string

const (
	ReasonNonceTooLow RejectReason = "nonce_too_low"
	ReasonUnderpriced RejectReason = "underpriced"
	ReasonReverted    RejectReason = "reverted"
	ReasonUnknown     RejectReason = "unknown"
)

// NetworkTimeoutError marks an RPC call that exceeded its per-call timeout.
// Retryable.
type NetworkTimeoutError struct {
	Op  string
	Err error
}

func (e *NetworkTimeoutError) Error() string {
	return fmt.Sprintf("network timeout during %s: %v", e.Op, e.Err)
}

func (e *NetworkTimeoutError) Unwrap() error { return e.Err }

// TransactionRejectedError marks an RPC rejection of a submitted
// transaction. Retryable for every reason code carried here; fatal
// rejections use their own types.
type TransactionRejectedError struct {
	Reason RejectReason
	Err    error
}

func (e *TransactionRejectedError) Error() string {
	return fmt.Sprintf("transaction rejected (%s): %v", e.Reason, e.Err)
}

func (e *TransactionRejectedError) Unwrap() error { return e.Err }

// InsufficientFundsError marks a wallet that cannot cover gas plus mint
// price. Fatal.
type InsufficientFundsError struct {
	Err error
}

func (e *InsufficientFundsError) Error() string {
	if e.Err == nil {
		return "insufficient funds for mint"
	}
	return fmt.Sprintf("insufficient funds: %v", e.Err)
}

func (e *InsufficientFundsError) Unwrap() error { return e.Err }

// MintingNotActiveError marks a rejection caused by the mint flag being
// off. Handled by the wait loop, never counted against the retry budget.
type MintingNotActiveError struct {
	Err error
}

func (e *MintingNotActiveError) Error() string {
	if e.Err == nil {
		return "minting is not active"
	}
	return fmt.Sprintf("minting is not active: %v", e.Err)
}

func (e *MintingNotActiveError) Unwrap() error { return e.Err }

// CancelledError marks a run cut short by the caller's context.
type CancelledError struct {
	Err error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("run cancelled: %v", e.Err)
}

func (e *CancelledError) Unwrap() error { return e.Err }

// notActiveMarkers are revert fragments contracts commonly emit when the
// sale has not started.
var notActiveMarkers = []string{
	"mint not live",
	"minting not active",
	"mint is not live",
	"sale not active",
	"sale is not active",
	"not started",
	"paused",
}

// classifySendError maps a raw node error onto the taxonomy.
func classifySendError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &NetworkTimeoutError{Op: "send transaction", Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return &InsufficientFundsError{Err: err}
	case strings.Contains(msg, "nonce too low"),
		strings.Contains(msg, "nonce too high"),
		strings.Contains(msg, "invalid nonce"),
		strings.Contains(msg, "already known"):
		return &TransactionRejectedError{Reason: ReasonNonceTooLow, Err: err}
	case strings.Contains(msg, "underpriced"),
		strings.Contains(msg, "fee cap less than"),
		strings.Contains(msg, "max fee per gas less than block base fee"):
		return &TransactionRejectedError{Reason: ReasonUnderpriced, Err: err}
	}

	for _, marker := range notActiveMarkers {
		if strings.Contains(msg, marker) {
			return &MintingNotActiveError{Err: err}
		}
	}

	return &TransactionRejectedError{Reason: ReasonUnknown, Err: err}
}
