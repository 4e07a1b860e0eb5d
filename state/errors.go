package state

import (
	"errors"
	"fmt"

	"github.com/rollkit/poe/bank"
	"github.com/rollkit/poe/claims"
	"github.com/rollkit/poe/types"
)

// Result codes of transactions included in a block.
const (
	CodeTypeOK uint32 = types.CodeTypeOK

	CodeInvalidTx uint32 = iota
	CodeWrongChainID
	CodeUnauthenticated
	CodeBadNonce
	CodeProofAlreadyClaimed
	CodeNoSuchProof
	CodeNotProofOwner
	CodeInsufficientBalance
	CodeInvalidMsg
	CodeMempoolFull
)

var (
	// ErrMempoolFull is returned by InjectTx when the mempool cannot take more transactions.
	ErrMempoolFull = errors.New("mempool is full")
	// ErrWrongChainID is returned for transactions signed for another chain.
	ErrWrongChainID = errors.New("wrong chain id")
)

// TxError is a transaction failure that is recorded in the block rather than
// aborting block execution.
type TxError struct {
	Code uint32
	Err  error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("code %d: %v", e.Code, e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}

// asTxError classifies err. Errors that are not a property of the transaction
// itself, like storage failures, are returned unchanged.
func asTxError(err error) (*TxError, bool) {
	var txErr *TxError
	if errors.As(err, &txErr) {
		return txErr, true
	}
	code, ok := codeOf(err)
	if !ok {
		return nil, false
	}
	return &TxError{Code: code, Err: err}, true
}

func codeOf(err error) (uint32, bool) {
	switch {
	case errors.Is(err, types.ErrInvalidEncoding),
		errors.Is(err, types.ErrProofTooLong),
		errors.Is(err, types.ErrUnknownMsg):
		return CodeInvalidTx, true
	case errors.Is(err, ErrMempoolFull):
		return CodeMempoolFull, true
	case errors.Is(err, ErrWrongChainID):
		return CodeWrongChainID, true
	case errors.Is(err, types.ErrUnauthenticated):
		return CodeUnauthenticated, true
	case errors.Is(err, bank.ErrInvalidNonce):
		return CodeBadNonce, true
	case errors.Is(err, claims.ErrProofAlreadyClaimed):
		return CodeProofAlreadyClaimed, true
	case errors.Is(err, claims.ErrNoSuchProof):
		return CodeNoSuchProof, true
	case errors.Is(err, claims.ErrNotProofOwner):
		return CodeNotProofOwner, true
	case errors.Is(err, bank.ErrInsufficientBalance):
		return CodeInsufficientBalance, true
	case errors.Is(err, types.ErrInvalidAmount),
		errors.Is(err, types.ErrInvalidAccountID),
		errors.Is(err, bank.ErrBalanceOverflow):
		return CodeInvalidMsg, true
	}
	return 0, false
}

// ErrorCode returns the result code reported for a transaction rejected with err.
func ErrorCode(err error) uint32 {
	if err == nil {
		return CodeTypeOK
	}
	if txErr, ok := asTxError(err); ok {
		return txErr.Code
	}
	return CodeInvalidTx
}
