package scanner

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"state-connector/chain"
	"state-connector/models"
)

// Stable codes logged for rejected transactions.
const (
	CodeNotSuccess    = "ErrorCode001"
	CodeNotPayment    = "ErrorCode002"
	CodeBelowMinimum  = "ErrorCode003"
	CodeNoMemo        = "ErrorCode004"
	CodeInvalidMemo   = "ErrorCode005"
	CodeNotAnAddress  = "ErrorCode006"
	CodeBadPointerRef = "ErrorCode007"
)

// Filter decides whether a transaction is eligible for attestation.
type Filter struct {
	MinAmount *big.Int
	// Pointers lets a memo carry a 32-byte transaction hash that resolves
	// to another qualifying transaction.
	Pointers bool
}

// Check returns nil for an eligible transaction or a
// *models.MalformedRecordError carrying the rejection code. Errors from the
// reader while resolving a pointer are returned unchanged.
func (f Filter) Check(ctx context.Context, r chain.Reader, tx chain.Transaction) error {
	memo, err := f.checkDirect(tx)
	if err != nil {
		return err
	}
	if common.IsHexAddress(memo) {
		return nil
	}
	if !f.Pointers || !isTxHash(memo) {
		return reject(tx, CodeNotAnAddress, "memo is not a target-chain address")
	}

	ref, err := r.Transaction(ctx, strings.TrimPrefix(memo, "0x"))
	if errors.Is(err, models.ErrTxNotFound) {
		return reject(tx, CodeBadPointerRef, "pointer names an unknown transaction")
	}
	if err != nil {
		return err
	}
	refMemo, err := f.checkDirect(ref)
	if err != nil || !common.IsHexAddress(refMemo) {
		return reject(tx, CodeBadPointerRef, "pointer names a transaction that does not qualify")
	}
	return nil
}

// checkDirect applies every rule up to memo decoding and returns the decoded
// memo text.
func (f Filter) checkDirect(tx chain.Transaction) (string, error) {
	if !tx.Succeeded {
		return "", reject(tx, CodeNotSuccess, "transaction did not succeed")
	}
	if !tx.Payment {
		return "", reject(tx, CodeNotPayment, "transaction is not a payment")
	}
	if tx.Amount == nil || (f.MinAmount != nil && tx.Amount.Cmp(f.MinAmount) < 0) {
		return "", reject(tx, CodeBelowMinimum, "amount below minimum")
	}
	if len(tx.Memos) == 0 {
		return "", reject(tx, CodeNoMemo, "no memo")
	}
	raw := strings.TrimPrefix(tx.Memos[0].Data, "0x")
	if raw == "" {
		return "", reject(tx, CodeInvalidMemo, "memo has no data")
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return "", reject(tx, CodeInvalidMemo, "memo data is not hex")
	}
	return strings.TrimSpace(string(decoded)), nil
}

func isTxHash(s string) bool {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 2*common.HashLength {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func reject(tx chain.Transaction, code, reason string) error {
	return &models.MalformedRecordError{Code: code, TxID: tx.ID, Reason: reason}
}
