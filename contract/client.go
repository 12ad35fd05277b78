// Package contract talks to the state connector contract on the target
// ledger. Every mutating call is preceded by a read in the caller, so each
// submission is idempotent from the attestor's point of view.
package contract

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"state-connector/models"
)

// LedgerClient is the ledger-contract collaborator.
type LedgerClient interface {
	// Submitter is the address transactions are signed with.
	Submitter() common.Address

	// FinalityStatus returns the finality snapshot of chain, or
	// models.ErrUninitialised when the contract has no chains yet.
	FinalityStatus(ctx context.Context, chain models.ChainID) (models.FinalityStatus, error)
	// EpochRegistered reports whether the period is finalised.
	EpochRegistered(ctx context.Context, chain models.ChainID, index uint64) (bool, error)
	// EpochRoot is the root the contract finalised for a period.
	EpochRoot(ctx context.Context, chain models.ChainID, index uint64) (common.Hash, error)
	// PaymentFinality reports whether the payment was already proven.
	PaymentFinality(ctx context.Context, claim models.PaymentClaim) (bool, error)

	// The mutating calls return the transaction hash. They fail with
	// models.ErrAlreadyInFlight when an identical transaction is pending.
	InitialiseChains(ctx context.Context) (common.Hash, error)
	RegisterEpoch(ctx context.Context, chain models.ChainID, index, upper uint64, root common.Hash) (common.Hash, error)
	RegisterPartial(ctx context.Context, chain models.ChainID, index, upper, skip uint64, root common.Hash) (common.Hash, error)
	CommitEpoch(ctx context.Context, chain models.ChainID, index, upper uint64, root, commitHash common.Hash) (common.Hash, error)
	RevealEpoch(ctx context.Context, chain models.ChainID, index, upper uint64, root, chainTipHash common.Hash) (common.Hash, error)
	ProvePayment(ctx context.Context, claim models.PaymentClaim) (common.Hash, error)
	DisprovePayment(ctx context.Context, claim models.PaymentClaim) (common.Hash, error)

	// AwaitReceipt blocks until the transaction is included. A reverted
	// transaction yields models.ErrFatalSubmission.
	AwaitReceipt(ctx context.Context, tx common.Hash) error
}
