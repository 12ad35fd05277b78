// Package prover proves or disproves single payments against the roots the
// contract finalised.
package prover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"state-connector/chain"
	"state-connector/contract"
	"state-connector/epoch"
	"state-connector/leaf"
	"state-connector/merkle"
	"state-connector/models"
	"state-connector/repository"
	"state-connector/scanner"
)

// Result is the outcome of ProveOrDisprove.
type Result struct {
	Outcome models.Outcome      `json:"outcome"`
	Claim   models.PaymentClaim `json:"claim"`
	Root    common.Hash         `json:"root"` // committed root of the payment's period
	Tx      common.Hash         `json:"tx"`   // zero for AlreadyProven
}

// Engine serves proof requests for one chain.
type Engine struct {
	spec    chain.Spec
	reader  chain.Reader
	ledger  contract.LedgerClient
	journal repository.JournalInterface
	scanner *scanner.Scanner
	backoff time.Duration
	log     *zap.Logger
}

func New(spec chain.Spec, reader chain.Reader, ledger contract.LedgerClient, journal repository.JournalInterface, backoff time.Duration, log *zap.Logger) *Engine {
	log = log.With(zap.String("chain", spec.Name), zap.Uint32("chain_id", uint32(spec.ID)))
	return &Engine{
		spec:    spec,
		reader:  reader,
		ledger:  ledger,
		journal: journal,
		scanner: scanner.New(spec, reader, backoff, log),
		backoff: backoff,
		log:     log,
	}
}

// ProveOrDisprove locates the payment's period, rebuilds its tree and
// submits either a proof of inclusion in the committed root or a disproof.
// It fails with models.ErrNotYetFinalised while the period is open, and
// short-circuits with OutcomeAlreadyProven when the contract already holds
// the payment.
func (e *Engine) ProveOrDisprove(ctx context.Context, txID string) (Result, error) {
	status, err := chain.Value(ctx, e.backoff, e.log, "finality_status", func() (models.FinalityStatus, error) {
		return e.ledger.FinalityStatus(ctx, e.spec.ID)
	})
	if err != nil {
		return Result{}, err
	}
	tx, err := chain.Value(ctx, e.backoff, e.log, "transaction", func() (chain.Transaction, error) {
		return e.reader.Transaction(ctx, txID)
	})
	if err != nil {
		return Result{}, err
	}
	record := tx.Record(e.spec.ID)

	w, err := epoch.Containing(e.spec.ID, status.GenesisLedger, status.PeriodLength, record.Ledger)
	if err != nil {
		return Result{}, err
	}
	log := e.log.With(zap.String("tx_id", txID), zap.Uint64("ledger", record.Ledger), zap.Uint64("epoch", w.Index))
	if !status.Covers(record.Ledger) {
		return Result{}, fmt.Errorf("ledger %d (finalised below %d): %w", record.Ledger, status.FinalisedLedgerIndex, models.ErrNotYetFinalised)
	}

	claim := models.PaymentClaim{
		ChainID: e.spec.ID,
		Epoch:   w.Index,
		Ledger:  record.Ledger,
		TxID:    record.TxID,
		Leaf:    leaf.Of(record),
	}
	proven, err := chain.Value(ctx, e.backoff, e.log, "payment_finality", func() (bool, error) {
		return e.ledger.PaymentFinality(ctx, claim)
	})
	if err != nil {
		return Result{}, err
	}
	if proven {
		log.Info("Payment already proven")
		return Result{Outcome: models.OutcomeAlreadyProven, Claim: claim}, nil
	}

	leaves, err := e.epochLeaves(ctx, w)
	if err != nil {
		return Result{}, err
	}
	committed, err := chain.Value(ctx, e.backoff, e.log, "epoch_root", func() (common.Hash, error) {
		return e.ledger.EpochRoot(ctx, e.spec.ID, w.Index)
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{Claim: claim, Root: committed}
	tree := merkle.Build(leaves)
	log.Debug("Rebuilt epoch tree", zap.Int("leaves", tree.Len()), zap.String("root", tree.Root().Hex()))
	proof, err := Check(tree, claim.Leaf, committed)
	submit := e.ledger.ProvePayment
	res.Outcome = models.OutcomeProven
	switch {
	case err == nil:
		res.Claim.Proof = proof.Siblings
	case errors.Is(err, merkle.ErrLeafNotFound), errors.Is(err, models.ErrVerificationMismatch):
		log.Warn("Payment does not match the finalised epoch", zap.Error(err))
		submit = e.ledger.DisprovePayment
		res.Outcome = models.OutcomeDisproven
		res.Claim.Proof = proof.Siblings
	default:
		return Result{}, err
	}

	hash, err := chain.Value(ctx, e.backoff, e.log, string(res.Outcome), func() (common.Hash, error) {
		return submit(ctx, res.Claim)
	})
	if err != nil {
		return Result{}, err
	}
	if err := e.ledger.AwaitReceipt(ctx, hash); err != nil {
		return Result{}, err
	}
	res.Tx = hash
	log.Info("Payment claim submitted", zap.String("outcome", string(res.Outcome)), zap.String("tx", hash.Hex()))
	return res, nil
}

// Check builds the proof of l in tree and verifies it against the committed
// root. The proof is returned even on a mismatch.
func Check(tree *merkle.Tree, l, committed common.Hash) (merkle.Proof, error) {
	proof, err := tree.Proof(l)
	if err != nil {
		return merkle.Proof{Leaf: l, Root: committed}, err
	}
	proof.Root = committed
	if !merkle.Verify(proof) {
		return proof, models.ErrVerificationMismatch
	}
	return proof, nil
}

// epochLeaves returns the leaf set of a finalised period from the journal,
// rescanning and caching it on a miss.
func (e *Engine) epochLeaves(ctx context.Context, w epoch.Window) ([]common.Hash, error) {
	cached, err := e.journal.GetLeaves(e.spec.ID, w.Index)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}
	records, err := e.scanner.Collect(ctx, w)
	if err != nil {
		return nil, err
	}
	leaves := make([]common.Hash, len(records))
	for i, r := range records {
		leaves[i] = leaf.Of(r)
	}
	if err := e.journal.PutLeaves(e.spec.ID, w.Index, leaves); err != nil {
		e.log.Warn("Failed to cache epoch leaves", zap.Uint64("epoch", w.Index), zap.Error(err))
	}
	return leaves, nil
}

// VerifyPeriod rescans [MaxLedger-PeriodLength, MaxLedger) and reports the
// derived root and whether it equals the claimed one.
func (e *Engine) VerifyPeriod(ctx context.Context, claim models.PeriodClaim) (common.Hash, bool, error) {
	if claim.ChainID != e.spec.ID {
		return common.Hash{}, false, fmt.Errorf("%w: id %d", models.ErrUnknownChain, claim.ChainID)
	}
	w, err := epoch.Span(claim.ChainID, claim.MaxLedger, claim.PeriodLength)
	if err != nil {
		return common.Hash{}, false, err
	}
	records, err := e.scanner.Collect(ctx, w)
	if err != nil {
		return common.Hash{}, false, err
	}
	leaves := make([]common.Hash, len(records))
	for i, r := range records {
		leaves[i] = leaf.Of(r)
	}
	root := merkle.Build(leaves).Root()
	e.log.Info("Verified period",
		zap.Uint64("lo", w.Lo), zap.Uint64("hi", w.Hi),
		zap.String("root", root.Hex()), zap.Bool("match", root == claim.PeriodRoot))
	return root, root == claim.PeriodRoot, nil
}
