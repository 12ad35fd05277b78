// Package contracttest provides an in-memory contract.LedgerClient that
// follows the state transitions of the real contract closely enough for
// attestor and prover tests.
package contracttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"state-connector/contract"
	"state-connector/models"
)

type epochKey struct {
	chain models.ChainID
	index uint64
}

// Submission is one recorded mutating call.
type Submission struct {
	Method string
	Chain  models.ChainID
	Index  uint64
	Upper  uint64
	Skip   uint64
	Root   common.Hash
	Extra  common.Hash
	Claim  models.PaymentClaim
}

// Ledger is a fake contract. Status entries are mutated by successful
// submissions the way the contract would.
type Ledger struct {
	mu          sync.Mutex
	From        common.Address
	Initialised bool
	Status      map[models.ChainID]models.FinalityStatus
	Roots       map[epochKey]common.Hash
	Proven      map[common.Hash]bool
	Submissions []Submission

	avgBeforeCommit map[models.ChainID]uint64

	// Now is the unix time stamped on finalised periods.
	Now func() uint64
	// RevealDelay is added to Now on commit to form the reveal time.
	RevealDelay uint64
	// InFlight makes the next mutating call report an already pending
	// transaction.
	InFlight bool
	// FailReceipt makes the next AwaitReceipt report a reverted transaction.
	FailReceipt bool
}

var _ contract.LedgerClient = (*Ledger)(nil)

func NewLedger() *Ledger {
	return &Ledger{
		From:        common.HexToAddress("0x8ba1f109551bD432803012645Ac136ddd64DBA72"),
		Initialised: true,
		Status:      make(map[models.ChainID]models.FinalityStatus),
		Roots:       make(map[epochKey]common.Hash),
		Proven:      make(map[common.Hash]bool),

		avgBeforeCommit: make(map[models.ChainID]uint64),
		Now:             func() uint64 { return 1_700_000_000 },
	}
}

// SetRoot marks a period as finalised with root.
func (l *Ledger) SetRoot(chain models.ChainID, index uint64, root common.Hash) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Roots[epochKey{chain, index}] = root
}

// Count returns how many submissions used method.
func (l *Ledger) Count(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, s := range l.Submissions {
		if s.Method == method {
			n++
		}
	}
	return n
}

// Last returns the most recent submission.
func (l *Ledger) Last() Submission {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Submissions[len(l.Submissions)-1]
}

func (l *Ledger) Submitter() common.Address { return l.From }

func (l *Ledger) FinalityStatus(ctx context.Context, chain models.ChainID) (models.FinalityStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.Initialised {
		return models.FinalityStatus{}, models.ErrUninitialised
	}
	return l.Status[chain], nil
}

func (l *Ledger) EpochRegistered(ctx context.Context, chain models.ChainID, index uint64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.Roots[epochKey{chain, index}]
	return ok, nil
}

func (l *Ledger) EpochRoot(ctx context.Context, chain models.ChainID, index uint64) (common.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	root, ok := l.Roots[epochKey{chain, index}]
	if !ok {
		return common.Hash{}, fmt.Errorf("epoch %d of chain %d: %w", index, chain, models.ErrNotYetFinalised)
	}
	return root, nil
}

func (l *Ledger) PaymentFinality(ctx context.Context, claim models.PaymentClaim) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Proven[claim.Leaf], nil
}

func (l *Ledger) InitialiseChains(ctx context.Context) (common.Hash, error) {
	return l.submit(Submission{Method: "initialiseChains"}, func() { l.Initialised = true })
}

func (l *Ledger) RegisterEpoch(ctx context.Context, chain models.ChainID, index, upper uint64, root common.Hash) (common.Hash, error) {
	s := Submission{Method: "registerEpoch", Chain: chain, Index: index, Upper: upper, Root: root}
	return l.submit(s, func() { l.finalise(chain, index, upper, root) })
}

func (l *Ledger) RegisterPartial(ctx context.Context, chain models.ChainID, index, upper, skip uint64, root common.Hash) (common.Hash, error) {
	s := Submission{Method: "registerPartial", Chain: chain, Index: index, Upper: upper, Skip: skip, Root: root}
	return l.submit(s, func() {})
}

func (l *Ledger) CommitEpoch(ctx context.Context, chain models.ChainID, index, upper uint64, root, commitHash common.Hash) (common.Hash, error) {
	s := Submission{Method: "commitEpoch", Chain: chain, Index: index, Upper: upper, Root: root, Extra: commitHash}
	return l.submit(s, func() {
		st := l.Status[chain]
		l.avgBeforeCommit[chain] = st.TimeDiffAvg
		st.FinalisedTimestamp = 0
		st.TimeDiffAvg = l.Now() + l.RevealDelay
		l.Status[chain] = st
	})
}

func (l *Ledger) RevealEpoch(ctx context.Context, chain models.ChainID, index, upper uint64, root, chainTipHash common.Hash) (common.Hash, error) {
	s := Submission{Method: "revealEpoch", Chain: chain, Index: index, Upper: upper, Root: root, Extra: chainTipHash}
	return l.submit(s, func() { l.finalise(chain, index, upper, root) })
}

func (l *Ledger) ProvePayment(ctx context.Context, claim models.PaymentClaim) (common.Hash, error) {
	return l.submit(Submission{Method: "provePayment", Chain: claim.ChainID, Index: claim.Epoch, Claim: claim},
		func() { l.Proven[claim.Leaf] = true })
}

func (l *Ledger) DisprovePayment(ctx context.Context, claim models.PaymentClaim) (common.Hash, error) {
	return l.submit(Submission{Method: "disprovePayment", Chain: claim.ChainID, Index: claim.Epoch, Claim: claim},
		func() {})
}

func (l *Ledger) AwaitReceipt(ctx context.Context, tx common.Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailReceipt {
		l.FailReceipt = false
		return models.SubmissionError("receipt", fmt.Errorf("transaction %s reverted", tx.Hex()))
	}
	return nil
}

// submit records s and applies its effect immediately, as if the receipt
// had already been mined.
func (l *Ledger) submit(s Submission, apply func()) (common.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("%d:%+v", len(l.Submissions), s)))
	if l.InFlight {
		l.InFlight = false
		return hash, models.ErrAlreadyInFlight
	}
	l.Submissions = append(l.Submissions, s)
	apply()
	return hash, nil
}

func (l *Ledger) finalise(chain models.ChainID, index, upper uint64, root common.Hash) {
	l.Roots[epochKey{chain, index}] = root
	st := l.Status[chain]
	st.FinalisedPeriodIndex = index + 1
	st.FinalisedLedgerIndex = upper
	st.FinalisedTimestamp = l.Now()
	if avg, ok := l.avgBeforeCommit[chain]; ok {
		st.TimeDiffAvg = avg
		delete(l.avgBeforeCommit, chain)
	}
	l.Status[chain] = st
}
