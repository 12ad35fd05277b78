// Package commitreveal decides what an attestor should do next for a chain,
// given the contract's finality snapshot, the chain tip and the clock.
package commitreveal

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"state-connector/chain"
	"state-connector/epoch"
	"state-connector/models"
)

// RevealMargin is subtracted from the average finality interval when the
// network is running near its expected cadence.
const RevealMargin = 15

// Action is the next step of an attestation run.
type Action int

const (
	Wait     Action = iota // sleep for Decision.Defer
	Idle                   // the chain tip has not passed the next period
	Register               // submit the root of a ledger-indexed period
	Commit                 // submit the commit hash of a block-indexed period
	Reveal                 // submit the chain tip hash matching an earlier commit
)

func (a Action) String() string {
	switch a {
	case Wait:
		return "wait"
	case Idle:
		return "idle"
	case Register:
		return "register"
	case Commit:
		return "commit"
	case Reveal:
		return "reveal"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Decision is the outcome of Decide.
type Decision struct {
	Action Action
	Defer  time.Duration
	Epoch  epoch.Window
	// ChainTipBlock is the height whose hash is committed and revealed.
	ChainTipBlock uint64
}

// Timer holds the per-chain policy inputs.
type Timer struct {
	spec chain.Spec
	now  func() time.Time
}

// New returns a timer for spec. A nil now uses time.Now.
func New(spec chain.Spec, now func() time.Time) *Timer {
	if now == nil {
		now = time.Now
	}
	return &Timer{spec: spec, now: now}
}

// Decide computes the next action for the period after the finalised range.
func (t *Timer) Decide(status models.FinalityStatus, tip uint64) (Decision, error) {
	w, err := epoch.New(t.spec.ID, status.GenesisLedger, status.PeriodLength, status.FinalisedPeriodIndex)
	if err != nil {
		return Decision{}, err
	}
	v := t.spec.Variant
	d := Decision{Epoch: w, ChainTipBlock: v.ReadyAt(w)}
	now := uint64(t.now().Unix())

	if status.FinalisedTimestamp == 0 {
		if v.CommitReveal() {
			// a commit is outstanding and TimeDiffAvg is the reveal time
			if now > status.TimeDiffAvg {
				d.Action = Reveal
			} else {
				d.Action = Wait
				d.Defer = time.Duration(status.TimeDiffAvg-now) * time.Second
			}
			return d, nil
		}
	} else {
		var elapsed int64
		if now > status.FinalisedTimestamp {
			elapsed = int64(now - status.FinalisedTimestamp)
		}
		if s := DeferSeconds(int64(status.TimeDiffAvg), int64(t.spec.ExpectedInterval), elapsed); s > 0 {
			d.Action = Wait
			d.Defer = time.Duration(s) * time.Second
			return d, nil
		}
	}

	switch {
	case tip < d.ChainTipBlock:
		d.Action = Idle
	case v.CommitReveal():
		d.Action = Commit
	default:
		d.Action = Register
	}
	return d, nil
}

// DeferSeconds is how long to hold off before attesting. While the observed
// average is under half the expected interval, nodes wait for two thirds of
// the average; otherwise they wait for the average less RevealMargin.
func DeferSeconds(timeDiffAvg, expected, elapsed int64) int64 {
	if 2*timeDiffAvg < expected {
		return 2*timeDiffAvg/3 - elapsed
	}
	return timeDiffAvg - elapsed - RevealMargin
}

// CommitHash binds a chain tip hash to its submitter:
// keccak256(submitter ‖ chainTipHash) in packed encoding.
func CommitHash(submitter common.Address, chainTipHash common.Hash) common.Hash {
	return crypto.Keccak256Hash(submitter.Bytes(), chainTipHash.Bytes())
}
