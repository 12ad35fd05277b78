package models

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// FinalityStatus is the contract's consensus snapshot for one chain. It is
// fetched fresh for every decision and never persisted.
type FinalityStatus struct {
	GenesisLedger        uint64           `json:"genesis_ledger"`
	PeriodLength         uint64           `json:"period_length"`
	FinalisedPeriodIndex uint64           `json:"finalised_period_index"`
	FinalisedLedgerIndex uint64           `json:"finalised_ledger_index"`
	FinalisedTimestamp   uint64           `json:"finalised_timestamp"`
	TimeDiffAvg          uint64           `json:"time_diff_avg"`
	Coinbase             common.Address   `json:"coinbase"`
	UNL                  []common.Address `json:"unl"`
}

// Covers reports whether ledger lies in the finalised range
// [GenesisLedger, FinalisedLedgerIndex).
func (s FinalityStatus) Covers(ledger uint64) bool {
	return ledger >= s.GenesisLedger && ledger < s.FinalisedLedgerIndex
}

// CommitRecord is an outstanding commit of a block-indexed chain, kept until
// the matching reveal is included.
type CommitRecord struct {
	ChainID       ChainID        `json:"chain_id"`
	Epoch         uint64         `json:"epoch"`
	Submitter     common.Address `json:"submitter"`
	CommitHash    common.Hash    `json:"commit_hash"`
	RevealHash    common.Hash    `json:"reveal_hash"`
	Root          common.Hash    `json:"root"`
	Confirmations uint64         `json:"confirmations"`
	CommittedAt   int64          `json:"committed_at"` // unix seconds
}

// PartialProgress records how far a chunked registration of an epoch got.
type PartialProgress struct {
	ChainID ChainID       `json:"chain_id"`
	Epoch   uint64        `json:"epoch"`
	Skip    uint64        `json:"skip"`
	Leaves  []common.Hash `json:"leaves"`
}

func keccakString(s string) []byte {
	return crypto.Keccak256([]byte(s))
}
