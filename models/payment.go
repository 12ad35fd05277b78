package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ChainID is the small integer tag the contract uses for an external chain.
type ChainID uint32

// PaymentRecord is one qualifying payment read from an external chain.
type PaymentRecord struct {
	ChainID        ChainID  `json:"chain_id"`
	Ledger         uint64   `json:"ledger"`
	TxID           string   `json:"tx_id"`
	Source         string   `json:"source,omitempty"` // empty on block-indexed chains
	Destination    string   `json:"destination"`
	DestinationTag *uint64  `json:"destination_tag,omitempty"`
	Amount         *big.Int `json:"amount"` // smallest unit, never negative
	Currency       string   `json:"currency"`
}

// Tag returns the destination tag, defaulting to 0 when absent.
func (r PaymentRecord) Tag() uint64 {
	if r.DestinationTag == nil {
		return 0
	}
	return *r.DestinationTag
}

// PaymentClaim identifies one payment inside a finalised epoch together with
// its inclusion proof.
type PaymentClaim struct {
	ChainID ChainID       `json:"chain_id"`
	Epoch   uint64        `json:"epoch"`
	Ledger  uint64        `json:"ledger"`
	TxID    string        `json:"tx_id"`
	Leaf    common.Hash   `json:"leaf"`
	Proof   []common.Hash `json:"proof"`
}

// TxIDHash is the digest under which the contract indexes the payment.
func (c PaymentClaim) TxIDHash() common.Hash {
	return common.BytesToHash(keccakString(c.TxID))
}

// Outcome is the result of a prove-or-disprove request.
type Outcome string

const (
	OutcomeProven        Outcome = "proven"
	OutcomeDisproven     Outcome = "disproven"
	OutcomeAlreadyProven Outcome = "already_proven"
)

// PeriodClaim is the payload of a verify request: a claimed root for the
// window [MaxLedger-PeriodLength, MaxLedger).
type PeriodClaim struct {
	ChainID      ChainID
	MaxLedger    uint64
	PeriodLength uint64
	PeriodRoot   common.Hash
}
