// Package chain describes how the attestor talks to an external payment
// chain. Readers report transient transport failures as
// models.ConnectivityError so callers can retry them.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"state-connector/models"
)

// Memo is one attachment carried by a transaction, hex encoded.
type Memo struct {
	Data string `json:"data"`
}

// Transaction is a chain transaction normalised for the scan filter.
type Transaction struct {
	ID             string   `json:"id"`
	Ledger         uint64   `json:"ledger"`
	Succeeded      bool     `json:"succeeded"`
	Payment        bool     `json:"payment"`
	Source         string   `json:"source,omitempty"`
	Destination    string   `json:"destination"`
	DestinationTag *uint64  `json:"destination_tag,omitempty"`
	Amount         *big.Int `json:"amount"`
	Currency       string   `json:"currency"`
	Memos          []Memo   `json:"memos,omitempty"`
}

// Record projects the transaction onto the fields that make up a leaf.
func (t Transaction) Record(chain models.ChainID) models.PaymentRecord {
	amount := new(big.Int)
	if t.Amount != nil {
		amount.Set(t.Amount)
	}
	return models.PaymentRecord{
		ChainID:        chain,
		Ledger:         t.Ledger,
		TxID:           t.ID,
		Source:         t.Source,
		Destination:    t.Destination,
		DestinationTag: t.DestinationTag,
		Amount:         amount,
		Currency:       t.Currency,
	}
}

// Page is one page of a ledger's transactions. An empty Marker means the
// ledger has no further pages.
type Page struct {
	Transactions []Transaction
	Marker       string
}

// Reader is the external chain collaborator.
type Reader interface {
	// LedgerPage returns the page of ledger index that starts at marker.
	LedgerPage(ctx context.Context, index uint64, marker string) (Page, error)
	// Transaction resolves a transaction by id, or models.ErrTxNotFound.
	Transaction(ctx context.Context, id string) (Transaction, error)
	// Tip is the latest ledger or block the reader considers final.
	Tip(ctx context.Context) (uint64, error)
	// LedgerHash is the hash of ledger or block index.
	LedgerHash(ctx context.Context, index uint64) (common.Hash, error)
}
