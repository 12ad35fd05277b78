// Package chaintest provides an in-memory chain.Reader for tests.
package chaintest

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"state-connector/chain"
	"state-connector/models"
)

// Reader serves ledgers from memory. Each ledger's transactions are split
// into pages of PageSize (all on one page when PageSize is 0).
type Reader struct {
	mu       sync.Mutex
	ledgers  map[uint64][]chain.Transaction
	txs      map[string]chain.Transaction
	PageSize int
	TipIndex uint64

	// FailNext makes the next n reader calls fail with a connectivity error.
	FailNext int
	Calls    map[string]int
}

func NewReader() *Reader {
	return &Reader{
		ledgers: make(map[uint64][]chain.Transaction),
		txs:     make(map[string]chain.Transaction),
		Calls:   make(map[string]int),
	}
}

// Add appends tx to its ledger.
func (r *Reader) Add(tx chain.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ledgers[tx.Ledger] = append(r.ledgers[tx.Ledger], tx)
	r.txs[tx.ID] = tx
	if tx.Ledger > r.TipIndex {
		r.TipIndex = tx.Ledger
	}
}

// SetTip moves the chain tip.
func (r *Reader) SetTip(tip uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.TipIndex = tip
}

func (r *Reader) call(op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls[op]++
	if r.FailNext > 0 {
		r.FailNext--
		return models.Connectivity(op, context.DeadlineExceeded)
	}
	return nil
}

func (r *Reader) LedgerPage(ctx context.Context, index uint64, marker string) (chain.Page, error) {
	if err := r.call("ledger_page"); err != nil {
		return chain.Page{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.ledgers[index]
	if r.PageSize <= 0 {
		return chain.Page{Transactions: append([]chain.Transaction(nil), all...)}, nil
	}
	start := 0
	if marker != "" {
		for i, tx := range all {
			if tx.ID == marker {
				start = i
				break
			}
		}
	}
	end := start + r.PageSize
	if end >= len(all) {
		return chain.Page{Transactions: append([]chain.Transaction(nil), all[start:]...)}, nil
	}
	return chain.Page{Transactions: append([]chain.Transaction(nil), all[start:end]...), Marker: all[end].ID}, nil
}

func (r *Reader) Transaction(ctx context.Context, id string) (chain.Transaction, error) {
	if err := r.call("transaction"); err != nil {
		return chain.Transaction{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return chain.Transaction{}, models.ErrTxNotFound
	}
	return tx, nil
}

func (r *Reader) Tip(ctx context.Context) (uint64, error) {
	if err := r.call("tip"); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.TipIndex, nil
}

// LedgerHash derives a stable fake hash from the index.
func (r *Reader) LedgerHash(ctx context.Context, index uint64) (common.Hash, error) {
	if err := r.call("ledger_hash"); err != nil {
		return common.Hash{}, err
	}
	return HashOf(index), nil
}

// HashOf is the hash LedgerHash reports for index.
func HashOf(index uint64) common.Hash {
	return crypto.Keccak256Hash(common.LeftPadBytes(new(big.Int).SetUint64(index).Bytes(), 32))
}
