package chain

import (
	"context"
	"time"

	"go.uber.org/zap"

	"state-connector/epoch"
)

// Variant is the closed set of chain shapes the attestor supports.
type Variant interface {
	// BoundsUnit names what a period counts: "ledger" or "block".
	BoundsUnit() string
	// ConfirmationDepth is how far past a window the tip must be.
	ConfirmationDepth() uint64
	// CommitReveal reports whether roots are submitted in two phases.
	CommitReveal() bool
	// ReadyAt is the tip height from which window w may be attested. For
	// commit-reveal chains it is also the height whose hash is committed.
	ReadyAt(w epoch.Window) uint64
	// ReadWindow returns the raw transactions of w, draining pagination.
	ReadWindow(r Reader, w epoch.Window, backoff time.Duration, log *zap.Logger) *Window

	sealed()
}

// LedgerIndexed chains close ledgers with deterministic finality. A window is
// registered directly once Confirmations ledgers have closed past it.
type LedgerIndexed struct {
	Confirmations uint64
}

func (LedgerIndexed) BoundsUnit() string { return "ledger" }
func (v LedgerIndexed) ConfirmationDepth() uint64 { return v.Confirmations }
func (LedgerIndexed) CommitReveal() bool { return false }
func (v LedgerIndexed) ReadyAt(w epoch.Window) uint64 { return w.Last() + v.Confirmations }
func (LedgerIndexed) sealed() {}

func (LedgerIndexed) ReadWindow(r Reader, w epoch.Window, backoff time.Duration, log *zap.Logger) *Window {
	return newWindow(r, w, backoff, log)
}

// BlockIndexed chains are proof-of-work chains. Confirmations counts whole
// periods, and roots go through commit and reveal.
type BlockIndexed struct {
	Confirmations uint64
}

func (BlockIndexed) BoundsUnit() string { return "block" }
func (v BlockIndexed) ConfirmationDepth() uint64 { return v.Confirmations }
func (BlockIndexed) CommitReveal() bool { return true }
func (v BlockIndexed) ReadyAt(w epoch.Window) uint64 {
	return w.Last() + v.Confirmations*w.Length
}
func (BlockIndexed) sealed() {}

func (BlockIndexed) ReadWindow(r Reader, w epoch.Window, backoff time.Duration, log *zap.Logger) *Window {
	return newWindow(r, w, backoff, log)
}

// Window walks the transactions of an epoch window in ledger order.
type Window struct {
	reader  Reader
	win     epoch.Window
	backoff time.Duration
	log     *zap.Logger

	ledger  uint64
	marker  string
	started bool
	buf     []Transaction
	cur     Transaction
	err     error
}

func newWindow(r Reader, w epoch.Window, backoff time.Duration, log *zap.Logger) *Window {
	return &Window{reader: r, win: w, backoff: backoff, log: log, ledger: w.Lo}
}

// Next advances to the next transaction. Every page of a ledger is consumed
// before the next ledger is requested.
func (w *Window) Next(ctx context.Context) bool {
	if w.err != nil {
		return false
	}
	for len(w.buf) == 0 {
		if w.started && w.marker == "" {
			w.ledger++
			w.started = false
		}
		if w.ledger >= w.win.Hi {
			return false
		}
		page, err := Value(ctx, w.backoff, w.log, "ledger_page", func() (Page, error) {
			return w.reader.LedgerPage(ctx, w.ledger, w.marker)
		})
		if err != nil {
			w.err = err
			return false
		}
		w.started = true
		w.marker = page.Marker
		w.buf = page.Transactions
	}
	w.cur, w.buf = w.buf[0], w.buf[1:]
	if w.cur.Ledger == 0 {
		w.cur.Ledger = w.ledger
	}
	return true
}

// Transaction is the current transaction.
func (w *Window) Transaction() Transaction { return w.cur }

// Err is the error that stopped iteration, if any.
func (w *Window) Err() error { return w.err }
