// Package scanner turns an epoch window into the sequence of payments that
// qualify for attestation.
package scanner

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"state-connector/chain"
	"state-connector/epoch"
	"state-connector/models"
)

// Scanner reads windows of one chain.
type Scanner struct {
	spec    chain.Spec
	reader  chain.Reader
	filter  Filter
	backoff time.Duration
	log     *zap.Logger
}

func New(spec chain.Spec, reader chain.Reader, backoff time.Duration, log *zap.Logger) *Scanner {
	return &Scanner{
		spec:    spec,
		reader:  reader,
		filter:  Filter{MinAmount: spec.MinAmount, Pointers: spec.PointerMemos},
		backoff: backoff,
		log:     log,
	}
}

// Scan returns a lazy iterator over the qualifying payments of w. The first
// skip transactions of the window are consumed without being yielded, which
// resumes a scan after a partial registration.
func (s *Scanner) Scan(w epoch.Window, skip uint64) *Iterator {
	return &Iterator{
		s:    s,
		raw:  s.spec.Variant.ReadWindow(s.reader, w, s.backoff, s.log),
		skip: skip,
	}
}

// Collect drains an iterator into its records.
func (s *Scanner) Collect(ctx context.Context, w epoch.Window) ([]models.PaymentRecord, error) {
	it := s.Scan(w, 0)
	var out []models.PaymentRecord
	for it.Next(ctx) {
		out = append(out, it.Record())
	}
	return out, it.Err()
}

// Iterator yields qualifying payments in ledger order.
type Iterator struct {
	s        *Scanner
	raw      *chain.Window
	skip     uint64
	consumed uint64
	cur      models.PaymentRecord
	err      error
}

// Next advances to the next qualifying payment. Rejected transactions are
// logged with their code and skipped.
func (it *Iterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	for it.raw.Next(ctx) {
		tx := it.raw.Transaction()
		it.consumed++
		if it.consumed <= it.skip {
			continue
		}
		err := chain.Retry(ctx, it.s.backoff, it.s.log, "filter", func() error {
			return it.s.filter.Check(ctx, it.s.reader, tx)
		})
		var bad *models.MalformedRecordError
		if errors.As(err, &bad) {
			it.s.log.Warn("Skipping transaction",
				zap.String("code", bad.Code),
				zap.String("tx_id", bad.TxID),
				zap.Uint64("ledger", tx.Ledger),
				zap.String("reason", bad.Reason))
			continue
		}
		if err != nil {
			it.err = err
			return false
		}
		it.cur = tx.Record(it.s.spec.ID)
		return true
	}
	it.err = it.raw.Err()
	return false
}

// Record is the current payment.
func (it *Iterator) Record() models.PaymentRecord { return it.cur }

// Consumed counts window transactions consumed so far, accepted or not.
// Passing it as skip to Scan resumes after the current record.
func (it *Iterator) Consumed() uint64 { return it.consumed }

// Err is the error that ended the scan early, if any.
func (it *Iterator) Err() error { return it.err }
