// Package attestor drives the periodic attestation of one chain: it reads
// the contract's finality status, waits out the reveal window, scans the
// next period and submits its root.
package attestor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"state-connector/chain"
	"state-connector/commitreveal"
	"state-connector/contract"
	"state-connector/epoch"
	"state-connector/leaf"
	"state-connector/merkle"
	"state-connector/models"
	"state-connector/repository"
	"state-connector/scanner"
)

// Config tunes a Machine.
type Config struct {
	// MaxLeavesPerSubmission bounds a registration; larger periods are
	// registered in chunks. Zero disables chunking.
	MaxLeavesPerSubmission int
	// ContinueDelay separates consecutive periods within a run.
	ContinueDelay time.Duration
	// Backoff is the delay between connectivity retries.
	Backoff time.Duration

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Machine is the finality state machine of one chain. Runs of the same
// machine must not overlap; the connector guards that.
type Machine struct {
	spec    chain.Spec
	reader  chain.Reader
	ledger  contract.LedgerClient
	journal repository.JournalInterface
	scanner *scanner.Scanner
	timer   *commitreveal.Timer
	cfg     Config
	log     *zap.Logger

	mu    sync.Mutex
	state State
}

func New(spec chain.Spec, reader chain.Reader, ledger contract.LedgerClient, journal repository.JournalInterface, cfg Config, log *zap.Logger) *Machine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = chain.DefaultBackoff
	}
	log = log.With(zap.String("chain", spec.Name), zap.Uint32("chain_id", uint32(spec.ID)))
	return &Machine{
		spec:    spec,
		reader:  reader,
		ledger:  ledger,
		journal: journal,
		scanner: scanner.New(spec, reader, cfg.Backoff, log),
		timer:   commitreveal.New(spec, cfg.Now),
		cfg:     cfg,
		log:     log,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Run attests periods until the chain tip is reached, an idempotency
// short-circuit applies, or a fatal error occurs.
func (m *Machine) Run(ctx context.Context) (Report, error) {
	var report Report
	defer m.setState(Done)
	initialised := false

	for {
		m.setState(FetchingStatus)
		status, err := m.fetchStatus(ctx, &initialised)
		if err != nil {
			return report, err
		}
		tip, err := chain.Value(ctx, m.cfg.Backoff, m.log, "tip", func() (uint64, error) {
			return m.reader.Tip(ctx)
		})
		if err != nil {
			return report, err
		}
		d, err := m.timer.Decide(status, tip)
		if err != nil {
			return report, err
		}
		log := m.log.With(zap.Uint64("epoch", d.Epoch.Index), zap.String("action", d.Action.String()))

		switch d.Action {
		case commitreveal.Wait:
			m.setState(Waiting)
			log.Info("Deferring attestation", zap.Duration("defer", d.Defer))
			if err := m.cfg.Sleep(ctx, d.Defer+time.Second); err != nil {
				return report, err
			}
			continue
		case commitreveal.Idle:
			log.Info("Reached chain tip",
				zap.String("unit", m.spec.Variant.BoundsUnit()),
				zap.Uint64("tip", tip), zap.Uint64("ready_at", d.ChainTipBlock))
			report.Outcome = ReachedTip
			return report, nil
		}

		registered, err := chain.Value(ctx, m.cfg.Backoff, m.log, "epoch_registered", func() (bool, error) {
			return m.ledger.EpochRegistered(ctx, m.spec.ID, d.Epoch.Index)
		})
		if err != nil {
			return report, err
		}
		if registered {
			log.Info("Epoch already registered")
			report.Outcome = AlreadyRegistered
			return report, nil
		}

		err = m.attest(ctx, d, log)
		if errors.Is(err, models.ErrAlreadyInFlight) {
			log.Info("Submission already in flight", zap.Error(err))
			report.Outcome = AlreadyInFlight
			return report, nil
		}
		if err != nil {
			log.Error("Attestation failed", zap.Error(err))
			return report, err
		}
		report.Submitted++
		report.LastEpoch = d.Epoch.Index

		m.setState(Idle)
		if err := m.cfg.Sleep(ctx, m.cfg.ContinueDelay); err != nil {
			return report, err
		}
	}
}

// fetchStatus reads the finality status, initialising the contract's chains
// once if it has none.
func (m *Machine) fetchStatus(ctx context.Context, initialised *bool) (models.FinalityStatus, error) {
	get := func() (models.FinalityStatus, error) {
		return chain.Value(ctx, m.cfg.Backoff, m.log, "finality_status", func() (models.FinalityStatus, error) {
			return m.ledger.FinalityStatus(ctx, m.spec.ID)
		})
	}
	status, err := get()
	if !errors.Is(err, models.ErrUninitialised) || *initialised {
		return status, err
	}
	*initialised = true
	m.log.Info("Contract has no chains, initialising")
	if err := m.submit(ctx, "initialise_chains", m.ledger.InitialiseChains); err != nil {
		return models.FinalityStatus{}, err
	}
	m.setState(FetchingStatus)
	return get()
}

func (m *Machine) attest(ctx context.Context, d commitreveal.Decision, log *zap.Logger) error {
	w := d.Epoch
	switch d.Action {
	case commitreveal.Register:
		root, leaves, err := m.scanEpoch(ctx, w, true, log)
		if err != nil {
			return err
		}
		log.Info("Registering epoch", zap.String("root", root.Hex()), zap.Int("leaves", len(leaves)))
		err = m.submit(ctx, "register_epoch", func(ctx context.Context) (common.Hash, error) {
			return m.ledger.RegisterEpoch(ctx, m.spec.ID, w.Index, w.Hi, root)
		})
		if err != nil {
			return err
		}
		if err := m.journal.DeleteProgress(m.spec.ID, w.Index); err != nil {
			return err
		}
		return m.journal.PutLeaves(m.spec.ID, w.Index, leaves)

	case commitreveal.Commit:
		if err := m.pruneCommits(w.Index, log); err != nil {
			return err
		}
		rec, leaves, err := m.commitRecord(ctx, d, log)
		if err != nil {
			return err
		}
		if err := m.journal.PutCommit(rec); err != nil {
			return err
		}
		log.Info("Committing epoch", zap.String("root", rec.Root.Hex()), zap.String("commit", rec.CommitHash.Hex()))
		err = m.submit(ctx, "commit_epoch", func(ctx context.Context) (common.Hash, error) {
			return m.ledger.CommitEpoch(ctx, m.spec.ID, w.Index, w.Hi, rec.Root, rec.CommitHash)
		})
		if err != nil {
			return err
		}
		return m.journal.PutLeaves(m.spec.ID, w.Index, leaves)

	case commitreveal.Reveal:
		if err := m.pruneCommits(w.Index, log); err != nil {
			return err
		}
		rec, err := m.journal.GetCommit(m.spec.ID, w.Index)
		if err != nil {
			return err
		}
		if rec == nil {
			log.Warn("No journaled commit, recomputing")
			fresh, _, err := m.commitRecord(ctx, d, log)
			if err != nil {
				return err
			}
			rec = &fresh
		}
		log.Info("Revealing epoch", zap.String("root", rec.Root.Hex()), zap.String("chain_tip_hash", rec.RevealHash.Hex()))
		err = m.submit(ctx, "reveal_epoch", func(ctx context.Context) (common.Hash, error) {
			return m.ledger.RevealEpoch(ctx, m.spec.ID, w.Index, w.Hi, rec.Root, rec.RevealHash)
		})
		if err != nil {
			return err
		}
		return m.journal.DeleteCommit(m.spec.ID, w.Index)
	}
	return nil
}

// pruneCommits drops journaled commits of periods before index. Those periods
// were finalised without this node's reveal.
func (m *Machine) pruneCommits(index uint64, log *zap.Logger) error {
	recs, err := m.journal.GetCommits(m.spec.ID)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if rec.Epoch >= index {
			continue
		}
		log.Warn("Dropping stale commit", zap.Uint64("stale_epoch", rec.Epoch), zap.String("root", rec.Root.Hex()))
		if err := m.journal.DeleteCommit(m.spec.ID, rec.Epoch); err != nil {
			return err
		}
	}
	return nil
}

// commitRecord scans the period and binds its root to the hash of the
// confirming chain tip block.
func (m *Machine) commitRecord(ctx context.Context, d commitreveal.Decision, log *zap.Logger) (models.CommitRecord, []common.Hash, error) {
	root, leaves, err := m.scanEpoch(ctx, d.Epoch, false, log)
	if err != nil {
		return models.CommitRecord{}, nil, err
	}
	tipHash, err := chain.Value(ctx, m.cfg.Backoff, m.log, "ledger_hash", func() (common.Hash, error) {
		return m.reader.LedgerHash(ctx, d.ChainTipBlock)
	})
	if err != nil {
		return models.CommitRecord{}, nil, err
	}
	submitter := m.ledger.Submitter()
	return models.CommitRecord{
		ChainID:       m.spec.ID,
		Epoch:         d.Epoch.Index,
		Submitter:     submitter,
		CommitHash:    commitreveal.CommitHash(submitter, tipHash),
		RevealHash:    tipHash,
		Root:          root,
		Confirmations: m.spec.Variant.ConfirmationDepth(),
		CommittedAt:   m.cfg.Now().Unix(),
	}, leaves, nil
}

// scanEpoch computes the root of w. With chunking enabled, every
// MaxLeavesPerSubmission leaves are registered as a partial period and the
// progress is journaled so an interrupted run resumes after them.
func (m *Machine) scanEpoch(ctx context.Context, w epoch.Window, chunked bool, log *zap.Logger) (common.Hash, []common.Hash, error) {
	m.setState(Scanning)
	var (
		submitted []common.Hash
		skip      uint64
	)
	if chunked {
		p, err := m.journal.GetProgress(m.spec.ID, w.Index)
		if err != nil {
			return common.Hash{}, nil, err
		}
		if p != nil {
			skip, submitted = p.Skip, p.Leaves
			log.Info("Resuming partial registration", zap.Uint64("skip", skip), zap.Int("submitted", len(submitted)))
		}
	}

	it := m.scanner.Scan(w, skip)
	var pending []common.Hash
	for it.Next(ctx) {
		pending = append(pending, leaf.Of(it.Record()))
		if !chunked || m.cfg.MaxLeavesPerSubmission <= 0 || len(pending) < m.cfg.MaxLeavesPerSubmission {
			continue
		}
		chunkRoot := merkle.Build(pending).Root()
		consumed := it.Consumed()
		log.Info("Registering partial epoch", zap.Uint64("skip", consumed), zap.Int("leaves", len(pending)))
		err := m.submit(ctx, "register_partial", func(ctx context.Context) (common.Hash, error) {
			return m.ledger.RegisterPartial(ctx, m.spec.ID, w.Index, w.Hi, consumed, chunkRoot)
		})
		if err != nil {
			return common.Hash{}, nil, err
		}
		submitted = append(submitted, pending...)
		pending = nil
		err = m.journal.PutProgress(models.PartialProgress{
			ChainID: m.spec.ID,
			Epoch:   w.Index,
			Skip:    consumed,
			Leaves:  submitted,
		})
		if err != nil {
			return common.Hash{}, nil, err
		}
		m.setState(Scanning)
	}
	if err := it.Err(); err != nil {
		return common.Hash{}, nil, err
	}
	tree := merkle.Build(append(submitted, pending...))
	return tree.Root(), tree.Leaves(), nil
}

// submit sends one transaction and waits for its receipt. Connectivity
// failures are retried; the contract client refuses to resend a transaction
// the node already knows, so a retry never duplicates a submission.
func (m *Machine) submit(ctx context.Context, op string, send func(context.Context) (common.Hash, error)) error {
	m.setState(Committing)
	hash, err := chain.Value(ctx, m.cfg.Backoff, m.log, op, func() (common.Hash, error) {
		return send(ctx)
	})
	if err != nil {
		return submissionFailure(ctx, op, err)
	}
	m.setState(AwaitingReceipt)
	if err := m.ledger.AwaitReceipt(ctx, hash); err != nil {
		return submissionFailure(ctx, op, err)
	}
	return nil
}

func submissionFailure(ctx context.Context, op string, err error) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, models.ErrAlreadyInFlight), errors.Is(err, models.ErrFatalSubmission):
		return err
	default:
		return models.SubmissionError(op, err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
