// Package connector wires the per-chain attestors and provers behind the
// trigger surface. It owns the claims-in-progress guard and the run watchdog.
package connector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"state-connector/attestor"
	"state-connector/chain"
	"state-connector/guard"
	"state-connector/models"
	"state-connector/prover"
)

// DefaultWatchdog bounds a triggered run.
const DefaultWatchdog = 10 * time.Minute

// Runtime is everything needed to serve one chain.
type Runtime struct {
	Spec    chain.Spec
	Machine *attestor.Machine
	Prover  *prover.Engine
}

// RunReport describes a finished attestation run.
type RunReport struct {
	RunID    string
	Chain    string
	Report   attestor.Report
	Err      error
	Started  time.Time
	Finished time.Time
}

// ExitCode maps the run onto the process exit status expected by a
// supervisor: 0 for success or an idempotent short-circuit, 1 otherwise.
func (r RunReport) ExitCode() int {
	if r.Err != nil {
		return 1
	}
	return 0
}

// Connector serialises attestation runs per chain.
type Connector struct {
	chains   map[string]*Runtime
	byID     map[models.ChainID]*Runtime
	guard    guard.Guard
	watchdog time.Duration
	log      *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	reports chan RunReport
}

func New(runtimes []*Runtime, g guard.Guard, watchdog time.Duration, log *zap.Logger) *Connector {
	if watchdog <= 0 {
		watchdog = DefaultWatchdog
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connector{
		chains:   make(map[string]*Runtime, len(runtimes)),
		byID:     make(map[models.ChainID]*Runtime, len(runtimes)),
		guard:    g,
		watchdog: watchdog,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		reports:  make(chan RunReport, 16),
	}
	for _, rt := range runtimes {
		c.chains[rt.Spec.Name] = rt
		c.byID[rt.Spec.ID] = rt
	}
	return c
}

// Chains lists the served chain names.
func (c *Connector) Chains() []string {
	names := make([]string, 0, len(c.chains))
	for n := range c.chains {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ChainStatus is the health view of one chain.
type ChainStatus struct {
	Chain string `json:"chain"`
	State string `json:"state"`
	Busy  bool   `json:"busy"`
}

// Status reports, per chain, the state of its machine and whether a run
// holds its guard.
func (c *Connector) Status(ctx context.Context) ([]ChainStatus, error) {
	names := c.Chains()
	out := make([]ChainStatus, 0, len(names))
	for _, name := range names {
		busy, err := c.guard.Held(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, ChainStatus{Chain: name, State: c.chains[name].Machine.State().String(), Busy: busy})
	}
	return out, nil
}

func (c *Connector) runtime(name string) (*Runtime, error) {
	rt, ok := c.chains[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownChain, name)
	}
	return rt, nil
}

// Trigger starts an attestation run for chain in the background and returns
// its run id. The guard is taken before returning, so a second trigger for
// the same chain fails with models.ErrClaimsInProgress.
func (c *Connector) Trigger(name string) (string, error) {
	rt, err := c.runtime(name)
	if err != nil {
		return "", err
	}
	token, err := c.guard.Acquire(c.ctx, name, c.watchdog)
	if err != nil {
		return "", err
	}
	runID := uuid.NewString()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		report := c.run(c.ctx, rt, runID, token)
		select {
		case c.reports <- report:
		default:
			c.log.Warn("Dropping run report", zap.String("run_id", runID))
		}
	}()
	return runID, nil
}

// Attest runs an attestation for chain and waits for it.
func (c *Connector) Attest(ctx context.Context, name string) (RunReport, error) {
	rt, err := c.runtime(name)
	if err != nil {
		return RunReport{}, err
	}
	token, err := c.guard.Acquire(ctx, name, c.watchdog)
	if err != nil {
		return RunReport{}, err
	}
	report := c.run(ctx, rt, uuid.NewString(), token)
	return report, report.Err
}

func (c *Connector) run(parent context.Context, rt *Runtime, runID, token string) RunReport {
	ctx, cancel := context.WithTimeout(parent, c.watchdog)
	defer cancel()
	log := c.log.With(zap.String("run_id", runID), zap.String("chain", rt.Spec.Name))
	defer func() {
		// released with a fresh context: the run's own may be expired
		if err := c.guard.Release(context.Background(), rt.Spec.Name, token); err != nil {
			log.Error("Failed to release claims guard", zap.Error(err))
		}
	}()

	log.Info("State Connector run started")
	out := RunReport{RunID: runID, Chain: rt.Spec.Name, Started: time.Now()}
	out.Report, out.Err = rt.Machine.Run(ctx)
	out.Finished = time.Now()

	if out.Err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		out.Err = fmt.Errorf("watchdog expired after %s: %w", c.watchdog, out.Err)
	}
	if out.Err != nil {
		log.Error("State Connector run failed", zap.Error(out.Err), zap.Duration("elapsed", out.Finished.Sub(out.Started)))
	} else {
		log.Info("State Connector run finished",
			zap.String("outcome", out.Report.Outcome.String()),
			zap.Int("submitted", out.Report.Submitted),
			zap.Duration("elapsed", out.Finished.Sub(out.Started)))
	}
	return out
}

// Prove proves or disproves one payment on chain.
func (c *Connector) Prove(ctx context.Context, name, txID string) (prover.Result, error) {
	rt, err := c.runtime(name)
	if err != nil {
		return prover.Result{}, err
	}
	return rt.Prover.ProveOrDisprove(ctx, txID)
}

// Verify re-derives the root named by a hex encoded period claim.
func (c *Connector) Verify(ctx context.Context, payload string) (common.Hash, bool, error) {
	claim, err := prover.DecodePeriodClaim(payload)
	if err != nil {
		return common.Hash{}, false, err
	}
	rt, ok := c.byID[claim.ChainID]
	if !ok {
		return common.Hash{}, false, fmt.Errorf("%w: id %d", models.ErrUnknownChain, claim.ChainID)
	}
	return rt.Prover.VerifyPeriod(ctx, claim)
}

// Reports delivers the report of every triggered run.
func (c *Connector) Reports() <-chan RunReport { return c.reports }

// Wait blocks until every triggered run has finished.
func (c *Connector) Wait() { c.wg.Wait() }

// Close cancels running triggers and waits for them.
func (c *Connector) Close() {
	c.cancel()
	c.wg.Wait()
}
