package connector_test

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"state-connector/attestor"
	"state-connector/chain"
	"state-connector/chain/chaintest"
	"state-connector/connector"
	"state-connector/contract/contracttest"
	"state-connector/db"
	"state-connector/guard"
	"state-connector/merkle"
	"state-connector/models"
	"state-connector/prover"
	"state-connector/repository"
)

var xrp = chain.Spec{
	Name:             "xrp",
	ID:               3,
	Variant:          chain.LedgerIndexed{Confirmations: 1},
	ExpectedInterval: 120,
	MinAmount:        big.NewInt(1),
}

func held(t *testing.T, g guard.Guard, chain string) bool {
	t.Helper()
	ok, err := g.Held(context.Background(), chain)
	require.NoError(t, err)
	return ok
}

type env struct {
	conn   *connector.Connector
	guard  *guard.Memory
	ledger *contracttest.Ledger
	reader *chaintest.Reader
}

func newEnv(t *testing.T, watchdog time.Duration) *env {
	t.Helper()
	ldb, err := db.NewMemLevelDB()
	require.NoError(t, err)
	t.Cleanup(func() { ldb.Close() })
	journal := repository.NewJournal(ldb)
	log := zaptest.NewLogger(t)

	e := &env{
		guard:  guard.NewMemory(nil),
		ledger: contracttest.NewLedger(),
		reader: chaintest.NewReader(),
	}
	e.ledger.Now = func() uint64 { return uint64(time.Now().Unix()) }
	e.ledger.Status[xrp.ID] = models.FinalityStatus{
		GenesisLedger: 1000,
		PeriodLength:  30,
	}
	e.reader.Add(chain.Transaction{
		ID:          "tx0",
		Ledger:      1003,
		Succeeded:   true,
		Payment:     true,
		Destination: "rDest",
		Amount:      big.NewInt(10),
		Currency:    "XRP",
		Memos:       []chain.Memo{{Data: hex.EncodeToString([]byte("0x8ba1f109551bD432803012645Ac136ddd64DBA72"))}},
	})
	e.reader.SetTip(1031)

	rt := &connector.Runtime{
		Spec: xrp,
		Machine: attestor.New(xrp, e.reader, e.ledger, journal, attestor.Config{
			Backoff: time.Millisecond,
		}, log),
		Prover: prover.New(xrp, e.reader, e.ledger, journal, time.Millisecond, log),
	}
	e.conn = connector.New([]*connector.Runtime{rt}, e.guard, watchdog, log)
	t.Cleanup(e.conn.Close)
	return e
}

func TestTriggerRunsAndReleasesGuard(t *testing.T) {
	e := newEnv(t, time.Minute)

	runID, err := e.conn.Trigger("xrp")
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	report := <-e.conn.Reports()
	require.NoError(t, report.Err)
	assert.Equal(t, runID, report.RunID)
	assert.Equal(t, attestor.ReachedTip, report.Report.Outcome)
	assert.Equal(t, 1, report.Report.Submitted)
	assert.Equal(t, 0, report.ExitCode())
	assert.False(t, held(t, e.guard, "xrp"))
	assert.Equal(t, 1, e.ledger.Count("registerEpoch"))
}

func TestTriggerUnknownChain(t *testing.T) {
	e := newEnv(t, time.Minute)
	_, err := e.conn.Trigger("eth")
	require.ErrorIs(t, err, models.ErrUnknownChain)
}

func TestTriggerWhileInProgress(t *testing.T) {
	e := newEnv(t, time.Minute)
	token, err := e.guard.Acquire(context.Background(), "xrp", time.Minute)
	require.NoError(t, err)

	_, err = e.conn.Trigger("xrp")
	require.ErrorIs(t, err, models.ErrClaimsInProgress)
	assert.Empty(t, e.ledger.Submissions)

	require.NoError(t, e.guard.Release(context.Background(), "xrp", token))
	_, err = e.conn.Trigger("xrp")
	require.NoError(t, err)
	<-e.conn.Reports()
}

func TestWatchdogAbortsStuckRun(t *testing.T) {
	e := newEnv(t, 50*time.Millisecond)
	// a long defer window keeps the run waiting
	st := e.ledger.Status[xrp.ID]
	st.FinalisedTimestamp = uint64(time.Now().Unix())
	st.TimeDiffAvg = 1000
	e.ledger.Status[xrp.ID] = st

	_, err := e.conn.Trigger("xrp")
	require.NoError(t, err)

	select {
	case report := <-e.conn.Reports():
		require.ErrorIs(t, report.Err, context.DeadlineExceeded)
		assert.Equal(t, 1, report.ExitCode())
	case <-time.After(5 * time.Second):
		t.Fatal("watchdog did not fire")
	}
	assert.False(t, held(t, e.guard, "xrp"))
}

func TestAttestIsSynchronous(t *testing.T) {
	e := newEnv(t, time.Minute)
	report, err := e.conn.Attest(context.Background(), "xrp")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Report.Submitted)
	assert.False(t, held(t, e.guard, "xrp"))

	status, err := e.conn.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []connector.ChainStatus{{Chain: "xrp", State: "done", Busy: false}}, status)
}

func TestProveAndVerify(t *testing.T) {
	e := newEnv(t, time.Minute)
	_, err := e.conn.Attest(context.Background(), "xrp")
	require.NoError(t, err)

	res, err := e.conn.Prove(context.Background(), "xrp", "tx0")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeProven, res.Outcome)

	root := merkle.Build([]common.Hash{res.Claim.Leaf}).Root()
	payload, err := prover.EncodePeriodClaim(models.PeriodClaim{ChainID: 3, MaxLedger: 1030, PeriodLength: 30, PeriodRoot: root})
	require.NoError(t, err)
	_, ok, err := e.conn.Verify(context.Background(), payload)
	require.NoError(t, err)
	assert.True(t, ok)

	unknown, err := prover.EncodePeriodClaim(models.PeriodClaim{ChainID: 9, MaxLedger: 1030, PeriodLength: 30})
	require.NoError(t, err)
	_, _, err = e.conn.Verify(context.Background(), unknown)
	require.ErrorIs(t, err, models.ErrUnknownChain)

	_, err = e.conn.Prove(context.Background(), "eth", "tx0")
	require.ErrorIs(t, err, models.ErrUnknownChain)
}
