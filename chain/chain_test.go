package chain_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"state-connector/chain"
	"state-connector/chain/chaintest"
	"state-connector/epoch"
	"state-connector/models"
)

func tx(ledger uint64, n int) chain.Transaction {
	return chain.Transaction{
		ID:          fmt.Sprintf("%d-%d", ledger, n),
		Ledger:      ledger,
		Succeeded:   true,
		Payment:     true,
		Destination: "rDest",
		Amount:      big.NewInt(1000),
		Currency:    "XRP",
	}
}

func TestWindowDrainsPagesInLedgerOrder(t *testing.T) {
	r := chaintest.NewReader()
	r.PageSize = 2
	for ledger := uint64(100); ledger < 103; ledger++ {
		for n := 0; n < 5; n++ {
			r.Add(tx(ledger, n))
		}
	}
	r.Add(tx(103, 0)) // outside the window

	w, err := epoch.New(3, 100, 3, 0)
	require.NoError(t, err)

	it := chain.LedgerIndexed{}.ReadWindow(r, w, time.Millisecond, zaptest.NewLogger(t))
	var got []string
	for it.Next(context.Background()) {
		got = append(got, it.Transaction().ID)
	}
	require.NoError(t, it.Err())

	var want []string
	for ledger := 100; ledger < 103; ledger++ {
		for n := 0; n < 5; n++ {
			want = append(want, fmt.Sprintf("%d-%d", ledger, n))
		}
	}
	assert.Equal(t, want, got)
	// three pages per ledger
	assert.Equal(t, 9, r.Calls["ledger_page"])
}

func TestWindowSkipsEmptyLedgers(t *testing.T) {
	r := chaintest.NewReader()
	r.Add(tx(12, 0))
	w, err := epoch.New(0, 10, 5, 0)
	require.NoError(t, err)

	it := chain.BlockIndexed{Confirmations: 4}.ReadWindow(r, w, time.Millisecond, zaptest.NewLogger(t))
	require.True(t, it.Next(context.Background()))
	assert.Equal(t, "12-0", it.Transaction().ID)
	require.False(t, it.Next(context.Background()))
	require.NoError(t, it.Err())
	assert.Equal(t, 5, r.Calls["ledger_page"])
}

func TestWindowRetriesConnectivity(t *testing.T) {
	r := chaintest.NewReader()
	r.Add(tx(10, 0))
	r.FailNext = 3
	w, err := epoch.New(3, 10, 1, 0)
	require.NoError(t, err)

	it := chain.LedgerIndexed{}.ReadWindow(r, w, time.Millisecond, zaptest.NewLogger(t))
	require.True(t, it.Next(context.Background()))
	require.NoError(t, it.Err())
}

func TestRetryStopsOnOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := chain.Retry(context.Background(), time.Millisecond, zaptest.NewLogger(t), "op", func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := chain.Retry(ctx, 5*time.Millisecond, zaptest.NewLogger(t), "op", func() error {
		return models.Connectivity("op", errors.New("down"))
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReadyAt(t *testing.T) {
	w, err := epoch.New(0, 1000, 2, 5) // [1010, 1012)
	require.NoError(t, err)

	assert.Equal(t, uint64(1011+40*2), chain.BlockIndexed{Confirmations: 40}.ReadyAt(w))
	assert.Equal(t, uint64(1012), chain.LedgerIndexed{Confirmations: 1}.ReadyAt(w))
}

func TestLookup(t *testing.T) {
	s, err := chain.Lookup("xrp")
	require.NoError(t, err)
	assert.Equal(t, models.ChainID(3), s.ID)
	assert.False(t, s.Variant.CommitReveal())
	assert.Equal(t, "ledger", s.Variant.BoundsUnit())

	_, err = chain.Lookup("eth")
	require.ErrorIs(t, err, models.ErrUnknownChain)

	assert.Equal(t, []string{"btc", "ltc", "doge", "xrp"}, chain.Names())
}
