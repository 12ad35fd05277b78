package epoch_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"state-connector/epoch"
)

func TestBoundsOf(t *testing.T) {
	lo, hi, err := epoch.BoundsOf(1000, 30, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(1150), lo)
	assert.Equal(t, uint64(1180), hi)
}

func TestBoundaryRoundTrip(t *testing.T) {
	tests := []struct {
		genesis, length uint64
	}{
		{1000, 30},
		{0, 1},
		{678000, 2},
		{62000000, 1},
	}
	for _, tt := range tests {
		for i := uint64(0); i < 50; i++ {
			lo, hi, err := epoch.BoundsOf(tt.genesis, tt.length, i)
			require.NoError(t, err)

			got, err := epoch.EpochOf(tt.genesis, tt.length, lo)
			require.NoError(t, err)
			require.Equal(t, i, got)

			got, err = epoch.EpochOf(tt.genesis, tt.length, hi-1)
			require.NoError(t, err)
			require.Equal(t, i, got)
		}
	}
}

func TestWindowsPartitionLedgers(t *testing.T) {
	var prevHi uint64 = 500
	for i := uint64(0); i < 20; i++ {
		w, err := epoch.New(3, 500, 7, i)
		require.NoError(t, err)
		require.Equal(t, prevHi, w.Lo, "gap or overlap before epoch %d", i)
		require.Equal(t, w.Lo+6, w.Last())
		prevHi = w.Hi
	}
}

func TestEpochOfBeforeGenesis(t *testing.T) {
	_, err := epoch.EpochOf(1000, 30, 999)

	var oor *epoch.OutOfRangeError
	require.True(t, errors.As(err, &oor))
	assert.Equal(t, uint64(999), oor.Ledger)
	assert.Equal(t, uint64(1000), oor.Genesis)
}

func TestZeroLengthRejected(t *testing.T) {
	_, _, err := epoch.BoundsOf(1000, 0, 1)
	require.ErrorIs(t, err, epoch.ErrInvalidPeriod)

	_, err = epoch.EpochOf(1000, 0, 1200)
	require.ErrorIs(t, err, epoch.ErrInvalidPeriod)
}

func TestBoundsOverflow(t *testing.T) {
	_, _, err := epoch.BoundsOf(1, 2, math.MaxUint64/2)
	require.ErrorIs(t, err, epoch.ErrInvalidPeriod)
}

func TestContaining(t *testing.T) {
	w, err := epoch.Containing(3, 1000, 30, 1179)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), w.Index)
	assert.True(t, w.Contains(1150))
	assert.False(t, w.Contains(1180))
}

func TestSpan(t *testing.T) {
	w, err := epoch.Span(3, 1180, 30)
	require.NoError(t, err)
	assert.Equal(t, uint64(1150), w.Lo)
	assert.Equal(t, uint64(1180), w.Hi)

	_, err = epoch.Span(3, 10, 30)
	require.ErrorIs(t, err, epoch.ErrInvalidPeriod)
}
