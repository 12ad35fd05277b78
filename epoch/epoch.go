// Package epoch maps ledger or block numbers onto fixed-length claim periods.
package epoch

import (
	"errors"
	"fmt"
	"math/bits"

	"state-connector/models"
)

// ErrInvalidPeriod is returned for a zero period length or for bounds that do
// not fit in 64 bits.
var ErrInvalidPeriod = errors.New("invalid claim period")

// OutOfRangeError reports a ledger that precedes the genesis ledger.
type OutOfRangeError struct {
	Ledger  uint64
	Genesis uint64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("ledger %d precedes genesis ledger %d", e.Ledger, e.Genesis)
}

// Window is one claim period: ledgers in [Lo, Hi).
type Window struct {
	ChainID models.ChainID
	Genesis uint64
	Length  uint64
	Index   uint64
	Lo      uint64
	Hi      uint64
}

// Last is the final ledger inside the window.
func (w Window) Last() uint64 { return w.Hi - 1 }

// Contains reports whether x lies in [Lo, Hi).
func (w Window) Contains(x uint64) bool { return x >= w.Lo && x < w.Hi }

func (w Window) String() string {
	return fmt.Sprintf("chain %d epoch %d [%d, %d)", w.ChainID, w.Index, w.Lo, w.Hi)
}

// BoundsOf returns the half-open range [lo, hi) of the index-th period.
func BoundsOf(genesis, length, index uint64) (lo, hi uint64, err error) {
	if length == 0 {
		return 0, 0, ErrInvalidPeriod
	}
	carry, offset := bits.Mul64(index, length)
	if carry != 0 {
		return 0, 0, fmt.Errorf("%w: index %d overflows", ErrInvalidPeriod, index)
	}
	lo, carry = bits.Add64(genesis, offset, 0)
	if carry != 0 {
		return 0, 0, fmt.Errorf("%w: index %d overflows", ErrInvalidPeriod, index)
	}
	hi, carry = bits.Add64(lo, length, 0)
	if carry != 0 {
		return 0, 0, fmt.Errorf("%w: index %d overflows", ErrInvalidPeriod, index)
	}
	return lo, hi, nil
}

// EpochOf returns the index of the period that owns x.
func EpochOf(genesis, length, x uint64) (uint64, error) {
	if length == 0 {
		return 0, ErrInvalidPeriod
	}
	if x < genesis {
		return 0, &OutOfRangeError{Ledger: x, Genesis: genesis}
	}
	return (x - genesis) / length, nil
}

// New builds the index-th window of a chain.
func New(chain models.ChainID, genesis, length, index uint64) (Window, error) {
	lo, hi, err := BoundsOf(genesis, length, index)
	if err != nil {
		return Window{}, err
	}
	return Window{ChainID: chain, Genesis: genesis, Length: length, Index: index, Lo: lo, Hi: hi}, nil
}

// Containing builds the window that owns ledger x.
func Containing(chain models.ChainID, genesis, length, x uint64) (Window, error) {
	index, err := EpochOf(genesis, length, x)
	if err != nil {
		return Window{}, err
	}
	return New(chain, genesis, length, index)
}

// Span builds an ad hoc window [hi-length, hi) that is not tied to a genesis
// ledger, as used when re-deriving a claimed period root.
func Span(chain models.ChainID, hi, length uint64) (Window, error) {
	if length == 0 || length > hi {
		return Window{}, ErrInvalidPeriod
	}
	return Window{ChainID: chain, Genesis: hi - length, Length: length, Lo: hi - length, Hi: hi}, nil
}
