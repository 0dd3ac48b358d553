// Package probtable builds the integer cumulative probability tables the
// range coder uses as its alphabet, deterministically discretising a
// floating-point distribution so that encoder and decoder compute byte-
// identical tables from the same inputs.
package probtable

import (
	"errors"

	"github.com/nkoppel/llama-cpp-steganography/internal/rangecoder"
)

// ErrEmptyDistribution is returned by Build when given no probabilities.
var ErrEmptyDistribution = errors.New("probtable: empty distribution")

// Table is a cumulative integer probability table: Cumulative is strictly
// non-decreasing, starts at 0, and Cumulative[i+1]-Cumulative[i] >= 1 for
// every consecutive pair. Denom is the implied upper bound of the last
// entry and never exceeds rangecoder.MaxDenominator.
type Table struct {
	Cumulative []uint64
	Denom      uint64
}

// Build converts probs (assumed to already be sorted in the caller's
// preferred coding order and to sum to ~1) into a Table. Every entry is
// guaranteed at least weight 1, even if its rounded share of
// rangecoder.MaxDenominator would otherwise floor to 0 — otherwise a
// legitimate candidate could become unencodable.
func Build(probs []float64) (Table, error) {
	if len(probs) == 0 {
		return Table{}, ErrEmptyDistribution
	}

	total := 0.0
	for _, p := range probs {
		total += p
	}

	cumulative := make([]uint64, len(probs))
	var sum uint64
	for i, p := range probs {
		cumulative[i] = sum

		width := uint64(p / total * float64(rangecoder.MaxDenominator))
		if width < 1 {
			width = 1
		}
		sum += width
	}

	if sum < 1 {
		sum = 1
	}

	return Table{Cumulative: cumulative, Denom: sum}, nil
}
