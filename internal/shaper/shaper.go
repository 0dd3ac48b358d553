// Package shaper turns a raw LLM logit vector into the structures the
// steganographic codec and compressor need: a softmax-normalised,
// descending-sorted distribution, a filtered "in-vocabulary" prefix of it,
// and the coding windows that partition the full vocabulary into disjoint
// alphabets for the range coder.
package shaper

import (
	"math"
	"sort"
)

// Entry is one token's record in a distribution: its id, its logit, and
// (once Softmax has run) its probability.
type Entry struct {
	ID    int32
	Logit float64
	Prob  float64
}

// FilterParams configures the three filtering stages, applied in order
// min-p, top-k, temperature.
type FilterParams struct {
	// MinP drops entries whose probability is below MinP * the top
	// probability. 0 disables this stage.
	MinP float64
	// TopK keeps at most the TopK highest-probability entries. 0 means
	// unlimited.
	TopK int
	// Temp rescales logits before a final re-softmax. 1.0 is a no-op.
	Temp float64
}

// Softmax returns entries sorted descending by logit, with each Logit
// shifted by -ln(sum(exp(logit))) (summed over finite logits) and Prob set
// to exp of the shifted logit. The input is not mutated.
func Softmax(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)

	sort.Slice(out, func(i, j int) bool { return out[i].Logit > out[j].Logit })

	var sum float64
	for _, e := range out {
		if !math.IsInf(e.Logit, 0) {
			sum += math.Exp(e.Logit)
		}
	}
	l := math.Log(sum)

	for i := range out {
		out[i].Logit -= l
		out[i].Prob = math.Exp(out[i].Logit)
	}
	return out
}

// minP drops entries whose probability falls below q times the highest
// probability in sorted, always keeping at least the first entry. sorted
// must already be descending by probability (i.e. the output of Softmax).
func minP(sorted []Entry, q float64) []Entry {
	if q <= 0 || len(sorted) == 0 {
		return sorted
	}
	threshold := q * sorted[0].Prob
	keep := 1
	for keep < len(sorted) && sorted[keep].Prob >= threshold {
		keep++
	}
	return sorted[:keep]
}

// topK keeps at most the k highest entries of sorted. k == 0 means
// unlimited.
func topK(sorted []Entry, k int) []Entry {
	if k <= 0 || k >= len(sorted) {
		return sorted
	}
	return sorted[:k]
}

// temperature divides every entry's logit by t. t == 1.0 is a no-op;
// smaller t sharpens the distribution, larger t flattens it. The result is
// not itself re-normalised — call Softmax again to do that.
func temperature(entries []Entry, t float64) []Entry {
	if t == 1.0 || t == 0 {
		return entries
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = Entry{ID: e.ID, Logit: e.Logit / t}
	}
	return out
}

// Shape runs the full pipeline: softmax the raw distribution, then apply
// min-p, top-k, and temperature filtering in that order, finishing with a
// fresh softmax over the surviving entries so their probabilities sum to 1
// on their own.
//
// It returns both the full softmaxed, sorted distribution (needed to build
// the tail coding windows) and the filtered, re-normalised prefix (the
// first coding window).
func Shape(raw []Entry, params FilterParams) (full, filtered []Entry) {
	full = Softmax(raw)

	filtered = minP(full, params.MinP)
	filtered = topK(filtered, params.TopK)
	filtered = temperature(filtered, params.Temp)
	filtered = Softmax(filtered)

	return full, filtered
}

// CodingWindows partitions the full vocabulary into disjoint coding
// alphabets. The first window is filtered (the shaped, in-vocabulary
// prefix); every remaining token in full — those that filtering dropped —
// becomes its own singleton window, so any token the LLM might still
// legitimately emit (e.g. one selected by a different, unfiltered
// distribution) always has some window it can be encoded through, even
// though a singleton window carries no information (its table always has
// exactly one entry and so never consumes coder bits).
//
// full and filtered must both come from the same Shape call.
func CodingWindows(full, filtered []Entry) [][]Entry {
	windows := make([][]Entry, 0, len(full)-len(filtered)+1)
	windows = append(windows, filtered)
	for i := len(filtered); i < len(full); i++ {
		windows = append(windows, full[i:i+1])
	}
	return windows
}

// Probs extracts the Prob field of entries, in order, for probtable.Build.
func Probs(entries []Entry) []float64 {
	probs := make([]float64, len(entries))
	for i, e := range entries {
		probs[i] = e.Prob
	}
	return probs
}
