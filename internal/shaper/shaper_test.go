package shaper

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func sumProbs(entries []Entry) float64 {
	var s float64
	for _, e := range entries {
		s += e.Prob
	}
	return s
}

func TestSoftmaxSortsDescendingAndNormalises(t *testing.T) {
	raw := []Entry{
		{ID: 1, Logit: 0.1},
		{ID: 2, Logit: 3.0},
		{ID: 3, Logit: -1.0},
	}

	out := Softmax(raw)

	require.Len(t, out, 3)
	require.Equal(t, int32(2), out[0].ID)
	require.Equal(t, int32(1), out[1].ID)
	require.Equal(t, int32(3), out[2].ID)

	require.InDelta(t, 1.0, sumProbs(out), 1e-9)
	require.Greater(t, out[0].Prob, out[1].Prob)
	require.Greater(t, out[1].Prob, out[2].Prob)
}

func TestSoftmaxDoesNotMutateInput(t *testing.T) {
	raw := []Entry{{ID: 1, Logit: 1.0}, {ID: 2, Logit: 2.0}}
	_ = Softmax(raw)

	require.Equal(t, int32(1), raw[0].ID)
	require.Equal(t, 0.0, raw[0].Prob)
}

func TestSoftmaxIgnoresInfiniteLogitsInDenominator(t *testing.T) {
	raw := []Entry{
		{ID: 1, Logit: math.Inf(-1)},
		{ID: 2, Logit: 0.0},
	}

	out := Softmax(raw)

	require.Equal(t, int32(2), out[0].ID)
	require.InDelta(t, 1.0, out[0].Prob, 1e-9)
	require.Equal(t, 0.0, out[1].Prob)
}

func TestMinPKeepsAtLeastOne(t *testing.T) {
	full := Softmax([]Entry{
		{ID: 1, Logit: 10.0},
		{ID: 2, Logit: -100.0},
		{ID: 3, Logit: -100.0},
	})

	kept := minP(full, 0.9)
	require.Len(t, kept, 1)
	require.Equal(t, int32(1), kept[0].ID)
}

func TestMinPZeroDisables(t *testing.T) {
	full := Softmax([]Entry{{ID: 1, Logit: 5}, {ID: 2, Logit: 1}, {ID: 3, Logit: -5}})
	require.Equal(t, full, minP(full, 0))
}

func TestTopKLimitsCount(t *testing.T) {
	full := Softmax([]Entry{
		{ID: 1, Logit: 5}, {ID: 2, Logit: 4}, {ID: 3, Logit: 3}, {ID: 4, Logit: 2},
	})

	kept := topK(full, 2)
	require.Len(t, kept, 2)
	require.Equal(t, int32(1), kept[0].ID)
	require.Equal(t, int32(2), kept[1].ID)
}

func TestTopKZeroIsUnlimited(t *testing.T) {
	full := Softmax([]Entry{{ID: 1, Logit: 5}, {ID: 2, Logit: 4}})
	require.Equal(t, full, topK(full, 0))
}

func TestTemperatureSharpensAndFlattens(t *testing.T) {
	raw := []Entry{{ID: 1, Logit: 2.0}, {ID: 2, Logit: 1.0}}

	sharp := Softmax(temperature(raw, 0.5))
	flat := Softmax(temperature(raw, 2.0))

	// lower temperature sharpens the top probability further above the base case
	base := Softmax(raw)
	require.Greater(t, sharp[0].Prob, base[0].Prob)
	require.Less(t, flat[0].Prob, base[0].Prob)
}

func TestShapeAppliesStagesInOrderAndRenormalises(t *testing.T) {
	raw := []Entry{
		{ID: 1, Logit: 5.0},
		{ID: 2, Logit: 4.9},
		{ID: 3, Logit: -50.0},
		{ID: 4, Logit: -60.0},
	}

	full, filtered := Shape(raw, FilterParams{MinP: 0.01, TopK: 0, Temp: 1.0})

	require.Len(t, full, 4)
	require.Len(t, filtered, 2)
	require.Equal(t, int32(1), filtered[0].ID)
	require.Equal(t, int32(2), filtered[1].ID)
	require.InDelta(t, 1.0, sumProbs(filtered), 1e-9)
}

func TestShapeTopKThenTemperature(t *testing.T) {
	raw := []Entry{
		{ID: 1, Logit: 3.0},
		{ID: 2, Logit: 2.0},
		{ID: 3, Logit: 1.0},
		{ID: 4, Logit: 0.0},
	}

	_, filtered := Shape(raw, FilterParams{MinP: 0, TopK: 2, Temp: 1.0})

	require.Len(t, filtered, 2)
	require.Equal(t, int32(1), filtered[0].ID)
	require.Equal(t, int32(2), filtered[1].ID)
	require.InDelta(t, 1.0, sumProbs(filtered), 1e-9)
}

func TestCodingWindowsFirstWindowIsFiltered(t *testing.T) {
	full, filtered := Shape([]Entry{
		{ID: 1, Logit: 5.0},
		{ID: 2, Logit: 4.9},
		{ID: 3, Logit: -50.0},
		{ID: 4, Logit: -60.0},
	}, FilterParams{MinP: 0.01})

	windows := CodingWindows(full, filtered)

	require.Len(t, windows, 1+(len(full)-len(filtered)))
	require.Equal(t, filtered, windows[0])
}

func TestCodingWindowsTailWindowsAreSingletons(t *testing.T) {
	full, filtered := Shape([]Entry{
		{ID: 1, Logit: 5.0},
		{ID: 2, Logit: -50.0},
		{ID: 3, Logit: -60.0},
	}, FilterParams{MinP: 0.9})

	windows := CodingWindows(full, filtered)

	require.Len(t, windows, 3)
	require.Len(t, windows[0], 1)
	require.Equal(t, int32(1), windows[0][0].ID)
	require.Len(t, windows[1], 1)
	require.Equal(t, int32(2), windows[1][0].ID)
	require.Len(t, windows[2], 1)
	require.Equal(t, int32(3), windows[2][0].ID)
}

func TestCodingWindowsCoverWholeVocabularyExactlyOnce(t *testing.T) {
	full, filtered := Shape([]Entry{
		{ID: 1, Logit: 3.0},
		{ID: 2, Logit: 2.0},
		{ID: 3, Logit: 1.0},
		{ID: 4, Logit: 0.5},
		{ID: 5, Logit: -1.0},
	}, FilterParams{MinP: 0, TopK: 3})

	windows := CodingWindows(full, filtered)

	seen := map[int32]bool{}
	for _, w := range windows {
		for _, e := range w {
			require.False(t, seen[e.ID], "token %d seen twice", e.ID)
			seen[e.ID] = true
		}
	}
	require.Len(t, seen, len(full))
}

func TestProbs(t *testing.T) {
	entries := Softmax([]Entry{{ID: 1, Logit: 1}, {ID: 2, Logit: 0}})
	probs := Probs(entries)
	require.Len(t, probs, 2)
	require.InDelta(t, entries[0].Prob, probs[0], 1e-12)
	require.InDelta(t, entries[1].Prob, probs[1], 1e-12)
}
