package rangecoder

// Encoder is a carry-propagating binary range encoder.
//
// The zero value is not usable; construct one with NewEncoder.
type Encoder struct {
	low uint64
	rng uint64
	out []bool
}

// NewEncoder returns an Encoder ready to accept EncodeRange/Encode calls.
func NewEncoder() *Encoder {
	return &Encoder{low: 0, rng: Norm}
}

// carryOne propagates a +1 carry through the already-emitted bit buffer:
// flip trailing true bits to false, then flip the first false bit found to
// true, scanning from the back.
func (e *Encoder) carryOne() {
	for i := len(e.out) - 1; i >= 0; i-- {
		e.out[i] = !e.out[i]
		if e.out[i] {
			break
		}
	}
}

// EncodeRange narrows the coder's interval to [lo, hi) out of denom and
// renormalises. Callers with a probability table should use Encode instead.
//
// Requires 0 <= lo < hi <= denom <= MaxDenominator.
func (e *Encoder) EncodeRange(lo, hi, denom uint64) {
	for e.rng <= Half {
		e.out = append(e.out, e.low >= Half)
		e.low = (e.low % Half) * 2
		e.rng *= 2
	}

	offset := e.rng * lo / denom
	e.low += offset
	e.rng = e.rng*hi/denom - offset

	if e.low >= Norm {
		e.low -= Norm
		e.carryOne()
	}
}

// Encode encodes symbol against a cumulative probability table with the
// given denominator. table[symbol] is the lower bound; the upper bound is
// table[symbol+1] if it exists, else denom.
func (e *Encoder) Encode(table []uint64, denom uint64, symbol int) {
	lo := table[symbol]
	hi := denom
	if symbol+1 < len(table) {
		hi = table[symbol+1]
	}
	e.EncodeRange(lo, hi, denom)
}

// Flush terminates the coder, emitting the minimum number of additional
// bits needed so that a Decoder fed the result will read back an interval
// containing low, and returns the full emitted bit sequence.
//
// The Encoder must not be used after Flush.
func (e *Encoder) Flush() []bool {
	for e.rng <= Norm {
		switch {
		case e.low == 0 || !(e.low < Half && Half < e.low+e.rng):
			e.out = append(e.out, e.low >= Half)
			e.low %= Half
		case e.low+e.rng-Half > Half-e.low:
			e.rng -= Half - e.low
			e.low = 0
			e.out = append(e.out, true)
		default:
			e.rng -= e.low + e.rng - Half
			e.out = append(e.out, false)
		}

		e.low *= 2
		e.rng *= 2
	}

	return e.out
}
