package rangecoder

import "sort"

// Decoder is the mirror of Encoder: given the same probability tables, it
// consumes the bit sequence an Encoder produced and recovers the original
// symbols.
//
// Past the end of the encoded bits, Decoder yields a single padding zero
// bit followed by an infinite run of one bits, so a decode loop can keep
// pulling symbols until IsDone reports the padding has been fully absorbed.
type Decoder struct {
	low    uint64
	rng    uint64
	in     []bool
	bufPos int
}

// NewDecoder returns a Decoder that will read bits from in.
func NewDecoder(in []bool) *Decoder {
	return &Decoder{low: 0, rng: 1, in: in}
}

// inputBit returns the next bit, padding with one zero then infinite ones
// beyond the end of in.
func (d *Decoder) inputBit() bool {
	var out bool
	if d.bufPos < len(d.in) {
		out = d.in[d.bufPos]
	} else {
		out = d.bufPos > len(d.in)
	}
	d.bufPos++
	return out
}

// fillRange doubles rng and shifts bits into low until rng exceeds Half.
func (d *Decoder) fillRange() {
	for d.rng <= Half {
		bit := uint64(0)
		if d.inputBit() {
			bit = 1
		}
		d.low = d.low*2 + bit
		d.rng *= 2
	}
}

// SelectedSymbol returns the largest index i such that
// table[i]*rng/denom <= low, without narrowing the coder's interval. Decode
// calls this, then narrows; callers that only need to peek (e.g. to compare
// candidate coding windows) can call it directly.
func (d *Decoder) SelectedSymbol(table []uint64, denom uint64) int {
	d.fillRange()

	i := sort.Search(len(table), func(i int) bool {
		return table[i]*d.rng/denom > d.low
	})
	return i - 1
}

// DecodeRange narrows the coder's interval to [lo, hi) out of denom,
// mirroring Encoder.EncodeRange. Callers with a probability table should use
// Decode instead.
func (d *Decoder) DecodeRange(lo, hi, denom uint64) {
	offset := d.rng * lo / denom
	d.low -= offset
	d.rng = d.rng*hi/denom - offset
}

// Decode selects a symbol via SelectedSymbol, narrows the interval to match,
// and returns the symbol index.
func (d *Decoder) Decode(table []uint64, denom uint64) int {
	symbol := d.SelectedSymbol(table, denom)

	lo := table[symbol]
	hi := denom
	if symbol+1 < len(table) {
		hi = table[symbol+1]
	}

	d.DecodeRange(lo, hi, denom)
	return symbol
}

// IsDone reports whether the padding zero bit following the encoded message
// has been fully consumed. Consumers must check IsDone before each Decode
// call; decoding past this point yields meaningless trailing symbols.
func (d *Decoder) IsDone() bool {
	return d.bufPos > len(d.in)+NBits+1
}
