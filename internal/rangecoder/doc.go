// Package rangecoder implements a carry-propagating binary arithmetic coder
// over 64-bit integer state.
//
// Unlike a byte-oriented entropy coder, this coder emits and consumes a
// stream of individual bits (as bools), which lets the steganographic codec
// treat the coder's output as the "random" choices driving LLM token
// selection, and its input as the hidden payload being decoded into those
// choices.
//
// The coder is parameterised by an integer probability table: a
// non-decreasing cumulative array starting at 0 and a denominator bounding
// every entry. Both Encoder and Decoder perform identical integer arithmetic
// given the same table, so the two sides never disagree about rounding.
package rangecoder

// Width of the coder's normalisation window, in bits.
const NBits = 32

// Norm is 2^NBits, the coder's full-range upper bound.
const Norm = uint64(1) << NBits

// Half is Norm/2, the renormalisation threshold.
const Half = Norm / 2

// MaxDenominator is the largest denominator a probability table may use.
const MaxDenominator = Norm - 1
