// Package utf8repair turns arbitrary, possibly invalid UTF-8 byte sequences
// — the raw byte fragments an LLM tokenizer's detokenise step can hand
// back — into valid Go strings, replacing every maximal invalid subsequence
// with exactly one U+FFFD replacement character, per the Unicode "maximal
// subpart" recommendation. It also provides a streaming variant for
// reassembling strings from a sequence of token byte fragments that may
// split a single codepoint across fragment boundaries.
package utf8repair

import (
	"strings"
	"unicode/utf8"
)

// Lossy converts buf to a string, replacing every maximal invalid UTF-8
// subsequence with a single U+FFFD. It is idempotent: Lossy(Lossy(b)) ==
// Lossy(b) for any byte sequence b, and leaves valid UTF-8 (including pure
// ASCII) untouched.
func Lossy(buf []byte) string {
	var sb strings.Builder
	i := 0
	for i < len(buf) {
		ok, errOffset, errLen := firstInvalid(buf[i:])
		if ok {
			sb.Write(buf[i:])
			break
		}

		sb.Write(buf[i : i+errOffset])
		sb.WriteRune(utf8.RuneError)

		if errLen == 0 {
			// The invalid subsequence runs off the end of buf: nothing more
			// to recover from, consume the rest.
			break
		}
		i += errOffset + errLen
	}
	return sb.String()
}

// StreamDecoder reassembles a string from a sequence of byte fragments
// (e.g. one per generated token), buffering any trailing bytes that might
// still complete a multi-byte codepoint once the next fragment arrives.
//
// The zero value is ready to use.
type StreamDecoder struct {
	pending []byte
}

// Push appends chunk to the decoder and returns the longest string prefix
// that is now known-complete: previously buffered bytes plus chunk, minus
// any trailing bytes that could still be the start of a valid but
// not-yet-finished codepoint.
func (d *StreamDecoder) Push(chunk []byte) string {
	d.pending = append(d.pending, chunk...)

	var sb strings.Builder
	i := 0
	for i < len(d.pending) {
		ok, errOffset, errLen := firstInvalid(d.pending[i:])
		if ok {
			sb.Write(d.pending[i:])
			d.pending = nil
			return sb.String()
		}

		if errLen == 0 {
			// Incomplete sequence at the tail: it may still complete on the
			// next Push, so keep it buffered and emit only what precedes it.
			sb.Write(d.pending[i : i+errOffset])
			d.pending = append([]byte(nil), d.pending[i+errOffset:]...)
			return sb.String()
		}

		sb.Write(d.pending[i : i+errOffset])
		sb.WriteRune(utf8.RuneError)
		i += errOffset + errLen
	}

	d.pending = nil
	return sb.String()
}

// Finalize signals end of input. If a dangling, never-completed codepoint
// prefix remains buffered, it returns a single U+FFFD for it; otherwise
// returns the empty string.
func (d *StreamDecoder) Finalize() string {
	if len(d.pending) == 0 {
		return ""
	}
	d.pending = nil
	return string(utf8.RuneError)
}
