package utf8repair

// firstInvalid scans b for the first point at which it stops being valid
// UTF-8, mirroring the error reporting of Rust's std::str::from_utf8: if b
// is entirely valid, ok is true. Otherwise ok is false, validUpTo is the
// number of leading bytes of b that are valid, and errLen is the length of
// the invalid/incomplete subsequence starting at validUpTo — or 0 if that
// subsequence runs off the end of b (truncated multi-byte sequence that
// could still be completed by bytes not yet seen).
func firstInvalid(b []byte) (ok bool, validUpTo int, errLen int) {
	n := len(b)
	i := 0
	for i < n {
		first := b[i]
		if first < 0x80 {
			i++
			continue
		}

		width := utf8CharWidth(first)
		if width != 0 && i+1 >= n {
			return false, i, 0
		}
		var second byte
		if i+1 < n {
			second = b[i+1]
		}

		switch width {
		case 2:
			if !isContinuation(second) {
				return false, i, 1
			}
		case 3:
			if !validSecondOf3(first, second) {
				return false, i, 1
			}
			if i+2 >= n {
				return false, i, 0
			}
			if !isContinuation(b[i+2]) {
				return false, i, 2
			}
		case 4:
			if !validSecondOf4(first, second) {
				return false, i, 1
			}
			if i+2 >= n {
				return false, i, 0
			}
			if !isContinuation(b[i+2]) {
				return false, i, 2
			}
			if i+3 >= n {
				return false, i, 0
			}
			if !isContinuation(b[i+3]) {
				return false, i, 3
			}
		default:
			return false, i, 1
		}
		i += width
	}
	return true, n, 0
}

func isContinuation(b byte) bool {
	return b&0xC0 == 0x80
}

// utf8CharWidth returns the expected total byte length of the sequence led
// by first, or 0 if first can never validly lead a sequence (a stray
// continuation byte, an overlong 2-byte lead 0xC0/0xC1, or a byte beyond
// the Unicode range 0xF5-0xFF).
func utf8CharWidth(first byte) int {
	switch {
	case first >= 0xC2 && first <= 0xDF:
		return 2
	case first >= 0xE0 && first <= 0xEF:
		return 3
	case first >= 0xF0 && first <= 0xF4:
		return 4
	default:
		return 0
	}
}

// validSecondOf3 rejects overlong encodings (0xE0 requires second >= 0xA0)
// and UTF-16 surrogate halves (0xED requires second <= 0x9F).
func validSecondOf3(first, second byte) bool {
	switch first {
	case 0xE0:
		return second >= 0xA0 && second <= 0xBF
	case 0xED:
		return second >= 0x80 && second <= 0x9F
	default:
		return second >= 0x80 && second <= 0xBF
	}
}

// validSecondOf4 rejects overlong encodings (0xF0 requires second >= 0x90)
// and sequences beyond U+10FFFF (0xF4 requires second <= 0x8F).
func validSecondOf4(first, second byte) bool {
	switch first {
	case 0xF0:
		return second >= 0x90 && second <= 0xBF
	case 0xF4:
		return second >= 0x80 && second <= 0x8F
	default:
		return second >= 0x80 && second <= 0xBF
	}
}
