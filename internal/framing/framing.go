// Package framing converts a byte payload to and from the bit stream the
// range coder operates on: a 32-bit little-endian length prefix followed by
// the payload bits, least-significant bit first.
package framing

import "encoding/binary"

// MessageToBools frames message as a bit stream: a 4-byte little-endian
// length prefix (measured in bytes of message) followed by every byte of
// message expanded least-significant-bit first.
func MessageToBools(message []byte) []bool {
	length := make([]byte, 4)
	binary.LittleEndian.PutUint32(length, uint32(len(message)))

	framed := make([]byte, 0, len(length)+len(message))
	framed = append(framed, length...)
	framed = append(framed, message...)

	bits := make([]bool, 0, len(framed)*8)
	for _, b := range framed {
		for i := 0; i < 8; i++ {
			bits = append(bits, b&(1<<i) != 0)
		}
	}
	return bits
}

// MessageFromBools is the inverse of MessageToBools: it reassembles bytes
// from bits (least-significant bit first), reads off the 4-byte length
// prefix, and truncates to that many payload bytes. Trailing bits beyond
// the framed message (e.g. decoder padding) are ignored.
func MessageFromBools(bits []bool) []byte {
	nBytes := len(bits) / 8
	bytes := make([]byte, nBytes)
	for i := 0; i < nBytes; i++ {
		var b byte
		for j := 0; j < 8; j++ {
			if bits[i*8+j] {
				b |= 1 << j
			}
		}
		bytes[i] = b
	}

	if len(bytes) < 4 {
		return nil
	}

	length := binary.LittleEndian.Uint32(bytes[:4])
	payload := bytes[4:]
	if uint32(len(payload)) > length {
		payload = payload[:length]
	}
	return payload
}
