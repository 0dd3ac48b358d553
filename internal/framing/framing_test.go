package framing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		{0x00},
		{0xff},
		[]byte("hello, world"),
		make([]byte, 1024),
	}

	for _, m := range cases {
		bits := MessageToBools(m)
		got := MessageFromBools(bits)
		require.Equal(t, len(m), len(got))
		if len(m) > 0 {
			require.Equal(t, m, got)
		}
	}
}

func TestLengthPrefixIsLittleEndianFourBytes(t *testing.T) {
	bits := MessageToBools([]byte("ab"))
	require.GreaterOrEqual(t, len(bits), 32)

	// Byte 0 of the frame is the low byte of the length (2), so bit 1 is set.
	require.False(t, bits[0])
	require.True(t, bits[1])
	for i := 2; i < 32; i++ {
		require.False(t, bits[i], "bit %d", i)
	}
}
