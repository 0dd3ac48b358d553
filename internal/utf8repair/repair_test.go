package utf8repair

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLossySeedScenarios(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want string
	}{
		{"ascii", []byte("hello"), "hello"},
		{"valid-multibyte", []byte("ศไทย中华Việt Nam"), "ศไทย中华Việt Nam"},
		{
			"lone-continuation-and-invalid-byte",
			[]byte("Hello\xC2 There\xFF Goodbye"),
			"Hello� There� Goodbye",
		},
		{
			"overlong-two-byte-and-truncated-three-byte",
			[]byte("Hello\xC0\x80 There\xE6\x83 Goodbye"),
			"Hello�� There� Goodbye",
		},
		{
			"invalid-lead-f5",
			[]byte("\xF5foo\xF5\x80bar"),
			"�foo��bar",
		},
		{
			"truncated-four-byte-one-cont",
			[]byte("\xF1foo\xF1\x80bar\xF1\x80\x80baz"),
			"�foo�bar�baz",
		},
		{
			"f4-boundary",
			[]byte("\xF4foo\xF4\x80bar\xF4\xBFbaz"),
			"�foo�bar��baz",
		},
		{
			"overlong-four-byte-then-valid-supplementary",
			[]byte("\xF0\x80\x80\x80foo\xF0\x90\x80\x80bar"),
			"����foo\U00010000bar",
		},
		{
			"surrogate-halves",
			[]byte("\xED\xA0\x80foo\xED\xBF\xBFbar"),
			"���foo���bar",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, Lossy(c.in))
		})
	}
}

func TestLossyIdempotent(t *testing.T) {
	inputs := [][]byte{
		[]byte("hello"),
		[]byte("Hello\xC2 There\xFF Goodbye"),
		[]byte("\xF0\x80\x80\x80foo\xF0\x90\x80\x80bar"),
		{0xff, 0xfe, 0xfd},
	}

	for _, in := range inputs {
		once := Lossy(in)
		twice := Lossy([]byte(once))
		require.Equal(t, once, twice)
	}
}

func TestStreamDecoderReassemblesSplitCodepoint(t *testing.T) {
	var d StreamDecoder

	// U+10000 (𐀀) encoded as F0 90 80 80, split across three fragments.
	var got string
	got += d.Push([]byte{0xF0, 0x90})
	got += d.Push([]byte{0x80})
	got += d.Push([]byte{0x80, 'b', 'a', 'r'})
	got += d.Finalize()

	require.Equal(t, "\U00010000bar", got)
}

func TestStreamDecoderFinalizeOnDanglingSuffix(t *testing.T) {
	var d StreamDecoder

	got := d.Push([]byte{'h', 'i', 0xF0, 0x90})
	got += d.Finalize()

	require.Equal(t, "hi�", got)
}

func TestStreamDecoderGenuineErrorMidStream(t *testing.T) {
	var d StreamDecoder

	got := d.Push([]byte("foo\xF5\x80bar"))
	got += d.Finalize()

	require.Equal(t, "foo��bar", got)
}
