package compressor

import (
	"context"
	"testing"

	"github.com/nkoppel/llama-cpp-steganography/internal/llm/llmtest"
	"github.com/stretchr/testify/require"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	cases := []string{
		"hello, world",
		"a",
		"The quick brown fox jumps over the lazy dog.",
		"line one\nline two\n",
	}

	ctx := context.Background()
	for _, text := range cases {
		t.Run(text, func(t *testing.T) {
			encAdapter := llmtest.New()
			bits, err := Compress(ctx, encAdapter, text)
			require.NoError(t, err)
			require.NotEmpty(t, bits)

			decAdapter := llmtest.New()
			got, err := Decompress(ctx, decAdapter, bits, 0)
			require.NoError(t, err)
			require.Equal(t, text, got)
		})
	}
}

func TestCompressIsDeterministic(t *testing.T) {
	ctx := context.Background()
	a1, a2 := llmtest.New(), llmtest.New()

	bits1, err := Compress(ctx, a1, "deterministic output please")
	require.NoError(t, err)
	bits2, err := Compress(ctx, a2, "deterministic output please")
	require.NoError(t, err)

	require.Equal(t, bits1, bits2)
}

func TestDecompressStopsOnExhaustedBits(t *testing.T) {
	ctx := context.Background()
	a := llmtest.New()

	// A tiny, likely-invalid bit stream should not hang; it should stop
	// quickly via IsDone or an end-of-generation token.
	got, err := Decompress(ctx, a, []bool{true, false, true}, 64)
	require.NoError(t, err)
	_ = got
}
