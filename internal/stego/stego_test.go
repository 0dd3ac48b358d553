package stego

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nkoppel/llama-cpp-steganography/internal/llm/llmtest"
	"github.com/nkoppel/llama-cpp-steganography/internal/shaper"
)

func testParams(policy Policy) Params {
	return Params{
		Policy:     policy,
		Prompt:     "tell me something",
		TokenCount: 256,
		SkipStart:  2,
		Filter:     shaper.FilterParams{MinP: 0.02, TopK: 24, Temp: 1.0},
		Threshold:  0.2,
	}
}

func TestEncodeDecodeMessageCodingWindow(t *testing.T) {
	ctx := context.Background()
	log := zerolog.Nop()
	params := testParams(PolicyCodingWindow)
	message := []byte("hi")

	text, err := EncodeMessage(ctx, llmtest.New(), message, params, log)
	require.NoError(t, err)
	require.NotEmpty(t, text)

	got, err := DecodeMessage(ctx, llmtest.New(), text, params, log)
	require.NoError(t, err)
	require.Equal(t, message, got)
}

func TestEncodeDecodeMessageAuxiliaryGate(t *testing.T) {
	ctx := context.Background()
	log := zerolog.Nop()
	params := testParams(PolicyAuxiliaryGate)
	message := []byte("hi")

	text, err := EncodeMessage(ctx, llmtest.New(), message, params, log)
	require.NoError(t, err)
	require.NotEmpty(t, text)

	got, err := DecodeMessage(ctx, llmtest.New(), text, params, log)
	require.NoError(t, err)
	require.Equal(t, message, got)
}

func TestEncodeDecodeCompressedCodingWindow(t *testing.T) {
	ctx := context.Background()
	log := zerolog.Nop()
	params := testParams(PolicyCodingWindow)
	plaintext := "ok"

	text, err := EncodeCompressed(ctx, llmtest.New(), plaintext, params, log)
	require.NoError(t, err)

	got, err := DecodeCompressed(ctx, llmtest.New(), text, params, log)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestPolicyStringer(t *testing.T) {
	require.Equal(t, "coding-window", PolicyCodingWindow.String())
	require.Equal(t, "auxiliary-gate", PolicyAuxiliaryGate.String())
}

func TestEncodeMessageUnknownPolicy(t *testing.T) {
	ctx := context.Background()
	log := zerolog.Nop()
	params := testParams(Policy(99))

	_, err := EncodeMessage(ctx, llmtest.New(), []byte("x"), params, log)
	require.Error(t, err)
}

func TestEncodeMessageBudgetExhausted(t *testing.T) {
	ctx := context.Background()
	log := zerolog.Nop()
	params := testParams(PolicyCodingWindow)
	params.TokenCount = 1

	_, err := EncodeMessage(ctx, llmtest.New(), []byte("a long message that will not fit"), params, log)
	require.ErrorIs(t, err, ErrBudgetExhausted)
}
