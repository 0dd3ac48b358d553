package llmtest

import (
	"context"
	"testing"

	"github.com/nkoppel/llama-cpp-steganography/internal/llm"
	"github.com/stretchr/testify/require"
)

func TestTokenizeDetokenizeRoundTrip(t *testing.T) {
	a := New()
	ctx := context.Background()

	tokens, err := a.Tokenize(ctx, "hello, world", true)
	require.NoError(t, err)
	require.Equal(t, BOSToken, tokens[0])

	text, err := a.Detokenize(ctx, tokens)
	require.NoError(t, err)
	require.Equal(t, "hello, world", text)
}

func TestNextLogitsDeterministicForSameContext(t *testing.T) {
	ctx := context.Background()
	a1, a2 := New(), New()

	tokens, err := a1.Tokenize(ctx, "same input", false)
	require.NoError(t, err)

	require.NoError(t, a1.SetPrompt(ctx, tokens))
	require.NoError(t, a2.SetPrompt(ctx, tokens))

	d1, err := a1.NextLogits(ctx)
	require.NoError(t, err)
	d2, err := a2.NextLogits(ctx)
	require.NoError(t, err)

	require.Equal(t, d1, d2)
}

func TestNextLogitsChangesWithContext(t *testing.T) {
	ctx := context.Background()
	a := New()

	before, err := a.NextLogits(ctx)
	require.NoError(t, err)

	require.NoError(t, a.Push(ctx, llm.Token('x')))

	after, err := a.NextLogits(ctx)
	require.NoError(t, err)

	require.NotEqual(t, before, after)
}

func TestSetPromptReusesCommonPrefix(t *testing.T) {
	ctx := context.Background()
	a := New()

	require.NoError(t, a.Push(ctx, llm.Token('a')))
	require.NoError(t, a.Push(ctx, llm.Token('b')))
	require.NoError(t, a.Push(ctx, llm.Token('c')))

	require.NoError(t, a.SetPrompt(ctx, []llm.Token{'a', 'b', 'z'}))
	require.Equal(t, []llm.Token{'a', 'b', 'z'}, a.Tokens())
}

func TestNewSiblingIsFreshAndIndependent(t *testing.T) {
	ctx := context.Background()
	a := New()
	require.NoError(t, a.Push(ctx, llm.Token('a')))

	sibling, err := a.NewSibling(ctx)
	require.NoError(t, err)
	require.Empty(t, sibling.Tokens())

	require.NoError(t, sibling.Push(ctx, llm.Token('b')))
	require.NoError(t, a.Push(ctx, llm.Token('c')))

	require.Equal(t, []llm.Token{'b'}, sibling.Tokens())
	require.Equal(t, []llm.Token{'a', 'c'}, a.Tokens())
}

func TestApplyChatTemplateEndsWithOpenAssistantTurn(t *testing.T) {
	a := New()
	out, err := a.ApplyChatTemplate(context.Background(), []llm.ChatMessage{
		{Role: "user", Content: "hi"},
	})
	require.NoError(t, err)
	require.Contains(t, out, "hi")
	require.True(t, len(out) > 0 && out[len(out)-1] == '\n')
	require.Contains(t, out, "<|assistant|>")
}

func TestIsEOGAndEOS(t *testing.T) {
	a := New()
	require.Equal(t, EOSToken, a.EOS())
	require.True(t, a.IsEOG(EOSToken))
	require.False(t, a.IsEOG(llm.Token('a')))
}

func TestPushAllRecordsDistributionBeforeEachToken(t *testing.T) {
	ctx := context.Background()
	a := New()

	dists, err := llm.PushAll(ctx, a, []llm.Token{'a', 'b'})
	require.NoError(t, err)
	require.Len(t, dists, 3)
	require.Equal(t, []llm.Token{'a', 'b'}, a.Tokens())
}
