// Package compressor implements lossless text compression using a
// language model as the predictive source for a range coder: at every
// position the model's next-token distribution is turned into a
// cumulative probability table, and the token that actually occurs is
// range-coded against it. A model that predicts the text well produces a
// short bit stream; a uniform model degrades gracefully to roughly
// log2(vocab) bits per token.
//
// This is also the building block the steganographic codec in
// internal/stego uses to shrink a message before hiding it, since a
// smaller payload needs fewer carrier tokens.
package compressor

import (
	"context"
	"fmt"

	"github.com/nkoppel/llama-cpp-steganography/internal/llm"
	"github.com/nkoppel/llama-cpp-steganography/internal/probtable"
	"github.com/nkoppel/llama-cpp-steganography/internal/rangecoder"
	"github.com/nkoppel/llama-cpp-steganography/internal/shaper"
)

// DefaultMaxTokens bounds Decompress's generation loop so a corrupted or
// truncated bit stream cannot spin forever.
const DefaultMaxTokens = 1 << 16

// Compress tokenizes text (with a leading BOS and trailing EOS), replays
// it through the adapter one token at a time, and range-codes each token
// against the model's softmaxed next-token distribution at that position.
func Compress(ctx context.Context, a llm.Adapter, text string) ([]bool, error) {
	if err := a.SetPrompt(ctx, nil); err != nil {
		return nil, fmt.Errorf("compressor: clear context: %w", err)
	}

	tokens, err := a.Tokenize(ctx, text, true)
	if err != nil {
		return nil, fmt.Errorf("compressor: tokenize: %w", err)
	}
	tokens = append(tokens, a.EOS())

	if err := a.SetPrompt(ctx, nil); err != nil {
		return nil, fmt.Errorf("compressor: re-clear context: %w", err)
	}

	dists, err := llm.PushAll(ctx, a, tokens)
	if err != nil {
		return nil, fmt.Errorf("compressor: pushing tokens: %w", err)
	}

	enc := rangecoder.NewEncoder()
	for i, tok := range tokens {
		full := shaper.Softmax(llm.ToEntries(dists[i]))

		idx := indexOfToken(full, int32(tok))
		if idx < 0 {
			return nil, fmt.Errorf("compressor: token %d missing from its own distribution", tok)
		}

		table, err := probtable.Build(shaper.Probs(full))
		if err != nil {
			return nil, fmt.Errorf("compressor: building probability table: %w", err)
		}
		enc.Encode(table.Cumulative, table.Denom, idx)
	}

	return enc.Flush(), nil
}

// Decompress replays bits through a range decoder driven by the model's
// own next-token distribution at each step — the model regenerates
// exactly the token sequence Compress consumed, because both sides see
// the same distributions in the same order. Generation stops at
// maxTokens, at an end-of-generation token, or once the decoder reports
// no bits remain (a corrupted stream should not hang).
func Decompress(ctx context.Context, a llm.Adapter, bits []bool, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	if err := a.SetPrompt(ctx, nil); err != nil {
		return "", fmt.Errorf("compressor: clear context: %w", err)
	}

	dec := rangecoder.NewDecoder(bits)
	var tokens []llm.Token

	for i := 0; i < maxTokens; i++ {
		if dec.IsDone() {
			break
		}

		dist, err := a.NextLogits(ctx)
		if err != nil {
			return "", fmt.Errorf("compressor: next logits: %w", err)
		}
		full := shaper.Softmax(llm.ToEntries(dist))

		table, err := probtable.Build(shaper.Probs(full))
		if err != nil {
			return "", fmt.Errorf("compressor: building probability table: %w", err)
		}

		idx := dec.Decode(table.Cumulative, table.Denom)
		tok := llm.Token(full[idx].ID)

		if a.IsEOG(tok) {
			break
		}
		if err := a.Push(ctx, tok); err != nil {
			return "", fmt.Errorf("compressor: pushing decoded token: %w", err)
		}
		tokens = append(tokens, tok)
	}

	return a.Detokenize(ctx, tokens)
}

func indexOfToken(entries []shaper.Entry, id int32) int {
	for i, e := range entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}
