package stego

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nkoppel/llama-cpp-steganography/internal/llm"
	"github.com/nkoppel/llama-cpp-steganography/internal/probtable"
	"github.com/nkoppel/llama-cpp-steganography/internal/rangecoder"
	"github.com/nkoppel/llama-cpp-steganography/internal/shaper"
)

// encodeAuxiliaryGate runs three contexts in lockstep: steganographer and
// auxiliary (both promptless except auxiliary carries the fixed auxPrompt
// topic) decide, by their KL divergence, whether a position is safe to
// hide a bit in; normal (primed with the real prompt) supplies the token
// whenever it isn't.
func encodeAuxiliaryGate(ctx context.Context, normal llm.Adapter, bits []bool, params Params, log zerolog.Logger) (string, error) {
	steganographer, err := normal.NewSibling(ctx)
	if err != nil {
		return "", fmt.Errorf("stego: spawning steganographer context: %w", err)
	}
	auxiliary, err := normal.NewSibling(ctx)
	if err != nil {
		return "", fmt.Errorf("stego: spawning auxiliary context: %w", err)
	}

	auxTokens, err := auxiliary.Tokenize(ctx, auxPrompt, false)
	if err != nil {
		return "", fmt.Errorf("stego: tokenizing auxiliary prompt: %w", err)
	}
	if err := auxiliary.SetPrompt(ctx, auxTokens); err != nil {
		return "", fmt.Errorf("stego: priming auxiliary context: %w", err)
	}

	rendered, err := normal.ApplyChatTemplate(ctx, []llm.ChatMessage{{Role: "user", Content: params.Prompt}})
	if err != nil {
		return "", fmt.Errorf("stego: rendering prompt: %w", err)
	}
	promptTokens, err := normal.Tokenize(ctx, rendered, true)
	if err != nil {
		return "", fmt.Errorf("stego: tokenizing prompt: %w", err)
	}
	if err := normal.SetPrompt(ctx, promptTokens); err != nil {
		return "", fmt.Errorf("stego: setting prompt: %w", err)
	}

	dec := rangecoder.NewDecoder(bits)

	var out []llm.Token
	for i := 0; i < params.TokenCount; i++ {
		tok, err := stepAuxiliaryGate(ctx, steganographer, auxiliary, normal, dec, params.Threshold)
		if err != nil {
			return "", fmt.Errorf("stego: generating token %d: %w", i, err)
		}
		out = append(out, tok)
		if normal.IsEOG(tok) {
			break
		}
	}

	if !dec.IsDone() {
		return "", fmt.Errorf("%w: only encoded within %d tokens", ErrBudgetExhausted, params.TokenCount)
	}

	log.Debug().Int("tokens", len(out)).Str("policy", params.Policy.String()).Msg("steganographic encode complete")
	return normal.Detokenize(ctx, out)
}

// stepAuxiliaryGate is not guarded by dec.IsDone(): the decoder keeps
// yielding deterministic padding bits once its real bit stream is
// exhausted, so decoding past the end is harmless here, unlike the
// coding-window policy's per-step window search, which would otherwise do
// needless work once there is nothing left to hide.
func stepAuxiliaryGate(ctx context.Context, steganographer, auxiliary, normal llm.Adapter, dec *rangecoder.Decoder, threshold float64) (llm.Token, error) {
	stegDist, err := steganographer.NextLogits(ctx)
	if err != nil {
		return 0, err
	}
	auxDist, err := auxiliary.NextLogits(ctx)
	if err != nil {
		return 0, err
	}
	stegFull := shaper.Softmax(llm.ToEntries(stegDist))
	auxFull := shaper.Softmax(llm.ToEntries(auxDist))

	divergence := klDivergence(stegFull, auxFull)

	var tok llm.Token
	if divergence > threshold {
		tok, err = greedyToken(ctx, normal)
		if err != nil {
			return 0, err
		}
	} else {
		_, filtered := shaper.Shape(stegFull, shaper.FilterParams{MinP: 0.01})
		table, err := probtable.Build(shaper.Probs(filtered))
		if err != nil {
			return 0, err
		}
		idx := dec.Decode(table.Cumulative, table.Denom)
		tok = llm.Token(filtered[idx].ID)
	}

	if err := steganographer.Push(ctx, tok); err != nil {
		return 0, err
	}
	if err := auxiliary.Push(ctx, tok); err != nil {
		return 0, err
	}
	if err := normal.Push(ctx, tok); err != nil {
		return 0, err
	}
	return tok, nil
}

// decodeAuxiliaryGate recovers the hidden bit stream: it recomputes the
// same steganographer/auxiliary divergence at every position and only
// range-decodes the positions that would have been gated open.
func decodeAuxiliaryGate(ctx context.Context, adapter llm.Adapter, text string, params Params, log zerolog.Logger) ([]bool, error) {
	if err := adapter.SetPrompt(ctx, nil); err != nil {
		return nil, fmt.Errorf("stego: clearing context: %w", err)
	}
	tokens, err := adapter.Tokenize(ctx, text, false)
	if err != nil {
		return nil, fmt.Errorf("stego: tokenizing carrier text: %w", err)
	}

	auxiliary, err := adapter.NewSibling(ctx)
	if err != nil {
		return nil, fmt.Errorf("stego: spawning auxiliary context: %w", err)
	}
	auxTokens, err := auxiliary.Tokenize(ctx, auxPrompt, false)
	if err != nil {
		return nil, fmt.Errorf("stego: tokenizing auxiliary prompt: %w", err)
	}
	if err := auxiliary.SetPrompt(ctx, auxTokens); err != nil {
		return nil, fmt.Errorf("stego: priming auxiliary context: %w", err)
	}

	enc := rangecoder.NewEncoder()
	for _, tok := range tokens {
		stegDist, err := adapter.NextLogits(ctx)
		if err != nil {
			return nil, err
		}
		auxDist, err := auxiliary.NextLogits(ctx)
		if err != nil {
			return nil, err
		}
		stegFull := shaper.Softmax(llm.ToEntries(stegDist))
		auxFull := shaper.Softmax(llm.ToEntries(auxDist))

		divergence := klDivergence(stegFull, auxFull)

		if divergence <= params.Threshold {
			_, filtered := shaper.Shape(stegFull, shaper.FilterParams{MinP: 0.01})
			idx := indexOfEntry(filtered, int32(tok))
			if idx < 0 {
				return nil, fmt.Errorf("stego: token was filtered out of its own gated window")
			}
			table, err := probtable.Build(shaper.Probs(filtered))
			if err != nil {
				return nil, err
			}
			enc.Encode(table.Cumulative, table.Denom, idx)
		}

		if err := adapter.Push(ctx, tok); err != nil {
			return nil, err
		}
		if err := auxiliary.Push(ctx, tok); err != nil {
			return nil, err
		}
	}

	log.Debug().Int("tokens", len(tokens)).Msg("steganographic decode complete")
	return enc.Flush(), nil
}
