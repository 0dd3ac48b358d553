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

// encodeCodingWindow generates up to params.TokenCount tokens continuing
// params.Prompt, hiding bits in the choice among coding windows of a
// second, promptless context that tracks the same token sequence.
func encodeCodingWindow(ctx context.Context, normal llm.Adapter, bits []bool, params Params, log zerolog.Logger) (string, error) {
	stenographer, err := normal.NewSibling(ctx)
	if err != nil {
		return "", fmt.Errorf("stego: spawning stenographer context: %w", err)
	}

	rendered, err := applyChatTemplateHack(ctx, normal, params.Prompt)
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
		tok, err := stepCodingWindow(ctx, normal, stenographer, dec, i, params)
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

// stepCodingWindow picks and emits one token, pushing it to both normal
// and stenographer. Tokens before params.SkipStart fall back to the
// prompt-aware context's own greedy choice and are still pushed to both.
// Once the decoder is out of bits, tokens are likewise greedy but go to
// normal only, leaving stenographer untouched — there is no more
// information left to hide through it.
func stepCodingWindow(ctx context.Context, normal, stenographer llm.Adapter, dec *rangecoder.Decoder, pos int, params Params) (llm.Token, error) {
	if pos < params.SkipStart {
		tok, err := greedyToken(ctx, normal)
		if err != nil {
			return 0, err
		}
		if err := normal.Push(ctx, tok); err != nil {
			return 0, err
		}
		if err := stenographer.Push(ctx, tok); err != nil {
			return 0, err
		}
		return tok, nil
	}

	if dec.IsDone() {
		tok, err := greedyToken(ctx, normal)
		if err != nil {
			return 0, err
		}
		if err := normal.Push(ctx, tok); err != nil {
			return 0, err
		}
		return tok, nil
	}

	normalDist, err := normal.NextLogits(ctx)
	if err != nil {
		return 0, err
	}
	normalLogitByID := make(map[int32]float64, len(normalDist))
	for _, d := range normalDist {
		normalLogitByID[int32(d.Token)] = d.Logit
	}

	stegDist, err := stenographer.NextLogits(ctx)
	if err != nil {
		return 0, err
	}
	full, filtered := shaper.Shape(llm.ToEntries(stegDist), params.Filter)
	windows := shaper.CodingWindows(full, filtered)

	bestWindow := -1
	bestLogit := 0.0
	for wi, w := range windows {
		table, err := probtable.Build(shaper.Probs(w))
		if err != nil {
			return 0, err
		}
		symIdx := dec.SelectedSymbol(table.Cumulative, table.Denom)
		logit := normalLogitByID[w[symIdx].ID]
		if bestWindow == -1 || logit > bestLogit {
			bestWindow, bestLogit = wi, logit
		}
	}
	if bestWindow == -1 {
		return 0, fmt.Errorf("no coding windows available")
	}

	window := windows[bestWindow]
	table, err := probtable.Build(shaper.Probs(window))
	if err != nil {
		return 0, err
	}
	symIdx := dec.Decode(table.Cumulative, table.Denom)
	tok := llm.Token(window[symIdx].ID)

	if err := normal.Push(ctx, tok); err != nil {
		return 0, err
	}
	if err := stenographer.Push(ctx, tok); err != nil {
		return 0, err
	}
	return tok, nil
}

func greedyToken(ctx context.Context, a llm.Adapter) (llm.Token, error) {
	dist, err := a.NextLogits(ctx)
	if err != nil {
		return 0, err
	}
	full := shaper.Softmax(llm.ToEntries(dist))
	return llm.Token(full[0].ID), nil
}

// decodeCodingWindow recovers the hidden bit stream from previously
// generated text. It replays the same promptless context the encoder's
// stenographer used — text alone is enough to reconstruct it, since it
// never depended on the real prompt.
func decodeCodingWindow(ctx context.Context, adapter llm.Adapter, text string, params Params, log zerolog.Logger) ([]bool, error) {
	if err := adapter.SetPrompt(ctx, nil); err != nil {
		return nil, fmt.Errorf("stego: clearing context: %w", err)
	}

	tokens, err := adapter.Tokenize(ctx, text, false)
	if err != nil {
		return nil, fmt.Errorf("stego: tokenizing carrier text: %w", err)
	}

	enc := rangecoder.NewEncoder()
	for i, tok := range tokens {
		if i < params.SkipStart {
			if err := adapter.Push(ctx, tok); err != nil {
				return nil, err
			}
			continue
		}

		dist, err := adapter.NextLogits(ctx)
		if err != nil {
			return nil, err
		}
		full, filtered := shaper.Shape(llm.ToEntries(dist), params.Filter)
		windows := shaper.CodingWindows(full, filtered)

		widx, symIdx := findWindow(windows, int32(tok))
		if widx < 0 {
			return nil, fmt.Errorf("%w: position %d", ErrTokenNotInWindow, i)
		}

		table, err := probtable.Build(shaper.Probs(windows[widx]))
		if err != nil {
			return nil, err
		}
		enc.Encode(table.Cumulative, table.Denom, symIdx)

		if err := adapter.Push(ctx, tok); err != nil {
			return nil, err
		}
	}

	log.Debug().Int("tokens", len(tokens)).Msg("steganographic decode complete")
	return enc.Flush(), nil
}
