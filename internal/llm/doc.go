// Package llm defines the adapter boundary between the codec/compressor
// logic and a concrete language model backend. Two backends implement it:
// internal/llm/llamacpp (a cgo binding to llama.cpp, built with the
// llama_cgo tag) and internal/llm/llmtest (a deterministic pure-Go stub
// used by every test in this module that would otherwise need a real
// model and weights file on disk).
package llm

import (
	"context"

	"github.com/nkoppel/llama-cpp-steganography/internal/shaper"
)

// Token is a single vocabulary entry id.
type Token int32

// ChatMessage is one turn of a chat-formatted prompt.
type ChatMessage struct {
	Role    string
	Content string
}

// TokenLogit pairs a vocabulary token with its raw (pre-softmax) logit for
// the position the Adapter was last asked about.
type TokenLogit struct {
	Token Token
	Logit float64
}

// Adapter is everything the compressor and steganographic codec need from
// a language model: tokenization, incremental decoding, and the resulting
// next-token distribution. Implementations keep their own notion of
// "current context" (the sequence of tokens already pushed); SetPrompt
// reuses as much of any matching prefix as the backend can manage instead
// of always reprocessing from scratch.
type Adapter interface {
	// Tokenize converts text to tokens. addBOS controls whether a
	// beginning-of-sequence token is prepended.
	Tokenize(ctx context.Context, text string, addBOS bool) ([]Token, error)

	// Detokenize renders tokens back to text, repairing any invalid UTF-8
	// that results from a token boundary splitting a multi-byte codepoint.
	Detokenize(ctx context.Context, tokens []Token) (string, error)

	// ApplyChatTemplate renders messages using the model's chat template,
	// ending with an open assistant turn ready for generation.
	ApplyChatTemplate(ctx context.Context, messages []ChatMessage) (string, error)

	// SetPrompt makes tokens the adapter's current context, reusing any
	// common prefix with the context already loaded rather than
	// reprocessing everything.
	SetPrompt(ctx context.Context, tokens []Token) error

	// Push appends a single token to the current context.
	Push(ctx context.Context, token Token) error

	// NextLogits returns the full-vocabulary logit distribution for the
	// token that would follow the current context.
	NextLogits(ctx context.Context) ([]TokenLogit, error)

	// EOS returns the model's end-of-sequence token.
	EOS() Token

	// IsEOG reports whether t is any end-of-generation token (EOS or a
	// model-specific turn terminator such as a chat end-of-turn marker).
	IsEOG(t Token) bool

	// NewSibling returns a fresh, empty Adapter over the same underlying
	// model — no shared token history. The steganographic codec uses this
	// to run several independent contexts in lockstep (e.g. one primed
	// with the real prompt and one left empty), exactly as many distinct
	// empty contexts as it needs, never a snapshot of this one's tokens.
	NewSibling(ctx context.Context) (Adapter, error)

	// Tokens returns the current context, for diagnostics and for
	// reusing a prefix across SetPrompt calls.
	Tokens() []Token
}

// PushAll pushes tokens one at a time, recording the next-token
// distribution before each push. The returned slice has len(tokens)+1
// entries: the distribution before the first token, then the distribution
// after each push, mirroring generation where every token choice needs the
// distribution it was sampled from.
func PushAll(ctx context.Context, a Adapter, tokens []Token) ([][]TokenLogit, error) {
	out := make([][]TokenLogit, 0, len(tokens)+1)

	dist, err := a.NextLogits(ctx)
	if err != nil {
		return nil, err
	}
	out = append(out, dist)

	for _, t := range tokens {
		if err := a.Push(ctx, t); err != nil {
			return nil, err
		}
		dist, err := a.NextLogits(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, dist)
	}

	return out, nil
}

// ToEntries converts a raw logit distribution into shaper.Entry records,
// the form the compressor and steganographic codec actually operate on.
func ToEntries(dist []TokenLogit) []shaper.Entry {
	out := make([]shaper.Entry, len(dist))
	for i, d := range dist {
		out[i] = shaper.Entry{ID: int32(d.Token), Logit: d.Logit}
	}
	return out
}
