// Package llmtest provides a deterministic, pure-Go llm.Adapter for tests:
// no weights file, no cgo, no randomness. Its vocabulary is simply the 256
// byte values plus BOS/EOS. Tokenize/Detokenize round-trip exactly for
// valid UTF-8 text; Detokenize drops BOS/EOS and replaces invalid UTF-8
// byte sequences with U+FFFD, so arbitrary token sequences do not
// round-trip. Its next-token distribution is a pure (if meaningless)
// function of the last pushed token, so two Adapters whose contexts end
// on the same token always agree on it — exactly the property the
// range-coded codec depends on.
package llmtest

import (
	"context"
	"strings"

	"github.com/nkoppel/llama-cpp-steganography/internal/llm"
	"github.com/nkoppel/llama-cpp-steganography/internal/utf8repair"
)

// VocabSize is 256 byte values plus BOS and EOS.
const VocabSize = 258

// BOSToken and EOSToken sit just past the 256 byte-value tokens.
const (
	BOSToken llm.Token = 256
	EOSToken llm.Token = 257
)

// Adapter is the stub llm.Adapter. The zero value is ready to use.
type Adapter struct {
	tokens []llm.Token
}

// New returns an empty Adapter.
func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Tokenize(_ context.Context, text string, addBOS bool) ([]llm.Token, error) {
	b := []byte(text)
	out := make([]llm.Token, 0, len(b)+1)
	if addBOS {
		out = append(out, BOSToken)
	}
	for _, c := range b {
		out = append(out, llm.Token(c))
	}
	return out, nil
}

func (a *Adapter) Detokenize(_ context.Context, tokens []llm.Token) (string, error) {
	buf := make([]byte, 0, len(tokens))
	for _, t := range tokens {
		if t == BOSToken || t == EOSToken {
			continue
		}
		buf = append(buf, byte(t))
	}
	return utf8repair.Lossy(buf), nil
}

// ApplyChatTemplate renders a minimal, deterministic chat format good
// enough to exercise prompt construction in tests: one line per message,
// ending with an open assistant turn.
func (a *Adapter) ApplyChatTemplate(_ context.Context, messages []llm.ChatMessage) (string, error) {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString("<|")
		sb.WriteString(m.Role)
		sb.WriteString("|>\n")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("<|assistant|>\n")
	return sb.String(), nil
}

func (a *Adapter) SetPrompt(ctx context.Context, tokens []llm.Token) error {
	n := commonPrefixLen(a.tokens, tokens)
	a.tokens = append(a.tokens[:0:0], a.tokens[:n]...)
	for _, t := range tokens[n:] {
		if err := a.Push(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) Push(_ context.Context, token llm.Token) error {
	a.tokens = append(a.tokens, token)
	return nil
}

// NextLogits derives a logit for every vocabulary entry from a hash of the
// last pushed token (if any) plus the candidate id. It carries no
// linguistic meaning, but it is a pure function of the context, which is
// all the codec actually requires.
func (a *Adapter) NextLogits(_ context.Context) ([]llm.TokenLogit, error) {
	var last []llm.Token
	if n := len(a.tokens); n > 0 {
		last = a.tokens[n-1:]
	}
	h := hashTokens(last)

	out := make([]llm.TokenLogit, VocabSize)
	for id := 0; id < VocabSize; id++ {
		x := splitmix64(h ^ uint64(id)*0x9E3779B97F4A7C15)
		logit := float64(x%100003)/100003.0*10.0 - 5.0
		out[id] = llm.TokenLogit{Token: llm.Token(id), Logit: logit}
	}
	return out, nil
}

func (a *Adapter) EOS() llm.Token { return EOSToken }

func (a *Adapter) IsEOG(t llm.Token) bool { return t == EOSToken }

// NewSibling returns a brand new, empty stub Adapter. The stub has no
// separate "model" object to share, so this is just New(); it carries
// none of a's token history, matching the real backend's partial_clone
// semantics (a fresh context, not a copy of the current one).
func (a *Adapter) NewSibling(_ context.Context) (llm.Adapter, error) {
	return New(), nil
}

func (a *Adapter) Tokens() []llm.Token { return a.tokens }

func commonPrefixLen(a, b []llm.Token) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// hashTokens is an FNV-1a style fold of the token sequence into a single
// 64-bit seed.
func hashTokens(tokens []llm.Token) uint64 {
	const offset = 14695981039346656037
	const prime = 1099511628211

	h := uint64(offset)
	for _, t := range tokens {
		h ^= uint64(uint32(t))
		h *= prime
	}
	return h
}

// splitmix64 is the standard SplitMix64 finalizer, used here purely as a
// deterministic bit mixer.
func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}
