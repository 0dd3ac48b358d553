// Package stego implements the steganographic codec: hiding an arbitrary
// byte message inside LLM-generated text by letting the hidden bits steer
// which, among several equally plausible next tokens, the model actually
// emits, then recovering the bits by replaying the same token-selection
// logic against the finished text.
//
// Two independent policies implement that idea, both present in the
// system this module is modeled on, and both kept here as an explicit
// choice rather than picking one:
//
//   - PolicyCodingWindow partitions the full vocabulary into disjoint
//     "coding windows" (see internal/shaper) and lets the hidden bits pick
//     which in-window token to emit, choosing among windows by what a
//     separate, prompt-aware context would have said anyway.
//   - PolicyAuxiliaryGate only hides bits at positions where a promptless
//     context and a fixed-topic auxiliary context agree closely enough
//     (measured by KL divergence); elsewhere it falls back to emitting
//     whatever the real prompt's context would say, unmodified.
package stego

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nkoppel/llama-cpp-steganography/internal/compressor"
	"github.com/nkoppel/llama-cpp-steganography/internal/framing"
	"github.com/nkoppel/llama-cpp-steganography/internal/llm"
	"github.com/nkoppel/llama-cpp-steganography/internal/shaper"
)

// ErrTokenNotInWindow is returned during decode when a carrier token does
// not belong to any coding window under the given filter parameters —
// almost always a sign the text was produced with different sampling
// parameters, a different policy, or a different model than the decoder
// is using.
var ErrTokenNotInWindow = errors.New("stego: token not in any coding window")

// ErrBudgetExhausted is returned when a message could not be fully hidden
// within Params.TokenCount generated tokens.
var ErrBudgetExhausted = errors.New("stego: payload did not fit within token budget")

// Policy selects which steganographic code path to use.
type Policy int

const (
	// PolicyCodingWindow is the coding-window partitioning policy.
	PolicyCodingWindow Policy = iota
	// PolicyAuxiliaryGate is the KL-divergence auxiliary-gate policy.
	PolicyAuxiliaryGate
)

func (p Policy) String() string {
	switch p {
	case PolicyCodingWindow:
		return "coding-window"
	case PolicyAuxiliaryGate:
		return "auxiliary-gate"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// auxPrompt is the fixed topic PolicyAuxiliaryGate measures divergence
// against: a context that talks about one thing regardless of the real
// prompt, so positions where the promptless channel agrees with it are
// positions where hiding a bit won't skew the topic.
const auxPrompt = "Write only about yoga. You are absolutely obsessed with yoga. " +
	"If you find yourself writing about something other than yoga, quickly change the topic back to yoga. " +
	"Yoga is love, yoga is life."

// Params configures an Encode/Decode call. Filter and SkipStart apply only
// to PolicyCodingWindow; Threshold applies only to PolicyAuxiliaryGate.
type Params struct {
	Policy     Policy
	Prompt     string
	TokenCount int
	SkipStart  int
	Filter     shaper.FilterParams
	Threshold  float64
}

// DefaultParams returns reasonable defaults for the coding-window policy.
func DefaultParams() Params {
	return Params{
		Policy:     PolicyCodingWindow,
		TokenCount: 512,
		SkipStart:  2,
		Filter:     shaper.FilterParams{MinP: 0.05, TopK: 40, Temp: 1.0},
		Threshold:  0.2,
	}
}

// EncodeMessage hides message in generated text continuing params.Prompt.
func EncodeMessage(ctx context.Context, normal llm.Adapter, message []byte, params Params, log zerolog.Logger) (string, error) {
	return encodeBits(ctx, normal, framing.MessageToBools(message), params, log)
}

// EncodeCompressed losslessly compresses plaintext against normal's own
// predictions, then hides the compressed bit stream — the compressed form
// is almost always far shorter than the raw UTF-8, so it fits in fewer
// carrier tokens.
func EncodeCompressed(ctx context.Context, normal llm.Adapter, plaintext string, params Params, log zerolog.Logger) (string, error) {
	bits, err := compressor.Compress(ctx, normal, plaintext)
	if err != nil {
		return "", fmt.Errorf("stego: compressing payload: %w", err)
	}
	log.Debug().
		Int("plaintext_bits", len(plaintext)*8).
		Int("compressed_bits", len(bits)).
		Msg("compressed payload before steganographic encoding")

	return encodeBits(ctx, normal, bits, params, log)
}

// DecodeMessage recovers a message previously hidden with EncodeMessage.
func DecodeMessage(ctx context.Context, adapter llm.Adapter, text string, params Params, log zerolog.Logger) ([]byte, error) {
	bits, err := decodeBits(ctx, adapter, text, params, log)
	if err != nil {
		return nil, err
	}
	return framing.MessageFromBools(bits), nil
}

// DecodeCompressed recovers and decompresses text previously produced by
// EncodeCompressed.
func DecodeCompressed(ctx context.Context, adapter llm.Adapter, text string, params Params, log zerolog.Logger) (string, error) {
	bits, err := decodeBits(ctx, adapter, text, params, log)
	if err != nil {
		return "", err
	}
	return compressor.Decompress(ctx, adapter, bits, 0)
}

func encodeBits(ctx context.Context, normal llm.Adapter, bits []bool, params Params, log zerolog.Logger) (string, error) {
	switch params.Policy {
	case PolicyCodingWindow:
		return encodeCodingWindow(ctx, normal, bits, params, log)
	case PolicyAuxiliaryGate:
		return encodeAuxiliaryGate(ctx, normal, bits, params, log)
	default:
		return "", fmt.Errorf("stego: unknown policy %v", params.Policy)
	}
}

func decodeBits(ctx context.Context, adapter llm.Adapter, text string, params Params, log zerolog.Logger) ([]bool, error) {
	switch params.Policy {
	case PolicyCodingWindow:
		return decodeCodingWindow(ctx, adapter, text, params, log)
	case PolicyAuxiliaryGate:
		return decodeAuxiliaryGate(ctx, adapter, text, params, log)
	default:
		return nil, fmt.Errorf("stego: unknown policy %v", params.Policy)
	}
}

// applyChatTemplateHack works around a quirk some chat templates have of
// trimming or collapsing whitespace at the very start of a rendered
// prompt: it renders the real turn twice, once behind one dummy
// user/assistant exchange and once behind two, and drops from the first
// render as many leading bytes as the second render grew by. What remains
// is the real turn's rendering (plus the open assistant turn) with the
// template's leading-whitespace trimming already accounted for.
func applyChatTemplateHack(ctx context.Context, a llm.Adapter, prompt string) (string, error) {
	dummyUser := llm.ChatMessage{Role: "user", Content: strings.Repeat("a", 32)}
	dummyAssistant := llm.ChatMessage{Role: "assistant", Content: strings.Repeat("a", 32)}
	user := llm.ChatMessage{Role: "user", Content: prompt}

	res1, err := a.ApplyChatTemplate(ctx, []llm.ChatMessage{dummyUser, dummyAssistant, user})
	if err != nil {
		return "", err
	}
	res2, err := a.ApplyChatTemplate(ctx, []llm.ChatMessage{dummyUser, dummyAssistant, dummyUser, dummyAssistant, user})
	if err != nil {
		return "", err
	}
	if len(res2) < len(res1) {
		return "", fmt.Errorf("stego: chat template did not grow with an extra dummy turn")
	}
	return res1[len(res2)-len(res1):], nil
}

func klDivergence(p, q []shaper.Entry) float64 {
	qByID := make(map[int32]float64, len(q))
	for _, e := range q {
		qByID[e.ID] = e.Logit
	}

	var out float64
	for _, e := range p {
		out += e.Prob * (e.Logit - qByID[e.ID])
	}
	return out
}

func indexOfEntry(entries []shaper.Entry, id int32) int {
	for i, e := range entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func findWindow(windows [][]shaper.Entry, id int32) (windowIdx, symbolIdx int) {
	for wi, w := range windows {
		if i := indexOfEntry(w, id); i >= 0 {
			return wi, i
		}
	}
	return -1, -1
}
