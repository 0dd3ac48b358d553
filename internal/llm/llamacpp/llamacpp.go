//go:build llama_cgo

// Package llamacpp implements llm.Adapter over llama.cpp via cgo. It is
// only built with the llama_cgo tag, the same way the teacher repo gates
// its libopus reference comparisons behind cgo_libopus: a real model file
// and a built llama.cpp are both required, neither of which belong in a
// default `go build`/`go test` run.
package llamacpp

/*
#cgo CFLAGS: -I${SRCDIR}/../../../tmp_llama/include
#cgo LDFLAGS: -L${SRCDIR}/../../../tmp_llama/lib -lllama -lggml -lm -lstdc++

#include <stdlib.h>
#include "llama.h"

static struct llama_token_data_array llm_go_candidates(float *logits, int32_t n_vocab, llama_token_data *buf) {
	for (int32_t i = 0; i < n_vocab; i++) {
		buf[i].id = i;
		buf[i].logit = logits[i];
		buf[i].p = 0.0f;
	}
	struct llama_token_data_array arr = { buf, (size_t)n_vocab, -1, false };
	return arr;
}
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/nkoppel/llama-cpp-steganography/internal/llm"
	"github.com/nkoppel/llama-cpp-steganography/internal/utf8repair"
)

// Model owns a loaded llama.cpp model and backend handle. Close it when
// done; every Adapter spawned from it must be closed first.
type Model struct {
	log   zerolog.Logger
	model *C.struct_llama_model
	vocab *C.struct_llama_vocab
	nCtx  int
}

var backendOnce sync.Once

// Load reads a GGUF model file from disk and initializes the llama.cpp
// backend the first time it is called per process. nGPULayers mirrors the
// reference tool's --gpu flag (0 keeps every layer on the CPU).
func Load(log zerolog.Logger, path string, nCtx, nGPULayers int) (*Model, error) {
	backendOnce.Do(func() {
		C.llama_backend_init()
	})

	params := C.llama_model_default_params()
	params.n_gpu_layers = C.int32_t(nGPULayers)
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	m := C.llama_model_load_from_file(cPath, params)
	if m == nil {
		return nil, fmt.Errorf("llamacpp: failed to load model %q", path)
	}

	return &Model{
		log:   log,
		model: m,
		vocab: C.llama_model_get_vocab(m),
		nCtx:  nCtx,
	}, nil
}

// Close frees the underlying llama.cpp model.
func (m *Model) Close() {
	if m.model == nil {
		return
	}
	C.llama_model_free(m.model)
	m.model = nil
}

// NewAdapter creates a fresh generation context over the model, with its
// own KV cache and token history, ready to satisfy llm.Adapter.
func (m *Model) NewAdapter() (*Adapter, error) {
	cp := C.llama_context_default_params()
	cp.n_ctx = C.uint32_t(m.nCtx)
	cp.n_batch = C.uint32_t(m.nCtx)

	ctx := C.llama_init_from_model(m.model, cp)
	if ctx == nil {
		return nil, fmt.Errorf("llamacpp: failed to create context")
	}

	return &Adapter{model: m, ctx: ctx}, nil
}

// Adapter implements llm.Adapter against one llama.cpp context (one
// sequence's KV cache).
type Adapter struct {
	model  *Model
	ctx    *C.struct_llama_context
	tokens []llm.Token
}

func (a *Adapter) Tokenize(_ context.Context, text string, addBOS bool) ([]llm.Token, error) {
	cText := C.CString(text)
	defer C.free(unsafe.Pointer(cText))

	// First call with a nil buffer to learn how many tokens are needed;
	// llama_tokenize returns the negated count in that case.
	n := C.llama_tokenize(a.model.vocab, cText, C.int32_t(len(text)), nil, 0, C.bool(addBOS), true)
	if n >= 0 {
		return nil, nil
	}
	n = -n

	buf := make([]C.llama_token, n)
	got := C.llama_tokenize(a.model.vocab, cText, C.int32_t(len(text)), &buf[0], n, C.bool(addBOS), true)
	if got < 0 {
		return nil, fmt.Errorf("llamacpp: tokenize failed")
	}

	out := make([]llm.Token, got)
	for i := range out {
		out[i] = llm.Token(buf[i])
	}
	return out, nil
}

func (a *Adapter) Detokenize(_ context.Context, tokens []llm.Token) (string, error) {
	var buf [8192]C.char
	toks := make([]C.llama_token, len(tokens))
	for i, t := range tokens {
		toks[i] = C.llama_token(t)
	}

	var ptr *C.llama_token
	if len(toks) > 0 {
		ptr = &toks[0]
	}
	n := C.llama_detokenize(a.model.vocab, ptr, C.int32_t(len(toks)), &buf[0], C.int32_t(len(buf)), false, true)
	if n < 0 {
		return "", fmt.Errorf("llamacpp: detokenize buffer too small")
	}
	return utf8repair.Lossy([]byte(C.GoStringN(&buf[0], n))), nil
}

func (a *Adapter) ApplyChatTemplate(_ context.Context, messages []llm.ChatMessage) (string, error) {
	tmplPtr := C.llama_model_chat_template(a.model.model, nil)

	cMsgs := make([]C.struct_llama_chat_message, len(messages))
	cStrs := make([]*C.char, 0, len(messages)*2)
	defer func() {
		for _, s := range cStrs {
			C.free(unsafe.Pointer(s))
		}
	}()

	for i, m := range messages {
		role := C.CString(m.Role)
		content := C.CString(m.Content)
		cStrs = append(cStrs, role, content)
		cMsgs[i] = C.struct_llama_chat_message{role: role, content: content}
	}

	var buf [16384]C.char
	n := C.llama_chat_apply_template(tmplPtr, &cMsgs[0], C.size_t(len(cMsgs)), true, &buf[0], C.int32_t(len(buf)))
	if n < 0 {
		return "", fmt.Errorf("llamacpp: chat template rendering failed")
	}
	return C.GoStringN(&buf[0], n), nil
}

// SetPrompt reuses the longest common prefix between the requested tokens
// and the context's current history, rolling the KV cache back to that
// point instead of reprocessing the whole prompt — the same idea as the
// reference implementation's context-reuse step. When tokens is a strict
// prefix of the history, its last token is re-pushed so the next logits
// belong to it rather than to the discarded tail.
func (a *Adapter) SetPrompt(ctx context.Context, tokens []llm.Token) error {
	n := commonPrefixLen(a.tokens, tokens)
	if n == len(tokens) && n < len(a.tokens) && n > 0 {
		n--
	}

	C.llama_kv_self_seq_rm(a.ctx, 0, C.int32_t(n), -1)
	a.tokens = a.tokens[:n]

	for _, t := range tokens[n:] {
		if err := a.Push(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) Push(_ context.Context, token llm.Token) error {
	batch := C.llama_batch_init(1, 0, 1)
	defer C.llama_batch_free(batch)

	pos := C.int32_t(len(a.tokens))
	seq := C.llama_seq_id(0)

	*batch.token = C.llama_token(token)
	*batch.pos = pos
	*batch.n_seq_id = 1
	*(*C.llama_seq_id)(unsafe.Pointer(*batch.seq_id)) = seq
	*batch.logits = 1
	batch.n_tokens = 1

	if rc := C.llama_decode(a.ctx, batch); rc != 0 {
		return fmt.Errorf("llamacpp: llama_decode failed (%d)", int(rc))
	}

	a.tokens = append(a.tokens, token)
	return nil
}

func (a *Adapter) NextLogits(_ context.Context) ([]llm.TokenLogit, error) {
	nVocab := int32(C.llama_vocab_n_tokens(a.model.vocab))

	logits := C.llama_get_logits_ith(a.ctx, -1)
	if logits == nil {
		return nil, fmt.Errorf("llamacpp: no logits available")
	}

	slice := unsafe.Slice((*C.float)(logits), nVocab)
	out := make([]llm.TokenLogit, nVocab)
	for i := int32(0); i < nVocab; i++ {
		out[i] = llm.TokenLogit{Token: llm.Token(i), Logit: float64(slice[i])}
	}
	return out, nil
}

func (a *Adapter) EOS() llm.Token {
	return llm.Token(C.llama_vocab_eos(a.model.vocab))
}

func (a *Adapter) IsEOG(t llm.Token) bool {
	return bool(C.llama_vocab_is_eog(a.model.vocab, C.llama_token(t)))
}

// NewSibling mirrors the reference implementation's partial_clone: a
// brand new context over the same model, starting empty — never a copy
// of this adapter's current token history.
func (a *Adapter) NewSibling(_ context.Context) (llm.Adapter, error) {
	return a.model.NewAdapter()
}

func (a *Adapter) Tokens() []llm.Token { return a.tokens }

// Close frees the adapter's llama.cpp context. It does not free the
// backing Model.
func (a *Adapter) Close() {
	if a.ctx == nil {
		return
	}
	C.llama_free(a.ctx)
	a.ctx = nil
}

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
