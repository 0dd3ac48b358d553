//go:build !llama_cgo

package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nkoppel/llama-cpp-steganography/internal/llm"
)

// loadModel is the stub used when the binary is built without the
// llama_cgo tag: there is no native llama.cpp to load a GGUF file
// against, so it reports how to get one instead of silently degrading.
func loadModel(_ zerolog.Logger, _ string, _ int, _ bool) (llm.Adapter, func(), error) {
	return nil, nil, fmt.Errorf("stegofer: built without llama.cpp support; rebuild with -tags llama_cgo and a built llama.cpp to use --model")
}
