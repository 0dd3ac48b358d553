//go:build llama_cgo

package main

import (
	"github.com/rs/zerolog"

	"github.com/nkoppel/llama-cpp-steganography/internal/llm"
	"github.com/nkoppel/llama-cpp-steganography/internal/llm/llamacpp"
)

// loadModel loads a real GGUF model through the llama.cpp cgo binding. Only
// built with the llama_cgo tag, the same way the teacher gates its
// libopus reference comparisons behind cgo_libopus.
func loadModel(log zerolog.Logger, path string, nCtx int, gpu bool) (llm.Adapter, func(), error) {
	nGPULayers := 0
	if gpu {
		nGPULayers = 1000
	}
	model, err := llamacpp.Load(log, path, nCtx, nGPULayers)
	if err != nil {
		return nil, nil, err
	}
	adapter, err := model.NewAdapter()
	if err != nil {
		model.Close()
		return nil, nil, err
	}
	return adapter, func() { adapter.Close(); model.Close() }, nil
}
