//go:build !llama

package backend

// QuantizedBuilt reports whether this binary includes the llama runtime.
const QuantizedBuilt = false

// openLlama is reached only after the GGUF file validated, so the error
// names the build rather than the file.
func openLlama(path string, ctxSize, threads, gpuLayers int, vocab *Vocab) (Streamer, error) {
	return nil, &ModelLoadError{Path: path, Reason: "llama support not built (missing 'llama' build tag)"}
}
