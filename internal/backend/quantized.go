package backend

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// QuantizedOptions configure the quantized backend.
type QuantizedOptions struct {
	Path        string
	ContextSize int
	Threads     int
	// GPULayers is the number of layers offloaded to the accelerator. A
	// negative value selects the platform default.
	GPULayers int
}

// DefaultGPULayers offloads everything on Apple silicon and nothing
// elsewhere.
func DefaultGPULayers() int {
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return 999
	}
	return 0
}

func (o QuantizedOptions) gpuLayers() int {
	if o.GPULayers < 0 {
		return DefaultGPULayers()
	}
	return o.GPULayers
}

func (o QuantizedOptions) contextSize(md *GGUFMetadata) int {
	if o.ContextSize > 0 {
		return o.ContextSize
	}
	if n := md.ContextLength(); n > 0 && n < 4096 {
		return n
	}
	return 2048
}

func (o QuantizedOptions) threads() int {
	if o.Threads > 0 {
		return o.Threads
	}
	return runtime.NumCPU()
}

func quantizedDevice(gpuLayers int) string {
	if gpuLayers <= 0 {
		return "cpu"
	}
	if runtime.GOOS == "darwin" {
		return "metal"
	}
	return "cuda"
}

// LoadQuantized validates the GGUF file at opts.Path and opens it with the
// llama runtime. Missing or malformed files fail with ModelLoadError before
// the runtime is touched.
func LoadQuantized(opts QuantizedOptions) (Streamer, Info, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, Info{}, &ModelLoadError{Reason: "model path is empty"}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, Info{}, &ModelLoadError{Path: path, Reason: "model file missing", Err: err}
	}
	md, err := ReadGGUFMetadata(path)
	if err != nil {
		return nil, Info{}, &ModelLoadError{Path: path, Reason: "malformed GGUF", Err: err}
	}
	vocab := NewVocab(md)
	if vocab.Size() == 0 {
		return nil, Info{}, &ModelLoadError{Path: path, Reason: "GGUF has no tokenizer vocabulary"}
	}
	layers := opts.gpuLayers()
	rt, err := openLlama(path, opts.contextSize(md), opts.threads(), layers, vocab)
	if err != nil {
		return nil, Info{}, err
	}
	info := Info{
		Kind:      KindQuantized,
		Name:      filepath.Base(path),
		Path:      path,
		Device:    quantizedDevice(layers),
		VocabSize: vocab.Size(),
		EOS:       md.EOSTokenID(),
		Tokenizer: vocab,
	}
	return rt, info, nil
}
