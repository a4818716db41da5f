package config

import "strings"

// Hub defaults per backend.
const (
	DefaultQuantizedRepo = "sdobson/nanochat"
	DefaultQuantizedFile = "nanochat-q4_k_m.gguf"
	DefaultTensorRepo    = "sdobson/nanochat"
	DefaultTensorFile    = "onnx/model.onnx"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:                ":8090",
		LogLevel:            "info",
		LogFormat:           "console",
		Backend:             "quantized",
		ModelID:             "nanochat",
		ModelsDir:           "~/models/llm",
		CacheDir:            "~/.cache/nanochatd",
		HFRev:               "main",
		Device:              "auto",
		MaxSeqLen:           2048,
		ContextSize:         2048,
		MaxQueueDepth:       32,
		MaxWaitSeconds:      30,
		InferTimeoutSeconds: 0,
		MaxBodyBytes:        1 << 20,
		CORSAllowedMethods:  []string{"GET", "POST", "OPTIONS"},
		CORSAllowedHeaders:  []string{"Content-Type", "Authorization", "X-Log-Level"},
	}
}

// Merge returns c with every unspecified field taken from base.
func (c Config) Merge(base Config) Config {
	str := func(v *string, b string) {
		if strings.TrimSpace(*v) == "" {
			*v = b
		}
	}
	num := func(v *int, b int) {
		if *v == 0 {
			*v = b
		}
	}
	str(&c.Addr, base.Addr)
	str(&c.LogLevel, base.LogLevel)
	str(&c.LogFormat, base.LogFormat)
	str(&c.Backend, base.Backend)
	str(&c.ModelID, base.ModelID)
	str(&c.ModelPath, base.ModelPath)
	str(&c.ModelsDir, base.ModelsDir)
	str(&c.CacheDir, base.CacheDir)
	str(&c.HFRepo, base.HFRepo)
	str(&c.HFFile, base.HFFile)
	str(&c.HFRev, base.HFRev)
	str(&c.HFToken, base.HFToken)
	str(&c.Device, base.Device)
	num(&c.MaxSeqLen, base.MaxSeqLen)
	num(&c.ContextSize, base.ContextSize)
	num(&c.Threads, base.Threads)
	num(&c.Workers, base.Workers)
	num(&c.MaxQueueDepth, base.MaxQueueDepth)
	num(&c.MaxWaitSeconds, base.MaxWaitSeconds)
	num(&c.InferTimeoutSeconds, base.InferTimeoutSeconds)
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = base.MaxBodyBytes
	}
	if c.GPULayers == nil {
		c.GPULayers = base.GPULayers
	}
	c.LazyLoad = c.LazyLoad || base.LazyLoad
	c.CORSEnabled = c.CORSEnabled || base.CORSEnabled
	if len(c.CORSAllowedOrigins) == 0 {
		c.CORSAllowedOrigins = base.CORSAllowedOrigins
	}
	if len(c.CORSAllowedMethods) == 0 {
		c.CORSAllowedMethods = base.CORSAllowedMethods
	}
	if len(c.CORSAllowedHeaders) == 0 {
		c.CORSAllowedHeaders = base.CORSAllowedHeaders
	}
	return c
}

// HubSource returns the repo and file to fetch for the configured backend,
// falling back to the per-backend defaults.
func (c Config) HubSource() (repo, file string) {
	repo, file = c.HFRepo, c.HFFile
	tensor := c.Backend == "tensor" || c.Backend == "onnx" || c.Backend == "gomlx"
	if repo == "" {
		repo = DefaultQuantizedRepo
		if tensor {
			repo = DefaultTensorRepo
		}
	}
	if file == "" {
		file = DefaultQuantizedFile
		if tensor {
			file = DefaultTensorFile
		}
	}
	return repo, file
}
