package main

import (
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"nanochatd/internal/backend"
	"nanochatd/internal/config"
	"nanochatd/internal/registry"
)

// options carries the resolved configuration from the root command to the
// subcommands.
type options struct {
	getenv     func(string) string
	configPath string
	// flags holds flag values; unset flags stay zero so Merge skips them.
	flags     config.Config
	gpuLayers int

	cfg config.Config
	log zerolog.Logger

	// onListen is called with the bound address once serve is listening.
	onListen func(net.Addr)
}

func newRootCmd(getenv func(string) string) *cobra.Command {
	return newRootCmdWith(&options{getenv: getenv})
}

// newRootCmdWith builds the command tree around o.
func newRootCmdWith(o *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "nanochatd",
		Short:         "OpenAI-compatible chat completions from a local nanochat model",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.resolve(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "Config file (.yaml, .json, .toml); defaults NANOCHATD_CONFIG")
	pf.StringVar(&o.flags.LogLevel, "log-level", "", "Log level: trace|debug|info|warn|error (default info)")
	pf.StringVar(&o.flags.LogFormat, "log-format", "", "Log format: console|json (default console)")
	pf.StringVar(&o.flags.Backend, "backend", "", "Model backend: quantized|tensor (default quantized)")
	pf.StringVar(&o.flags.ModelID, "model-id", "", "Model name reported to clients (default nanochat)")
	pf.StringVar(&o.flags.ModelPath, "model-path", "", "Local .gguf or .onnx file; fetched from the hub when missing")
	pf.StringVar(&o.flags.ModelsDir, "models-dir", "", "Directory scanned for *.gguf files listed by /v1/models (default ~/models/llm)")
	pf.StringVar(&o.flags.CacheDir, "cache-dir", "", "Hub download cache (default ~/.cache/nanochatd)")
	pf.StringVar(&o.flags.HFRepo, "hf-repo", "", "Hugging Face repository (default sdobson/nanochat)")
	pf.StringVar(&o.flags.HFFile, "hf-file", "", "File within the repository (default depends on backend)")
	pf.StringVar(&o.flags.HFRev, "hf-revision", "", "Repository revision (default main)")

	root.AddCommand(newServeCmd(o), newDownloadCmd(o), newCacheCmd(o), newModelsCmd(o), newVersionCmd())
	return root
}

// resolve layers flags over environment over the config file over defaults.
func (o *options) resolve(cmd *cobra.Command) error {
	path := o.configPath
	if path == "" {
		path = o.getenv("NANOCHATD_CONFIG")
	}
	var file config.Config
	if path != "" {
		c, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		file = c
	}
	flags := o.flags
	if cmd.Flags().Changed("gpu-layers") {
		n := o.gpuLayers
		flags.GPULayers = &n
	}
	o.cfg = flags.Merge(envConfig(o.getenv)).Merge(file).Merge(config.Default())
	if _, ok := backend.ParseKind(o.cfg.Backend); !ok {
		return fmt.Errorf("unknown backend %q (want quantized or tensor)", o.cfg.Backend)
	}
	o.log = newLogger(cmd.ErrOrStderr(), o.cfg.LogLevel, o.cfg.LogFormat)
	return nil
}

// envConfig reads the NANOCHATD_* environment.
func envConfig(getenv func(string) string) config.Config {
	c := config.Config{
		Addr:               getenv("NANOCHATD_ADDR"),
		LogLevel:           getenv("NANOCHATD_LOG_LEVEL"),
		LogFormat:          getenv("NANOCHATD_LOG_FORMAT"),
		Backend:            getenv("NANOCHATD_BACKEND"),
		ModelPath:          getenv("NANOCHATD_MODEL_PATH"),
		ModelsDir:          getenv("NANOCHATD_MODELS_DIR"),
		CacheDir:           getenv("NANOCHATD_CACHE_DIR"),
		HFToken:            getenv("HF_TOKEN"),
		CORSAllowedOrigins: splitCSV(getenv("NANOCHATD_CORS_ORIGINS")),
	}
	switch strings.ToLower(getenv("NANOCHATD_LAZY_LOAD")) {
	case "1", "true", "yes":
		c.LazyLoad = true
	}
	c.CORSEnabled = len(c.CORSAllowedOrigins) > 0
	return c
}

func (o *options) kind() backend.Kind {
	k, _ := backend.ParseKind(o.cfg.Backend)
	return k
}

func (o *options) source() registry.Source {
	repo, file := o.cfg.HubSource()
	return registry.Source{Kind: o.kind(), LocalPath: o.cfg.ModelPath, RepoID: repo, File: file}
}

func (o *options) fetcher(progress bool) *registry.Fetcher {
	return registry.NewFetcher(registry.FetchOptions{
		CacheDir: o.cfg.CacheDir,
		Revision: o.cfg.HFRev,
		Token:    o.cfg.HFToken,
		Progress: progress,
		Logger:   o.log.With().Str("component", "fetch").Logger(),
	})
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }
