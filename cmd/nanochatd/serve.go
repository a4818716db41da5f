package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"nanochatd/internal/httpapi"
	"nanochatd/internal/manager"
	"nanochatd/internal/registry"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the model and serve the HTTP API",
		Example: "  nanochatd serve --addr :8090\n" +
			"  nanochatd serve --backend tensor --device cuda\n" +
			"  nanochatd serve --config nanochatd.yaml --lazy-load",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return o.serve(ctx)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.flags.Addr, "addr", "", "HTTP listen address (default :8090)")
	f.BoolVar(&o.flags.LazyLoad, "lazy-load", false, "Load the model on the first request instead of at startup")
	f.StringVar(&o.flags.Device, "device", "", "Tensor backend device: auto|cpu|cuda (default auto)")
	f.IntVar(&o.flags.MaxSeqLen, "max-seq-len", 0, "Tensor backend context window (default 2048)")
	f.IntVar(&o.flags.ContextSize, "context-size", 0, "Quantized backend context size (default 2048)")
	f.IntVar(&o.flags.Threads, "threads", 0, "Quantized backend threads (default: number of CPUs)")
	f.IntVar(&o.gpuLayers, "gpu-layers", -1, "Layers offloaded to the GPU (default: 999 on Apple silicon, else 0)")
	f.IntVar(&o.flags.Workers, "workers", 0, "Concurrent generations (default: number of CPUs)")
	f.IntVar(&o.flags.MaxQueueDepth, "max-queue-depth", 0, "Requests allowed to wait for a slot (default 32)")
	f.IntVar(&o.flags.MaxWaitSeconds, "max-wait-seconds", 0, "Seconds a request may wait before 429 (default 30)")
	f.IntVar(&o.flags.InferTimeoutSeconds, "infer-timeout-seconds", 0, "Per-generation timeout in seconds (0 disables)")
	f.Int64Var(&o.flags.MaxBodyBytes, "max-body-bytes", 0, "Maximum chat request body size (default 1MiB)")
	f.BoolVar(&o.flags.CORSEnabled, "cors", false, "Enable CORS")
	f.StringSliceVar(&o.flags.CORSAllowedOrigins, "cors-origins", nil, "Allowed CORS origins (default *)")
	return cmd
}

// managerConfig wires the loader and queue settings from the resolved config.
func (o *options) managerConfig() manager.ManagerConfig {
	cfg := o.cfg
	gpu := -1
	if cfg.GPULayers != nil {
		gpu = *cfg.GPULayers
	}
	reg, err := registry.LoadDir(cfg.ModelsDir)
	if err != nil {
		o.log.Warn().Err(err).Str("dir", cfg.ModelsDir).Msg("models dir not listed")
	}
	loader := manager.NewLoader(manager.LoadOptions{
		Kind:        o.kind(),
		Fetcher:     o.fetcher(false),
		Source:      o.source(),
		Device:      cfg.Device,
		MaxSeqLen:   cfg.MaxSeqLen,
		ContextSize: cfg.ContextSize,
		Threads:     cfg.Threads,
		GPULayers:   gpu,
		Logger:      o.log,
	})
	return manager.ManagerConfig{
		ModelID:       cfg.ModelID,
		Kind:          o.kind(),
		Registry:      reg,
		Loader:        loader,
		LazyLoad:      cfg.LazyLoad,
		Workers:       cfg.Workers,
		MaxQueueDepth: cfg.MaxQueueDepth,
		MaxWait:       seconds(cfg.MaxWaitSeconds),
		InferTimeout:  seconds(cfg.InferTimeoutSeconds),
		Logger:        o.log,
		Publisher:     manager.NewLogPublisher(o.log),
	}
}

func (o *options) serve(ctx context.Context) error {
	cfg := o.cfg
	mgr := manager.NewWithConfig(o.managerConfig())

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetLogger(o.log.With().Str("component", "http").Logger())
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSAllowedOrigins, cfg.CORSAllowedMethods, cfg.CORSAllowedHeaders)
	httpapi.SetVersion(version)
	httpapi.SetBaseContext(baseCtx)

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = mgr.Close()
		return err
	}
	srv := &http.Server{Handler: httpapi.NewMux(mgr), ReadHeaderTimeout: 10 * time.Second}
	mgr.Start(baseCtx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	o.log.Info().Str("addr", ln.Addr().String()).Str("backend", string(o.kind())).
		Str("model", cfg.ModelID).Bool("lazy_load", cfg.LazyLoad).Msg("nanochatd listening")
	if o.onListen != nil {
		o.onListen(ln.Addr())
	}

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = mgr.Close()
			return err
		}
	case <-ctx.Done():
	}

	o.log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		// streams still open; end them in-band and drop the connections
		o.log.Warn().Err(err).Msg("graceful shutdown incomplete")
		cancelBase()
		_ = srv.Close()
	}
	cancelBase()
	return mgr.Close()
}
