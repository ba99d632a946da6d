package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"chatd/internal/config"
	"chatd/internal/httpapi"
	"chatd/internal/manager"
	"chatd/internal/registry"
	"chatd/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath  string
		logLevel string
		cfg      config.Config
	)
	root := &cobra.Command{
		Use:           "chatd",
		Short:         "Chat session daemon with token-budgeted context and memory-watched backends",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath != "" {
				fileCfg, err := config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				mergeConfig(&cfg, fileCfg, cmd)
			}
			return run(cfg, logLevel)
		},
	}
	fl := root.Flags()
	fl.StringVar(&cfgPath, "config", "", "Path to config file (.yaml, .json or .toml)")
	fl.StringVar(&logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fl.StringVar(&cfg.Addr, "addr", ":8090", "HTTP listen address")
	fl.StringVar(&cfg.ModelsDir, "models-dir", "~/models/llm", "Directory to scan for *.gguf model files")
	fl.StringVar(&cfg.ChatsDir, "chats-dir", store.DefaultDir, "Directory for persisted chat transcripts")
	fl.StringVar(&cfg.DefaultModel, "default-model", "", "Default model id when request omits model")
	fl.IntVar(&cfg.TokenBudget, "token-budget", 0, "Context token budget per session (0=default)")
	fl.IntVar(&cfg.ProtectedTail, "protected-tail", 0, "Recent turns protected from truncation (0=default)")
	fl.BoolVar(&cfg.PreferSummarize, "prefer-summarize", false, "Summarize history before dropping turns")
	fl.IntVar(&cfg.WarnThresholdMB, "warn-threshold-mb", 0, "GPU memory growth warning threshold in MB (0=off)")
	fl.IntVar(&cfg.CleanupThresholdMB, "cleanup-threshold-mb", 0, "GPU memory growth cleanup threshold in MB (0=off)")
	fl.Float64Var(&cfg.SampleIntervalSeconds, "sample-interval", 0, "Memory sampling interval in seconds (0=default)")
	fl.Float64Var(&cfg.SampleTimeoutSeconds, "sample-timeout", 0, "Memory sampling timeout in seconds (0=default)")
	fl.Float64Var(&cfg.TerminateTimeoutSeconds, "terminate-timeout", 0, "Graceful stop window before SIGKILL, in seconds (0=default)")
	fl.BoolVar(&cfg.BlockOnBusy, "block-on-busy", false, "Queue prompts behind an in-flight one instead of rejecting")
	fl.BoolVar(&cfg.KeepPartialOnCancel, "keep-partial-on-cancel", false, "Keep partial completions when a stream is canceled")
	fl.StringVar(&cfg.LlamaBin, "llama-bin", "", "Path to llama-server; empty uses the in-process runtime")
	fl.StringVar(&cfg.LlamaHost, "llama-host", "", "Host to bind spawned llama-server processes")
	fl.IntVar(&cfg.LlamaPortStart, "llama-port-start", 0, "Start of spawn port range")
	fl.IntVar(&cfg.LlamaPortEnd, "llama-port-end", 0, "End of spawn port range")
	fl.IntVar(&cfg.LlamaCtxSize, "llama-ctx-size", 0, "Context size passed to llama-server")
	fl.IntVar(&cfg.LlamaThreads, "llama-threads", 0, "Threads passed to llama-server")
	return root
}

// mergeConfig fills cfg from the file for every flag the user did not set on
// the command line. Explicit flags win over the file.
func mergeConfig(cfg *config.Config, file config.Config, cmd *cobra.Command) {
	set := func(name string) bool { return cmd.Flags().Changed(name) }
	if !set("addr") && file.Addr != "" {
		cfg.Addr = file.Addr
	}
	if !set("models-dir") && file.ModelsDir != "" {
		cfg.ModelsDir = file.ModelsDir
	}
	if !set("chats-dir") && file.ChatsDir != "" {
		cfg.ChatsDir = file.ChatsDir
	}
	if !set("default-model") && file.DefaultModel != "" {
		cfg.DefaultModel = file.DefaultModel
	}
	if !set("token-budget") && file.TokenBudget != 0 {
		cfg.TokenBudget = file.TokenBudget
	}
	if !set("protected-tail") && file.ProtectedTail != 0 {
		cfg.ProtectedTail = file.ProtectedTail
	}
	if !set("prefer-summarize") {
		cfg.PreferSummarize = cfg.PreferSummarize || file.PreferSummarize
	}
	if !set("warn-threshold-mb") && file.WarnThresholdMB != 0 {
		cfg.WarnThresholdMB = file.WarnThresholdMB
	}
	if !set("cleanup-threshold-mb") && file.CleanupThresholdMB != 0 {
		cfg.CleanupThresholdMB = file.CleanupThresholdMB
	}
	if !set("sample-interval") && file.SampleIntervalSeconds != 0 {
		cfg.SampleIntervalSeconds = file.SampleIntervalSeconds
	}
	if !set("sample-timeout") && file.SampleTimeoutSeconds != 0 {
		cfg.SampleTimeoutSeconds = file.SampleTimeoutSeconds
	}
	if !set("terminate-timeout") && file.TerminateTimeoutSeconds != 0 {
		cfg.TerminateTimeoutSeconds = file.TerminateTimeoutSeconds
	}
	if !set("block-on-busy") {
		cfg.BlockOnBusy = cfg.BlockOnBusy || file.BlockOnBusy
	}
	if !set("keep-partial-on-cancel") {
		cfg.KeepPartialOnCancel = cfg.KeepPartialOnCancel || file.KeepPartialOnCancel
	}
	if !set("llama-bin") && file.LlamaBin != "" {
		cfg.LlamaBin = file.LlamaBin
	}
	if !set("llama-host") && file.LlamaHost != "" {
		cfg.LlamaHost = file.LlamaHost
	}
	if !set("llama-port-start") && file.LlamaPortStart != 0 {
		cfg.LlamaPortStart = file.LlamaPortStart
	}
	if !set("llama-port-end") && file.LlamaPortEnd != 0 {
		cfg.LlamaPortEnd = file.LlamaPortEnd
	}
	if !set("llama-ctx-size") && file.LlamaCtxSize != 0 {
		cfg.LlamaCtxSize = file.LlamaCtxSize
	}
	if !set("llama-threads") && file.LlamaThreads != 0 {
		cfg.LlamaThreads = file.LlamaThreads
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Str("svc", "chatd").Logger()
}

func run(cfg config.Config, logLevel string) error {
	log := newLogger(logLevel)

	reg, err := registry.LoadDir(cfg.ModelsDir)
	if err != nil {
		return fmt.Errorf("load models: %w", err)
	}
	st, err := store.New(cfg.ChatsDir)
	if err != nil {
		return fmt.Errorf("open chat store: %w", err)
	}

	mgr := manager.NewWithConfig(manager.Config{
		Registry:              reg,
		DefaultModel:          cfg.DefaultModel,
		TokenBudget:           cfg.TokenBudget,
		ProtectedTail:         cfg.ProtectedTail,
		PreferSummarize:       cfg.PreferSummarize,
		WarnThresholdBytes:    uint64(cfg.WarnThresholdMB) << 20,
		CleanupThresholdBytes: uint64(cfg.CleanupThresholdMB) << 20,
		SampleInterval:        secondsToDuration(cfg.SampleIntervalSeconds),
		SampleTimeout:         secondsToDuration(cfg.SampleTimeoutSeconds),
		TerminateTimeout:      secondsToDuration(cfg.TerminateTimeoutSeconds),
		BlockOnBusy:           cfg.BlockOnBusy,
		KeepPartialOnCancel:   cfg.KeepPartialOnCancel,
		LlamaBin:              cfg.LlamaBin,
		LlamaHost:             cfg.LlamaHost,
		LlamaPortStart:        cfg.LlamaPortStart,
		LlamaPortEnd:          cfg.LlamaPortEnd,
		LlamaCtx:              cfg.LlamaCtxSize,
		LlamaThreads:          cfg.LlamaThreads,
		Logger:                &log,
		Store:                 st,
	})

	// Handlers observe shutdown through the base context.
	baseCtx, baseCancel := context.WithCancel(context.Background())
	defer baseCancel()
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetLogger(log)

	mux := httpapi.NewMux(mgr)
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		log.Info().Str("addr", cfg.Addr).Str("models_dir", cfg.ModelsDir).Int("models", len(reg)).Msg("chatd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM): stop accepting requests, then
	// sweep every session so no backend process outlives the daemon.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutdown signal received")
	baseCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	mgr.Close(ctx)
	log.Info().Msg("chatd stopped")
	return nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
