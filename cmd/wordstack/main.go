package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jankowtf/wordstack/internal/config"
	"github.com/jankowtf/wordstack/internal/embeddings"
)

// Build-time variables set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, cancel := signalContext()
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		printUsage(stdout)
		return nil
	}

	switch args[0] {
	case "embed":
		return runEmbed(ctx, args[1:], stdout)
	case "explore":
		return runExplore(ctx, args[1:])
	case "neighbors":
		return runNeighbors(ctx, args[1:], stdout)
	case "list":
		return runList(args[1:], stdout)
	case "resolve":
		return runResolve(args[1:], stdout)
	case "import":
		return runImport(ctx, args[1:], stdout)
	case "init-rnn":
		return runInitRNN(ctx, args[1:], stdout)
	case "config":
		return runConfigInit(stdout)
	case "version", "-v", "--version":
		fmt.Fprintf(stdout, "wordstack %s (commit: %s, built: %s)\n", version, commit, date)
		return nil
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	}
	return fmt.Errorf("unknown command %q (see 'wordstack help')", args[0])
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `wordstack - Stacked word embeddings

Usage:
  wordstack embed [options] [text]   Embed text and print token vectors
  wordstack explore [options]        Explore embeddings interactively
  wordstack neighbors <id> <word>    Print the nearest words of a static model
  wordstack list                     List registered models
  wordstack resolve <id>             Show the registry entry for an identifier
  wordstack import <in.txt> <out.db> Convert GloVe text vectors to a model file
  wordstack init-rnn <out.db>        Create a seeded character-level model file
  wordstack config                   Initialize config file
  wordstack version                  Show version info
  wordstack help                     Show this help

Embed options:
  -stack string      Comma-separated model identifiers (overrides config)
  -format string     Output format: json, csv or markdown (default json)
  -output string     Write to file instead of stdout
  -file string       Read text from a file (.pdf files are converted to text)
  -clipboard         Read text from the clipboard
  -lines             Treat every input line as one sentence

Examples:
  wordstack embed "The grass is green ."               # Embed with the configured stack
  wordstack embed -stack glove,news-forward "Hi ."    # Stack two models
  wordstack embed -file paper.pdf -format csv          # Embed a PDF as CSV
  wordstack neighbors -k 5 glove king                  # Five nearest words to king
  wordstack import -precision float16 glove.txt glove.db
  wordstack init-rnn -hidden 256 -seed 7 news-forward.db`)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadRegistry returns the built-in registry plus the custom entries named
// in the config.
func loadRegistry(cfg *config.Config, logger *slog.Logger) (*embeddings.Registry, error) {
	registry := embeddings.DefaultRegistry()
	if cfg.Models.RegistryFile != "" {
		n, err := registry.LoadFile(cfg.Models.RegistryFile)
		if err != nil {
			return nil, fmt.Errorf("loading registry file: %w", err)
		}
		logger.Debug("registered custom models", "file", cfg.Models.RegistryFile, "entries", n)
	}
	return registry, nil
}

func newLoader(cfg *config.Config, logger *slog.Logger) (*embeddings.Loader, error) {
	registry, err := loadRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := []embeddings.Option{
		embeddings.WithLogger(logger),
		embeddings.WithBatchSize(cfg.Embeddings.BatchSize),
	}
	if cfg.Embeddings.Lowercase {
		opts = append(opts, embeddings.WithLowercase())
	}
	return embeddings.NewLoader(registry, cfg.Models.Dir, opts...), nil
}

// loadProvider loads a single provider, or a stack when several ids are given.
func loadProvider(ctx context.Context, loader *embeddings.Loader, ids []string) (embeddings.Provider, error) {
	switch len(ids) {
	case 0:
		return nil, errors.New("no model identifiers given")
	case 1:
		return loader.Load(ctx, ids[0])
	}
	stack, err := loader.LoadStack(ctx, "stack", ids...)
	if err != nil {
		return nil, err
	}
	return stack, nil
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// serveMetrics exposes /metrics on addr until the returned stop func is
// called. An empty addr disables it.
func serveMetrics(addr string, logger *slog.Logger) (stop func()) {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func runConfigInit(stdout io.Writer) error {
	configPath, err := config.ConfigPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(stdout, "Config file already exists: %s\n", configPath)
		return nil
	}

	cfg := config.Default()
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Fprintf(stdout, "Config file created: %s\n", configPath)
	fmt.Fprintf(stdout, "Models directory: %s\n", cfg.Models.Dir)
	return nil
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}
