package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jankowtf/wordstack/internal/embeddings"
	"github.com/jankowtf/wordstack/internal/neighbors"
	"github.com/jankowtf/wordstack/internal/tui"
)

func runNeighbors(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("neighbors")
	k := fs.Int("k", 10, "Number of neighbours")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("usage: wordstack neighbors [-k N] <id> <word>")
	}
	id, word := fs.Arg(0), fs.Arg(1)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := cfg.Logger(os.Stderr)
	loader, err := newLoader(cfg, logger)
	if err != nil {
		return err
	}

	static, idx, err := staticIndex(ctx, loader, id, logger)
	if err != nil {
		return err
	}
	if !static.Vocabulary().Contains(static.Normalize(word)) {
		return fmt.Errorf("%q is not in the %s vocabulary", word, static.Name())
	}

	results, err := nearestWords(static, idx)(word, *k)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tWORD\tSIMILARITY")
	for i, r := range results {
		fmt.Fprintf(tw, "%d\t%s\t%.4f\n", i+1, r.Word, r.Similarity)
	}
	return tw.Flush()
}

func runExplore(ctx context.Context, args []string) error {
	fs := newFlagSet("explore")
	stack := fs.String("stack", "", "Comma-separated model identifiers (overrides config)")
	neighborsID := fs.String("neighbors", "", "Static model for nearest-word lookups (default: first static model of the stack)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := cfg.Logger(os.Stderr)
	loader, err := newLoader(cfg, logger)
	if err != nil {
		return err
	}

	ids := cfg.Embeddings.Stack
	if *stack != "" {
		ids = splitIDs(*stack)
	}
	p, err := loadProvider(ctx, loader, ids)
	if err != nil {
		return err
	}

	var nf tui.NeighborFunc
	id := *neighborsID
	if id == "" {
		id = firstStatic(loader.Registry(), ids)
	}
	if id != "" {
		static, idx, err := staticIndex(ctx, loader, id, logger)
		if err != nil {
			return err
		}
		nf = nearestWords(static, idx)
	}

	stop := serveMetrics(cfg.Metrics.Addr, logger)
	defer stop()

	program := tea.NewProgram(tui.New(p, nf), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running explorer: %w", err)
	}
	return nil
}

// firstStatic returns the first id that resolves to a static model.
func firstStatic(r *embeddings.Registry, ids []string) string {
	for _, id := range ids {
		if e, err := r.Resolve(id); err == nil && e.Source.Kind == embeddings.KindStatic.String() {
			return id
		}
	}
	return ""
}

// staticIndex loads the static model id and its neighbour index. A graph
// saved next to the model file is reused, otherwise one is built and saved.
func staticIndex(ctx context.Context, loader *embeddings.Loader, id string, logger *slog.Logger) (*embeddings.Static, *neighbors.Index, error) {
	p, err := loader.Load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	static, ok := p.(*embeddings.Static)
	if !ok {
		return nil, nil, fmt.Errorf("%s is a %s model, nearest words need a static model", p.Name(), p.Kind())
	}

	entry, err := loader.Registry().Resolve(id)
	if err != nil {
		return nil, nil, err
	}
	path := loader.ResolvePath(entry.Source.Path) + ".graph"

	idx, err := neighbors.Open(path)
	switch {
	case err == nil && idx.Dimension() == static.Dimension():
		logger.Debug("opened neighbour index", "id", entry.ID, "path", path, "words", idx.Len())
		return static, idx, nil
	case err != nil && !errors.Is(err, neighbors.ErrNoIndex):
		logger.Warn("rebuilding unreadable neighbour index", "path", path, "error", err)
	}

	vocab := static.Vocabulary()
	logger.Info("building neighbour index", "id", entry.ID, "words", vocab.Len())
	idx, err = neighbors.Build(path, vocab.Words(), vocab.Rows())
	if err != nil {
		return nil, nil, fmt.Errorf("building neighbour index: %w", err)
	}
	if err := idx.Save(); err != nil {
		logger.Warn("could not save neighbour index", "path", path, "error", err)
	}
	return static, idx, nil
}

func nearestWords(static *embeddings.Static, idx *neighbors.Index) tui.NeighborFunc {
	return func(word string, k int) ([]neighbors.Result, error) {
		return idx.Nearest(static.Normalize(word), static.Vector(word), k)
	}
}
