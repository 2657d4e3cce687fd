package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/jankowtf/wordstack/internal/embeddings"
	"github.com/jankowtf/wordstack/internal/seqmodel"
	"github.com/jankowtf/wordstack/internal/store"
)

func runList(args []string, stdout io.Writer) error {
	fs := newFlagSet("list")
	kind := fs.String("kind", "", "Only list models of this kind: static, contextual, character")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	registry, err := loadRegistry(cfg, cfg.Logger(os.Stderr))
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tDIM\tLANG\tALIASES")
	for _, e := range registry.Entries() {
		if *kind != "" && e.Source.Kind != *kind {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", e.ID, e.Source.Kind, e.Source.Dimension, e.Language, strings.Join(e.Aliases, ","))
	}
	return tw.Flush()
}

func runResolve(args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: wordstack resolve <id>")
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

	entry, err := loader.Registry().Resolve(args[0])
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(entry)
	if err != nil {
		return err
	}
	stdout.Write(data)

	if entry.Source.Path != "" {
		path := loader.ResolvePath(entry.Source.Path)
		status := "available"
		if _, err := os.Stat(path); err != nil {
			status = "missing"
		}
		fmt.Fprintf(stdout, "# file: %s (%s)\n", path, status)
	}
	return nil
}

func runImport(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("import")
	precision := fs.String("precision", "", "Storage precision: float32 or float16 (default from config)")
	force := fs.Bool("force", false, "Replace an existing output file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("usage: wordstack import [-precision float16] [-force] <vectors.txt> <out.db>")
	}
	in, out := fs.Arg(0), fs.Arg(1)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if *precision == "" {
		*precision = cfg.Embeddings.Precision
	}
	p, err := store.ParsePrecision(*precision)
	if err != nil {
		return err
	}

	f, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("opening vectors: %w", err)
	}
	defer f.Close()

	vocab, err := embeddings.ReadGloVe(f, p)
	if err != nil {
		return fmt.Errorf("reading %s: %w", in, err)
	}

	db, err := createStore(out, *force)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := embeddings.SaveVocabulary(ctx, db, vocab); err != nil {
		return fmt.Errorf("saving vocabulary: %w", err)
	}

	fmt.Fprintf(stdout, "Imported %d words (%d dimensions, %s) to %s\n", vocab.Len(), vocab.Dimension(), vocab.Precision(), out)
	return nil
}

func runInitRNN(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("init-rnn")
	hidden := fs.Int("hidden", 256, "Hidden state size (the embedding dimension)")
	embedDim := fs.Int("embed", 16, "Character embedding size")
	minContext := fs.Int("min-context", 1, "Minimum input length in characters")
	seed := fs.Uint64("seed", 1, "Weight initialisation seed")
	precision := fs.String("precision", "float32", "Storage precision: float32 or float16")
	force := fs.Bool("force", false, "Replace an existing output file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: wordstack init-rnn [-hidden N] [-seed N] [-force] <out.db>")
	}
	out := fs.Arg(0)

	p, err := store.ParsePrecision(*precision)
	if err != nil {
		return err
	}
	model, err := seqmodel.NewRNN(seqmodel.Config{
		HiddenSize: *hidden,
		EmbedDim:   *embedDim,
		MinContext: *minContext,
		Seed:       *seed,
	})
	if err != nil {
		return err
	}

	db, err := createStore(out, *force)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := model.Save(ctx, db, p); err != nil {
		return fmt.Errorf("saving model: %w", err)
	}

	fmt.Fprintf(stdout, "Created %s model with hidden size %d (seed %d) at %s\n", seqmodel.KindRNN, model.HiddenSize(), *seed, out)
	return nil
}

// createStore opens a new model file at path. An existing file is an error
// unless force is set, in which case it is replaced.
func createStore(path string, force bool) (*store.DB, error) {
	if _, err := os.Stat(path); err == nil {
		if !force {
			return nil, fmt.Errorf("%s already exists (use -force to replace it)", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, err
		}
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("creating model file: %w", err)
	}
	return db, nil
}
