package embeddings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/jankowtf/wordstack/internal/seqmodel"
	"github.com/jankowtf/wordstack/internal/store"
)

// Loader builds providers from registry identifiers. Vocabularies and
// sequence models are loaded once per source file and shared by every
// provider built from them.
type Loader struct {
	registry  *Registry
	modelsDir string
	opts      []Option
	logger    *slog.Logger

	mu     sync.Mutex
	vocabs map[string]*Vocabulary
	models map[string]seqmodel.Model
}

// NewLoader creates a loader. opts are passed to every provider it builds.
func NewLoader(registry *Registry, modelsDir string, opts ...Option) *Loader {
	o := applyOptions(opts)
	return &Loader{
		registry:  registry,
		modelsDir: modelsDir,
		opts:      opts,
		logger:    o.logger,
		vocabs:    make(map[string]*Vocabulary),
		models:    make(map[string]seqmodel.Model),
	}
}

// Registry returns the registry the loader resolves against.
func (l *Loader) Registry() *Registry { return l.registry }

// Load resolves id and builds its provider. No provider is returned on error.
func (l *Loader) Load(ctx context.Context, id string) (Provider, error) {
	entry, err := l.registry.Resolve(id)
	if err != nil {
		return nil, err
	}
	kind, err := ParseKind(entry.Source.Kind)
	if err != nil {
		return nil, &ConfigurationError{Provider: entry.ID, Reason: "invalid source", Err: err}
	}

	var p Provider
	switch kind {
	case KindStatic:
		p, err = nilIfErr(l.loadStatic(ctx, entry))
	case KindContextual:
		p, err = nilIfErr(l.loadContextual(ctx, entry))
	case KindCharacter:
		opts := append(l.providerOpts(), WithSeed(entry.Source.Seed))
		p, err = nilIfErr(NewCharacter(entry.ID, entry.Source.Dimension, opts...))
	default:
		err = configErr(entry.ID, "cannot load %s providers by identifier", kind)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// nilIfErr keeps a typed nil pointer from becoming a non-nil Provider.
func nilIfErr[P Provider](p P, err error) (Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

// LoadStack loads every id and stacks the providers under name.
func (l *Loader) LoadStack(ctx context.Context, name string, ids ...string) (*Stacked, error) {
	providers := make([]Provider, 0, len(ids))
	for _, id := range ids {
		p, err := l.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return NewStacked(name, providers, l.opts...)
}

func (l *Loader) providerOpts() []Option {
	return append([]Option(nil), l.opts...)
}

func (l *Loader) loadStatic(ctx context.Context, e Entry) (*Static, error) {
	vocab, err := l.vocabulary(ctx, e)
	if err != nil {
		return nil, err
	}
	if vocab.Dimension() != e.Source.Dimension {
		return nil, configErr(e.ID, "source has dimension %d, registry declares %d", vocab.Dimension(), e.Source.Dimension)
	}

	opts := l.providerOpts()
	if e.Source.Lowercase {
		opts = append(opts, WithLowercase())
	}
	if e.Source.Fallback != "" {
		opts = append(opts, WithFallback(e.Source.Fallback))
	}
	return NewStatic(e.ID, vocab, opts...)
}

func (l *Loader) loadContextual(ctx context.Context, e Entry) (*Contextual, error) {
	dir, err := ParseDirection(e.Source.Direction)
	if err != nil {
		return nil, &ConfigurationError{Provider: e.ID, Reason: "invalid source", Err: err}
	}
	model, err := l.sequenceModel(ctx, e)
	if err != nil {
		return nil, err
	}
	if model.HiddenSize() != e.Source.Dimension {
		return nil, configErr(e.ID, "model has hidden size %d, registry declares %d", model.HiddenSize(), e.Source.Dimension)
	}
	return NewContextual(e.ID, model, dir, l.providerOpts()...)
}

// ResolvePath maps a source path to a file, relative paths living under the
// models directory.
func (l *Loader) ResolvePath(path string) string {
	if filepath.IsAbs(path) || l.modelsDir == "" {
		return path
	}
	return filepath.Join(l.modelsDir, path)
}

func (l *Loader) vocabulary(ctx context.Context, e Entry) (*Vocabulary, error) {
	path := l.ResolvePath(e.Source.Path)
	precision, err := store.ParsePrecision(e.Source.Precision)
	if err != nil {
		return nil, &ConfigurationError{Provider: e.ID, Reason: "invalid source", Err: err}
	}
	key := e.Source.Format + ":" + string(precision) + ":" + path

	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.vocabs[key]; ok {
		return v, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &ConfigurationError{Provider: e.ID, Reason: "model file unavailable", Err: err}
	}

	var v *Vocabulary
	switch e.Source.Format {
	case FormatGloVe:
		v, err = readGloVeFile(path, precision)
	default:
		v, err = withStore(path, func(db *store.DB) (*Vocabulary, error) {
			v, err := LoadVocabulary(ctx, db)
			if err != nil || e.Source.Precision == "" || precision == v.Precision() {
				return v, err
			}
			return NewVocabulary(v.Words(), v.Rows(), precision)
		})
	}
	if err != nil {
		return nil, &ConfigurationError{Provider: e.ID, Reason: "loading vocabulary", Err: err}
	}

	l.vocabs[key] = v
	l.logger.Info("loaded vocabulary", "id", e.ID, "path", path, "words", v.Len(), "dimension", v.Dimension(), "precision", v.Precision())
	return v, nil
}

func (l *Loader) sequenceModel(ctx context.Context, e Entry) (seqmodel.Model, error) {
	path := l.ResolvePath(e.Source.Path)

	l.mu.Lock()
	defer l.mu.Unlock()
	if m, ok := l.models[path]; ok {
		return m, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &ConfigurationError{Provider: e.ID, Reason: "model file unavailable", Err: err}
	}

	m, err := withStore(path, func(db *store.DB) (*seqmodel.RNN, error) {
		return seqmodel.LoadRNN(ctx, db)
	})
	if err != nil {
		return nil, &ConfigurationError{Provider: e.ID, Reason: "loading sequence model", Err: err}
	}

	l.models[path] = m
	l.logger.Info("loaded sequence model", "id", e.ID, "path", path, "hidden", m.HiddenSize())
	return m, nil
}

func withStore[T any](path string, fn func(db *store.DB) (T, error)) (T, error) {
	var zero T
	db, err := store.OpenReadOnly(path)
	if err != nil {
		return zero, err
	}
	v, err := fn(db)
	if cerr := db.Close(); cerr != nil && err == nil {
		return zero, cerr
	}
	if err != nil {
		return zero, err
	}
	return v, nil
}

func readGloVeFile(path string, p store.Precision) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	v, err := ReadGloVe(f, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return v, nil
}

// IsConfigurationError reports whether err is or wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
