// Package embeddings attaches word vectors to sentences. Providers come in a
// closed set of variants: static lookup tables, contextual sequence models,
// trainable character features and stacks of other providers.
package embeddings

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jankowtf/wordstack/internal/metrics"
	"github.com/jankowtf/wordstack/internal/seqmodel"
	"github.com/jankowtf/wordstack/pkg/text"
)

// Kind identifies a provider variant.
type Kind int

const (
	KindStatic Kind = iota + 1
	KindContextual
	KindCharacter
	KindStacked
)

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindContextual:
		return "contextual"
	case KindCharacter:
		return "character"
	case KindStacked:
		return "stacked"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{KindStatic, KindContextual, KindCharacter, KindStacked} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown provider kind %q", s)
}

// Provider attaches a vector of Dimension() values under Name() to every
// token of every sentence passed to Embed.
//
// Embed mutates the sentences in place. Per-sentence failures are returned
// as *EmbeddingError values (joined with errors.Join when several sentences
// fail); the remaining sentences of the batch are still embedded. A
// *DimensionMismatchError is fatal.
type Provider interface {
	Name() string
	Dimension() int
	Kind() Kind
	Embed(ctx context.Context, sentences []*text.Sentence) error

	sealed()
}

// Direction selects the reading order of a contextual model.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// ParseDirection accepts "forward", "backward" or the empty string (forward).
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "", "forward":
		return Forward, nil
	case "backward":
		return Backward, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Option configures a provider. Options that do not apply to a variant are
// ignored.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	lowercase bool
	fallback  string
	batchSize int
	separator rune
	seed      uint64
	alphabet  *seqmodel.Alphabet
	charDim   int
}

func defaultOptions() options {
	return options{
		logger:    slog.Default(),
		batchSize: 32,
		separator: ' ',
		charDim:   25,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLowercase makes a static provider lower-case words before lookup.
func WithLowercase() Option {
	return func(o *options) { o.lowercase = true }
}

// WithFallback makes a static provider return the row of word for
// vocabulary misses instead of the zero vector.
func WithFallback(word string) Option {
	return func(o *options) { o.fallback = word }
}

// WithBatchSize sets how many sentences a contextual provider passes to its
// model per call.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

// WithSeparator sets the rune a contextual provider inserts between tokens.
func WithSeparator(r rune) Option {
	return func(o *options) { o.separator = r }
}

// WithSeed seeds the parameter initialisation of a character provider.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.seed = seed }
}

// WithAlphabet sets the symbol table of a character provider.
func WithAlphabet(a *seqmodel.Alphabet) Option {
	return func(o *options) { o.alphabet = a }
}

// WithCharDim sets the width of a character provider's per-character table.
func WithCharDim(n int) Option {
	return func(o *options) { o.charDim = n }
}

// tokenCount sums the tokens of sentences that carry a vector under name.
func tokenCount(sentences []*text.Sentence, name string) int {
	n := 0
	for _, s := range sentences {
		for _, t := range s.Tokens {
			if _, ok := t.Embedding(name); ok {
				n++
			}
		}
	}
	return n
}

// observe records metrics for one Embed call.
func observe(p Provider, sentences []*text.Sentence, start time.Time, err error) {
	metrics.ObserveEmbed(p.Name(), p.Kind().String(), tokenCount(sentences, p.Name()), start, err)
}

func emptySentence(provider string, i int) *EmbeddingError {
	return &EmbeddingError{Provider: provider, Sentence: i, Reason: "sentence has no tokens"}
}
