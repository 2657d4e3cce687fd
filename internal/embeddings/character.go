package embeddings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jankowtf/wordstack/internal/seqmodel"
	"github.com/jankowtf/wordstack/pkg/text"
)

// Character computes a vector per token from its characters alone: a forward
// and a backward recurrent cell read the token and their final states are
// concatenated. Parameters are trainable through Update, so vectors only
// repeat while parameters are unchanged.
type Character struct {
	name   string
	dim    int
	logger *slog.Logger

	mu      sync.RWMutex
	fwd     *seqmodel.RNN
	bwd     *seqmodel.RNN
	version uint64
}

// NewCharacter creates a character provider of the given even dimension.
func NewCharacter(name string, dimension int, opts ...Option) (*Character, error) {
	if name == "" {
		return nil, configErr(name, "provider name is empty")
	}
	if dimension <= 0 || dimension%2 != 0 {
		return nil, configErr(name, "dimension must be a positive even number, got %d", dimension)
	}
	o := applyOptions(opts)
	if o.alphabet == nil {
		o.alphabet = seqmodel.DefaultAlphabet()
	}

	cell := func(seed uint64) (*seqmodel.RNN, error) {
		return seqmodel.NewRNN(seqmodel.Config{
			Alphabet:   o.alphabet,
			HiddenSize: dimension / 2,
			EmbedDim:   o.charDim,
			Seed:       seed,
		})
	}
	fwd, err := cell(o.seed)
	if err != nil {
		return nil, &ConfigurationError{Provider: name, Reason: "creating forward cell", Err: err}
	}
	bwd, err := cell(o.seed + 1)
	if err != nil {
		return nil, &ConfigurationError{Provider: name, Reason: "creating backward cell", Err: err}
	}

	return &Character{
		name:   name,
		dim:    dimension,
		logger: o.logger.With("provider", name),
		fwd:    fwd,
		bwd:    bwd,
	}, nil
}

func (c *Character) Name() string   { return c.name }
func (c *Character) Dimension() int { return c.dim }
func (c *Character) Kind() Kind     { return KindCharacter }
func (c *Character) sealed()        {}

// Update lets a training loop modify the parameters of both cells. Embed
// calls are blocked while fn runs. fn must not change tensor shapes.
func (c *Character) Update(fn func(fwd, bwd *seqmodel.Params)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.fwd.Params(), c.bwd.Params())
	c.version++
}

// Version counts completed Update calls.
func (c *Character) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Vector computes the vector of a single word.
func (c *Character) Vector(word string) text.Vector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vector(word)
}

func (c *Character) vector(word string) text.Vector {
	seq := c.fwd.Encode(word)
	out := make(text.Vector, 0, c.dim)
	out = append(out, c.fwd.Final(seq, false)...)
	out = append(out, c.bwd.Final(seq, true)...)
	return out
}

// Embed implements Provider.
func (c *Character) Embed(ctx context.Context, sentences []*text.Sentence) (err error) {
	if len(sentences) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { observe(c, sentences, start, err) }()

	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs []error
	for i, sent := range sentences {
		if err := ctx.Err(); err != nil {
			return err
		}
		if sent.Len() == 0 {
			errs = append(errs, emptySentence(c.name, i))
			continue
		}
		vecs := make([]text.Vector, sent.Len())
		var bad *EmbeddingError
		for j, tok := range sent.Tokens {
			if tok.Text == "" {
				bad = &EmbeddingError{Provider: c.name, Sentence: i, Reason: fmt.Sprintf("token %d is empty", j)}
				break
			}
			vecs[j] = c.vector(tok.Text)
		}
		if bad != nil {
			errs = append(errs, bad)
			continue
		}
		for j, tok := range sent.Tokens {
			tok.SetEmbedding(c.name, vecs[j])
		}
	}

	c.logger.Debug("embedded batch", "sentences", len(sentences), "version", c.version)
	return errors.Join(errs...)
}
