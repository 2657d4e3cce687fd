package embeddings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jankowtf/wordstack/internal/seqmodel"
	"github.com/jankowtf/wordstack/pkg/text"
)

// Contextual runs a character sequence model over whole sentences and takes
// each token's vector from the model state at one of its characters:
// the last character when reading forward, the first when reading backward.
// Separator positions never belong to a token.
type Contextual struct {
	name      string
	model     seqmodel.Model
	direction Direction
	batchSize int
	separator rune
	logger    *slog.Logger
}

// NewContextual creates a contextual provider over model.
func NewContextual(name string, model seqmodel.Model, direction Direction, opts ...Option) (*Contextual, error) {
	if name == "" {
		return nil, configErr(name, "provider name is empty")
	}
	if model == nil {
		return nil, configErr(name, "no sequence model")
	}
	if model.HiddenSize() <= 0 {
		return nil, configErr(name, "model hidden size %d", model.HiddenSize())
	}
	if direction != Forward && direction != Backward {
		return nil, configErr(name, "invalid direction %d", int(direction))
	}
	o := applyOptions(opts)
	if o.batchSize <= 0 {
		return nil, configErr(name, "batch size must be positive, got %d", o.batchSize)
	}

	return &Contextual{
		name:      name,
		model:     model,
		direction: direction,
		batchSize: o.batchSize,
		separator: o.separator,
		logger:    o.logger.With("provider", name, "direction", direction.String()),
	}, nil
}

func (c *Contextual) Name() string   { return c.name }
func (c *Contextual) Dimension() int { return c.model.HiddenSize() }
func (c *Contextual) Kind() Kind     { return KindContextual }
func (c *Contextual) sealed()        {}

// Direction returns the reading order of the model.
func (c *Contextual) Direction() Direction { return c.direction }

// pending is a sentence accepted for a model call.
type pending struct {
	sentence *text.Sentence
	symbols  []int
	anchors  []int // State position per token
}

// prepare joins the tokens of s and computes the anchor position of each.
func (c *Contextual) prepare(i int, s *text.Sentence) (*pending, *EmbeddingError) {
	if s.Len() == 0 {
		return nil, emptySentence(c.name, i)
	}

	var b strings.Builder
	anchors := make([]int, s.Len())
	pos := 0
	for j, tok := range s.Tokens {
		n := utf8.RuneCountInString(tok.Text)
		if n == 0 {
			return nil, &EmbeddingError{Provider: c.name, Sentence: i, Reason: fmt.Sprintf("token %d is empty", j)}
		}
		if j > 0 {
			b.WriteRune(c.separator)
			pos++
		}
		b.WriteString(tok.Text)
		if c.direction == Forward {
			anchors[j] = pos + n - 1
		} else {
			anchors[j] = pos
		}
		pos += n
	}

	symbols := c.model.Encode(b.String())
	if len(symbols) != pos {
		return nil, &EmbeddingError{Provider: c.name, Sentence: i, Reason: fmt.Sprintf("model encoded %d characters as %d symbols", pos, len(symbols))}
	}
	if need := c.model.MinContext(); pos < need {
		return nil, &EmbeddingError{Provider: c.name, Sentence: i, Reason: fmt.Sprintf("sentence has %d characters, model needs at least %d", pos, need)}
	}
	return &pending{sentence: s, symbols: symbols, anchors: anchors}, nil
}

// Embed implements Provider.
func (c *Contextual) Embed(ctx context.Context, sentences []*text.Sentence) (err error) {
	if len(sentences) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { observe(c, sentences, start, err) }()

	var errs []error
	accepted := make([]*pending, 0, len(sentences))
	for i, s := range sentences {
		p, perr := c.prepare(i, s)
		if perr != nil {
			errs = append(errs, perr)
			continue
		}
		accepted = append(accepted, p)
	}

	for lo := 0; lo < len(accepted); lo += c.batchSize {
		hi := min(lo+c.batchSize, len(accepted))
		if err := c.embedBatch(ctx, accepted[lo:hi]); err != nil {
			return err
		}
	}

	c.logger.Debug("embedded batch", "sentences", len(sentences), "accepted", len(accepted), "model_calls", (len(accepted)+c.batchSize-1)/c.batchSize)
	return errors.Join(errs...)
}

func (c *Contextual) embedBatch(ctx context.Context, batch []*pending) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	input := make([][]int, len(batch))
	for b, p := range batch {
		input[b] = p.symbols
	}

	states, err := c.model.States(ctx, input, c.direction == Backward)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%s: running sequence model: %w", c.name, err)
	}
	if len(states) != len(batch) {
		return &DimensionMismatchError{Provider: c.name, Constituent: "model batch", Want: len(batch), Got: len(states)}
	}

	dim := c.Dimension()
	for b, p := range batch {
		if len(states[b]) != len(p.symbols) {
			return &DimensionMismatchError{Provider: c.name, Constituent: "model positions", Want: len(p.symbols), Got: len(states[b])}
		}
		vecs := make([]text.Vector, len(p.anchors))
		for j, pos := range p.anchors {
			h := states[b][pos]
			if len(h) != dim {
				return &DimensionMismatchError{Provider: c.name, Want: dim, Got: len(h)}
			}
			vecs[j] = text.Vector(h).Clone()
		}
		for j, tok := range p.sentence.Tokens {
			tok.SetEmbedding(c.name, vecs[j])
		}
	}
	return nil
}
