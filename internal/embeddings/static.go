package embeddings

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jankowtf/wordstack/pkg/text"
)

// Static looks words up in a precomputed vocabulary. Misses resolve to the
// fallback row or to a shared zero vector and are never errors.
type Static struct {
	name      string
	id        uuid.UUID
	vocab     *Vocabulary
	lowercase bool
	fallback  text.Vector
	zero      text.Vector
	cache     *Cache
	logger    *slog.Logger
}

// NewStatic creates a static provider over vocab.
func NewStatic(name string, vocab *Vocabulary, opts ...Option) (*Static, error) {
	if name == "" {
		return nil, configErr(name, "provider name is empty")
	}
	if vocab == nil {
		return nil, configErr(name, "no vocabulary")
	}
	o := applyOptions(opts)

	id := uuid.New()
	s := &Static{
		name:      name,
		id:        id,
		vocab:     vocab,
		lowercase: o.lowercase,
		zero:      make(text.Vector, vocab.Dimension()),
		cache:     NewCache(name),
		logger:    o.logger.With("provider", name, "instance", id.String()),
	}
	if o.fallback != "" {
		row, ok := vocab.Lookup(o.fallback)
		if !ok {
			return nil, configErr(name, "fallback word %q not in vocabulary", o.fallback)
		}
		s.fallback = row
	}
	return s, nil
}

func (s *Static) Name() string   { return s.name }
func (s *Static) Dimension() int { return s.vocab.Dimension() }
func (s *Static) Kind() Kind     { return KindStatic }
func (s *Static) sealed()        {}

// InstanceID identifies this provider instance and its cache.
func (s *Static) InstanceID() uuid.UUID { return s.id }

// Vocabulary returns the underlying table.
func (s *Static) Vocabulary() *Vocabulary { return s.vocab }

// CacheStats reports the provider's cache effectiveness.
func (s *Static) CacheStats() CacheStats { return s.cache.Stats() }

// Normalize applies the provider's casing policy.
func (s *Static) Normalize(word string) string {
	if s.lowercase {
		return strings.ToLower(word)
	}
	return word
}

// Vector returns the vector for a single word.
func (s *Static) Vector(word string) text.Vector {
	key := s.Normalize(word)
	return s.cache.GetOrCompute(key, func() text.Vector {
		if v, ok := s.vocab.Lookup(key); ok {
			return v
		}
		if s.fallback != nil {
			return s.fallback
		}
		return s.zero
	})
}

// Embed implements Provider.
func (s *Static) Embed(ctx context.Context, sentences []*text.Sentence) (err error) {
	if len(sentences) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { observe(s, sentences, start, err) }()

	var errs []error
	for i, sent := range sentences {
		if err := ctx.Err(); err != nil {
			return err
		}
		if sent.Len() == 0 {
			errs = append(errs, emptySentence(s.name, i))
			continue
		}
		vecs := make([]text.Vector, sent.Len())
		for j, tok := range sent.Tokens {
			vecs[j] = s.Vector(tok.Text)
		}
		for j, tok := range sent.Tokens {
			tok.SetEmbedding(s.name, vecs[j])
		}
	}

	s.logger.Debug("embedded batch", "sentences", len(sentences), "cached_words", s.cache.Len())
	return errors.Join(errs...)
}
