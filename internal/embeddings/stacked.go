package embeddings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jankowtf/wordstack/pkg/text"
)

// Stacked concatenates the vectors of an ordered list of providers. It is a
// Provider itself, so stacks nest.
type Stacked struct {
	name      string
	providers []Provider
	dim       int
	logger    *slog.Logger
}

// NewStacked creates a composer over providers, in order. Constituent names,
// including those inside nested composers, must be unique and differ from name.
func NewStacked(name string, providers []Provider, opts ...Option) (*Stacked, error) {
	if name == "" {
		return nil, configErr(name, "provider name is empty")
	}
	if len(providers) == 0 {
		return nil, configErr(name, "no constituent providers")
	}

	seen := map[string]bool{name: true}
	dim := 0
	for i, p := range providers {
		if p == nil {
			return nil, configErr(name, "constituent %d is nil", i)
		}
		for _, n := range providerNames(p) {
			if seen[n] {
				return nil, configErr(name, "duplicate provider name %q", n)
			}
			seen[n] = true
		}
		dim += p.Dimension()
	}

	o := applyOptions(opts)
	list := make([]Provider, len(providers))
	copy(list, providers)
	return &Stacked{
		name:      name,
		providers: list,
		dim:       dim,
		logger:    o.logger.With("provider", name),
	}, nil
}

// providerNames returns the name of p followed by the names of every provider
// nested inside it.
func providerNames(p Provider) []string {
	names := []string{p.Name()}
	if s, ok := p.(*Stacked); ok {
		for _, c := range s.providers {
			names = append(names, providerNames(c)...)
		}
	}
	return names
}

func (s *Stacked) Name() string   { return s.name }
func (s *Stacked) Dimension() int { return s.dim }
func (s *Stacked) Kind() Kind     { return KindStacked }
func (s *Stacked) sealed()        {}

// Providers returns the constituents in order.
func (s *Stacked) Providers() []Provider {
	out := make([]Provider, len(s.providers))
	copy(out, s.providers)
	return out
}

// Embed implements Provider. Constituent vectors stay attached under their
// own names next to the combined vector.
func (s *Stacked) Embed(ctx context.Context, sentences []*text.Sentence) (err error) {
	if len(sentences) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { observe(s, sentences, start, err) }()

	names := make([]string, 0, len(s.providers)+1)
	names = append(names, s.name)
	for _, p := range s.providers {
		names = append(names, p.Name())
	}
	for _, sent := range sentences {
		sent.ClearEmbeddings(names...)
	}

	var errs []error
	for _, p := range s.providers {
		err := p.Embed(ctx, sentences)
		if err == nil {
			continue
		}
		if !IsEmbeddingError(err) {
			return err
		}
		errs = append(errs, err)
	}

	combined := 0
	for i, sent := range sentences {
		if sent.Len() == 0 {
			continue
		}
		vecs, err := s.combine(i, sent)
		if err != nil {
			var dm *DimensionMismatchError
			if errors.As(err, &dm) {
				return err
			}
			errs = append(errs, err)
			continue
		}
		if vecs == nil {
			continue
		}
		for j, tok := range sent.Tokens {
			tok.SetEmbedding(s.name, vecs[j])
		}
		combined++
	}

	s.logger.Debug("embedded batch", "sentences", len(sentences), "combined", combined)
	return errors.Join(errs...)
}

// combine concatenates the constituent vectors of every token of sent. It
// returns nil vectors when a constituent already reported the sentence.
func (s *Stacked) combine(i int, sent *text.Sentence) ([]text.Vector, error) {
	vecs := make([]text.Vector, sent.Len())
	for j, tok := range sent.Tokens {
		out := make(text.Vector, 0, s.dim)
		for _, p := range s.providers {
			v, ok := tok.Embedding(p.Name())
			if !ok {
				if s.reported(p, sent) {
					return nil, nil
				}
				return nil, &EmbeddingError{Provider: s.name, Sentence: i, Reason: fmt.Sprintf("constituent %s left token %d without a vector", p.Name(), j)}
			}
			if len(v) != p.Dimension() {
				return nil, &DimensionMismatchError{Provider: s.name, Constituent: p.Name(), Want: p.Dimension(), Got: len(v)}
			}
			out = append(out, v...)
		}
		if len(out) != s.dim {
			return nil, &DimensionMismatchError{Provider: s.name, Want: s.dim, Got: len(out)}
		}
		vecs[j] = out
	}
	return vecs, nil
}

// reported reports whether p attached nothing to sent, which is how a
// constituent signals a failed sentence.
func (s *Stacked) reported(p Provider, sent *text.Sentence) bool {
	for _, tok := range sent.Tokens {
		if _, ok := tok.Embedding(p.Name()); ok {
			return false
		}
	}
	return true
}
