package embeddings

import (
	"context"
	"sync"
	"testing"

	"github.com/jankowtf/wordstack/internal/seqmodel"
	"github.com/jankowtf/wordstack/internal/store"
	"github.com/jankowtf/wordstack/pkg/text"
)

// testVocab builds a vocabulary where word i has row [i+1, i+1+0.01, ...].
func testVocab(t *testing.T, dim int, words ...string) *Vocabulary {
	t.Helper()
	rows := make([][]float32, len(words))
	for i := range words {
		row := make([]float32, dim)
		for j := range row {
			row[j] = float32(i+1) + float32(j)*0.01
		}
		rows[i] = row
	}
	v, err := NewVocabulary(words, rows, store.Float32)
	if err != nil {
		t.Fatalf("NewVocabulary() error = %v", err)
	}
	return v
}

// positionModel is a fake sequence model whose state at position i is
// [i, i, ...]. It records every batch it receives.
type positionModel struct {
	hidden     int
	minContext int
	badWidth   bool

	mu      sync.Mutex
	calls   int
	batches []int
	reverse []bool
}

func (m *positionModel) HiddenSize() int { return m.hidden }
func (m *positionModel) MinContext() int { return m.minContext }

func (m *positionModel) Encode(s string) []int {
	out := []int{}
	for _, r := range s {
		out = append(out, int(r))
	}
	return out
}

func (m *positionModel) States(ctx context.Context, batch [][]int, reverse bool) ([][][]float32, error) {
	m.mu.Lock()
	m.calls++
	m.batches = append(m.batches, len(batch))
	m.reverse = append(m.reverse, reverse)
	m.mu.Unlock()

	width := m.hidden
	if m.badWidth {
		width++
	}
	out := make([][][]float32, len(batch))
	for b, seq := range batch {
		out[b] = make([][]float32, len(seq))
		for i := range seq {
			h := make([]float32, width)
			for k := range h {
				h[k] = float32(i)
			}
			out[b][i] = h
		}
	}
	return out, nil
}

// testRNN returns a small deterministic recurrent model.
func testRNN(t *testing.T, hidden int, seed uint64) *seqmodel.RNN {
	t.Helper()
	m, err := seqmodel.NewRNN(seqmodel.Config{HiddenSize: hidden, EmbedDim: 8, Seed: seed})
	if err != nil {
		t.Fatalf("NewRNN() error = %v", err)
	}
	return m
}

// brokenProvider attaches vectors one value shorter than it declares.
type brokenProvider struct {
	name string
	dim  int
}

func (b *brokenProvider) Name() string   { return b.name }
func (b *brokenProvider) Dimension() int { return b.dim }
func (b *brokenProvider) Kind() Kind     { return KindStatic }
func (b *brokenProvider) sealed()        {}

func (b *brokenProvider) Embed(ctx context.Context, sentences []*text.Sentence) error {
	for _, s := range sentences {
		for _, tok := range s.Tokens {
			tok.SetEmbedding(b.name, make(text.Vector, b.dim-1))
		}
	}
	return nil
}

func mustEmbedding(t *testing.T, tok *text.Token, name string) text.Vector {
	t.Helper()
	v, ok := tok.Embedding(name)
	if !ok {
		t.Fatalf("token %d (%q) has no %q embedding", tok.Index, tok.Text, name)
	}
	return v
}
