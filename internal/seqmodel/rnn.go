package seqmodel

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/gonum"

	"github.com/jankowtf/wordstack/internal/store"
)

// KindRNN is the store.MetaKind value of saved recurrent models.
const KindRNN = "rnn"

var impl = gonum.Implementation{}

// Params holds the trainable tensors of an RNN, all row-major.
type Params struct {
	Embedding []float32 // Alphabet size x EmbedDim
	Wx        []float32 // HiddenSize x EmbedDim
	Wh        []float32 // HiddenSize x HiddenSize
	B         []float32 // HiddenSize
}

// Config configures NewRNN.
type Config struct {
	Alphabet   *Alphabet
	HiddenSize int
	EmbedDim   int
	MinContext int
	Seed       uint64
}

// RNN is an Elman network over character indices:
//
//	h_t = tanh(Wx·e(x_t) + Wh·h_{t-1} + b)
//
// It is read-only after construction unless the caller serialises access to
// Params.
type RNN struct {
	alphabet   *Alphabet
	hidden     int
	embedDim   int
	minContext int
	params     Params
}

// NewRNN creates a model with weights drawn from a seeded uniform
// distribution, so equal configs give equal models.
func NewRNN(cfg Config) (*RNN, error) {
	if cfg.Alphabet == nil {
		cfg.Alphabet = DefaultAlphabet()
	}
	if cfg.HiddenSize <= 0 {
		return nil, fmt.Errorf("hidden size must be positive, got %d", cfg.HiddenSize)
	}
	if cfg.EmbedDim <= 0 {
		return nil, fmt.Errorf("embedding size must be positive, got %d", cfg.EmbedDim)
	}
	if cfg.MinContext < 1 {
		cfg.MinContext = 1
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	scale := float32(1 / math.Sqrt(float64(cfg.HiddenSize)))
	uniform := func(n int, s float32) []float32 {
		out := make([]float32, n)
		for i := range out {
			out[i] = (rng.Float32()*2 - 1) * s
		}
		return out
	}

	return &RNN{
		alphabet:   cfg.Alphabet,
		hidden:     cfg.HiddenSize,
		embedDim:   cfg.EmbedDim,
		minContext: cfg.MinContext,
		params: Params{
			Embedding: uniform(cfg.Alphabet.Size()*cfg.EmbedDim, 1),
			Wx:        uniform(cfg.HiddenSize*cfg.EmbedDim, scale),
			Wh:        uniform(cfg.HiddenSize*cfg.HiddenSize, scale),
			B:         uniform(cfg.HiddenSize, scale),
		},
	}, nil
}

// HiddenSize implements Model.
func (m *RNN) HiddenSize() int { return m.hidden }

// MinContext implements Model.
func (m *RNN) MinContext() int { return m.minContext }

// EmbedDim returns the width of the character embedding table.
func (m *RNN) EmbedDim() int { return m.embedDim }

// Alphabet returns the model's symbol table.
func (m *RNN) Alphabet() *Alphabet { return m.alphabet }

// Encode implements Model.
func (m *RNN) Encode(s string) []int { return m.alphabet.Encode(s) }

// Params returns the live parameter tensors.
func (m *RNN) Params() *Params { return &m.params }

// States implements Model.
func (m *RNN) States(ctx context.Context, batch [][]int, reverse bool) ([][][]float32, error) {
	out := make([][][]float32, len(batch))
	for b, seq := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(seq) < m.minContext {
			return nil, fmt.Errorf("sequence %d has %d symbols, model needs at least %d", b, len(seq), m.minContext)
		}
		if err := m.checkSymbols(seq); err != nil {
			return nil, fmt.Errorf("sequence %d: %w", b, err)
		}
		out[b] = m.run(seq, reverse)
	}
	return out, nil
}

// Final returns the state after reading the whole sequence: the last
// position going forward, the first going backward. An empty sequence yields
// the zero state.
func (m *RNN) Final(seq []int, reverse bool) []float32 {
	if len(seq) == 0 {
		return make([]float32, m.hidden)
	}
	states := m.run(seq, reverse)
	if reverse {
		return states[0]
	}
	return states[len(states)-1]
}

func (m *RNN) checkSymbols(seq []int) error {
	size := m.alphabet.Size()
	for _, x := range seq {
		if x < 0 || x >= size {
			return fmt.Errorf("symbol %d outside alphabet of size %d", x, size)
		}
	}
	return nil
}

func (m *RNN) run(seq []int, reverse bool) [][]float32 {
	states := make([][]float32, len(seq))
	prev := make([]float32, m.hidden)
	for step := range seq {
		pos := step
		if reverse {
			pos = len(seq) - 1 - step
		}
		h := make([]float32, m.hidden)
		m.step(seq[pos], prev, h)
		states[pos] = h
		prev = h
	}
	return states
}

func (m *RNN) step(x int, prev, out []float32) {
	p := &m.params
	copy(out, p.B)
	e := p.Embedding[x*m.embedDim : (x+1)*m.embedDim]
	impl.Sgemv(blas.NoTrans, m.hidden, m.embedDim, 1, p.Wx, m.embedDim, e, 1, 1, out, 1)
	impl.Sgemv(blas.NoTrans, m.hidden, m.hidden, 1, p.Wh, m.hidden, prev, 1, 1, out, 1)
	for i, v := range out {
		out[i] = float32(math.Tanh(float64(v)))
	}
}

// Save writes the model to a model store.
func (m *RNN) Save(ctx context.Context, db *store.DB, p store.Precision) error {
	meta := map[string]string{
		store.MetaKind:      KindRNN,
		store.MetaDimension: strconv.Itoa(m.hidden),
		store.MetaPrecision: string(p),
		"embed_dim":         strconv.Itoa(m.embedDim),
		"min_context":       strconv.Itoa(m.minContext),
	}
	for k, v := range meta {
		if err := db.PutMeta(ctx, k, v); err != nil {
			return err
		}
	}
	if err := db.PutAlphabet(ctx, m.alphabet.Symbols()); err != nil {
		return err
	}

	tensors := map[string]store.Tensor{
		"embedding": {Rows: m.alphabet.Size(), Cols: m.embedDim, Data: m.params.Embedding},
		"wx":        {Rows: m.hidden, Cols: m.embedDim, Data: m.params.Wx},
		"wh":        {Rows: m.hidden, Cols: m.hidden, Data: m.params.Wh},
		"b":         {Rows: 1, Cols: m.hidden, Data: m.params.B},
	}
	for name, t := range tensors {
		if err := db.PutTensor(ctx, name, t, p); err != nil {
			return err
		}
	}
	return nil
}

// LoadRNN reads a model written by Save.
func LoadRNN(ctx context.Context, db *store.DB) (*RNN, error) {
	kind, err := db.Meta(ctx, store.MetaKind)
	if err != nil {
		return nil, err
	}
	if kind != KindRNN {
		return nil, fmt.Errorf("model store holds a %q model, not %q", kind, KindRNN)
	}

	ints := make(map[string]int)
	for _, key := range []string{store.MetaDimension, "embed_dim", "min_context"} {
		raw, err := db.Meta(ctx, key)
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing meta %q: %w", key, err)
		}
		ints[key] = n
	}

	symbols, err := db.Alphabet(ctx)
	if err != nil {
		return nil, err
	}
	m := &RNN{
		alphabet:   AlphabetFromSymbols(symbols),
		hidden:     ints[store.MetaDimension],
		embedDim:   ints["embed_dim"],
		minContext: ints["min_context"],
	}

	shapes := []struct {
		name       string
		rows, cols int
		dst        *[]float32
	}{
		{"embedding", m.alphabet.Size(), m.embedDim, &m.params.Embedding},
		{"wx", m.hidden, m.embedDim, &m.params.Wx},
		{"wh", m.hidden, m.hidden, &m.params.Wh},
		{"b", 1, m.hidden, &m.params.B},
	}
	for _, s := range shapes {
		t, err := db.Tensor(ctx, s.name)
		if err != nil {
			return nil, err
		}
		if t.Rows != s.rows || t.Cols != s.cols {
			return nil, fmt.Errorf("tensor %q has shape %dx%d, want %dx%d", s.name, t.Rows, t.Cols, s.rows, s.cols)
		}
		*s.dst = t.Data
	}
	return m, nil
}
