package embeddings

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/x448/float16"

	"github.com/jankowtf/wordstack/internal/store"
	"github.com/jankowtf/wordstack/pkg/text"
)

// Vocabulary is an immutable word to vector table. It may be shared by any
// number of static providers.
type Vocabulary struct {
	words     []string
	index     map[string]int
	dim       int
	precision store.Precision
	f32       []float32
	f16       []float16.Float16
}

// NewVocabulary builds a table from parallel words and rows. Every row must
// have the same length. Duplicate words keep their first row.
func NewVocabulary(words []string, rows [][]float32, p store.Precision) (*Vocabulary, error) {
	if len(words) != len(rows) {
		return nil, fmt.Errorf("%d words but %d rows", len(words), len(rows))
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty vocabulary")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	v := &Vocabulary{
		index:     make(map[string]int, len(words)),
		dim:       len(rows[0]),
		precision: p,
	}
	if v.dim == 0 {
		return nil, fmt.Errorf("zero-width vectors")
	}

	for i, w := range words {
		if len(rows[i]) != v.dim {
			return nil, fmt.Errorf("row %d (%q) has %d values, want %d", i, w, len(rows[i]), v.dim)
		}
		if _, dup := v.index[w]; dup {
			continue
		}
		v.index[w] = len(v.words)
		v.words = append(v.words, w)
		switch p {
		case store.Float16:
			for _, f := range rows[i] {
				v.f16 = append(v.f16, float16.Fromfloat32(f))
			}
		default:
			v.f32 = append(v.f32, rows[i]...)
		}
	}
	return v, nil
}

// Dimension is the width of every row.
func (v *Vocabulary) Dimension() int { return v.dim }

// Len is the number of distinct words.
func (v *Vocabulary) Len() int { return len(v.words) }

// Precision is the storage precision of the rows.
func (v *Vocabulary) Precision() store.Precision { return v.precision }

// Words returns the words in row order.
func (v *Vocabulary) Words() []string {
	out := make([]string, len(v.words))
	copy(out, v.words)
	return out
}

// Contains reports whether word has a row.
func (v *Vocabulary) Contains(word string) bool {
	_, ok := v.index[word]
	return ok
}

// Lookup returns the row of word. For float32 tables the result aliases the
// table and must not be modified.
func (v *Vocabulary) Lookup(word string) (text.Vector, bool) {
	i, ok := v.index[word]
	if !ok {
		return nil, false
	}
	return v.row(i), true
}

func (v *Vocabulary) row(i int) text.Vector {
	lo, hi := i*v.dim, (i+1)*v.dim
	if v.precision == store.Float16 {
		out := make(text.Vector, v.dim)
		for j, h := range v.f16[lo:hi] {
			out[j] = h.Float32()
		}
		return out
	}
	return text.Vector(v.f32[lo:hi:hi])
}

// Rows returns every row decoded to float32, in Words order.
func (v *Vocabulary) Rows() [][]float32 {
	out := make([][]float32, len(v.words))
	for i := range v.words {
		out[i] = v.row(i)
	}
	return out
}

// ReadGloVe parses the whitespace separated text format used by GloVe and
// word2vec: one word per line followed by its values. A leading
// "<count> <dim>" header line is skipped.
func ReadGloVe(r io.Reader, p store.Precision) (*Vocabulary, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var words []string
	var rows [][]float32
	dim := -1
	line := 0

	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if line == 1 && len(fields) == 2 && isInt(fields[0]) && isInt(fields[1]) {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: expected a word and values", line)
		}
		if dim < 0 {
			dim = len(fields) - 1
		}
		if len(fields)-1 != dim {
			return nil, fmt.Errorf("line %d: %d values, want %d", line, len(fields)-1, dim)
		}

		row := make([]float32, dim)
		for i, f := range fields[1:] {
			x, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			row[i] = float32(x)
		}
		words = append(words, fields[0])
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading vectors: %w", err)
	}
	return NewVocabulary(words, rows, p)
}

// LoadVocabulary reads a vocabulary written by SaveVocabulary.
func LoadVocabulary(ctx context.Context, db *store.DB) (*Vocabulary, error) {
	kind, err := db.Meta(ctx, store.MetaKind)
	if err != nil {
		return nil, fmt.Errorf("reading model kind: %w", err)
	}
	if kind != KindStatic.String() {
		return nil, fmt.Errorf("model store holds a %q model, not %q", kind, KindStatic)
	}
	raw, err := db.Meta(ctx, store.MetaPrecision)
	if err != nil {
		return nil, fmt.Errorf("reading precision: %w", err)
	}
	p, err := store.ParsePrecision(raw)
	if err != nil {
		return nil, err
	}
	words, rows, err := db.Vectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading vectors: %w", err)
	}
	return NewVocabulary(words, rows, p)
}

// SaveVocabulary writes v to a model store.
func SaveVocabulary(ctx context.Context, db *store.DB, v *Vocabulary) error {
	meta := map[string]string{
		store.MetaKind:      KindStatic.String(),
		store.MetaDimension: strconv.Itoa(v.dim),
		store.MetaPrecision: string(v.precision),
	}
	for k, val := range meta {
		if err := db.PutMeta(ctx, k, val); err != nil {
			return err
		}
	}
	return db.PutVectors(ctx, v.Words(), v.Rows(), v.precision)
}

func isInt(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
