package seqmodel

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/jankowtf/wordstack/internal/store"
)

func newTestRNN(t *testing.T, hidden int, seed uint64) *RNN {
	t.Helper()
	m, err := NewRNN(Config{HiddenSize: hidden, EmbedDim: 8, Seed: seed})
	if err != nil {
		t.Fatalf("NewRNN() error = %v", err)
	}
	return m
}

func TestAlphabet(t *testing.T) {
	a := NewAlphabet([]rune("abca"))

	if a.Size() != 4 {
		t.Errorf("Size() = %d, want 4 (3 symbols + unknown)", a.Size())
	}
	if got := a.Encode("cab?"); !reflect.DeepEqual(got, []int{3, 1, 2, Unknown}) {
		t.Errorf("Encode() = %v", got)
	}

	round := AlphabetFromSymbols(a.Symbols())
	if !reflect.DeepEqual(round.Symbols(), a.Symbols()) {
		t.Errorf("round trip changed symbols: %q vs %q", round.Symbols(), a.Symbols())
	}
}

func TestDefaultAlphabetCoversASCII(t *testing.T) {
	a := DefaultAlphabet()
	for _, r := range "The grass is green . é" {
		if a.Index(r) == Unknown {
			t.Errorf("expected %q in the default alphabet", r)
		}
	}
	if a.Index('😀') != Unknown {
		t.Error("expected emoji to map to Unknown")
	}
}

func TestNewRNNValidation(t *testing.T) {
	if _, err := NewRNN(Config{HiddenSize: 0, EmbedDim: 4}); err == nil {
		t.Error("expected error for zero hidden size")
	}
	if _, err := NewRNN(Config{HiddenSize: 4, EmbedDim: 0}); err == nil {
		t.Error("expected error for zero embedding size")
	}
}

func TestNewRNNDeterministic(t *testing.T) {
	a := newTestRNN(t, 6, 42)
	b := newTestRNN(t, 6, 42)
	c := newTestRNN(t, 6, 43)

	if !reflect.DeepEqual(a.Params(), b.Params()) {
		t.Error("equal seeds must give equal parameters")
	}
	if reflect.DeepEqual(a.Params(), c.Params()) {
		t.Error("different seeds should give different parameters")
	}
}

func TestStatesShapeAndDirection(t *testing.T) {
	m := newTestRNN(t, 5, 1)
	ctx := context.Background()
	seq := m.Encode("grass")

	fwd, err := m.States(ctx, [][]int{seq}, false)
	if err != nil {
		t.Fatal(err)
	}
	bwd, err := m.States(ctx, [][]int{seq}, true)
	if err != nil {
		t.Fatal(err)
	}

	if len(fwd[0]) != len(seq) || len(bwd[0]) != len(seq) {
		t.Fatalf("expected %d states per direction", len(seq))
	}
	for _, h := range fwd[0] {
		if len(h) != 5 {
			t.Fatalf("state width %d, want 5", len(h))
		}
	}

	// The forward state at position 0 has only seen 'g'; the backward state at
	// the last position has only seen 's'. Both must equal single-symbol runs.
	single, _ := m.States(ctx, [][]int{seq[:1]}, false)
	if !reflect.DeepEqual(fwd[0][0], single[0][0]) {
		t.Error("forward state at 0 should depend only on the first symbol")
	}
	last, _ := m.States(ctx, [][]int{seq[len(seq)-1:]}, true)
	if !reflect.DeepEqual(bwd[0][len(seq)-1], last[0][0]) {
		t.Error("backward state at the end should depend only on the last symbol")
	}

	if reflect.DeepEqual(m.Final(seq, false), m.Final(seq, true)) {
		t.Error("forward and backward final states should differ")
	}
	if !reflect.DeepEqual(m.Final(seq, true), bwd[0][0]) {
		t.Error("backward Final should be the state at position 0")
	}
}

func TestStatesErrors(t *testing.T) {
	m, err := NewRNN(Config{HiddenSize: 3, EmbedDim: 2, MinContext: 3})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := m.States(ctx, [][]int{{1, 2}}, false); err == nil {
		t.Error("expected error for sequence shorter than MinContext")
	}
	if _, err := m.States(ctx, [][]int{{1, 2, 10_000}}, false); err == nil {
		t.Error("expected error for symbol outside alphabet")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := m.States(cancelled, [][]int{{1, 2, 3}}, false); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestFinalEmpty(t *testing.T) {
	m := newTestRNN(t, 4, 7)
	h := m.Final(nil, false)
	if !reflect.DeepEqual(h, make([]float32, 4)) {
		t.Errorf("expected zero state, got %v", h)
	}
}

func TestSaveLoadRNN(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(filepath.Join(t.TempDir(), "rnn.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	m := newTestRNN(t, 4, 9)
	if err := m.Save(ctx, db, store.Float32); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadRNN(ctx, db)
	if err != nil {
		t.Fatalf("LoadRNN() error = %v", err)
	}
	if loaded.HiddenSize() != 4 || loaded.EmbedDim() != 8 || loaded.MinContext() != 1 {
		t.Errorf("unexpected shape: hidden=%d embed=%d min=%d", loaded.HiddenSize(), loaded.EmbedDim(), loaded.MinContext())
	}
	if !reflect.DeepEqual(loaded.Params(), m.Params()) {
		t.Error("loaded parameters differ from saved ones")
	}

	seq := m.Encode("is")
	if !reflect.DeepEqual(loaded.Final(seq, false), m.Final(seq, false)) {
		t.Error("loaded model computes different states")
	}
}

func TestLoadRNNWrongKind(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(filepath.Join(t.TempDir(), "static.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := db.PutMeta(ctx, store.MetaKind, "static"); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRNN(ctx, db); err == nil {
		t.Error("expected error loading a static store as an RNN")
	}
}

// Compile-time check that RNN implements Model.
var _ Model = (*RNN)(nil)
