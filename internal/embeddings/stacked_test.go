package embeddings

import (
	"context"
	"errors"
	"testing"

	"github.com/jankowtf/wordstack/pkg/text"
)

// standardStack builds glove (100) + forward (50) + backward (50).
func standardStack(t *testing.T) (*Stacked, []Provider) {
	t.Helper()
	glove, err := NewStatic("glove", testVocab(t, 100, "The", "grass", "is", "green", "."))
	if err != nil {
		t.Fatal(err)
	}
	rnn := testRNN(t, 50, 21)
	fwd, err := NewContextual("news-forward", rnn, Forward)
	if err != nil {
		t.Fatal(err)
	}
	bwd, err := NewContextual("news-backward", rnn, Backward)
	if err != nil {
		t.Fatal(err)
	}
	constituents := []Provider{glove, fwd, bwd}
	stack, err := NewStacked("stack", constituents)
	if err != nil {
		t.Fatal(err)
	}
	return stack, constituents
}

func TestStackedDimensionIsSum(t *testing.T) {
	tests := []struct {
		name string
		dims []int
	}{
		{"single", []int{7}},
		{"pair", []int{100, 50}},
		{"many", []int{1, 2, 3, 4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var providers []Provider
			sum := 0
			for i, d := range tt.dims {
				p, err := NewStatic(string(rune('a'+i)), testVocab(t, d, "w"))
				if err != nil {
					t.Fatal(err)
				}
				providers = append(providers, p)
				sum += d
			}
			s, err := NewStacked("stack", providers)
			if err != nil {
				t.Fatal(err)
			}
			if s.Dimension() != sum {
				t.Errorf("Dimension() = %d, want %d", s.Dimension(), sum)
			}
		})
	}
}

func TestStackedConcatenatesInOrder(t *testing.T) {
	stack, constituents := standardStack(t)
	if stack.Dimension() != 200 {
		t.Fatalf("Dimension() = %d, want 200", stack.Dimension())
	}
	ctx := context.Background()

	stacked := text.NewSentence("The grass is green .")
	if err := stack.Embed(ctx, []*text.Sentence{stacked}); err != nil {
		t.Fatal(err)
	}

	standalone := text.NewSentence("The grass is green .")
	for _, p := range constituents {
		if err := p.Embed(ctx, []*text.Sentence{standalone}); err != nil {
			t.Fatal(err)
		}
	}

	ranges := []struct {
		name   string
		lo, hi int
	}{
		{"glove", 0, 100},
		{"news-forward", 100, 150},
		{"news-backward", 150, 200},
	}
	for i, tok := range stacked.Tokens {
		combined := mustEmbedding(t, tok, "stack")
		if len(combined) != 200 {
			t.Fatalf("token %d has %d values, want 200", i, len(combined))
		}
		for _, r := range ranges {
			want := mustEmbedding(t, standalone.Tokens[i], r.name)
			if !text.Vector(combined[r.lo:r.hi]).Equal(want) {
				t.Errorf("token %d: [%d,%d) differs from standalone %s", i, r.lo, r.hi, r.name)
			}
		}
	}
}

func TestStackedNests(t *testing.T) {
	inner, _ := standardStack(t)
	char, err := NewCharacter("char", 10)
	if err != nil {
		t.Fatal(err)
	}
	outer, err := NewStacked("outer", []Provider{char, inner})
	if err != nil {
		t.Fatal(err)
	}
	if outer.Dimension() != 210 {
		t.Fatalf("Dimension() = %d, want 210", outer.Dimension())
	}

	sent := text.NewSentence("The grass is green .")
	if err := outer.Embed(context.Background(), []*text.Sentence{sent}); err != nil {
		t.Fatal(err)
	}
	for _, tok := range sent.Tokens {
		v := mustEmbedding(t, tok, "outer")
		if !text.Vector(v[10:]).Equal(mustEmbedding(t, tok, "stack")) {
			t.Errorf("%q: inner stack vector not found at offset 10", tok.Text)
		}
	}
}

func TestStackedDimensionMismatchIsFatal(t *testing.T) {
	glove, err := NewStatic("glove", testVocab(t, 4, "a"))
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewStacked("stack", []Provider{glove, &brokenProvider{name: "broken", dim: 3}})
	if err != nil {
		t.Fatal(err)
	}

	sent := text.FromWords("a", "b")
	err = s.Embed(context.Background(), []*text.Sentence{sent})

	var dm *DimensionMismatchError
	if !errors.As(err, &dm) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
	if dm.Constituent != "broken" || dm.Want != 3 || dm.Got != 2 {
		t.Errorf("unexpected mismatch %+v", dm)
	}
	if IsEmbeddingError(err) {
		t.Error("a dimension mismatch is not a per-sentence error")
	}
	if _, ok := sent.Tokens[0].Embedding("stack"); ok {
		t.Error("no combined vector may be attached after a mismatch")
	}
}

func TestStackedPartialBatch(t *testing.T) {
	stack, _ := standardStack(t)
	good := text.NewSentence("The grass is green .")
	err := stack.Embed(context.Background(), []*text.Sentence{{}, good})

	if !IsEmbeddingError(err) {
		t.Fatalf("expected only per-sentence errors, got %v", err)
	}
	for _, e := range SentenceErrors(err) {
		if e.Sentence != 0 {
			t.Errorf("unexpected error for sentence %d", e.Sentence)
		}
	}
	for _, tok := range good.Tokens {
		if v := mustEmbedding(t, tok, "stack"); len(v) != 200 {
			t.Errorf("%q has %d values", tok.Text, len(v))
		}
	}
}

func TestStackedMissingConstituent(t *testing.T) {
	glove, err := NewStatic("glove", testVocab(t, 2, "a"))
	if err != nil {
		t.Fatal(err)
	}
	ctx, err := NewContextual("ctx", &positionModel{hidden: 2, minContext: 4}, Forward)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewStacked("stack", []Provider{glove, ctx})
	if err != nil {
		t.Fatal(err)
	}

	short := text.FromWords("a")
	long := text.FromWords("a", "bb")
	err = s.Embed(context.Background(), []*text.Sentence{short, long})
	if !IsEmbeddingError(err) {
		t.Fatalf("expected per-sentence error, got %v", err)
	}

	// The static vector stays, the combined one is withheld.
	mustEmbedding(t, short.Tokens[0], "glove")
	if _, ok := short.Tokens[0].Embedding("stack"); ok {
		t.Error("sentence with a failed constituent must not get a combined vector")
	}
	mustEmbedding(t, long.Tokens[1], "stack")
}

func TestStackedClearsStaleVectors(t *testing.T) {
	stack, _ := standardStack(t)
	sent := text.NewSentence("The grass")
	sent.Tokens[0].SetEmbedding("glove", text.Vector{1})

	if err := stack.Embed(context.Background(), []*text.Sentence{sent}); err != nil {
		t.Fatal(err)
	}
	if v := mustEmbedding(t, sent.Tokens[0], "glove"); len(v) != 100 {
		t.Errorf("stale constituent vector survived: %d values", len(v))
	}
}

func TestNewStackedErrors(t *testing.T) {
	a, _ := NewStatic("a", testVocab(t, 2, "w"))
	b, _ := NewStatic("b", testVocab(t, 2, "w"))
	dupe, _ := NewStatic("a", testVocab(t, 2, "w"))
	wide, _ := NewStatic("a", testVocab(t, 3, "w"))
	inner, err := NewStacked("inner", []Provider{a})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		stackName string
		providers []Provider
	}{
		{"empty", "stack", nil},
		{"nil constituent", "stack", []Provider{a, nil}},
		{"duplicate names", "stack", []Provider{a, b, dupe}},
		{"name clash with composer", "a", []Provider{a, b}},
		{"empty name", "", []Provider{a}},
		{"nested duplicate", "outer", []Provider{inner, wide}},
		{"nested clash with composer", "a", []Provider{inner}},
		{"nested composer name reused", "outer", []Provider{inner, b, inner}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewStacked(tt.stackName, tt.providers)
			if !IsConfigurationError(err) {
				t.Errorf("expected ConfigurationError, got %v", err)
			}
			if s != nil {
				t.Error("expected no composer on error")
			}
		})
	}
}

func TestStackedProvidersIsCopy(t *testing.T) {
	stack, constituents := standardStack(t)
	got := stack.Providers()
	got[0] = nil
	if stack.Providers()[0] != constituents[0] {
		t.Error("Providers() must return a copy")
	}
}
