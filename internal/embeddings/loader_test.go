package embeddings

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jankowtf/wordstack/internal/store"
	"github.com/jankowtf/wordstack/pkg/text"
)

// writeStaticModel saves a vocabulary to dir/name.
func writeStaticModel(t *testing.T, dir, name string, vocab *Vocabulary) {
	t.Helper()
	db, err := store.Open(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := SaveVocabulary(context.Background(), db, vocab); err != nil {
		t.Fatal(err)
	}
}

// writeRNNModel saves a recurrent model of the given width to dir/name.
func writeRNNModel(t *testing.T, dir, name string, hidden int) {
	t.Helper()
	db, err := store.Open(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := testRNN(t, hidden, 2).Save(context.Background(), db, store.Float32); err != nil {
		t.Fatal(err)
	}
}

func testLoader(t *testing.T) (*Loader, string) {
	t.Helper()
	dir := t.TempDir()
	writeStaticModel(t, dir, "glove.db", testVocab(t, 100, "the", "grass", "is", "green", "."))
	writeRNNModel(t, dir, "fwd.db", 50)

	r := NewRegistry()
	entries := []Entry{
		{ID: "glove", Aliases: []string{"en-glove"}, Source: Source{Kind: "static", Path: "glove.db", Dimension: 100, Lowercase: true}},
		{ID: "glove-wide", Source: Source{Kind: "static", Path: "glove.db", Dimension: 300}},
		{ID: "news-forward", Source: Source{Kind: "contextual", Path: "fwd.db", Dimension: 50, Direction: "forward"}},
		{ID: "news-backward", Source: Source{Kind: "contextual", Path: "fwd.db", Dimension: 50, Direction: "backward"}},
		{ID: "missing", Source: Source{Kind: "static", Path: "nowhere.db", Dimension: 100}},
		{ID: "char", Source: Source{Kind: "character", Dimension: 12, Seed: 3}},
	}
	for _, e := range entries {
		if err := r.Register(e); err != nil {
			t.Fatal(err)
		}
	}
	return NewLoader(r, dir), dir
}

func TestLoaderUnknownIdentifier(t *testing.T) {
	l, _ := testLoader(t)
	p, err := l.Load(context.Background(), "klingon")

	var unknown *UnknownIdentifierError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownIdentifierError, got %v", err)
	}
	if p != nil {
		t.Errorf("expected no provider, got %T", p)
	}
}

func TestLoaderStatic(t *testing.T) {
	l, _ := testLoader(t)
	ctx := context.Background()

	p, err := l.Load(ctx, "EN-GLOVE")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "glove" || p.Dimension() != 100 || p.Kind() != KindStatic {
		t.Fatalf("got %s/%d/%v", p.Name(), p.Dimension(), p.Kind())
	}

	sent := text.NewSentence("The grass is green .")
	if err := p.Embed(ctx, []*text.Sentence{sent}); err != nil {
		t.Fatal(err)
	}
	if v := mustEmbedding(t, sent.Tokens[0], "glove"); v[0] != 1 {
		t.Errorf("lower-cased lookup of The = %v, want row of the", v[:2])
	}

	again, err := l.Load(ctx, "glove")
	if err != nil {
		t.Fatal(err)
	}
	if again.(*Static).Vocabulary() != p.(*Static).Vocabulary() {
		t.Error("providers from the same source should share the vocabulary")
	}
	if again.(*Static).InstanceID() == p.(*Static).InstanceID() {
		t.Error("each Load should build a new instance")
	}
}

func TestLoaderLeavesModelFilesUntouched(t *testing.T) {
	l, dir := testLoader(t)
	ctx := context.Background()

	before := map[string][]byte{}
	for _, name := range []string{"glove.db", "fwd.db"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		before[name] = data
	}

	for _, id := range []string{"glove", "news-forward"} {
		if _, err := l.Load(ctx, id); err != nil {
			t.Fatalf("Load(%s) error = %v", id, err)
		}
	}

	for name, data := range before {
		after, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(data, after) {
			t.Errorf("loading changed %s", name)
		}
		if _, err := os.Stat(filepath.Join(dir, name+"-wal")); !os.IsNotExist(err) {
			t.Errorf("loading left a WAL file next to %s", name)
		}
	}
}

func TestLoaderConfigurationErrors(t *testing.T) {
	l, _ := testLoader(t)
	for _, id := range []string{"glove-wide", "missing"} {
		t.Run(id, func(t *testing.T) {
			p, err := l.Load(context.Background(), id)
			if !IsConfigurationError(err) {
				t.Errorf("expected ConfigurationError, got %v", err)
			}
			if p != nil {
				t.Error("expected no provider")
			}
		})
	}
}

func TestLoaderMissingFileNotCreated(t *testing.T) {
	l, dir := testLoader(t)
	if _, err := l.Load(context.Background(), "missing"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(filepath.Join(dir, "nowhere.db")); !os.IsNotExist(err) {
		t.Error("loading a missing model must not create the file")
	}
}

func TestLoaderContextualSharesModel(t *testing.T) {
	l, _ := testLoader(t)
	ctx := context.Background()

	fwd, err := l.Load(ctx, "news-forward")
	if err != nil {
		t.Fatal(err)
	}
	bwd, err := l.Load(ctx, "news-backward")
	if err != nil {
		t.Fatal(err)
	}
	if fwd.(*Contextual).model != bwd.(*Contextual).model {
		t.Error("both directions should share the loaded model")
	}
	if bwd.(*Contextual).Direction() != Backward {
		t.Error("expected backward direction")
	}
}

func TestLoaderCharacter(t *testing.T) {
	l, _ := testLoader(t)
	p, err := l.Load(context.Background(), "char")
	if err != nil {
		t.Fatal(err)
	}
	if p.Kind() != KindCharacter || p.Dimension() != 12 {
		t.Errorf("got %v/%d", p.Kind(), p.Dimension())
	}
}

func TestLoaderGloVeFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.txt")
	if err := os.WriteFile(path, []byte("the 1 2\n<unk> 9 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewRegistry()
	err := r.Register(Entry{ID: "txt", Source: Source{
		Kind: "static", Path: path, Format: FormatGloVe, Dimension: 2, Fallback: "<unk>", Precision: "float16",
	}})
	if err != nil {
		t.Fatal(err)
	}

	p, err := NewLoader(r, "/unused").Load(context.Background(), "txt")
	if err != nil {
		t.Fatal(err)
	}
	s := p.(*Static)
	if s.Vocabulary().Precision() != store.Float16 {
		t.Errorf("precision = %q", s.Vocabulary().Precision())
	}
	if v := s.Vector("zebra"); v[0] != 9 {
		t.Errorf("fallback vector = %v", v)
	}
}

func TestLoaderStack(t *testing.T) {
	l, _ := testLoader(t)
	ctx := context.Background()

	stack, err := l.LoadStack(ctx, "stack", "glove", "news-forward", "news-backward")
	if err != nil {
		t.Fatal(err)
	}
	if stack.Dimension() != 200 {
		t.Fatalf("Dimension() = %d, want 200", stack.Dimension())
	}
	sent := text.NewSentence("The grass is green .")
	if err := stack.Embed(ctx, []*text.Sentence{sent}); err != nil {
		t.Fatal(err)
	}
	for _, tok := range sent.Tokens {
		if v := mustEmbedding(t, tok, "stack"); len(v) != 200 {
			t.Errorf("%q has %d values", tok.Text, len(v))
		}
	}

	if _, err := l.LoadStack(ctx, "stack", "glove", "nope"); !IsConfigurationError(err) {
		t.Errorf("expected ConfigurationError for unknown constituent, got %v", err)
	}
	if _, err := l.LoadStack(ctx, "stack", "glove", "en-glove"); !IsConfigurationError(err) {
		t.Errorf("expected ConfigurationError for duplicate constituent, got %v", err)
	}
}
