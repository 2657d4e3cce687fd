package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "model.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMetaRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.Meta(ctx, MetaKind); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := db.PutMeta(ctx, MetaKind, "static"); err != nil {
		t.Fatal(err)
	}
	if err := db.PutMeta(ctx, MetaKind, "rnn"); err != nil {
		t.Fatal(err)
	}
	got, err := db.Meta(ctx, MetaKind)
	if err != nil {
		t.Fatal(err)
	}
	if got != "rnn" {
		t.Errorf("Meta() = %q, want rnn", got)
	}
}

func TestVectorsRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, _, err := db.Vectors(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}

	words := []string{"the", "grass", "is", "green"}
	vectors := [][]float32{{1, 0}, {0, 1}, {0.5, 0.5}, {-1, 2}}
	if err := db.PutVectors(ctx, words, vectors, Float32); err != nil {
		t.Fatalf("PutVectors() error = %v", err)
	}

	gotWords, gotVectors, err := db.Vectors(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(gotWords, words) {
		t.Errorf("words = %v, want %v", gotWords, words)
	}
	if !reflect.DeepEqual(gotVectors, vectors) {
		t.Errorf("vectors = %v, want %v", gotVectors, vectors)
	}

	// Replacing keeps only the new rows.
	if err := db.PutVectors(ctx, []string{"only"}, [][]float32{{3, 3}}, Float16); err != nil {
		t.Fatal(err)
	}
	gotWords, _, err = db.Vectors(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(gotWords, []string{"only"}) {
		t.Errorf("expected replaced vocabulary, got %v", gotWords)
	}
}

func TestPutVectorsLengthMismatch(t *testing.T) {
	db := setupTestDB(t)
	err := db.PutVectors(context.Background(), []string{"a", "b"}, [][]float32{{1}}, Float32)
	if err == nil {
		t.Fatal("expected error for mismatched words/vectors")
	}
}

func TestTensorRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.Tensor(ctx, "wx"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	in := Tensor{Rows: 2, Cols: 3, Data: []float32{1, 2, 3, 4, 5, 6}}
	if err := db.PutTensor(ctx, "wx", in, Float32); err != nil {
		t.Fatal(err)
	}
	out, err := db.Tensor(ctx, "wx")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("Tensor() = %+v, want %+v", out, in)
	}

	bad := Tensor{Rows: 2, Cols: 2, Data: []float32{1}}
	if err := db.PutTensor(ctx, "bad", bad, Float32); err == nil {
		t.Error("expected shape error")
	}
}

func TestAlphabetRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	symbols := []string{"a", "b", " ", "é"}
	if err := db.PutAlphabet(ctx, symbols); err != nil {
		t.Fatal(err)
	}
	got, err := db.Alphabet(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, symbols) {
		t.Errorf("Alphabet() = %q, want %q", got, symbols)
	}
}

func TestOpenReadOnly(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "model.db")

	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.PutMeta(ctx, MetaKind, "static"); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	ro, err := OpenReadOnly(path)
	if err != nil {
		t.Fatalf("OpenReadOnly() error = %v", err)
	}
	defer ro.Close()

	if got, err := ro.Meta(ctx, MetaKind); err != nil || got != "static" {
		t.Errorf("Meta() = %q, %v", got, err)
	}
	if err := ro.PutMeta(ctx, MetaKind, "contextual"); err == nil {
		t.Error("expected write through a read-only store to fail")
	}
	if _, err := os.Stat(path + "-wal"); !os.IsNotExist(err) {
		t.Errorf("read-only open left a WAL file: %v", err)
	}
}

func TestOpenReadOnlyMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")
	if _, err := OpenReadOnly(path); err == nil {
		t.Fatal("expected error for a missing model file")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("OpenReadOnly must not create the file")
	}
}
