// Package store persists embedding sources (vocabulary matrices, sequence
// model tensors and alphabets) in SQLite model files.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a key, tensor or vocabulary is absent.
var ErrNotFound = errors.New("not found")

// Meta keys shared by the model file writers and readers.
const (
	MetaKind      = "kind"
	MetaDimension = "dimension"
	MetaPrecision = "precision"
)

// DB wraps a SQLite model file.
type DB struct {
	db *sql.DB
}

// Open opens or creates the model file at path for writing. Model files keep
// the default rollback journal so they stay readable from read-only locations.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening model store: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support multiple writers
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &DB{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

// OpenReadOnly opens an existing model file without creating, migrating or
// otherwise writing to it.
func OpenReadOnly(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening model store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening model store: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS vectors (
			word TEXT PRIMARY KEY,
			position INTEGER NOT NULL UNIQUE,
			precision TEXT NOT NULL,
			embedding BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tensors (
			name TEXT PRIMARY KEY,
			rows INTEGER NOT NULL,
			cols INTEGER NOT NULL,
			precision TEXT NOT NULL,
			data BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alphabet (
			position INTEGER PRIMARY KEY,
			symbol TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)`,
		`INSERT OR IGNORE INTO schema_version (version) VALUES (1)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}
	return nil
}

// PutMeta stores a metadata value.
func (d *DB) PutMeta(ctx context.Context, key, value string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("writing meta %q: %w", key, err)
	}
	return nil
}

// Meta returns a metadata value, or ErrNotFound.
func (d *DB) Meta(ctx context.Context, key string) (string, error) {
	var value string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("meta %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("reading meta %q: %w", key, err)
	}
	return value, nil
}

// PutVectors replaces the vocabulary with words and their vectors. Row order
// is preserved.
func (d *DB) PutVectors(ctx context.Context, words []string, vectors [][]float32, p Precision) error {
	if len(words) != len(vectors) {
		return fmt.Errorf("got %d words but %d vectors", len(words), len(vectors))
	}
	if err := p.Validate(); err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors`); err != nil {
		return fmt.Errorf("clearing vectors: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO vectors (word, position, precision, embedding) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, w := range words {
		if _, err := stmt.ExecContext(ctx, w, i, string(p), EncodeVector(vectors[i], p)); err != nil {
			return fmt.Errorf("inserting %q: %w", w, err)
		}
	}
	return tx.Commit()
}

// Vectors returns the stored vocabulary in row order. Vectors are decoded to
// float32 regardless of storage precision.
func (d *DB) Vectors(ctx context.Context) ([]string, [][]float32, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT word, precision, embedding FROM vectors ORDER BY position`)
	if err != nil {
		return nil, nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var words []string
	var vectors [][]float32
	for rows.Next() {
		var word, precision string
		var blob []byte
		if err := rows.Scan(&word, &precision, &blob); err != nil {
			return nil, nil, fmt.Errorf("scanning vector: %w", err)
		}
		vec, err := DecodeVector(blob, Precision(precision))
		if err != nil {
			return nil, nil, fmt.Errorf("decoding %q: %w", word, err)
		}
		words = append(words, word)
		vectors = append(vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if len(words) == 0 {
		return nil, nil, fmt.Errorf("vectors: %w", ErrNotFound)
	}
	return words, vectors, nil
}

// Tensor is a row-major matrix.
type Tensor struct {
	Rows int
	Cols int
	Data []float32
}

// PutTensor stores a named tensor.
func (d *DB) PutTensor(ctx context.Context, name string, t Tensor, p Precision) error {
	if len(t.Data) != t.Rows*t.Cols {
		return fmt.Errorf("tensor %q: %d values for a %dx%d shape", name, len(t.Data), t.Rows, t.Cols)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tensors (name, rows, cols, precision, data) VALUES (?, ?, ?, ?, ?)`,
		name, t.Rows, t.Cols, string(p), EncodeVector(t.Data, p))
	if err != nil {
		return fmt.Errorf("writing tensor %q: %w", name, err)
	}
	return nil
}

// Tensor returns a named tensor, or ErrNotFound.
func (d *DB) Tensor(ctx context.Context, name string) (Tensor, error) {
	var t Tensor
	var precision string
	var blob []byte
	err := d.db.QueryRowContext(ctx,
		`SELECT rows, cols, precision, data FROM tensors WHERE name = ?`, name,
	).Scan(&t.Rows, &t.Cols, &precision, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Tensor{}, fmt.Errorf("tensor %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return Tensor{}, fmt.Errorf("reading tensor %q: %w", name, err)
	}

	t.Data, err = DecodeVector(blob, Precision(precision))
	if err != nil {
		return Tensor{}, fmt.Errorf("decoding tensor %q: %w", name, err)
	}
	if len(t.Data) != t.Rows*t.Cols {
		return Tensor{}, fmt.Errorf("tensor %q: %d values for a %dx%d shape", name, len(t.Data), t.Rows, t.Cols)
	}
	return t, nil
}

// PutAlphabet replaces the stored symbol table. Symbol i is stored at
// position i.
func (d *DB) PutAlphabet(ctx context.Context, symbols []string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM alphabet`); err != nil {
		return fmt.Errorf("clearing alphabet: %w", err)
	}
	for i, s := range symbols {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO alphabet (position, symbol) VALUES (?, ?)`, i, s); err != nil {
			return fmt.Errorf("inserting symbol %q: %w", s, err)
		}
	}
	return tx.Commit()
}

// Alphabet returns the stored symbols in position order.
func (d *DB) Alphabet(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT symbol FROM alphabet ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("querying alphabet: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scanning symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("alphabet: %w", ErrNotFound)
	}
	return symbols, nil
}
