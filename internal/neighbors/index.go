// Package neighbors finds the nearest words of a vocabulary by cosine
// similarity using an HNSW graph.
package neighbors

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/coder/hnsw"
)

// ErrNoIndex is returned by Open when no saved index exists at the path.
var ErrNoIndex = errors.New("no saved index")

// Index is an HNSW graph over word vectors.
type Index struct {
	graph *hnsw.SavedGraph[string]
	dim   int
	mu    sync.RWMutex
}

// Result is one neighbour of a query.
type Result struct {
	Word       string
	Similarity float64 // Cosine similarity mapped to [0, 1]
}

// Build creates an index at path over words and their vectors, replacing
// anything saved there. All-zero vectors have no direction and are skipped.
func Build(path string, words []string, vectors [][]float32) (*Index, error) {
	if len(words) != len(vectors) {
		return nil, fmt.Errorf("got %d words but %d vectors", len(words), len(vectors))
	}

	g := &hnsw.SavedGraph[string]{Graph: hnsw.NewGraph[string](), Path: path}
	g.Graph.Distance = hnsw.CosineDistance
	idx := &Index{graph: g}

	nodes := make([]hnsw.Node[string], 0, len(words))
	seen := make(map[string]bool, len(words))
	for i, w := range words {
		v := vectors[i]
		if idx.dim == 0 {
			idx.dim = len(v)
		}
		if len(v) != idx.dim {
			return nil, fmt.Errorf("vector %d (%q) has %d values, want %d", i, w, len(v), idx.dim)
		}
		if seen[w] || isZero(v) {
			continue
		}
		seen[w] = true
		nodes = append(nodes, hnsw.MakeNode(w, v))
	}
	if len(nodes) > 0 {
		g.Add(nodes...)
	}
	return idx, nil
}

// Open loads an index saved by Save.
func Open(path string) (*Index, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNoIndex)
		}
		return nil, err
	}
	g, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return nil, fmt.Errorf("loading index: %w", err)
	}
	g.Graph.Distance = hnsw.CosineDistance
	return &Index{graph: g, dim: g.Dims()}, nil
}

// Search returns the k nearest words to query, closest first.
func (x *Index) Search(query []float32, k int) ([]Result, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph.Len() == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("query has %d values, index has %d", len(query), x.dim)
	}
	if isZero(query) {
		return nil, nil
	}

	nodes := x.graph.Search(query, k)
	results := make([]Result, len(nodes))
	for i, n := range nodes {
		// CosineDistance returns 0 for identical, 2 for opposite.
		dist := x.graph.Distance(query, n.Value)
		results[i] = Result{Word: n.Key, Similarity: 1.0 - float64(dist)/2.0}
	}
	return results, nil
}

// Nearest is Search without the query word itself.
func (x *Index) Nearest(word string, query []float32, k int) ([]Result, error) {
	results, err := x.Search(query, k+1)
	if err != nil {
		return nil, err
	}
	out := results[:0]
	for _, r := range results {
		if r.Word != word && len(out) < k {
			out = append(out, r)
		}
	}
	return out, nil
}

// Len returns the number of indexed words.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.graph.Len()
}

// Dimension returns the vector width of the index.
func (x *Index) Dimension() int { return x.dim }

// Save persists the index to its path.
func (x *Index) Save() error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.graph.Save()
}

func isZero(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
