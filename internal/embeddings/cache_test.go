package embeddings

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jankowtf/wordstack/internal/metrics"
	"github.com/jankowtf/wordstack/pkg/text"
)

func TestCacheGetOrCompute(t *testing.T) {
	cache := NewCache("cache-test")
	calls := 0
	compute := func() text.Vector {
		calls++
		return text.Vector{1, 2, 3}
	}

	v1 := cache.GetOrCompute("hello", compute)
	if calls != 1 {
		t.Errorf("expected 1 compute call, got %d", calls)
	}

	// Second call with same key should use cache.
	v2 := cache.GetOrCompute("hello", compute)
	if calls != 1 {
		t.Errorf("expected still 1 compute call, got %d", calls)
	}
	if &v1[0] != &v2[0] {
		t.Error("cached vector should be the stored one, not a copy")
	}

	// Different key should compute.
	cache.GetOrCompute("world", compute)
	if calls != 2 {
		t.Errorf("expected 2 compute calls, got %d", calls)
	}

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 2 || stats.Size != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if got := testutil.ToFloat64(metrics.CacheHits.WithLabelValues("cache-test")); got != 1 {
		t.Errorf("hit counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.CacheMisses.WithLabelValues("cache-test")); got != 2 {
		t.Errorf("miss counter = %v, want 2", got)
	}
}

func TestCacheFirstInsertWins(t *testing.T) {
	cache := NewCache("cache-race-test")

	const workers = 16
	results := make([]text.Vector, workers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = cache.GetOrCompute("word", func() text.Vector {
				return text.Vector{float32(i)}
			})
		}(i)
	}
	close(start)
	wg.Wait()

	stored, ok := cache.Get("word")
	if !ok {
		t.Fatal("expected word to be cached")
	}
	for i, v := range results {
		if &v[0] != &stored[0] {
			t.Errorf("worker %d got %v, stored is %v", i, v, stored)
		}
	}
	if cache.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", cache.Len())
	}
	if stats := cache.Stats(); stats.Misses != 1 || stats.Hits != workers-1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestCacheConcurrentHits(t *testing.T) {
	cache := NewCache("cache-hits-test")
	cache.GetOrCompute("word", func() text.Vector { return text.Vector{1} })

	const workers, rounds = 8, 100
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				cache.GetOrCompute("word", func() text.Vector {
					t.Error("compute called for a cached word")
					return nil
				})
			}
		}()
	}
	wg.Wait()

	if stats := cache.Stats(); stats.Hits != workers*rounds || stats.Misses != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}
