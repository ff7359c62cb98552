package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// stubLookup resolves every id it is given and records each batch.
type stubLookup struct {
	mu      sync.Mutex
	batches [][]int64
	missing map[int64]bool
	err     error
}

func (s *stubLookup) FetchBatch(ctx context.Context, ids []int64) (map[int64]Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	batch := make([]int64, len(ids))
	copy(batch, ids)
	s.batches = append(s.batches, batch)

	out := make(map[int64]Report, len(ids))
	for _, id := range ids {
		if s.missing[id] {
			continue
		}
		out[id] = Report{ID: id, Name: fmt.Sprintf("Report %d", id), CreditCost: float64(id)}
	}
	return out, nil
}

func (s *stubLookup) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func TestResolveMany_FetchesMisses(t *testing.T) {
	lookup := &stubLookup{}
	cache := NewCache(lookup, 10)

	got, err := cache.ResolveMany(context.Background(), []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("ResolveMany failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 reports, got %d", len(got))
	}
	if got[2].Name != "Report 2" || got[2].CreditCost != 2 {
		t.Errorf("Unexpected report payload: %+v", got[2])
	}
	if lookup.calls() != 1 {
		t.Errorf("Expected a single batched fetch, got %d", lookup.calls())
	}
}

func TestResolveMany_FetchesOnlyUncachedSubset(t *testing.T) {
	lookup := &stubLookup{}
	cache := NewCache(lookup, 10)

	if _, err := cache.ResolveMany(context.Background(), []int64{1, 2}); err != nil {
		t.Fatalf("ResolveMany failed: %v", err)
	}
	got, err := cache.ResolveMany(context.Background(), []int64{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("ResolveMany failed: %v", err)
	}

	if len(got) != 4 {
		t.Errorf("Expected 4 reports, got %d", len(got))
	}
	if lookup.calls() != 2 {
		t.Fatalf("Expected 2 fetches, got %d", lookup.calls())
	}
	second := lookup.batches[1]
	if len(second) != 2 || second[0] != 3 || second[1] != 4 {
		t.Errorf("Expected second fetch to cover only {3,4}, got %v", second)
	}
}

func TestResolveMany_DeduplicatesIds(t *testing.T) {
	lookup := &stubLookup{}
	cache := NewCache(lookup, 10)

	got, err := cache.ResolveMany(context.Background(), []int64{7, 7, 7})
	if err != nil {
		t.Fatalf("ResolveMany failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Expected 1 report, got %d", len(got))
	}
	if len(lookup.batches[0]) != 1 {
		t.Errorf("Expected deduplicated fetch, got %v", lookup.batches[0])
	}
}

func TestResolveMany_MissingIdDoesNotAbortBatch(t *testing.T) {
	lookup := &stubLookup{missing: map[int64]bool{2: true}}
	cache := NewCache(lookup, 10)

	got, err := cache.ResolveMany(context.Background(), []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("ResolveMany failed: %v", err)
	}
	if _, ok := got[2]; ok {
		t.Error("Expected id 2 to be absent")
	}
	if len(got) != 2 {
		t.Errorf("Expected the other 2 reports to resolve, got %d", len(got))
	}
	if cache.Len() != 2 {
		t.Errorf("Unresolved id must not be cached, got len %d", cache.Len())
	}
}

func TestResolveMany_LookupErrorPropagates(t *testing.T) {
	wantErr := errors.New("reports service down")
	cache := NewCache(&stubLookup{err: wantErr}, 10)

	_, err := cache.ResolveMany(context.Background(), []int64{1})
	if !errors.Is(err, wantErr) {
		t.Errorf("Expected lookup error to propagate, got %v", err)
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	lookup := &stubLookup{}
	cache := NewCache(lookup, DefaultCacheCapacity)
	ctx := context.Background()

	for id := int64(1); id <= 101; id++ {
		if _, err := cache.ResolveMany(ctx, []int64{id}); err != nil {
			t.Fatalf("ResolveMany(%d) failed: %v", id, err)
		}
	}

	if cache.Len() != DefaultCacheCapacity {
		t.Fatalf("Expected %d cached entries, got %d", DefaultCacheCapacity, cache.Len())
	}

	// Id 1 was the least recently used, so resolving it again must refetch.
	before := lookup.calls()
	if _, err := cache.ResolveMany(ctx, []int64{1}); err != nil {
		t.Fatalf("ResolveMany failed: %v", err)
	}
	if lookup.calls() != before+1 {
		t.Error("Expected evicted id 1 to be fetched again")
	}

	// Id 3 survived both eviction rounds.
	if _, err := cache.ResolveMany(ctx, []int64{3}); err != nil {
		t.Fatalf("ResolveMany failed: %v", err)
	}
	if lookup.calls() != before+1 {
		t.Error("Expected id 3 to still be cached")
	}
}

func TestCache_HitRefreshesRecency(t *testing.T) {
	lookup := &stubLookup{}
	cache := NewCache(lookup, 3)
	ctx := context.Background()

	for id := int64(1); id <= 3; id++ {
		if _, err := cache.ResolveMany(ctx, []int64{id}); err != nil {
			t.Fatalf("ResolveMany failed: %v", err)
		}
	}

	// Touch id 1, then insert id 4: id 2 should be the eviction victim.
	if _, err := cache.ResolveMany(ctx, []int64{1}); err != nil {
		t.Fatalf("ResolveMany failed: %v", err)
	}
	if _, err := cache.ResolveMany(ctx, []int64{4}); err != nil {
		t.Fatalf("ResolveMany failed: %v", err)
	}

	before := lookup.calls()
	if _, err := cache.ResolveMany(ctx, []int64{1}); err != nil {
		t.Fatalf("ResolveMany failed: %v", err)
	}
	if lookup.calls() != before {
		t.Error("Expected refreshed id 1 to survive eviction")
	}

	if _, err := cache.ResolveMany(ctx, []int64{2}); err != nil {
		t.Fatalf("ResolveMany failed: %v", err)
	}
	if lookup.calls() != before+1 {
		t.Error("Expected id 2 to have been evicted")
	}
}

func TestCache_ConcurrentResolves(t *testing.T) {
	lookup := &stubLookup{}
	cache := NewCache(lookup, 50)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 40; i++ {
				ids := []int64{int64(i), int64(i + g), int64(i * 2)}
				if _, err := cache.ResolveMany(ctx, ids); err != nil {
					t.Errorf("ResolveMany failed: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	if cache.Len() > 50 {
		t.Errorf("Capacity exceeded: %d", cache.Len())
	}
}
