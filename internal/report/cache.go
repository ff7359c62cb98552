package report

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// DefaultCacheCapacity bounds the number of reports retained in memory.
const DefaultCacheCapacity = 100

// Cache is a bounded LRU over resolved reports. Misses go through the
// injected Lookup in a single batched fetch; hits refresh recency. The cache
// outlives individual requests and is safe for concurrent use.
type Cache struct {
	lookup   Lookup
	capacity int

	mu    sync.Mutex
	items map[int64]*list.Element
	order *list.List // front = most recently used
}

type cacheEntry struct {
	id     int64
	report Report
}

func NewCache(lookup Lookup, capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		lookup:   lookup,
		capacity: capacity,
		items:    make(map[int64]*list.Element, capacity),
		order:    list.New(),
	}
}

// ResolveMany resolves the given ids, serving cached entries first and
// fetching the missing remainder in one Lookup call. Ids the collaborator
// cannot resolve are absent from the result; a collaborator failure aborts
// the whole call.
func (c *Cache) ResolveMany(ctx context.Context, ids []int64) (map[int64]Report, error) {
	resolved := make(map[int64]Report, len(ids))

	c.mu.Lock()
	var missing []int64
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if elem, ok := c.items[id]; ok {
			c.order.MoveToFront(elem)
			resolved[id] = elem.Value.(cacheEntry).report
		} else {
			missing = append(missing, id)
		}
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return resolved, nil
	}

	fetched, err := c.lookup.FetchBatch(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("resolving %d reports: %w", len(missing), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range missing {
		rep, ok := fetched[id]
		if !ok {
			continue
		}
		resolved[id] = rep
		c.insertLocked(id, rep)
	}
	c.checkInvariantsLocked()

	return resolved, nil
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) insertLocked(id int64, rep Report) {
	if elem, ok := c.items[id]; ok {
		// Concurrent resolve already inserted it; refresh instead.
		c.order.MoveToFront(elem)
		elem.Value = cacheEntry{id: id, report: rep}
		return
	}

	c.items[id] = c.order.PushFront(cacheEntry{id: id, report: rep})

	for len(c.items) > c.capacity {
		back := c.order.Back()
		if back == nil {
			break
		}
		delete(c.items, back.Value.(cacheEntry).id)
		c.order.Remove(back)
	}
}

// checkInvariantsLocked panics when capacity or recency bookkeeping has
// diverged. That state is a defect, not a recoverable condition.
func (c *Cache) checkInvariantsLocked() {
	if len(c.items) != c.order.Len() || len(c.items) > c.capacity {
		panic(fmt.Sprintf("report cache invariant violated: index=%d order=%d capacity=%d",
			len(c.items), c.order.Len(), c.capacity))
	}
}
