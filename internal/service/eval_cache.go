package service

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/catalogforge/ingestpipe/internal/domain/fieldset"
	"github.com/catalogforge/ingestpipe/internal/domain/itemctx"
	"github.com/catalogforge/ingestpipe/internal/domain/ruleset"
)

// evalCacheEntry is a doubly-linked list node for the LRU cache.
type evalCacheEntry struct {
	key    uint64
	result ruleset.EvalResult
	prev   *evalCacheEntry
	next   *evalCacheEntry
}

// evalCache provides bounded LRU caching of canonical RuleSet.Evaluate
// results within one batch. Bulk upstream syncs routinely carry long
// runs of items whose mapped payload, changed-key set, and action are
// byte-identical (a price-list refresh touching only one shared field
// across thousands of otherwise-untouched items); caching spares every
// item after the first an identical walk over the same compiled rules.
//
// Grounded on the teacher's ResultCache (policy_service.go): same
// doubly-linked-list-plus-map LRU shape, same Mutex-guarded Get/Put.
// Scoped to a single Processor (one per Pipeline.Run batch), so a
// cached result's Now()/flag snapshot/lookup inputs are guaranteed
// identical to a fresh Evaluate call's — nothing in the cache's
// lifetime changes those underneath it.
type evalCache struct {
	mu       sync.Mutex
	maxSize  int
	entries  map[uint64]*evalCacheEntry
	head     *evalCacheEntry // most recently used
	tail     *evalCacheEntry // least recently used
}

// newEvalCache creates a new LRU cache with the given max size. maxSize
// <= 0 disables caching: Get always misses and Put is a no-op.
func newEvalCache(maxSize int) *evalCache {
	return &evalCache{
		maxSize: maxSize,
		entries: make(map[uint64]*evalCacheEntry, maxSize),
	}
}

// Get retrieves a cached result. Returns (result, true) on hit, (zero
// value, false) on miss. A hit moves the entry to the head.
func (c *evalCache) Get(key uint64) (ruleset.EvalResult, bool) {
	if c == nil || c.maxSize <= 0 {
		return ruleset.EvalResult{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return ruleset.EvalResult{}, false
	}
	c.moveToHeadLocked(e)
	return cloneResult(e.result), true
}

// Put stores a result in the cache, evicting the least recently used
// entry if at capacity.
func (c *evalCache) Put(key uint64, result ruleset.EvalResult) {
	if c == nil || c.maxSize <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.result = result
		c.moveToHeadLocked(e)
		return
	}

	if len(c.entries) >= c.maxSize && c.tail != nil {
		delete(c.entries, c.tail.key)
		c.unlinkLocked(c.tail)
	}

	e := &evalCacheEntry{key: key, result: result}
	c.entries[key] = e
	c.pushHeadLocked(e)
}

func (c *evalCache) moveToHeadLocked(e *evalCacheEntry) {
	if c.head == e {
		return
	}
	c.unlinkLocked(e)
	c.pushHeadLocked(e)
}

func (c *evalCache) pushHeadLocked(e *evalCacheEntry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *evalCache) unlinkLocked(e *evalCacheEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

// cloneResult returns a deep-enough copy of result so a cache hit never
// lets one item's mutation of its Changes patch or ChangedKeys set leak
// into another item's (or a later Put's) view of the same entry.
func cloneResult(result ruleset.EvalResult) ruleset.EvalResult {
	fired := make([]string, len(result.Fired))
	copy(fired, result.Fired)
	return ruleset.EvalResult{
		Changes:     result.Changes.Clone(),
		Fired:       fired,
		ChangedKeys: result.ChangedKeys.Clone(),
		AllKeys:     result.AllKeys,
	}
}

// computeEvalCacheKey hashes the RuleSet.Evaluate inputs that can affect
// its output: the ruleset's version (distinct rules, distinct key), the
// action, the all-keys flag, the sorted changed-key set, and the
// canonical JSON of the payload rules actually read (Payload/MenuItem).
// encoding/json sorts map keys, so two equal maps always hash equal
// regardless of insertion order.
//
// Mirrors the teacher's computeCacheKey: an xxhash.Digest fed each
// component in turn with a NUL-byte separator so no field's own
// delimiter characters can collide two distinct inputs onto one hash.
func computeEvalCacheKey(version string, action itemctx.Action, allKeys bool, changedKeys fieldset.Set, payload map[string]any, menuItem map[string]any, present bool) (uint64, bool) {
	payloadJSON, err := sortedJSON(payload)
	if err != nil {
		return 0, false
	}
	menuItemJSON, err := sortedJSON(menuItem)
	if err != nil {
		return 0, false
	}

	h := xxhash.New()
	_, _ = h.WriteString(version)
	h.Write([]byte{0})
	_, _ = h.WriteString(string(action))
	h.Write([]byte{0})
	writeBool(h, allKeys)
	h.Write([]byte{0})
	_, _ = h.WriteString(joinSorted(changedKeys.Sorted()))
	h.Write([]byte{0})
	writeBool(h, present)
	h.Write([]byte{0})
	_, _ = h.Write(payloadJSON)
	h.Write([]byte{0})
	_, _ = h.Write(menuItemJSON)
	return h.Sum64(), true
}

func writeBool(h *xxhash.Digest, b bool) {
	if b {
		h.Write([]byte{1})
		return
	}
	h.Write([]byte{0})
}

func sortedJSON(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	return json.Marshal(m)
}

func joinSorted(items []string) string {
	sort.Strings(items)
	out := make([]byte, 0, len(items)*8)
	for i, s := range items {
		if i > 0 {
			out = append(out, 0)
		}
		out = append(out, s...)
	}
	return string(out)
}
