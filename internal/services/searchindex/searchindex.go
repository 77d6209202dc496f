// Package searchindex maintains the field-mapping lookup structures: a
// hash index keyed by "description|amountType" and a rune trie over
// lowercased descriptions for prefix search and auto-matching.
package searchindex

import (
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"

	"billrecon/internal/models"
)

// substringFloor is the result count below which Search supplements
// index hits with a substring scan.
const substringFloor = 10

type node struct {
	children map[rune]*node
	keys     []string
}

func newNode() *node {
	return &node{children: make(map[rune]*node)}
}

// Stats snapshot the index counters.
type Stats struct {
	Size        int   `json:"size"`
	CacheHits   int64 `json:"cacheHits"`
	CacheMisses int64 `json:"cacheMisses"`
	IndexHits   int64 `json:"indexHits"`
	IndexMisses int64 `json:"indexMisses"`
}

// Index holds all saved field mappings and their search structures.
// Mutations keep the hash map and the trie in lockstep: a deleted key
// is removed from both, and empty trie branches are pruned.
type Index struct {
	mu       sync.RWMutex
	mappings map[string]*models.FieldMapping
	root     *node
	cache    map[string]*models.FieldMapping
	stats    Stats
}

// New creates an empty index.
func New() *Index {
	return &Index{
		mappings: make(map[string]*models.FieldMapping),
		root:     newNode(),
		cache:    make(map[string]*models.FieldMapping),
	}
}

// Insert adds or replaces a mapping and invalidates its cached match.
func (ix *Index) Insert(m *models.FieldMapping) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.mappings[m.Key]; !exists {
		ix.trieInsert(strings.ToLower(m.TransactionDesc), m.Key)
	}
	ix.mappings[m.Key] = m
	delete(ix.cache, m.Key)
}

// Delete removes a mapping from the hash map and the trie.
func (ix *Index) Delete(key string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	m, ok := ix.mappings[key]
	if !ok {
		return false
	}
	delete(ix.mappings, key)
	delete(ix.cache, key)
	ix.trieDelete(strings.ToLower(m.TransactionDesc), key)
	return true
}

// Get returns a mapping by key.
func (ix *Index) Get(key string) (*models.FieldMapping, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	m, ok := ix.mappings[key]
	return m, ok
}

// All returns every mapping, ordered by key.
func (ix *Index) All() []*models.FieldMapping {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	keys := make([]string, 0, len(ix.mappings))
	for k := range ix.mappings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*models.FieldMapping, 0, len(keys))
	for _, k := range keys {
		out = append(out, ix.mappings[k])
	}
	return out
}

// Len returns the number of mappings.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.mappings)
}

// Clear drops all mappings, the trie, and the cache.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.mappings = make(map[string]*models.FieldMapping)
	ix.root = newNode()
	ix.cache = make(map[string]*models.FieldMapping)
}

// AutoMatch finds the mapping for a (description, amountType) pair:
// cached result, then exact key, then any mapping whose description
// starts with the given description. Found results are memoized under
// the query key; a hit is validated against the hash map so a deleted
// or replaced mapping is never served from cache.
func (ix *Index) AutoMatch(desc, amountType string) *models.FieldMapping {
	key := models.MappingKey(desc, amountType)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if m, ok := ix.cache[key]; ok {
		if current, live := ix.mappings[m.Key]; live {
			ix.stats.CacheHits++
			ix.cache[key] = current
			return current
		}
		delete(ix.cache, key)
	}
	ix.stats.CacheMisses++

	if m, ok := ix.mappings[key]; ok {
		ix.stats.IndexHits++
		ix.cache[key] = m
		return m
	}

	for _, matchKey := range ix.trieWalk(strings.ToLower(desc)) {
		// Membership re-check: the hash map is authoritative.
		if m, ok := ix.mappings[matchKey]; ok {
			ix.stats.IndexHits++
			ix.cache[key] = m
			return m
		}
	}

	ix.stats.IndexMisses++
	return nil
}

// Search returns mappings for a term: exact key match, then trie
// prefix matches, then (when fewer than substringFloor hits) a
// substring scan ranked by edit distance to the term.
func (ix *Index) Search(term string) []*models.FieldMapping {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	termLower := strings.ToLower(term)
	var results []*models.FieldMapping
	seen := make(map[string]bool)

	if m, ok := ix.mappings[term]; ok {
		results = append(results, m)
		seen[term] = true
	}

	for _, key := range ix.trieWalk(termLower) {
		if seen[key] {
			continue
		}
		if m, ok := ix.mappings[key]; ok {
			results = append(results, m)
			seen[key] = true
		}
	}

	if len(results) >= substringFloor {
		return results
	}

	type scored struct {
		m    *models.FieldMapping
		dist int
	}
	var extra []scored
	for _, key := range ix.sortedKeys() {
		if seen[key] {
			continue
		}
		m := ix.mappings[key]
		descLower := strings.ToLower(m.TransactionDesc)
		if !strings.Contains(descLower, termLower) {
			continue
		}
		extra = append(extra, scored{m: m, dist: levenshtein.ComputeDistance(termLower, descLower)})
	}
	sort.SliceStable(extra, func(i, j int) bool { return extra[i].dist < extra[j].dist })
	for _, s := range extra {
		results = append(results, s.m)
	}

	return results
}

// Stats returns a snapshot of the counters.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	s := ix.stats
	s.Size = len(ix.mappings)
	return s
}

// CacheHitRate returns the auto-match cache hit percentage.
func (ix *Index) CacheHitRate() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	total := ix.stats.CacheHits + ix.stats.CacheMisses
	if total == 0 {
		return 0
	}
	return int(float64(ix.stats.CacheHits)/float64(total)*100 + 0.5)
}

func (ix *Index) sortedKeys() []string {
	keys := make([]string, 0, len(ix.mappings))
	for k := range ix.mappings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (ix *Index) trieInsert(word, key string) {
	n := ix.root
	for _, r := range word {
		child, ok := n.children[r]
		if !ok {
			child = newNode()
			n.children[r] = child
		}
		n = child
	}
	n.keys = append(n.keys, key)
}

// trieDelete removes key from the node at word and prunes branches
// left with no keys and no children.
func (ix *Index) trieDelete(word, key string) {
	runes := []rune(word)
	path := make([]*node, 0, len(runes)+1)
	n := ix.root
	path = append(path, n)
	for _, r := range runes {
		child, ok := n.children[r]
		if !ok {
			return
		}
		n = child
		path = append(path, n)
	}

	kept := n.keys[:0]
	for _, k := range n.keys {
		if k != key {
			kept = append(kept, k)
		}
	}
	n.keys = kept
	if len(n.keys) == 0 {
		n.keys = nil
	}

	for i := len(runes) - 1; i >= 0; i-- {
		child := path[i+1]
		if len(child.keys) > 0 || len(child.children) > 0 {
			break
		}
		delete(path[i].children, runes[i])
	}
}

// trieWalk descends to the node at word and collects every key at or
// below it, i.e. all mappings whose description has word as a prefix.
func (ix *Index) trieWalk(word string) []string {
	n := ix.root
	for _, r := range word {
		child, ok := n.children[r]
		if !ok {
			return nil
		}
		n = child
	}
	var out []string
	collect(n, &out)
	return out
}

func collect(n *node, out *[]string) {
	*out = append(*out, n.keys...)

	if len(n.children) == 0 {
		return
	}
	runes := make([]rune, 0, len(n.children))
	for r := range n.children {
		runes = append(runes, r)
	}
	sort.Slice(runes, func(i, j int) bool { return runes[i] < runes[j] })
	for _, r := range runes {
		collect(n.children[r], out)
	}
}
