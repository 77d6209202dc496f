package searchindex

import (
	"fmt"
	"testing"

	"billrecon/internal/models"
)

func mapping(desc, amountType, category string) *models.FieldMapping {
	return &models.FieldMapping{
		Key:             models.MappingKey(desc, amountType),
		TransactionDesc: desc,
		AmountType:      amountType,
		PrimaryCategory: category,
	}
}

func TestInsertAndGet(t *testing.T) {
	ix := New()
	m := mapping("FBA storage fee", "Fee", "仓储费用")
	ix.Insert(m)

	got, ok := ix.Get("FBA storage fee|Fee")
	if !ok || got.PrimaryCategory != "仓储费用" {
		t.Fatalf("Get() = %v, %v", got, ok)
	}
	if ix.Len() != 1 {
		t.Errorf("Len() = %d, want 1", ix.Len())
	}
}

func TestAutoMatchExact(t *testing.T) {
	ix := New()
	ix.Insert(mapping("Sponsored Products", "Fee", "广告费"))

	m := ix.AutoMatch("Sponsored Products", "Fee")
	if m == nil || m.PrimaryCategory != "广告费" {
		t.Fatalf("AutoMatch() = %v, want exact hit", m)
	}

	// Second call is served from cache.
	ix.AutoMatch("Sponsored Products", "Fee")
	stats := ix.Stats()
	if stats.CacheHits != 1 {
		t.Errorf("CacheHits = %d, want 1", stats.CacheHits)
	}
}

func TestAutoMatchDescriptionPrefix(t *testing.T) {
	ix := New()
	ix.Insert(mapping("shipping", "Fee", "物流费"))

	// Same amount type missing, but "shipping" prefixes the stored
	// description's trie path when the queried description extends it.
	m := ix.AutoMatch("shipping", "Charge")
	if m == nil || m.PrimaryCategory != "物流费" {
		t.Fatalf("AutoMatch() = %v, want prefix hit via trie", m)
	}
}

func TestAutoMatchMiss(t *testing.T) {
	ix := New()
	ix.Insert(mapping("shipping", "Fee", "物流费"))

	if m := ix.AutoMatch("unrelated", ""); m != nil {
		t.Errorf("AutoMatch() = %v, want nil", m)
	}
	stats := ix.Stats()
	if stats.IndexMisses != 1 {
		t.Errorf("IndexMisses = %d, want 1", stats.IndexMisses)
	}
}

func TestDeleteRemovesFromBothStructures(t *testing.T) {
	ix := New()
	ix.Insert(mapping("storage fee", "Fee", "仓储费用"))
	ix.Insert(mapping("storage rent", "Fee", "仓储费用"))

	if !ix.Delete("storage fee|Fee") {
		t.Fatal("Delete() = false, want true")
	}
	if _, ok := ix.Get("storage fee|Fee"); ok {
		t.Error("deleted key still in hash map")
	}

	// The trie must no longer surface the deleted key.
	results := ix.Search("storage")
	if len(results) != 1 || results[0].Key != "storage rent|Fee" {
		t.Errorf("Search() after delete = %v, want only storage rent", results)
	}

	// Auto-match against the deleted description must not resurrect it.
	if m := ix.AutoMatch("storage fee", "Fee"); m != nil {
		t.Errorf("AutoMatch() after delete = %v, want nil", m)
	}
}

func TestAutoMatchCacheDropsDeletedMapping(t *testing.T) {
	ix := New()
	ix.Insert(mapping("storage fee", "Fee", "仓储费用"))

	// Prefix query: the result is memoized under the query's own key,
	// not under the mapping's key.
	if m := ix.AutoMatch("storage", ""); m == nil || m.Key != "storage fee|Fee" {
		t.Fatalf("AutoMatch() = %v, want prefix hit", m)
	}

	ix.Delete("storage fee|Fee")

	if m := ix.AutoMatch("storage", ""); m != nil {
		t.Errorf("AutoMatch() after delete = %v, want nil", m)
	}
}

func TestAutoMatchCacheFollowsReplacement(t *testing.T) {
	ix := New()
	ix.Insert(mapping("storage fee", "Fee", "仓储费用"))
	ix.AutoMatch("storage", "")

	// Replacing the mapping must not leave the old object in cached
	// prefix results.
	ix.Insert(mapping("storage fee", "Fee", "产品成本"))

	if m := ix.AutoMatch("storage", ""); m == nil || m.PrimaryCategory != "产品成本" {
		t.Errorf("AutoMatch() after replace = %v, want updated category", m)
	}
}

func TestDeletePrunesTrieBranches(t *testing.T) {
	ix := New()
	ix.Insert(mapping("abc", "", "x"))
	ix.Delete("abc|")

	if got := ix.trieWalk(""); len(got) != 0 {
		t.Errorf("trie not pruned: %v", got)
	}
	if len(ix.root.children) != 0 {
		t.Errorf("root retains %d children after prune", len(ix.root.children))
	}
}

func TestDeleteKeepsSharedPrefix(t *testing.T) {
	ix := New()
	ix.Insert(mapping("abc", "", "x"))
	ix.Insert(mapping("abcd", "", "y"))
	ix.Delete("abcd|")

	results := ix.Search("abc")
	if len(results) != 1 || results[0].Key != "abc|" {
		t.Errorf("Search(abc) = %v, want abc| only", results)
	}
}

func TestSearchOrdering(t *testing.T) {
	ix := New()
	ix.Insert(mapping("ad spend", "Fee", "广告费"))
	ix.Insert(mapping("ad spend extra", "Fee", "广告费"))
	ix.Insert(mapping("brand ad", "Fee", "广告费"))

	results := ix.Search("ad")
	if len(results) != 3 {
		t.Fatalf("Search() returned %d results, want 3", len(results))
	}
	// Prefix hits lead; the substring-only hit comes last.
	if results[len(results)-1].Key != "brand ad|Fee" {
		t.Errorf("substring hit should rank after prefix hits: %v", keysOf(results))
	}
}

func TestSearchSubstringFallbackSkippedWhenEnoughHits(t *testing.T) {
	ix := New()
	for i := 0; i < substringFloor; i++ {
		ix.Insert(mapping(fmt.Sprintf("fee type %d", i), "", "平台佣金"))
	}
	ix.Insert(mapping("monthly fee", "", "平台佣金"))

	results := ix.Search("fee")
	// Ten prefix hits satisfy the floor; "monthly fee" (substring only)
	// is not scanned in.
	if len(results) != substringFloor {
		t.Errorf("Search() returned %d results, want %d", len(results), substringFloor)
	}
}

func TestSearchExactKeyFirst(t *testing.T) {
	ix := New()
	ix.Insert(mapping("fee", "A", "平台佣金"))
	ix.Insert(mapping("fee", "B", "平台佣金"))

	results := ix.Search("fee|B")
	if len(results) == 0 || results[0].Key != "fee|B" {
		t.Errorf("exact key should lead: %v", keysOf(results))
	}
}

func TestClear(t *testing.T) {
	ix := New()
	ix.Insert(mapping("x", "", "y"))
	ix.Clear()

	if ix.Len() != 0 {
		t.Errorf("Len() = %d after Clear", ix.Len())
	}
	if results := ix.Search("x"); len(results) != 0 {
		t.Errorf("Search() after Clear = %v", results)
	}
}

func TestCacheHitRate(t *testing.T) {
	ix := New()
	ix.Insert(mapping("ad", "", "广告费"))

	ix.AutoMatch("ad", "") // miss, then cached
	ix.AutoMatch("ad", "") // hit
	ix.AutoMatch("ad", "") // hit

	if rate := ix.CacheHitRate(); rate != 67 {
		t.Errorf("CacheHitRate() = %d, want 67", rate)
	}
}

func keysOf(ms []*models.FieldMapping) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Key
	}
	return out
}
