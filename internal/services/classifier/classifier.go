// Package classifier assigns bill line descriptions to primary expense
// categories using an ordered list of keyword rules. First matching
// rule wins; results are memoized per (description, amount type) pair.
package classifier

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// The eight primary categories every summary reports, in display order.
var PrimaryCategories = []string{
	"销售额",  // sales revenue
	"广告费",  // advertising
	"平台佣金", // platform commission
	"仓储费用", // storage
	"产品成本", // product cost
	"退货费用", // returns
	"测评费用", // review/testing
	"物流费",  // logistics
}

// Rule maps a case-insensitive description pattern to a category.
type Rule struct {
	Pattern  string `json:"pattern"`
	Category string `json:"category"`
}

// DefaultRules returns the built-in taxonomy. Order matters: earlier
// rules shadow later ones.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: `sale|销售|订单|revenue`, Category: "销售额"},
		{Pattern: `ad|广告|sponsored|promotion`, Category: "广告费"},
		{Pattern: `commission|fee|佣金|平台费|service`, Category: "平台佣金"},
		{Pattern: `storage|warehouse|仓储|库存`, Category: "仓储费用"},
		{Pattern: `product|cost|产品|采购|inventory`, Category: "产品成本"},
		{Pattern: `return|refund|退货|退款`, Category: "退货费用"},
		{Pattern: `review|test|测评|评价|vine`, Category: "测评费用"},
		{Pattern: `shipping|logistics|物流|运费|delivery`, Category: "物流费"},
	}
}

type compiledRule struct {
	re       *regexp.Regexp
	category string
}

// Classifier holds a compiled rule set and a memo cache keyed by
// "description|amountType". Replacing the rules bumps the version and
// discards the cache, so stale classifications can never leak across
// rule sets.
type Classifier struct {
	mu      sync.RWMutex
	rules   []compiledRule
	source  []Rule
	cache   map[string]string
	version int
	hits    int64
	misses  int64
}

// New compiles the given rules. An empty slice is valid: everything
// classifies to the empty string.
func New(rules []Rule) (*Classifier, error) {
	c := &Classifier{cache: make(map[string]string)}
	if err := c.setRules(rules); err != nil {
		return nil, err
	}
	return c, nil
}

// Compile validates a rule list without building a classifier.
func Compile(rules []Rule) error {
	for i, r := range rules {
		if r.Category == "" {
			return fmt.Errorf("rule %d: empty category", i)
		}
		if _, err := regexp.Compile("(?i)" + r.Pattern); err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, r.Category, err)
		}
	}
	return nil
}

// SetRules replaces the rule set, bumping the version and clearing the
// memo cache.
func (c *Classifier) SetRules(rules []Rule) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setRules(rules)
}

func (c *Classifier) setRules(rules []Rule) error {
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		if r.Category == "" {
			return fmt.Errorf("rule %d: empty category", i)
		}
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, r.Category, err)
		}
		compiled = append(compiled, compiledRule{re: re, category: r.Category})
	}
	c.rules = compiled
	c.source = append([]Rule(nil), rules...)
	c.cache = make(map[string]string)
	c.version++
	return nil
}

// Rules returns a copy of the active rule set.
func (c *Classifier) Rules() []Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Rule(nil), c.source...)
}

// Version returns the current rule-set version. It starts at 1 and
// increments on every SetRules.
func (c *Classifier) Version() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Classify returns the primary category for a description, or "" when
// no rule matches. The amount type participates in the cache key only,
// matching how explicit mappings are keyed.
func (c *Classifier) Classify(desc, amountType string) string {
	key := desc + "|" + amountType

	c.mu.Lock()
	defer c.mu.Unlock()
	if cat, ok := c.cache[key]; ok {
		c.hits++
		return cat
	}

	descLower := strings.ToLower(desc)
	cat := ""
	for _, r := range c.rules {
		if r.re.MatchString(descLower) {
			cat = r.category
			break
		}
	}
	c.cache[key] = cat
	c.misses++
	return cat
}

// CacheStats returns memo cache hit and miss counts.
func (c *Classifier) CacheStats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
