package coex

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// Cover tracks branch sites seen across runs, one bitset per function.
// Safe for concurrent use.
type Cover struct {
	mu sync.Mutex
	m  map[string]*bitset.BitSet
}

// NewCover returns an empty coverage set.
func NewCover() *Cover {
	return &Cover{m: make(map[string]*bitset.BitSet)}
}

// Add marks a branch site as covered.
// Returns true if the site was not previously covered.
func (c *Cover) Add(fn string, site int) bool {
	assert(site >= 0, "cover: negative site %d", site)

	c.mu.Lock()
	defer c.mu.Unlock()

	bs := c.m[fn]
	if bs == nil {
		bs = bitset.New(uint(site) + 1)
		c.m[fn] = bs
	}
	if bs.Test(uint(site)) {
		return false
	}
	bs.Set(uint(site))
	return true
}

// Has reports whether a branch site has been covered.
func (c *Cover) Has(fn string, site int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	bs := c.m[fn]
	return bs != nil && site >= 0 && bs.Test(uint(site))
}

// Count returns the total number of covered sites.
func (c *Cover) Count() uint {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n uint
	for _, bs := range c.m {
		n += bs.Count()
	}
	return n
}

// Merge adds every branch site recorded in the trace tree and returns the
// number of newly covered sites.
func (c *Cover) Merge(root *TraceNode) int {
	var added int
	var walk func(node *TraceNode)
	walk = func(node *TraceNode) {
		for _, event := range node.Events {
			if branch, ok := event.(*BranchEvent); ok {
				if c.Add(node.Label, branch.Site) {
					added++
				}
			}
		}
		for _, child := range node.Children {
			walk(child)
		}
	}
	walk(root)
	return added
}
