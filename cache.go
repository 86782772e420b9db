package sqlbridge

import (
	"maps"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// plan is the value-independent outcome of a rewrite: the final SQL and the
// key bound to each marker, left to right.
type plan struct {
	dialect Dialect
	sql     string
	sig     string
	out     string
	order   []string
}

// bind lays params out in marker order.
func (p *plan) bind(params map[string]Value) []Value {
	out := make([]Value, len(p.order))
	for i, k := range p.order {
		out[i] = params[k]
	}
	return out
}

// planCache is a bounded LRU of rewrite plans, shared by every Builder and
// Statement of one Bridge.
type planCache struct {
	lru *lru.Cache[uint64, *plan]
}

// newPlanCache returns nil when size is not positive, which disables caching.
func newPlanCache(size int) *planCache {
	if size <= 0 {
		return nil
	}
	c, err := lru.New[uint64, *plan](size)
	if err != nil {
		return nil
	}
	return &planCache{lru: c}
}

// planKey hashes the dialect, the SQL and the sorted key set. The signature
// string lets a hit be checked against hash collisions.
func planKey(d Dialect, sql string, params map[string]Value) (uint64, string) {
	sig := strings.Join(slices.Sorted(maps.Keys(params)), "\x00")
	h := xxhash.New()
	_, _ = h.WriteString(d.String())
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(sql)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(sig)
	return h.Sum64(), sig
}

func (c *planCache) get(key uint64, d Dialect, sql, sig string) (*plan, bool) {
	p, ok := c.lru.Get(key)
	if !ok || p.dialect != d || p.sql != sql || p.sig != sig {
		return nil, false
	}
	return p, true
}

func (c *planCache) put(key uint64, p *plan) {
	c.lru.Add(key, p)
}

func (c *planCache) size() int {
	return c.lru.Len()
}
