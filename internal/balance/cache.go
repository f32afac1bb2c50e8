// internal/balance/cache.go
package balance

import (
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Native is the token key used for the chain's native balance.
var Native = common.Address{}

// Entry is one cached balance. Stale entries keep their last value until the
// next successful fetch.
type Entry struct {
	Value     *big.Int
	UpdatedAt time.Time
	Stale     bool
}

type entryKey struct {
	owner common.Address
	token common.Address
}

// Cache holds balance snapshots. Only the Coordinator writes to it; readers
// always receive copies.
type Cache struct {
	mu         sync.RWMutex
	entries    map[entryKey]Entry
	aggregates map[common.Address]Valuation

	// Statistics (accessed atomically)
	reads  uint64
	writes uint64
}

func newCache() *Cache {
	return &Cache{
		entries:    make(map[entryKey]Entry),
		aggregates: make(map[common.Address]Valuation),
	}
}

// Get returns a copy of the entry for owner and token (Native for the chain coin).
func (c *Cache) Get(owner, token common.Address) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	atomic.AddUint64(&c.reads, 1)
	e, ok := c.entries[entryKey{owner, token}]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(e), true
}

// Aggregate returns the wallet valuation for owner.
func (c *Cache) Aggregate(owner common.Address) (Valuation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	atomic.AddUint64(&c.reads, 1)
	v, ok := c.aggregates[owner]
	if !ok {
		return Valuation{}, false
	}
	return v.clone(), true
}

// Snapshot is every cached balance of one owner.
type Snapshot struct {
	Owner     common.Address
	Native    Entry
	Tokens    map[common.Address]Entry
	Aggregate Valuation
}

// Snapshot returns copies of all entries for owner.
func (c *Cache) Snapshot(owner common.Address) Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	atomic.AddUint64(&c.reads, 1)
	s := Snapshot{Owner: owner, Tokens: make(map[common.Address]Entry)}
	for k, e := range c.entries {
		if k.owner != owner {
			continue
		}
		if k.token == Native {
			s.Native = copyEntry(e)
			continue
		}
		s.Tokens[k.token] = copyEntry(e)
	}
	if v, ok := c.aggregates[owner]; ok {
		s.Aggregate = v.clone()
	}
	return s
}

func (c *Cache) set(owner, token common.Address, value *big.Int, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[entryKey{owner, token}] = Entry{Value: new(big.Int).Set(value), UpdatedAt: at}
	atomic.AddUint64(&c.writes, 1)
}

func (c *Cache) setAggregate(owner common.Address, v Valuation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.aggregates[owner] = v
	atomic.AddUint64(&c.writes, 1)
}

// invalidate marks the listed entries and the owner's aggregate stale.
func (c *Cache) invalidate(owner common.Address, tokens ...common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range tokens {
		k := entryKey{owner, t}
		e, ok := c.entries[k]
		if !ok {
			continue
		}
		e.Stale = true
		c.entries[k] = e
	}
	if v, ok := c.aggregates[owner]; ok {
		v.Stale = true
		c.aggregates[owner] = v
	}
	atomic.AddUint64(&c.writes, 1)
}

// GetStats returns cache statistics.
func (c *Cache) GetStats() (entries, reads, writes uint64) {
	c.mu.RLock()
	entries = uint64(len(c.entries))
	c.mu.RUnlock()

	reads = atomic.LoadUint64(&c.reads)
	writes = atomic.LoadUint64(&c.writes)
	return entries, reads, writes
}

func copyEntry(e Entry) Entry {
	if e.Value != nil {
		e.Value = new(big.Int).Set(e.Value)
	}
	return e
}
