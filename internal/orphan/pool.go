// Package orphan holds blocks whose parent hasn't been seen yet. They
// sit here until their parent arrives, at which point the chain
// package drains and re-submits them in insertion order.
package orphan

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/klingnet-chain/core/pkg/block"
	"github.com/klingnet-chain/core/pkg/tx"
	"github.com/klingnet-chain/core/pkg/types"
)

// MaxEntries bounds how many orphans the pool holds at once. Beyond
// this, the oldest orphan is evicted to make room — an unbounded pool
// would let a peer feeding disconnected headers exhaust memory.
const MaxEntries = 1000

// Entry is a block or filtered block held pending its parent's
// arrival. Either Block or the FilteredTxHashes/FilteredTxs pair is set, mirroring
// the two shapes the chain engine accepts at ingestion.
type Entry struct {
	Header           *block.Header
	Block            *block.Block
	FilteredTxHashes []types.Hash
	FilteredTxs      []*tx.Transaction
}

// ParentHash returns the hash this entry is waiting on.
func (e *Entry) ParentHash() types.Hash {
	return e.Header.PrevHash
}

// Pool is an insertion-ordered collection of orphan entries keyed by
// their own header hash. A plain map cannot serve this role: draining
// must walk entries in roughly the order they arrived so that parents
// tend to be connected before their children within a single pass.
type Pool struct {
	mu  sync.Mutex
	lru *simplelru.LRU[types.Hash, *Entry]
}

// New creates an empty orphan pool.
func New() *Pool {
	lru, err := simplelru.NewLRU[types.Hash, *Entry](MaxEntries, nil)
	if err != nil {
		// Only returns an error for a non-positive size, which MaxEntries
		// never is.
		panic(err)
	}
	return &Pool{lru: lru}
}

// Add inserts an orphan entry, keyed by its own header hash. If the
// pool is at capacity, the oldest entry is evicted.
func (p *Pool) Add(hash types.Hash, e *Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lru.Add(hash, e)
}

// Contains reports whether hash is already held as an orphan.
func (p *Pool) Contains(hash types.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lru.Contains(hash)
}

// Remove deletes an orphan entry by hash.
func (p *Pool) Remove(hash types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lru.Remove(hash)
}

// Len returns the number of orphans currently held.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lru.Len()
}

// ByParent returns the hashes of every orphan entry currently waiting
// on parentHash, in pool order.
func (p *Pool) ByParent(parentHash types.Hash) []types.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()

	var waiting []types.Hash
	for _, hash := range p.lru.Keys() {
		e, ok := p.lru.Peek(hash)
		if ok && e.ParentHash() == parentHash {
			waiting = append(waiting, hash)
		}
	}
	return waiting
}

// Snapshot returns the hash of every entry currently held, in pool
// order. Used by drainOrphans to sweep the whole pool each pass.
func (p *Pool) Snapshot() []types.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := p.lru.Keys()
	out := make([]types.Hash, len(keys))
	copy(out, keys)
	return out
}

// Get retrieves an orphan entry by hash without affecting eviction order.
func (p *Pool) Get(hash types.Hash) (*Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lru.Peek(hash)
}

// Root walks the orphan pool backward via parent-hash links starting
// from hash, returning the hash of the earliest ancestor still missing
// from the pool (the block the caller actually needs to fetch next).
// If hash itself is not an orphan, it is its own root.
func (p *Pool) Root(hash types.Hash) types.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := hash
	for {
		e, ok := p.lru.Peek(current)
		if !ok {
			return current
		}
		current = e.ParentHash()
	}
}
