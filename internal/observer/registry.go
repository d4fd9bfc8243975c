// Package observer notifies external collaborators (wallets, indexers,
// explorers) about transactions and chain-shape changes as the chain
// engine processes blocks. Observers are plain interfaces; the registry
// itself knows nothing about their implementations.
package observer

import (
	"sync"

	"github.com/klingnet-chain/core/internal/chainstore"
	"github.com/klingnet-chain/core/pkg/tx"
	"github.com/klingnet-chain/core/pkg/types"
)

// BlockType distinguishes a best-chain connection from a side-chain one
// when an observer is told about a transaction.
type BlockType int

const (
	BestChain BlockType = iota
	SideChain
)

// Observer is the capability set a collaborator implements to hear
// about transactions and reorganisations as they happen. Implementations
// must tolerate being called concurrently with their own Remove from the
// registry that is notifying them.
type Observer interface {
	// IsTransactionRelevant reports whether tx matters to this observer.
	// The chain engine calls this before deciding whether a block's
	// contents need full verification (the SPV relevance probe).
	IsTransactionRelevant(t *tx.Transaction) bool

	// ReceiveFromBlock delivers a transaction the observer previously
	// marked relevant, along with the block it landed in and whether
	// that block is on the best chain or a side chain.
	ReceiveFromBlock(t *tx.Transaction, sb *chainstore.StoredBlock, bt BlockType)

	// NotifyTransactionInBlock is the filtered-mode counterpart of
	// ReceiveFromBlock: only the transaction's hash is known, not its
	// full contents.
	NotifyTransactionInBlock(txHash types.Hash, sb *chainstore.StoredBlock, bt BlockType)

	// NotifyNewBestBlock fires once per block that becomes (or extends)
	// the best chain tip, after it is connected.
	NotifyNewBestBlock(sb *chainstore.StoredBlock)

	// Reorganize fires when the best chain is rerouted: split is the
	// common ancestor, oldSegment the disconnected blocks (tip-first,
	// as walked from the old head down to split), newSegment the
	// connected blocks (tip-first, walked from the new head down to
	// split).
	Reorganize(split *chainstore.StoredBlock, oldSegment, newSegment []*chainstore.StoredBlock)
}

// Registry holds the set of currently subscribed observers and notifies
// them in registration order. It is safe for concurrent use, including
// an observer calling Remove on itself from inside a notification it is
// currently receiving.
type Registry struct {
	mu        sync.Mutex
	observers []Observer
}

// New creates an empty observer registry.
func New() *Registry {
	return &Registry{}
}

// Add subscribes an observer. A given Observer value may be registered
// more than once; each registration is notified independently.
func (r *Registry) Add(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Remove unsubscribes the first matching registration of o. Safe to
// call from within a notification callback, including the observer
// removing itself.
func (r *Registry) Remove(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.observers {
		if existing == o {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

// Len reports the number of currently registered observers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.observers)
}

// snapshot returns a copy of the current observer slice, taken under
// lock. Remove shifts the live r.observers in place, so callers range
// over this copy, which stays valid while Add or Remove runs.
func (r *Registry) snapshot() []Observer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Observer, len(r.observers))
	copy(out, r.observers)
	return out
}

// Each walks the registered observers in order, invoking fn on each.
// fn may call Remove on the registry, including removing the very
// observer it was just passed (self-removal); such removals land on the
// live registry, not the snapshot this walk iterates, so the walk
// itself is unaffected and always visits every observer that was
// registered at the moment Each started once.
func (r *Registry) Each(fn func(o Observer)) {
	for _, o := range r.snapshot() {
		fn(o)
	}
}

// NotifyRelevant reports whether any currently registered observer
// considers t relevant. Used by the chain engine's SPV relevance probe
// to decide whether a block's contents need full verification.
func (r *Registry) NotifyRelevant(t *tx.Transaction) bool {
	for _, o := range r.snapshot() {
		if o.IsTransactionRelevant(t) {
			return true
		}
	}
	return false
}

// NotifyTransactionHash tells every observer that txHash landed in sb,
// without the transaction's contents — the hash-only counterpart of
// DeliverTransaction, used for a filtered block's hashes that were
// never resolved to a known transaction.
func (r *Registry) NotifyTransactionHash(txHash types.Hash, sb *chainstore.StoredBlock, bt BlockType) {
	r.Each(func(o Observer) {
		o.NotifyTransactionInBlock(txHash, sb, bt)
	})
}

// NotifyNewBestBlock tells every observer that sb is the new chain tip.
func (r *Registry) NotifyNewBestBlock(sb *chainstore.StoredBlock) {
	r.Each(func(o Observer) {
		o.NotifyNewBestBlock(sb)
	})
}

// NotifyReorganize tells every observer that the best chain was
// rerouted from split through oldSegment to newSegment.
func (r *Registry) NotifyReorganize(split *chainstore.StoredBlock, oldSegment, newSegment []*chainstore.StoredBlock) {
	r.Each(func(o Observer) {
		o.Reorganize(split, oldSegment, newSegment)
	})
}

// DeliverTransaction hands t to every observer that considers it
// relevant, as having landed in sb with the given block type. The
// first such observer receives t itself; every subsequent one receives
// a fresh Clone, since observers are free to mutate what they're
// handed and must not alias each other's copy.
func (r *Registry) DeliverTransaction(t *tx.Transaction, sb *chainstore.StoredBlock, bt BlockType) {
	delivered := false
	for _, o := range r.snapshot() {
		if !o.IsTransactionRelevant(t) {
			continue
		}
		if !delivered {
			o.ReceiveFromBlock(t, sb, bt)
			delivered = true
			continue
		}
		o.ReceiveFromBlock(t.Clone(), sb, bt)
	}
}
