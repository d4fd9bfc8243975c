package chainstore

import "github.com/klingnet-chain/core/internal/storage"

// MemoryStore persists the block tree to an in-memory map. Used for
// tests and for the filtered-header-only mode where durability across
// restarts is not required.
type MemoryStore struct {
	*dbStore
}

// NewMemoryStore creates an empty in-memory block tree store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{dbStore: &dbStore{db: storage.NewMemory()}}
}
