package chainstore

import "github.com/klingnet-chain/core/pkg/types"

// Store is the persistence interface the chain engine is built against.
// Its internals (file format, indexing strategy, durability guarantees)
// are deliberately out of the engine's concern — only this shape is.
type Store interface {
	// Get retrieves a stored block by header hash. Returns ErrNotFound
	// if it isn't present.
	Get(hash types.Hash) (*StoredBlock, error)

	// Put persists a stored block, indexed by its header hash.
	Put(sb *StoredBlock) error

	// Has reports whether a block with the given hash is stored.
	Has(hash types.Hash) (bool, error)

	// GetChainHead returns the stored block currently marked as the
	// active chain's tip. Returns ErrNotFound on a fresh store.
	GetChainHead() (*StoredBlock, error)

	// SetChainHead marks sb as the active chain's tip. The caller is
	// responsible for having already Put sb.
	SetChainHead(sb *StoredBlock) error

	Close() error
}

// UndoStore extends Store with per-block undo data, for a full-validation
// UtxoHook to roll back UTXO effects when a reorg disconnects a block.
type UndoStore interface {
	Store

	PutUndo(hash types.Hash, data []byte) error
	GetUndo(hash types.Hash) ([]byte, error)
	DeleteUndo(hash types.Hash) error
}
