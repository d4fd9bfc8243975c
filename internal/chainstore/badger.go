package chainstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klingnet-chain/core/internal/storage"
	"github.com/klingnet-chain/core/pkg/types"
)

// chainNamespace is the storage.PrefixDB namespace the block tree
// keyspace lives under. A BadgerStore's underlying database is a
// single physical file; namespacing under "chain/" keeps the block
// tree's keys from colliding with whatever else a collaborator (a
// wallet index, mempool persistence) might store in the same Badger
// instance.
var chainNamespace = []byte("chain/")

// Key prefixes for the block tree keyspace, relative to chainNamespace.
var (
	prefixBlock  = []byte("b/") // b/<hash(32)> -> StoredBlock JSON
	prefixUndo   = []byte("d/") // d/<hash(32)> -> undo data
	keyChainHead = []byte("s/head")
)

// dbStore implements Store and UndoStore over any storage.DB. Both
// BadgerStore and MemoryStore embed it, backed by a Badger-backed and
// an in-memory storage.DB respectively. db is the (possibly
// namespaced) view all reads/writes go through; closer is the real
// underlying database to shut down, since storage.PrefixDB.Close is a
// no-op that defers lifecycle ownership to whoever opened it.
type dbStore struct {
	db     storage.DB
	closer storage.DB
}

func blockKey(hash types.Hash) []byte {
	key := make([]byte, len(prefixBlock)+types.HashSize)
	copy(key, prefixBlock)
	copy(key[len(prefixBlock):], hash[:])
	return key
}

func undoKey(hash types.Hash) []byte {
	key := make([]byte, len(prefixUndo)+types.HashSize)
	copy(key, prefixUndo)
	copy(key[len(prefixUndo):], hash[:])
	return key
}

// Get retrieves a stored block by header hash.
func (s *dbStore) Get(hash types.Hash) (*StoredBlock, error) {
	data, err := s.db.Get(blockKey(hash))
	if err != nil {
		return nil, ErrNotFound
	}
	var sb StoredBlock
	if err := json.Unmarshal(data, &sb); err != nil {
		return nil, fmt.Errorf("chainstore: unmarshal stored block: %w", err)
	}
	return &sb, nil
}

// Put persists a stored block, indexed by its header hash.
func (s *dbStore) Put(sb *StoredBlock) error {
	data, err := json.Marshal(sb)
	if err != nil {
		return fmt.Errorf("chainstore: marshal stored block: %w", err)
	}
	if err := s.db.Put(blockKey(sb.Hash()), data); err != nil {
		return fmt.Errorf("chainstore: put stored block: %w", err)
	}
	return nil
}

// Has reports whether a block with the given hash is stored.
func (s *dbStore) Has(hash types.Hash) (bool, error) {
	ok, err := s.db.Has(blockKey(hash))
	if err != nil {
		return false, fmt.Errorf("chainstore: has: %w", err)
	}
	return ok, nil
}

// GetChainHead returns the stored block currently marked as the active
// chain's tip.
func (s *dbStore) GetChainHead() (*StoredBlock, error) {
	data, err := s.db.Get(keyChainHead)
	if err != nil {
		return nil, ErrNotFound
	}
	if len(data) != types.HashSize {
		return nil, fmt.Errorf("chainstore: corrupt chain head pointer: %d bytes", len(data))
	}
	var hash types.Hash
	copy(hash[:], data)
	return s.Get(hash)
}

// SetChainHead marks sb as the active chain's tip.
func (s *dbStore) SetChainHead(sb *StoredBlock) error {
	hash := sb.Hash()
	if err := s.db.Put(keyChainHead, hash[:]); err != nil {
		return fmt.Errorf("chainstore: set chain head: %w", err)
	}
	return nil
}

// PutUndo stores undo data for a block, used to roll back its UTXO
// effects if it is later disconnected during a reorg.
func (s *dbStore) PutUndo(hash types.Hash, data []byte) error {
	if err := s.db.Put(undoKey(hash), data); err != nil {
		return fmt.Errorf("chainstore: put undo: %w", err)
	}
	return nil
}

// GetUndo retrieves undo data for a block.
func (s *dbStore) GetUndo(hash types.Hash) ([]byte, error) {
	data, err := s.db.Get(undoKey(hash))
	if err != nil {
		return nil, errors.New("chainstore: undo data not found")
	}
	return data, nil
}

// DeleteUndo removes undo data for a block once it no longer needs to
// be reversible (it has matured past any plausible reorg depth).
func (s *dbStore) DeleteUndo(hash types.Hash) error {
	return s.db.Delete(undoKey(hash))
}

// Close closes the underlying database.
func (s *dbStore) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return s.db.Close()
}

// BadgerStore persists the block tree to a Badger-backed database on
// disk.
type BadgerStore struct {
	*dbStore
}

// NewBadgerStore opens (or creates) a Badger-backed block tree store
// at the given path. The block tree keyspace is namespaced under
// chainNamespace so the same on-disk database could later be shared
// with another subsystem's keys without collision.
func NewBadgerStore(path string) (*BadgerStore, error) {
	db, err := storage.NewBadger(path)
	if err != nil {
		return nil, fmt.Errorf("chainstore: open badger store: %w", err)
	}
	return &BadgerStore{dbStore: &dbStore{db: storage.NewPrefixDB(db, chainNamespace), closer: db}}, nil
}
