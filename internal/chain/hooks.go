package chain

import (
	"github.com/klingnet-chain/core/internal/chainstore"
	"github.com/klingnet-chain/core/pkg/block"
)

// TxOutputChanges is the opaque result of connecting a block's
// transactions: whatever a UtxoHook needs to remember in order to
// disconnect the same block later. The chain engine never looks
// inside it.
type TxOutputChanges interface{}

// UtxoHook is the full-validation body: the seam where a collaborator
// plugs in real UTXO-set maintenance. The chain engine treats it as a
// black box — it never inspects a transaction's inputs or outputs
// itself, only asks this hook to apply or revert their effects.
type UtxoHook interface {
	// ShouldVerifyTransactions reports whether this configuration needs
	// transaction contents at all. false selects the SPV/header-only
	// path, where header-only submissions are accepted, merkle and
	// finality checks run only when an observer finds a transaction
	// relevant, and Connect/Disconnect are never called.
	ShouldVerifyTransactions() bool

	// ConnectNew applies blk's transactions as the new chain tip,
	// returning whatever undo information Disconnect will later need.
	ConnectNew(height uint64, blk *block.Block) (TxOutputChanges, error)

	// ConnectStored re-applies a historical block's transactions during
	// reorg replay, when only the stored block (not the original
	// submitted object) is available.
	ConnectStored(sb *chainstore.StoredBlock) (TxOutputChanges, error)

	// Disconnect reverts a block's UTXO effects, e.g. during a reorg's
	// old-segment walk.
	Disconnect(sb *chainstore.StoredBlock) error
}

// NullUtxo is the header-only configuration: it never asks for
// transaction contents and connect/disconnect are no-ops. Pair it with
// a chainstore.Store (not an UndoStore) for a pure SPV header chain.
type NullUtxo struct{}

func (NullUtxo) ShouldVerifyTransactions() bool { return false }

func (NullUtxo) ConnectNew(uint64, *block.Block) (TxOutputChanges, error) {
	return nil, nil
}

func (NullUtxo) ConnectStored(*chainstore.StoredBlock) (TxOutputChanges, error) {
	return nil, nil
}

func (NullUtxo) Disconnect(*chainstore.StoredBlock) error {
	return nil
}
