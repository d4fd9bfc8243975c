// Package chainstore persists the block tree: stored blocks keyed by
// header hash, linked to their parent by hash only, plus the current
// chain head. It implements no consensus logic of its own — the chain
// package decides what to connect, reorg onto, or reject.
package chainstore

import (
	"errors"
	"math/big"

	"github.com/klingnet-chain/core/pkg/block"
	"github.com/klingnet-chain/core/pkg/types"
)

// ErrNotFound is returned by Get and GetChainHead when the requested
// block (or any chain head at all) is not present.
var ErrNotFound = errors.New("chainstore: block not found")

// StoredBlock is a header plus the tree-position metadata the chain
// engine derives for it: its height above genesis and its cumulative
// proof-of-work. The parent is referenced only by the header's
// PrevHash — never by a direct pointer or index — so storing a block
// can never create a structural cycle through shared memory.
type StoredBlock struct {
	Header         *block.Header `json:"header"`
	Height         uint64        `json:"height"`
	CumulativeWork *big.Int      `json:"cumulative_work"`
}

// Hash returns the stored block's header hash.
func (sb *StoredBlock) Hash() types.Hash {
	return sb.Header.Hash()
}

// Build derives a StoredBlock for header given its already-stored
// parent. parent is nil only for genesis: height is then 0 and
// cumulative work is just the genesis block's own work.
func Build(parent *StoredBlock, header *block.Header) *StoredBlock {
	work := block.CumulativeWork(header.Bits)

	if parent == nil {
		return &StoredBlock{Header: header, Height: 0, CumulativeWork: work}
	}

	return &StoredBlock{
		Header:         header,
		Height:         parent.Height + 1,
		CumulativeWork: new(big.Int).Add(parent.CumulativeWork, work),
	}
}

// MoreWorkThan reports whether sb has strictly greater cumulative work
// than other. A nil other chain head means sb always wins (fresh store).
func (sb *StoredBlock) MoreWorkThan(other *StoredBlock) bool {
	if other == nil {
		return true
	}
	return sb.CumulativeWork.Cmp(other.CumulativeWork) > 0
}
