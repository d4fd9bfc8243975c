package chain

import (
	"errors"
	"fmt"

	"github.com/klingnet-chain/core/internal/chainstore"
	"github.com/klingnet-chain/core/internal/log"
	"github.com/klingnet-chain/core/pkg/block"
)

// MaxReorgDepth bounds how many blocks a single reorg may disconnect
// or connect. A split further back than this is rejected outright
// rather than walked — an attacker feeding a deeply forked chain
// should not be able to force unbounded disconnect/reconnect work.
const MaxReorgDepth = 1000

// ErrReorgTooDeep is returned when a reorg's split lies further back
// than MaxReorgDepth.
var ErrReorgTooDeep = errors.New("chain: reorg exceeds maximum depth")

// findSplit returns the common ancestor of a and b: the highest stored
// block reachable from both by following parent links. Returns nil,
// nil (not an error) if either cursor walks off the store before
// meeting — the two chains share no recorded ancestor.
func findSplit(store chainstore.Store, a, b *chainstore.StoredBlock) (*chainstore.StoredBlock, error) {
	for a.Height > b.Height {
		parent, ok, err := stepParent(store, a)
		if err != nil || !ok {
			return nil, err
		}
		a = parent
	}
	for b.Height > a.Height {
		parent, ok, err := stepParent(store, b)
		if err != nil || !ok {
			return nil, err
		}
		b = parent
	}

	for a.Hash() != b.Hash() {
		if a.Height == 0 {
			return nil, nil
		}
		aParent, ok, err := stepParent(store, a)
		if err != nil || !ok {
			return nil, err
		}
		bParent, ok, err := stepParent(store, b)
		if err != nil || !ok {
			return nil, err
		}
		a, b = aParent, bParent
	}
	return a, nil
}

func stepParent(store chainstore.Store, sb *chainstore.StoredBlock) (*chainstore.StoredBlock, bool, error) {
	parent, err := store.Get(sb.Header.PrevHash)
	if err != nil {
		if errors.Is(err, chainstore.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return parent, true, nil
}

// getPartialChain walks parents from higher, collecting every block
// down to (but excluding) lower, returned tip-first (highest height
// first). A nil parent encountered before reaching lower means the
// segment is disconnected from its claimed base.
func getPartialChain(store chainstore.Store, higher, lower *chainstore.StoredBlock) ([]*chainstore.StoredBlock, error) {
	if higher.Height < lower.Height {
		return nil, fmt.Errorf("chain: getPartialChain: higher block below lower block")
	}
	if higher.Height-lower.Height > MaxReorgDepth {
		return nil, fmt.Errorf("%w: %d blocks", ErrReorgTooDeep, higher.Height-lower.Height)
	}

	segment := make([]*chainstore.StoredBlock, 0, higher.Height-lower.Height)
	cur := higher
	for cur.Hash() != lower.Hash() {
		segment = append(segment, cur)
		parent, ok, err := stepParent(store, cur)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrOrphanedSegment
		}
		cur = parent
	}
	return segment, nil
}

// reorganize switches the active chain from the current head onto
// newHead, which must already be stored with more cumulative work than
// the current head. blk is the freshly-submitted block behind newHead,
// if any — avoids a redundant store read when connecting the new tip.
func (c *Chain) reorganize(newHead *chainstore.StoredBlock, blk *block.Block) error {
	oldHead := c.BestBlock()

	split, err := findSplit(c.store, newHead, oldHead)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if split == nil {
		return ErrForkWithoutAncestor
	}

	oldSegment, err := getPartialChain(c.store, oldHead, split)
	if err != nil {
		return err
	}
	newSegment, err := getPartialChain(c.store, newHead, split)
	if err != nil {
		return err
	}

	log.Chain.Info().
		Uint64("split_height", split.Height).
		Int("disconnect", len(oldSegment)).
		Int("connect", len(newSegment)).
		Msg("reorganizing chain")

	if c.utxo.ShouldVerifyTransactions() {
		if err := c.disconnectSegment(oldSegment); err != nil {
			return err
		}
		if err := c.connectSegment(newSegment, newHead, blk); err != nil {
			return err
		}
	}
	// Header-only (SPV) configurations need no extra work here: every
	// block in newSegment was already flat-written to the store when it
	// first arrived as a side-chain block.

	c.observers.NotifyReorganize(split, oldSegment, newSegment)

	return c.setChainHead(newHead)
}

// disconnectSegment reverts old-segment blocks top-down (highest
// height first, the order getPartialChain already returns them in).
func (c *Chain) disconnectSegment(oldSegment []*chainstore.StoredBlock) error {
	for _, sb := range oldSegment {
		if err := c.utxo.Disconnect(sb); err != nil {
			return fmt.Errorf("%w: %v", ErrPruned, err)
		}
	}
	return nil
}

// connectSegment applies new-segment blocks bottom-up (closest to the
// split first — the reverse of getPartialChain's order), re-running
// the median-time-past check against each block's actual parent since
// these blocks may have sat unconnected in the store as a side chain
// for some time before the reorg promoted them.
func (c *Chain) connectSegment(newSegment []*chainstore.StoredBlock, newHead *chainstore.StoredBlock, blk *block.Block) error {
	for i := len(newSegment) - 1; i >= 0; i-- {
		sb := newSegment[i]

		parent, err := c.store.Get(sb.Header.PrevHash)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		median, err := medianTimePast(c.store, parent)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if sb.Header.Timestamp <= median {
			return ErrTimestampTooEarly
		}

		if sb.Hash() == newHead.Hash() && blk != nil {
			if _, err := c.utxo.ConnectNew(sb.Height, blk); err != nil {
				return fmt.Errorf("chain: connect transactions: %w", err)
			}
			continue
		}
		if _, err := c.utxo.ConnectStored(sb); err != nil {
			return fmt.Errorf("chain: connect transactions: %w", err)
		}
	}
	return nil
}
