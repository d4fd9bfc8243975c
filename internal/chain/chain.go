// Package chain implements the blockchain state machine: a persistent
// block tree with an orphan pool and a cumulative-work reorg engine,
// parametrised over a difficulty engine and a pair of storage/UTXO
// hooks so the same engine serves both header-only (SPV) and
// full-validation configurations.
package chain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/klingnet-chain/core/config"
	"github.com/klingnet-chain/core/internal/chainstore"
	"github.com/klingnet-chain/core/internal/difficulty"
	"github.com/klingnet-chain/core/internal/log"
	"github.com/klingnet-chain/core/internal/observer"
	"github.com/klingnet-chain/core/internal/orphan"
	"github.com/klingnet-chain/core/pkg/block"
	"github.com/klingnet-chain/core/pkg/tx"
	"github.com/klingnet-chain/core/pkg/types"
)

// Chain ties together the block store, orphan pool, observer registry,
// and difficulty engine into the ingestion/reorg state machine. A
// single mutex serialises ingestion, reorg, and orphan drain; a
// separate lock guards the chain head so readers never block behind a
// long ingestion batch.
type Chain struct {
	mu sync.Mutex // chain_lock: ingestion, reorg, and orphan drain.

	headMu sync.RWMutex
	head   *chainstore.StoredBlock

	store      chainstore.Store
	orphans    *orphan.Pool
	observers  *observer.Registry
	difficulty *difficulty.Engine
	params     *config.NetworkParameters
	utxo       UtxoHook

	statsMu        sync.Mutex
	lastStatsTick  time.Time
	blocksInWindow int
}

// New creates a chain engine over store, parametrised by params and
// utxo. If store has no chain head yet, params.GenesisBlock is
// inserted and made the head.
func New(params *config.NetworkParameters, store chainstore.Store, utxo UtxoHook) (*Chain, error) {
	if params == nil {
		return nil, errors.New("chain: nil network parameters")
	}
	if store == nil {
		return nil, errors.New("chain: nil store")
	}
	if utxo == nil {
		utxo = NullUtxo{}
	}

	c := &Chain{
		store:      store,
		orphans:    orphan.New(),
		observers:  observer.New(),
		difficulty: difficulty.New(params),
		params:     params,
		utxo:       utxo,
	}

	head, err := store.GetChainHead()
	switch {
	case err == nil:
		c.head = head
	case errors.Is(err, chainstore.ErrNotFound):
		if err := c.initGenesis(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return c, nil
}

func (c *Chain) initGenesis() error {
	genesis := chainstore.Build(nil, c.params.GenesisBlock.Header)
	if err := c.store.Put(genesis); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := c.store.SetChainHead(genesis); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	c.head = genesis
	return nil
}

// AddObserver registers o to receive transaction and reorg notifications.
func (c *Chain) AddObserver(o observer.Observer) { c.observers.Add(o) }

// RemoveObserver unregisters o.
func (c *Chain) RemoveObserver(o observer.Observer) { c.observers.Remove(o) }

// BestHeight returns the current chain head's height.
func (c *Chain) BestHeight() uint64 {
	c.headMu.RLock()
	defer c.headMu.RUnlock()
	return c.head.Height
}

// BestBlock returns the current chain head.
func (c *Chain) BestBlock() *chainstore.StoredBlock {
	c.headMu.RLock()
	defer c.headMu.RUnlock()
	return c.head
}

func (c *Chain) setChainHead(sb *chainstore.StoredBlock) error {
	if err := c.store.SetChainHead(sb); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	c.headMu.Lock()
	c.head = sb
	c.headMu.Unlock()
	return nil
}

// IsOrphan reports whether hash is currently held in the orphan pool.
func (c *Chain) IsOrphan(hash types.Hash) bool {
	return c.orphans.Contains(hash)
}

// OrphanRoot walks the orphan pool backward via parent-hash links from
// hash, returning the earliest missing ancestor — the block a peer
// should be asked for next.
func (c *Chain) OrphanRoot(hash types.Hash) types.Hash {
	return c.orphans.Root(hash)
}

// submission is the unified shape SubmitFull and SubmitFiltered reduce
// to before entering the shared ingestion pipeline.
type submission struct {
	header    *block.Header
	full      *block.Block    // set for submit_full
	txHashes  []types.Hash    // set for submit_filtered: hashes still unknown
	knownTxs  []*tx.Transaction
}

// SubmitFull accepts a block with full transaction contents.
func (c *Chain) SubmitFull(blk *block.Block) (accepted bool, err error) {
	if blk == nil || blk.Header == nil {
		return false, ErrHeaderInvalid
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitLocked(submission{header: blk.Header, full: blk}, true)
}

// SubmitFiltered accepts a header plus a partial transaction set:
// txHashes is every hash the block commits to, knownTxs a subset of
// those actually known to the caller. Any knownTxs hash is removed
// from txHashes before processing; a knownTxs entry whose hash is not
// in txHashes is a caller error.
func (c *Chain) SubmitFiltered(header *block.Header, txHashes []types.Hash, knownTxs []*tx.Transaction) (accepted bool, err error) {
	if header == nil {
		return false, ErrHeaderInvalid
	}

	remaining := append([]types.Hash(nil), txHashes...)
	for _, t := range knownTxs {
		h := t.Hash()
		idx := -1
		for i, rh := range remaining {
			if rh == h {
				idx = i
				break
			}
		}
		if idx < 0 {
			return false, ErrBadFilteredSubset
		}
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitLocked(submission{header: header, txHashes: remaining, knownTxs: knownTxs}, true)
}

// submitLocked is the private ingestion routine, run under c.mu.
// external is false only when called recursively from drainOrphans.
func (c *Chain) submitLocked(s submission, external bool) (bool, error) {
	c.tickStats()

	hash := s.header.Hash()

	head := c.BestBlock()
	if hash == head.Hash() {
		return true, nil
	}

	if external && c.orphans.Contains(hash) {
		return false, nil
	}

	fullMode := c.utxo.ShouldVerifyTransactions()
	if fullMode && s.full == nil {
		return false, ErrHeaderInFullMode
	}

	contentsImportant := fullMode
	if !contentsImportant {
		for _, t := range s.knownTxIterable() {
			if c.observers.NotifyRelevant(t) {
				contentsImportant = true
				break
			}
		}
	}

	if err := s.header.VerifyPoW(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrHeaderInvalid, err)
	}
	if err := s.header.VerifyTimestampSanity(2*time.Hour, time.Now()); err != nil {
		return false, fmt.Errorf("%w: %v", ErrHeaderInvalid, err)
	}

	if contentsImportant && s.full != nil {
		if err := s.full.Validate(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrMerkleInvalid, err)
		}
	}

	parent, err := c.store.Get(s.header.PrevHash)
	if err != nil {
		if errors.Is(err, chainstore.ErrNotFound) {
			c.orphans.Add(hash, &orphan.Entry{
				Header:           s.header,
				Block:            s.full,
				FilteredTxHashes: s.txHashes,
				FilteredTxs:      s.knownTxs,
			})
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if !c.params.PassesCheckpoint(parent.Height+1, hash) {
		return false, ErrCheckpointMismatch
	}

	if fullMode {
		median, err := medianTimePast(c.store, parent)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if s.header.Timestamp <= median {
			return false, ErrTimestampTooEarly
		}
	}

	if contentsImportant && s.full != nil {
		for _, t := range s.full.Transactions {
			if !t.IsFinal(parent.Height+1, s.header.Timestamp) {
				return false, ErrNonFinalTransaction
			}
		}
	}

	if err := c.difficulty.Verify(c.store, parent, s.header, parent.Height+1); err != nil {
		return false, fmt.Errorf("%w: %v", ErrDifficultyMismatch, err)
	}

	sb := chainstore.Build(parent, s.header)
	if err := c.store.Put(sb); err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	head = c.BestBlock()
	if s.header.PrevHash == head.Hash() {
		if err := c.connectTip(sb, s.full, s.txHashes); err != nil {
			return false, err
		}
	} else {
		if err := c.acceptFork(sb, s.full, s.knownTxIterable(), s.txHashes); err != nil {
			return false, err
		}
	}

	if external {
		c.drainOrphans()
	}
	return true, nil
}

func (s submission) knownTxIterable() []*tx.Transaction {
	if s.full != nil {
		return s.full.Transactions
	}
	return s.knownTxs
}

// connectTip extends the current best chain with sb. remainingHashes is
// the filtered-block hash set left over after known transactions were
// removed (nil for a full-block submission); each gets a hash-only
// notification since the chain never learns their contents.
func (c *Chain) connectTip(sb *chainstore.StoredBlock, blk *block.Block, remainingHashes []types.Hash) error {
	if c.utxo.ShouldVerifyTransactions() {
		if _, err := c.utxo.ConnectNew(sb.Height, blk); err != nil {
			return fmt.Errorf("chain: connect transactions: %w", err)
		}
	}

	if err := c.setChainHead(sb); err != nil {
		return err
	}

	if blk != nil {
		for _, t := range blk.Transactions {
			c.observers.DeliverTransaction(t, sb, observer.BestChain)
		}
	}
	for _, h := range remainingHashes {
		c.observers.NotifyTransactionHash(h, sb, observer.BestChain)
	}
	c.observers.NotifyNewBestBlock(sb)
	return nil
}

// acceptFork handles sb, already stored by submitLocked, as a side-chain
// block (no UTXO effects applied yet) and triggers a reorg if it now carries more cumulative work than
// the current head. If sb is not a new best and already sits on the
// main chain (a resubmission of a historical block), this is a no-op:
// findSplit(sb, head) returning sb itself means sb is an ancestor of
// head, not a genuine side branch.
func (c *Chain) acceptFork(sb *chainstore.StoredBlock, blk *block.Block, knownTxs []*tx.Transaction, remainingHashes []types.Hash) error {
	head := c.BestBlock()
	if sb.MoreWorkThan(head) {
		for _, t := range knownTxs {
			c.observers.DeliverTransaction(t, sb, observer.SideChain)
		}
		for _, h := range remainingHashes {
			c.observers.NotifyTransactionHash(h, sb, observer.SideChain)
		}
		return c.reorganize(sb, blk)
	}

	split, err := findSplit(c.store, sb, head)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if split == nil {
		return ErrForkWithoutAncestor
	}
	if split.Hash() == sb.Hash() {
		log.Chain.Debug().
			Str("hash", sb.Hash().String()).
			Msg("duplicate of a main-chain block, ignoring")
		return nil
	}

	for _, t := range knownTxs {
		c.observers.DeliverTransaction(t, sb, observer.SideChain)
	}
	for _, h := range remainingHashes {
		c.observers.NotifyTransactionHash(h, sb, observer.SideChain)
	}
	return nil
}

// drainOrphans repeatedly sweeps the orphan pool, reprocessing any
// entry whose parent has since arrived, until a full pass connects
// nothing.
func (c *Chain) drainOrphans() {
	for {
		connected := 0
		for _, hash := range c.orphans.Snapshot() {
			e, ok := c.orphans.Get(hash)
			if !ok {
				continue
			}
			if ok, _ := c.store.Has(e.ParentHash()); !ok {
				continue
			}
			c.orphans.Remove(hash)
			s := submission{header: e.Header, full: e.Block, txHashes: e.FilteredTxHashes, knownTxs: e.FilteredTxs}
			accepted, _ := c.submitLocked(s, false)
			if accepted {
				connected++
			}
		}
		if connected == 0 {
			return
		}
	}
}

func (c *Chain) tickStats() {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	now := time.Now()
	if c.lastStatsTick.IsZero() {
		c.lastStatsTick = now
	}
	c.blocksInWindow++
	if elapsed := now.Sub(c.lastStatsTick); elapsed >= time.Second {
		log.Chain.Debug().
			Float64("blocks_per_sec", float64(c.blocksInWindow)/elapsed.Seconds()).
			Msg("ingestion rate")
		c.lastStatsTick = now
		c.blocksInWindow = 0
	}
}
