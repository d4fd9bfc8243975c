package chain

import "errors"

// Error kinds surfaced by the chain engine. Orphan insertion and
// duplicate-block detection are deliberately not errors: Submit
// reports them through its return value instead.
var (
	ErrHeaderInvalid       = errors.New("chain: header invalid")
	ErrMerkleInvalid       = errors.New("chain: transactions do not match merkle root")
	ErrHeaderInFullMode    = errors.New("chain: header-only block submitted while running full validation")
	ErrCheckpointMismatch  = errors.New("chain: block contradicts a pinned checkpoint")
	ErrNonFinalTransaction = errors.New("chain: transaction is not final at this height/time")
	ErrTimestampTooEarly   = errors.New("chain: timestamp does not exceed the median of the last 11 blocks")
	ErrDifficultyMismatch  = errors.New("chain: computed difficulty target does not match submitted header")
	ErrForkWithoutAncestor = errors.New("chain: side branch shares no ancestor with the chain head")
	ErrOrphanedSegment     = errors.New("chain: partial chain walk ran off the end of the store")
	ErrStoreUnavailable    = errors.New("chain: store unavailable")
	ErrPruned              = errors.New("chain: undo data required for disconnect is unavailable")
	ErrBadFilteredSubset   = errors.New("chain: filtered block's partial transactions are not a subset of its hash set")
)
