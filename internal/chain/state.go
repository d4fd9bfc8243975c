package chain

import "github.com/klingnet-chain/core/internal/chainstore"

// State is a point-in-time snapshot of the chain's observable shape,
// safe to read without holding the ingestion lock.
type State struct {
	BestHeight uint64
	BestHash   [32]byte
}

// assumedSpacingMillis is the spacing EstimateBlockTime assumes between
// blocks: ten minutes, even though this chain targets a two-minute
// spacing. Kept as documented: callers rely on this exact, historically
// inherited estimate rather than the chain's real target spacing.
const assumedSpacingMillis = 10 * 60 * 1000

// EstimateBlockTime projects the wall-clock time (Unix millis) at which
// height h is expected to be mined, extrapolating linearly from the
// current head using a fixed 10-minute-per-block assumption. This is a
// rough estimate for UI purposes only, not used anywhere in validation.
func EstimateBlockTime(head *chainstore.StoredBlock, h uint64) int64 {
	headTimeMillis := int64(head.Header.Timestamp) * 1000
	delta := int64(h) - int64(head.Height)
	return headTimeMillis + assumedSpacingMillis*delta
}
