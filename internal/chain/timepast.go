package chain

import (
	"errors"

	"github.com/klingnet-chain/core/internal/chainstore"
)

// medianTimePastWindow is how many recent ancestors (not including the
// candidate block itself) the median-time-past rule looks at.
const medianTimePastWindow = 11

// medianTimePast returns the median timestamp of up to the last 11
// blocks ending at tip (inclusive), used to reject blocks whose
// timestamp doesn't move the chain's clock forward. Walking off the
// start of the store (near genesis) just uses however many ancestors
// exist.
func medianTimePast(src chainstore.Store, tip *chainstore.StoredBlock) (uint64, error) {
	timestamps := make([]uint64, 0, medianTimePastWindow)
	cur := tip
	for i := 0; i < medianTimePastWindow; i++ {
		timestamps = append(timestamps, cur.Header.Timestamp)
		if cur.Height == 0 {
			break
		}
		parent, err := src.Get(cur.Header.PrevHash)
		if err != nil {
			if errors.Is(err, chainstore.ErrNotFound) {
				break
			}
			return 0, err
		}
		cur = parent
	}

	sorted := append([]uint64(nil), timestamps...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return sorted[len(sorted)/2], nil
}
