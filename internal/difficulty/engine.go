// Package difficulty implements the multi-era proof-of-work retargeting
// state machine: four eras delimited by five fork heights, each with its
// own cadence and correction rules for how the next block's target is
// derived from recent block timestamps.
package difficulty

import (
	"errors"
	"math/big"
	"sort"

	"github.com/klingnet-chain/core/config"
	"github.com/klingnet-chain/core/internal/chainstore"
	"github.com/klingnet-chain/core/pkg/block"
	"github.com/klingnet-chain/core/pkg/types"
)

// ErrMismatch is returned by Verify when a submitted header's bits do
// not match the target this engine computes for its height.
var ErrMismatch = errors.New("difficulty: submitted bits do not match computed target")

// AncestorSource looks up a stored block by hash. chainstore.Store (and
// chainstore.UndoStore) already satisfy this.
type AncestorSource interface {
	Get(hash types.Hash) (*chainstore.StoredBlock, error)
}

// Engine computes and verifies proof-of-work targets for a single
// network's parameter set.
type Engine struct {
	Params *config.NetworkParameters
}

// New creates a difficulty engine for the given network parameters.
func New(params *config.NetworkParameters) *Engine {
	return &Engine{Params: params}
}

// NextBits computes the compact target bits required of a block at
// height, extending parent, submitted at timestamp. On a non-retarget
// height the parent's bits are repeated exactly, except under the
// testnet relief rule.
func (e *Engine) NextBits(src AncestorSource, parent *chainstore.StoredBlock, height uint64, timestamp uint64) (uint32, error) {
	interval := e.Params.Interval(height)
	onRetargetHeight := interval <= 1 || height%interval == 0

	if !onRetargetHeight {
		if e.Params.Network == config.Testnet {
			return e.testnetRelief(src, parent, height, timestamp)
		}
		return parent.Header.Bits, nil
	}

	target, ok, err := e.retarget(src, parent, height)
	if err != nil {
		return 0, err
	}
	if !ok {
		// Not enough history to walk the required window (typically
		// just past a checkpoint-pruned restart). Mirror the parent
		// rather than fail the block.
		return parent.Header.Bits, nil
	}

	limit := block.CompactToBig(e.Params.ProofOfWorkLimit)
	if target.Cmp(limit) > 0 {
		target = limit
	}
	return block.BigToCompact(target), nil
}

// Verify reports whether header's bits, as submitted for a block at
// height extending parent, equal this engine's computed target once
// masked down to header's own mantissa precision.
func (e *Engine) Verify(src AncestorSource, parent *chainstore.StoredBlock, header *block.Header, height uint64) error {
	want, err := e.NextBits(src, parent, height, header.Timestamp)
	if err != nil {
		return err
	}
	wantTarget := block.CompactToBig(want)
	gotTarget := block.CompactToBig(header.Bits)
	if !block.EqualUnderMask(wantTarget, gotTarget, header.Bits) {
		return ErrMismatch
	}
	return nil
}

// retarget computes the new target at a retarget boundary. ok is false
// when the required timestamp window cannot be fully walked (pruned
// history); the caller should then leave the target unchanged.
func (e *Engine) retarget(src AncestorSource, parent *chainstore.StoredBlock, height uint64) (*big.Int, bool, error) {
	params := e.Params
	forks := params.Forks
	parentTarget := block.CompactToBig(parent.Header.Bits)

	var timespan int64
	var avgTime int64 = -1
	didHalfAdjust := false

	if forks.IsActive(forks.NovemberFork, height) {
		medTime, ok, err := medianWindow(src, parent)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}

		if forks.IsActive(forks.MayFork, height) {
			avg, lastTwo, ok, err := averageWindow(src, parent)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				return nil, false, nil
			}
			avgTime = avg
			medTime, didHalfAdjust = averageWindowCorrection(forks, height, medTime, avgTime, lastTwo)
		}

		if forks.IsActive(forks.NovemberFork2, height) {
			medTime, err = deadlockDefence(src, parent, forks, height, medTime)
			if err != nil {
				return nil, false, err
			}
		}

		if forks.IsActive(forks.JulyFork2, height) {
			medTime = perBlockClamp(avgTime, medTime, didHalfAdjust)
		}
		timespan = medTime * 60
	} else {
		ts, ok, err := classicTimespan(src, parent, params.Interval(height))
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		timespan = ts
	}

	if !forks.IsActive(forks.JulyFork2, height) {
		timespan = clampTimespan(timespan, params.TargetTimespan(height))
	}

	newTarget := new(big.Int).Mul(parentTarget, big.NewInt(timespan))
	newTarget.Div(newTarget, big.NewInt(params.TargetTimespan(height)))

	if forks.IsActive(forks.JulyFork2, height) {
		newTarget, err := era3Ceilings(src, parent, parentTarget, newTarget, didHalfAdjust)
		if err != nil {
			return nil, false, err
		}
		return newTarget, true, nil
	}

	return newTarget, true, nil
}

// testnetRelief implements the testnet-only concession at non-retarget
// heights: a long gap since the parent permits mining at the
// proof-of-work limit; otherwise the most recent "real" target (a
// retarget boundary, or a block not already at the limit) must be
// repeated.
func (e *Engine) testnetRelief(src AncestorSource, parent *chainstore.StoredBlock, height uint64, timestamp uint64) (uint32, error) {
	spacing := e.Params.TargetSpacing(height)
	if int64(timestamp) > int64(parent.Header.Timestamp)+2*spacing {
		return e.Params.ProofOfWorkLimit, nil
	}

	cur := parent
	for {
		interval := e.Params.Interval(cur.Height)
		if cur.Height%interval == 0 || cur.Header.Bits != e.Params.ProofOfWorkLimit || cur.Height == 0 {
			return cur.Header.Bits, nil
		}
		next, err := src.Get(cur.Header.PrevHash)
		if err != nil {
			return 0, err
		}
		cur = next
	}
}

func clampTimespan(timespan int64, targetTimespan int64) int64 {
	max := (targetTimespan * 99) / 70
	min := (targetTimespan * 70) / 99
	if timespan > max {
		return max
	}
	if timespan < min {
		return min
	}
	return timespan
}

func averageWindowCorrection(forks config.ForkSchedule, height uint64, medTime, avgTime int64, lastTwoDiffs []int64) (int64, bool) {
	if !forks.IsActive(forks.JulyFork2, height) {
		if avgTime >= 180 {
			medTime = 130
		} else if avgTime >= 108 && medTime < 120 {
			medTime = 110
		}
		return medTime, false
	}

	if medTime > avgTime {
		medTime = avgTime
	}
	if avgTime >= 180 && len(lastTwoDiffs) == 2 && lastTwoDiffs[0] >= 1200 && lastTwoDiffs[1] >= 1200 {
		return 240, true
	}
	return medTime, false
}

func deadlockDefence(src AncestorSource, parent *chainstore.StoredBlock, forks config.ForkSchedule, height uint64, medTime int64) (int64, error) {
	if medTime < 120 {
		return medTime, nil
	}
	ts, ok, err := collectTimestamps(src, parent, 60)
	if err != nil {
		return medTime, err
	}
	if !ok {
		return medTime, nil
	}

	found := false
	for i := 1; i <= 54; i++ {
		a := int64(ts[59-i])
		b := int64(ts[54-i])
		if abs64(a-b) == 600 {
			found = true
			break
		}
	}
	if !found {
		return medTime, nil
	}
	if forks.IsActive(forks.JulyFork2, height) {
		return 119, nil
	}
	return 110, nil
}

func perBlockClamp(avgTime, medTime int64, didHalfAdjust bool) int64 {
	switch {
	case avgTime > 216 || medTime > 122:
		if didHalfAdjust {
			return 170
		}
		return 121
	case avgTime < 117 || medTime < 117:
		return 117
	default:
		return medTime
	}
}

func era3Ceilings(src AncestorSource, parent *chainstore.StoredBlock, parentTarget, newTarget *big.Int, didHalfAdjust bool) (*big.Int, error) {
	floor := new(big.Int).Mul(parentTarget, big.NewInt(10))
	floor.Div(floor, big.NewInt(8))
	if !didHalfAdjust && newTarget.Cmp(floor) > 0 {
		newTarget = floor
	}

	if t60, ok, err := targetBack(src, parent, 60); err != nil {
		return nil, err
	} else if ok {
		ceiling := new(big.Int).Mul(t60, big.NewInt(100))
		ceiling.Div(ceiling, big.NewInt(102))
		if newTarget.Cmp(ceiling) < 0 {
			newTarget = ceiling
		}
	}

	if t240, ok, err := targetBack(src, parent, 240); err != nil {
		return nil, err
	} else if ok {
		ceiling := new(big.Int).Mul(t240, big.NewInt(100))
		ceiling.Div(ceiling, big.NewInt(408))
		if newTarget.Cmp(ceiling) < 0 {
			newTarget = ceiling
		}
	}

	return newTarget, nil
}

func targetBack(src AncestorSource, from *chainstore.StoredBlock, steps int) (*big.Int, bool, error) {
	anc, ok, err := ancestorBack(src, from, steps)
	if err != nil || !ok {
		return nil, ok, err
	}
	return block.CompactToBig(anc.Header.Bits), true, nil
}

func ancestorBack(src AncestorSource, from *chainstore.StoredBlock, steps int) (*chainstore.StoredBlock, bool, error) {
	cur := from
	for i := 0; i < steps; i++ {
		if cur.Height == 0 {
			return nil, false, nil
		}
		next, err := src.Get(cur.Header.PrevHash)
		if err != nil {
			if errors.Is(err, chainstore.ErrNotFound) {
				return nil, false, nil
			}
			return nil, false, err
		}
		cur = next
	}
	return cur, true, nil
}

// classicTimespan computes the elapsed wall-clock time over the last
// interval blocks, the pre-era-2 retarget rule: the actual time the
// previous interval blocks took to mine, compared against the target.
func classicTimespan(src AncestorSource, parent *chainstore.StoredBlock, interval uint64) (int64, bool, error) {
	first, ok, err := ancestorBack(src, parent, int(interval-1))
	if err != nil || !ok {
		return 0, ok, err
	}
	return int64(parent.Header.Timestamp) - int64(first.Header.Timestamp), true, nil
}

// collectTimestamps walks back n-1 parent links from from, returning n
// timestamps ordered oldest-first (from is the last element). ok is
// false if the walk runs off the store before collecting n blocks.
func collectTimestamps(src AncestorSource, from *chainstore.StoredBlock, n int) ([]uint64, bool, error) {
	blocks := make([]*chainstore.StoredBlock, n)
	cur := from
	for i := n - 1; i >= 0; i-- {
		blocks[i] = cur
		if i == 0 {
			break
		}
		if cur.Height == 0 {
			return nil, false, nil
		}
		next, err := src.Get(cur.Header.PrevHash)
		if err != nil {
			if errors.Is(err, chainstore.ErrNotFound) {
				return nil, false, nil
			}
			return nil, false, err
		}
		cur = next
	}

	timestamps := make([]uint64, n)
	for i, b := range blocks {
		timestamps[i] = b.Header.Timestamp
	}
	return timestamps, true, nil
}

func adjacentDiffs(ts []uint64) []int64 {
	diffs := make([]int64, len(ts)-1)
	for i := 1; i < len(ts); i++ {
		diffs[i-1] = abs64(int64(ts[i]) - int64(ts[i-1]))
	}
	return diffs
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// medianWindow collects the previous 60 timestamps and returns the
// median of the 59 adjacent absolute differences.
func medianWindow(src AncestorSource, parent *chainstore.StoredBlock) (int64, bool, error) {
	ts, ok, err := collectTimestamps(src, parent, 60)
	if err != nil || !ok {
		return 0, ok, err
	}
	diffs := adjacentDiffs(ts)
	sort.Slice(diffs, func(i, j int) bool { return diffs[i] < diffs[j] })
	return diffs[29], true, nil
}

// averageWindow collects the previous 120 timestamps and returns the
// arithmetic mean of the 119 adjacent absolute differences, plus the
// two most recent of those differences.
func averageWindow(src AncestorSource, parent *chainstore.StoredBlock) (int64, []int64, bool, error) {
	ts, ok, err := collectTimestamps(src, parent, 120)
	if err != nil || !ok {
		return 0, nil, ok, err
	}
	diffs := adjacentDiffs(ts)
	var sum int64
	for _, d := range diffs {
		sum += d
	}
	avg := sum / int64(len(diffs))
	lastTwo := []int64{diffs[len(diffs)-2], diffs[len(diffs)-1]}
	return avg, lastTwo, true, nil
}
