package config

import (
	"github.com/klingnet-chain/core/pkg/block"
	"github.com/klingnet-chain/core/pkg/types"
)

// =============================================================================
// Difficulty-era fork schedule
//
// The retargeting protocol (see the difficulty package) has four eras
// delimited by five hard-coded heights. julyFork, novemberFork and
// julyFork2 are the era boundaries; mayFork and novemberFork2 are
// additional thresholds inside era 2 that switch on the average-window
// correction and the deadlock defence respectively. Values are frozen
// historical constants — changing them requires a hard fork.
// =============================================================================

// ForkSchedule holds the block heights at which difficulty-engine
// behaviour changes. A zero value means the fork is not scheduled.
type ForkSchedule struct {
	JulyFork      uint64 `json:"july_fork"`
	NovemberFork  uint64 `json:"november_fork"`
	NovemberFork2 uint64 `json:"november_fork_2"`
	MayFork       uint64 `json:"may_fork"`
	JulyFork2     uint64 `json:"july_fork_2"`
}

// IsActive returns true if a fork at forkHeight has activated at
// currentHeight. Fork boundaries are inclusive of the fork height on
// the old-era side ("h <= forkHeight" stays on the prior era), so this
// only activates strictly past it. Returns false if forkHeight is 0
// (not scheduled).
func (f *ForkSchedule) IsActive(forkHeight, currentHeight uint64) bool {
	return forkHeight > 0 && currentHeight > forkHeight
}

// Era-dependent spacing/timespan constants (seconds).
const (
	// TargetSpacingEra0 and TargetTimespanEra0 apply at heights at or
	// below julyFork.
	TargetSpacingEra0  = 150    // seconds
	TargetTimespanEra0 = 75_600 // seconds (7/8 day / 504 blocks)

	// TargetSpacing and TargetTimespan apply above julyFork.
	TargetSpacing  = 120   // seconds
	TargetTimespan = 7_200 // seconds (60 blocks)

	IntervalDefault = TargetTimespan / TargetSpacing   // 60
	IntervalEra0    = TargetTimespanEra0 / TargetSpacingEra0 // 504
)

// Checkpoint pins a (height, hash) pair the chain engine refuses to
// contradict; ingesting a conflicting block at that height fails with
// CheckpointMismatch.
type Checkpoint struct {
	Height uint64
	Hash   types.Hash
}

// NetworkParameters bundles the consensus-critical protocol rules a
// chain instance is parametrised by.
type NetworkParameters struct {
	ID      string
	Network NetworkType

	GenesisBlock *block.Block

	// ProofOfWorkLimit is the easiest allowed compact target: no block's
	// target may exceed this regardless of era or retarget arithmetic.
	ProofOfWorkLimit uint32

	Forks ForkSchedule

	Checkpoints []Checkpoint
}

// Interval returns the number of blocks between difficulty retargets at
// the given height.
func (p *NetworkParameters) Interval(height uint64) uint64 {
	if p.Forks.IsActive(p.Forks.JulyFork2, height) {
		return 1
	}
	if p.Forks.IsActive(p.Forks.JulyFork, height) {
		return IntervalDefault
	}
	return IntervalEra0
}

// TargetTimespan returns the retarget period, in seconds, applicable at
// the given height.
func (p *NetworkParameters) TargetTimespan(height uint64) int64 {
	if p.Forks.IsActive(p.Forks.JulyFork, height) {
		return TargetTimespan
	}
	return TargetTimespanEra0
}

// TargetSpacing returns the target inter-block spacing, in seconds,
// applicable at the given height.
func (p *NetworkParameters) TargetSpacing(height uint64) int64 {
	if p.Forks.IsActive(p.Forks.JulyFork, height) {
		return TargetSpacing
	}
	return TargetSpacingEra0
}

// PassesCheckpoint reports whether the given (height, hash) pair is
// consistent with every pinned checkpoint. A height with no pinned
// checkpoint always passes.
func (p *NetworkParameters) PassesCheckpoint(height uint64, hash types.Hash) bool {
	for _, cp := range p.Checkpoints {
		if cp.Height == height {
			return cp.Hash == hash
		}
	}
	return true
}
