package difficulty

import (
	"math/big"
	"testing"

	"github.com/klingnet-chain/core/config"
	"github.com/klingnet-chain/core/pkg/block"
)

// retargetParams gives each era room to breathe: era 0 ends at height 5,
// era 1 at 15, the average-window correction switches on at 25, the
// deadlock defence at 400 (kept far out so era-2 median-only tests don't
// trip it), era 3 starts past 500.
func retargetParams() *config.NetworkParameters {
	return &config.NetworkParameters{
		ID:               "retarget-test",
		Network:          config.Mainnet,
		ProofOfWorkLimit: 0x1f00ffff,
		Forks: config.ForkSchedule{
			JulyFork:      5,
			NovemberFork:  15,
			MayFork:       25,
			NovemberFork2: 400,
			JulyFork2:     500,
		},
	}
}

func TestMedianWindow_ConstantSpacingIsThatSpacing(t *testing.T) {
	cb := newChainBuilder(t, 0x1e00ffff, 1_700_000_000)
	for i := 0; i < 59; i++ {
		cb.extend(cb.tip.Header.Timestamp+120, 0x1e00ffff)
	}

	med, ok, err := medianWindow(cb.store, cb.tip)
	if err != nil {
		t.Fatalf("medianWindow() error: %v", err)
	}
	if !ok {
		t.Fatal("medianWindow() ok = false, want true with 60 blocks of history")
	}
	if med != 120 {
		t.Errorf("medianWindow() with constant 120s spacing = %d, want 120", med)
	}
}

func TestMedianWindow_InsufficientHistoryAborts(t *testing.T) {
	cb := newChainBuilder(t, 0x1e00ffff, 1_700_000_000)
	for i := 0; i < 10; i++ {
		cb.extend(cb.tip.Header.Timestamp+120, 0x1e00ffff)
	}

	_, ok, err := medianWindow(cb.store, cb.tip)
	if err != nil {
		t.Fatalf("medianWindow() error: %v", err)
	}
	if ok {
		t.Error("medianWindow() with fewer than 60 blocks of history should report ok=false, not error")
	}
}

func TestAverageWindow_ConstantSpacingIsThatSpacing(t *testing.T) {
	cb := newChainBuilder(t, 0x1e00ffff, 1_700_000_000)
	for i := 0; i < 119; i++ {
		cb.extend(cb.tip.Header.Timestamp+150, 0x1e00ffff)
	}

	avg, lastTwo, ok, err := averageWindow(cb.store, cb.tip)
	if err != nil {
		t.Fatalf("averageWindow() error: %v", err)
	}
	if !ok {
		t.Fatal("averageWindow() ok = false, want true with 120 blocks of history")
	}
	if avg != 150 {
		t.Errorf("averageWindow() average with constant 150s spacing = %d, want 150", avg)
	}
	if len(lastTwo) != 2 || lastTwo[0] != 150 || lastTwo[1] != 150 {
		t.Errorf("averageWindow() last two diffs = %v, want [150 150]", lastTwo)
	}
}

func TestAverageWindowCorrection_PreJulyFork2_HighAverageForcesMedian130(t *testing.T) {
	forks := retargetParams().Forks
	med, halfAdjust := averageWindowCorrection(forks, 100, 90, 200, nil)
	if med != 130 {
		t.Errorf("medTime = %d, want 130 when avgTime >= 180 pre-julyFork2", med)
	}
	if halfAdjust {
		t.Error("half-adjust must never trigger before julyFork2")
	}
}

func TestAverageWindowCorrection_PreJulyFork2_ModerateAverageForcesMedian110(t *testing.T) {
	forks := retargetParams().Forks
	med, _ := averageWindowCorrection(forks, 100, 100, 115, nil)
	if med != 110 {
		t.Errorf("medTime = %d, want 110 when 108 <= avgTime < 180 and medTime < 120", med)
	}
}

func TestAverageWindowCorrection_PreJulyFork2_LeavesMedianAloneOtherwise(t *testing.T) {
	forks := retargetParams().Forks
	med, _ := averageWindowCorrection(forks, 100, 130, 115, nil)
	if med != 130 {
		t.Errorf("medTime = %d, want unchanged 130 when medTime already >= 120", med)
	}
	med, _ = averageWindowCorrection(forks, 100, 90, 90, nil)
	if med != 90 {
		t.Errorf("medTime = %d, want unchanged 90 when avgTime < 108", med)
	}
}

func TestAverageWindowCorrection_PostJulyFork2_CapsMedianToAverage(t *testing.T) {
	forks := retargetParams().Forks
	med, halfAdjust := averageWindowCorrection(forks, 600, 150, 100, []int64{50, 50})
	if med != 100 {
		t.Errorf("medTime = %d, want capped to avgTime 100", med)
	}
	if halfAdjust {
		t.Error("half-adjust should not trigger without two large adjacent diffs")
	}
}

func TestAverageWindowCorrection_PostJulyFork2_HalfAdjustOnTwoLargeDiffs(t *testing.T) {
	forks := retargetParams().Forks
	med, halfAdjust := averageWindowCorrection(forks, 600, 150, 200, []int64{1200, 1500})
	if !halfAdjust {
		t.Error("half-adjust should trigger when avgTime >= 180 and both recent diffs >= 1200")
	}
	if med != 240 {
		t.Errorf("medTime = %d, want 240 on half-adjust", med)
	}
}

func TestAverageWindowCorrection_PostJulyFork2_NoHalfAdjustOnOneSmallDiff(t *testing.T) {
	forks := retargetParams().Forks
	med, halfAdjust := averageWindowCorrection(forks, 600, 150, 200, []int64{1200, 900})
	if halfAdjust {
		t.Error("half-adjust must require both of the two most recent diffs to be >= 1200")
	}
	if med != 150 {
		t.Errorf("medTime = %d, want unchanged 150 (already <= avgTime)", med)
	}
}

func TestDeadlockDefence_NoScanBelowThreshold(t *testing.T) {
	cb := newChainBuilder(t, 0x1e00ffff, 1_700_000_000)
	forks := retargetParams().Forks
	med, err := deadlockDefence(cb.store, cb.tip, forks, 450, 100)
	if err != nil {
		t.Fatalf("deadlockDefence() error: %v", err)
	}
	if med != 100 {
		t.Errorf("deadlockDefence() with medTime < 120 should leave it untouched, got %d", med)
	}
}

// A constant 120s spacing puts every timestamp exactly 600s apart from
// the one five blocks earlier (5 * 120 = 600), so every scanned index
// trips the deadlock condition.
func TestDeadlockDefence_TriggersOnRepeatingSpacing(t *testing.T) {
	cb := newChainBuilder(t, 0x1e00ffff, 1_700_000_000)
	for i := 0; i < 59; i++ {
		cb.extend(cb.tip.Header.Timestamp+120, 0x1e00ffff)
	}
	forks := retargetParams().Forks

	med, err := deadlockDefence(cb.store, cb.tip, forks, 450, 120)
	if err != nil {
		t.Fatalf("deadlockDefence() error: %v", err)
	}
	if med != 110 {
		t.Errorf("deadlockDefence() pre-julyFork2 = %d, want forced 110", med)
	}

	med, err = deadlockDefence(cb.store, cb.tip, forks, 600, 120)
	if err != nil {
		t.Fatalf("deadlockDefence() error: %v", err)
	}
	if med != 119 {
		t.Errorf("deadlockDefence() post-julyFork2 = %d, want forced 119", med)
	}
}

func TestDeadlockDefence_NoTriggerOnIncreasingSpacing(t *testing.T) {
	cb := newChainBuilder(t, 0x1e00ffff, 1_700_000_000)
	spacing := uint64(120)
	for i := 0; i < 59; i++ {
		spacing += 3
		cb.extend(cb.tip.Header.Timestamp+spacing, 0x1e00ffff)
	}
	forks := retargetParams().Forks

	med, err := deadlockDefence(cb.store, cb.tip, forks, 450, 130)
	if err != nil {
		t.Fatalf("deadlockDefence() error: %v", err)
	}
	if med != 130 {
		t.Errorf("deadlockDefence() with strictly increasing spacing = %d, want unchanged 130", med)
	}
}

func TestEra3Ceilings_FloorClampsSteepFall(t *testing.T) {
	parentTarget := big.NewInt(1_000_000)
	newTarget := big.NewInt(10_000_000) // far above the 10/8 floor
	cb := newChainBuilder(t, 0x1e00ffff, 1_700_000_000)

	got, err := era3Ceilings(cb.store, cb.tip, parentTarget, newTarget, false)
	if err != nil {
		t.Fatalf("era3Ceilings() error: %v", err)
	}
	want := new(big.Int).Div(new(big.Int).Mul(parentTarget, big.NewInt(10)), big.NewInt(8))
	if got.Cmp(want) != 0 {
		t.Errorf("era3Ceilings() floor = %s, want %s", got, want)
	}
}

func TestEra3Ceilings_FloorSkippedOnHalfAdjust(t *testing.T) {
	parentTarget := big.NewInt(1_000_000)
	newTarget := big.NewInt(10_000_000)
	cb := newChainBuilder(t, 0x1e00ffff, 1_700_000_000)

	got, err := era3Ceilings(cb.store, cb.tip, parentTarget, newTarget, true)
	if err != nil {
		t.Fatalf("era3Ceilings() error: %v", err)
	}
	if got.Cmp(newTarget) != 0 {
		t.Errorf("era3Ceilings() with didHalfAdjust should not apply the floor, got %s want %s", got, newTarget)
	}
}

func TestEra3Ceilings_HistoricalCeilingsApply(t *testing.T) {
	cb := newChainBuilder(t, 0x1d00ffff, 1_700_000_000)
	for i := 0; i < 300; i++ {
		cb.extend(cb.tip.Header.Timestamp+120, 0x1d00ffff)
	}
	t60 := block.CompactToBig(0x1d00ffff)
	t240 := block.CompactToBig(0x1d00ffff)

	parentTarget := t60
	// newTarget computed far below both the 60- and 240-block ceilings.
	newTarget := new(big.Int).Div(parentTarget, big.NewInt(1000))

	got, err := era3Ceilings(cb.store, cb.tip, parentTarget, newTarget, false)
	if err != nil {
		t.Fatalf("era3Ceilings() error: %v", err)
	}

	ceiling60 := new(big.Int).Div(new(big.Int).Mul(t60, big.NewInt(100)), big.NewInt(102))
	ceiling240 := new(big.Int).Div(new(big.Int).Mul(t240, big.NewInt(100)), big.NewInt(408))
	floor := ceiling60
	if ceiling240.Cmp(floor) > 0 {
		floor = ceiling240
	}
	if got.Cmp(floor) != 0 {
		t.Errorf("era3Ceilings() = %s, want the binding ceiling %s", got, floor)
	}
}

// TestNextBits_Era2MedianOnlyRetarget exercises P6 (median monotonicity)
// through the full NextBits pipeline when only the median-window rule
// is active (average-window correction and deadlock defence both still
// out of reach): constant inter-block spacing must reproduce the same
// target unchanged.
func TestNextBits_Era2MedianOnlyRetarget(t *testing.T) {
	params := retargetParams()
	params.Forks.MayFork = 10_000
	e := New(params)

	cb := newChainBuilder(t, 0x1e00ffff, 1_700_000_000)
	for cb.height < 119 {
		cb.extend(cb.tip.Header.Timestamp+120, 0x1e00ffff)
	}

	bits, err := e.NextBits(cb.store, cb.tip, 120, cb.tip.Header.Timestamp+120)
	if err != nil {
		t.Fatalf("NextBits() error: %v", err)
	}
	if bits != cb.tip.Header.Bits {
		t.Errorf("NextBits() with constant spacing through a pure median-window retarget = %#x, want parent bits %#x", bits, cb.tip.Header.Bits)
	}
}

// TestNextBits_Era2AverageWindowLoosensTarget exercises the
// average-window correction (mayFork, pre-julyFork2): a long average
// inter-block time pulls med_time down to 130, still above the 120
// target spacing, so the target loosens.
func TestNextBits_Era2AverageWindowLoosensTarget(t *testing.T) {
	params := retargetParams()
	e := New(params)

	cb := newChainBuilder(t, 0x1e00ffff, 1_700_000_000)
	for cb.height < 119 {
		cb.extend(cb.tip.Header.Timestamp+200, 0x1e00ffff)
	}

	bits, err := e.NextBits(cb.store, cb.tip, 120, cb.tip.Header.Timestamp+200)
	if err != nil {
		t.Fatalf("NextBits() error: %v", err)
	}
	oldTarget := block.CompactToBig(cb.tip.Header.Bits)
	newTarget := block.CompactToBig(bits)
	if newTarget.Cmp(oldTarget) <= 0 {
		t.Errorf("NextBits() with a long average inter-block time should loosen the target: old=%s new=%s", oldTarget, newTarget)
	}
}

// TestNextBits_Era3EveryBlockRetargets checks that once julyFork2 is
// active the engine retargets on every single block (interval == 1),
// not just every 60th.
func TestNextBits_Era3EveryBlockRetargets(t *testing.T) {
	params := retargetParams()
	if params.Interval(params.Forks.JulyFork2+1) != 1 {
		t.Fatalf("Interval() past julyFork2 = %d, want 1", params.Interval(params.Forks.JulyFork2+1))
	}

	e := New(params)
	cb := newChainBuilder(t, 0x1d00ffff, 1_700_000_000)
	for cb.height < 509 {
		cb.extend(cb.tip.Header.Timestamp+120, 0x1d00ffff)
	}

	h := cb.height + 1
	bits, err := e.NextBits(cb.store, cb.tip, h, cb.tip.Header.Timestamp+120)
	if err != nil {
		t.Fatalf("NextBits() error: %v", err)
	}
	// Constant 120s spacing repeats exactly every 5 blocks (5*120 =
	// 600s), which is precisely the pattern the deadlock defence
	// watches for, so era 3 tightens the target here rather than
	// reproducing it unchanged.
	oldTarget := block.CompactToBig(cb.tip.Header.Bits)
	newTarget := block.CompactToBig(bits)
	if newTarget.Cmp(oldTarget) >= 0 {
		t.Errorf("NextBits() in era 3 under the deadlock pattern should tighten the target: old=%s new=%s", oldTarget, newTarget)
	}
}

// TestVerify_Era3FlipBitFails is P5's roundtrip property at an era-3
// height: flipping one bit of the advertised target must fail.
func TestVerify_Era3FlipBitFails(t *testing.T) {
	params := retargetParams()
	e := New(params)
	cb := newChainBuilder(t, 0x1d00ffff, 1_700_000_000)
	for cb.height < 509 {
		cb.extend(cb.tip.Header.Timestamp+120, 0x1d00ffff)
	}

	h := cb.height + 1
	bits, err := e.NextBits(cb.store, cb.tip, h, cb.tip.Header.Timestamp+120)
	if err != nil {
		t.Fatalf("NextBits() error: %v", err)
	}

	good := &block.Header{PrevHash: cb.tip.Hash(), Timestamp: cb.tip.Header.Timestamp + 120, Bits: bits}
	if err := e.Verify(cb.store, cb.tip, good, h); err != nil {
		t.Errorf("Verify() on correctly-computed bits error = %v, want nil", err)
	}

	bad := &block.Header{PrevHash: cb.tip.Hash(), Timestamp: cb.tip.Header.Timestamp + 120, Bits: bits ^ 1}
	if err := e.Verify(cb.store, cb.tip, bad, h); err != ErrMismatch {
		t.Errorf("Verify() with one flipped bit error = %v, want ErrMismatch", err)
	}
}

// TestNextBits_DeadlockDefenceIntegration is S6 end-to-end: repeating
// 120s spacing (which makes every 5-block-apart pair exactly 600s
// apart) must force med_time down regardless of the raw median, at an
// era-2 height where the deadlock defence is active.
func TestNextBits_DeadlockDefenceIntegration(t *testing.T) {
	params := retargetParams()
	// Move novemberFork2 into reach of a short chain while keeping
	// mayFork/julyFork2 out of reach so only the deadlock defence (not
	// the average-window correction or the era-3 rewrite) is in play.
	params.Forks.MayFork = 10_000
	params.Forks.NovemberFork2 = 110
	params.Forks.JulyFork2 = 10_000_000
	e := New(params)

	cb := newChainBuilder(t, 0x1e00ffff, 1_700_000_000)
	for cb.height < 119 {
		cb.extend(cb.tip.Header.Timestamp+120, 0x1e00ffff)
	}

	bits, err := e.NextBits(cb.store, cb.tip, 120, cb.tip.Header.Timestamp+120)
	if err != nil {
		t.Fatalf("NextBits() error: %v", err)
	}

	// Raw median (120) would reproduce the parent target unchanged; the
	// deadlock defence forces med_time to 110, tightening the target.
	oldTarget := block.CompactToBig(cb.tip.Header.Bits)
	newTarget := block.CompactToBig(bits)
	if newTarget.Cmp(oldTarget) >= 0 {
		t.Errorf("NextBits() under deadlock defence should tighten the target: old=%s new=%s", oldTarget, newTarget)
	}
}
