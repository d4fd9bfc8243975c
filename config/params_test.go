package config

import "testing"

func TestForkSchedule_IsActive(t *testing.T) {
	f := ForkSchedule{JulyFork: 100}

	if f.IsActive(0, 500) {
		t.Error("a zero fork height must never be active")
	}
	if f.IsActive(f.JulyFork, 99) {
		t.Error("fork must not be active below its height")
	}
	if f.IsActive(f.JulyFork, 100) {
		t.Error("fork must not be active at its own height; spec era boundaries are h <= forkHeight")
	}
	if !f.IsActive(f.JulyFork, 101) {
		t.Error("fork must be active strictly above its height")
	}
}

func TestMainnetForks_MonotonicallyIncreasing(t *testing.T) {
	f := MainnetParams().Forks
	heights := []uint64{f.JulyFork, f.NovemberFork, f.MayFork, f.NovemberFork2, f.JulyFork2}
	for i := 1; i < len(heights); i++ {
		if heights[i] <= heights[i-1] {
			t.Fatalf("fork heights must strictly increase in era order, got %v", heights)
		}
	}
}

func TestTestnetForks_MonotonicallyIncreasing(t *testing.T) {
	f := TestnetParams().Forks
	heights := []uint64{f.JulyFork, f.NovemberFork, f.MayFork, f.NovemberFork2, f.JulyFork2}
	for i := 1; i < len(heights); i++ {
		if heights[i] <= heights[i-1] {
			t.Fatalf("fork heights must strictly increase in era order, got %v", heights)
		}
	}
}
