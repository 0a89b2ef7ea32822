package consensus

import (
	"math/big"
	"testing"
)

func TestTargetFromBits_RoundTrip(t *testing.T) {
	tests := []uint32{0x1d00ffff, 0x207fffff, 0x1effffff, 0x04000001}
	for _, bits := range tests {
		target := TargetFromBits(bits)
		got := BitsFromTarget(target)
		if got != bits {
			t.Errorf("round-trip bits %x -> target -> bits = %x", bits, got)
		}
	}
}

func TestTargetFromBits_Monotonic(t *testing.T) {
	// A larger exponent (same mantissa) means a larger target.
	small := TargetFromBits(0x03123456)
	large := TargetFromBits(0x04123456)
	if large.Cmp(small) <= 0 {
		t.Error("increasing the exponent should increase the target")
	}
}

func TestCalcNextDifficultyBits_ExactTarget(t *testing.T) {
	bits := uint32(0x1effffff)
	got := CalcNextDifficultyBits(bits, 600, 600)
	if got != bits {
		t.Errorf("CalcNextDifficultyBits(exact) = %x, want %x", got, bits)
	}
}

func TestCalcNextDifficultyBits_TooFastIncreasesDifficulty(t *testing.T) {
	// Blocks 2x faster than expected -> target should shrink (harder).
	bits := uint32(0x1effffff)
	got := CalcNextDifficultyBits(bits, 300, 600)

	oldTarget := TargetFromBits(bits)
	newTarget := TargetFromBits(got)
	if newTarget.Cmp(oldTarget) >= 0 {
		t.Error("faster-than-expected blocks should shrink the target (raise difficulty)")
	}
}

func TestCalcNextDifficultyBits_TooSlowDecreasesDifficulty(t *testing.T) {
	bits := uint32(0x1effffff)
	got := CalcNextDifficultyBits(bits, 1200, 600)

	oldTarget := TargetFromBits(bits)
	newTarget := TargetFromBits(got)
	if newTarget.Cmp(oldTarget) <= 0 {
		t.Error("slower-than-expected blocks should grow the target (lower difficulty)")
	}
}

func TestCalcNextDifficultyBits_ClampUp(t *testing.T) {
	bits := uint32(0x1e100000)
	oldTarget := TargetFromBits(bits)

	// 10x faster, clamped to 4x ratio.
	gotClamped := CalcNextDifficultyBits(bits, 60, 600)
	gotUnclamped := CalcNextDifficultyBits(bits, 150, 600) // exactly at the 4x clamp boundary

	clampedTarget := TargetFromBits(gotClamped)
	unclampedTarget := TargetFromBits(gotUnclamped)

	if clampedTarget.Cmp(unclampedTarget) != 0 {
		t.Errorf("10x fast should clamp to the same target as exactly-4x fast: %s vs %s", clampedTarget, unclampedTarget)
	}
	quarter := new(big.Int).Div(oldTarget, big.NewInt(4))
	// Allow integer-division slack of a few units.
	diff := new(big.Int).Sub(clampedTarget, quarter)
	diff.Abs(diff)
	if diff.Cmp(big.NewInt(1<<40)) > 0 {
		t.Errorf("clamped target %s should be close to old/4 = %s", clampedTarget, quarter)
	}
}

func TestCalcNextDifficultyBits_NeverZero(t *testing.T) {
	bits := uint32(0x03000001) // smallest representable positive target
	got := CalcNextDifficultyBits(bits, 100000, 10)
	if TargetFromBits(got).Sign() <= 0 {
		t.Error("CalcNextDifficultyBits should never produce a non-positive target")
	}
}

func TestShouldAdjust(t *testing.T) {
	tests := []struct {
		height uint64
		want   bool
	}{
		{0, false},
		{1, false},
		{2015, false},
		{2016, true},
		{2017, false},
		{4032, true},
	}
	for _, tt := range tests {
		if got := ShouldAdjust(tt.height); got != tt.want {
			t.Errorf("ShouldAdjust(%d) = %v, want %v", tt.height, got, tt.want)
		}
	}
}

func TestExpectedDifficultyBits_Genesis(t *testing.T) {
	got := ExpectedDifficultyBits(0, 0, 0x1effffff, nil)
	if got != 0x1effffff {
		t.Errorf("ExpectedDifficultyBits(0) = %x, want initial bits", got)
	}
}

func TestExpectedDifficultyBits_NonBoundaryCarriesForward(t *testing.T) {
	got := ExpectedDifficultyBits(5, 0x1eaaaaaa, 0x1effffff, nil)
	if got != 0x1eaaaaaa {
		t.Errorf("ExpectedDifficultyBits(non-boundary) = %x, want prevBits unchanged", got)
	}
}

func TestExpectedDifficultyBits_BoundaryRetargets(t *testing.T) {
	prevBits := uint32(0x1eaaaaaa)
	getTS := func(h uint64) (uint64, error) {
		if h == 0 {
			return 0, nil
		}
		return uint64(DifficultyAdjustmentInterval * TargetBlockTime), nil // exact timing
	}
	got := ExpectedDifficultyBits(DifficultyAdjustmentInterval, prevBits, 0x1effffff, getTS)
	if got != prevBits {
		t.Errorf("exact-timing retarget should leave bits unchanged: got %x, want %x", got, prevBits)
	}
}
