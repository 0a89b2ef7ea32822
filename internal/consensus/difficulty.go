package consensus

import "math/big"

// DifficultyAdjustmentInterval is N, the number of blocks between
// retargets.
const DifficultyAdjustmentInterval = 2016

// TargetBlockTime is the desired average seconds between blocks.
const TargetBlockTime = 600

// TargetFromBits decodes a compact 32-bit difficulty encoding into its
// 256-bit target: high byte is the exponent e, low 24 bits are the
// mantissa m, target = m * 2^(8*(e-3)).
func TargetFromBits(bits uint32) *big.Int {
	exponent := int(bits >> 24)
	mantissa := new(big.Int).SetUint64(uint64(bits & 0x00FFFFFF))
	shift := 8 * (exponent - 3)
	if shift >= 0 {
		return new(big.Int).Lsh(mantissa, uint(shift))
	}
	return new(big.Int).Rsh(mantissa, uint(-shift))
}

// BitsFromTarget re-encodes a 256-bit target into the compact bits form.
func BitsFromTarget(target *big.Int) uint32 {
	if target.Sign() <= 0 {
		return 0
	}
	raw := target.Bytes() // big-endian, no leading zero byte
	size := len(raw)

	var window [3]byte
	switch {
	case size <= 3:
		copy(window[:], raw)
	default:
		copy(window[:], raw[:3])
	}
	mantissa := uint32(window[0])<<16 | uint32(window[1])<<8 | uint32(window[2])
	// Drop trailing zero mantissa bytes so each target has one encoding.
	for mantissa&0xFF == 0 {
		mantissa >>= 8
		size++
	}
	return uint32(size)<<24 | mantissa
}

// CalcNextDifficultyBits computes the retargeted difficulty after an
// adjustment interval. actualTimeSpan is the elapsed seconds for the
// last interval; expectedTimeSpan is interval*TargetBlockTime. The
// effective ratio is clamped to [1/4, 4] before being applied.
func CalcNextDifficultyBits(oldBits uint32, actualTimeSpan, expectedTimeSpan int64) uint32 {
	if expectedTimeSpan <= 0 {
		expectedTimeSpan = 1
	}
	if actualTimeSpan <= 0 {
		actualTimeSpan = 1
	}

	minSpan := expectedTimeSpan / 4
	if minSpan < 1 {
		minSpan = 1
	}
	maxSpan := expectedTimeSpan * 4

	if actualTimeSpan < minSpan {
		actualTimeSpan = minSpan
	}
	if actualTimeSpan > maxSpan {
		actualTimeSpan = maxSpan
	}

	oldTarget := TargetFromBits(oldBits)
	newTarget := new(big.Int).Mul(oldTarget, big.NewInt(actualTimeSpan))
	newTarget.Div(newTarget, big.NewInt(expectedTimeSpan))

	if newTarget.Sign() <= 0 {
		newTarget = big.NewInt(1)
	}
	return BitsFromTarget(newTarget)
}

// maxTarget256 is 2^256, used to express a block's work contribution.
var maxTarget256 = new(big.Int).Lsh(big.NewInt(1), 256)

// BlockWork returns a block's contribution to cumulative chain work:
// floor(2^256 / (target+1)), so smaller targets (harder difficulty)
// contribute more work. Used to compare competing chains during a
// reorg by total work rather than by height alone.
func BlockWork(bits uint32) *big.Int {
	target := TargetFromBits(bits)
	denom := new(big.Int).Add(target, big.NewInt(1))
	return new(big.Int).Div(maxTarget256, denom)
}

// ShouldAdjust reports whether difficulty is recalculated at height.
func ShouldAdjust(height uint64) bool {
	return height > 0 && height%DifficultyAdjustmentInterval == 0
}

// ExpectedDifficultyBits computes the difficulty_bits a block at height
// must carry. prevBits is the bits value carried by height-1.
// getTimestamp retrieves a block's timestamp by height, used only at an
// adjustment boundary.
func ExpectedDifficultyBits(height uint64, prevBits uint32, initialBits uint32, getTimestamp func(uint64) (uint64, error)) uint32 {
	return ExpectedDifficultyBitsWindow(height, prevBits, initialBits, DifficultyAdjustmentInterval, TargetBlockTime, getTimestamp)
}

// ExpectedDifficultyBitsWindow is ExpectedDifficultyBits parameterized by
// a network's difficulty window and target block time, since
// mainnet and testnet retarget on different schedules.
func ExpectedDifficultyBitsWindow(height uint64, prevBits, initialBits uint32, window uint64, targetBlockTime int64, getTimestamp func(uint64) (uint64, error)) uint32 {
	if height == 0 {
		return initialBits
	}
	if window == 0 || height%window != 0 {
		return prevBits
	}

	startTS, err := getTimestamp(height - window)
	if err != nil {
		return prevBits
	}
	endTS, err := getTimestamp(height - 1)
	if err != nil {
		return prevBits
	}

	actual := int64(endTS - startTS)
	expected := int64(window) * targetBlockTime
	return CalcNextDifficultyBits(prevBits, actual, expected)
}
