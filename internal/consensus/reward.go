package consensus

import "github.com/globalcoyn/globalcoyn/pkg/types"

// HalvingInterval is the number of blocks between reward halvings.
const HalvingInterval = 210000

// initialRewardBaseUnits is 50 GCN expressed in 1e-8 base units.
const initialRewardBaseUnits = 50 * 100_000_000

// Reward computes reward(h) = 50 * 2^(-floor(h/HalvingInterval)),
// truncated to 8 fractional digits, returning 0 once enough halvings
// have occurred to reduce it below one base unit.
func Reward(height uint64) types.Amount {
	return RewardWithSchedule(height, HalvingInterval, types.NewAmount(initialRewardBaseUnits))
}

// RewardWithSchedule is Reward parameterized by a network's halving
// interval and initial reward, both fixed at genesis.
func RewardWithSchedule(height, halvingInterval uint64, initialReward types.Amount) types.Amount {
	if halvingInterval == 0 {
		halvingInterval = HalvingInterval
	}
	halvings := height / halvingInterval
	if halvings >= 63 {
		return types.NewAmount(0)
	}
	return types.NewAmount(initialReward.Int64() >> halvings)
}
