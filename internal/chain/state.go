package chain

import (
	"math/big"

	"github.com/globalcoyn/globalcoyn/pkg/types"
)

// State holds the current chain tip state and the live balance map. It is
// the in-memory mirror of chain.snapshot plus whatever chain.log frames
// have been applied since the last snapshot.
type State struct {
	Height         uint64
	TipHash        types.Hash
	TipTimestamp   uint64
	DifficultyBits uint32 // difficulty_bits carried by the tip block.

	// CumulativeWork is the sum of BlockWork across every block from
	// genesis to the tip, used to compare competing chains during a
	// reorg.
	CumulativeWork *big.Int

	// Balances maps every address with a non-zero balance to its current
	// amount. Addresses are never stored with a zero balance.
	Balances map[types.Address]types.Amount
}

// NewState returns an empty, genesis-ready state.
func NewState() *State {
	return &State{
		CumulativeWork: new(big.Int),
		Balances:       make(map[types.Address]types.Amount),
	}
}

// IsGenesis returns true if no blocks have been processed yet.
func (s *State) IsGenesis() bool {
	return s.Height == 0 && s.TipHash.IsZero()
}

// Balance returns the confirmed balance of addr, 0 if never credited.
func (s *State) Balance(addr types.Address) types.Amount {
	return s.Balances[addr]
}

// Supply returns total coins in circulation: the sum of every non-zero
// balance.
func (s *State) Supply() types.Amount {
	var total types.Amount
	for _, v := range s.Balances {
		total = total.Add(v)
	}
	return total
}

// Clone returns a deep copy of the state, including its own copies of
// CumulativeWork and the balance map.
func (s *State) Clone() *State {
	cp := &State{
		Height:         s.Height,
		TipHash:        s.TipHash,
		TipTimestamp:   s.TipTimestamp,
		DifficultyBits: s.DifficultyBits,
		CumulativeWork: new(big.Int).Set(s.CumulativeWork),
		Balances:       make(map[types.Address]types.Amount, len(s.Balances)),
	}
	for a, v := range s.Balances {
		cp.Balances[a] = v
	}
	return cp
}

// applyDelta credits delta to addr, removing the entry entirely if the
// resulting balance is zero (keeps the map and chain.snapshot minimal).
func (s *State) applyDelta(addr types.Address, delta types.Amount) {
	newBal := s.Balances[addr] + delta
	if newBal == 0 {
		delete(s.Balances, addr)
		return
	}
	s.Balances[addr] = newBal
}
