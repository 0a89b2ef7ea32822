package mempool

import "sort"

// orderedEntriesLocked returns pooled entries ranked by decreasing
// fee_per_byte, tie-broken by earlier arrival first. Callers must hold p.mu.
func (p *Pool) orderedEntriesLocked() []*entry {
	ordered := make([]*entry, 0, len(p.entries))
	for _, e := range p.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].feePerByte != ordered[j].feePerByte {
			return ordered[i].feePerByte > ordered[j].feePerByte
		}
		return ordered[i].receivedAt.Before(ordered[j].receivedAt)
	})
	return ordered
}

// lowestFeeRateLocked returns the current fee-rate floor: the lowest
// fee_per_byte among pooled entries, or 0 if the pool is empty. Callers
// must hold p.mu.
func (p *Pool) lowestFeeRateLocked() float64 {
	lowest := 0.0
	first := true
	for _, e := range p.entries {
		if first || e.feePerByte < lowest {
			lowest = e.feePerByte
			first = false
		}
	}
	return lowest
}

// WouldRankWithin reports whether a transaction paying feePerByte would
// land among the top maxCount entries by fee rate if it were pooled
// right now — i.e. whether it would actually change a candidate block
// built from the top maxCount picks. Used to decide whether an accepted
// tx is a "materially higher fee" arrival worth preempting the miner's
// current template for.
func (p *Pool) WouldRankWithin(feePerByte float64, maxCount int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if maxCount <= 0 {
		return false
	}
	if len(p.entries) < maxCount {
		return true
	}
	ordered := p.orderedEntriesLocked()
	return feePerByte > ordered[maxCount-1].feePerByte
}

// evictToFitLocked drops the lowest fee-rate entries until the pool has
// room for an additional needBytes, per the bounded-pool policy. Callers
// must hold p.mu. Returns ErrPoolFull if evicting everything still
// wouldn't make room.
func (p *Pool) evictToFitLocked(needBytes int64) error {
	ordered := p.orderedEntriesLocked()
	// Ascending by fee rate: evict from the weakest end first.
	for i := len(ordered) - 1; i >= 0 && p.totalBytes+needBytes > p.maxBytes; i-- {
		p.removeLocked(ordered[i].txHash)
	}
	if p.totalBytes+needBytes > p.maxBytes {
		return ErrPoolFull
	}
	return nil
}
