package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/globalcoyn/globalcoyn/internal/consensus"
	"github.com/globalcoyn/globalcoyn/pkg/block"
	"github.com/globalcoyn/globalcoyn/pkg/tx"
	"github.com/globalcoyn/globalcoyn/pkg/types"
)

// errReorgNotBetter means a side block's branch does not (yet) carry
// more cumulative work than the active tip; it is not a rejection of the
// block itself, which stays in sideBlocks awaiting more work.
var errReorgNotBetter = errors.New("side branch does not exceed active chain work")

// ErrReorgTooDeep is returned when a side branch's common ancestor with
// the active chain lies further back than the last chain.snapshot, since
// balances before that point are no longer held in memory.
var ErrReorgTooDeep = errors.New("reorg common ancestor predates last snapshot")

// tryReorg evaluates whether the branch ending at sideHash now carries
// more cumulative work than the active chain and, if so, switches the
// tip to it.
//
// The candidate branch's own blocks were already structurally and
// consensus-validated by tryExtendLocked before being added to
// sideBlocks; tryReorg only has to walk to a common ancestor, compare
// work, and swap balances.
func (c *Chain) tryReorg(sideHash types.Hash) error {
	branch, err := c.collectBranch(sideHash)
	if err != nil {
		return fmt.Errorf("collect side branch: %w", err)
	}

	ancestorHash := branch[0].Header.PreviousHash
	ancestor, err := c.blockByHash(ancestorHash)
	if err != nil {
		return fmt.Errorf("find common ancestor: %w", err)
	}

	activeSuffix, err := c.collectActiveSuffix(ancestorHash)
	if err != nil {
		return fmt.Errorf("collect active suffix: %w", err)
	}

	// Both branches share everything through ancestor, so comparing
	// cumulative work from there forward reduces to comparing the work
	// of the two suffixes.
	branchWork := sumWork(branch)
	suffixWork := sumWork(activeSuffix)
	if branchWork.Cmp(suffixWork) <= 0 {
		return errReorgNotBetter
	}
	if ancestor.Header.Index < c.snapshotHeight {
		return ErrReorgTooDeep
	}

	if err := c.revertBranch(activeSuffix); err != nil {
		return fmt.Errorf("revert active branch: %w", err)
	}

	for _, blk := range branch {
		if err := c.commitBlock(blk, true); err != nil {
			return fmt.Errorf("apply side block %d: %w", blk.Header.Index, err)
		}
		if err := c.appendLog(blk); err != nil {
			return fmt.Errorf("log side block %d: %w", blk.Header.Index, err)
		}
		if c.onEvict != nil {
			for _, t := range blk.Transactions {
				c.onEvict(t.TxHash())
			}
		}
		delete(c.sideBlocks, blk.Hash())
	}

	for _, blk := range activeSuffix {
		c.sideBlocks[blk.Hash()] = blk
	}

	if err := c.maybeSnapshot(); err != nil {
		return fmt.Errorf("snapshot after reorg: %w", err)
	}

	if c.onReverted != nil {
		if disturbed := disturbedTxs(activeSuffix, branch); len(disturbed) > 0 {
			c.onReverted(disturbed)
		}
	}
	if c.onTipChanged != nil {
		c.onTipChanged(c.state.Height, c.state.TipHash)
	}
	return nil
}

// collectBranch walks sideBlocks backward from sideHash up to and
// including the first block whose own previous_hash is already in the
// block index, returning the branch in forward (oldest-first) order.
func (c *Chain) collectBranch(sideHash types.Hash) ([]*block.Block, error) {
	var branch []*block.Block
	hash := sideHash
	for {
		blk, ok := c.sideBlocks[hash]
		if !ok {
			return nil, fmt.Errorf("side block %s missing", hash)
		}
		branch = append([]*block.Block{blk}, branch...)
		if known, _ := c.index.HasBlock(blk.Header.PreviousHash); known {
			return branch, nil
		}
		hash = blk.Header.PreviousHash
	}
}

// collectActiveSuffix returns every block on the active chain strictly
// after ancestorHash, oldest first: the branch tryReorg is about to
// detach.
func (c *Chain) collectActiveSuffix(ancestorHash types.Hash) ([]*block.Block, error) {
	ancestor, err := c.index.GetBlock(ancestorHash)
	if err != nil {
		return nil, err
	}
	var suffix []*block.Block
	for h := ancestor.Header.Index + 1; h <= c.state.Height; h++ {
		blk, err := c.index.GetBlockByHeight(h)
		if err != nil {
			return nil, err
		}
		suffix = append(suffix, blk)
	}
	return suffix, nil
}

// blockByHash resolves a hash known to be on the active chain.
func (c *Chain) blockByHash(hash types.Hash) (*block.Block, error) {
	if hash.IsZero() {
		return &block.Block{Header: &block.Header{}}, nil
	}
	return c.index.GetBlock(hash)
}

// sumWork adds BlockWork across a sequence of blocks.
func sumWork(blocks []*block.Block) *big.Int {
	total := new(big.Int)
	for _, blk := range blocks {
		total.Add(total, consensus.BlockWork(blk.Header.DifficultyBits))
	}
	return total
}

// revertBranch undoes a sequence of active-chain blocks, most recent
// first, restoring balances via each block's stored undo record and
// rolling the tip back to the block preceding the suffix.
func (c *Chain) revertBranch(suffix []*block.Block) error {
	for i := len(suffix) - 1; i >= 0; i-- {
		blk := suffix[i]
		undo, err := c.index.GetUndo(blk.Hash())
		if err != nil {
			return fmt.Errorf("load undo for block %d: %w", blk.Header.Index, err)
		}
		for j := len(undo.Deltas) - 1; j >= 0; j-- {
			d := undo.Deltas[j]
			c.state.applyDelta(d.Address, -types.NewAmount(d.Delta))
		}
		c.state.CumulativeWork.Sub(c.state.CumulativeWork, consensus.BlockWork(blk.Header.DifficultyBits))
	}

	if len(suffix) == 0 {
		return nil
	}
	parentHash := suffix[0].Header.PreviousHash
	parent, err := c.blockByHash(parentHash)
	if err != nil {
		return fmt.Errorf("load reverted tip parent: %w", err)
	}
	c.state.Height = parent.Header.Index
	c.state.TipHash = parentHash
	c.state.TipTimestamp = parent.Header.Timestamp
	c.state.DifficultyBits = parent.Header.DifficultyBits
	return nil
}

// disturbedTxs returns every transaction from the reverted branch that
// does not also appear in the newly applied branch, so the mempool can
// reconsider them.
func disturbedTxs(reverted, applied []*block.Block) []*tx.Transaction {
	inNewBranch := make(map[types.Hash]bool)
	for _, blk := range applied {
		for _, t := range blk.Transactions {
			inNewBranch[t.TxHash()] = true
		}
	}

	var out []*tx.Transaction
	for _, blk := range reverted {
		for _, t := range blk.Transactions {
			if t.IsCoinbase() {
				continue
			}
			if !inNewBranch[t.TxHash()] {
				out = append(out, t)
			}
		}
	}
	return out
}
