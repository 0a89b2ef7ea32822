// Package chain implements the blockchain state machine: block
// acceptance, balance application, persistence, and reorg.
package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/globalcoyn/globalcoyn/config"
	"github.com/globalcoyn/globalcoyn/internal/consensus"
	"github.com/globalcoyn/globalcoyn/internal/storage"
	"github.com/globalcoyn/globalcoyn/pkg/block"
	"github.com/globalcoyn/globalcoyn/pkg/tx"
	"github.com/globalcoyn/globalcoyn/pkg/types"
)

// Result is the outcome of try_extend.
type Result int

const (
	Rejected Result = iota
	Applied
	Orphaned
)

func (r Result) String() string {
	switch r {
	case Applied:
		return "Applied"
	case Orphaned:
		return "Orphaned"
	default:
		return "Rejected"
	}
}

// Block acceptance errors.
var (
	ErrBlockKnown            = errors.New("block already known")
	ErrNilBlock              = errors.New("nil block or header")
	ErrBadPrevHash           = errors.New("previous_hash does not match a known block")
	ErrBadHeight             = errors.New("block index does not follow its parent")
	ErrTimestampTooFuture    = errors.New("block timestamp too far in the future")
	ErrTimestampBeforeParent = errors.New("block timestamp does not exceed median of last 11 blocks")
	ErrInsufficientBalance   = errors.New("transaction would leave sender with a negative balance")
	ErrBadCoinbaseAmount     = errors.New("coinbase amount does not equal reward plus collected fees")
)

// maxFutureDrift bounds how far a block's timestamp may lead wall-clock
// time before it is rejected outright.
const maxFutureDrift = 2 * time.Hour

// snapshotInterval is how many applied blocks accumulate in chain.log
// before a fresh chain.snapshot is written and the log is truncated.
const snapshotInterval = 1000

// TxEvictHandler is called for every transaction hash included in a
// newly applied block, so the mempool can drop it.
type TxEvictHandler func(txHash types.Hash)

// RevertedTxHandler is called after a reorg with the transactions from
// reverted blocks that are not present in the new branch, so they can be
// resubmitted to the mempool.
type RevertedTxHandler func(txs []*tx.Transaction)

// TipChangedHandler is called whenever the active tip advances, whether
// by extending it directly or via reorg, so the miner can preempt its
// current candidate and rebuild against the new tip (§4.6 preemption
// rule (a)).
type TipChangedHandler func(height uint64, hash types.Hash)

// Chain is the node's canonical blockchain state machine. Canonical
// storage is chain.log (sequential applied blocks since the last
// snapshot) and chain.snapshot (periodic full balance checkpoint); the
// BlockStore index is a rebuildable accelerator over both.
type Chain struct {
	mu sync.Mutex

	state *State
	index *BlockStore

	log            *storage.AppendLog
	logPath        string
	snapshotPath   string
	snapshotHeight uint64

	rules       config.ConsensusRules
	engine      *consensus.PoW
	genesisHash types.Hash

	// sideBlocks holds blocks known to the node but not (yet) on the
	// active chain: fork candidates reachable from a TryExtend call
	// whose previous_hash isn't the current tip.
	sideBlocks map[types.Hash]*block.Block
	// orphans holds blocks whose previous_hash is entirely unknown,
	// keyed by that previous_hash, awaiting the missing ancestor.
	orphans map[types.Hash][]*block.Block

	onEvict      TxEvictHandler
	onReverted   RevertedTxHandler
	onTipChanged TipChangedHandler
}

// Open opens (or creates) the chain backed by the literal chain.log and
// chain.snapshot files at the given paths, replaying them into memory,
// and initializing from genesis if both are empty.
func Open(logPath, snapshotPath string, index *BlockStore, gen *config.Genesis) (*Chain, error) {
	logf, err := storage.OpenAppendLog(logPath)
	if err != nil {
		return nil, fmt.Errorf("open chain log: %w", err)
	}

	pow, err := consensus.NewPoW(gen.Consensus.InitialDifficulty)
	if err != nil {
		logf.Close()
		return nil, fmt.Errorf("init pow engine: %w", err)
	}
	pow.Window = gen.Consensus.DifficultyWindow
	pow.TargetBlockTime = gen.Consensus.TargetBlockTime

	c := &Chain{
		state:        NewState(),
		index:        index,
		log:          logf,
		logPath:      logPath,
		snapshotPath: snapshotPath,
		rules:        gen.Consensus,
		engine:       pow,
		sideBlocks:   make(map[types.Hash]*block.Block),
		orphans:      make(map[types.Hash][]*block.Block),
	}
	pow.DifficultyFn = c.expectedDifficultyAt

	if err := c.restore(gen); err != nil {
		logf.Close()
		return nil, fmt.Errorf("restore chain: %w", err)
	}
	return c, nil
}

// restore loads chain.snapshot (if any), replays chain.log on top of it,
// and falls back to genesis initialization for a brand-new data directory.
func (c *Chain) restore(gen *config.Genesis) error {
	snap, err := storage.ReadSnapshot(c.snapshotPath)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if snap != nil {
		c.state.Height = snap.Height
		c.state.TipHash = snap.TipHash
		c.state.DifficultyBits = snap.DifficultyBits
		c.state.Balances = snap.Balances
		c.snapshotHeight = snap.Height
	}

	replayed := 0
	validBytes, err := c.log.ReadAll(func(data []byte) error {
		var blk block.Block
		if err := json.Unmarshal(data, &blk); err != nil {
			return fmt.Errorf("unmarshal logged block: %w", err)
		}
		if err := c.commitBlock(&blk, true); err != nil {
			return fmt.Errorf("replay block %d: %w", blk.Header.Index, err)
		}
		replayed++
		return nil
	})
	if err != nil {
		if !errors.Is(err, storage.CorruptLog) {
			return err
		}
		if err := c.log.Truncate(validBytes); err != nil {
			return fmt.Errorf("truncate corrupt log: %w", err)
		}
	}

	if c.state.IsGenesis() && replayed == 0 {
		return c.initGenesis(gen)
	}
	return nil
}

// initGenesis applies the genesis allocations directly to the balance
// map and persists the genesis block, bypassing try_extend entirely
// (see genesis.go).
func (c *Chain) initGenesis(gen *config.Genesis) error {
	blk, err := CreateGenesisBlock(gen)
	if err != nil {
		return fmt.Errorf("create genesis block: %w", err)
	}
	for addrStr, amt := range gen.Alloc {
		addr, err := types.ParseAddress(addrStr)
		if err != nil {
			return fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
		c.state.applyDelta(addr, amt)
	}
	c.state.Height = 0
	c.state.TipHash = blk.Hash()
	c.state.TipTimestamp = blk.Header.Timestamp
	c.state.DifficultyBits = blk.Header.DifficultyBits
	c.genesisHash = blk.Hash()

	if err := c.index.PutBlock(blk); err != nil {
		return fmt.Errorf("index genesis block: %w", err)
	}
	return c.appendLog(blk)
}

// TryExtend submits a candidate block to the chain manager.
func (c *Chain) TryExtend(blk *block.Block) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tryExtendLocked(blk)
}

func (c *Chain) tryExtendLocked(blk *block.Block) (Result, error) {
	if blk == nil || blk.Header == nil {
		return Rejected, ErrNilBlock
	}
	hash := blk.Hash()

	if known, _ := c.index.HasBlock(hash); known {
		return Rejected, ErrBlockKnown
	}
	if _, known := c.sideBlocks[hash]; known {
		return Rejected, ErrBlockKnown
	}

	if err := blk.Validate(); err != nil {
		return Rejected, fmt.Errorf("structural validation: %w", err)
	}

	if blk.Header.Timestamp > uint64(time.Now().Add(maxFutureDrift).Unix()) {
		return Rejected, ErrTimestampTooFuture
	}

	parent, err := c.getParent(blk)
	if err != nil {
		c.stashOrphan(blk)
		return Orphaned, nil
	}
	if blk.Header.Index > 0 {
		if median := c.medianTimePastLocked(); blk.Header.Timestamp <= median {
			return Rejected, ErrTimestampBeforeParent
		}
	}
	if blk.Header.Index != parent.Header.Index+1 {
		return Rejected, ErrBadHeight
	}

	if err := c.verifyConsensus(blk, parent); err != nil {
		return Rejected, err
	}

	if blk.Header.PreviousHash == c.state.TipHash {
		if err := c.extendTip(blk); err != nil {
			return Rejected, err
		}
		c.promoteOrphans(hash)
		return Applied, nil
	}

	// Valid block, known parent, but not extending the current tip: a
	// fork candidate. Store it and let the fork-choice rule decide.
	c.sideBlocks[hash] = blk
	if err := c.tryReorg(hash); err != nil && !errors.Is(err, errReorgNotBetter) {
		return Rejected, err
	}
	c.promoteOrphans(hash)
	return Applied, nil
}

// getParent resolves a block's parent from the active chain or from a
// known side block.
func (c *Chain) getParent(blk *block.Block) (*block.Block, error) {
	if blk.Header.Index == 0 {
		return &block.Block{Header: &block.Header{}}, nil
	}
	if blk.Header.PreviousHash == c.state.TipHash {
		return c.index.GetBlock(c.state.TipHash)
	}
	if sb, ok := c.sideBlocks[blk.Header.PreviousHash]; ok {
		return sb, nil
	}
	if known, _ := c.index.HasBlock(blk.Header.PreviousHash); known {
		return c.index.GetBlock(blk.Header.PreviousHash)
	}
	return nil, ErrBadPrevHash
}

// verifyConsensus checks PoW validity and the prescribed difficulty for
// a block against its parent.
func (c *Chain) verifyConsensus(blk, parent *block.Block) error {
	if err := c.engine.VerifyHeader(blk.Header); err != nil {
		return err
	}
	prevBits := c.rules.InitialDifficulty
	if blk.Header.Index > 0 {
		prevBits = parent.Header.DifficultyBits
	}
	return c.engine.VerifyDifficulty(blk.Header, prevBits, c.timestampAt)
}

// verifyCoinbaseAmount checks block-acceptance rule (6) (§4.7): the
// block's sole coinbase must pay exactly reward(index) plus the fees of
// every other transaction in the block — neither more (which would mint
// coins out of thin air, breaking the Σ balances == Σ rewards invariant
// of §8) nor less.
func (c *Chain) verifyCoinbaseAmount(blk *block.Block) error {
	var fees types.Amount
	for _, t := range blk.Transactions[1:] {
		fees = fees.Add(t.Fee)
	}
	reward := consensus.RewardWithSchedule(blk.Header.Index, c.rules.HalvingInterval, c.rules.InitialReward)
	want := reward.Add(fees)
	if blk.Transactions[0].Amount != want {
		return fmt.Errorf("%w: height %d pays %s, want %s", ErrBadCoinbaseAmount, blk.Header.Index, blk.Transactions[0].Amount, want)
	}
	return nil
}

// timestampAt retrieves a block's timestamp by height, from either the
// active chain or a known side block, for difficulty retarget lookups.
func (c *Chain) timestampAt(height uint64) (uint64, error) {
	if blk, err := c.index.GetBlockByHeight(height); err == nil {
		return blk.Header.Timestamp, nil
	}
	for _, sb := range c.sideBlocks {
		if sb.Header.Index == height {
			return sb.Header.Timestamp, nil
		}
	}
	return 0, fmt.Errorf("no block known at height %d", height)
}

// expectedDifficultyAt is the miner-facing DifficultyFn: the bits a new
// block at height must carry, computed from the active chain tip.
func (c *Chain) expectedDifficultyAt(height uint64) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return consensus.ExpectedDifficultyBitsWindow(height, c.state.DifficultyBits, c.rules.InitialDifficulty,
		c.rules.DifficultyWindow, c.rules.TargetBlockTime, c.timestampAt)
}

// extendTip applies blk on top of the current tip, persists it, and
// evicts its transactions from the mempool.
func (c *Chain) extendTip(blk *block.Block) error {
	if err := c.commitBlock(blk, true); err != nil {
		return err
	}
	if err := c.appendLog(blk); err != nil {
		return err
	}
	if err := c.maybeSnapshot(); err != nil {
		return err
	}
	if c.onEvict != nil {
		for _, t := range blk.Transactions {
			c.onEvict(t.TxHash())
		}
	}
	if c.onTipChanged != nil {
		c.onTipChanged(blk.Header.Index, blk.Hash())
	}
	return nil
}

// commitBlock applies blk's balance deltas to state and advances the
// tip. When persist is true (a freshly accepted block, or log replay
// during restore) it also indexes the block and records its undo entry.
//
// Height 0 (genesis) is exempt from the coinbase-amount check below: it
// carries one coinbase-style transaction per alloc entry rather than a
// single reward+fees payout (see CreateGenesisBlock), and reaches
// commitBlock only through log replay, never through try_extend.
func (c *Chain) commitBlock(blk *block.Block, persist bool) error {
	if blk.Header.Index > 0 {
		if err := c.verifyCoinbaseAmount(blk); err != nil {
			return err
		}
	}

	undo := &undoRecord{}
	for _, t := range blk.Transactions {
		if t.IsCoinbase() {
			undo.Deltas = append(undo.Deltas, addrDelta{Address: t.Recipient, Delta: t.Amount.Int64()})
			c.state.applyDelta(t.Recipient, t.Amount)
			continue
		}
		senderAddr, err := t.SenderAddress()
		if err != nil {
			return fmt.Errorf("tx %s: %w", t.TxHash(), err)
		}
		spend := t.Amount.Add(t.Fee)
		if c.state.Balance(senderAddr) < spend {
			return fmt.Errorf("%w: sender %s", ErrInsufficientBalance, senderAddr)
		}
		undo.Deltas = append(undo.Deltas, addrDelta{Address: senderAddr, Delta: -spend.Int64()})
		undo.Deltas = append(undo.Deltas, addrDelta{Address: t.Recipient, Delta: t.Amount.Int64()})
		c.state.applyDelta(senderAddr, -spend)
		c.state.applyDelta(t.Recipient, t.Amount)
	}

	c.state.Height = blk.Header.Index
	c.state.TipHash = blk.Hash()
	c.state.TipTimestamp = blk.Header.Timestamp
	c.state.DifficultyBits = blk.Header.DifficultyBits
	c.state.CumulativeWork.Add(c.state.CumulativeWork, consensus.BlockWork(blk.Header.DifficultyBits))

	if persist {
		if err := c.index.PutBlock(blk); err != nil {
			return fmt.Errorf("index block: %w", err)
		}
		if err := c.index.PutUndo(blk.Hash(), undo); err != nil {
			return fmt.Errorf("index undo: %w", err)
		}
		delete(c.sideBlocks, blk.Hash())
	}
	return nil
}

// appendLog writes blk to chain.log.
func (c *Chain) appendLog(blk *block.Block) error {
	data, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("marshal block for log: %w", err)
	}
	return c.log.Append(data)
}

// maybeSnapshot writes a fresh chain.snapshot and truncates chain.log
// once enough blocks have accumulated since the last checkpoint.
func (c *Chain) maybeSnapshot() error {
	if c.state.Height-c.snapshotHeight < snapshotInterval {
		return nil
	}
	return c.writeSnapshot()
}

func (c *Chain) writeSnapshot() error {
	snap := &storage.Snapshot{
		Height:         c.state.Height,
		TipHash:        c.state.TipHash,
		DifficultyBits: c.state.DifficultyBits,
		Balances:       c.state.Balances,
	}
	if err := storage.WriteSnapshot(c.snapshotPath, snap); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := c.log.Truncate(0); err != nil {
		return fmt.Errorf("truncate log after snapshot: %w", err)
	}
	c.snapshotHeight = c.state.Height
	return nil
}

// stashOrphan stores a block whose parent is unknown, keyed by the
// missing previous_hash.
func (c *Chain) stashOrphan(blk *block.Block) {
	c.orphans[blk.Header.PreviousHash] = append(c.orphans[blk.Header.PreviousHash], blk)
}

// promoteOrphans re-submits any orphans waiting on hash, now that it is
// known, via the normal try_extend path.
func (c *Chain) promoteOrphans(hash types.Hash) {
	waiting := c.orphans[hash]
	delete(c.orphans, hash)
	for _, blk := range waiting {
		_, _ = c.tryExtendLocked(blk)
	}
}

// Tip returns the current chain tip.
func (c *Chain) Tip() (height uint64, hash types.Hash, difficultyBits uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Height, c.state.TipHash, c.state.DifficultyBits
}

// Balance returns addr's confirmed balance.
func (c *Chain) Balance(addr types.Address) types.Amount {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Balance(addr)
}

// medianTimestampWindow is how many of the most recent blocks the median
// past time is computed over.
const medianTimestampWindow = 11

// MedianTimePast returns the median timestamp of up to the last 11
// blocks on the active chain, used both to reject a new block whose
// timestamp doesn't exceed it and to floor
// the miner's candidate timestamp.
func (c *Chain) MedianTimePast() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.medianTimePastLocked()
}

func (c *Chain) medianTimePastLocked() uint64 {
	n := medianTimestampWindow
	if uint64(n) > c.state.Height+1 {
		n = int(c.state.Height + 1)
	}
	timestamps := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		height := c.state.Height - uint64(i)
		ts, err := c.timestampAt(height)
		if err != nil {
			break
		}
		timestamps = append(timestamps, ts)
	}
	if len(timestamps) == 0 {
		return 0
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })
	return timestamps[len(timestamps)/2]
}

// Supply returns the total confirmed coin supply.
func (c *Chain) Supply() types.Amount {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Supply()
}

// History returns every confirmed transaction touching addr, oldest
// first.
func (c *Chain) History(addr types.Address) ([]*tx.Transaction, error) {
	hashes, err := c.index.History(addr)
	if err != nil {
		return nil, fmt.Errorf("address history: %w", err)
	}
	txs := make([]*tx.Transaction, 0, len(hashes))
	seen := make(map[types.Hash]bool, len(hashes))
	for _, h := range hashes {
		if seen[h] {
			continue
		}
		seen[h] = true
		t, err := c.GetTransaction(h)
		if err != nil {
			continue
		}
		txs = append(txs, t)
	}
	return txs, nil
}

// GetBlock retrieves a confirmed block by its hash.
func (c *Chain) GetBlock(hash types.Hash) (*block.Block, error) {
	return c.index.GetBlock(hash)
}

// GetBlockByHeight retrieves a confirmed block by its height.
func (c *Chain) GetBlockByHeight(height uint64) (*block.Block, error) {
	return c.index.GetBlockByHeight(height)
}

// GetTransaction looks up a confirmed transaction by hash via the tx index.
func (c *Chain) GetTransaction(hash types.Hash) (*tx.Transaction, error) {
	_, blockHash, err := c.index.GetTxLocation(hash)
	if err != nil {
		return nil, err
	}
	blk, err := c.index.GetBlock(blockHash)
	if err != nil {
		return nil, fmt.Errorf("load block for tx: %w", err)
	}
	for _, t := range blk.Transactions {
		if t.TxHash() == hash {
			return t, nil
		}
	}
	return nil, fmt.Errorf("tx %s not found in block %s (index corrupt)", hash, blockHash)
}

// SetTxEvictHandler sets the callback invoked on every tx hash included
// in a newly applied block.
func (c *Chain) SetTxEvictHandler(fn TxEvictHandler) {
	c.onEvict = fn
}

// SetRevertedTxHandler sets the callback invoked after a reorg with
// transactions from reverted blocks absent from the new branch.
func (c *Chain) SetRevertedTxHandler(fn RevertedTxHandler) {
	c.onReverted = fn
}

// SetTipChangedHandler sets the callback invoked whenever the active
// tip advances.
func (c *Chain) SetTipChangedHandler(fn TipChangedHandler) {
	c.onTipChanged = fn
}

// Engine exposes the PoW engine so the miner can prepare and seal
// candidate headers with the same difficulty schedule the chain
// enforces.
func (c *Chain) Engine() *consensus.PoW {
	return c.engine
}

// Close flushes a final snapshot and closes the underlying chain.log.
func (c *Chain) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writeSnapshot(); err != nil {
		return err
	}
	return c.log.Close()
}
