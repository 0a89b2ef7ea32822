// Package miner implements the cooperative proof-of-work mining loop
// over candidate blocks.
package miner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/globalcoyn/globalcoyn/config"
	"github.com/globalcoyn/globalcoyn/internal/chain"
	"github.com/globalcoyn/globalcoyn/internal/consensus"
	"github.com/globalcoyn/globalcoyn/pkg/block"
	"github.com/globalcoyn/globalcoyn/pkg/tx"
	"github.com/globalcoyn/globalcoyn/pkg/types"
)

// ChainHandle is the narrow capability the miner needs from the chain
// manager: read the tip and submit solved candidates.
type ChainHandle interface {
	Tip() (height uint64, hash types.Hash, difficultyBits uint32)
	MedianTimePast() uint64
	Engine() *consensus.PoW
	TryExtend(blk *block.Block) (chain.Result, error)
}

// MempoolHandle is the narrow capability the miner needs from the
// mempool: pick candidates for inclusion.
type MempoolHandle interface {
	Pick(maxCount int, maxBytes int64) []*tx.Transaction
}

// RewardFn computes the block subsidy for a given height.
type RewardFn func(height uint64) types.Amount

// MaxBlockTxs bounds how many transactions a candidate carries, its
// coinbase included, so at most MaxBlockTxs-1 come from the mempool.
// Mirrors config.MaxBlockTxs (the
// consensus-enforced cap block.Validate applies) so a mined candidate
// can never be rejected by the chain manager for carrying too many txs.
const MaxBlockTxs = config.MaxBlockTxs

// maxBlockBytes is the soft byte bound for mempool picks per candidate,
// left under config.MaxBlockSize to leave room for the header and
// coinbase that block.Validate also counts against the hard cap.
const maxBlockBytes = config.MaxBlockSize - 200_000

// Status reports the miner's current state.
type Status struct {
	Running       bool
	CurrentHashes uint64 // hashes attempted in the current/last attempt
	StartedAt     time.Time
}

// Miner produces candidate blocks and drives the proof-of-work search
// over them, rebuilding its template whenever the tip or mempool changes
// materially.
type Miner struct {
	chain    ChainHandle
	pool     MempoolHandle
	rewardFn RewardFn

	mu           sync.Mutex
	running      bool
	coinbaseAddr types.Address
	startedAt    time.Time
	hashes       uint64
	cancel       context.CancelFunc
	refresh      chan struct{}
	done         chan struct{}

	logf func(format string, args ...any)
}

// New creates a miner bound to chain and pool, computing coinbase
// rewards via rewardFn.
func New(chain ChainHandle, pool MempoolHandle, rewardFn RewardFn) *Miner {
	return &Miner{
		chain:    chain,
		pool:     pool,
		rewardFn: rewardFn,
		logf:     func(string, ...any) {},
	}
}

// SetLogger installs a logging callback used for mining events.
func (m *Miner) SetLogger(logf func(format string, args ...any)) {
	m.logf = logf
}

// Start begins mining toward coinbaseAddr in a background goroutine. At
// most one miner run is active at a time.
func (m *Miner) Start(coinbaseAddr types.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("miner already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.coinbaseAddr = coinbaseAddr
	m.cancel = cancel
	m.refresh = make(chan struct{}, 1)
	m.done = make(chan struct{})
	m.running = true
	m.startedAt = time.Now()
	m.hashes = 0

	go m.run(ctx)
	return nil
}

// Stop halts the mining loop and waits for it to exit.
func (m *Miner) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

// Refresh signals the mining loop to abandon its current candidate and
// rebuild a fresh one immediately: on a new tip, a materially better
// mempool tx, or an explicit caller request.
func (m *Miner) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	select {
	case m.refresh <- struct{}{}:
	default:
	}
}

// Status reports the miner's current run state.
func (m *Miner) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Running:       m.running,
		CurrentHashes: m.hashes,
		StartedAt:     m.startedAt,
	}
}

// run is the miner's main loop: build a candidate, attempt to solve it
// with cancellation on tip change / refresh / shutdown, and repeat.
func (m *Miner) run(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		attemptCtx, attemptCancel := context.WithCancel(ctx)
		solved := make(chan *block.Block, 1)
		solveErr := make(chan error, 1)

		go func() {
			blk, err := m.buildCandidate()
			if err != nil {
				solveErr <- err
				return
			}
			pow := m.chain.Engine()
			pow.Progress = func(attempts uint64) {
				m.mu.Lock()
				m.hashes = attempts
				m.mu.Unlock()
			}
			if err := pow.SealWithCancel(attemptCtx, blk); err != nil {
				solveErr <- err
				return
			}
			solved <- blk
		}()

		select {
		case <-ctx.Done():
			attemptCancel()
			return
		case <-m.refresh:
			attemptCancel()
		case blk := <-solved:
			attemptCancel()
			m.submit(blk)
		case err := <-solveErr:
			attemptCancel()
			if err != context.Canceled {
				m.logf("miner: candidate failed: %v", err)
				time.Sleep(time.Second)
			}
		}
	}
}

// submit hands a solved block to the chain manager; on rejection the
// caller's next loop iteration simply rebuilds against the current tip.
func (m *Miner) submit(blk *block.Block) {
	result, err := m.chain.TryExtend(blk)
	if err != nil {
		m.logf("miner: block rejected: %v", err)
		return
	}
	if result != chain.Applied {
		m.logf("miner: block not applied: %s", result)
	}
}

// buildCandidate assembles an unsolved block: coinbase paying reward +
// fees, followed by mempool picks, with previous_hash, difficulty_bits,
// and timestamp set per the mining algorithm.
func (m *Miner) buildCandidate() (*block.Block, error) {
	height, tipHash, _ := m.chain.Tip()
	nextHeight := height + 1

	var selected []*tx.Transaction
	var totalFees types.Amount
	if m.pool != nil {
		selected = m.pool.Pick(MaxBlockTxs-1, maxBlockBytes)
		for _, t := range selected {
			totalFees = totalFees.Add(t.Fee)
		}
	}

	reward := m.rewardFn(nextHeight)
	now := uint64(time.Now().Unix())
	timestamp := now
	if floor := m.chain.MedianTimePast() + 1; timestamp < floor {
		timestamp = floor
	}

	coinbase := tx.NewCoinbaseTx(m.coinbaseAddr, reward.Add(totalFees), int64(timestamp))
	txs := make([]*tx.Transaction, 0, 1+len(selected))
	txs = append(txs, coinbase)
	txs = append(txs, selected...)

	txHashes := make([]types.Hash, len(txs))
	for i, t := range txs {
		txHashes[i] = t.TxHash()
	}
	merkle := block.ComputeMerkleRoot(txHashes)

	header := &block.Header{
		Index:        nextHeight,
		PreviousHash: tipHash,
		Timestamp:    timestamp,
		MerkleRoot:   merkle,
	}
	if err := m.chain.Engine().Prepare(header); err != nil {
		return nil, fmt.Errorf("prepare header: %w", err)
	}

	return block.NewBlock(header, txs), nil
}
