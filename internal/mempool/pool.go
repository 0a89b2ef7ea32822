// Package mempool implements the pending-transaction pool: validation,
// deduplication, fee-ranked selection, and eviction.
package mempool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/globalcoyn/globalcoyn/pkg/tx"
	"github.com/globalcoyn/globalcoyn/pkg/types"
)

// Mempool errors.
var (
	ErrInvalidSignature  = errors.New("InvalidSignature")
	ErrInsufficientFunds = errors.New("InsufficientFunds")
	ErrFeeTooLow         = errors.New("FeeTooLow")
	ErrPoolFull          = errors.New("PoolFull")
	ErrDuplicateTx       = errors.New("DuplicateTx")
	ErrMalformedTx       = errors.New("MalformedTx")
)

// DefaultMaxBytes is the pool's default size bound.
const DefaultMaxBytes = 50 * 1024 * 1024

// DefaultTTL is how long a pending transaction may sit unconfirmed before
// expire() removes it.
const DefaultTTL = 72 * time.Hour

// BalanceSource is the confirmed-balance view the pool checks sender
// solvency against. The chain manager satisfies this.
type BalanceSource interface {
	Balance(addr types.Address) types.Amount
}

// entry is a mempool record: the transaction, its arrival metadata, and
// its precomputed fee rate.
type entry struct {
	tx         *tx.Transaction
	txHash     types.Hash
	receivedAt time.Time
	sizeBytes  int
	feePerByte float64
}

// Pool holds validated, not-yet-included transactions, ranked by fee
// rate for mining and bounded by total byte size.
type Pool struct {
	mu sync.RWMutex

	balances BalanceSource

	entries map[types.Hash]*entry
	// inflight tracks the one transaction stored per (sender, timestamp)
	// pair.
	inflight map[senderTimestamp]types.Hash
	// outflow is each sender's cumulative amount+fee currently pooled,
	// used to bound solvency against txs already accepted from the same
	// sender.
	outflow map[string]types.Amount

	totalBytes int64
	maxBytes   int64
	ttl        time.Duration
	policy     *Policy

	// onAccept is invoked after a transaction is accepted; the node uses
	// it to refresh the mining template.
	onAccept func(*tx.Transaction)
}

type senderTimestamp struct {
	sender    string
	timestamp int64
}

// New creates a mempool bounded at maxBytes (0 = DefaultMaxBytes) that
// checks sender solvency against balances, ttl (0 = DefaultTTL) for
// expire().
func New(balances BalanceSource, maxBytes int64, ttl time.Duration) *Pool {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Pool{
		balances: balances,
		entries:  make(map[types.Hash]*entry),
		inflight: make(map[senderTimestamp]types.Hash),
		outflow:  make(map[string]types.Amount),
		maxBytes: maxBytes,
		ttl:      ttl,
		policy:   DefaultPolicy(),
	}
}

// SetPolicy overrides the pool's node-local acceptance policy.
func (p *Pool) SetPolicy(policy *Policy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policy = policy
}

// SetAcceptHandler installs the callback fired after a successful Submit.
func (p *Pool) SetAcceptHandler(fn func(*tx.Transaction)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onAccept = fn
}

// Submit validates and admits a transaction. A nil error
// means Accepted; resubmitting an already-known tx_hash returns
// ErrDuplicateTx idempotently without altering pool state.
func (p *Pool) Submit(transaction *tx.Transaction) error {
	if transaction == nil {
		return fmt.Errorf("%w: nil transaction", ErrMalformedTx)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	txHash := transaction.TxHash()
	if _, known := p.entries[txHash]; known {
		return ErrDuplicateTx
	}

	if transaction.IsCoinbase() {
		return fmt.Errorf("%w: coinbase transactions are not submitted to the mempool", ErrMalformedTx)
	}
	if p.policy != nil {
		if err := p.policy.Check(transaction); err != nil {
			return err
		}
	}
	if err := tx.VerifyTx(transaction); err != nil {
		return p.classifyValidationError(err)
	}

	senderAddr, err := transaction.SenderAddress()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTx, err)
	}
	senderKey := senderAddr.String()

	key := senderTimestamp{sender: senderKey, timestamp: transaction.Timestamp}
	if existing, ok := p.inflight[key]; ok && existing != txHash {
		return fmt.Errorf("%w: sender %s already has a pending tx at timestamp %d", ErrDuplicateTx, senderKey, transaction.Timestamp)
	}

	spend := transaction.Amount.Add(transaction.Fee)
	confirmed := p.balances.Balance(senderAddr)
	already := p.outflow[senderKey]
	if confirmed.Sub(already).Sub(spend).IsNegative() {
		return fmt.Errorf("%w: sender %s", ErrInsufficientFunds, senderKey)
	}

	size := transaction.EncodedSize()
	feeRate := transaction.FeePerByte()

	if p.totalBytes+int64(size) > p.maxBytes {
		floor := p.lowestFeeRateLocked()
		if feeRate <= floor {
			return ErrFeeTooLow
		}
		if err := p.evictToFitLocked(int64(size)); err != nil {
			return ErrPoolFull
		}
	}

	e := &entry{
		tx:         transaction,
		txHash:     txHash,
		receivedAt: time.Now(),
		sizeBytes:  size,
		feePerByte: feeRate,
	}
	p.entries[txHash] = e
	p.inflight[key] = txHash
	p.outflow[senderKey] = already.Add(spend)
	p.totalBytes += int64(size)

	if p.onAccept != nil {
		p.onAccept(transaction)
	}
	return nil
}

// classifyValidationError maps a tx.VerifyTx/tx.Validate failure onto the
// mempool's error taxonomy.
func (p *Pool) classifyValidationError(err error) error {
	switch {
	case errors.Is(err, tx.ErrBadSignature), errors.Is(err, tx.ErrMissingSig):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, tx.ErrBadAddress):
		return fmt.Errorf("%w: %v", ErrMalformedTx, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformedTx, err)
	}
}

// Pick returns up to maxCount transactions (or all of them if maxCount <=
// 0), in decreasing fee_per_byte order, skipping any whose inclusion
// would push the same sender's cumulative outflow past its confirmed
// balance, and skipping any that would take the selection past maxBytes
// (when maxBytes > 0); smaller transactions later in the order can still
// be picked.
func (p *Pool) Pick(maxCount int, maxBytes int64) []*tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ordered := p.orderedEntriesLocked()

	spent := make(map[string]types.Amount, len(p.outflow))
	var result []*tx.Transaction
	var bytesUsed int64

	for _, e := range ordered {
		if maxCount > 0 && len(result) >= maxCount {
			break
		}
		if maxBytes > 0 && bytesUsed+int64(e.sizeBytes) > maxBytes {
			continue
		}
		senderAddr, err := e.tx.SenderAddress()
		if err != nil {
			continue
		}
		senderKey := senderAddr.String()
		spend := e.tx.Amount.Add(e.tx.Fee)
		confirmed := p.balances.Balance(senderAddr)
		already := spent[senderKey]
		if confirmed.Sub(already).Sub(spend).IsNegative() {
			continue
		}
		spent[senderKey] = already.Add(spend)
		result = append(result, e.tx)
		bytesUsed += int64(e.sizeBytes)
	}
	return result
}

// Evict drops the given transaction hashes from the pool, called by the
// chain manager after it applies a block containing them.
func (p *Pool) Evict(txHashes []types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range txHashes {
		p.removeLocked(h)
	}
}

// Expire drops entries received more than the pool's TTL before now
//.
func (p *Pool) Expire(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	var stale []types.Hash
	for h, e := range p.entries {
		if now.Sub(e.receivedAt) > p.ttl {
			stale = append(stale, h)
		}
	}
	for _, h := range stale {
		p.removeLocked(h)
	}
	return len(stale)
}

func (p *Pool) removeLocked(h types.Hash) {
	e, ok := p.entries[h]
	if !ok {
		return
	}
	delete(p.entries, h)
	p.totalBytes -= int64(e.sizeBytes)

	if senderAddr, err := e.tx.SenderAddress(); err == nil {
		senderKey := senderAddr.String()
		spend := e.tx.Amount.Add(e.tx.Fee)
		remaining := p.outflow[senderKey].Sub(spend)
		if remaining.IsNegative() || remaining == 0 {
			delete(p.outflow, senderKey)
		} else {
			p.outflow[senderKey] = remaining
		}
		key := senderTimestamp{sender: senderKey, timestamp: e.tx.Timestamp}
		if p.inflight[key] == h {
			delete(p.inflight, key)
		}
	}
}

// Has reports whether txHash is currently pooled.
func (p *Pool) Has(txHash types.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.entries[txHash]
	return ok
}

// Get retrieves a pooled transaction by hash, or nil if absent.
func (p *Pool) Get(txHash types.Hash) *tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if e, ok := p.entries[txHash]; ok {
		return e.tx
	}
	return nil
}

// Count returns the number of pooled transactions.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Bytes returns the pool's current total size in bytes.
func (p *Pool) Bytes() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.totalBytes
}

// Hashes returns the hashes of every pooled transaction.
func (p *Pool) Hashes() []types.Hash {
	p.mu.RLock()
	defer p.mu.RUnlock()
	hashes := make([]types.Hash, 0, len(p.entries))
	for h := range p.entries {
		hashes = append(hashes, h)
	}
	return hashes
}
