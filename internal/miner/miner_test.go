package miner

import (
	"sync"
	"testing"
	"time"

	"github.com/globalcoyn/globalcoyn/internal/chain"
	"github.com/globalcoyn/globalcoyn/internal/consensus"
	"github.com/globalcoyn/globalcoyn/pkg/block"
	"github.com/globalcoyn/globalcoyn/pkg/crypto"
	"github.com/globalcoyn/globalcoyn/pkg/tx"
	"github.com/globalcoyn/globalcoyn/pkg/types"
)

// easyBits is a compact difficulty_bits value whose target is nearly the
// maximum 256-bit value, so sealing succeeds within a handful of nonces.
const easyBits = 0x20ffffff

// fakeChain is a minimal ChainHandle stand-in recording applied blocks.
type fakeChain struct {
	mu       sync.Mutex
	height   uint64
	hash     types.Hash
	bits     uint32
	medianTP uint64
	pow      *consensus.PoW
	applied  []*block.Block
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		height: 0,
		hash:   types.Hash{1, 2, 3},
		bits:   easyBits,
		pow:    &consensus.PoW{InitialBits: easyBits},
	}
}

func (f *fakeChain) Tip() (uint64, types.Hash, uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.height, f.hash, f.bits
}

func (f *fakeChain) MedianTimePast() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.medianTP
}

func (f *fakeChain) Engine() *consensus.PoW {
	return f.pow
}

func (f *fakeChain) TryExtend(blk *block.Block) (chain.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, blk)
	f.height++
	f.hash = blk.Hash()
	return chain.Applied, nil
}

// fakePool is a minimal MempoolHandle stand-in.
type fakePool struct {
	txs []*tx.Transaction
}

func (f *fakePool) Pick(maxCount int, maxBytes int64) []*tx.Transaction {
	return f.txs
}

func fixedReward(height uint64) types.Amount { return types.NewAmount(5_000_000_000) }

func newKeyAndAddr(t *testing.T) (*crypto.PrivateKey, types.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return key, crypto.AddressFromPubKey(key.PublicKey())
}

func signedTx(t *testing.T, key *crypto.PrivateKey, sender, recipient types.Address, amount, fee types.Amount, timestamp int64) *tx.Transaction {
	t.Helper()
	txn := tx.NewTx(sender, recipient, amount, fee, timestamp, nil)
	if err := tx.SignTx(txn, key); err != nil {
		t.Fatalf("SignTx: %v", err)
	}
	return txn
}

func TestMiner_StartStop(t *testing.T) {
	fc := newFakeChain()
	m := New(fc, &fakePool{}, fixedReward)
	_, addr := newKeyAndAddr(t)

	if err := m.Start(addr); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start(addr); err == nil {
		t.Fatal("expected second Start to fail while already running")
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a mined block")
		default:
		}
		fc.mu.Lock()
		n := len(fc.applied)
		fc.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	m.Stop()
	status := m.Status()
	if status.Running {
		t.Fatal("expected Running = false after Stop")
	}
}

func TestMiner_BuildCandidateIncludesCoinbaseAndFees(t *testing.T) {
	fc := newFakeChain()
	key, sender := newKeyAndAddr(t)
	_, recipient := newKeyAndAddr(t)
	pending := signedTx(t, key, sender, recipient, types.NewAmount(1_000_000), types.NewAmount(250_000), 1)

	m := New(fc, &fakePool{txs: []*tx.Transaction{pending}}, fixedReward)
	_, minerAddr := newKeyAndAddr(t)
	m.coinbaseAddr = minerAddr

	blk, err := m.buildCandidate()
	if err != nil {
		t.Fatalf("buildCandidate: %v", err)
	}
	if len(blk.Transactions) != 2 {
		t.Fatalf("len(Transactions) = %d, want 2 (coinbase + 1)", len(blk.Transactions))
	}
	coinbase := blk.Transactions[0]
	if !coinbase.IsCoinbase() {
		t.Fatal("expected first transaction to be coinbase")
	}
	want := types.NewAmount(5_000_000_000).Add(types.NewAmount(250_000))
	if coinbase.Amount != want {
		t.Fatalf("coinbase amount = %v, want %v", coinbase.Amount, want)
	}
	if blk.Header.PreviousHash != fc.hash {
		t.Fatal("expected PreviousHash to match chain tip")
	}
	if blk.Header.DifficultyBits != easyBits {
		t.Fatalf("DifficultyBits = %x, want %x", blk.Header.DifficultyBits, easyBits)
	}
}

func TestMiner_TimestampFloorsAtMedianPlusOne(t *testing.T) {
	fc := newFakeChain()
	fc.medianTP = uint64(time.Now().Add(time.Hour).Unix())

	m := New(fc, &fakePool{}, fixedReward)
	_, minerAddr := newKeyAndAddr(t)
	m.coinbaseAddr = minerAddr

	blk, err := m.buildCandidate()
	if err != nil {
		t.Fatalf("buildCandidate: %v", err)
	}
	if blk.Header.Timestamp <= fc.medianTP {
		t.Fatalf("Timestamp = %d, want > medianTimePast %d", blk.Header.Timestamp, fc.medianTP)
	}
}

func TestMiner_RefreshAbandonsCandidate(t *testing.T) {
	fc := newFakeChain()
	fc.pow = &consensus.PoW{InitialBits: 0x207fffff}
	m := New(fc, &fakePool{}, fixedReward)
	_, addr := newKeyAndAddr(t)

	if err := m.Start(addr); err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.Refresh()
	time.Sleep(10 * time.Millisecond)
	m.Stop()

	if m.Status().Running {
		t.Fatal("expected Running = false after Stop")
	}
}
