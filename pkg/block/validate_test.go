package block

import (
	"bytes"
	"errors"
	"sort"
	"testing"

	"github.com/globalcoyn/globalcoyn/config"
	"github.com/globalcoyn/globalcoyn/pkg/crypto"
	"github.com/globalcoyn/globalcoyn/pkg/tx"
	"github.com/globalcoyn/globalcoyn/pkg/types"
)

func testCoinbase() *tx.Transaction {
	return tx.NewCoinbaseTx(types.Address{0x01}, types.NewAmount(5000000000), 1700000000)
}

// validBlock creates a minimal valid block with correct merkle root.
func validBlock(t *testing.T) *Block {
	t.Helper()

	coinbase := testCoinbase()
	txHashes := []types.Hash{coinbase.TxHash()}
	merkleRoot := ComputeMerkleRoot(txHashes)

	header := &Header{
		Index:        1,
		PreviousHash: types.Hash{0xaa},
		MerkleRoot:   merkleRoot,
		Timestamp:    1700000000,
	}

	return NewBlock(header, []*tx.Transaction{coinbase})
}

func signedTx(t *testing.T, recipient types.Address, amount types.Amount, seed byte) *tx.Transaction {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	sender := crypto.AddressFromPubKey(key.PublicKey())
	b := tx.NewBuilder(sender, recipient, amount, types.NewAmount(1), 1700000000+int64(seed))
	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	return b.Build()
}

func sortTxsByHash(txs []*tx.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		hi, hj := txs[i].TxHash(), txs[j].TxHash()
		return bytes.Compare(hi[:], hj[:]) < 0
	})
}

func TestBlock_Validate_Valid(t *testing.T) {
	blk := validBlock(t)
	if err := blk.Validate(); err != nil {
		t.Errorf("valid block should pass: %v", err)
	}
}

func TestBlock_Validate_NilHeader(t *testing.T) {
	blk := &Block{Header: nil}
	if err := blk.Validate(); !errors.Is(err, ErrNilHeader) {
		t.Errorf("expected ErrNilHeader, got: %v", err)
	}
}

func TestBlock_Validate_ZeroTimestamp(t *testing.T) {
	blk := validBlock(t)
	blk.Header.Timestamp = 0
	if err := blk.Validate(); !errors.Is(err, ErrZeroTimestamp) {
		t.Errorf("expected ErrZeroTimestamp, got: %v", err)
	}
}

func TestBlock_Validate_NoTransactions(t *testing.T) {
	blk := &Block{
		Header:       &Header{Timestamp: 1700000000},
		Transactions: nil,
	}
	if err := blk.Validate(); !errors.Is(err, ErrNoTransactions) {
		t.Errorf("expected ErrNoTransactions, got: %v", err)
	}
}

func TestBlock_Validate_BadMerkleRoot(t *testing.T) {
	blk := validBlock(t)
	blk.Header.MerkleRoot = types.Hash{0xde, 0xad}
	if err := blk.Validate(); !errors.Is(err, ErrBadMerkleRoot) {
		t.Errorf("expected ErrBadMerkleRoot, got: %v", err)
	}
}

func TestBlock_Validate_InvalidTransaction(t *testing.T) {
	coinbase := testCoinbase()
	badTx := tx.NewTx(types.Address{0x09}, types.Address{0x02}, types.NewAmount(1000), types.NewAmount(1), 1700000000, nil)
	badTx.Sender = "not-a-valid-address"

	txs := []*tx.Transaction{coinbase, badTx}
	hashes := []types.Hash{txs[0].TxHash(), txs[1].TxHash()}
	merkle := ComputeMerkleRoot(hashes)

	blk := NewBlock(&Header{
		Index:      1,
		MerkleRoot: merkle,
		Timestamp:  1700000000,
	}, txs)

	if err := blk.Validate(); err == nil {
		t.Error("block with invalid tx should fail validation")
	}
}

func TestBlock_Validate_MultipleTxs(t *testing.T) {
	coinbase := testCoinbase()

	t1 := signedTx(t, types.Address{0x02}, types.NewAmount(1000), 1)
	t2 := signedTx(t, types.Address{0x03}, types.NewAmount(2000), 2)

	userTxs := []*tx.Transaction{t1, t2}
	sortTxsByHash(userTxs)

	txs := append([]*tx.Transaction{coinbase}, userTxs...)

	hashes := make([]types.Hash, len(txs))
	for i, transaction := range txs {
		hashes[i] = transaction.TxHash()
	}
	merkle := ComputeMerkleRoot(hashes)

	blk := NewBlock(&Header{
		Index:      5,
		MerkleRoot: merkle,
		Timestamp:  1700000000,
	}, txs)

	if err := blk.Validate(); err != nil {
		t.Errorf("multi-tx block should validate: %v", err)
	}
}

func TestBlock_Validate_NoCoinbase(t *testing.T) {
	transaction := signedTx(t, types.Address{0x02}, types.NewAmount(1000), 1)

	merkle := ComputeMerkleRoot([]types.Hash{transaction.TxHash()})
	blk := NewBlock(&Header{
		Index:      1,
		MerkleRoot: merkle,
		Timestamp:  1700000000,
	}, []*tx.Transaction{transaction})

	if err := blk.Validate(); !errors.Is(err, ErrNoCoinbase) {
		t.Errorf("expected ErrNoCoinbase, got: %v", err)
	}
}

func TestBlock_Validate_MultipleCoinbase(t *testing.T) {
	coinbase1 := testCoinbase()
	coinbase2 := testCoinbase()

	txs := []*tx.Transaction{coinbase1, coinbase2}
	hashes := []types.Hash{txs[0].TxHash(), txs[1].TxHash()}
	merkle := ComputeMerkleRoot(hashes)

	blk := NewBlock(&Header{
		Index:      1,
		MerkleRoot: merkle,
		Timestamp:  1700000000,
	}, txs)

	if err := blk.Validate(); !errors.Is(err, ErrMultipleCoinbase) {
		t.Errorf("expected ErrMultipleCoinbase, got: %v", err)
	}
}

func TestBlock_Validate_BadTxOrder(t *testing.T) {
	coinbase := testCoinbase()

	t1 := signedTx(t, types.Address{0x02}, types.NewAmount(1000), 1)
	t2 := signedTx(t, types.Address{0x03}, types.NewAmount(2000), 2)

	userTxs := []*tx.Transaction{t1, t2}
	sortTxsByHash(userTxs)
	userTxs[0], userTxs[1] = userTxs[1], userTxs[0] // reverse = wrong order

	txs := append([]*tx.Transaction{coinbase}, userTxs...)

	hashes := make([]types.Hash, len(txs))
	for i, transaction := range txs {
		hashes[i] = transaction.TxHash()
	}
	merkle := ComputeMerkleRoot(hashes)

	blk := NewBlock(&Header{
		Index:      5,
		MerkleRoot: merkle,
		Timestamp:  1700000000,
	}, txs)

	if err := blk.Validate(); !errors.Is(err, ErrBadTxOrder) {
		t.Errorf("expected ErrBadTxOrder, got: %v", err)
	}
}

func TestBlock_Validate_TooManyTxs(t *testing.T) {
	coinbase := testCoinbase()

	txs := make([]*tx.Transaction, 0, config.MaxBlockTxs+1)
	txs = append(txs, coinbase)
	for i := 0; i < config.MaxBlockTxs; i++ {
		txs = append(txs, signedTx(t, types.Address{0x02}, types.NewAmount(1000), byte(i)))
	}
	sortTxsByHash(txs[1:])

	hashes := make([]types.Hash, len(txs))
	for i, transaction := range txs {
		hashes[i] = transaction.TxHash()
	}
	merkle := ComputeMerkleRoot(hashes)

	blk := NewBlock(&Header{
		Index:      1,
		MerkleRoot: merkle,
		Timestamp:  1700000000,
	}, txs)

	if err := blk.Validate(); !errors.Is(err, ErrTooManyTxs) {
		t.Errorf("expected ErrTooManyTxs, got: %v", err)
	}
}

func TestBlock_Validate_BlockTooLarge(t *testing.T) {
	bigPayload := make([]byte, config.MaxBlockSize)
	coinbase := tx.NewCoinbaseTx(types.Address{0x01}, types.NewAmount(5000000000), 1700000000)
	coinbase.Payload = bigPayload

	hashes := []types.Hash{coinbase.TxHash()}
	merkle := ComputeMerkleRoot(hashes)

	blk := NewBlock(&Header{
		Index:      1,
		MerkleRoot: merkle,
		Timestamp:  1700000000,
	}, []*tx.Transaction{coinbase})

	if err := blk.Validate(); !errors.Is(err, ErrBlockTooLarge) {
		t.Errorf("expected ErrBlockTooLarge, got: %v", err)
	}
}

func TestBlock_Hash(t *testing.T) {
	blk := validBlock(t)
	h := blk.Hash()
	if h.IsZero() {
		t.Error("Block.Hash() should not be zero")
	}

	blk2 := &Block{}
	if !blk2.Hash().IsZero() {
		t.Error("Block.Hash() with nil header should be zero")
	}
}

func TestHeader_Hash_Deterministic(t *testing.T) {
	h := &Header{
		Index:        1,
		PreviousHash: types.Hash{0x01},
		Timestamp:    1700000000,
	}

	h1 := h.Hash()
	h2 := h.Hash()
	if h1 != h2 {
		t.Error("Header.Hash() should be deterministic")
	}
	if h1.IsZero() {
		t.Error("Header.Hash() should not be zero")
	}
}

func TestHeader_Hash_ChangesWithNonce(t *testing.T) {
	h := &Header{Index: 1, Timestamp: 1700000000}
	h1 := h.Hash()
	h.Nonce = 1
	h2 := h.Hash()
	if h1 == h2 {
		t.Error("Header.Hash() should change when nonce changes")
	}
}
