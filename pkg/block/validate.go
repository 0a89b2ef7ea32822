package block

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/globalcoyn/globalcoyn/config"
	"github.com/globalcoyn/globalcoyn/pkg/types"
)

// Validation errors.
var (
	ErrNilHeader        = errors.New("block has nil header")
	ErrNoTransactions   = errors.New("block has no transactions")
	ErrBadMerkleRoot    = errors.New("merkle root mismatch")
	ErrZeroTimestamp    = errors.New("block timestamp is zero")
	ErrBadTxOrder       = errors.New("transactions not in canonical order")
	ErrNoCoinbase       = errors.New("first transaction must be coinbase")
	ErrMultipleCoinbase = errors.New("multiple coinbase transactions in block")
	ErrTooManyTxs       = errors.New("too many transactions in block")
	ErrBlockTooLarge    = errors.New("block too large")
)

// Validate checks block structure and internal consistency: header
// presence, transaction bounds, canonical ordering, merkle root, and
// per-transaction structural validity. It does not check consensus rules
// (PoW target, previous-hash linkage, balance application) — that is the
// chain manager's job.
func (b *Block) Validate() error {
	if b.Header == nil {
		return ErrNilHeader
	}

	if b.Header.Timestamp == 0 {
		return ErrZeroTimestamp
	}

	if len(b.Transactions) == 0 {
		return ErrNoTransactions
	}

	if len(b.Transactions) > config.MaxBlockTxs {
		return fmt.Errorf("%w: %d txs, max %d", ErrTooManyTxs, len(b.Transactions), config.MaxBlockTxs)
	}

	blockSize := len(b.Header.SigningBytes())
	for _, t := range b.Transactions {
		blockSize += len(t.SigningBytes())
	}
	if blockSize > config.MaxBlockSize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrBlockTooLarge, blockSize, config.MaxBlockSize)
	}

	if !b.Transactions[0].IsCoinbase() {
		return ErrNoCoinbase
	}
	for i, t := range b.Transactions[1:] {
		if t.IsCoinbase() {
			return fmt.Errorf("tx %d: %w", i+1, ErrMultipleCoinbase)
		}
	}

	txHashes := make([]types.Hash, len(b.Transactions))
	for i, t := range b.Transactions {
		txHashes[i] = t.TxHash()
	}
	expectedRoot := ComputeMerkleRoot(txHashes)
	if b.Header.MerkleRoot != expectedRoot {
		return fmt.Errorf("%w: header=%s computed=%s", ErrBadMerkleRoot, b.Header.MerkleRoot, expectedRoot)
	}

	// Canonical tx ordering: coinbase first, remaining sorted by hash ascending.
	for i := 2; i < len(txHashes); i++ {
		if bytes.Compare(txHashes[i-1][:], txHashes[i][:]) >= 0 {
			return fmt.Errorf("%w: tx %d hash >= tx %d hash", ErrBadTxOrder, i-1, i)
		}
	}

	for i, t := range b.Transactions {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
	}

	return nil
}
