package chain

import (
	"fmt"

	"github.com/globalcoyn/globalcoyn/config"
	"github.com/globalcoyn/globalcoyn/pkg/block"
	"github.com/globalcoyn/globalcoyn/pkg/tx"
	"github.com/globalcoyn/globalcoyn/pkg/types"
)

// CreateGenesisBlock builds the genesis block from the genesis configuration.
// The genesis block has index 0, a zero previous hash, and one coinbase-style
// transaction per funded address, in deterministic address order.
//
// Genesis never passes through Block.Validate/try_extend: that pipeline
// enforces exactly one coinbase transaction per block, which a
// multi-address allocation cannot satisfy with the account model's
// single-recipient Transaction. Chain.initGenesis instead applies the
// allocations directly to the balance map and stores the block as-is.
func CreateGenesisBlock(gen *config.Genesis) (*block.Block, error) {
	if gen == nil {
		return nil, fmt.Errorf("genesis config is nil")
	}

	txs, err := buildAllocTxs(gen)
	if err != nil {
		return nil, fmt.Errorf("build alloc txs: %w", err)
	}

	txHashes := make([]types.Hash, len(txs))
	for i, t := range txs {
		txHashes[i] = t.TxHash()
	}
	merkle := block.ComputeMerkleRoot(txHashes)

	header := &block.Header{
		Index:          0,
		PreviousHash:   types.Hash{},
		Timestamp:      gen.Timestamp,
		MerkleRoot:     merkle,
		DifficultyBits: gen.Consensus.InitialDifficulty,
	}

	return block.NewBlock(header, txs), nil
}

// buildAllocTxs creates one coinbase-sender transaction per genesis
// allocation, in deterministic address order. A genesis with no
// allocations still carries a single zero-amount placeholder transaction
// so the block always has a non-empty, hashable transaction list.
func buildAllocTxs(gen *config.Genesis) ([]*tx.Transaction, error) {
	addrs := gen.SortedAllocAddresses()

	if len(addrs) == 0 {
		return []*tx.Transaction{tx.NewCoinbaseTx(types.Address{}, types.NewAmount(0), int64(gen.Timestamp))}, nil
	}

	txs := make([]*tx.Transaction, 0, len(addrs))
	for _, addrStr := range addrs {
		addr, err := types.ParseAddress(addrStr)
		if err != nil {
			return nil, fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
		txs = append(txs, tx.NewCoinbaseTx(addr, gen.Alloc[addrStr], int64(gen.Timestamp)))
	}
	return txs, nil
}
