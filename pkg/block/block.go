// Package block defines block types and structural validation.
package block

import (
	"github.com/globalcoyn/globalcoyn/pkg/tx"
	"github.com/globalcoyn/globalcoyn/pkg/types"
)

// Block is a height, previous-block link, and an ordered transaction list
// whose element 0 is the coinbase for every height above genesis.
type Block struct {
	Header       *Header           `json:"header"`
	Transactions []*tx.Transaction `json:"transactions"`
}

// NewBlock creates a new block with the given header and transactions.
func NewBlock(header *Header, txs []*tx.Transaction) *Block {
	return &Block{
		Header:       header,
		Transactions: txs,
	}
}

// Hash returns the block header hash, or the zero hash for a nil header.
func (b *Block) Hash() types.Hash {
	if b.Header == nil {
		return types.Hash{}
	}
	return b.Header.Hash()
}
