package mempool

import (
	"fmt"

	"github.com/globalcoyn/globalcoyn/pkg/tx"
)

// DefaultMaxTxSize caps a single transaction's encoded size, independent
// of the pool's overall byte bound.
const DefaultMaxTxSize = 100_000

// Policy defines node-local transaction acceptance rules, separate from
// the consensus-critical checks in tx.VerifyTx.
type Policy struct {
	MaxTxSize int // Maximum encoded transaction size in bytes.
}

// DefaultPolicy returns a policy with sensible defaults.
func DefaultPolicy() *Policy {
	return &Policy{MaxTxSize: DefaultMaxTxSize}
}

// Check validates a transaction against policy rules before it reaches
// signature/solvency validation.
func (p *Policy) Check(transaction *tx.Transaction) error {
	size := transaction.EncodedSize()
	if p.MaxTxSize > 0 && size > p.MaxTxSize {
		return fmt.Errorf("%w: transaction too large: %d bytes, max %d", ErrMalformedTx, size, p.MaxTxSize)
	}
	if len(transaction.Payload) > tx.MaxPayloadBytes {
		return fmt.Errorf("%w: payload too large: %d bytes, max %d", ErrMalformedTx, len(transaction.Payload), tx.MaxPayloadBytes)
	}
	return nil
}
