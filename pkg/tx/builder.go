package tx

import (
	"github.com/globalcoyn/globalcoyn/pkg/crypto"
	"github.com/globalcoyn/globalcoyn/pkg/types"
)

// Builder constructs and signs a Transaction incrementally, used by the
// wallet layer when assembling a transfer before submission.
type Builder struct {
	tx *Transaction
}

// NewBuilder starts building a transaction from sender to recipient for
// the given amount and fee, stamped with timestamp.
func NewBuilder(sender, recipient types.Address, amount, fee types.Amount, timestamp int64) *Builder {
	return &Builder{
		tx: NewTx(sender, recipient, amount, fee, timestamp, nil),
	}
}

// WithPayload attaches an opaque payload (capped at MaxPayloadBytes).
func (b *Builder) WithPayload(payload []byte) *Builder {
	b.tx.Payload = payload
	return b
}

// Sign signs the transaction with key, which must be the sender's key.
func (b *Builder) Sign(key *crypto.PrivateKey) error {
	return SignTx(b.tx, key)
}

// Build returns the constructed transaction. Callers should run
// VerifyTx before submitting it.
func (b *Builder) Build() *Transaction {
	return b.tx
}
