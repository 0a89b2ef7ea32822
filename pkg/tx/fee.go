package tx

// EncodedSize returns the approximate wire/storage size in bytes of a
// transaction, used to compute fee_per_byte for mempool ranking
// and to estimate a transaction's footprint before signing.
func (t *Transaction) EncodedSize() int {
	const fixedOverhead = 4 + 20 + 8 + 8 + 8 + 4 // sender len prefix + recipient + amount + fee + timestamp + payload len prefix
	size := fixedOverhead + len(t.Sender) + len(t.Payload)
	if len(t.Signature) > 0 {
		size += len(t.Signature)
	}
	if len(t.SenderPubKey) > 0 {
		size += len(t.SenderPubKey)
	}
	return size
}

// FeePerByte returns the transaction's fee rate in base units per byte,
// used by the mempool to rank candidates for inclusion. Returns 0
// for a zero-size (never in practice) or zero-fee transaction.
func (t *Transaction) FeePerByte() float64 {
	size := t.EncodedSize()
	if size <= 0 {
		return 0
	}
	return float64(t.Fee.Int64()) / float64(size)
}
