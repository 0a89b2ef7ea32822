// Package tx defines the GlobalCoyn transaction model and its pure,
// side-effect-free constructors and validators.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/globalcoyn/globalcoyn/pkg/crypto"
	"github.com/globalcoyn/globalcoyn/pkg/types"
)

// CoinbaseSender is the sentinel sender value for coinbase transactions.
const CoinbaseSender = types.CoinbaseSender

// MaxPayloadBytes bounds the opaque payload field reserved for a future
// contract engine.
const MaxPayloadBytes = 1024

// Transaction is the account-model transaction GlobalCoyn persists, gossips
// and applies to the balance map.
type Transaction struct {
	// Sender is a Base58Check address string, or CoinbaseSender ("0") for
	// the coinbase transaction of a block.
	Sender string `json:"sender"`
	// Recipient is the receiving address.
	Recipient types.Address `json:"recipient"`
	// Amount is the value transferred, non-negative, 8 fractional digits.
	Amount types.Amount `json:"amount"`
	// Fee is paid to whichever address mines the including block.
	Fee types.Amount `json:"fee"`
	// Timestamp is the creation time in Unix seconds.
	Timestamp int64 `json:"timestamp"`
	// Signature is the fixed 64-byte ECDSA (r, s) signature, absent for
	// coinbase transactions.
	Signature []byte `json:"signature,omitempty"`
	// SenderPubKey is the compressed public key that produced Signature.
	// It is not part of TxHash's preimage (the spec's tx_hash formula
	// only covers sender/recipient/amount/fee/timestamp/payload) but is
	// required to verify the signature without public-key recovery, the
	// same way a scriptSig carries a spending pubkey alongside a Bitcoin
	// transaction's signed preimage.
	SenderPubKey []byte `json:"sender_pubkey,omitempty"`
	// Payload is an opaque, length-capped extension point reserved for a
	// future contract engine; unused by the core.
	Payload []byte `json:"payload,omitempty"`
}

// IsCoinbase reports whether this is a block's coinbase transaction.
func (t *Transaction) IsCoinbase() bool {
	return t.Sender == CoinbaseSender
}

// SigningBytes returns the canonical preimage hashed to produce TxHash
// and signed by the sender: sender || recipient || amount || fee ||
// timestamp || payload.
func (t *Transaction) SigningBytes() []byte {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Sender)))
	buf = append(buf, t.Sender...)
	buf = append(buf, t.Recipient[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(t.Amount.Int64()))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(t.Fee.Int64()))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(t.Timestamp))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Payload)))
	buf = append(buf, t.Payload...)
	return buf
}

// TxHash computes tx_hash = H(sender || recipient || amount || fee ||
// timestamp || payload).
func (t *Transaction) TxHash() types.Hash {
	return crypto.Hash(t.SigningBytes())
}

// SenderAddress parses the sender field as a types.Address. Callers must
// check IsCoinbase first; coinbase transactions have no parseable sender.
func (t *Transaction) SenderAddress() (types.Address, error) {
	return types.ParseAddress(t.Sender)
}

// txJSON mirrors Transaction with hex-encoded byte fields for stable,
// human-inspectable JSON (used by persistence and the wire format).
type txJSON struct {
	Sender       string        `json:"sender"`
	Recipient    types.Address `json:"recipient"`
	Amount       types.Amount  `json:"amount"`
	Fee          types.Amount  `json:"fee"`
	Timestamp    int64         `json:"timestamp"`
	Signature    string        `json:"signature,omitempty"`
	SenderPubKey string        `json:"sender_pubkey,omitempty"`
	Payload      string        `json:"payload,omitempty"`
}

// MarshalJSON hex-encodes the signature, pubkey, and payload fields.
func (t Transaction) MarshalJSON() ([]byte, error) {
	j := txJSON{
		Sender:    t.Sender,
		Recipient: t.Recipient,
		Amount:    t.Amount,
		Fee:       t.Fee,
		Timestamp: t.Timestamp,
	}
	if len(t.Signature) > 0 {
		j.Signature = hex.EncodeToString(t.Signature)
	}
	if len(t.SenderPubKey) > 0 {
		j.SenderPubKey = hex.EncodeToString(t.SenderPubKey)
	}
	if len(t.Payload) > 0 {
		j.Payload = hex.EncodeToString(t.Payload)
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes a JSON transaction, hex-decoding byte fields.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var j txJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	t.Sender = j.Sender
	t.Recipient = j.Recipient
	t.Amount = j.Amount
	t.Fee = j.Fee
	t.Timestamp = j.Timestamp
	if j.Signature != "" {
		b, err := hex.DecodeString(j.Signature)
		if err != nil {
			return err
		}
		t.Signature = b
	}
	if j.SenderPubKey != "" {
		b, err := hex.DecodeString(j.SenderPubKey)
		if err != nil {
			return err
		}
		t.SenderPubKey = b
	}
	if j.Payload != "" {
		b, err := hex.DecodeString(j.Payload)
		if err != nil {
			return err
		}
		t.Payload = b
	}
	return nil
}
