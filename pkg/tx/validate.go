package tx

import (
	"errors"
	"fmt"

	"github.com/globalcoyn/globalcoyn/pkg/crypto"
	"github.com/globalcoyn/globalcoyn/pkg/types"
)

// Structural/input-class validation errors.
var (
	ErrMalformedTx     = errors.New("MalformedTx")
	ErrBadSignature    = errors.New("BadSignature")
	ErrBadAddress      = errors.New("BadAddress")
	ErrPayloadTooLarge = errors.New("payload exceeds max size")
	ErrNegativeAmount  = errors.New("negative amount")
	ErrMissingSig      = errors.New("missing signature")
)

// NewTx constructs an unsigned Transaction. Callers sign it
// with SignTx before submission.
func NewTx(sender, recipient types.Address, amount, fee types.Amount, timestamp int64, payload []byte) *Transaction {
	return &Transaction{
		Sender:    sender.String(),
		Recipient: recipient,
		Amount:    amount,
		Fee:       fee,
		Timestamp: timestamp,
		Payload:   payload,
	}
}

// NewCoinbaseTx constructs the unsigned coinbase transaction for a block:
// sender = "0", fee = 0, amount = reward + collected fees.
func NewCoinbaseTx(recipient types.Address, amount types.Amount, timestamp int64) *Transaction {
	return &Transaction{
		Sender:    CoinbaseSender,
		Recipient: recipient,
		Amount:    amount,
		Fee:       0,
		Timestamp: timestamp,
	}
}

// SignTx signs tx with key in place, setting Signature and SenderPubKey
//. The caller is responsible for ensuring key's derived
// address matches tx.Sender.
func SignTx(t *Transaction, key *crypto.PrivateKey) error {
	if t.IsCoinbase() {
		return fmt.Errorf("cannot sign a coinbase transaction")
	}
	hash := t.TxHash()
	sig, err := key.Sign(hash[:])
	if err != nil {
		return fmt.Errorf("sign tx: %w", err)
	}
	t.Signature = sig
	t.SenderPubKey = key.PublicKey()
	return nil
}

// VerifyTx checks a transaction's structural invariants and, for
// non-coinbase transactions, its signature. It does not
// check solvency against a balance map — that is the mempool's and
// chain manager's job.
func VerifyTx(t *Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.IsCoinbase() {
		return nil
	}
	senderAddr, err := t.SenderAddress()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadAddress, err)
	}
	if len(t.SenderPubKey) == 0 {
		return fmt.Errorf("%w: missing sender public key", ErrMissingSig)
	}
	if crypto.AddressFromPubKey(t.SenderPubKey) != senderAddr {
		return fmt.Errorf("%w: public key does not hash to sender address", ErrBadAddress)
	}
	hash := t.TxHash()
	if !crypto.VerifySignature(hash[:], t.Signature, t.SenderPubKey) {
		return ErrBadSignature
	}
	return nil
}

// Validate checks structural invariants that do not require chain state:
// non-negative amounts, payload size cap, well-formed sender/recipient,
// and presence of a signature for non-coinbase transactions.
func (t *Transaction) Validate() error {
	if t.Amount.IsNegative() {
		return fmt.Errorf("%w: amount", ErrNegativeAmount)
	}
	if t.Fee.IsNegative() {
		return fmt.Errorf("%w: fee", ErrNegativeAmount)
	}
	if len(t.Payload) > MaxPayloadBytes {
		return fmt.Errorf("%w: %d bytes, max %d", ErrPayloadTooLarge, len(t.Payload), MaxPayloadBytes)
	}
	if t.Sender == "" {
		return fmt.Errorf("%w: empty sender", ErrMalformedTx)
	}
	if t.IsCoinbase() {
		if t.Fee != 0 {
			return fmt.Errorf("%w: coinbase must have zero fee", ErrMalformedTx)
		}
		if len(t.Signature) != 0 {
			return fmt.Errorf("%w: coinbase must not carry a signature", ErrMalformedTx)
		}
		return nil
	}
	if _, err := t.SenderAddress(); err != nil {
		return fmt.Errorf("%w: sender: %v", ErrBadAddress, err)
	}
	if len(t.Signature) != crypto.SignatureSize {
		return fmt.Errorf("%w", ErrMissingSig)
	}
	return nil
}
