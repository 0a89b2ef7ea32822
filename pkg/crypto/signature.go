package crypto

import (
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// SignatureSize is the length of a serialized (r, s) signature.
const SignatureSize = 64

// ErrBadSignature is returned when a signature fails to parse or verify.
var ErrBadSignature = errors.New("BadSignature")

// Signer signs message digests with a private key using ECDSA/secp256k1.
type Signer interface {
	// Sign produces a 64-byte (r, s) signature over a 32-byte hash.
	Sign(hash []byte) ([]byte, error)
	// PublicKey returns the compressed 33-byte public key.
	PublicKey() []byte
}

// Verifier verifies ECDSA/secp256k1 signatures.
type Verifier interface {
	// Verify checks a signature against a hash and compressed public key.
	Verify(hash, signature, publicKey []byte) bool
}

// PrivateKey wraps a secp256k1 private key for ECDSA signing.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a new random secp256k1 private key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes creates a PrivateKey from a 32-byte secret.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	key := secp256k1.PrivKeyFromBytes(b)
	return &PrivateKey{key: key}, nil
}

// Sign produces a deterministic (RFC6979) ECDSA signature over a 32-byte
// hash, serialized as a fixed 64-byte (r, s) concatenation. The decred
// ecdsa package always returns the low-S form, satisfying the spec's
// malleability requirement without extra normalization.
func (pk *PrivateKey) Sign(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}
	sig := ecdsa.Sign(pk.key, hash)
	return serializeRS(sig), nil
}

// PublicKey returns the compressed 33-byte public key.
func (pk *PrivateKey) PublicKey() []byte {
	return pk.key.PubKey().SerializeCompressed()
}

// Serialize returns the 32-byte private key scalar.
func (pk *PrivateKey) Serialize() []byte {
	return pk.key.Serialize()
}

// Zero securely zeroes the private key memory.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// serializeRS packs a signature's R and S scalars into a fixed 64-byte
// big-endian (r, s) concatenation.
func serializeRS(sig *ecdsa.Signature) []byte {
	der := sig.Serialize()
	// Re-parse to recover R/S as fixed-width scalars rather than
	// depending on DER's variable-length integer encoding.
	parsed, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		// Unreachable: we just serialized this signature ourselves.
		panic(fmt.Sprintf("reparse freshly-signed signature: %v", err))
	}
	out := make([]byte, SignatureSize)
	rBytes := parsed.R().Bytes()
	sBytes := parsed.S().Bytes()
	copy(out[32-len(rBytes):32], rBytes[:])
	copy(out[64-len(sBytes):64], sBytes[:])
	return out
}

// VerifySignature checks a 64-byte (r, s) signature against a 32-byte
// hash and a compressed public key. Returns false on any parse or
// verification failure, including non-canonical (high-S) signatures.
func VerifySignature(hash, signature, publicKey []byte) bool {
	if len(signature) != SignatureSize || len(hash) != 32 {
		return false
	}
	pubKey, err := secp256k1.ParsePubKey(publicKey)
	if err != nil {
		return false
	}

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(signature[:32]); overflow {
		return false
	}
	if overflow := s.SetByteSlice(signature[32:]); overflow {
		return false
	}
	if s.IsOverHalfOrder() {
		// Reject high-S signatures outright: only the canonical low-S
		// form produced by Sign is considered valid.
		return false
	}

	sig := ecdsa.NewSignature(&r, &s)
	return sig.Verify(hash, pubKey)
}

// ECDSAVerifier implements the Verifier interface.
type ECDSAVerifier struct{}

// Verify checks a signature against a hash and compressed public key.
func (v ECDSAVerifier) Verify(hash, signature, publicKey []byte) bool {
	return VerifySignature(hash, signature, publicKey)
}
