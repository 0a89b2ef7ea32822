// Package crypto provides the cryptographic primitives for GlobalCoyn:
// hashing, ECDSA signing/verification, and address derivation.
package crypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // spec-mandated primitive, not deprecated for our use

	"github.com/globalcoyn/globalcoyn/pkg/types"
)

// Hash computes a single SHA-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return sha256.Sum256(data)
}

// DoubleHash computes SHA-256(SHA-256(data)), used wherever the spec
// calls for "double SHA-256" (block hashing, address checksums).
func DoubleHash(data []byte) types.Hash {
	first := Hash(data)
	return Hash(first[:])
}

// AddressFromPubKey derives an address payload from a compressed public
// key: RIPEMD160(SHA256(pubkey)).
func AddressFromPubKey(pubKey []byte) types.Address {
	sha := sha256.Sum256(pubKey)
	ripemd := ripemd160.New()
	ripemd.Write(sha[:])
	digest := ripemd.Sum(nil)

	var addr types.Address
	copy(addr[:], digest)
	return addr
}

// HashConcat hashes the concatenation of two hashes, used when building
// merkle trees.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return Hash(buf[:])
}
