package types

import (
	"crypto/sha256"
	"fmt"
	"math/big"
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

var base58Radix = big.NewInt(58)

// base58Encode encodes raw bytes using the Bitcoin-style Base58 alphabet,
// preserving leading zero bytes as leading '1's.
func base58Encode(b []byte) string {
	zero := big.NewInt(0)
	num := new(big.Int).SetBytes(b)

	var out []byte
	mod := new(big.Int)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base58Radix, mod)
		out = append(out, base58Alphabet[mod.Int64()])
	}
	// Reverse (we built it least-significant digit first).
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	for _, c := range b {
		if c != 0 {
			break
		}
		out = append([]byte{base58Alphabet[0]}, out...)
	}
	return string(out)
}

// base58Decode reverses base58Encode.
func base58Decode(s string) ([]byte, error) {
	num := big.NewInt(0)
	for _, r := range s {
		idx := -1
		for i, a := range base58Alphabet {
			if a == r {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("invalid base58 character %q", r)
		}
		num.Mul(num, base58Radix)
		num.Add(num, big.NewInt(int64(idx)))
	}
	decoded := num.Bytes()

	leadingZeros := 0
	for _, c := range s {
		if c != rune(base58Alphabet[0]) {
			break
		}
		leadingZeros++
	}
	out := make([]byte, leadingZeros+len(decoded))
	copy(out[leadingZeros:], decoded)
	return out, nil
}

// Base58CheckEncode appends a 4-byte double-SHA-256 checksum to payload
// and Base58-encodes the result.
func Base58CheckEncode(payload []byte) string {
	checksum := doubleSHA256(payload)[:4]
	full := make([]byte, 0, len(payload)+4)
	full = append(full, payload...)
	full = append(full, checksum...)
	return base58Encode(full)
}

// Base58CheckDecode decodes a Base58Check string, verifying the checksum
// and returning the payload (without the trailing checksum bytes).
func Base58CheckDecode(s string) ([]byte, error) {
	full, err := base58Decode(s)
	if err != nil {
		return nil, err
	}
	if len(full) < 4 {
		return nil, fmt.Errorf("base58check string too short")
	}
	payload := full[:len(full)-4]
	checksum := full[len(full)-4:]
	want := doubleSHA256(payload)[:4]
	for i := range checksum {
		if checksum[i] != want[i] {
			return nil, ErrBadChecksum
		}
	}
	return payload, nil
}

func doubleSHA256(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}
