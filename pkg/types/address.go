package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// AddressSize is the length of an address payload in bytes
// (RIPEMD160(SHA256(pubkey))).
const AddressSize = 20

// addressVersion is the single-byte version prefix for mainnet addresses
//.
const addressVersion = 0x00

// CoinbaseSender is the sentinel sender value for coinbase transactions.
const CoinbaseSender = "0"

// testFixtureSentinelPrefix marks an internal-only address form reserved
// for unit test fixtures.
const testFixtureSentinelPrefix = "GCN_"

// Address represents a 160-bit address (public key hash).
type Address [AddressSize]byte

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the canonical Base58Check-encoded address.
func (a Address) String() string {
	return EncodeAddress(a)
}

// Hex returns the raw hex-encoded address payload without version or checksum.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// Bytes returns a copy of the address payload as a byte slice.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

// MarshalJSON encodes the address as a Base58Check string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a Base58Check string into an address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// EncodeAddress Base58Check-encodes a 20-byte payload with the mainnet
// version byte: Base58Check(0x00 || payload).
func EncodeAddress(a Address) string {
	payload := make([]byte, 0, 1+AddressSize)
	payload = append(payload, addressVersion)
	payload = append(payload, a[:]...)
	return Base58CheckEncode(payload)
}

// ParseAddress decodes a canonical Base58Check address string. Only this
// form is valid on the wire or in persisted state;
// HexToAddress exists solely for genesis/test fixtures.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}
	if strings.HasPrefix(s, testFixtureSentinelPrefix) {
		return Address{}, fmt.Errorf("%w: %s is a test-fixture sentinel, not a wire address", ErrBadAddress, s)
	}
	payload, err := Base58CheckDecode(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrBadAddress, err)
	}
	if len(payload) != 1+AddressSize {
		return Address{}, fmt.Errorf("%w: wrong payload length %d", ErrBadAddress, len(payload))
	}
	if payload[0] != addressVersion {
		return Address{}, fmt.Errorf("%w: unexpected version byte 0x%02x", ErrBadAddress, payload[0])
	}
	var a Address
	copy(a[:], payload[1:])
	return a, nil
}

// HexToAddress converts a raw hex string to an Address, bypassing
// Base58Check. Used for genesis allocation fixtures and tests only.
func HexToAddress(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != AddressSize {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}
