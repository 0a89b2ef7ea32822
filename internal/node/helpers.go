package node

import (
	"encoding/hex"
	"fmt"

	"github.com/globalcoyn/globalcoyn/internal/wallet"
	"github.com/globalcoyn/globalcoyn/pkg/crypto"
	"github.com/globalcoyn/globalcoyn/pkg/types"
)

// resolveCoinbase parses the configured mining reward address.
func resolveCoinbase(coinbaseStr string) (types.Address, error) {
	if coinbaseStr == "" {
		return types.Address{}, fmt.Errorf("mining requires mining.coinbase to be set")
	}
	addr, err := types.ParseAddress(coinbaseStr)
	if err != nil {
		return types.Address{}, fmt.Errorf("invalid coinbase address: %w", err)
	}
	return addr, nil
}

// deriveFromMnemonic derives the address and signing key for the first
// account from a BIP-39 mnemonic. GlobalCoyn wallets are single-address:
// the first 32 bytes of the mnemonic seed are the secp256k1 scalar
// directly, with no further BIP-32 derivation path.
func deriveFromMnemonic(mnemonic string) (types.Address, *crypto.PrivateKey, error) {
	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return types.Address{}, nil, fmt.Errorf("derive seed: %w", err)
	}
	key, err := crypto.PrivateKeyFromBytes(seed[:32])
	if err != nil {
		return types.Address{}, nil, fmt.Errorf("derive key: %w", err)
	}
	addr := crypto.AddressFromPubKey(key.PublicKey())
	return addr, key, nil
}

func hexDecode(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex private key: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	return b, nil
}

// formatDifficulty renders a difficulty/hashrate value in a human-readable
// unit, e.g. "1.05M".
func formatDifficulty(d uint64) string {
	switch {
	case d >= 1_000_000_000_000:
		return fmt.Sprintf("%.2fT", float64(d)/1_000_000_000_000)
	case d >= 1_000_000_000:
		return fmt.Sprintf("%.2fG", float64(d)/1_000_000_000)
	case d >= 1_000_000:
		return fmt.Sprintf("%.2fM", float64(d)/1_000_000)
	case d >= 1_000:
		return fmt.Sprintf("%.2fK", float64(d)/1_000)
	default:
		return fmt.Sprintf("%d", d)
	}
}
