package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// Encryption constants.
const (
	SaltSize = 16
	// Encrypted format: salt(16) | logN(1) | r(4) | p(4) | nonce(12) | ciphertext+tag.
	headerSize = SaltSize + 1 + 4 + 4
)

// ScryptParams holds the scrypt cost parameters.
type ScryptParams struct {
	LogN uint8 // CPU/memory cost as a power of two: N = 1<<LogN.
	R    uint32
	P    uint32
}

// DefaultScryptParams returns the recommended interactive scrypt cost
// (N=2^18, r=8, p=1), matching common wallet KDF practice.
func DefaultScryptParams() ScryptParams {
	return ScryptParams{LogN: 18, R: 8, P: 1}
}

func deriveKey(password, salt []byte, params ScryptParams) ([]byte, error) {
	n := 1 << params.LogN
	return scrypt.Key(password, salt, n, int(params.R), int(params.P), 32)
}

// Encrypt encrypts data with password using scrypt + AES-256-GCM.
// Output: salt | logN | r | p | nonce | AES-GCM(nonce, ciphertext||tag),
// matching the wallets.dat cipher blob format.
func Encrypt(data, password []byte, params ScryptParams) ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key, err := deriveKey(password, salt, params)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, data, nil)

	out := make([]byte, 0, headerSize+len(nonce)+len(ciphertext))
	out = append(out, salt...)
	out = append(out, params.LogN)
	out = binary.LittleEndian.AppendUint32(out, params.R)
	out = binary.LittleEndian.AppendUint32(out, params.P)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// Decrypt reverses Encrypt given the same password.
func Decrypt(encrypted, password []byte) ([]byte, error) {
	if len(encrypted) < headerSize {
		return nil, fmt.Errorf("encrypted data too short: %d bytes", len(encrypted))
	}
	salt := encrypted[:SaltSize]
	params := ScryptParams{
		LogN: encrypted[SaltSize],
		R:    binary.LittleEndian.Uint32(encrypted[SaltSize+1:]),
		P:    binary.LittleEndian.Uint32(encrypted[SaltSize+5:]),
	}

	key, err := deriveKey(password, salt, params)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	rest := encrypted[headerSize:]
	if len(rest) < gcm.NonceSize() {
		return nil, fmt.Errorf("encrypted data too short for nonce")
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: wrong password or corrupt data: %w", err)
	}
	return plaintext, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
