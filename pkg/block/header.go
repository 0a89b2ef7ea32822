package block

import (
	"encoding/binary"

	"github.com/globalcoyn/globalcoyn/pkg/crypto"
	"github.com/globalcoyn/globalcoyn/pkg/types"
)

// Header contains block metadata, hashed without its transactions.
type Header struct {
	Index          uint64     `json:"index"`
	PreviousHash   types.Hash `json:"previous_hash"`
	Timestamp      uint64     `json:"timestamp"`
	MerkleRoot     types.Hash `json:"merkle_root"`
	Nonce          uint64     `json:"nonce"`
	DifficultyBits uint32     `json:"difficulty_bits"`
}

// Hash computes hash = H(index || previous_hash || timestamp ||
// merkle_root || nonce || difficulty_bits), with H the double-SHA-256
// the spec names for block hashing.
func (h *Header) Hash() types.Hash {
	return crypto.DoubleHash(h.SigningBytes())
}

// SigningBytes returns the canonical bytes hashed to produce Hash.
// Format: index(8) | previous_hash(32) | timestamp(8) | merkle_root(32) | nonce(8) | difficulty_bits(4).
func (h *Header) SigningBytes() []byte {
	buf := make([]byte, 0, 92)
	buf = binary.LittleEndian.AppendUint64(buf, h.Index)
	buf = append(buf, h.PreviousHash[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Nonce)
	buf = binary.LittleEndian.AppendUint32(buf, h.DifficultyBits)
	return buf
}
