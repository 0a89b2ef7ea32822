package storage

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"

	"github.com/globalcoyn/globalcoyn/pkg/types"
)

// Snapshot is the periodic checkpoint of derived chain state: height,
// tip hash, the tip block's difficulty_bits, and the full
// balance map.
type Snapshot struct {
	Height         uint64
	TipHash        types.Hash
	DifficultyBits uint32
	Balances       map[types.Address]types.Amount
}

// WriteSnapshot serializes snap as
// (height, tip_hash, difficulty_bits, balances_len, [(address, amount)*], crc32)
// and publishes it atomically via a snapshot.tmp → rename.
func WriteSnapshot(path string, snap *Snapshot) error {
	addrs := make([]types.Address, 0, len(snap.Balances))
	for a := range snap.Balances {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return string(addrs[i][:]) < string(addrs[j][:])
	})

	buf := make([]byte, 0, 8+types.HashSize+4+4+len(addrs)*(types.AddressSize+8))
	buf = binary.BigEndian.AppendUint64(buf, snap.Height)
	buf = append(buf, snap.TipHash[:]...)
	buf = binary.BigEndian.AppendUint32(buf, snap.DifficultyBits)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(addrs)))
	for _, a := range addrs {
		buf = append(buf, a[:]...)
		buf = binary.BigEndian.AppendUint64(buf, uint64(snap.Balances[a].Int64()))
	}
	sum := crc32.ChecksumIEEE(buf)
	buf = binary.BigEndian.AppendUint32(buf, sum)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0600); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return nil // Best-effort directory fsync; omission doesn't corrupt data.
	}
	defer dir.Close()
	_ = dir.Sync()
	return nil
}

// ReadSnapshot parses a chain.snapshot file written by WriteSnapshot. A
// missing file is reported as (nil, nil) — a fresh node has no snapshot.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	const fixedLen = 8 + types.HashSize + 4 + 4
	if len(data) < fixedLen+4 {
		return nil, fmt.Errorf("%w: snapshot truncated", CorruptLog)
	}

	body := data[:len(data)-4]
	wantSum := binary.BigEndian.Uint32(data[len(data)-4:])
	if crc32.ChecksumIEEE(body) != wantSum {
		return nil, fmt.Errorf("%w: snapshot checksum mismatch", CorruptLog)
	}

	snap := &Snapshot{Balances: make(map[types.Address]types.Amount)}
	snap.Height = binary.BigEndian.Uint64(body[:8])
	copy(snap.TipHash[:], body[8:8+types.HashSize])
	off := 8 + types.HashSize
	snap.DifficultyBits = binary.BigEndian.Uint32(body[off : off+4])
	off += 4
	count := binary.BigEndian.Uint32(body[off : off+4])
	off += 4

	entrySize := types.AddressSize + 8
	if len(body[off:]) != int(count)*entrySize {
		return nil, fmt.Errorf("%w: balance table length mismatch", CorruptLog)
	}
	for i := uint32(0); i < count; i++ {
		start := off + int(i)*entrySize
		var addr types.Address
		copy(addr[:], body[start:start+types.AddressSize])
		v := binary.BigEndian.Uint64(body[start+types.AddressSize : start+entrySize])
		snap.Balances[addr] = types.Amount(int64(v))
	}
	return snap, nil
}
