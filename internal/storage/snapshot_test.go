package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/globalcoyn/globalcoyn/pkg/types"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.snapshot")
	addr1, _ := types.HexToAddress("0102030405060708090a0b0c0d0e0f1011121314")
	addr2, _ := types.HexToAddress("1415161718191a1b1c1d1e1f2021222324252627")

	want := &Snapshot{
		Height:         42,
		TipHash:        types.Hash{1, 2, 3},
		DifficultyBits: 0x1d00ffff,
		Balances: map[types.Address]types.Amount{
			addr1: types.NewAmount(5_000_000_000),
			addr2: types.NewAmount(0),
		},
	}
	if err := WriteSnapshot(path, want); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if got.Height != want.Height || got.TipHash != want.TipHash || got.DifficultyBits != want.DifficultyBits {
		t.Fatalf("ReadSnapshot = %+v, want %+v", got, want)
	}
	if len(got.Balances) != len(want.Balances) {
		t.Fatalf("balances len = %d, want %d", len(got.Balances), len(want.Balances))
	}
	for a, v := range want.Balances {
		if got.Balances[a] != v {
			t.Fatalf("balance[%s] = %v, want %v", a, got.Balances[a], v)
		}
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("snapshot.tmp left behind after rename")
	}
}

func TestSnapshot_MissingFileIsNilNil(t *testing.T) {
	got, err := ReadSnapshot(filepath.Join(t.TempDir(), "nope.snapshot"))
	if err != nil || got != nil {
		t.Fatalf("ReadSnapshot of missing file = (%v, %v), want (nil, nil)", got, err)
	}
}

func TestSnapshot_CorruptChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.snapshot")
	snap := &Snapshot{Height: 1, Balances: map[types.Address]types.Amount{}}
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[0] ^= 0xFF
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSnapshot(path); !errors.Is(err, CorruptLog) {
		t.Fatalf("ReadSnapshot with corrupt checksum: err = %v, want CorruptLog", err)
	}
}
