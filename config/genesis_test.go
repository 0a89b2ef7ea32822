package config

import (
	"testing"

	"github.com/globalcoyn/globalcoyn/pkg/types"
)

func TestMainnetGenesis_Valid(t *testing.T) {
	g := MainnetGenesis()
	if err := g.Validate(); err != nil {
		t.Errorf("mainnet genesis should be valid: %v", err)
	}
}

func TestTestnetGenesis_Valid(t *testing.T) {
	g := TestnetGenesis()
	if err := g.Validate(); err != nil {
		t.Errorf("testnet genesis should be valid: %v", err)
	}
}

func TestTestnetGenesis_FundsTestnetAddress(t *testing.T) {
	g := TestnetGenesis()
	amt, ok := g.Alloc[TestnetAddress]
	if !ok {
		t.Fatalf("testnet genesis should fund %s", TestnetAddress)
	}
	want := types.NewAmount(200_000 * 100_000_000)
	if amt != want {
		t.Errorf("testnet alloc = %d, want %d", amt, want)
	}
}

func TestTestnetAddress_Valid(t *testing.T) {
	if _, err := types.ParseAddress(TestnetAddress); err != nil {
		t.Errorf("TestnetAddress should parse: %v", err)
	}
}

func TestGenesisFor(t *testing.T) {
	if GenesisFor(Testnet).ChainID != TestnetGenesis().ChainID {
		t.Error("GenesisFor(Testnet) should return testnet genesis")
	}
	if GenesisFor(Mainnet).ChainID != MainnetGenesis().ChainID {
		t.Error("GenesisFor(Mainnet) should return mainnet genesis")
	}
	if GenesisFor(Dev).ChainID != MainnetGenesis().ChainID {
		t.Error("GenesisFor(Dev) should fall back to mainnet genesis")
	}
}

func TestGenesis_Validate_EmptyChainID(t *testing.T) {
	g := MainnetGenesis()
	g.ChainID = ""
	if err := g.Validate(); err == nil {
		t.Error("genesis with empty chain_id should be invalid")
	}
}

func TestGenesis_Validate_BadTargetBlockTime(t *testing.T) {
	g := MainnetGenesis()
	g.Consensus.TargetBlockTime = 0
	if err := g.Validate(); err == nil {
		t.Error("genesis with zero target_block_time should be invalid")
	}
}

func TestGenesis_Validate_BadDifficultyWindow(t *testing.T) {
	g := MainnetGenesis()
	g.Consensus.DifficultyWindow = 0
	if err := g.Validate(); err == nil {
		t.Error("genesis with zero difficulty_window should be invalid")
	}
}

func TestGenesis_Validate_InvalidAllocAddress(t *testing.T) {
	g := MainnetGenesis()
	g.Alloc = map[string]types.Amount{
		"not-a-valid-address": types.NewAmount(1),
	}
	if err := g.Validate(); err == nil {
		t.Error("genesis with invalid alloc address should be invalid")
	}
}

func TestGenesis_SortedAllocAddresses_Deterministic(t *testing.T) {
	g := MainnetGenesis()
	g.Alloc = map[string]types.Amount{
		TestnetAddress: types.NewAmount(1),
		"1BoatSLRHtKNngkdXEeobR76b53LETtpyT": types.NewAmount(2),
	}
	a := g.SortedAllocAddresses()
	b := g.SortedAllocAddresses()
	if len(a) != len(b) {
		t.Fatalf("length mismatch")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("order not deterministic at index %d", i)
		}
	}
}

func TestGenesis_Hash_Deterministic(t *testing.T) {
	g := MainnetGenesis()
	h1, err := g.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := g.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 != h2 {
		t.Error("genesis hash should be deterministic")
	}
}

func TestGenesis_Hash_DiffersOnChange(t *testing.T) {
	g1 := MainnetGenesis()
	g2 := TestnetGenesis()
	h1, _ := g1.Hash()
	h2, _ := g2.Hash()
	if h1 == h2 {
		t.Error("mainnet and testnet genesis should hash differently")
	}
}

func TestMainnetGenesis_NoAlloc(t *testing.T) {
	g := MainnetGenesis()
	if len(g.Alloc) != 0 {
		t.Errorf("mainnet genesis should start with no pre-allocated balances, got %d entries", len(g.Alloc))
	}
}
