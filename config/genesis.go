package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/globalcoyn/globalcoyn/pkg/crypto"
	"github.com/globalcoyn/globalcoyn/pkg/types"
)

// Block and transaction size limits (consensus-critical).
const (
	MaxBlockSize = 2_000_000 // 2 MB max block size (header + all tx signing bytes)
	MaxBlockTxs  = 500       // Max transactions per block (including coinbase)
)

// Consensus defaults.
const (
	DefaultTargetBlockTime    = 600     // seconds
	DefaultDifficultyWindow   = 2016    // blocks
	DefaultHalvingInterval    = 210_000 // blocks
	DefaultInitialDifficulty  = 0x1e0ffff0
)

// ConsensusRules are the protocol-critical parameters fixed at genesis.
// All nodes on a network MUST agree on these values.
type ConsensusRules struct {
	TargetBlockTime   int64        `json:"target_block_time"`
	DifficultyWindow  uint64       `json:"difficulty_window"`
	HalvingInterval   uint64       `json:"halving_interval"`
	InitialReward     types.Amount `json:"initial_reward"`
	InitialDifficulty uint32       `json:"initial_difficulty_bits"`
}

// Genesis holds the genesis block configuration and protocol rules. It is
// immutable after chain launch; changing it is a hard fork.
type Genesis struct {
	ChainID   string `json:"chain_id"`
	ChainName string `json:"chain_name"`
	Symbol    string `json:"symbol,omitempty"`

	Timestamp uint64 `json:"timestamp"`
	ExtraData string `json:"extra_data,omitempty"`

	// Alloc maps Base58Check addresses to their genesis balance, in base
	// units (1e-8 GCN).
	Alloc map[string]types.Amount `json:"alloc"`

	Consensus ConsensusRules `json:"consensus"`
}

// MainnetGenesis returns the mainnet genesis configuration.
func MainnetGenesis() *Genesis {
	return &Genesis{
		ChainID:   "globalcoyn-mainnet-1",
		ChainName: "GlobalCoyn Mainnet",
		Symbol:    "GCN",
		Timestamp: 1770734103,
		ExtraData: "GlobalCoyn Genesis",
		Alloc:     map[string]types.Amount{},
		Consensus: ConsensusRules{
			TargetBlockTime:   DefaultTargetBlockTime,
			DifficultyWindow:  DefaultDifficultyWindow,
			HalvingInterval:   DefaultHalvingInterval,
			InitialReward:     types.NewAmount(50 * 100_000_000),
			InitialDifficulty: DefaultInitialDifficulty,
		},
	}
}

// TestnetGenesis returns the testnet genesis configuration: faster blocks,
// lower initial difficulty, and a well-known funded address for test flows.
func TestnetGenesis() *Genesis {
	g := MainnetGenesis()
	g.ChainID = "globalcoyn-testnet-1"
	g.ChainName = "GlobalCoyn Testnet"
	g.ExtraData = "GlobalCoyn Testnet Genesis"
	g.Consensus.TargetBlockTime = 60
	g.Consensus.DifficultyWindow = 144
	g.Consensus.InitialDifficulty = 0x1f00ffff
	g.Alloc = map[string]types.Amount{
		TestnetAddress: types.NewAmount(200_000 * 100_000_000),
	}
	return g
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	default:
		return MainnetGenesis()
	}
}

// =============================================================================
// Testnet Identity
//
// TestnetMnemonic is the well-known BIP-39 test mnemonic (DO NOT use on mainnet):
//
//	abandon abandon abandon abandon abandon abandon abandon abandon
//	abandon abandon abandon about
// =============================================================================

// TestnetAddress, which the testnet genesis funds, is the Base58Check form
// of the all-zero 20-byte payload; it is not derived from TestnetMnemonic.
const (
	TestnetMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	TestnetAddress  = "1111111111111111111114oLvT2"
)

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}
	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}
	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks that the genesis configuration is internally consistent.
func (g *Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}
	if g.Consensus.TargetBlockTime <= 0 {
		return fmt.Errorf("target_block_time must be positive")
	}
	if g.Consensus.DifficultyWindow == 0 {
		return fmt.Errorf("difficulty_window must be positive")
	}
	for addrStr := range g.Alloc {
		if _, err := types.ParseAddress(addrStr); err != nil {
			return fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
	}
	return nil
}

// SortedAllocAddresses returns alloc addresses in deterministic order, used
// when building the genesis block's coinbase transaction set.
func (g *Genesis) SortedAllocAddresses() []string {
	addrs := make([]string, 0, len(g.Alloc))
	for addr := range g.Alloc {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs
}

// Hash returns a content hash of the genesis configuration, used to detect
// genesis mismatches between peers.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
