// Package config handles node configuration.
//
// Configuration splits into two categories: protocol rules (defined in
// genesis.go, immutable, must match across all nodes) and node settings
// (this file, runtime, may vary per node).
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies mainnet, testnet, or a local dev network.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
	Dev     NetworkType = "dev"
)

// Config holds node-specific runtime configuration.
type Config struct {
	NodeID  uint64      `conf:"node_id"`
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"data_dir"`

	P2P     P2PConfig
	API     APIConfig
	Mempool MempoolConfig
	Mining  MiningConfig
	Log     LogConfig
}

// P2PConfig holds peer-to-peer network settings.
type P2PConfig struct {
	Port           int      `conf:"p2p_port"`
	BootstrapPeers []string `conf:"bootstrap_peers"`
	MaxOutbound    int      `conf:"max_outbound"`
	MaxInbound     int      `conf:"max_inbound"`
}

// APIConfig holds the node's facade listener settings.
type APIConfig struct {
	Port int `conf:"api_port"`
}

// MempoolConfig bounds pending-transaction pool resource usage.
type MempoolConfig struct {
	MaxBytes int64         `conf:"mempool_max_bytes"`
	TxTTL    time.Duration `conf:"mempool_tx_ttl"`
}

// MiningConfig holds block production settings. Whether to mine is a node
// choice; the reward schedule and difficulty rules are protocol.
type MiningConfig struct {
	Enabled  bool   `conf:"mining.enabled"`
	Coinbase string `conf:"mining.coinbase"`
	Threads  int    `conf:"mining.threads"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.globalcoyn
//	macOS:   ~/Library/Application Support/GlobalCoyn
//	Windows: %APPDATA%\GlobalCoyn
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".globalcoyn"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "GlobalCoyn")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "GlobalCoyn")
		}
		return filepath.Join(home, "AppData", "Roaming", "GlobalCoyn")
	default:
		return filepath.Join(home, ".globalcoyn")
	}
}

// ChainDataDir returns the network-specific data directory holding
// chain.log, chain.snapshot, wallets.dat, and peers.json.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// ChainLogPath returns the append-only block log path.
func (c *Config) ChainLogPath() string {
	return filepath.Join(c.ChainDataDir(), "chain.log")
}

// ChainSnapshotPath returns the chain snapshot path.
func (c *Config) ChainSnapshotPath() string {
	return filepath.Join(c.ChainDataDir(), "chain.snapshot")
}

// WalletsPath returns the encrypted wallet keystore path.
func (c *Config) WalletsPath() string {
	return filepath.Join(c.ChainDataDir(), "wallets.dat")
}

// PeersPath returns the last-known peer list path.
func (c *Config) PeersPath() string {
	return filepath.Join(c.ChainDataDir(), "peers.json")
}

// IndexDir returns the directory for the rebuildable badger-backed
// tx/address lookup index.
func (c *Config) IndexDir() string {
	return filepath.Join(c.ChainDataDir(), "index")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "globalcoyn.conf")
}
