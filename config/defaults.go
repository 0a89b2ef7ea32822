package config

import "time"

// DefaultMainnet returns the default node configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		P2P: P2PConfig{
			Port:        9333,
			MaxOutbound: 8,
			MaxInbound:  128,
		},
		API: APIConfig{
			Port: 9332,
		},
		Mempool: MempoolConfig{
			MaxBytes: 50 * 1024 * 1024,
			TxTTL:    72 * time.Hour,
		},
		Mining: MiningConfig{
			Enabled: false,
			Threads: 1,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default node configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.P2P.Port = 19333
	cfg.API.Port = 19332
	return cfg
}

// DefaultDev returns the default node configuration for a single-node
// local development network.
func DefaultDev() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Dev
	cfg.P2P.Port = 29333
	cfg.API.Port = 29332
	cfg.Mempool.TxTTL = time.Hour
	return cfg
}

// Default returns the default node configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	case Dev:
		return DefaultDev()
	default:
		return DefaultMainnet()
	}
}
