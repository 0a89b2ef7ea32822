package config

import "fmt"

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet && cfg.Network != Dev {
		return fmt.Errorf("network must be %q, %q, or %q", Mainnet, Testnet, Dev)
	}
	if cfg.P2P.Port < 0 || cfg.P2P.Port > 65535 {
		return fmt.Errorf("p2p_port must be in range [0, 65535]")
	}
	if cfg.API.Port < 0 || cfg.API.Port > 65535 {
		return fmt.Errorf("api_port must be in range [0, 65535]")
	}
	if cfg.P2P.MaxOutbound < 0 {
		return fmt.Errorf("max_outbound must be non-negative")
	}
	if cfg.P2P.MaxInbound < 0 {
		return fmt.Errorf("max_inbound must be non-negative")
	}
	if cfg.Mempool.MaxBytes <= 0 {
		return fmt.Errorf("mempool_max_bytes must be positive")
	}
	if cfg.Mempool.TxTTL <= 0 {
		return fmt.Errorf("mempool_tx_ttl must be positive")
	}
	if cfg.Mining.Threads < 0 {
		return fmt.Errorf("mining.threads must be non-negative")
	}
	return nil
}
