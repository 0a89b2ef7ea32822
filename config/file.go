package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads node configuration from a .conf file.
// Format: key = value (one per line, # for comments).
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		values[key] = value
	}
	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	case "node_id":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.NodeID = n
	case "network":
		cfg.Network = NetworkType(value)
	case "data_dir":
		cfg.DataDir = value

	case "p2p_port":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.P2P.Port = n
	case "bootstrap_peers":
		cfg.P2P.BootstrapPeers = parseStringList(value)
	case "max_outbound":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.P2P.MaxOutbound = n
	case "max_inbound":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.P2P.MaxInbound = n

	case "api_port":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.API.Port = n

	case "mempool_max_bytes":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Mempool.MaxBytes = n
	case "mempool_tx_ttl":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Mempool.TxTTL = d

	case "mining.enabled", "mine":
		cfg.Mining.Enabled = parseBool(value)
	case "mining.coinbase", "coinbase":
		cfg.Mining.Coinbase = value
	case "mining.threads":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Mining.Threads = n

	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored.
	}
	return nil
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default node configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	cfg := Default(network)
	content := `# GlobalCoyn Node Configuration
#
# This file contains NODE settings only. Protocol rules (block time,
# difficulty window, halving interval, initial reward) are hardcoded in
# the genesis configuration and cannot be changed without a hard fork.

node_id = 0
network = ` + string(network) + `
# data_dir = ~/.globalcoyn

# ============================================================================
# P2P Network
# ============================================================================

p2p_port = ` + strconv.Itoa(cfg.P2P.Port) + `
max_outbound = ` + strconv.Itoa(cfg.P2P.MaxOutbound) + `
max_inbound = ` + strconv.Itoa(cfg.P2P.MaxInbound) + `

# Bootstrap peers tried first on startup (comma-separated host:port)
# bootstrap_peers = seed1.globalcoyn.io:9333,seed2.globalcoyn.io:9333

# ============================================================================
# Facade (API)
# ============================================================================

api_port = ` + strconv.Itoa(cfg.API.Port) + `

# ============================================================================
# Mempool
# ============================================================================

mempool_max_bytes = ` + strconv.FormatInt(cfg.Mempool.MaxBytes, 10) + `
mempool_tx_ttl = ` + cfg.Mempool.TxTTL.String() + `

# ============================================================================
# Mining
# ============================================================================

mining.enabled = false
# mining.coinbase = <your-address>
mining.threads = 1

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
