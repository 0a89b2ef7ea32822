package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

// Flags holds parsed command-line flags.
type Flags struct {
	Help    bool
	Version bool

	NodeID  uint64
	Network string
	DataDir string
	Config  string

	P2PPort        int
	BootstrapPeers string
	MaxOutbound    int
	MaxInbound     int

	APIPort int

	MempoolMaxBytes int64
	MempoolTxTTL    string

	Mine     bool
	Coinbase string
	Threads  int

	LogLevel string
	LogFile  string
	LogJSON  bool

	Args []string

	SetMine    bool
	SetLogJSON bool
}

// ParseFlags parses command-line flags.
func ParseFlags() *Flags {
	f := &Flags{}
	fs := flag.NewFlagSet("globalcoynd", flag.ContinueOnError)

	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	fs.Uint64Var(&f.NodeID, "node-id", 0, "Node identifier (stored in the config; default ports do not depend on it)")
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet, testnet, or dev)")
	testnet := fs.Bool("testnet", false, "Use testnet (shorthand for --network=testnet)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	fs.IntVar(&f.P2PPort, "p2p-port", 0, "P2P listen port")
	fs.StringVar(&f.BootstrapPeers, "bootstrap-peers", "", "Bootstrap peers as comma-separated host:port")
	fs.IntVar(&f.MaxOutbound, "max-outbound", 0, "Maximum outbound peer connections")
	fs.IntVar(&f.MaxInbound, "max-inbound", 0, "Maximum inbound peer connections")

	fs.IntVar(&f.APIPort, "api-port", 0, "Facade listen port")

	fs.Int64Var(&f.MempoolMaxBytes, "mempool-max-bytes", 0, "Mempool memory bound in bytes")
	fs.StringVar(&f.MempoolTxTTL, "mempool-tx-ttl", "", "Mempool transaction expiry (e.g. 72h)")

	fs.BoolVar(&f.Mine, "mine", false, "Enable block production")
	fs.StringVar(&f.Coinbase, "coinbase", "", "Address to receive block rewards")
	fs.IntVar(&f.Threads, "threads", 0, "Mining threads")

	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = func() { printUsage() }

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if *testnet {
		f.Network = "testnet"
	}
	f.SetMine = isFlagSet(fs, "mine")
	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.Args = fs.Args()

	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			fmt.Fprintf(os.Stderr, "Error: flag %q was not parsed (positional argument stopped parsing)\n", arg)
			os.Exit(1)
		}
	}

	return f
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.NodeID != 0 {
		cfg.NodeID = f.NodeID
	}
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	if f.P2PPort != 0 {
		cfg.P2P.Port = f.P2PPort
	}
	if f.BootstrapPeers != "" {
		cfg.P2P.BootstrapPeers = parseStringList(f.BootstrapPeers)
	}
	if f.MaxOutbound != 0 {
		cfg.P2P.MaxOutbound = f.MaxOutbound
	}
	if f.MaxInbound != 0 {
		cfg.P2P.MaxInbound = f.MaxInbound
	}

	if f.APIPort != 0 {
		cfg.API.Port = f.APIPort
	}

	if f.MempoolMaxBytes != 0 {
		cfg.Mempool.MaxBytes = f.MempoolMaxBytes
	}
	if f.MempoolTxTTL != "" {
		if d, err := time.ParseDuration(f.MempoolTxTTL); err == nil {
			cfg.Mempool.TxTTL = d
		}
	}

	if f.SetMine {
		cfg.Mining.Enabled = f.Mine
	}
	if f.Coinbase != "" {
		cfg.Mining.Coinbase = f.Coinbase
	}
	if f.Threads != 0 {
		cfg.Mining.Threads = f.Threads
	}

	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			found = true
		}
	})
	return found
}

func printUsage() {
	usage := `GlobalCoyn - a proof-of-work account-model blockchain node

Usage:
  globalcoynd [options]
  globalcoynd --help

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information

Core Options:
  --node-id          Node identifier (default ports do not depend on it)
  --network          Network type: mainnet (default), testnet, or dev
  --testnet          Shorthand for --network=testnet
  --datadir          Data directory (default: ~/.globalcoyn)
  --config, -c       Config file path (default: <datadir>/globalcoyn.conf)

P2P Options:
  --p2p-port         P2P listen port
  --bootstrap-peers  Bootstrap peers as comma-separated host:port
  --max-outbound     Maximum outbound peer connections (default 8)
  --max-inbound      Maximum inbound peer connections (default 128)

Facade Options:
  --api-port         Facade listen port

Mempool Options:
  --mempool-max-bytes  Mempool memory bound in bytes
  --mempool-tx-ttl     Mempool transaction expiry (e.g. 72h)

Mining Options:
  --mine         Enable block production
  --coinbase     Address to receive block rewards
  --threads      Mining threads

Logging Options:
  --log-level    Log level: debug, info, warn, error (default: info)
  --log-file     Log file path (default: stdout)
  --log-json     Output logs as JSON

Examples:
  globalcoynd
  globalcoynd --network=testnet
  globalcoynd --mine --coinbase=<address>
  globalcoynd --datadir=/path/to/data
`
	fmt.Print(usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("globalcoynd version 0.1.0")
		os.Exit(0)
	}

	network := Mainnet
	switch strings.ToLower(flags.Network) {
	case "testnet":
		network = Testnet
	case "dev":
		network = Dev
	}

	cfg := Default(network)
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Idempotent.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.ChainDataDir(),
		cfg.IndexDir(),
		cfg.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}
