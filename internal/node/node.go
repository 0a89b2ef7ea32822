// Package node wires the blockchain state machine, mempool, miner, and
// peer manager into a single orchestrator and publishes the narrow
// facade the external API layer drives.
package node

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/globalcoyn/globalcoyn/config"
	"github.com/globalcoyn/globalcoyn/internal/chain"
	"github.com/globalcoyn/globalcoyn/internal/consensus"
	klog "github.com/globalcoyn/globalcoyn/internal/log"
	"github.com/globalcoyn/globalcoyn/internal/mempool"
	"github.com/globalcoyn/globalcoyn/internal/miner"
	"github.com/globalcoyn/globalcoyn/internal/p2p"
	"github.com/globalcoyn/globalcoyn/internal/storage"
	"github.com/globalcoyn/globalcoyn/internal/wallet"
	"github.com/globalcoyn/globalcoyn/pkg/block"
	"github.com/globalcoyn/globalcoyn/pkg/crypto"
	"github.com/globalcoyn/globalcoyn/pkg/tx"
	"github.com/globalcoyn/globalcoyn/pkg/types"
	"github.com/rs/zerolog"
)

// Node is a fully-initialized GlobalCoyn node: chain state machine,
// mempool, PoW miner, peer manager, and wallet keystore, addressable
// through the facade methods below.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis
	logger  zerolog.Logger

	db       storage.DB
	ch       *chain.Chain
	pool     *mempool.Pool
	m        *miner.Miner
	net      *p2p.Manager
	keystore *wallet.Keystore

	mu      sync.Mutex
	started bool
}

// New wires a Node from cfg: opens storage, restores the chain from its
// snapshot/log (initializing genesis on a fresh data directory), and
// constructs the mempool, miner, peer manager, and wallet keystore. It
// does not start background goroutines (mining, gossip) — call Start.
func New(cfg *config.Config) (*Node, error) {
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = logsDir + "/globalcoyn.log"
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	genesis := config.GenesisFor(cfg.Network)
	logger.Info().
		Str("chain_id", genesis.ChainID).
		Str("network", string(cfg.Network)).
		Int64("target_block_time", genesis.Consensus.TargetBlockTime).
		Msg("starting GlobalCoyn node")

	db, err := storage.NewBadger(cfg.IndexDir())
	if err != nil {
		return nil, fmt.Errorf("open index db at %s: %w", cfg.IndexDir(), err)
	}

	index := chain.NewBlockStore(db)
	ch, err := chain.Open(cfg.ChainLogPath(), cfg.ChainSnapshotPath(), index, genesis)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open chain: %w", err)
	}
	logger.Info().Str("path", cfg.ChainDataDir()).Msg("chain opened")

	maxBytes := cfg.Mempool.MaxBytes
	if maxBytes <= 0 {
		maxBytes = mempool.DefaultMaxBytes
	}
	ttl := cfg.Mempool.TxTTL
	if ttl <= 0 {
		ttl = mempool.DefaultTTL
	}
	pool := mempool.New(ch, maxBytes, ttl)

	ch.SetTxEvictHandler(func(txHash types.Hash) {
		pool.Evict([]types.Hash{txHash})
	})
	ch.SetRevertedTxHandler(func(reverted []*tx.Transaction) {
		for _, t := range reverted {
			_ = pool.Submit(t)
		}
	})

	ch.Engine().Threads = cfg.Mining.Threads

	rewardFn := func(height uint64) types.Amount {
		return rewardAtHeight(genesis.Consensus.InitialReward, genesis.Consensus.HalvingInterval, height)
	}
	chainHandle := &chainHandleWithBroadcast{ch: ch}
	mnr := miner.New(chainHandle, pool, rewardFn)

	// Preemption rule (§4.6): rebuild the mining template whenever the
	// tip advances (own block, gossiped block, or reorg) or the pool
	// gains a tx that would actually displace one of the current
	// candidate's picks.
	ch.SetTipChangedHandler(func(uint64, types.Hash) { mnr.Refresh() })
	pool.SetAcceptHandler(func(t *tx.Transaction) {
		if pool.WouldRankWithin(t.FeePerByte(), miner.MaxBlockTxs-1) {
			mnr.Refresh()
		}
	})

	keystore, err := wallet.NewKeystore(cfg.WalletsPath())
	if err != nil {
		db.Close()
		ch.Close()
		return nil, fmt.Errorf("open keystore: %w", err)
	}

	n := &Node{
		cfg:      cfg,
		genesis:  genesis,
		logger:   logger,
		db:       db,
		ch:       ch,
		pool:     pool,
		m:        mnr,
		keystore: keystore,
	}

	p2pCfg := p2p.Config{
		ListenAddr:     fmt.Sprintf("0.0.0.0:%d", cfg.P2P.Port),
		ListenPort:     cfg.P2P.Port,
		Magic:          magicForNetwork(cfg.Network),
		NetworkID:      string(cfg.Network),
		MaxOutbound:    cfg.P2P.MaxOutbound,
		MaxInbound:     cfg.P2P.MaxInbound,
		BootstrapPeers: cfg.P2P.BootstrapPeers,
	}
	banStore := p2p.NewBanStore(db)
	peerStore := p2p.NewPeerStore(db)
	n.net = p2p.New(p2pCfg, ch, pool, peerStore, banStore)
	chainHandle.net = n.net

	mnr.SetLogger(func(format string, args ...any) {
		logger.Debug().Msgf(format, args...)
	})

	return n, nil
}

// chainHandleWithBroadcast adapts *chain.Chain to miner.ChainHandle,
// broadcasting successfully-mined blocks to the peer manager (the miner
// itself has no p2p capability, per the capability-handle boundary).
type chainHandleWithBroadcast struct {
	ch  *chain.Chain
	net *p2p.Manager
}

func (c *chainHandleWithBroadcast) Tip() (uint64, types.Hash, uint32) { return c.ch.Tip() }
func (c *chainHandleWithBroadcast) MedianTimePast() uint64            { return c.ch.MedianTimePast() }
func (c *chainHandleWithBroadcast) Engine() *consensus.PoW            { return c.ch.Engine() }

func (c *chainHandleWithBroadcast) TryExtend(blk *block.Block) (chain.Result, error) {
	result, err := c.ch.TryExtend(blk)
	if err == nil && result == chain.Applied && c.net != nil {
		c.net.BroadcastBlock(blk)
	}
	return result, err
}

// rewardAtHeight halves initial every halvingInterval blocks, per the
// Bitcoin-style schedule.
func rewardAtHeight(initial types.Amount, halvingInterval, height uint64) types.Amount {
	if halvingInterval == 0 {
		return initial
	}
	halvings := height / halvingInterval
	if halvings >= 64 {
		return 0
	}
	return types.NewAmount(initial.Int64() >> halvings)
}

func magicForNetwork(network config.NetworkType) uint32 {
	switch network {
	case config.Testnet:
		return p2p.MagicTestnet
	case config.Dev:
		return p2p.MagicDev
	default:
		return p2p.MagicMainnet
	}
}

// Start begins mempool expiry, gossip, and (if configured) mining.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return fmt.Errorf("node already started")
	}

	if err := n.net.Start(); err != nil {
		return fmt.Errorf("start peer manager: %w", err)
	}

	go n.expireLoop()

	if n.cfg.Mining.Enabled {
		addr, err := resolveCoinbase(n.cfg.Mining.Coinbase)
		if err != nil {
			return fmt.Errorf("resolve coinbase: %w", err)
		}
		if err := n.m.Start(addr); err != nil {
			return fmt.Errorf("start miner: %w", err)
		}
	}

	n.started = true
	n.logger.Info().Msg("node started")
	return nil
}

// Stop shuts down mining, gossip, and storage in reverse dependency
// order. Safe to call whether or not Start was ever called: New opens
// the chain and index unconditionally, so they are always closed here.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.m.Stop()
	if n.started {
		n.net.Stop()
	}
	if err := n.ch.Close(); err != nil {
		n.logger.Warn().Err(err).Msg("close chain")
	}
	if err := n.db.Close(); err != nil {
		n.logger.Warn().Err(err).Msg("close index db")
	}
	n.started = false
	return nil
}

const expireInterval = time.Minute

// expireLoop periodically drops mempool entries past their TTL.
func (n *Node) expireLoop() {
	ticker := time.NewTicker(expireInterval)
	defer ticker.Stop()
	for range ticker.C {
		n.mu.Lock()
		running := n.started
		n.mu.Unlock()
		if !running {
			return
		}
		if evicted := n.pool.Expire(time.Now()); evicted > 0 {
			n.logger.Debug().Int("count", evicted).Msg("expired stale mempool entries")
		}
	}
}

// --- Facade ---------------------------------------------------

// SubmitTx validates and admits t into the mempool, broadcasting it to
// peers on acceptance.
func (n *Node) SubmitTx(t *tx.Transaction) (types.Hash, error) {
	if err := n.pool.Submit(t); err != nil {
		return types.Hash{}, err
	}
	n.net.BroadcastTx(t)
	return t.TxHash(), nil
}

// MempoolSnapshot returns every transaction hash currently pending.
func (n *Node) MempoolSnapshot() []types.Hash {
	return n.pool.Hashes()
}

// GetBlock returns the block with the given hash.
func (n *Node) GetBlock(hash types.Hash) (*block.Block, error) {
	return n.ch.GetBlock(hash)
}

// GetBlockByHeight returns the block at the given height on the active
// chain.
func (n *Node) GetBlockByHeight(height uint64) (*block.Block, error) {
	return n.ch.GetBlockByHeight(height)
}

// ChainInfo summarizes the chain tip for get_chain_info.
type ChainInfo struct {
	Height         uint64
	TipHash        types.Hash
	DifficultyBits uint32
	Supply         types.Amount
}

// GetChainInfo returns a snapshot of the chain tip and monetary supply.
func (n *Node) GetChainInfo() ChainInfo {
	height, hash, bits := n.ch.Tip()
	return ChainInfo{Height: height, TipHash: hash, DifficultyBits: bits, Supply: n.ch.Supply()}
}

// StartMining begins background block production paying rewards to
// coinbase.
func (n *Node) StartMining(coinbase types.Address) error {
	return n.m.Start(coinbase)
}

// StopMining halts background block production.
func (n *Node) StopMining() {
	n.m.Stop()
}

// MiningStatus reports whether the miner is running and how many hashes
// it has attempted in the current or last attempt.
func (n *Node) MiningStatus() miner.Status {
	return n.m.Status()
}

// NetworkStatus summarizes peer manager state for network_status.
type NetworkStatus struct {
	PeerCount int
	Peers     []p2p.PeerEntry
}

// NetworkStatus reports the current peer set.
func (n *Node) NetworkStatus() NetworkStatus {
	peers := n.net.ListPeers()
	return NetworkStatus{PeerCount: len(peers), Peers: peers}
}

// ConnectPeer dials addr explicitly.
func (n *Node) ConnectPeer(addr string) error {
	return n.net.Connect(addr)
}

// ListPeers returns the currently-connected peer set.
func (n *Node) ListPeers() []p2p.PeerEntry {
	return n.net.ListPeers()
}

// WalletCreate generates a new mnemonic-derived key, stores it encrypted
// under password, and returns its address and mnemonic (shown once).
func (n *Node) WalletCreate(password string) (address, mnemonic string, err error) {
	mnemonic, err = wallet.GenerateMnemonic()
	if err != nil {
		return "", "", fmt.Errorf("generate mnemonic: %w", err)
	}
	addr, key, err := deriveFromMnemonic(mnemonic)
	if err != nil {
		return "", "", err
	}
	if err := n.keystore.Put(addr.String(), key.Serialize(), []byte(password), wallet.DefaultScryptParams()); err != nil {
		return "", "", fmt.Errorf("store key: %w", err)
	}
	return addr.String(), mnemonic, nil
}

// WalletImport restores a wallet from a BIP-39 mnemonic or a raw
// hex-encoded private key, storing it encrypted under password.
func (n *Node) WalletImport(secret, password string) (string, error) {
	var addr types.Address
	var key *crypto.PrivateKey
	var err error

	if wallet.ValidateMnemonic(secret) {
		addr, key, err = deriveFromMnemonic(secret)
	} else {
		var raw []byte
		raw, err = hexDecode(secret)
		if err == nil {
			key, err = crypto.PrivateKeyFromBytes(raw)
		}
		if err == nil {
			addr = crypto.AddressFromPubKey(key.PublicKey())
		}
	}
	if err != nil {
		return "", fmt.Errorf("import key: %w", err)
	}

	if err := n.keystore.Put(addr.String(), key.Serialize(), []byte(password), wallet.DefaultScryptParams()); err != nil {
		return "", fmt.Errorf("store key: %w", err)
	}
	return addr.String(), nil
}

// WalletList returns every address held in the local keystore.
func (n *Node) WalletList() ([]string, error) {
	return n.keystore.List()
}

// WalletBalance returns addr's confirmed balance.
func (n *Node) WalletBalance(addr types.Address) types.Amount {
	return n.ch.Balance(addr)
}

// WalletSignAndSubmit builds, signs, and submits a transaction spending
// from the keystore-held address.
func (n *Node) WalletSignAndSubmit(address, password string, recipient types.Address, amount, fee types.Amount, payload []byte) (types.Hash, error) {
	privBytes, err := n.keystore.Get(address, []byte(password))
	if err != nil {
		return types.Hash{}, fmt.Errorf("unlock wallet: %w", err)
	}
	key, err := crypto.PrivateKeyFromBytes(privBytes)
	if err != nil {
		return types.Hash{}, fmt.Errorf("restore key: %w", err)
	}
	senderAddr, err := types.ParseAddress(address)
	if err != nil {
		return types.Hash{}, fmt.Errorf("invalid sender address: %w", err)
	}

	t := tx.NewTx(senderAddr, recipient, amount, fee, time.Now().Unix(), payload)
	if err := tx.SignTx(t, key); err != nil {
		return types.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	return n.SubmitTx(t)
}

// AddressHistory returns every transaction that touched addr.
func (n *Node) AddressHistory(addr types.Address) ([]*tx.Transaction, error) {
	return n.ch.History(addr)
}
