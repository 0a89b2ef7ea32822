package p2p

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/globalcoyn/globalcoyn/internal/chain"
	"github.com/globalcoyn/globalcoyn/internal/log"
	"github.com/globalcoyn/globalcoyn/pkg/block"
	"github.com/globalcoyn/globalcoyn/pkg/tx"
	"github.com/globalcoyn/globalcoyn/pkg/types"
)

// ChainHandle is the narrow capability the peer manager needs from the
// chain manager to serve and accept gossiped blocks.
type ChainHandle interface {
	Tip() (height uint64, hash types.Hash, difficultyBits uint32)
	GetBlock(hash types.Hash) (*block.Block, error)
	GetBlockByHeight(height uint64) (*block.Block, error)
	GetTransaction(hash types.Hash) (*tx.Transaction, error)
	TryExtend(blk *block.Block) (chain.Result, error)
}

// MempoolHandle is the narrow capability the peer manager needs from the
// mempool to serve and accept gossiped transactions.
type MempoolHandle interface {
	Submit(t *tx.Transaction) error
	Has(h types.Hash) bool
	Get(h types.Hash) *tx.Transaction
}

// Config configures the peer manager.
type Config struct {
	ListenAddr     string // "0.0.0.0:9333"; empty disables inbound listening.
	ListenPort     int
	Magic          uint32
	NetworkID      string
	MaxOutbound    int // default 8
	MaxInbound     int // default 128
	BootstrapPeers []string
	SeedDomains    []string // DNS TXT seed domains
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxOutbound <= 0 {
		out.MaxOutbound = 8
	}
	if out.MaxInbound <= 0 {
		out.MaxInbound = 128
	}
	return out
}

// Manager is the peer manager (C8): it maintains outbound/inbound TCP
// connections, runs discovery, and dispatches gossip frames to the
// chain/mempool.
type Manager struct {
	cfg    Config
	chain  ChainHandle
	pool   MempoolHandle
	bans   *BanManager
	store  *PeerStore
	nonces *nonceTracker

	mu        sync.Mutex
	peers     map[string]*Peer
	outbound  int
	inbound   int
	listener  net.Listener
	candidate chan string

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New creates a peer manager. store/banStore may be nil to disable peer
// and ban persistence (useful for tests).
func New(cfg Config, chainHandle ChainHandle, pool MempoolHandle, store *PeerStore, banStore *BanStore) *Manager {
	m := &Manager{
		cfg:       cfg.withDefaults(),
		chain:     chainHandle,
		pool:      pool,
		store:     store,
		nonces:    newNonceTracker(),
		peers:     make(map[string]*Peer),
		candidate: make(chan string, 256),
		stopCh:    make(chan struct{}),
	}
	m.bans = NewBanManager(banStore, m.DisconnectPeer)
	return m
}

func (m *Manager) nextNonce() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint64(buf[:])
}

// Start begins listening (if ListenAddr is set), seeds the candidate
// queue from bootstrap peers and the peer store, and launches the
// outbound dial loop and discovery worker.
func (m *Manager) Start() error {
	m.bans.LoadBans()

	for _, addr := range m.cfg.BootstrapPeers {
		m.candidate <- addr
	}
	if m.store != nil {
		if records, err := m.store.LoadAll(); err == nil {
			for _, rec := range records {
				select {
				case m.candidate <- rec.Addr:
				default:
				}
			}
		}
	}

	if m.cfg.ListenAddr != "" {
		ln, err := net.Listen("tcp", m.cfg.ListenAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", m.cfg.ListenAddr, err)
		}
		m.listener = ln
		m.wg.Add(1)
		go m.acceptLoop()
	}

	m.wg.Add(1)
	go m.dialLoop()

	m.wg.Add(1)
	go m.discoveryLoop()

	return nil
}

// Stop closes the listener, disconnects every peer, and waits for
// background workers to exit.
func (m *Manager) Stop() {
	close(m.stopCh)
	if m.listener != nil {
		m.listener.Close()
	}
	m.mu.Lock()
	peers := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	m.mu.Unlock()
	for _, p := range peers {
		p.Close()
	}
	m.wg.Wait()
}

// Connect dials addr explicitly (facade `connect_peer`).
func (m *Manager) Connect(addr string) error {
	if m.bans.IsBanned(hostOnly(addr)) {
		return fmt.Errorf("peer %s is banned", addr)
	}
	return m.dial(addr)
}

// ListenAddr returns the address the manager is actually bound to, useful
// when Config.ListenAddr requested an ephemeral port. Empty if not
// listening.
func (m *Manager) ListenAddr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// PeerCount returns the number of currently-connected peers.
func (m *Manager) PeerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.peers)
}

// ListPeers returns every currently-connected peer's address and state.
func (m *Manager) ListPeers() []PeerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PeerEntry, 0, len(m.peers))
	for addr, p := range m.peers {
		host, portStr, err := net.SplitHostPort(addr)
		port := 0
		if err == nil {
			port, _ = strconv.Atoi(portStr)
		} else {
			host = addr
		}
		out = append(out, PeerEntry{Host: host, Port: port, LastSeen: time.Now().Unix()})
	}
	return out
}

// acceptLoop accepts inbound connections up to MaxInbound.
func (m *Manager) acceptLoop() {
	defer m.wg.Done()
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			select {
			case <-m.stopCh:
				return
			default:
				log.P2P.Debug().Err(err).Msg("accept error")
				continue
			}
		}

		m.mu.Lock()
		full := m.inbound >= m.cfg.MaxInbound
		m.mu.Unlock()
		if full {
			conn.Close()
			continue
		}

		addr := conn.RemoteAddr().String()
		if m.bans.IsBanned(hostOnly(addr)) {
			conn.Close()
			continue
		}

		m.mu.Lock()
		m.inbound++
		m.mu.Unlock()

		go m.handleInbound(addr, conn)
	}
}

func (m *Manager) handleInbound(addr string, conn net.Conn) {
	defer func() {
		m.mu.Lock()
		m.inbound--
		m.mu.Unlock()
	}()

	hello := m.buildHello()
	remote, err := doHandshake(conn, m.cfg.Magic, hello)
	if err != nil {
		log.P2P.Debug().Err(err).Str("peer", addr).Msg("handshake failed")
		conn.Close()
		return
	}
	if err := m.validateHello(remote); err != nil {
		m.bans.RecordOffense(hostOnly(addr), PenaltyHandshakeFail, err.Error())
		conn.Close()
		return
	}

	p := newPeer(addr, conn, true, m.cfg.Magic)
	p.listenPort = remote.ListenPort
	p.height = remote.ChainTipHeight
	p.RecordSuccess()
	m.addPeer(p)
	defer m.removePeer(p)

	go p.writeLoop()
	m.readLoop(p)
}

// dialLoop continuously pulls candidate addresses and dials them,
// bounded by MaxOutbound.
func (m *Manager) dialLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case addr := <-m.candidate:
			m.mu.Lock()
			full := m.outbound >= m.cfg.MaxOutbound
			_, already := m.peers[addr]
			m.mu.Unlock()
			if full || already || m.bans.IsBanned(hostOnly(addr)) {
				continue
			}
			go m.dial(addr)
		}
	}
}

func (m *Manager) dial(addr string) error {
	m.mu.Lock()
	if m.outbound >= m.cfg.MaxOutbound {
		m.mu.Unlock()
		return fmt.Errorf("max outbound connections reached")
	}
	m.outbound++
	m.mu.Unlock()

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		m.mu.Lock()
		m.outbound--
		m.mu.Unlock()
		m.bans.RecordOffense(hostOnly(addr), PenaltyDialFailure, "dial failure")
		m.requeueWithBackoff(addr)
		return err
	}

	hello := m.buildHello()
	remote, err := doHandshake(conn, m.cfg.Magic, hello)
	if err != nil {
		conn.Close()
		m.mu.Lock()
		m.outbound--
		m.mu.Unlock()
		m.bans.RecordOffense(hostOnly(addr), PenaltyDialFailure, "handshake failure")
		m.requeueWithBackoff(addr)
		return err
	}
	if err := m.validateHello(remote); err != nil {
		conn.Close()
		m.mu.Lock()
		m.outbound--
		m.mu.Unlock()
		m.bans.RecordOffense(hostOnly(addr), PenaltyHandshakeFail, err.Error())
		return err
	}

	p := newPeer(addr, conn, false, m.cfg.Magic)
	p.listenPort = remote.ListenPort
	p.height = remote.ChainTipHeight
	p.RecordSuccess()
	m.addPeer(p)

	if m.store != nil {
		m.store.Save(PeerRecord{Addr: addr, LastSeen: time.Now().Unix(), Source: "dial"})
	}

	go p.writeLoop()
	go func() {
		defer func() {
			m.mu.Lock()
			m.outbound--
			m.mu.Unlock()
			m.removePeer(p)
		}()
		m.readLoop(p)
	}()
	return nil
}

func (m *Manager) requeueWithBackoff(addr string) {
	go func() {
		time.Sleep(time.Second)
		select {
		case m.candidate <- addr:
		default:
		}
	}()
}

func (m *Manager) addPeer(p *Peer) {
	m.mu.Lock()
	m.peers[p.Addr] = p
	m.mu.Unlock()
}

func (m *Manager) removePeer(p *Peer) {
	m.mu.Lock()
	delete(m.peers, p.Addr)
	m.mu.Unlock()
	p.Close()
}

// DisconnectPeer closes and drops every peer whose host:port or host is
// addr, used by the ban manager's disconnect callback (which passes a host).
func (m *Manager) DisconnectPeer(addr string) {
	m.mu.Lock()
	var matched []*Peer
	for key, p := range m.peers {
		if key == addr || hostOnly(key) == addr {
			matched = append(matched, p)
		}
	}
	m.mu.Unlock()
	for _, p := range matched {
		m.removePeer(p)
	}
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
