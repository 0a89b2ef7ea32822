package p2p

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// State is a peer connection's position in the state machine.
type State int

const (
	StateCold State = iota
	StateDialling
	StateConnected
	StateBackoff
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateCold:
		return "cold"
	case StateDialling:
		return "dialling"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// sendQueueMaxBytes bounds a peer's outbound queue.
const sendQueueMaxBytes = 16 * 1024 * 1024

// invDedupWindow is how long a duplicate INV entry from the same peer is
// suppressed.
const invDedupWindow = 60 * time.Second

// txRateLimit is the max TX messages per second accepted from one peer
//.
const txRateLimit = 100

// requestTimeout bounds any outstanding request-response exchange.
const requestTimeout = 30 * time.Second

// idleReadTimeout disconnects a peer that sends nothing — not even a
// PING — for three ping intervals.
const idleReadTimeout = 3 * pingInterval

// Peer represents one connection to a remote node: its framed conn, send
// queue, and bookkeeping for bans/backoff/dedup/rate limiting.
type Peer struct {
	Addr     string // remote host:port
	Inbound  bool
	conn     net.Conn
	magic    uint32

	mu          sync.Mutex
	state       State
	failures    int
	backoff     time.Duration
	lastFailure time.Time
	listenPort  int
	height      uint64
	tipHash     [32]byte

	sendCh   chan *Frame
	sendSize int64
	closeCh  chan struct{}
	closed   bool

	invSeen   map[[33]byte]time.Time
	invMu     sync.Mutex
	rateMu    sync.Mutex
	rateCount int
	rateStart time.Time
}

// newPeer wraps conn into a Peer tracking the given network magic.
func newPeer(addr string, conn net.Conn, inbound bool, magic uint32) *Peer {
	return &Peer{
		Addr:    addr,
		Inbound: inbound,
		conn:    conn,
		magic:   magic,
		state:   StateConnected,
		sendCh:  make(chan *Frame, 1024),
		closeCh: make(chan struct{}),
		invSeen: make(map[[33]byte]time.Time),
	}
}

// State returns the peer's current connection state.
func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Peer) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// RecordFailure increments the consecutive-failure counter and doubles
// the backoff interval, ceiling at 10 minutes.
func (p *Peer) RecordFailure() (failures int, backoff time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures++
	if p.backoff == 0 {
		p.backoff = time.Second
	} else {
		p.backoff *= 2
	}
	if p.backoff > 10*time.Minute {
		p.backoff = 10 * time.Minute
	}
	p.lastFailure = time.Now()
	p.state = StateBackoff
	return p.failures, p.backoff
}

// RecordSuccess resets the failure/backoff counters on a successful
// handshake.
func (p *Peer) RecordSuccess() {
	p.mu.Lock()
	p.failures = 0
	p.backoff = 0
	p.state = StateConnected
	p.mu.Unlock()
}

// Send enqueues a frame for asynchronous write, returning an error if the
// queue is full or the peer is closed.
func (p *Peer) Send(typ MessageType, payload []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("peer %s closed", p.Addr)
	}
	if p.sendSize+int64(len(payload)) > sendQueueMaxBytes {
		p.mu.Unlock()
		return fmt.Errorf("peer %s send queue full", p.Addr)
	}
	p.sendSize += int64(len(payload))
	p.mu.Unlock()

	select {
	case p.sendCh <- &Frame{Magic: p.magic, Type: typ, Payload: payload}:
		return nil
	default:
		p.mu.Lock()
		p.sendSize -= int64(len(payload))
		p.mu.Unlock()
		return fmt.Errorf("peer %s send queue full", p.Addr)
	}
}

// writeLoop drains sendCh to the connection until closeCh fires.
func (p *Peer) writeLoop() {
	for {
		select {
		case <-p.closeCh:
			return
		case f := <-p.sendCh:
			p.mu.Lock()
			p.sendSize -= int64(len(f.Payload))
			p.mu.Unlock()
			if err := WriteFrame(p.conn, f.Magic, f.Type, f.Payload); err != nil {
				p.Close()
				return
			}
		}
	}
}

// Close tears down the connection and stops the write loop. Safe to call
// more than once.
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.state = StateDisconnected
	p.mu.Unlock()

	close(p.closeCh)
	return p.conn.Close()
}

// seenInv reports whether kind/hash was already advertised by this peer
// within the dedup window, recording it if not.
func (p *Peer) seenInv(item InvItem) bool {
	var key [33]byte
	key[0] = byte(item.Kind)
	copy(key[1:], item.Hash[:])

	p.invMu.Lock()
	defer p.invMu.Unlock()

	now := time.Now()
	if seenAt, ok := p.invSeen[key]; ok && now.Sub(seenAt) < invDedupWindow {
		return true
	}
	p.invSeen[key] = now

	if len(p.invSeen) > 4096 {
		for k, t := range p.invSeen {
			if now.Sub(t) > invDedupWindow {
				delete(p.invSeen, k)
			}
		}
	}
	return false
}

// allowTx reports whether another TX message may be processed this
// second, enforcing the per-peer relay rate limit.
func (p *Peer) allowTx() bool {
	p.rateMu.Lock()
	defer p.rateMu.Unlock()
	now := time.Now()
	if now.Sub(p.rateStart) >= time.Second {
		p.rateStart = now
		p.rateCount = 0
	}
	if p.rateCount >= txRateLimit {
		return false
	}
	p.rateCount++
	return true
}
