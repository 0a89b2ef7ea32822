package p2p

import (
	"fmt"
	"sync"
	"time"
)

// handshakeTimeout bounds the HELLO exchange.
const handshakeTimeout = 10 * time.Second

// selfConnectWindow is how long a nonce we sent is remembered to detect
// a self-connection loop.
const selfConnectWindow = 60 * time.Second

// nonceTracker remembers recently-sent handshake nonces to detect
// connecting back to ourselves.
type nonceTracker struct {
	mu    sync.Mutex
	sent  map[uint64]time.Time
}

func newNonceTracker() *nonceTracker {
	return &nonceTracker{sent: make(map[uint64]time.Time)}
}

func (nt *nonceTracker) record(nonce uint64) {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	nt.sent[nonce] = time.Now()
	now := time.Now()
	for n, t := range nt.sent {
		if now.Sub(t) > selfConnectWindow {
			delete(nt.sent, n)
		}
	}
}

func (nt *nonceTracker) isSelf(nonce uint64) bool {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	t, ok := nt.sent[nonce]
	return ok && time.Since(t) < selfConnectWindow
}

// buildHello constructs this node's handshake payload.
func (m *Manager) buildHello() HelloPayload {
	nonce := m.nextNonce()
	m.nonces.record(nonce)
	height, hash, _ := m.chain.Tip()
	return HelloPayload{
		ProtocolVersion: ProtocolVersion,
		NetworkID:       m.cfg.NetworkID,
		ChainTipHeight:  height,
		ChainTipHash:    hash,
		ListenPort:      m.cfg.ListenPort,
		Nonce:           nonce,
	}
}

// validateHello checks a peer's HELLO for version/network mismatch and
// self-connection.
func (m *Manager) validateHello(h HelloPayload) error {
	if h.ProtocolVersion != ProtocolVersion {
		return fmt.Errorf("unsupported protocol version %d", h.ProtocolVersion)
	}
	if h.NetworkID != m.cfg.NetworkID {
		return fmt.Errorf("network mismatch: peer=%s local=%s", h.NetworkID, m.cfg.NetworkID)
	}
	if m.nonces.isSelf(h.Nonce) {
		return fmt.Errorf("self-connection detected")
	}
	return nil
}

// doHandshake performs the HELLO exchange over conn and returns the
// remote peer's payload or an error.
func doHandshake(conn deadlineConn, magic uint32, hello HelloPayload) (HelloPayload, error) {
	conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	if err := WriteFrame(conn, magic, MsgHello, encodePayload(hello)); err != nil {
		return HelloPayload{}, fmt.Errorf("write hello: %w", err)
	}

	frame, err := ReadFrame(conn)
	if err != nil {
		return HelloPayload{}, fmt.Errorf("read hello: %w", err)
	}
	if frame.Type != MsgHello {
		return HelloPayload{}, fmt.Errorf("expected HELLO, got %s", frame.Type)
	}
	var remote HelloPayload
	if err := decodePayload(frame.Payload, &remote); err != nil {
		return HelloPayload{}, fmt.Errorf("decode hello: %w", err)
	}
	return remote, nil
}

// deadlineConn is the subset of net.Conn the handshake needs.
type deadlineConn interface {
	SetDeadline(t time.Time) error
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
}
