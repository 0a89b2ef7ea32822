package p2p

import (
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/globalcoyn/globalcoyn/internal/chain"
	"github.com/globalcoyn/globalcoyn/internal/log"
	"github.com/globalcoyn/globalcoyn/internal/mempool"
	"github.com/globalcoyn/globalcoyn/pkg/block"
	"github.com/globalcoyn/globalcoyn/pkg/tx"
)

// readLoop decodes frames from p's connection and dispatches them until
// an IO error closes the connection.
func (m *Manager) readLoop(p *Peer) {
	for {
		p.conn.SetReadDeadline(time.Now().Add(idleReadTimeout))
		frame, err := ReadFrame(p.conn)
		if err != nil {
			return
		}
		if frame.Magic != m.cfg.Magic {
			m.bans.RecordOffense(hostOnly(p.Addr), PenaltyInvalidBlock, "wrong network magic")
			return
		}
		if err := m.handleFrame(p, frame); err != nil {
			log.P2P.Debug().Err(err).Str("peer", p.Addr).Str("type", frame.Type.String()).Msg("frame handling error")
		}
	}
}

func (m *Manager) handleFrame(p *Peer, frame *Frame) error {
	switch frame.Type {
	case MsgInv:
		return m.handleInv(p, frame.Payload)
	case MsgGetData:
		return m.handleGetData(p, frame.Payload)
	case MsgTx:
		return m.handleTx(p, frame.Payload)
	case MsgBlock:
		return m.handleBlock(p, frame.Payload)
	case MsgGetHeaders:
		return m.handleGetHeaders(p, frame.Payload)
	case MsgHeaders:
		return m.handleHeaders(p, frame.Payload)
	case MsgGetPeers:
		return m.handleGetPeers(p)
	case MsgPeers:
		return m.handlePeers(p, frame.Payload)
	case MsgPing:
		return m.handlePing(p, frame.Payload)
	case MsgPong:
		return nil
	default:
		return nil
	}
}

// handleInv records advertised items and requests any we don't already
// have.
func (m *Manager) handleInv(p *Peer, payload []byte) error {
	var inv InvPayload
	if err := decodePayload(payload, &inv); err != nil {
		return err
	}
	var want []InvItem
	for _, item := range inv.Items {
		if p.seenInv(item) {
			continue
		}
		switch item.Kind {
		case InvTx:
			if !m.pool.Has(item.Hash) {
				want = append(want, item)
			}
		case InvBlock:
			if _, err := m.chain.GetBlock(item.Hash); err != nil {
				want = append(want, item)
			}
		}
	}
	if len(want) == 0 {
		return nil
	}
	return p.Send(MsgGetData, encodePayload(InvPayload{Items: want}))
}

// handleGetData serves the requested transactions/blocks from local
// state.
func (m *Manager) handleGetData(p *Peer, payload []byte) error {
	var req InvPayload
	if err := decodePayload(payload, &req); err != nil {
		return err
	}
	for _, item := range req.Items {
		switch item.Kind {
		case InvTx:
			if t := m.pool.Get(item.Hash); t != nil {
				if err := p.Send(MsgTx, encodePayload(t)); err != nil {
					return err
				}
			}
		case InvBlock:
			if blk, err := m.chain.GetBlock(item.Hash); err == nil {
				if err := p.Send(MsgBlock, encodePayload(blk)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// handleTx admits a gossiped transaction to the mempool and, on accept,
// relays an INV to every other peer.
func (m *Manager) handleTx(p *Peer, payload []byte) error {
	if !p.allowTx() {
		return errors.New("tx rate limit exceeded")
	}
	var t tx.Transaction
	if err := decodePayload(payload, &t); err != nil {
		m.bans.RecordOffense(hostOnly(p.Addr), PenaltyInvalidTx, "malformed tx payload")
		return err
	}
	err := m.pool.Submit(&t)
	switch {
	case err == nil:
		m.relay(InvItem{Kind: InvTx, Hash: t.TxHash()}, p)
	case errors.Is(err, mempool.ErrDuplicateTx):
		// Already pooled: not an offense, nothing to relay.
	case errors.Is(err, mempool.ErrInvalidSignature), errors.Is(err, mempool.ErrMalformedTx):
		m.bans.RecordOffense(hostOnly(p.Addr), PenaltyInvalidTx, err.Error())
	}
	return nil
}

// handleBlock applies a gossiped block to the chain and, on success,
// relays an INV.
func (m *Manager) handleBlock(p *Peer, payload []byte) error {
	var blk block.Block
	if err := decodePayload(payload, &blk); err != nil {
		m.bans.RecordOffense(hostOnly(p.Addr), PenaltyInvalidBlock, "malformed block payload")
		return err
	}
	result, err := m.chain.TryExtend(&blk)
	if err != nil {
		m.bans.RecordOffense(hostOnly(p.Addr), PenaltyInvalidBlock, err.Error())
		return err
	}
	if result == chain.Applied {
		m.relay(InvItem{Kind: InvBlock, Hash: blk.Hash()}, p)
	}
	return nil
}

// handleGetHeaders walks the chain from req.FromHash and returns up to
// req.Max headers.
func (m *Manager) handleGetHeaders(p *Peer, payload []byte) error {
	var req GetHeadersPayload
	if err := decodePayload(payload, &req); err != nil {
		return err
	}
	max := req.Max
	if max <= 0 || max > 2000 {
		max = 2000
	}

	start, err := m.chain.GetBlock(req.FromHash)
	if err != nil {
		return p.Send(MsgHeaders, encodePayload(HeadersPayload{}))
	}

	var headers []HeaderEntry
	height := start.Header.Index + 1
	for i := 0; i < max; i++ {
		blk, err := m.chain.GetBlockByHeight(height)
		if err != nil {
			break
		}
		headers = append(headers, HeaderEntry{
			Index:          blk.Header.Index,
			PreviousHash:   blk.Header.PreviousHash,
			Timestamp:      blk.Header.Timestamp,
			MerkleRoot:     blk.Header.MerkleRoot,
			Nonce:          blk.Header.Nonce,
			DifficultyBits: blk.Header.DifficultyBits,
		})
		if blk.Hash() == req.StopHash {
			break
		}
		height++
	}
	return p.Send(MsgHeaders, encodePayload(HeadersPayload{Headers: headers}))
}

// handleHeaders is a hook for a future header-first sync; today the
// headers are simply logged, since block fetch is driven by INV/GETDATA.
func (m *Manager) handleHeaders(p *Peer, payload []byte) error {
	var resp HeadersPayload
	if err := decodePayload(payload, &resp); err != nil {
		return err
	}
	log.P2P.Debug().Str("peer", p.Addr).Int("count", len(resp.Headers)).Msg("received headers")
	return nil
}

func (m *Manager) handleGetPeers(p *Peer) error {
	return p.Send(MsgPeers, encodePayload(PeersPayload{Peers: m.ListPeers()}))
}

// handlePeers merges advertised peers into the discovery candidate queue
//.
func (m *Manager) handlePeers(p *Peer, payload []byte) error {
	var resp PeersPayload
	if err := decodePayload(payload, &resp); err != nil {
		return err
	}
	for _, pe := range resp.Peers {
		addr := pe.Host
		if pe.Port != 0 {
			addr = net.JoinHostPort(pe.Host, strconv.Itoa(pe.Port))
		}
		if m.store != nil {
			m.store.Save(PeerRecord{Addr: addr, LastSeen: pe.LastSeen, Source: "pex"})
		}
		select {
		case m.candidate <- addr:
		default:
		}
	}
	return nil
}

func (m *Manager) handlePing(p *Peer, payload []byte) error {
	var ping PingPayload
	if err := decodePayload(payload, &ping); err != nil {
		return err
	}
	return p.Send(MsgPong, encodePayload(PongPayload{Nonce: ping.Nonce}))
}

// relay advertises item via INV to every connected peer except exclude
//.
func (m *Manager) relay(item InvItem, exclude *Peer) {
	m.mu.Lock()
	peers := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		if p != exclude {
			peers = append(peers, p)
		}
	}
	m.mu.Unlock()

	payload := encodePayload(InvPayload{Items: []InvItem{item}})
	for _, p := range peers {
		if err := p.Send(MsgInv, payload); err != nil {
			m.removePeer(p)
		}
	}
}

// BroadcastTx announces an already-accepted transaction to every peer
// (facade entry point used by Node.SubmitTx).
func (m *Manager) BroadcastTx(t *tx.Transaction) {
	m.relay(InvItem{Kind: InvTx, Hash: t.TxHash()}, nil)
}

// BroadcastBlock announces an already-applied block to every peer
// (facade entry point used by the node after a locally mined block is
// applied).
func (m *Manager) BroadcastBlock(blk *block.Block) {
	m.relay(InvItem{Kind: InvBlock, Hash: blk.Hash()}, nil)
}
