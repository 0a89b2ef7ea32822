package p2p

import (
	"net"
	"strings"
	"time"

	"github.com/globalcoyn/globalcoyn/internal/log"
)

// discoveryInterval is how often the discovery worker refreshes its
// candidate set from DNS seeds and asks connected peers for more peers
//.
const discoveryInterval = 5 * time.Minute

// pingInterval is how often a PING liveness probe is sent per peer.
const pingInterval = 30 * time.Second

// discoveryLoop periodically resolves DNS seed domains and asks each
// connected peer for its peer list (PEX), feeding results into the dial
// candidate queue. It also drives the per-peer PING liveness probe and
// periodic peer-store persistence.
func (m *Manager) discoveryLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(discoveryInterval)
	defer ticker.Stop()
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()
	persistTicker := time.NewTicker(persistInterval)
	defer persistTicker.Stop()

	m.refreshSeeds()
	m.requestPeersFromAll()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.refreshSeeds()
			m.requestPeersFromAll()
		case <-pingTicker.C:
			m.pingAll()
		case <-persistTicker.C:
			m.persistKnownPeers()
		}
	}
}

// refreshSeeds resolves each configured DNS TXT seed domain, expecting
// comma-separated host:port entries, and enqueues them as dial
// candidates.
func (m *Manager) refreshSeeds() {
	for _, domain := range m.cfg.SeedDomains {
		records, err := net.LookupTXT(domain)
		if err != nil {
			log.P2P.Debug().Err(err).Str("domain", domain).Msg("DNS seed lookup failed")
			continue
		}
		for _, record := range records {
			for _, addr := range strings.Split(record, ",") {
				addr = strings.TrimSpace(addr)
				if addr == "" {
					continue
				}
				select {
				case m.candidate <- addr:
				default:
				}
			}
		}
	}
}

// requestPeersFromAll sends GETPEERS to every connected peer.
func (m *Manager) requestPeersFromAll() {
	m.mu.Lock()
	peers := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	m.mu.Unlock()

	for _, p := range peers {
		p.Send(MsgGetPeers, nil)
	}
}

func (m *Manager) pingAll() {
	m.mu.Lock()
	peers := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	m.mu.Unlock()

	for _, p := range peers {
		nonce := m.nextNonce()
		if err := p.Send(MsgPing, encodePayload(PingPayload{Nonce: nonce})); err != nil {
			m.removePeer(p)
		}
	}
}

func (m *Manager) persistKnownPeers() {
	if m.store == nil {
		return
	}
	m.mu.Lock()
	addrs := make([]string, 0, len(m.peers))
	for addr := range m.peers {
		addrs = append(addrs, addr)
	}
	m.mu.Unlock()

	now := time.Now().Unix()
	for _, addr := range addrs {
		m.store.Save(PeerRecord{Addr: addr, LastSeen: now, Source: "connected"})
	}
	m.store.PruneStale(staleThreshold)
}
