package p2p

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/globalcoyn/globalcoyn/internal/storage"
)

const (
	staleThreshold    = 24 * time.Hour
	persistInterval   = 5 * time.Minute
	maxPersistedPeers = 500
)

// peerNamespace isolates PeerStore's keys within a database shared with
// BanStore and chain.BlockStore.
var peerNamespace = []byte("peer/")

// PeerRecord is a persisted peer entry, keyed by host:port.
type PeerRecord struct {
	Addr     string `json:"addr"`
	LastSeen int64  `json:"last_seen"`
	Source   string `json:"source"` // "dial", "connected", "pex"
}

// PeerStore persists peer records, keyed by host:port, in a database
// namespace isolated from BanStore's and BlockStore's by storage.PrefixDB.
type PeerStore struct {
	db storage.DB
}

// NewPeerStore creates a PeerStore backed by db, namespaced under
// peerNamespace so db can be shared with other stores.
func NewPeerStore(db storage.DB) *PeerStore {
	return &PeerStore{db: storage.NewPrefixDB(db, peerNamespace)}
}

func peerKey(addr string) []byte { return []byte(addr) }

// Save persists rec, refusing new (not-yet-known) peers once the store
// holds maxPersistedPeers records.
func (ps *PeerStore) Save(rec PeerRecord) error {
	key := peerKey(rec.Addr)
	exists, err := ps.db.Has(key)
	if err != nil {
		return fmt.Errorf("check peer exists: %w", err)
	}
	if !exists {
		count, err := ps.Count()
		if err != nil {
			return fmt.Errorf("count peers: %w", err)
		}
		if count >= maxPersistedPeers {
			return nil
		}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal peer record: %w", err)
	}
	return ps.db.Put(key, data)
}

// Load retrieves a single peer record.
func (ps *PeerStore) Load(addr string) (*PeerRecord, error) {
	data, err := ps.db.Get(peerKey(addr))
	if err != nil {
		return nil, fmt.Errorf("get peer record: %w", err)
	}
	var rec PeerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal peer record: %w", err)
	}
	return &rec, nil
}

// LoadAll returns every persisted peer record.
func (ps *PeerStore) LoadAll() ([]PeerRecord, error) {
	var records []PeerRecord
	err := ps.db.ForEach(nil, func(key, value []byte) error {
		var rec PeerRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate peer records: %w", err)
	}
	return records, nil
}

// Delete removes a peer record.
func (ps *PeerStore) Delete(addr string) error {
	return ps.db.Delete(peerKey(addr))
}

// PruneStale removes records whose last_seen is older than threshold.
func (ps *PeerStore) PruneStale(threshold time.Duration) (int, error) {
	cutoff := time.Now().Add(-threshold).Unix()
	var toDelete [][]byte
	err := ps.db.ForEach(nil, func(key, value []byte) error {
		var rec PeerRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			k := make([]byte, len(key))
			copy(k, key)
			toDelete = append(toDelete, k)
			return nil
		}
		if rec.LastSeen < cutoff {
			k := make([]byte, len(key))
			copy(k, key)
			toDelete = append(toDelete, k)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("iterate for prune: %w", err)
	}
	for _, k := range toDelete {
		if err := ps.db.Delete(k); err != nil {
			return 0, fmt.Errorf("delete stale peer: %w", err)
		}
	}
	return len(toDelete), nil
}

// Count returns the number of persisted peer records.
func (ps *PeerStore) Count() (int, error) {
	count := 0
	err := ps.db.ForEach(nil, func(key, value []byte) error {
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count peers: %w", err)
	}
	return count, nil
}
