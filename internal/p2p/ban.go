package p2p

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/globalcoyn/globalcoyn/internal/log"
	"github.com/globalcoyn/globalcoyn/internal/storage"
)

// Ban thresholds, durations, and offense penalties.
const (
	BanThreshold = 100
	BanDuration  = 24 * time.Hour

	PenaltyInvalidBlock  = 34 // three invalid blocks reach BanThreshold
	PenaltyInvalidTx     = 20
	PenaltyHandshakeFail = 100
	PenaltyDialFailure   = 20
)

// banNamespace isolates BanStore's keys within a database shared with
// PeerStore and chain.BlockStore.
var banNamespace = []byte("ban/")

// BanRecord is a persisted ban entry, keyed by remote host (no port).
type BanRecord struct {
	Addr      string `json:"addr"`
	Reason    string `json:"reason"`
	Score     int    `json:"score"`
	BannedAt  int64  `json:"banned_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// IsExpired reports whether the ban's expiry has passed.
func (r *BanRecord) IsExpired() bool {
	return r.ExpiresAt > 0 && time.Now().Unix() >= r.ExpiresAt
}

// BanStore persists ban records, keyed by remote host, in a database
// namespace isolated from PeerStore's and BlockStore's by storage.PrefixDB.
type BanStore struct {
	db storage.DB
}

// NewBanStore creates a BanStore backed by db, namespaced under
// banNamespace so db can be shared with other stores.
func NewBanStore(db storage.DB) *BanStore {
	return &BanStore{db: storage.NewPrefixDB(db, banNamespace)}
}

func banKey(addr string) []byte { return []byte(addr) }

func (bs *BanStore) Get(addr string) (*BanRecord, error) {
	data, err := bs.db.Get(banKey(addr))
	if err != nil {
		return nil, err
	}
	var rec BanRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal ban record: %w", err)
	}
	return &rec, nil
}

func (bs *BanStore) Put(rec *BanRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal ban record: %w", err)
	}
	return bs.db.Put(banKey(rec.Addr), data)
}

func (bs *BanStore) Delete(addr string) error {
	return bs.db.Delete(banKey(addr))
}

func (bs *BanStore) ForEach(fn func(*BanRecord) error) error {
	return bs.db.ForEach(nil, func(key, value []byte) error {
		var rec BanRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil
		}
		return fn(&rec)
	})
}

// PruneExpired deletes every ban record whose expiry has passed.
func (bs *BanStore) PruneExpired() (int, error) {
	now := time.Now().Unix()
	var toDelete [][]byte
	err := bs.db.ForEach(nil, func(key, value []byte) error {
		var rec BanRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil
		}
		if rec.ExpiresAt > 0 && now >= rec.ExpiresAt {
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
		if err := bs.db.Delete(k); err != nil {
			return 0, fmt.Errorf("delete expired ban: %w", err)
		}
	}
	return len(toDelete), nil
}

// BanManager tracks per-peer offense scores and bans, keyed by remote
// host (no port).
type BanManager struct {
	mu     sync.RWMutex
	scores map[string]int
	bans   map[string]*BanRecord
	store  *BanStore

	disconnect func(addr string)
}

// NewBanManager creates a BanManager. store may be nil to disable
// persistence (tests). disconnect, if set, is called when a peer crosses
// the ban threshold.
func NewBanManager(store *BanStore, disconnect func(addr string)) *BanManager {
	return &BanManager{
		scores:     make(map[string]int),
		bans:       make(map[string]*BanRecord),
		store:      store,
		disconnect: disconnect,
	}
}

// LoadBans restores persisted, non-expired bans into memory.
func (bm *BanManager) LoadBans() {
	if bm.store == nil {
		return
	}
	bm.store.PruneExpired()
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.store.ForEach(func(rec *BanRecord) error {
		if !rec.IsExpired() {
			bm.bans[rec.Addr] = rec
		}
		return nil
	})
}

// RecordOffense adds penalty to addr's score. Crossing BanThreshold bans
// the peer for BanDuration and disconnects it.
func (bm *BanManager) RecordOffense(addr string, penalty int, reason string) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if rec, ok := bm.bans[addr]; ok && !rec.IsExpired() {
		return
	}

	bm.scores[addr] += penalty
	if bm.scores[addr] < BanThreshold {
		return
	}

	now := time.Now()
	rec := &BanRecord{
		Addr:      addr,
		Reason:    reason,
		Score:     bm.scores[addr],
		BannedAt:  now.Unix(),
		ExpiresAt: now.Add(BanDuration).Unix(),
	}
	bm.bans[addr] = rec
	delete(bm.scores, addr)

	if bm.store != nil {
		bm.store.Put(rec)
	}

	log.P2P.Warn().
		Str("peer", addr).
		Str("reason", reason).
		Int("score", rec.Score).
		Msg("peer banned")

	if bm.disconnect != nil {
		go bm.disconnect(addr)
	}
}

// IsBanned reports whether addr is currently banned, pruning the record
// if its ban has expired.
func (bm *BanManager) IsBanned(addr string) bool {
	bm.mu.RLock()
	rec, ok := bm.bans[addr]
	bm.mu.RUnlock()
	if !ok {
		return false
	}
	if rec.IsExpired() {
		bm.mu.Lock()
		delete(bm.bans, addr)
		bm.mu.Unlock()
		if bm.store != nil {
			bm.store.Delete(addr)
		}
		return false
	}
	return true
}

// Unban manually clears a ban and any accumulated score.
func (bm *BanManager) Unban(addr string) {
	bm.mu.Lock()
	delete(bm.bans, addr)
	delete(bm.scores, addr)
	bm.mu.Unlock()
	if bm.store != nil {
		bm.store.Delete(addr)
	}
}

// BanList snapshots every currently-active ban.
func (bm *BanManager) BanList() []BanRecord {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	list := make([]BanRecord, 0, len(bm.bans))
	for _, rec := range bm.bans {
		if !rec.IsExpired() {
			list = append(list, *rec)
		}
	}
	return list
}

// RunPruneLoop periodically clears expired bans until done is closed.
func (bm *BanManager) RunPruneLoop(done <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			bm.pruneExpired()
		}
	}
}

func (bm *BanManager) pruneExpired() {
	bm.mu.Lock()
	var expired []string
	for addr, rec := range bm.bans {
		if rec.IsExpired() {
			expired = append(expired, addr)
		}
	}
	for _, addr := range expired {
		delete(bm.bans, addr)
	}
	bm.mu.Unlock()

	if bm.store != nil {
		bm.store.PruneExpired()
	}
}
