// Package storage provides database abstractions backing the rebuildable
// tx/address lookup index. It is not the system of record
// for chain data — that is the literal chain.log/chain.snapshot framing
// in log.go and snapshot.go.
package storage

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix.
	// The callback receives a copy of the key; the value must not be
	// retained or modified after fn returns.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Batch accumulates writes for atomic, lower-overhead commit.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
}

// Batcher is implemented by DBs that can produce a Batch.
type Batcher interface {
	NewBatch() Batch
}
