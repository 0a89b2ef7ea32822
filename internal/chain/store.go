package chain

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/globalcoyn/globalcoyn/internal/storage"
	"github.com/globalcoyn/globalcoyn/pkg/block"
	"github.com/globalcoyn/globalcoyn/pkg/types"
)

// Key prefixes for the rebuildable lookup index. This index
// is not the system of record — chain.log and chain.snapshot are — so
// every key here can be reconstructed by replaying the log from genesis.
var (
	prefixBlock  = []byte("b/") // b/<hash(32)> -> block JSON
	prefixHeight = []byte("h/") // h/<height(8)> -> hash(32)
	prefixTx     = []byte("x/") // x/<txhash(32)> -> height(8) + blockHash(32)
	prefixAddr   = []byte("a/") // a/<address(20)>/<height(8)>/<txindex(4)> -> txhash(32)
	prefixUndo   = []byte("d/") // d/<hash(32)> -> undo JSON
)

// BlockStore is the badger-backed secondary index over blocks, keyed by
// hash and height, with derived transaction and address lookups.
type BlockStore struct {
	db storage.DB
}

// NewBlockStore creates a block store backed by the given database.
func NewBlockStore(db storage.DB) *BlockStore {
	return &BlockStore{db: db}
}

// undoRecord captures the balance deltas a block applied, in the order
// applied, so Reorg can revert a branch without replaying from genesis.
type undoRecord struct {
	Deltas []addrDelta `json:"deltas"`
}

type addrDelta struct {
	Address types.Address `json:"address"`
	Delta   int64         `json:"delta"`
}

// PutBlock stores a block and indexes it by hash, height, tx hash, and
// the addresses its transactions touch. When the underlying db supports
// batching (storage.Batcher), every key this block touches commits as a
// single atomic write; otherwise the puts apply sequentially.
func (bs *BlockStore) PutBlock(blk *block.Block) error {
	data, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("block marshal: %w", err)
	}

	put := bs.db.Put
	var batch storage.Batch
	if batcher, ok := bs.db.(storage.Batcher); ok {
		batch = batcher.NewBatch()
		put = batch.Put
	}

	hash := blk.Hash()
	if err := put(blockKey(hash), data); err != nil {
		return fmt.Errorf("block put: %w", err)
	}
	if err := put(heightKey(blk.Header.Index), hash[:]); err != nil {
		return fmt.Errorf("height index put: %w", err)
	}

	for i, t := range blk.Transactions {
		txHash := t.TxHash()
		val := make([]byte, 8+types.HashSize)
		binary.BigEndian.PutUint64(val[:8], blk.Header.Index)
		copy(val[8:], hash[:])
		if err := put(txKey(txHash), val); err != nil {
			return fmt.Errorf("tx index put %s: %w", txHash, err)
		}

		if err := bs.indexAddress(put, t.Recipient, blk.Header.Index, uint32(i), txHash); err != nil {
			return err
		}
		if !t.IsCoinbase() {
			if senderAddr, err := t.SenderAddress(); err == nil {
				if err := bs.indexAddress(put, senderAddr, blk.Header.Index, uint32(i), txHash); err != nil {
					return err
				}
			}
		}
	}

	if batch != nil {
		if err := batch.Commit(); err != nil {
			return fmt.Errorf("block batch commit: %w", err)
		}
	}
	return nil
}

func (bs *BlockStore) indexAddress(put func(key, value []byte) error, addr types.Address, height uint64, txIndex uint32, txHash types.Hash) error {
	return put(addrKey(addr, height, txIndex), txHash[:])
}

// GetBlock retrieves a block by its hash.
func (bs *BlockStore) GetBlock(hash types.Hash) (*block.Block, error) {
	data, err := bs.db.Get(blockKey(hash))
	if err != nil {
		return nil, fmt.Errorf("block get: %w", err)
	}
	var blk block.Block
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, fmt.Errorf("block unmarshal: %w", err)
	}
	return &blk, nil
}

// GetBlockByHeight retrieves a block by its height.
func (bs *BlockStore) GetBlockByHeight(height uint64) (*block.Block, error) {
	hashBytes, err := bs.db.Get(heightKey(height))
	if err != nil {
		return nil, fmt.Errorf("height index get: %w", err)
	}
	if len(hashBytes) != types.HashSize {
		return nil, fmt.Errorf("corrupt height index: got %d bytes, want %d", len(hashBytes), types.HashSize)
	}
	var hash types.Hash
	copy(hash[:], hashBytes)
	return bs.GetBlock(hash)
}

// HasBlock checks if a block exists by hash.
func (bs *BlockStore) HasBlock(hash types.Hash) (bool, error) {
	return bs.db.Has(blockKey(hash))
}

// GetTxLocation returns the block height and hash that contain the given transaction.
func (bs *BlockStore) GetTxLocation(txHash types.Hash) (uint64, types.Hash, error) {
	data, err := bs.db.Get(txKey(txHash))
	if err != nil {
		return 0, types.Hash{}, fmt.Errorf("tx index get: %w", err)
	}
	if len(data) != 8+types.HashSize {
		return 0, types.Hash{}, fmt.Errorf("corrupt tx index: got %d bytes, want %d", len(data), 8+types.HashSize)
	}
	height := binary.BigEndian.Uint64(data[:8])
	var blockHash types.Hash
	copy(blockHash[:], data[8:])
	return height, blockHash, nil
}

// History returns every transaction hash that credited or debited addr,
// in chain order, by scanning the address index.
func (bs *BlockStore) History(addr types.Address) ([]types.Hash, error) {
	var hashes []types.Hash
	prefix := make([]byte, len(prefixAddr)+types.AddressSize)
	copy(prefix, prefixAddr)
	copy(prefix[len(prefixAddr):], addr[:])

	err := bs.db.ForEach(prefix, func(_, value []byte) error {
		if len(value) != types.HashSize {
			return nil
		}
		var h types.Hash
		copy(h[:], value)
		hashes = append(hashes, h)
		return nil
	})
	return hashes, err
}

func blockKey(hash types.Hash) []byte {
	key := make([]byte, len(prefixBlock)+types.HashSize)
	copy(key, prefixBlock)
	copy(key[len(prefixBlock):], hash[:])
	return key
}

func heightKey(height uint64) []byte {
	key := make([]byte, len(prefixHeight)+8)
	copy(key, prefixHeight)
	binary.BigEndian.PutUint64(key[len(prefixHeight):], height)
	return key
}

func txKey(hash types.Hash) []byte {
	key := make([]byte, len(prefixTx)+types.HashSize)
	copy(key, prefixTx)
	copy(key[len(prefixTx):], hash[:])
	return key
}

func addrKey(addr types.Address, height uint64, txIndex uint32) []byte {
	key := make([]byte, 0, len(prefixAddr)+types.AddressSize+12)
	key = append(key, prefixAddr...)
	key = append(key, addr[:]...)
	key = binary.BigEndian.AppendUint64(key, height)
	key = binary.BigEndian.AppendUint32(key, txIndex)
	return key
}

func undoKey(hash types.Hash) []byte {
	key := make([]byte, len(prefixUndo)+types.HashSize)
	copy(key, prefixUndo)
	copy(key[len(prefixUndo):], hash[:])
	return key
}

// PutUndo stores the balance-delta undo record for a block.
func (bs *BlockStore) PutUndo(hash types.Hash, u *undoRecord) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("undo marshal: %w", err)
	}
	return bs.db.Put(undoKey(hash), data)
}

// GetUndo retrieves the balance-delta undo record for a block.
func (bs *BlockStore) GetUndo(hash types.Hash) (*undoRecord, error) {
	data, err := bs.db.Get(undoKey(hash))
	if err != nil {
		return nil, fmt.Errorf("get undo: %w", err)
	}
	var u undoRecord
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("undo unmarshal: %w", err)
	}
	return &u, nil
}

// DeleteUndo removes the undo record for a block once it can no longer
// be reverted (buried past any plausible reorg depth).
func (bs *BlockStore) DeleteUndo(hash types.Hash) error {
	return bs.db.Delete(undoKey(hash))
}
