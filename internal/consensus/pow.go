package consensus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/globalcoyn/globalcoyn/pkg/block"
	"github.com/globalcoyn/globalcoyn/pkg/crypto"
)

// PoW errors.
var (
	ErrInsufficientWork = errors.New("hash does not meet difficulty target")
	ErrZeroDifficulty   = errors.New("difficulty_bits must be > 0")
	ErrBadDifficulty    = errors.New("block difficulty_bits does not match expected")
)

// PoW implements proof-of-work consensus over the compact difficulty_bits
// encoding. The engine holds no mutable chain state; the
// chain manager supplies the expected difficulty per height through
// DifficultyFn.
type PoW struct {
	InitialBits uint32 // Genesis difficulty_bits, used when DifficultyFn is nil.

	// DifficultyFn computes the expected difficulty_bits for a new block
	// at height. Set by chain.Open from chain history. If nil,
	// Prepare uses InitialBits unconditionally.
	DifficultyFn func(height uint64) uint32

	// Window and TargetBlockTime override the default retarget schedule
	//; zero values fall back to
	// the mainnet defaults.
	Window          uint64
	TargetBlockTime int64

	// Threads controls the number of parallel mining goroutines searching
	// strided partitions of the nonce space. 0 or 1 = single-threaded.
	Threads int

	// Progress, if set, is invoked by the single-threaded sealing loop
	// with the cumulative nonce attempts made so far, at the same cadence
	// as the cancellation check, so a caller can derive a live hashrate
	// without the loop suspending to report it. The parallel search
	// (Threads > 1) does not invoke it.
	Progress func(attempts uint64)
}

// NewPoW creates a new PoW engine seeded with the genesis difficulty_bits.
func NewPoW(initialBits uint32) (*PoW, error) {
	if initialBits == 0 {
		return nil, ErrZeroDifficulty
	}
	return &PoW{InitialBits: initialBits}, nil
}

// VerifyHeader checks that the header hash meets the target implied by
// its own difficulty_bits field.
func (p *PoW) VerifyHeader(header *block.Header) error {
	if header.DifficultyBits == 0 {
		return ErrZeroDifficulty
	}
	t := TargetFromBits(header.DifficultyBits)
	hash := crypto.DoubleHash(header.SigningBytes())
	hashInt := new(big.Int).SetBytes(hash[:])
	if hashInt.Cmp(t) > 0 {
		return ErrInsufficientWork
	}
	return nil
}

// Prepare sets the candidate header's difficulty_bits for mining.
func (p *PoW) Prepare(header *block.Header) error {
	if p.DifficultyFn != nil {
		header.DifficultyBits = p.DifficultyFn(header.Index)
	} else {
		header.DifficultyBits = p.InitialBits
	}
	return nil
}

// Seal mines the block by iterating the nonce until the header hash
// meets the target encoded in difficulty_bits.
func (p *PoW) Seal(blk *block.Block) error {
	return p.SealWithCancel(context.Background(), blk)
}

// SealWithCancel mines with cancellation support; the mining loop checks
// ctx at least every 65536 nonces. If Threads > 1, mining runs in
// parallel goroutines with strided nonce partitioning.
func (p *PoW) SealWithCancel(ctx context.Context, blk *block.Block) error {
	if blk == nil || blk.Header == nil {
		return fmt.Errorf("nil block or header")
	}
	if blk.Header.DifficultyBits == 0 {
		return ErrZeroDifficulty
	}

	if p.Threads <= 1 {
		return p.sealSingle(ctx, blk)
	}
	return p.sealParallel(ctx, blk, p.Threads)
}

// headerPrefixSuffix splits the header's signing bytes around the nonce
// field so a mining loop can hash prefix||nonce||suffix per attempt
// without reassembling the unchanging parts each time.
func headerPrefixSuffix(h *block.Header) (prefix, suffix []byte) {
	prefix = make([]byte, 0, 80)
	prefix = binary.LittleEndian.AppendUint64(prefix, h.Index)
	prefix = append(prefix, h.PreviousHash[:]...)
	prefix = binary.LittleEndian.AppendUint64(prefix, h.Timestamp)
	prefix = append(prefix, h.MerkleRoot[:]...)

	suffix = binary.LittleEndian.AppendUint32(nil, h.DifficultyBits)
	return prefix, suffix
}

func (p *PoW) sealSingle(ctx context.Context, blk *block.Block) error {
	t := TargetFromBits(blk.Header.DifficultyBits)
	prefix, suffix := headerPrefixSuffix(blk.Header)

	buf := make([]byte, len(prefix)+8+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix)+8:], suffix)
	hashInt := new(big.Int)

	for nonce := uint64(0); ; nonce++ {
		if nonce&0xFFFF == 0 {
			if p.Progress != nil {
				p.Progress(nonce)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		binary.LittleEndian.PutUint64(buf[len(prefix):], nonce)
		hash := crypto.DoubleHash(buf)
		hashInt.SetBytes(hash[:])
		if hashInt.Cmp(t) <= 0 {
			blk.Header.Nonce = nonce
			return nil
		}
		if nonce == ^uint64(0) {
			return fmt.Errorf("nonce space exhausted")
		}
	}
}

func (p *PoW) sealParallel(ctx context.Context, blk *block.Block, threads int) error {
	t := TargetFromBits(blk.Header.DifficultyBits)
	prefix, suffix := headerPrefixSuffix(blk.Header)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		nonce uint64
		err   error
	}
	found := make(chan result, 1)

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		startNonce := uint64(i)
		stride := uint64(threads)
		go func() {
			defer wg.Done()
			buf := make([]byte, len(prefix)+8+len(suffix))
			copy(buf, prefix)
			copy(buf[len(prefix)+8:], suffix)
			hashInt := new(big.Int)

			for nonce := startNonce; ; nonce += stride {
				if (nonce/stride)&0xFFFF == 0 && nonce > 0 {
					select {
					case <-ctx.Done():
						return
					default:
					}
				}

				binary.LittleEndian.PutUint64(buf[len(prefix):], nonce)
				hash := crypto.DoubleHash(buf)
				hashInt.SetBytes(hash[:])
				if hashInt.Cmp(t) <= 0 {
					select {
					case found <- result{nonce: nonce}:
					default:
					}
					cancel()
					return
				}

				if nonce > ^uint64(0)-stride {
					select {
					case found <- result{err: fmt.Errorf("nonce space exhausted")}:
					default:
					}
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(found)
	}()

	select {
	case r, ok := <-found:
		if !ok {
			return fmt.Errorf("nonce space exhausted")
		}
		if r.err != nil {
			return r.err
		}
		blk.Header.Nonce = r.nonce
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// VerifyDifficulty checks that a header's difficulty_bits matches the
// value the engine prescribes at its height.
func (p *PoW) VerifyDifficulty(header *block.Header, prevBits uint32, getTimestamp func(uint64) (uint64, error)) error {
	window := p.Window
	if window == 0 {
		window = DifficultyAdjustmentInterval
	}
	targetBlockTime := p.TargetBlockTime
	if targetBlockTime == 0 {
		targetBlockTime = TargetBlockTime
	}
	expected := ExpectedDifficultyBitsWindow(header.Index, prevBits, p.InitialBits, window, targetBlockTime, getTimestamp)
	if header.DifficultyBits != expected {
		return fmt.Errorf("%w: height %d has bits %x, want %x",
			ErrBadDifficulty, header.Index, header.DifficultyBits, expected)
	}
	return nil
}
