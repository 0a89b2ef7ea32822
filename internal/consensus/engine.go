// Package consensus implements the difficulty/reward engine and the
// proof-of-work mining primitive.
package consensus

import "github.com/globalcoyn/globalcoyn/pkg/block"

// Engine is the interface the chain manager and miner use to prepare,
// seal, and verify proof-of-work block headers.
type Engine interface {
	VerifyHeader(header *block.Header) error
	Prepare(header *block.Header) error
	Seal(blk *block.Block) error
}
