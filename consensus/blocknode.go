package consensus

import (
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/umbranet/umbrad/util"
	"github.com/umbranet/umbrad/util/chainhash"
	"github.com/umbranet/umbrad/wire"
)

// medianTimeBlocks is the number of previous blocks which should be
// used to calculate the median time used to validate block timestamps.
const medianTimeBlocks = 11

// blockStatus is a bit field representing the validation state of the block.
type blockStatus byte

const (
	// statusDataStored indicates that the block's payload is stored on disk.
	statusDataStored blockStatus = 1 << iota

	// statusValid indicates that the block has been fully validated.
	statusValid

	// statusValidateFailed indicates that the block has failed validation.
	statusValidateFailed

	// statusInvalidAncestor indicates that one of the block's ancestors has
	// has failed validation, thus the block is also invalid.
	statusInvalidAncestor

	// statusNone indicates that the block has no validation state at all, which
	// indicates that the block probably hasn't been fully processed yet.
	statusNone blockStatus = 0
)

// HaveData returns whether the full block data is stored in the database. This
// will return false for a block node where only the header is downloaded or
// stored.
func (status blockStatus) HaveData() bool {
	return status&statusDataStored != 0
}

// KnownValid returns whether the block is known to be valid. This will return
// false for a valid block that has not been fully validated yet.
func (status blockStatus) KnownValid() bool {
	return status&statusValid != 0
}

// KnownInvalid returns whether the block is known to be invalid. This may be
// because the block itself failed validation or any of its ancestors is
// invalid. This will return false for invalid blocks that have not been proven
// invalid yet.
func (status blockStatus) KnownInvalid() bool {
	return status&(statusValidateFailed|statusInvalidAncestor) != 0
}

// blockNode represents a block within the block chain and is primarily used to
// aid in selecting the chain with the most cumulative proven work. The chain is
// stored into the block database.
type blockNode struct {
	// NOTE: Additions, deletions, or modifications to the order of the
	// definitions in this struct should not be changed without considering
	// how it affects alignment on 64-bit platforms. The current order is
	// specifically crafted to result in minimal padding. There will be
	// hundreds of thousands of these in memory, so a few extra bytes of
	// padding adds up.

	// parent is the parent block for this node.
	parent *blockNode

	// hash is the double sha 256 of the block.
	hash chainhash.Hash

	// workSum is the total amount of work in the chain up to and including
	// this node.
	workSum *big.Int

	// height is the position in the block chain.
	height uint64

	// seenOrder is the sequence in which this node was admitted to the
	// index. It breaks cumulative work ties in favor of the block that was
	// seen first.
	seenOrder uint64

	// Some fields from block headers to aid in reconstructing headers
	// from memory. These must be treated as immutable and are intentionally
	// ordered to avoid padding on 64-bit platforms.
	version         int32
	bits            uint32
	nonce           uint64
	timestamp       int64
	merkleRoot      chainhash.Hash
	accumulatorRoot chainhash.Hash
	proof           []byte

	// status is a bitfield representing the validation state of the block.
	// The status field, unlike the other fields, may be written to, so it
	// should only be accessed using the concurrent-safe blockIndex.
	status blockStatus
}

// initBlockNode initializes a block node from the given header and parent
// node. The workSum is calculated based on the parent, or set to the value of
// the work in the header when no parent is provided.
//
// This function is NOT safe for concurrent access. It must only be called when
// initially creating a node.
func initBlockNode(node *blockNode, blockHeader *wire.BlockHeader, parent *blockNode) {
	*node = blockNode{
		hash:            blockHeader.BlockHash(),
		workSum:         util.CalcWork(blockHeader.Bits),
		version:         blockHeader.Version,
		bits:            blockHeader.Bits,
		nonce:           blockHeader.Nonce,
		timestamp:       blockHeader.Timestamp.Unix(),
		merkleRoot:      blockHeader.MerkleRoot,
		accumulatorRoot: blockHeader.AccumulatorRoot,
		proof:           blockHeader.Proof,
	}
	if parent != nil {
		node.parent = parent
		node.height = parent.height + 1
		node.workSum = node.workSum.Add(parent.workSum, node.workSum)
	}
}

// newBlockNode returns a new block node for the given block header and parent
// node. The workSum of the node is calculated based on the parent, or set to
// the value of the work in the header when no parent is provided.
//
// This function is NOT safe for concurrent access.
func newBlockNode(blockHeader *wire.BlockHeader, parent *blockNode) *blockNode {
	var node blockNode
	initBlockNode(&node, blockHeader, parent)
	return &node
}

// Header constructs a block header from the node and returns it.
//
// This function is safe for concurrent access.
func (node *blockNode) Header() *wire.BlockHeader {
	// No lock is needed because all accessed fields are immutable.
	prevBlock := &chainhash.Hash{}
	if node.parent != nil {
		prevBlock = &node.parent.hash
	}
	return &wire.BlockHeader{
		Version:         node.version,
		PrevBlock:       *prevBlock,
		MerkleRoot:      node.merkleRoot,
		AccumulatorRoot: node.accumulatorRoot,
		Timestamp:       time.Unix(node.timestamp, 0),
		Bits:            node.bits,
		Nonce:           node.nonce,
		Proof:           node.proof,
	}
}

// Ancestor returns the ancestor block node at the provided height by following
// the chain backwards from this node. The returned block will be nil when a
// height is requested that is after the height of the passed node.
//
// This function is safe for concurrent access.
func (node *blockNode) Ancestor(height uint64) *blockNode {
	if height > node.height {
		return nil
	}

	n := node
	for ; n != nil && n.height != height; n = n.parent {
		// Intentionally left blank
	}

	return n
}

// RelativeAncestor returns the ancestor block node a relative 'distance'
// blocks before this node. This is equivalent to calling Ancestor with the
// node's height minus the provided distance. The returned block will be nil
// when the distance reaches past the genesis block.
//
// This function is safe for concurrent access.
func (node *blockNode) RelativeAncestor(distance uint64) *blockNode {
	if distance > node.height {
		return nil
	}
	return node.Ancestor(node.height - distance)
}

// PastMedianTime returns the median time of the previous few blocks
// prior to, and including, the block node.
//
// This function is safe for concurrent access.
func (node *blockNode) PastMedianTime() time.Time {
	// Create a slice of the previous few block timestamps used to calculate
	// the median per the number defined by the constant medianTimeBlocks.
	// If there aren't enough blocks yet - pad remaining with the genesis
	// block's timestamp.
	timestamps := make([]int64, medianTimeBlocks)
	iterNode := node
	for i := 0; i < medianTimeBlocks; i++ {
		timestamps[i] = iterNode.timestamp

		if !iterNode.isGenesis() {
			iterNode = iterNode.parent
		}
	}

	sort.Sort(timeSorter(timestamps))

	// Note: This works when medianTimeBlocks is an odd number.
	// If it is to be changed to an even number - must take average of two
	// middle values. Since medianTimeBlocks is a constant, we can skip the
	// odd/even check.
	medianTimestamp := timestamps[medianTimeBlocks/2]
	return time.Unix(medianTimestamp, 0)
}

// isGenesis returns if the current block is the genesis block
func (node *blockNode) isGenesis() bool {
	return node.parent == nil
}

// String returns a string that contains the block hash and height.
func (node blockNode) String() string {
	return fmt.Sprintf("%s (%d)", node.hash, node.height)
}
