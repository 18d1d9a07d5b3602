// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package consensus

import (
	"fmt"
	"sync"
	"time"

	"github.com/umbranet/umbrad/chaincfg"
	"github.com/umbranet/umbrad/dbaccess"
	"github.com/umbranet/umbrad/util"
	"github.com/umbranet/umbrad/util/chainhash"
	"github.com/umbranet/umbrad/wire"
)

// Chain provides functions for working with the umbra block chain. It
// includes functionality such as rejecting duplicate blocks, ensuring
// blocks follow all rules, and selected chain tracking with
// reorganization.
type Chain struct {
	// The following fields are set when the instance is created and can't
	// be changed afterwards, so there is no need to protect them with a
	// separate mutex.
	params          *chaincfg.Params
	databaseContext *dbaccess.DatabaseContext
	timeSource      TimeSource
	proofVerifier   ProofVerifier

	// The following fields are calculated based upon the provided chain
	// parameters. They are also set when the instance is created and
	// can't be changed afterwards, so there is no need to protect them
	// with a separate mutex.
	targetTimePerBlock int64  // target time per block in seconds
	powMaxBits         uint32 // compact form of params.PowMax

	// chainLock protects concurrent access to the vast majority of the
	// fields in this struct below this point.
	chainLock sync.RWMutex

	// index houses the entire block index in memory. The block index is
	// a tree-shaped structure; the selected chain is the heaviest path
	// from a tip back to genesis.
	index *blockIndex

	// ledger tracks the commitment accumulator for the selected tip. It
	// is only ever replaced wholesale by apply and rollback, never
	// mutated in place.
	ledger *ledgerState

	genesis     *blockNode
	selectedTip *blockNode

	// tips is the set of leaf blocks of the index tree: blocks without
	// any children. The selected tip is always a member. Tips whose fork
	// point falls too far behind the selected tip are pruned from this
	// set; the blocks themselves stay stored.
	tips map[*blockNode]struct{}

	// seenCounter hands out arrival order stamps. Cumulative work ties
	// between competing tips are broken in favor of the block seen
	// first.
	seenCounter uint64

	// blockCount holds the number of blocks in the index that are not
	// known to be invalid.
	blockCount uint64

	// The notifications field stores a slice of callbacks to be executed
	// on certain blockchain events.
	notificationsLock sync.RWMutex
	notifications     []NotificationCallback
}

// Config is a descriptor which specifies the chain instance configuration.
type Config struct {
	// DatabaseContext defines the database which houses the blocks and
	// will be used to store all metadata created by this package such as
	// the spent serial number set and the accumulator snapshots.
	//
	// This field is required.
	DatabaseContext *dbaccess.DatabaseContext

	// ChainParams identifies which chain parameters the chain is
	// associated with.
	//
	// This field is required.
	ChainParams *chaincfg.Params

	// TimeSource defines the time source to use for things such as block
	// processing.
	//
	// This field is required.
	TimeSource TimeSource

	// ProofVerifier defines the verifier used for succinct work proofs
	// and zero-knowledge transfer proofs.
	//
	// This field is required.
	ProofVerifier ProofVerifier
}

// New returns a Chain instance using the provided configuration details.
func New(config *Config) (*Chain, error) {
	// Enforce required config fields.
	if config.DatabaseContext == nil {
		return nil, AssertError("Chain.New database context is nil")
	}
	if config.ChainParams == nil {
		return nil, AssertError("Chain.New chain parameters nil")
	}
	if config.TimeSource == nil {
		return nil, AssertError("Chain.New timesource is nil")
	}
	if config.ProofVerifier == nil {
		return nil, AssertError("Chain.New proof verifier is nil")
	}

	params := config.ChainParams
	chain := Chain{
		params:             params,
		databaseContext:    config.DatabaseContext,
		timeSource:         config.TimeSource,
		proofVerifier:      config.ProofVerifier,
		targetTimePerBlock: int64(params.TargetTimePerBlock / time.Second),
		powMaxBits:         util.BigToCompact(params.PowMax),
		index:              newBlockIndex(config.DatabaseContext),
		ledger:             newLedgerState(),
		tips:               make(map[*blockNode]struct{}),
	}

	// Initialize the chain state from the passed database. When the db
	// does not yet contain any chain state, both it and the chain state
	// are initialized to contain only the genesis block.
	err := chain.initChainState()
	if err != nil {
		return nil, err
	}

	selectedTip := chain.selectedTip
	log.Infof("Chain state (height %d, hash %s, work %d)",
		selectedTip.height, selectedTip.hash, selectedTip.workSum)

	return &chain, nil
}

// nextSeenOrder hands out the next arrival order stamp.
func (chain *Chain) nextSeenOrder() uint64 {
	chain.seenCounter++
	return chain.seenCounter
}

// addTip registers the given node as a tip and removes its parent from the
// tip set, since a block with a child is no longer a leaf.
func (chain *Chain) addTip(node *blockNode) {
	chain.tips[node] = struct{}{}
	if node.parent != nil {
		delete(chain.tips, node.parent)
	}
}

// setSelectedTip makes the given node the tip of the selected chain.
func (chain *Chain) setSelectedTip(node *blockNode) {
	chain.selectedTip = node
}

// findForkPoint returns the deepest common ancestor of the two given nodes,
// which is the block their branches diverge from. Both nodes must descend
// from the same genesis.
func findForkPoint(node1, node2 *blockNode) *blockNode {
	for node1.height > node2.height {
		node1 = node1.parent
	}
	for node2.height > node1.height {
		node2 = node2.parent
	}
	for node1 != node2 {
		node1 = node1.parent
		node2 = node2.parent
	}
	return node1
}

// pruneStaleTips discards tracked side chain tips whose fork point with the
// selected chain has fallen more than StaleTipPruneDepth blocks behind the
// selected tip. The blocks themselves stay stored and indexed; only the tip
// bookkeeping is bounded.
//
// This function MUST be called with the chain state lock held (for writes).
func (chain *Chain) pruneStaleTips() {
	for tip := range chain.tips {
		if tip == chain.selectedTip {
			continue
		}
		forkNode := findForkPoint(tip, chain.selectedTip)
		if forkNode.height+chain.params.StaleTipPruneDepth < chain.selectedTip.height {
			delete(chain.tips, tip)
			log.Debugf("Pruned stale tip %s (fork point height %d)",
				tip, forkNode.height)
		}
	}
}

// blockByNode loads the full block for the given node from the database and
// stamps it with the node's height.
func (chain *Chain) blockByNode(node *blockNode) (*util.Block, error) {
	block, err := dbaccess.FetchBlock(chain.databaseContext, &node.hash)
	if err != nil {
		return nil, err
	}
	block.SetHeight(int64(node.height))
	return block, nil
}

// Height returns the height of the selected chain tip.
//
// This function is safe for concurrent access.
func (chain *Chain) Height() uint64 {
	chain.chainLock.RLock()
	defer chain.chainLock.RUnlock()
	return chain.selectedTip.height
}

// SelectedTipHash returns the hash of the selected chain tip.
//
// This function is safe for concurrent access.
func (chain *Chain) SelectedTipHash() *chainhash.Hash {
	chain.chainLock.RLock()
	defer chain.chainLock.RUnlock()
	return &chain.selectedTip.hash
}

// SelectedTipHeader returns the header of the selected chain tip.
//
// This function is safe for concurrent access.
func (chain *Chain) SelectedTipHeader() *wire.BlockHeader {
	chain.chainLock.RLock()
	defer chain.chainLock.RUnlock()
	return chain.selectedTip.Header()
}

// BlockCount returns the number of valid blocks in the index.
//
// This function is safe for concurrent access.
func (chain *Chain) BlockCount() uint64 {
	chain.chainLock.RLock()
	defer chain.chainLock.RUnlock()
	return chain.blockCount
}

// HaveBlock returns whether or not the chain instance has the block
// represented by the passed hash. This includes side chain blocks and
// blocks that failed validation.
//
// This function is safe for concurrent access.
func (chain *Chain) HaveBlock(hash *chainhash.Hash) bool {
	return chain.index.HaveBlock(hash)
}

// BlockByHash returns the block with the given hash from the database.
// Side chain blocks are returned as well.
//
// This function is safe for concurrent access.
func (chain *Chain) BlockByHash(hash *chainhash.Hash) (*util.Block, error) {
	chain.chainLock.RLock()
	defer chain.chainLock.RUnlock()

	node := chain.index.LookupNode(hash)
	if node == nil || !node.status.HaveData() {
		str := fmt.Sprintf("block %s is not known", hash)
		return nil, errNotInChain(str)
	}
	return chain.blockByNode(node)
}

// PastMedianTime returns the past median time of the selected tip, which is
// the lower time bound a block building on it must exceed.
//
// This function is safe for concurrent access.
func (chain *Chain) PastMedianTime() time.Time {
	chain.chainLock.RLock()
	defer chain.chainLock.RUnlock()
	return chain.selectedTip.PastMedianTime()
}

// SelectedAccumulatorRoot returns the commitment accumulator root at the
// selected chain tip. Transactions built by this node reference it as
// their ledger digest.
//
// This function is safe for concurrent access.
func (chain *Chain) SelectedAccumulatorRoot() chainhash.Hash {
	chain.chainLock.RLock()
	defer chain.chainLock.RUnlock()

	// Finalizing normalizes the accumulator in place, so take a private
	// copy rather than finalizing the shared instance under a read lock.
	return chain.ledger.clone().root()
}

// ProjectedAccumulatorRoot returns the accumulator root that would result
// from connecting the given transactions on top of the selected tip. Block
// templates commit to this value in their headers.
//
// This function is safe for concurrent access.
func (chain *Chain) ProjectedAccumulatorRoot(transactions []*util.Tx) chainhash.Hash {
	chain.chainLock.RLock()
	defer chain.chainLock.RUnlock()

	projected := chain.ledger.clone()
	for _, tx := range transactions {
		for _, commitment := range tx.MsgTx().Commitments {
			projected.accumulator.Add(commitment[:])
		}
	}
	return projected.root()
}

// LedgerView returns a view of the committed ledger state for validating
// transactions that would connect at the next height of the selected
// chain.
//
// This function is safe for concurrent access.
func (chain *Chain) LedgerView() LedgerView {
	chain.chainLock.RLock()
	defer chain.chainLock.RUnlock()
	return &canonicalLedgerView{
		databaseContext: chain.databaseContext,
		height:          chain.selectedTip.height + 1,
	}
}
