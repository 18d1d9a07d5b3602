// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package consensus

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/umbranet/umbrad/dbaccess"
	"github.com/umbranet/umbrad/logger"
	"github.com/umbranet/umbrad/util"
	"github.com/umbranet/umbrad/util/panics"
)

// chainUpdates represents the updates made to the selected chain after
// a block has been accepted.
type chainUpdates struct {
	detachedBlocks []*util.Block
	attachedBlocks []*util.Block
}

// betterCandidate returns whether node should replace the current selected
// tip. Strictly more cumulative work wins, and a tie goes to the tip that
// was seen first.
func (chain *Chain) betterCandidate(node *blockNode) bool {
	if cmp := node.workSum.Cmp(chain.selectedTip.workSum); cmp != 0 {
		return cmp > 0
	}
	return node.seenOrder < chain.selectedTip.seenOrder
}

// connectToChain handles connecting the passed block to the chain while
// respecting proper chain selection. In the typical case the new block
// simply extends the selected chain. However, it may also be extending
// (or creating) a side chain which may or may not end up becoming the
// selected chain depending on which fork cumulatively has the most proof
// of work. It returns whether the block ended up on the selected chain
// (either due to extending it or causing a reorganization), along with
// the blocks that were attached and detached in the process.
//
// This function MUST be called with the chain state lock held (for writes).
func (chain *Chain) connectToChain(node *blockNode, block *util.Block) (bool, *chainUpdates, error) {
	// The block becomes a tip of its branch no matter how connection
	// goes. Tips that never make it onto the selected chain linger until
	// they fall behind the prune depth.
	chain.addTip(node)

	// We are extending the selected chain with a new block. This is the
	// most common case.
	if node.parent == chain.selectedTip {
		// Perform several checks to verify the block can be connected
		// to the selected chain without violating any rules before
		// actually connecting the block.
		err := chain.checkConnectBlock(node, block)
		if err != nil {
			return false, nil, err
		}

		_, err = chain.applyBlock(node, block)
		if err != nil {
			return false, nil, err
		}

		chain.setSelectedTip(node)
		chain.pruneStaleTips()

		return true, &chainUpdates{attachedBlocks: []*util.Block{block}}, nil
	}

	// We're extending (or creating) a side chain, but the cumulative work
	// for this new side chain is not enough to make it the selected chain.
	if !chain.betterCandidate(node) {
		// Log information about how the block is forking the chain.
		forkNode := findForkPoint(chain.selectedTip, node)
		if forkNode == node.parent {
			log.Infof("FORK: Block %v forks the chain at height %d"+
				"/block %v, but does not cause a reorganize",
				node.hash, forkNode.height, forkNode.hash)
		} else {
			log.Infof("EXTEND FORK: Block %v extends a side chain "+
				"which forks the chain at height %d/block %v",
				node.hash, forkNode.height, forkNode.hash)
		}
		return false, &chainUpdates{}, nil
	}

	// We're extending (or creating) a side chain and the cumulative work
	// for this new side chain is more than the old selected chain. This
	// in turn has become the selected chain.
	detachedNodes, attachedNodes := chain.getReorganizeNodes(node)

	// Reorganize the chain.
	log.Infof("REORGANIZE: Block %v is causing a reorganize.", node.hash)
	chainUpdates, err := chain.reorganizeChain(detachedNodes, attachedNodes)
	if err != nil {
		return false, nil, err
	}
	return true, chainUpdates, nil
}

// getReorganizeNodes finds the fork point between the selected chain and
// the branch the passed node sits on, and returns the chain of nodes to
// detach and the chain of nodes to attach in order to reorganize the chain
// so that the passed node is the new selected tip. The detached nodes run
// from the current selected tip down towards the fork point, and the
// attached nodes run from the fork point up to the passed node.
//
// This function MUST be called with the chain state lock held (for reads).
func (chain *Chain) getReorganizeNodes(node *blockNode) (detachedNodes, attachedNodes []*blockNode) {
	forkNode := findForkPoint(chain.selectedTip, node)

	for n := chain.selectedTip; n != forkNode; n = n.parent {
		detachedNodes = append(detachedNodes, n)
	}

	for n := node; n != forkNode; n = n.parent {
		attachedNodes = append(attachedNodes, n)
	}
	// The attached nodes were collected tip first, so reverse them to
	// run from the fork point up to the branch tip.
	for i, j := 0, len(attachedNodes)-1; i < j; i, j = i+1, j-1 {
		attachedNodes[i], attachedNodes[j] = attachedNodes[j], attachedNodes[i]
	}

	return detachedNodes, attachedNodes
}

// reorganizeChain reorganizes the chain by detaching the nodes in the
// detachedNodes list and attaching the nodes in the attachedNodes list. It
// expects that the lists are already in the correct order and are in sync
// with the end of the selected chain. Specifically, nodes that are being
// detached must be in reverse order (think of popping them off the end of
// the chain) and nodes that are being attached must be in forwards order
// (think pushing them onto the end of the chain).
//
// A reorganize is all or nothing. If any block on the new branch fails to
// connect, every change made so far is undone with the retained state
// deltas and the old selected tip is restored before the error is
// returned. A storage failure part way through cannot be undone reliably,
// so it shuts the process down instead of leaving a half applied
// reorganize behind.
//
// This function MUST be called with the chain state lock held (for writes).
func (chain *Chain) reorganizeChain(detachedNodes, attachedNodes []*blockNode) (*chainUpdates, error) {
	onEnd := logger.LogAndMeasureExecutionTime(log, "reorganizeChain")
	defer onEnd()

	oldTip := chain.selectedTip
	forkNode := oldTip
	if len(detachedNodes) > 0 {
		forkNode = detachedNodes[len(detachedNodes)-1].parent
	}

	// Fetch every block and retained state delta the reorganize touches
	// up front, so that a missing row is discovered before any state has
	// changed.
	detachedBlocks := make([]*util.Block, 0, len(detachedNodes))
	detachedDeltas := make([]*StateDelta, 0, len(detachedNodes))
	for _, node := range detachedNodes {
		block, err := chain.blockByNode(node)
		if err != nil {
			return nil, err
		}
		detachedBlocks = append(detachedBlocks, block)

		deltaBytes, err := dbaccess.FetchStateDelta(chain.databaseContext, &node.hash)
		if err != nil {
			return nil, err
		}
		delta, err := deserializeStateDelta(deltaBytes)
		if err != nil {
			return nil, err
		}
		detachedDeltas = append(detachedDeltas, delta)
	}
	attachedBlocks := make([]*util.Block, 0, len(attachedNodes))
	for _, node := range attachedNodes {
		block, err := chain.blockByNode(node)
		if err != nil {
			return nil, err
		}
		attachedBlocks = append(attachedBlocks, block)
	}

	// Detach the old end of the selected chain, from the old tip back
	// down to the fork point.
	for _, delta := range detachedDeltas {
		err := chain.rollbackDelta(delta)
		if err != nil {
			panics.Exit(log, fmt.Sprintf("failed to roll back block %s "+
				"during a reorganize: %+v", delta.BlockHash, err))
		}
	}

	// Attach the new branch, from the fork point up to its tip.
	appliedDeltas := make([]*StateDelta, 0, len(attachedNodes))
	for i, node := range attachedNodes {
		block := attachedBlocks[i]

		err := chain.checkConnectBlock(node, block)
		if err == nil {
			var delta *StateDelta
			delta, err = chain.applyBlock(node, block)
			if err == nil {
				appliedDeltas = append(appliedDeltas, delta)
				continue
			}
		}
		if !errors.As(err, &RuleError{}) && !errors.As(err, &ConflictError{}) {
			panics.Exit(log, fmt.Sprintf("failed to connect block %s "+
				"during a reorganize: %+v", node.hash, err))
		}

		// The new branch contains an invalid block. Mark it and
		// everything built on top of it, then put the old selected
		// chain back exactly as it was.
		log.Warnf("Block %s failed to connect during a reorganize, "+
			"restoring the previous selected tip %s: %s",
			node.hash, oldTip.hash, err)
		chain.index.SetStatusFlags(node, statusValidateFailed)
		for _, descendant := range attachedNodes[i+1:] {
			chain.index.SetStatusFlags(descendant, statusInvalidAncestor)
		}
		chain.flushIndexOrShutDown()
		chain.undoReorganize(detachedDeltas, appliedDeltas)
		return nil, err
	}

	// The reorganize is done. Update the selected tip and drop any tips
	// the new tip has left too far behind.
	chain.setSelectedTip(attachedNodes[len(attachedNodes)-1])
	chain.pruneStaleTips()

	// Log the point where the chain forked and old and new selected
	// chain tips.
	log.Infof("REORGANIZE: Chain forks at %v (height %v)",
		forkNode.hash, forkNode.height)
	log.Infof("REORGANIZE: Old selected chain tip was %v (height %v)",
		oldTip.hash, oldTip.height)
	log.Infof("REORGANIZE: New selected chain tip is %v (height %v)",
		chain.selectedTip.hash, chain.selectedTip.height)

	return &chainUpdates{
		detachedBlocks: detachedBlocks,
		attachedBlocks: attachedBlocks,
	}, nil
}

// undoReorganize puts the ledger back on the old selected chain after a
// block on the new branch failed to connect part way through a
// reorganize. The partially attached branch is rolled back off newest
// first, and the previously detached blocks are reapplied from their
// retained deltas, fork point first, leaving the old tip as the stored
// chain tip. Failing to restore the old chain leaves the ledger in a
// state that matches neither branch, so any error here shuts the process
// down.
//
// This function MUST be called with the chain state lock held (for writes).
func (chain *Chain) undoReorganize(detachedDeltas, appliedDeltas []*StateDelta) {
	for i := len(appliedDeltas) - 1; i >= 0; i-- {
		err := chain.rollbackDelta(appliedDeltas[i])
		if err != nil {
			panics.Exit(log, fmt.Sprintf("failed to roll back block %s "+
				"while undoing a reorganize: %+v", appliedDeltas[i].BlockHash, err))
		}
	}

	// detachedDeltas runs from the old tip down to the fork point, so
	// walk it backwards to rebuild the old chain bottom up.
	for i := len(detachedDeltas) - 1; i >= 0; i-- {
		err := chain.applyDelta(detachedDeltas[i])
		if err != nil {
			panics.Exit(log, fmt.Sprintf("failed to reapply block %s "+
				"while undoing a reorganize: %+v", detachedDeltas[i].BlockHash, err))
		}
	}
}

// flushIndexOrShutDown writes pending block status changes to the
// database and shuts the process down on failure. It is only used in the
// middle of a reorganize, where the block index and the stored chain
// state must not be allowed to drift apart.
func (chain *Chain) flushIndexOrShutDown() {
	dbTx, err := chain.databaseContext.NewTx()
	if err != nil {
		panics.Exit(log, fmt.Sprintf("failed to open a database "+
			"transaction during a reorganize: %+v", err))
	}
	defer dbTx.RollbackUnlessClosed()

	err = chain.index.flushToDB(dbTx)
	if err == nil {
		err = dbTx.Commit()
	}
	if err != nil {
		panics.Exit(log, fmt.Sprintf("failed to flush the block index "+
			"during a reorganize: %+v", err))
	}
}
