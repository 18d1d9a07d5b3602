// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package consensus

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/umbranet/umbrad/dbaccess"
	"github.com/umbranet/umbrad/util"
)

// lookupParentNode returns the block node the given block builds on. An
// unknown parent or a parent that is known to be invalid rejects the block.
func lookupParentNode(block *util.Block, chain *Chain) (*blockNode, error) {
	header := &block.MsgBlock().Header
	parentHash := &header.PrevBlock

	node := chain.index.LookupNode(parentHash)
	if node == nil {
		str := fmt.Sprintf("parent block %s is unknown", parentHash)
		return nil, ruleError(ErrMissingParent, str)
	} else if chain.index.NodeStatus(node).KnownInvalid() {
		str := fmt.Sprintf("parent block %s is known to be invalid", parentHash)
		return nil, ruleError(ErrInvalidAncestorBlock, str)
	}

	return node, nil
}

func (chain *Chain) addNodeToIndexWithInvalidAncestor(block *util.Block) error {
	blockHeader := &block.MsgBlock().Header

	// The parent is known but invalid, otherwise the block would have
	// been rejected as missing its parent instead of landing here.
	parent := chain.index.LookupNode(&blockHeader.PrevBlock)
	newNode := newBlockNode(blockHeader, parent)
	newNode.status = statusInvalidAncestor
	newNode.seenOrder = chain.nextSeenOrder()
	chain.index.AddNode(newNode)
	chain.addTip(newNode)

	dbTx, err := chain.databaseContext.NewTx()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()
	err = chain.index.flushToDB(dbTx)
	if err != nil {
		return err
	}
	return dbTx.Commit()
}

// maybeAcceptBlock potentially accepts a block into the block chain. It
// performs several validation checks which depend on its position within
// the block chain before adding it. The returned bool reports whether the
// block ended up on the selected chain. The block is expected to have
// already gone through ProcessBlock before calling this function with it.
//
// The flags are also passed to checkBlockContext. See its documentation
// for how the flags modify its behavior.
//
// This function MUST be called with the chain state lock held (for writes).
func (chain *Chain) maybeAcceptBlock(block *util.Block, flags BehaviorFlags) (bool, error) {
	parent, err := lookupParentNode(block, chain)
	if err != nil {
		var ruleErr RuleError
		if ok := errors.As(err, &ruleErr); ok && ruleErr.ErrorCode == ErrInvalidAncestorBlock {
			err := chain.addNodeToIndexWithInvalidAncestor(block)
			if err != nil {
				return false, err
			}
		}
		return false, err
	}

	// The block must pass all of the validation rules which depend on the
	// position of the block within the block chain.
	err = chain.checkBlockContext(block, parent, flags)
	if err != nil {
		return false, err
	}

	// The block must not double spend against the selected chain, no
	// matter which branch it extends.
	err = chain.checkNoCanonicalDoubleSpends(block)
	if err != nil {
		return false, err
	}

	// Create a new block node for the block and add it to the node index.
	newNode := newBlockNode(&block.MsgBlock().Header, parent)
	newNode.status = statusDataStored
	newNode.seenOrder = chain.nextSeenOrder()
	chain.index.AddNode(newNode)

	// Insert the block into the database if it's not already there. Even
	// though it is possible the block will ultimately fail to connect, it
	// has already passed all proof-of-work and validity tests which means
	// it would be prohibitively expensive for an attacker to fill up the
	// disk with a bunch of blocks that fail to connect. This is necessary
	// since it allows block download to be decoupled from the much more
	// expensive connection logic. It also has some other nice properties
	// such as making blocks that never become part of the selected chain
	// or blocks that fail to connect available for further analysis.
	dbTx, err := chain.databaseContext.NewTx()
	if err != nil {
		return false, err
	}
	defer dbTx.RollbackUnlessClosed()
	blockExists, err := dbaccess.HasBlock(dbTx, block.Hash())
	if err != nil {
		return false, err
	}
	if !blockExists {
		err := dbaccess.StoreBlock(dbTx, block)
		if err != nil {
			return false, err
		}
	}
	err = chain.index.flushToDB(dbTx)
	if err != nil {
		return false, err
	}
	err = dbTx.Commit()
	if err != nil {
		return false, err
	}

	block.SetHeight(int64(newNode.height))

	// Connect the block to the chain, which may reorganize the selected
	// chain to the block's branch.
	isMainChain, chainUpdates, err := chain.connectToChain(newNode, block)
	if err != nil {
		return false, chain.handleProcessBlockError(err, newNode)
	}
	chain.blockCount++

	chain.notifyBlockAccepted(block, isMainChain, chainUpdates)

	return isMainChain, nil
}

func (chain *Chain) handleProcessBlockError(err error, newNode *blockNode) error {
	if errors.As(err, &RuleError{}) || errors.As(err, &ConflictError{}) {
		if errors.As(err, &ConflictError{}) {
			// Validation is supposed to catch conflicts before apply,
			// so one surfacing here is a consistency bug rather than a
			// bad block from the network.
			log.Criticalf("Ledger conflict while connecting block %s: %s",
				newNode.hash, err)
		}

		// A reorganize that failed part way in has already marked the
		// node through the failing ancestor, so don't relabel it.
		if !chain.index.NodeStatus(newNode).KnownInvalid() {
			chain.index.SetStatusFlags(newNode, statusValidateFailed)
		}

		dbTx, err := chain.databaseContext.NewTx()
		if err != nil {
			return err
		}
		defer dbTx.RollbackUnlessClosed()

		err = chain.index.flushToDB(dbTx)
		if err != nil {
			return err
		}
		err = dbTx.Commit()
		if err != nil {
			return err
		}
	}
	return err
}

// notifyBlockAccepted notifies the caller that the new block was accepted
// into the block chain. The caller would typically want to react by
// relaying the inventory to other peers.
//
// This function assumes that the chain state lock is currently held.
func (chain *Chain) notifyBlockAccepted(block *util.Block, isMainChain bool, chainUpdates *chainUpdates) {
	chain.chainLock.Unlock()
	defer chain.chainLock.Lock()

	chain.sendNotification(NTBlockAccepted, &BlockAcceptedNotificationData{
		Block:       block,
		IsMainChain: isMainChain,
	})
	if len(chainUpdates.detachedBlocks) > 0 {
		chain.sendNotification(NTChainReorganized, &ChainReorganizedNotificationData{
			DetachedBlocks: chainUpdates.detachedBlocks,
			AttachedBlocks: chainUpdates.attachedBlocks,
		})
	}
}
