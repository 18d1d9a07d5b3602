// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package consensus

import (
	"time"

	"github.com/umbranet/umbrad/util"
	"github.com/umbranet/umbrad/wire"
)

// blockVersion is the version written into the headers of blocks assembled
// by this node.
const blockVersion = 1

// nextBlockTime returns the timestamp for a block building on the passed
// parent node. It is the current time, except when the past median time of
// the parent is later, since a block timestamp must come strictly after
// that median. The result is truncated to a second boundary because block
// timestamps do not support a precision greater than one second.
//
// This function MUST be called with the chain state lock held (for reads).
func (chain *Chain) nextBlockTime(parent *blockNode) time.Time {
	newTimestamp := time.Unix(chain.timeSource.Now().Unix(), 0)
	minTimestamp := parent.PastMedianTime().Add(time.Second)
	if newTimestamp.Before(minTimestamp) {
		newTimestamp = minTimestamp
	}
	return newTimestamp
}

// NextBlockTime returns the timestamp a block building on the selected tip
// should carry. It is the current time, except when the past median time of
// the tip is later.
//
// This function is safe for concurrent access.
func (chain *Chain) NextBlockTime() time.Time {
	chain.chainLock.RLock()
	defer chain.chainLock.RUnlock()
	return chain.nextBlockTime(chain.selectedTip)
}

// BlockForMining assembles a block carrying the passed transactions on top
// of the selected tip, ready to be solved, and returns it along with the
// height it connects at. The header commits to the merkle root of the
// transactions and to the accumulator root that results from connecting
// them, and carries the difficulty required of the next block. The proof is
// left empty for the solver to fill in.
//
// The assembled block goes stale as soon as the selected tip changes, so
// callers should watch for chain updates and request a fresh one.
//
// This function is safe for concurrent access.
func (chain *Chain) BlockForMining(transactions []*util.Tx) (*wire.MsgBlock, uint64) {
	chain.chainLock.RLock()
	defer chain.chainLock.RUnlock()

	// Finalizing normalizes the accumulator in place, so project the root
	// on a private copy of the ledger.
	projected := chain.ledger.clone()
	for _, tx := range transactions {
		for _, commitment := range tx.MsgTx().Commitments {
			projected.accumulator.Add(commitment[:])
		}
	}

	header := &wire.BlockHeader{
		Version:         blockVersion,
		PrevBlock:       chain.selectedTip.hash,
		MerkleRoot:      CalcMerkleRoot(transactions),
		AccumulatorRoot: projected.root(),
		Timestamp:       chain.nextBlockTime(chain.selectedTip),
		Bits:            chain.requiredDifficulty(chain.selectedTip),
	}

	msgBlock := wire.NewMsgBlock(header)
	for _, tx := range transactions {
		msgBlock.AddTransaction(tx.MsgTx())
	}
	return msgBlock, chain.selectedTip.height + 1
}
