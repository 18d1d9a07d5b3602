// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"time"

	"github.com/umbranet/umbrad/chaincfg"
	"github.com/umbranet/umbrad/consensus"
	"github.com/umbranet/umbrad/util"
	"github.com/umbranet/umbrad/util/chainhash"
	"github.com/umbranet/umbrad/wire"
)

// TxDesc is a descriptor about a transaction in a transaction source along
// with additional metadata.
type TxDesc struct {
	// Tx is the transaction associated with the entry.
	Tx *util.Tx

	// Added is the time when the entry was added to the source pool.
	Added time.Time

	// Fee is the public value the transaction releases, declared by its
	// value balance.
	Fee util.Amount
}

// TxSource represents a source of transactions to consider for inclusion in
// new blocks.
//
// The interface contract requires that all of these methods are safe for
// concurrent access with respect to the source.
type TxSource interface {
	// LastUpdated returns the last time a transaction was added to or
	// removed from the source pool.
	LastUpdated() time.Time

	// MiningDescs returns a slice of mining descriptors for all the
	// transactions in the source pool.
	MiningDescs() []*TxDesc

	// TransactionsForBlockTemplate returns the descriptors of the
	// transactions to place in the next block template, in the order
	// they should appear, such that the assembled block stays within the
	// passed maximum serialized size and spends no serial number twice.
	TransactionsForBlockTemplate(maxBlockSize uint64) []*TxDesc

	// HaveTransaction returns whether or not the passed transaction hash
	// exists in the source pool.
	HaveTransaction(txHash *chainhash.Hash) bool
}

// BlockTemplate houses a block that has yet to be solved along with
// additional details about the fee of each transaction in the block.
type BlockTemplate struct {
	// Block is a block that is ready to be solved by miners. Thus, it is
	// completely valid with the exception of satisfying the proof of
	// succinct work requirement.
	Block *wire.MsgBlock

	// Fees contains the declared value balance of each transaction in
	// the generated template, in the same order the transactions appear
	// in the block.
	Fees []util.Amount

	// Height is the height at which the block template connects to the
	// chain.
	Height uint64
}

// BlkTmplGenerator provides a type that can be used to generate block
// templates based on a given mining policy and source of transactions to
// choose from. It also houses additional state required in order to ensure
// the templates are built on top of the current chain and adhere to the
// consensus rules.
type BlkTmplGenerator struct {
	policy      *Policy
	chainParams *chaincfg.Params
	txSource    TxSource
	chain       *consensus.Chain
}

// NewBlkTmplGenerator returns a new block template generator for the given
// policy using transactions from the provided transaction source.
//
// The additional state-related fields are required in order to ensure the
// templates are built on top of the current chain and adhere to the
// consensus rules.
func NewBlkTmplGenerator(policy *Policy, chainParams *chaincfg.Params,
	txSource TxSource, chain *consensus.Chain) *BlkTmplGenerator {

	return &BlkTmplGenerator{
		policy:      policy,
		chainParams: chainParams,
		txSource:    txSource,
		chain:       chain,
	}
}

// NewBlockTemplate returns a new block template that is ready to be solved
// using the transactions from the associated transaction source pool.
//
// The transactions selected are those the source considers ready for the
// next block, in the deterministic order the source yields them, bounded so
// the assembled block does not exceed the smaller of the policy block size
// and the maximum block size the network accepts. Blocks in this chain
// carry no coinbase transaction, so a template with no eligible
// transactions is an empty, still perfectly mineable, block.
//
// The header of the assembled block commits to the merkle root of the
// selected transactions and to the accumulator root that results from
// connecting them on top of the selected tip, and carries the required
// difficulty and a timestamp later than the past median time of the tip.
// The proof is left empty for the solver.
func (g *BlkTmplGenerator) NewBlockTemplate() *BlockTemplate {
	maxBlockSize := g.policy.BlockMaxSize
	if maxBlockSize == 0 || maxBlockSize > g.chainParams.MaxBlockSize {
		maxBlockSize = g.chainParams.MaxBlockSize
	}

	sourceTxns := g.txSource.TransactionsForBlockTemplate(maxBlockSize)
	selectedTxs := make([]*util.Tx, 0, len(sourceTxns))
	fees := make([]util.Amount, 0, len(sourceTxns))
	totalFees := util.Amount(0)
	for _, txDesc := range sourceTxns {
		selectedTxs = append(selectedTxs, txDesc.Tx)
		fees = append(fees, txDesc.Fee)
		totalFees += txDesc.Fee
	}

	msgBlock, nextBlockHeight := g.chain.BlockForMining(selectedTxs)

	log.Debugf("Created new block template (%d transactions, %d in fees, "+
		"%d bytes, target difficulty %064x)", len(msgBlock.Transactions),
		totalFees, msgBlock.SerializeSize(),
		util.CompactToBig(msgBlock.Header.Bits))

	return &BlockTemplate{
		Block:  msgBlock,
		Fees:   fees,
		Height: nextBlockHeight,
	}
}

// UpdateBlockTime updates the timestamp in the header of the passed block
// to the current time while taking into account the past median time of the
// last several blocks to ensure the new time is after that time per the
// consensus rules. The difficulty does not depend on the block time, so the
// header bits stay as they are.
func (g *BlkTmplGenerator) UpdateBlockTime(msgBlock *wire.MsgBlock) {
	msgBlock.Header.Timestamp = g.chain.NextBlockTime()
}

// TxSource returns the associated transaction source.
//
// This function is safe for concurrent access.
func (g *BlkTmplGenerator) TxSource() TxSource {
	return g.txSource
}
