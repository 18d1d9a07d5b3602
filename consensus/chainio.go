// Copyright (c) 2015-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package consensus

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/umbranet/umbrad/database"
	"github.com/umbranet/umbrad/dbaccess"
	"github.com/umbranet/umbrad/util"
	"github.com/umbranet/umbrad/util/chainhash"
	"github.com/umbranet/umbrad/wire"
)

const (
	// blockHdrSize is the maximum size of a block header. This is simply
	// the constant from wire and is only provided here for convenience
	// since wire.MaxBlockHeaderPayload is quite long.
	blockHdrSize = wire.MaxBlockHeaderPayload
)

// errNotInChain signifies that a block hash that is not known to the chain
// was requested.
type errNotInChain string

// Error implements the error interface.
func (e errNotInChain) Error() string {
	return string(e)
}

// isNotInChainErr returns whether or not the passed error is an
// errNotInChain error.
func isNotInChainErr(err error) bool {
	_, ok := err.(errNotInChain)
	return ok
}

// blockIndexKey generates the binary key for an entry in the block index
// bucket. The key is composed of the block height encoded as a big-endian
// 64-bit unsigned int followed by the 32 byte block hash. The big-endian
// height prefix guarantees that a cursor walk over the bucket visits every
// block before any of its descendants.
func blockIndexKey(blockHash *chainhash.Hash, blockHeight uint64) []byte {
	indexKey := make([]byte, chainhash.HashSize+8)
	binary.BigEndian.PutUint64(indexKey[0:8], blockHeight)
	copy(indexKey[8:chainhash.HashSize+8], blockHash[:])
	return indexKey
}

// serializeBlockNode serializes the given block node into a block index row:
// the block header followed by the node's status byte.
func serializeBlockNode(node *blockNode) ([]byte, error) {
	w := bytes.NewBuffer(make([]byte, 0, blockHdrSize+1))
	header := node.Header()
	err := header.Serialize(w)
	if err != nil {
		return nil, err
	}

	err = w.WriteByte(byte(node.status))
	if err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}

// deserializeBlockNode parses a value in the block index bucket and returns
// its block node. The parent is resolved through the in-memory index, so
// rows must be processed in height order with every parent before its
// children.
func (chain *Chain) deserializeBlockNode(blockRow []byte) (*blockNode, error) {
	buffer := bytes.NewReader(blockRow)

	var header wire.BlockHeader
	err := header.Deserialize(buffer)
	if err != nil {
		return nil, err
	}

	// Because genesis doesn't have a parent, its header references the
	// zero hash.
	var parent *blockNode
	if !header.IsGenesis() {
		parent = chain.index.LookupNode(&header.PrevBlock)
		if parent == nil {
			return nil, AssertError(fmt.Sprintf("deserializeBlockNode: could "+
				"not find parent %s for block %s", header.PrevBlock,
				header.BlockHash()))
		}
	}

	node := newBlockNode(&header, parent)

	statusByte, err := buffer.ReadByte()
	if err != nil {
		return nil, err
	}
	node.status = blockStatus(statusByte)

	return node, nil
}

// chainState stores the selected chain state. The serialized accumulator is
// carried along with the tip so that a restart restores the ledger state
// bit for bit without replaying blocks.
type chainState struct {
	TipHash          *chainhash.Hash
	TipHeight        uint64
	AccumulatorState []byte
}

// serializeChainState returns the serialization of the chain state.
// This is data to be stored under the chain tip key.
func serializeChainState(state *chainState) ([]byte, error) {
	return json.Marshal(state)
}

// deserializeChainState deserializes the passed serialized chain state.
// This is data stored under the chain tip key and is updated after every
// block is connected to or disconnected from the selected chain.
func deserializeChainState(serializedData []byte) (*chainState, error) {
	var state *chainState
	err := json.Unmarshal(serializedData, &state)
	if err != nil {
		return nil, errors.Wrap(err, "corrupt chain state")
	}

	return state, nil
}

// saveChainState stores the current selected tip and accumulator state
// within the given database transaction.
func (chain *Chain) saveChainState(dbContext *dbaccess.TxContext, tip *blockNode) error {
	state := &chainState{
		TipHash:          &tip.hash,
		TipHeight:        tip.height,
		AccumulatorState: chain.ledger.serialize(),
	}
	serializedState, err := serializeChainState(state)
	if err != nil {
		return err
	}
	return dbaccess.StoreChainTip(dbContext, serializedState)
}

// createChainState initializes both the database and the chain state to the
// genesis block. It must only be called on an uninitialized database. The
// genesis block is the one block that is never validated; the chain it
// anchors is defined by it.
func (chain *Chain) createChainState() error {
	genesisBlock := util.NewBlock(chain.params.GenesisBlock)
	header := &genesisBlock.MsgBlock().Header
	node := newBlockNode(header, nil)
	node.status = statusDataStored | statusValid
	node.seenOrder = chain.nextSeenOrder()

	chain.index.AddNode(node)
	chain.genesis = node
	chain.addTip(node)
	chain.setSelectedTip(node)
	chain.blockCount++

	// Fold the genesis commitments into the empty accumulator. The roots
	// on both sides of the transition are needed for the genesis delta.
	ledger := newLedgerState()
	parentRoot := ledger.root()
	for _, tx := range genesisBlock.Transactions() {
		for _, commitment := range tx.MsgTx().Commitments {
			ledger.accumulator.Add(commitment[:])
		}
	}
	root := ledger.root()

	delta := newStateDelta(node, genesisBlock.MsgBlock().Transactions,
		&parentRoot, &root)
	serializedDelta, err := serializeStateDelta(delta)
	if err != nil {
		return err
	}

	dbTx, err := chain.databaseContext.NewTx()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()

	err = dbaccess.StoreBlock(dbTx, genesisBlock)
	if err != nil {
		return err
	}

	for _, serialNumber := range delta.AddedSerialNumbers {
		err = dbaccess.AddSerialNumber(dbTx, serialNumber[:])
		if err != nil {
			return err
		}
	}

	err = dbaccess.StoreAccumulatorSnapshot(dbTx, node.height, &root)
	if err != nil {
		return err
	}

	err = dbaccess.StoreStateDelta(dbTx, &node.hash, serializedDelta)
	if err != nil {
		return err
	}

	err = chain.index.flushToDB(dbTx)
	if err != nil {
		return err
	}

	chain.ledger = ledger
	err = chain.saveChainState(dbTx, node)
	if err != nil {
		return err
	}

	err = dbTx.Commit()
	if err != nil {
		return err
	}
	chain.index.clearDirtyEntries()

	return nil
}

// initChainState attempts to load and initialize the chain state from the
// database. When the db does not yet contain any chain state, both it and
// the chain state are initialized to the genesis block.
func (chain *Chain) initChainState() error {
	// Determine the state of the database. If the chain tip key is
	// missing the database has never been initialized.
	serializedState, err := dbaccess.FetchChainTip(chain.databaseContext)
	if database.IsNotFoundError(err) {
		return chain.createChainState()
	}
	if err != nil {
		return err
	}

	state, err := deserializeChainState(serializedState)
	if err != nil {
		return err
	}

	// Load all of the headers from the block index and construct the
	// in-memory index accordingly. The big-endian height prefix of the
	// index keys guarantees parents are met before their children.
	log.Infof("Loading block index...")

	cursor, err := dbaccess.BlockIndexCursor(chain.databaseContext)
	if err != nil {
		return err
	}
	defer cursor.Close()

	var lastNode *blockNode
	for ok := cursor.First(); ok; ok = cursor.Next() {
		blockRow, err := cursor.Value()
		if err != nil {
			return err
		}

		node, err := chain.deserializeBlockNode(blockRow)
		if err != nil {
			return err
		}

		if lastNode == nil {
			if !node.hash.IsEqual(chain.params.GenesisHash) {
				return AssertError(fmt.Sprintf("initChainState: expected "+
					"first entry in block index to be genesis block, "+
					"found %s", node.hash))
			}
			chain.genesis = node
		} else if node.parent == nil {
			return AssertError(fmt.Sprintf("initChainState: could not "+
				"find any parent for block %s", node.hash))
		}

		node.seenOrder = chain.nextSeenOrder()
		chain.index.addNode(node)
		chain.addTip(node)
		if !node.status.KnownInvalid() {
			chain.blockCount++
		}

		lastNode = node
	}

	if lastNode == nil {
		return AssertError("initChainState: chain state exists but the " +
			"block index is empty")
	}

	// Apply the stored selected tip.
	tip := chain.index.LookupNode(state.TipHash)
	if tip == nil {
		return AssertError(fmt.Sprintf("initChainState: cannot find "+
			"selected tip %s in block index", state.TipHash))
	}
	if tip.height != state.TipHeight {
		return AssertError(fmt.Sprintf("initChainState: selected tip %s "+
			"has height %d, chain state says %d", state.TipHash,
			tip.height, state.TipHeight))
	}
	chain.selectedTip = tip

	// Restore the commitment accumulator exactly as it was serialized and
	// cross-check it against the snapshot stored for the tip height.
	ledger, err := deserializeLedgerState(state.AccumulatorState)
	if err != nil {
		return err
	}
	root := ledger.root()

	snapshotRoot, err := dbaccess.FetchAccumulatorRootByHeight(
		chain.databaseContext, tip.height)
	if err != nil {
		return err
	}
	if !root.IsEqual(snapshotRoot) {
		return AssertError(fmt.Sprintf("initChainState: accumulator root %s "+
			"does not match the stored snapshot %s for height %d", root,
			snapshotRoot, tip.height))
	}
	chain.ledger = ledger

	return nil
}
