package consensus

import (
	"fmt"

	"github.com/kaspanet/go-muhash"
	"github.com/pkg/errors"

	"github.com/umbranet/umbrad/dbaccess"
	"github.com/umbranet/umbrad/util"
	"github.com/umbranet/umbrad/util/chainhash"
)

// ledgerState tracks the record commitment accumulator for the selected
// chain tip. The accumulator is an unordered multiset digest, so adding the
// commitments of a block and later removing them restores the previous
// state bit for bit.
type ledgerState struct {
	accumulator *muhash.MuHash
}

func newLedgerState() *ledgerState {
	return &ledgerState{accumulator: muhash.NewMuHash()}
}

func (ledger *ledgerState) clone() *ledgerState {
	return &ledgerState{accumulator: ledger.accumulator.Clone()}
}

// root returns the canonical digest of the accumulator in its current state.
func (ledger *ledgerState) root() chainhash.Hash {
	return chainhash.Hash(ledger.accumulator.Finalize())
}

// serialize returns the full serialization of the accumulator. Unlike the
// root digest, the serialization carries the complete group element, so the
// accumulator restored from it accepts further additions and removals.
func (ledger *ledgerState) serialize() []byte {
	return ledger.accumulator.Serialize()[:]
}

// deserializeLedgerState restores an accumulator from its serialization.
func deserializeLedgerState(serializedData []byte) (*ledgerState, error) {
	if len(serializedData) != muhash.SerializedMuHashSize {
		return nil, errors.Errorf("serialized accumulator is %d bytes, want %d",
			len(serializedData), muhash.SerializedMuHashSize)
	}

	var serialized muhash.SerializedMuHash
	copy(serialized[:], serializedData)
	accumulator, err := muhash.DeserializeMuHash(&serialized)
	if err != nil {
		return nil, errors.Wrap(err, "corrupt accumulator state")
	}

	return &ledgerState{accumulator: accumulator}, nil
}

// verifyAndBuildLedger builds the accumulator state that results from
// connecting the given block and verifies it against the root the block
// header commits to. The current ledger state is not modified.
//
// The ledger checks have already run against the view the block was
// validated under, but the state may have advanced since then, so the
// serial numbers are re-checked before anything is mutated.
func (chain *Chain) verifyAndBuildLedger(node *blockNode, block *util.Block) (
	*ledgerState, *StateDelta, error) {

	transactions := block.MsgBlock().Transactions

	for _, tx := range transactions {
		for _, serialNumber := range tx.SerialNumbers {
			spent, err := dbaccess.HasSerialNumber(chain.databaseContext,
				serialNumber[:])
			if err != nil {
				return nil, nil, err
			}
			if spent {
				return nil, nil, conflictError(fmt.Sprintf("transaction %s "+
					"spends serial number %x which is already spent",
					tx.TxHash(), serialNumber))
			}
		}
	}

	parentRoot := chain.ledger.root()
	newLedger := chain.ledger.clone()
	for _, tx := range transactions {
		for _, commitment := range tx.Commitments {
			newLedger.accumulator.Add(commitment[:])
		}
	}
	root := newLedger.root()

	if !root.IsEqual(&node.accumulatorRoot) {
		str := fmt.Sprintf("block accumulator root of %s is not the expected "+
			"value of %s", node.accumulatorRoot, root)
		return nil, nil, ruleError(ErrBadAccumulatorRoot, str)
	}

	delta := newStateDelta(node, transactions, &parentRoot, &root)
	return newLedger, delta, nil
}

// applyBlock transitions the ledger state to include the given block. The
// accumulator root check and the serial number conflict re-check are the
// final gates; all other validation is expected to have run beforehand. The
// block's mutations are persisted together with the state delta that
// reverses them.
//
// This function MUST be called with the chain state lock held (for writes).
func (chain *Chain) applyBlock(node *blockNode, block *util.Block) (*StateDelta, error) {
	newLedger, delta, err := chain.verifyAndBuildLedger(node, block)
	if err != nil {
		return nil, err
	}

	chain.index.SetStatusFlags(node, statusValid)
	chain.ledger = newLedger

	err = chain.saveChangesFromBlock(node, delta)
	if err != nil {
		return nil, err
	}

	return delta, nil
}

// saveChangesFromBlock atomically persists the ledger mutations of a newly
// connected block: the spent serial numbers, the accumulator snapshot for
// the block's height, the state delta that reverses the transition, any
// dirty block index entries, and the updated chain state.
func (chain *Chain) saveChangesFromBlock(node *blockNode, delta *StateDelta) error {
	dbTx, err := chain.databaseContext.NewTx()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()

	for _, serialNumber := range delta.AddedSerialNumbers {
		err = dbaccess.AddSerialNumber(dbTx, serialNumber[:])
		if err != nil {
			return err
		}
	}

	err = dbaccess.StoreAccumulatorSnapshot(dbTx, delta.Height, &delta.AccumulatorRoot)
	if err != nil {
		return err
	}

	serializedDelta, err := serializeStateDelta(delta)
	if err != nil {
		return err
	}
	err = dbaccess.StoreStateDelta(dbTx, &delta.BlockHash, serializedDelta)
	if err != nil {
		return err
	}

	// Write any block status changes to DB before updating the chain state.
	err = chain.index.flushToDB(dbTx)
	if err != nil {
		return err
	}

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

// rollbackDelta reverses a connected block's ledger mutations using its
// retained state delta, restoring the accumulator to the exact state it had
// before the block connected. The node's validation status is not changed:
// a rolled back block is still a valid block.
//
// This function MUST be called with the chain state lock held (for writes).
func (chain *Chain) rollbackDelta(delta *StateDelta) error {
	node := chain.index.LookupNode(&delta.BlockHash)
	if node == nil {
		return AssertError(fmt.Sprintf("rollbackDelta: block %s is not in "+
			"the block index", delta.BlockHash))
	}
	if node.parent == nil {
		return AssertError("rollbackDelta: cannot roll back the genesis block")
	}

	newLedger := chain.ledger.clone()
	for _, commitment := range delta.AddedCommitments {
		newLedger.accumulator.Remove(commitment[:])
	}
	root := newLedger.root()

	// The restored root must be bit-identical to the one recorded when the
	// block connected. Anything else means the accumulator state is corrupt.
	if !root.IsEqual(&delta.ParentAccumulatorRoot) {
		return AssertError(fmt.Sprintf("rollbackDelta: rolling back block %s "+
			"produced accumulator root %s, want %s", delta.BlockHash, root,
			delta.ParentAccumulatorRoot))
	}

	chain.ledger = newLedger

	dbTx, err := chain.databaseContext.NewTx()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()

	for _, serialNumber := range delta.AddedSerialNumbers {
		err = dbaccess.RemoveSerialNumber(dbTx, serialNumber[:])
		if err != nil {
			return err
		}
	}

	err = dbaccess.RemoveAccumulatorSnapshot(dbTx, delta.Height, &delta.AccumulatorRoot)
	if err != nil {
		return err
	}

	// A block without commitments shares its root with its parent. The
	// root index must fall back to the parent height rather than forget a
	// root that is still canonical.
	if delta.AccumulatorRoot.IsEqual(&delta.ParentAccumulatorRoot) {
		err = dbaccess.StoreAccumulatorSnapshot(dbTx, delta.Height-1,
			&delta.AccumulatorRoot)
		if err != nil {
			return err
		}
	}

	err = dbaccess.RemoveStateDelta(dbTx, &delta.BlockHash)
	if err != nil {
		return err
	}

	err = chain.saveChainState(dbTx, node.parent)
	if err != nil {
		return err
	}

	return dbTx.Commit()
}

// applyDelta re-applies a previously rolled back block from its retained
// state delta. No validation runs; the delta records a transition that was
// fully validated when the block first connected.
//
// This function MUST be called with the chain state lock held (for writes).
func (chain *Chain) applyDelta(delta *StateDelta) error {
	node := chain.index.LookupNode(&delta.BlockHash)
	if node == nil {
		return AssertError(fmt.Sprintf("applyDelta: block %s is not in "+
			"the block index", delta.BlockHash))
	}

	newLedger := chain.ledger.clone()
	for _, commitment := range delta.AddedCommitments {
		newLedger.accumulator.Add(commitment[:])
	}
	root := newLedger.root()

	if !root.IsEqual(&delta.AccumulatorRoot) {
		return AssertError(fmt.Sprintf("applyDelta: applying block %s "+
			"produced accumulator root %s, want %s", delta.BlockHash, root,
			delta.AccumulatorRoot))
	}

	chain.ledger = newLedger

	return chain.saveChangesFromBlock(node, delta)
}
