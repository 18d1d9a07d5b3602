package consensus

import (
	"bytes"
	"io"

	"github.com/pkg/errors"

	"github.com/umbranet/umbrad/util/binaryserializer"
	"github.com/umbranet/umbrad/util/chainhash"
	"github.com/umbranet/umbrad/wire"
)

// StateDelta captures everything needed to reverse the ledger mutations of a
// single connected block: the serial numbers it marked spent, the
// commitments it folded into the accumulator, and the accumulator roots on
// both sides of the transition. One delta is persisted per connected block
// and is the unit a reorganization rolls the chain back by.
type StateDelta struct {
	// BlockHash is the hash of the block this delta belongs to.
	BlockHash chainhash.Hash

	// Height is the chain height the block was connected at.
	Height uint64

	// ParentAccumulatorRoot is the accumulator root before the block was
	// connected. Rolling the delta back must restore exactly this root.
	ParentAccumulatorRoot chainhash.Hash

	// AccumulatorRoot is the accumulator root after the block was
	// connected.
	AccumulatorRoot chainhash.Hash

	// AddedSerialNumbers are the serial numbers the block marked spent, in
	// block order.
	AddedSerialNumbers []wire.SerialNumber

	// AddedCommitments are the commitments the block added to the
	// accumulator, in block order.
	AddedCommitments []wire.Commitment
}

// newStateDelta collects the ledger mutations of the passed block into a
// delta. The accumulator roots are supplied by the caller since only the
// ledger state knows them.
func newStateDelta(node *blockNode, transactions []*wire.MsgTx, parentRoot, newRoot *chainhash.Hash) *StateDelta {
	delta := &StateDelta{
		BlockHash:             node.hash,
		Height:                node.height,
		ParentAccumulatorRoot: *parentRoot,
		AccumulatorRoot:       *newRoot,
	}
	for _, tx := range transactions {
		delta.AddedSerialNumbers = append(delta.AddedSerialNumbers, tx.SerialNumbers...)
		delta.AddedCommitments = append(delta.AddedCommitments, tx.Commitments...)
	}
	return delta
}

// serializeStateDelta returns the serialization of the state delta for
// storage in the state deltas bucket.
func serializeStateDelta(delta *StateDelta) ([]byte, error) {
	w := &bytes.Buffer{}

	_, err := w.Write(delta.BlockHash[:])
	if err != nil {
		return nil, err
	}
	err = binaryserializer.PutUint64(w, delta.Height)
	if err != nil {
		return nil, err
	}
	_, err = w.Write(delta.ParentAccumulatorRoot[:])
	if err != nil {
		return nil, err
	}
	_, err = w.Write(delta.AccumulatorRoot[:])
	if err != nil {
		return nil, err
	}

	err = wire.WriteVarInt(w, 0, uint64(len(delta.AddedSerialNumbers)))
	if err != nil {
		return nil, err
	}
	for i := range delta.AddedSerialNumbers {
		_, err = w.Write(delta.AddedSerialNumbers[i][:])
		if err != nil {
			return nil, err
		}
	}

	err = wire.WriteVarInt(w, 0, uint64(len(delta.AddedCommitments)))
	if err != nil {
		return nil, err
	}
	for i := range delta.AddedCommitments {
		_, err = w.Write(delta.AddedCommitments[i][:])
		if err != nil {
			return nil, err
		}
	}

	return w.Bytes(), nil
}

// deserializeStateDelta parses a value from the state deltas bucket back
// into a StateDelta.
func deserializeStateDelta(serializedDelta []byte) (*StateDelta, error) {
	r := bytes.NewReader(serializedDelta)
	delta := &StateDelta{}

	_, err := io.ReadFull(r, delta.BlockHash[:])
	if err != nil {
		return nil, errors.Wrap(err, "corrupt state delta")
	}
	delta.Height, err = binaryserializer.Uint64(r)
	if err != nil {
		return nil, errors.Wrap(err, "corrupt state delta")
	}
	_, err = io.ReadFull(r, delta.ParentAccumulatorRoot[:])
	if err != nil {
		return nil, errors.Wrap(err, "corrupt state delta")
	}
	_, err = io.ReadFull(r, delta.AccumulatorRoot[:])
	if err != nil {
		return nil, errors.Wrap(err, "corrupt state delta")
	}

	serialNumberCount, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, errors.Wrap(err, "corrupt state delta")
	}
	if serialNumberCount > 0 {
		delta.AddedSerialNumbers = make([]wire.SerialNumber, serialNumberCount)
	}
	for i := uint64(0); i < serialNumberCount; i++ {
		_, err = io.ReadFull(r, delta.AddedSerialNumbers[i][:])
		if err != nil {
			return nil, errors.Wrap(err, "corrupt state delta")
		}
	}

	commitmentCount, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, errors.Wrap(err, "corrupt state delta")
	}
	if commitmentCount > 0 {
		delta.AddedCommitments = make([]wire.Commitment, commitmentCount)
	}
	for i := uint64(0); i < commitmentCount; i++ {
		_, err = io.ReadFull(r, delta.AddedCommitments[i][:])
		if err != nil {
			return nil, errors.Wrap(err, "corrupt state delta")
		}
	}

	return delta, nil
}
