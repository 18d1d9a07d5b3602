// Copyright (c) 2015-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package consensus

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/umbranet/umbrad/chaincfg"
	"github.com/umbranet/umbrad/util/chainhash"
	"github.com/umbranet/umbrad/wire"
)

// TestBlockIndexKey ensures index keys order strictly by height regardless
// of the hashes involved, which the index loading code relies on to meet
// every parent before its children.
func TestBlockIndexKey(t *testing.T) {
	var lowHash, highHash chainhash.Hash
	// The lexically larger hash goes with the lower height.
	lowHash[0] = 0xff
	highHash[0] = 0x00

	lowKey := blockIndexKey(&lowHash, 255)
	highKey := blockIndexKey(&highHash, 256)

	if len(lowKey) != chainhash.HashSize+8 {
		t.Fatalf("index key length: got %d, want %d", len(lowKey), chainhash.HashSize+8)
	}
	if bytes.Compare(lowKey, highKey) >= 0 {
		t.Fatal("index key of the lower height does not sort first")
	}
	if !bytes.Equal(lowKey[8:], lowHash[:]) {
		t.Fatal("index key does not end with the block hash")
	}
}

// TestChainStateSerialization checks the chain state round trip and the
// error on corrupt input.
func TestChainStateSerialization(t *testing.T) {
	tipHash := chainhash.Hash{1, 2, 3}
	state := &chainState{
		TipHash:          &tipHash,
		TipHeight:        42,
		AccumulatorState: []byte{0xde, 0xad, 0xbe, 0xef},
	}

	serialized, err := serializeChainState(state)
	if err != nil {
		t.Fatalf("serializeChainState: %v", err)
	}
	deserialized, err := deserializeChainState(serialized)
	if err != nil {
		t.Fatalf("deserializeChainState: %v", err)
	}

	if !deserialized.TipHash.IsEqual(&tipHash) {
		t.Errorf("tip hash: got %s, want %s", deserialized.TipHash, tipHash)
	}
	if deserialized.TipHeight != state.TipHeight {
		t.Errorf("tip height: got %d, want %d", deserialized.TipHeight, state.TipHeight)
	}
	if !bytes.Equal(deserialized.AccumulatorState, state.AccumulatorState) {
		t.Errorf("accumulator state: got %x, want %x",
			deserialized.AccumulatorState, state.AccumulatorState)
	}

	if _, err := deserializeChainState([]byte("not a chain state")); err == nil {
		t.Fatal("deserializing garbage did not error")
	}
}

// TestBlockNodeSerialization round trips a connected block's index row and
// checks every field the row carries.
func TestBlockNodeSerialization(t *testing.T) {
	chain, teardown, err := chainSetup("blocknodeserialization",
		Config{ChainParams: &chaincfg.SimNetParams})
	if err != nil {
		t.Fatalf("chainSetup: %v", err)
	}
	defer teardown()

	builder := newTestChainBuilder(t, chain)
	tx := builder.createTx(1, 1, chain.SelectedAccumulatorRoot())
	b1, _ := builder.addBlock(chain.params.GenesisHash, []*wire.MsgTx{tx})

	node := chain.index.LookupNode(b1.Hash())
	if node == nil {
		t.Fatal("connected block is missing from the block index")
	}

	serialized, err := serializeBlockNode(node)
	if err != nil {
		t.Fatalf("serializeBlockNode: %v", err)
	}
	restored, err := chain.deserializeBlockNode(serialized)
	if err != nil {
		t.Fatalf("deserializeBlockNode: %v", err)
	}

	if !restored.hash.IsEqual(&node.hash) {
		t.Errorf("hash: got %s, want %s", restored.hash, node.hash)
	}
	if restored.parent != node.parent {
		t.Error("restored node does not share the indexed parent")
	}
	if restored.height != node.height {
		t.Errorf("height: got %d, want %d", restored.height, node.height)
	}
	if restored.bits != node.bits {
		t.Errorf("bits: got %08x, want %08x", restored.bits, node.bits)
	}
	if restored.timestamp != node.timestamp {
		t.Errorf("timestamp: got %d, want %d", restored.timestamp, node.timestamp)
	}
	if restored.nonce != node.nonce {
		t.Errorf("nonce: got %d, want %d", restored.nonce, node.nonce)
	}
	if restored.status != node.status {
		t.Errorf("status: got %v, want %v", restored.status, node.status)
	}
	if restored.merkleRoot != node.merkleRoot {
		t.Errorf("merkle root: got %s, want %s", restored.merkleRoot, node.merkleRoot)
	}
	if restored.accumulatorRoot != node.accumulatorRoot {
		t.Errorf("accumulator root: got %s, want %s",
			restored.accumulatorRoot, node.accumulatorRoot)
	}
	if !bytes.Equal(restored.proof, node.proof) {
		t.Error("restored node carries a different proof")
	}
	if restored.workSum.Cmp(node.workSum) != 0 {
		t.Errorf("work sum: got %v, want %v", restored.workSum, node.workSum)
	}
}

// TestIsNotInChainErr distinguishes chain membership errors from everything
// else.
func TestIsNotInChainErr(t *testing.T) {
	if !isNotInChainErr(errNotInChain("block abc is not known")) {
		t.Error("errNotInChain value was not recognized")
	}
	if isNotInChainErr(errors.New("some other failure")) {
		t.Error("unrelated error was recognized as errNotInChain")
	}
}
