// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package consensus

import (
	"testing"

	"github.com/umbranet/umbrad/chaincfg"
	"github.com/umbranet/umbrad/dbaccess"
	"github.com/umbranet/umbrad/util"
	"github.com/umbranet/umbrad/util/chainhash"
	"github.com/umbranet/umbrad/wire"
)

// TestReorganizeChain builds two competing branches and verifies the switch
// to the heavier one: arrival order breaks the work tie, the reorganization
// detaches and attaches in the right order, the ledger follows the new
// branch, and a spend conflicting with the abandoned branch becomes
// admissible again.
func TestReorganizeChain(t *testing.T) {
	chain, teardown, err := chainSetup("reorganizechain",
		Config{ChainParams: &chaincfg.SimNetParams})
	if err != nil {
		t.Fatalf("chainSetup: %v", err)
	}
	defer teardown()

	builder := newTestChainBuilder(t, chain)
	genesisRoot := chain.SelectedAccumulatorRoot()
	genesisHash := chain.params.GenesisHash

	var reorgs []*ChainReorganizedNotificationData
	acceptedMainChain := make(map[chainhash.Hash]bool)
	chain.Subscribe(func(notification *Notification) {
		switch data := notification.Data.(type) {
		case *BlockAcceptedNotificationData:
			acceptedMainChain[*data.Block.Hash()] = data.IsMainChain
		case *ChainReorganizedNotificationData:
			reorgs = append(reorgs, data)
		}
	})

	// The A branch carries a spend and becomes canonical.
	txA := builder.createTx(1, 1, genesisRoot)
	a1, _ := builder.addBlock(genesisHash, []*wire.MsgTx{txA})
	a2, _ := builder.addBlock(a1.Hash(), nil)
	if got := chain.Height(); got != 2 {
		t.Fatalf("height after the A branch: got %d, want 2", got)
	}

	// The B branch carries its own spend and catches up. At equal
	// cumulative work the earlier seen tip keeps its place.
	txB := builder.createTx(1, 1, genesisRoot)
	b1, isMainChain := builder.addBlock(genesisHash, []*wire.MsgTx{txB})
	if isMainChain {
		t.Fatal("b1 became the selected tip while strictly lighter")
	}
	b2, isMainChain := builder.addBlock(b1.Hash(), nil)
	if isMainChain {
		t.Fatal("b2 became the selected tip on a work tie")
	}
	if got := chain.SelectedTipHash(); !got.IsEqual(a2.Hash()) {
		t.Fatalf("selected tip after the tie: got %s, want %s", got, a2.Hash())
	}

	// One more block tips the work balance and forces the switch.
	b3, isMainChain := builder.addBlock(b2.Hash(), nil)
	if !isMainChain {
		t.Fatal("b3 did not become the selected tip with the most work")
	}
	if got := chain.SelectedTipHash(); !got.IsEqual(b3.Hash()) {
		t.Fatalf("selected tip after the switch: got %s, want %s", got, b3.Hash())
	}
	if got := chain.Height(); got != 3 {
		t.Fatalf("height after the switch: got %d, want 3", got)
	}

	// The ledger follows the new branch: the A spend is returned, the B
	// spend is recorded, and the accumulator root is the one b3 commits
	// to.
	spent, err := dbaccess.HasSerialNumber(chain.databaseContext, txA.SerialNumbers[0][:])
	if err != nil {
		t.Fatalf("HasSerialNumber: %v", err)
	}
	if spent {
		t.Error("serial number of the abandoned branch is still spent")
	}
	spent, err = dbaccess.HasSerialNumber(chain.databaseContext, txB.SerialNumbers[0][:])
	if err != nil {
		t.Fatalf("HasSerialNumber: %v", err)
	}
	if !spent {
		t.Error("serial number of the new branch is not spent")
	}
	if got, want := chain.SelectedAccumulatorRoot(), b3.MsgBlock().Header.AccumulatorRoot; got != want {
		t.Errorf("accumulator root after the switch: got %s, want %s", got, want)
	}

	// One reorganization notification, detaching tip first and attaching
	// fork first.
	if len(reorgs) != 1 {
		t.Fatalf("got %d reorganization notifications, want 1", len(reorgs))
	}
	assertBlockSequence(t, "detached blocks", reorgs[0].DetachedBlocks,
		[]*chainhash.Hash{a2.Hash(), a1.Hash()})
	assertBlockSequence(t, "attached blocks", reorgs[0].AttachedBlocks,
		[]*chainhash.Hash{b1.Hash(), b2.Hash(), b3.Hash()})

	if acceptedMainChain[*b1.Hash()] || acceptedMainChain[*b2.Hash()] {
		t.Error("side branch blocks were announced as selected chain blocks")
	}
	if !acceptedMainChain[*b3.Hash()] {
		t.Error("the reorganizing block was not announced as a selected chain block")
	}

	// With the A branch abandoned its spends are free again, so a block
	// respending txA's serial number is admissible as a new candidate.
	respend := builder.createTx(1, 1, genesisRoot)
	respend.SerialNumbers[0] = txA.SerialNumbers[0]
	sibling := builder.buildBlock(genesisHash, []*wire.MsgTx{respend})
	if _, err := chain.ProcessBlock(sibling, BFNone); err != nil {
		t.Fatalf("block respending an abandoned serial number was rejected: %v", err)
	}
	if !chain.HaveBlock(sibling.Hash()) {
		t.Error("respending block is missing from the block index")
	}
}

// TestReorgFailureRestoresOldChain forces a reorganization onto a branch
// whose middle block fails validation at connect time and verifies the old
// chain comes back exactly: tip, ledger state, and accumulator root, with
// the failed block and its descendants marked invalid.
func TestReorgFailureRestoresOldChain(t *testing.T) {
	chain, teardown, err := chainSetup("reorgfailurerestore",
		Config{ChainParams: &chaincfg.SimNetParams})
	if err != nil {
		t.Fatalf("chainSetup: %v", err)
	}
	defer teardown()

	builder := newTestChainBuilder(t, chain)
	genesisRoot := chain.SelectedAccumulatorRoot()
	genesisHash := chain.params.GenesisHash

	var reorgs []*ChainReorganizedNotificationData
	chain.Subscribe(func(notification *Notification) {
		if data, ok := notification.Data.(*ChainReorganizedNotificationData); ok {
			reorgs = append(reorgs, data)
		}
	})

	// The canonical branch spends on both blocks.
	txA1 := builder.createTx(1, 1, genesisRoot)
	a1, _ := builder.addBlock(genesisHash, []*wire.MsgTx{txA1})
	rootA1 := chain.SelectedAccumulatorRoot()
	txA2 := builder.createTx(1, 1, rootA1)
	a2, _ := builder.addBlock(a1.Hash(), []*wire.MsgTx{txA2})
	rootA2 := chain.SelectedAccumulatorRoot()

	// The competing branch hides a transaction whose proof will not
	// verify. Side chain blocks are not validated against the ledger on
	// arrival, so b1 and b2 are both admitted.
	txB1 := builder.createTx(1, 1, genesisRoot)
	b1, _ := builder.addBlock(genesisHash, []*wire.MsgTx{txB1})

	badTx := builder.createTx(1, 1, genesisRoot)
	chain.proofVerifier.(*testProofVerifier).rejectProof(badTx.Proof)
	b2, _ := builder.addBlock(b1.Hash(), []*wire.MsgTx{badTx})

	// The block that makes the bad branch heaviest triggers the switch,
	// which fails at b2 and must restore the old chain.
	b3 := builder.buildBlock(b2.Hash(), nil)
	_, err = chain.ProcessBlock(b3, BFNone)
	assertRuleError(t, err, ErrBadTxProof)

	if got := chain.SelectedTipHash(); !got.IsEqual(a2.Hash()) {
		t.Fatalf("selected tip after the failed switch: got %s, want %s",
			got, a2.Hash())
	}
	if got := chain.Height(); got != 2 {
		t.Fatalf("height after the failed switch: got %d, want 2", got)
	}
	if got := chain.SelectedAccumulatorRoot(); got != rootA2 {
		t.Fatalf("accumulator root after the failed switch: got %s, want %s",
			got, rootA2)
	}

	// The canonical spends are still recorded and the side branch spend
	// that briefly connected during the attempt is returned.
	for _, serialNumber := range [][]byte{txA1.SerialNumbers[0][:], txA2.SerialNumbers[0][:]} {
		spent, err := dbaccess.HasSerialNumber(chain.databaseContext, serialNumber)
		if err != nil {
			t.Fatalf("HasSerialNumber: %v", err)
		}
		if !spent {
			t.Error("canonical serial number is not spent after the failed switch")
		}
	}
	spent, err := dbaccess.HasSerialNumber(chain.databaseContext, txB1.SerialNumbers[0][:])
	if err != nil {
		t.Fatalf("HasSerialNumber: %v", err)
	}
	if spent {
		t.Error("side branch serial number is spent after the failed switch")
	}

	// b1 validated fine and stays valid; b2 failed validation; b3 is
	// tainted by its ancestry.
	b1Node := chain.index.LookupNode(b1.Hash())
	if b1Node == nil || chain.index.NodeStatus(b1Node).KnownInvalid() {
		t.Error("b1 was marked invalid by the failed switch")
	}
	b2Node := chain.index.LookupNode(b2.Hash())
	if b2Node == nil || !chain.index.NodeStatus(b2Node).KnownInvalid() {
		t.Error("b2 is not marked invalid")
	}
	b3Node := chain.index.LookupNode(b3.Hash())
	if b3Node == nil || !chain.index.NodeStatus(b3Node).KnownInvalid() {
		t.Error("b3 is not marked invalid")
	}

	// No reorganization may have been announced.
	if len(reorgs) != 0 {
		t.Fatalf("got %d reorganization notifications, want 0", len(reorgs))
	}

	// The restored chain keeps extending normally.
	a3, isMainChain := builder.addBlock(a2.Hash(), nil)
	if !isMainChain {
		t.Fatalf("block %s did not extend the restored chain", a3.Hash())
	}
	if got := chain.Height(); got != 3 {
		t.Fatalf("height after extending the restored chain: got %d, want 3", got)
	}
}

// TestStaleTipPruning checks that a side tip whose fork point falls too far
// behind the selected tip is dropped from the tracked tip set while its
// block stays available.
func TestStaleTipPruning(t *testing.T) {
	chain, teardown, err := chainSetup("staletippruning",
		Config{ChainParams: &chaincfg.SimNetParams})
	if err != nil {
		t.Fatalf("chainSetup: %v", err)
	}
	defer teardown()

	builder := newTestChainBuilder(t, chain)
	genesisHash := chain.params.GenesisHash

	m1, _ := builder.addBlock(genesisHash, nil)
	s1, _ := builder.addBlock(genesisHash, nil)

	s1Node := chain.index.LookupNode(s1.Hash())
	if s1Node == nil {
		t.Fatal("side block is missing from the block index")
	}
	if _, ok := chain.tips[s1Node]; !ok {
		t.Fatal("side block is not tracked as a tip")
	}
	if len(chain.tips) != 2 {
		t.Fatalf("got %d tips, want 2", len(chain.tips))
	}

	// Extend the selected chain beyond the prune depth measured from the
	// side tip's fork point at genesis.
	builder.extendChain(m1.Hash(), int(chain.params.StaleTipPruneDepth)+2)

	if _, ok := chain.tips[s1Node]; ok {
		t.Error("stale side tip is still tracked")
	}
	if len(chain.tips) != 1 {
		t.Errorf("got %d tips, want 1", len(chain.tips))
	}

	// The stale tip's block is pruned from tracking only, not from
	// storage.
	if !chain.HaveBlock(s1.Hash()) {
		t.Error("stale side tip left the block index")
	}
	if _, err := chain.BlockByHash(s1.Hash()); err != nil {
		t.Errorf("stale side tip block is not fetchable: %v", err)
	}
}

// assertBlockSequence fails the test unless the blocks match the wanted
// hashes in order.
func assertBlockSequence(t *testing.T, desc string, got []*util.Block, want []*chainhash.Hash) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: got %d blocks, want %d", desc, len(got), len(want))
	}
	for i := range got {
		if !got[i].Hash().IsEqual(want[i]) {
			t.Fatalf("%s: block %d is %s, want %s", desc, i, got[i].Hash(), want[i])
		}
	}
}
