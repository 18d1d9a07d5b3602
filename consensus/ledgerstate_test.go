package consensus

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/umbranet/umbrad/chaincfg"
	"github.com/umbranet/umbrad/dbaccess"
	"github.com/umbranet/umbrad/wire"
)

// TestApplyRollbackRoundTrip connects a block carrying a transaction, rolls
// its retained state delta back, and re-applies it, checking that the
// accumulator root and the spent serial number set land back on the exact
// same values at every step.
func TestApplyRollbackRoundTrip(t *testing.T) {
	chain, teardown, err := chainSetup("applyrollbackroundtrip",
		Config{ChainParams: &chaincfg.SimNetParams})
	if err != nil {
		t.Fatalf("chainSetup: %v", err)
	}
	defer teardown()

	builder := newTestChainBuilder(t, chain)
	genesisRoot := chain.SelectedAccumulatorRoot()

	tx := builder.createTx(2, 2, genesisRoot)
	block, isMainChain := builder.addBlock(chain.params.GenesisHash, []*wire.MsgTx{tx})
	if !isMainChain {
		t.Fatalf("block %s did not become the selected tip", block.Hash())
	}

	blockRoot := chain.SelectedAccumulatorRoot()
	if blockRoot == genesisRoot {
		t.Fatal("connecting a block with commitments did not move the accumulator root")
	}
	for i := range tx.SerialNumbers {
		spent, err := dbaccess.HasSerialNumber(chain.databaseContext, tx.SerialNumbers[i][:])
		if err != nil {
			t.Fatalf("HasSerialNumber: %v", err)
		}
		if !spent {
			t.Errorf("serial number %x is not spent after connect", tx.SerialNumbers[i])
		}
	}

	deltaBytes, err := dbaccess.FetchStateDelta(chain.databaseContext, block.Hash())
	if err != nil {
		t.Fatalf("FetchStateDelta: %v", err)
	}
	delta, err := deserializeStateDelta(deltaBytes)
	if err != nil {
		t.Fatalf("deserializeStateDelta: %v", err)
	}
	if delta.Height != 1 {
		t.Fatalf("state delta height: got %d, want 1", delta.Height)
	}

	chain.chainLock.Lock()
	err = chain.rollbackDelta(delta)
	chain.chainLock.Unlock()
	if err != nil {
		t.Fatalf("rollbackDelta: %v", err)
	}

	if got := chain.SelectedAccumulatorRoot(); got != genesisRoot {
		t.Fatalf("accumulator root after rollback: got %s, want %s", got, genesisRoot)
	}
	for i := range tx.SerialNumbers {
		spent, err := dbaccess.HasSerialNumber(chain.databaseContext, tx.SerialNumbers[i][:])
		if err != nil {
			t.Fatalf("HasSerialNumber: %v", err)
		}
		if spent {
			t.Errorf("serial number %x is still spent after rollback", tx.SerialNumbers[i])
		}
	}

	chain.chainLock.Lock()
	err = chain.applyDelta(delta)
	chain.chainLock.Unlock()
	if err != nil {
		t.Fatalf("applyDelta: %v", err)
	}

	if got := chain.SelectedAccumulatorRoot(); got != blockRoot {
		t.Fatalf("accumulator root after re-apply: got %s, want %s", got, blockRoot)
	}
	for i := range tx.SerialNumbers {
		spent, err := dbaccess.HasSerialNumber(chain.databaseContext, tx.SerialNumbers[i][:])
		if err != nil {
			t.Fatalf("HasSerialNumber: %v", err)
		}
		if !spent {
			t.Errorf("serial number %x is not spent after re-apply", tx.SerialNumbers[i])
		}
	}
}

// TestEmptyBlockKeepsAccumulatorRoot checks that a block with no
// transactions advances the chain without moving the accumulator root.
func TestEmptyBlockKeepsAccumulatorRoot(t *testing.T) {
	chain, teardown, err := chainSetup("emptyblockroot",
		Config{ChainParams: &chaincfg.SimNetParams})
	if err != nil {
		t.Fatalf("chainSetup: %v", err)
	}
	defer teardown()

	builder := newTestChainBuilder(t, chain)
	genesisRoot := chain.SelectedAccumulatorRoot()

	block, _ := builder.addBlock(chain.params.GenesisHash, nil)

	if got := chain.Height(); got != 1 {
		t.Fatalf("height: got %d, want 1", got)
	}
	if got := chain.SelectedAccumulatorRoot(); got != genesisRoot {
		t.Fatalf("empty block moved the accumulator root from %s to %s",
			genesisRoot, got)
	}

	// The shared root now resolves to the empty block's height.
	height, found, err := chain.LedgerView().AccumulatorHeight(&genesisRoot)
	if err != nil {
		t.Fatalf("AccumulatorHeight: %v", err)
	}
	if !found || height != 1 {
		t.Fatalf("shared root: found %v at height %d, want height 1", found, height)
	}

	// Rolling the empty block back must leave the shared root resolvable
	// at the parent height, not forgotten.
	deltaBytes, err := dbaccess.FetchStateDelta(chain.databaseContext, block.Hash())
	if err != nil {
		t.Fatalf("FetchStateDelta: %v", err)
	}
	delta, err := deserializeStateDelta(deltaBytes)
	if err != nil {
		t.Fatalf("deserializeStateDelta: %v", err)
	}
	chain.chainLock.Lock()
	err = chain.rollbackDelta(delta)
	chain.chainLock.Unlock()
	if err != nil {
		t.Fatalf("rollbackDelta: %v", err)
	}

	height, found, err = chain.LedgerView().AccumulatorHeight(&genesisRoot)
	if err != nil {
		t.Fatalf("AccumulatorHeight: %v", err)
	}
	if !found || height != 0 {
		t.Fatalf("shared root after rollback: found %v at height %d, want height 0",
			found, height)
	}
}

// TestBadAccumulatorRoot checks that a block whose header commits to the
// wrong accumulator root is rejected at connect time without mutating the
// ledger.
func TestBadAccumulatorRoot(t *testing.T) {
	chain, teardown, err := chainSetup("badaccumulatorroot",
		Config{ChainParams: &chaincfg.SimNetParams})
	if err != nil {
		t.Fatalf("chainSetup: %v", err)
	}
	defer teardown()

	builder := newTestChainBuilder(t, chain)
	genesisRoot := chain.SelectedAccumulatorRoot()

	tx := builder.createTx(1, 1, genesisRoot)
	block := builder.buildBlock(chain.params.GenesisHash, []*wire.MsgTx{tx})
	block.MsgBlock().Header.AccumulatorRoot[0] ^= 0x01

	_, err = chain.ProcessBlock(block, BFNone)
	assertRuleError(t, err, ErrBadAccumulatorRoot)

	if got := chain.Height(); got != 0 {
		t.Fatalf("height after rejected block: got %d, want 0", got)
	}
	if got := chain.SelectedAccumulatorRoot(); got != genesisRoot {
		t.Fatalf("rejected block moved the accumulator root from %s to %s",
			genesisRoot, got)
	}
	spent, err := dbaccess.HasSerialNumber(chain.databaseContext, tx.SerialNumbers[0][:])
	if err != nil {
		t.Fatalf("HasSerialNumber: %v", err)
	}
	if spent {
		t.Error("rejected block left its serial number spent")
	}

	node := chain.index.LookupNode(block.Hash())
	if node == nil {
		t.Fatal("rejected block is missing from the block index")
	}
	if !chain.index.NodeStatus(node).KnownInvalid() {
		t.Error("rejected block is not marked invalid in the block index")
	}
}

// TestConflictErrorOnDirectApply drives applyBlock with a block that double
// spends against the committed state, bypassing the validation that would
// normally refuse it first, and checks that the conflict surfaces as a
// ConflictError and leaves the ledger untouched.
func TestConflictErrorOnDirectApply(t *testing.T) {
	chain, teardown, err := chainSetup("conflictdirectapply",
		Config{ChainParams: &chaincfg.SimNetParams})
	if err != nil {
		t.Fatalf("chainSetup: %v", err)
	}
	defer teardown()

	builder := newTestChainBuilder(t, chain)
	genesisRoot := chain.SelectedAccumulatorRoot()

	tx1 := builder.createTx(1, 1, genesisRoot)
	b1, _ := builder.addBlock(chain.params.GenesisHash, []*wire.MsgTx{tx1})
	tipRoot := chain.SelectedAccumulatorRoot()

	tx2 := builder.createTx(1, 1, tipRoot)
	tx2.SerialNumbers[0] = tx1.SerialNumbers[0]
	block := builder.buildBlock(b1.Hash(), []*wire.MsgTx{tx2})

	chain.chainLock.Lock()
	node := newBlockNode(&block.MsgBlock().Header, chain.index.LookupNode(b1.Hash()))
	_, err = chain.applyBlock(node, block)
	chain.chainLock.Unlock()

	var conflictErr ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("applyBlock returned %v, want a ConflictError", err)
	}
	if got := chain.SelectedAccumulatorRoot(); got != tipRoot {
		t.Fatalf("conflicting block moved the accumulator root from %s to %s",
			tipRoot, got)
	}
}

// TestChainRestart builds a few blocks, closes the database, and brings a
// fresh Chain up on the same files, checking that the restored state matches
// the state at shutdown exactly.
func TestChainRestart(t *testing.T) {
	tmpDir, err := ioutil.TempDir("", "TestChainRestart")
	if err != nil {
		t.Fatalf("creating temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)
	dbPath := filepath.Join(tmpDir, "db")

	databaseContext, err := dbaccess.New(dbPath)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}

	chain, _, err := chainSetup("restart", Config{
		ChainParams:     &chaincfg.SimNetParams,
		DatabaseContext: databaseContext,
	})
	if err != nil {
		t.Fatalf("chainSetup: %v", err)
	}

	builder := newTestChainBuilder(t, chain)
	tx := builder.createTx(1, 1, chain.SelectedAccumulatorRoot())
	builder.addBlock(chain.params.GenesisHash, []*wire.MsgTx{tx})
	builder.extendChain(chain.SelectedTipHash(), 2)

	tipHash := *chain.SelectedTipHash()
	tipRoot := chain.SelectedAccumulatorRoot()
	blockCount := chain.BlockCount()

	err = databaseContext.Close()
	if err != nil {
		t.Fatalf("closing database: %v", err)
	}

	databaseContext, err = dbaccess.New(dbPath)
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	defer databaseContext.Close()

	restarted, _, err := chainSetup("restart", Config{
		ChainParams:     &chaincfg.SimNetParams,
		DatabaseContext: databaseContext,
	})
	if err != nil {
		t.Fatalf("chainSetup after restart: %v", err)
	}

	if got := restarted.Height(); got != 3 {
		t.Errorf("height after restart: got %d, want 3", got)
	}
	if got := restarted.SelectedTipHash(); !got.IsEqual(&tipHash) {
		t.Errorf("selected tip after restart: got %s, want %s", got, tipHash)
	}
	if got := restarted.SelectedAccumulatorRoot(); got != tipRoot {
		t.Errorf("accumulator root after restart: got %s, want %s", got, tipRoot)
	}
	if got := restarted.BlockCount(); got != blockCount {
		t.Errorf("block count after restart: got %d, want %d", got, blockCount)
	}
	spent, err := dbaccess.HasSerialNumber(restarted.databaseContext, tx.SerialNumbers[0][:])
	if err != nil {
		t.Fatalf("HasSerialNumber: %v", err)
	}
	if !spent {
		t.Error("serial number spent before shutdown is unspent after restart")
	}
}
