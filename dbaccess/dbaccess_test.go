package dbaccess

import (
	"io/ioutil"
	"reflect"
	"testing"

	"github.com/umbranet/umbrad/chaincfg"
	"github.com/umbranet/umbrad/database"
	"github.com/umbranet/umbrad/util"
	"github.com/umbranet/umbrad/util/chainhash"
)

func prepareDatabaseForTest(t *testing.T, testName string) (databaseContext *DatabaseContext, teardownFunc func()) {
	// Create a temp db to run tests against
	path, err := ioutil.TempDir("", testName)
	if err != nil {
		t.Fatalf("%s: TempDir unexpectedly "+
			"failed: %s", testName, err)
	}
	databaseContext, err = New(path)
	if err != nil {
		t.Fatalf("%s: New unexpectedly "+
			"failed: %s", testName, err)
	}
	teardownFunc = func() {
		err = databaseContext.Close()
		if err != nil {
			t.Fatalf("%s: Close unexpectedly "+
				"failed: %s", testName, err)
		}
	}
	return databaseContext, teardownFunc
}

func TestStoreAndFetchBlock(t *testing.T) {
	databaseContext, teardownFunc := prepareDatabaseForTest(t, "TestStoreAndFetchBlock")
	defer teardownFunc()

	genesis := util.NewBlock(chaincfg.MainNetParams.GenesisBlock)

	// Make sure the genesis block is not reported to exist
	// before it had been stored
	exists, err := HasBlock(databaseContext, genesis.Hash())
	if err != nil {
		t.Fatalf("TestStoreAndFetchBlock: HasBlock "+
			"unexpectedly failed: %s", err)
	}
	if exists {
		t.Fatalf("TestStoreAndFetchBlock: HasBlock unexpectedly " +
			"returned that the block exists")
	}

	err = StoreBlock(databaseContext, genesis)
	if err != nil {
		t.Fatalf("TestStoreAndFetchBlock: StoreBlock "+
			"unexpectedly failed: %s", err)
	}

	exists, err = HasBlock(databaseContext, genesis.Hash())
	if err != nil {
		t.Fatalf("TestStoreAndFetchBlock: HasBlock "+
			"unexpectedly failed: %s", err)
	}
	if !exists {
		t.Fatalf("TestStoreAndFetchBlock: HasBlock unexpectedly " +
			"returned that the block does not exist")
	}

	fetchedGenesis, err := FetchBlock(databaseContext, genesis.Hash())
	if err != nil {
		t.Fatalf("TestStoreAndFetchBlock: FetchBlock "+
			"unexpectedly failed: %s", err)
	}
	if !reflect.DeepEqual(genesis.MsgBlock(), fetchedGenesis.MsgBlock()) {
		t.Fatalf("TestStoreAndFetchBlock: FetchBlock returned a " +
			"block that is different from the one that was stored")
	}

	// Storing the same block twice should fail
	err = StoreBlock(databaseContext, genesis)
	if err == nil {
		t.Fatalf("TestStoreAndFetchBlock: StoreBlock unexpectedly " +
			"succeeded in storing an existing block")
	}

	// Fetching a block that does not exist should return ErrNotFound
	nonExistentHash := &chainhash.Hash{}
	_, err = FetchBlock(databaseContext, nonExistentHash)
	if err == nil {
		t.Fatalf("TestStoreAndFetchBlock: FetchBlock unexpectedly " +
			"succeeded in fetching a non-existent block")
	}
	if !database.IsNotFoundError(err) {
		t.Fatalf("TestStoreAndFetchBlock: FetchBlock returned "+
			"wrong error: expected: ErrNotFound, got: %s", err)
	}
}

func TestSerialNumbers(t *testing.T) {
	databaseContext, teardownFunc := prepareDatabaseForTest(t, "TestSerialNumbers")
	defer teardownFunc()

	serialNumber := []byte("serial number")

	exists, err := HasSerialNumber(databaseContext, serialNumber)
	if err != nil {
		t.Fatalf("TestSerialNumbers: HasSerialNumber "+
			"unexpectedly failed: %s", err)
	}
	if exists {
		t.Fatalf("TestSerialNumbers: HasSerialNumber unexpectedly " +
			"returned that the serial number exists")
	}

	err = AddSerialNumber(databaseContext, serialNumber)
	if err != nil {
		t.Fatalf("TestSerialNumbers: AddSerialNumber "+
			"unexpectedly failed: %s", err)
	}

	exists, err = HasSerialNumber(databaseContext, serialNumber)
	if err != nil {
		t.Fatalf("TestSerialNumbers: HasSerialNumber "+
			"unexpectedly failed: %s", err)
	}
	if !exists {
		t.Fatalf("TestSerialNumbers: HasSerialNumber unexpectedly " +
			"returned that the serial number does not exist")
	}

	err = RemoveSerialNumber(databaseContext, serialNumber)
	if err != nil {
		t.Fatalf("TestSerialNumbers: RemoveSerialNumber "+
			"unexpectedly failed: %s", err)
	}

	exists, err = HasSerialNumber(databaseContext, serialNumber)
	if err != nil {
		t.Fatalf("TestSerialNumbers: HasSerialNumber "+
			"unexpectedly failed: %s", err)
	}
	if exists {
		t.Fatalf("TestSerialNumbers: HasSerialNumber unexpectedly " +
			"returned that a removed serial number exists")
	}
}

func TestAccumulatorSnapshots(t *testing.T) {
	databaseContext, teardownFunc := prepareDatabaseForTest(t, "TestAccumulatorSnapshots")
	defer teardownFunc()

	blockHeight := uint64(1337)
	accumulatorRoot := &chainhash.Hash{0x13, 0x37}

	err := StoreAccumulatorSnapshot(databaseContext, blockHeight, accumulatorRoot)
	if err != nil {
		t.Fatalf("TestAccumulatorSnapshots: StoreAccumulatorSnapshot "+
			"unexpectedly failed: %s", err)
	}

	fetchedRoot, err := FetchAccumulatorRootByHeight(databaseContext, blockHeight)
	if err != nil {
		t.Fatalf("TestAccumulatorSnapshots: FetchAccumulatorRootByHeight "+
			"unexpectedly failed: %s", err)
	}
	if !fetchedRoot.IsEqual(accumulatorRoot) {
		t.Fatalf("TestAccumulatorSnapshots: FetchAccumulatorRootByHeight returned "+
			"wrong root: expected: %s, got: %s", accumulatorRoot, fetchedRoot)
	}

	fetchedHeight, err := FetchAccumulatorHeightByRoot(databaseContext, accumulatorRoot)
	if err != nil {
		t.Fatalf("TestAccumulatorSnapshots: FetchAccumulatorHeightByRoot "+
			"unexpectedly failed: %s", err)
	}
	if fetchedHeight != blockHeight {
		t.Fatalf("TestAccumulatorSnapshots: FetchAccumulatorHeightByRoot returned "+
			"wrong height: expected: %d, got: %d", blockHeight, fetchedHeight)
	}

	err = RemoveAccumulatorSnapshot(databaseContext, blockHeight, accumulatorRoot)
	if err != nil {
		t.Fatalf("TestAccumulatorSnapshots: RemoveAccumulatorSnapshot "+
			"unexpectedly failed: %s", err)
	}

	_, err = FetchAccumulatorRootByHeight(databaseContext, blockHeight)
	if !database.IsNotFoundError(err) {
		t.Fatalf("TestAccumulatorSnapshots: FetchAccumulatorRootByHeight returned "+
			"wrong error after removal: expected: ErrNotFound, got: %s", err)
	}
	_, err = FetchAccumulatorHeightByRoot(databaseContext, accumulatorRoot)
	if !database.IsNotFoundError(err) {
		t.Fatalf("TestAccumulatorSnapshots: FetchAccumulatorHeightByRoot returned "+
			"wrong error after removal: expected: ErrNotFound, got: %s", err)
	}
}

func TestStateDeltas(t *testing.T) {
	databaseContext, teardownFunc := prepareDatabaseForTest(t, "TestStateDeltas")
	defer teardownFunc()

	blockHash := &chainhash.Hash{0x13, 0x37}
	deltaBytes := []byte("state delta")

	err := StoreStateDelta(databaseContext, blockHash, deltaBytes)
	if err != nil {
		t.Fatalf("TestStateDeltas: StoreStateDelta "+
			"unexpectedly failed: %s", err)
	}

	fetchedDeltaBytes, err := FetchStateDelta(databaseContext, blockHash)
	if err != nil {
		t.Fatalf("TestStateDeltas: FetchStateDelta "+
			"unexpectedly failed: %s", err)
	}
	if !reflect.DeepEqual(deltaBytes, fetchedDeltaBytes) {
		t.Fatalf("TestStateDeltas: FetchStateDelta returned "+
			"wrong delta: expected: %s, got: %s", deltaBytes, fetchedDeltaBytes)
	}

	err = RemoveStateDelta(databaseContext, blockHash)
	if err != nil {
		t.Fatalf("TestStateDeltas: RemoveStateDelta "+
			"unexpectedly failed: %s", err)
	}

	_, err = FetchStateDelta(databaseContext, blockHash)
	if !database.IsNotFoundError(err) {
		t.Fatalf("TestStateDeltas: FetchStateDelta returned "+
			"wrong error after removal: expected: ErrNotFound, got: %s", err)
	}
}

func TestChainTip(t *testing.T) {
	databaseContext, teardownFunc := prepareDatabaseForTest(t, "TestChainTip")
	defer teardownFunc()

	// Fetching the chain tip before one had been stored
	// should return ErrNotFound
	_, err := FetchChainTip(databaseContext)
	if !database.IsNotFoundError(err) {
		t.Fatalf("TestChainTip: FetchChainTip returned "+
			"wrong error: expected: ErrNotFound, got: %s", err)
	}

	serializedTip := []byte("chain tip state")
	err = StoreChainTip(databaseContext, serializedTip)
	if err != nil {
		t.Fatalf("TestChainTip: StoreChainTip "+
			"unexpectedly failed: %s", err)
	}

	fetchedTip, err := FetchChainTip(databaseContext)
	if err != nil {
		t.Fatalf("TestChainTip: FetchChainTip "+
			"unexpectedly failed: %s", err)
	}
	if !reflect.DeepEqual(serializedTip, fetchedTip) {
		t.Fatalf("TestChainTip: FetchChainTip returned "+
			"wrong tip: expected: %s, got: %s", serializedTip, fetchedTip)
	}
}

func TestTxContext(t *testing.T) {
	databaseContext, teardownFunc := prepareDatabaseForTest(t, "TestTxContext")
	defer teardownFunc()

	// Add a serial number in a transaction and commit it. The
	// serial number should then be visible outside the transaction.
	committedSerialNumber := []byte("committed serial number")
	dbTx, err := databaseContext.NewTx()
	if err != nil {
		t.Fatalf("TestTxContext: NewTx "+
			"unexpectedly failed: %s", err)
	}
	err = AddSerialNumber(dbTx, committedSerialNumber)
	if err != nil {
		t.Fatalf("TestTxContext: AddSerialNumber "+
			"unexpectedly failed: %s", err)
	}
	exists, err := HasSerialNumber(databaseContext, committedSerialNumber)
	if err != nil {
		t.Fatalf("TestTxContext: HasSerialNumber "+
			"unexpectedly failed: %s", err)
	}
	if exists {
		t.Fatalf("TestTxContext: HasSerialNumber unexpectedly " +
			"returned that the serial number exists before commit")
	}
	err = dbTx.Commit()
	if err != nil {
		t.Fatalf("TestTxContext: Commit "+
			"unexpectedly failed: %s", err)
	}
	exists, err = HasSerialNumber(databaseContext, committedSerialNumber)
	if err != nil {
		t.Fatalf("TestTxContext: HasSerialNumber "+
			"unexpectedly failed: %s", err)
	}
	if !exists {
		t.Fatalf("TestTxContext: HasSerialNumber unexpectedly " +
			"returned that the serial number does not exist after commit")
	}

	// Add a serial number in a transaction and roll it back. The
	// serial number should then not exist.
	rolledBackSerialNumber := []byte("rolled back serial number")
	dbTx, err = databaseContext.NewTx()
	if err != nil {
		t.Fatalf("TestTxContext: NewTx "+
			"unexpectedly failed: %s", err)
	}
	defer dbTx.RollbackUnlessClosed()
	err = AddSerialNumber(dbTx, rolledBackSerialNumber)
	if err != nil {
		t.Fatalf("TestTxContext: AddSerialNumber "+
			"unexpectedly failed: %s", err)
	}
	err = dbTx.Rollback()
	if err != nil {
		t.Fatalf("TestTxContext: Rollback "+
			"unexpectedly failed: %s", err)
	}
	exists, err = HasSerialNumber(databaseContext, rolledBackSerialNumber)
	if err != nil {
		t.Fatalf("TestTxContext: HasSerialNumber "+
			"unexpectedly failed: %s", err)
	}
	if exists {
		t.Fatalf("TestTxContext: HasSerialNumber unexpectedly " +
			"returned that a rolled back serial number exists")
	}
}
