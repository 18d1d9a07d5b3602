// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/umbranet/umbrad/chaincfg"
	"github.com/umbranet/umbrad/consensus"
	"github.com/umbranet/umbrad/util"
	"github.com/umbranet/umbrad/util/chainhash"
	"github.com/umbranet/umbrad/wire"
)

// testLedgerDigest is the one accumulator root the fake chain considers
// canonical. Every harness transaction is declared against it.
var testLedgerDigest = chainhash.Hash{0x6c, 0x64}

// fakeChain provides the committed ledger facts the pool under test
// validates against, without running a real chain.
type fakeChain struct {
	mtx          sync.RWMutex
	spentSerials map[wire.SerialNumber]struct{}
	digests      map[chainhash.Hash]uint64
	height       uint64
}

func newFakeChain() *fakeChain {
	chain := &fakeChain{
		spentSerials: make(map[wire.SerialNumber]struct{}),
		digests:      make(map[chainhash.Hash]uint64),
		height:       1,
	}
	chain.digests[testLedgerDigest] = 0
	return chain
}

// connect marks the serial numbers of the given transactions spent and
// advances the fake chain by one block.
func (chain *fakeChain) connect(transactions ...*util.Tx) {
	chain.mtx.Lock()
	defer chain.mtx.Unlock()

	for _, tx := range transactions {
		for _, serialNumber := range tx.MsgTx().SerialNumbers {
			chain.spentSerials[serialNumber] = struct{}{}
		}
	}
	chain.height++
}

// disconnect forgets the spent marks of the given transactions and steps
// the fake chain back one block.
func (chain *fakeChain) disconnect(transactions ...*util.Tx) {
	chain.mtx.Lock()
	defer chain.mtx.Unlock()

	for _, tx := range transactions {
		for _, serialNumber := range tx.MsgTx().SerialNumbers {
			delete(chain.spentSerials, serialNumber)
		}
	}
	chain.height--
}

func (chain *fakeChain) ledgerView() consensus.LedgerView {
	return &fakeLedgerView{chain: chain}
}

// checkTransactionLedger mirrors the ledger dependent transaction checks
// the pool relies on: unspent serial numbers and a known ledger digest.
func (chain *fakeChain) checkTransactionLedger(tx *util.Tx, view consensus.LedgerView) error {
	msgTx := tx.MsgTx()
	for i := range msgTx.SerialNumbers {
		spent, err := view.SerialNumberSpent(&msgTx.SerialNumbers[i])
		if err != nil {
			return err
		}
		if spent {
			return consensus.RuleError{
				ErrorCode:   consensus.ErrDoubleSpend,
				Description: "serial number is already spent",
			}
		}
	}

	_, found, err := view.AccumulatorHeight(&msgTx.LedgerDigest)
	if err != nil {
		return err
	}
	if !found {
		return consensus.RuleError{
			ErrorCode:   consensus.ErrStaleLedgerDigest,
			Description: "not a canonical accumulator state",
		}
	}
	return nil
}

// fakeLedgerView is the consensus.LedgerView a fakeChain exposes.
type fakeLedgerView struct {
	chain *fakeChain
}

func (view *fakeLedgerView) SerialNumberSpent(serialNumber *wire.SerialNumber) (bool, error) {
	view.chain.mtx.RLock()
	defer view.chain.mtx.RUnlock()

	_, spent := view.chain.spentSerials[*serialNumber]
	return spent, nil
}

func (view *fakeLedgerView) AccumulatorHeight(root *chainhash.Hash) (uint64, bool, error) {
	view.chain.mtx.RLock()
	defer view.chain.mtx.RUnlock()

	height, found := view.chain.digests[*root]
	return height, found, nil
}

func (view *fakeLedgerView) Height() uint64 {
	view.chain.mtx.RLock()
	defer view.chain.mtx.RUnlock()

	return view.chain.height
}

// poolHarness provides a memory pool wired to a fake chain along with
// convenience functions for manufacturing transactions.
type poolHarness struct {
	chain  *fakeChain
	txPool *TxPool

	serialCounter     uint64
	commitmentCounter uint64
	proofCounter      uint64
}

func newPoolHarness(maxPoolSize int) *poolHarness {
	chain := newFakeChain()
	return &poolHarness{
		chain: chain,
		txPool: New(&Config{
			Policy:                 Policy{MaxPoolSize: maxPoolSize},
			ChainParams:            &chaincfg.SimNetParams,
			LedgerView:             chain.ledgerView,
			CheckTransactionLedger: chain.checkTransactionLedger,
		}),
	}
}

func (p *poolHarness) nextProof() []byte {
	p.proofCounter++
	proof := make([]byte, 32)
	binary.LittleEndian.PutUint64(proof[:8], p.proofCounter)
	return proof
}

// createTx returns a pool ready transaction spending fresh serial numbers
// and creating fresh commitments against the fake chain's known digest.
func (p *poolHarness) createTx(numSerialNumbers, numCommitments int) *util.Tx {
	msgTx := wire.NewMsgTx(wire.TxVersion)
	for i := 0; i < numSerialNumbers; i++ {
		p.serialCounter++
		var serialNumber wire.SerialNumber
		binary.LittleEndian.PutUint64(serialNumber[:8], p.serialCounter)
		msgTx.AddSerialNumber(serialNumber)
	}
	for i := 0; i < numCommitments; i++ {
		p.commitmentCounter++
		var commitment wire.Commitment
		binary.LittleEndian.PutUint64(commitment[:8], p.commitmentCounter)
		msgTx.AddCommitment(commitment)
	}
	msgTx.LedgerDigest = testLedgerDigest
	msgTx.ValueBalance = 1
	msgTx.Proof = p.nextProof()
	return util.NewTx(msgTx)
}

// createTxSpending returns a transaction that spends the given serial
// number, conflicting with whatever else spends it.
func (p *poolHarness) createTxSpending(serialNumber wire.SerialNumber) *util.Tx {
	msgTx := wire.NewMsgTx(wire.TxVersion)
	msgTx.AddSerialNumber(serialNumber)
	p.commitmentCounter++
	var commitment wire.Commitment
	binary.LittleEndian.PutUint64(commitment[:8], p.commitmentCounter)
	msgTx.AddCommitment(commitment)
	msgTx.LedgerDigest = testLedgerDigest
	msgTx.ValueBalance = 1
	msgTx.Proof = p.nextProof()
	return util.NewTx(msgTx)
}

// createBlock wraps the given transactions in a block. Only the
// transaction list matters to the pool, so the header stays minimal.
func (p *poolHarness) createBlock(transactions ...*util.Tx) *util.Block {
	header := &wire.BlockHeader{
		Version:   1,
		Timestamp: time.Unix(time.Now().Unix(), 0),
		Proof:     []byte{0x01},
	}
	msgBlock := wire.NewMsgBlock(header)
	for _, tx := range transactions {
		msgBlock.AddTransaction(tx.MsgTx())
	}
	return util.NewBlock(msgBlock)
}

// assertTxRuleError fails the test unless err is a RuleError wrapping a
// TxRuleError with the wanted reject code.
func assertTxRuleError(t *testing.T, err error, wantCode RejectCode) {
	t.Helper()
	var ruleErr RuleError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("error %v is not a mempool RuleError", err)
	}
	var txErr TxRuleError
	if !errors.As(ruleErr.Err, &txErr) {
		t.Fatalf("error %v does not wrap a TxRuleError", err)
	}
	if txErr.RejectCode != wantCode {
		t.Fatalf("wrong reject code: got %v, want %v", txErr.RejectCode,
			wantCode)
	}
}

// assertChainRuleError fails the test unless err is a RuleError wrapping a
// consensus.RuleError with the wanted error code.
func assertChainRuleError(t *testing.T, err error, wantCode consensus.ErrorCode) {
	t.Helper()
	var ruleErr RuleError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("error %v is not a mempool RuleError", err)
	}
	var chainErr consensus.RuleError
	if !errors.As(ruleErr.Err, &chainErr) {
		t.Fatalf("error %v does not wrap a consensus RuleError", err)
	}
	if chainErr.ErrorCode != wantCode {
		t.Fatalf("wrong rule error code: got %v, want %v",
			chainErr.ErrorCode, wantCode)
	}
}

// TestProcessTransaction covers the admission pipeline: acceptance of a
// valid transaction, the duplicate and conflict gates, and the ledger
// dependent rejections.
func TestProcessTransaction(t *testing.T) {
	harness := newPoolHarness(0)

	tx := harness.createTx(2, 2)
	txDesc, err := harness.txPool.ProcessTransaction(tx)
	if err != nil {
		t.Fatalf("ProcessTransaction: %v", err)
	}
	if txDesc.Fee != util.Amount(tx.MsgTx().ValueBalance) {
		t.Fatalf("wrong fee: got %v, want %v", txDesc.Fee,
			tx.MsgTx().ValueBalance)
	}
	if txDesc.Height != 1 {
		t.Fatalf("wrong admission height: got %d, want 1", txDesc.Height)
	}
	if !harness.txPool.HaveTransaction(tx.Hash()) {
		t.Fatal("pool does not have the accepted transaction")
	}
	if count := harness.txPool.Count(); count != 1 {
		t.Fatalf("wrong pool count: got %d, want 1", count)
	}
	fetched, err := harness.txPool.FetchTransaction(tx.Hash())
	if err != nil {
		t.Fatalf("FetchTransaction: %v", err)
	}
	if fetched != tx {
		t.Fatal("FetchTransaction returned a different transaction")
	}
	if harness.txPool.LastUpdated().Unix() == 0 {
		t.Fatal("LastUpdated was not advanced by the admission")
	}

	// Resubmitting the same transaction is a duplicate.
	_, err = harness.txPool.ProcessTransaction(tx)
	assertTxRuleError(t, err, RejectDuplicate)

	// So is a different transaction spending a pooled serial number.
	conflictTx := harness.createTxSpending(tx.MsgTx().SerialNumbers[0])
	_, err = harness.txPool.ProcessTransaction(conflictTx)
	assertTxRuleError(t, err, RejectDuplicate)

	// Sanity violations surface as wrapped consensus rule errors before
	// any pool state is consulted.
	noSerials := wire.NewMsgTx(wire.TxVersion)
	noSerials.AddCommitment(wire.Commitment{0x01})
	noSerials.LedgerDigest = testLedgerDigest
	noSerials.ValueBalance = 1
	noSerials.Proof = harness.nextProof()
	_, err = harness.txPool.ProcessTransaction(util.NewTx(noSerials))
	assertChainRuleError(t, err, consensus.ErrNoSerialNumbers)

	// A transaction whose serial number the chain already spent is a
	// double spend.
	spentTx := harness.createTx(1, 1)
	harness.chain.connect(spentTx)
	_, err = harness.txPool.ProcessTransaction(spentTx)
	assertChainRuleError(t, err, consensus.ErrDoubleSpend)

	// A transaction built against a digest the chain does not know is
	// stale.
	staleTx := harness.createTx(1, 1)
	staleTx.MsgTx().LedgerDigest = chainhash.Hash{0xff}
	_, err = harness.txPool.ProcessTransaction(staleTx)
	assertChainRuleError(t, err, consensus.ErrStaleLedgerDigest)

	// None of the rejections touched the pool.
	if count := harness.txPool.Count(); count != 1 {
		t.Fatalf("wrong pool count after rejections: got %d, want 1", count)
	}
}

// TestPoolCapacity covers oldest first eviction when the pool runs over
// its configured capacity.
func TestPoolCapacity(t *testing.T) {
	harness := newPoolHarness(2)

	tx1 := harness.createTx(1, 1)
	tx2 := harness.createTx(1, 1)
	tx3 := harness.createTx(1, 1)
	for _, tx := range []*util.Tx{tx1, tx2, tx3} {
		if _, err := harness.txPool.ProcessTransaction(tx); err != nil {
			t.Fatalf("ProcessTransaction %v: %v", tx.Hash(), err)
		}
	}

	// Admitting the third transaction evicted the oldest one.
	if count := harness.txPool.Count(); count != 2 {
		t.Fatalf("wrong pool count: got %d, want 2", count)
	}
	if harness.txPool.HaveTransaction(tx1.Hash()) {
		t.Fatal("the oldest transaction survived eviction")
	}
	for _, tx := range []*util.Tx{tx2, tx3} {
		if !harness.txPool.HaveTransaction(tx.Hash()) {
			t.Fatalf("transaction %v missing from the pool", tx.Hash())
		}
	}

	// The eviction released the serial numbers of the evicted entry, so
	// a respend of them is admissible again and evicts the next oldest.
	respend := harness.createTxSpending(tx1.MsgTx().SerialNumbers[0])
	if _, err := harness.txPool.ProcessTransaction(respend); err != nil {
		t.Fatalf("ProcessTransaction after eviction: %v", err)
	}
	if harness.txPool.HaveTransaction(tx2.Hash()) {
		t.Fatal("expected tx2 to be evicted next")
	}
	if !harness.txPool.HaveTransaction(respend.Hash()) {
		t.Fatal("respend of evicted serial number was not admitted")
	}
}

// TestHandleNewTip covers pool reconciliation after chain growth and after
// a reorganization.
func TestHandleNewTip(t *testing.T) {
	harness := newPoolHarness(0)

	minedTx := harness.createTx(1, 1)
	conflictedTx := harness.createTx(1, 1)
	survivorTx := harness.createTx(1, 1)
	for _, tx := range []*util.Tx{minedTx, conflictedTx, survivorTx} {
		if _, err := harness.txPool.ProcessTransaction(tx); err != nil {
			t.Fatalf("ProcessTransaction %v: %v", tx.Hash(), err)
		}
	}

	// A block confirms minedTx along with a foreign transaction that
	// spends conflictedTx's serial number.
	foreign := harness.createTxSpending(conflictedTx.MsgTx().SerialNumbers[0])
	block := harness.createBlock(minedTx, foreign)
	harness.chain.connect(minedTx, foreign)
	harness.txPool.HandleNewTip([]*util.Block{block}, nil)

	if harness.txPool.HaveTransaction(minedTx.Hash()) {
		t.Fatal("mined transaction is still in the pool")
	}
	if harness.txPool.HaveTransaction(conflictedTx.Hash()) {
		t.Fatal("conflicted transaction is still in the pool")
	}
	if !harness.txPool.HaveTransaction(survivorTx.Hash()) {
		t.Fatal("unrelated transaction was dropped")
	}

	// A reorganization hands detached transactions back. minedTx's
	// serial number is free again on the new branch so it is
	// readmitted; foreign remains confirmed and stays out.
	harness.chain.disconnect(minedTx)
	harness.txPool.HandleNewTip(nil, []*util.Tx{minedTx, foreign})

	if !harness.txPool.HaveTransaction(minedTx.Hash()) {
		t.Fatal("detached transaction was not readmitted")
	}
	if harness.txPool.HaveTransaction(foreign.Hash()) {
		t.Fatal("still confirmed transaction was readmitted")
	}
}

// TestTransactionsForBlockTemplate covers the template drain: admission
// order, the size budget, the transaction count cap, and the no double
// spend property of the selection.
func TestTransactionsForBlockTemplate(t *testing.T) {
	harness := newPoolHarness(0)

	small1 := harness.createTx(1, 1)
	big := harness.createTx(2, 2)
	big.MsgTx().Proof = append(big.MsgTx().Proof, make([]byte, 600)...)
	small2 := harness.createTx(1, 1)
	for _, tx := range []*util.Tx{small1, big, small2} {
		if _, err := harness.txPool.ProcessTransaction(tx); err != nil {
			t.Fatalf("ProcessTransaction %v: %v", tx.Hash(), err)
		}
	}

	// A generous budget takes everything, in admission order.
	descs := harness.txPool.TransactionsForBlockTemplate(chaincfg.SimNetParams.MaxBlockSize)
	if len(descs) != 3 {
		t.Fatalf("wrong selection size: got %d, want 3", len(descs))
	}
	for i, tx := range []*util.Tx{small1, big, small2} {
		if descs[i].Tx != tx {
			t.Fatalf("selection position %d holds %v, want %v", i,
				descs[i].Tx.Hash(), tx.Hash())
		}
	}

	// MiningDescs reports the same admission order.
	miningDescs := harness.txPool.MiningDescs()
	if len(miningDescs) != 3 || miningDescs[0].Tx != small1 {
		t.Fatal("MiningDescs does not report admission order")
	}

	// A budget with room for the two small transactions only skips the
	// big one but still takes the small one admitted after it.
	budget := uint64(wire.MaxBlockHeaderPayload+wire.MaxVarIntPayload) +
		uint64(small1.MsgTx().SerializeSize()) +
		uint64(small2.MsgTx().SerializeSize())
	descs = harness.txPool.TransactionsForBlockTemplate(budget)
	if len(descs) != 2 || descs[0].Tx != small1 || descs[1].Tx != small2 {
		t.Fatalf("size constrained selection is wrong: got %d entries",
			len(descs))
	}

	// The transaction count cap from the chain parameters binds too.
	params := chaincfg.SimNetParams
	params.MaxTxsPerBlock = 2
	capped := New(&Config{
		ChainParams:            &params,
		LedgerView:             harness.chain.ledgerView,
		CheckTransactionLedger: harness.chain.checkTransactionLedger,
	})
	for _, tx := range []*util.Tx{small1, big, small2} {
		if _, err := capped.ProcessTransaction(tx); err != nil {
			t.Fatalf("ProcessTransaction %v: %v", tx.Hash(), err)
		}
	}
	descs = capped.TransactionsForBlockTemplate(params.MaxBlockSize)
	if len(descs) != 2 {
		t.Fatalf("count constrained selection is wrong: got %d entries",
			len(descs))
	}

	// Conflicting entries cannot enter through admission, so plant one
	// directly and check that the selection never yields two spends of
	// one serial number.
	conflict := harness.createTxSpending(small1.MsgTx().SerialNumbers[0])
	harness.txPool.mtx.Lock()
	harness.txPool.addTransaction(conflict, 1)
	harness.txPool.mtx.Unlock()

	descs = harness.txPool.TransactionsForBlockTemplate(chaincfg.SimNetParams.MaxBlockSize)
	seenSerials := make(map[wire.SerialNumber]struct{})
	for _, desc := range descs {
		for _, serialNumber := range desc.Tx.MsgTx().SerialNumbers {
			if _, exists := seenSerials[serialNumber]; exists {
				t.Fatalf("template carries serial number %x twice",
					serialNumber)
			}
			seenSerials[serialNumber] = struct{}{}
		}
	}
	if len(descs) != 3 {
		t.Fatalf("conflicting entry was not skipped: got %d entries",
			len(descs))
	}
}

// TestExtractRejectCode verifies the error to reject code mapping.
func TestExtractRejectCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   RejectCode
		wantOK bool
	}{
		{"chain double spend", chainRuleError(consensus.RuleError{
			ErrorCode: consensus.ErrDoubleSpend}), RejectDuplicate, true},
		{"chain duplicate serial", chainRuleError(consensus.RuleError{
			ErrorCode: consensus.ErrDuplicateSerialNumber}), RejectDuplicate, true},
		{"stale ledger digest", chainRuleError(consensus.RuleError{
			ErrorCode: consensus.ErrStaleLedgerDigest}), RejectObsolete, true},
		{"malformed proof", chainRuleError(consensus.RuleError{
			ErrorCode: consensus.ErrMalformedProof}), RejectMalformed, true},
		{"bad transfer proof", chainRuleError(consensus.RuleError{
			ErrorCode: consensus.ErrBadTxProof}), RejectInvalid, true},
		{"tx rule error", txRuleError(RejectDuplicate, "dup"),
			RejectDuplicate, true},
		{"plain error", errors.New("boom"), RejectInvalid, false},
	}

	for i, test := range tests {
		code, ok := ExtractRejectCode(test.err)
		if code != test.want || ok != test.wantOK {
			t.Errorf("test #%d (%s): got (%v, %v), want (%v, %v)", i,
				test.name, code, ok, test.want, test.wantOK)
		}
	}
}
