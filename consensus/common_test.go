// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package consensus

import (
	"encoding/binary"
	"io/ioutil"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kaspanet/go-muhash"
	"github.com/pkg/errors"

	"github.com/umbranet/umbrad/dbaccess"
	"github.com/umbranet/umbrad/util"
	"github.com/umbranet/umbrad/util/chainhash"
	"github.com/umbranet/umbrad/wire"
)

// testProofVerifier implements ProofVerifier for tests. Every proof is
// accepted except the ones it was explicitly told to reject, keyed by the
// proof's double sha 256 hash.
type testProofVerifier struct {
	rejected map[chainhash.Hash]struct{}
}

func newTestProofVerifier() *testProofVerifier {
	return &testProofVerifier{rejected: make(map[chainhash.Hash]struct{})}
}

// rejectProof makes every later verification of the given proof blob fail.
func (v *testProofVerifier) rejectProof(proof []byte) {
	v.rejected[chainhash.DoubleHashH(proof)] = struct{}{}
}

func (v *testProofVerifier) VerifyTransferProof(proof []byte, pub *TransferPublicInputs) error {
	if _, ok := v.rejected[chainhash.DoubleHashH(proof)]; ok {
		return errors.New("transfer proof rejected")
	}
	return nil
}

func (v *testProofVerifier) VerifyPoSWProof(proof []byte, bindingHash *chainhash.Hash, target *big.Int) error {
	if _, ok := v.rejected[chainhash.DoubleHashH(proof)]; ok {
		return errors.New("work proof rejected")
	}
	return nil
}

// chainSetup is used to create a new db and chain instance with the genesis
// block already inserted. In addition to the new chain instance, it returns
// a teardown function the caller should invoke when done testing to clean
// up. When the passed config already carries a database context the caller
// keeps ownership of it and teardown leaves it open.
func chainSetup(dbName string, config Config) (*Chain, func(), error) {
	teardown := func() {}
	if config.DatabaseContext == nil {
		tmpDir, err := ioutil.TempDir("", "chainSetup")
		if err != nil {
			return nil, nil, errors.Errorf("error creating temp dir: %s", err)
		}
		dbPath := filepath.Join(tmpDir, dbName)
		databaseContext, err := dbaccess.New(dbPath)
		if err != nil {
			os.RemoveAll(tmpDir)
			return nil, nil, errors.Errorf("error creating db: %s", err)
		}
		config.DatabaseContext = databaseContext
		teardown = func() {
			databaseContext.Close()
			os.RemoveAll(tmpDir)
		}
	}

	if config.TimeSource == nil {
		config.TimeSource = NewTimeSource()
	}
	if config.ProofVerifier == nil {
		config.ProofVerifier = newTestProofVerifier()
	}

	chain, err := New(&config)
	if err != nil {
		teardown()
		return nil, nil, errors.Errorf("failed to create chain instance: %s", err)
	}
	return chain, teardown, nil
}

// testChainBuilder manufactures solved blocks on top of arbitrary parents.
// It tracks the accumulator state of every branch it has built on so the
// headers it produces carry the accumulator root the chain will compute
// when connecting them.
type testChainBuilder struct {
	t     *testing.T
	chain *Chain

	accumulators map[chainhash.Hash]*muhash.MuHash

	serialCounter     uint64
	commitmentCounter uint64
	proofCounter      uint64
}

func newTestChainBuilder(t *testing.T, chain *Chain) *testChainBuilder {
	genesisAccumulator := muhash.NewMuHash()
	for _, tx := range chain.params.GenesisBlock.Transactions {
		for _, commitment := range tx.Commitments {
			genesisAccumulator.Add(commitment[:])
		}
	}

	builder := &testChainBuilder{
		t:            t,
		chain:        chain,
		accumulators: make(map[chainhash.Hash]*muhash.MuHash),
	}
	builder.accumulators[*chain.params.GenesisHash] = genesisAccumulator
	return builder
}

// nextSerialNumber returns a serial number this builder has never handed
// out before.
func (builder *testChainBuilder) nextSerialNumber() wire.SerialNumber {
	builder.serialCounter++
	var serialNumber wire.SerialNumber
	binary.LittleEndian.PutUint64(serialNumber[:8], builder.serialCounter)
	return serialNumber
}

// nextCommitment returns a commitment this builder has never handed out
// before.
func (builder *testChainBuilder) nextCommitment() wire.Commitment {
	builder.commitmentCounter++
	var commitment wire.Commitment
	binary.LittleEndian.PutUint64(commitment[:8], builder.commitmentCounter)
	return commitment
}

// createTx returns a transaction consuming fresh serial numbers and
// creating fresh commitments, declared against the given ledger digest.
// Transaction proofs are 32 bytes while block proofs are 16, so the two
// kinds never collide in the proof verifier's rejection set.
func (builder *testChainBuilder) createTx(numSerialNumbers, numCommitments int, ledgerDigest chainhash.Hash) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	for i := 0; i < numSerialNumbers; i++ {
		tx.AddSerialNumber(builder.nextSerialNumber())
	}
	for i := 0; i < numCommitments; i++ {
		tx.AddCommitment(builder.nextCommitment())
	}
	tx.LedgerDigest = ledgerDigest
	tx.ValueBalance = 1

	builder.proofCounter++
	tx.Proof = make([]byte, 32)
	binary.LittleEndian.PutUint64(tx.Proof[8:16], builder.proofCounter)

	return tx
}

// solveBlock attaches a proof blob to the header whose hash satisfies the
// target difficulty encoded in the header bits. The proof carries a salt
// so that no two solved headers ever share a proof.
func (builder *testChainBuilder) solveBlock(header *wire.BlockHeader) {
	builder.proofCounter++
	target := util.CompactToBig(header.Bits)
	proof := make([]byte, 16)
	binary.LittleEndian.PutUint64(proof[8:], builder.proofCounter)
	for attempt := uint64(0); ; attempt++ {
		binary.LittleEndian.PutUint64(proof[:8], attempt)
		proofHash := chainhash.DoubleHashH(proof)
		if util.HashToBig(&proofHash).Cmp(target) <= 0 {
			header.Proof = proof
			return
		}
	}
}

// buildBlock assembles and solves a block on top of the given parent
// carrying the given transactions. The parent block must already have been
// processed by the chain.
func (builder *testChainBuilder) buildBlock(parentHash *chainhash.Hash, transactions []*wire.MsgTx) *util.Block {
	return builder.buildBlockWithTime(parentHash, transactions, 0)
}

// buildBlockWithTime is buildBlock with an explicit header timestamp in
// unix seconds. A zero timestamp means one target block interval after the
// parent.
func (builder *testChainBuilder) buildBlockWithTime(parentHash *chainhash.Hash, transactions []*wire.MsgTx, timestamp int64) *util.Block {
	parent := builder.chain.index.LookupNode(parentHash)
	if parent == nil {
		builder.t.Fatalf("buildBlock: parent %s is not in the block index", parentHash)
	}
	parentAccumulator, ok := builder.accumulators[*parentHash]
	if !ok {
		builder.t.Fatalf("buildBlock: no accumulator state tracked for parent %s", parentHash)
	}

	accumulator := parentAccumulator.Clone()
	utilTxs := make([]*util.Tx, 0, len(transactions))
	for _, tx := range transactions {
		for _, commitment := range tx.Commitments {
			accumulator.Add(commitment[:])
		}
		utilTxs = append(utilTxs, util.NewTx(tx))
	}
	accumulatorRoot := chainhash.Hash(accumulator.Finalize())

	if timestamp == 0 {
		timestamp = parent.timestamp + builder.chain.targetTimePerBlock
	}
	header := &wire.BlockHeader{
		Version:         1,
		PrevBlock:       *parentHash,
		MerkleRoot:      CalcMerkleRoot(utilTxs),
		AccumulatorRoot: accumulatorRoot,
		Timestamp:       time.Unix(timestamp, 0),
		Bits:            builder.chain.requiredDifficulty(parent),
	}
	builder.solveBlock(header)

	msgBlock := wire.NewMsgBlock(header)
	for _, tx := range transactions {
		msgBlock.AddTransaction(tx)
	}

	builder.accumulators[msgBlock.BlockHash()] = accumulator
	return util.NewBlock(msgBlock)
}

// addBlock builds a block on top of the given parent and runs it through
// ProcessBlock, failing the test on rejection. It returns the processed
// block and whether it landed on the selected chain.
func (builder *testChainBuilder) addBlock(parentHash *chainhash.Hash, transactions []*wire.MsgTx) (*util.Block, bool) {
	block := builder.buildBlock(parentHash, transactions)
	isMainChain, err := builder.chain.ProcessBlock(block, BFNone)
	if err != nil {
		builder.t.Fatalf("ProcessBlock %s: %v", block.Hash(), err)
	}
	return block, isMainChain
}

// extendChain adds numBlocks empty blocks one on top of the other starting
// at parentHash and returns the hash of the last one.
func (builder *testChainBuilder) extendChain(parentHash *chainhash.Hash, numBlocks int) *chainhash.Hash {
	tipHash := parentHash
	for i := 0; i < numBlocks; i++ {
		block, _ := builder.addBlock(tipHash, nil)
		tipHash = block.Hash()
	}
	return tipHash
}

// assertRuleError fails the test unless err is a RuleError carrying the
// wanted error code.
func assertRuleError(t *testing.T, err error, wantCode ErrorCode) {
	t.Helper()
	var ruleErr RuleError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("error %v is not a RuleError", err)
	}
	if ruleErr.ErrorCode != wantCode {
		t.Fatalf("wrong rule error code: got %v, want %v", ruleErr.ErrorCode, wantCode)
	}
}
