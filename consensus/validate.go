// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package consensus

import (
	"fmt"
	"time"

	"github.com/umbranet/umbrad/database"
	"github.com/umbranet/umbrad/dbaccess"
	"github.com/umbranet/umbrad/util"
	"github.com/umbranet/umbrad/util/chainhash"
	"github.com/umbranet/umbrad/wire"
)

const (
	// MaxTimeOffsetSeconds is the maximum number of seconds a block time
	// is allowed to be ahead of the current time.  This is currently 2
	// hours.
	MaxTimeOffsetSeconds = 2 * 60 * 60
)

// CheckTransactionSanity performs some preliminary checks on a transaction
// to ensure it is sane.  These checks are context free.
func CheckTransactionSanity(tx *util.Tx) error {
	// A transaction must spend at least one record and create at least
	// one record.
	msgTx := tx.MsgTx()
	if len(msgTx.SerialNumbers) == 0 {
		return ruleError(ErrNoSerialNumbers, "transaction has no serial "+
			"numbers")
	}
	if len(msgTx.Commitments) == 0 {
		return ruleError(ErrNoCommitments, "transaction has no commitments")
	}

	// A transaction must not carry more serial numbers or commitments
	// than the protocol arity bounds allow.
	if len(msgTx.SerialNumbers) > wire.MaxSerialNumbersPerTx {
		str := fmt.Sprintf("transaction contains too many serial numbers - "+
			"got %d, max %d", len(msgTx.SerialNumbers),
			wire.MaxSerialNumbersPerTx)
		return ruleError(ErrTxTooBig, str)
	}
	if len(msgTx.Commitments) > wire.MaxCommitmentsPerTx {
		str := fmt.Sprintf("transaction contains too many commitments - "+
			"got %d, max %d", len(msgTx.Commitments),
			wire.MaxCommitmentsPerTx)
		return ruleError(ErrTxTooBig, str)
	}

	// A transaction must not exceed the maximum allowed payload when
	// serialized.
	serializedTxSize := msgTx.SerializeSize()
	if serializedTxSize > wire.MaxTxPayload() {
		str := fmt.Sprintf("serialized transaction is too big - got "+
			"%d, max %d", serializedTxSize, wire.MaxTxPayload())
		return ruleError(ErrTxTooBig, str)
	}

	// Check for duplicate serial numbers. A transaction that spends the
	// same record twice can never be valid.
	existingSerialNumbers := make(map[wire.SerialNumber]struct{})
	for _, serialNumber := range msgTx.SerialNumbers {
		if _, exists := existingSerialNumbers[serialNumber]; exists {
			return ruleError(ErrDuplicateSerialNumber, "transaction "+
				"contains duplicate serial numbers")
		}
		existingSerialNumbers[serialNumber] = struct{}{}
	}

	// Check for duplicate commitments. Commitments are binding to the
	// record they commit to, so a duplicate can only be a copy.
	existingCommitments := make(map[wire.Commitment]struct{})
	for _, commitment := range msgTx.Commitments {
		if _, exists := existingCommitments[commitment]; exists {
			return ruleError(ErrDuplicateCommitment, "transaction "+
				"contains duplicate commitments")
		}
		existingCommitments[commitment] = struct{}{}
	}

	// The public value balance must not be negative or higher than the
	// maximum allowed amount.
	if msgTx.ValueBalance < 0 {
		str := fmt.Sprintf("transaction has negative value balance of %d",
			msgTx.ValueBalance)
		return ruleError(ErrBadValueBalance, str)
	}
	if msgTx.ValueBalance > util.MaxObol {
		str := fmt.Sprintf("transaction has value balance of %d which is "+
			"higher than max allowed value of %d", msgTx.ValueBalance,
			util.MaxObol)
		return ruleError(ErrBadValueBalance, str)
	}

	// A transfer proof must be present. Whether it verifies is a ledger
	// dependent question answered later.
	if len(msgTx.Proof) == 0 {
		return ruleError(ErrMalformedProof, "transaction proof is empty")
	}

	return nil
}

// LedgerView provides the ledger facts transaction validation runs against:
// which serial numbers are spent and which accumulator roots belong to the
// canonical chain. Block validation uses the canonical view backed by
// committed state; the mempool layers its own pending spends on top of it.
type LedgerView interface {
	// SerialNumberSpent returns whether the given serial number is
	// already marked spent in this view.
	SerialNumberSpent(serialNumber *wire.SerialNumber) (bool, error)

	// AccumulatorHeight returns the chain height whose accumulator root
	// equals the given digest. found is false when no canonical snapshot
	// matches.
	AccumulatorHeight(root *chainhash.Hash) (height uint64, found bool, err error)

	// Height returns the height this view validates for, which is the
	// height a transaction passing the checks would be connected at.
	Height() uint64
}

// canonicalLedgerView is the LedgerView backed by committed chain state.
type canonicalLedgerView struct {
	databaseContext *dbaccess.DatabaseContext
	height          uint64
}

func (view *canonicalLedgerView) SerialNumberSpent(serialNumber *wire.SerialNumber) (bool, error) {
	return dbaccess.HasSerialNumber(view.databaseContext, serialNumber[:])
}

func (view *canonicalLedgerView) AccumulatorHeight(root *chainhash.Hash) (uint64, bool, error) {
	height, err := dbaccess.FetchAccumulatorHeightByRoot(view.databaseContext, root)
	if err != nil {
		if database.IsNotFoundError(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return height, true, nil
}

func (view *canonicalLedgerView) Height() uint64 {
	return view.height
}

// transferPublicInputs assembles the public input statement a transaction's
// transfer proof is checked against.
func transferPublicInputs(msgTx *wire.MsgTx) *TransferPublicInputs {
	serialNumbers := make([][]byte, len(msgTx.SerialNumbers))
	for i := range msgTx.SerialNumbers {
		serialNumbers[i] = msgTx.SerialNumbers[i][:]
	}
	commitments := make([][]byte, len(msgTx.Commitments))
	for i := range msgTx.Commitments {
		commitments[i] = msgTx.Commitments[i][:]
	}
	return &TransferPublicInputs{
		SerialNumbers: serialNumbers,
		Commitments:   commitments,
		ValueBalance:  msgTx.ValueBalance,
		LedgerDigest:  &msgTx.LedgerDigest,
		Memo:          msgTx.Memo,
	}
}

// CheckTransactionLedger performs the ledger dependent checks on a
// transaction: its serial numbers must be unspent in the given view, its
// ledger digest must reference a canonical accumulator state no older than
// the digest horizon, and its transfer proof must verify against the public
// values it declares.
//
// The transaction is expected to have already passed
// CheckTransactionSanity. The checks short-circuit in the order above.
func (chain *Chain) CheckTransactionLedger(tx *util.Tx, view LedgerView) error {
	msgTx := tx.MsgTx()

	// Each serial number must not already be spent in the view this
	// transaction would connect under.
	for i := range msgTx.SerialNumbers {
		serialNumber := &msgTx.SerialNumbers[i]
		spent, err := view.SerialNumberSpent(serialNumber)
		if err != nil {
			return err
		}
		if spent {
			str := fmt.Sprintf("transaction %s spends serial number %x "+
				"which is already spent", tx.Hash(), *serialNumber)
			return ruleError(ErrDoubleSpend, str)
		}
	}

	// The ledger digest the proof was built against must be a canonical
	// accumulator state. A digest from an abandoned branch can never be
	// checked against this chain.
	digestHeight, found, err := view.AccumulatorHeight(&msgTx.LedgerDigest)
	if err != nil {
		return err
	}
	if !found {
		str := fmt.Sprintf("transaction %s was built against ledger "+
			"digest %s which is not a canonical accumulator state",
			tx.Hash(), msgTx.LedgerDigest)
		return ruleError(ErrStaleLedgerDigest, str)
	}

	// The digest must also be recent. Bounding its depth bounds how many
	// accumulator snapshots every node has to retain.
	if view.Height() > digestHeight+chain.params.LedgerDigestHorizon {
		str := fmt.Sprintf("transaction %s was built against the ledger "+
			"digest of height %d which is too far behind validation "+
			"height %d", tx.Hash(), digestHeight, view.Height())
		return ruleError(ErrStaleLedgerDigest, str)
	}

	// The transfer proof must attest to exactly the public values the
	// transaction declares.
	err = chain.proofVerifier.VerifyTransferProof(msgTx.Proof,
		transferPublicInputs(msgTx))
	if err != nil {
		str := fmt.Sprintf("transaction %s proof failed verification: %s",
			tx.Hash(), err)
		return ruleError(ErrBadTxProof, str)
	}

	// The public value balance must stay within the valid monetary range
	// regardless of what the proof attests to.
	if msgTx.ValueBalance < 0 || msgTx.ValueBalance > util.MaxObol {
		str := fmt.Sprintf("transaction %s has value balance of %d which "+
			"is outside the valid range", tx.Hash(), msgTx.ValueBalance)
		return ruleError(ErrBadValueBalance, str)
	}

	return nil
}

// checkBlockHeaderSanity performs some preliminary checks on a block header
// to ensure it is sane before continuing with processing.  These checks are
// context free.
func (chain *Chain) checkBlockHeaderSanity(header *wire.BlockHeader) error {
	// A block timestamp must not have a greater precision than one second.
	// This check is necessary because Go time.Time values support
	// nanosecond precision whereas the consensus rules only apply to
	// seconds and it's much nicer to deal with standard Go time values
	// instead of converting to seconds everywhere.
	if !header.Timestamp.Equal(time.Unix(header.Timestamp.Unix(), 0)) {
		str := fmt.Sprintf("block timestamp of %v has a higher "+
			"precision than one second", header.Timestamp)
		return ruleError(ErrInvalidTime, str)
	}

	// Ensure the block time is not too far in the future.
	maxTimestamp := chain.timeSource.Now().Add(time.Second *
		MaxTimeOffsetSeconds)
	if header.Timestamp.After(maxTimestamp) {
		str := fmt.Sprintf("block timestamp of %v is too far in the "+
			"future", header.Timestamp)
		return ruleError(ErrTimeTooNew, str)
	}

	return nil
}

// checkBlockSanity performs some preliminary checks on a block to ensure it
// is sane before continuing with block processing.  These checks are
// context free.
func (chain *Chain) checkBlockSanity(block *util.Block) error {
	msgBlock := block.MsgBlock()
	header := &msgBlock.Header
	err := chain.checkBlockHeaderSanity(header)
	if err != nil {
		return err
	}

	// Build merkle tree and ensure the calculated merkle root matches the
	// entry in the block header.  This also has the effect of caching all
	// of the transaction hashes in the block to speed up future hash
	// checks.
	transactions := block.Transactions()
	calculatedMerkleRoot := CalcMerkleRoot(transactions)
	if !header.MerkleRoot.IsEqual(&calculatedMerkleRoot) {
		str := fmt.Sprintf("block merkle root is invalid - block "+
			"header indicates %v, but calculated value is %v",
			header.MerkleRoot, calculatedMerkleRoot)
		return ruleError(ErrBadMerkleRoot, str)
	}

	// A block must not have more transactions than the maximum allowed.
	numTx := len(msgBlock.Transactions)
	if numTx > chain.params.MaxTxsPerBlock {
		str := fmt.Sprintf("block contains too many transactions - "+
			"got %d, max %d", numTx, chain.params.MaxTxsPerBlock)
		return ruleError(ErrBlockTooBig, str)
	}

	// A block must not exceed the maximum allowed block payload when
	// serialized.
	serializedSize := uint64(msgBlock.SerializeSize())
	if serializedSize > chain.params.MaxBlockSize {
		str := fmt.Sprintf("serialized block is too big - got %d, "+
			"max %d", serializedSize, chain.params.MaxBlockSize)
		return ruleError(ErrBlockTooBig, str)
	}

	// Do some preliminary checks on each transaction to ensure they are
	// sane before continuing.
	for _, tx := range transactions {
		err := CheckTransactionSanity(tx)
		if err != nil {
			return err
		}
	}

	// Check for duplicate transactions.  This check will be fairly quick
	// since the transaction hashes are already cached due to building the
	// merkle tree above.
	existingTxHashes := make(map[chainhash.Hash]struct{})
	for _, tx := range transactions {
		hash := tx.Hash()
		if _, exists := existingTxHashes[*hash]; exists {
			str := fmt.Sprintf("block contains duplicate "+
				"transaction %v", hash)
			return ruleError(ErrDuplicateTx, str)
		}
		existingTxHashes[*hash] = struct{}{}
	}

	// No serial number may be spent twice within the same block, whether
	// by one transaction or by two.
	existingSerialNumbers := make(map[wire.SerialNumber]struct{})
	for _, tx := range transactions {
		for _, serialNumber := range tx.MsgTx().SerialNumbers {
			if _, exists := existingSerialNumbers[serialNumber]; exists {
				str := fmt.Sprintf("block contains duplicate serial "+
					"number %x", serialNumber)
				return ruleError(ErrDuplicateSerialNumber, str)
			}
			existingSerialNumbers[serialNumber] = struct{}{}
		}
	}

	return nil
}

// checkBlockHeaderContext performs several validation checks on the block
// header which depend on its position within the block chain.
//
// This function MUST be called with the chain state lock held (for writes).
func (chain *Chain) checkBlockHeaderContext(header *wire.BlockHeader, parent *blockNode, flags BehaviorFlags) error {
	// Ensure the difficulty specified in the block header matches
	// the calculated difficulty based on the previous block and
	// difficulty retarget rules.
	expectedDifficulty := chain.requiredDifficulty(parent)
	blockDifficulty := header.Bits
	if blockDifficulty != expectedDifficulty {
		str := "block difficulty of %d is not the expected value of %d"
		str = fmt.Sprintf(str, blockDifficulty, expectedDifficulty)
		return ruleError(ErrUnexpectedDifficulty, str)
	}

	// Ensure the timestamp for the block header is after the median time
	// of the last several blocks (medianTimeBlocks).
	medianTime := parent.PastMedianTime()
	if !header.Timestamp.After(medianTime) {
		str := "block timestamp of %s is not after expected %s"
		str = fmt.Sprintf(str, header.Timestamp, medianTime)
		return ruleError(ErrTimeTooOld, str)
	}

	// Ensure the proof of succinct work holds for the target encoded in
	// the header bits just validated.
	return chain.checkProofOfWork(header, flags)
}

// checkBlockContext performs several validation checks on the block which
// depend on its position within the block chain.
//
// This function MUST be called with the chain state lock held (for writes).
func (chain *Chain) checkBlockContext(block *util.Block, parent *blockNode, flags BehaviorFlags) error {
	return chain.checkBlockHeaderContext(&block.MsgBlock().Header, parent, flags)
}

// checkNoCanonicalDoubleSpends rejects a block carrying a transaction that
// spends a serial number already spent on the selected chain. The check
// runs against the committed spent set no matter which parent the block
// builds on, so a spend that conflicts with recorded history refuses its
// block up front instead of the block being stored as a side chain
// candidate.
//
// This function MUST be called with the chain state lock held (for writes).
func (chain *Chain) checkNoCanonicalDoubleSpends(block *util.Block) error {
	for _, tx := range block.Transactions() {
		msgTx := tx.MsgTx()
		for i := range msgTx.SerialNumbers {
			serialNumber := &msgTx.SerialNumbers[i]
			spent, err := dbaccess.HasSerialNumber(chain.databaseContext, serialNumber[:])
			if err != nil {
				return err
			}
			if spent {
				str := fmt.Sprintf("transaction %s spends serial number %x "+
					"which is already spent", tx.Hash(), *serialNumber)
				return ruleError(ErrDoubleSpend, str)
			}
		}
	}

	return nil
}

// checkConnectBlock performs the ledger dependent checks for every
// transaction in the block against the state the block would connect on
// top of. The accumulator root transition itself is verified when the
// block is applied.
//
// This function MUST be called with the chain state lock held (for writes).
func (chain *Chain) checkConnectBlock(node *blockNode, block *util.Block) error {
	view := &canonicalLedgerView{
		databaseContext: chain.databaseContext,
		height:          node.height,
	}

	for _, tx := range block.Transactions() {
		err := chain.CheckTransactionLedger(tx, view)
		if err != nil {
			return err
		}
	}

	return nil
}
