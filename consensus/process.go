package consensus

import (
	"fmt"

	"github.com/umbranet/umbrad/logger"
	"github.com/umbranet/umbrad/util"
)

// BehaviorFlags is a bitmask defining tweaks to the normal behavior when
// performing chain processing and consensus rules checks.
type BehaviorFlags uint32

const (
	// BFNoPoWCheck may be set to indicate the proof of work checks, both
	// that a block hashes to a value less than the required target and
	// that it carries a valid succinct proof, will not be performed.
	BFNoPoWCheck BehaviorFlags = 1 << iota

	// BFNone is a convenience value to specifically indicate no flags.
	BFNone BehaviorFlags = 0
)

// ProcessBlock is the main workhorse for handling insertion of new blocks
// into the block chain. It includes functionality such as rejecting
// duplicate blocks, ensuring blocks follow all rules, and insertion into
// the block chain along with chain selection and reorganization.
//
// It returns whether the block ended up on the selected chain, either by
// extending it or by triggering a reorganize that adopted the block's
// branch.
//
// This function is safe for concurrent access.
func (chain *Chain) ProcessBlock(block *util.Block, flags BehaviorFlags) (bool, error) {
	chain.chainLock.Lock()
	defer chain.chainLock.Unlock()
	return chain.processBlockNoLock(block, flags)
}

func (chain *Chain) processBlockNoLock(block *util.Block, flags BehaviorFlags) (bool, error) {
	blockHash := block.Hash()
	log.Tracef("Processing block %s", blockHash)

	// The block must not already exist in the chain.
	if chain.index.HaveBlock(blockHash) {
		str := fmt.Sprintf("already have block %s", blockHash)
		return false, ruleError(ErrDuplicateBlock, str)
	}

	// Perform preliminary sanity checks on the block and its
	// transactions.
	err := chain.checkBlockSanity(block)
	if err != nil {
		return false, err
	}

	isMainChain, err := chain.maybeAcceptBlock(block, flags)
	if err != nil {
		return false, err
	}

	log.Debugf("Accepted block %s", blockHash)
	log.Debugf("%s", logger.NewLogClosure(func() string {
		return fmt.Sprintf("Selected tip: %s (height %d). Block count: %d. Tracked tips: %d",
			chain.selectedTip.hash, chain.selectedTip.height,
			chain.blockCount, len(chain.tips))
	}))

	return isMainChain, nil
}
