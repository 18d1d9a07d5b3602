// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package consensus

import (
	"math/big"

	"github.com/umbranet/umbrad/util"
)

// maxRetargetFactor bounds how far a single difficulty adjustment may move
// the target. The observed timespan over the adjustment window is clamped to
// [expected/maxRetargetFactor, expected*maxRetargetFactor] before the new
// target is derived, which prevents oscillation attacks driven by extreme
// timestamp claims.
const maxRetargetFactor = 4

// requiredDifficulty calculates the required difficulty for a block built on
// top of the passed parent node.
//
// The calculation window is the DifficultyAdjustmentWindow most recent
// headers ending at the parent. Until enough history exists for a full
// window, the parent difficulty carries over unchanged, so early blocks keep
// the genesis difficulty. Given the same header sequence the result is the
// same on every node.
func (chain *Chain) requiredDifficulty(parent *blockNode) uint32 {
	// Genesis block.
	if parent == nil {
		return chain.powMaxBits
	}

	// The window spans windowSize headers, which is windowSize-1 steps
	// back from the parent. Without a full window the difficulty does not
	// adjust yet.
	windowSize := uint64(chain.params.DifficultyAdjustmentWindow)
	firstNode := parent.RelativeAncestor(windowSize - 1)
	if firstNode == nil {
		return parent.bits
	}

	// Scale the parent target by the ratio of the observed timespan over
	// the window to the expected timespan, with the observed timespan
	// clamped so a single adjustment can move the target at most
	// maxRetargetFactor in either direction.
	expectedTimespan := int64(windowSize) * chain.targetTimePerBlock
	actualTimespan := parent.timestamp - firstNode.timestamp
	minTimespan := expectedTimespan / maxRetargetFactor
	maxTimespan := expectedTimespan * maxRetargetFactor
	if actualTimespan < minTimespan {
		actualTimespan = minTimespan
	} else if actualTimespan > maxTimespan {
		actualTimespan = maxTimespan
	}

	// The result uses integer division which means it will be slightly
	// rounded down.
	newTarget := util.CompactToBig(parent.bits)
	newTarget.Mul(newTarget, big.NewInt(actualTimespan))
	newTarget.Div(newTarget, big.NewInt(expectedTimespan))
	if newTarget.Cmp(chain.params.PowMax) > 0 {
		newTarget.Set(chain.params.PowMax)
	}
	return util.BigToCompact(newTarget)
}

// NextRequiredDifficulty calculates the required difficulty for a block that
// will be built on top of the current selected tip.
//
// This function is safe for concurrent access.
func (chain *Chain) NextRequiredDifficulty() uint32 {
	chain.chainLock.RLock()
	difficulty := chain.requiredDifficulty(chain.selectedTip)
	chain.chainLock.RUnlock()
	return difficulty
}
