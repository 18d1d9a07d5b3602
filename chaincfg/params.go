// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"math/big"
	"time"

	"github.com/pkg/errors"

	"github.com/umbranet/umbrad/util/chainhash"
	"github.com/umbranet/umbrad/wire"
)

// These variables are the chain proof-of-work limit parameters for each
// default network.
var (
	// bigOne is 1 represented as a big.Int. It is defined here to avoid
	// the overhead of creating it multiple times.
	bigOne = big.NewInt(1)

	// mainPowMax is the highest proof of work value an umbra block can
	// have for the main network. It is the value 2^255 - 1.
	mainPowMax = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 255), bigOne)

	// regressionPowMax is the highest proof of work value an umbra block
	// can have for the regression test network. It is the value 2^255 - 1.
	regressionPowMax = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 255), bigOne)

	// testNetPowMax is the highest proof of work value an umbra block can
	// have for the test network. It is the value 2^239 - 1.
	testNetPowMax = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 239), bigOne)

	// simNetPowMax is the highest proof of work value an umbra block can
	// have for the simulation test network. It is the value 2^255 - 1.
	simNetPowMax = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 255), bigOne)

	// devNetPowMax is the highest proof of work value an umbra block can
	// have for the development network. It is the value 2^239 - 1.
	devNetPowMax = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 239), bigOne)
)

const (
	// targetTimePerBlock is the desired amount of time to generate each
	// block.
	targetTimePerBlock = 60 * time.Second

	// difficultyAdjustmentWindow is the number of most recent blocks whose
	// timestamps are inspected when calculating the required difficulty of
	// the next block.
	difficultyAdjustmentWindow = 60

	// maxTxsPerBlock is the maximum number of transactions a block may
	// carry on any of the default networks.
	maxTxsPerBlock = 1024

	// staleTipPruneDepth is how far below the selected tip the fork point
	// of a side chain may fall before the side chain's tip is discarded
	// from the tracked tip set.
	staleTipPruneDepth = 512

	// ledgerDigestHorizon is how many blocks behind the selected tip the
	// accumulator root referenced by a transaction may be and still be
	// accepted.
	ledgerDigestHorizon = 256
)

// Params defines an umbra network by its parameters. These parameters may be
// used by umbra applications to differentiate networks as well as data
// intended for one network from data intended for another network.
type Params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// Net defines the magic bytes used to identify the network.
	Net wire.UmbraNet

	// GenesisBlock defines the first block of the chain.
	GenesisBlock *wire.MsgBlock

	// GenesisHash is the starting block hash.
	GenesisHash *chainhash.Hash

	// PowMax defines the highest allowed proof of work value for a block
	// as a uint256.
	PowMax *big.Int

	// TargetTimePerBlock is the desired amount of time to generate each
	// block.
	TargetTimePerBlock time.Duration

	// DifficultyAdjustmentWindow is the number of most recent blocks whose
	// timestamps are inspected when calculating the required difficulty of
	// the next block.
	DifficultyAdjustmentWindow int

	// MaxBlockSize is the maximum serialized size of a block in bytes.
	MaxBlockSize uint64

	// MaxTxsPerBlock is the maximum number of transactions a block may
	// carry.
	MaxTxsPerBlock int

	// StaleTipPruneDepth is how far below the selected tip the fork point
	// of a side chain may fall before the side chain's tip is discarded
	// from the tracked tip set. Stored blocks are kept; only the tip
	// bookkeeping is bounded by this value.
	StaleTipPruneDepth uint64

	// LedgerDigestHorizon is how many blocks behind the selected tip the
	// accumulator root referenced by a transaction's ledger digest may be
	// and still be accepted.
	LedgerDigestHorizon uint64
}

// MainNetParams defines the network parameters for the main umbra network.
var MainNetParams = Params{
	Name: "mainnet",
	Net:  wire.Mainnet,

	// Chain parameters
	GenesisBlock:               &genesisBlock,
	GenesisHash:                &genesisHash,
	PowMax:                     mainPowMax,
	TargetTimePerBlock:         targetTimePerBlock,
	DifficultyAdjustmentWindow: difficultyAdjustmentWindow,
	MaxBlockSize:               wire.MaxBlockPayload,
	MaxTxsPerBlock:             maxTxsPerBlock,
	StaleTipPruneDepth:         staleTipPruneDepth,
	LedgerDigestHorizon:        ledgerDigestHorizon,
}

// RegressionNetParams defines the network parameters for the regression test
// umbra network. Not to be confused with the test network, this network is
// sometimes simply called "testnet".
var RegressionNetParams = Params{
	Name: "regtest",
	Net:  wire.RegTest,

	// Chain parameters
	GenesisBlock:               &regTestGenesisBlock,
	GenesisHash:                &regTestGenesisHash,
	PowMax:                     regressionPowMax,
	TargetTimePerBlock:         targetTimePerBlock,
	DifficultyAdjustmentWindow: 8,
	MaxBlockSize:               wire.MaxBlockPayload,
	MaxTxsPerBlock:             maxTxsPerBlock,
	StaleTipPruneDepth:         32,
	LedgerDigestHorizon:        16,
}

// TestNetParams defines the network parameters for the test umbra network.
var TestNetParams = Params{
	Name: "testnet",
	Net:  wire.Testnet,

	// Chain parameters
	GenesisBlock:               &testNetGenesisBlock,
	GenesisHash:                &testNetGenesisHash,
	PowMax:                     testNetPowMax,
	TargetTimePerBlock:         targetTimePerBlock,
	DifficultyAdjustmentWindow: difficultyAdjustmentWindow,
	MaxBlockSize:               wire.MaxBlockPayload,
	MaxTxsPerBlock:             maxTxsPerBlock,
	StaleTipPruneDepth:         staleTipPruneDepth,
	LedgerDigestHorizon:        ledgerDigestHorizon,
}

// SimNetParams defines the network parameters for the simulation test umbra
// network. This network is similar to the normal test network except it is
// intended for private use within a group of individuals doing simulation
// testing. The functionality is intended to differ in that the only nodes
// which are specifically specified are used to create the network rather than
// following normal discovery rules. This is important as otherwise it would
// just turn into another public testnet.
var SimNetParams = Params{
	Name: "simnet",
	Net:  wire.Simnet,

	// Chain parameters
	GenesisBlock:               &simNetGenesisBlock,
	GenesisHash:                &simNetGenesisHash,
	PowMax:                     simNetPowMax,
	TargetTimePerBlock:         10 * time.Second,
	DifficultyAdjustmentWindow: 8,
	MaxBlockSize:               wire.MaxBlockPayload,
	MaxTxsPerBlock:             maxTxsPerBlock,
	StaleTipPruneDepth:         32,
	LedgerDigestHorizon:        16,
}

// DevNetParams defines the network parameters for the development umbra
// network.
var DevNetParams = Params{
	Name: "devnet",
	Net:  wire.Devnet,

	// Chain parameters
	GenesisBlock:               &devNetGenesisBlock,
	GenesisHash:                &devNetGenesisHash,
	PowMax:                     devNetPowMax,
	TargetTimePerBlock:         targetTimePerBlock,
	DifficultyAdjustmentWindow: difficultyAdjustmentWindow,
	MaxBlockSize:               wire.MaxBlockPayload,
	MaxTxsPerBlock:             maxTxsPerBlock,
	StaleTipPruneDepth:         staleTipPruneDepth,
	LedgerDigestHorizon:        ledgerDigestHorizon,
}

var (
	// ErrDuplicateNet describes an error where the parameters for an umbra
	// network could not be set due to the network already being a standard
	// network or previously-registered via this package.
	ErrDuplicateNet = errors.New("duplicate umbra network")

	registeredNets = make(map[wire.UmbraNet]struct{})
)

// Register registers the network parameters for an umbra network. This may
// error with ErrDuplicateNet if the network is already registered (either
// due to a previous Register call, or the network being one of the default
// networks).
//
// Network parameters should be registered into this package by a main package
// as early as possible. Then, library packages may lookup networks or network
// parameters based on inputs and relying on the network being registered.
func Register(params *Params) error {
	if _, ok := registeredNets[params.Net]; ok {
		return ErrDuplicateNet
	}
	registeredNets[params.Net] = struct{}{}

	return nil
}

// mustRegister performs the same function as Register except it panics if
// there is an error. This should only be called from package init functions.
func mustRegister(params *Params) {
	if err := Register(params); err != nil {
		panic("failed to register network: " + err.Error())
	}
}

func init() {
	// Register all default networks when the package is initialized.
	mustRegister(&MainNetParams)
	mustRegister(&RegressionNetParams)
	mustRegister(&TestNetParams)
	mustRegister(&SimNetParams)
	mustRegister(&DevNetParams)
}
