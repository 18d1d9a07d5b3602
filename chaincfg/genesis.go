// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"time"

	"github.com/umbranet/umbrad/util/chainhash"
	"github.com/umbranet/umbrad/wire"
)

// genesisProof is the proof blob embedded in the genesis block headers of
// every network. Genesis blocks are adopted as-is and never run through proof
// verification, which leaves room for a short motto where a succinct proof
// would otherwise go.
var genesisProof = []byte{
	0x73, 0x75, 0x62, 0x20, 0x75, 0x6d, 0x62, 0x72, /* |sub umbr| */
	0x61, 0x20, 0x66, 0x6c, 0x6f, 0x72, 0x65, 0x6f, /* |a floreo| */
	0x20, 0x30, 0x31, 0x2f, 0x4a, 0x75, 0x6c, 0x2f, /* | 01/Jul/| */
	0x32, 0x30, 0x32, 0x34, /* |2024| */
}

// genesisMerkleRoot is the merkle root of the genesis block for the main
// network. Genesis blocks carry no transactions, so the merkle root is the
// zero hash.
var genesisMerkleRoot = chainhash.Hash{}

// genesisHash is the hash of the first block in the block chain for the main
// network (genesis block).
var genesisHash = genesisBlock.BlockHash()

// genesisBlock defines the genesis block of the block chain which serves as
// the public record ledger for the main network.
var genesisBlock = wire.MsgBlock{
	Header: wire.BlockHeader{
		Version:         1,
		PrevBlock:       chainhash.Hash{},
		MerkleRoot:      genesisMerkleRoot,
		AccumulatorRoot: chainhash.Hash{},
		Timestamp:       time.Unix(0x6681f180, 0), // 2024-07-01 00:00:00 +0000 UTC
		Bits:            0x1e00ffff,
		Nonce:           0x1b60f6e5,
		Proof:           genesisProof,
	},
	Transactions: []*wire.MsgTx{},
}

// regTestGenesisHash is the hash of the first block in the block chain for the
// regression test network (genesis block).
var regTestGenesisHash = regTestGenesisBlock.BlockHash()

// regTestGenesisMerkleRoot is the merkle root of the genesis block for the
// regression test network. It is the same as the merkle root for the main
// network.
var regTestGenesisMerkleRoot = genesisMerkleRoot

// regTestGenesisBlock defines the genesis block of the block chain which
// serves as the public record ledger for the regression test network.
var regTestGenesisBlock = wire.MsgBlock{
	Header: wire.BlockHeader{
		Version:         1,
		PrevBlock:       chainhash.Hash{},
		MerkleRoot:      regTestGenesisMerkleRoot,
		AccumulatorRoot: chainhash.Hash{},
		Timestamp:       time.Unix(0x6681f180, 0), // 2024-07-01 00:00:00 +0000 UTC
		Bits:            0x207fffff,
		Nonce:           0x0000000000000002,
		Proof:           genesisProof,
	},
	Transactions: []*wire.MsgTx{},
}

// testNetGenesisHash is the hash of the first block in the block chain for the
// test network (genesis block).
var testNetGenesisHash = testNetGenesisBlock.BlockHash()

// testNetGenesisMerkleRoot is the merkle root of the genesis block for the
// test network. It is the same as the merkle root for the main network.
var testNetGenesisMerkleRoot = genesisMerkleRoot

// testNetGenesisBlock defines the genesis block of the block chain which
// serves as the public record ledger for the test network.
var testNetGenesisBlock = wire.MsgBlock{
	Header: wire.BlockHeader{
		Version:         1,
		PrevBlock:       chainhash.Hash{},
		MerkleRoot:      testNetGenesisMerkleRoot,
		AccumulatorRoot: chainhash.Hash{},
		Timestamp:       time.Unix(0x6681f180, 0), // 2024-07-01 00:00:00 +0000 UTC
		Bits:            0x1f007fff,
		Nonce:           0x2c8e1f0a,
		Proof:           genesisProof,
	},
	Transactions: []*wire.MsgTx{},
}

// simNetGenesisHash is the hash of the first block in the block chain for the
// simulation test network (genesis block).
var simNetGenesisHash = simNetGenesisBlock.BlockHash()

// simNetGenesisMerkleRoot is the merkle root of the genesis block for the
// simulation test network. It is the same as the merkle root for the main
// network.
var simNetGenesisMerkleRoot = genesisMerkleRoot

// simNetGenesisBlock defines the genesis block of the block chain which
// serves as the public record ledger for the simulation test network.
var simNetGenesisBlock = wire.MsgBlock{
	Header: wire.BlockHeader{
		Version:         1,
		PrevBlock:       chainhash.Hash{},
		MerkleRoot:      simNetGenesisMerkleRoot,
		AccumulatorRoot: chainhash.Hash{},
		Timestamp:       time.Unix(0x6681f180, 0), // 2024-07-01 00:00:00 +0000 UTC
		Bits:            0x207fffff,
		Nonce:           0x0000000000000003,
		Proof:           genesisProof,
	},
	Transactions: []*wire.MsgTx{},
}

// devNetGenesisHash is the hash of the first block in the block chain for the
// development network (genesis block).
var devNetGenesisHash = devNetGenesisBlock.BlockHash()

// devNetGenesisMerkleRoot is the merkle root of the genesis block for the
// development network. It is the same as the merkle root for the main
// network.
var devNetGenesisMerkleRoot = genesisMerkleRoot

// devNetGenesisBlock defines the genesis block of the block chain which
// serves as the public record ledger for the development network.
var devNetGenesisBlock = wire.MsgBlock{
	Header: wire.BlockHeader{
		Version:         1,
		PrevBlock:       chainhash.Hash{},
		MerkleRoot:      devNetGenesisMerkleRoot,
		AccumulatorRoot: chainhash.Hash{},
		Timestamp:       time.Unix(0x6681f180, 0), // 2024-07-01 00:00:00 +0000 UTC
		Bits:            0x1f007fff,
		Nonce:           0x0d9e5c42,
		Proof:           genesisProof,
	},
	Transactions: []*wire.MsgTx{},
}
