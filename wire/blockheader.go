// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"io"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/umbranet/umbrad/util/chainhash"
)

// baseBlockHeaderPayload is the number of bytes a block header occupies on the
// wire, not counting the proof-of-succinct-work blob.
// Version 4 bytes + PrevBlock hash + MerkleRoot hash + AccumulatorRoot hash +
// Timestamp 8 bytes + Bits 4 bytes + Nonce 8 bytes.
const baseBlockHeaderPayload = 24 + (chainhash.HashSize * 3)

// MaxBlockHeaderPayload is the maximum number of bytes a block header can be.
// baseBlockHeaderPayload plus the proof blob and its length prefix.
const MaxBlockHeaderPayload = baseBlockHeaderPayload + MaxVarIntPayload +
	MaxProofPayload

// zeroHash is the zero value hash (all zeros). It is the previous block hash
// of the genesis block.
var zeroHash chainhash.Hash

// BlockHeader defines information about a block and is used in the umbra
// block (MsgBlock) message.
type BlockHeader struct {
	// Version of the block. This is not the same as the protocol version.
	Version int32

	// Hash of the previous block header in the block chain.
	PrevBlock chainhash.Hash

	// Merkle tree reference to hash of all transactions for the block.
	MerkleRoot chainhash.Hash

	// AccumulatorRoot is the root of the record commitment accumulator
	// with every transaction in the block applied.
	AccumulatorRoot chainhash.Hash

	// Time the block was created. Encoded as int64 unix seconds on the
	// wire.
	Timestamp time.Time

	// Difficulty target for the block.
	Bits uint32

	// Nonce used to generate the block.
	Nonce uint64

	// Proof is the proof-of-succinct-work attesting to this header.
	Proof []byte
}

// BlockHash computes the block identifier hash for the given block header.
func (h *BlockHeader) BlockHash() chainhash.Hash {
	// Encode the header and double sha256 everything. Ignore the error
	// returns since there is no way the encode could fail except being out
	// of memory which would cause a run-time panic.
	buf := bytes.NewBuffer(make([]byte, 0, h.SerializeSize()))
	_ = writeBlockHeader(buf, 0, h)

	return chainhash.DoubleHashH(buf.Bytes())
}

// ProofBindingHash computes the hash the proof-of-succinct-work for this
// header must bind to. It commits to every header field except the proof
// itself, so a freshly generated proof can be attached to the header without
// invalidating the value it was generated over. The nonce is covered, which
// forces a new proof for every attempt.
func (h *BlockHeader) ProofBindingHash() chainhash.Hash {
	buf := bytes.NewBuffer(make([]byte, 0, baseBlockHeaderPayload))
	_ = writeBlockHeaderSansProof(buf, 0, h)

	return chainhash.Hash(blake2b.Sum256(buf.Bytes()))
}

// IsGenesis returns whether or not this header is of the genesis block, that
// is, it references no previous block.
func (h *BlockHeader) IsGenesis() bool {
	return h.PrevBlock == zeroHash
}

// UmbraDecode decodes r using the umbra protocol encoding into the receiver.
// See Deserialize for decoding block headers stored to disk, such as in a
// database, as opposed to decoding block headers from the wire.
func (h *BlockHeader) UmbraDecode(r io.Reader, pver uint32) error {
	return readBlockHeader(r, pver, h)
}

// UmbraEncode encodes the receiver to w using the umbra protocol encoding.
// See Serialize for encoding block headers to be stored to disk, such as in a
// database, as opposed to encoding block headers for the wire.
func (h *BlockHeader) UmbraEncode(w io.Writer, pver uint32) error {
	return writeBlockHeader(w, pver, h)
}

// Deserialize decodes a block header from r into the receiver using a format
// that is suitable for long-term storage such as a database while respecting
// the Version field.
func (h *BlockHeader) Deserialize(r io.Reader) error {
	// At the current time, there is no difference between the wire encoding
	// at protocol version 0 and the stable long-term storage format. As
	// a result, make use of readBlockHeader.
	return readBlockHeader(r, 0, h)
}

// Serialize encodes a block header from r into the receiver using a format
// that is suitable for long-term storage such as a database while respecting
// the Version field.
func (h *BlockHeader) Serialize(w io.Writer) error {
	// At the current time, there is no difference between the wire encoding
	// at protocol version 0 and the stable long-term storage format. As
	// a result, make use of writeBlockHeader.
	return writeBlockHeader(w, 0, h)
}

// SerializeSize returns the number of bytes it would take to serialize the
// block header.
func (h *BlockHeader) SerializeSize() int {
	return baseBlockHeaderPayload + VarIntSerializeSize(uint64(len(h.Proof))) +
		len(h.Proof)
}

// NewBlockHeader returns a new BlockHeader using the provided version,
// previous block hash, merkle root hash, accumulator root hash, difficulty
// bits, and nonce used to generate the block with defaults or calculated
// values for the remaining fields.
func NewBlockHeader(version int32, prevBlock, merkleRootHash,
	accumulatorRoot *chainhash.Hash, bits uint32, nonce uint64) *BlockHeader {

	// Limit the timestamp to one second precision since the protocol
	// doesn't support better.
	return &BlockHeader{
		Version:         version,
		PrevBlock:       *prevBlock,
		MerkleRoot:      *merkleRootHash,
		AccumulatorRoot: *accumulatorRoot,
		Timestamp:       time.Unix(time.Now().Unix(), 0),
		Bits:            bits,
		Nonce:           nonce,
	}
}

// readBlockHeader reads an umbra block header from r. See Deserialize for
// decoding block headers stored to disk, such as in a database, as opposed to
// decoding from the wire.
func readBlockHeader(r io.Reader, pver uint32, bh *BlockHeader) error {
	err := readElements(r, &bh.Version, &bh.PrevBlock, &bh.MerkleRoot,
		&bh.AccumulatorRoot, (*int64Time)(&bh.Timestamp), &bh.Bits,
		&bh.Nonce)
	if err != nil {
		return err
	}

	bh.Proof, err = ReadVarBytes(r, pver, MaxProofPayload, "work proof")
	return err
}

// writeBlockHeader writes an umbra block header to w. See Serialize for
// encoding block headers to be stored to disk, such as in a database, as
// opposed to encoding for the wire.
func writeBlockHeader(w io.Writer, pver uint32, bh *BlockHeader) error {
	err := writeBlockHeaderSansProof(w, pver, bh)
	if err != nil {
		return err
	}

	return WriteVarBytes(w, pver, bh.Proof)
}

// writeBlockHeaderSansProof writes every field of an umbra block header to w
// except the proof blob. This is the portion of the header a
// proof-of-succinct-work binds to.
func writeBlockHeaderSansProof(w io.Writer, pver uint32, bh *BlockHeader) error {
	sec := bh.Timestamp.Unix()
	return writeElements(w, bh.Version, &bh.PrevBlock, &bh.MerkleRoot,
		&bh.AccumulatorRoot, sec, bh.Bits, bh.Nonce)
}
