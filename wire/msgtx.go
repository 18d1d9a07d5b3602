// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/umbranet/umbrad/util/chainhash"
)

const (
	// TxVersion is the current latest supported transaction version.
	TxVersion = 1

	// SerialNumberSize is the size of a record serial number in bytes.
	SerialNumberSize = 32

	// CommitmentSize is the size of a record commitment in bytes.
	CommitmentSize = 32

	// MemoSize is the size of the transaction memo field in bytes.
	MemoSize = 32

	// MaxSerialNumbersPerTx is the maximum number of record serial numbers
	// a single transaction may consume.
	MaxSerialNumbersPerTx = 16

	// MaxCommitmentsPerTx is the maximum number of record commitments a
	// single transaction may create.
	MaxCommitmentsPerTx = 16

	// MaxProofPayload is the maximum number of bytes a zero-knowledge proof
	// blob may occupy, whether it proves a transfer or proof-of-work.
	MaxProofPayload = 2048

	// minTxPayload is the minimum payload size a transaction may possibly
	// have: version + one serial number + one commitment + ledger digest +
	// value balance + memo + the three count prefixes and an empty proof.
	minTxPayload = 4 + 1 + SerialNumberSize + 1 + CommitmentSize +
		chainhash.HashSize + 8 + MemoSize + 1
)

// MaxTxPayload returns the maximum number of bytes a transaction of the
// current version can possibly occupy when serialized.
func MaxTxPayload() int {
	return 4 +
		VarIntSerializeSize(MaxSerialNumbersPerTx) +
		MaxSerialNumbersPerTx*SerialNumberSize +
		VarIntSerializeSize(MaxCommitmentsPerTx) +
		MaxCommitmentsPerTx*CommitmentSize +
		chainhash.HashSize + 8 + MemoSize +
		VarIntSerializeSize(MaxProofPayload) + MaxProofPayload
}

// SerialNumber is the unique nullifier revealed when a transaction consumes
// a record. A serial number may appear on the ledger at most once.
type SerialNumber [SerialNumberSize]byte

// String returns the SerialNumber as the hexadecimal string of the byte array.
func (sn SerialNumber) String() string {
	return hex.EncodeToString(sn[:])
}

// Commitment is the hiding commitment to a record created by a transaction.
type Commitment [CommitmentSize]byte

// String returns the Commitment as the hexadecimal string of the byte array.
func (c Commitment) String() string {
	return hex.EncodeToString(c[:])
}

// MsgTx represents an umbra tx message. It is used to transfer records
// between parties. Records being consumed are revealed only through their
// serial numbers and records being created only through their commitments,
// with a zero-knowledge proof attesting that the transfer is balanced and
// authorized.
type MsgTx struct {
	// Version of the transaction.
	Version int32

	// SerialNumbers of the records this transaction consumes.
	SerialNumbers []SerialNumber

	// Commitments of the records this transaction creates.
	Commitments []Commitment

	// LedgerDigest is the commitment accumulator root this transaction's
	// proof was generated against.
	LedgerDigest chainhash.Hash

	// ValueBalance is the difference, in obols, between the value consumed
	// and the value created. A non-negative balance is burned as the fee
	// paid to the block that mines the transaction.
	ValueBalance int64

	// Memo is an opaque field for the sender's use.
	Memo [MemoSize]byte

	// Proof attests in zero knowledge to the validity of the transfer.
	Proof []byte
}

// AddSerialNumber adds a record serial number to the message.
func (msg *MsgTx) AddSerialNumber(sn SerialNumber) {
	msg.SerialNumbers = append(msg.SerialNumbers, sn)
}

// AddCommitment adds a record commitment to the message.
func (msg *MsgTx) AddCommitment(c Commitment) {
	msg.Commitments = append(msg.Commitments, c)
}

// TxHash generates the hash for the transaction.
func (msg *MsgTx) TxHash() chainhash.Hash {
	// Encode the transaction into the hash writer and calculate double
	// sha256 on the result. Ignore the error returns since the only way
	// the encode could fail is being out of memory or due to nil pointers,
	// both of which would cause a run-time panic.
	writer := chainhash.NewDoubleHashWriter()
	_ = msg.Serialize(writer)
	return writer.Finalize()
}

// Copy creates a deep copy of a transaction so that the original does not get
// modified when the copy is manipulated.
func (msg *MsgTx) Copy() *MsgTx {
	// Create new tx and start by copying primitive values.
	newTx := MsgTx{
		Version:      msg.Version,
		LedgerDigest: msg.LedgerDigest,
		ValueBalance: msg.ValueBalance,
		Memo:         msg.Memo,
	}

	if len(msg.SerialNumbers) > 0 {
		newTx.SerialNumbers = make([]SerialNumber, len(msg.SerialNumbers))
		copy(newTx.SerialNumbers, msg.SerialNumbers)
	}

	if len(msg.Commitments) > 0 {
		newTx.Commitments = make([]Commitment, len(msg.Commitments))
		copy(newTx.Commitments, msg.Commitments)
	}

	if len(msg.Proof) > 0 {
		newTx.Proof = make([]byte, len(msg.Proof))
		copy(newTx.Proof, msg.Proof)
	}

	return &newTx
}

// UmbraDecode decodes r using the umbra protocol encoding into the receiver.
// See Deserialize for decoding transactions stored to disk, such as in a
// database, as opposed to decoding transactions from the wire.
func (msg *MsgTx) UmbraDecode(r io.Reader, pver uint32) error {
	err := readElement(r, &msg.Version)
	if err != nil {
		return err
	}

	count, err := ReadVarInt(r, pver)
	if err != nil {
		return err
	}

	// Prevent more serial numbers than could possibly fit in a valid
	// transaction. It would be possible to cause memory exhaustion and
	// panics without a sane upper bound on this count.
	if count > MaxSerialNumbersPerTx {
		str := fmt.Sprintf("too many serial numbers to fit into "+
			"max message size [count %d, max %d]", count,
			MaxSerialNumbersPerTx)
		return messageError("MsgTx.UmbraDecode", str)
	}

	msg.SerialNumbers = make([]SerialNumber, count)
	for i := uint64(0); i < count; i++ {
		err := readElement(r, &msg.SerialNumbers[i])
		if err != nil {
			return err
		}
	}

	count, err = ReadVarInt(r, pver)
	if err != nil {
		return err
	}

	if count > MaxCommitmentsPerTx {
		str := fmt.Sprintf("too many commitments to fit into "+
			"max message size [count %d, max %d]", count,
			MaxCommitmentsPerTx)
		return messageError("MsgTx.UmbraDecode", str)
	}

	msg.Commitments = make([]Commitment, count)
	for i := uint64(0); i < count; i++ {
		err := readElement(r, &msg.Commitments[i])
		if err != nil {
			return err
		}
	}

	err = readElements(r, &msg.LedgerDigest, &msg.ValueBalance, &msg.Memo)
	if err != nil {
		return err
	}

	msg.Proof, err = ReadVarBytes(r, pver, MaxProofPayload,
		"transfer proof")
	if err != nil {
		return err
	}

	return nil
}

// UmbraEncode encodes the receiver to w using the umbra protocol encoding.
// See Serialize for encoding transactions to be stored to disk, such as in a
// database, as opposed to encoding transactions for the wire.
func (msg *MsgTx) UmbraEncode(w io.Writer, pver uint32) error {
	err := writeElement(w, msg.Version)
	if err != nil {
		return err
	}

	err = WriteVarInt(w, pver, uint64(len(msg.SerialNumbers)))
	if err != nil {
		return err
	}

	for i := range msg.SerialNumbers {
		err := writeElement(w, &msg.SerialNumbers[i])
		if err != nil {
			return err
		}
	}

	err = WriteVarInt(w, pver, uint64(len(msg.Commitments)))
	if err != nil {
		return err
	}

	for i := range msg.Commitments {
		err := writeElement(w, &msg.Commitments[i])
		if err != nil {
			return err
		}
	}

	err = writeElements(w, &msg.LedgerDigest, msg.ValueBalance, &msg.Memo)
	if err != nil {
		return err
	}

	return WriteVarBytes(w, pver, msg.Proof)
}

// Deserialize decodes a transaction from r into the receiver using a format
// that is suitable for long-term storage such as a database while respecting
// the Version field in the transaction.
func (msg *MsgTx) Deserialize(r io.Reader) error {
	// At the current time, there is no difference between the wire encoding
	// at protocol version 0 and the stable long-term storage format. As
	// a result, make use of UmbraDecode.
	return msg.UmbraDecode(r, 0)
}

// Serialize encodes the transaction to w using a format that suitable for
// long-term storage such as a database while respecting the Version field in
// the transaction.
func (msg *MsgTx) Serialize(w io.Writer) error {
	// At the current time, there is no difference between the wire encoding
	// at protocol version 0 and the stable long-term storage format. As
	// a result, make use of UmbraEncode.
	return msg.UmbraEncode(w, 0)
}

// SerializeSize returns the number of bytes it would take to serialize the
// the transaction.
func (msg *MsgTx) SerializeSize() int {
	// Version 4 bytes + ledger digest + value balance 8 bytes + memo +
	// serialized varint size for the number of serial numbers and
	// commitments + the proof bytes and their varint size.
	n := 4 + chainhash.HashSize + 8 + MemoSize +
		VarIntSerializeSize(uint64(len(msg.SerialNumbers))) +
		len(msg.SerialNumbers)*SerialNumberSize +
		VarIntSerializeSize(uint64(len(msg.Commitments))) +
		len(msg.Commitments)*CommitmentSize +
		VarIntSerializeSize(uint64(len(msg.Proof))) +
		len(msg.Proof)

	return n
}

// NewMsgTx returns a new umbra tx message. The return instance has a default
// version of TxVersion and there are no serial numbers, commitments or proof.
// The variable length data must be added or the transaction will fail every
// validity check.
func NewMsgTx(version int32) *MsgTx {
	return &MsgTx{
		Version:       version,
		SerialNumbers: make([]SerialNumber, 0, 2),
		Commitments:   make([]Commitment, 0, 2),
	}
}
