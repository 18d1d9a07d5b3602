// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package consensus

import (
	"fmt"
)

// AssertError identifies an error that indicates an internal code consistency
// issue and should be treated as a critical and irrecoverable error.
type AssertError string

// Error returns the assertion error as a human-readable string and satisfies
// the error interface.
func (e AssertError) Error() string {
	return "assertion failed: " + string(e)
}

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific RuleError.
const (
	// ErrDuplicateBlock indicates a block with the same hash already
	// exists.
	ErrDuplicateBlock ErrorCode = iota

	// ErrMissingParent indicates that the block references a previous
	// block that is unknown to the chain.
	ErrMissingParent

	// ErrInvalidAncestorBlock indicates that the block extends an
	// ancestor that has already been found invalid.
	ErrInvalidAncestorBlock

	// ErrBadMerkleRoot indicates the calculated merkle root does not
	// match the expected value declared in the block header.
	ErrBadMerkleRoot

	// ErrUnexpectedDifficulty indicates specified bits do not align with
	// the expected value either because it doesn't match the calculated
	// value based on difficulty rules or it is out of the valid range.
	ErrUnexpectedDifficulty

	// ErrHighProofHash indicates the block proof hash does not fall under
	// the required target difficulty.
	ErrHighProofHash

	// ErrBadProof indicates the block's succinct work proof failed
	// verification against the header binding hash.
	ErrBadProof

	// ErrBlockTooBig indicates the serialized block size or the number of
	// transactions exceeds the network limit.
	ErrBlockTooBig

	// ErrInvalidTime indicates the time in the passed block has a precision
	// that is more than one second.  The chain consensus rules require
	// timestamps to have a maximum precision of one second.
	ErrInvalidTime

	// ErrTimeTooOld indicates the time is before the median time of the
	// last several blocks per the consensus rules.
	ErrTimeTooOld

	// ErrTimeTooNew indicates the time is too far in the future as
	// compared to the current time.
	ErrTimeTooNew

	// ErrDuplicateTx indicates a block contains an identical transaction
	// more than once.
	ErrDuplicateTx

	// ErrNoSerialNumbers indicates a transaction does not declare any
	// input serial numbers.
	ErrNoSerialNumbers

	// ErrNoCommitments indicates a transaction does not declare any
	// output commitments.
	ErrNoCommitments

	// ErrTxTooBig indicates a transaction exceeds the maximum allowed
	// serialized size, or declares more serial numbers or commitments
	// than the per-transaction arity limits allow.
	ErrTxTooBig

	// ErrDuplicateSerialNumber indicates a serial number appears more
	// than once within a transaction or across the transactions of a
	// single block.
	ErrDuplicateSerialNumber

	// ErrDuplicateCommitment indicates a commitment appears more than
	// once within a transaction.
	ErrDuplicateCommitment

	// ErrDoubleSpend indicates a transaction declares a serial number
	// that is already present in the canonical spent set.
	ErrDoubleSpend

	// ErrStaleLedgerDigest indicates a transaction references a ledger
	// digest that is not a recent canonical accumulator root.
	ErrStaleLedgerDigest

	// ErrBadTxProof indicates a transaction's zero-knowledge proof failed
	// verification against its public inputs.
	ErrBadTxProof

	// ErrBadValueBalance indicates a transaction declares a public value
	// balance that is negative or higher than the max allowed value.
	ErrBadValueBalance

	// ErrMalformedProof indicates a transaction or block proof blob is
	// structurally invalid, for example empty or truncated.
	ErrMalformedProof

	// ErrBadAccumulatorRoot indicates the accumulator root declared in a
	// block header does not match the root obtained by applying the
	// block's commitments to the parent state.
	ErrBadAccumulatorRoot
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrDuplicateBlock:        "ErrDuplicateBlock",
	ErrMissingParent:         "ErrMissingParent",
	ErrInvalidAncestorBlock:  "ErrInvalidAncestorBlock",
	ErrBadMerkleRoot:         "ErrBadMerkleRoot",
	ErrUnexpectedDifficulty:  "ErrUnexpectedDifficulty",
	ErrHighProofHash:         "ErrHighProofHash",
	ErrBadProof:              "ErrBadProof",
	ErrBlockTooBig:           "ErrBlockTooBig",
	ErrInvalidTime:           "ErrInvalidTime",
	ErrTimeTooOld:            "ErrTimeTooOld",
	ErrTimeTooNew:            "ErrTimeTooNew",
	ErrDuplicateTx:           "ErrDuplicateTx",
	ErrNoSerialNumbers:       "ErrNoSerialNumbers",
	ErrNoCommitments:         "ErrNoCommitments",
	ErrTxTooBig:              "ErrTxTooBig",
	ErrDuplicateSerialNumber: "ErrDuplicateSerialNumber",
	ErrDuplicateCommitment:   "ErrDuplicateCommitment",
	ErrDoubleSpend:           "ErrDoubleSpend",
	ErrStaleLedgerDigest:     "ErrStaleLedgerDigest",
	ErrBadTxProof:            "ErrBadTxProof",
	ErrBadValueBalance:       "ErrBadValueBalance",
	ErrMalformedProof:        "ErrMalformedProof",
	ErrBadAccumulatorRoot:    "ErrBadAccumulatorRoot",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// RuleError identifies a rule violation. It is used to indicate that
// processing of a block or transaction failed due to one of the many
// validation rules. The caller can use type assertion to determine if a
// failure was specifically due to a rule violation and access the
// ErrorCode field to ascertain the specific reason for the rule
// violation.
type RuleError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// ruleError creates a RuleError given a set of arguments.
func ruleError(c ErrorCode, desc string) RuleError {
	return RuleError{ErrorCode: c, Description: desc}
}

// ConflictError identifies a conflict detected while mutating the ledger
// state, such as applying a block whose serial numbers are already marked
// spent. Validation is expected to catch these before application. When one
// surfaces anyway the block is rejected and the ledger state is left
// untouched.
type ConflictError struct {
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e ConflictError) Error() string {
	return e.Description
}

// conflictError creates a ConflictError given a description.
func conflictError(desc string) ConflictError {
	return ConflictError{Description: desc}
}
