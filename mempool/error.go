// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/umbranet/umbrad/consensus"
)

// RuleError identifies a rule violation. It is used to indicate that
// processing of a transaction failed due to one of the many validation
// rules. The caller can use type assertions to determine if a failure was
// specifically due to a rule violation and use the Err field to access the
// underlying error, which will be either a TxRuleError or a
// consensus.RuleError.
type RuleError struct {
	Err error
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	if e.Err == nil {
		return "<nil>"
	}
	return e.Err.Error()
}

// RejectCode represents a numeric value by which the pool indicates why a
// transaction was rejected.
type RejectCode uint8

// These constants define the various supported reject codes.
const (
	RejectMalformed RejectCode = 0x01
	RejectInvalid   RejectCode = 0x10
	RejectObsolete  RejectCode = 0x11
	RejectDuplicate RejectCode = 0x12
)

// Map of reject codes back to strings for pretty printing.
var rejectCodeStrings = map[RejectCode]string{
	RejectMalformed: "REJECT_MALFORMED",
	RejectInvalid:   "REJECT_INVALID",
	RejectObsolete:  "REJECT_OBSOLETE",
	RejectDuplicate: "REJECT_DUPLICATE",
}

// String returns the RejectCode in human-readable form.
func (code RejectCode) String() string {
	if s, ok := rejectCodeStrings[code]; ok {
		return s
	}

	return fmt.Sprintf("Unknown RejectCode (%d)", uint8(code))
}

// TxRuleError identifies a rule violation. It is used to indicate that
// processing of a transaction failed due to one of the many validation
// rules. The caller can use type assertions to determine if a failure was
// specifically due to a rule violation and access the RejectCode field to
// ascertain the specific reason for the rule violation.
type TxRuleError struct {
	RejectCode  RejectCode // The code to send with reject messages
	Description string     // Human readable description of the issue
}

// Error satisfies the error interface and prints human-readable errors.
func (e TxRuleError) Error() string {
	return e.Description
}

// txRuleError creates an underlying TxRuleError with the given set of
// arguments and returns a RuleError that encapsulates it.
func txRuleError(c RejectCode, desc string) RuleError {
	return RuleError{
		Err: TxRuleError{RejectCode: c, Description: desc},
	}
}

// chainRuleError returns a RuleError that encapsulates the given
// consensus.RuleError.
func chainRuleError(chainErr consensus.RuleError) RuleError {
	return RuleError{
		Err: chainErr,
	}
}

// ExtractRejectCode attempts to return a relevant reject code for a given
// error by examining the error for known types. It will return true if a
// code was successfully extracted.
func ExtractRejectCode(err error) (RejectCode, bool) {
	// Pull the underlying error out of a RuleError.
	var ruleErr RuleError
	if errors.As(err, &ruleErr) {
		err = ruleErr.Err
	}

	var chainErr consensus.RuleError
	if errors.As(err, &chainErr) {
		// Convert the consensus error to a reject code.
		var code RejectCode
		switch chainErr.ErrorCode {
		// Rejected due to a spend conflict.
		case consensus.ErrDoubleSpend, consensus.ErrDuplicateSerialNumber:
			code = RejectDuplicate

		// Rejected due to a ledger digest the chain no longer honors.
		case consensus.ErrStaleLedgerDigest:
			code = RejectObsolete

		// Rejected due to a structurally broken transaction.
		case consensus.ErrNoSerialNumbers, consensus.ErrNoCommitments,
			consensus.ErrTxTooBig, consensus.ErrDuplicateCommitment,
			consensus.ErrBadValueBalance, consensus.ErrMalformedProof:
			code = RejectMalformed

		// Everything else is due to the transaction being invalid.
		default:
			code = RejectInvalid
		}

		return code, true
	}

	var trErr TxRuleError
	if errors.As(err, &trErr) {
		return trErr.RejectCode, true
	}

	return RejectInvalid, false
}
