// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package wire implements the umbra wire protocol.

Umbra Message Overview

The umbra protocol consists of exchanging blocks and the transactions they
carry. Unlike transparent ledgers, an umbra transaction does not name inputs
and outputs. It consumes records by revealing their serial numbers, creates
records by publishing their commitments, and carries a zero-knowledge proof
that the transfer is balanced and authorized against a recent ledger digest.

This package provides the fundamental primitives for working with that data:
the BlockHeader, MsgBlock and MsgTx types along with their canonical
encodings.

Determinism

At all times, the serialized form of every type in this package is canonical:
encoding a decoded value reproduces the exact bytes that were decoded. Block
hashes, transaction hashes and the proof binding hash are all defined over
these canonical encodings, so any deviation would change identity on the
ledger.

Errors

Errors returned by this package are either the raw underlying errors produced
by the io package wrapped with a stack trace, or *MessageError for issues with
the message content itself such as exceeding a maximum payload.
*/
package wire
