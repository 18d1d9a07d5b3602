// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
)

// UmbraNet represents which umbra network a message belongs to.
type UmbraNet uint32

// Constants used to indicate the message umbra network. They can also be
// used to seek to the next message when a stream's state is unknown, but
// this package does not provide that functionality since it's generally a
// better idea to simply disconnect clients that are misbehaving over TCP.
const (
	// Mainnet represents the main umbra network.
	Mainnet UmbraNet = 0x55b1a9c6

	// RegTest represents the regression test network.
	RegTest UmbraNet = 0xf3c41da2

	// Testnet represents the public test network.
	Testnet UmbraNet = 0x0cbfcf27

	// Simnet represents the simulation test network.
	Simnet UmbraNet = 0x629f5f64

	// Devnet represents the development network.
	Devnet UmbraNet = 0x7d8a1bf0
)

// umbraNets is a map of umbra networks back to their constant names for
// pretty printing.
var umbraNets = map[UmbraNet]string{
	Mainnet: "Mainnet",
	RegTest: "RegTest",
	Testnet: "Testnet",
	Simnet:  "Simnet",
	Devnet:  "Devnet",
}

// String returns the UmbraNet in human-readable form.
func (n UmbraNet) String() string {
	if s, ok := umbraNets[n]; ok {
		return s
	}

	return fmt.Sprintf("Unknown UmbraNet (%d)", uint32(n))
}
