// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

// Policy houses the policy (configuration parameters) which is used to
// control the generation of block templates. See the documentation for
// NewBlockTemplate for more details on how each of these parameters are used.
type Policy struct {
	// BlockMaxSize is the maximum block size in bytes to be used when
	// generating a block template. It is capped by the maximum block size
	// the network accepts.
	BlockMaxSize uint64
}
