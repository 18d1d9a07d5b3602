// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package snark

import (
	"sync"

	"github.com/umbranet/umbrad/util/chainhash"
)

// ProofCache implements a cache of proofs that have already passed Groth16
// verification, keyed by a digest of the proof and the public inputs it
// verified against. Pairing checks dominate validation cost, so blocks and
// transactions seen more than once (relay then block, reorg replay,
// template rebuild) verify from the cache instead.
//
// ProofCache is safe for concurrent access.
type ProofCache struct {
	sync.RWMutex
	validProofs map[chainhash.Hash]struct{}
	maxEntries  uint
}

// NewProofCache creates and initializes a new instance of ProofCache. Its
// sole parameter 'maxEntries' represents the maximum number of entries
// allowed to exist in the ProofCache at any particular moment. Random
// entries are evicted to make room for new entries that would cause the
// number of entries in the cache to exceed the max.
func NewProofCache(maxEntries uint) *ProofCache {
	return &ProofCache{
		validProofs: make(map[chainhash.Hash]struct{}, maxEntries),
		maxEntries:  maxEntries,
	}
}

// Exists returns whether or not a proof with the given key has previously
// been verified and recorded.
//
// This function is safe for concurrent access. Readers will not be blocked
// unless there exists a writer, adding an entry to the ProofCache.
func (pc *ProofCache) Exists(key chainhash.Hash) bool {
	pc.RLock()
	_, ok := pc.validProofs[key]
	pc.RUnlock()

	return ok
}

// Add adds a verified proof under the given key to the cache. In the event
// that the cache is 'full', an existing entry is randomly chosen to be
// evicted in order to make space for the new entry.
//
// This function is safe for concurrent access. Writers will block
// simultaneous readers until the entry has been added.
func (pc *ProofCache) Add(key chainhash.Hash) {
	pc.Lock()
	defer pc.Unlock()

	if pc.maxEntries <= 0 {
		return
	}

	// If adding this new entry will put us over the max number of allowed
	// entries, then evict an entry.
	if uint(len(pc.validProofs)+1) > pc.maxEntries {
		// Remove a random entry from the map. Relying on the random
		// starting point of Go's map iteration, it's reasonable to expect
		// a random entry will be deleted.
		for entryKey := range pc.validProofs {
			delete(pc.validProofs, entryKey)
			break
		}
	}
	pc.validProofs[key] = struct{}{}
}
