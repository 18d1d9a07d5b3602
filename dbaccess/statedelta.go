package dbaccess

import (
	"github.com/pkg/errors"
	"github.com/umbranet/umbrad/database"
	"github.com/umbranet/umbrad/util/chainhash"
)

var stateDeltasBucket = database.MakeBucket([]byte("state-deltas"))

// StoreStateDelta stores the serialized state delta produced by
// connecting the block of the given hash.
func StoreStateDelta(context Context, blockHash *chainhash.Hash, deltaBytes []byte) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}

	key := stateDeltasBucket.Key(blockHash[:])
	return accessor.Put(key, deltaBytes)
}

// FetchStateDelta returns the serialized state delta of the block of the
// given hash. Returns ErrNotFound if no delta is stored for the block.
func FetchStateDelta(context Context, blockHash *chainhash.Hash) ([]byte, error) {
	accessor, err := context.accessor()
	if err != nil {
		return nil, err
	}

	key := stateDeltasBucket.Key(blockHash[:])
	deltaBytes, err := accessor.Get(key)
	if err != nil {
		if database.IsNotFoundError(err) {
			return nil, errors.Wrapf(err, "state delta for block %s not found", blockHash)
		}
		return nil, err
	}
	return deltaBytes, nil
}

// RemoveStateDelta removes the state delta of the block of the given hash.
func RemoveStateDelta(context Context, blockHash *chainhash.Hash) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}

	key := stateDeltasBucket.Key(blockHash[:])
	return accessor.Delete(key)
}
