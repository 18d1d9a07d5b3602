package dbaccess

import (
	"github.com/pkg/errors"
	"github.com/umbranet/umbrad/database"
	"github.com/umbranet/umbrad/util"
	"github.com/umbranet/umbrad/util/chainhash"
)

const blockStoreName = "blocks"

var blockLocationsBucket = database.MakeBucket([]byte("block-locations"))

// StoreBlock stores the given block in the database.
func StoreBlock(context Context, block *util.Block) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}

	hash := block.Hash()

	// Make sure that the block does not already exist.
	exists, err := HasBlock(context, hash)
	if err != nil {
		return err
	}
	if exists {
		return errors.Errorf("block %s already exists", hash)
	}

	bytes, err := block.Bytes()
	if err != nil {
		return err
	}

	// Write the block's bytes to the block store
	blockLocation, err := accessor.AppendToStore(blockStoreName, bytes)
	if err != nil {
		return err
	}

	// Write the block's hash to the blockLocations bucket
	blockLocationsKey := blockLocationKey(hash)
	err = accessor.Put(blockLocationsKey, blockLocation)
	if err != nil {
		return err
	}

	return nil
}

// HasBlock returns whether the block of the given hash has been
// previously inserted into the database.
func HasBlock(context Context, hash *chainhash.Hash) (bool, error) {
	accessor, err := context.accessor()
	if err != nil {
		return false, err
	}

	blockLocationsKey := blockLocationKey(hash)

	return accessor.Has(blockLocationsKey)
}

// FetchBlock returns the block of the given hash. Returns
// ErrNotFound if the block had not been previously inserted
// into the database.
func FetchBlock(context Context, hash *chainhash.Hash) (*util.Block, error) {
	accessor, err := context.accessor()
	if err != nil {
		return nil, err
	}

	blockLocationsKey := blockLocationKey(hash)
	blockLocation, err := accessor.Get(blockLocationsKey)
	if err != nil {
		if database.IsNotFoundError(err) {
			return nil, errors.Wrapf(err, "block %s not found", hash)
		}
		return nil, err
	}
	bytes, err := accessor.RetrieveFromStore(blockStoreName, blockLocation)
	if err != nil {
		return nil, err
	}

	return util.NewBlockFromBytes(bytes)
}

func blockLocationKey(hash *chainhash.Hash) *database.Key {
	return blockLocationsBucket.Key(hash[:])
}
