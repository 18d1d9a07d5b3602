package dbaccess

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/umbranet/umbrad/database"
	"github.com/umbranet/umbrad/util/chainhash"
)

var (
	accumulatorRootsByHeightBucket = database.MakeBucket([]byte("acc-roots-by-height"))
	accumulatorHeightsByRootBucket = database.MakeBucket([]byte("acc-heights-by-root"))
)

// StoreAccumulatorSnapshot stores the accumulator root of the chain at the
// given height, indexed in both directions.
func StoreAccumulatorSnapshot(context Context, blockHeight uint64, accumulatorRoot *chainhash.Hash) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}

	heightKey := accumulatorRootsByHeightBucket.Key(serializeBlockHeight(blockHeight))
	err = accessor.Put(heightKey, accumulatorRoot[:])
	if err != nil {
		return err
	}

	rootKey := accumulatorHeightsByRootBucket.Key(accumulatorRoot[:])
	return accessor.Put(rootKey, serializeBlockHeight(blockHeight))
}

// RemoveAccumulatorSnapshot removes the accumulator snapshot at the given
// height and root from both indexes.
func RemoveAccumulatorSnapshot(context Context, blockHeight uint64, accumulatorRoot *chainhash.Hash) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}

	heightKey := accumulatorRootsByHeightBucket.Key(serializeBlockHeight(blockHeight))
	err = accessor.Delete(heightKey)
	if err != nil {
		return err
	}

	rootKey := accumulatorHeightsByRootBucket.Key(accumulatorRoot[:])
	return accessor.Delete(rootKey)
}

// FetchAccumulatorRootByHeight returns the accumulator root the chain had
// at the given height. Returns ErrNotFound if no snapshot exists for the
// given height.
func FetchAccumulatorRootByHeight(context Context, blockHeight uint64) (*chainhash.Hash, error) {
	accessor, err := context.accessor()
	if err != nil {
		return nil, err
	}

	heightKey := accumulatorRootsByHeightBucket.Key(serializeBlockHeight(blockHeight))
	rootBytes, err := accessor.Get(heightKey)
	if err != nil {
		if database.IsNotFoundError(err) {
			return nil, errors.Wrapf(err, "accumulator snapshot for height %d not found", blockHeight)
		}
		return nil, err
	}

	return chainhash.NewHash(rootBytes)
}

// FetchAccumulatorHeightByRoot returns the height at which the chain had
// the given accumulator root. Returns ErrNotFound if the given root had
// never been a chain accumulator root.
func FetchAccumulatorHeightByRoot(context Context, accumulatorRoot *chainhash.Hash) (uint64, error) {
	accessor, err := context.accessor()
	if err != nil {
		return 0, err
	}

	rootKey := accumulatorHeightsByRootBucket.Key(accumulatorRoot[:])
	heightBytes, err := accessor.Get(rootKey)
	if err != nil {
		if database.IsNotFoundError(err) {
			return 0, errors.Wrapf(err, "accumulator snapshot for root %s not found", accumulatorRoot)
		}
		return 0, err
	}

	return deserializeBlockHeight(heightBytes)
}

func serializeBlockHeight(blockHeight uint64) []byte {
	serializedHeight := make([]byte, 8)
	binary.BigEndian.PutUint64(serializedHeight, blockHeight)
	return serializedHeight
}

func deserializeBlockHeight(serializedHeight []byte) (uint64, error) {
	if len(serializedHeight) != 8 {
		return 0, errors.Errorf("unexpected serialized height length: %d", len(serializedHeight))
	}
	return binary.BigEndian.Uint64(serializedHeight), nil
}
