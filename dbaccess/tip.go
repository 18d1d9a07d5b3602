package dbaccess

import (
	"github.com/umbranet/umbrad/database"
)

var chainTipKey = database.MakeBucket().Key([]byte("chain-tip"))

// StoreChainTip stores the serialized tip state of the chain.
func StoreChainTip(context Context, serializedTip []byte) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}

	return accessor.Put(chainTipKey, serializedTip)
}

// FetchChainTip retrieves the serialized tip state of the chain.
// Returns ErrNotFound if the tip state had never been stored.
func FetchChainTip(context Context) ([]byte, error) {
	accessor, err := context.accessor()
	if err != nil {
		return nil, err
	}

	return accessor.Get(chainTipKey)
}
