package dbaccess

import (
	"github.com/umbranet/umbrad/database"
)

var serialNumbersBucket = database.MakeBucket([]byte("serial-numbers"))

// AddSerialNumber marks the given serial number as spent.
func AddSerialNumber(context Context, serialNumber []byte) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}

	key := serialNumbersBucket.Key(serialNumber)
	return accessor.Put(key, []byte{})
}

// RemoveSerialNumber un-marks the given serial number as spent.
func RemoveSerialNumber(context Context, serialNumber []byte) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}

	key := serialNumbersBucket.Key(serialNumber)
	return accessor.Delete(key)
}

// HasSerialNumber returns whether the given serial number
// has been marked as spent.
func HasSerialNumber(context Context, serialNumber []byte) (bool, error) {
	accessor, err := context.accessor()
	if err != nil {
		return false, err
	}

	key := serialNumbersBucket.Key(serialNumber)
	return accessor.Has(key)
}
