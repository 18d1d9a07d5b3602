package ldb

import (
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// Options returns the leveldb opt.Options struct
// used for opening a database.
func Options() *opt.Options {
	return &opt.Options{
		Compression: opt.NoCompression,
		NoSync:      false,
	}
}
