// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package util

const (
	// ObolPerCent is the number of obols in one umbra cent.
	ObolPerCent = 1000000

	// ObolPerUmbra is the number of obols in one umbra (1 UMB).
	ObolPerUmbra = 100000000

	// MaxObol is the maximum transaction amount allowed in obols.
	MaxObol = 21000000 * ObolPerUmbra
)
