// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainhash

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/pkg/errors"
)

// testHash is a sample hash used throughout the tests, in byte-slice form.
var testHashBytes = []byte{
	0x79, 0xa6, 0x1a, 0xdb, 0xc6, 0xe5, 0xa2, 0xe1,
	0x39, 0xd2, 0x71, 0x3a, 0x54, 0x6e, 0xc7, 0xc8,
	0x75, 0x63, 0x2e, 0x75, 0xf1, 0xdf, 0x9c, 0x3f,
	0xa6, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// TestHash tests the Hash API.
func TestHash(t *testing.T) {
	otherHashStr := "14a0810ac680a3eb3f82edc878cea25ec41d6b790744e5daeef"
	otherHash, err := NewHashFromStr(otherHashStr)
	if err != nil {
		t.Errorf("NewHashFromStr: %v", err)
	}

	hash, err := NewHash(testHashBytes)
	if err != nil {
		t.Errorf("NewHash: unexpected error %v", err)
	}

	// Ensure proper size.
	if len(hash) != HashSize {
		t.Errorf("NewHash: hash length mismatch - got: %v, want: %v",
			len(hash), HashSize)
	}

	// Ensure contents match.
	if !bytes.Equal(hash[:], testHashBytes) {
		t.Errorf("NewHash: hash contents mismatch - got: %v, want: %v",
			hash[:], testHashBytes)
	}

	// Ensure contents of the two hashes don't match.
	if hash.IsEqual(otherHash) {
		t.Errorf("IsEqual: hash contents should not match - got: %v, want: %v",
			hash, otherHash)
	}

	// Set hash from byte slice and ensure contents match.
	err = hash.SetBytes(otherHash.CloneBytes())
	if err != nil {
		t.Errorf("SetBytes: %v", err)
	}
	if !hash.IsEqual(otherHash) {
		t.Errorf("IsEqual: hash contents mismatch - got: %v, want: %v",
			hash, otherHash)
	}

	// Ensure nil hashes are handled properly.
	if !(*Hash)(nil).IsEqual(nil) {
		t.Error("IsEqual: nil hashes should match")
	}
	if hash.IsEqual(nil) {
		t.Error("IsEqual: non-nil hash matches nil hash")
	}

	// Invalid size for SetBytes.
	err = hash.SetBytes([]byte{0x00})
	if err == nil {
		t.Errorf("SetBytes: failed to received expected err - got: nil")
	}

	// Invalid size for NewHash.
	invalidHash := make([]byte, HashSize+1)
	_, err = NewHash(invalidHash)
	if err == nil {
		t.Errorf("NewHash: failed to received expected err - got: nil")
	}
}

// TestHashString tests the stringized output for hashes.
func TestHashString(t *testing.T) {
	wantStr := "000000000003ba27aa200b1cecaad478d2b00432346c3f1f3986da1afd33e506"
	hash := Hash([HashSize]byte{
		0x06, 0xe5, 0x33, 0xfd, 0x1a, 0xda, 0x86, 0x39,
		0x1f, 0x3f, 0x6c, 0x34, 0x32, 0x04, 0xb0, 0xd2,
		0x78, 0xd4, 0xaa, 0xec, 0x1c, 0x0b, 0x20, 0xaa,
		0x27, 0xba, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00,
	})

	hashStr := hash.String()
	if hashStr != wantStr {
		t.Errorf("String: wrong hash string - got %v, want %v",
			hashStr, wantStr)
	}
}

// TestHashCmp verifies hashes compare in the same order String renders
// them in.
func TestHashCmp(t *testing.T) {
	hash0, _ := NewHashFromStr("0000000000000000000000000000000000000000000000000000000000000000")
	hash1, _ := NewHashFromStr("1111111111111111111111111111111111111111111111111111111111111111")
	hash2, _ := NewHashFromStr("2222222222222222222222222222222222222222222222222222222222222222")

	tests := []struct {
		name     string
		first    *Hash
		second   *Hash
		expected int
	}{
		{"equal 0", hash0, hash0, 0},
		{"equal 2", hash2, hash2, 0},
		{"1 vs 0", hash1, hash0, 1},
		{"0 vs 1", hash0, hash1, -1},
		{"2 vs 1", hash2, hash1, 1},
		{"2 vs 0", hash2, hash0, 1},
		{"0 vs 2", hash0, hash2, -1},
	}

	for _, test := range tests {
		result := test.first.Cmp(test.second)
		if result != test.expected {
			t.Errorf("unexpected Hash.Cmp result for test \"%s\". "+
				"Expected: %d, got: %d.", test.name, test.expected, result)
		}
	}
}

func TestHashesStrings(t *testing.T) {
	first := &Hash{
		0x06, 0xe5, 0x33, 0xfd, 0x1a, 0xda, 0x86, 0x39,
		0x1f, 0x3f, 0x6c, 0x34, 0x32, 0x04, 0xb0, 0xd2,
		0x78, 0xd4, 0xaa, 0xec, 0x1c, 0x0b, 0x20, 0xaa,
		0x27, 0xba, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
	firstStr := "000000000003ba27aa200b1cecaad478d2b00432346c3f1f3986da1afd33e506"

	second := &Hash{}
	secondStr := "0000000000000000000000000000000000000000000000000000000000000000"

	tests := []struct {
		name            string
		hashes          []*Hash
		expectedStrings []string
	}{
		{"empty", []*Hash{}, []string{}},
		{"two hashes", []*Hash{first, second}, []string{firstStr, secondStr}},
		{"two hashes inversed", []*Hash{second, first}, []string{secondStr, firstStr}},
	}

	for _, test := range tests {
		strings := Strings(test.hashes)
		if !reflect.DeepEqual(strings, test.expectedStrings) {
			t.Errorf("HashesStrings: %s: expected: %v, got: %v",
				test.name, test.expectedStrings, strings)
		}
	}
}

// TestNewHashFromStr executes tests against the NewHashFromStr function.
func TestNewHashFromStr(t *testing.T) {
	tests := []struct {
		in   string
		want Hash
		err  error
	}{
		// Empty string.
		{
			"",
			Hash{},
			nil,
		},

		// Single digit hash.
		{
			"1",
			Hash([HashSize]byte{
				0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
			}),
			nil,
		},

		// Hash string that is too long.
		{
			"01234567890123456789012345678901234567890123456789012345678912345",
			Hash{},
			ErrHashStrSize,
		},

		// Hash string that contains non-hex chars.
		{
			"abcdefg",
			Hash{},
			errors.New("encoding/hex: invalid byte"),
		},
	}

	unexpectedErrStr := "NewHashFromStr #%d failed to detect expected error - got: %v want: %v"
	unexpectedResultStr := "NewHashFromStr #%d got: %v want: %v"
	t.Logf("Running %d tests", len(tests))
	for i, test := range tests {
		result, err := NewHashFromStr(test.in)
		if test.err != nil {
			if err == nil {
				t.Errorf(unexpectedErrStr, i, err, test.err)
			}
			continue
		}
		if err != nil {
			t.Errorf(unexpectedErrStr, i, err, test.err)
			continue
		}
		if !test.want.IsEqual(result) {
			t.Errorf(unexpectedResultStr, i, result, &test.want)
			continue
		}
	}
}
