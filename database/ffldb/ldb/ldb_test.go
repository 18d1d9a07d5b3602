package ldb

import (
	"io/ioutil"
	"reflect"
	"testing"

	"github.com/umbranet/umbrad/database"
)

func prepareDatabaseForTest(t *testing.T, testName string) (ldb *LevelDB, teardownFunc func()) {
	// Create a temp db to run tests against
	path, err := ioutil.TempDir("", testName)
	if err != nil {
		t.Fatalf("%s: TempDir unexpectedly "+
			"failed: %s", testName, err)
	}
	ldb, err = NewLevelDB(path)
	if err != nil {
		t.Fatalf("%s: NewLevelDB unexpectedly "+
			"failed: %s", testName, err)
	}
	teardownFunc = func() {
		err = ldb.Close()
		if err != nil {
			t.Fatalf("%s: Close unexpectedly "+
				"failed: %s", testName, err)
		}
	}
	return ldb, teardownFunc
}

func TestLevelDBSanity(t *testing.T) {
	ldb, teardownFunc := prepareDatabaseForTest(t, "TestLevelDBSanity")
	defer teardownFunc()

	// Put something into the db
	key := database.MakeBucket().Key([]byte("key"))
	putData := []byte("Hello world!")
	err := ldb.Put(key, putData)
	if err != nil {
		t.Fatalf("TestLevelDBSanity: Put returned "+
			"unexpected error: %s", err)
	}

	// Get from the key previously put to
	getData, err := ldb.Get(key)
	if err != nil {
		t.Fatalf("TestLevelDBSanity: Get returned "+
			"unexpected error: %s", err)
	}

	// Make sure that the put data and the get data are equal
	if !reflect.DeepEqual(getData, putData) {
		t.Fatalf("TestLevelDBSanity: get data and "+
			"put data are not equal. Want: %s, got: %s",
			string(putData), string(getData))
	}
}

func TestLevelDBGetNotFound(t *testing.T) {
	ldb, teardownFunc := prepareDatabaseForTest(t, "TestLevelDBGetNotFound")
	defer teardownFunc()

	// Try getting a non-existent key and make sure that
	// the returned error is ErrNotFound
	key := database.MakeBucket().Key([]byte("doesn't exist"))
	_, err := ldb.Get(key)
	if err == nil {
		t.Fatalf("TestLevelDBGetNotFound: Get " +
			"unexpectedly succeeded")
	}
	if !database.IsNotFoundError(err) {
		t.Fatalf("TestLevelDBGetNotFound: Get "+
			"returned wrong error: %s", err)
	}
}

func TestLevelDBHasAndDelete(t *testing.T) {
	ldb, teardownFunc := prepareDatabaseForTest(t, "TestLevelDBHasAndDelete")
	defer teardownFunc()

	// Put something into the db
	key := database.MakeBucket().Key([]byte("key"))
	err := ldb.Put(key, []byte("Hello world!"))
	if err != nil {
		t.Fatalf("TestLevelDBHasAndDelete: Put returned "+
			"unexpected error: %s", err)
	}

	// Make sure that Has returns true for the key we just put
	exists, err := ldb.Has(key)
	if err != nil {
		t.Fatalf("TestLevelDBHasAndDelete: Has returned "+
			"unexpected error: %s", err)
	}
	if !exists {
		t.Fatalf("TestLevelDBHasAndDelete: Has " +
			"unexpectedly returned that the value does not exist")
	}

	// Delete the key
	err = ldb.Delete(key)
	if err != nil {
		t.Fatalf("TestLevelDBHasAndDelete: Delete returned "+
			"unexpected error: %s", err)
	}

	// Make sure that Has now returns false
	exists, err = ldb.Has(key)
	if err != nil {
		t.Fatalf("TestLevelDBHasAndDelete: Has returned "+
			"unexpected error: %s", err)
	}
	if exists {
		t.Fatalf("TestLevelDBHasAndDelete: Has " +
			"unexpectedly returned that the value exists")
	}
}
