package badger

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/janelia-flyem/mrf/dvid"
	"github.com/janelia-flyem/mrf/storage"

	"github.com/blang/semver"
	"github.com/dgraph-io/badger/v3"
)

const (
	// DefaultVersionsToKeep is the number of versions to keep per key.
	DefaultVersionsToKeep = 1

	// DefaultSyncWrites is true if all writes are synced to disk, thereby making db resilient
	// at cost of speed.
	DefaultSyncWrites = false

	syncInterval = 30 * time.Second
)

func init() {
	ver, err := semver.Make("0.1.0")
	if err != nil {
		dvid.Errorf("Unable to make semver in badger: %v\n", err)
	}
	e := Engine{"badger", "BadgerDB", ver}
	storage.RegisterEngine(e)
}

// --- Engine Implementation ------

type Engine struct {
	name   string
	desc   string
	semver semver.Version
}

func (e Engine) GetName() string {
	return e.name
}

func (e Engine) GetDescription() string {
	return e.desc
}

func (e Engine) GetSemVer() semver.Version {
	return e.semver
}

func (e Engine) String() string {
	return fmt.Sprintf("%s [%s]", e.name, e.semver)
}

// NewStore returns a badger. The passed Config must contain "path" string unless
// "inmemory" is true.
func (e Engine) NewStore(config dvid.StoreConfig) (storage.Store, bool, error) {
	db, created, err := e.newDB(config)
	if err != nil {
		return nil, created, err
	}
	return db, created, nil
}

func parseConfig(config dvid.StoreConfig) (path string, inMemory bool, err error) {
	if inMemory, _, err = config.GetBool("inmemory"); err != nil {
		return
	}
	var found bool
	path, found, err = config.GetString("path")
	if err != nil {
		return
	}
	if !found && !inMemory {
		err = fmt.Errorf("%q must be specified for BadgerDB configuration", "path")
	}
	return
}

func getOptions(path string, inMemory bool, config dvid.Config) (*badger.Options, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(badgerLogger{}).WithNumVersionsToKeep(DefaultVersionsToKeep).WithSyncWrites(DefaultSyncWrites)

	readOnly, found, err := config.GetBool("ReadOnly")
	if err != nil {
		return nil, err
	}
	if found {
		opts = opts.WithReadOnly(readOnly)
	}

	valueSizeThresh, found, err := config.GetInt("ValueThreshold")
	if err != nil {
		return nil, err
	}
	if found {
		opts = opts.WithValueThreshold(int64(valueSizeThresh))
	}
	return &opts, nil
}

// Periodically sync to prevent too many writes from being buffered
// if server crashes.
func syncPeriodically(db *BadgerDB) {
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-db.stopSyncCh:
			dvid.Debugf("Stopping sync goroutine for %s\n", db)
			return
		case <-ticker.C:
			if err := db.bdp.Sync(); err != nil {
				dvid.Errorf("Unable to sync %s: %v\n", db, err)
			}
		}
	}
}

// newDB returns a Badger backend, creating one at path if it doesn't exist.
func (e Engine) newDB(config dvid.StoreConfig) (*BadgerDB, bool, error) {
	path, inMemory, err := parseConfig(config)
	if err != nil {
		return nil, false, err
	}

	created := inMemory
	if !inMemory {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			dvid.TimeInfof("Database not already at path (%s). Creating directory...\n", path)
			created = true
			if err := os.MkdirAll(path, 0744); err != nil {
				return nil, true, fmt.Errorf("Can't make directory at %s: %v", path, err)
			}
		}
	}

	opts, err := getOptions(path, inMemory, config.Config)
	if err != nil {
		return nil, false, err
	}
	bdp, err := badger.Open(*opts)
	if err != nil {
		return nil, false, err
	}
	db := &BadgerDB{
		directory:  path,
		inMemory:   inMemory,
		bdp:        bdp,
		stopSyncCh: make(chan struct{}),
	}
	if !inMemory {
		go syncPeriodically(db)
	}
	return db, created, nil
}

// BadgerDB is a storage.Store backed by Badger.
type BadgerDB struct {
	directory string
	inMemory  bool

	bdp *badger.DB

	// stopSyncCh is used to signal the sync goroutine to stop.
	stopSyncCh chan struct{}
}

func (db *BadgerDB) String() string {
	if db.inMemory {
		return "in-memory badger"
	}
	return fmt.Sprintf("badger @ %s", db.directory)
}

// Get returns the value for the key or nil if the key is not present.
func (db *BadgerDB) Get(key []byte) ([]byte, error) {
	if db == nil || db.bdp == nil {
		return nil, fmt.Errorf("can't call Get on closed BadgerDB")
	}
	var value []byte
	err := db.bdp.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	return value, err
}

// Put stores a value under the key.
func (db *BadgerDB) Put(key, value []byte) error {
	if db == nil || db.bdp == nil {
		return fmt.Errorf("can't call Put on closed BadgerDB")
	}
	return db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Delete removes the key.  Deleting a missing key is not an error.
func (db *BadgerDB) Delete(key []byte) error {
	if db == nil || db.bdp == nil {
		return fmt.Errorf("can't call Delete on closed BadgerDB")
	}
	return db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Keys returns all keys with the given prefix in sorted order.
func (db *BadgerDB) Keys(prefix []byte) ([][]byte, error) {
	if db == nil || db.bdp == nil {
		return nil, fmt.Errorf("can't call Keys on closed BadgerDB")
	}
	var keys [][]byte
	err := db.bdp.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // key only
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	sort.Slice(keys, func(i, j int) bool { return string(keys[i]) < string(keys[j]) })
	return keys, err
}

// Close closes the BadgerDB.
func (db *BadgerDB) Close() error {
	if db == nil || db.bdp == nil {
		return nil
	}
	if !db.inMemory {
		close(db.stopSyncCh)
	}
	err := db.bdp.Close()
	dvid.Infof("Closed %s\n", db)
	db.bdp = nil
	return err
}

// badgerLogger routes badger's internal logging through the dvid logger.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	dvid.Errorf("badger: "+format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	dvid.Warningf("badger: "+format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	dvid.Debugf("badger: "+format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	dvid.Debugf("badger: "+format, args...)
}
