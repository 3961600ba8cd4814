/*
Package storage provides a unified key-value interface to a number of storage
engines.  Engines register themselves on init and are selected by name through
a dvid.StoreConfig, usually the [store] section of the TOML configuration.

Values are simply []byte at this level.  We assume serialization/deserialization
occur above the storage level.
*/
package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/janelia-flyem/mrf/dvid"

	"github.com/blang/semver"
)

// Store is a simple key-value store.  A Get on a missing key returns a nil value
// and a nil error.
type Store interface {
	fmt.Stringer

	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error

	// Keys returns all keys beginning with prefix in lexicographic order.
	Keys(prefix []byte) ([][]byte, error)

	Close() error
}

// Engine is a storage implementation that can create Stores.
type Engine interface {
	GetName() string
	GetDescription() string
	GetSemVer() semver.Version

	// NewStore returns a new store and whether it was newly created.
	NewStore(config dvid.StoreConfig) (Store, bool, error)
}

var (
	enginesMu sync.RWMutex
	engines   = map[string]Engine{}
)

// RegisterEngine makes an engine available for use in store configurations.
func RegisterEngine(e Engine) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	engines[e.GetName()] = e
}

// GetEngine returns the engine registered under the given name.
func GetEngine(name string) (Engine, error) {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	e, found := engines[name]
	if !found {
		return nil, fmt.Errorf("no storage engine %q registered; available: %s", name, enginesAvailableLocked())
	}
	return e, nil
}

// EnginesAvailable returns a description of the registered engines.
func EnginesAvailable() string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	return enginesAvailableLocked()
}

func enginesAvailableLocked() string {
	names := make([]string, 0, len(engines))
	for name, e := range engines {
		names = append(names, fmt.Sprintf("%s [%s]", name, e.GetSemVer()))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// NewStore opens a store using the engine named in the configuration.
func NewStore(config dvid.StoreConfig) (Store, error) {
	e, err := GetEngine(config.Engine)
	if err != nil {
		return nil, err
	}
	store, created, err := e.NewStore(config)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s store: %v", config.Engine, err)
	}
	if created {
		dvid.Infof("Created new %s\n", store)
	} else {
		dvid.Infof("Opened existing %s\n", store)
	}
	return store, nil
}
