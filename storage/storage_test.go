package storage

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	. "github.com/janelia-flyem/go/gocheck"

	"github.com/janelia-flyem/mrf/dvid"

	"github.com/blang/semver"
)

// Hook up gocheck into the "go test" runner.
func Test(t *testing.T) { TestingT(t) }

type StoreSuite struct{}

var _ = Suite(&StoreSuite{})

// mapStore is a trivial in-memory Store that counts reads.
type mapStore struct {
	sync.Mutex
	kv    map[string][]byte
	reads int
}

func newMapStore() *mapStore {
	return &mapStore{kv: make(map[string][]byte)}
}

func (s *mapStore) String() string { return "map store" }

func (s *mapStore) Get(key []byte) ([]byte, error) {
	s.Lock()
	defer s.Unlock()
	s.reads++
	v, found := s.kv[string(key)]
	if !found {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (s *mapStore) Put(key, value []byte) error {
	s.Lock()
	defer s.Unlock()
	s.kv[string(key)] = append([]byte(nil), value...)
	return nil
}

func (s *mapStore) Delete(key []byte) error {
	s.Lock()
	defer s.Unlock()
	delete(s.kv, string(key))
	return nil
}

func (s *mapStore) Keys(prefix []byte) ([][]byte, error) {
	s.Lock()
	defer s.Unlock()
	var keys []string
	for k := range s.kv {
		if strings.HasPrefix(k, string(prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = []byte(k)
	}
	return out, nil
}

func (s *mapStore) Close() error { return nil }

type mapEngine struct {
	store *mapStore
}

func (e mapEngine) GetName() string           { return "testmap" }
func (e mapEngine) GetDescription() string    { return "map store for testing" }
func (e mapEngine) GetSemVer() semver.Version { return semver.MustParse("1.2.3") }
func (e mapEngine) NewStore(config dvid.StoreConfig) (Store, bool, error) {
	return e.store, true, nil
}

func (s *StoreSuite) TestRegistry(c *C) {
	ms := newMapStore()
	RegisterEngine(mapEngine{ms})

	e, err := GetEngine("testmap")
	c.Assert(err, IsNil)
	c.Assert(e.GetSemVer().String(), Equals, "1.2.3")
	c.Assert(strings.Contains(EnginesAvailable(), "testmap [1.2.3]"), Equals, true)

	store, err := NewStore(dvid.StoreConfig{Engine: "testmap"})
	c.Assert(err, IsNil)
	c.Assert(store, Equals, Store(ms))

	_, err = GetEngine("nosuchengine")
	c.Assert(err, NotNil)
	_, err = NewStore(dvid.StoreConfig{Engine: "nosuchengine"})
	c.Assert(err, NotNil)
}

func (s *StoreSuite) TestCachedReadThrough(c *C) {
	ms := newMapStore()
	c.Assert(ms.Put([]byte("volume/a/priors"), []byte("abc")), IsNil)

	cached := NewCached(ms, 1024*1024).(*Cached)
	for i := 0; i < 3; i++ {
		v, err := cached.Get([]byte("volume/a/priors"))
		c.Assert(err, IsNil)
		c.Assert(string(v), Equals, "abc")
	}
	c.Assert(ms.reads, Equals, 1)
	attempts, hits := cached.Stats()
	c.Assert(attempts, Equals, uint64(3))
	c.Assert(hits, Equals, uint64(2))

	v, err := cached.Get([]byte("volume/missing"))
	c.Assert(err, IsNil)
	c.Assert(v, IsNil)
}

func (s *StoreSuite) TestCachedWriteThrough(c *C) {
	ms := newMapStore()
	cached := NewCached(ms, 1024*1024)

	key := []byte("volume/b/responsibilities")
	c.Assert(cached.Put(key, []byte("first")), IsNil)
	c.Assert(cached.Put(key, []byte("second")), IsNil)
	v, err := cached.Get(key)
	c.Assert(err, IsNil)
	c.Assert(string(v), Equals, "second")
	c.Assert(ms.reads, Equals, 0)

	c.Assert(cached.Delete(key), IsNil)
	v, err = cached.Get(key)
	c.Assert(err, IsNil)
	c.Assert(v, IsNil)

	keys, err := cached.Keys([]byte("volume/"))
	c.Assert(err, IsNil)
	c.Assert(keys, HasLen, 0)
}

func (s *StoreSuite) TestCachedLargeValues(c *C) {
	ms := newMapStore()
	cached := NewCached(ms, 512*1024)

	big := bytes.Repeat([]byte{7}, 64*1024)
	c.Assert(cached.Put([]byte("big"), big), IsNil)
	for i := 0; i < 2; i++ {
		v, err := cached.Get([]byte("big"))
		c.Assert(err, IsNil)
		c.Assert(len(v), Equals, len(big))
	}
	c.Assert(ms.reads, Equals, 2)
}

func (s *StoreSuite) TestNoCache(c *C) {
	ms := newMapStore()
	c.Assert(NewCached(ms, 0), Equals, Store(ms))
}

func (s *StoreSuite) TestCachedConcurrent(c *C) {
	ms := newMapStore()
	cached := NewCached(ms, 1024*1024)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := []byte(fmt.Sprintf("volume/%d/priors", i))
			if err := cached.Put(key, key); err != nil {
				c.Error(err)
			}
			v, err := cached.Get(key)
			if err != nil || !bytes.Equal(v, key) {
				c.Errorf("bad read for %s: %q, %v", key, v, err)
			}
		}(i)
	}
	wg.Wait()
	keys, err := ms.Keys([]byte("volume/"))
	c.Assert(err, IsNil)
	c.Assert(keys, HasLen, 8)
}
