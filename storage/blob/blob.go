/*
Package blob provides a storage engine over any gocloud.dev bucket URL, e.g.,
"mem://" for testing or "file:///data/mrf" for a local directory.
*/
package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/janelia-flyem/mrf/dvid"
	"github.com/janelia-flyem/mrf/storage"

	"github.com/blang/semver"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

func init() {
	ver, err := semver.Make("0.1.0")
	if err != nil {
		dvid.Errorf("Unable to make semver in blob engine: %v\n", err)
	}
	storage.RegisterEngine(Engine{"blob", "gocloud.dev bucket", ver})
}

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

// NewStore opens the bucket given by the "url" setting.  A bucket is reported as
// newly created if it holds no objects.
func (e Engine) NewStore(config dvid.StoreConfig) (storage.Store, bool, error) {
	url, found, err := config.GetString("url")
	if err != nil {
		return nil, false, err
	}
	if !found || url == "" {
		return nil, false, fmt.Errorf("%q must be specified for blob configuration", "url")
	}
	ctx := context.Background()
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, false, fmt.Errorf("unable to open bucket %q: %v", url, err)
	}
	store := &Store{url: url, bucket: bucket}
	keys, err := store.Keys(nil)
	if err != nil {
		bucket.Close()
		return nil, false, err
	}
	return store, len(keys) == 0, nil
}

// Store is a storage.Store over a gocloud bucket.  Keys must be valid UTF-8.
type Store struct {
	url    string
	bucket *blob.Bucket
}

func (s *Store) String() string {
	return fmt.Sprintf("blob store @ %s", s.url)
}

func (s *Store) Get(key []byte) ([]byte, error) {
	value, err := s.bucket.ReadAll(context.Background(), string(key))
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, nil
	}
	return value, err
}

func (s *Store) Put(key, value []byte) error {
	return s.bucket.WriteAll(context.Background(), string(key), value, nil)
}

func (s *Store) Delete(key []byte) error {
	err := s.bucket.Delete(context.Background(), string(key))
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}

// Keys lists objects under the prefix.  Bucket listings are already in lexicographic order.
func (s *Store) Keys(prefix []byte) ([][]byte, error) {
	ctx := context.Background()
	it := s.bucket.List(&blob.ListOptions{Prefix: string(prefix)})
	var keys [][]byte
	for {
		obj, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if obj.IsDir || strings.HasSuffix(obj.Key, "/") {
			continue
		}
		keys = append(keys, []byte(obj.Key))
	}
	return keys, nil
}

func (s *Store) Close() error {
	return s.bucket.Close()
}
