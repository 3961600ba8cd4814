package datastore

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/janelia-flyem/mrf/dvid"
	"github.com/janelia-flyem/mrf/mrf"
	"github.com/janelia-flyem/mrf/storage"

	"github.com/DmitriyVTitov/size"
	"github.com/dustin/go-humanize"
)

const keyPrefix = "volume/"

// VolumeKey returns the storage key for a named volume of the given kind.
func VolumeKey(name string, kind Kind) []byte {
	return []byte(keyPrefix + name + "/" + kind.String())
}

// ValidName returns an error if the name cannot be used as a volume name.
func ValidName(name string) error {
	if name == "" {
		return fmt.Errorf("volume name cannot be empty")
	}
	if strings.ContainsAny(name, "/\\") || strings.TrimSpace(name) != name {
		return fmt.Errorf("volume name %q cannot contain slashes or surrounding space", name)
	}
	return nil
}

// VolumeInfo describes a stored volume.
type VolumeInfo struct {
	Name        string
	Kind        string
	Dims        [4]int
	Mode        string `json:",omitempty"`
	Shape       []int
	Bytes       int // in-memory size of the decoded volume
	StoredBytes int // size of the encoded, compressed volume
}

// VolumeStore is a repository of named volumes over a storage.Store.  Per-name locks
// let a relaxation job hold its inputs stable while it runs.
type VolumeStore struct {
	store    storage.Store
	compress dvid.Compression

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// NewVolumeStore returns a VolumeStore writing with the given compression.
func NewVolumeStore(store storage.Store, compress dvid.Compression) *VolumeStore {
	return &VolumeStore{
		store:    store,
		compress: compress,
		locks:    make(map[string]*sync.RWMutex),
	}
}

func (vs *VolumeStore) String() string {
	return fmt.Sprintf("volume store [%s] on %s", vs.compress, vs.store)
}

// Lock returns the lock for a volume name.
func (vs *VolumeStore) Lock(name string) *sync.RWMutex {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	l, found := vs.locks[name]
	if !found {
		l = new(sync.RWMutex)
		vs.locks[name] = l
	}
	return l
}

// Put encodes and stores a volume under name.
func (vs *VolumeStore) Put(name string, v *Volume) error {
	if err := ValidName(name); err != nil {
		return err
	}
	data, err := v.Encode(vs.compress)
	if err != nil {
		return err
	}
	if err := vs.store.Put(VolumeKey(name, v.Kind), data); err != nil {
		return fmt.Errorf("unable to store %s %q: %v", v.Kind, name, err)
	}
	dvid.Debugf("Stored %s %q (%s): %s\n", v.Kind, name, v.Dims(), humanize.Bytes(uint64(len(data))))
	return nil
}

// PutEncoded decodes data to make sure it is a valid volume of the given kind and
// then stores it as is.
func (vs *VolumeStore) PutEncoded(name string, kind Kind, data []byte) (*Volume, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if v.Kind != kind {
		return nil, fmt.Errorf("data holds %s, not %s", v.Kind, kind)
	}
	if err := vs.store.Put(VolumeKey(name, kind), data); err != nil {
		return nil, fmt.Errorf("unable to store %s %q: %v", kind, name, err)
	}
	return v, nil
}

// GetEncoded returns the stored bytes for a volume or nil if not present.
func (vs *VolumeStore) GetEncoded(name string, kind Kind) ([]byte, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}
	return vs.store.Get(VolumeKey(name, kind))
}

// Get returns the decoded volume or nil if not present.
func (vs *VolumeStore) Get(name string, kind Kind) (*Volume, error) {
	data, err := vs.GetEncoded(name, kind)
	if err != nil || data == nil {
		return nil, err
	}
	v, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("stored %s %q is corrupt: %v", kind, name, err)
	}
	return v, nil
}

// GetResponsibilities returns the responsibilities stored under name.
func (vs *VolumeStore) GetResponsibilities(name string) (*mrf.Responsibilities, error) {
	v, err := vs.mustGet(name, Responsibilities)
	if err != nil {
		return nil, err
	}
	return v.Q, nil
}

// GetPriors returns the priors stored under name.
func (vs *VolumeStore) GetPriors(name string) (*mrf.Priors, error) {
	v, err := vs.mustGet(name, Priors)
	if err != nil {
		return nil, err
	}
	return v.P, nil
}

// GetInteraction returns the interaction stored under name.
func (vs *VolumeStore) GetInteraction(name string) (*mrf.Interaction, error) {
	v, err := vs.mustGet(name, Interaction)
	if err != nil {
		return nil, err
	}
	return v.G, nil
}

func (vs *VolumeStore) mustGet(name string, kind Kind) (*Volume, error) {
	v, err := vs.Get(name, kind)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("no %s stored for %q: %w", kind, name, os.ErrNotExist)
	}
	return v, nil
}

// Delete removes a volume.
func (vs *VolumeStore) Delete(name string, kind Kind) error {
	if err := ValidName(name); err != nil {
		return err
	}
	return vs.store.Delete(VolumeKey(name, kind))
}

// Info returns a description of a stored volume or nil if not present.
func (vs *VolumeStore) Info(name string, kind Kind) (*VolumeInfo, error) {
	data, err := vs.GetEncoded(name, kind)
	if err != nil || data == nil {
		return nil, err
	}
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	d := v.Dims()
	info := &VolumeInfo{
		Name:        name,
		Kind:        kind.String(),
		Dims:        [4]int{d.X, d.Y, d.Z, d.K},
		Shape:       []int{d.X, d.Y, d.Z, d.K},
		StoredBytes: len(data),
		Bytes:       size.Of(v),
	}
	if v.G != nil {
		info.Mode = v.G.Mode().String()
		info.Shape = v.G.Shape()
	}
	return info, nil
}

// List returns the kinds stored for each volume name.
func (vs *VolumeStore) List() (map[string][]string, error) {
	keys, err := vs.store.Keys([]byte(keyPrefix))
	if err != nil {
		return nil, err
	}
	names := make(map[string][]string)
	for _, key := range keys {
		parts := strings.Split(strings.TrimPrefix(string(key), keyPrefix), "/")
		if len(parts) != 2 {
			dvid.Warningf("Skipping unexpected key %q in %s\n", key, vs.store)
			continue
		}
		names[parts[0]] = append(names[parts[0]], parts[1])
	}
	return names, nil
}

// ReadFile decodes a volume from a file written by WriteFile.
func ReadFile(filename string) (*Volume, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	v, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("unable to decode %s: %v", filename, err)
	}
	return v, nil
}

// WriteFile encodes a volume into a file.
func WriteFile(filename string, v *Volume, compress dvid.Compression) error {
	data, err := v.Encode(compress)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
