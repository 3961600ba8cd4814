package datastore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/janelia-flyem/mrf/dvid"
	"github.com/janelia-flyem/mrf/mrf"
	"github.com/janelia-flyem/mrf/storage"
	_ "github.com/janelia-flyem/mrf/storage/blob"

	"github.com/stretchr/testify/require"
	"github.com/tinylib/msgp/msgp"
)

func newTestStore(t *testing.T, compress dvid.Compression) *VolumeStore {
	c := dvid.NewConfig()
	c.Set("url", "mem://")
	store, err := storage.NewStore(dvid.StoreConfig{Config: c, Engine: "blob"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewVolumeStore(store, compress)
}

func testVolumes(t *testing.T) (d mrf.Dims, q *mrf.Responsibilities, p *mrf.Priors, gs []*mrf.Interaction) {
	d = mrf.Dims{X: 3, Y: 2, Z: 2, K: 3}
	q = mrf.NewResponsibilities(d)
	p = mrf.NewPriors(d)
	for i := range q.Data {
		q.Data[i] = uint8(i * 7)
		p.Data[i] = float32(i) * 0.25
	}

	dense, err := mrf.NewSharedDense(3, []float32{0, -1, 2, -1, 0, 0.5, 2, 0.5, 0})
	require.NoError(t, err)
	diag, err := mrf.NewSharedDiagonal([]float32{1, 2, 3})
	require.NoError(t, err)
	vd := make([]float32, d.NumVoxels()*9)
	for i := range vd {
		vd[i] = float32(i%5) - 2
	}
	voxelDense, err := mrf.NewVoxelDense(d, vd)
	require.NoError(t, err)
	pf := make([]float32, d.NumVoxels()*3)
	for i := range pf {
		pf[i] = -float32(i%4) / 16
	}
	packed, err := mrf.NewPackedFloat(d, pf)
	require.NoError(t, err)
	quantized, err := packed.Quantize()
	require.NoError(t, err)
	gs = []*mrf.Interaction{dense, diag, voxelDense, packed, quantized}
	return
}

func TestCodecRoundTrip(t *testing.T) {
	_, q, p, gs := testVolumes(t)
	for _, compress := range []dvid.Compression{dvid.Uncompressed, dvid.Snappy, dvid.Zstd} {
		data, err := (&Volume{Kind: Responsibilities, Q: q}).Encode(compress)
		require.NoError(t, err)
		v, err := Decode(data)
		require.NoError(t, err)
		require.Equal(t, Responsibilities, v.Kind)
		require.Equal(t, q, v.Q)

		data, err = (&Volume{Kind: Priors, P: p}).Encode(compress)
		require.NoError(t, err)
		v, err = Decode(data)
		require.NoError(t, err)
		require.Equal(t, p, v.P)

		for _, g := range gs {
			data, err = (&Volume{Kind: Interaction, G: g}).Encode(compress)
			require.NoError(t, err)
			v, err = Decode(data)
			require.NoError(t, err, "mode %s", g.Mode())
			require.Equal(t, g.Mode(), v.G.Mode())
			require.Equal(t, g.Shape(), v.G.Shape())
			require.Equal(t, g.Weights(), v.G.Weights())
			require.Equal(t, g.Quantized(), v.G.Quantized())
		}
	}
}

func TestCodecSingleClass(t *testing.T) {
	d := mrf.Dims{X: 2, Y: 2, Z: 1, K: 1}
	dense, err := mrf.NewSharedDense(1, []float32{0.5})
	require.NoError(t, err)
	diag, err := mrf.NewSharedDiagonal([]float32{2})
	require.NoError(t, err)
	voxelDense, err := mrf.NewVoxelDense(d, []float32{1, 2, 3, 4})
	require.NoError(t, err)
	packed, err := mrf.NewPackedFloat(d, []float32{})
	require.NoError(t, err)
	quantized, err := mrf.NewPackedQuantized(d, []uint8{})
	require.NoError(t, err)

	for _, g := range []*mrf.Interaction{dense, diag, voxelDense, packed, quantized} {
		data, err := (&Volume{Kind: Interaction, G: g}).Encode(dvid.Snappy)
		require.NoError(t, err)
		v, err := Decode(data)
		require.NoError(t, err, "mode %s", g.Mode())
		require.Equal(t, g.Mode(), v.G.Mode())
		require.Equal(t, g.Shape(), v.G.Shape())
		require.Equal(t, 1, v.G.Classes())
		require.Len(t, v.G.Weights(), len(g.Weights()))
		require.Len(t, v.G.Quantized(), len(g.Quantized()))
	}
}

// envelope serializes a hand-built volume map for decoder error cases.
func envelope(t *testing.T, fields func(b []byte) []byte, n uint32) []byte {
	b := msgp.AppendMapHeader(nil, n)
	b = fields(b)
	data, err := dvid.SerializeData(b, dvid.Uncompressed, dvid.CRC32)
	require.NoError(t, err)
	return data
}

func TestCodecRejectsBadEnvelopes(t *testing.T) {
	// huge array header with no entries behind it
	data := envelope(t, func(b []byte) []byte {
		b = msgp.AppendString(b, "shape")
		return msgp.AppendArrayHeader(b, 1<<31)
	}, 1)
	_, err := Decode(data)
	require.Error(t, err)

	data = envelope(t, func(b []byte) []byte {
		b = msgp.AppendString(b, "dims")
		return appendInts(b, make([]int, maxShapeLen+1))
	}, 1)
	_, err = Decode(data)
	require.Error(t, err)

	interaction := func(dims []int, mode string, shape []int, dtype string, payload []byte) []byte {
		return envelope(t, func(b []byte) []byte {
			b = msgp.AppendString(b, "version")
			b = msgp.AppendInt(b, codecVersion)
			b = msgp.AppendString(b, "kind")
			b = msgp.AppendString(b, "interaction")
			b = msgp.AppendString(b, "dims")
			b = appendInts(b, dims)
			b = msgp.AppendString(b, "mode")
			b = msgp.AppendString(b, mode)
			b = msgp.AppendString(b, "shape")
			b = appendInts(b, shape)
			b = msgp.AppendString(b, "dtype")
			b = msgp.AppendString(b, dtype)
			b = msgp.AppendString(b, "data")
			return msgp.AppendBytes(b, payload)
		}, 7)
	}

	// well-formed envelope decodes
	_, err = Decode(interaction([]int{0, 0, 0, 2}, "shared-diagonal", []int{2}, dtypeFloat32, make([]byte, 8)))
	require.NoError(t, err)

	for _, data := range [][]byte{
		interaction([]int{0, 0, 0, -3}, "packed-float", []int{0, 0, 0, 6}, dtypeFloat32, nil),
		interaction([]int{0, 0, 0, 0}, "shared-diagonal", []int{0}, dtypeFloat32, nil),
		interaction([]int{0, 0, 0, mrf.MaxClasses + 1}, "shared-diagonal", []int{mrf.MaxClasses + 1}, dtypeFloat32, make([]byte, 4*(mrf.MaxClasses+1))),
		interaction([]int{2, 1, 1, 2}, "packed-float", []int{2, 1, 1, 1}, dtypeUint8, make([]byte, 2)),
		interaction([]int{2, 1, 1, 2}, "packed-quantized", []int{2, 1, 1, 1}, dtypeFloat32, make([]byte, 8)),
		interaction([]int{0, 0, 0, 2}, "shared-dense", []int{2}, dtypeFloat32, make([]byte, 8)),
		interaction([]int{0, 0, 0, 2}, "shared-diagonal", []int{2}, dtypeFloat32, make([]byte, 7)),
	} {
		_, err := Decode(data)
		require.Error(t, err)
	}
}

func TestCodecRejectsCorruption(t *testing.T) {
	_, q, _, _ := testVolumes(t)
	data, err := (&Volume{Kind: Responsibilities, Q: q}).Encode(dvid.Snappy)
	require.NoError(t, err)

	bad := append([]byte(nil), data...)
	bad[len(bad)-1] ^= 0xff
	_, err = Decode(bad)
	require.Error(t, err)

	_, err = Decode(nil)
	require.Error(t, err)

	_, err = (&Volume{Kind: Priors}).Encode(dvid.Uncompressed)
	require.Error(t, err)
}

func TestVolumeStore(t *testing.T) {
	vs := newTestStore(t, dvid.Zstd)
	d, q, p, gs := testVolumes(t)

	require.NoError(t, vs.Put("cells", &Volume{Kind: Responsibilities, Q: q}))
	require.NoError(t, vs.Put("cells", &Volume{Kind: Priors, P: p}))
	require.NoError(t, vs.Put("cells", &Volume{Kind: Interaction, G: gs[3]}))
	require.NoError(t, vs.Put("other", &Volume{Kind: Interaction, G: gs[0]}))

	gotQ, err := vs.GetResponsibilities("cells")
	require.NoError(t, err)
	require.Equal(t, q, gotQ)
	gotP, err := vs.GetPriors("cells")
	require.NoError(t, err)
	require.Equal(t, p, gotP)
	gotG, err := vs.GetInteraction("cells")
	require.NoError(t, err)
	require.Equal(t, mrf.PackedFloat, gotG.Mode())

	_, err = vs.GetPriors("other")
	require.True(t, errors.Is(err, os.ErrNotExist))

	info, err := vs.Info("cells", Interaction)
	require.NoError(t, err)
	require.Equal(t, "packed-float", info.Mode)
	require.Equal(t, [4]int{d.X, d.Y, d.Z, d.K}, info.Dims)
	require.Equal(t, []int{3, 2, 2, 3}, info.Shape)
	require.Greater(t, info.Bytes, 0)
	require.Greater(t, info.StoredBytes, 0)

	info, err = vs.Info("nothing", Priors)
	require.NoError(t, err)
	require.Nil(t, info)

	names, err := vs.List()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"interaction", "priors", "responsibilities"}, names["cells"])
	require.Equal(t, []string{"interaction"}, names["other"])

	require.NoError(t, vs.Delete("cells", Priors))
	v, err := vs.Get("cells", Priors)
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestPutEncoded(t *testing.T) {
	vs := newTestStore(t, dvid.Snappy)
	_, q, _, _ := testVolumes(t)
	data, err := (&Volume{Kind: Responsibilities, Q: q}).Encode(dvid.Uncompressed)
	require.NoError(t, err)

	_, err = vs.PutEncoded("cells", Priors, data)
	require.Error(t, err)
	_, err = vs.PutEncoded("bad/name", Responsibilities, data)
	require.Error(t, err)
	_, err = vs.PutEncoded("cells", Responsibilities, []byte("junk"))
	require.Error(t, err)

	v, err := vs.PutEncoded("cells", Responsibilities, data)
	require.NoError(t, err)
	require.Equal(t, q, v.Q)
	stored, err := vs.GetEncoded("cells", Responsibilities)
	require.NoError(t, err)
	require.Equal(t, data, stored)
}

func TestFiles(t *testing.T) {
	_, _, p, _ := testVolumes(t)
	filename := filepath.Join(t.TempDir(), "priors.mrf")
	require.NoError(t, WriteFile(filename, &Volume{Kind: Priors, P: p}, dvid.Zstd))
	v, err := ReadFile(filename)
	require.NoError(t, err)
	require.Equal(t, p, v.P)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestKinds(t *testing.T) {
	for _, k := range Kinds {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		require.Equal(t, k, parsed)
	}
	_, err := ParseKind("labels")
	require.Error(t, err)
	require.Equal(t, "volume/a/priors", string(VolumeKey("a", Priors)))
}
