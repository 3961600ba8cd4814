package datastore

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/janelia-flyem/mrf/dvid"
	"github.com/janelia-flyem/mrf/mrf"

	"github.com/tinylib/msgp/msgp"
)

// Kind is the type of volume stored under a name.
type Kind uint8

const (
	Responsibilities Kind = iota + 1
	Priors
	Interaction
)

// Kinds lists all volume kinds.
var Kinds = []Kind{Responsibilities, Priors, Interaction}

func (k Kind) String() string {
	switch k {
	case Responsibilities:
		return "responsibilities"
	case Priors:
		return "priors"
	case Interaction:
		return "interaction"
	default:
		return fmt.Sprintf("unknown kind %d", uint8(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown volume kind %q, expected one of responsibilities, priors, interaction", s)
}

// codecVersion is bumped whenever the envelope changes incompatibly.
const codecVersion = 1

const (
	dtypeUint8   = "uint8"
	dtypeFloat32 = "float32"
)

// Volume is a decoded volume of one of the three kinds.  Exactly one of Q, P, G is set.
type Volume struct {
	Kind Kind
	Q    *mrf.Responsibilities
	P    *mrf.Priors
	G    *mrf.Interaction
}

// Dims returns the dims of the volume.  For shared interactions only K is set.
func (v *Volume) Dims() mrf.Dims {
	switch {
	case v.Q != nil:
		return v.Q.Dims
	case v.P != nil:
		return v.P.Dims
	case v.G != nil:
		d := v.G.Grid()
		d.K = v.G.Classes()
		return d
	}
	return mrf.Dims{}
}

// Encode serializes the volume with the given compression and a CRC32 checksum.
func (v *Volume) Encode(compress dvid.Compression) ([]byte, error) {
	var (
		shape []int
		dtype string
		data  []byte
		mode  string
	)
	switch v.Kind {
	case Responsibilities:
		if v.Q == nil {
			return nil, fmt.Errorf("responsibilities volume has no data")
		}
		d := v.Q.Dims
		shape, dtype, data = []int{d.X, d.Y, d.Z, d.K}, dtypeUint8, v.Q.Data
	case Priors:
		if v.P == nil {
			return nil, fmt.Errorf("priors volume has no data")
		}
		d := v.P.Dims
		shape, dtype, data = []int{d.X, d.Y, d.Z, d.K}, dtypeFloat32, float32Bytes(v.P.Data)
	case Interaction:
		if v.G == nil {
			return nil, fmt.Errorf("interaction volume has no data")
		}
		shape, mode = v.G.Shape(), v.G.Mode().String()
		if v.G.Mode() == mrf.PackedQuantized {
			dtype, data = dtypeUint8, v.G.Quantized()
		} else {
			dtype, data = dtypeFloat32, float32Bytes(v.G.Weights())
		}
	default:
		return nil, fmt.Errorf("cannot encode volume of %s", v.Kind)
	}
	dims := v.Dims()

	b := make([]byte, 0, len(data)+128)
	b = msgp.AppendMapHeader(b, 7)
	b = msgp.AppendString(b, "version")
	b = msgp.AppendInt(b, codecVersion)
	b = msgp.AppendString(b, "kind")
	b = msgp.AppendString(b, v.Kind.String())
	b = msgp.AppendString(b, "dims")
	b = appendInts(b, []int{dims.X, dims.Y, dims.Z, dims.K})
	b = msgp.AppendString(b, "mode")
	b = msgp.AppendString(b, mode)
	b = msgp.AppendString(b, "shape")
	b = appendInts(b, shape)
	b = msgp.AppendString(b, "dtype")
	b = msgp.AppendString(b, dtype)
	b = msgp.AppendString(b, "data")
	b = msgp.AppendBytes(b, data)

	return dvid.SerializeData(b, compress, dvid.CRC32)
}

// Decode deserializes a volume written by Encode, validating its shape.
func Decode(s []byte) (*Volume, error) {
	b, _, err := dvid.DeserializeData(s, true)
	if err != nil {
		return nil, err
	}
	var (
		version int
		kindStr string
		dimsArr []int
		modeStr string
		shape   []int
		dtype   string
		data    []byte
	)
	sz, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, fmt.Errorf("bad volume envelope: %v", err)
	}
	for i := uint32(0); i < sz; i++ {
		var field string
		if field, b, err = msgp.ReadStringBytes(b); err != nil {
			return nil, fmt.Errorf("bad volume envelope field: %v", err)
		}
		switch field {
		case "version":
			version, b, err = msgp.ReadIntBytes(b)
		case "kind":
			kindStr, b, err = msgp.ReadStringBytes(b)
		case "dims":
			dimsArr, b, err = readInts(b)
		case "mode":
			modeStr, b, err = msgp.ReadStringBytes(b)
		case "shape":
			shape, b, err = readInts(b)
		case "dtype":
			dtype, b, err = msgp.ReadStringBytes(b)
		case "data":
			data, b, err = msgp.ReadBytesBytes(b, nil)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return nil, fmt.Errorf("bad volume envelope field %q: %v", field, err)
		}
	}
	if version != codecVersion {
		return nil, fmt.Errorf("unsupported volume encoding version %d", version)
	}
	kind, err := ParseKind(kindStr)
	if err != nil {
		return nil, err
	}
	if len(dimsArr) != 4 {
		return nil, fmt.Errorf("volume dims must have 4 entries, got %v", dimsArr)
	}
	d := mrf.Dims{X: dimsArr[0], Y: dimsArr[1], Z: dimsArr[2], K: dimsArr[3]}

	v := &Volume{Kind: kind}
	switch kind {
	case Responsibilities:
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if dtype != dtypeUint8 || len(data) != d.Size() {
			return nil, fmt.Errorf("responsibilities %s need %d uint8 values, got %d %s bytes", d, d.Size(), len(data), dtype)
		}
		v.Q = &mrf.Responsibilities{Dims: d, Data: data}
	case Priors:
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if dtype != dtypeFloat32 || len(data) != 4*d.Size() {
			return nil, fmt.Errorf("priors %s need %d float32 values, got %d %s bytes", d, d.Size(), len(data), dtype)
		}
		v.P = &mrf.Priors{Dims: d, Data: bytesFloat32(data)}
	case Interaction:
		mode, err := mrf.ParseMode(modeStr)
		if err != nil {
			return nil, err
		}
		if v.G, err = decodeInteraction(mode, d, shape, dtype, data); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// decodeInteraction builds the interaction named by the stored mode and checks that the
// stored shape and element type agree with it.
func decodeInteraction(mode mrf.Mode, d mrf.Dims, shape []int, dtype string, data []byte) (*mrf.Interaction, error) {
	if mode.PerVoxel() {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	} else if d.K < 1 || d.K > mrf.MaxClasses {
		return nil, fmt.Errorf("%w: shared interaction has %d classes, need 1 to %d", mrf.ErrTooManyClasses, d.K, mrf.MaxClasses)
	}
	wantType := dtypeFloat32
	if mode == mrf.PackedQuantized {
		wantType = dtypeUint8
	}
	if dtype != wantType {
		return nil, fmt.Errorf("%s interaction needs %s data, got %q", mode, wantType, dtype)
	}
	if dtype == dtypeFloat32 && len(data)%4 != 0 {
		return nil, fmt.Errorf("float32 interaction data has %d bytes", len(data))
	}

	var g []float32
	var gq []uint8
	if dtype == dtypeUint8 {
		gq = data
		if gq == nil {
			gq = []uint8{}
		}
	} else {
		g = bytesFloat32(data)
	}
	interaction, err := mrf.NewInteractionFromShape(d, shape, g, gq)
	if err != nil {
		return nil, err
	}
	if interaction.Mode() != mode {
		return nil, fmt.Errorf("interaction shape %v decodes as %s, not stored %s", shape, interaction.Mode(), mode)
	}
	return interaction, nil
}

// maxShapeLen bounds the dims and shape arrays of the envelope.
const maxShapeLen = 8

func appendInts(b []byte, vals []int) []byte {
	b = msgp.AppendArrayHeader(b, uint32(len(vals)))
	for _, v := range vals {
		b = msgp.AppendInt(b, v)
	}
	return b
}

func readInts(b []byte) ([]int, []byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, b, err
	}
	if n > maxShapeLen || n > uint32(len(b)) {
		return nil, b, fmt.Errorf("array of %d entries exceeds limit of %d", n, maxShapeLen)
	}
	vals := make([]int, n)
	for i := range vals {
		if vals[i], b, err = msgp.ReadIntBytes(b); err != nil {
			return nil, b, err
		}
	}
	return vals, b, nil
}

func float32Bytes(vals []float32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

func bytesFloat32(b []byte) []float32 {
	vals := make([]float32, len(b)/4)
	for i := range vals {
		vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return vals
}
