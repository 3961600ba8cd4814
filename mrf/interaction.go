package mrf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Mode selects one of the five encodings of the pairwise interaction weights.
type Mode uint8

const (
	// SharedDense is one K x K matrix used at every voxel, stored row-major.
	SharedDense Mode = iota + 1

	// SharedDiagonal is one length-K vector, the diagonal of a K x K matrix.
	SharedDiagonal

	// VoxelDense is a full K x K matrix per voxel.  Element (k, n) for voxel i is
	// stored at (k*K+n)*m + i.
	VoxelDense

	// PackedFloat is a symmetric, zero-diagonal matrix per voxel given by its
	// K(K-1)/2 strictly upper triangular entries ordered (0,1), (0,2), ..., (0,K-1),
	// (1,2), ...  Packed entry j for voxel i is stored at j*m + i.
	PackedFloat

	// PackedQuantized has the layout of PackedFloat with uint8 entries that are
	// scaled by QuantizedScale at use.
	PackedQuantized
)

// QuantizedScale converts PackedQuantized bytes into interaction weights.
const QuantizedScale = -0.0625

func (m Mode) String() string {
	switch m {
	case SharedDense:
		return "shared-dense"
	case SharedDiagonal:
		return "shared-diagonal"
	case VoxelDense:
		return "voxel-dense"
	case PackedFloat:
		return "packed-float"
	case PackedQuantized:
		return "packed-quantized"
	default:
		return fmt.Sprintf("unknown mode %d", uint8(m))
	}
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, error) {
	for m := SharedDense; m <= PackedQuantized; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown interaction mode %q", s)
}

// PerVoxel returns true if the mode stores separate weights for each voxel.
func (m Mode) PerVoxel() bool {
	return m == VoxelDense || m == PackedFloat || m == PackedQuantized
}

// NumPacked returns the number of packed entries K(K-1)/2 for k classes.
func NumPacked(k int) int {
	return k * (k - 1) / 2
}

// PackedIndex returns the packed position of the pair (r, c) with r < c.
func PackedIndex(r, c, k int) int {
	return r*k - r*(r+1)/2 + (c - r - 1)
}

// Interaction is a set of pairwise interaction weights in one of the five encodings.
// The encoding is fixed at construction and is not inspected again per voxel.
// Constructors keep the caller's weight slices without copying, so the caller must
// not modify them while the Interaction is in use.  Relaxation only reads them.
type Interaction struct {
	mode Mode
	k    int

	// spatial extent for per-voxel modes, zero otherwise.
	grid Dims

	weights   []float32
	quantized []uint8
}

// NewSharedDense returns a SharedDense interaction from a row-major K x K matrix.
func NewSharedDense(k int, g []float32) (*Interaction, error) {
	if k < 1 || len(g) != k*k {
		return nil, shapeErrorf("shared dense interaction needs %d x %d values, got %d", k, k, len(g))
	}
	return &Interaction{mode: SharedDense, k: k, weights: g}, nil
}

// NewSharedDenseFromMatrix copies a square matrix into a SharedDense interaction.
// Row k of the matrix weighs the influence vector when computing class k.
func NewSharedDenseFromMatrix(g mat.Matrix) (*Interaction, error) {
	r, c := g.Dims()
	if r != c {
		return nil, shapeErrorf("interaction matrix must be square, got %d x %d", r, c)
	}
	vals := make([]float32, r*c)
	for k := 0; k < r; k++ {
		for n := 0; n < c; n++ {
			vals[k*c+n] = float32(g.At(k, n))
		}
	}
	return NewSharedDense(r, vals)
}

// NewSharedDiagonal returns a SharedDiagonal interaction with K = len(g).
func NewSharedDiagonal(g []float32) (*Interaction, error) {
	if len(g) == 0 {
		return nil, shapeErrorf("diagonal interaction needs at least one value")
	}
	return &Interaction{mode: SharedDiagonal, k: len(g), weights: g}, nil
}

// NewVoxelDense returns a VoxelDense interaction for a grid with dims d.
func NewVoxelDense(d Dims, g []float32) (*Interaction, error) {
	if want := d.NumVoxels() * d.K * d.K; len(g) != want {
		return nil, shapeErrorf("voxel dense interaction for %s needs %d values, got %d", d, want, len(g))
	}
	return &Interaction{mode: VoxelDense, k: d.K, grid: d, weights: g}, nil
}

// NewPackedFloat returns a PackedFloat interaction for a grid with dims d.
func NewPackedFloat(d Dims, g []float32) (*Interaction, error) {
	if want := d.NumVoxels() * NumPacked(d.K); len(g) != want {
		return nil, shapeErrorf("packed interaction for %s needs %d values, got %d", d, want, len(g))
	}
	return &Interaction{mode: PackedFloat, k: d.K, grid: d, weights: g}, nil
}

// NewPackedQuantized returns a PackedQuantized interaction for a grid with dims d.
func NewPackedQuantized(d Dims, g []uint8) (*Interaction, error) {
	if want := d.NumVoxels() * NumPacked(d.K); len(g) != want {
		return nil, shapeErrorf("quantized packed interaction for %s needs %d values, got %d", d, want, len(g))
	}
	return &Interaction{mode: PackedQuantized, k: d.K, grid: d, quantized: g}, nil
}

// NewInteractionFromShape picks the encoding from the shape of the supplied array, the
// way array-oriented callers describe the structure.  At most one of g or gq may be
// non-nil; a non-nil gq, even if empty, selects PackedQuantized.  Recognized shapes,
// with (X,Y,Z,K) from d:
//
//	[K] or [K 1]     SharedDiagonal (a [1 1] shape is a 1 x 1 SharedDense matrix)
//	[K K]            SharedDense
//	[X Y Z K K]      VoxelDense
//	[X Y Z K(K-1)/2] PackedFloat, or PackedQuantized for uint8 data
func NewInteractionFromShape(d Dims, shape []int, g []float32, gq []uint8) (*Interaction, error) {
	if g != nil && gq != nil {
		return nil, shapeErrorf("interaction needs either float32 or uint8 data, not both")
	}
	spatialMatch := func() bool {
		return shape[0] == d.X && shape[1] == d.Y && shape[2] == d.Z
	}
	switch {
	case len(shape) == 1 || (len(shape) == 2 && shape[0] > 1 && shape[1] == 1):
		if shape[0] != d.K || gq != nil {
			break
		}
		return NewSharedDiagonal(g)
	case len(shape) == 2:
		if shape[0] != d.K || shape[1] != d.K || gq != nil {
			break
		}
		return NewSharedDense(d.K, g)
	case len(shape) == 5:
		if !spatialMatch() || shape[3] != d.K || shape[4] != d.K || gq != nil {
			break
		}
		return NewVoxelDense(d, g)
	case len(shape) == 4:
		if !spatialMatch() || shape[3] != NumPacked(d.K) {
			break
		}
		if gq != nil {
			return NewPackedQuantized(d, gq)
		}
		return NewPackedFloat(d, g)
	}
	return nil, shapeErrorf("interaction shape %v does not match any encoding for %s", shape, d)
}

// Mode returns the encoding.
func (g *Interaction) Mode() Mode {
	return g.mode
}

// Classes returns K.
func (g *Interaction) Classes() int {
	return g.k
}

// Grid returns the spatial dims for per-voxel modes and zero Dims otherwise.
func (g *Interaction) Grid() Dims {
	return g.grid
}

// Weights returns the float32 weights, nil for PackedQuantized.
func (g *Interaction) Weights() []float32 {
	return g.weights
}

// Quantized returns the uint8 weights of a PackedQuantized interaction.
func (g *Interaction) Quantized() []uint8 {
	return g.quantized
}

// Shape returns the array shape that NewInteractionFromShape maps to this encoding.
func (g *Interaction) Shape() []int {
	d := g.grid
	switch g.mode {
	case SharedDense:
		return []int{g.k, g.k}
	case SharedDiagonal:
		return []int{g.k}
	case VoxelDense:
		return []int{d.X, d.Y, d.Z, g.k, g.k}
	default:
		return []int{d.X, d.Y, d.Z, NumPacked(g.k)}
	}
}

// NumBytes returns the size of the weight storage.
func (g *Interaction) NumBytes() int {
	return 4*len(g.weights) + len(g.quantized)
}

// Dense returns the shared K x K matrix as a gonum matrix.  Only valid for SharedDense
// and SharedDiagonal.
func (g *Interaction) Dense() (*mat.Dense, error) {
	out := mat.NewDense(g.k, g.k, nil)
	switch g.mode {
	case SharedDense:
		for k := 0; k < g.k; k++ {
			for n := 0; n < g.k; n++ {
				out.Set(k, n, float64(g.weights[k*g.k+n]))
			}
		}
	case SharedDiagonal:
		for k := 0; k < g.k; k++ {
			out.Set(k, k, float64(g.weights[k]))
		}
	default:
		return nil, fmt.Errorf("%s interaction has no shared matrix", g.mode)
	}
	return out, nil
}

// IsSymmetric returns true if the shared matrix equals its transpose, in which case
// row-wise and column-wise application agree.  Per-voxel packed encodings are
// symmetric by construction; VoxelDense is checked voxel by voxel.
func (g *Interaction) IsSymmetric() bool {
	switch g.mode {
	case PackedFloat, PackedQuantized, SharedDiagonal:
		return true
	case SharedDense:
		d, _ := g.Dense()
		return mat.Equal(d, d.T())
	}
	m := g.grid.NumVoxels()
	for i := 0; i < m; i++ {
		for k := 0; k < g.k; k++ {
			for n := k + 1; n < g.k; n++ {
				if g.weights[(k*g.k+n)*m+i] != g.weights[(n*g.k+k)*m+i] {
					return false
				}
			}
		}
	}
	return true
}

// Quantize converts a PackedFloat interaction into PackedQuantized by storing
// round(-16*w) for every weight, clamped to 0..255.
func (g *Interaction) Quantize() (*Interaction, error) {
	if g.mode != PackedFloat {
		return nil, fmt.Errorf("only %s interactions can be quantized, not %s", PackedFloat, g.mode)
	}
	q := make([]uint8, len(g.weights))
	for i, w := range g.weights {
		v := math.Round(float64(w) / QuantizedScale)
		switch {
		case v < 0:
			v = 0
		case v > 255:
			v = 255
		}
		q[i] = uint8(v)
	}
	return NewPackedQuantized(g.grid, q)
}

// Pack converts a VoxelDense interaction into PackedFloat by keeping the strictly
// upper triangular entries.  The matrices must be symmetric with zero diagonals.
func (g *Interaction) Pack() (*Interaction, error) {
	if g.mode != VoxelDense {
		return nil, fmt.Errorf("only %s interactions can be packed, not %s", VoxelDense, g.mode)
	}
	if !g.IsSymmetric() {
		return nil, fmt.Errorf("cannot pack asymmetric per-voxel matrices")
	}
	m := g.grid.NumVoxels()
	packed := make([]float32, m*NumPacked(g.k))
	for i := 0; i < m; i++ {
		for k := 0; k < g.k; k++ {
			if g.weights[(k*g.k+k)*m+i] != 0 {
				return nil, fmt.Errorf("cannot pack matrix with non-zero diagonal at voxel %s", g.grid.Coord(i))
			}
		}
	}
	for r := 0; r < g.k; r++ {
		for c := r + 1; c < g.k; c++ {
			j := PackedIndex(r, c, g.k)
			copy(packed[j*m:(j+1)*m], g.weights[(r*g.k+c)*m:(r*g.k+c+1)*m])
		}
	}
	return NewPackedFloat(g.grid, packed)
}
