package mrf

import (
	"fmt"
	"math"
)

// Validate checks that a relaxation step can run on the given inputs without
// touching any of them.  Relax calls it before any mutation.
func Validate(q *Responsibilities, p *Priors, g *Interaction, opts Options) error {
	if q == nil || p == nil || g == nil {
		return shapeErrorf("responsibilities, priors and interaction are all required")
	}
	if err := q.Dims.Validate(); err != nil {
		return err
	}
	if p.Dims != q.Dims {
		return shapeErrorf("responsibilities %s and priors %s differ", q.Dims, p.Dims)
	}
	if len(q.Data) != q.Size() {
		return shapeErrorf("responsibilities for %s need %d values, got %d", q.Dims, q.Size(), len(q.Data))
	}
	if len(p.Data) != p.Size() {
		return shapeErrorf("priors for %s need %d values, got %d", p.Dims, p.Size(), len(p.Data))
	}
	if err := validateInteraction(q.Dims, g); err != nil {
		return err
	}
	if err := opts.anisotropy().Validate(); err != nil {
		return err
	}
	return validatePriors(p)
}

func validateInteraction(d Dims, g *Interaction) error {
	if g.k != d.K {
		return shapeErrorf("%s interaction has %d classes, volume has %d", g.mode, g.k, d.K)
	}
	m := d.NumVoxels()
	var want, got int
	switch g.mode {
	case SharedDense:
		want, got = d.K*d.K, len(g.weights)
	case SharedDiagonal:
		want, got = d.K, len(g.weights)
	case VoxelDense:
		want, got = m*d.K*d.K, len(g.weights)
	case PackedFloat:
		want, got = m*NumPacked(d.K), len(g.weights)
	case PackedQuantized:
		want, got = m*NumPacked(d.K), len(g.quantized)
	default:
		return shapeErrorf("unrecognized interaction mode %d", uint8(g.mode))
	}
	if g.mode.PerVoxel() && g.grid != d {
		return shapeErrorf("%s interaction grid %s differs from volume %s", g.mode, g.grid, d)
	}
	if want != got {
		return shapeErrorf("%s interaction needs %d values, got %d", g.mode, want, got)
	}
	return nil
}

// validatePriors rejects voxels whose prior row cannot be renormalized.
func validatePriors(p *Priors) error {
	m := p.NumVoxels()
	for i := 0; i < m; i++ {
		var positive bool
		for k := 0; k < p.K; k++ {
			v := float64(p.Data[k*m+i])
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: class %d at %s has value %g", ErrDegeneratePrior, k, p.Coord(i), v)
			}
			if v > 0 {
				positive = true
			}
		}
		if !positive {
			return fmt.Errorf("%w: all classes zero at %s", ErrDegeneratePrior, p.Coord(i))
		}
	}
	return nil
}
