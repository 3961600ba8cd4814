package mrf

import (
	"fmt"
	"math"

	"github.com/janelia-flyem/mrf/dvid"
)

// Anisotropy weighs neighbor contributions along the x, y and z axes.
type Anisotropy [3]float32

// DefaultAnisotropy weighs all axes equally.
var DefaultAnisotropy = Anisotropy{1, 1, 1}

// AnisotropyFromVoxelSize returns the squared physical voxel sizes, the weights
// intended for non-cubic voxels.
func AnisotropyFromVoxelSize(sx, sy, sz float32) Anisotropy {
	return Anisotropy{sx * sx, sy * sy, sz * sz}
}

// NewAnisotropy builds weights from a slice that must hold exactly three values.
func NewAnisotropy(w []float32) (Anisotropy, error) {
	if len(w) != 3 {
		return Anisotropy{}, shapeErrorf("anisotropy needs three elements, got %d", len(w))
	}
	a := Anisotropy{w[0], w[1], w[2]}
	return a, a.Validate()
}

// Validate rejects negative or non-finite weights.
func (w Anisotropy) Validate() error {
	for i, v := range w {
		f := float64(v)
		if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("anisotropy weight %d must be finite and non-negative, got %g", i, v)
		}
	}
	return nil
}

// Options control a relaxation step.
type Options struct {
	// Anisotropy weights; nil means DefaultAnisotropy.
	Anisotropy *Anisotropy

	// InPlace mutates the passed responsibilities.  Otherwise they are copied first
	// and left untouched.
	InPlace bool

	// Workers is the number of goroutines sharing each half-sweep.  Zero or less
	// uses dvid.NumCPU.
	Workers int
}

func (opts Options) anisotropy() Anisotropy {
	if opts.Anisotropy == nil {
		return DefaultAnisotropy
	}
	return *opts.Anisotropy
}

func (opts Options) workers() int {
	if opts.Workers > 0 {
		return opts.Workers
	}
	if dvid.NumCPU > 0 {
		return dvid.NumCPU
	}
	return 1
}
