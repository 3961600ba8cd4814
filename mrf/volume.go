package mrf

import (
	"fmt"

	"github.com/janelia-flyem/mrf/dvid"
)

// MaxClasses is the largest number of classes a relaxation step accepts.
const MaxClasses = 1024

// Dims gives the spatial extent of a grid and its number of classes.
type Dims struct {
	X, Y, Z int
	K       int
}

// NumVoxels returns X*Y*Z.
func (d Dims) NumVoxels() int {
	return d.X * d.Y * d.Z
}

// Size returns the number of values in a volume with these dims, X*Y*Z*K.
func (d Dims) Size() int {
	return d.NumVoxels() * d.K
}

// Spatial returns the grid extent as a point.
func (d Dims) Spatial() dvid.Point3d {
	return dvid.Point3d{int32(d.X), int32(d.Y), int32(d.Z)}
}

// Index returns the voxel index of (x, y, z).  Class k of that voxel is found at
// k*d.NumVoxels() + Index(x, y, z).
func (d Dims) Index(x, y, z int) int {
	return x + d.X*(y+d.Y*z)
}

// Coord is the inverse of Index.
func (d Dims) Coord(i int) dvid.Point3d {
	x := i % d.X
	i /= d.X
	return dvid.Point3d{int32(x), int32(i % d.Y), int32(i / d.Y)}
}

// Validate checks that all extents are positive and the class count is supported.
func (d Dims) Validate() error {
	if d.X < 1 || d.Y < 1 || d.Z < 1 {
		return shapeErrorf("grid extent %d x %d x %d must be at least 1 in every axis", d.X, d.Y, d.Z)
	}
	if d.K < 1 {
		return shapeErrorf("need at least one class, got %d", d.K)
	}
	if d.K > MaxClasses {
		return fmt.Errorf("%w: %d classes exceeds maximum of %d", ErrTooManyClasses, d.K, MaxClasses)
	}
	return nil
}

func (d Dims) String() string {
	return fmt.Sprintf("%d x %d x %d x %d", d.X, d.Y, d.Z, d.K)
}

// Responsibilities holds one quantized probability (0..255 scaled to 0..1) per voxel
// and class.
type Responsibilities struct {
	Dims
	Data []uint8
}

// NewResponsibilities allocates a zeroed responsibility volume.
func NewResponsibilities(d Dims) *Responsibilities {
	return &Responsibilities{Dims: d, Data: make([]uint8, d.Size())}
}

// At returns the value for class k at (x, y, z).
func (r *Responsibilities) At(x, y, z, k int) uint8 {
	return r.Data[k*r.NumVoxels()+r.Index(x, y, z)]
}

// Set sets the value for class k at (x, y, z).
func (r *Responsibilities) Set(x, y, z, k int, v uint8) {
	r.Data[k*r.NumVoxels()+r.Index(x, y, z)] = v
}

// Voxel returns all K values at (x, y, z).
func (r *Responsibilities) Voxel(x, y, z int) []uint8 {
	m := r.NumVoxels()
	i := r.Index(x, y, z)
	out := make([]uint8, r.K)
	for k := range out {
		out[k] = r.Data[k*m+i]
	}
	return out
}

// SetVoxel sets all K values at (x, y, z).
func (r *Responsibilities) SetVoxel(x, y, z int, vals ...uint8) {
	m := r.NumVoxels()
	i := r.Index(x, y, z)
	for k, v := range vals {
		r.Data[k*m+i] = v
	}
}

// Fill sets every voxel to the same K values.
func (r *Responsibilities) Fill(vals ...uint8) {
	m := r.NumVoxels()
	for k, v := range vals {
		plane := r.Data[k*m : (k+1)*m]
		for i := range plane {
			plane[i] = v
		}
	}
}

// Clone returns a deep copy.
func (r *Responsibilities) Clone() *Responsibilities {
	data := make([]uint8, len(r.Data))
	copy(data, r.Data)
	return &Responsibilities{Dims: r.Dims, Data: data}
}

// Labels returns, for each voxel, the class with largest responsibility.  Ties go
// to the lower class index.
func (r *Responsibilities) Labels() []uint16 {
	m := r.NumVoxels()
	labels := make([]uint16, m)
	for i := 0; i < m; i++ {
		var best uint8
		for k := 0; k < r.K; k++ {
			if v := r.Data[k*m+i]; v > best {
				best = v
				labels[i] = uint16(k)
			}
		}
	}
	return labels
}

// Priors holds one unnormalized non-negative value per voxel and class.
type Priors struct {
	Dims
	Data []float32
}

// NewPriors allocates a zeroed prior volume.
func NewPriors(d Dims) *Priors {
	return &Priors{Dims: d, Data: make([]float32, d.Size())}
}

// At returns the value for class k at (x, y, z).
func (p *Priors) At(x, y, z, k int) float32 {
	return p.Data[k*p.NumVoxels()+p.Index(x, y, z)]
}

// SetVoxel sets all K values at (x, y, z).
func (p *Priors) SetVoxel(x, y, z int, vals ...float32) {
	m := p.NumVoxels()
	i := p.Index(x, y, z)
	for k, v := range vals {
		p.Data[k*m+i] = v
	}
}

// Fill sets every voxel to the same K values.
func (p *Priors) Fill(vals ...float32) {
	m := p.NumVoxels()
	for k, v := range vals {
		plane := p.Data[k*m : (k+1)*m]
		for i := range plane {
			plane[i] = v
		}
	}
}
