package mrf

import "math"

// neighborDivisor is applied to the accumulated influence whatever the number of
// neighbors actually present, so boundary voxels see proportionally weaker
// influence than interior ones.  Responsibilities are also rescaled from 0..255.
const neighborDivisor = 255.0 * 6.0

// sweeper holds the read-only state shared by all workers of a relaxation step.
// Only q is written, and each worker writes only voxels of the color it is sweeping.
type sweeper struct {
	d     Dims
	m     int // voxels per class plane
	plane int // voxels per z slice
	q     []uint8
	p     []float32
	g     *Interaction
	w     Anisotropy
}

func newSweeper(q *Responsibilities, p *Priors, g *Interaction, w Anisotropy) *sweeper {
	return &sweeper{
		d:     q.Dims,
		m:     q.NumVoxels(),
		plane: q.X * q.Y,
		q:     q.Data,
		p:     p.Data,
		g:     g,
		w:     w,
	}
}

// scratch is the per-worker working memory, sized to the class count and reused
// for every voxel the worker visits.
type scratch struct {
	a, e []float32

	degenerate int
	first      int
}

func (s *sweeper) newScratch() *scratch {
	return &scratch{
		a:     make([]float32, s.d.K),
		e:     make([]float32, s.d.K),
		first: -1,
	}
}

// row updates the voxels of one color along the x axis at (y, z).
func (s *sweeper) row(color, y, z int, sc *scratch) {
	base := s.d.Index(0, y, z)
	for x := (color + y + z) & 1; x < s.d.X; x += 2 {
		i := base + x
		s.accumulate(x, y, z, i, sc.a)
		total := s.energy(i, sc.a, sc.e)
		if !s.update(i, sc.e, total) {
			sc.degenerate++
			if sc.first < 0 {
				sc.first = i
			}
		}
	}
}

// accumulate sums the anisotropy-weighted responsibilities of the face neighbors
// of voxel i into a.  The explicit float32 conversions keep the compiler from
// fusing multiply-adds, so results do not depend on the target architecture.
func (s *sweeper) accumulate(x, y, z, i int, a []float32) {
	for k := range a {
		a[k] = 0
	}
	if z > 0 {
		s.addNeighbor(a, i-s.plane, s.w[2])
	}
	if z < s.d.Z-1 {
		s.addNeighbor(a, i+s.plane, s.w[2])
	}
	if y > 0 {
		s.addNeighbor(a, i-s.d.X, s.w[1])
	}
	if y < s.d.Y-1 {
		s.addNeighbor(a, i+s.d.X, s.w[1])
	}
	if x > 0 {
		s.addNeighbor(a, i-1, s.w[0])
	}
	if x < s.d.X-1 {
		s.addNeighbor(a, i+1, s.w[0])
	}
	for k := range a {
		a[k] = float32(float64(a[k]) / neighborDivisor)
	}
}

func (s *sweeper) addNeighbor(a []float32, j int, w float32) {
	for k := range a {
		a[k] += float32(float32(s.q[k*s.m+j]) * w)
	}
}

// energy fills e with p[k]*exp(interaction(k)) for voxel i and returns the sum.
func (s *sweeper) energy(i int, a, e []float32) (total float32) {
	K, m := s.d.K, s.m
	switch s.g.mode {
	case SharedDense:
		G := s.g.weights
		for k := 0; k < K; k++ {
			row := G[k*K : (k+1)*K]
			var ek float32
			for n, gv := range row {
				ek += float32(gv * a[n])
			}
			e[k] = float32(math.Exp(float64(ek)) * float64(s.p[k*m+i]))
			total += e[k]
		}

	case SharedDiagonal:
		G := s.g.weights
		for k := 0; k < K; k++ {
			e[k] = float32(math.Exp(float64(float32(G[k]*a[k]))) * float64(s.p[k*m+i]))
			total += e[k]
		}

	case VoxelDense:
		G := s.g.weights
		for k := 0; k < K; k++ {
			j := k*K*m + i
			var ek float32
			for n := 0; n < K; n, j = n+1, j+m {
				ek += float32(G[j] * a[n])
			}
			e[k] = float32(math.Exp(float64(ek)) * float64(s.p[k*m+i]))
			total += e[k]
		}

	case PackedFloat:
		G := s.g.weights
		for k := range e {
			e[k] = 0
		}
		j := i
		for r := 0; r < K; r++ {
			for c := r + 1; c < K; c, j = c+1, j+m {
				gv := G[j]
				e[r] += float32(gv * a[c])
				e[c] += float32(gv * a[r])
			}
		}
		for k := 0; k < K; k++ {
			e[k] = float32(math.Exp(float64(e[k])) * float64(s.p[k*m+i]))
			total += e[k]
		}

	case PackedQuantized:
		G := s.g.quantized
		for k := range e {
			e[k] = 0
		}
		j := i
		for r := 0; r < K; r++ {
			for c := r + 1; c < K; c, j = c+1, j+m {
				gv := float32(G[j])
				e[r] += float32(gv * a[c])
				e[c] += float32(gv * a[r])
			}
		}
		for k := 0; k < K; k++ {
			e[k] = float32(math.Exp(QuantizedScale*float64(e[k])) * float64(s.p[k*m+i]))
			total += e[k]
		}
	}
	return total
}

// update renormalizes e and writes round(255*e[k]/total) for voxel i.  It returns
// false without writing if total is zero or not finite.
func (s *sweeper) update(i int, e []float32, total float32) bool {
	t := float64(total)
	if !(t > 0) || math.IsInf(t, 0) {
		return false
	}
	scale := float32(255.0 / t)
	for k, ek := range e {
		v := float64(ek*scale) + 0.5
		if v > 255 {
			v = 255
		}
		s.q[k*s.m+i] = uint8(v)
	}
	return true
}
