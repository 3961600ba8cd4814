/*
Package mrf implements one Markov Random Field relaxation step over a 3D grid of
per-voxel class responsibilities.

A step visits every voxel twice using a checkerboard (red-black) schedule: the first
half-sweep updates voxels where (x+y+z) is even, the second those where it is odd.
Face neighbors always have the opposite color, so within a half-sweep no voxel reads
a value written in that same half-sweep.  This gives the result of a synchronous
6-neighbor update while writing into a single buffer, and it allows each half-sweep
to be split across goroutines without locking.

For each visited voxel the responsibilities of its face neighbors are summed, weighted
per axis by the anisotropy, and divided by 6 (always 6, even on the grid boundary).
The resulting influence vector a is combined with the interaction weights G and the
prior p as

	q[k] = round(255 * p[k]*exp((G a)[k]) / sum_n p[n]*exp((G a)[n]))

where G is one of five encodings (see Mode).  Dense matrices are applied row-wise:
(G a)[k] = sum_n G[k][n] a[n].

Volumes are planar with x varying fastest: the value for class k at voxel (x, y, z)
lives at index k*m + x + X*(y + Y*z), where m = X*Y*Z.
*/
package mrf
