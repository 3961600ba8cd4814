package mrf

import (
	"context"
	"fmt"

	"github.com/janelia-flyem/mrf/dvid"

	"golang.org/x/sync/errgroup"
)

// Relax performs one relaxation step: two checkerboard half-sweeps over the grid.
//
// All inputs are validated before anything is written.  If opts.InPlace is set the
// passed responsibilities are updated and returned; otherwise q is copied and left
// unchanged.  Priors and interaction are only read and may be shared between
// concurrent calls.
//
// A *DegenerateError is returned together with the updated volume when some voxels
// had zero or non-finite total energy; those voxels keep their previous values.  If
// ctx is cancelled the step stops between rows and returns ctx.Err(), leaving an
// in-place volume partially updated.
func Relax(ctx context.Context, q *Responsibilities, p *Priors, g *Interaction, opts Options) (*Responsibilities, error) {
	if err := Validate(q, p, g, opts); err != nil {
		return nil, err
	}
	out := q
	if !opts.InPlace {
		out = q.Clone()
	}
	if err := relax(ctx, out, p, g, opts.anisotropy(), opts.workers()); err != nil {
		if _, ok := err.(*DegenerateError); ok {
			return out, err
		}
		return nil, err
	}
	return out, nil
}

// RelaxSteps applies n consecutive relaxation steps with the same priors and
// interaction.  Only the first step honors opts.InPlace; later steps update the
// result of the previous one.  Degenerate voxels of all steps are summed into a
// single *DegenerateError.
func RelaxSteps(ctx context.Context, q *Responsibilities, p *Priors, g *Interaction, n int, opts Options) (*Responsibilities, error) {
	if n < 1 {
		return nil, fmt.Errorf("number of relaxation steps must be positive, got %d", n)
	}
	out, err := Relax(ctx, q, p, g, opts)
	if out == nil {
		return nil, err
	}
	var degenerate *DegenerateError
	if err != nil {
		degenerate = err.(*DegenerateError)
	}
	w, workers := opts.anisotropy(), opts.workers()
	for step := 1; step < n; step++ {
		err := relax(ctx, out, p, g, w, workers)
		if err == nil {
			continue
		}
		de, ok := err.(*DegenerateError)
		if !ok {
			return nil, err
		}
		if degenerate == nil {
			degenerate = de
		} else {
			degenerate.Count += de.Count
		}
	}
	if degenerate != nil {
		return out, degenerate
	}
	return out, nil
}

// relax runs both half-sweeps on already validated inputs.
func relax(ctx context.Context, q *Responsibilities, p *Priors, g *Interaction, w Anisotropy, workers int) error {
	timedLog := dvid.NewTimeLog()
	s := newSweeper(q, p, g, w)

	var degenerate *DegenerateError
	for color := 0; color < 2; color++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		count, first, err := s.halfSweep(ctx, color, workers)
		if err != nil {
			return err
		}
		if count == 0 {
			continue
		}
		if degenerate == nil {
			degenerate = &DegenerateError{First: q.Coord(first)}
		}
		degenerate.Count += count
	}
	timedLog.Debugf("Relaxed %s volume with %s interaction using %d workers", q.Dims, g.mode, workers)
	if degenerate != nil {
		dvid.Warningf("Relaxation of %s volume skipped %d voxel updates, first at %s\n",
			q.Dims, degenerate.Count, degenerate.First)
		return degenerate
	}
	return nil
}

// halfSweep updates every voxel of one color.  The (y, z) rows are split into
// contiguous ranges, one per worker.  Same-colored voxels never neighbor each other,
// so workers share the volume without synchronization.  Returns the number of
// degenerate voxels and the index of the first one.
func (s *sweeper) halfSweep(ctx context.Context, color, workers int) (int, int, error) {
	rows := s.d.Y * s.d.Z
	if workers > rows {
		workers = rows
	}
	if workers < 1 {
		workers = 1
	}
	scratches := make([]*scratch, workers)
	for w := range scratches {
		scratches[w] = s.newScratch()
	}

	if workers == 1 {
		if err := s.sweepRows(ctx, color, 0, rows, scratches[0]); err != nil {
			return 0, -1, err
		}
	} else {
		eg, egCtx := errgroup.WithContext(ctx)
		for w := 0; w < workers; w++ {
			start, end, sc := w*rows/workers, (w+1)*rows/workers, scratches[w]
			eg.Go(func() error {
				return s.sweepRows(egCtx, color, start, end, sc)
			})
		}
		if err := eg.Wait(); err != nil {
			return 0, -1, err
		}
	}

	count, first := 0, -1
	for _, sc := range scratches {
		count += sc.degenerate
		if first < 0 {
			first = sc.first
		}
	}
	return count, first, nil
}

// sweepRows visits rows [start, end) where row r is (y, z) = (r mod Y, r div Y).
func (s *sweeper) sweepRows(ctx context.Context, color, start, end int, sc *scratch) error {
	for r := start; r < end; r++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.row(color, r%s.d.Y, r/s.d.Y, sc)
	}
	return nil
}
