package mrf

import (
	"errors"
	"fmt"

	"github.com/janelia-flyem/mrf/dvid"
)

var (
	// ErrShape is wrapped by all errors describing mismatched or unrecognized array shapes.
	ErrShape = errors.New("incompatible dimensions")

	// ErrTooManyClasses is returned when the class count exceeds MaxClasses.
	ErrTooManyClasses = errors.New("too many classes")

	// ErrDegeneratePrior is returned when a prior row would make renormalization undefined:
	// negative or non-finite values, or all classes zero.
	ErrDegeneratePrior = errors.New("degenerate prior")

	// ErrDegenerate is wrapped by *DegenerateError.
	ErrDegenerate = errors.New("degenerate energy")
)

// DegenerateError reports voxels whose total energy was zero or non-finite during a
// sweep.  Those voxels keep their previous responsibilities.
type DegenerateError struct {
	Count int          // number of voxel updates skipped
	First dvid.Point3d // coordinate of the first skipped voxel in sweep order
}

func (e *DegenerateError) Error() string {
	return fmt.Sprintf("%d voxel updates had zero or non-finite total energy, first at %s", e.Count, e.First)
}

func (e *DegenerateError) Unwrap() error {
	return ErrDegenerate
}

func shapeErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrShape, fmt.Sprintf(format, args...))
}
