package dvid

import (
	"fmt"
	"strconv"
	"strings"
)

// Point3d is an ordered list of three 32-bit signed integers giving a voxel
// coordinate in (x, y, z) order.
type Point3d [3]int32

// Value returns the point's value for the specified dimension without checking dim bounds.
func (p Point3d) Value(dim uint8) int32 {
	return p[dim]
}

// Add returns the element-wise sum.
func (p Point3d) Add(p2 Point3d) Point3d {
	return Point3d{p[0] + p2[0], p[1] + p2[1], p[2] + p2[2]}
}

// Prod returns the product of the three components, e.g., the number of voxels
// in a volume of this size.
func (p Point3d) Prod() int64 {
	return int64(p[0]) * int64(p[1]) * int64(p[2])
}

// Parity returns (x+y+z) mod 2, the checkerboard color of a voxel coordinate.
func (p Point3d) Parity() int {
	s := int64(p[0]) + int64(p[1]) + int64(p[2])
	if s < 0 {
		s = -s
	}
	return int(s % 2)
}

func (p Point3d) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p[0], p[1], p[2])
}

// StringToPoint3d parses a string of the format "%d<sep>%d<sep>%d" into a Point3d.
func StringToPoint3d(s, separator string) (Point3d, error) {
	parts := strings.Split(s, separator)
	if len(parts) != 3 {
		return Point3d{}, fmt.Errorf("expected 3 components in %q, got %d", s, len(parts))
	}
	var p Point3d
	for i, part := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return Point3d{}, fmt.Errorf("bad coordinate %q in %q: %v", part, s, err)
		}
		p[i] = int32(v)
	}
	return p, nil
}
