package mrf

import (
	"errors"
	"testing"

	"github.com/janelia-flyem/mrf/dvid"
)

func TestDimsIndexing(t *testing.T) {
	d := Dims{4, 3, 2, 5}
	if d.NumVoxels() != 24 || d.Size() != 120 {
		t.Fatalf("bad sizes for %s: %d voxels, %d values", d, d.NumVoxels(), d.Size())
	}
	for i := 0; i < d.NumVoxels(); i++ {
		c := d.Coord(i)
		if got := d.Index(int(c[0]), int(c[1]), int(c[2])); got != i {
			t.Errorf("Index(Coord(%d)) = %d", i, got)
		}
	}
	if got := d.Coord(d.Index(3, 1, 1)); got != (dvid.Point3d{3, 1, 1}) {
		t.Errorf("bad coordinate %s", got)
	}
}

func TestDimsValidate(t *testing.T) {
	if err := (Dims{1, 1, 1, 1}).Validate(); err != nil {
		t.Errorf("smallest grid rejected: %v", err)
	}
	if err := (Dims{0, 1, 1, 1}).Validate(); !errors.Is(err, ErrShape) {
		t.Errorf("expected shape error for empty axis, got %v", err)
	}
	if err := (Dims{1, 1, 1, MaxClasses}).Validate(); err != nil {
		t.Errorf("maximum class count rejected: %v", err)
	}
	if err := (Dims{1, 1, 1, MaxClasses + 1}).Validate(); !errors.Is(err, ErrTooManyClasses) {
		t.Errorf("expected too many classes, got %v", err)
	}
}

func TestVolumeAccess(t *testing.T) {
	d := Dims{2, 2, 2, 3}
	q := NewResponsibilities(d)
	q.SetVoxel(1, 0, 1, 10, 200, 45)
	if q.At(1, 0, 1, 1) != 200 {
		t.Errorf("At returned %d", q.At(1, 0, 1, 1))
	}
	// class planes are contiguous
	if q.Data[1*d.NumVoxels()+d.Index(1, 0, 1)] != 200 {
		t.Errorf("unexpected planar layout")
	}
	labels := q.Labels()
	if labels[d.Index(1, 0, 1)] != 1 {
		t.Errorf("expected label 1, got %d", labels[d.Index(1, 0, 1)])
	}
	clone := q.Clone()
	clone.Set(0, 0, 0, 0, 9)
	if q.At(0, 0, 0, 0) == 9 {
		t.Errorf("clone shares data with original")
	}

	p := NewPriors(d)
	p.Fill(0.1, 0.2, 0.7)
	if p.At(1, 1, 1, 2) != 0.7 {
		t.Errorf("prior fill failed")
	}
}

func TestAnisotropy(t *testing.T) {
	w := AnisotropyFromVoxelSize(1, 2, 0.5)
	if w != (Anisotropy{1, 4, 0.25}) {
		t.Errorf("unexpected weights %v", w)
	}
	if _, err := NewAnisotropy([]float32{1, 1}); !errors.Is(err, ErrShape) {
		t.Errorf("expected shape error for two weights, got %v", err)
	}
	if _, err := NewAnisotropy([]float32{1, -1, 1}); err == nil {
		t.Errorf("expected error for negative weight")
	}
}
