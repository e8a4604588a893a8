// Package camera models calibrated pinhole cameras and provides the
// single-camera 2D-3D pose estimate used to seed multi-camera refinement.
package camera

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Intrinsics holds the parameters necessary to do a perspective projection
// of a 3D scene onto the 2D image plane.
type Intrinsics struct {
	Fx   float64
	Fy   float64
	Ppx  float64
	Ppy  float64
	Skew float64
}

// ErrBehindCamera is returned when projecting a point with non-positive
// depth.
var ErrBehindCamera = errors.New("point is behind the camera")

// NewIntrinsicsFromMatrix extracts pinhole parameters from a 3x3 camera
// matrix.
func NewIntrinsicsFromMatrix(k *mat.Dense) (Intrinsics, error) {
	r, c := k.Dims()
	if r != 3 || c != 3 {
		return Intrinsics{}, errors.Errorf("camera matrix must be 3x3, got %dx%d", r, c)
	}
	return Intrinsics{
		Fx:   k.At(0, 0),
		Fy:   k.At(1, 1),
		Ppx:  k.At(0, 2),
		Ppy:  k.At(1, 2),
		Skew: k.At(0, 1),
	}, nil
}

// Matrix returns the 3x3 camera matrix.
func (i Intrinsics) Matrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		i.Fx, i.Skew, i.Ppx,
		0, i.Fy, i.Ppy,
		0, 0, 1,
	})
}

// ProjectPoint projects a 3D point in the camera frame onto the image plane.
func (i Intrinsics) ProjectPoint(p r3.Vector) (r2.Point, error) {
	if p.Z <= 0 {
		return r2.Point{}, ErrBehindCamera
	}
	x := p.X / p.Z
	y := p.Y / p.Z
	return r2.Point{X: i.Fx*x + i.Skew*y + i.Ppx, Y: i.Fy*y + i.Ppy}, nil
}

// normalizePoint maps a pixel back to normalized image coordinates.
func (i Intrinsics) normalizePoint(pt r2.Point) r2.Point {
	y := (pt.Y - i.Ppy) / i.Fy
	x := (pt.X - i.Ppx - i.Skew*y) / i.Fx
	return r2.Point{X: x, Y: y}
}
