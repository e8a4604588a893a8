package camera

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/SternenKinder/utcore/optimize"
	"github.com/SternenKinder/utcore/spatialmath"
)

// ErrInsufficientPoints is returned when too few correspondences are given
// to estimate a pose from a single camera.
var ErrInsufficientPoints = errors.New("planar pose estimation requires at least 4 correspondences")

// PoseFromPlanarPoints estimates the pose mapping the model frame of a
// planar target into the camera frame from 2D-3D correspondences seen by a
// single calibrated camera. The 3D points are assumed coplanar; the target
// must sit in front of the camera. At least 4 correspondences are required.
func PoseFromPlanarPoints(points3d []r3.Vector, points2d []r2.Point, intrinsics Intrinsics) (spatialmath.Pose, error) {
	if len(points3d) != len(points2d) {
		return spatialmath.Pose{}, errors.Errorf(
			"got %d 3D points but %d 2D points", len(points3d), len(points2d))
	}
	if len(points3d) < 4 {
		return spatialmath.Pose{}, errors.Wrapf(ErrInsufficientPoints, "got %d", len(points3d))
	}

	planeFromModel, planePts := planeCoordinates(points3d)
	normalized := make([]r2.Point, len(points2d))
	for i, pt := range points2d {
		normalized[i] = intrinsics.normalizePoint(pt)
	}

	h, err := homographyDLT(planePts, normalized)
	if err != nil {
		return spatialmath.Pose{}, err
	}

	camFromPlane, err := poseFromHomography(h)
	if err != nil {
		return spatialmath.Pose{}, err
	}
	return camFromPlane.Compose(planeFromModel), nil
}

// planeCoordinates fits a plane frame to the points via SVD of the centered
// coordinates and returns the model-to-plane transform along with the 2D
// in-plane coordinates of every point.
func planeCoordinates(points3d []r3.Vector) (spatialmath.Pose, []r2.Point) {
	var centroid r3.Vector
	for _, p := range points3d {
		centroid = centroid.Add(p)
	}
	centroid = centroid.Mul(1 / float64(len(points3d)))

	centered := mat.NewDense(3, len(points3d), nil)
	for i, p := range points3d {
		d := p.Sub(centroid)
		centered.Set(0, i, d.X)
		centered.Set(1, i, d.Y)
		centered.Set(2, i, d.Z)
	}

	var svd mat.SVD
	ok := svd.Factorize(centered, mat.SVDThin)
	if !ok {
		// fall back to the model axes; the caller's homography solve will
		// reject a truly degenerate configuration
		return spatialmath.NewPose(quat.Number{Real: 1}, centroid.Mul(-1)), inPlane(points3d, centroid,
			r3.Vector{X: 1}, r3.Vector{Y: 1})
	}
	var u mat.Dense
	svd.UTo(&u)
	ex := r3.Vector{X: u.At(0, 0), Y: u.At(1, 0), Z: u.At(2, 0)}
	ey := r3.Vector{X: u.At(0, 1), Y: u.At(1, 1), Z: u.At(2, 1)}
	ez := ex.Cross(ey)

	basis := mat.NewDense(3, 3, []float64{
		ex.X, ex.Y, ex.Z,
		ey.X, ey.Y, ey.Z,
		ez.X, ez.Y, ez.Z,
	})
	q := spatialmath.QuatFromRotationMatrix(basis)
	t := spatialmath.RotateVec(q, centroid).Mul(-1)
	return spatialmath.NewPose(q, t), inPlane(points3d, centroid, ex, ey)
}

func inPlane(points3d []r3.Vector, centroid, ex, ey r3.Vector) []r2.Point {
	planePts := make([]r2.Point, len(points3d))
	for i, p := range points3d {
		d := p.Sub(centroid)
		planePts[i] = r2.Point{X: d.Dot(ex), Y: d.Dot(ey)}
	}
	return planePts
}

// homographyDLT computes the 3x3 homography mapping src onto dst as the null
// vector of the stacked direct-linear-transform system.
func homographyDLT(src, dst []r2.Point) (*mat.Dense, error) {
	a := mat.NewDense(2*len(src), 9, nil)
	for i := range src {
		X, Y := src[i].X, src[i].Y
		x, y := dst[i].X, dst[i].Y
		a.SetRow(2*i, []float64{-X, -Y, -1, 0, 0, 0, x * X, x * Y, x})
		a.SetRow(2*i+1, []float64{0, 0, 0, -X, -Y, -1, y * X, y * Y, y})
	}

	var svd mat.SVD
	ok := svd.Factorize(a, mat.SVDFull)
	if !ok {
		return nil, errors.New("failed to factorize homography system")
	}
	const rcond = 1e-12
	if svd.Rank(rcond) < 8 {
		return nil, errors.Wrap(optimize.ErrSingularSystem, "homography system is rank deficient")
	}
	var v mat.Dense
	svd.VTo(&v)
	h := make([]float64, 9)
	for i := range h {
		h[i] = v.At(i, 8)
	}
	return mat.NewDense(3, 3, h), nil
}

// poseFromHomography decomposes a plane-to-normalized-image homography
// H ~ [r1 r2 t] into a rigid transform, orthonormalizing the recovered
// rotation and fixing the sign so the plane lies in front of the camera.
func poseFromHomography(h *mat.Dense) (spatialmath.Pose, error) {
	h1 := r3.Vector{X: h.At(0, 0), Y: h.At(1, 0), Z: h.At(2, 0)}
	h2 := r3.Vector{X: h.At(0, 1), Y: h.At(1, 1), Z: h.At(2, 1)}
	h3 := r3.Vector{X: h.At(0, 2), Y: h.At(1, 2), Z: h.At(2, 2)}

	scale := 2 / (h1.Norm() + h2.Norm())
	if scale == 0 || math.IsInf(scale, 0) {
		return spatialmath.Pose{}, errors.Wrap(optimize.ErrSingularSystem, "degenerate homography")
	}
	if h3.Z < 0 {
		// the plane origin must have positive depth
		scale = -scale
	}
	r1 := h1.Mul(scale)
	r2 := h2.Mul(scale)
	t := h3.Mul(scale)

	r3col := r1.Cross(r2)
	rot := mat.NewDense(3, 3, []float64{
		r1.X, r2.X, r3col.X,
		r1.Y, r2.Y, r3col.Y,
		r1.Z, r2.Z, r3col.Z,
	})
	ortho, err := nearestRotation(rot)
	if err != nil {
		return spatialmath.Pose{}, err
	}
	return spatialmath.NewPose(spatialmath.QuatFromRotationMatrix(ortho), t), nil
}

// nearestRotation projects an approximate rotation onto the closest
// orthonormal matrix with determinant +1.
func nearestRotation(m *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	ok := svd.Factorize(m, mat.SVDFull)
	if !ok {
		return nil, errors.New("failed to factorize rotation")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var rot mat.Dense
	rot.Mul(&u, v.T())
	if mat.Det(&rot) < 0 {
		// flip the axis of the smallest singular value
		d := mat.NewDense(3, 3, nil)
		d.Set(0, 0, 1)
		d.Set(1, 1, 1)
		d.Set(2, 2, -1)
		var ud mat.Dense
		ud.Mul(&u, d)
		rot.Mul(&ud, v.T())
	}
	out := mat.DenseCopyOf(&rot)
	return out, nil
}
