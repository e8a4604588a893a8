// Package multicam refines a 6-DoF target pose from weighted 2D observations
// seen by several calibrated cameras, using Levenberg-Marquardt over the
// stacked reprojection residual.
package multicam

import (
	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/SternenKinder/utcore/camera"
	"github.com/SternenKinder/utcore/optimize"
	"github.com/SternenKinder/utcore/spatialmath"
)

var (
	// ErrInsufficientData is returned when fewer than 3 points are given.
	ErrInsufficientData = errors.New("pose estimation requires at least 3 points")
	// ErrInconsistentInput is returned when the per-camera arrays disagree
	// in shape.
	ErrInconsistentInput = errors.New("per-camera inputs are inconsistent")
)

// Camera is one calibrated camera participating in the refinement. Extrinsic
// maps the shared target frame into the camera frame.
type Camera struct {
	Extrinsic  spatialmath.Pose
	Intrinsics camera.Intrinsics
}

// Result is the outcome of one pose estimation. A rejected result carries
// the identity pose and a residual of -1; it signals that too few usable
// observations were available, an expected condition rather than a failure.
type Result struct {
	Pose     spatialmath.ErrorPose
	Residual float64
}

// Rejected reports whether the feasibility gate turned this estimate down.
func (r Result) Rejected() bool {
	return r.Residual < 0
}

func rejectedResult() Result {
	return Result{
		Pose:     spatialmath.NewErrorPose(spatialmath.NewZeroPose(), mat.NewSymDense(6, nil)),
		Residual: -1,
	}
}

// EstimatePose refines the 6-DoF pose of a target observed by several
// calibrated cameras. minCorrespondences is the per-camera observation count
// required by the feasibility gate. initialPose may be nil, in which case a
// planar-homography seed is computed from the camera with the most retained
// observations and mapped into the shared frame through that camera's
// extrinsic; seeding needs at least 4 observations on that camera.
func EstimatePose(
	points3d []r3.Vector,
	points2d [][]r2.Point,
	weights [][]float64,
	cameras []Camera,
	minCorrespondences int,
	initialPose *spatialmath.Pose,
	term optimize.TerminationCriteria,
	logger golog.Logger,
) (Result, error) {
	if err := checkConsistency(points3d, points2d, weights, cameras); err != nil {
		return Result{}, err
	}
	return estimatePoseRange(
		points3d, points2d, weights, cameras,
		minCorrespondences, initialPose, 0, len(points3d)-1, term, logger)
}

// EstimatePoseWithLocalBundles partitions the point-index range into
// contiguous, non-overlapping sub-ranges of the declared sizes, in order,
// and solves each as an independent pose estimation, always without a
// caller-supplied initial pose. One Result is returned per bundle.
func EstimatePoseWithLocalBundles(
	points3d []r3.Vector,
	points2d [][]r2.Point,
	weights [][]float64,
	cameras []Camera,
	minCorrespondences int,
	bundleSizes []int,
	term optimize.TerminationCriteria,
	logger golog.Logger,
) ([]Result, error) {
	if err := checkConsistency(points3d, points2d, weights, cameras); err != nil {
		return nil, err
	}
	total := 0
	for i, size := range bundleSizes {
		if size <= 0 {
			return nil, errors.Wrapf(ErrInconsistentInput, "bundle %d has size %d", i, size)
		}
		total += size
	}
	if total > len(points3d) {
		return nil, errors.Wrapf(ErrInconsistentInput,
			"bundle sizes sum to %d but only %d points are available", total, len(points3d))
	}

	logger.Debugf("processing %d local bundles", len(bundleSizes))
	results := make([]Result, 0, len(bundleSizes))
	offset := 0
	for i, size := range bundleSizes {
		logger.Debugf("local bundle %d has %d points at offset %d", i, size, offset)
		res, err := estimatePoseRange(
			points3d, points2d, weights, cameras,
			minCorrespondences, nil, offset, offset+size-1, term, logger)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
		offset += size
	}
	return results, nil
}

func estimatePoseRange(
	points3d []r3.Vector,
	points2d [][]r2.Point,
	weights [][]float64,
	cameras []Camera,
	minCorrespondences int,
	initialPose *spatialmath.Pose,
	start, end int,
	term optimize.TerminationCriteria,
	logger golog.Logger,
) (Result, error) {
	observations, counts := aggregateObservations(points3d, points2d, weights, start, end)
	minCount, maxCount, maxCamera := observationStats(counts)
	logger.Debugf("%d observations found", len(observations))

	if minCount < minCorrespondences || (initialPose == nil && maxCount < 4) {
		logger.Debugf("not enough observations, only %d available for some camera", minCount)
		return rejectedResult(), nil
	}

	var pose spatialmath.Pose
	if initialPose != nil {
		pose = *initialPose
	} else {
		seed, err := seedPose(points3d, observations, cameras, maxCamera)
		if err != nil {
			return Result{}, err
		}
		pose = seed
		logger.Debugf("seeded initial pose from camera %d with %d observations",
			maxCamera, counts[maxCamera])
	}

	residual := func(params []float64) ([]float64, error) {
		p := poseFromParams(params)
		out := make([]float64, 2*len(observations))
		for i, obs := range observations {
			cam := cameras[obs.CameraIndex]
			pt := cam.Extrinsic.TransformPoint(p.TransformPoint(points3d[obs.PointIndex]))
			// algebraic projection, no cheirality check: a trial step may
			// momentarily carry a point behind a camera and the optimizer
			// steps back from there on its own
			x := pt.X / pt.Z
			y := pt.Y / pt.Z
			out[2*i] = obs.Pixel.X - (cam.Intrinsics.Fx*x + cam.Intrinsics.Skew*y + cam.Intrinsics.Ppx)
			out[2*i+1] = obs.Pixel.Y - (cam.Intrinsics.Fy*y + cam.Intrinsics.Ppy)
		}
		return out, nil
	}

	logger.Debugf("optimizing pose over %d cameras using %d observations",
		len(cameras), len(observations))
	params, res, err := optimize.LevenbergMarquardt(residual, nil, poseToParams(pose), term)
	if err != nil {
		return Result{}, err
	}
	refined := poseFromParams(params)
	logger.Debugw("estimated pose", "residual", res)
	return Result{Pose: spatialmath.NewErrorPoseFromResidual(refined, res), Residual: res}, nil
}

// seedPose runs the single-camera planar estimator on the camera with the
// most retained observations and maps the estimate into the shared target
// frame through that camera's extrinsic.
func seedPose(
	points3d []r3.Vector,
	observations []Observation,
	cameras []Camera,
	maxCamera int,
) (spatialmath.Pose, error) {
	var seedPts3d []r3.Vector
	var seedPts2d []r2.Point
	for _, obs := range observations {
		if obs.CameraIndex != maxCamera {
			continue
		}
		seedPts3d = append(seedPts3d, points3d[obs.PointIndex])
		seedPts2d = append(seedPts2d, obs.Pixel)
	}
	seed, err := camera.PoseFromPlanarPoints(seedPts3d, seedPts2d, cameras[maxCamera].Intrinsics)
	if err != nil {
		return spatialmath.Pose{}, errors.Wrap(err, "initial pose")
	}
	return cameras[maxCamera].Extrinsic.Invert().Compose(seed), nil
}

// poseToParams packs a pose into the 6-vector [t, log q] used by the
// optimizer.
func poseToParams(p spatialmath.Pose) []float64 {
	l := spatialmath.Log(p.Rotation)
	return []float64{p.Translation.X, p.Translation.Y, p.Translation.Z, l.X, l.Y, l.Z}
}

func poseFromParams(params []float64) spatialmath.Pose {
	return spatialmath.NewPose(
		spatialmath.Exp(r3.Vector{X: params[3], Y: params[4], Z: params[5]}),
		r3.Vector{X: params[0], Y: params[1], Z: params[2]},
	)
}
